package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/leadvault/backend/internal/models"
	"github.com/leadvault/backend/internal/testutil"
)

func newSeeder(t *testing.T) (*Seeder, *testutil.Store) {
	t.Helper()
	store := testutil.NewStore()
	dir := NewDirectory(store.People(), store.Companies(), newTestValidator(t), nil)
	return NewSeeder(dir, store.People(), nil), store
}

func seedData(t *testing.T, doc string) SeedData {
	t.Helper()
	var d SeedData
	if err := json.Unmarshal([]byte(doc), &d); err != nil {
		t.Fatalf("bad fixture: %v", err)
	}
	return d
}

const seedDoc = `{
	"companies": [
		{"id": "acme", "name": "Acme", "industries": "Tools, Rockets", "founded": "1949"},
		{"externalId": "globex", "name": "Globex"},
		{"name": "No Key"},
		{"id": "nameless"}
	],
	"people": [
		{"id": "wile", "name": "Wile E.", "companyId": "acme", "designation": "Engineer"},
		{"name": "Road Runner", "company": "acme"},
		{"name": "Hank", "companyId": "globex", "email": "HANK@Globex.com"},
		{"name": "", "companyId": "acme"},
		{"name": "Orphan"},
		{"name": "Lost", "companyId": "initech"}
	]
}`

func TestSeed_InsertsThenUpdates(t *testing.T) {
	s, store := newSeeder(t)
	ctx := context.Background()

	report, err := s.Seed(ctx, seedData(t, seedDoc))
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if report.CompaniesInserted != 2 || report.CompaniesUpdated != 0 {
		t.Errorf("companies: %+v", report)
	}
	if report.PeopleInserted != 3 || report.PeopleUpdated != 0 {
		t.Errorf("people: %+v", report)
	}
	if len(report.Warnings) != 5 {
		t.Errorf("warnings: got %d, want 5: %v", len(report.Warnings), report.Warnings)
	}
	if !strings.Contains(strings.Join(report.Warnings, "\n"), "company initech not found") {
		t.Errorf("missing company warning not reported: %v", report.Warnings)
	}

	acme, err := store.Companies().GetByExternalID(ctx, "acme")
	if err != nil {
		t.Fatalf("acme: %v", err)
	}
	if len(acme.Industries) != 2 || acme.Founded == nil || *acme.Founded != 1949 {
		t.Errorf("acme fields not applied: %+v", acme)
	}
	wile, err := store.People().GetByExternalID(ctx, "wile")
	if err != nil {
		t.Fatalf("wile: %v", err)
	}
	if wile.CompanyID == nil || *wile.CompanyID != acme.ID || wile.Designation != "Engineer" || wile.Department != "Unknown" {
		t.Errorf("unexpected person: %+v", wile)
	}
	hank, err := store.People().GetByExternalID(ctx, "p-globex-hank")
	if err != nil {
		t.Fatalf("person without id should get a stable key: %v", err)
	}
	if hank.Email != "hank@globex.com" {
		t.Errorf("email not normalized: %q", hank.Email)
	}

	// A second run matches every record by key.
	report, err = s.Seed(ctx, seedData(t, seedDoc))
	if err != nil {
		t.Fatalf("second Seed: %v", err)
	}
	if report.CompaniesInserted != 0 || report.CompaniesUpdated != 2 || report.PeopleInserted != 0 || report.PeopleUpdated != 3 {
		t.Errorf("second run should only update: %+v", report)
	}
	if n := store.PersonCount(); n != 3 {
		t.Errorf("people: got %d, want 3", n)
	}
}

func TestSeed_StorageErrorAborts(t *testing.T) {
	s, store := newSeeder(t)
	store.FailLookup = errors.New("connection reset")

	_, err := s.Seed(context.Background(), seedData(t, `{"people": [{"name": "X", "companyId": "acme"}]}`))
	if err == nil {
		t.Fatal("expected the storage error")
	}
}

func TestClearPeople(t *testing.T) {
	s, store := newSeeder(t)
	ctx := context.Background()
	if _, err := s.Seed(ctx, seedData(t, seedDoc)); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	l := &models.List{Name: "Leads", Target: models.TargetPeople}
	if err := store.Lists().Create(ctx, l); err != nil {
		t.Fatalf("create list: %v", err)
	}
	wile, _ := store.People().GetByExternalID(ctx, "wile")
	if _, err := store.Lists().AddMember(ctx, l.ID, models.TargetPeople, wile.ID); err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	n, err := s.ClearPeople(ctx)
	if err != nil || n != 3 {
		t.Fatalf("ClearPeople: n=%d err=%v", n, err)
	}
	if store.PersonCount() != 0 {
		t.Error("people should be gone")
	}
	got, _ := store.Lists().GetByID(ctx, l.ID)
	if got.MembersCount != 0 {
		t.Errorf("memberships should go with the people: %+v", got)
	}
}
