package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/leadvault/backend/internal/ledger"
	"github.com/leadvault/backend/internal/middleware"
	"github.com/leadvault/backend/internal/models"
	"github.com/leadvault/backend/internal/services"
	"github.com/leadvault/backend/internal/testutil"
)

// ---------------------------------------------------------------------------
// Shared fixture: real services over the in-memory ledger and store.
// ---------------------------------------------------------------------------

type fixture struct {
	mem    *testutil.Ledger
	store  *testutil.Store
	ledger *ledger.Service
	lists  *ListHandler
	owner  models.Principal
	admin  models.Principal
	mux    *http.ServeMux
}

func newFixture(t *testing.T, ownerBalance int) *fixture {
	t.Helper()
	owner := models.Principal{UserID: uuid.New(), Email: "owner@example.com"}
	admin := models.Principal{UserID: uuid.New(), Email: "admin@example.com", IsAdmin: true}

	mem := testutil.NewLedger()
	mem.AddUser(owner.UserID, ownerBalance)
	mem.AddUser(admin.UserID, 100)
	l := ledger.NewService(mem, mem, mem, nil)

	v, err := services.NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	store := testutil.NewStore()
	dir := services.NewDirectory(store.People(), store.Companies(), v, nil)
	svc := services.NewListService(store.Lists(), dir, l, services.ListCosts{CreateList: 10, AddMember: 2}, nil)

	f := &fixture{mem: mem, store: store, ledger: l, owner: owner, admin: admin}
	f.lists = NewListHandler(svc, nil)
	credits := NewCreditHandler(l, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/lists", f.lists.Create)
	mux.HandleFunc("GET /api/lists", f.lists.List)
	mux.HandleFunc("GET /api/lists/{id}", f.lists.Get)
	mux.HandleFunc("PATCH /api/lists/{id}", f.lists.Rename)
	mux.HandleFunc("DELETE /api/lists/{id}", f.lists.Delete)
	mux.HandleFunc("POST /api/lists/{id}/members", f.lists.AddMember)
	mux.HandleFunc("DELETE /api/lists/{id}/members/{memberId}", f.lists.RemoveMember)
	mux.HandleFunc("GET /api/credits/balance", credits.Balance)
	mux.HandleFunc("GET /api/credits/history", credits.History)
	f.mux = mux
	return f
}

// do sends a request as p; a nil principal sends it anonymously.
func (f *fixture) do(t *testing.T, p *models.Principal, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if p != nil {
		req = req.WithContext(middleware.WithPrincipal(req.Context(), p))
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, env
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (f *fixture) createList(t *testing.T, target models.ListTarget) models.List {
	t.Helper()
	rec, env := f.do(t, &f.owner, http.MethodPost, "/api/lists", map[string]string{"name": "Leads", "target": string(target)})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create list: %d %s", rec.Code, rec.Body.String())
	}
	var l models.List
	if err := json.Unmarshal(env.Data, &l); err != nil {
		t.Fatal(err)
	}
	return l
}

// ---------------------------------------------------------------------------
// 1. Lists
// ---------------------------------------------------------------------------

func TestCreateList_ChargesAndReturns201(t *testing.T) {
	f := newFixture(t, 10)

	l := f.createList(t, models.TargetPeople)
	if l.OwnerID != f.owner.UserID || l.Name != "Leads" {
		t.Errorf("unexpected list %+v", l)
	}
	if got := f.mem.Balance(f.owner.UserID); got != 0 {
		t.Errorf("balance = %d, want 0", got)
	}

	rec, env := f.do(t, &f.owner, http.MethodPost, "/api/lists", map[string]string{"name": "More", "target": "people"})
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("second list: expected 402, got %d", rec.Code)
	}
	if env.Success || env.Message != "Insufficient credits. Please top up." {
		t.Errorf("unexpected envelope %+v", env)
	}
	if n := f.store.ListCount(); n != 1 {
		t.Errorf("list count = %d, want 1", n)
	}
}

func TestCreateList_BadInput(t *testing.T) {
	f := newFixture(t, 50)

	cases := []struct {
		name string
		body any
	}{
		{"empty name", map[string]string{"name": "  ", "target": "people"}},
		{"bad target", map[string]string{"name": "Leads", "target": "accounts"}},
		{"invalid JSON", `{"name":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, _ := f.do(t, &f.owner, http.MethodPost, "/api/lists", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
	if got := f.mem.Balance(f.owner.UserID); got != 50 {
		t.Errorf("rejected input must not charge: balance %d", got)
	}
}

func TestListEndpoints_RequirePrincipal(t *testing.T) {
	f := newFixture(t, 50)
	rec, _ := f.do(t, nil, http.MethodGet, "/api/lists", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestAddMember_UnknownPersonRefunds(t *testing.T) {
	f := newFixture(t, 15)
	l := f.createList(t, models.TargetPeople)

	bogus := uuid.New()
	rec, _ := f.do(t, &f.owner, http.MethodPost, "/api/lists/"+l.ID.String()+"/members", models.MemberRef{PersonID: &bogus})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := f.mem.Balance(f.owner.UserID); got != 5 {
		t.Errorf("balance = %d, want 5 after refund", got)
	}
	if n := len(f.mem.ByReason(models.ReasonRefundAddMemberPersonNotFound)); n != 1 {
		t.Errorf("refund records = %d, want 1", n)
	}
}

func TestAddAndRemoveMember(t *testing.T) {
	f := newFixture(t, 20)
	l := f.createList(t, models.TargetPeople)
	person := f.store.AddPerson(&models.Person{Name: "Ada", Email: "ada@example.com"})

	path := "/api/lists/" + l.ID.String() + "/members"
	rec, env := f.do(t, &f.owner, http.MethodPost, path, map[string]string{"email": "ADA@example.com"})
	if rec.Code != http.StatusOK {
		t.Fatalf("add: %d %s", rec.Code, rec.Body.String())
	}
	var got models.List
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatal(err)
	}
	if !got.HasMember(person.ID) {
		t.Errorf("member not added: %+v", got.MemberIDs)
	}
	if b := f.mem.Balance(f.owner.UserID); b != 8 {
		t.Errorf("balance = %d, want 8", b)
	}

	rec, _ = f.do(t, &f.owner, http.MethodDelete, path+"/"+person.ID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("remove: %d %s", rec.Code, rec.Body.String())
	}
	if b := f.mem.Balance(f.owner.UserID); b != 10 {
		t.Errorf("balance = %d, want 10 after removal refund", b)
	}
}

func TestListAccessControl(t *testing.T) {
	f := newFixture(t, 20)
	l := f.createList(t, models.TargetCompany)
	stranger := models.Principal{UserID: uuid.New()}
	f.mem.AddUser(stranger.UserID, 20)

	rec, _ := f.do(t, &stranger, http.MethodGet, "/api/lists/"+l.ID.String(), nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("stranger get: expected 403, got %d", rec.Code)
	}
	rec, _ = f.do(t, &stranger, http.MethodDelete, "/api/lists/"+l.ID.String(), nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("stranger delete: expected 403, got %d", rec.Code)
	}
	rec, _ = f.do(t, &f.admin, http.MethodGet, "/api/lists/"+l.ID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Errorf("admin get: expected 200, got %d", rec.Code)
	}
	rec, _ = f.do(t, &f.owner, http.MethodGet, "/api/lists/not-a-uuid", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad id: expected 400, got %d", rec.Code)
	}
	rec, _ = f.do(t, &f.owner, http.MethodDelete, "/api/lists/"+uuid.NewString(), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing list: expected 404, got %d", rec.Code)
	}
}

func TestRenameAndDeleteList(t *testing.T) {
	f := newFixture(t, 10)
	l := f.createList(t, models.TargetPeople)
	path := "/api/lists/" + l.ID.String()

	rec, _ := f.do(t, &f.owner, http.MethodPatch, path, map[string]string{"name": "Renamed", "target": "company"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("target change: expected 400, got %d", rec.Code)
	}
	rec, env := f.do(t, &f.owner, http.MethodPatch, path, map[string]string{"name": "Renamed"})
	if rec.Code != http.StatusOK || !bytes.Contains(env.Data, []byte(`"Renamed"`)) {
		t.Errorf("rename: %d %s", rec.Code, rec.Body.String())
	}

	rec, _ = f.do(t, &f.owner, http.MethodDelete, path, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: %d", rec.Code)
	}
	if b := f.mem.Balance(f.owner.UserID); b != 10 {
		t.Errorf("balance = %d, want creation cost refunded", b)
	}
}

func TestListLists_Paginates(t *testing.T) {
	f := newFixture(t, 100)
	for i := 0; i < 3; i++ {
		f.createList(t, models.TargetPeople)
	}

	rec, env := f.do(t, &f.owner, http.MethodGet, "/api/lists?page=2&limit=2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d", rec.Code)
	}
	var page struct {
		Page  int           `json:"page"`
		Limit int           `json:"limit"`
		Total int           `json:"total"`
		Items []models.List `json:"items"`
	}
	if err := json.Unmarshal(env.Data, &page); err != nil {
		t.Fatal(err)
	}
	if page.Page != 2 || page.Limit != 2 || page.Total != 3 || len(page.Items) != 1 {
		t.Errorf("unexpected page %+v", page)
	}
}

// ---------------------------------------------------------------------------
// 2. Credits
// ---------------------------------------------------------------------------

func TestCredits_BalanceAndHistory(t *testing.T) {
	f := newFixture(t, 30)
	f.createList(t, models.TargetPeople)

	rec, env := f.do(t, &f.owner, http.MethodGet, "/api/credits/balance", nil)
	if rec.Code != http.StatusOK || string(env.Data) != `{"credits":20}` {
		t.Errorf("balance: %d %s", rec.Code, env.Data)
	}

	rec, env = f.do(t, &f.owner, http.MethodGet, "/api/credits/history?limit=10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history: %d", rec.Code)
	}
	var txns []models.CreditTransaction
	if err := json.Unmarshal(env.Data, &txns); err != nil {
		t.Fatal(err)
	}
	if len(txns) != 1 || txns[0].Change != -10 || txns[0].Reason != models.ReasonCreateList {
		t.Errorf("unexpected history %+v", txns)
	}

	ghost := models.Principal{UserID: uuid.New()}
	rec, _ = f.do(t, &ghost, http.MethodGet, "/api/credits/balance", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown user: expected 404, got %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// 3. Envelope
// ---------------------------------------------------------------------------

func TestErrorsDoNotLeakInternals(t *testing.T) {
	f := newFixture(t, 50)
	f.store.FailCreateList = context.DeadlineExceeded

	rec, env := f.do(t, &f.owner, http.MethodPost, "/api/lists", map[string]string{"name": "Leads", "target": "people"})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if env.Message != "Internal Server Error" {
		t.Errorf("500 message leaked: %q", env.Message)
	}
	if got := f.mem.Balance(f.owner.UserID); got != 50 {
		t.Errorf("failed insert must be refunded: balance %d", got)
	}
}
