package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/leadvault/backend/internal/ledger"
	"github.com/leadvault/backend/internal/models"
	"github.com/leadvault/backend/internal/testutil"
)

type listFixture struct {
	svc   *ListService
	led   *ledger.Service
	mem   *testutil.Ledger
	store *testutil.Store
	owner models.Principal
	admin models.Principal
}

func newListFixture(t *testing.T, ownerBalance int, costs ListCosts) *listFixture {
	t.Helper()
	owner := models.Principal{UserID: uuid.New(), Email: "owner@example.com"}
	admin := models.Principal{UserID: uuid.New(), Email: "admin@example.com", IsAdmin: true}
	l, mem := newLedger(t, map[uuid.UUID]int{owner.UserID: ownerBalance, admin.UserID: 100})
	store := testutil.NewStore()
	dir := NewDirectory(store.People(), store.Companies(), newTestValidator(t), nil)
	return &listFixture{
		svc:   NewListService(store.Lists(), dir, l, costs, nil),
		led:   l,
		mem:   mem,
		store: store,
		owner: owner,
		admin: admin,
	}
}

var defaultCosts = ListCosts{CreateList: 10, AddMember: 2}

func (f *listFixture) newList(t *testing.T, target models.ListTarget) *models.List {
	t.Helper()
	l, err := f.svc.CreateList(context.Background(), f.owner, "Leads", target)
	if err != nil {
		t.Fatalf("CreateList: %v", err)
	}
	return l
}

// ---------------------------------------------------------------------------
// 1. CreateList
// ---------------------------------------------------------------------------

func TestCreateList_Validation(t *testing.T) {
	f := newListFixture(t, 50, defaultCosts)
	ctx := context.Background()

	if _, err := f.svc.CreateList(ctx, f.owner, "   ", models.TargetPeople); !errors.Is(err, ErrValidation) {
		t.Errorf("empty name: expected ErrValidation, got %v", err)
	}
	if _, err := f.svc.CreateList(ctx, f.owner, "Leads", "accounts"); !errors.Is(err, ErrValidation) {
		t.Errorf("bad target: expected ErrValidation, got %v", err)
	}
	if got := f.mem.Balance(f.owner.UserID); got != 50 {
		t.Errorf("validation failures must not charge: balance %d, want 50", got)
	}
	if n := len(f.mem.Entries()); n != 0 {
		t.Errorf("no transactions expected, got %d", n)
	}
}

func TestCreateList_ExhaustsBalance(t *testing.T) {
	f := newListFixture(t, 10, defaultCosts)
	ctx := context.Background()

	l, err := f.svc.CreateList(ctx, f.owner, "Leads", models.TargetPeople)
	if err != nil {
		t.Fatalf("CreateList: %v", err)
	}
	if l.OwnerID != f.owner.UserID || l.Target != models.TargetPeople {
		t.Errorf("unexpected list: %+v", l)
	}
	if got := f.mem.Balance(f.owner.UserID); got != 0 {
		t.Errorf("balance: got %d, want 0", got)
	}

	if _, err := f.svc.CreateList(ctx, f.owner, "More leads", models.TargetPeople); !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
	if got := f.mem.Balance(f.owner.UserID); got != 0 {
		t.Errorf("balance after rejected create: got %d, want 0", got)
	}
	if n := f.store.ListCount(); n != 1 {
		t.Errorf("lists: got %d, want 1", n)
	}
	assertReconciled(t, f.led, f.owner.UserID)
}

func TestCreateList_DefaultTarget(t *testing.T) {
	f := newListFixture(t, 50, defaultCosts)
	l, err := f.svc.CreateList(context.Background(), f.owner, "Leads", "")
	if err != nil {
		t.Fatalf("CreateList: %v", err)
	}
	if l.Target != models.TargetPeople {
		t.Errorf("target: got %q, want people", l.Target)
	}
}

func TestCreateList_InsertFailureRefunds(t *testing.T) {
	f := newListFixture(t, 50, defaultCosts)
	f.store.FailCreateList = errors.New("insert failed")

	if _, err := f.svc.CreateList(context.Background(), f.owner, "Leads", models.TargetCompany); err == nil {
		t.Fatal("expected the insert error")
	}
	if got := f.mem.Balance(f.owner.UserID); got != 50 {
		t.Errorf("balance: got %d, want 50", got)
	}
	if n := len(f.mem.ByReason(models.ReasonRefundCreateListFailed)); n != 1 {
		t.Errorf("refund_create_list_failed entries: got %d, want 1", n)
	}
	assertReconciled(t, f.led, f.owner.UserID)
}

// ---------------------------------------------------------------------------
// 2. AddMember
// ---------------------------------------------------------------------------

func TestAddMember_Person(t *testing.T) {
	f := newListFixture(t, 50, defaultCosts)
	l := f.newList(t, models.TargetPeople)
	p := f.store.AddPerson(&models.Person{ExternalID: "jane", Name: "Jane"})

	got, err := f.svc.AddMember(context.Background(), f.owner, l.ID, models.MemberRef{PersonID: &p.ID})
	if err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if !got.HasMember(p.ID) || got.MembersCount != 1 {
		t.Errorf("member not added: %+v", got)
	}
	if bal := f.mem.Balance(f.owner.UserID); bal != 38 {
		t.Errorf("balance: got %d, want 38", bal)
	}
	charges := f.mem.ByReason(models.ReasonAddMember)
	if len(charges) != 1 || charges[0].Meta.ListID == nil || *charges[0].Meta.ListID != l.ID {
		t.Errorf("add_member charge should reference the list: %+v", charges)
	}
}

func TestAddMember_UnknownPersonRefunds(t *testing.T) {
	f := newListFixture(t, 15, defaultCosts)
	l := f.newList(t, models.TargetPeople) // balance 5

	bogus := uuid.New()
	_, err := f.svc.AddMember(context.Background(), f.owner, l.ID, models.MemberRef{PersonID: &bogus})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if got := f.mem.Balance(f.owner.UserID); got != 5 {
		t.Errorf("charge and refund should net to zero: balance %d, want 5", got)
	}
	if n := len(f.mem.ByReason(models.ReasonRefundAddMemberPersonNotFound)); n != 1 {
		t.Errorf("person_not_found refunds: got %d, want 1", n)
	}
	assertReconciled(t, f.led, f.owner.UserID)
}

func TestAddMember_UnknownCompanyRefunds(t *testing.T) {
	f := newListFixture(t, 50, defaultCosts)
	l := f.newList(t, models.TargetCompany)

	bogus := uuid.New()
	_, err := f.svc.AddMember(context.Background(), f.owner, l.ID, models.MemberRef{CompanyID: &bogus})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if got := f.mem.Balance(f.owner.UserID); got != 40 {
		t.Errorf("balance: got %d, want 40", got)
	}
	if n := len(f.mem.ByReason(models.ReasonRefundAddMemberCompanyNotFound)); n != 1 {
		t.Errorf("company_not_found refunds: got %d, want 1", n)
	}
}

func TestAddMember_RejectedBeforeCharge(t *testing.T) {
	f := newListFixture(t, 50, defaultCosts)
	l := f.newList(t, models.TargetPeople)
	ctx := context.Background()
	c := f.store.AddCompany(&models.Company{ExternalID: "acme", Name: "Acme"})

	if _, err := f.svc.AddMember(ctx, f.owner, l.ID, models.MemberRef{CompanyID: &c.ID}); !errors.Is(err, ErrValidation) {
		t.Errorf("company on people list: expected ErrValidation, got %v", err)
	}
	if _, err := f.svc.AddMember(ctx, f.owner, l.ID, models.MemberRef{}); !errors.Is(err, ErrValidation) {
		t.Errorf("empty ref: expected ErrValidation, got %v", err)
	}
	stranger := models.Principal{UserID: uuid.New()}
	if _, err := f.svc.AddMember(ctx, stranger, l.ID, models.MemberRef{Email: "x@y.z"}); !errors.Is(err, ErrForbidden) {
		t.Errorf("stranger: expected ErrForbidden, got %v", err)
	}
	if _, err := f.svc.AddMember(ctx, f.owner, uuid.New(), models.MemberRef{Email: "x@y.z"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing list: expected ErrNotFound, got %v", err)
	}
	if got := f.mem.Balance(f.owner.UserID); got != 40 {
		t.Errorf("rejected requests must not charge: balance %d, want 40", got)
	}
}

func TestAddMember_DuplicatePolicy(t *testing.T) {
	t.Run("free by default", func(t *testing.T) {
		f := newListFixture(t, 50, defaultCosts)
		l := f.newList(t, models.TargetPeople)
		p := f.store.AddPerson(&models.Person{ExternalID: "jane", Name: "Jane", Email: "jane@acme.io"})
		ctx := context.Background()

		for i := 0; i < 2; i++ {
			if _, err := f.svc.AddMember(ctx, f.owner, l.ID, models.MemberRef{PersonID: &p.ID}); err != nil {
				t.Fatalf("AddMember #%d: %v", i, err)
			}
		}
		if got := f.mem.Balance(f.owner.UserID); got != 38 {
			t.Errorf("known duplicate should not be charged: balance %d, want 38", got)
		}

		// Same person by email: only discovered after the charge, so refunded.
		got, err := f.svc.AddMember(ctx, f.owner, l.ID, models.MemberRef{Email: "JANE@acme.io"})
		if err != nil {
			t.Fatalf("AddMember by email: %v", err)
		}
		if got.MembersCount != 1 {
			t.Errorf("members: got %d, want 1", got.MembersCount)
		}
		if bal := f.mem.Balance(f.owner.UserID); bal != 38 {
			t.Errorf("balance: got %d, want 38", bal)
		}
		if n := len(f.mem.ByReason(models.ReasonRefundAddMemberDuplicate)); n != 1 {
			t.Errorf("duplicate refunds: got %d, want 1", n)
		}
	})

	t.Run("charged when configured", func(t *testing.T) {
		costs := defaultCosts
		costs.ChargeDuplicates = true
		f := newListFixture(t, 50, costs)
		l := f.newList(t, models.TargetPeople)
		p := f.store.AddPerson(&models.Person{ExternalID: "jane", Name: "Jane"})
		ctx := context.Background()

		for i := 0; i < 2; i++ {
			if _, err := f.svc.AddMember(ctx, f.owner, l.ID, models.MemberRef{PersonID: &p.ID}); err != nil {
				t.Fatalf("AddMember #%d: %v", i, err)
			}
		}
		got, _ := f.svc.GetList(ctx, f.owner, l.ID)
		if got.MembersCount != 1 {
			t.Errorf("set semantics: members %d, want 1", got.MembersCount)
		}
		if bal := f.mem.Balance(f.owner.UserID); bal != 36 {
			t.Errorf("balance: got %d, want 36", bal)
		}
	})
}

func TestAddMember_ByEmail(t *testing.T) {
	f := newListFixture(t, 50, defaultCosts)
	l := f.newList(t, models.TargetPeople)
	ctx := context.Background()

	_, err := f.svc.AddMember(ctx, f.owner, l.ID, models.MemberRef{Email: "new.lead@acme.io"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("non-admin unknown email: expected ErrNotFound, got %v", err)
	}
	if got := f.mem.Balance(f.owner.UserID); got != 40 {
		t.Errorf("balance: got %d, want 40", got)
	}

	got, err := f.svc.AddMember(ctx, f.admin, l.ID, models.MemberRef{Email: "new.lead@acme.io"})
	if err != nil {
		t.Fatalf("admin AddMember by email: %v", err)
	}
	if got.MembersCount != 1 {
		t.Fatalf("members: got %d, want 1", got.MembersCount)
	}
	detail, err := f.svc.GetList(ctx, f.owner, l.ID)
	if err != nil {
		t.Fatalf("GetList: %v", err)
	}
	if len(detail.People) != 1 {
		t.Fatalf("people: got %d, want 1", len(detail.People))
	}
	stub := detail.People[0]
	if stub.Name != "New Lead" || stub.ExternalID != "p-new-lead" || stub.Designation != "Unknown" {
		t.Errorf("unexpected stub: %+v", stub)
	}
	if bal := f.mem.Balance(f.admin.UserID); bal != 98 {
		t.Errorf("the acting admin pays: balance %d, want 98", bal)
	}
}

func TestAddMember_StorageFailures(t *testing.T) {
	t.Run("lookup error", func(t *testing.T) {
		f := newListFixture(t, 50, defaultCosts)
		l := f.newList(t, models.TargetPeople)
		f.store.FailLookup = errors.New("timeout")
		id := uuid.New()

		if _, err := f.svc.AddMember(context.Background(), f.owner, l.ID, models.MemberRef{PersonID: &id}); err == nil {
			t.Fatal("expected an error")
		}
		if n := len(f.mem.ByReason(models.ReasonRefundAddMemberFailedResolve)); n != 1 {
			t.Errorf("failed_resolve refunds: got %d, want 1", n)
		}
		if got := f.mem.Balance(f.owner.UserID); got != 40 {
			t.Errorf("balance: got %d, want 40", got)
		}
	})

	t.Run("insert error", func(t *testing.T) {
		f := newListFixture(t, 50, defaultCosts)
		l := f.newList(t, models.TargetPeople)
		p := f.store.AddPerson(&models.Person{ExternalID: "jane", Name: "Jane"})
		f.store.FailAddMember = errors.New("constraint")

		if _, err := f.svc.AddMember(context.Background(), f.owner, l.ID, models.MemberRef{PersonID: &p.ID}); err == nil {
			t.Fatal("expected an error")
		}
		if n := len(f.mem.ByReason(models.ReasonRefundAddMemberException)); n != 1 {
			t.Errorf("exception refunds: got %d, want 1", n)
		}
	})

	t.Run("panic", func(t *testing.T) {
		f := newListFixture(t, 50, defaultCosts)
		l := f.newList(t, models.TargetPeople)
		p := f.store.AddPerson(&models.Person{ExternalID: "jane", Name: "Jane"})
		f.store.PanicAddMember = true

		func() {
			defer func() { _ = recover() }()
			_, _ = f.svc.AddMember(context.Background(), f.owner, l.ID, models.MemberRef{PersonID: &p.ID})
		}()
		if got := f.mem.Balance(f.owner.UserID); got != 40 {
			t.Errorf("balance after panic: got %d, want 40", got)
		}
		if n := len(f.mem.ByReason(models.ReasonRefundAddMemberException)); n != 1 {
			t.Errorf("exception refunds: got %d, want 1", n)
		}
	})
}

// ---------------------------------------------------------------------------
// 3. RemoveMember / DeleteList
// ---------------------------------------------------------------------------

func TestRemoveMember_RefundsOwnerOnce(t *testing.T) {
	f := newListFixture(t, 50, defaultCosts)
	l := f.newList(t, models.TargetPeople)
	p := f.store.AddPerson(&models.Person{ExternalID: "jane", Name: "Jane"})
	ctx := context.Background()

	if _, err := f.svc.AddMember(ctx, f.owner, l.ID, models.MemberRef{PersonID: &p.ID}); err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	// The admin removes it; the owner gets the refund.
	got, err := f.svc.RemoveMember(ctx, f.admin, l.ID, p.ID)
	if err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	if got.HasMember(p.ID) {
		t.Error("member should be gone")
	}
	if bal := f.mem.Balance(f.owner.UserID); bal != 40 {
		t.Errorf("owner balance: got %d, want 40", bal)
	}
	if bal := f.mem.Balance(f.admin.UserID); bal != 100 {
		t.Errorf("admin balance must not change: got %d", bal)
	}

	// Removing a non-member is fine and still refunds exactly once.
	if _, err := f.svc.RemoveMember(ctx, f.owner, l.ID, uuid.New()); err != nil {
		t.Fatalf("RemoveMember non-member: %v", err)
	}
	if n := len(f.mem.ByReason(models.ReasonRefundMemberRemoved)); n != 2 {
		t.Errorf("refund_member_removed entries: got %d, want 2", n)
	}
	assertReconciled(t, f.led, f.owner.UserID, f.admin.UserID)

	stranger := models.Principal{UserID: uuid.New()}
	if _, err := f.svc.RemoveMember(ctx, stranger, l.ID, p.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("stranger: expected ErrForbidden, got %v", err)
	}
}

func TestDeleteList(t *testing.T) {
	f := newListFixture(t, 50, defaultCosts)
	l := f.newList(t, models.TargetCompany)
	ctx := context.Background()

	stranger := models.Principal{UserID: uuid.New()}
	if err := f.svc.DeleteList(ctx, stranger, l.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("stranger: expected ErrForbidden, got %v", err)
	}
	if err := f.svc.DeleteList(ctx, f.admin, l.ID); err != nil {
		t.Fatalf("DeleteList: %v", err)
	}
	if got := f.mem.Balance(f.owner.UserID); got != 50 {
		t.Errorf("owner should get the creation cost back: balance %d, want 50", got)
	}
	if n := len(f.mem.ByReason(models.ReasonRefundListDeleted)); n != 1 {
		t.Errorf("refund_list_deleted entries: got %d, want 1", n)
	}
	if err := f.svc.DeleteList(ctx, f.owner, l.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
	assertReconciled(t, f.led, f.owner.UserID, f.admin.UserID)
}

func TestDeleteList_RefundsWhatWasCharged(t *testing.T) {
	f := newListFixture(t, 50, defaultCosts)
	l := f.newList(t, models.TargetPeople)
	if l.CreditsCharged != 10 {
		t.Fatalf("credits charged: got %d, want 10", l.CreditsCharged)
	}

	// A price change after creation must not change the refund.
	f.svc.Costs.CreateList = 25
	if err := f.svc.DeleteList(context.Background(), f.owner, l.ID); err != nil {
		t.Fatalf("DeleteList: %v", err)
	}
	if got := f.mem.Balance(f.owner.UserID); got != 50 {
		t.Errorf("balance: got %d, want 50", got)
	}
	refunds := f.mem.ByReason(models.ReasonRefundListDeleted)
	if len(refunds) != 1 || refunds[0].Change != 10 {
		t.Errorf("expected one refund of 10, got %+v", refunds)
	}
	assertReconciled(t, f.led, f.owner.UserID)
}

// ---------------------------------------------------------------------------
// 4. Reads and rename
// ---------------------------------------------------------------------------

func TestListLists_Scope(t *testing.T) {
	f := newListFixture(t, 50, defaultCosts)
	ctx := context.Background()
	f.newList(t, models.TargetPeople)
	if _, err := f.svc.CreateList(ctx, f.admin, "Admin list", models.TargetCompany); err != nil {
		t.Fatalf("CreateList: %v", err)
	}

	own, total, err := f.svc.ListLists(ctx, f.owner, true, "", 1, 20)
	if err != nil {
		t.Fatalf("ListLists: %v", err)
	}
	if total != 1 || len(own) != 1 {
		t.Errorf("non-admin should only see own lists even with all=true: got %d", total)
	}
	all, total, err := f.svc.ListLists(ctx, f.admin, true, "", 1, 20)
	if err != nil {
		t.Fatalf("ListLists admin: %v", err)
	}
	if total != 2 || len(all) != 2 {
		t.Errorf("admin with all=true: got %d, want 2", total)
	}
}

func TestRenameList(t *testing.T) {
	f := newListFixture(t, 50, defaultCosts)
	l := f.newList(t, models.TargetPeople)
	ctx := context.Background()

	if _, err := f.svc.RenameList(ctx, f.owner, l.ID, "Renamed", models.TargetCompany); !errors.Is(err, ErrValidation) {
		t.Errorf("target change: expected ErrValidation, got %v", err)
	}
	got, err := f.svc.RenameList(ctx, f.owner, l.ID, " Renamed ", "")
	if err != nil {
		t.Fatalf("RenameList: %v", err)
	}
	if got.Name != "Renamed" {
		t.Errorf("name: got %q", got.Name)
	}
}
