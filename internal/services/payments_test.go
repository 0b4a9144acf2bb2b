package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/leadvault/backend/internal/models"
)

func paidEvent(session string, user uuid.UUID, credits string) *models.PaymentEvent {
	return &models.PaymentEvent{
		EventID:       "evt_" + session,
		Type:          models.EventCheckoutCompleted,
		SessionID:     session,
		UserRef:       user.String(),
		CreditsRaw:    credits,
		AmountTotal:   500,
		Currency:      "usd",
		PaymentStatus: "paid",
	}
}

func TestApply_GrantsOnce(t *testing.T) {
	user := uuid.New()
	l, mem := newLedger(t, map[uuid.UUID]int{user: 100})
	a := NewPaymentApplier(l, nil)
	ctx := context.Background()
	ev := paidEvent("cs_1", user, "50")

	out, err := a.Apply(ctx, ev)
	if err != nil || out != OutcomeApplied {
		t.Fatalf("first delivery: got %s, %v", out, err)
	}
	for i := 0; i < 3; i++ {
		out, err = a.Apply(ctx, ev)
		if err != nil || out != OutcomeDuplicate {
			t.Fatalf("redelivery %d: got %s, %v", i, out, err)
		}
	}
	if got := mem.Balance(user); got != 150 {
		t.Errorf("balance: got %d, want 150", got)
	}
	grants := mem.ByReason(models.ReasonStripePurchase)
	if len(grants) != 1 {
		t.Fatalf("stripe_purchase entries: got %d, want 1", len(grants))
	}
	m := grants[0].Meta
	if m.SessionID != "cs_1" || m.AmountTotal != 500 || m.Currency != "usd" || m.PaymentStatus != "paid" {
		t.Errorf("unexpected meta: %+v", m)
	}
	assertReconciled(t, l, user)
}

func TestApply_ConcurrentDeliveries(t *testing.T) {
	user := uuid.New()
	l, mem := newLedger(t, map[uuid.UUID]int{user: 0})
	a := NewPaymentApplier(l, nil)
	ev := paidEvent("cs_race", user, "25")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := a.Apply(context.Background(), ev)
			if err != nil || (out != OutcomeApplied && out != OutcomeDuplicate) {
				t.Errorf("unexpected result: %s, %v", out, err)
			}
		}()
	}
	wg.Wait()
	if got := mem.Balance(user); got != 25 {
		t.Errorf("balance: got %d, want 25", got)
	}
	assertReconciled(t, l, user)
}

func TestApply_InvalidMetadata(t *testing.T) {
	user := uuid.New()
	cases := []struct {
		name    string
		userRef string
		credits string
	}{
		{name: "missing user", userRef: "", credits: "10"},
		{name: "bad user", userRef: "nobody", credits: "10"},
		{name: "missing credits", userRef: user.String(), credits: ""},
		{name: "zero credits", userRef: user.String(), credits: "0"},
		{name: "negative credits", userRef: user.String(), credits: "-5"},
		{name: "credits over limit", userRef: user.String(), credits: "1000001"},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l, mem := newLedger(t, map[uuid.UUID]int{user: 100})
			a := NewPaymentApplier(l, nil)
			ev := paidEvent("cs_bad_"+string(rune('a'+i)), user, tc.credits)
			ev.UserRef = tc.userRef

			out, err := a.Apply(context.Background(), ev)
			if err != nil || out != OutcomeRejected {
				t.Fatalf("got %s, %v; want rejected", out, err)
			}
			if got := mem.Balance(user); got != 100 {
				t.Errorf("no credits may be granted: balance %d", got)
			}
			audits := mem.ByReason(models.ReasonStripePurchaseInvalidMeta)
			if len(audits) != 1 || audits[0].Change != 0 || audits[0].Meta.SessionID != ev.SessionID {
				t.Fatalf("expected one zero-change audit keyed by session, got %+v", audits)
			}

			// The rejection is terminal.
			out, _ = a.Apply(context.Background(), ev)
			if out != OutcomeDuplicate {
				t.Errorf("redelivery of a rejected event: got %s, want duplicate", out)
			}
		})
	}
}

func TestApply_LedgerFailureIsRetryable(t *testing.T) {
	user := uuid.New()
	l, mem := newLedger(t, map[uuid.UUID]int{user: 0})
	a := NewPaymentApplier(l, nil)
	ev := paidEvent("cs_fail", user, "30")

	mem.FailAdd = errors.New("connection reset")
	out, err := a.Apply(context.Background(), ev)
	if err != nil || out != OutcomeFailed {
		t.Fatalf("got %s, %v; want failed with no error", out, err)
	}
	failures := mem.ByReason(models.ReasonStripePurchaseFailed)
	if len(failures) != 1 || failures[0].Meta.FailedSessionID != "cs_fail" || failures[0].Meta.SessionID != "" {
		t.Fatalf("expected one failure audit keyed by failedSessionId, got %+v", failures)
	}

	mem.FailAdd = nil
	out, err = a.Apply(context.Background(), ev)
	if err != nil || out != OutcomeApplied {
		t.Fatalf("redelivery after failure: got %s, %v; want applied", out, err)
	}
	if got := mem.Balance(user); got != 30 {
		t.Errorf("balance: got %d, want 30", got)
	}
	assertReconciled(t, l, user)
}

func TestApply_UnknownUser(t *testing.T) {
	l, mem := newLedger(t, nil)
	a := NewPaymentApplier(l, nil)

	out, err := a.Apply(context.Background(), paidEvent("cs_ghost", uuid.New(), "10"))
	if err != nil || out != OutcomeFailed {
		t.Fatalf("got %s, %v; want failed", out, err)
	}
	failures := mem.ByReason(models.ReasonStripePurchaseFailed)
	if len(failures) != 1 || failures[0].UserID != nil {
		t.Errorf("failure for a missing user should not reference it: %+v", failures)
	}
}

func TestApply_InvalidCreditsForUnknownUser(t *testing.T) {
	l, mem := newLedger(t, nil)
	a := NewPaymentApplier(l, nil)
	ghost := uuid.New()
	ev := paidEvent("cs_ghost_bad", ghost, "abc")

	out, err := a.Apply(context.Background(), ev)
	if err != nil || out != OutcomeRejected {
		t.Fatalf("got %s, %v; want rejected", out, err)
	}
	audits := mem.ByReason(models.ReasonStripePurchaseInvalidMeta)
	if len(audits) != 1 {
		t.Fatalf("expected one audit, got %d", len(audits))
	}
	if audits[0].UserID != nil || audits[0].Meta.UserRef != ghost.String() || audits[0].Meta.SessionID != "cs_ghost_bad" {
		t.Errorf("audit should keep the ref but not the missing user: %+v", audits[0])
	}

	out, _ = a.Apply(context.Background(), ev)
	if out != OutcomeDuplicate {
		t.Errorf("redelivery: got %s, want duplicate", out)
	}
}

func TestApply_Ignored(t *testing.T) {
	user := uuid.New()
	l, mem := newLedger(t, map[uuid.UUID]int{user: 0})
	a := NewPaymentApplier(l, nil)
	ctx := context.Background()

	other := paidEvent("cs_x", user, "10")
	other.Type = "invoice.paid"
	unpaid := paidEvent("cs_y", user, "10")
	unpaid.PaymentStatus = "unpaid"
	noSession := paidEvent("", user, "10")

	for _, ev := range []*models.PaymentEvent{other, unpaid, noSession} {
		if out, err := a.Apply(ctx, ev); err != nil || out != OutcomeIgnored {
			t.Errorf("%s/%s: got %s, %v; want ignored", ev.Type, ev.PaymentStatus, out, err)
		}
	}
	if n := len(mem.Entries()); n != 0 {
		t.Errorf("ignored events must not write, got %d entries", n)
	}

	// The async success for the unpaid session applies it later.
	unpaid.Type = models.EventCheckoutAsyncPaymentSucceeded
	unpaid.PaymentStatus = "paid"
	if out, err := a.Apply(ctx, unpaid); err != nil || out != OutcomeApplied {
		t.Errorf("async success: got %s, %v; want applied", out, err)
	}
}
