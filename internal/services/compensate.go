package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/leadvault/backend/internal/metrics"
	"github.com/leadvault/backend/internal/models"
)

// CreditLedger is the part of the ledger that charged operations use.
type CreditLedger interface {
	DeductCredits(ctx context.Context, userID uuid.UUID, amount int, reason models.Reason, meta models.CreditMeta) (int, error)
	AddCredits(ctx context.Context, userID uuid.UUID, amount int, reason models.Reason, meta models.CreditMeta) (int, error)
}

// Charge is a debit that is undone if the guarded action does not complete.
type Charge struct {
	UserID uuid.UUID
	Amount int
	Reason models.Reason
	Meta   models.CreditMeta
	// RefundReason picks the refund tag from the action's failure.
	RefundReason func(error) models.Reason
}

// Waive is returned by an action that completed but should not be paid for.
// The charge is refunded with Reason and Run reports success.
type Waive struct {
	Reason models.Reason
}

func (w *Waive) Error() string { return "charge waived: " + string(w.Reason) }

// Compensator runs charge-then-act sequences. The refund runs from a
// deferred block, so an error, a panic or a cancelled request context all
// lead to exactly one refund.
type Compensator struct {
	Ledger CreditLedger
	Logger *slog.Logger
}

func NewCompensator(l CreditLedger, logger *slog.Logger) *Compensator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compensator{Ledger: l, Logger: logger}
}

// Run deducts the charge, then calls action. If the deduction fails nothing
// else happens and its error is returned. A zero charge just runs action.
func (c *Compensator) Run(ctx context.Context, charge Charge, action func(ctx context.Context) error) (err error) {
	if charge.Amount <= 0 {
		err = action(ctx)
		var waive *Waive
		if errors.As(err, &waive) {
			return nil
		}
		return err
	}
	if _, err := c.Ledger.DeductCredits(ctx, charge.UserID, charge.Amount, charge.Reason, charge.Meta); err != nil {
		return err
	}

	done := false
	defer func() {
		if done {
			return
		}
		rec := recover()
		failure := err
		if rec != nil {
			failure = fmt.Errorf("panic: %v", rec)
		}

		var waive *Waive
		var reason models.Reason
		switch {
		case errors.As(failure, &waive):
			reason = waive.Reason
			err = nil
		case charge.RefundReason != nil:
			reason = charge.RefundReason(failure)
		default:
			reason = "refund_" + charge.Reason
		}
		c.refund(ctx, charge, reason, failure)

		if rec != nil {
			panic(rec)
		}
	}()

	err = action(ctx)
	if err == nil {
		done = true
	}
	return err
}

func (c *Compensator) refund(ctx context.Context, charge Charge, reason models.Reason, cause error) {
	meta := charge.Meta
	if cause != nil {
		var waive *Waive
		if !errors.As(cause, &waive) {
			meta.Error = cause.Error()
		}
	}
	// The request may already be cancelled; the refund must still land.
	ctx = context.WithoutCancel(ctx)
	if _, err := c.Ledger.AddCredits(ctx, charge.UserID, charge.Amount, reason, meta); err != nil {
		metrics.Compensations.WithLabelValues("failed").Inc()
		c.Logger.Error("compensating refund failed",
			"user_id", charge.UserID,
			"amount", charge.Amount,
			"charge_reason", charge.Reason,
			"refund_reason", reason,
			"cause", cause,
			"error", err,
		)
		return
	}
	metrics.Compensations.WithLabelValues("refunded").Inc()
	c.Logger.Info("charge refunded", "user_id", charge.UserID, "amount", charge.Amount, "reason", reason)
}

// refundBestEffort credits a user outside any compensation path. Failures
// are logged and swallowed; the primary operation has already succeeded.
func refundBestEffort(ctx context.Context, l CreditLedger, logger *slog.Logger, userID uuid.UUID, amount int, reason models.Reason, meta models.CreditMeta) {
	if amount <= 0 {
		return
	}
	if _, err := l.AddCredits(context.WithoutCancel(ctx), userID, amount, reason, meta); err != nil {
		logger.Error("best-effort refund failed", "user_id", userID, "amount", amount, "reason", reason, "error", err)
	}
}
