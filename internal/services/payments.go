package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/leadvault/backend/internal/ledger"
	"github.com/leadvault/backend/internal/metrics"
	"github.com/leadvault/backend/internal/models"
)

// PaymentLedger is what the applier needs from the ledger.
type PaymentLedger interface {
	FindBySessionID(ctx context.Context, sessionID string) (*models.CreditTransaction, error)
	AddCredits(ctx context.Context, userID uuid.UUID, amount int, reason models.Reason, meta models.CreditMeta) (int, error)
	RecordAudit(ctx context.Context, userID *uuid.UUID, reason models.Reason, meta models.CreditMeta) error
}

type PaymentOutcome string

const (
	OutcomeApplied   PaymentOutcome = "applied"
	OutcomeDuplicate PaymentOutcome = "duplicate"
	OutcomeRejected  PaymentOutcome = "rejected"
	OutcomeFailed    PaymentOutcome = "failed"
	OutcomeIgnored   PaymentOutcome = "ignored"
)

// PaymentApplier turns verified checkout events into credits, at most once
// per checkout session.
type PaymentApplier struct {
	Ledger PaymentLedger
	Logger *slog.Logger
}

func NewPaymentApplier(l PaymentLedger, logger *slog.Logger) *PaymentApplier {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentApplier{Ledger: l, Logger: logger}
}

// Apply never asks for redelivery through its result; only a returned
// error signals that nothing could be recorded. The caller acknowledges the
// event either way.
func (a *PaymentApplier) Apply(ctx context.Context, ev *models.PaymentEvent) (PaymentOutcome, error) {
	outcome, err := a.apply(ctx, ev)
	metrics.PaymentEvents.WithLabelValues(string(outcome)).Inc()
	return outcome, err
}

func (a *PaymentApplier) apply(ctx context.Context, ev *models.PaymentEvent) (PaymentOutcome, error) {
	log := a.Logger.With("event_id", ev.EventID, "event_type", ev.Type, "session_id", ev.SessionID)

	if ev.Type != models.EventCheckoutCompleted && ev.Type != models.EventCheckoutAsyncPaymentSucceeded {
		log.Debug("payment event ignored")
		return OutcomeIgnored, nil
	}
	if ev.SessionID == "" {
		log.Warn("payment event without session id")
		return OutcomeIgnored, nil
	}

	existing, err := a.Ledger.FindBySessionID(ctx, ev.SessionID)
	if err != nil {
		log.Error("session lookup failed", "error", err)
		return OutcomeFailed, fmt.Errorf("find session: %w", err)
	}
	if existing != nil {
		log.Info("payment already applied", "transaction_id", existing.ID)
		return OutcomeDuplicate, nil
	}

	if ev.PaymentStatus != "paid" && ev.PaymentStatus != "no_payment_required" {
		log.Info("payment not settled yet", "payment_status", ev.PaymentStatus)
		return OutcomeIgnored, nil
	}

	userID, credits, invalid := parsePaymentMeta(ev)
	if invalid != "" {
		meta := models.CreditMeta{SessionID: ev.SessionID, UserRef: ev.UserRef, Error: invalid}
		err := a.Ledger.RecordAudit(ctx, userID, models.ReasonStripePurchaseInvalidMeta, meta)
		if errors.Is(err, ledger.ErrUserNotFound) && userID != nil {
			// Unknown user: keep the rejection on record under userRef only.
			err = a.Ledger.RecordAudit(ctx, nil, models.ReasonStripePurchaseInvalidMeta, meta)
		}
		if err != nil {
			if errors.Is(err, ledger.ErrDuplicateSession) {
				return OutcomeDuplicate, nil
			}
			log.Error("recording rejected payment failed", "error", err)
			return OutcomeFailed, err
		}
		log.Warn("payment rejected", "reason", invalid, "user_ref", ev.UserRef, "credits", ev.CreditsRaw)
		return OutcomeRejected, nil
	}

	meta := models.CreditMeta{
		SessionID:     ev.SessionID,
		AmountTotal:   ev.AmountTotal,
		Currency:      ev.Currency,
		PaymentStatus: ev.PaymentStatus,
	}
	balance, err := a.Ledger.AddCredits(ctx, *userID, credits, models.ReasonStripePurchase, meta)
	switch {
	case err == nil:
		log.Info("payment applied", "user_id", *userID, "credits", credits, "balance", balance)
		return OutcomeApplied, nil
	case errors.Is(err, ledger.ErrDuplicateSession):
		log.Info("payment applied concurrently", "user_id", *userID)
		return OutcomeDuplicate, nil
	}

	log.Error("applying payment failed", "user_id", *userID, "credits", credits, "error", err)
	auditUser := userID
	if errors.Is(err, ledger.ErrUserNotFound) {
		auditUser = nil
	}
	failMeta := models.CreditMeta{FailedSessionID: ev.SessionID, UserRef: ev.UserRef, Error: err.Error()}
	if aerr := a.Ledger.RecordAudit(ctx, auditUser, models.ReasonStripePurchaseFailed, failMeta); aerr != nil {
		log.Error("recording failed payment failed", "error", aerr)
	}
	return OutcomeFailed, nil
}

// parsePaymentMeta returns a non-empty problem when the session metadata
// cannot be turned into a grant. userID is set whenever it parsed.
func parsePaymentMeta(ev *models.PaymentEvent) (*uuid.UUID, int, string) {
	var userID *uuid.UUID
	if id, err := uuid.Parse(strings.TrimSpace(ev.UserRef)); err == nil {
		userID = &id
	}
	credits, err := strconv.Atoi(strings.TrimSpace(ev.CreditsRaw))
	switch {
	case userID == nil:
		return nil, 0, "missing or invalid userId"
	case err != nil || credits <= 0:
		return userID, 0, "missing or invalid credits"
	case credits > models.MaxPurchaseCredits:
		return userID, 0, "credits above purchase limit"
	}
	return userID, credits, ""
}
