package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/leadvault/backend/internal/metrics"
)

// Reconciliation compares a user's stored balance with their transaction log.
type Reconciliation struct {
	UserID         uuid.UUID `json:"userId"`
	Credits        int       `json:"credits"`
	InitialCredits int       `json:"initialCredits"`
	LedgerSum      int       `json:"ledgerSum"`
	Drift          int       `json:"drift"`
}

func (r *Reconciliation) Consistent() bool { return r.Drift == 0 }

// Reconcile checks credits == initial + sum(change) for one user. Drift is
// reported, never repaired.
func (s *Service) Reconcile(ctx context.Context, userID uuid.UUID) (*Reconciliation, error) {
	credits, initial, err := s.Users.GetCredits(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load balance: %w", err)
	}
	sum, err := s.Transactions.SumByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("sum transactions: %w", err)
	}
	rec := &Reconciliation{
		UserID:         userID,
		Credits:        credits,
		InitialCredits: initial,
		LedgerSum:      sum,
		Drift:          credits - initial - sum,
	}
	if !rec.Consistent() {
		s.Logger.Error("ledger drift detected",
			"user_id", userID, "credits", credits, "initial", initial, "ledger_sum", sum, "drift", rec.Drift)
	}
	return rec, nil
}

// ReconcileAll checks every user and returns the inconsistent ones.
func (s *Service) ReconcileAll(ctx context.Context) ([]*Reconciliation, error) {
	ids, err := s.Users.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	var drifted []*Reconciliation
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return drifted, err
		}
		rec, err := s.Reconcile(ctx, id)
		if errors.Is(err, ErrUserNotFound) {
			continue
		}
		if err != nil {
			return drifted, err
		}
		if !rec.Consistent() {
			drifted = append(drifted, rec)
		}
	}
	metrics.LedgerDrift.Set(float64(len(drifted)))
	s.Logger.Info("ledger reconciliation finished", "users", len(ids), "drifted", len(drifted))
	return drifted, nil
}
