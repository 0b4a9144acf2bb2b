// Package jobs runs background work on River. Ledger reconciliation runs on
// a timer and can also be requested by an admin for a single user.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/leadvault/backend/internal/ledger"
)

const QueueLedger = "ledger"

type ReconcileLedgerArgs struct {
	// UserID limits the run to one user; nil checks everyone.
	UserID *uuid.UUID `json:"user_id,omitempty"`
}

func (ReconcileLedgerArgs) Kind() string { return "reconcile_ledger" }

func (ReconcileLedgerArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{Queue: QueueLedger, MaxAttempts: 3}
}

// Reconciler is implemented by *ledger.Service.
type Reconciler interface {
	Reconcile(ctx context.Context, userID uuid.UUID) (*ledger.Reconciliation, error)
	ReconcileAll(ctx context.Context) ([]*ledger.Reconciliation, error)
}

type ReconcileLedgerWorker struct {
	river.WorkerDefaults[ReconcileLedgerArgs]
	ledger Reconciler
	log    *slog.Logger
}

func NewReconcileLedgerWorker(l Reconciler, log *slog.Logger) *ReconcileLedgerWorker {
	if log == nil {
		log = slog.Default()
	}
	return &ReconcileLedgerWorker{ledger: l, log: log}
}

func (w *ReconcileLedgerWorker) Timeout(*river.Job[ReconcileLedgerArgs]) time.Duration {
	return 10 * time.Minute
}

// Work only reports drift. A deleted user cancels the job instead of retrying it.
func (w *ReconcileLedgerWorker) Work(ctx context.Context, job *river.Job[ReconcileLedgerArgs]) error {
	if id := job.Args.UserID; id != nil {
		rec, err := w.ledger.Reconcile(ctx, *id)
		if errors.Is(err, ledger.ErrUserNotFound) {
			return river.JobCancel(fmt.Errorf("reconcile user %s: %w", id, err))
		}
		if err != nil {
			return fmt.Errorf("reconcile user %s: %w", id, err)
		}
		w.log.Info("user ledger reconciled", "job_id", job.ID, "user_id", id, "drift", rec.Drift)
		return nil
	}

	drifted, err := w.ledger.ReconcileAll(ctx)
	if err != nil {
		return fmt.Errorf("reconcile all: %w", err)
	}
	w.log.Info("ledger reconciled", "job_id", job.ID, "drifted_users", len(drifted))
	return nil
}
