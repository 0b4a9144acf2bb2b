package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"
)

// NewClient registers the workers and schedules a full reconciliation every
// interval, starting right after the client starts.
func NewClient(pool *pgxpool.Pool, l Reconciler, interval time.Duration, log *slog.Logger) (*river.Client[pgx.Tx], error) {
	workers := river.NewWorkers()
	river.AddWorker(workers, NewReconcileLedgerWorker(l, log))

	periodic := river.NewPeriodicJob(
		river.PeriodicInterval(interval),
		func() (river.JobArgs, *river.InsertOpts) {
			return ReconcileLedgerArgs{}, nil
		},
		&river.PeriodicJobOpts{RunOnStart: true},
	)

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 2},
			QueueLedger:        {MaxWorkers: 2},
		},
		Workers:      workers,
		PeriodicJobs: []*river.PeriodicJob{periodic},
		Logger:       log,
	})
	if err != nil {
		return nil, fmt.Errorf("create river client: %w", err)
	}
	return client, nil
}

// Inserter is the part of river.Client the enqueuer uses.
type Inserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

type Enqueuer struct {
	client Inserter
}

func NewEnqueuer(client Inserter) *Enqueuer {
	return &Enqueuer{client: client}
}

// EnqueueReconcile schedules a reconciliation for one user, or for everyone
// when userID is nil, and returns the job id.
func (e *Enqueuer) EnqueueReconcile(ctx context.Context, userID *uuid.UUID) (int64, error) {
	res, err := e.client.Insert(ctx, ReconcileLedgerArgs{UserID: userID}, nil)
	if err != nil {
		return 0, fmt.Errorf("enqueue reconcile: %w", err)
	}
	return res.Job.ID, nil
}
