// Package testutil has in-memory stand-ins for the Postgres stores so the
// ledger and the services built on it can be tested without a database.
package testutil

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/leadvault/backend/internal/models"
)

type account struct {
	credits int
	initial int
}

// Ledger implements ledger.TxBeginner, ledger.UserStore and
// ledger.TransactionStore. Transactions are serialized the way a row lock
// would serialize them, and a rollback undoes every write made through the
// transaction.
type Ledger struct {
	txMu sync.Mutex

	mu    sync.Mutex
	users map[uuid.UUID]*account
	txns  []*models.CreditTransaction

	// FailInsert, when set, is returned by the next CreateTx calls.
	FailInsert error
	// FailAdd, when set, is returned by AddCredits.
	FailAdd error
}

func NewLedger() *Ledger {
	return &Ledger{users: make(map[uuid.UUID]*account)}
}

// AddUser registers a user with a starting balance.
func (l *Ledger) AddUser(id uuid.UUID, credits int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.users[id] = &account{credits: credits, initial: credits}
}

// Balance returns the user's current credits, or -1 if unknown.
func (l *Ledger) Balance(id uuid.UUID) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.users[id]
	if !ok {
		return -1
	}
	return a.credits
}

// Entries returns a copy of the log in insertion order.
func (l *Ledger) Entries() []*models.CreditTransaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*models.CreditTransaction, 0, len(l.txns))
	for _, t := range l.txns {
		cp := *t
		out = append(out, &cp)
	}
	return out
}

// ByReason returns the entries tagged with reason.
func (l *Ledger) ByReason(reason models.Reason) []*models.CreditTransaction {
	var out []*models.CreditTransaction
	for _, e := range l.Entries() {
		if e.Reason == reason {
			out = append(out, e)
		}
	}
	return out
}

// SetCredits overwrites a balance without a log entry, to simulate drift.
func (l *Ledger) SetCredits(id uuid.UUID, credits int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.users[id].credits = credits
}

// ---------------------------------------------------------------------------
// TxBeginner
// ---------------------------------------------------------------------------

func (l *Ledger) Begin(context.Context) (pgx.Tx, error) {
	l.txMu.Lock()
	return &memTx{ledger: l}, nil
}

// memTx satisfies pgx.Tx. Only Commit and Rollback do anything.
type memTx struct {
	ledger *Ledger
	undo   []func()
	done   bool
}

func (t *memTx) Begin(context.Context) (pgx.Tx, error) { return nil, errors.New("nested tx") }

func (t *memTx) Commit(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.ledger.txMu.Unlock()
	return nil
}

func (t *memTx) Rollback(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.ledger.mu.Lock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.ledger.mu.Unlock()
	t.ledger.txMu.Unlock()
	return nil
}

func (t *memTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *memTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (t *memTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (t *memTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *memTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (t *memTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (t *memTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *memTx) Conn() *pgx.Conn { return nil }

func onUndo(tx pgx.Tx, fn func()) {
	if mt, ok := tx.(*memTx); ok {
		mt.undo = append(mt.undo, fn)
	}
}

// ---------------------------------------------------------------------------
// UserStore
// ---------------------------------------------------------------------------

func (l *Ledger) GetCreditsForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.users[id]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	return a.credits, nil
}

// DeductCredits mirrors the floor-checked UPDATE: no row when the balance is too low.
func (l *Ledger) DeductCredits(_ context.Context, tx pgx.Tx, id uuid.UUID, amount int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.users[id]
	if !ok || a.credits < amount {
		return 0, pgx.ErrNoRows
	}
	a.credits -= amount
	onUndo(tx, func() { a.credits += amount })
	return a.credits, nil
}

func (l *Ledger) AddCredits(_ context.Context, tx pgx.Tx, id uuid.UUID, amount int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.FailAdd != nil {
		return 0, l.FailAdd
	}
	a, ok := l.users[id]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	a.credits += amount
	onUndo(tx, func() { a.credits -= amount })
	return a.credits, nil
}

func (l *Ledger) GetCredits(_ context.Context, id uuid.UUID) (int, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.users[id]
	if !ok {
		return 0, 0, pgx.ErrNoRows
	}
	return a.credits, a.initial, nil
}

func (l *Ledger) ListIDs(context.Context) ([]uuid.UUID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(l.users))
	for id := range l.users {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return slices.Compare(a[:], b[:]) })
	return ids, nil
}

// ---------------------------------------------------------------------------
// TransactionStore
// ---------------------------------------------------------------------------

func (l *Ledger) CreateTx(_ context.Context, tx pgx.Tx, c *models.CreditTransaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.FailInsert != nil {
		return l.FailInsert
	}
	if err := l.insertLocked(c); err != nil {
		return err
	}
	id := c.ID
	onUndo(tx, func() {
		l.txns = slices.DeleteFunc(l.txns, func(t *models.CreditTransaction) bool { return t.ID == id })
	})
	return nil
}

func (l *Ledger) Create(_ context.Context, c *models.CreditTransaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.insertLocked(c)
}

// insertLocked enforces the unique sessionId index and the users foreign key.
func (l *Ledger) insertLocked(c *models.CreditTransaction) error {
	if c.UserID != nil {
		if _, ok := l.users[*c.UserID]; !ok {
			return &pgconn.PgError{Code: "23503", ConstraintName: "credit_transactions_user_id_fkey"}
		}
	}
	if c.Meta.SessionID != "" {
		for _, t := range l.txns {
			if t.Meta.SessionID == c.Meta.SessionID {
				return &pgconn.PgError{Code: "23505", ConstraintName: "credit_transactions_session_id_key"}
			}
		}
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	cp := *c
	l.txns = append(l.txns, &cp)
	return nil
}

func (l *Ledger) FindBySessionID(_ context.Context, sessionID string) (*models.CreditTransaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range l.txns {
		if t.Meta.SessionID == sessionID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (l *Ledger) ListByUserID(_ context.Context, userID uuid.UUID, limit, offset int) ([]*models.CreditTransaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*models.CreditTransaction
	for i := len(l.txns) - 1; i >= 0; i-- {
		t := l.txns[i]
		if t.UserID != nil && *t.UserID == userID {
			cp := *t
			out = append(out, &cp)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (l *Ledger) SumByUserID(_ context.Context, userID uuid.UUID) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sum := 0
	for _, t := range l.txns {
		if t.UserID != nil && *t.UserID == userID {
			sum += t.Change
		}
	}
	return sum, nil
}
