package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leadvault/backend/internal/models"
)

// CreditRepo reads and appends credit_transactions. Rows are never updated.
type CreditRepo struct {
	pool *pgxpool.Pool
}

func NewCreditRepo(pool *pgxpool.Pool) *CreditRepo {
	return &CreditRepo{pool: pool}
}

const creditColumns = `id, user_id, change, reason, meta, balance_after, created_at`

func scanCredit(row pgx.Row) (*models.CreditTransaction, error) {
	var c models.CreditTransaction
	if err := row.Scan(&c.ID, &c.UserID, &c.Change, &c.Reason, &c.Meta, &c.BalanceAfter, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func collectCredits(rows pgx.Rows) ([]*models.CreditTransaction, error) {
	defer rows.Close()
	var list []*models.CreditTransaction
	for rows.Next() {
		c, err := scanCredit(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

// Create inserts an audit row outside any balance change.
func (r *CreditRepo) Create(ctx context.Context, c *models.CreditTransaction) error {
	return insertCredit(ctx, r.pool, c)
}

// CreateTx inserts a transaction row inside the given transaction.
func (r *CreditRepo) CreateTx(ctx context.Context, tx pgx.Tx, c *models.CreditTransaction) error {
	return insertCredit(ctx, tx, c)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertCredit(ctx context.Context, q queryRower, c *models.CreditTransaction) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return q.QueryRow(ctx, `
		INSERT INTO credit_transactions (id, user_id, change, reason, meta, balance_after)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, c.ID, c.UserID, c.Change, c.Reason, c.Meta, c.BalanceAfter).Scan(&c.CreatedAt)
}

// FindBySessionID returns the transaction holding the payment session key,
// or nil when the session has not been seen.
func (r *CreditRepo) FindBySessionID(ctx context.Context, sessionID string) (*models.CreditTransaction, error) {
	c, err := scanCredit(r.pool.QueryRow(ctx, `
		SELECT `+creditColumns+` FROM credit_transactions
		WHERE meta ? 'sessionId' AND meta->>'sessionId' = $1
	`, sessionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// ListByUserID returns a user's transactions newest first.
func (r *CreditRepo) ListByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.CreditTransaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+creditColumns+` FROM credit_transactions
		WHERE user_id = $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectCredits(rows)
}

// SumByUserID totals the signed changes recorded for a user.
func (r *CreditRepo) SumByUserID(ctx context.Context, userID uuid.UUID) (int, error) {
	var sum int
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(change), 0)::int FROM credit_transactions WHERE user_id = $1
	`, userID).Scan(&sum)
	return sum, err
}

// Search backs the admin transaction views. It returns one page and the total match count.
func (r *CreditRepo) Search(ctx context.Context, f models.TransactionFilter) ([]*models.CreditTransaction, int, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.StripeOnly {
		conds = append(conds, "reason LIKE 'stripe_purchase%'")
	}
	if f.Reason != "" {
		conds = append(conds, "reason = "+arg(string(f.Reason)))
	}
	if f.UserID != nil {
		conds = append(conds, "user_id = "+arg(*f.UserID))
	}
	if f.SessionID != "" {
		p := arg(f.SessionID)
		conds = append(conds, "(meta->>'sessionId' = "+p+" OR meta->>'failedSessionId' = "+p+")")
	}
	if f.From != nil {
		conds = append(conds, "created_at >= "+arg(*f.From))
	}
	if f.To != nil {
		conds = append(conds, "created_at <= "+arg(*f.To))
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		p := arg("%" + q + "%")
		conds = append(conds, "(reason ILIKE "+p+" OR meta::text ILIKE "+p+")")
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM credit_transactions`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limitP := arg(f.Limit)
	offsetP := arg(f.Offset)
	rows, err := r.pool.Query(ctx, `SELECT `+creditColumns+` FROM credit_transactions`+where+
		` ORDER BY created_at DESC, id LIMIT `+limitP+` OFFSET `+offsetP, args...)
	if err != nil {
		return nil, 0, err
	}
	list, err := collectCredits(rows)
	return list, total, err
}
