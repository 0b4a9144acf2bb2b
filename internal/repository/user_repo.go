package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leadvault/backend/internal/models"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

const userColumns = `id, email, password_hash, is_admin, credits, initial_credits, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsAdmin, &u.Credits, &u.InitialCredits, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a user with the default starting balance.
func (r *UserRepo) Create(ctx context.Context, u *models.User) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, is_admin, credits, initial_credits)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING id, credits, initial_credits, created_at, updated_at
	`, u.Email, u.PasswordHash, u.IsAdmin, models.DefaultUserCredits).Scan(&u.ID, &u.Credits, &u.InitialCredits, &u.CreatedAt, &u.UpdatedAt)
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

// List returns users newest first together with the total count.
func (r *UserRepo) List(ctx context.Context, limit, offset int) ([]*models.User, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+userColumns+` FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var list []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, u)
	}
	return list, total, rows.Err()
}

// Delete removes the user; their lists go with them (ON DELETE CASCADE).
// Returns false when no such user exists.
func (r *UserRepo) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SetAdmin flips the admin flag for the account with the given email.
func (r *UserRepo) SetAdmin(ctx context.Context, email string, isAdmin bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET is_admin = $2, updated_at = now() WHERE email = $1`, email, isAdmin)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListIDs returns every user id, oldest first.
func (r *UserRepo) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM users ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

// GetCredits returns the current and starting balance.
func (r *UserRepo) GetCredits(ctx context.Context, id uuid.UUID) (credits, initial int, err error) {
	err = r.pool.QueryRow(ctx, `SELECT credits, initial_credits FROM users WHERE id = $1`, id).Scan(&credits, &initial)
	return credits, initial, err
}

// GetCreditsForUpdate locks the user row and returns its balance. Call within a transaction.
func (r *UserRepo) GetCreditsForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (int, error) {
	var credits int
	err := tx.QueryRow(ctx, `SELECT credits FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&credits)
	return credits, err
}

// DeductCredits atomically deducts amount if credits >= amount. Returns
// pgx.ErrNoRows when the floor check fails.
func (r *UserRepo) DeductCredits(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int) (newBalance int, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE users SET credits = credits - $1, updated_at = now()
		WHERE id = $2 AND credits >= $1
		RETURNING credits
	`, amount, id).Scan(&newBalance)
	return newBalance, err
}

// AddCredits adds amount and returns the new balance.
func (r *UserRepo) AddCredits(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int) (newBalance int, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE users SET credits = credits + $1, updated_at = now()
		WHERE id = $2
		RETURNING credits
	`, amount, id).Scan(&newBalance)
	return newBalance, err
}
