package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leadvault/backend/internal/models"
)

type ListRepo struct {
	pool *pgxpool.Pool
}

func NewListRepo(pool *pgxpool.Pool) *ListRepo {
	return &ListRepo{pool: pool}
}

func (r *ListRepo) Create(ctx context.Context, l *models.List) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO lists (id, name, target, owner_id, credits_charged)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, l.ID, l.Name, l.Target, l.OwnerID, l.CreditsCharged).Scan(&l.CreatedAt, &l.UpdatedAt)
}

// GetByID loads the list with its member ids and owner email.
func (r *ListRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.List, error) {
	var l models.List
	err := r.pool.QueryRow(ctx, `
		SELECT l.id, l.name, l.target, l.owner_id, COALESCE(u.email, ''), l.credits_charged, l.created_at, l.updated_at
		FROM lists l LEFT JOIN users u ON u.id = l.owner_id
		WHERE l.id = $1
	`, id).Scan(&l.ID, &l.Name, &l.Target, &l.OwnerID, &l.OwnerEmail, &l.CreditsCharged, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT COALESCE(person_id, company_id) FROM list_members
		WHERE list_id = $1 ORDER BY added_at
	`, id)
	if err != nil {
		return nil, err
	}
	l.MemberIDs, err = pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, err
	}
	l.MembersCount = len(l.MemberIDs)
	return &l, nil
}

// List returns a page of lists (optionally one owner's) with member counts.
func (r *ListRepo) List(ctx context.Context, q models.ListQuery) ([]*models.List, int, error) {
	pattern := ""
	if q.Query != "" {
		pattern = "%" + q.Query + "%"
	}
	var total int
	if err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM lists
		WHERE ($1::uuid IS NULL OR owner_id = $1) AND ($2 = '' OR name ILIKE $2)
	`, q.OwnerID, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT l.id, l.name, l.target, l.owner_id, COALESCE(u.email, ''),
		       (SELECT count(*) FROM list_members m WHERE m.list_id = l.id)::int,
		       l.credits_charged, l.created_at, l.updated_at
		FROM lists l LEFT JOIN users u ON u.id = l.owner_id
		WHERE ($1::uuid IS NULL OR l.owner_id = $1) AND ($2 = '' OR l.name ILIKE $2)
		ORDER BY l.created_at DESC
		LIMIT $3 OFFSET $4
	`, q.OwnerID, pattern, q.Limit, q.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var list []*models.List
	for rows.Next() {
		var l models.List
		if err := rows.Scan(&l.ID, &l.Name, &l.Target, &l.OwnerID, &l.OwnerEmail, &l.MembersCount, &l.CreditsCharged, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, 0, err
		}
		list = append(list, &l)
	}
	return list, total, rows.Err()
}

func (r *ListRepo) Rename(ctx context.Context, id uuid.UUID, name string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE lists SET name = $2, updated_at = now() WHERE id = $1`, id, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Delete removes the list and its memberships. Returns false if it was already gone.
func (r *ListRepo) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM lists WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// AddMember inserts the member if absent. added is false when it was already present.
func (r *ListRepo) AddMember(ctx context.Context, listID uuid.UUID, target models.ListTarget, memberID uuid.UUID) (added bool, err error) {
	var personID, companyID *uuid.UUID
	if target == models.TargetCompany {
		companyID = &memberID
	} else {
		personID = &memberID
	}
	var inserted int
	err = r.pool.QueryRow(ctx, addMemberSQL, listID, personID, companyID).Scan(&inserted)
	if err != nil {
		return false, err
	}
	return inserted > 0, nil
}

// addMemberSQL inserts the member and bumps the list's updated_at in one
// statement, so both happen or neither does.
const addMemberSQL = `
	WITH ins AS (
		INSERT INTO list_members (list_id, person_id, company_id)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
		RETURNING list_id
	), bump AS (
		UPDATE lists SET updated_at = now()
		WHERE id = $1 AND EXISTS (SELECT 1 FROM ins)
	)
	SELECT count(*)::int FROM ins`

// RemoveMember deletes the member if present. removed is false when it was not.
func (r *ListRepo) RemoveMember(ctx context.Context, listID, memberID uuid.UUID) (removed bool, err error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM list_members WHERE list_id = $1 AND (person_id = $2 OR company_id = $2)
	`, listID, memberID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MemberPeople loads the people in a list in insertion order.
func (r *ListRepo) MemberPeople(ctx context.Context, listID uuid.UUID) ([]*models.Person, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+personColumnsP+` FROM list_members m JOIN people p ON p.id = m.person_id
		WHERE m.list_id = $1 ORDER BY m.added_at
	`, listID)
	if err != nil {
		return nil, err
	}
	return collectPeople(rows)
}

// MemberCompanies loads the companies in a list in insertion order.
func (r *ListRepo) MemberCompanies(ctx context.Context, listID uuid.UUID) ([]*models.Company, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+companyColumnsC+` FROM list_members m JOIN companies c ON c.id = m.company_id
		WHERE m.list_id = $1 ORDER BY m.added_at
	`, listID)
	if err != nil {
		return nil, err
	}
	return collectCompanies(rows)
}
