package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leadvault/backend/internal/models"
)

type PersonRepo struct {
	pool *pgxpool.Pool
}

func NewPersonRepo(pool *pgxpool.Pool) *PersonRepo {
	return &PersonRepo{pool: pool}
}

const (
	personColumns  = `id, external_id, name, designation, department, company_id, location, phone, email, company_email, created_at, updated_at`
	personColumnsP = `p.id, p.external_id, p.name, p.designation, p.department, p.company_id, p.location, p.phone, p.email, p.company_email, p.created_at, p.updated_at`
)

func scanPerson(row pgx.Row) (*models.Person, error) {
	var p models.Person
	err := row.Scan(&p.ID, &p.ExternalID, &p.Name, &p.Designation, &p.Department, &p.CompanyID,
		&p.Location, &p.Phone, &p.Email, &p.CompanyEmail, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func collectPeople(rows pgx.Rows) ([]*models.Person, error) {
	defer rows.Close()
	var list []*models.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// Upsert inserts the person or overwrites the one with the same external id.
func (r *PersonRepo) Upsert(ctx context.Context, p *models.Person) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO people (id, external_id, name, designation, department, company_id, location, phone, email, company_email)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (external_id) DO UPDATE SET
			name = EXCLUDED.name, designation = EXCLUDED.designation, department = EXCLUDED.department,
			company_id = EXCLUDED.company_id, location = EXCLUDED.location, phone = EXCLUDED.phone,
			email = EXCLUDED.email, company_email = EXCLUDED.company_email, updated_at = now()
		RETURNING id, created_at, updated_at
	`, p.ID, p.ExternalID, p.Name, p.Designation, p.Department, p.CompanyID,
		p.Location, p.Phone, p.Email, p.CompanyEmail).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

// Create inserts a new person and fails on a duplicate external id.
func (r *PersonRepo) Create(ctx context.Context, p *models.Person) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO people (id, external_id, name, designation, department, company_id, location, phone, email, company_email)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`, p.ID, p.ExternalID, p.Name, p.Designation, p.Department, p.CompanyID,
		p.Location, p.Phone, p.Email, p.CompanyEmail).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *PersonRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Person, error) {
	return scanPerson(r.pool.QueryRow(ctx, `SELECT `+personColumns+` FROM people WHERE id = $1`, id))
}

func (r *PersonRepo) GetByExternalID(ctx context.Context, externalID string) (*models.Person, error) {
	return scanPerson(r.pool.QueryRow(ctx, `SELECT `+personColumns+` FROM people WHERE external_id = $1`, externalID))
}

// FindByEmail matches the address against email, or either the full address
// or its local part against external_id.
func (r *PersonRepo) FindByEmail(ctx context.Context, email, localPart string) (*models.Person, error) {
	return scanPerson(r.pool.QueryRow(ctx, `
		SELECT `+personColumns+` FROM people
		WHERE lower(email) = $1 OR external_id = $1 OR external_id = $2
		ORDER BY (lower(email) = $1) DESC, created_at
		LIMIT 1
	`, email, localPart))
}

func (r *PersonRepo) ExternalIDExists(ctx context.Context, externalID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM people WHERE external_id = $1)`, externalID).Scan(&exists)
	return exists, err
}

// List searches name, designation and location, optionally within one company.
func (r *PersonRepo) List(ctx context.Context, q models.DirectoryQuery) ([]*models.Person, int, error) {
	pattern := ""
	if q.Query != "" {
		pattern = "%" + q.Query + "%"
	}
	const where = ` WHERE ($1 = '' OR p.name ILIKE $1 OR p.designation ILIKE $1 OR p.location ILIKE $1)
		AND ($2 = '' OR c.external_id = $2)`
	const from = ` FROM people p LEFT JOIN companies c ON c.id = p.company_id`
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*)`+from+where, pattern, q.CompanyExternalID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+personColumnsP+from+where+` ORDER BY p.name LIMIT $3 OFFSET $4`,
		pattern, q.CompanyExternalID, q.Limit, q.Offset)
	if err != nil {
		return nil, 0, err
	}
	list, err := collectPeople(rows)
	return list, total, err
}

func (r *PersonRepo) Update(ctx context.Context, p *models.Person) error {
	return r.pool.QueryRow(ctx, `
		UPDATE people SET name = $2, designation = $3, department = $4, company_id = $5, location = $6,
			phone = $7, email = $8, company_email = $9, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, p.ID, p.Name, p.Designation, p.Department, p.CompanyID, p.Location,
		p.Phone, p.Email, p.CompanyEmail).Scan(&p.UpdatedAt)
}

func (r *PersonRepo) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM people WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteAll empties the people table; list memberships cascade.
func (r *PersonRepo) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM people`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
