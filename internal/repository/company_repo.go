package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leadvault/backend/internal/models"
)

type CompanyRepo struct {
	pool *pgxpool.Pool
}

func NewCompanyRepo(pool *pgxpool.Pool) *CompanyRepo {
	return &CompanyRepo{pool: pool}
}

const (
	companyColumns  = `id, external_id, name, description, website, industries, keywords, location, logo, employees, founded, funding_stage, created_at, updated_at`
	companyColumnsC = `c.id, c.external_id, c.name, c.description, c.website, c.industries, c.keywords, c.location, c.logo, c.employees, c.founded, c.funding_stage, c.created_at, c.updated_at`
)

func scanCompany(row pgx.Row) (*models.Company, error) {
	var c models.Company
	err := row.Scan(&c.ID, &c.ExternalID, &c.Name, &c.Description, &c.Website, &c.Industries, &c.Keywords,
		&c.Location, &c.Logo, &c.Employees, &c.Founded, &c.FundingStage, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func collectCompanies(rows pgx.Rows) ([]*models.Company, error) {
	defer rows.Close()
	var list []*models.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

// Upsert inserts the company or overwrites the one with the same external id.
func (r *CompanyRepo) Upsert(ctx context.Context, c *models.Company) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO companies (id, external_id, name, description, website, industries, keywords, location, logo, employees, founded, funding_stage)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (external_id) DO UPDATE SET
			name = EXCLUDED.name, description = EXCLUDED.description, website = EXCLUDED.website,
			industries = EXCLUDED.industries, keywords = EXCLUDED.keywords, location = EXCLUDED.location,
			logo = EXCLUDED.logo, employees = EXCLUDED.employees, founded = EXCLUDED.founded,
			funding_stage = EXCLUDED.funding_stage, updated_at = now()
		RETURNING id, created_at, updated_at
	`, c.ID, c.ExternalID, c.Name, c.Description, c.Website, nonNil(c.Industries), nonNil(c.Keywords),
		c.Location, c.Logo, c.Employees, c.Founded, c.FundingStage).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}

func (r *CompanyRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	return scanCompany(r.pool.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = $1`, id))
}

func (r *CompanyRepo) GetByExternalID(ctx context.Context, externalID string) (*models.Company, error) {
	return scanCompany(r.pool.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE external_id = $1`, externalID))
}

func (r *CompanyRepo) ExternalIDExists(ctx context.Context, externalID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM companies WHERE external_id = $1)`, externalID).Scan(&exists)
	return exists, err
}

// List searches name, description and industries, ordered by name.
func (r *CompanyRepo) List(ctx context.Context, q models.DirectoryQuery) ([]*models.Company, int, error) {
	pattern := ""
	if q.Query != "" {
		pattern = "%" + q.Query + "%"
	}
	const where = ` WHERE ($1 = '' OR name ILIKE $1 OR description ILIKE $1 OR array_to_string(industries, ',') ILIKE $1)`
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM companies`+where, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+companyColumns+` FROM companies`+where+` ORDER BY name LIMIT $2 OFFSET $3`,
		pattern, q.Limit, q.Offset)
	if err != nil {
		return nil, 0, err
	}
	list, err := collectCompanies(rows)
	return list, total, err
}

func (r *CompanyRepo) Update(ctx context.Context, c *models.Company) error {
	return r.pool.QueryRow(ctx, `
		UPDATE companies SET name = $2, description = $3, website = $4, industries = $5, keywords = $6,
			location = $7, logo = $8, employees = $9, founded = $10, funding_stage = $11, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, c.ID, c.Name, c.Description, c.Website, nonNil(c.Industries), nonNil(c.Keywords),
		c.Location, c.Logo, c.Employees, c.Founded, c.FundingStage).Scan(&c.UpdatedAt)
}

func (r *CompanyRepo) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM companies WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
