package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/leadvault/backend/internal/models"
)

// SeedData is a bulk directory import. Companies are keyed by "id" or
// "externalId"; people name their company by its external id in "companyId"
// (or "company").
type SeedData struct {
	Companies []json.RawMessage `json:"companies"`
	People    []json.RawMessage `json:"people"`
}

type SeedReport struct {
	CompaniesInserted int      `json:"companiesInserted"`
	CompaniesUpdated  int      `json:"companiesUpdated"`
	PeopleInserted    int      `json:"peopleInserted"`
	PeopleUpdated     int      `json:"peopleUpdated"`
	Warnings          []string `json:"warnings"`
}

func (r *SeedReport) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

type seedCompany struct {
	ID flexString `json:"id"`
	companyInput
}

type seedPerson struct {
	ID      flexString `json:"id"`
	Company flexString `json:"company"`
	personInput
}

// PeopleClearer wipes the people table.
type PeopleClearer interface {
	DeleteAll(ctx context.Context) (int64, error)
}

// Seeder upserts companies and people in bulk by external id. Malformed
// records are skipped with a warning; storage errors abort the run.
type Seeder struct {
	Dir     *Directory
	Clearer PeopleClearer
	Logger  *slog.Logger
}

func NewSeeder(dir *Directory, clearer PeopleClearer, logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{Dir: dir, Clearer: clearer, Logger: logger}
}

func (s *Seeder) Seed(ctx context.Context, data SeedData) (*SeedReport, error) {
	report := &SeedReport{Warnings: []string{}}
	for i, raw := range data.Companies {
		if err := s.seedCompany(ctx, i, raw, report); err != nil {
			return report, err
		}
	}
	for i, raw := range data.People {
		if err := s.seedPerson(ctx, i, raw, report); err != nil {
			return report, err
		}
	}
	s.Logger.Info("directory seeded",
		"companies_inserted", report.CompaniesInserted, "companies_updated", report.CompaniesUpdated,
		"people_inserted", report.PeopleInserted, "people_updated", report.PeopleUpdated,
		"warnings", len(report.Warnings))
	return report, nil
}

func (s *Seeder) seedCompany(ctx context.Context, i int, raw json.RawMessage, report *SeedReport) error {
	var in seedCompany
	if err := json.Unmarshal(raw, &in); err != nil {
		report.warn("Skipping company #%d: %v", i, err)
		return nil
	}
	externalID := string(in.ID)
	if externalID == "" {
		externalID = trimPtr(in.ExternalID)
	}
	externalID = slugify(externalID)
	if externalID == "" {
		report.warn("Skipping company with empty id/externalId")
		return nil
	}

	c, err := s.Dir.Companies.GetByExternalID(ctx, externalID)
	existed := err == nil
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		c = &models.Company{ExternalID: externalID}
	case err != nil:
		return fmt.Errorf("look up company %q: %w", externalID, err)
	}
	applyCompanyInput(c, &in.companyInput)
	if c.Name == "" {
		report.warn("Skipping company %s: missing name", externalID)
		return nil
	}
	if err := s.Dir.Companies.Upsert(ctx, c); err != nil {
		return fmt.Errorf("upsert company %q: %w", externalID, err)
	}
	if existed {
		report.CompaniesUpdated++
	} else {
		report.CompaniesInserted++
	}
	return nil
}

func (s *Seeder) seedPerson(ctx context.Context, i int, raw json.RawMessage, report *SeedReport) error {
	var in seedPerson
	if err := json.Unmarshal(raw, &in); err != nil {
		report.warn("Skipping person #%d: %v", i, err)
		return nil
	}
	name := trimPtr(in.Name)
	if name == "" {
		report.warn("Skipping person #%d: empty name", i)
		return nil
	}

	ref := trimPtr(in.CompanyID)
	if ref == "" {
		ref = string(in.Company)
	}
	if ref == "" {
		ref = trimPtr(in.CompanyExternalID)
	}
	if ref == "" {
		report.warn("Skipping person %s: missing companyId", name)
		return nil
	}
	company, err := s.findCompany(ctx, ref)
	if errors.Is(err, pgx.ErrNoRows) {
		report.warn("Skipping person %s: company %s not found", name, ref)
		return nil
	}
	if err != nil {
		return fmt.Errorf("look up company %q: %w", ref, err)
	}

	externalID := string(in.ID)
	if externalID == "" {
		externalID = trimPtr(in.ExternalID)
	}
	if externalID == "" {
		// Same name at the same company maps to the same record on every run.
		externalID = "p-" + slugify(company.ExternalID+" "+name)
	}

	p, err := s.Dir.People.GetByExternalID(ctx, externalID)
	existed := err == nil
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		p = &models.Person{ExternalID: externalID}
	case err != nil:
		return fmt.Errorf("look up person %q: %w", externalID, err)
	}

	in.CompanyID, in.CompanyExternalID = nil, nil
	if err := s.Dir.applyPersonInput(ctx, p, &in.personInput); err != nil {
		report.warn("Skipping person %s: %v", name, err)
		return nil
	}
	p.CompanyID = &company.ID
	for _, f := range []*string{&p.Designation, &p.Department, &p.Location} {
		if *f == "" {
			*f = "Unknown"
		}
	}
	if err := s.Dir.People.Upsert(ctx, p); err != nil {
		return fmt.Errorf("upsert person %q: %w", externalID, err)
	}
	if existed {
		report.PeopleUpdated++
	} else {
		report.PeopleInserted++
	}
	return nil
}

// findCompany resolves an external id, falling back to a UUID primary key.
func (s *Seeder) findCompany(ctx context.Context, ref string) (*models.Company, error) {
	c, err := s.Dir.Companies.GetByExternalID(ctx, ref)
	if err == nil || !errors.Is(err, pgx.ErrNoRows) {
		return c, err
	}
	if slug := slugify(ref); slug != ref && slug != "" {
		if c, err = s.Dir.Companies.GetByExternalID(ctx, slug); err == nil || !errors.Is(err, pgx.ErrNoRows) {
			return c, err
		}
	}
	if id, perr := uuid.Parse(strings.TrimSpace(ref)); perr == nil {
		return s.Dir.Companies.GetByID(ctx, id)
	}
	return nil, pgx.ErrNoRows
}

// ClearPeople deletes every person. List memberships pointing at them go
// with them.
func (s *Seeder) ClearPeople(ctx context.Context) (int64, error) {
	n, err := s.Clearer.DeleteAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete people: %w", err)
	}
	s.Logger.Warn("people cleared", "deleted", n)
	return n, nil
}
