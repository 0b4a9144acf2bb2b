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

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 200
	maxSlugAttempts  = 10000
)

type PersonStore interface {
	Create(ctx context.Context, p *models.Person) error
	Upsert(ctx context.Context, p *models.Person) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Person, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.Person, error)
	FindByEmail(ctx context.Context, email, localPart string) (*models.Person, error)
	ExternalIDExists(ctx context.Context, externalID string) (bool, error)
	List(ctx context.Context, q models.DirectoryQuery) ([]*models.Person, int, error)
	Update(ctx context.Context, p *models.Person) error
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

type CompanyStore interface {
	Upsert(ctx context.Context, c *models.Company) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Company, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.Company, error)
	ExternalIDExists(ctx context.Context, externalID string) (bool, error)
	List(ctx context.Context, q models.DirectoryQuery) ([]*models.Company, int, error)
	Update(ctx context.Context, c *models.Company) error
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

// Directory manages the companies and people that lists point at.
type Directory struct {
	People    PersonStore
	Companies CompanyStore
	Validator *Validator
	Logger    *slog.Logger
}

func NewDirectory(people PersonStore, companies CompanyStore, v *Validator, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{People: people, Companies: companies, Validator: v, Logger: logger}
}

// Page clamps 1-based page/limit query values and returns limit and offset.
func Page(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return limit, (page - 1) * limit
}

func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return err
}

// --- companies ---

// CreateCompany upserts a company by external id. Only admins may call it.
func (d *Directory) CreateCompany(ctx context.Context, p models.Principal, raw json.RawMessage) (*models.Company, error) {
	if !p.IsAdmin {
		return nil, fmt.Errorf("%w: only admins can modify companies", ErrForbidden)
	}
	if err := d.Validator.Validate(SchemaCompanyCreate, raw); err != nil {
		return nil, err
	}
	var in companyInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	c := &models.Company{}
	applyCompanyInput(c, &in)
	if c.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}

	externalID := slugify(trimPtr(in.ExternalID))
	base := externalID
	if externalID == "" || !slugValid.MatchString(externalID) {
		base = c.Name
	}
	id, err := d.uniqueSlug(ctx, slugify(base), "company", d.Companies.ExternalIDExists)
	if err != nil {
		return nil, err
	}
	c.ExternalID = id
	if err := d.Companies.Upsert(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func applyCompanyInput(c *models.Company, in *companyInput) {
	if in.Name != nil {
		c.Name = trimPtr(in.Name)
	}
	if in.Description != nil {
		c.Description = trimPtr(in.Description)
	}
	if in.Website != nil {
		c.Website = trimPtr(in.Website)
	}
	if in.Industries != nil {
		c.Industries = []string(*in.Industries)
	}
	if in.Keywords != nil {
		c.Keywords = []string(*in.Keywords)
	}
	if in.Location != nil {
		c.Location = trimPtr(in.Location)
	}
	if in.Logo != nil {
		c.Logo = trimPtr(in.Logo)
	}
	if in.Employees != nil {
		c.Employees = string(*in.Employees)
	}
	if in.Founded.Set {
		c.Founded = in.Founded.Value
	}
	if in.FundingStage != nil {
		c.FundingStage = trimPtr(in.FundingStage)
	}
}

func (d *Directory) ListCompanies(ctx context.Context, query string, page, limit int) ([]*models.Company, int, error) {
	l, off := Page(page, limit)
	list, total, err := d.Companies.List(ctx, models.DirectoryQuery{Query: strings.TrimSpace(query), Limit: l, Offset: off})
	if list == nil {
		list = []*models.Company{}
	}
	return list, total, err
}

// GetCompany accepts a UUID or an external id.
func (d *Directory) GetCompany(ctx context.Context, ref string) (*models.Company, error) {
	var (
		c   *models.Company
		err error
	)
	if id, perr := uuid.Parse(ref); perr == nil {
		c, err = d.Companies.GetByID(ctx, id)
	} else {
		c, err = d.Companies.GetByExternalID(ctx, ref)
	}
	if err != nil {
		return nil, notFound(err, "company")
	}
	return c, nil
}

func (d *Directory) UpdateCompany(ctx context.Context, p models.Principal, ref string, raw json.RawMessage) (*models.Company, error) {
	if !p.IsAdmin {
		return nil, fmt.Errorf("%w: only admins can modify companies", ErrForbidden)
	}
	if err := d.Validator.Validate(SchemaCompanyUpdate, raw); err != nil {
		return nil, err
	}
	var in companyInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	c, err := d.GetCompany(ctx, ref)
	if err != nil {
		return nil, err
	}
	applyCompanyInput(c, &in)
	if c.Name == "" {
		return nil, fmt.Errorf("%w: name cannot be empty", ErrValidation)
	}
	if err := d.Companies.Update(ctx, c); err != nil {
		return nil, notFound(err, "company")
	}
	return c, nil
}

func (d *Directory) DeleteCompany(ctx context.Context, p models.Principal, ref string) error {
	if !p.IsAdmin {
		return fmt.Errorf("%w: only admins can modify companies", ErrForbidden)
	}
	c, err := d.GetCompany(ctx, ref)
	if err != nil {
		return err
	}
	ok, err := d.Companies.Delete(ctx, c.ID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: company", ErrNotFound)
	}
	return nil
}

// --- people ---

// CreatePerson upserts a person by external id. The company may be given by
// id or by external id.
func (d *Directory) CreatePerson(ctx context.Context, raw json.RawMessage) (*models.Person, error) {
	if err := d.Validator.Validate(SchemaPersonCreate, raw); err != nil {
		return nil, err
	}
	var in personInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	person := &models.Person{}
	if err := d.applyPersonInput(ctx, person, &in); err != nil {
		return nil, err
	}
	if person.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if ext := trimPtr(in.ExternalID); ext != "" {
		person.ExternalID = ext
	} else {
		id, err := d.uniqueSlug(ctx, "p-"+slugify(person.Name), "person", d.People.ExternalIDExists)
		if err != nil {
			return nil, err
		}
		person.ExternalID = id
	}
	if err := d.People.Upsert(ctx, person); err != nil {
		return nil, err
	}
	return person, nil
}

func (d *Directory) applyPersonInput(ctx context.Context, p *models.Person, in *personInput) error {
	if in.Name != nil {
		p.Name = trimPtr(in.Name)
	}
	if in.Designation != nil {
		p.Designation = trimPtr(in.Designation)
	}
	if in.Department != nil {
		p.Department = trimPtr(in.Department)
	}
	if in.Location != nil {
		p.Location = trimPtr(in.Location)
	}
	if in.Phone != nil {
		p.Phone = trimPtr(in.Phone)
	}
	if in.Email != nil {
		p.Email = strings.ToLower(trimPtr(in.Email))
	}
	if in.CompanyEmail != nil {
		p.CompanyEmail = strings.ToLower(trimPtr(in.CompanyEmail))
	}

	switch {
	case in.CompanyID != nil && trimPtr(in.CompanyID) != "":
		id, err := uuid.Parse(trimPtr(in.CompanyID))
		if err != nil {
			return fmt.Errorf("%w: invalid companyId", ErrValidation)
		}
		c, err := d.Companies.GetByID(ctx, id)
		if err != nil {
			return notFound(err, "company")
		}
		p.CompanyID = &c.ID
	case in.CompanyExternalID != nil && trimPtr(in.CompanyExternalID) != "":
		c, err := d.Companies.GetByExternalID(ctx, trimPtr(in.CompanyExternalID))
		if err != nil {
			return notFound(err, "company")
		}
		p.CompanyID = &c.ID
	case in.CompanyID != nil:
		p.CompanyID = nil
	}
	return nil
}

func (d *Directory) ListPeople(ctx context.Context, query, companyExternalID string, page, limit int) ([]*models.Person, int, error) {
	l, off := Page(page, limit)
	list, total, err := d.People.List(ctx, models.DirectoryQuery{
		Query:             strings.TrimSpace(query),
		CompanyExternalID: strings.TrimSpace(companyExternalID),
		Limit:             l,
		Offset:            off,
	})
	if list == nil {
		list = []*models.Person{}
	}
	return list, total, err
}

// GetPerson accepts a UUID or an external id.
func (d *Directory) GetPerson(ctx context.Context, ref string) (*models.Person, error) {
	var (
		p   *models.Person
		err error
	)
	if id, perr := uuid.Parse(ref); perr == nil {
		p, err = d.People.GetByID(ctx, id)
	} else {
		p, err = d.People.GetByExternalID(ctx, ref)
	}
	if err != nil {
		return nil, notFound(err, "person")
	}
	return p, nil
}

func (d *Directory) UpdatePerson(ctx context.Context, ref string, raw json.RawMessage) (*models.Person, error) {
	if err := d.Validator.Validate(SchemaPersonUpdate, raw); err != nil {
		return nil, err
	}
	var in personInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	person, err := d.GetPerson(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := d.applyPersonInput(ctx, person, &in); err != nil {
		return nil, err
	}
	if person.Name == "" {
		return nil, fmt.Errorf("%w: name cannot be empty", ErrValidation)
	}
	if err := d.People.Update(ctx, person); err != nil {
		return nil, notFound(err, "person")
	}
	return person, nil
}

// DeletePerson removes a person; list memberships go with it.
func (d *Directory) DeletePerson(ctx context.Context, p models.Principal, ref string) error {
	if !p.IsAdmin {
		return fmt.Errorf("%w: only admins can delete people", ErrForbidden)
	}
	person, err := d.GetPerson(ctx, ref)
	if err != nil {
		return err
	}
	ok, err := d.People.Delete(ctx, person.ID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: person", ErrNotFound)
	}
	return nil
}

// ResolvePersonByEmail finds a person by address or external id. When none
// exists and allowCreate is set, a stub person is created from the address.
func (d *Directory) ResolvePersonByEmail(ctx context.Context, email string, allowCreate bool) (*models.Person, bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	local, _, _ := strings.Cut(email, "@")
	p, err := d.People.FindByEmail(ctx, email, local)
	if err == nil {
		return p, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}
	if !allowCreate {
		return nil, false, errPersonNotFound
	}

	name, base := personStubFromEmail(email)
	externalID, err := d.uniqueSlug(ctx, base, "p-person", d.People.ExternalIDExists)
	if err != nil {
		return nil, false, err
	}
	stub := &models.Person{
		ExternalID:  externalID,
		Name:        name,
		Email:       email,
		Designation: "Unknown",
		Department:  "Unknown",
		Location:    "Unknown",
	}
	if err := d.People.Create(ctx, stub); err != nil {
		return nil, false, fmt.Errorf("create person stub: %w", err)
	}
	d.Logger.Info("person stub created", "person_id", stub.ID, "external_id", stub.ExternalID)
	return stub, true, nil
}

// PersonByID and CompanyByID are the id lookups used when adding list members.
func (d *Directory) PersonByID(ctx context.Context, id uuid.UUID) (*models.Person, error) {
	p, err := d.People.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errPersonNotFound
	}
	return p, err
}

func (d *Directory) CompanyByID(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	c, err := d.Companies.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errCompanyNotFound
	}
	return c, err
}

// uniqueSlug returns base, or base-N for the first N that is free.
func (d *Directory) uniqueSlug(ctx context.Context, base, fallback string, exists func(context.Context, string) (bool, error)) (string, error) {
	if base == "" || base == "p-" {
		base = fallback
	}
	candidate := base
	for i := 1; i <= maxSlugAttempts; i++ {
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	return "", fmt.Errorf("no free external id for %q", base)
}
