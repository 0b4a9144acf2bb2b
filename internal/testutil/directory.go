package testutil

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/leadvault/backend/internal/models"
)

// Store keeps people, companies and lists in memory. People(), Companies()
// and Lists() expose it through the repository method sets.
type Store struct {
	mu        sync.Mutex
	people    []*models.Person
	companies []*models.Company
	lists     map[uuid.UUID]*models.List

	// FailCreateList, FailAddMember and FailLookup inject storage errors.
	FailCreateList error
	FailAddMember  error
	FailLookup     error
	// PanicAddMember makes AddMember panic, to test compensation on panic.
	PanicAddMember bool
}

func NewStore() *Store {
	return &Store{lists: make(map[uuid.UUID]*models.List)}
}

func (s *Store) People() *PersonStore    { return &PersonStore{s} }
func (s *Store) Companies() *CompanyStore { return &CompanyStore{s} }
func (s *Store) Lists() *ListStore        { return &ListStore{s} }

// AddPerson seeds a person and returns it with an id assigned.
func (s *Store) AddPerson(p *models.Person) *models.Person {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	s.people = append(s.people, p)
	return p
}

// AddCompany seeds a company and returns it with an id assigned.
func (s *Store) AddCompany(c *models.Company) *models.Company {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	s.companies = append(s.companies, c)
	return c
}

// ListCount returns how many lists exist.
func (s *Store) ListCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lists)
}

func page[T any](all []T, limit, offset int) []T {
	if offset >= len(all) {
		return nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all
}

// ---------------------------------------------------------------------------
// People
// ---------------------------------------------------------------------------

type PersonStore struct{ s *Store }

func (r *PersonStore) Create(_ context.Context, p *models.Person) error {
	r.s.AddPerson(p)
	return nil
}

func (r *PersonStore) Upsert(_ context.Context, p *models.Person) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, existing := range r.s.people {
		if existing.ExternalID == p.ExternalID {
			p.ID = existing.ID
			r.s.people[i] = p
			return nil
		}
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	r.s.people = append(r.s.people, p)
	return nil
}

func (r *PersonStore) find(match func(*models.Person) bool) (*models.Person, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailLookup != nil {
		return nil, r.s.FailLookup
	}
	for _, p := range r.s.people {
		if match(p) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *PersonStore) GetByID(_ context.Context, id uuid.UUID) (*models.Person, error) {
	return r.find(func(p *models.Person) bool { return p.ID == id })
}

func (r *PersonStore) GetByExternalID(_ context.Context, externalID string) (*models.Person, error) {
	return r.find(func(p *models.Person) bool { return p.ExternalID == externalID })
}

func (r *PersonStore) FindByEmail(_ context.Context, email, localPart string) (*models.Person, error) {
	return r.find(func(p *models.Person) bool {
		return strings.EqualFold(p.Email, email) || strings.EqualFold(p.CompanyEmail, email) ||
			p.ExternalID == email || (localPart != "" && p.ExternalID == localPart)
	})
}

func (r *PersonStore) ExternalIDExists(_ context.Context, externalID string) (bool, error) {
	_, err := r.find(func(p *models.Person) bool { return p.ExternalID == externalID })
	return err == nil, nil
}

func (r *PersonStore) List(_ context.Context, q models.DirectoryQuery) ([]*models.Person, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var companyID *uuid.UUID
	if q.CompanyExternalID != "" {
		for _, c := range r.s.companies {
			if c.ExternalID == q.CompanyExternalID {
				companyID = &c.ID
			}
		}
		if companyID == nil {
			return nil, 0, nil
		}
	}
	var all []*models.Person
	for _, p := range r.s.people {
		if q.Query != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(q.Query)) {
			continue
		}
		if companyID != nil && (p.CompanyID == nil || *p.CompanyID != *companyID) {
			continue
		}
		all = append(all, p)
	}
	return page(all, q.Limit, q.Offset), len(all), nil
}

func (r *PersonStore) Update(_ context.Context, p *models.Person) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, existing := range r.s.people {
		if existing.ID == p.ID {
			p.UpdatedAt = time.Now()
			r.s.people[i] = p
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (r *PersonStore) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := len(r.s.people)
	r.s.people = slices.DeleteFunc(r.s.people, func(p *models.Person) bool { return p.ID == id })
	for _, l := range r.s.lists {
		l.MemberIDs = slices.DeleteFunc(l.MemberIDs, func(m uuid.UUID) bool { return m == id })
	}
	return len(r.s.people) < n, nil
}

func (r *PersonStore) DeleteAll(context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := int64(len(r.s.people))
	r.s.people = nil
	for _, l := range r.s.lists {
		if l.Target == models.TargetPeople {
			l.MemberIDs = nil
		}
	}
	return n, nil
}

// PersonCount returns how many people are stored.
func (s *Store) PersonCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.people)
}

// ---------------------------------------------------------------------------
// Companies
// ---------------------------------------------------------------------------

type CompanyStore struct{ s *Store }

func (r *CompanyStore) Upsert(_ context.Context, c *models.Company) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, existing := range r.s.companies {
		if existing.ExternalID == c.ExternalID {
			c.ID = existing.ID
			r.s.companies[i] = c
			return nil
		}
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	r.s.companies = append(r.s.companies, c)
	return nil
}

func (r *CompanyStore) find(match func(*models.Company) bool) (*models.Company, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailLookup != nil {
		return nil, r.s.FailLookup
	}
	for _, c := range r.s.companies {
		if match(c) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *CompanyStore) GetByID(_ context.Context, id uuid.UUID) (*models.Company, error) {
	return r.find(func(c *models.Company) bool { return c.ID == id })
}

func (r *CompanyStore) GetByExternalID(_ context.Context, externalID string) (*models.Company, error) {
	return r.find(func(c *models.Company) bool { return c.ExternalID == externalID })
}

func (r *CompanyStore) ExternalIDExists(_ context.Context, externalID string) (bool, error) {
	_, err := r.find(func(c *models.Company) bool { return c.ExternalID == externalID })
	return err == nil, nil
}

func (r *CompanyStore) List(_ context.Context, q models.DirectoryQuery) ([]*models.Company, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var all []*models.Company
	for _, c := range r.s.companies {
		if q.Query != "" && !strings.Contains(strings.ToLower(c.Name), strings.ToLower(q.Query)) {
			continue
		}
		all = append(all, c)
	}
	return page(all, q.Limit, q.Offset), len(all), nil
}

func (r *CompanyStore) Update(_ context.Context, c *models.Company) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, existing := range r.s.companies {
		if existing.ID == c.ID {
			r.s.companies[i] = c
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (r *CompanyStore) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := len(r.s.companies)
	r.s.companies = slices.DeleteFunc(r.s.companies, func(c *models.Company) bool { return c.ID == id })
	for _, l := range r.s.lists {
		l.MemberIDs = slices.DeleteFunc(l.MemberIDs, func(m uuid.UUID) bool { return m == id })
	}
	return len(r.s.companies) < n, nil
}

// ---------------------------------------------------------------------------
// Lists
// ---------------------------------------------------------------------------

type ListStore struct{ s *Store }

func (r *ListStore) Create(_ context.Context, l *models.List) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailCreateList != nil {
		return r.s.FailCreateList
	}
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	now := time.Now()
	l.CreatedAt, l.UpdatedAt = now, now
	cp := *l
	cp.MemberIDs = slices.Clone(l.MemberIDs)
	r.s.lists[l.ID] = &cp
	return nil
}

func (r *ListStore) GetByID(_ context.Context, id uuid.UUID) (*models.List, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.lists[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *l
	cp.MemberIDs = slices.Clone(l.MemberIDs)
	if cp.MemberIDs == nil {
		cp.MemberIDs = []uuid.UUID{}
	}
	cp.MembersCount = len(cp.MemberIDs)
	return &cp, nil
}

func (r *ListStore) List(_ context.Context, q models.ListQuery) ([]*models.List, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var all []*models.List
	for _, l := range r.s.lists {
		if q.OwnerID != nil && l.OwnerID != *q.OwnerID {
			continue
		}
		if q.Query != "" && !strings.Contains(strings.ToLower(l.Name), strings.ToLower(q.Query)) {
			continue
		}
		cp := *l
		cp.MembersCount = len(l.MemberIDs)
		all = append(all, &cp)
	}
	slices.SortFunc(all, func(a, b *models.List) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return page(all, q.Limit, q.Offset), len(all), nil
}

func (r *ListStore) Rename(_ context.Context, id uuid.UUID, name string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.lists[id]
	if !ok {
		return pgx.ErrNoRows
	}
	l.Name = name
	return nil
}

func (r *ListStore) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.lists[id]
	delete(r.s.lists, id)
	return ok, nil
}

func (r *ListStore) AddMember(_ context.Context, listID uuid.UUID, _ models.ListTarget, memberID uuid.UUID) (bool, error) {
	if r.s.PanicAddMember {
		panic("list store exploded")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailAddMember != nil {
		return false, r.s.FailAddMember
	}
	l, ok := r.s.lists[listID]
	if !ok {
		return false, pgx.ErrNoRows
	}
	if slices.Contains(l.MemberIDs, memberID) {
		return false, nil
	}
	l.MemberIDs = append(l.MemberIDs, memberID)
	return true, nil
}

func (r *ListStore) RemoveMember(_ context.Context, listID, memberID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.lists[listID]
	if !ok {
		return false, nil
	}
	n := len(l.MemberIDs)
	l.MemberIDs = slices.DeleteFunc(l.MemberIDs, func(m uuid.UUID) bool { return m == memberID })
	return len(l.MemberIDs) < n, nil
}

func (r *ListStore) MemberPeople(_ context.Context, listID uuid.UUID) ([]*models.Person, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.lists[listID]
	if !ok {
		return nil, nil
	}
	var out []*models.Person
	for _, id := range l.MemberIDs {
		for _, p := range r.s.people {
			if p.ID == id {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (r *ListStore) MemberCompanies(_ context.Context, listID uuid.UUID) ([]*models.Company, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.lists[listID]
	if !ok {
		return nil, nil
	}
	var out []*models.Company
	for _, id := range l.MemberIDs {
		for _, c := range r.s.companies {
			if c.ID == id {
				out = append(out, c)
			}
		}
	}
	return out, nil
}
