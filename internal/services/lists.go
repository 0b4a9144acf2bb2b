package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/leadvault/backend/internal/models"
)

var (
	errPersonNotFound  = fmt.Errorf("%w: person", ErrNotFound)
	errCompanyNotFound = fmt.Errorf("%w: company", ErrNotFound)
)

// resolveError marks an unexpected failure while looking up a member.
type resolveError struct{ err error }

func (e *resolveError) Error() string { return "resolve member: " + e.err.Error() }
func (e *resolveError) Unwrap() error { return e.err }

type ListStore interface {
	Create(ctx context.Context, l *models.List) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.List, error)
	List(ctx context.Context, q models.ListQuery) ([]*models.List, int, error)
	Rename(ctx context.Context, id uuid.UUID, name string) error
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	AddMember(ctx context.Context, listID uuid.UUID, target models.ListTarget, memberID uuid.UUID) (bool, error)
	RemoveMember(ctx context.Context, listID, memberID uuid.UUID) (bool, error)
	MemberPeople(ctx context.Context, listID uuid.UUID) ([]*models.Person, error)
	MemberCompanies(ctx context.Context, listID uuid.UUID) ([]*models.Company, error)
}

// MemberDirectory looks up the records a list can hold.
type MemberDirectory interface {
	PersonByID(ctx context.Context, id uuid.UUID) (*models.Person, error)
	CompanyByID(ctx context.Context, id uuid.UUID) (*models.Company, error)
	ResolvePersonByEmail(ctx context.Context, email string, allowCreate bool) (*models.Person, bool, error)
}

type ListCosts struct {
	CreateList int
	AddMember  int
	// ChargeDuplicates keeps the add-member charge when the member was
	// already in the list.
	ChargeDuplicates bool
}

// ListService runs the list mutations that cost credits.
type ListService struct {
	Lists     ListStore
	Directory MemberDirectory
	Ledger    CreditLedger
	Costs     ListCosts
	Logger    *slog.Logger

	comp *Compensator
}

func NewListService(lists ListStore, dir MemberDirectory, l CreditLedger, costs ListCosts, logger *slog.Logger) *ListService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ListService{
		Lists:     lists,
		Directory: dir,
		Ledger:    l,
		Costs:     costs,
		Logger:    logger,
		comp:      NewCompensator(l, logger),
	}
}

// CreateList validates the input, charges the owner and inserts the list.
// A failed insert is refunded.
func (s *ListService) CreateList(ctx context.Context, p models.Principal, name string, target models.ListTarget) (*models.List, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if target == "" {
		target = models.TargetPeople
	}
	if !target.Valid() {
		return nil, fmt.Errorf("%w: target must be people or company", ErrValidation)
	}

	l := &models.List{
		ID:             uuid.New(),
		Name:           name,
		Target:         target,
		OwnerID:        p.UserID,
		MemberIDs:      []uuid.UUID{},
		CreditsCharged: s.Costs.CreateList,
	}
	charge := Charge{
		UserID: p.UserID,
		Amount: s.Costs.CreateList,
		Reason: models.ReasonCreateList,
		Meta:   models.CreditMeta{ListID: &l.ID, ListName: name},
		RefundReason: func(error) models.Reason {
			return models.ReasonRefundCreateListFailed
		},
	}
	err := s.comp.Run(ctx, charge, func(ctx context.Context) error {
		return s.Lists.Create(ctx, l)
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("list created", "list_id", l.ID, "owner_id", p.UserID, "target", target)
	return l, nil
}

// GetList returns the list with its people or companies loaded.
func (s *ListService) GetList(ctx context.Context, p models.Principal, id uuid.UUID) (*models.ListDetail, error) {
	l, err := s.authorized(ctx, p, id)
	if err != nil {
		return nil, err
	}
	detail := &models.ListDetail{List: *l}
	if l.Target == models.TargetCompany {
		detail.Companies, err = s.Lists.MemberCompanies(ctx, id)
	} else {
		detail.People, err = s.Lists.MemberPeople(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// ListLists pages through the caller's lists. Admins may ask for everyone's.
func (s *ListService) ListLists(ctx context.Context, p models.Principal, all bool, query string, page, limit int) ([]*models.List, int, error) {
	l, off := Page(page, limit)
	q := models.ListQuery{Query: strings.TrimSpace(query), Limit: l, Offset: off}
	if !all || !p.IsAdmin {
		owner := p.UserID
		q.OwnerID = &owner
	}
	lists, total, err := s.Lists.List(ctx, q)
	if lists == nil {
		lists = []*models.List{}
	}
	return lists, total, err
}

// RenameList changes the name. The target cannot change once set.
func (s *ListService) RenameList(ctx context.Context, p models.Principal, id uuid.UUID, name string, target models.ListTarget) (*models.List, error) {
	l, err := s.authorized(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if target != "" && target != l.Target {
		return nil, fmt.Errorf("%w: list target cannot be changed", ErrValidation)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if err := s.Lists.Rename(ctx, id, name); err != nil {
		return nil, notFound(err, "list")
	}
	l.Name = name
	return l, nil
}

// DeleteList removes the list and gives the owner back what creating it cost.
func (s *ListService) DeleteList(ctx context.Context, p models.Principal, id uuid.UUID) error {
	l, err := s.authorized(ctx, p, id)
	if err != nil {
		return err
	}
	ok, err := s.Lists.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: list", ErrNotFound)
	}
	refundBestEffort(ctx, s.Ledger, s.Logger, l.OwnerID, l.CreditsCharged, models.ReasonRefundListDeleted,
		models.CreditMeta{ListID: &l.ID, ListName: l.Name})
	s.Logger.Info("list deleted", "list_id", id, "actor_id", p.UserID)
	return nil
}

// AddMember charges the actor, resolves the member and adds it to the set.
// Any failure after the charge is refunded with a reason naming the cause.
func (s *ListService) AddMember(ctx context.Context, p models.Principal, listID uuid.UUID, ref models.MemberRef) (*models.List, error) {
	l, err := s.authorized(ctx, p, listID)
	if err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(ref.Email))
	switch l.Target {
	case models.TargetCompany:
		if ref.CompanyID == nil {
			return nil, fmt.Errorf("%w: companyId is required for company lists", ErrValidation)
		}
		if ref.PersonID != nil || email != "" {
			return nil, fmt.Errorf("%w: company lists only hold companies", ErrValidation)
		}
	default:
		if ref.CompanyID != nil {
			return nil, fmt.Errorf("%w: people lists only hold people", ErrValidation)
		}
		if ref.PersonID == nil && email == "" {
			return nil, fmt.Errorf("%w: personId or email is required", ErrValidation)
		}
	}

	if !s.Costs.ChargeDuplicates {
		if id := knownID(ref); id != nil && l.HasMember(*id) {
			return l, nil
		}
	}

	meta := models.CreditMeta{ListID: &l.ID, PersonID: ref.PersonID, CompanyID: ref.CompanyID, Email: email}
	charge := Charge{
		UserID:       p.UserID,
		Amount:       s.Costs.AddMember,
		Reason:       models.ReasonAddMember,
		Meta:         meta,
		RefundReason: addMemberRefundReason,
	}
	err = s.comp.Run(ctx, charge, func(ctx context.Context) error {
		memberID, err := s.resolveMember(ctx, p, l.Target, ref, email)
		if err != nil {
			return err
		}
		added, err := s.Lists.AddMember(ctx, l.ID, l.Target, memberID)
		if err != nil {
			return fmt.Errorf("add member: %w", err)
		}
		if !added && !s.Costs.ChargeDuplicates {
			return &Waive{Reason: models.ReasonRefundAddMemberDuplicate}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.reload(ctx, listID)
}

func (s *ListService) resolveMember(ctx context.Context, p models.Principal, target models.ListTarget, ref models.MemberRef, email string) (uuid.UUID, error) {
	if target == models.TargetCompany {
		c, err := s.Directory.CompanyByID(ctx, *ref.CompanyID)
		if err != nil {
			return uuid.Nil, classifyResolve(err)
		}
		return c.ID, nil
	}
	if ref.PersonID != nil {
		person, err := s.Directory.PersonByID(ctx, *ref.PersonID)
		if err != nil {
			return uuid.Nil, classifyResolve(err)
		}
		return person.ID, nil
	}
	person, _, err := s.Directory.ResolvePersonByEmail(ctx, email, p.IsAdmin)
	if err != nil {
		return uuid.Nil, classifyResolve(err)
	}
	return person.ID, nil
}

func classifyResolve(err error) error {
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return &resolveError{err: err}
}

func addMemberRefundReason(err error) models.Reason {
	var re *resolveError
	switch {
	case errors.Is(err, errPersonNotFound):
		return models.ReasonRefundAddMemberPersonNotFound
	case errors.Is(err, errCompanyNotFound):
		return models.ReasonRefundAddMemberCompanyNotFound
	case errors.As(err, &re):
		return models.ReasonRefundAddMemberFailedResolve
	default:
		return models.ReasonRefundAddMemberException
	}
}

func knownID(ref models.MemberRef) *uuid.UUID {
	if ref.PersonID != nil {
		return ref.PersonID
	}
	return ref.CompanyID
}

// RemoveMember drops the member if present and refunds the list owner the
// per-member cost. Removing a non-member is not an error.
func (s *ListService) RemoveMember(ctx context.Context, p models.Principal, listID, memberID uuid.UUID) (*models.List, error) {
	l, err := s.authorized(ctx, p, listID)
	if err != nil {
		return nil, err
	}
	removed, err := s.Lists.RemoveMember(ctx, listID, memberID)
	if err != nil {
		return nil, err
	}
	refundBestEffort(ctx, s.Ledger, s.Logger, l.OwnerID, s.Costs.AddMember, models.ReasonRefundMemberRemoved,
		models.CreditMeta{ListID: &l.ID, MemberID: &memberID})
	if !removed {
		s.Logger.Debug("member not in list", "list_id", listID, "member_id", memberID)
	}
	return s.reload(ctx, listID)
}

func (s *ListService) authorized(ctx context.Context, p models.Principal, id uuid.UUID) (*models.List, error) {
	l, err := s.Lists.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: list", ErrNotFound)
		}
		return nil, err
	}
	if !p.CanManage(l.OwnerID) {
		return nil, fmt.Errorf("%w: not your list", ErrForbidden)
	}
	return l, nil
}

func (s *ListService) reload(ctx context.Context, id uuid.UUID) (*models.List, error) {
	l, err := s.Lists.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "list")
	}
	return l, nil
}
