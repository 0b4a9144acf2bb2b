package models

import (
	"time"

	"github.com/google/uuid"
)

// ListTarget is the kind of record a list holds. It is fixed at creation.
type ListTarget string

const (
	TargetPeople  ListTarget = "people"
	TargetCompany ListTarget = "company"
)

func (t ListTarget) Valid() bool {
	return t == TargetPeople || t == TargetCompany
}

type List struct {
	ID           uuid.UUID   `json:"id"`
	Name         string      `json:"name"`
	Target       ListTarget  `json:"target"`
	OwnerID      uuid.UUID   `json:"ownerId"`
	OwnerEmail   string      `json:"ownerEmail,omitempty"`
	MemberIDs    []uuid.UUID `json:"members"`
	MembersCount int         `json:"membersCount"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`

	// CreditsCharged is what the owner paid at creation; deletion refunds it.
	CreditsCharged int `json:"creditsCharged"`
}

// HasMember reports whether id is already in the member set.
func (l *List) HasMember(id uuid.UUID) bool {
	for _, m := range l.MemberIDs {
		if m == id {
			return true
		}
	}
	return false
}

// ListDetail is a list with its members loaded according to Target.
type ListDetail struct {
	List
	People    []*Person  `json:"people,omitempty"`
	Companies []*Company `json:"companies,omitempty"`
}

// MemberRef identifies the record to add to a list. People lists accept
// PersonID or Email; company lists accept CompanyID.
type MemberRef struct {
	PersonID  *uuid.UUID `json:"personId,omitempty"`
	Email     string     `json:"email,omitempty"`
	CompanyID *uuid.UUID `json:"companyId,omitempty"`
}

// ListQuery filters list listings.
type ListQuery struct {
	OwnerID *uuid.UUID
	Query   string
	Limit   int
	Offset  int
}
