package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultUserCredits is the balance a new account starts with.
const DefaultUserCredits = 100

type User struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"`
	IsAdmin        bool      `json:"isAdmin"`
	Credits        int       `json:"credits"`
	InitialCredits int       `json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID  uuid.UUID
	Email   string
	IsAdmin bool
}

// CanManage reports whether the principal may mutate a resource owned by ownerID.
func (p Principal) CanManage(ownerID uuid.UUID) bool {
	return p.IsAdmin || p.UserID == ownerID
}
