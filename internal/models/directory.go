package models

import (
	"time"

	"github.com/google/uuid"
)

type Company struct {
	ID           uuid.UUID `json:"id"`
	ExternalID   string    `json:"externalId"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Website      string    `json:"website,omitempty"`
	Industries   []string  `json:"industries"`
	Keywords     []string  `json:"keywords"`
	Location     string    `json:"location,omitempty"`
	Logo         string    `json:"logo,omitempty"`
	Employees    string    `json:"employees,omitempty"`
	Founded      *int      `json:"founded,omitempty"`
	FundingStage string    `json:"fundingStage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Person struct {
	ID           uuid.UUID  `json:"id"`
	ExternalID   string     `json:"externalId"`
	Name         string     `json:"name"`
	Designation  string     `json:"designation,omitempty"`
	Department   string     `json:"department,omitempty"`
	CompanyID    *uuid.UUID `json:"companyId,omitempty"`
	Location     string     `json:"location,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	Email        string     `json:"email,omitempty"`
	CompanyEmail string     `json:"companyEmail,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// DirectoryQuery filters company and people listings.
type DirectoryQuery struct {
	Query             string
	CompanyExternalID string
	Limit             int
	Offset            int
}
