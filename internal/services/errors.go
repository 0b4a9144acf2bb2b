package services

import (
	"errors"

	"github.com/leadvault/backend/internal/ledger"
)

var (
	// ErrValidation can be used with errors.Is to detect rejected input.
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("forbidden")
	ErrNotFound   = errors.New("not found")

	// ErrInsufficientCredits is returned when the caller cannot pay for the operation.
	ErrInsufficientCredits = ledger.ErrInsufficientCredits
)
