// Package httpx holds the JSON envelope every API response uses.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/leadvault/backend/internal/services"
)

// Envelope is the body of every JSON response.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   any    `json:"error"`
}

// Page is the data of a paginated listing.
type Page struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Items any `json:"items"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func OK(w http.ResponseWriter, status int, message string, data any) {
	WriteJSON(w, status, Envelope{Success: true, Message: message, Data: data})
}

func Fail(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, Envelope{Success: false, Message: message})
}

const insufficientCreditsMessage = "Insufficient credits. Please top up."

// Status maps a service error to its HTTP status.
func Status(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrInsufficientCredits):
		return http.StatusPaymentRequired
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error writes err with the mapped status. 500s are logged and their text
// is not sent to the client.
func Error(w http.ResponseWriter, log *slog.Logger, r *http.Request, err error) {
	status := Status(err)
	switch status {
	case http.StatusInternalServerError:
		log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		Fail(w, status, "Internal Server Error")
	case http.StatusPaymentRequired:
		Fail(w, status, insufficientCreditsMessage)
	default:
		Fail(w, status, err.Error())
	}
}

// Decode reads a JSON body of at most 1 MiB into v.
func Decode(w http.ResponseWriter, r *http.Request, v any) error {
	return DecodeLimit(w, r, v, 1<<20)
}

// DecodeLimit is Decode with a caller-chosen size cap.
func DecodeLimit(w http.ResponseWriter, r *http.Request, v any, limit int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON", services.ErrValidation)
	}
	return nil
}

// IntQuery parses a query parameter, falling back to def when absent or bad.
func IntQuery(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
