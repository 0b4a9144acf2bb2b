package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/leadvault/backend/internal/httpx"
	"github.com/leadvault/backend/internal/ledger"
	"github.com/leadvault/backend/internal/models"
)

// CreditReader is the read side of the ledger.
type CreditReader interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (int, error)
	GetHistory(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.CreditTransaction, error)
}

// CreditHandler serves /api/credits endpoints.
type CreditHandler struct {
	Ledger CreditReader
	Logger *slog.Logger
}

func NewCreditHandler(l CreditReader, logger *slog.Logger) *CreditHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CreditHandler{Ledger: l, Logger: logger}
}

type balanceResponse struct {
	Credits int `json:"credits"`
}

// --- GET /api/credits/balance ---

func (h *CreditHandler) Balance(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	credits, err := h.Ledger.GetBalance(r.Context(), p.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "Balance fetched", balanceResponse{Credits: credits})
}

// --- GET /api/credits/history?limit=&offset= ---

func (h *CreditHandler) History(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	limit := httpx.IntQuery(r, "limit", ledger.DefaultHistoryLimit)
	offset := httpx.IntQuery(r, "offset", 0)
	list, err := h.Ledger.GetHistory(r.Context(), p.UserID, limit, offset)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "History fetched", list)
}

func (h *CreditHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ledger.ErrUserNotFound) {
		httpx.Fail(w, http.StatusNotFound, "User not found")
		return
	}
	httpx.Error(w, h.Logger, r, err)
}
