package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/leadvault/backend/internal/httpx"
	"github.com/leadvault/backend/internal/middleware"
	"github.com/leadvault/backend/internal/models"
	"github.com/leadvault/backend/internal/services"
)

// ListOrchestrator is the subset of services.ListService the handler calls.
type ListOrchestrator interface {
	CreateList(ctx context.Context, p models.Principal, name string, target models.ListTarget) (*models.List, error)
	GetList(ctx context.Context, p models.Principal, id uuid.UUID) (*models.ListDetail, error)
	ListLists(ctx context.Context, p models.Principal, all bool, query string, page, limit int) ([]*models.List, int, error)
	RenameList(ctx context.Context, p models.Principal, id uuid.UUID, name string, target models.ListTarget) (*models.List, error)
	DeleteList(ctx context.Context, p models.Principal, id uuid.UUID) error
	AddMember(ctx context.Context, p models.Principal, listID uuid.UUID, ref models.MemberRef) (*models.List, error)
	RemoveMember(ctx context.Context, p models.Principal, listID, memberID uuid.UUID) (*models.List, error)
}

// ListHandler serves /api/lists endpoints.
type ListHandler struct {
	Lists  ListOrchestrator
	Logger *slog.Logger
}

func NewListHandler(lists ListOrchestrator, logger *slog.Logger) *ListHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ListHandler{Lists: lists, Logger: logger}
}

type listRequest struct {
	Name   string            `json:"name"`
	Target models.ListTarget `json:"target"`
}

// principal returns the caller, writing a 401 when there is none.
func principal(w http.ResponseWriter, r *http.Request) (models.Principal, bool) {
	p, ok := middleware.Principal(r)
	if !ok {
		httpx.Fail(w, http.StatusUnauthorized, "Unauthorized")
		return models.Principal{}, false
	}
	return *p, true
}

func pathUUID(r *http.Request, key string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(key))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s", services.ErrValidation, key)
	}
	return id, nil
}

// --- POST /api/lists ---

func (h *ListHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req listRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.Error(w, h.Logger, r, err)
		return
	}
	l, err := h.Lists.CreateList(r.Context(), p, req.Name, req.Target)
	if err != nil {
		httpx.Error(w, h.Logger, r, err)
		return
	}
	httpx.OK(w, http.StatusCreated, "List created", l)
}

// --- GET /api/lists ---

func (h *ListHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	all := q.Get("all") == "true" || q.Get("all") == "1"
	page := httpx.IntQuery(r, "page", 1)
	limit := httpx.IntQuery(r, "limit", services.DefaultPageLimit)

	lists, total, err := h.Lists.ListLists(r.Context(), p, all, strings.TrimSpace(q.Get("q")), page, limit)
	if err != nil {
		httpx.Error(w, h.Logger, r, err)
		return
	}
	limit, _ = services.Page(page, limit)
	if page < 1 {
		page = 1
	}
	httpx.OK(w, http.StatusOK, "Lists fetched", httpx.Page{Page: page, Limit: limit, Total: total, Items: lists})
}

// --- GET /api/lists/{id} ---

func (h *ListHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		httpx.Error(w, h.Logger, r, err)
		return
	}
	l, err := h.Lists.GetList(r.Context(), p, id)
	if err != nil {
		httpx.Error(w, h.Logger, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "List fetched", l)
}

// --- PATCH /api/lists/{id} ---

func (h *ListHandler) Rename(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		httpx.Error(w, h.Logger, r, err)
		return
	}
	var req listRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.Error(w, h.Logger, r, err)
		return
	}
	l, err := h.Lists.RenameList(r.Context(), p, id, req.Name, req.Target)
	if err != nil {
		httpx.Error(w, h.Logger, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "List updated", l)
}

// --- DELETE /api/lists/{id} ---

func (h *ListHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		httpx.Error(w, h.Logger, r, err)
		return
	}
	if err := h.Lists.DeleteList(r.Context(), p, id); err != nil {
		httpx.Error(w, h.Logger, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "List deleted", nil)
}

// --- POST /api/lists/{id}/members ---

func (h *ListHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		httpx.Error(w, h.Logger, r, err)
		return
	}
	var ref models.MemberRef
	if err := httpx.Decode(w, r, &ref); err != nil {
		httpx.Error(w, h.Logger, r, err)
		return
	}
	l, err := h.Lists.AddMember(r.Context(), p, id, ref)
	if err != nil {
		httpx.Error(w, h.Logger, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "Member added", l)
}

// --- DELETE /api/lists/{id}/members/{memberId} ---

func (h *ListHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		httpx.Error(w, h.Logger, r, err)
		return
	}
	memberID, err := pathUUID(r, "memberId")
	if err != nil {
		httpx.Error(w, h.Logger, r, err)
		return
	}
	l, err := h.Lists.RemoveMember(r.Context(), p, id, memberID)
	if err != nil {
		httpx.Error(w, h.Logger, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "Member removed", l)
}
