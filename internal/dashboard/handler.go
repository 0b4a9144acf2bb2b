// Package dashboard serves the admin-only account management endpoints.
package dashboard

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/leadvault/backend/internal/httpx"
	"github.com/leadvault/backend/internal/middleware"
	"github.com/leadvault/backend/internal/models"
	"github.com/leadvault/backend/internal/services"
)

type UserStore interface {
	List(ctx context.Context, limit, offset int) ([]*models.User, int, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

// ReconcileEnqueuer schedules a background ledger check.
type ReconcileEnqueuer interface {
	EnqueueReconcile(ctx context.Context, userID *uuid.UUID) (int64, error)
}

type Handler struct {
	users     UserStore
	reconcile ReconcileEnqueuer
	log       *slog.Logger
}

func NewHandler(users UserStore, reconcile ReconcileEnqueuer, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{users: users, reconcile: reconcile, log: log}
}

// GET /api/admin/users
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page := httpx.IntQuery(r, "page", 1)
	if page < 1 {
		page = 1
	}
	limit, offset := services.Page(page, httpx.IntQuery(r, "limit", services.DefaultPageLimit))
	users, total, err := h.users.List(r.Context(), limit, offset)
	if err != nil {
		httpx.Error(w, h.log, r, err)
		return
	}
	if users == nil {
		users = []*models.User{}
	}
	httpx.OK(w, http.StatusOK, "Users fetched", httpx.Page{Page: page, Limit: limit, Total: total, Items: users})
}

// DELETE /api/admin/users/{id}
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if p := middleware.PrincipalFromCtx(r.Context()); p != nil && p.UserID == id {
		httpx.Fail(w, http.StatusBadRequest, "You cannot delete your own account")
		return
	}
	ok, err := h.users.Delete(r.Context(), id)
	if err != nil {
		httpx.Error(w, h.log, r, err)
		return
	}
	if !ok {
		httpx.Fail(w, http.StatusNotFound, "User not found")
		return
	}
	h.log.Info("user deleted", "user_id", id)
	httpx.OK(w, http.StatusOK, "User deleted", nil)
}

type reconcileRequest struct {
	UserID *uuid.UUID `json:"userId"`
}

type reconcileResponse struct {
	JobID int64 `json:"jobId"`
}

// POST /api/admin/reconcile
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if r.ContentLength != 0 {
		if err := httpx.Decode(w, r, &req); err != nil {
			httpx.Error(w, h.log, r, err)
			return
		}
	}
	jobID, err := h.reconcile.EnqueueReconcile(r.Context(), req.UserID)
	if err != nil {
		httpx.Error(w, h.log, r, err)
		return
	}
	httpx.OK(w, http.StatusAccepted, "Reconciliation queued", reconcileResponse{JobID: jobID})
}
