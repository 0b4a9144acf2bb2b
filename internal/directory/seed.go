package directory

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/leadvault/backend/internal/httpx"
	"github.com/leadvault/backend/internal/services"
)

const maxSeedBytes = 32 << 20

type SeedService interface {
	Seed(ctx context.Context, data services.SeedData) (*services.SeedReport, error)
	ClearPeople(ctx context.Context) (int64, error)
}

// SeedHandler serves the bulk import endpoints. They sit outside session
// auth and are gated by a shared secret in the body instead; with no secret
// configured every call is refused.
type SeedHandler struct {
	svc    SeedService
	secret string
	log    *slog.Logger
}

func NewSeedHandler(svc SeedService, secret string, log *slog.Logger) *SeedHandler {
	if log == nil {
		log = slog.Default()
	}
	return &SeedHandler{svc: svc, secret: secret, log: log}
}

func (h *SeedHandler) allowed(given string) bool {
	return h.secret != "" && subtle.ConstantTimeCompare([]byte(given), []byte(h.secret)) == 1
}

// --- POST /api/seed ---

func (h *SeedHandler) Seed(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Secret string `json:"secret"`
		services.SeedData
	}
	if err := httpx.DecodeLimit(w, r, &body, maxSeedBytes); err != nil {
		httpx.Error(w, h.log, r, err)
		return
	}
	if !h.allowed(body.Secret) {
		h.log.Warn("seed refused", "remote_addr", r.RemoteAddr)
		httpx.Fail(w, http.StatusForbidden, "Forbidden")
		return
	}
	report, err := h.svc.Seed(r.Context(), body.SeedData)
	if err != nil {
		h.log.Error("seed failed", "error", err)
		httpx.Fail(w, http.StatusInternalServerError, "Seed failed")
		return
	}
	httpx.OK(w, http.StatusOK, "Seed completed", report)
}

// --- POST /api/seed/delete-people ---

func (h *SeedHandler) DeletePeople(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Secret string `json:"secret"`
	}
	if err := httpx.Decode(w, r, &body); err != nil {
		httpx.Error(w, h.log, r, err)
		return
	}
	if !h.allowed(body.Secret) {
		h.log.Warn("delete people refused", "remote_addr", r.RemoteAddr)
		httpx.Fail(w, http.StatusForbidden, "Forbidden")
		return
	}
	n, err := h.svc.ClearPeople(r.Context())
	if err != nil {
		h.log.Error("delete people failed", "error", err)
		httpx.Fail(w, http.StatusInternalServerError, "Failed to delete people")
		return
	}
	httpx.OK(w, http.StatusOK, "People collection cleared", map[string]int64{"deletedCount": n})
}
