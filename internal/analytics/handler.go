package analytics

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/leadvault/backend/internal/httpx"
)

type Handler struct {
	svc *Service
	log *slog.Logger
}

func NewHandler(svc *Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

type trackRequest struct {
	Path      string `json:"path"`
	VisitorID string `json:"visitorId"`
	Referrer  string `json:"referrer"`
	UA        string `json:"ua"`
}

// clientIP prefers the first X-Forwarded-For hop, then the socket peer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Track is public; the frontend calls it with sendBeacon.
func (h *Handler) Track(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	ua := r.Header.Get("User-Agent")
	if ua == "" {
		ua = req.UA
	}
	_, err := h.svc.Track(r.Context(), Hit{
		Path:      req.Path,
		VisitorID: req.VisitorID,
		Referrer:  req.Referrer,
		UA:        ua,
		IP:        clientIP(r),
	})
	if err != nil {
		if errors.Is(err, ErrMissingPath) {
			httpx.Fail(w, http.StatusBadRequest, "Missing path")
			return
		}
		h.log.Error("analytics track failed", "error", err)
		httpx.Fail(w, http.StatusInternalServerError, "Failed to track")
		return
	}
	httpx.OK(w, http.StatusCreated, "Tracked", nil)
}

func rangeDays(r *http.Request) int {
	return httpx.IntQuery(r, "range", DefaultRangeDays)
}

func (h *Handler) Traffic(w http.ResponseWriter, r *http.Request) {
	points, err := h.svc.Traffic(r.Context(), rangeDays(r))
	if err != nil {
		h.log.Error("analytics traffic failed", "error", err)
		httpx.Fail(w, http.StatusInternalServerError, "Failed to get traffic")
		return
	}
	httpx.OK(w, http.StatusOK, "Traffic fetched", points)
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.Summary(r.Context(), rangeDays(r))
	if err != nil {
		h.log.Error("analytics summary failed", "error", err)
		httpx.Fail(w, http.StatusInternalServerError, "Failed to get summary")
		return
	}
	httpx.OK(w, http.StatusOK, "Summary fetched", sum)
}

func (h *Handler) Devices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.svc.Devices(r.Context(), rangeDays(r))
	if err != nil {
		h.log.Error("analytics devices failed", "error", err)
		httpx.Fail(w, http.StatusInternalServerError, "Failed to get device breakdown")
		return
	}
	httpx.OK(w, http.StatusOK, "Devices fetched", devices)
}
