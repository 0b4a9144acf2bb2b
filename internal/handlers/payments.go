package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/leadvault/backend/internal/httpx"
	"github.com/leadvault/backend/internal/models"
	"github.com/leadvault/backend/internal/payments"
	"github.com/leadvault/backend/internal/services"
)

// maxWebhookBytes matches the payload cap Stripe documents for webhook events.
const maxWebhookBytes = 65536

// WebhookVerifier authenticates a raw webhook delivery.
type WebhookVerifier interface {
	Verify(payload []byte, signature string) (*models.PaymentEvent, error)
}

// PaymentApplier credits a verified payment event at most once.
type PaymentApplier interface {
	Apply(ctx context.Context, ev *models.PaymentEvent) (services.PaymentOutcome, error)
}

// CheckoutProvider opens and reads checkout sessions.
type CheckoutProvider interface {
	CreateCheckout(ctx context.Context, userID uuid.UUID, credits int) (*payments.CheckoutSession, error)
	GetSession(ctx context.Context, id string) (*payments.CheckoutSession, error)
}

// TransactionSearcher backs the admin transaction views.
type TransactionSearcher interface {
	Search(ctx context.Context, f models.TransactionFilter) ([]*models.CreditTransaction, int, error)
}

// PaymentHandler serves the Stripe webhook, checkout and admin transaction endpoints.
type PaymentHandler struct {
	Verifier     WebhookVerifier
	Applier      PaymentApplier
	Checkout     CheckoutProvider
	Transactions TransactionSearcher
	Logger       *slog.Logger
}

// --- POST /api/stripe/webhook ---

// Webhook acknowledges every authenticated delivery with 200, whatever the
// applier decided, so Stripe stops retrying events that were recorded.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		httpx.WriteJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "payload too large"})
		return
	}
	ev, err := h.Verifier.Verify(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrNotConfigured):
			h.Logger.Error("stripe webhook received but no webhook secret is configured")
			httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "webhook not configured"})
		case errors.Is(err, payments.ErrBadSignature):
			h.Logger.Warn("stripe webhook signature rejected", "error", err)
			httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "Webhook Error: invalid signature"})
		default:
			h.Logger.Warn("stripe webhook payload rejected", "error", err)
			httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "Webhook Error: invalid payload"})
		}
		return
	}

	outcome, err := h.Applier.Apply(r.Context(), ev)
	if err != nil {
		h.Logger.Error("stripe webhook not recorded", "event_id", ev.EventID, "session_id", ev.SessionID, "outcome", outcome, "error", err)
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// --- POST /api/payments/checkout ---

type checkoutRequest struct {
	Credits int `json:"credits"`
}

type checkoutResponse struct {
	URL string `json:"url"`
	ID  string `json:"id"`
}

func (h *PaymentHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req checkoutRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.Error(w, h.Logger, r, err)
		return
	}
	cs, err := h.Checkout.CreateCheckout(r.Context(), p.UserID, req.Credits)
	if err != nil {
		h.checkoutError(w, r, err)
		return
	}
	h.Logger.Info("checkout session created", "user_id", p.UserID, "session_id", cs.ID, "credits", req.Credits)
	httpx.OK(w, http.StatusOK, "Checkout session created", checkoutResponse{URL: cs.URL, ID: cs.ID})
}

// --- GET /api/payments/session/{id} ---

func (h *PaymentHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		httpx.Fail(w, http.StatusBadRequest, "session id is required")
		return
	}
	cs, err := h.Checkout.GetSession(r.Context(), id)
	if err != nil {
		h.checkoutError(w, r, err)
		return
	}
	if !p.IsAdmin && cs.UserID != p.UserID.String() {
		httpx.Fail(w, http.StatusNotFound, "Session not found")
		return
	}
	httpx.OK(w, http.StatusOK, "Session fetched", cs)
}

func (h *PaymentHandler) checkoutError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, payments.ErrInvalidCredits):
		httpx.Fail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, payments.ErrNotConfigured):
		httpx.Fail(w, http.StatusServiceUnavailable, "Payments are not configured")
	default:
		h.Logger.Error("stripe request failed", "path", r.URL.Path, "error", err)
		httpx.Fail(w, http.StatusBadGateway, "Payment provider error")
	}
}

// --- GET /api/payments/transactions[/stripe] (admin) ---

func (h *PaymentHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	h.search(w, r, false)
}

func (h *PaymentHandler) StripeTransactions(w http.ResponseWriter, r *http.Request) {
	h.search(w, r, true)
}

func (h *PaymentHandler) search(w http.ResponseWriter, r *http.Request, stripeOnly bool) {
	f, page, err := parseTransactionFilter(r)
	if err != nil {
		httpx.Error(w, h.Logger, r, err)
		return
	}
	f.StripeOnly = stripeOnly
	list, total, err := h.Transactions.Search(r.Context(), f)
	if err != nil {
		httpx.Error(w, h.Logger, r, err)
		return
	}
	if list == nil {
		list = []*models.CreditTransaction{}
	}
	httpx.OK(w, http.StatusOK, "Transactions fetched", httpx.Page{Page: page, Limit: f.Limit, Total: total, Items: list})
}

func parseTransactionFilter(r *http.Request) (models.TransactionFilter, int, error) {
	q := r.URL.Query()
	page := httpx.IntQuery(r, "page", 1)
	if page < 1 {
		page = 1
	}
	limit, offset := services.Page(page, httpx.IntQuery(r, "limit", services.DefaultPageLimit))
	f := models.TransactionFilter{
		Query:     strings.TrimSpace(q.Get("q")),
		SessionID: strings.TrimSpace(q.Get("sessionId")),
		Reason:    models.Reason(strings.TrimSpace(q.Get("reason"))),
		Limit:     limit,
		Offset:    offset,
	}
	if v := q.Get("userId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, 0, fmt.Errorf("%w: invalid userId", services.ErrValidation)
		}
		f.UserID = &id
	}
	var err error
	if f.From, err = parseDate(q.Get("date_from"), false); err != nil {
		return f, 0, err
	}
	if f.To, err = parseDate(q.Get("date_to"), true); err != nil {
		return f, 0, err
	}
	return f, page, nil
}

// parseDate accepts RFC 3339 or YYYY-MM-DD. A bare end date covers the whole day.
func parseDate(v string, endOfDay bool) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date %q", services.ErrValidation, v)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
