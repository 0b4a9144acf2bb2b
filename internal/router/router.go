package router

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/leadvault/backend/internal/analytics"
	"github.com/leadvault/backend/internal/auth"
	"github.com/leadvault/backend/internal/dashboard"
	"github.com/leadvault/backend/internal/directory"
	"github.com/leadvault/backend/internal/handlers"
	"github.com/leadvault/backend/internal/httpx"
	"github.com/leadvault/backend/internal/metrics"
	"github.com/leadvault/backend/internal/middleware"
)

// Handlers groups every endpoint set the API serves.
type Handlers struct {
	Auth      *auth.Handler
	Lists     *handlers.ListHandler
	Credits   *handlers.CreditHandler
	Payments  *handlers.PaymentHandler
	Directory *directory.Handler
	Seed      *directory.SeedHandler
	Analytics *analytics.Handler
	Dashboard *dashboard.Handler
}

// HealthCheck reports whether the service's dependencies are reachable.
type HealthCheck func(ctx context.Context) error

// New returns the API mux wrapped in request logging.
func New(h Handlers, tokens middleware.TokenValidator, health HealthCheck, log *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	authed := middleware.RequireAuth(tokens, auth.CookieName)
	user := func(fn http.HandlerFunc) http.Handler { return authed(fn) }
	admin := func(fn http.HandlerFunc) http.Handler { return authed(middleware.RequireAdmin(fn)) }

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			if err := health(r.Context()); err != nil {
				httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", metrics.Handler())

	// Public
	mux.HandleFunc("POST /api/auth/signup", h.Auth.Signup)
	mux.HandleFunc("POST /api/auth/login", h.Auth.Login)
	mux.HandleFunc("POST /api/auth/logout", h.Auth.Logout)
	mux.Handle("GET /api/auth/me", user(h.Auth.Me))
	mux.HandleFunc("POST /api/stripe/webhook", h.Payments.Webhook)
	mux.HandleFunc("POST /api/analytics/track", h.Analytics.Track)
	mux.HandleFunc("POST /api/seed", h.Seed.Seed)
	mux.HandleFunc("POST /api/seed/delete-people", h.Seed.DeletePeople)

	// Lists
	mux.Handle("POST /api/lists", user(h.Lists.Create))
	mux.Handle("GET /api/lists", user(h.Lists.List))
	mux.Handle("GET /api/lists/{id}", user(h.Lists.Get))
	mux.Handle("PATCH /api/lists/{id}", user(h.Lists.Rename))
	mux.Handle("DELETE /api/lists/{id}", user(h.Lists.Delete))
	mux.Handle("POST /api/lists/{id}/members", user(h.Lists.AddMember))
	mux.Handle("DELETE /api/lists/{id}/members/{memberId}", user(h.Lists.RemoveMember))

	// Credits and payments
	mux.Handle("GET /api/credits/balance", user(h.Credits.Balance))
	mux.Handle("GET /api/credits/history", user(h.Credits.History))
	mux.Handle("POST /api/payments/checkout", user(h.Payments.CreateCheckout))
	mux.Handle("GET /api/payments/session/{id}", user(h.Payments.GetSession))
	mux.Handle("GET /api/payments/transactions", admin(h.Payments.ListTransactions))
	mux.Handle("GET /api/payments/transactions/stripe", admin(h.Payments.StripeTransactions))

	// Directory
	mux.Handle("GET /api/companies", user(h.Directory.ListCompanies))
	mux.Handle("POST /api/companies", user(h.Directory.CreateCompany))
	mux.Handle("GET /api/companies/{ref}", user(h.Directory.GetCompany))
	mux.Handle("PATCH /api/companies/{ref}", user(h.Directory.UpdateCompany))
	mux.Handle("DELETE /api/companies/{ref}", user(h.Directory.DeleteCompany))
	mux.Handle("GET /api/people", user(h.Directory.ListPeople))
	mux.Handle("POST /api/people", user(h.Directory.CreatePerson))
	mux.Handle("GET /api/people/{ref}", user(h.Directory.GetPerson))
	mux.Handle("PATCH /api/people/{ref}", user(h.Directory.UpdatePerson))
	mux.Handle("DELETE /api/people/{ref}", user(h.Directory.DeletePerson))

	// Admin
	mux.Handle("GET /api/analytics/traffic", admin(h.Analytics.Traffic))
	mux.Handle("GET /api/analytics/summary", admin(h.Analytics.Summary))
	mux.Handle("GET /api/analytics/devices", admin(h.Analytics.Devices))
	mux.Handle("GET /api/admin/users", admin(h.Dashboard.ListUsers))
	mux.Handle("DELETE /api/admin/users/{id}", admin(h.Dashboard.DeleteUser))
	mux.Handle("POST /api/admin/reconcile", admin(h.Dashboard.Reconcile))

	return middleware.RequestLog(log)(mux)
}
