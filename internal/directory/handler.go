// Package directory serves the company and people records that lists hold.
package directory

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/leadvault/backend/internal/httpx"
	"github.com/leadvault/backend/internal/models"
	"github.com/leadvault/backend/internal/services"
)

// Service is implemented by *services.Directory. Payloads are passed raw so
// they can be checked against the JSON schemas before decoding.
type Service interface {
	CreateCompany(ctx context.Context, p models.Principal, raw json.RawMessage) (*models.Company, error)
	ListCompanies(ctx context.Context, query string, page, limit int) ([]*models.Company, int, error)
	GetCompany(ctx context.Context, ref string) (*models.Company, error)
	UpdateCompany(ctx context.Context, p models.Principal, ref string, raw json.RawMessage) (*models.Company, error)
	DeleteCompany(ctx context.Context, p models.Principal, ref string) error

	CreatePerson(ctx context.Context, raw json.RawMessage) (*models.Person, error)
	ListPeople(ctx context.Context, query, companyExternalID string, page, limit int) ([]*models.Person, int, error)
	GetPerson(ctx context.Context, ref string) (*models.Person, error)
	UpdatePerson(ctx context.Context, ref string, raw json.RawMessage) (*models.Person, error)
	DeletePerson(ctx context.Context, p models.Principal, ref string) error
}

// PrincipalFunc returns the caller resolved by the auth middleware.
type PrincipalFunc func(r *http.Request) (*models.Principal, bool)

type Handler struct {
	svc       Service
	principal PrincipalFunc
	log       *slog.Logger
}

func NewHandler(svc Service, principal PrincipalFunc, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, principal: principal, log: log}
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (models.Principal, bool) {
	p, ok := h.principal(r)
	if !ok {
		httpx.Fail(w, http.StatusUnauthorized, "Unauthorized")
		return models.Principal{}, false
	}
	return *p, true
}

func (h *Handler) body(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	var raw json.RawMessage
	if err := httpx.Decode(w, r, &raw); err != nil {
		httpx.Error(w, h.log, r, err)
		return nil, false
	}
	return raw, true
}

func pageParams(r *http.Request) (page, limit int) {
	page = httpx.IntQuery(r, "page", 1)
	if page < 1 {
		page = 1
	}
	limit, _ = services.Page(page, httpx.IntQuery(r, "limit", services.DefaultPageLimit))
	return page, limit
}

// Companies

func (h *Handler) ListCompanies(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	list, total, err := h.svc.ListCompanies(r.Context(), strings.TrimSpace(r.URL.Query().Get("q")), page, limit)
	if err != nil {
		httpx.Error(w, h.log, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "Companies fetched", httpx.Page{Page: page, Limit: limit, Total: total, Items: list})
}

func (h *Handler) GetCompany(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.GetCompany(r.Context(), r.PathValue("ref"))
	if err != nil {
		httpx.Error(w, h.log, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "Company fetched", c)
}

func (h *Handler) CreateCompany(w http.ResponseWriter, r *http.Request) {
	p, ok := h.caller(w, r)
	if !ok {
		return
	}
	raw, ok := h.body(w, r)
	if !ok {
		return
	}
	c, err := h.svc.CreateCompany(r.Context(), p, raw)
	if err != nil {
		httpx.Error(w, h.log, r, err)
		return
	}
	httpx.OK(w, http.StatusCreated, "Company saved", c)
}

func (h *Handler) UpdateCompany(w http.ResponseWriter, r *http.Request) {
	p, ok := h.caller(w, r)
	if !ok {
		return
	}
	raw, ok := h.body(w, r)
	if !ok {
		return
	}
	c, err := h.svc.UpdateCompany(r.Context(), p, r.PathValue("ref"), raw)
	if err != nil {
		httpx.Error(w, h.log, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "Company updated", c)
}

func (h *Handler) DeleteCompany(w http.ResponseWriter, r *http.Request) {
	p, ok := h.caller(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteCompany(r.Context(), p, r.PathValue("ref")); err != nil {
		httpx.Error(w, h.log, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "Company deleted", nil)
}

// People

func (h *Handler) ListPeople(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	q := r.URL.Query()
	company := q.Get("companyExternalId")
	if company == "" {
		company = q.Get("company")
	}
	list, total, err := h.svc.ListPeople(r.Context(), strings.TrimSpace(q.Get("q")), strings.TrimSpace(company), page, limit)
	if err != nil {
		httpx.Error(w, h.log, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "People fetched", httpx.Page{Page: page, Limit: limit, Total: total, Items: list})
}

func (h *Handler) GetPerson(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.GetPerson(r.Context(), r.PathValue("ref"))
	if err != nil {
		httpx.Error(w, h.log, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "Person fetched", p)
}

func (h *Handler) CreatePerson(w http.ResponseWriter, r *http.Request) {
	raw, ok := h.body(w, r)
	if !ok {
		return
	}
	p, err := h.svc.CreatePerson(r.Context(), raw)
	if err != nil {
		httpx.Error(w, h.log, r, err)
		return
	}
	httpx.OK(w, http.StatusCreated, "Person created", p)
}

func (h *Handler) UpdatePerson(w http.ResponseWriter, r *http.Request) {
	raw, ok := h.body(w, r)
	if !ok {
		return
	}
	p, err := h.svc.UpdatePerson(r.Context(), r.PathValue("ref"), raw)
	if err != nil {
		httpx.Error(w, h.log, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "Person updated", p)
}

func (h *Handler) DeletePerson(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeletePerson(r.Context(), caller, r.PathValue("ref")); err != nil {
		httpx.Error(w, h.log, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "Person deleted", nil)
}
