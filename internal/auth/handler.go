package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/leadvault/backend/internal/httpx"
	"github.com/leadvault/backend/internal/models"
)

// CookieName holds the session JWT.
const CookieName = "token"

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

// PrincipalFunc returns the caller resolved by the auth middleware.
type PrincipalFunc func(r *http.Request) (*models.Principal, bool)

type Handler struct {
	svc          Service
	log          *slog.Logger
	principal    PrincipalFunc
	secureCookie bool
}

func NewHandler(svc Service, principal PrincipalFunc, secureCookie bool, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log, principal: principal, secureCookie: secureCookie}
}

func (h *Handler) setCookie(w http.ResponseWriter, token string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	u, token, err := h.svc.Signup(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmailRequired), errors.Is(err, ErrWeakPassword), errors.Is(err, ErrDuplicateEmail):
			httpx.Fail(w, http.StatusBadRequest, err.Error())
		default:
			h.log.Error("signup failed", "error", err)
			httpx.Fail(w, http.StatusInternalServerError, "Internal Server Error")
		}
		return
	}
	h.setCookie(w, token, TokenTTL)
	h.log.Info("user signed up", "user_id", u.ID)
	httpx.OK(w, http.StatusCreated, "User created", sessionResponse{User: u, Token: "(stored in cookie)"})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Email == "" || req.Password == "" {
		httpx.Fail(w, http.StatusBadRequest, "email and password are required")
		return
	}
	u, token, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			httpx.Fail(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		h.log.Error("login failed", "error", err)
		httpx.Fail(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	h.setCookie(w, token, TokenTTL)
	httpx.OK(w, http.StatusOK, "Login successful", sessionResponse{User: u, Token: "(stored in cookie)"})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.setCookie(w, "", -time.Second)
	httpx.OK(w, http.StatusOK, "Logged out", nil)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(r)
	if !ok {
		httpx.Fail(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	u, err := h.svc.Me(r.Context(), p.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpx.Fail(w, http.StatusNotFound, "User not found")
			return
		}
		h.log.Error("me failed", "error", err)
		httpx.Fail(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	httpx.OK(w, http.StatusOK, "User fetched", u)
}
