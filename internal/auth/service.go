package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"github.com/leadvault/backend/internal/models"
)

var (
	// ErrDuplicateEmail is returned when registering with an email that already exists.
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrEmailRequired      = errors.New("email is required")
	ErrWeakPassword       = errors.New("password is required (min 6 chars)")
)

const (
	MinPasswordLength = 6
	TokenTTL          = 7 * 24 * time.Hour
)

type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

type Service interface {
	Signup(ctx context.Context, email, password string) (*models.User, string, error)
	Login(ctx context.Context, email, password string) (*models.User, string, error)
	ValidateToken(ctx context.Context, token string) (*models.Principal, error)
	Me(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type service struct {
	users  UserStore
	secret []byte
	now    func() time.Time
}

func NewService(users UserStore, secret string) *service {
	return &service{users: users, secret: []byte(secret), now: time.Now}
}

// Ensure service implements Service at compile time.
var _ Service = (*service)(nil)

type claims struct {
	jwt.RegisteredClaims
	IsAdmin bool `json:"isAdmin"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *service) Signup(ctx context.Context, email, password string) (*models.User, string, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, "", ErrEmailRequired
	}
	if strings.TrimSpace(password) == "" || len(password) < MinPasswordLength {
		return nil, "", ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", err
	}
	u := &models.User{Email: email, PasswordHash: string(hash)}
	if err := s.users.Create(ctx, u); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, "", ErrDuplicateEmail
		}
		return nil, "", err
	}
	token, err := s.issueToken(u)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

func (s *service) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}
	token, err := s.issueToken(u)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

func (s *service) issueToken(u *models.User) (string, error) {
	now := s.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		IsAdmin: u.IsAdmin,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

// ValidateToken trusts the isAdmin claim; role changes take effect on the
// next login.
func (s *service) ValidateToken(ctx context.Context, token string) (*models.Principal, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid {
		return nil, ErrInvalidToken
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return &models.Principal{UserID: id, IsAdmin: c.IsAdmin}, nil
}

func (s *service) Me(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.users.GetByID(ctx, id)
}
