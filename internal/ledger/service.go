// Package ledger owns every change to a user's credit balance. Each change
// updates users.credits and appends a credit_transactions row in the same
// database transaction, so the balance always equals the starting balance
// plus the sum of the log.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/leadvault/backend/internal/metrics"
	"github.com/leadvault/backend/internal/models"
)

var (
	// ErrInsufficientCredits is returned when a deduction would take the balance below zero.
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrUserNotFound        = errors.New("user not found")
	ErrInvalidAmount       = errors.New("amount must be positive")
	// ErrDuplicateSession is returned when a credit carries a payment session
	// id that already has a transaction. Nothing was changed.
	ErrDuplicateSession = errors.New("payment session already recorded")
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// UserStore is the balance side of the ledger.
type UserStore interface {
	GetCreditsForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (int, error)
	DeductCredits(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int) (newBalance int, err error)
	AddCredits(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int) (newBalance int, err error)
	GetCredits(ctx context.Context, id uuid.UUID) (credits, initial int, err error)
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
}

// TransactionStore is the append-only log side of the ledger.
type TransactionStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, c *models.CreditTransaction) error
	Create(ctx context.Context, c *models.CreditTransaction) error
	FindBySessionID(ctx context.Context, sessionID string) (*models.CreditTransaction, error)
	ListByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.CreditTransaction, error)
	SumByUserID(ctx context.Context, userID uuid.UUID) (int, error)
}

type Service struct {
	Pool         TxBeginner
	Users        UserStore
	Transactions TransactionStore
	Logger       *slog.Logger
}

func NewService(pool TxBeginner, users UserStore, txns TransactionStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{Pool: pool, Users: users, Transactions: txns, Logger: logger}
}

// DeductCredits locks the user row, checks the balance, decrements it and
// records a transaction with change = -amount. On ErrInsufficientCredits
// nothing is written.
func (s *Service) DeductCredits(ctx context.Context, userID uuid.UUID, amount int, reason models.Reason, meta models.CreditMeta) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin deduct: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := s.Users.GetCreditsForUpdate(ctx, tx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("lock user: %w", err)
	}
	if current < amount {
		metrics.InsufficientCredits.WithLabelValues(string(reason)).Inc()
		return 0, ErrInsufficientCredits
	}

	newBalance, err := s.Users.DeductCredits(ctx, tx, userID, amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			metrics.InsufficientCredits.WithLabelValues(string(reason)).Inc()
			return 0, ErrInsufficientCredits
		}
		return 0, fmt.Errorf("deduct credits: %w", err)
	}

	if err := s.record(ctx, tx, userID, -amount, newBalance, reason, meta); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit deduct: %w", err)
	}
	metrics.CreditsDeducted.WithLabelValues(string(reason)).Add(float64(amount))
	return newBalance, nil
}

// AddCredits increments the balance and records change = +amount. A meta
// SessionID that is already on file yields ErrDuplicateSession and no change.
func (s *Service) AddCredits(ctx context.Context, userID uuid.UUID, amount int, reason models.Reason, meta models.CreditMeta) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin add: %w", err)
	}
	defer tx.Rollback(ctx)

	newBalance, err := s.Users.AddCredits(ctx, tx, userID, amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("add credits: %w", err)
	}

	if err := s.record(ctx, tx, userID, amount, newBalance, reason, meta); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateSession
		}
		return 0, fmt.Errorf("commit add: %w", err)
	}
	metrics.CreditsAdded.WithLabelValues(string(reason)).Add(float64(amount))
	return newBalance, nil
}

func (s *Service) record(ctx context.Context, tx pgx.Tx, userID uuid.UUID, change, balance int, reason models.Reason, meta models.CreditMeta) error {
	entry := &models.CreditTransaction{
		ID:           uuid.New(),
		UserID:       &userID,
		Change:       change,
		Reason:       reason,
		Meta:         meta,
		BalanceAfter: &balance,
	}
	if err := s.Transactions.CreateTx(ctx, tx, entry); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateSession
		}
		// The balance update is rolled back with the transaction, but the
		// caller's operation is now in an unknown state.
		s.Logger.Error("credit transaction insert failed; balance change rolled back",
			"user_id", userID, "change", change, "reason", reason, "error", err)
		return fmt.Errorf("record transaction: %w", err)
	}
	return nil
}

// RecordAudit appends a zero-change row, used for rejected or failed
// operations that must leave a trace without touching the balance. A userID
// with no matching user yields ErrUserNotFound and nothing is written.
func (s *Service) RecordAudit(ctx context.Context, userID *uuid.UUID, reason models.Reason, meta models.CreditMeta) error {
	err := s.Transactions.Create(ctx, &models.CreditTransaction{
		ID:     uuid.New(),
		UserID: userID,
		Change: 0,
		Reason: reason,
		Meta:   meta,
	})
	switch {
	case isUniqueViolation(err):
		return ErrDuplicateSession
	case isForeignKeyViolation(err):
		return ErrUserNotFound
	}
	return err
}

// FindBySessionID returns the transaction keyed by a payment session, or nil.
func (s *Service) FindBySessionID(ctx context.Context, sessionID string) (*models.CreditTransaction, error) {
	return s.Transactions.FindBySessionID(ctx, sessionID)
}

func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID) (int, error) {
	credits, _, err := s.Users.GetCredits(ctx, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrUserNotFound
	}
	return credits, err
}

// GetHistory returns a page of the user's transactions, newest first.
func (s *Service) GetHistory(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.CreditTransaction, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	list, err := s.Transactions.ListByUserID(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*models.CreditTransaction{}
	}
	return list, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
