// Package payments adapts Stripe Checkout to the credit flow: it verifies
// webhook deliveries into models.PaymentEvent and creates checkout sessions
// that carry the buyer and credit count in their metadata.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/leadvault/backend/internal/models"
)

var (
	ErrNotConfigured  = errors.New("stripe is not configured")
	ErrBadSignature   = errors.New("invalid webhook signature")
	ErrInvalidCredits = errors.New("credits must be between 1 and " + strconv.Itoa(models.MaxPurchaseCredits))
)

// Metadata keys written on every checkout session.
const (
	MetaUserID  = "userId"
	MetaCredits = "credits"
)

// SessionAPI is the subset of the Stripe checkout session client we call.
type SessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type Config struct {
	SecretKey      string
	WebhookSecret  string
	PriceCents     int64
	FrontendOrigin string
	AppName        string
}

type Stripe struct {
	cfg      Config
	sessions SessionAPI
}

// New builds the adapter on the live Stripe API. sessions may be nil.
func New(cfg Config, sessions SessionAPI) *Stripe {
	if sessions == nil && cfg.SecretKey != "" {
		sessions = &session.Client{B: stripe.GetBackend(stripe.APIBackend), Key: cfg.SecretKey}
	}
	cfg.FrontendOrigin = strings.TrimRight(cfg.FrontendOrigin, "/")
	return &Stripe{cfg: cfg, sessions: sessions}
}

// Verify checks the Stripe-Signature header and decodes the event. Only
// checkout session events carry session fields; other types come back with
// just EventID and Type set.
func (s *Stripe) Verify(payload []byte, signature string) (*models.PaymentEvent, error) {
	if s.cfg.WebhookSecret == "" {
		return nil, ErrNotConfigured
	}
	if signature == "" {
		return nil, fmt.Errorf("%w: missing header", ErrBadSignature)
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signature, s.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	out := &models.PaymentEvent{EventID: ev.ID, Type: string(ev.Type)}
	if !strings.HasPrefix(out.Type, "checkout.session.") || ev.Data == nil {
		return out, nil
	}
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &cs); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}
	out.SessionID = cs.ID
	out.UserRef = cs.Metadata[MetaUserID]
	out.CreditsRaw = cs.Metadata[MetaCredits]
	out.AmountTotal = cs.AmountTotal
	out.Currency = string(cs.Currency)
	out.PaymentStatus = string(cs.PaymentStatus)
	return out, nil
}

// CheckoutSession is the part of a Stripe session the frontend needs.
type CheckoutSession struct {
	ID            string `json:"id"`
	URL           string `json:"url,omitempty"`
	Status        string `json:"status,omitempty"`
	PaymentStatus string `json:"paymentStatus,omitempty"`
	AmountTotal   int64  `json:"amountTotal"`
	Currency      string `json:"currency,omitempty"`
	UserID        string `json:"userId,omitempty"`
	Credits       int    `json:"credits,omitempty"`
	CustomerEmail string `json:"customerEmail,omitempty"`
}

func toCheckoutSession(cs *stripe.CheckoutSession) *CheckoutSession {
	out := &CheckoutSession{
		ID:            cs.ID,
		URL:           cs.URL,
		Status:        string(cs.Status),
		PaymentStatus: string(cs.PaymentStatus),
		AmountTotal:   cs.AmountTotal,
		Currency:      string(cs.Currency),
		UserID:        cs.Metadata[MetaUserID],
	}
	out.Credits, _ = strconv.Atoi(cs.Metadata[MetaCredits])
	if cs.CustomerDetails != nil {
		out.CustomerEmail = cs.CustomerDetails.Email
	}
	return out
}

// CreateCheckout opens a one-off card payment for credits * PriceCents.
func (s *Stripe) CreateCheckout(ctx context.Context, userID uuid.UUID, credits int) (*CheckoutSession, error) {
	if s.sessions == nil || s.cfg.PriceCents <= 0 {
		return nil, ErrNotConfigured
	}
	if credits <= 0 || credits > models.MaxPurchaseCredits {
		return nil, ErrInvalidCredits
	}
	total := s.cfg.PriceCents * int64(credits)
	appName := s.cfg.AppName
	if appName == "" {
		appName = "App"
	}

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(string(stripe.CurrencyUSD)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripe.String(fmt.Sprintf("%d credits for %s", credits, appName)),
					Description: stripe.String(fmt.Sprintf("Purchase %d credits", credits)),
				},
				UnitAmount: stripe.Int64(total),
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL: stripe.String(s.cfg.FrontendOrigin + "/payments/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(s.cfg.FrontendOrigin + "/payments/cancel"),
		Metadata: map[string]string{
			MetaUserID:  userID.String(),
			MetaCredits: strconv.Itoa(credits),
		},
	}
	params.Context = ctx
	cs, err := s.sessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return toCheckoutSession(cs), nil
}

func (s *Stripe) GetSession(ctx context.Context, id string) (*CheckoutSession, error) {
	if s.sessions == nil {
		return nil, ErrNotConfigured
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	cs, err := s.sessions.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("get checkout session: %w", err)
	}
	return toCheckoutSession(cs), nil
}
