package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/leadvault/backend/internal/models"
)

const testSecret = "whsec_test_secret"

func sign(t *testing.T, payload string) string {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testSecret,
		Timestamp: time.Now(),
	})
	return signed.Header
}

const completedEvent = `{
  "id": "evt_1",
  "object": "event",
  "type": "checkout.session.completed",
  "data": {"object": {
    "id": "cs_test_1",
    "object": "checkout.session",
    "amount_total": 500,
    "currency": "usd",
    "payment_status": "paid",
    "metadata": {"userId": "6f1c2a7e-8e3b-4c47-9a53-3f0e3d1b2c4d", "credits": "50"}
  }}
}`

func TestVerify_CheckoutCompleted(t *testing.T) {
	s := New(Config{WebhookSecret: testSecret}, nil)

	ev, err := s.Verify([]byte(completedEvent), sign(t, completedEvent))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", ev.EventID)
	assert.Equal(t, models.EventCheckoutCompleted, ev.Type)
	assert.Equal(t, "cs_test_1", ev.SessionID)
	assert.Equal(t, "6f1c2a7e-8e3b-4c47-9a53-3f0e3d1b2c4d", ev.UserRef)
	assert.Equal(t, "50", ev.CreditsRaw)
	assert.EqualValues(t, 500, ev.AmountTotal)
	assert.Equal(t, "usd", ev.Currency)
	assert.Equal(t, "paid", ev.PaymentStatus)
}

func TestVerify_OtherEventType(t *testing.T) {
	s := New(Config{WebhookSecret: testSecret}, nil)
	payload := `{"id":"evt_2","object":"event","type":"invoice.paid","data":{"object":{"id":"in_1"}}}`

	ev, err := s.Verify([]byte(payload), sign(t, payload))
	require.NoError(t, err)
	assert.Equal(t, "invoice.paid", ev.Type)
	assert.Empty(t, ev.SessionID)
}

func TestVerify_Rejects(t *testing.T) {
	s := New(Config{WebhookSecret: testSecret}, nil)

	_, err := s.Verify([]byte(completedEvent), "")
	assert.ErrorIs(t, err, ErrBadSignature)

	_, err = s.Verify([]byte(completedEvent), "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, ErrBadSignature)

	tampered := sign(t, completedEvent)
	_, err = s.Verify([]byte(completedEvent+" "), tampered)
	assert.ErrorIs(t, err, ErrBadSignature)

	_, err = New(Config{}, nil).Verify([]byte(completedEvent), sign(t, completedEvent))
	assert.ErrorIs(t, err, ErrNotConfigured)
}

type fakeSessions struct {
	created *stripe.CheckoutSessionParams
	err     error
}

func (f *fakeSessions) New(p *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = p
	return &stripe.CheckoutSession{
		ID:          "cs_new",
		URL:         "https://checkout.stripe.com/c/pay/cs_new",
		AmountTotal: *p.LineItems[0].PriceData.UnitAmount,
		Currency:    stripe.CurrencyUSD,
		Metadata:    p.Metadata,
	}, nil
}

func (f *fakeSessions) Get(id string, _ *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return &stripe.CheckoutSession{
		ID:            id,
		Status:        stripe.CheckoutSessionStatusComplete,
		PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid,
		Metadata:      map[string]string{MetaCredits: "20"},
	}, nil
}

func TestCreateCheckout(t *testing.T) {
	fake := &fakeSessions{}
	s := New(Config{PriceCents: 10, FrontendOrigin: "http://localhost:3000/", AppName: "LeadVault"}, fake)
	user := uuid.New()

	cs, err := s.CreateCheckout(context.Background(), user, 50)
	require.NoError(t, err)
	assert.Equal(t, "cs_new", cs.ID)
	assert.EqualValues(t, 500, cs.AmountTotal)
	assert.Equal(t, 50, cs.Credits)
	assert.Equal(t, user.String(), cs.UserID)

	require.NotNil(t, fake.created)
	assert.Equal(t, "http://localhost:3000/payments/cancel", *fake.created.CancelURL)
	assert.Equal(t, "http://localhost:3000/payments/success?session_id={CHECKOUT_SESSION_ID}", *fake.created.SuccessURL)
	assert.Equal(t, "50 credits for LeadVault", *fake.created.LineItems[0].PriceData.ProductData.Name)

	_, err = s.CreateCheckout(context.Background(), user, 0)
	assert.ErrorIs(t, err, ErrInvalidCredits)
	_, err = s.CreateCheckout(context.Background(), user, models.MaxPurchaseCredits+1)
	assert.ErrorIs(t, err, ErrInvalidCredits)

	_, err = New(Config{}, fake).CreateCheckout(context.Background(), user, 5)
	assert.ErrorIs(t, err, ErrNotConfigured)

	fake.err = errors.New("card_declined")
	_, err = s.CreateCheckout(context.Background(), user, 5)
	assert.Error(t, err)
}

func TestGetSession(t *testing.T) {
	s := New(Config{PriceCents: 10}, &fakeSessions{})

	cs, err := s.GetSession(context.Background(), "cs_abc")
	require.NoError(t, err)
	assert.Equal(t, "cs_abc", cs.ID)
	assert.Equal(t, "complete", cs.Status)
	assert.Equal(t, "paid", cs.PaymentStatus)
	assert.Equal(t, 20, cs.Credits)
}
