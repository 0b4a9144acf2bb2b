package models

// PaymentEvent is a verified checkout notification from the payment provider,
// reduced to the fields the credit flow needs. UserRef and Credits come from
// the session metadata as sent, so both may be malformed.
type PaymentEvent struct {
	EventID       string
	Type          string
	SessionID     string
	UserRef       string
	CreditsRaw    string
	AmountTotal   int64
	Currency      string
	PaymentStatus string
}

// MaxPurchaseCredits bounds a single checkout so the charged amount and the
// resulting balance stay well inside int64 cents and the INTEGER column.
const MaxPurchaseCredits = 1_000_000

// Checkout event types the payment flow reacts to.
const (
	EventCheckoutCompleted             = "checkout.session.completed"
	EventCheckoutAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
)
