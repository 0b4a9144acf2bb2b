package models

import (
	"time"

	"github.com/google/uuid"
)

// Reason tags every credit transaction with the operation that produced it.
type Reason string

const (
	ReasonCreateList             Reason = "create_list"
	ReasonRefundCreateListFailed Reason = "refund_create_list_failed"
	ReasonRefundListDeleted      Reason = "refund_list_deleted"

	ReasonAddMember                       Reason = "add_member"
	ReasonRefundAddMemberPersonNotFound   Reason = "refund_add_member_person_not_found"
	ReasonRefundAddMemberCompanyNotFound  Reason = "refund_add_member_company_not_found"
	ReasonRefundAddMemberFailedResolve    Reason = "refund_add_member_failed_resolve"
	ReasonRefundAddMemberException        Reason = "refund_add_member_exception"
	ReasonRefundAddMemberDuplicate        Reason = "refund_add_member_duplicate"
	ReasonRefundMemberRemoved             Reason = "refund_member_removed"

	ReasonStripePurchase            Reason = "stripe_purchase"
	ReasonStripePurchaseInvalidMeta Reason = "stripe_purchase_invalid_meta"
	ReasonStripePurchaseFailed      Reason = "stripe_purchase_failed"

	ReasonAdminAdjustment Reason = "admin_adjustment"
)

// IsStripe reports whether the reason belongs to the payment flow.
func (r Reason) IsStripe() bool {
	switch r {
	case ReasonStripePurchase, ReasonStripePurchaseInvalidMeta, ReasonStripePurchaseFailed:
		return true
	}
	return false
}

// CreditMeta is stored as JSONB next to each transaction. The populated
// fields depend on Reason:
//
//	list charges/refunds:   ListID, ListName
//	member charges/refunds: ListID, MemberID, PersonID, CompanyID, Email, Error
//	stripe_purchase:        SessionID, AmountTotal, Currency, PaymentStatus
//	stripe_purchase_invalid_meta: SessionID, UserRef, Error
//	stripe_purchase_failed: FailedSessionID, UserRef, Error
//	admin_adjustment:       Note
//
// SessionID is the payment idempotency key and is unique across the table.
type CreditMeta struct {
	ListID    *uuid.UUID `json:"listId,omitempty"`
	ListName  string     `json:"listName,omitempty"`
	MemberID  *uuid.UUID `json:"memberId,omitempty"`
	PersonID  *uuid.UUID `json:"personId,omitempty"`
	CompanyID *uuid.UUID `json:"companyId,omitempty"`
	Email     string     `json:"email,omitempty"`

	SessionID       string `json:"sessionId,omitempty"`
	FailedSessionID string `json:"failedSessionId,omitempty"`
	UserRef         string `json:"userRef,omitempty"`
	AmountTotal     int64  `json:"amountTotal,omitempty"`
	Currency        string `json:"currency,omitempty"`
	PaymentStatus   string `json:"paymentStatus,omitempty"`

	Note  string `json:"note,omitempty"`
	Error string `json:"error,omitempty"`
}

// CreditTransaction is one append-only row of the credit log. Change is
// signed: negative for charges, positive for credits and refunds, zero for
// audit records.
type CreditTransaction struct {
	ID           uuid.UUID  `json:"id"`
	UserID       *uuid.UUID `json:"user_id,omitempty"`
	Change       int        `json:"change"`
	Reason       Reason     `json:"reason"`
	Meta         CreditMeta `json:"meta"`
	BalanceAfter *int       `json:"balance_after,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// TransactionFilter narrows the admin transaction search.
type TransactionFilter struct {
	Query      string
	UserID     *uuid.UUID
	SessionID  string
	Reason     Reason
	StripeOnly bool
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}
