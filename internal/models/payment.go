package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// CallbackStatus is the outcome reported by the payment provider
type CallbackStatus string

const (
	CallbackSuccess CallbackStatus = "success"
	CallbackFailed  CallbackStatus = "failed"
)

// Normalize lower-cases provider status strings such as "SUCCESS"
func (s CallbackStatus) Normalize() CallbackStatus {
	return CallbackStatus(strings.ToLower(strings.TrimSpace(string(s))))
}

// CallbackOutcome records what the engine did with a callback
type CallbackOutcome string

const (
	OutcomeApplied   CallbackOutcome = "APPLIED"   // paymentStatus moved
	OutcomeNoop      CallbackOutcome = "NOOP"      // booking already in the reported state
	OutcomeFlagged   CallbackOutcome = "FLAGGED"   // left for manual reconciliation
	OutcomeDuplicate CallbackOutcome = "DUPLICATE" // transactionId already processed
)

// PaymentCallback is one row of the idempotency ledger keyed by provider transaction id
type PaymentCallback struct {
	TransactionID string          `json:"transaction_id" db:"transaction_id"`
	BookingID     *uuid.UUID      `json:"booking_id,omitempty" db:"booking_id"`
	Reference     string          `json:"reference" db:"reference"`
	Status        CallbackStatus  `json:"status" db:"status"`
	Amount        int64           `json:"amount" db:"amount"`
	Outcome       CallbackOutcome `json:"outcome" db:"outcome"`
	Detail        *string         `json:"detail,omitempty" db:"detail"`
	ReceivedAt    time.Time       `json:"received_at" db:"received_at"`
}

// PaymentTransition is the guarded booking update applied with a callback.
// The update only lands if the booking still has status Booking and payment status From.
type PaymentTransition struct {
	BookingID uuid.UUID
	Booking   BookingStatus
	From      PaymentStatus
	To        PaymentStatus
	Flag      bool
	PaidAt    *time.Time
}

// ============================================================================
// REQUEST / RESPONSE TYPES
// ============================================================================

// PaymentCallbackRequest is the provider's notification body
type PaymentCallbackRequest struct {
	TransactionID string         `json:"transaction_id" binding:"required"`
	Reference     string         `json:"reference" binding:"required"`
	Status        CallbackStatus `json:"status" binding:"required"`
	Amount        int64          `json:"amount" binding:"gte=0"`
	Signature     string         `json:"signature" binding:"required"`
}

// PaymentCallbackAck is always returned with 200 once the signature is valid
type PaymentCallbackAck struct {
	Acknowledged  bool            `json:"acknowledged"`
	TransactionID string          `json:"transaction_id"`
	Outcome       CallbackOutcome `json:"outcome"`
	PaymentStatus PaymentStatus   `json:"payment_status,omitempty"`
	Note          string          `json:"note,omitempty"`
}
