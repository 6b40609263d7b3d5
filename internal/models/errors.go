package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ============================================================================
// SENTINEL ERRORS
// ============================================================================

var (
	ErrSeatUnavailable   = errors.New("seat unavailable")
	ErrHoldExpired       = errors.New("hold expired")
	ErrHoldConsumed      = errors.New("hold already consumed")
	ErrHoldNotFound      = errors.New("hold not found")
	ErrPnrExhausted      = errors.New("unable to generate a unique PNR")
	ErrInvalidSignature  = errors.New("invalid payment signature")
	ErrAmountMismatch    = errors.New("payment amount does not match booking total")
	ErrInvalidTransition = errors.New("invalid status transition")

	ErrTripNotFound       = errors.New("trip not found")
	ErrTripExists         = errors.New("trip already scheduled")
	ErrTripHalted         = errors.New("trip inventory halted after integrity violation")
	ErrTripBusy           = errors.New("trip has active holds")
	ErrSeatDiverged       = errors.New("persisted seat no longer matches inventory")
	ErrUnknownSeat        = errors.New("seat not in trip catalog")
	ErrBookingNotFound    = errors.New("booking not found")
	ErrSettlementNotFound = errors.New("settlement not found")
	ErrAlreadySettled     = errors.New("period already settled")
	ErrDisputeNotFound    = errors.New("dispute not found")
	ErrForbidden          = errors.New("principal not allowed to act on this resource")
)

// ValidationError reports a malformed request that never reached inventory.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError
func NewValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// SeatConflictError lists the seats that were not FREE when a reservation was attempted.
type SeatConflictError struct {
	TripID string
	Seats  []string
}

func (e *SeatConflictError) Error() string {
	return fmt.Sprintf("seats %s on trip %s no longer available, please reselect",
		strings.Join(e.Seats, ","), e.TripID)
}

func (e *SeatConflictError) Unwrap() error { return ErrSeatUnavailable }

// HoldError ties a terminal hold condition to the hold and trip it happened on.
type HoldError struct {
	HoldID uuid.UUID
	TripID string
	Err    error
}

func (e *HoldError) Error() string {
	return fmt.Sprintf("hold %s on trip %s: %v", e.HoldID, e.TripID, e.Err)
}

func (e *HoldError) Unwrap() error { return e.Err }

// TransitionError is returned when a status change is outside the entity's forward set.
type TransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s %s: cannot move from %s to %s", e.Entity, e.ID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// IntegrityError signals a broken inventory invariant. The trip stops accepting mutations.
type IntegrityError struct {
	TripID string
	Detail string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation on trip %s: %s", e.TripID, e.Detail)
}

func (e *IntegrityError) Unwrap() error { return ErrTripHalted }
