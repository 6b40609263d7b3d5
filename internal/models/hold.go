package models

import (
	"time"

	"github.com/google/uuid"
)

// HoldStatus is the lifecycle of a temporary seat reservation
type HoldStatus string

const (
	HoldActive   HoldStatus = "ACTIVE"   // Seats HELD, waiting for a booking
	HoldExpired  HoldStatus = "EXPIRED"  // Deadline passed, seats FREE again
	HoldConsumed HoldStatus = "CONSUMED" // Seats SOLD to a booking
	HoldReleased HoldStatus = "RELEASED" // Given up by the caller, seats FREE again
)

var holdTransitions = transitions[HoldStatus]{
	HoldActive:   {HoldExpired, HoldConsumed, HoldReleased},
	HoldExpired:  {},
	HoldConsumed: {},
	HoldReleased: {},
}

// CanTransitionTo reports whether the hold state machine allows s -> next
func (s HoldStatus) CanTransitionTo(next HoldStatus) bool {
	return holdTransitions.allows(s, next)
}

// IsTerminal reports whether the hold can no longer change
func (s HoldStatus) IsTerminal() bool {
	return holdTransitions.terminal(s)
}

// Hold is a time-bounded reservation of one or more seats on a trip
type Hold struct {
	ID          uuid.UUID   `json:"hold_id" db:"id"`
	TripID      string      `json:"trip_id" db:"trip_id"`
	SeatNumbers StringArray `json:"seat_numbers" db:"seat_numbers"`
	Status      HoldStatus  `json:"status" db:"status"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	ExpiresAt   time.Time   `json:"expires_at" db:"expires_at"`
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"`
	CreatedBy   *uuid.UUID  `json:"created_by,omitempty" db:"created_by"`
	BookingID   *uuid.UUID  `json:"booking_id,omitempty" db:"booking_id"`
}

// IsExpiredAt uses wall-clock comparison: a hold is usable up to and including ExpiresAt
func (h *Hold) IsExpiredAt(now time.Time) bool {
	return now.After(h.ExpiresAt)
}

// DueForSweep reports whether the background sweep should expire the hold
func (h *Hold) DueForSweep(now time.Time) bool {
	return h.Status == HoldActive && !h.ExpiresAt.After(now)
}

// HasSeat reports whether seat is part of the hold
func (h *Hold) HasSeat(seat string) bool {
	for _, s := range h.SeatNumbers {
		if s == seat {
			return true
		}
	}
	return false
}

// ============================================================================
// REQUEST / RESPONSE TYPES
// ============================================================================

// CreateHoldRequest is the body of POST /holds
type CreateHoldRequest struct {
	TripID      string   `json:"trip_id" binding:"required"`
	SeatNumbers []string `json:"seat_numbers" binding:"required,min=1,dive,seat_number"`
	TTLMinutes  *int     `json:"ttl_minutes,omitempty"`
}

// Validate checks seat count and duplicates against the configured maximum
func (r *CreateHoldRequest) Validate(maxSeats int) error {
	if len(r.SeatNumbers) == 0 {
		return NewValidationError("seat_numbers", "at least one seat is required")
	}
	if len(r.SeatNumbers) > maxSeats {
		return NewValidationError("seat_numbers", "maximum %d seats per hold", maxSeats)
	}
	if dup := firstDuplicate(r.SeatNumbers); dup != "" {
		return NewValidationError("seat_numbers", "seat %s requested twice", dup)
	}
	return nil
}

// RenewHoldRequest is the body of POST /holds/:id/renew
type RenewHoldRequest struct {
	ExtendMinutes int `json:"extend_minutes" binding:"required,min=1"`
}

// HoldResponse is returned after a hold is created or renewed
type HoldResponse struct {
	HoldID      uuid.UUID  `json:"hold_id"`
	TripID      string     `json:"trip_id"`
	SeatNumbers []string   `json:"seat_numbers"`
	Status      HoldStatus `json:"status"`
	ExpiresAt   time.Time  `json:"expires_at"`
}

// NewHoldResponse converts a hold into its API shape
func NewHoldResponse(h *Hold) *HoldResponse {
	return &HoldResponse{
		HoldID:      h.ID,
		TripID:      h.TripID,
		SeatNumbers: append([]string(nil), h.SeatNumbers...),
		Status:      h.Status,
		ExpiresAt:   h.ExpiresAt,
	}
}

func firstDuplicate(values []string) string {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			return v
		}
		seen[v] = struct{}{}
	}
	return ""
}
