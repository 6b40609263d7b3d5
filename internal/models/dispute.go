package models

import (
	"time"

	"github.com/google/uuid"
)

// DisputeStatus only moves forward
type DisputeStatus string

const (
	DisputeOpen        DisputeStatus = "OPEN"
	DisputeUnderReview DisputeStatus = "UNDER_REVIEW"
	DisputeResolved    DisputeStatus = "RESOLVED"
	DisputeRejected    DisputeStatus = "REJECTED"
)

var disputeTransitions = transitions[DisputeStatus]{
	DisputeOpen:        {DisputeUnderReview, DisputeResolved, DisputeRejected},
	DisputeUnderReview: {DisputeResolved, DisputeRejected},
	DisputeResolved:    {},
	DisputeRejected:    {},
}

// CanTransitionTo reports whether the dispute state machine allows s -> next
func (s DisputeStatus) CanTransitionTo(next DisputeStatus) bool {
	return disputeTransitions.allows(s, next)
}

// IsTerminal reports whether the dispute is RESOLVED or REJECTED
func (s DisputeStatus) IsTerminal() bool {
	return disputeTransitions.terminal(s)
}

// DisputeSourcesOf lists the statuses a dispute may leave to reach `to`
func DisputeSourcesOf(to DisputeStatus) []string {
	return toStrings(disputeTransitions.sources(to))
}

// Dispute is a passenger or agency claim against a booking
type Dispute struct {
	ID              uuid.UUID     `json:"dispute_id" db:"id"`
	BookingID       uuid.UUID     `json:"booking_id" db:"booking_id"`
	RaisedBy        *uuid.UUID    `json:"raised_by,omitempty" db:"raised_by"`
	Reason          string        `json:"reason" db:"reason"`
	AmountRequested int64         `json:"amount_requested" db:"amount_requested"`
	Status          DisputeStatus `json:"status" db:"status"`
	Resolution      *string       `json:"resolution,omitempty" db:"resolution"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" db:"updated_at"`
	ResolvedAt      *time.Time    `json:"resolved_at,omitempty" db:"resolved_at"`
}

// OpenDisputeRequest is the body of POST /disputes
type OpenDisputeRequest struct {
	BookingID       uuid.UUID `json:"booking_id" binding:"required"`
	AmountRequested int64     `json:"amount_requested" binding:"gte=0"`
	Reason          string    `json:"reason" binding:"required,max=1000"`
}

// UpdateDisputeRequest is the body of PATCH /disputes/:id
type UpdateDisputeRequest struct {
	Status     DisputeStatus `json:"status" binding:"required,oneof=UNDER_REVIEW RESOLVED REJECTED"`
	Resolution *string       `json:"resolution,omitempty"`
}
