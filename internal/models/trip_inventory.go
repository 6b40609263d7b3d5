package models

import (
	"time"

	"github.com/google/uuid"
)

// SeatState is the availability of a single seat on a trip
type SeatState string

const (
	SeatFree SeatState = "FREE"
	SeatHeld SeatState = "HELD"
	SeatSold SeatState = "SOLD"
)

// TripStatus tracks whether a trip's inventory still accepts mutations
type TripStatus string

const (
	TripActive   TripStatus = "ACTIVE"
	TripArchived TripStatus = "ARCHIVED"
)

// Seat is one row of a trip's seat catalog together with its current state.
// HoldID is set only while HELD, BookingID only while SOLD.
type Seat struct {
	TripID    string     `json:"-" db:"trip_id"`
	Number    string     `json:"seat_number" db:"seat_number"`
	Position  int        `json:"position" db:"position"`
	Price     int64      `json:"price" db:"price"`
	State     SeatState  `json:"state" db:"state"`
	HoldID    *uuid.UUID `json:"hold_id,omitempty" db:"hold_id"`
	BookingID *uuid.UUID `json:"booking_id,omitempty" db:"booking_id"`
}

// Trip is the persisted header of a trip inventory
type Trip struct {
	ID          string     `json:"trip_id" db:"id"`
	AgencyID    string     `json:"agency_id" db:"agency_id"`
	DepartureAt *time.Time `json:"departure_at,omitempty" db:"departure_at"`
	Status      TripStatus `json:"status" db:"status"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// TripSnapshot is everything the inventory needs to rebuild a trip table:
// the header, the ordered seat catalog and the holds that are still ACTIVE.
type TripSnapshot struct {
	Trip  Trip
	Seats []Seat
	Holds []Hold
}

// SeatTransition is a single seat moving to a new state inside an InventoryChange.
// The Prev fields name the state the persisted seat must still be in.
type SeatTransition struct {
	SeatNumber string
	State      SeatState
	HoldID     *uuid.UUID
	BookingID  *uuid.UUID

	PrevState     SeatState
	PrevHoldID    *uuid.UUID
	PrevBookingID *uuid.UUID
}

// Matches reports whether a seat is in the prior state the transition expects
func (tr *SeatTransition) Matches(s *Seat) bool {
	return s.State == tr.PrevState && sameID(s.HoldID, tr.PrevHoldID) && sameID(s.BookingID, tr.PrevBookingID)
}

func sameID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// InventoryChange is the unit the inventory persists while it holds the trip lock.
// Hold is nil for changes that act directly on seats (compensation, cancellation).
type InventoryChange struct {
	TripID string
	Hold   *Hold
	Seats  []SeatTransition
}

// ============================================================================
// REQUEST / RESPONSE TYPES
// ============================================================================

// SeatDefinition is a catalog entry supplied when a trip is scheduled
type SeatDefinition struct {
	Number string `json:"seat_number" binding:"required,seat_number"`
	Price  int64  `json:"price" binding:"gte=0"`
}

// ScheduleTripRequest creates a trip inventory with every seat FREE
type ScheduleTripRequest struct {
	TripID      string           `json:"trip_id" binding:"required"`
	AgencyID    string           `json:"agency_id" binding:"required"`
	DepartureAt *time.Time       `json:"departure_at,omitempty"`
	Seats       []SeatDefinition `json:"seats" binding:"required,min=1,dive"`
}

// Validate checks catalog uniqueness
func (r *ScheduleTripRequest) Validate() error {
	seen := make(map[string]struct{}, len(r.Seats))
	for _, s := range r.Seats {
		if _, dup := seen[s.Number]; dup {
			return NewValidationError("seats", "duplicate seat number %s", s.Number)
		}
		seen[s.Number] = struct{}{}
	}
	return nil
}

// SeatAvailability is the read model returned to search screens
type SeatAvailability struct {
	TripID   string     `json:"trip_id"`
	AgencyID string     `json:"agency_id"`
	Capacity int        `json:"capacity"`
	Free     int        `json:"free"`
	Held     int        `json:"held"`
	Sold     int        `json:"sold"`
	Halted   bool       `json:"halted"`
	Seats    []SeatView `json:"seats"`
}

// SeatView hides hold and booking ids from public callers
type SeatView struct {
	Number string    `json:"seat_number"`
	Price  int64     `json:"price"`
	State  SeatState `json:"state"`
}
