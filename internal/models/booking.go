package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// BookingStatus is the lifecycle of a confirmed booking
type BookingStatus string

const (
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
	BookingRefunded  BookingStatus = "REFUNDED"
)

var bookingTransitions = transitions[BookingStatus]{
	BookingConfirmed: {BookingCancelled, BookingRefunded},
	BookingCancelled: {BookingRefunded},
	BookingRefunded:  {},
}

// CanTransitionTo reports whether the booking state machine allows s -> next
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	return bookingTransitions.allows(s, next)
}

// BookingSourcesOf lists the statuses a booking may leave to reach `to`
func BookingSourcesOf(to BookingStatus) []string {
	return toStrings(bookingTransitions.sources(to))
}

// PaymentStatus tracks the money side of a booking
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentFailed   PaymentStatus = "FAILED"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

// A failed payment may still be followed by a successful retry from the provider.
var paymentTransitions = transitions[PaymentStatus]{
	PaymentPending:  {PaymentPaid, PaymentFailed},
	PaymentFailed:   {PaymentPaid},
	PaymentPaid:     {PaymentRefunded},
	PaymentRefunded: {},
}

// CanTransitionTo reports whether the payment state machine allows s -> next
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	return paymentTransitions.allows(s, next)
}

// BookingChannel records which path created the booking
type BookingChannel string

const (
	ChannelApp    BookingChannel = "APP"    // Promoted from a hold
	ChannelManual BookingChannel = "MANUAL" // Agency staff at the counter or by phone
)

// PaymentMethod is how a manual booking is being paid
type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "CASH"
	PaymentMethodCard         PaymentMethod = "CARD"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodOnline       PaymentMethod = "ONLINE"
)

// InitialPaymentStatus is PAID for money already collected by staff, PENDING otherwise
func (m PaymentMethod) InitialPaymentStatus() PaymentStatus {
	if m == PaymentMethodCash {
		return PaymentPaid
	}
	return PaymentPending
}

// Passenger is one traveller bound to exactly one seat
type Passenger struct {
	Name       string  `json:"name" binding:"required"`
	SeatNumber string  `json:"seat_number" binding:"required,seat_number"`
	Phone      *string `json:"phone,omitempty" binding:"omitempty,contact_phone"`
}

// Passengers is stored as JSONB
type Passengers []Passenger

// Value implements the driver.Valuer interface
func (p Passengers) Value() (driver.Value, error) {
	if p == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(p)
}

// Scan implements the sql.Scanner interface
func (p *Passengers) Scan(src interface{}) error {
	if src == nil {
		*p = nil
		return nil
	}
	return scanJSON(src, p)
}

// SeatNumbers returns the seats in passenger order
func (p Passengers) SeatNumbers() []string {
	seats := make([]string, len(p))
	for i, pax := range p {
		seats[i] = pax.SeatNumber
	}
	return seats
}

// Contact is who the operator reaches about the booking
type Contact struct {
	Name  string  `json:"name" binding:"required"`
	Phone string  `json:"phone" binding:"required,contact_phone"`
	Email *string `json:"email,omitempty" binding:"omitempty,email"`
}

// Value implements the driver.Valuer interface
func (c Contact) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan implements the sql.Scanner interface
func (c *Contact) Scan(src interface{}) error {
	if src == nil {
		return nil
	}
	return scanJSON(src, c)
}

// Booking is a durable, uniquely referenced sale of one or more seats
type Booking struct {
	ID                 uuid.UUID      `json:"booking_id" db:"id"`
	PNR                string         `json:"pnr" db:"pnr"`
	TripID             string         `json:"trip_id" db:"trip_id"`
	AgencyID           string         `json:"agency_id" db:"agency_id"`
	HoldID             *uuid.UUID     `json:"hold_id,omitempty" db:"hold_id"`
	Channel            BookingChannel `json:"channel" db:"channel"`
	Passengers         Passengers     `json:"passengers" db:"passengers"`
	Contact            Contact        `json:"contact" db:"contact"`
	TotalAmount        int64          `json:"total_amount" db:"total_amount"`
	Currency           string         `json:"currency" db:"currency"`
	Status             BookingStatus  `json:"status" db:"status"`
	PaymentStatus      PaymentStatus  `json:"payment_status" db:"payment_status"`
	PaymentMethod      *PaymentMethod `json:"payment_method,omitempty" db:"payment_method"`
	ReconciliationFlag bool           `json:"reconciliation_flag" db:"reconciliation_flag"`
	SettlementID       *uuid.UUID     `json:"settlement_id,omitempty" db:"settlement_id"`
	CancelReason       *string        `json:"cancel_reason,omitempty" db:"cancel_reason"`
	CreatedBy          *uuid.UUID     `json:"created_by,omitempty" db:"created_by"`
	CreatedAt          time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at" db:"updated_at"`
	PaidAt             *time.Time     `json:"paid_at,omitempty" db:"paid_at"`
}

// SeatNumbers returns the seats sold by this booking
func (b *Booking) SeatNumbers() []string {
	return b.Passengers.SeatNumbers()
}

// ============================================================================
// REQUEST / RESPONSE TYPES
// ============================================================================

// CreateBookingRequest is the body of POST /bookings. HoldID selects the hold path;
// without it the request is a manual booking and TripID, SeatNumbers, TotalAmount
// and PaymentMethod are required.
type CreateBookingRequest struct {
	HoldID        *uuid.UUID     `json:"hold_id,omitempty"`
	TripID        string         `json:"trip_id,omitempty"`
	SeatNumbers   []string       `json:"seat_numbers,omitempty" binding:"omitempty,dive,seat_number"`
	Passengers    []Passenger    `json:"passengers" binding:"required,min=1,dive"`
	Contact       Contact        `json:"contact" binding:"required"`
	TotalAmount   *int64         `json:"total_amount,omitempty" binding:"omitempty,gte=0"`
	PaymentMethod *PaymentMethod `json:"payment_method,omitempty" binding:"omitempty,oneof=CASH CARD BANK_TRANSFER ONLINE"`
}

// IsManual reports whether the request bypasses holds
func (r *CreateBookingRequest) IsManual() bool {
	return r.HoldID == nil
}

// ValidateManual checks the fields the manual path needs
func (r *CreateBookingRequest) ValidateManual(maxSeats int) error {
	if r.TripID == "" {
		return NewValidationError("trip_id", "required for manual bookings")
	}
	if len(r.SeatNumbers) == 0 {
		return NewValidationError("seat_numbers", "required for manual bookings")
	}
	if len(r.SeatNumbers) > maxSeats {
		return NewValidationError("seat_numbers", "maximum %d seats per booking", maxSeats)
	}
	if r.TotalAmount == nil {
		return NewValidationError("total_amount", "required for manual bookings")
	}
	if r.PaymentMethod == nil {
		return NewValidationError("payment_method", "required for manual bookings")
	}
	return ValidatePassengerSeats(r.Passengers, r.SeatNumbers)
}

// ValidatePassengerSeats requires exactly one passenger per seat and no seat twice
func ValidatePassengerSeats(passengers []Passenger, seats []string) error {
	if len(passengers) != len(seats) {
		return NewValidationError("passengers", "expected %d passengers, got %d", len(seats), len(passengers))
	}
	wanted := make(map[string]bool, len(seats))
	for _, s := range seats {
		wanted[s] = false
	}
	for _, p := range passengers {
		used, ok := wanted[p.SeatNumber]
		if !ok {
			return NewValidationError("passengers", "seat %s is not part of this reservation", p.SeatNumber)
		}
		if used {
			return NewValidationError("passengers", "seat %s assigned to more than one passenger", p.SeatNumber)
		}
		wanted[p.SeatNumber] = true
	}
	return nil
}

// CancelBookingRequest is the body of POST /bookings/cancel
type CancelBookingRequest struct {
	BookingID uuid.UUID `json:"booking_id" binding:"required"`
	Reason    string    `json:"reason" binding:"required,max=500"`
}

// BookingResponse is the short confirmation returned after a booking change
type BookingResponse struct {
	BookingID     uuid.UUID     `json:"booking_id"`
	PNR           string        `json:"pnr"`
	Status        BookingStatus `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	TotalAmount   int64         `json:"total_amount"`
	Currency      string        `json:"currency"`
}

// NewBookingResponse converts a booking into its API shape
func NewBookingResponse(b *Booking) *BookingResponse {
	return &BookingResponse{
		BookingID:     b.ID,
		PNR:           b.PNR,
		Status:        b.Status,
		PaymentStatus: b.PaymentStatus,
		TotalAmount:   b.TotalAmount,
		Currency:      b.Currency,
	}
}
