package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SettlementStatus is the payout lifecycle of a settlement
type SettlementStatus string

const (
	SettlementPending    SettlementStatus = "PENDING"
	SettlementProcessing SettlementStatus = "PROCESSING"
	SettlementPaid       SettlementStatus = "PAID"
	SettlementFailed     SettlementStatus = "FAILED"
)

var settlementTransitions = transitions[SettlementStatus]{
	SettlementPending:    {SettlementProcessing, SettlementPaid, SettlementFailed},
	SettlementProcessing: {SettlementPaid, SettlementFailed},
	SettlementPaid:       {},
	SettlementFailed:     {},
}

// CanTransitionTo reports whether the settlement state machine allows s -> next
func (s SettlementStatus) CanTransitionTo(next SettlementStatus) bool {
	return settlementTransitions.allows(s, next)
}

// IsTerminal reports whether the settlement is PAID or FAILED
func (s SettlementStatus) IsTerminal() bool {
	return settlementTransitions.terminal(s)
}

// IsKnown rejects statuses outside the enumeration
func (s SettlementStatus) IsKnown() bool {
	return settlementTransitions.known(s)
}

// SettlementSourcesOf lists the statuses a settlement may leave to reach `to`
func SettlementSourcesOf(to SettlementStatus) []string {
	return toStrings(settlementTransitions.sources(to))
}

// BasisPoints is a rate in hundredths of a percent; 1000 is 10%.
type BasisPoints int64

// FeeSplit is the integer-safe gross/fee/net breakdown of a settlement
type FeeSplit struct {
	Gross int64
	Fee   int64
	Net   int64
}

// ComputeSplit rounds the fee half-up to the nearest minor unit so that
// Gross == Fee + Net always holds.
func ComputeSplit(gross int64, rate BasisPoints) FeeSplit {
	fee := (gross*int64(rate) + 5000) / 10000
	return FeeSplit{Gross: gross, Fee: fee, Net: gross - fee}
}

// Period is a calendar-month settlement window in UTC
type Period struct {
	Key   string
	Start time.Time
	End   time.Time
}

// ParsePeriod accepts a month key like "2025-03"
func ParsePeriod(key string) (Period, error) {
	start, err := time.Parse("2006-01", key)
	if err != nil {
		return Period{}, NewValidationError("period", "expected YYYY-MM, got %q", key)
	}
	return Period{Key: key, Start: start, End: start.AddDate(0, 1, 0)}, nil
}

// PeriodOf returns the month containing t
func PeriodOf(t time.Time) Period {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Period{Key: start.Format("2006-01"), Start: start, End: start.AddDate(0, 1, 0)}
}

// Previous returns the month before p
func (p Period) Previous() Period {
	return PeriodOf(p.Start.AddDate(0, -1, 0))
}

func (p Period) String() string {
	return fmt.Sprintf("%s [%s, %s)", p.Key, p.Start.Format(time.RFC3339), p.End.Format(time.RFC3339))
}

// Settlement aggregates an agency's paid revenue for one period
type Settlement struct {
	ID            uuid.UUID        `json:"settlement_id" db:"id"`
	AgencyID      string           `json:"agency_id" db:"agency_id"`
	Period        string           `json:"period" db:"period"`
	GrossRevenue  int64            `json:"gross_revenue" db:"gross_revenue"`
	PlatformFee   int64            `json:"platform_fee" db:"platform_fee"`
	NetRevenue    int64            `json:"net_revenue" db:"net_revenue"`
	FeeRateBps    BasisPoints      `json:"fee_rate_bps" db:"fee_rate_bps"`
	BookingCount  int              `json:"booking_count" db:"booking_count"`
	Currency      string           `json:"currency" db:"currency"`
	Status        SettlementStatus `json:"status" db:"status"`
	TransactionID *string          `json:"transaction_id,omitempty" db:"transaction_id"`
	FailureReason *string          `json:"failure_reason,omitempty" db:"failure_reason"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at" db:"updated_at"`
	PaidAt        *time.Time       `json:"paid_at,omitempty" db:"paid_at"`
}

// ============================================================================
// REQUEST / RESPONSE TYPES
// ============================================================================

// ComputeSettlementRequest is the body of POST /settlements/compute
type ComputeSettlementRequest struct {
	AgencyID string `json:"agency_id" binding:"required"`
	Period   string `json:"period" binding:"required"`
}

// UpdateSettlementRequest is the body of PATCH /settlements
type UpdateSettlementRequest struct {
	SettlementID  uuid.UUID        `json:"settlement_id" binding:"required"`
	Status        SettlementStatus `json:"status" binding:"required,oneof=PROCESSING PAID FAILED"`
	TransactionID *string          `json:"transaction_id,omitempty"`
	Reason        *string          `json:"reason,omitempty"`
}

// SettlementResult reports whether compute created a new settlement
type SettlementResult struct {
	Settlement *Settlement `json:"settlement"`
	Created    bool        `json:"created"`
}
