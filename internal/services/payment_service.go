package services

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-engine/internal/config"
	"github.com/smarttransit/seat-booking-engine/internal/database"
	"github.com/smarttransit/seat-booking-engine/internal/inventory"
	"github.com/smarttransit/seat-booking-engine/internal/models"
)

// staleRetries bounds how often a callback is re-decided after the booking moved under it
const staleRetries = 3

// PaymentLedger is the idempotency ledger keyed by provider transaction id
type PaymentLedger interface {
	RecordCallback(ctx context.Context, cb *models.PaymentCallback, transition *models.PaymentTransition) error
	GetCallback(ctx context.Context, transactionID string) (*models.PaymentCallback, error)
}

// PaymentBookings is the booking persistence used by reconciliation
type PaymentBookings interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	GetByPNR(ctx context.Context, pnr string) (*models.Booking, error)
	Refund(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	ListFlagged(ctx context.Context, limit int) ([]models.Booking, error)
	ClearFlag(ctx context.Context, id uuid.UUID) error
}

// CallbackCache remembers processed transaction ids in front of the ledger
type CallbackCache interface {
	Seen(ctx context.Context, transactionID string) (string, error)
	Remember(ctx context.Context, transactionID, outcome string) error
}

// PaymentService verifies provider callbacks and applies them to bookings at most once
type PaymentService struct {
	ledger   PaymentLedger
	bookings PaymentBookings
	inv      *inventory.Inventory
	marker   CallbackCache // optional
	audit    Auditor
	config   config.PaymentConfig
	clock    clockwork.Clock
	logger   *logrus.Logger
}

// NewPaymentService creates a new payment service. marker may be nil.
func NewPaymentService(
	ledger PaymentLedger,
	bookings PaymentBookings,
	inv *inventory.Inventory,
	marker CallbackCache,
	audit Auditor,
	cfg config.PaymentConfig,
	clock clockwork.Clock,
	logger *logrus.Logger,
) *PaymentService {
	return &PaymentService{
		ledger:   ledger,
		bookings: bookings,
		inv:      inv,
		marker:   marker,
		audit:    audit,
		config:   cfg,
		clock:    clock,
		logger:   logger,
	}
}

// CallbackSignature computes the check value the provider sends with a callback:
// UPPER(SHA512(merchantKey|transactionId|reference|amount|status|UPPER(SHA512(merchantToken))))
func (s *PaymentService) CallbackSignature(transactionID, reference string, amount int64, status string) string {
	tokenHash := sha512.Sum512([]byte(s.config.MerchantToken))
	tokenHex := strings.ToUpper(hex.EncodeToString(tokenHash[:]))

	data := strings.Join([]string{
		s.config.MerchantKey,
		transactionID,
		reference,
		strconv.FormatInt(amount, 10),
		status,
		tokenHex,
	}, "|")

	sum := sha512.Sum512([]byte(data))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

func (s *PaymentService) verify(req *models.PaymentCallbackRequest) bool {
	expected := s.CallbackSignature(req.TransactionID, req.Reference, req.Amount, string(req.Status))
	got := strings.ToUpper(strings.TrimSpace(req.Signature))
	return subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}

// ApplyCallback verifies and applies a provider callback. Every authentic callback is
// acknowledged; replays of a transaction id report DUPLICATE and change nothing.
func (s *PaymentService) ApplyCallback(ctx context.Context, req *models.PaymentCallbackRequest) (*models.PaymentCallbackAck, error) {
	log := s.logger.WithFields(logrus.Fields{
		"transaction_id": req.TransactionID,
		"reference":      req.Reference,
	})

	if !s.verify(req) {
		log.Warn("Payment callback rejected: invalid signature")
		return nil, models.ErrInvalidSignature
	}

	status := req.Status.Normalize()
	if status != models.CallbackSuccess && status != models.CallbackFailed {
		return nil, models.NewValidationError("status", "unknown payment status %q", req.Status)
	}

	if s.marker != nil {
		outcome, err := s.marker.Seen(ctx, req.TransactionID)
		if err != nil {
			log.WithError(err).Warn("Callback marker unavailable, falling back to ledger")
		} else if outcome != "" {
			return &models.PaymentCallbackAck{
				Acknowledged:  true,
				TransactionID: req.TransactionID,
				Outcome:       models.OutcomeDuplicate,
				Note:          "already processed as " + outcome,
			}, nil
		}
	}

	for attempt := 1; attempt <= staleRetries; attempt++ {
		ack, err := s.applyOnce(ctx, req, status)
		if errors.Is(err, database.ErrStalePayment) {
			log.WithField("attempt", attempt).Debug("Booking changed during callback, re-deciding")
			continue
		}
		return ack, err
	}
	return nil, fmt.Errorf("payment callback %s: %w", req.TransactionID, database.ErrStalePayment)
}

func (s *PaymentService) applyOnce(ctx context.Context, req *models.PaymentCallbackRequest, status models.CallbackStatus) (*models.PaymentCallbackAck, error) {
	booking, err := s.bookings.GetByPNR(ctx, req.Reference)
	if err != nil && !errors.Is(err, models.ErrBookingNotFound) {
		return nil, err
	}

	cb := &models.PaymentCallback{
		TransactionID: req.TransactionID,
		Reference:     req.Reference,
		Status:        status,
		Amount:        req.Amount,
		ReceivedAt:    s.clock.Now(),
	}

	var transition *models.PaymentTransition
	var note string
	if booking == nil {
		cb.Outcome = models.OutcomeFlagged
		note = "unknown booking reference"
	} else {
		cb.BookingID = &booking.ID
		cb.Outcome, transition, note = decide(booking, status, req.Amount)
		if transition != nil && transition.To == models.PaymentPaid {
			paidAt := cb.ReceivedAt
			transition.PaidAt = &paidAt
		}
	}
	if note != "" {
		cb.Detail = &note
	}

	err = s.ledger.RecordCallback(ctx, cb, transition)
	if errors.Is(err, database.ErrDuplicateCallback) {
		return s.duplicateAck(ctx, req.TransactionID, booking)
	}
	if err != nil {
		return nil, err
	}

	s.remember(ctx, req.TransactionID, cb.Outcome)

	ack := &models.PaymentCallbackAck{
		Acknowledged:  true,
		TransactionID: req.TransactionID,
		Outcome:       cb.Outcome,
		Note:          note,
	}
	if booking != nil {
		ack.PaymentStatus = booking.PaymentStatus
		if transition != nil {
			ack.PaymentStatus = transition.To
		}
	}

	fields := logrus.Fields{
		"transaction_id": req.TransactionID,
		"reference":      req.Reference,
		"outcome":        cb.Outcome,
		"status":         status,
		"amount":         req.Amount,
	}
	if cb.Outcome == models.OutcomeFlagged {
		s.logger.WithFields(fields).Warn("Payment callback flagged for manual reconciliation: " + note)
	} else {
		s.logger.WithFields(fields).Info("Payment callback processed")
	}

	if cb.Outcome != models.OutcomeNoop {
		event := AuditEvent{
			Action:     "payment_callback",
			EntityType: "payment",
			EntityID:   req.TransactionID,
			Details: map[string]interface{}{
				"reference": req.Reference,
				"status":    status,
				"amount":    req.Amount,
				"outcome":   cb.Outcome,
			},
		}
		if booking != nil {
			event.Before = string(booking.PaymentStatus)
			event.After = string(ack.PaymentStatus)
			event.Details["booking_id"] = booking.ID
		}
		s.audit.Record(ctx, event)
	}
	return ack, nil
}

// decide maps a callback onto the booking's payment state machine. Flagged callbacks
// set the reconciliation flag without moving payment status.
func decide(b *models.Booking, status models.CallbackStatus, amount int64) (models.CallbackOutcome, *models.PaymentTransition, string) {
	flagOnly := &models.PaymentTransition{BookingID: b.ID, Booking: b.Status, From: b.PaymentStatus, To: b.PaymentStatus, Flag: true}

	if status == models.CallbackFailed {
		if b.PaymentStatus == models.PaymentPending {
			return models.OutcomeApplied, &models.PaymentTransition{BookingID: b.ID, Booking: b.Status, From: b.PaymentStatus, To: models.PaymentFailed}, ""
		}
		return models.OutcomeNoop, nil, fmt.Sprintf("failure ignored, payment already %s", b.PaymentStatus)
	}

	if amount != b.TotalAmount {
		return models.OutcomeFlagged, flagOnly,
			fmt.Sprintf("%v: received %d, booking total %d", models.ErrAmountMismatch, amount, b.TotalAmount)
	}
	if b.Status != models.BookingConfirmed {
		return models.OutcomeFlagged, flagOnly, fmt.Sprintf("payment received for %s booking", b.Status)
	}
	switch {
	case b.PaymentStatus == models.PaymentPaid:
		return models.OutcomeNoop, nil, ""
	case b.PaymentStatus.CanTransitionTo(models.PaymentPaid):
		return models.OutcomeApplied, &models.PaymentTransition{BookingID: b.ID, Booking: b.Status, From: b.PaymentStatus, To: models.PaymentPaid}, ""
	default:
		return models.OutcomeFlagged, flagOnly, fmt.Sprintf("payment received for %s booking", b.PaymentStatus)
	}
}

func (s *PaymentService) duplicateAck(ctx context.Context, transactionID string, booking *models.Booking) (*models.PaymentCallbackAck, error) {
	ack := &models.PaymentCallbackAck{
		Acknowledged:  true,
		TransactionID: transactionID,
		Outcome:       models.OutcomeDuplicate,
	}

	prev, err := s.ledger.GetCallback(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if prev != nil {
		ack.Note = "already processed as " + string(prev.Outcome)
		s.remember(ctx, transactionID, prev.Outcome)
	}
	if booking != nil {
		current, err := s.bookings.GetByID(ctx, booking.ID)
		if err != nil {
			return nil, err
		}
		ack.PaymentStatus = current.PaymentStatus
	}

	s.logger.WithField("transaction_id", transactionID).Info("Duplicate payment callback acknowledged")
	return ack, nil
}

func (s *PaymentService) remember(ctx context.Context, transactionID string, outcome models.CallbackOutcome) {
	if s.marker == nil {
		return
	}
	if err := s.marker.Remember(ctx, transactionID, string(outcome)); err != nil {
		s.logger.WithError(err).WithField("transaction_id", transactionID).Warn("Failed to cache callback marker")
	}
}

// ============================================================================
// REFUNDS AND RECONCILIATION QUEUE
// ============================================================================

// Refund moves a PAID booking to REFUNDED and frees its seats
func (s *PaymentService) Refund(ctx context.Context, p models.Principal, bookingID uuid.UUID) (*models.Booking, error) {
	current, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !p.CanActForAgency(current.AgencyID) {
		return nil, models.ErrForbidden
	}
	if current.PaymentStatus != models.PaymentPaid || !current.Status.CanTransitionTo(models.BookingRefunded) {
		from := string(current.Status)
		if current.PaymentStatus != models.PaymentPaid {
			from = "payment " + string(current.PaymentStatus)
		}
		return nil, &models.TransitionError{Entity: "booking", ID: bookingID.String(), From: from, To: string(models.BookingRefunded)}
	}

	refunded, err := s.bookings.Refund(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	releaseBookingSeats(ctx, s.inv, s.logger, refunded)

	s.logger.WithFields(logrus.Fields{
		"booking_id": refunded.ID,
		"pnr":        refunded.PNR,
		"amount":     refunded.TotalAmount,
	}).Info("Booking refunded")

	s.audit.Record(ctx, AuditEvent{
		UserID:     p.ActorID(),
		Action:     "booking_refund",
		EntityType: "booking",
		EntityID:   refunded.ID.String(),
		Before:     string(current.Status),
		After:      string(refunded.Status),
		Details:    map[string]interface{}{"amount": refunded.TotalAmount},
	})
	return refunded, nil
}

// ListFlagged returns bookings waiting for manual reconciliation
func (s *PaymentService) ListFlagged(ctx context.Context, p models.Principal, limit int) ([]models.Booking, error) {
	if !p.IsAdmin() {
		return nil, models.ErrForbidden
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.bookings.ListFlagged(ctx, limit)
}

// ResolveFlag clears the reconciliation flag once an operator has handled the booking
func (s *PaymentService) ResolveFlag(ctx context.Context, p models.Principal, bookingID uuid.UUID) error {
	if !p.IsAdmin() {
		return models.ErrForbidden
	}
	if err := s.bookings.ClearFlag(ctx, bookingID); err != nil {
		return err
	}
	s.audit.Record(ctx, AuditEvent{
		UserID:     p.ActorID(),
		Action:     "reconciliation_resolve",
		EntityType: "booking",
		EntityID:   bookingID.String(),
	})
	return nil
}
