package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-engine/internal/models"
)

// DisputeStore is the dispute persistence
type DisputeStore interface {
	Create(ctx context.Context, d *models.Dispute) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	Transition(ctx context.Context, id uuid.UUID, to models.DisputeStatus, from []string, resolution *string) (*models.Dispute, error)
}

// BookingReader reads bookings without changing them
type BookingReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
}

// DisputeService runs the forward-only dispute workflow
type DisputeService struct {
	disputes DisputeStore
	bookings BookingReader
	audit    Auditor
	logger   *logrus.Logger
}

// NewDisputeService creates a new dispute service
func NewDisputeService(disputes DisputeStore, bookings BookingReader, audit Auditor, logger *logrus.Logger) *DisputeService {
	return &DisputeService{
		disputes: disputes,
		bookings: bookings,
		audit:    audit,
		logger:   logger,
	}
}

// Open files a dispute against a booking the principal may act on
func (s *DisputeService) Open(ctx context.Context, p models.Principal, req *models.OpenDisputeRequest) (*models.Dispute, error) {
	booking, err := s.bookings.GetByID(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}
	if !canManageBooking(p, booking) {
		return nil, models.ErrForbidden
	}
	if req.AmountRequested < 0 || req.AmountRequested > booking.TotalAmount {
		return nil, models.NewValidationError("amount_requested", "must be between 0 and the booking total %d", booking.TotalAmount)
	}

	d := &models.Dispute{
		ID:              uuid.New(),
		BookingID:       booking.ID,
		RaisedBy:        p.ActorID(),
		Reason:          req.Reason,
		AmountRequested: req.AmountRequested,
		Status:          models.DisputeOpen,
	}
	if err := s.disputes.Create(ctx, d); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"dispute_id": d.ID,
		"booking_id": d.BookingID,
		"amount":     d.AmountRequested,
	}).Info("Dispute opened")

	s.audit.Record(ctx, AuditEvent{
		UserID:     p.ActorID(),
		Action:     "dispute_open",
		EntityType: "dispute",
		EntityID:   d.ID.String(),
		After:      string(d.Status),
		Details:    map[string]interface{}{"booking_id": d.BookingID, "amount_requested": d.AmountRequested},
	})
	return d, nil
}

// Update advances a dispute; only admins review disputes
func (s *DisputeService) Update(ctx context.Context, p models.Principal, id uuid.UUID, req *models.UpdateDisputeRequest) (*models.Dispute, error) {
	if !p.IsAdmin() {
		return nil, models.ErrForbidden
	}

	current, err := s.disputes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == req.Status {
		return current, nil
	}
	if !current.Status.CanTransitionTo(req.Status) {
		return nil, &models.TransitionError{
			Entity: "dispute",
			ID:     id.String(),
			From:   string(current.Status),
			To:     string(req.Status),
		}
	}

	updated, err := s.disputes.Transition(ctx, id, req.Status, models.DisputeSourcesOf(req.Status), req.Resolution)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, AuditEvent{
		UserID:     p.ActorID(),
		Action:     "dispute_update",
		EntityType: "dispute",
		EntityID:   id.String(),
		Before:     string(current.Status),
		After:      string(updated.Status),
	})
	return updated, nil
}

// Get returns a dispute to admins, the raiser and staff of the booking's agency
func (s *DisputeService) Get(ctx context.Context, p models.Principal, id uuid.UUID) (*models.Dispute, error) {
	d, err := s.disputes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.IsAdmin() || (d.RaisedBy != nil && *d.RaisedBy == p.UserID) {
		return d, nil
	}
	booking, err := s.bookings.GetByID(ctx, d.BookingID)
	if err != nil {
		return nil, err
	}
	if !p.CanActForAgency(booking.AgencyID) {
		return nil, models.ErrForbidden
	}
	return d, nil
}
