package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-engine/internal/config"
	"github.com/smarttransit/seat-booking-engine/internal/database"
	"github.com/smarttransit/seat-booking-engine/internal/inventory"
	"github.com/smarttransit/seat-booking-engine/internal/models"
)

// BookingStore is the booking persistence used by the transaction engine
type BookingStore interface {
	Insert(ctx context.Context, b *models.Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	GetByPNR(ctx context.Context, pnr string) (*models.Booking, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (*models.Booking, error)
}

// BookingService turns holds, or a staff override, into confirmed bookings exactly once
type BookingService struct {
	inv      *inventory.Inventory
	bookings BookingStore
	pnr      PNRGenerator
	notifier Notifier
	audit    Auditor
	config   config.BookingConfig
	currency string
	logger   *logrus.Logger
}

// NewBookingService creates a new booking service
func NewBookingService(
	inv *inventory.Inventory,
	bookings BookingStore,
	pnr PNRGenerator,
	notifier Notifier,
	audit Auditor,
	cfg config.BookingConfig,
	currency string,
	logger *logrus.Logger,
) *BookingService {
	return &BookingService{
		inv:      inv,
		bookings: bookings,
		pnr:      pnr,
		notifier: notifier,
		audit:    audit,
		config:   cfg,
		currency: currency,
		logger:   logger,
	}
}

// Create routes the request to the hold path or the manual path
func (s *BookingService) Create(ctx context.Context, p models.Principal, req *models.CreateBookingRequest) (*models.Booking, error) {
	if req.IsManual() {
		return s.CreateManual(ctx, p, req)
	}
	return s.CreateFromHold(ctx, p, req)
}

// ============================================================================
// HOLD PATH
// ============================================================================

// CreateFromHold consumes the hold and persists a CONFIRMED, PENDING booking.
// The hold's status and expiry are checked by Consume under the trip lock; the
// read here only produces early, friendlier errors.
func (s *BookingService) CreateFromHold(ctx context.Context, p models.Principal, req *models.CreateBookingRequest) (*models.Booking, error) {
	hold, err := s.inv.GetHold(ctx, *req.HoldID)
	if err != nil {
		return nil, err
	}
	switch hold.Status {
	case models.HoldConsumed:
		return nil, &models.HoldError{HoldID: hold.ID, TripID: hold.TripID, Err: models.ErrHoldConsumed}
	case models.HoldExpired, models.HoldReleased:
		return nil, &models.HoldError{HoldID: hold.ID, TripID: hold.TripID, Err: models.ErrHoldExpired}
	}
	if err := authorizeHold(ctx, s.inv, p, hold); err != nil {
		return nil, err
	}
	if err := models.ValidatePassengerSeats(req.Passengers, hold.SeatNumbers); err != nil {
		return nil, err
	}

	avail, err := s.inv.Availability(ctx, hold.TripID)
	if err != nil {
		return nil, err
	}
	total := priceOf(avail, hold.SeatNumbers)

	bookingID := uuid.New()
	if _, err := s.inv.Consume(ctx, hold.ID, bookingID); err != nil {
		return nil, err
	}

	holdID := hold.ID
	booking := &models.Booking{
		ID:            bookingID,
		TripID:        hold.TripID,
		AgencyID:      avail.AgencyID,
		HoldID:        &holdID,
		Channel:       models.ChannelApp,
		Passengers:    models.Passengers(req.Passengers),
		Contact:       req.Contact,
		TotalAmount:   total,
		Currency:      s.currency,
		Status:        models.BookingConfirmed,
		PaymentStatus: models.PaymentPending,
		CreatedBy:     p.ActorID(),
	}
	if err := s.persist(ctx, booking); err != nil {
		s.compensate(ctx, booking, err)
		return nil, err
	}

	s.confirmed(ctx, p, booking)
	return booking, nil
}

// ============================================================================
// MANUAL PATH
// ============================================================================

// CreateManual sells seats without a prior hold. The seats still pass the same
// all-or-nothing check under the trip lock, through an implicit hold.
func (s *BookingService) CreateManual(ctx context.Context, p models.Principal, req *models.CreateBookingRequest) (*models.Booking, error) {
	if !p.HasRole(models.RoleAgencyStaff, models.RoleAdmin) {
		return nil, models.ErrForbidden
	}
	if err := req.ValidateManual(s.config.MaxSeatsPerHold); err != nil {
		return nil, err
	}

	trip, err := s.inv.Trip(ctx, req.TripID)
	if err != nil {
		return nil, err
	}
	if !p.CanActForAgency(trip.AgencyID) {
		return nil, models.ErrForbidden
	}

	bookingID := uuid.New()
	hold, err := s.inv.ReserveAndConsume(ctx, trip.ID, req.SeatNumbers, bookingID, p.ActorID())
	if err != nil {
		if errors.Is(err, models.ErrSeatUnavailable) {
			s.logger.WithFields(logrus.Fields{
				"trip_id": trip.ID,
				"seats":   req.SeatNumbers,
				"user_id": p.UserID,
			}).Warn("Seat conflict on manual booking")
		}
		return nil, err
	}

	method := *req.PaymentMethod
	holdID := hold.ID
	booking := &models.Booking{
		ID:            bookingID,
		TripID:        trip.ID,
		AgencyID:      trip.AgencyID,
		HoldID:        &holdID,
		Channel:       models.ChannelManual,
		Passengers:    models.Passengers(req.Passengers),
		Contact:       req.Contact,
		TotalAmount:   *req.TotalAmount,
		Currency:      s.currency,
		Status:        models.BookingConfirmed,
		PaymentStatus: method.InitialPaymentStatus(),
		PaymentMethod: &method,
		CreatedBy:     p.ActorID(),
	}
	if err := s.persist(ctx, booking); err != nil {
		s.compensate(ctx, booking, err)
		return nil, err
	}

	s.confirmed(ctx, p, booking)
	return booking, nil
}

// ============================================================================
// CANCELLATION AND LOOKUPS
// ============================================================================

// Cancel moves a CONFIRMED booking to CANCELLED and frees its seats
func (s *BookingService) Cancel(ctx context.Context, p models.Principal, req *models.CancelBookingRequest) (*models.Booking, error) {
	current, err := s.bookings.GetByID(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}
	if !canManageBooking(p, current) {
		return nil, models.ErrForbidden
	}
	if current.Status != models.BookingConfirmed {
		return nil, &models.TransitionError{
			Entity: "booking",
			ID:     current.ID.String(),
			From:   string(current.Status),
			To:     string(models.BookingCancelled),
		}
	}

	cancelled, err := s.bookings.Cancel(ctx, current.ID, req.Reason)
	if err != nil {
		return nil, err
	}
	releaseBookingSeats(ctx, s.inv, s.logger, cancelled)

	s.logger.WithFields(logrus.Fields{
		"booking_id": cancelled.ID,
		"pnr":        cancelled.PNR,
		"trip_id":    cancelled.TripID,
	}).Info("Booking cancelled")

	s.audit.Record(ctx, AuditEvent{
		UserID:     p.ActorID(),
		Action:     "booking_cancel",
		EntityType: "booking",
		EntityID:   cancelled.ID.String(),
		Before:     string(current.Status),
		After:      string(cancelled.Status),
		Details:    map[string]interface{}{"reason": req.Reason},
	})
	s.notifier.BookingCancelled(ctx, cancelled)
	return cancelled, nil
}

// Get returns a booking visible to the principal
func (s *BookingService) Get(ctx context.Context, p models.Principal, id uuid.UUID) (*models.Booking, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canManageBooking(p, b) {
		return nil, models.ErrForbidden
	}
	return b, nil
}

// GetByPNR returns a booking by its passenger reference
func (s *BookingService) GetByPNR(ctx context.Context, p models.Principal, pnr string) (*models.Booking, error) {
	b, err := s.bookings.GetByPNR(ctx, pnr)
	if err != nil {
		return nil, err
	}
	if !canManageBooking(p, b) {
		return nil, models.ErrForbidden
	}
	return b, nil
}

// persist inserts the booking, drawing a new PNR on every collision
func (s *BookingService) persist(ctx context.Context, b *models.Booking) error {
	for attempt := 1; attempt <= s.config.PNRMaxAttempts; attempt++ {
		pnr, err := s.pnr.Next()
		if err != nil {
			return err
		}
		b.PNR = pnr
		err = s.bookings.Insert(ctx, b)
		if err == nil {
			return nil
		}
		if !errors.Is(err, database.ErrDuplicatePNR) {
			return err
		}
		s.logger.WithFields(logrus.Fields{
			"booking_id": b.ID,
			"attempt":    attempt,
		}).Debug("PNR collision, retrying")
	}
	b.PNR = ""
	return models.ErrPnrExhausted
}

// compensate returns seats sold to a booking that could not be persisted
func (s *BookingService) compensate(ctx context.Context, b *models.Booking, cause error) {
	released, err := s.inv.ReleaseBooking(context.WithoutCancel(ctx), b.TripID, b.ID)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"alert":      true,
			"booking_id": b.ID,
			"trip_id":    b.TripID,
			"cause":      cause.Error(),
		}).Error("Failed to release seats of unpersisted booking")
		return
	}
	s.logger.WithError(cause).WithFields(logrus.Fields{
		"booking_id": b.ID,
		"trip_id":    b.TripID,
		"released":   released,
	}).Warn("Booking not persisted, seats released")
}

func (s *BookingService) confirmed(ctx context.Context, p models.Principal, b *models.Booking) {
	s.logger.WithFields(logrus.Fields{
		"booking_id": b.ID,
		"pnr":        b.PNR,
		"trip_id":    b.TripID,
		"channel":    b.Channel,
		"seats":      b.SeatNumbers(),
	}).Info("Booking confirmed")

	s.audit.Record(ctx, AuditEvent{
		UserID:     p.ActorID(),
		Action:     "booking_create",
		EntityType: "booking",
		EntityID:   b.ID.String(),
		After:      string(b.Status),
		Details: map[string]interface{}{
			"pnr":            b.PNR,
			"trip_id":        b.TripID,
			"channel":        b.Channel,
			"total_amount":   b.TotalAmount,
			"payment_status": b.PaymentStatus,
		},
	})
	s.notifier.BookingConfirmed(ctx, b)
}

// releaseBookingSeats frees the seats of a cancelled or refunded booking. The booking
// change is already durable, so failures are logged for operators instead of returned.
func releaseBookingSeats(ctx context.Context, inv *inventory.Inventory, logger *logrus.Logger, b *models.Booking) {
	released, err := inv.ReleaseBooking(context.WithoutCancel(ctx), b.TripID, b.ID)
	switch {
	case errors.Is(err, models.ErrTripNotFound):
		logger.WithFields(logrus.Fields{
			"booking_id": b.ID,
			"trip_id":    b.TripID,
		}).Info("Trip archived, no seats to release")
	case err != nil:
		logger.WithError(err).WithFields(logrus.Fields{
			"alert":      true,
			"booking_id": b.ID,
			"trip_id":    b.TripID,
		}).Error("Failed to release booking seats")
	default:
		logger.WithFields(logrus.Fields{
			"booking_id": b.ID,
			"released":   released,
		}).Debug("Booking seats returned to inventory")
	}
}

func priceOf(avail *models.SeatAvailability, seats []string) int64 {
	prices := make(map[string]int64, len(avail.Seats))
	for _, s := range avail.Seats {
		prices[s.Number] = s.Price
	}
	var total int64
	for _, s := range seats {
		total += prices[s]
	}
	return total
}

// canManageBooking lets admins, staff of the booking's agency and the creator act
func canManageBooking(p models.Principal, b *models.Booking) bool {
	if p.CanActForAgency(b.AgencyID) {
		return true
	}
	return b.CreatedBy != nil && *b.CreatedBy == p.UserID
}
