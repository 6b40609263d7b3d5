package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-engine/internal/config"
	"github.com/smarttransit/seat-booking-engine/internal/inventory"
	"github.com/smarttransit/seat-booking-engine/internal/models"
)

// HoldService wraps the seat inventory with TTL bookkeeping, renewal and ownership checks
type HoldService struct {
	inv    *inventory.Inventory
	config config.BookingConfig
	audit  Auditor
	clock  clockwork.Clock
	logger *logrus.Logger
}

// NewHoldService creates a new hold service
func NewHoldService(
	inv *inventory.Inventory,
	cfg config.BookingConfig,
	audit Auditor,
	clock clockwork.Clock,
	logger *logrus.Logger,
) *HoldService {
	return &HoldService{
		inv:    inv,
		config: cfg,
		audit:  audit,
		clock:  clock,
		logger: logger,
	}
}

// CreateHold reserves the requested seats for the configured or requested TTL
func (s *HoldService) CreateHold(ctx context.Context, p models.Principal, req *models.CreateHoldRequest) (*models.Hold, error) {
	if err := req.Validate(s.config.MaxSeatsPerHold); err != nil {
		return nil, err
	}

	ttl := s.config.HoldTTL
	if req.TTLMinutes != nil {
		ttl = time.Duration(*req.TTLMinutes) * time.Minute
		if ttl < s.config.HoldMinTTL || ttl > s.config.HoldMaxTTL {
			return nil, models.NewValidationError("ttl_minutes", "must be between %d and %d minutes",
				int(s.config.HoldMinTTL.Minutes()), int(s.config.HoldMaxTTL.Minutes()))
		}
	}

	hold, err := s.inv.Reserve(ctx, req.TripID, req.SeatNumbers, ttl, p.ActorID())
	if err != nil {
		if errors.Is(err, models.ErrSeatUnavailable) {
			s.logger.WithFields(logrus.Fields{
				"trip_id": req.TripID,
				"seats":   req.SeatNumbers,
				"user_id": p.UserID,
			}).Warn("Seat conflict on hold request")
		}
		return nil, err
	}

	s.audit.Record(ctx, AuditEvent{
		UserID:     p.ActorID(),
		Action:     "hold_create",
		EntityType: "hold",
		EntityID:   hold.ID.String(),
		After:      string(hold.Status),
		Details: map[string]interface{}{
			"trip_id":    hold.TripID,
			"seats":      []string(hold.SeatNumbers),
			"expires_at": hold.ExpiresAt,
		},
	})
	return hold, nil
}

// GetHold returns a hold visible to the principal
func (s *HoldService) GetHold(ctx context.Context, p models.Principal, holdID uuid.UUID) (*models.Hold, error) {
	hold, err := s.inv.GetHold(ctx, holdID)
	if err != nil {
		return nil, err
	}
	if err := authorizeHold(ctx, s.inv, p, hold); err != nil {
		return nil, err
	}
	return hold, nil
}

// Renew extends an ACTIVE, unexpired hold. Expiry is judged by the clock, not by
// whether the sweep has run yet.
func (s *HoldService) Renew(ctx context.Context, p models.Principal, holdID uuid.UUID, req *models.RenewHoldRequest) (*models.Hold, error) {
	if req.ExtendMinutes <= 0 {
		return nil, models.NewValidationError("extend_minutes", "must be positive")
	}
	if _, err := s.GetHold(ctx, p, holdID); err != nil {
		return nil, err
	}

	extendBy := time.Duration(req.ExtendMinutes) * time.Minute
	hold, err := s.inv.Renew(ctx, holdID, extendBy, s.config.HoldMaxTTL)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, AuditEvent{
		UserID:     p.ActorID(),
		Action:     "hold_renew",
		EntityType: "hold",
		EntityID:   hold.ID.String(),
		Before:     string(models.HoldActive),
		After:      string(hold.Status),
		Details:    map[string]interface{}{"expires_at": hold.ExpiresAt},
	})
	return hold, nil
}

// Release gives up a hold. Releasing a hold that is already terminal changes nothing.
func (s *HoldService) Release(ctx context.Context, p models.Principal, holdID uuid.UUID) (*models.Hold, error) {
	before, err := s.GetHold(ctx, p, holdID)
	if err != nil {
		return nil, err
	}

	hold, err := s.inv.Release(ctx, holdID)
	if err != nil {
		return nil, err
	}

	if before.Status != hold.Status {
		s.audit.Record(ctx, AuditEvent{
			UserID:     p.ActorID(),
			Action:     "hold_release",
			EntityType: "hold",
			EntityID:   hold.ID.String(),
			Before:     string(before.Status),
			After:      string(hold.Status),
		})
	}
	return hold, nil
}

// Sweep expires every overdue hold on loaded trips
func (s *HoldService) Sweep(ctx context.Context) (int, error) {
	start := s.clock.Now()
	expired, err := s.inv.Expire(ctx, start)
	if err != nil {
		s.logger.WithError(err).Error("Hold expiry sweep finished with errors")
	}
	if expired > 0 {
		s.logger.WithFields(logrus.Fields{
			"expired":  expired,
			"duration": s.clock.Since(start),
		}).Info("Expired overdue holds")
	}
	return expired, err
}

// authorizeHold lets the creator, admins and staff of the trip's agency act on a hold
func authorizeHold(ctx context.Context, inv *inventory.Inventory, p models.Principal, hold *models.Hold) error {
	if p.IsAdmin() {
		return nil
	}
	if hold.CreatedBy != nil && *hold.CreatedBy == p.UserID {
		return nil
	}
	if p.HasRole(models.RoleAgencyStaff) {
		trip, err := inv.Trip(ctx, hold.TripID)
		if err == nil && p.CanActForAgency(trip.AgencyID) {
			return nil
		}
	}
	return models.ErrForbidden
}
