package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-engine/internal/database"
	"github.com/smarttransit/seat-booking-engine/internal/models"
)

// SettlementStore is the settlement persistence
type SettlementStore interface {
	CreateForPeriod(ctx context.Context, s *models.Settlement, period models.Period) (*models.Settlement, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Settlement, error)
	GetByAgencyPeriod(ctx context.Context, agencyID, period string) (*models.Settlement, error)
	Transition(ctx context.Context, id uuid.UUID, to models.SettlementStatus, from []string, transactionID, reason *string) (*models.Settlement, error)
	ListAgenciesWithUnsettled(ctx context.Context, period models.Period) ([]string, error)
}

// SettlementConfig is the fee snapshot applied to new settlements
type SettlementConfig struct {
	FeeRate  models.BasisPoints
	Currency string
}

// SettlementService aggregates paid bookings into per-agency payouts
type SettlementService struct {
	settlements SettlementStore
	config      SettlementConfig
	audit       Auditor
	clock       clockwork.Clock
	logger      *logrus.Logger
}

// NewSettlementService creates a new settlement service
func NewSettlementService(settlements SettlementStore, cfg SettlementConfig, audit Auditor, clock clockwork.Clock, logger *logrus.Logger) *SettlementService {
	return &SettlementService{
		settlements: settlements,
		config:      cfg,
		audit:       audit,
		clock:       clock,
		logger:      logger,
	}
}

// ComputeForPeriod creates the agency's settlement for a closed period. Running it
// again returns the existing settlement unchanged, unless that one is already PAID.
func (s *SettlementService) ComputeForPeriod(ctx context.Context, p models.Principal, req *models.ComputeSettlementRequest) (*models.SettlementResult, error) {
	if !p.IsAdmin() {
		return nil, models.ErrForbidden
	}
	period, err := models.ParsePeriod(req.Period)
	if err != nil {
		return nil, err
	}
	return s.compute(ctx, p.ActorID(), req.AgencyID, period)
}

func (s *SettlementService) compute(ctx context.Context, actor *uuid.UUID, agencyID string, period models.Period) (*models.SettlementResult, error) {
	if period.End.After(s.clock.Now()) {
		return nil, models.NewValidationError("period", "period %s has not closed yet", period.Key)
	}

	existing, err := s.settlements.GetByAgencyPeriod(ctx, agencyID, period.Key)
	switch {
	case err == nil:
		return s.existing(existing)
	case !errors.Is(err, models.ErrSettlementNotFound):
		return nil, err
	}

	created, err := s.settlements.CreateForPeriod(ctx, &models.Settlement{
		ID:         uuid.New(),
		AgencyID:   agencyID,
		Period:     period.Key,
		FeeRateBps: s.config.FeeRate,
		Currency:   s.config.Currency,
		Status:     models.SettlementPending,
	}, period)
	if errors.Is(err, database.ErrSettlementExists) {
		existing, err := s.settlements.GetByAgencyPeriod(ctx, agencyID, period.Key)
		if err != nil {
			return nil, err
		}
		return s.existing(existing)
	}
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"settlement_id": created.ID,
		"agency_id":     agencyID,
		"period":        period.Key,
		"gross":         created.GrossRevenue,
		"fee":           created.PlatformFee,
		"net":           created.NetRevenue,
		"bookings":      created.BookingCount,
	}).Info("Settlement computed")

	s.audit.Record(ctx, AuditEvent{
		UserID:     actor,
		Action:     "settlement_compute",
		EntityType: "settlement",
		EntityID:   created.ID.String(),
		After:      string(created.Status),
		Details: map[string]interface{}{
			"agency_id": agencyID,
			"period":    period.Key,
			"gross":     created.GrossRevenue,
			"fee_bps":   created.FeeRateBps,
		},
	})
	return &models.SettlementResult{Settlement: created, Created: true}, nil
}

func (s *SettlementService) existing(st *models.Settlement) (*models.SettlementResult, error) {
	if st.Status == models.SettlementPaid {
		return nil, fmt.Errorf("%w: %s %s", models.ErrAlreadySettled, st.AgencyID, st.Period)
	}
	return &models.SettlementResult{Settlement: st, Created: false}, nil
}

// UpdateStatus moves a settlement forward. Setting the status it already has is a no-op.
func (s *SettlementService) UpdateStatus(ctx context.Context, p models.Principal, req *models.UpdateSettlementRequest) (*models.Settlement, error) {
	if !p.IsAdmin() {
		return nil, models.ErrForbidden
	}
	if !req.Status.IsKnown() {
		return nil, models.NewValidationError("status", "unknown settlement status %q", req.Status)
	}

	current, err := s.settlements.GetByID(ctx, req.SettlementID)
	if err != nil {
		return nil, err
	}
	if current.Status == req.Status {
		return current, nil
	}
	if req.Status == models.SettlementPaid && (req.TransactionID == nil || *req.TransactionID == "") {
		return nil, models.NewValidationError("transaction_id", "required when marking a settlement PAID")
	}
	if !current.Status.CanTransitionTo(req.Status) {
		return nil, &models.TransitionError{
			Entity: "settlement",
			ID:     current.ID.String(),
			From:   string(current.Status),
			To:     string(req.Status),
		}
	}

	updated, err := s.settlements.Transition(ctx, current.ID, req.Status,
		models.SettlementSourcesOf(req.Status), req.TransactionID, req.Reason)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"settlement_id": updated.ID,
		"from":          current.Status,
		"to":            updated.Status,
	}).Info("Settlement status updated")

	s.audit.Record(ctx, AuditEvent{
		UserID:     p.ActorID(),
		Action:     "settlement_update",
		EntityType: "settlement",
		EntityID:   updated.ID.String(),
		Before:     string(current.Status),
		After:      string(updated.Status),
	})
	return updated, nil
}

// MarkPaid records the payout reference and moves the settlement to PAID
func (s *SettlementService) MarkPaid(ctx context.Context, p models.Principal, id uuid.UUID, transactionID string) (*models.Settlement, error) {
	return s.UpdateStatus(ctx, p, &models.UpdateSettlementRequest{
		SettlementID:  id,
		Status:        models.SettlementPaid,
		TransactionID: &transactionID,
	})
}

// MarkFailed moves a PENDING or PROCESSING settlement to FAILED
func (s *SettlementService) MarkFailed(ctx context.Context, p models.Principal, id uuid.UUID, reason string) (*models.Settlement, error) {
	req := &models.UpdateSettlementRequest{SettlementID: id, Status: models.SettlementFailed}
	if reason != "" {
		req.Reason = &reason
	}
	return s.UpdateStatus(ctx, p, req)
}

// Get returns a settlement; agency staff only see their own agency's
func (s *SettlementService) Get(ctx context.Context, p models.Principal, id uuid.UUID) (*models.Settlement, error) {
	st, err := s.settlements.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.CanActForAgency(st.AgencyID) {
		return nil, models.ErrForbidden
	}
	return st, nil
}

// RunMonthly settles the previous calendar month for every agency with unsettled
// paid bookings. Agencies that fail are reported together after the rest ran.
func (s *SettlementService) RunMonthly(ctx context.Context) (int, error) {
	period := models.PeriodOf(s.clock.Now()).Previous()

	agencies, err := s.settlements.ListAgenciesWithUnsettled(ctx, period)
	if err != nil {
		return 0, err
	}

	created := 0
	var errs []error
	for _, agencyID := range agencies {
		result, err := s.compute(ctx, nil, agencyID, period)
		if err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"agency_id": agencyID,
				"period":    period.Key,
			}).Error("Monthly settlement failed")
			errs = append(errs, fmt.Errorf("agency %s: %w", agencyID, err))
			continue
		}
		if result.Created {
			created++
		}
	}
	return created, errors.Join(errs...)
}
