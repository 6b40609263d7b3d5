package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/smarttransit/seat-booking-engine/internal/models"
)

// ErrSettlementExists means the agency already has a settlement for the period
var ErrSettlementExists = errors.New("settlement already exists for period")

const settlementColumns = `
	id, agency_id, period, gross_revenue, platform_fee, net_revenue,
	fee_rate_bps, booking_count, currency, status, transaction_id,
	failure_reason, created_at, updated_at, paid_at`

// SettlementRepository handles settlement database operations
type SettlementRepository struct {
	db *sqlx.DB
}

// NewSettlementRepository creates a new settlement repository
func NewSettlementRepository(db *sqlx.DB) *SettlementRepository {
	return &SettlementRepository{db: db}
}

// CreateForPeriod inserts the settlement, claims every unsettled CONFIRMED+PAID booking
// of the agency paid inside the period and writes the totals, all in one transaction.
// Bookings are claimed by setting settlement_id, so no booking is ever counted twice.
func (r *SettlementRepository) CreateForPeriod(ctx context.Context, s *models.Settlement, period models.Period) (*models.Settlement, error) {
	var out models.Settlement
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO settlements (id, agency_id, period, fee_rate_bps, currency, status)
			VALUES ($1, $2, $3, $4, $5, 'PENDING')
			ON CONFLICT (agency_id, period) DO NOTHING`,
			s.ID, s.AgencyID, period.Key, s.FeeRateBps, s.Currency)
		if err != nil {
			return fmt.Errorf("failed to insert settlement: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return ErrSettlementExists
		}

		var amounts []int64
		err = tx.SelectContext(ctx, &amounts, `
			UPDATE bookings
			SET settlement_id = $1, updated_at = NOW()
			WHERE agency_id = $2
			  AND status = 'CONFIRMED'
			  AND payment_status = 'PAID'
			  AND settlement_id IS NULL
			  AND paid_at >= $3 AND paid_at < $4
			RETURNING total_amount`,
			s.ID, s.AgencyID, period.Start, period.End)
		if err != nil {
			return fmt.Errorf("failed to claim bookings: %w", err)
		}

		var gross int64
		for _, a := range amounts {
			gross += a
		}
		split := models.ComputeSplit(gross, s.FeeRateBps)

		err = tx.GetContext(ctx, &out, `
			UPDATE settlements
			SET gross_revenue = $2, platform_fee = $3, net_revenue = $4,
			    booking_count = $5, updated_at = NOW()
			WHERE id = $1
			RETURNING `+settlementColumns,
			s.ID, split.Gross, split.Fee, split.Net, len(amounts))
		if err != nil {
			return fmt.Errorf("failed to write settlement totals: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetByID retrieves a settlement by id
func (r *SettlementRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Settlement, error) {
	return r.get(ctx, `SELECT `+settlementColumns+` FROM settlements WHERE id = $1`, id)
}

// GetByAgencyPeriod retrieves the settlement of an agency for a period key
func (r *SettlementRepository) GetByAgencyPeriod(ctx context.Context, agencyID, period string) (*models.Settlement, error) {
	return r.get(ctx, `SELECT `+settlementColumns+` FROM settlements WHERE agency_id = $1 AND period = $2`, agencyID, period)
}

// Transition moves a settlement to `to` only if its current status is one of from
func (r *SettlementRepository) Transition(ctx context.Context, id uuid.UUID, to models.SettlementStatus, from []string, transactionID, reason *string) (*models.Settlement, error) {
	query := `
		UPDATE settlements
		SET status = $2,
		    transaction_id = COALESCE($3, transaction_id),
		    failure_reason = COALESCE($4, failure_reason),
		    paid_at = CASE WHEN $2::text = 'PAID' THEN NOW() ELSE paid_at END,
		    updated_at = NOW()
		WHERE id = $1 AND status = ANY($5)
		RETURNING ` + settlementColumns

	var s models.Settlement
	err := r.db.GetContext(ctx, &s, query, id, to, transactionID, reason, pq.Array(from))
	if errors.Is(err, sql.ErrNoRows) {
		current, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, &models.TransitionError{Entity: "settlement", ID: id.String(), From: string(current.Status), To: string(to)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update settlement: %w", err)
	}
	return &s, nil
}

// ListAgenciesWithUnsettled returns agencies that have claimable bookings in the period
func (r *SettlementRepository) ListAgenciesWithUnsettled(ctx context.Context, period models.Period) ([]string, error) {
	agencies := []string{}
	err := r.db.SelectContext(ctx, &agencies, `
		SELECT DISTINCT agency_id
		FROM bookings
		WHERE status = 'CONFIRMED'
		  AND payment_status = 'PAID'
		  AND settlement_id IS NULL
		  AND paid_at >= $1 AND paid_at < $2
		ORDER BY agency_id`, period.Start, period.End)
	if err != nil {
		return nil, fmt.Errorf("failed to list agencies with unsettled bookings: %w", err)
	}
	return agencies, nil
}

func (r *SettlementRepository) get(ctx context.Context, query string, args ...interface{}) (*models.Settlement, error) {
	var s models.Settlement
	err := r.db.GetContext(ctx, &s, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrSettlementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement: %w", err)
	}
	return &s, nil
}
