package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-engine/internal/models"
)

const holdColumns = `id, trip_id, seat_numbers, status, created_at, expires_at, updated_at, created_by, booking_id`

// TripInventoryRepository persists trips, their seat catalog and seat holds.
// It is the durable side of inventory.Inventory.
type TripInventoryRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewTripInventoryRepository creates a new trip inventory repository
func NewTripInventoryRepository(db *sqlx.DB, logger *logrus.Logger) *TripInventoryRepository {
	return &TripInventoryRepository{db: db, logger: logger}
}

// ============================================================================
// TRIPS
// ============================================================================

// LoadTrip reads an ACTIVE trip with its seats in catalog order and its ACTIVE holds
func (r *TripInventoryRepository) LoadTrip(ctx context.Context, tripID string) (*models.TripSnapshot, error) {
	snap := &models.TripSnapshot{}

	err := r.db.GetContext(ctx, &snap.Trip, `
		SELECT id, agency_id, departure_at, status, created_at
		FROM trips
		WHERE id = $1 AND status = 'ACTIVE'`, tripID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load trip: %w", err)
	}

	err = r.db.SelectContext(ctx, &snap.Seats, `
		SELECT trip_id, seat_number, position, price, state, hold_id, booking_id
		FROM trip_seats
		WHERE trip_id = $1
		ORDER BY position`, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to load trip seats: %w", err)
	}

	err = r.db.SelectContext(ctx, &snap.Holds, `
		SELECT `+holdColumns+`
		FROM seat_holds
		WHERE trip_id = $1 AND status = 'ACTIVE'`, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active holds: %w", err)
	}

	return snap, nil
}

// CreateTrip inserts the trip header and every seat as FREE
func (r *TripInventoryRepository) CreateTrip(ctx context.Context, trip *models.Trip, seats []models.Seat) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO trips (id, agency_id, departure_at, status, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			trip.ID, trip.AgencyID, trip.DepartureAt, trip.Status, trip.CreatedAt)
		if isUniqueViolation(err, "") {
			return fmt.Errorf("%w: %s", models.ErrTripExists, trip.ID)
		}
		if err != nil {
			return fmt.Errorf("failed to insert trip: %w", err)
		}

		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO trip_seats (trip_id, seat_number, position, price, state)
			VALUES (:trip_id, :seat_number, :position, :price, :state)`, seats)
		if err != nil {
			return fmt.Errorf("failed to insert trip seats: %w", err)
		}
		return nil
	})
}

// ArchiveTrip marks a trip archived so it is no longer loaded
func (r *TripInventoryRepository) ArchiveTrip(ctx context.Context, tripID string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE trips SET status = 'ARCHIVED'
		WHERE id = $1 AND status = 'ACTIVE'`, tripID)
	if err != nil {
		return fmt.Errorf("failed to archive trip: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", models.ErrTripNotFound, tripID)
	}
	return nil
}

// ============================================================================
// HOLDS AND SEAT STATE
// ============================================================================

// FindHold returns nil, nil when the hold does not exist
func (r *TripInventoryRepository) FindHold(ctx context.Context, holdID uuid.UUID) (*models.Hold, error) {
	var hold models.Hold
	err := r.db.GetContext(ctx, &hold, `SELECT `+holdColumns+` FROM seat_holds WHERE id = $1`, holdID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get hold: %w", err)
	}
	return &hold, nil
}

// Apply upserts the hold row and moves every listed seat in one transaction.
// Each seat update only lands if the row is still in the transition's prior state;
// a missing or diverged seat aborts the whole change.
func (r *TripInventoryRepository) Apply(ctx context.Context, change *models.InventoryChange) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if h := change.Hold; h != nil {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO seat_holds (`+holdColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				ON CONFLICT (id) DO UPDATE SET
					status = EXCLUDED.status,
					expires_at = EXCLUDED.expires_at,
					updated_at = EXCLUDED.updated_at,
					booking_id = EXCLUDED.booking_id`,
				h.ID, h.TripID, h.SeatNumbers, h.Status, h.CreatedAt, h.ExpiresAt, h.UpdatedAt, h.CreatedBy, h.BookingID)
			if err != nil {
				return fmt.Errorf("failed to save hold: %w", err)
			}
		}

		for _, s := range change.Seats {
			result, err := tx.ExecContext(ctx, `
				UPDATE trip_seats
				SET state = $3, hold_id = $4, booking_id = $5, updated_at = NOW()
				WHERE trip_id = $1 AND seat_number = $2
				  AND state = $6
				  AND hold_id IS NOT DISTINCT FROM $7::uuid
				  AND booking_id IS NOT DISTINCT FROM $8::uuid`,
				change.TripID, s.SeatNumber, s.State, s.HoldID, s.BookingID,
				s.PrevState, s.PrevHoldID, s.PrevBookingID)
			if err != nil {
				return fmt.Errorf("failed to update seat %s: %w", s.SeatNumber, err)
			}
			rows, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}
			if rows != 1 {
				return fmt.Errorf("seat %s on trip %s: %w", s.SeatNumber, change.TripID, models.ErrSeatDiverged)
			}
		}
		return nil
	})
}

// OverdueHoldTrips lists trips that have ACTIVE holds with expires_at <= now
func (r *TripInventoryRepository) OverdueHoldTrips(ctx context.Context, now time.Time) ([]string, error) {
	trips := []string{}
	err := r.db.SelectContext(ctx, &trips, `
		SELECT DISTINCT trip_id
		FROM seat_holds
		WHERE status = 'ACTIVE' AND expires_at <= $1
		ORDER BY trip_id`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list trips with overdue holds: %w", err)
	}
	return trips, nil
}

// ExpireOverdueHolds expires every ACTIVE hold with expires_at <= now directly in the
// database and frees its seats. A running server notices on its next write to an
// affected seat and reloads the trip.
func (r *TripInventoryRepository) ExpireOverdueHolds(ctx context.Context, now time.Time) (int, error) {
	var expired []string
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		err := tx.SelectContext(ctx, &expired, `
			UPDATE seat_holds
			SET status = 'EXPIRED', updated_at = $1
			WHERE status = 'ACTIVE' AND expires_at <= $1
			RETURNING id::text`, now)
		if err != nil {
			return fmt.Errorf("failed to expire holds: %w", err)
		}
		if len(expired) == 0 {
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE trip_seats
			SET state = 'FREE', hold_id = NULL, updated_at = $2
			WHERE state = 'HELD' AND hold_id = ANY($1::uuid[])`,
			pq.Array(expired), now)
		if err != nil {
			return fmt.Errorf("failed to free held seats: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if len(expired) > 0 {
		r.logger.WithField("count", len(expired)).Info("Overdue holds expired in database")
	}
	return len(expired), nil
}
