package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/smarttransit/seat-booking-engine/internal/models"
)

// ErrDuplicatePNR is returned by Insert when the generated PNR is already taken
var ErrDuplicatePNR = errors.New("pnr already in use")

const bookingColumns = `
	id, pnr, trip_id, agency_id, hold_id, channel, passengers, contact,
	total_amount, currency, status, payment_status, payment_method,
	reconciliation_flag, settlement_id, cancel_reason, created_by,
	created_at, updated_at, paid_at`

// BookingRepository handles booking database operations
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository creates a new booking repository
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// Insert stores a new booking and fills the server timestamps
func (r *BookingRepository) Insert(ctx context.Context, b *models.Booking) error {
	query := `
		INSERT INTO bookings (
			id, pnr, trip_id, agency_id, hold_id, channel,
			passengers, contact, total_amount, currency,
			status, payment_status, payment_method, created_by, paid_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			CASE WHEN $12::text = 'PAID' THEN NOW() END
		) RETURNING created_at, updated_at, paid_at`

	err := r.db.QueryRowxContext(ctx, query,
		b.ID, b.PNR, b.TripID, b.AgencyID, b.HoldID, b.Channel,
		b.Passengers, b.Contact, b.TotalAmount, b.Currency,
		b.Status, b.PaymentStatus, b.PaymentMethod, b.CreatedBy,
	).Scan(&b.CreatedAt, &b.UpdatedAt, &b.PaidAt)
	if isUniqueViolation(err, "bookings_pnr_key") {
		return ErrDuplicatePNR
	}
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

// GetByID retrieves a booking by id
func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	return r.get(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
}

// GetByPNR retrieves a booking by its passenger reference
func (r *BookingRepository) GetByPNR(ctx context.Context, pnr string) (*models.Booking, error) {
	return r.get(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE pnr = $1`, pnr)
}

// ListFlagged returns bookings waiting for manual payment reconciliation, oldest first
func (r *BookingRepository) ListFlagged(ctx context.Context, limit int) ([]models.Booking, error) {
	bookings := []models.Booking{}
	err := r.db.SelectContext(ctx, &bookings, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE reconciliation_flag = TRUE
		ORDER BY updated_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list flagged bookings: %w", err)
	}
	return bookings, nil
}

// ============================================================================
// GUARDED STATUS UPDATES
// ============================================================================

// Cancel moves a CONFIRMED booking to CANCELLED
func (r *BookingRepository) Cancel(ctx context.Context, id uuid.UUID, reason string) (*models.Booking, error) {
	query := `
		UPDATE bookings
		SET status = 'CANCELLED', cancel_reason = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'CONFIRMED'
		RETURNING ` + bookingColumns

	var b models.Booking
	err := r.db.GetContext(ctx, &b, query, id, reason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.explainMiss(ctx, id, string(models.BookingCancelled))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to cancel booking: %w", err)
	}
	return &b, nil
}

// Refund moves a PAID booking that is CONFIRMED or CANCELLED to REFUNDED on both axes
func (r *BookingRepository) Refund(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	query := `
		UPDATE bookings
		SET status = 'REFUNDED', payment_status = 'REFUNDED', updated_at = NOW()
		WHERE id = $1
		  AND payment_status = 'PAID'
		  AND status IN ('CONFIRMED', 'CANCELLED')
		RETURNING ` + bookingColumns

	var b models.Booking
	err := r.db.GetContext(ctx, &b, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.explainMiss(ctx, id, string(models.BookingRefunded))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to refund booking: %w", err)
	}
	return &b, nil
}

// ClearFlag marks a flagged booking as reconciled
func (r *BookingRepository) ClearFlag(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE bookings SET reconciliation_flag = FALSE, updated_at = NOW()
		WHERE id = $1 AND reconciliation_flag = TRUE`, id)
	if err != nil {
		return fmt.Errorf("failed to clear reconciliation flag: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return models.ErrBookingNotFound
	}
	return nil
}

func (r *BookingRepository) get(ctx context.Context, query string, arg interface{}) (*models.Booking, error) {
	var b models.Booking
	err := r.db.GetContext(ctx, &b, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &b, nil
}

// explainMiss turns a guarded update that matched nothing into not-found or a transition error
func (r *BookingRepository) explainMiss(ctx context.Context, id uuid.UUID, to string) error {
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	from := string(current.Status)
	if to == string(models.BookingRefunded) && current.PaymentStatus != models.PaymentPaid {
		from = "payment " + string(current.PaymentStatus)
	}
	return &models.TransitionError{Entity: "booking", ID: id.String(), From: from, To: to}
}
