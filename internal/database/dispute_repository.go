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

const disputeColumns = `
	id, booking_id, raised_by, reason, amount_requested, status,
	resolution, created_at, updated_at, resolved_at`

// DisputeRepository handles dispute database operations
type DisputeRepository struct {
	db *sqlx.DB
}

// NewDisputeRepository creates a new dispute repository
func NewDisputeRepository(db *sqlx.DB) *DisputeRepository {
	return &DisputeRepository{db: db}
}

// Create inserts a new OPEN dispute
func (r *DisputeRepository) Create(ctx context.Context, d *models.Dispute) error {
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO disputes (id, booking_id, raised_by, reason, amount_requested, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		d.ID, d.BookingID, d.RaisedBy, d.Reason, d.AmountRequested, d.Status,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create dispute: %w", err)
	}
	return nil
}

// GetByID retrieves a dispute by id
func (r *DisputeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	var d models.Dispute
	err := r.db.GetContext(ctx, &d, `SELECT `+disputeColumns+` FROM disputes WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrDisputeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dispute: %w", err)
	}
	return &d, nil
}

// Transition advances the dispute if its status is still one of from.
// resolved_at is stamped on the first move into a terminal status.
func (r *DisputeRepository) Transition(ctx context.Context, id uuid.UUID, to models.DisputeStatus, from []string, resolution *string) (*models.Dispute, error) {
	query := `
		UPDATE disputes
		SET status = $2,
		    resolution = COALESCE($3, resolution),
		    resolved_at = CASE WHEN $4 THEN NOW() ELSE resolved_at END,
		    updated_at = NOW()
		WHERE id = $1 AND status = ANY($5)
		RETURNING ` + disputeColumns

	var d models.Dispute
	err := r.db.GetContext(ctx, &d, query, id, to, resolution, to.IsTerminal(), pq.Array(from))
	if errors.Is(err, sql.ErrNoRows) {
		current, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, &models.TransitionError{Entity: "dispute", ID: id.String(), From: string(current.Status), To: string(to)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update dispute: %w", err)
	}
	return &d, nil
}
