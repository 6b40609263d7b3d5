package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-engine/internal/models"
)

var (
	// ErrDuplicateCallback means the transaction id is already in the ledger
	ErrDuplicateCallback = errors.New("payment callback already recorded")
	// ErrStalePayment means the booking or its payment status moved after it was read
	ErrStalePayment = errors.New("booking payment status changed concurrently")
)

// PaymentRepository owns the payment_callbacks idempotency ledger
type PaymentRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *sqlx.DB, logger *logrus.Logger) *PaymentRepository {
	return &PaymentRepository{db: db, logger: logger}
}

// RecordCallback inserts the ledger row and, when transition is non-nil, applies the
// guarded booking update in the same transaction. The insert is the atomic
// insert-if-absent keyed on transaction_id: a second delivery, even a concurrent
// one, gets ErrDuplicateCallback and changes nothing.
func (r *PaymentRepository) RecordCallback(ctx context.Context, cb *models.PaymentCallback, transition *models.PaymentTransition) error {
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO payment_callbacks (
				transaction_id, booking_id, reference, status, amount, outcome, detail, received_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (transaction_id) DO NOTHING`,
			cb.TransactionID, cb.BookingID, cb.Reference, cb.Status, cb.Amount, cb.Outcome, cb.Detail, cb.ReceivedAt)
		if err != nil {
			return fmt.Errorf("failed to record payment callback: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return ErrDuplicateCallback
		}

		if transition == nil {
			return nil
		}
		result, err = tx.ExecContext(ctx, `
			UPDATE bookings
			SET payment_status = $2,
			    reconciliation_flag = reconciliation_flag OR $3,
			    paid_at = COALESCE($6, paid_at),
			    updated_at = NOW()
			WHERE id = $1 AND payment_status = $4 AND status = $5`,
			transition.BookingID, transition.To, transition.Flag, transition.From,
			transition.Booking, transition.PaidAt)
		if err != nil {
			return fmt.Errorf("failed to update booking payment status: %w", err)
		}
		rows, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return ErrStalePayment
		}
		return nil
	})
	if err != nil && !errors.Is(err, ErrDuplicateCallback) && !errors.Is(err, ErrStalePayment) {
		r.logger.WithError(err).WithField("transaction_id", cb.TransactionID).
			Error("Failed to record payment callback")
	}
	return err
}

// GetCallback returns the ledger row for a transaction id
func (r *PaymentRepository) GetCallback(ctx context.Context, transactionID string) (*models.PaymentCallback, error) {
	var cb models.PaymentCallback
	err := r.db.GetContext(ctx, &cb, `
		SELECT transaction_id, booking_id, reference, status, amount, outcome, detail, received_at
		FROM payment_callbacks
		WHERE transaction_id = $1`, transactionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment callback: %w", err)
	}
	return &cb, nil
}
