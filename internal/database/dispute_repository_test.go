package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/smarttransit/seat-booking-engine/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var disputeRowColumns = []string{
	"id", "booking_id", "raised_by", "reason", "amount_requested", "status",
	"resolution", "created_at", "updated_at", "resolved_at",
}

func TestDisputeRepository(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDisputeRepository(db)
	ctx := context.Background()
	now := time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC)

	d := &models.Dispute{
		ID:              uuid.New(),
		BookingID:       uuid.New(),
		Reason:          "bus left without me",
		AmountRequested: 3500,
		Status:          models.DisputeOpen,
	}

	t.Run("Create", func(t *testing.T) {
		mock.ExpectQuery(`INSERT INTO disputes`).
			WithArgs(d.ID, d.BookingID, nil, d.Reason, int64(3500), models.DisputeOpen).
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

		require.NoError(t, repo.Create(ctx, d))
		assert.Equal(t, now, d.CreatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Resolve stamps resolved_at", func(t *testing.T) {
		resolution := "refunded one seat"
		mock.ExpectQuery(`UPDATE disputes`).
			WithArgs(d.ID, models.DisputeResolved, resolution, true, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(disputeRowColumns).AddRow(
				d.ID.String(), d.BookingID.String(), nil, d.Reason, int64(3500), "RESOLVED",
				resolution, now, now, now,
			))

		out, err := repo.Transition(ctx, d.ID, models.DisputeResolved, []string{"OPEN", "UNDER_REVIEW"}, &resolution)
		require.NoError(t, err)
		assert.Equal(t, models.DisputeResolved, out.Status)
		require.NotNil(t, out.ResolvedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Terminal dispute", func(t *testing.T) {
		mock.ExpectQuery(`UPDATE disputes`).
			WillReturnRows(sqlmock.NewRows(disputeRowColumns))
		mock.ExpectQuery(`SELECT .+ FROM disputes WHERE id`).
			WithArgs(d.ID).
			WillReturnRows(sqlmock.NewRows(disputeRowColumns).AddRow(
				d.ID.String(), d.BookingID.String(), nil, d.Reason, int64(3500), "RESOLVED",
				nil, now, now, now,
			))

		_, err := repo.Transition(ctx, d.ID, models.DisputeUnderReview, []string{"OPEN"}, nil)
		var te *models.TransitionError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, "RESOLVED", te.From)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Not found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT .+ FROM disputes WHERE id`).
			WillReturnRows(sqlmock.NewRows(disputeRowColumns))

		_, err := repo.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, models.ErrDisputeNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
