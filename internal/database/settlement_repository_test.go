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

var settlementRowColumns = []string{
	"id", "agency_id", "period", "gross_revenue", "platform_fee", "net_revenue",
	"fee_rate_bps", "booking_count", "currency", "status", "transaction_id",
	"failure_reason", "created_at", "updated_at", "paid_at",
}

func settlementRows(id uuid.UUID, status models.SettlementStatus, gross, fee int64, count int) *sqlmock.Rows {
	now := time.Date(2025, 4, 1, 2, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(settlementRowColumns).AddRow(
		id.String(), "agency-1", "2025-03", gross, fee, gross-fee,
		int64(1000), int64(count), "XAF", string(status), nil,
		nil, now, now, nil,
	)
}

func TestCreateForPeriod(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSettlementRepository(db)
	ctx := context.Background()

	period, err := models.ParsePeriod("2025-03")
	require.NoError(t, err)

	t.Run("Claims bookings and writes totals", func(t *testing.T) {
		s := &models.Settlement{ID: uuid.New(), AgencyID: "agency-1", FeeRateBps: 1000, Currency: "XAF"}

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO settlements`).
			WithArgs(s.ID, "agency-1", "2025-03", int64(1000), "XAF").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`UPDATE bookings\s+SET settlement_id`).
			WithArgs(s.ID, "agency-1", period.Start, period.End).
			WillReturnRows(sqlmock.NewRows([]string{"total_amount"}).AddRow(int64(7000)).AddRow(int64(7005)))
		mock.ExpectQuery(`UPDATE settlements\s+SET gross_revenue`).
			WithArgs(s.ID, int64(14005), int64(1401), int64(12604), 2).
			WillReturnRows(settlementRows(s.ID, models.SettlementPending, 14005, 1401, 2))
		mock.ExpectCommit()

		out, err := repo.CreateForPeriod(ctx, s, period)
		require.NoError(t, err)
		assert.Equal(t, int64(14005), out.GrossRevenue)
		assert.Equal(t, out.GrossRevenue, out.PlatformFee+out.NetRevenue)
		assert.Equal(t, 2, out.BookingCount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Late payment lands in the month it was paid", func(t *testing.T) {
		// Booked on 03-31, paid on 04-01 after March was already settled
		april, err := models.ParsePeriod("2025-04")
		require.NoError(t, err)
		s := &models.Settlement{ID: uuid.New(), AgencyID: "agency-1", FeeRateBps: 1000, Currency: "XAF"}

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO settlements`).
			WithArgs(s.ID, "agency-1", "2025-04", int64(1000), "XAF").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`UPDATE bookings\s+SET settlement_id .+ AND paid_at >= \$3 AND paid_at < \$4`).
			WithArgs(s.ID, "agency-1", april.Start, april.End).
			WillReturnRows(sqlmock.NewRows([]string{"total_amount"}).AddRow(int64(7000)))
		mock.ExpectQuery(`UPDATE settlements\s+SET gross_revenue`).
			WithArgs(s.ID, int64(7000), int64(700), int64(6300), 1).
			WillReturnRows(settlementRows(s.ID, models.SettlementPending, 7000, 700, 1))
		mock.ExpectCommit()

		out, err := repo.CreateForPeriod(ctx, s, april)
		require.NoError(t, err)
		assert.Equal(t, 1, out.BookingCount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Period already settled", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO settlements`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		_, err := repo.CreateForPeriod(ctx, &models.Settlement{ID: uuid.New(), AgencyID: "agency-1"}, period)
		assert.ErrorIs(t, err, ErrSettlementExists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSettlementTransition(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSettlementRepository(db)
	ctx := context.Background()
	id := uuid.New()
	txID := "PAYOUT-7"

	t.Run("Paid", func(t *testing.T) {
		mock.ExpectQuery(`UPDATE settlements`).
			WithArgs(id, models.SettlementPaid, txID, nil, sqlmock.AnyArg()).
			WillReturnRows(settlementRows(id, models.SettlementPaid, 10000, 1000, 1))

		s, err := repo.Transition(ctx, id, models.SettlementPaid, models.SettlementSourcesOf(models.SettlementPaid), &txID, nil)
		require.NoError(t, err)
		assert.Equal(t, models.SettlementPaid, s.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Lost the race", func(t *testing.T) {
		mock.ExpectQuery(`UPDATE settlements`).
			WillReturnRows(sqlmock.NewRows(settlementRowColumns))
		mock.ExpectQuery(`SELECT .+ FROM settlements WHERE id`).
			WithArgs(id).
			WillReturnRows(settlementRows(id, models.SettlementFailed, 10000, 1000, 1))

		_, err := repo.Transition(ctx, id, models.SettlementPaid, models.SettlementSourcesOf(models.SettlementPaid), &txID, nil)
		assert.ErrorIs(t, err, models.ErrInvalidTransition)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Unknown settlement", func(t *testing.T) {
		mock.ExpectQuery(`UPDATE settlements`).
			WillReturnRows(sqlmock.NewRows(settlementRowColumns))
		mock.ExpectQuery(`SELECT .+ FROM settlements WHERE id`).
			WillReturnRows(sqlmock.NewRows(settlementRowColumns))

		_, err := repo.Transition(ctx, id, models.SettlementFailed, models.SettlementSourcesOf(models.SettlementFailed), nil, nil)
		assert.ErrorIs(t, err, models.ErrSettlementNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestListAgenciesWithUnsettled(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSettlementRepository(db)
	period := models.PeriodOf(time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC))

	mock.ExpectQuery(`SELECT DISTINCT agency_id .+ AND paid_at >= \$1 AND paid_at < \$2`).
		WithArgs(period.Start, period.End).
		WillReturnRows(sqlmock.NewRows([]string{"agency_id"}).AddRow("agency-1").AddRow("agency-2"))

	agencies, err := repo.ListAgenciesWithUnsettled(context.Background(), period)
	require.NoError(t, err)
	assert.Equal(t, []string{"agency-1", "agency-2"}, agencies)
	assert.NoError(t, mock.ExpectationsWereMet())
}
