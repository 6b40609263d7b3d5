package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/smarttransit/seat-booking-engine/internal/inventory"
	"github.com/smarttransit/seat-booking-engine/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bookingFixture struct {
	inv      *inventory.Inventory
	clock    *clockwork.FakeClock
	repo     *fakeBookingRepo
	pnr      *sequencePNR
	notifier *recordingNotifier
	audit    *recordingAuditor
	holds    *HoldService
	svc      *BookingService
}

func setupBookingService(t *testing.T, codes ...string) *bookingFixture {
	if len(codes) == 0 {
		codes = []string{"PNR001", "PNR002", "PNR003", "PNR004"}
	}
	inv, clock := newTestInventory(t)
	f := &bookingFixture{
		inv:      inv,
		clock:    clock,
		repo:     newFakeBookingRepo(),
		pnr:      &sequencePNR{codes: codes},
		notifier: &recordingNotifier{},
		audit:    &recordingAuditor{},
	}
	f.holds = NewHoldService(inv, testBookingConfig(), f.audit, clock, quietLogger())
	f.svc = NewBookingService(inv, f.repo, f.pnr, f.notifier, f.audit, testBookingConfig(), "XAF", quietLogger())
	return f
}

func (f *bookingFixture) hold(t *testing.T, p models.Principal, seats ...string) *models.Hold {
	t.Helper()
	h, err := f.holds.CreateHold(context.Background(), p, &models.CreateHoldRequest{TripID: "trip-1", SeatNumbers: seats})
	require.NoError(t, err)
	return h
}

func (f *bookingFixture) availability(t *testing.T) *models.SeatAvailability {
	t.Helper()
	avail, err := f.inv.Availability(context.Background(), "trip-1")
	require.NoError(t, err)
	return avail
}

func TestCreateFromHold_Success(t *testing.T) {
	f := setupBookingService(t)
	ctx := context.Background()
	p := passenger()
	hold := f.hold(t, p, "A1", "A2")

	booking, err := f.svc.Create(ctx, p, &models.CreateBookingRequest{
		HoldID:     &hold.ID,
		Passengers: passengersFor("A2", "A1"),
		Contact:    testContact,
	})
	require.NoError(t, err)

	assert.Equal(t, "PNR001", booking.PNR)
	assert.Equal(t, models.BookingConfirmed, booking.Status)
	assert.Equal(t, models.PaymentPending, booking.PaymentStatus)
	assert.Equal(t, models.ChannelApp, booking.Channel)
	assert.Equal(t, int64(7000), booking.TotalAmount)
	assert.Equal(t, "agency-1", booking.AgencyID)
	assert.Equal(t, "XAF", booking.Currency)
	require.NotNil(t, booking.HoldID)
	assert.Equal(t, hold.ID, *booking.HoldID)

	avail := f.availability(t)
	assert.Equal(t, 2, avail.Sold)
	assert.Equal(t, 2, avail.Free)

	consumed, err := f.inv.GetHold(ctx, hold.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HoldConsumed, consumed.Status)
	require.NotNil(t, consumed.BookingID)
	assert.Equal(t, booking.ID, *consumed.BookingID)

	assert.Equal(t, []string{"PNR001"}, f.notifier.confirmed)
	assert.Contains(t, f.audit.actions(), "booking_create")
}

func TestCreateFromHold_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("Passenger count mismatch", func(t *testing.T) {
		f := setupBookingService(t)
		p := passenger()
		hold := f.hold(t, p, "A1", "A2")

		_, err := f.svc.CreateFromHold(ctx, p, &models.CreateBookingRequest{HoldID: &hold.ID, Passengers: passengersFor("A1"), Contact: testContact})
		assert.True(t, models.IsValidation(err))

		current, err := f.inv.GetHold(ctx, hold.ID)
		require.NoError(t, err)
		assert.Equal(t, models.HoldActive, current.Status)
		assert.Zero(t, f.pnr.calls)
	})

	t.Run("Passenger on a seat outside the hold", func(t *testing.T) {
		f := setupBookingService(t)
		p := passenger()
		hold := f.hold(t, p, "A1", "A2")

		_, err := f.svc.CreateFromHold(ctx, p, &models.CreateBookingRequest{HoldID: &hold.ID, Passengers: passengersFor("A1", "A3"), Contact: testContact})
		assert.True(t, models.IsValidation(err))
	})

	t.Run("Expired hold", func(t *testing.T) {
		f := setupBookingService(t)
		p := passenger()
		hold := f.hold(t, p, "A1")

		f.clock.Advance(15*time.Minute + time.Second)
		_, err := f.svc.CreateFromHold(ctx, p, &models.CreateBookingRequest{HoldID: &hold.ID, Passengers: passengersFor("A1"), Contact: testContact})
		assert.ErrorIs(t, err, models.ErrHoldExpired)
		assert.Zero(t, f.pnr.calls)
		assert.Empty(t, f.repo.byID)
		assert.Equal(t, 4, f.availability(t).Free)
	})

	t.Run("Consumable up to the deadline", func(t *testing.T) {
		f := setupBookingService(t)
		p := passenger()
		hold := f.hold(t, p, "A1")

		f.clock.Advance(15 * time.Minute)
		_, err := f.svc.CreateFromHold(ctx, p, &models.CreateBookingRequest{HoldID: &hold.ID, Passengers: passengersFor("A1"), Contact: testContact})
		assert.NoError(t, err)
	})

	t.Run("Consumed hold", func(t *testing.T) {
		f := setupBookingService(t)
		p := passenger()
		hold := f.hold(t, p, "A1")
		req := &models.CreateBookingRequest{HoldID: &hold.ID, Passengers: passengersFor("A1"), Contact: testContact}

		_, err := f.svc.CreateFromHold(ctx, p, req)
		require.NoError(t, err)
		_, err = f.svc.CreateFromHold(ctx, p, req)
		assert.ErrorIs(t, err, models.ErrHoldConsumed)
		assert.Len(t, f.repo.byID, 1)
	})

	t.Run("Someone else's hold", func(t *testing.T) {
		f := setupBookingService(t)
		hold := f.hold(t, passenger(), "A1")

		_, err := f.svc.CreateFromHold(ctx, passenger(), &models.CreateBookingRequest{HoldID: &hold.ID, Passengers: passengersFor("A1"), Contact: testContact})
		assert.ErrorIs(t, err, models.ErrForbidden)
	})
}

func TestCreateFromHold_PNRCollisions(t *testing.T) {
	ctx := context.Background()

	t.Run("Retries on collision", func(t *testing.T) {
		f := setupBookingService(t, "TAKEN1", "FRESH1")
		f.repo.takenPNRs["TAKEN1"] = true
		p := passenger()
		hold := f.hold(t, p, "A1")

		booking, err := f.svc.CreateFromHold(ctx, p, &models.CreateBookingRequest{HoldID: &hold.ID, Passengers: passengersFor("A1"), Contact: testContact})
		require.NoError(t, err)
		assert.Equal(t, "FRESH1", booking.PNR)
		assert.Equal(t, 2, f.pnr.calls)
	})

	t.Run("Exhausted attempts release the seats", func(t *testing.T) {
		f := setupBookingService(t, "TAKEN1")
		f.repo.takenPNRs["TAKEN1"] = true
		p := passenger()
		hold := f.hold(t, p, "A1", "A2")

		_, err := f.svc.CreateFromHold(ctx, p, &models.CreateBookingRequest{HoldID: &hold.ID, Passengers: passengersFor("A1", "A2"), Contact: testContact})
		assert.ErrorIs(t, err, models.ErrPnrExhausted)
		assert.Equal(t, 3, f.pnr.calls)

		assert.Equal(t, 4, f.availability(t).Free)
		assert.Empty(t, f.notifier.confirmed)
	})
}

func TestCreateFromHold_PersistenceFailureCompensates(t *testing.T) {
	f := setupBookingService(t)
	f.repo.insertErr = errors.New("connection reset")
	ctx := context.Background()
	p := passenger()
	hold := f.hold(t, p, "A1")

	_, err := f.svc.CreateFromHold(ctx, p, &models.CreateBookingRequest{HoldID: &hold.ID, Passengers: passengersFor("A1"), Contact: testContact})
	assert.EqualError(t, err, "connection reset")

	avail := f.availability(t)
	assert.Equal(t, 4, avail.Free)
	assert.Zero(t, avail.Sold)

	// The seat can be sold again
	_, err = f.holds.CreateHold(ctx, passenger(), &models.CreateHoldRequest{TripID: "trip-1", SeatNumbers: []string{"A1"}})
	assert.NoError(t, err)
}

func TestCreateManual(t *testing.T) {
	ctx := context.Background()
	cash := models.PaymentMethodCash
	card := models.PaymentMethodCard
	manual := func(method *models.PaymentMethod, seats ...string) *models.CreateBookingRequest {
		total := int64(len(seats)) * 4000
		return &models.CreateBookingRequest{
			TripID:        "trip-1",
			SeatNumbers:   seats,
			Passengers:    passengersFor(seats...),
			Contact:       testContact,
			TotalAmount:   &total,
			PaymentMethod: method,
		}
	}

	t.Run("Cash at the counter is paid", func(t *testing.T) {
		f := setupBookingService(t)
		staff := staffOf("agency-1")

		booking, err := f.svc.Create(ctx, staff, manual(&cash, "A3", "A4"))
		require.NoError(t, err)
		assert.Equal(t, models.ChannelManual, booking.Channel)
		assert.Equal(t, models.PaymentPaid, booking.PaymentStatus)
		assert.Equal(t, int64(8000), booking.TotalAmount)
		require.NotNil(t, booking.HoldID)

		implicit, err := f.inv.GetHold(ctx, *booking.HoldID)
		require.NoError(t, err)
		assert.Equal(t, models.HoldConsumed, implicit.Status)
		assert.Equal(t, 2, f.availability(t).Sold)
	})

	t.Run("Card starts pending", func(t *testing.T) {
		f := setupBookingService(t)
		booking, err := f.svc.Create(ctx, admin(), manual(&card, "A1"))
		require.NoError(t, err)
		assert.Equal(t, models.PaymentPending, booking.PaymentStatus)
	})

	t.Run("Same seat check as holds", func(t *testing.T) {
		f := setupBookingService(t)
		f.hold(t, passenger(), "A1")

		_, err := f.svc.Create(ctx, staffOf("agency-1"), manual(&cash, "A1", "A2"))
		assert.ErrorIs(t, err, models.ErrSeatUnavailable)
		assert.Equal(t, 1, f.availability(t).Held)
		assert.Zero(t, f.availability(t).Sold)
	})

	t.Run("Permissions", func(t *testing.T) {
		f := setupBookingService(t)

		_, err := f.svc.Create(ctx, passenger(), manual(&cash, "A1"))
		assert.ErrorIs(t, err, models.ErrForbidden)

		_, err = f.svc.Create(ctx, staffOf("agency-2"), manual(&cash, "A1"))
		assert.ErrorIs(t, err, models.ErrForbidden)
	})

	t.Run("Missing fields", func(t *testing.T) {
		f := setupBookingService(t)
		req := manual(nil, "A1")

		_, err := f.svc.Create(ctx, staffOf("agency-1"), req)
		assert.True(t, models.IsValidation(err))
	})
}

func TestCancelBooking(t *testing.T) {
	f := setupBookingService(t)
	ctx := context.Background()
	p := passenger()
	hold := f.hold(t, p, "A1", "A2")

	booking, err := f.svc.CreateFromHold(ctx, p, &models.CreateBookingRequest{HoldID: &hold.ID, Passengers: passengersFor("A1", "A2"), Contact: testContact})
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, passenger(), &models.CancelBookingRequest{BookingID: booking.ID, Reason: "not mine"})
	assert.ErrorIs(t, err, models.ErrForbidden)

	cancelled, err := f.svc.Cancel(ctx, p, &models.CancelBookingRequest{BookingID: booking.ID, Reason: "change of plans"})
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, cancelled.Status)
	assert.Equal(t, 4, f.availability(t).Free)
	assert.Equal(t, []string{booking.PNR}, f.notifier.cancelled)

	_, err = f.svc.Cancel(ctx, p, &models.CancelBookingRequest{BookingID: booking.ID, Reason: "again"})
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = f.svc.Cancel(ctx, admin(), &models.CancelBookingRequest{BookingID: booking.ID, Reason: "again"})
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestGetBooking(t *testing.T) {
	f := setupBookingService(t)
	ctx := context.Background()
	p := passenger()
	hold := f.hold(t, p, "A1")
	booking, err := f.svc.CreateFromHold(ctx, p, &models.CreateBookingRequest{HoldID: &hold.ID, Passengers: passengersFor("A1"), Contact: testContact})
	require.NoError(t, err)

	got, err := f.svc.GetByPNR(ctx, staffOf("agency-1"), booking.PNR)
	require.NoError(t, err)
	assert.Equal(t, booking.ID, got.ID)

	_, err = f.svc.Get(ctx, passenger(), booking.ID)
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = f.svc.GetByPNR(ctx, p, "NOPE00")
	assert.ErrorIs(t, err, models.ErrBookingNotFound)
}
