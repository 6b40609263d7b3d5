package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/smarttransit/seat-booking-engine/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisputeWorkflow(t *testing.T) {
	ctx := context.Background()
	bookings := newFakeBookingRepo()
	owner := passenger()
	booking := &models.Booking{
		ID:          uuid.New(),
		PNR:         "DSP001",
		TripID:      "trip-1",
		AgencyID:    "agency-1",
		TotalAmount: 7000,
		Status:      models.BookingConfirmed,
		CreatedBy:   owner.ActorID(),
	}
	bookings.put(booking)

	audit := &recordingAuditor{}
	svc := NewDisputeService(newFakeDisputeRepo(), bookings, audit, quietLogger())

	_, err := svc.Open(ctx, owner, &models.OpenDisputeRequest{BookingID: booking.ID, AmountRequested: 8000, Reason: "overcharged"})
	assert.True(t, models.IsValidation(err))

	_, err = svc.Open(ctx, passenger(), &models.OpenDisputeRequest{BookingID: booking.ID, AmountRequested: 100, Reason: "overcharged"})
	assert.ErrorIs(t, err, models.ErrForbidden)

	d, err := svc.Open(ctx, owner, &models.OpenDisputeRequest{BookingID: booking.ID, AmountRequested: 3500, Reason: "bus left without me"})
	require.NoError(t, err)
	assert.Equal(t, models.DisputeOpen, d.Status)
	assert.Nil(t, d.ResolvedAt)

	_, err = svc.Update(ctx, owner, d.ID, &models.UpdateDisputeRequest{Status: models.DisputeResolved})
	assert.ErrorIs(t, err, models.ErrForbidden)

	review, err := svc.Update(ctx, admin(), d.ID, &models.UpdateDisputeRequest{Status: models.DisputeUnderReview})
	require.NoError(t, err)
	assert.Equal(t, models.DisputeUnderReview, review.Status)
	assert.Nil(t, review.ResolvedAt)

	resolution := "refunded one seat"
	resolved, err := svc.Update(ctx, admin(), d.ID, &models.UpdateDisputeRequest{Status: models.DisputeResolved, Resolution: &resolution})
	require.NoError(t, err)
	assert.Equal(t, models.DisputeResolved, resolved.Status)
	assert.NotNil(t, resolved.ResolvedAt)

	_, err = svc.Update(ctx, admin(), d.ID, &models.UpdateDisputeRequest{Status: models.DisputeUnderReview})
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = svc.Update(ctx, admin(), d.ID, &models.UpdateDisputeRequest{Status: models.DisputeRejected})
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	got, err := svc.Get(ctx, staffOf("agency-1"), d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DisputeResolved, got.Status)

	_, err = svc.Get(ctx, staffOf("agency-2"), d.ID)
	assert.ErrorIs(t, err, models.ErrForbidden)

	assert.Equal(t, []string{"dispute_open", "dispute_update", "dispute_update"}, audit.actions())
}

func TestDisputeOpenToTerminal(t *testing.T) {
	ctx := context.Background()
	bookings := newFakeBookingRepo()
	booking := &models.Booking{ID: uuid.New(), PNR: "DSP002", AgencyID: "agency-1", TotalAmount: 3500, Status: models.BookingConfirmed}
	bookings.put(booking)
	svc := NewDisputeService(newFakeDisputeRepo(), bookings, &recordingAuditor{}, quietLogger())

	d, err := svc.Open(ctx, staffOf("agency-1"), &models.OpenDisputeRequest{BookingID: booking.ID, AmountRequested: 0, Reason: "duplicate charge"})
	require.NoError(t, err)

	rejected, err := svc.Update(ctx, admin(), d.ID, &models.UpdateDisputeRequest{Status: models.DisputeRejected})
	require.NoError(t, err)
	assert.Equal(t, models.DisputeRejected, rejected.Status)
	assert.NotNil(t, rejected.ResolvedAt)

	_, err = svc.Get(ctx, admin(), uuid.New())
	assert.ErrorIs(t, err, models.ErrDisputeNotFound)
}
