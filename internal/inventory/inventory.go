// Package inventory is the per-trip source of truth for seat availability.
//
// Every trip owns a seat table guarded by its own mutex. All seat transitions
// for a trip (reserve, consume, release, sweep expiry, compensation) run while
// that mutex is held and are persisted through Store.Apply before the in-memory
// table changes, so the durable order matches the in-memory total order.
// Different trips never share a lock.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-engine/internal/models"
)

// Store persists trip inventories and holds
type Store interface {
	// LoadTrip returns nil, nil when the trip does not exist or is archived
	LoadTrip(ctx context.Context, tripID string) (*models.TripSnapshot, error)
	CreateTrip(ctx context.Context, trip *models.Trip, seats []models.Seat) error
	ArchiveTrip(ctx context.Context, tripID string) error
	// FindHold returns nil, nil when no hold has the id
	FindHold(ctx context.Context, holdID uuid.UUID) (*models.Hold, error)
	// Apply commits one inventory change atomically
	Apply(ctx context.Context, change *models.InventoryChange) error
	// OverdueHoldTrips lists trips that have ACTIVE holds with expires_at <= now
	OverdueHoldTrips(ctx context.Context, now time.Time) ([]string, error)
}

// Config tunes the inventory
type Config struct {
	// HoldRetention is how long terminal holds stay in memory after their last change
	HoldRetention time.Duration
}

// Inventory serializes seat-state changes per trip
type Inventory struct {
	store  Store
	clock  clockwork.Clock
	config Config
	logger *logrus.Logger

	mu        sync.Mutex // guards trips and holdIndex, never held while a trip lock is acquired
	trips     map[string]*tripTable
	holdIndex map[uuid.UUID]string
}

// New creates an Inventory backed by store
func New(store Store, clock clockwork.Clock, config Config, logger *logrus.Logger) *Inventory {
	if config.HoldRetention <= 0 {
		config.HoldRetention = time.Hour
	}
	return &Inventory{
		store:     store,
		clock:     clock,
		config:    config,
		logger:    logger,
		trips:     make(map[string]*tripTable),
		holdIndex: make(map[uuid.UUID]string),
	}
}

// ============================================================================
// TRIP LIFECYCLE
// ============================================================================

// ScheduleTrip creates a trip inventory with every seat FREE
func (inv *Inventory) ScheduleTrip(ctx context.Context, req *models.ScheduleTripRequest) (*models.Trip, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	trip := models.Trip{
		ID:          req.TripID,
		AgencyID:    req.AgencyID,
		DepartureAt: req.DepartureAt,
		Status:      models.TripActive,
		CreatedAt:   inv.clock.Now(),
	}
	seats := make([]models.Seat, len(req.Seats))
	for i, def := range req.Seats {
		seats[i] = models.Seat{
			TripID:   trip.ID,
			Number:   def.Number,
			Position: i + 1,
			Price:    def.Price,
			State:    models.SeatFree,
		}
	}

	t, err := inv.acquire(ctx, trip.ID, false)
	if err != nil {
		return nil, err
	}
	defer t.mu.Unlock()

	if t.loaded {
		return nil, fmt.Errorf("%w: %s", models.ErrTripExists, trip.ID)
	}
	if err := inv.store.CreateTrip(ctx, &trip, seats); err != nil {
		inv.forget(trip.ID, t)
		return nil, err
	}
	t.fill(&models.TripSnapshot{Trip: trip, Seats: seats})

	inv.logger.WithFields(logrus.Fields{
		"trip_id":   trip.ID,
		"agency_id": trip.AgencyID,
		"capacity":  len(seats),
	}).Info("Trip inventory scheduled")

	return &trip, nil
}

// ArchiveTrip evicts a completed or cancelled trip. Rejected while unexpired ACTIVE holds exist.
func (inv *Inventory) ArchiveTrip(ctx context.Context, tripID string) error {
	t, err := inv.acquire(ctx, tripID, true)
	if err != nil {
		return err
	}
	defer t.mu.Unlock()

	now := inv.clock.Now()
	for _, h := range t.holds {
		if h.Status == models.HoldActive && !h.IsExpiredAt(now) {
			return fmt.Errorf("%w: hold %s", models.ErrTripBusy, h.ID)
		}
	}
	if err := inv.store.ArchiveTrip(ctx, tripID); err != nil {
		return fmt.Errorf("failed to archive trip: %w", err)
	}

	inv.mu.Lock()
	for id := range t.holds {
		delete(inv.holdIndex, id)
	}
	delete(inv.trips, tripID)
	inv.mu.Unlock()
	t.loaded = false

	inv.logger.WithField("trip_id", tripID).Info("Trip inventory archived")
	return nil
}

// Availability returns the current seat map of a trip
func (inv *Inventory) Availability(ctx context.Context, tripID string) (*models.SeatAvailability, error) {
	t, err := inv.acquire(ctx, tripID, true)
	if err != nil {
		return nil, err
	}
	defer t.mu.Unlock()
	return t.availability(), nil
}

// Trip returns the header of a loaded trip
func (inv *Inventory) Trip(ctx context.Context, tripID string) (*models.Trip, error) {
	t, err := inv.acquire(ctx, tripID, true)
	if err != nil {
		return nil, err
	}
	defer t.mu.Unlock()
	trip := t.trip
	return &trip, nil
}

// ============================================================================
// SEAT OPERATIONS
// ============================================================================

// Reserve holds every requested seat or none of them
func (inv *Inventory) Reserve(ctx context.Context, tripID string, seats []string, ttl time.Duration, createdBy *uuid.UUID) (*models.Hold, error) {
	t, err := inv.acquire(ctx, tripID, true)
	if err != nil {
		return nil, err
	}
	defer t.mu.Unlock()

	if err := t.writable(); err != nil {
		return nil, err
	}
	now := inv.clock.Now()
	if err := inv.ensureFree(ctx, t, seats, now); err != nil {
		return nil, err
	}

	hold := &models.Hold{
		ID:          uuid.New(),
		TripID:      tripID,
		SeatNumbers: append(models.StringArray(nil), seats...),
		Status:      models.HoldActive,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
		UpdatedAt:   now,
		CreatedBy:   createdBy,
	}
	change := &models.InventoryChange{TripID: tripID, Hold: hold}
	for _, s := range seats {
		change.Seats = append(change.Seats, models.SeatTransition{SeatNumber: s, State: models.SeatHeld, HoldID: &hold.ID})
	}
	if err := inv.commit(ctx, t, change); err != nil {
		return nil, err
	}

	inv.logger.WithFields(logrus.Fields{
		"trip_id":    tripID,
		"hold_id":    hold.ID,
		"seats":      seats,
		"expires_at": hold.ExpiresAt,
	}).Info("Seats reserved")

	out := copyHold(hold)
	return &out, nil
}

// Release frees the seats of an ACTIVE hold. Releasing a terminal hold is a no-op.
func (inv *Inventory) Release(ctx context.Context, holdID uuid.UUID) (*models.Hold, error) {
	var out models.Hold
	err := inv.withHold(ctx, holdID, func(t *tripTable, h *models.Hold) error {
		if h.Status != models.HoldActive {
			out = copyHold(h)
			return nil
		}
		if err := t.writable(); err != nil {
			return err
		}
		next, change := inv.finishHold(h, models.HoldReleased, nil)
		if err := inv.commit(ctx, t, change); err != nil {
			return err
		}
		out = copyHold(next)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Consume sells the seats of an ACTIVE, unexpired hold to bookingID.
// The expiry check happens under the trip lock so a racing sweep cannot interleave.
func (inv *Inventory) Consume(ctx context.Context, holdID, bookingID uuid.UUID) (*models.Hold, error) {
	var out models.Hold
	err := inv.withHold(ctx, holdID, func(t *tripTable, h *models.Hold) error {
		if err := t.writable(); err != nil {
			return err
		}
		if err := inv.usable(ctx, t, h); err != nil {
			return err
		}
		next, change := inv.finishHold(h, models.HoldConsumed, &bookingID)
		if err := inv.commit(ctx, t, change); err != nil {
			return err
		}
		out = copyHold(next)
		return nil
	})
	if err != nil {
		return nil, err
	}

	inv.logger.WithFields(logrus.Fields{
		"trip_id":    out.TripID,
		"hold_id":    holdID,
		"booking_id": bookingID,
	}).Info("Hold consumed")
	return &out, nil
}

// Renew pushes the deadline of an ACTIVE, unexpired hold by extendBy.
// The new deadline may not be later than CreatedAt + maxLifetime.
func (inv *Inventory) Renew(ctx context.Context, holdID uuid.UUID, extendBy, maxLifetime time.Duration) (*models.Hold, error) {
	var out models.Hold
	err := inv.withHold(ctx, holdID, func(t *tripTable, h *models.Hold) error {
		if err := t.writable(); err != nil {
			return err
		}
		if err := inv.usable(ctx, t, h); err != nil {
			return err
		}
		expiresAt := h.ExpiresAt.Add(extendBy)
		if maxLifetime > 0 && expiresAt.Sub(h.CreatedAt) > maxLifetime {
			return models.NewValidationError("extend_minutes", "hold lifetime cannot exceed %d minutes", int(maxLifetime.Minutes()))
		}
		next := copyHold(h)
		next.ExpiresAt = expiresAt
		next.UpdatedAt = inv.clock.Now()
		if err := inv.commit(ctx, t, &models.InventoryChange{TripID: t.trip.ID, Hold: &next}); err != nil {
			return err
		}
		out = copyHold(&next)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ReserveAndConsume is the manual path: the same all-or-nothing check as Reserve,
// immediately followed by consumption, under a single acquisition of the trip lock.
// The implicit hold is recorded CONSUMED so every SOLD seat traces back to a hold.
func (inv *Inventory) ReserveAndConsume(ctx context.Context, tripID string, seats []string, bookingID uuid.UUID, createdBy *uuid.UUID) (*models.Hold, error) {
	t, err := inv.acquire(ctx, tripID, true)
	if err != nil {
		return nil, err
	}
	defer t.mu.Unlock()

	if err := t.writable(); err != nil {
		return nil, err
	}
	now := inv.clock.Now()
	if err := inv.ensureFree(ctx, t, seats, now); err != nil {
		return nil, err
	}

	hold := &models.Hold{
		ID:          uuid.New(),
		TripID:      tripID,
		SeatNumbers: append(models.StringArray(nil), seats...),
		Status:      models.HoldConsumed,
		CreatedAt:   now,
		ExpiresAt:   now,
		UpdatedAt:   now,
		CreatedBy:   createdBy,
		BookingID:   &bookingID,
	}
	change := &models.InventoryChange{TripID: tripID, Hold: hold}
	for _, s := range seats {
		change.Seats = append(change.Seats, models.SeatTransition{SeatNumber: s, State: models.SeatSold, BookingID: &bookingID})
	}
	if err := inv.commit(ctx, t, change); err != nil {
		return nil, err
	}

	inv.logger.WithFields(logrus.Fields{
		"trip_id":    tripID,
		"hold_id":    hold.ID,
		"booking_id": bookingID,
		"seats":      seats,
	}).Info("Seats sold through implicit hold")

	out := copyHold(hold)
	return &out, nil
}

// ReleaseBooking returns every seat SOLD to bookingID to FREE. Used for compensation,
// cancellation and refunds; calling it again releases nothing.
func (inv *Inventory) ReleaseBooking(ctx context.Context, tripID string, bookingID uuid.UUID) (int, error) {
	t, err := inv.acquire(ctx, tripID, true)
	if err != nil {
		return 0, err
	}
	defer t.mu.Unlock()

	if err := t.writable(); err != nil {
		return 0, err
	}

	change := &models.InventoryChange{TripID: tripID}
	for _, seat := range t.seats {
		if seat.State == models.SeatSold && seat.BookingID != nil && *seat.BookingID == bookingID {
			change.Seats = append(change.Seats, models.SeatTransition{SeatNumber: seat.Number, State: models.SeatFree})
		}
	}
	if len(change.Seats) == 0 {
		return 0, nil
	}
	if err := inv.commit(ctx, t, change); err != nil {
		return 0, err
	}

	inv.logger.WithFields(logrus.Fields{
		"trip_id":    tripID,
		"booking_id": bookingID,
		"released":   len(change.Seats),
	}).Info("Booking seats released")
	return len(change.Seats), nil
}

// GetHold returns a copy of a hold
func (inv *Inventory) GetHold(ctx context.Context, holdID uuid.UUID) (*models.Hold, error) {
	var out models.Hold
	err := inv.withHold(ctx, holdID, func(_ *tripTable, h *models.Hold) error {
		out = copyHold(h)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ============================================================================
// EXPIRY SWEEP
// ============================================================================

// Expire moves every ACTIVE hold with ExpiresAt <= now to EXPIRED and prunes terminal
// holds past retention. Trips the store reports overdue holds for are loaded first, so
// holds left behind by a restart are swept too. Each trip is processed under its own lock.
func (inv *Inventory) Expire(ctx context.Context, now time.Time) (int, error) {
	var errs []error
	if err := inv.loadOverdue(ctx, now); err != nil {
		errs = append(errs, err)
	}

	inv.mu.Lock()
	tables := make([]*tripTable, 0, len(inv.trips))
	for _, t := range inv.trips {
		tables = append(tables, t)
	}
	inv.mu.Unlock()

	expired := 0
	for _, t := range tables {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		n, err := inv.expireTrip(ctx, t, now)
		expired += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return expired, errors.Join(errs...)
}

func (inv *Inventory) loadOverdue(ctx context.Context, now time.Time) error {
	due, err := inv.store.OverdueHoldTrips(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to list trips with overdue holds: %w", err)
	}

	var errs []error
	for _, tripID := range due {
		inv.mu.Lock()
		_, cached := inv.trips[tripID]
		inv.mu.Unlock()
		if cached {
			continue
		}
		t, err := inv.acquire(ctx, tripID, true)
		if errors.Is(err, models.ErrTripNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		t.mu.Unlock()
		inv.logger.WithField("trip_id", tripID).Debug("Loaded trip for overdue hold sweep")
	}
	return errors.Join(errs...)
}

func (inv *Inventory) expireTrip(ctx context.Context, t *tripTable, now time.Time) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.loaded || t.halted != nil {
		return 0, nil
	}

	expired := 0
	for _, h := range t.holds {
		if !h.DueForSweep(now) {
			continue
		}
		_, change := inv.finishHold(h, models.HoldExpired, nil)
		if err := inv.commit(ctx, t, change); err != nil {
			return expired, fmt.Errorf("trip %s: %w", t.trip.ID, err)
		}
		expired++
		inv.logger.WithFields(logrus.Fields{
			"trip_id": t.trip.ID,
			"hold_id": h.ID,
		}).Info("Hold expired by sweep")
	}

	cutoff := now.Add(-inv.config.HoldRetention)
	var pruned []uuid.UUID
	for id, h := range t.holds {
		if h.Status.IsTerminal() && h.UpdatedAt.Before(cutoff) {
			delete(t.holds, id)
			pruned = append(pruned, id)
		}
	}
	if len(pruned) > 0 {
		inv.mu.Lock()
		for _, id := range pruned {
			delete(inv.holdIndex, id)
		}
		inv.mu.Unlock()
	}
	return expired, nil
}

// ============================================================================
// INTERNALS
// ============================================================================

// acquire returns the trip table locked, loading it from the store on first touch.
// With mustExist it fails with ErrTripNotFound instead of returning an empty table.
func (inv *Inventory) acquire(ctx context.Context, tripID string, mustExist bool) (*tripTable, error) {
	var t *tripTable
	for {
		inv.mu.Lock()
		cur, ok := inv.trips[tripID]
		if !ok {
			cur = newTripTable()
			inv.trips[tripID] = cur
		}
		inv.mu.Unlock()

		cur.mu.Lock()
		if inv.isCurrent(tripID, cur) {
			t = cur
			break
		}
		// Archived or failed to load while we waited; start over with the live table.
		cur.mu.Unlock()
	}
	if t.loaded {
		return t, nil
	}

	snap, err := inv.store.LoadTrip(ctx, tripID)
	if err != nil {
		t.mu.Unlock()
		inv.forget(tripID, t)
		return nil, fmt.Errorf("failed to load trip %s: %w", tripID, err)
	}
	if snap == nil {
		if mustExist {
			t.mu.Unlock()
			inv.forget(tripID, t)
			return nil, fmt.Errorf("%w: %s", models.ErrTripNotFound, tripID)
		}
		return t, nil
	}

	t.fill(snap)
	inv.mu.Lock()
	for id := range t.holds {
		inv.holdIndex[id] = tripID
	}
	inv.mu.Unlock()

	if err := t.verify(); err != nil {
		inv.halt(t, err)
	}
	return t, nil
}

func (inv *Inventory) isCurrent(tripID string, t *tripTable) bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.trips[tripID] == t
}

// forget drops an unloaded table so a later call retries the load
func (inv *Inventory) forget(tripID string, t *tripTable) {
	inv.mu.Lock()
	if inv.trips[tripID] == t {
		delete(inv.trips, tripID)
	}
	inv.mu.Unlock()
}

// withHold locks the hold's trip and hands fn the live hold. Holds already pruned
// from memory are read from the store; those are always terminal.
func (inv *Inventory) withHold(ctx context.Context, holdID uuid.UUID, fn func(t *tripTable, h *models.Hold) error) error {
	inv.mu.Lock()
	tripID, ok := inv.holdIndex[holdID]
	inv.mu.Unlock()

	var stored *models.Hold
	if !ok {
		h, err := inv.store.FindHold(ctx, holdID)
		if err != nil {
			return fmt.Errorf("failed to look up hold: %w", err)
		}
		if h == nil {
			return &models.HoldError{HoldID: holdID, Err: models.ErrHoldNotFound}
		}
		tripID, stored = h.TripID, h
	}

	t, err := inv.acquire(ctx, tripID, true)
	if err != nil {
		return err
	}
	defer t.mu.Unlock()

	if h, ok := t.holds[holdID]; ok {
		return fn(t, h)
	}
	if stored == nil || stored.Status == models.HoldActive {
		return &models.HoldError{HoldID: holdID, TripID: tripID, Err: models.ErrHoldNotFound}
	}
	return fn(t, stored)
}

// usable reports the terminal error for a hold that can no longer be used,
// expiring it on the spot when its deadline has passed.
func (inv *Inventory) usable(ctx context.Context, t *tripTable, h *models.Hold) error {
	switch h.Status {
	case models.HoldConsumed:
		return &models.HoldError{HoldID: h.ID, TripID: h.TripID, Err: models.ErrHoldConsumed}
	case models.HoldExpired, models.HoldReleased:
		return &models.HoldError{HoldID: h.ID, TripID: h.TripID, Err: models.ErrHoldExpired}
	}
	if !h.IsExpiredAt(inv.clock.Now()) {
		return nil
	}
	_, change := inv.finishHold(h, models.HoldExpired, nil)
	if err := inv.commit(ctx, t, change); err != nil {
		return err
	}
	return &models.HoldError{HoldID: h.ID, TripID: h.TripID, Err: models.ErrHoldExpired}
}

// ensureFree fails with a SeatConflictError unless every seat is FREE. HELD seats
// whose hold deadline already passed are expired first.
func (inv *Inventory) ensureFree(ctx context.Context, t *tripTable, seats []string, now time.Time) error {
	var conflicts []string
	overdue := make(map[uuid.UUID]*models.Hold)
	for _, s := range seats {
		seat, ok := t.seat(s)
		if !ok {
			return models.NewValidationError("seat_numbers", "%v: %s", models.ErrUnknownSeat, s)
		}
		switch seat.State {
		case models.SeatFree:
		case models.SeatHeld:
			if h := t.holds[*seat.HoldID]; h != nil && h.Status == models.HoldActive && h.IsExpiredAt(now) {
				overdue[h.ID] = h
				continue
			}
			conflicts = append(conflicts, s)
		default:
			conflicts = append(conflicts, s)
		}
	}
	if len(conflicts) > 0 {
		inv.logger.WithFields(logrus.Fields{
			"trip_id":   t.trip.ID,
			"requested": seats,
			"conflicts": conflicts,
		}).Warn("Seat reservation conflict")
		return &models.SeatConflictError{TripID: t.trip.ID, Seats: conflicts}
	}
	for _, h := range overdue {
		_, change := inv.finishHold(h, models.HoldExpired, nil)
		if err := inv.commit(ctx, t, change); err != nil {
			return err
		}
	}
	return nil
}

// finishHold builds the terminal version of h and the seat transitions that go with it
func (inv *Inventory) finishHold(h *models.Hold, status models.HoldStatus, bookingID *uuid.UUID) (*models.Hold, *models.InventoryChange) {
	next := copyHold(h)
	next.Status = status
	next.UpdatedAt = inv.clock.Now()
	next.BookingID = bookingID

	change := &models.InventoryChange{TripID: h.TripID, Hold: &next}
	for _, s := range h.SeatNumbers {
		tr := models.SeatTransition{SeatNumber: s, State: models.SeatFree}
		if status == models.HoldConsumed {
			tr.State = models.SeatSold
			tr.BookingID = bookingID
		}
		change.Seats = append(change.Seats, tr)
	}
	return &next, change
}

// commit persists change, then applies it to memory and re-verifies the table
func (inv *Inventory) commit(ctx context.Context, t *tripTable, change *models.InventoryChange) error {
	if change.Hold != nil {
		prev, ok := t.holds[change.Hold.ID]
		if ok && prev.Status != change.Hold.Status && !prev.Status.CanTransitionTo(change.Hold.Status) {
			return &models.TransitionError{Entity: "hold", ID: prev.ID.String(), From: string(prev.Status), To: string(change.Hold.Status)}
		}
	}
	for i := range change.Seats {
		tr := &change.Seats[i]
		if seat, ok := t.seat(tr.SeatNumber); ok {
			tr.PrevState = seat.State
			tr.PrevHoldID = seat.HoldID
			tr.PrevBookingID = seat.BookingID
		}
	}
	if err := inv.store.Apply(ctx, change); err != nil {
		if errors.Is(err, models.ErrSeatDiverged) {
			// Reload from the store on next access
			t.loaded = false
			inv.logger.WithError(err).WithField("trip_id", t.trip.ID).
				Warn("Persisted seats diverged from memory, dropping cached trip")
		}
		return fmt.Errorf("failed to persist inventory change: %w", err)
	}

	t.apply(change)
	if change.Hold != nil {
		inv.mu.Lock()
		inv.holdIndex[change.Hold.ID] = t.trip.ID
		inv.mu.Unlock()
	}

	if err := t.verify(); err != nil {
		inv.halt(t, err)
		return err
	}
	return nil
}

func (inv *Inventory) halt(t *tripTable, err *models.IntegrityError) {
	t.halted = err
	inv.logger.WithFields(logrus.Fields{
		"trip_id": t.trip.ID,
		"alert":   true,
	}).WithError(err).Error("Trip inventory halted")
}

func copyHold(h *models.Hold) models.Hold {
	out := *h
	out.SeatNumbers = append(models.StringArray(nil), h.SeatNumbers...)
	return out
}
