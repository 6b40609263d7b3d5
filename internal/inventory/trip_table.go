package inventory

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/smarttransit/seat-booking-engine/internal/models"
)

// tripTable is the seat arena of one trip. Seats keep catalog order and are
// addressed through index; every field is guarded by mu.
type tripTable struct {
	mu     sync.Mutex
	loaded bool
	halted *models.IntegrityError

	trip  models.Trip
	seats []models.Seat
	index map[string]int
	holds map[uuid.UUID]*models.Hold
}

func newTripTable() *tripTable {
	return &tripTable{
		index: make(map[string]int),
		holds: make(map[uuid.UUID]*models.Hold),
	}
}

func (t *tripTable) fill(snap *models.TripSnapshot) {
	t.trip = snap.Trip
	t.seats = make([]models.Seat, len(snap.Seats))
	copy(t.seats, snap.Seats)
	t.index = make(map[string]int, len(t.seats))
	for i, s := range t.seats {
		t.index[s.Number] = i
	}
	t.holds = make(map[uuid.UUID]*models.Hold, len(snap.Holds))
	for i := range snap.Holds {
		h := copyHold(&snap.Holds[i])
		t.holds[h.ID] = &h
	}
	t.loaded = true
}

func (t *tripTable) seat(number string) (*models.Seat, bool) {
	i, ok := t.index[number]
	if !ok {
		return nil, false
	}
	return &t.seats[i], true
}

func (t *tripTable) writable() error {
	if t.halted != nil {
		return t.halted
	}
	return nil
}

// apply mutates memory after the store accepted change
func (t *tripTable) apply(change *models.InventoryChange) {
	for _, tr := range change.Seats {
		seat, ok := t.seat(tr.SeatNumber)
		if !ok {
			continue
		}
		seat.State = tr.State
		seat.HoldID = nil
		seat.BookingID = nil
		switch tr.State {
		case models.SeatHeld:
			id := *tr.HoldID
			seat.HoldID = &id
		case models.SeatSold:
			id := *tr.BookingID
			seat.BookingID = &id
		}
	}
	if change.Hold != nil {
		h := copyHold(change.Hold)
		t.holds[h.ID] = &h
	}
}

// verify checks the invariants of the seat table. Capacity is the catalog, so each
// seat number must address exactly one seat. Every HELD seat belongs to an ACTIVE
// hold that lists it, every SOLD seat names a booking and active holds never overlap.
func (t *tripTable) verify() *models.IntegrityError {
	fail := func(format string, args ...interface{}) *models.IntegrityError {
		return &models.IntegrityError{TripID: t.trip.ID, Detail: fmt.Sprintf(format, args...)}
	}

	if len(t.index) != len(t.seats) {
		return fail("seat index covers %d of %d seats", len(t.index), len(t.seats))
	}
	for i, s := range t.seats {
		if t.index[s.Number] != i {
			return fail("seat %s listed twice in catalog", s.Number)
		}

		switch s.State {
		case models.SeatFree:
			if s.HoldID != nil || s.BookingID != nil {
				return fail("free seat %s still referenced", s.Number)
			}
		case models.SeatHeld:
			if s.HoldID == nil {
				return fail("held seat %s without hold", s.Number)
			}
			h, ok := t.holds[*s.HoldID]
			if !ok || h.Status != models.HoldActive || !h.HasSeat(s.Number) {
				return fail("held seat %s points at non-active hold %s", s.Number, *s.HoldID)
			}
		case models.SeatSold:
			if s.BookingID == nil {
				return fail("sold seat %s without booking", s.Number)
			}
		default:
			return fail("seat %s in unknown state %q", s.Number, s.State)
		}
	}
	owner := make(map[string]uuid.UUID)
	for _, h := range t.holds {
		if h.Status != models.HoldActive {
			continue
		}
		for _, n := range h.SeatNumbers {
			if other, dup := owner[n]; dup {
				return fail("seat %s held by both %s and %s", n, other, h.ID)
			}
			owner[n] = h.ID
			seat, ok := t.seat(n)
			if !ok || seat.State != models.SeatHeld || seat.HoldID == nil || *seat.HoldID != h.ID {
				return fail("active hold %s does not own seat %s", h.ID, n)
			}
		}
	}
	return nil
}

func (t *tripTable) availability() *models.SeatAvailability {
	out := &models.SeatAvailability{
		TripID:   t.trip.ID,
		AgencyID: t.trip.AgencyID,
		Capacity: len(t.seats),
		Halted:   t.halted != nil,
		Seats:    make([]models.SeatView, len(t.seats)),
	}
	for i, s := range t.seats {
		out.Seats[i] = models.SeatView{Number: s.Number, Price: s.Price, State: s.State}
		switch s.State {
		case models.SeatFree:
			out.Free++
		case models.SeatHeld:
			out.Held++
		case models.SeatSold:
			out.Sold++
		}
	}
	return out
}
