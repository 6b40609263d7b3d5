package inventory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/smarttransit/seat-booking-engine/internal/models"
)

// MemoryStore is a Store kept entirely in process memory. It backs tests and
// local runs without Postgres.
type MemoryStore struct {
	mu       sync.Mutex
	trips    map[string]*models.TripSnapshot
	holds    map[uuid.UUID]models.Hold
	applied  int
	applyErr error
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		trips: make(map[string]*models.TripSnapshot),
		holds: make(map[uuid.UUID]models.Hold),
	}
}

// FailApplies makes every later Apply return err; nil restores normal behaviour
func (s *MemoryStore) FailApplies(err error) {
	s.mu.Lock()
	s.applyErr = err
	s.mu.Unlock()
}

// LoadTrip implements Store
func (s *MemoryStore) LoadTrip(_ context.Context, tripID string) (*models.TripSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.trips[tripID]
	if !ok {
		return nil, nil
	}
	out := &models.TripSnapshot{Trip: snap.Trip, Seats: append([]models.Seat(nil), snap.Seats...)}
	for _, h := range s.holds {
		if h.TripID == tripID && h.Status == models.HoldActive {
			out.Holds = append(out.Holds, copyHold(&h))
		}
	}
	return out, nil
}

// CreateTrip implements Store
func (s *MemoryStore) CreateTrip(_ context.Context, trip *models.Trip, seats []models.Seat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trips[trip.ID]; ok {
		return fmt.Errorf("%w: %s", models.ErrTripExists, trip.ID)
	}
	s.trips[trip.ID] = &models.TripSnapshot{Trip: *trip, Seats: append([]models.Seat(nil), seats...)}
	return nil
}

// ArchiveTrip implements Store
func (s *MemoryStore) ArchiveTrip(_ context.Context, tripID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.trips, tripID)
	return nil
}

// FindHold implements Store
func (s *MemoryStore) FindHold(_ context.Context, holdID uuid.UUID) (*models.Hold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.holds[holdID]
	if !ok {
		return nil, nil
	}
	out := copyHold(&h)
	return &out, nil
}

// Apply implements Store
func (s *MemoryStore) Apply(_ context.Context, change *models.InventoryChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applyErr != nil {
		return s.applyErr
	}
	snap, ok := s.trips[change.TripID]
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrTripNotFound, change.TripID)
	}
	targets := make([]*models.Seat, len(change.Seats))
	for i := range change.Seats {
		tr := &change.Seats[i]
		for j := range snap.Seats {
			if snap.Seats[j].Number == tr.SeatNumber {
				targets[i] = &snap.Seats[j]
			}
		}
		if targets[i] == nil {
			return fmt.Errorf("seat %s missing on trip %s", tr.SeatNumber, change.TripID)
		}
		if !tr.Matches(targets[i]) {
			return fmt.Errorf("seat %s on trip %s: %w", tr.SeatNumber, change.TripID, models.ErrSeatDiverged)
		}
	}

	s.applied++
	if change.Hold != nil {
		s.holds[change.Hold.ID] = copyHold(change.Hold)
	}
	for i, tr := range change.Seats {
		targets[i].State = tr.State
		targets[i].HoldID = tr.HoldID
		targets[i].BookingID = tr.BookingID
	}
	return nil
}

// OverdueHoldTrips implements Store
func (s *MemoryStore) OverdueHoldTrips(_ context.Context, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	trips := []string{}
	for _, h := range s.holds {
		if h.Status == models.HoldActive && !h.ExpiresAt.After(now) && !seen[h.TripID] {
			seen[h.TripID] = true
			trips = append(trips, h.TripID)
		}
	}
	sort.Strings(trips)
	return trips, nil
}
