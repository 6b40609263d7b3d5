package services

import (
	"context"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-engine/internal/config"
	"github.com/smarttransit/seat-booking-engine/internal/database"
	"github.com/smarttransit/seat-booking-engine/internal/inventory"
	"github.com/smarttransit/seat-booking-engine/internal/models"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testBookingConfig() config.BookingConfig {
	return config.BookingConfig{
		HoldTTL:         15 * time.Minute,
		HoldMinTTL:      5 * time.Minute,
		HoldMaxTTL:      120 * time.Minute,
		HoldRetention:   time.Hour,
		SweepSchedule:   "@every 30s",
		MaxSeatsPerHold: 10,
		PNRLength:       6,
		PNRMaxAttempts:  3,
	}
}

// newTestInventory schedules trip-1 for agency-1 with seats A1..A4 at 3500 each
func newTestInventory(t *testing.T) (*inventory.Inventory, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(t0)
	inv := inventory.New(inventory.NewMemoryStore(), clock, inventory.Config{HoldRetention: time.Hour}, quietLogger())
	_, err := inv.ScheduleTrip(context.Background(), &models.ScheduleTripRequest{
		TripID:   "trip-1",
		AgencyID: "agency-1",
		Seats: []models.SeatDefinition{
			{Number: "A1", Price: 3500},
			{Number: "A2", Price: 3500},
			{Number: "A3", Price: 3500},
			{Number: "A4", Price: 3500},
		},
	})
	require.NoError(t, err)
	return inv, clock
}

func passenger() models.Principal {
	return models.Principal{UserID: uuid.New(), Roles: []string{models.RolePassenger}}
}

func staffOf(agencyID string) models.Principal {
	return models.Principal{UserID: uuid.New(), Roles: []string{models.RoleAgencyStaff}, AgencyID: agencyID}
}

func admin() models.Principal {
	return models.Principal{UserID: uuid.New(), Roles: []string{models.RoleAdmin}}
}

func passengersFor(seats ...string) []models.Passenger {
	out := make([]models.Passenger, len(seats))
	for i, s := range seats {
		out[i] = models.Passenger{Name: "Passenger " + s, SeatNumber: s}
	}
	return out
}

var testContact = models.Contact{Name: "Amina", Phone: "+237671234567"}

// ============================================================================
// COLLABORATORS
// ============================================================================

type recordingAuditor struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (a *recordingAuditor) Record(_ context.Context, e AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
}

func (a *recordingAuditor) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.events))
	for i, e := range a.events {
		out[i] = e.Action
	}
	return out
}

type recordingNotifier struct {
	mu        sync.Mutex
	confirmed []string
	cancelled []string
}

func (n *recordingNotifier) BookingConfirmed(_ context.Context, b *models.Booking) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmed = append(n.confirmed, b.PNR)
}

func (n *recordingNotifier) BookingCancelled(_ context.Context, b *models.Booking) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled = append(n.cancelled, b.PNR)
}

// sequencePNR returns codes in order and keeps repeating the last one
type sequencePNR struct {
	mu    sync.Mutex
	codes []string
	calls int
}

func (g *sequencePNR) Next() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.calls
	if i >= len(g.codes) {
		i = len(g.codes) - 1
	}
	g.calls++
	return g.codes[i], nil
}

// ============================================================================
// REPOSITORIES
// ============================================================================

type fakeBookingRepo struct {
	mu        sync.Mutex
	byID      map[uuid.UUID]*models.Booking
	takenPNRs map[string]bool
	insertErr error
}

func newFakeBookingRepo() *fakeBookingRepo {
	return &fakeBookingRepo{
		byID:      make(map[uuid.UUID]*models.Booking),
		takenPNRs: make(map[string]bool),
	}
}

func (r *fakeBookingRepo) Insert(_ context.Context, b *models.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	if r.takenPNRs[b.PNR] {
		return database.ErrDuplicatePNR
	}
	r.takenPNRs[b.PNR] = true
	b.CreatedAt, b.UpdatedAt = t0, t0
	if b.PaymentStatus == models.PaymentPaid {
		paidAt := t0
		b.PaidAt = &paidAt
	}
	stored := *b
	r.byID[b.ID] = &stored
	return nil
}

func (r *fakeBookingRepo) put(b *models.Booking) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *b
	r.byID[b.ID] = &stored
	r.takenPNRs[b.PNR] = true
}

func (r *fakeBookingRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.byID[id]
	if !ok {
		return nil, models.ErrBookingNotFound
	}
	out := *b
	return &out, nil
}

func (r *fakeBookingRepo) GetByPNR(_ context.Context, pnr string) (*models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.byID {
		if b.PNR == pnr {
			out := *b
			return &out, nil
		}
	}
	return nil, models.ErrBookingNotFound
}

func (r *fakeBookingRepo) Cancel(_ context.Context, id uuid.UUID, reason string) (*models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.byID[id]
	if !ok {
		return nil, models.ErrBookingNotFound
	}
	if b.Status != models.BookingConfirmed {
		return nil, &models.TransitionError{Entity: "booking", ID: id.String(), From: string(b.Status), To: string(models.BookingCancelled)}
	}
	b.Status = models.BookingCancelled
	b.CancelReason = &reason
	out := *b
	return &out, nil
}

func (r *fakeBookingRepo) Refund(_ context.Context, id uuid.UUID) (*models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.byID[id]
	if !ok {
		return nil, models.ErrBookingNotFound
	}
	if b.PaymentStatus != models.PaymentPaid || b.Status == models.BookingRefunded {
		return nil, &models.TransitionError{Entity: "booking", ID: id.String(), From: string(b.Status), To: string(models.BookingRefunded)}
	}
	b.Status = models.BookingRefunded
	b.PaymentStatus = models.PaymentRefunded
	out := *b
	return &out, nil
}

func (r *fakeBookingRepo) ListFlagged(_ context.Context, limit int) ([]models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Booking{}
	for _, b := range r.byID {
		if b.ReconciliationFlag && len(out) < limit {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (r *fakeBookingRepo) ClearFlag(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.byID[id]
	if !ok || !b.ReconciliationFlag {
		return models.ErrBookingNotFound
	}
	b.ReconciliationFlag = false
	return nil
}

// fakeLedger mirrors PaymentRepository: insert-if-absent plus a guarded booking update
type fakeLedger struct {
	mu           sync.Mutex
	rows         map[string]models.PaymentCallback
	bookings     *fakeBookingRepo
	beforeRecord func()
}

func newFakeLedger(bookings *fakeBookingRepo) *fakeLedger {
	return &fakeLedger{rows: make(map[string]models.PaymentCallback), bookings: bookings}
}

func (l *fakeLedger) RecordCallback(_ context.Context, cb *models.PaymentCallback, t *models.PaymentTransition) error {
	if hook := l.beforeRecord; hook != nil {
		l.beforeRecord = nil
		hook()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.rows[cb.TransactionID]; ok {
		return database.ErrDuplicateCallback
	}
	if t != nil {
		l.bookings.mu.Lock()
		b := l.bookings.byID[t.BookingID]
		if b == nil || b.Status != t.Booking || b.PaymentStatus != t.From {
			l.bookings.mu.Unlock()
			return database.ErrStalePayment
		}
		b.PaymentStatus = t.To
		b.ReconciliationFlag = b.ReconciliationFlag || t.Flag
		if t.PaidAt != nil {
			b.PaidAt = t.PaidAt
		}
		l.bookings.mu.Unlock()
	}
	l.rows[cb.TransactionID] = *cb
	return nil
}

func (l *fakeLedger) GetCallback(_ context.Context, transactionID string) (*models.PaymentCallback, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cb, ok := l.rows[transactionID]
	if !ok {
		return nil, nil
	}
	return &cb, nil
}

// fakeSettlementRepo claims the unsettled amounts of an agency on create
type fakeSettlementRepo struct {
	mu        sync.Mutex
	rows      map[uuid.UUID]*models.Settlement
	unsettled map[string][]int64
}

func newFakeSettlementRepo() *fakeSettlementRepo {
	return &fakeSettlementRepo{
		rows:      make(map[uuid.UUID]*models.Settlement),
		unsettled: make(map[string][]int64),
	}
}

func (r *fakeSettlementRepo) CreateForPeriod(_ context.Context, s *models.Settlement, period models.Period) (*models.Settlement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.AgencyID == s.AgencyID && row.Period == period.Key {
			return nil, database.ErrSettlementExists
		}
	}
	var gross int64
	for _, a := range r.unsettled[s.AgencyID] {
		gross += a
	}
	split := models.ComputeSplit(gross, s.FeeRateBps)
	out := *s
	out.GrossRevenue, out.PlatformFee, out.NetRevenue = split.Gross, split.Fee, split.Net
	out.BookingCount = len(r.unsettled[s.AgencyID])
	delete(r.unsettled, s.AgencyID)
	stored := out
	r.rows[out.ID] = &stored
	return &out, nil
}

func (r *fakeSettlementRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Settlement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok {
		return nil, models.ErrSettlementNotFound
	}
	out := *s
	return &out, nil
}

func (r *fakeSettlementRepo) GetByAgencyPeriod(_ context.Context, agencyID, period string) (*models.Settlement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.rows {
		if s.AgencyID == agencyID && s.Period == period {
			out := *s
			return &out, nil
		}
	}
	return nil, models.ErrSettlementNotFound
}

func (r *fakeSettlementRepo) Transition(_ context.Context, id uuid.UUID, to models.SettlementStatus, from []string, transactionID, reason *string) (*models.Settlement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok {
		return nil, models.ErrSettlementNotFound
	}
	allowed := false
	for _, f := range from {
		if f == string(s.Status) {
			allowed = true
		}
	}
	if !allowed {
		return nil, &models.TransitionError{Entity: "settlement", ID: id.String(), From: string(s.Status), To: string(to)}
	}
	s.Status = to
	if transactionID != nil {
		s.TransactionID = transactionID
	}
	if reason != nil {
		s.FailureReason = reason
	}
	out := *s
	return &out, nil
}

func (r *fakeSettlementRepo) ListAgenciesWithUnsettled(_ context.Context, _ models.Period) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	agencies := []string{}
	for agency, amounts := range r.unsettled {
		if len(amounts) > 0 {
			agencies = append(agencies, agency)
		}
	}
	sort.Strings(agencies)
	return agencies, nil
}

type fakeDisputeRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*models.Dispute
}

func newFakeDisputeRepo() *fakeDisputeRepo {
	return &fakeDisputeRepo{rows: make(map[uuid.UUID]*models.Dispute)}
}

func (r *fakeDisputeRepo) Create(_ context.Context, d *models.Dispute) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d.CreatedAt, d.UpdatedAt = t0, t0
	stored := *d
	r.rows[d.ID] = &stored
	return nil
}

func (r *fakeDisputeRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Dispute, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.rows[id]
	if !ok {
		return nil, models.ErrDisputeNotFound
	}
	out := *d
	return &out, nil
}

func (r *fakeDisputeRepo) Transition(_ context.Context, id uuid.UUID, to models.DisputeStatus, from []string, resolution *string) (*models.Dispute, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.rows[id]
	if !ok {
		return nil, models.ErrDisputeNotFound
	}
	allowed := false
	for _, f := range from {
		if f == string(d.Status) {
			allowed = true
		}
	}
	if !allowed {
		return nil, &models.TransitionError{Entity: "dispute", ID: id.String(), From: string(d.Status), To: string(to)}
	}
	d.Status = to
	if resolution != nil {
		d.Resolution = resolution
	}
	if to.IsTerminal() {
		at := t0
		d.ResolvedAt = &at
	}
	out := *d
	return &out, nil
}
