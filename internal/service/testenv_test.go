package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prohmpiriya/turf-booking/internal/domain"
	"github.com/prohmpiriya/turf-booking/internal/dto"
	"github.com/prohmpiriya/turf-booking/internal/repository"
	"github.com/stretchr/testify/require"
)

const (
	testVenueID    = "venue-1"
	testOwnerID    = "owner-1"
	testSlotID     = "slot-1"
	testCheapSlot  = "slot-cheap"
	testOtherVenue = "venue-2"
	testOtherSlot  = "slot-other"
	testDate       = "2026-06-01"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingPublisher records published events; publication is asynchronous
type recordingPublisher struct {
	mu     sync.Mutex
	events map[domain.BookingEventType][]*domain.Booking
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{events: map[domain.BookingEventType][]*domain.Booking{}}
}

func (p *recordingPublisher) record(t domain.BookingEventType, b *domain.Booking) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events[t] = append(p.events[t], b)
	return nil
}

func (p *recordingPublisher) count(t domain.BookingEventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events[t])
}

func (p *recordingPublisher) PublishBookingCreated(_ context.Context, b *domain.Booking) error {
	return p.record(domain.BookingEventCreated, b)
}

func (p *recordingPublisher) PublishBookingConfirmed(_ context.Context, b *domain.Booking) error {
	return p.record(domain.BookingEventConfirmed, b)
}

func (p *recordingPublisher) PublishBookingCancelled(_ context.Context, b *domain.Booking) error {
	return p.record(domain.BookingEventCancelled, b)
}

func (p *recordingPublisher) PublishBookingExpired(_ context.Context, b *domain.Booking) error {
	return p.record(domain.BookingEventExpired, b)
}

func (p *recordingPublisher) PublishBookingCompleted(_ context.Context, b *domain.Booking) error {
	return p.record(domain.BookingEventCompleted, b)
}

func (p *recordingPublisher) Close() error { return nil }

type testEnv struct {
	store    *repository.MemoryStore
	clock    *fakeClock
	pub      *recordingPublisher
	slots    SlotService
	bookings BookingService
	split    SplitPaymentService
	checkin  CheckInService
	tickets  TicketService
}

// newTestEnv seeds venue-1 (base price 1000, owner-1) with a 1000 slot and a
// 100 slot, plus venue-2 with one slot
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	clock := &fakeClock{now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
	store := repository.NewMemoryStore().WithClock(clock.Now)
	pub := newRecordingPublisher()

	require.NoError(t, store.Venues().Create(ctx, &domain.Venue{ID: testVenueID, OwnerID: testOwnerID, Name: "Arena", BasePrice: 1000}))
	require.NoError(t, store.Venues().Create(ctx, &domain.Venue{ID: testOtherVenue, OwnerID: "owner-2", Name: "Other", BasePrice: 800}))
	_, err := store.Slots().CreateMany(ctx, []*domain.Slot{
		{ID: testSlotID, VenueID: testVenueID, Date: testDate, StartTime: "18:00", EndTime: "19:00", Price: 1000},
		{ID: testCheapSlot, VenueID: testVenueID, Date: testDate, StartTime: "07:00", EndTime: "08:00", Price: 100},
		{ID: testOtherSlot, VenueID: testOtherVenue, Date: testDate, StartTime: "18:00", EndTime: "19:00"},
	})
	require.NoError(t, err)

	return &testEnv{
		store: store,
		clock: clock,
		pub:   pub,
		slots: NewSlotService(store.Venues(), store.Slots(), nil, &SlotServiceConfig{Clock: clock.Now}),
		bookings: NewBookingService(store.Venues(), store.Slots(), store.Bookings(), nil, pub, &BookingServiceConfig{
			HoldTTL: 15 * time.Minute,
			Clock:   clock.Now,
		}),
		split:   NewSplitPaymentService(store.Bookings(), nil, pub, &SplitPaymentServiceConfig{Clock: clock.Now}),
		checkin: NewCheckInService(store.Venues(), store.Bookings(), pub, &CheckInServiceConfig{Clock: clock.Now}),
		tickets: NewTicketService(store.Venues(), store.Slots(), store.Bookings()),
	}
}

func (e *testEnv) initiate(t *testing.T, userID, slotID string) *domain.Booking {
	t.Helper()
	b, err := e.bookings.InitiateBooking(context.Background(), userID, &dto.InitiateBookingRequest{
		VenueID: testVenueID,
		SlotID:  slotID,
	})
	require.NoError(t, err)
	return b
}

// confirmed returns a CONFIRMED single-payer booking on slot-1 organised by userID
func (e *testEnv) confirmed(t *testing.T, userID string) *domain.Booking {
	t.Helper()
	b := e.initiate(t, userID, testSlotID)
	b, err := e.split.RecordPayment(context.Background(), b.ID, b.Participants[0].ID, userID, "pay-"+userID)
	require.NoError(t, err)
	require.Equal(t, domain.BookingConfirmed, b.Status)
	return b
}

func (e *testEnv) slot(t *testing.T, id string) *domain.Slot {
	t.Helper()
	sl, err := e.store.Slots().GetByID(context.Background(), id)
	require.NoError(t, err)
	return sl
}

func (e *testEnv) booking(t *testing.T, id string) *domain.Booking {
	t.Helper()
	b, err := e.store.Bookings().GetByID(context.Background(), id)
	require.NoError(t, err)
	return b
}
