package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prohmpiriya/turf-booking/internal/domain"
	"github.com/prohmpiriya/turf-booking/internal/dto"
	"github.com/prohmpiriya/turf-booking/internal/repository"
	"github.com/prohmpiriya/turf-booking/internal/service"
	"github.com/prohmpiriya/turf-booking/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

// fakeExpiryService serves pending IDs; IDs in fail always error
type fakeExpiryService struct {
	mu      sync.Mutex
	pending []string
	fail    map[string]bool
	lists   int
}

func (f *fakeExpiryService) ListExpiredReserved(_ context.Context, limit int) ([]*domain.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	var out []*domain.Booking
	for _, id := range f.pending {
		if len(out) == limit {
			break
		}
		out = append(out, &domain.Booking{ID: id})
	}
	return out, nil
}

func (f *fakeExpiryService) MarkExpired(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[id] {
		return false, errors.New("db down")
	}
	for i, p := range f.pending {
		if p == id {
			f.pending = append(f.pending[:i], f.pending[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func TestExpiryWorker_RunOnce_ExpiresLapsedHolds(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
	store := repository.NewMemoryStore().WithClock(clock.Now)

	require.NoError(t, store.Venues().Create(ctx, &domain.Venue{ID: "venue-1", OwnerID: "owner-1", Name: "Arena", BasePrice: 1000}))
	_, err := store.Slots().CreateMany(ctx, []*domain.Slot{
		{ID: "slot-1", VenueID: "venue-1", Date: "2026-06-01", StartTime: "18:00", EndTime: "19:00", Price: 1000},
		{ID: "slot-2", VenueID: "venue-1", Date: "2026-06-01", StartTime: "19:00", EndTime: "20:00", Price: 1000},
	})
	require.NoError(t, err)

	bookings := service.NewBookingService(store.Venues(), store.Slots(), store.Bookings(), nil, nil, &service.BookingServiceConfig{
		HoldTTL: 15 * time.Minute,
		Clock:   clock.Now,
	})

	early, err := bookings.InitiateBooking(ctx, "user-1", &dto.InitiateBookingRequest{VenueID: "venue-1", SlotID: "slot-1"})
	require.NoError(t, err)
	clock.Advance(10 * time.Minute)
	late, err := bookings.InitiateBooking(ctx, "user-2", &dto.InitiateBookingRequest{VenueID: "venue-1", SlotID: "slot-2"})
	require.NoError(t, err)

	w := NewExpiryWorker(bookings, &ExpiryWorkerConfig{ScanInterval: time.Minute, BatchSize: 10}, logger.NewNop())

	// minute 10: nothing has lapsed
	assert.Equal(t, 0, w.RunOnce(ctx))

	// minute 16: only the first hold has lapsed
	clock.Advance(6 * time.Minute)
	assert.Equal(t, 1, w.RunOnce(ctx))

	got, err := store.Bookings().GetByID(ctx, early.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingExpired, got.Status)

	sl, err := store.Slots().GetByID(ctx, "slot-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SlotAvailable, sl.State)

	got, err = store.Bookings().GetByID(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingReserved, got.Status)

	// a second sweep finds nothing new
	assert.Equal(t, 0, w.RunOnce(ctx))

	stats := w.GetStats()
	assert.Equal(t, int64(1), stats.TotalExpired)
	assert.Equal(t, 0, stats.LastExpiredCount)
	assert.False(t, stats.IsRunning)
}

func TestExpiryWorker_RunOnce_Pages(t *testing.T) {
	tests := []struct {
		name        string
		pending     []string
		fail        map[string]bool
		wantExpired int
		wantFailed  int64
	}{
		{
			name:        "drains several pages",
			pending:     []string{"a", "b", "c", "d", "e"},
			wantExpired: 5,
		},
		{
			name:        "skips failures and keeps going",
			pending:     []string{"a", "b", "c", "d", "e"},
			fail:        map[string]bool{"c": true},
			wantExpired: 4,
			wantFailed:  3,
		},
		{
			name:        "stops on a page without progress",
			pending:     []string{"a", "b", "c"},
			fail:        map[string]bool{"a": true, "b": true},
			wantExpired: 0,
			wantFailed:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeExpiryService{pending: tt.pending, fail: tt.fail}
			w := NewExpiryWorker(svc, &ExpiryWorkerConfig{ScanInterval: time.Minute, BatchSize: 2}, logger.NewNop())

			assert.Equal(t, tt.wantExpired, w.RunOnce(context.Background()))
			assert.Equal(t, tt.wantFailed, w.GetStats().TotalFailed)
		})
	}
}

func TestExpiryWorker_StartStop(t *testing.T) {
	svc := &fakeExpiryService{pending: []string{"a"}}
	w := NewExpiryWorker(svc, &ExpiryWorkerConfig{ScanInterval: 10 * time.Millisecond, BatchSize: 10}, logger.NewNop())

	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()))
	assert.True(t, w.GetStats().IsRunning)

	assert.Eventually(t, func() bool {
		return w.GetStats().TotalExpired == 1
	}, time.Second, 5*time.Millisecond)

	w.Stop()
	assert.False(t, w.GetStats().IsRunning)
	// Stop is idempotent
	w.Stop()
}

func TestExpiryWorker_RestartAfterStop(t *testing.T) {
	svc := &fakeExpiryService{pending: []string{"a"}}
	w := NewExpiryWorker(svc, &ExpiryWorkerConfig{ScanInterval: 10 * time.Millisecond, BatchSize: 10}, logger.NewNop())

	require.NoError(t, w.Start(context.Background()))
	assert.Eventually(t, func() bool { return w.GetStats().TotalExpired == 1 }, time.Second, 5*time.Millisecond)
	w.Stop()

	svc.mu.Lock()
	svc.pending = append(svc.pending, "b")
	svc.mu.Unlock()

	require.NoError(t, w.Start(context.Background()))
	assert.True(t, w.GetStats().IsRunning)
	assert.Eventually(t, func() bool { return w.GetStats().TotalExpired == 2 }, time.Second, 5*time.Millisecond)
	w.Stop()
	assert.False(t, w.GetStats().IsRunning)
}

func TestNewExpiryWorker_Defaults(t *testing.T) {
	w := NewExpiryWorker(&fakeExpiryService{}, &ExpiryWorkerConfig{}, logger.NewNop())
	assert.Equal(t, 30*time.Second, w.config.ScanInterval)
	assert.Equal(t, 100, w.config.BatchSize)
}
