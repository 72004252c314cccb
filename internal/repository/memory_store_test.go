package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prohmpiriya/turf-booking/internal/domain"
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

func newTestStore(t *testing.T) (*MemoryStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
	store := NewMemoryStore().WithClock(clock.Now)

	_, err := store.Slots().CreateMany(context.Background(), []*domain.Slot{
		{ID: "slot-1", VenueID: "venue-1", Date: "2026-06-01", StartTime: "18:00", EndTime: "19:00"},
		{ID: "slot-2", VenueID: "venue-1", Date: "2026-06-01", StartTime: "17:00", EndTime: "18:00"},
	})
	require.NoError(t, err)
	return store, clock
}

func reservedBooking(id string, now time.Time) *domain.Booking {
	return &domain.Booking{
		ID: id, UserID: "organizer", VenueID: "venue-1", SlotID: "slot-1",
		TotalAmount: 1000, Status: domain.BookingReserved, ExpiresAt: now.Add(15 * time.Minute),
		CreatedAt: now,
		Participants: []*domain.Participant{
			{ID: id + "-p1", BookingID: id, UserID: "organizer", ShareAmount: 1000, Status: domain.ParticipantPending},
		},
	}
}

func TestMemorySlotRepository_ListSortedAndSkipsDuplicates(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	created, err := store.Slots().CreateMany(ctx, []*domain.Slot{
		{ID: "dup", VenueID: "venue-1", Date: "2026-06-01", StartTime: "18:00", EndTime: "19:00"},
	})
	require.NoError(t, err)
	assert.Empty(t, created)

	slots, err := store.Slots().ListByVenueAndDate(ctx, "venue-1", "2026-06-01")
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, "17:00", slots[0].StartTime)

	// returned slots are copies
	slots[0].State = domain.SlotBooked
	again, _ := store.Slots().GetByID(ctx, slots[0].ID)
	assert.Equal(t, domain.SlotAvailable, again.State)
}

func TestMemorySlotRepository_ConcurrentAcquire(t *testing.T) {
	store, _ := newTestStore(t)

	var mu sync.Mutex
	winners := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Slots().AcquireHold(context.Background(), "slot-1", fmt.Sprintf("b-%d", i), time.Minute)
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, domain.ErrSlotUnavailable)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}

func TestMemorySlotRepository_ExpiryUsesClock(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()
	slots := store.Slots()

	_, err := slots.AcquireHold(ctx, "slot-1", "b-1", 15*time.Minute)
	require.NoError(t, err)

	clock.Advance(14 * time.Minute)
	_, err = slots.AcquireHold(ctx, "slot-1", "b-2", 15*time.Minute)
	assert.ErrorIs(t, err, domain.ErrSlotUnavailable)

	clock.Advance(2 * time.Minute)
	assert.ErrorIs(t, slots.ConfirmHold(ctx, "slot-1", "b-1"), domain.ErrLockMismatch)

	_, err = slots.AcquireHold(ctx, "slot-1", "b-2", 15*time.Minute)
	require.NoError(t, err)

	released, err := slots.ReleaseHold(ctx, "slot-1", "b-1")
	require.NoError(t, err)
	assert.False(t, released)

	released, err = slots.ReleaseHold(ctx, "missing", "b-1")
	require.NoError(t, err)
	assert.False(t, released)
}

func TestMemoryBookingRepository_WithinBookingLockRollsBack(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()
	repo := store.Bookings()
	require.NoError(t, repo.Create(ctx, reservedBooking("b-1", clock.Now())))

	boom := errors.New("boom")
	err := repo.WithinBookingLock(ctx, "b-1", func(ctx context.Context, tx BookingTx, b *domain.Booking) error {
		p := b.Participants[0]
		require.NoError(t, p.MarkPaid("pay", clock.Now()))
		require.NoError(t, tx.UpdateParticipant(ctx, p))
		require.NoError(t, b.Expire(domain.ReasonHoldExpired, clock.Now()))
		require.NoError(t, tx.UpdateBooking(ctx, b))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := repo.GetByID(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, domain.BookingReserved, got.Status)
	assert.Equal(t, domain.ParticipantPending, got.Participants[0].Status)
}

func TestMemoryBookingRepository_WithinBookingLockCommits(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()
	repo := store.Bookings()
	require.NoError(t, repo.Create(ctx, reservedBooking("b-1", clock.Now())))

	err := repo.WithinBookingLock(ctx, "b-1", func(ctx context.Context, tx BookingTx, b *domain.Booking) error {
		if err := tx.InsertParticipant(ctx, &domain.Participant{ID: "p2", BookingID: "b-1", UserID: "friend", Status: domain.ParticipantPending}); err != nil {
			return err
		}
		return tx.InsertParticipant(ctx, &domain.Participant{ID: "p3", BookingID: "b-1", UserID: "friend"})
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyParticipant)

	err = repo.WithinBookingLock(ctx, "b-1", func(ctx context.Context, tx BookingTx, b *domain.Booking) error {
		return tx.InsertParticipant(ctx, &domain.Participant{ID: "p2", BookingID: "b-1", UserID: "friend", Status: domain.ParticipantPending})
	})
	require.NoError(t, err)

	got, _ := repo.GetByID(ctx, "b-1")
	require.Len(t, got.Participants, 2)
	assert.Equal(t, "organizer", got.Participants[0].UserID)

	mine, err := repo.ListByUser(ctx, "friend", 10, 0)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	assert.ErrorIs(t, repo.WithinBookingLock(ctx, "missing", nil), domain.ErrBookingNotFound)
}

func TestMemoryBookingRepository_WithinBookingLockRollsBackSlotWrites(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()
	repo := store.Bookings()
	require.NoError(t, repo.Create(ctx, reservedBooking("b-1", clock.Now())))
	_, err := store.Slots().AcquireHold(ctx, "slot-1", "b-1", 15*time.Minute)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = repo.WithinBookingLock(ctx, "b-1", func(ctx context.Context, tx BookingTx, b *domain.Booking) error {
		require.NoError(t, tx.Slots().ConfirmHold(ctx, "slot-1", "b-1"))

		staged, err := tx.Slots().GetByID(ctx, "slot-1")
		require.NoError(t, err)
		assert.Equal(t, domain.SlotBooked, staged.State)

		// readers outside the transaction still see the committed row
		committed, err := store.Slots().GetByID(ctx, "slot-1")
		require.NoError(t, err)
		assert.Equal(t, domain.SlotLocked, committed.State)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	sl, err := store.Slots().GetByID(ctx, "slot-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SlotLocked, sl.State)
	assert.Equal(t, "b-1", sl.LockOwner)
	assert.NotNil(t, sl.LockExpiresAt)
}

func TestMemoryBookingRepository_WithinBookingLockCommitsSlotWrites(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()
	repo := store.Bookings()
	require.NoError(t, repo.Create(ctx, reservedBooking("b-1", clock.Now())))
	_, err := store.Slots().AcquireHold(ctx, "slot-1", "b-1", 15*time.Minute)
	require.NoError(t, err)

	err = repo.WithinBookingLock(ctx, "b-1", func(ctx context.Context, tx BookingTx, b *domain.Booking) error {
		released, err := tx.Slots().ReleaseHold(ctx, "slot-1", "b-1")
		require.NoError(t, err)
		assert.True(t, released)
		released, err = tx.Slots().ReleaseHold(ctx, "missing", "b-1")
		require.NoError(t, err)
		assert.False(t, released)
		return nil
	})
	require.NoError(t, err)

	sl, err := store.Slots().GetByID(ctx, "slot-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SlotAvailable, sl.State)

	// the row lock is gone after commit
	_, err = store.Slots().AcquireHold(ctx, "slot-1", "b-2", 15*time.Minute)
	require.NoError(t, err)
}

func TestMemoryBookingRepository_SlotWriterWaitsForTransaction(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()
	repo := store.Bookings()
	require.NoError(t, repo.Create(ctx, reservedBooking("b-1", clock.Now())))
	_, err := store.Slots().AcquireHold(ctx, "slot-1", "b-1", 15*time.Minute)
	require.NoError(t, err)

	inTx := make(chan struct{})
	finish := make(chan struct{})
	txDone := make(chan error, 1)
	go func() {
		txDone <- repo.WithinBookingLock(ctx, "b-1", func(ctx context.Context, tx BookingTx, b *domain.Booking) error {
			if err := tx.Slots().ConfirmHold(ctx, "slot-1", "b-1"); err != nil {
				return err
			}
			close(inTx)
			<-finish
			return nil
		})
	}()
	<-inTx

	acquired := make(chan error, 1)
	go func() {
		clock.Advance(16 * time.Minute)
		_, err := store.Slots().AcquireHold(ctx, "slot-1", "b-2", 15*time.Minute)
		acquired <- err
	}()

	select {
	case <-acquired:
		t.Fatal("slot writer must wait for the open transaction")
	case <-time.After(50 * time.Millisecond):
	}

	close(finish)
	require.NoError(t, <-txDone)
	assert.ErrorIs(t, <-acquired, domain.ErrSlotUnavailable)
}

func TestMemoryBookingRepository_ListExpiredReserved(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()
	repo := store.Bookings()
	require.NoError(t, repo.Create(ctx, reservedBooking("b-1", clock.Now())))

	expired, err := repo.ListExpiredReserved(ctx, clock.Now().Add(14*time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, expired)

	expired, err = repo.ListExpiredReserved(ctx, clock.Now().Add(15*time.Minute), 10)
	require.NoError(t, err)
	assert.Len(t, expired, 1)
}

func TestMemoryBookingRepository_CheckInIsSingleUse(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()
	repo := store.Bookings()

	b := reservedBooking("b-1", clock.Now())
	b.Status = domain.BookingConfirmed
	b.QRSecret = "secret"
	require.NoError(t, repo.Create(ctx, b))

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := repo.CheckIn(ctx, "secret", clock.Now())
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, successes)

	got, err := repo.GetByQRSecret(ctx, "secret")
	require.NoError(t, err)
	assert.Equal(t, domain.BookingCompleted, got.Status)
	assert.NotNil(t, got.CheckedInAt)

	_, ok, err := repo.CheckIn(ctx, "unknown", clock.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}
