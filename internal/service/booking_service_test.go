package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prohmpiriya/turf-booking/internal/domain"
	"github.com/prohmpiriya/turf-booking/internal/dto"
	"github.com/prohmpiriya/turf-booking/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockBookingRepository overrides selected methods of an underlying repository
type MockBookingRepository struct {
	repository.BookingRepository
	CreateFunc func(ctx context.Context, booking *domain.Booking) error
}

func (m *MockBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, booking)
	}
	return m.BookingRepository.Create(ctx, booking)
}

func TestInitiateBooking_Success(t *testing.T) {
	env := newTestEnv(t)
	now := env.clock.Now()

	b := env.initiate(t, "alice", testSlotID)

	assert.Equal(t, domain.BookingReserved, b.Status)
	assert.Equal(t, domain.SourceOnline, b.Source)
	assert.Equal(t, int64(1000), b.TotalAmount)
	assert.Equal(t, "INR", b.Currency)
	assert.True(t, b.ExpiresAt.Equal(now.Add(15*time.Minute)))
	require.Len(t, b.Participants, 1)
	assert.Equal(t, "alice", b.Participants[0].UserID)
	assert.Equal(t, int64(1000), b.Participants[0].ShareAmount)
	assert.Equal(t, domain.ParticipantPending, b.Participants[0].Status)
	assert.Empty(t, b.QRSecret)

	sl := env.slot(t, testSlotID)
	assert.Equal(t, domain.SlotLocked, sl.State)
	assert.Equal(t, b.ID, sl.LockOwner)

	assert.Eventually(t, func() bool { return env.pub.count(domain.BookingEventCreated) == 1 }, time.Second, 10*time.Millisecond)
}

func TestInitiateBooking_Validation(t *testing.T) {
	tests := []struct {
		name    string
		userID  string
		req     *dto.InitiateBookingRequest
		wantErr error
	}{
		{"missing user", "", &dto.InitiateBookingRequest{VenueID: testVenueID, SlotID: testSlotID}, domain.ErrInvalidUserID},
		{"nil request", "alice", nil, domain.ErrInvalidVenueID},
		{"missing slot", "alice", &dto.InitiateBookingRequest{VenueID: testVenueID}, domain.ErrInvalidSlotID},
		{"unknown venue", "alice", &dto.InitiateBookingRequest{VenueID: "nope", SlotID: testSlotID}, domain.ErrVenueNotFound},
		{"unknown slot", "alice", &dto.InitiateBookingRequest{VenueID: testVenueID, SlotID: "nope"}, domain.ErrSlotNotFound},
		{"slot of another venue", "alice", &dto.InitiateBookingRequest{VenueID: testVenueID, SlotID: testOtherSlot}, domain.ErrSlotVenueMismatch},
		{"amount differs from price", "alice", &dto.InitiateBookingRequest{VenueID: testVenueID, SlotID: testSlotID, TotalAmount: 999}, domain.ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			_, err := env.bookings.InitiateBooking(context.Background(), tt.userID, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, domain.SlotAvailable, env.slot(t, testSlotID).State)
		})
	}
}

func TestInitiateBooking_ExplicitAmount(t *testing.T) {
	env := newTestEnv(t)
	b, err := env.bookings.InitiateBooking(context.Background(), "alice", &dto.InitiateBookingRequest{
		VenueID: testVenueID, SlotID: testSlotID, TotalAmount: 1000,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), b.TotalAmount)
}

func TestInitiateBooking_SlotPriceFallsBackToVenue(t *testing.T) {
	env := newTestEnv(t)
	b, err := env.bookings.InitiateBooking(context.Background(), "alice", &dto.InitiateBookingRequest{
		VenueID: testOtherVenue, SlotID: testOtherSlot,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(800), b.TotalAmount)
}

func TestInitiateBooking_ConcurrentExactlyOneWins(t *testing.T) {
	env := newTestEnv(t)
	const callers = 50

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   []string
		conflicts int
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			b, err := env.bookings.InitiateBooking(context.Background(), fmt.Sprintf("user-%d", i),
				&dto.InitiateBookingRequest{VenueID: testVenueID, SlotID: testSlotID})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, b.ID)
			case errors.Is(err, domain.ErrSlotUnavailable):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, callers-1, conflicts)
	assert.Equal(t, winners[0], env.slot(t, testSlotID).LockOwner)
}

func TestInitiateBooking_ReleasesHoldWhenPersistFails(t *testing.T) {
	env := newTestEnv(t)
	repo := &MockBookingRepository{
		BookingRepository: env.store.Bookings(),
		CreateFunc: func(ctx context.Context, booking *domain.Booking) error {
			return errors.New("connection reset")
		},
	}
	svc := NewBookingService(env.store.Venues(), env.store.Slots(), repo, nil, nil, &BookingServiceConfig{Clock: env.clock.Now})

	_, err := svc.InitiateBooking(context.Background(), "alice", &dto.InitiateBookingRequest{VenueID: testVenueID, SlotID: testSlotID})
	require.Error(t, err)

	sl := env.slot(t, testSlotID)
	assert.Equal(t, domain.SlotAvailable, sl.State)
	assert.Empty(t, sl.LockOwner)
}

func TestInitiateBooking_TakesOverLapsedHold(t *testing.T) {
	env := newTestEnv(t)
	first := env.initiate(t, "alice", testSlotID)

	env.clock.Advance(16 * time.Minute)
	second := env.initiate(t, "bob", testSlotID)

	assert.Equal(t, second.ID, env.slot(t, testSlotID).LockOwner)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestCancelBooking(t *testing.T) {
	ctx := context.Background()

	t.Run("reserved booking releases the hold", func(t *testing.T) {
		env := newTestEnv(t)
		b := env.initiate(t, "alice", testSlotID)

		cancelled, err := env.bookings.CancelBooking(ctx, b.ID, "alice")
		require.NoError(t, err)
		assert.Equal(t, domain.BookingCancelled, cancelled.Status)
		assert.Equal(t, domain.ReasonCancelledUser, cancelled.StatusReason)
		assert.NotNil(t, cancelled.CancelledAt)
		assert.Equal(t, domain.SlotAvailable, env.slot(t, testSlotID).State)
		assert.Equal(t, domain.BookingCancelled, env.booking(t, b.ID).Status)
		assert.Eventually(t, func() bool { return env.pub.count(domain.BookingEventCancelled) == 1 }, time.Second, 10*time.Millisecond)
	})

	t.Run("confirmed booking frees the slot", func(t *testing.T) {
		env := newTestEnv(t)
		b := env.confirmed(t, "alice")
		require.Equal(t, domain.SlotBooked, env.slot(t, testSlotID).State)

		_, err := env.bookings.CancelBooking(ctx, b.ID, "alice")
		require.NoError(t, err)
		assert.Equal(t, domain.SlotAvailable, env.slot(t, testSlotID).State)
	})

	t.Run("only the organizer", func(t *testing.T) {
		env := newTestEnv(t)
		b := env.initiate(t, "alice", testSlotID)

		_, err := env.bookings.CancelBooking(ctx, b.ID, "mallory")
		assert.ErrorIs(t, err, domain.ErrNotOwner)
		assert.Equal(t, domain.SlotLocked, env.slot(t, testSlotID).State)
	})

	t.Run("terminal booking", func(t *testing.T) {
		env := newTestEnv(t)
		b := env.initiate(t, "alice", testSlotID)
		_, err := env.bookings.CancelBooking(ctx, b.ID, "alice")
		require.NoError(t, err)

		_, err = env.bookings.CancelBooking(ctx, b.ID, "alice")
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	})

	t.Run("unknown booking", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.bookings.CancelBooking(ctx, "missing", "alice")
		assert.ErrorIs(t, err, domain.ErrBookingNotFound)
	})
}

func TestMarkExpired(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	b := env.initiate(t, "alice", testSlotID)

	env.clock.Advance(10 * time.Minute)
	expired, err := env.bookings.MarkExpired(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, expired)
	assert.Equal(t, domain.BookingReserved, env.booking(t, b.ID).Status)

	env.clock.Advance(6 * time.Minute)
	expired, err = env.bookings.MarkExpired(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, expired)

	got := env.booking(t, b.ID)
	assert.Equal(t, domain.BookingExpired, got.Status)
	assert.Equal(t, domain.ReasonHoldExpired, got.StatusReason)
	assert.Equal(t, domain.SlotAvailable, env.slot(t, testSlotID).State)

	expired, err = env.bookings.MarkExpired(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, expired)
	assert.Eventually(t, func() bool { return env.pub.count(domain.BookingEventExpired) == 1 }, time.Second, 10*time.Millisecond)
}

func TestMarkExpired_SkipsConfirmed(t *testing.T) {
	env := newTestEnv(t)
	b := env.confirmed(t, "alice")
	env.clock.Advance(time.Hour)

	expired, err := env.bookings.MarkExpired(context.Background(), b.ID)
	require.NoError(t, err)
	assert.False(t, expired)
	assert.Equal(t, domain.SlotBooked, env.slot(t, testSlotID).State)
}

func TestListExpiredReserved(t *testing.T) {
	env := newTestEnv(t)
	b := env.initiate(t, "alice", testSlotID)
	env.initiate(t, "bob", testCheapSlot)

	env.clock.Advance(15 * time.Minute)
	list, err := env.bookings.ListExpiredReserved(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = env.bookings.MarkExpired(context.Background(), b.ID)
	require.NoError(t, err)
	list, err = env.bookings.ListExpiredReserved(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestGetBooking_Visibility(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	b := env.initiate(t, "alice", testSlotID)
	_, err := env.split.AddParticipant(ctx, b.ID, "alice", "bob")
	require.NoError(t, err)

	for _, viewer := range []string{"alice", "bob"} {
		got, err := env.bookings.GetBooking(ctx, b.ID, viewer)
		require.NoError(t, err, viewer)
		assert.Len(t, got.Participants, 2)
	}

	_, err = env.bookings.GetBooking(ctx, b.ID, "mallory")
	assert.ErrorIs(t, err, domain.ErrNotParticipant)

	_, err = env.bookings.GetBooking(ctx, "", "alice")
	assert.ErrorIs(t, err, domain.ErrInvalidBookingID)
}

func TestListMyBookings(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	mine := env.initiate(t, "alice", testSlotID)
	joined := env.initiate(t, "carol", testCheapSlot)
	_, err := env.split.AddParticipant(ctx, joined.ID, "carol", "alice")
	require.NoError(t, err)

	list, err := env.bookings.ListMyBookings(ctx, "alice", 0, 0)
	require.NoError(t, err)
	ids := []string{}
	for _, b := range list {
		ids = append(ids, b.ID)
	}
	assert.ElementsMatch(t, []string{mine.ID, joined.ID}, ids)

	list, err = env.bookings.ListMyBookings(ctx, "alice", 2, 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = env.bookings.ListMyBookings(ctx, "", 1, 10)
	assert.ErrorIs(t, err, domain.ErrInvalidUserID)
}

func TestCreateWalkInBooking(t *testing.T) {
	ctx := context.Background()

	t.Run("books the slot confirmed", func(t *testing.T) {
		env := newTestEnv(t)
		b, err := env.bookings.CreateWalkInBooking(ctx, testOwnerID, &dto.WalkInBookingRequest{
			VenueID: testVenueID, SlotID: testSlotID, CustomerName: "Ravi", CustomerPhone: "+91-900",
		})
		require.NoError(t, err)

		assert.Equal(t, domain.BookingConfirmed, b.Status)
		assert.Equal(t, domain.SourceWalkIn, b.Source)
		assert.Equal(t, int64(1000), b.TotalAmount)
		assert.NotEmpty(t, b.QRSecret)
		assert.Empty(t, b.Participants)

		sl := env.slot(t, testSlotID)
		assert.Equal(t, domain.SlotBooked, sl.State)
		assert.Equal(t, b.ID, sl.LockOwner)
	})

	t.Run("custom amount", func(t *testing.T) {
		env := newTestEnv(t)
		b, err := env.bookings.CreateWalkInBooking(ctx, testOwnerID, &dto.WalkInBookingRequest{
			VenueID: testVenueID, SlotID: testSlotID, CustomerName: "Ravi", Amount: 700,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(700), b.TotalAmount)
	})

	t.Run("not the venue owner", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.bookings.CreateWalkInBooking(ctx, "owner-2", &dto.WalkInBookingRequest{
			VenueID: testVenueID, SlotID: testSlotID, CustomerName: "Ravi",
		})
		assert.ErrorIs(t, err, domain.ErrNotVenueOwner)
	})

	t.Run("slot already held", func(t *testing.T) {
		env := newTestEnv(t)
		env.initiate(t, "alice", testSlotID)
		_, err := env.bookings.CreateWalkInBooking(ctx, testOwnerID, &dto.WalkInBookingRequest{
			VenueID: testVenueID, SlotID: testSlotID, CustomerName: "Ravi",
		})
		assert.ErrorIs(t, err, domain.ErrSlotUnavailable)
	})

	t.Run("persist failure frees the slot", func(t *testing.T) {
		env := newTestEnv(t)
		repo := &MockBookingRepository{
			BookingRepository: env.store.Bookings(),
			CreateFunc: func(context.Context, *domain.Booking) error {
				return errors.New("disk full")
			},
		}
		svc := NewBookingService(env.store.Venues(), env.store.Slots(), repo, nil, nil, nil)
		_, err := svc.CreateWalkInBooking(ctx, testOwnerID, &dto.WalkInBookingRequest{
			VenueID: testVenueID, SlotID: testSlotID, CustomerName: "Ravi",
		})
		require.Error(t, err)
		assert.Equal(t, domain.SlotAvailable, env.slot(t, testSlotID).State)
	})
}
