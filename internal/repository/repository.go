package repository

import (
	"context"
	"time"

	"github.com/prohmpiriya/turf-booking/internal/domain"
)

// VenueRepository reads and registers venues
type VenueRepository interface {
	Create(ctx context.Context, venue *domain.Venue) error
	GetByID(ctx context.Context, id string) (*domain.Venue, error)
}

// SlotRepository owns slot rows. AcquireHold is the only place a slot can be claimed
// by an online booking; every mutator is a single conditional update.
type SlotRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Slot, error)
	ListByVenueAndDate(ctx context.Context, venueID, date string) ([]*domain.Slot, error)
	// CreateMany inserts slots, skipping ones whose (venue, date, start) already exists.
	// Returns the slots actually inserted.
	CreateMany(ctx context.Context, slots []*domain.Slot) ([]*domain.Slot, error)

	AcquireHold(ctx context.Context, slotID, bookingID string, ttl time.Duration) (*domain.Slot, error)
	ConfirmHold(ctx context.Context, slotID, bookingID string) error
	ReleaseHold(ctx context.Context, slotID, bookingID string) (bool, error)
	BookDirect(ctx context.Context, slotID, bookingID string) error
	ReleaseBooked(ctx context.Context, slotID, bookingID string) (bool, error)
}

// BookingTx is the write side of a booking while its lock is held
type BookingTx interface {
	// Slots returns a slot repository bound to the same transaction
	Slots() SlotRepository
	UpdateBooking(ctx context.Context, booking *domain.Booking) error
	InsertParticipant(ctx context.Context, participant *domain.Participant) error
	UpdateParticipant(ctx context.Context, participant *domain.Participant) error
}

// BookingFunc mutates a locked booking. Returning an error rolls the transaction back.
type BookingFunc func(ctx context.Context, tx BookingTx, booking *domain.Booking) error

// BookingRepository stores bookings together with their participants
type BookingRepository interface {
	// Create inserts the booking and its participants atomically
	Create(ctx context.Context, booking *domain.Booking) error
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	GetByQRSecret(ctx context.Context, qrSecret string) (*domain.Booking, error)
	// ListByUser returns bookings the user organised or participates in, newest first
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Booking, error)
	// ListExpiredReserved returns RESERVED bookings whose hold ended at or before now
	ListExpiredReserved(ctx context.Context, now time.Time, limit int) ([]*domain.Booking, error)
	// WithinBookingLock serialises all writers of one booking
	WithinBookingLock(ctx context.Context, bookingID string, fn BookingFunc) error
	// CheckIn completes the CONFIRMED, not yet checked in booking holding qrSecret.
	// ok is false when no booking matched.
	CheckIn(ctx context.Context, qrSecret string, at time.Time) (booking *domain.Booking, ok bool, err error)
}
