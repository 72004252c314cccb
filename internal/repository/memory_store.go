package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/prohmpiriya/turf-booking/internal/domain"
)

// MemoryStore is an in-process implementation of every repository, used by the
// memory storage driver and by tests. One mutex guards all rows; per-booking
// and per-slot mutexes stand in for row locks. Lock order is booking, slot, store.
type MemoryStore struct {
	mu           sync.Mutex
	venues       map[string]*domain.Venue
	slots        map[string]*domain.Slot
	bookings     map[string]*domain.Booking
	participants map[string][]*domain.Participant
	bookingLocks map[string]*sync.Mutex
	slotLocks    map[string]*sync.Mutex
	now          func() time.Time
}

// NewMemoryStore creates an empty store using the wall clock
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		venues:       map[string]*domain.Venue{},
		slots:        map[string]*domain.Slot{},
		bookings:     map[string]*domain.Booking{},
		participants: map[string][]*domain.Participant{},
		bookingLocks: map[string]*sync.Mutex{},
		slotLocks:    map[string]*sync.Mutex{},
		now:          time.Now,
	}
}

// WithClock replaces the clock used for lock expiry
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// Venues returns the venue repository view of the store
func (s *MemoryStore) Venues() VenueRepository { return &memoryVenueRepository{s} }

// Slots returns the slot repository view of the store
func (s *MemoryStore) Slots() SlotRepository { return &memorySlotRepository{s} }

// Bookings returns the booking repository view of the store
func (s *MemoryStore) Bookings() BookingRepository { return &memoryBookingRepository{s} }

func cloneSlot(sl *domain.Slot) *domain.Slot {
	c := *sl
	if sl.LockExpiresAt != nil {
		t := *sl.LockExpiresAt
		c.LockExpiresAt = &t
	}
	return &c
}

func cloneParticipant(p *domain.Participant) *domain.Participant {
	c := *p
	if p.PaidAt != nil {
		t := *p.PaidAt
		c.PaidAt = &t
	}
	return &c
}

func cloneBooking(b *domain.Booking) *domain.Booking {
	c := *b
	c.Participants = nil
	for _, t := range []**time.Time{&c.CheckedInAt, &c.ConfirmedAt, &c.CancelledAt} {
		if *t != nil {
			v := **t
			*t = &v
		}
	}
	return &c
}

// bookingWithParticipants must be called with s.mu held
func (s *MemoryStore) bookingWithParticipants(b *domain.Booking) *domain.Booking {
	c := cloneBooking(b)
	for _, p := range s.participants[b.ID] {
		c.Participants = append(c.Participants, cloneParticipant(p))
	}
	return c
}

func (s *MemoryStore) bookingLock(id string) *sync.Mutex {
	return s.rowLock(s.bookingLocks, id)
}

func (s *MemoryStore) slotLock(id string) *sync.Mutex {
	return s.rowLock(s.slotLocks, id)
}

func (s *MemoryStore) rowLock(locks map[string]*sync.Mutex, id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := locks[id]
	if !ok {
		l = &sync.Mutex{}
		locks[id] = l
	}
	return l
}

type memoryVenueRepository struct{ s *MemoryStore }

func (r *memoryVenueRepository) Create(_ context.Context, venue *domain.Venue) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v := *venue
	r.s.venues[venue.ID] = &v
	return nil
}

func (r *memoryVenueRepository) GetByID(_ context.Context, id string) (*domain.Venue, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.venues[id]
	if !ok {
		return nil, domain.ErrVenueNotFound
	}
	c := *v
	return &c, nil
}

type memorySlotRepository struct{ s *MemoryStore }

func (r *memorySlotRepository) GetByID(_ context.Context, id string) (*domain.Slot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sl, ok := r.s.slots[id]
	if !ok {
		return nil, domain.ErrSlotNotFound
	}
	return cloneSlot(sl), nil
}

func (r *memorySlotRepository) ListByVenueAndDate(_ context.Context, venueID, date string) ([]*domain.Slot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*domain.Slot{}
	for _, sl := range r.s.slots {
		if sl.VenueID == venueID && sl.Date == date {
			out = append(out, cloneSlot(sl))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}

func (r *memorySlotRepository) CreateMany(_ context.Context, slots []*domain.Slot) ([]*domain.Slot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	taken := map[string]bool{}
	for _, sl := range r.s.slots {
		taken[sl.VenueID+"|"+sl.Date+"|"+sl.StartTime] = true
	}

	created := []*domain.Slot{}
	for _, sl := range slots {
		key := sl.VenueID + "|" + sl.Date + "|" + sl.StartTime
		if taken[key] {
			continue
		}
		taken[key] = true
		c := cloneSlot(sl)
		c.State = domain.SlotAvailable
		r.s.slots[c.ID] = c
		created = append(created, cloneSlot(c))
	}
	return created, nil
}

// mutate applies fn to the stored slot under its row lock
func (r *memorySlotRepository) mutate(id string, fn func(sl *domain.Slot, now time.Time) error) (*domain.Slot, error) {
	lock := r.s.slotLock(id)
	lock.Lock()
	defer lock.Unlock()

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sl, ok := r.s.slots[id]
	if !ok {
		return nil, domain.ErrSlotNotFound
	}
	if err := fn(sl, r.s.now()); err != nil {
		return nil, err
	}
	return cloneSlot(sl), nil
}

func (r *memorySlotRepository) AcquireHold(_ context.Context, slotID, bookingID string, ttl time.Duration) (*domain.Slot, error) {
	return r.mutate(slotID, func(sl *domain.Slot, now time.Time) error {
		return sl.Acquire(bookingID, now, ttl)
	})
}

func (r *memorySlotRepository) ConfirmHold(_ context.Context, slotID, bookingID string) error {
	_, err := r.mutate(slotID, func(sl *domain.Slot, now time.Time) error {
		return sl.Confirm(bookingID, now)
	})
	return err
}

func (r *memorySlotRepository) ReleaseHold(_ context.Context, slotID, bookingID string) (bool, error) {
	released := false
	_, err := r.mutate(slotID, func(sl *domain.Slot, now time.Time) error {
		released = sl.Release(bookingID, now)
		return nil
	})
	if errors.Is(err, domain.ErrSlotNotFound) {
		return false, nil
	}
	return released, err
}

func (r *memorySlotRepository) BookDirect(_ context.Context, slotID, bookingID string) error {
	_, err := r.mutate(slotID, func(sl *domain.Slot, now time.Time) error {
		return sl.BookDirect(bookingID, now)
	})
	return err
}

func (r *memorySlotRepository) ReleaseBooked(_ context.Context, slotID, bookingID string) (bool, error) {
	released := false
	_, err := r.mutate(slotID, func(sl *domain.Slot, now time.Time) error {
		released = sl.ReleaseBooked(bookingID, now)
		return nil
	})
	if errors.Is(err, domain.ErrSlotNotFound) {
		return false, nil
	}
	return released, err
}

type memoryBookingRepository struct{ s *MemoryStore }

func (r *memoryBookingRepository) Create(_ context.Context, booking *domain.Booking) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.bookings[booking.ID]; exists {
		return domain.ErrInvalidState
	}
	if booking.QRSecret != "" {
		for _, b := range r.s.bookings {
			if b.QRSecret == booking.QRSecret {
				return domain.ErrInvalidState
			}
		}
	}

	r.s.bookings[booking.ID] = cloneBooking(booking)
	ps := make([]*domain.Participant, 0, len(booking.Participants))
	for _, p := range booking.Participants {
		ps = append(ps, cloneParticipant(p))
	}
	r.s.participants[booking.ID] = ps
	return nil
}

func (r *memoryBookingRepository) GetByID(_ context.Context, id string) (*domain.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.bookings[id]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	return r.s.bookingWithParticipants(b), nil
}

func (r *memoryBookingRepository) GetByQRSecret(_ context.Context, qrSecret string) (*domain.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, b := range r.s.bookings {
		if qrSecret != "" && b.QRSecret == qrSecret {
			return r.s.bookingWithParticipants(b), nil
		}
	}
	return nil, domain.ErrQRSecretNotFound
}

func (r *memoryBookingRepository) ListByUser(_ context.Context, userID string, limit, offset int) ([]*domain.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	matched := []*domain.Booking{}
	for _, b := range r.s.bookings {
		full := r.s.bookingWithParticipants(b)
		if full.UserID == userID || full.HasParticipant(userID) {
			matched = append(matched, full)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	return page(matched, limit, offset), nil
}

func (r *memoryBookingRepository) ListExpiredReserved(_ context.Context, now time.Time, limit int) ([]*domain.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	expired := []*domain.Booking{}
	for _, b := range r.s.bookings {
		if b.HoldExpired(now) {
			expired = append(expired, r.s.bookingWithParticipants(b))
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ExpiresAt.Before(expired[j].ExpiresAt) })
	return page(expired, limit, 0), nil
}

func (r *memoryBookingRepository) WithinBookingLock(ctx context.Context, bookingID string, fn BookingFunc) error {
	lock := r.s.bookingLock(bookingID)
	lock.Lock()
	defer lock.Unlock()

	r.s.mu.Lock()
	stored, ok := r.s.bookings[bookingID]
	if !ok {
		r.s.mu.Unlock()
		return domain.ErrBookingNotFound
	}
	b := r.s.bookingWithParticipants(stored)
	r.s.mu.Unlock()

	tx := &memoryBookingTx{s: r.s, booking: cloneBooking(b), slots: map[string]*domain.Slot{}}
	for _, p := range b.Participants {
		tx.participants = append(tx.participants, cloneParticipant(p))
	}
	defer tx.unlockSlots()

	if err := fn(ctx, tx, b); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if tx.bookingDirty {
		r.s.bookings[bookingID] = cloneBooking(tx.booking)
	}
	r.s.participants[bookingID] = tx.participants
	for id, sl := range tx.slots {
		r.s.slots[id] = sl
	}
	return nil
}

func (r *memoryBookingRepository) CheckIn(_ context.Context, qrSecret string, at time.Time) (*domain.Booking, bool, error) {
	r.s.mu.Lock()
	var id string
	for _, b := range r.s.bookings {
		if qrSecret != "" && b.QRSecret == qrSecret {
			id = b.ID
			break
		}
	}
	r.s.mu.Unlock()
	if id == "" {
		return nil, false, nil
	}

	lock := r.s.bookingLock(id)
	lock.Lock()
	defer lock.Unlock()

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b := r.s.bookings[id]
	if b.Status != domain.BookingConfirmed || b.CheckedInAt != nil {
		return nil, false, nil
	}
	if err := b.CheckIn(at); err != nil {
		return nil, false, nil
	}
	return r.s.bookingWithParticipants(b), true, nil
}

// memoryBookingTx stages every write until the callback succeeds. A slot touched
// through Slots() stays row locked until the transaction ends, so other writers
// wait for the commit or rollback.
type memoryBookingTx struct {
	s            *MemoryStore
	booking      *domain.Booking
	bookingDirty bool
	participants []*domain.Participant
	slots        map[string]*domain.Slot
	slotLocks    []*sync.Mutex
}

func (t *memoryBookingTx) Slots() SlotRepository {
	return &memoryTxSlotRepository{tx: t}
}

func (t *memoryBookingTx) unlockSlots() {
	for _, l := range t.slotLocks {
		l.Unlock()
	}
	t.slotLocks = nil
}

// stagedSlot returns the transaction's copy of a slot, locking its row on first use
func (t *memoryBookingTx) stagedSlot(id string) (*domain.Slot, error) {
	if sl, ok := t.slots[id]; ok {
		return sl, nil
	}

	lock := t.s.slotLock(id)
	lock.Lock()

	t.s.mu.Lock()
	stored, ok := t.s.slots[id]
	var sl *domain.Slot
	if ok {
		sl = cloneSlot(stored)
	}
	t.s.mu.Unlock()

	if !ok {
		lock.Unlock()
		return nil, domain.ErrSlotNotFound
	}
	t.slotLocks = append(t.slotLocks, lock)
	t.slots[id] = sl
	return sl, nil
}

// memoryTxSlotRepository is the slot view of a memoryBookingTx
type memoryTxSlotRepository struct {
	tx *memoryBookingTx
}

func (r *memoryTxSlotRepository) store() *memorySlotRepository {
	return &memorySlotRepository{r.tx.s}
}

func (r *memoryTxSlotRepository) GetByID(ctx context.Context, id string) (*domain.Slot, error) {
	if sl, ok := r.tx.slots[id]; ok {
		return cloneSlot(sl), nil
	}
	return r.store().GetByID(ctx, id)
}

func (r *memoryTxSlotRepository) ListByVenueAndDate(ctx context.Context, venueID, date string) ([]*domain.Slot, error) {
	slots, err := r.store().ListByVenueAndDate(ctx, venueID, date)
	if err != nil {
		return nil, err
	}
	for i, sl := range slots {
		if staged, ok := r.tx.slots[sl.ID]; ok {
			slots[i] = cloneSlot(staged)
		}
	}
	return slots, nil
}

// CreateMany is not staged; new slots are visible immediately
func (r *memoryTxSlotRepository) CreateMany(ctx context.Context, slots []*domain.Slot) ([]*domain.Slot, error) {
	return r.store().CreateMany(ctx, slots)
}

func (r *memoryTxSlotRepository) mutate(id string, fn func(sl *domain.Slot, now time.Time) error) (*domain.Slot, error) {
	sl, err := r.tx.stagedSlot(id)
	if err != nil {
		return nil, err
	}
	next := cloneSlot(sl)
	if err := fn(next, r.tx.s.now()); err != nil {
		return nil, err
	}
	r.tx.slots[id] = next
	return cloneSlot(next), nil
}

func (r *memoryTxSlotRepository) AcquireHold(_ context.Context, slotID, bookingID string, ttl time.Duration) (*domain.Slot, error) {
	return r.mutate(slotID, func(sl *domain.Slot, now time.Time) error {
		return sl.Acquire(bookingID, now, ttl)
	})
}

func (r *memoryTxSlotRepository) ConfirmHold(_ context.Context, slotID, bookingID string) error {
	_, err := r.mutate(slotID, func(sl *domain.Slot, now time.Time) error {
		return sl.Confirm(bookingID, now)
	})
	return err
}

func (r *memoryTxSlotRepository) ReleaseHold(_ context.Context, slotID, bookingID string) (bool, error) {
	released := false
	_, err := r.mutate(slotID, func(sl *domain.Slot, now time.Time) error {
		released = sl.Release(bookingID, now)
		return nil
	})
	if errors.Is(err, domain.ErrSlotNotFound) {
		return false, nil
	}
	return released, err
}

func (r *memoryTxSlotRepository) BookDirect(_ context.Context, slotID, bookingID string) error {
	_, err := r.mutate(slotID, func(sl *domain.Slot, now time.Time) error {
		return sl.BookDirect(bookingID, now)
	})
	return err
}

func (r *memoryTxSlotRepository) ReleaseBooked(_ context.Context, slotID, bookingID string) (bool, error) {
	released := false
	_, err := r.mutate(slotID, func(sl *domain.Slot, now time.Time) error {
		released = sl.ReleaseBooked(bookingID, now)
		return nil
	})
	if errors.Is(err, domain.ErrSlotNotFound) {
		return false, nil
	}
	return released, err
}

func (t *memoryBookingTx) UpdateBooking(_ context.Context, b *domain.Booking) error {
	t.booking = cloneBooking(b)
	t.bookingDirty = true
	return nil
}

func (t *memoryBookingTx) InsertParticipant(_ context.Context, p *domain.Participant) error {
	for _, existing := range t.participants {
		if existing.UserID == p.UserID {
			return domain.ErrAlreadyParticipant
		}
	}
	t.participants = append(t.participants, cloneParticipant(p))
	return nil
}

func (t *memoryBookingTx) UpdateParticipant(_ context.Context, p *domain.Participant) error {
	for i, existing := range t.participants {
		if existing.ID == p.ID {
			t.participants[i] = cloneParticipant(p)
			return nil
		}
	}
	return domain.ErrParticipantNotFound
}

func page(bookings []*domain.Booking, limit, offset int) []*domain.Booking {
	if offset >= len(bookings) {
		return []*domain.Booking{}
	}
	bookings = bookings[offset:]
	if limit > 0 && limit < len(bookings) {
		bookings = bookings[:limit]
	}
	return bookings
}
