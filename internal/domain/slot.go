package domain

import "time"

// SlotState is the reservation state of a slot
type SlotState string

const (
	SlotAvailable SlotState = "AVAILABLE"
	SlotLocked    SlotState = "LOCKED"
	SlotBooked    SlotState = "BOOKED"
)

// DateLayout and ClockLayout are the wire formats of slot dates and times
const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

var slotTransitions = map[SlotState][]SlotState{
	SlotAvailable: {SlotLocked, SlotBooked},
	SlotLocked:    {SlotLocked, SlotBooked, SlotAvailable},
	SlotBooked:    {SlotAvailable},
}

// CanTransition reports whether the slot state machine allows from -> to
func (s SlotState) CanTransition(to SlotState) bool {
	for _, allowed := range slotTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Slot is a fixed time window at a venue.
// LockOwner is the booking holding (LOCKED) or owning (BOOKED) the slot.
type Slot struct {
	ID            string     `json:"id"`
	VenueID       string     `json:"venue_id"`
	Date          string     `json:"date"`
	StartTime     string     `json:"start_time"`
	EndTime       string     `json:"end_time"`
	Price         int64      `json:"price"`
	State         SlotState  `json:"state"`
	LockOwner     string     `json:"lock_owner,omitempty"`
	LockExpiresAt *time.Time `json:"lock_expires_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Available is true only for AVAILABLE slots; an expired lock still shows as LOCKED
func (s *Slot) Available() bool {
	return s.State == SlotAvailable
}

// Acquirable reports whether a hold can be taken at now
func (s *Slot) Acquirable(now time.Time) bool {
	switch s.State {
	case SlotAvailable:
		return true
	case SlotLocked:
		return s.LockExpiresAt != nil && !s.LockExpiresAt.After(now)
	}
	return false
}

// Acquire locks the slot for bookingID until now+ttl
func (s *Slot) Acquire(bookingID string, now time.Time, ttl time.Duration) error {
	if !s.Acquirable(now) {
		return ErrSlotUnavailable
	}
	exp := now.Add(ttl)
	s.State = SlotLocked
	s.LockOwner = bookingID
	s.LockExpiresAt = &exp
	s.UpdatedAt = now
	return nil
}

// Confirm turns a live hold owned by bookingID into a booking
func (s *Slot) Confirm(bookingID string, now time.Time) error {
	if s.State != SlotLocked || s.LockOwner != bookingID ||
		s.LockExpiresAt == nil || !s.LockExpiresAt.After(now) {
		return ErrLockMismatch
	}
	s.State = SlotBooked
	s.LockExpiresAt = nil
	s.UpdatedAt = now
	return nil
}

// Release frees a hold owned by bookingID. Returns false when there was nothing to release.
func (s *Slot) Release(bookingID string, now time.Time) bool {
	if s.State != SlotLocked || s.LockOwner != bookingID {
		return false
	}
	s.reset(now)
	return true
}

// BookDirect books an AVAILABLE slot without a hold
func (s *Slot) BookDirect(bookingID string, now time.Time) error {
	if s.State != SlotAvailable {
		return ErrSlotUnavailable
	}
	s.State = SlotBooked
	s.LockOwner = bookingID
	s.LockExpiresAt = nil
	s.UpdatedAt = now
	return nil
}

// ReleaseBooked frees a slot booked by bookingID
func (s *Slot) ReleaseBooked(bookingID string, now time.Time) bool {
	if s.State != SlotBooked || s.LockOwner != bookingID {
		return false
	}
	s.reset(now)
	return true
}

func (s *Slot) reset(now time.Time) {
	s.State = SlotAvailable
	s.LockOwner = ""
	s.LockExpiresAt = nil
	s.UpdatedAt = now
}

// ParseSlotDate validates a YYYY-MM-DD date
func ParseSlotDate(date string) (time.Time, error) {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}
