package domain

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

// BookingStatus is the lifecycle status of a booking
type BookingStatus string

const (
	BookingReserved  BookingStatus = "RESERVED"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
	BookingExpired   BookingStatus = "EXPIRED"
	BookingCompleted BookingStatus = "COMPLETED"
)

// BookingSource tells online bookings from counter bookings
type BookingSource string

const (
	SourceOnline BookingSource = "ONLINE"
	SourceWalkIn BookingSource = "WALK_IN"
)

// Status reasons recorded on terminal transitions
const (
	ReasonHoldExpired   = "hold expired"
	ReasonHoldLost      = "hold lost before payment completed"
	ReasonCancelledUser = "cancelled by organizer"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingReserved:  {BookingConfirmed, BookingExpired, BookingCancelled},
	BookingConfirmed: {BookingCancelled, BookingCompleted},
}

// CanTransition reports whether the booking state machine allows from -> to
func (s BookingStatus) CanTransition(to BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible
func (s BookingStatus) IsTerminal() bool {
	return len(bookingTransitions[s]) == 0
}

// Booking is a claim on one slot by an organizer
type Booking struct {
	ID            string         `json:"id"`
	UserID        string         `json:"user_id"`
	VenueID       string         `json:"venue_id"`
	SlotID        string         `json:"slot_id"`
	TotalAmount   int64          `json:"total_amount"`
	Currency      string         `json:"currency"`
	Status        BookingStatus  `json:"status"`
	Source        BookingSource  `json:"source"`
	ExpiresAt     time.Time      `json:"expires_at"`
	QRSecret      string         `json:"-"`
	StatusReason  string         `json:"status_reason,omitempty"`
	CustomerName  string         `json:"customer_name,omitempty"`
	CustomerPhone string         `json:"customer_phone,omitempty"`
	CheckedInAt   *time.Time     `json:"checked_in_at,omitempty"`
	ConfirmedAt   *time.Time     `json:"confirmed_at,omitempty"`
	CancelledAt   *time.Time     `json:"cancelled_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	Participants  []*Participant `json:"participants,omitempty"`
}

// IsOrganizer reports whether userID created the booking
func (b *Booking) IsOrganizer(userID string) bool {
	return userID != "" && b.UserID == userID
}

// HoldExpired reports whether a RESERVED booking is past its hold deadline
func (b *Booking) HoldExpired(now time.Time) bool {
	return b.Status == BookingReserved && !b.ExpiresAt.After(now)
}

func (b *Booking) transition(to BookingStatus, now time.Time) error {
	if !b.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, b.Status, to)
	}
	b.Status = to
	b.UpdatedAt = now
	return nil
}

// Confirm marks a fully paid booking as CONFIRMED with its check-in secret
func (b *Booking) Confirm(qrSecret string, now time.Time) error {
	if err := b.transition(BookingConfirmed, now); err != nil {
		return err
	}
	b.QRSecret = qrSecret
	b.ConfirmedAt = &now
	return nil
}

// Expire ends a RESERVED booking whose hold is gone
func (b *Booking) Expire(reason string, now time.Time) error {
	if err := b.transition(BookingExpired, now); err != nil {
		return err
	}
	b.StatusReason = reason
	return nil
}

// Cancel ends a RESERVED or CONFIRMED booking
func (b *Booking) Cancel(reason string, now time.Time) error {
	if err := b.transition(BookingCancelled, now); err != nil {
		return err
	}
	b.StatusReason = reason
	b.CancelledAt = &now
	return nil
}

// CheckIn completes a CONFIRMED booking
func (b *Booking) CheckIn(now time.Time) error {
	if b.CheckedInAt != nil {
		return ErrAlreadyCheckedIn
	}
	if b.Status != BookingConfirmed {
		return ErrNotConfirmed
	}
	if err := b.transition(BookingCompleted, now); err != nil {
		return err
	}
	b.CheckedInAt = &now
	return nil
}

// Organizer returns the organizer's participant record, or nil
func (b *Booking) Organizer() *Participant {
	for _, p := range b.Participants {
		if p.UserID == b.UserID {
			return p
		}
	}
	return nil
}

// HasParticipant reports whether userID is on the booking
func (b *Booking) HasParticipant(userID string) bool {
	for _, p := range b.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// GenerateQRSecret returns 32 random bytes, base64url encoded without padding
func GenerateQRSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate qr secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
