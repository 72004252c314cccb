package domain

import (
	"time"

	"github.com/google/uuid"
)

// BookingEventType names a booking lifecycle event
type BookingEventType string

const (
	BookingEventCreated   BookingEventType = "booking.created"
	BookingEventConfirmed BookingEventType = "booking.confirmed"
	BookingEventCancelled BookingEventType = "booking.cancelled"
	BookingEventExpired   BookingEventType = "booking.expired"
	BookingEventCompleted BookingEventType = "booking.completed"
)

// BookingEvent is published after a booking changes status
type BookingEvent struct {
	EventID     string           `json:"event_id"`
	EventType   BookingEventType `json:"event_type"`
	BookingID   string           `json:"booking_id"`
	UserID      string           `json:"user_id"`
	VenueID     string           `json:"venue_id"`
	SlotID      string           `json:"slot_id"`
	Status      BookingStatus    `json:"status"`
	Source      BookingSource    `json:"source"`
	TotalAmount int64            `json:"total_amount"`
	Currency    string           `json:"currency"`
	Reason      string           `json:"reason,omitempty"`
	OccurredAt  time.Time        `json:"occurred_at"`
}

// NewBookingEvent snapshots b for publication
func NewBookingEvent(eventType BookingEventType, b *Booking) *BookingEvent {
	return &BookingEvent{
		EventID:     uuid.NewString(),
		EventType:   eventType,
		BookingID:   b.ID,
		UserID:      b.UserID,
		VenueID:     b.VenueID,
		SlotID:      b.SlotID,
		Status:      b.Status,
		Source:      b.Source,
		TotalAmount: b.TotalAmount,
		Currency:    b.Currency,
		Reason:      b.StatusReason,
		OccurredAt:  time.Now().UTC(),
	}
}

// Payment event types reported by the payment gateway integration
const (
	PaymentEventCaptured = "payment.captured"
	PaymentEventFailed   = "payment.failed"
)

// PaymentEvent reports the outcome of one participant's payment
type PaymentEvent struct {
	EventType     string    `json:"event_type"`
	BookingID     string    `json:"booking_id"`
	ParticipantID string    `json:"participant_id"`
	PaymentID     string    `json:"payment_id"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	Reason        string    `json:"reason,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
