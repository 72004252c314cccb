package dto

import (
	"time"

	"github.com/prohmpiriya/turf-booking/internal/domain"
)

// InitiateBookingRequest represents request to hold a slot and open a booking
type InitiateBookingRequest struct {
	VenueID string `json:"venue_id" binding:"required"`
	SlotID  string `json:"slot_id" binding:"required"`
	// TotalAmount must equal the slot price; 0 charges the listed price
	TotalAmount int64 `json:"total_amount" binding:"min=0"`
}

// AddParticipantRequest represents request to add a user to a split booking
type AddParticipantRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// RecordPaymentRequest represents a captured participant payment
type RecordPaymentRequest struct {
	PaymentRef string `json:"payment_ref" binding:"required"`
}

// WalkInBookingRequest represents a counter booking made by the venue owner
type WalkInBookingRequest struct {
	VenueID       string `json:"venue_id" binding:"required"`
	SlotID        string `json:"slot_id" binding:"required"`
	CustomerName  string `json:"customer_name" binding:"required"`
	CustomerPhone string `json:"customer_phone"`
	Amount        int64  `json:"amount" binding:"min=0"`
}

// ScanRequest carries the secret read from a QR code
type ScanRequest struct {
	QRSecret string `json:"qr_secret" binding:"required"`
}

// ParticipantResponse represents a participant in API response
type ParticipantResponse struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	ShareAmount int64      `json:"share_amount"`
	Status      string     `json:"status"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
}

// BookingResponse represents a booking in API response
type BookingResponse struct {
	ID            string                 `json:"id"`
	UserID        string                 `json:"user_id"`
	VenueID       string                 `json:"venue_id"`
	SlotID        string                 `json:"slot_id"`
	TotalAmount   int64                  `json:"total_amount"`
	Currency      string                 `json:"currency"`
	Status        string                 `json:"status"`
	Source        string                 `json:"source"`
	StatusReason  string                 `json:"status_reason,omitempty"`
	ExpiresAt     time.Time              `json:"expires_at"`
	QRSecret      string                 `json:"qr_secret,omitempty"`
	CustomerName  string                 `json:"customer_name,omitempty"`
	CustomerPhone string                 `json:"customer_phone,omitempty"`
	ConfirmedAt   *time.Time             `json:"confirmed_at,omitempty"`
	CancelledAt   *time.Time             `json:"cancelled_at,omitempty"`
	CheckedInAt   *time.Time             `json:"checked_in_at,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	Participants  []*ParticipantResponse `json:"participants"`
}

// CheckInResponse is returned by a successful scan
type CheckInResponse struct {
	BookingID   string    `json:"booking_id"`
	VenueID     string    `json:"venue_id"`
	SlotID      string    `json:"slot_id"`
	Status      string    `json:"status"`
	CheckedInAt time.Time `json:"checked_in_at"`
}

// FromParticipant converts a domain Participant
func FromParticipant(p *domain.Participant) *ParticipantResponse {
	return &ParticipantResponse{
		ID:          p.ID,
		UserID:      p.UserID,
		ShareAmount: p.ShareAmount,
		Status:      string(p.Status),
		PaidAt:      p.PaidAt,
	}
}

// FromParticipants converts a participant list
func FromParticipants(ps []*domain.Participant) []*ParticipantResponse {
	out := make([]*ParticipantResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, FromParticipant(p))
	}
	return out
}

// FromBooking converts domain Booking to BookingResponse.
// The QR secret is only exposed to the organizer.
func FromBooking(b *domain.Booking, viewerID string) *BookingResponse {
	resp := &BookingResponse{
		ID:            b.ID,
		UserID:        b.UserID,
		VenueID:       b.VenueID,
		SlotID:        b.SlotID,
		TotalAmount:   b.TotalAmount,
		Currency:      b.Currency,
		Status:        string(b.Status),
		Source:        string(b.Source),
		StatusReason:  b.StatusReason,
		ExpiresAt:     b.ExpiresAt,
		CustomerName:  b.CustomerName,
		CustomerPhone: b.CustomerPhone,
		ConfirmedAt:   b.ConfirmedAt,
		CancelledAt:   b.CancelledAt,
		CheckedInAt:   b.CheckedInAt,
		CreatedAt:     b.CreatedAt,
		Participants:  FromParticipants(b.Participants),
	}
	if b.IsOrganizer(viewerID) {
		resp.QRSecret = b.QRSecret
	}
	return resp
}

// FromBookings converts a booking list for viewerID
func FromBookings(bs []*domain.Booking, viewerID string) []*BookingResponse {
	out := make([]*BookingResponse, 0, len(bs))
	for _, b := range bs {
		out = append(out, FromBooking(b, viewerID))
	}
	return out
}

// FromCheckIn converts a completed booking to CheckInResponse
func FromCheckIn(b *domain.Booking) *CheckInResponse {
	resp := &CheckInResponse{
		BookingID: b.ID,
		VenueID:   b.VenueID,
		SlotID:    b.SlotID,
		Status:    string(b.Status),
	}
	if b.CheckedInAt != nil {
		resp.CheckedInAt = *b.CheckedInAt
	}
	return resp
}
