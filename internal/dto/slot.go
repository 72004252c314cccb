package dto

import "github.com/prohmpiriya/turf-booking/internal/domain"

// GenerateSlotsRequest describes a day of fixed-length slots.
// Empty fields fall back to 06:00-23:00 in 60 minute slots at the venue price.
type GenerateSlotsRequest struct {
	Date            string `json:"date" binding:"required"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	DurationMinutes int    `json:"duration_minutes" binding:"min=0"`
	Price           int64  `json:"price" binding:"min=0"`
}

// CreateVenueRequest registers a turf for the calling owner
type CreateVenueRequest struct {
	Name      string `json:"name" binding:"required"`
	Location  string `json:"location"`
	BasePrice int64  `json:"base_price" binding:"required,gt=0"`
}

// SlotResponse is the public view of a slot
type SlotResponse struct {
	ID        string `json:"id"`
	VenueID   string `json:"venue_id"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Price     int64  `json:"price"`
	State     string `json:"state"`
	Available bool   `json:"available"`
}

// FromSlot converts a domain Slot
func FromSlot(s *domain.Slot) *SlotResponse {
	return &SlotResponse{
		ID:        s.ID,
		VenueID:   s.VenueID,
		Date:      s.Date,
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		Price:     s.Price,
		State:     string(s.State),
		Available: s.Available(),
	}
}

// FromSlots converts a slot list
func FromSlots(slots []*domain.Slot) []*SlotResponse {
	out := make([]*SlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, FromSlot(s))
	}
	return out
}
