package domain

import "time"

// Venue is a bookable turf. Only the owner and base price matter to booking.
type Venue struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	Location  string    `json:"location"`
	BasePrice int64     `json:"base_price"`
	CreatedAt time.Time `json:"created_at"`
}

// PriceFor returns the amount charged for slot at this venue
func (v *Venue) PriceFor(slot *Slot) int64 {
	if slot.Price > 0 {
		return slot.Price
	}
	return v.BasePrice
}

// IsOwnedBy reports whether userID owns the venue
func (v *Venue) IsOwnedBy(userID string) bool {
	return userID != "" && v.OwnerID == userID
}
