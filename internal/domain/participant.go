package domain

import "time"

// ParticipantStatus is the payment status of one share
type ParticipantStatus string

const (
	ParticipantPending  ParticipantStatus = "PENDING"
	ParticipantPaid     ParticipantStatus = "PAID"
	ParticipantDeclined ParticipantStatus = "DECLINED"
	ParticipantRejected ParticipantStatus = "REJECTED"
)

var participantTransitions = map[ParticipantStatus][]ParticipantStatus{
	ParticipantPending:  {ParticipantPaid, ParticipantDeclined, ParticipantRejected},
	ParticipantRejected: {ParticipantPaid},
	ParticipantDeclined: {ParticipantPaid},
}

// CanTransition reports whether the participant state machine allows from -> to
func (s ParticipantStatus) CanTransition(to ParticipantStatus) bool {
	for _, allowed := range participantTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Participant owes ShareAmount towards a booking
type Participant struct {
	ID          string            `json:"id"`
	BookingID   string            `json:"booking_id"`
	UserID      string            `json:"user_id"`
	ShareAmount int64             `json:"share_amount"`
	Status      ParticipantStatus `json:"status"`
	PaidAt      *time.Time        `json:"paid_at,omitempty"`
	PaymentRef  string            `json:"payment_ref,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func (p *Participant) transition(to ParticipantStatus, now time.Time) error {
	if !p.Status.CanTransition(to) {
		return ErrInvalidState
	}
	p.Status = to
	p.UpdatedAt = now
	return nil
}

// MarkPaid records a captured payment
func (p *Participant) MarkPaid(paymentRef string, now time.Time) error {
	if p.Status == ParticipantPaid {
		return ErrAlreadyPaid
	}
	// a declined share is only settled through CoverShare
	if p.Status == ParticipantDeclined {
		return ErrInvalidState
	}
	return p.pay(paymentRef, now)
}

// CoverShare records the organizer paying a declined participant's share
func (p *Participant) CoverShare(paymentRef string, now time.Time) error {
	if p.Status != ParticipantDeclined {
		return ErrInvalidState
	}
	return p.pay(paymentRef, now)
}

func (p *Participant) pay(paymentRef string, now time.Time) error {
	if err := p.transition(ParticipantPaid, now); err != nil {
		return err
	}
	p.PaidAt = &now
	p.PaymentRef = paymentRef
	return nil
}

// Decline withdraws the participant. The share stays on the booking.
func (p *Participant) Decline(now time.Time) error {
	return p.transition(ParticipantDeclined, now)
}

// Reject records a failed payment attempt; a later capture may still succeed
func (p *Participant) Reject(now time.Time) error {
	return p.transition(ParticipantRejected, now)
}

// SplitEqually divides total into n shares. Index 0 is the organizer and
// absorbs the remainder so the shares always sum to total.
func SplitEqually(total int64, n int) []int64 {
	if n <= 0 {
		return nil
	}
	share := total / int64(n)
	shares := make([]int64, n)
	for i := range shares {
		shares[i] = share
	}
	shares[0] += total % int64(n)
	return shares
}

// AllPaid reports whether every participant has paid
func AllPaid(participants []*Participant) bool {
	if len(participants) == 0 {
		return false
	}
	for _, p := range participants {
		if p.Status != ParticipantPaid {
			return false
		}
	}
	return true
}

// AnyPaid reports whether at least one participant has paid
func AnyPaid(participants []*Participant) bool {
	for _, p := range participants {
		if p.Status == ParticipantPaid {
			return true
		}
	}
	return false
}

// FindParticipant returns the participant with id, or nil
func FindParticipant(participants []*Participant, id string) *Participant {
	for _, p := range participants {
		if p.ID == id {
			return p
		}
	}
	return nil
}
