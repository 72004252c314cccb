package domain

import "errors"

// Domain errors
var (
	// Not found
	ErrVenueNotFound       = errors.New("venue not found")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrBookingNotFound     = errors.New("booking not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrQRSecretNotFound    = errors.New("qr secret not recognised")

	// Conflicts
	ErrSlotUnavailable    = errors.New("slot is not available")
	ErrLockMismatch       = errors.New("slot is not locked by this booking")
	ErrAlreadyParticipant = errors.New("user is already a participant")
	ErrAlreadyPaid        = errors.New("participant has already paid")
	ErrAlreadyCheckedIn   = errors.New("booking already checked in")
	ErrSlotAlreadyExists  = errors.New("slot already exists")

	// State
	ErrInvalidState         = errors.New("invalid state transition")
	ErrBookingNotReservable = errors.New("booking is not accepting changes")
	ErrSharesLocked         = errors.New("shares are locked once a participant has paid")
	ErrNotConfirmed         = errors.New("booking is not confirmed")

	// Expiry
	ErrBookingExpired = errors.New("booking has expired")
	ErrHoldLost       = errors.New("hold lost before payment completed")

	// Validation
	ErrInvalidAmount     = errors.New("amount does not match slot price")
	ErrInvalidUserID     = errors.New("invalid user id")
	ErrInvalidVenueID    = errors.New("invalid venue id")
	ErrInvalidSlotID     = errors.New("invalid slot id")
	ErrInvalidBookingID  = errors.New("invalid booking id")
	ErrInvalidDate       = errors.New("invalid date, expected YYYY-MM-DD")
	ErrInvalidTimeRange  = errors.New("invalid time range")
	ErrTooManySlots      = errors.New("too many slots requested")
	ErrSlotVenueMismatch = errors.New("slot does not belong to venue")
	ErrInvalidQRSecret   = errors.New("qr secret is required")
	ErrInvalidVenueName  = errors.New("venue name is required")
	ErrInvalidPaymentRef = errors.New("payment reference is required")

	// Authorisation
	ErrNotOwner       = errors.New("only the organizer can do this")
	ErrNotParticipant = errors.New("user is not a participant of this booking")
	ErrNotVenueOwner  = errors.New("venue belongs to another owner")
)

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrVenueNotFound) ||
		errors.Is(err, ErrSlotNotFound) ||
		errors.Is(err, ErrBookingNotFound) ||
		errors.Is(err, ErrParticipantNotFound) ||
		errors.Is(err, ErrQRSecretNotFound)
}

// IsConflictError checks if the error is a conflict error
func IsConflictError(err error) bool {
	return errors.Is(err, ErrSlotUnavailable) ||
		errors.Is(err, ErrLockMismatch) ||
		errors.Is(err, ErrAlreadyParticipant) ||
		errors.Is(err, ErrAlreadyPaid) ||
		errors.Is(err, ErrAlreadyCheckedIn) ||
		errors.Is(err, ErrSlotAlreadyExists)
}

// IsInvalidStateError checks if the error is a state machine violation
func IsInvalidStateError(err error) bool {
	return errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrBookingNotReservable) ||
		errors.Is(err, ErrSharesLocked) ||
		errors.Is(err, ErrNotConfirmed)
}

// IsExpiredError checks if the error means the hold is gone
func IsExpiredError(err error) bool {
	return errors.Is(err, ErrBookingExpired) ||
		errors.Is(err, ErrHoldLost)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidUserID) ||
		errors.Is(err, ErrInvalidVenueID) ||
		errors.Is(err, ErrInvalidSlotID) ||
		errors.Is(err, ErrInvalidBookingID) ||
		errors.Is(err, ErrInvalidDate) ||
		errors.Is(err, ErrInvalidTimeRange) ||
		errors.Is(err, ErrTooManySlots) ||
		errors.Is(err, ErrSlotVenueMismatch) ||
		errors.Is(err, ErrInvalidQRSecret) ||
		errors.Is(err, ErrInvalidVenueName) ||
		errors.Is(err, ErrInvalidPaymentRef)
}

// IsForbiddenError checks if the caller may not act on the resource
func IsForbiddenError(err error) bool {
	return errors.Is(err, ErrNotOwner) ||
		errors.Is(err, ErrNotParticipant) ||
		errors.Is(err, ErrNotVenueOwner)
}
