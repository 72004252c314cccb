package handler

import (
	"context"

	"github.com/prohmpiriya/turf-booking/internal/domain"
	"github.com/prohmpiriya/turf-booking/internal/dto"
)

// MockBookingService is a mock implementation of BookingService for testing
type MockBookingService struct {
	InitiateBookingFunc     func(ctx context.Context, userID string, req *dto.InitiateBookingRequest) (*domain.Booking, error)
	CancelBookingFunc       func(ctx context.Context, bookingID, actorID string) (*domain.Booking, error)
	MarkExpiredFunc         func(ctx context.Context, bookingID string) (bool, error)
	GetBookingFunc          func(ctx context.Context, bookingID, actorID string) (*domain.Booking, error)
	ListMyBookingsFunc      func(ctx context.Context, userID string, page, pageSize int) ([]*domain.Booking, error)
	CreateWalkInBookingFunc func(ctx context.Context, ownerID string, req *dto.WalkInBookingRequest) (*domain.Booking, error)
	ListExpiredReservedFunc func(ctx context.Context, limit int) ([]*domain.Booking, error)
}

func (m *MockBookingService) InitiateBooking(ctx context.Context, userID string, req *dto.InitiateBookingRequest) (*domain.Booking, error) {
	if m.InitiateBookingFunc != nil {
		return m.InitiateBookingFunc(ctx, userID, req)
	}
	return nil, nil
}

func (m *MockBookingService) CancelBooking(ctx context.Context, bookingID, actorID string) (*domain.Booking, error) {
	if m.CancelBookingFunc != nil {
		return m.CancelBookingFunc(ctx, bookingID, actorID)
	}
	return nil, nil
}

func (m *MockBookingService) MarkExpired(ctx context.Context, bookingID string) (bool, error) {
	if m.MarkExpiredFunc != nil {
		return m.MarkExpiredFunc(ctx, bookingID)
	}
	return false, nil
}

func (m *MockBookingService) GetBooking(ctx context.Context, bookingID, actorID string) (*domain.Booking, error) {
	if m.GetBookingFunc != nil {
		return m.GetBookingFunc(ctx, bookingID, actorID)
	}
	return nil, nil
}

func (m *MockBookingService) ListMyBookings(ctx context.Context, userID string, page, pageSize int) ([]*domain.Booking, error) {
	if m.ListMyBookingsFunc != nil {
		return m.ListMyBookingsFunc(ctx, userID, page, pageSize)
	}
	return nil, nil
}

func (m *MockBookingService) CreateWalkInBooking(ctx context.Context, ownerID string, req *dto.WalkInBookingRequest) (*domain.Booking, error) {
	if m.CreateWalkInBookingFunc != nil {
		return m.CreateWalkInBookingFunc(ctx, ownerID, req)
	}
	return nil, nil
}

func (m *MockBookingService) ListExpiredReserved(ctx context.Context, limit int) ([]*domain.Booking, error) {
	if m.ListExpiredReservedFunc != nil {
		return m.ListExpiredReservedFunc(ctx, limit)
	}
	return nil, nil
}

// MockSplitPaymentService is a mock implementation of SplitPaymentService for testing
type MockSplitPaymentService struct {
	AddParticipantFunc           func(ctx context.Context, bookingID, actorID, userID string) ([]*domain.Participant, error)
	RecordPaymentFunc            func(ctx context.Context, bookingID, participantID, actorID, paymentRef string) (*domain.Booking, error)
	DeclineParticipantFunc       func(ctx context.Context, bookingID, participantID, actorID string) ([]*domain.Participant, error)
	RejectParticipantPaymentFunc func(ctx context.Context, bookingID, participantID, reason string) error
}

func (m *MockSplitPaymentService) AddParticipant(ctx context.Context, bookingID, actorID, userID string) ([]*domain.Participant, error) {
	if m.AddParticipantFunc != nil {
		return m.AddParticipantFunc(ctx, bookingID, actorID, userID)
	}
	return nil, nil
}

func (m *MockSplitPaymentService) RecordPayment(ctx context.Context, bookingID, participantID, actorID, paymentRef string) (*domain.Booking, error) {
	if m.RecordPaymentFunc != nil {
		return m.RecordPaymentFunc(ctx, bookingID, participantID, actorID, paymentRef)
	}
	return nil, nil
}

func (m *MockSplitPaymentService) DeclineParticipant(ctx context.Context, bookingID, participantID, actorID string) ([]*domain.Participant, error) {
	if m.DeclineParticipantFunc != nil {
		return m.DeclineParticipantFunc(ctx, bookingID, participantID, actorID)
	}
	return nil, nil
}

func (m *MockSplitPaymentService) RejectParticipantPayment(ctx context.Context, bookingID, participantID, reason string) error {
	if m.RejectParticipantPaymentFunc != nil {
		return m.RejectParticipantPaymentFunc(ctx, bookingID, participantID, reason)
	}
	return nil
}

// MockTicketService is a mock implementation of TicketService for testing
type MockTicketService struct {
	QRCodeFunc    func(ctx context.Context, bookingID, actorID string, size int) ([]byte, error)
	TicketPDFFunc func(ctx context.Context, bookingID, actorID string) ([]byte, error)
}

func (m *MockTicketService) QRCode(ctx context.Context, bookingID, actorID string, size int) ([]byte, error) {
	if m.QRCodeFunc != nil {
		return m.QRCodeFunc(ctx, bookingID, actorID, size)
	}
	return nil, nil
}

func (m *MockTicketService) TicketPDF(ctx context.Context, bookingID, actorID string) ([]byte, error) {
	if m.TicketPDFFunc != nil {
		return m.TicketPDFFunc(ctx, bookingID, actorID)
	}
	return nil, nil
}

// MockSlotService is a mock implementation of SlotService for testing
type MockSlotService struct {
	ListSlotsFunc     func(ctx context.Context, venueID, date string) ([]*domain.Slot, error)
	GenerateSlotsFunc func(ctx context.Context, ownerID, venueID string, req *dto.GenerateSlotsRequest) ([]*domain.Slot, error)
	CreateVenueFunc   func(ctx context.Context, ownerID string, req *dto.CreateVenueRequest) (*domain.Venue, error)
	GetVenueFunc      func(ctx context.Context, venueID string) (*domain.Venue, error)
}

func (m *MockSlotService) ListSlots(ctx context.Context, venueID, date string) ([]*domain.Slot, error) {
	if m.ListSlotsFunc != nil {
		return m.ListSlotsFunc(ctx, venueID, date)
	}
	return nil, nil
}

func (m *MockSlotService) GenerateSlots(ctx context.Context, ownerID, venueID string, req *dto.GenerateSlotsRequest) ([]*domain.Slot, error) {
	if m.GenerateSlotsFunc != nil {
		return m.GenerateSlotsFunc(ctx, ownerID, venueID, req)
	}
	return nil, nil
}

func (m *MockSlotService) CreateVenue(ctx context.Context, ownerID string, req *dto.CreateVenueRequest) (*domain.Venue, error) {
	if m.CreateVenueFunc != nil {
		return m.CreateVenueFunc(ctx, ownerID, req)
	}
	return nil, nil
}

func (m *MockSlotService) GetVenue(ctx context.Context, venueID string) (*domain.Venue, error) {
	if m.GetVenueFunc != nil {
		return m.GetVenueFunc(ctx, venueID)
	}
	return nil, nil
}

// MockCheckInService is a mock implementation of CheckInService for testing
type MockCheckInService struct {
	VerifyFunc func(ctx context.Context, qrSecret, staffID, role string) (*domain.Booking, error)
}

func (m *MockCheckInService) Verify(ctx context.Context, qrSecret, staffID, role string) (*domain.Booking, error) {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, qrSecret, staffID, role)
	}
	return nil, nil
}
