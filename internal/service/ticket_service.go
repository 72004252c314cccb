package service

import (
	"bytes"
	"context"
	"fmt"

	"github.com/phpdave11/gofpdf"
	"github.com/prohmpiriya/turf-booking/internal/domain"
	"github.com/prohmpiriya/turf-booking/internal/repository"
	"github.com/prohmpiriya/turf-booking/pkg/telemetry"
	"github.com/skip2/go-qrcode"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const defaultQRSize = 256

// TicketService renders the check-in QR code and PDF ticket of a confirmed booking
type TicketService interface {
	QRCode(ctx context.Context, bookingID, actorID string, size int) ([]byte, error)
	TicketPDF(ctx context.Context, bookingID, actorID string) ([]byte, error)
}

type ticketService struct {
	venueRepo   repository.VenueRepository
	slotRepo    repository.SlotRepository
	bookingRepo repository.BookingRepository
}

// NewTicketService creates a new ticket service
func NewTicketService(
	venueRepo repository.VenueRepository,
	slotRepo repository.SlotRepository,
	bookingRepo repository.BookingRepository,
) TicketService {
	return &ticketService{
		venueRepo:   venueRepo,
		slotRepo:    slotRepo,
		bookingRepo: bookingRepo,
	}
}

// confirmedFor returns the booking when actorID organised it and it is CONFIRMED
func (s *ticketService) confirmedFor(ctx context.Context, bookingID, actorID string) (*domain.Booking, error) {
	if bookingID == "" {
		return nil, domain.ErrInvalidBookingID
	}
	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !booking.IsOrganizer(actorID) {
		return nil, domain.ErrNotOwner
	}
	if booking.Status != domain.BookingConfirmed || booking.QRSecret == "" {
		return nil, domain.ErrNotConfirmed
	}
	return booking, nil
}

// QRCode encodes the booking's check-in secret as a PNG
func (s *ticketService) QRCode(ctx context.Context, bookingID, actorID string, size int) ([]byte, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.ticket.qr")
	defer span.End()
	span.SetAttributes(attribute.String("booking_id", bookingID))

	booking, err := s.confirmedFor(ctx, bookingID, actorID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if size < 64 || size > 1024 {
		size = defaultQRSize
	}
	png, err := qrcode.Encode(booking.QRSecret, qrcode.Medium, size)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to encode qr code: %w", err)
	}
	return png, nil
}

// TicketPDF renders a one page ticket with venue, slot and QR code
func (s *ticketService) TicketPDF(ctx context.Context, bookingID, actorID string) ([]byte, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.ticket.pdf")
	defer span.End()
	span.SetAttributes(attribute.String("booking_id", bookingID))

	booking, err := s.confirmedFor(ctx, bookingID, actorID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	venue, err := s.venueRepo.GetByID(ctx, booking.VenueID)
	if err != nil {
		return nil, err
	}
	slot, err := s.slotRepo.GetByID(ctx, booking.SlotID)
	if err != nil {
		return nil, err
	}

	png, err := qrcode.Encode(booking.QRSecret, qrcode.Medium, defaultQRSize)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to encode qr code: %w", err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 20)
	pdf.CellFormat(0, 15, "Turf Booking Ticket", "", 1, "C", false, 0, "")
	pdf.Ln(5)

	pdf.SetFont("Arial", "", 12)
	pdf.MultiCell(0, 8, fmt.Sprintf(
		"Venue: %s\nLocation: %s\nDate: %s\nTime: %s - %s\nBooking: %s\nAmount: %d %s",
		venue.Name, venue.Location,
		slot.Date, slot.StartTime, slot.EndTime,
		booking.ID, booking.TotalAmount, booking.Currency,
	), "", "L", false)

	imgOpts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("qr", imgOpts, bytes.NewReader(png))
	pdf.ImageOptions("qr", 140, 45, 50, 50, false, imgOpts, 0, "")

	pdf.SetY(-30)
	pdf.SetFont("Arial", "I", 10)
	pdf.CellFormat(0, 10, "Show this code at the gate. It is valid for one check-in.", "T", 0, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to render ticket: %w", err)
	}
	return buf.Bytes(), nil
}
