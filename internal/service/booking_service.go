package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/turf-booking/internal/domain"
	"github.com/prohmpiriya/turf-booking/internal/dto"
	"github.com/prohmpiriya/turf-booking/internal/metrics"
	"github.com/prohmpiriya/turf-booking/internal/repository"
	"github.com/prohmpiriya/turf-booking/pkg/logger"
	"github.com/prohmpiriya/turf-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// BookingService defines the interface for the reservation ledger
type BookingService interface {
	// InitiateBooking holds a slot and opens a RESERVED booking for userID
	InitiateBooking(ctx context.Context, userID string, req *dto.InitiateBookingRequest) (*domain.Booking, error)

	// CancelBooking cancels a RESERVED or CONFIRMED booking and frees its slot
	CancelBooking(ctx context.Context, bookingID, actorID string) (*domain.Booking, error)

	// MarkExpired expires a RESERVED booking whose hold has lapsed.
	// Returns false when the booking no longer qualifies.
	MarkExpired(ctx context.Context, bookingID string) (bool, error)

	// GetBooking retrieves a booking visible to actorID
	GetBooking(ctx context.Context, bookingID, actorID string) (*domain.Booking, error)

	// ListMyBookings lists bookings userID organised or joined, newest first
	ListMyBookings(ctx context.Context, userID string, page, pageSize int) ([]*domain.Booking, error)

	// CreateWalkInBooking books a slot at the counter, CONFIRMED immediately
	CreateWalkInBooking(ctx context.Context, ownerID string, req *dto.WalkInBookingRequest) (*domain.Booking, error)

	// ListExpiredReserved returns bookings the sweeper should expire
	ListExpiredReserved(ctx context.Context, limit int) ([]*domain.Booking, error)
}

// BookingServiceConfig contains configuration for booking service
type BookingServiceConfig struct {
	HoldTTL         time.Duration
	DefaultCurrency string
	Clock           Clock
	Logger          *logger.Logger
}

type bookingService struct {
	venueRepo      repository.VenueRepository
	slotRepo       repository.SlotRepository
	bookingRepo    repository.BookingRepository
	cache          repository.SlotCache
	eventPublisher EventPublisher
	holdTTL        time.Duration
	currency       string
	now            Clock
	log            *logger.Logger
}

// NewBookingService creates a new booking service
func NewBookingService(
	venueRepo repository.VenueRepository,
	slotRepo repository.SlotRepository,
	bookingRepo repository.BookingRepository,
	cache repository.SlotCache,
	eventPublisher EventPublisher,
	cfg *BookingServiceConfig,
) BookingService {
	s := &bookingService{
		venueRepo:      venueRepo,
		slotRepo:       slotRepo,
		bookingRepo:    bookingRepo,
		cache:          cache,
		eventPublisher: eventPublisher,
		holdTTL:        15 * time.Minute,
		currency:       "INR",
		now:            time.Now,
		log:            logger.NewNop(),
	}
	if cfg != nil {
		if cfg.HoldTTL > 0 {
			s.holdTTL = cfg.HoldTTL
		}
		if cfg.DefaultCurrency != "" {
			s.currency = cfg.DefaultCurrency
		}
		if cfg.Clock != nil {
			s.now = cfg.Clock
		}
		if cfg.Logger != nil {
			s.log = cfg.Logger
		}
	}
	if s.eventPublisher == nil {
		s.eventPublisher = NewNoOpEventPublisher()
	}
	if s.cache == nil {
		s.cache = repository.NoopSlotCache{}
	}
	return s
}

// resolveSlot loads venue and slot and checks they belong together
func resolveSlot(ctx context.Context, venues repository.VenueRepository, slots repository.SlotRepository, venueID, slotID string) (*domain.Venue, *domain.Slot, error) {
	venue, err := venues.GetByID(ctx, venueID)
	if err != nil {
		return nil, nil, err
	}
	slot, err := slots.GetByID(ctx, slotID)
	if err != nil {
		return nil, nil, err
	}
	if slot.VenueID != venue.ID {
		return nil, nil, domain.ErrSlotVenueMismatch
	}
	return venue, slot, nil
}

// InitiateBooking holds a slot and opens a RESERVED booking for userID
func (s *bookingService) InitiateBooking(ctx context.Context, userID string, req *dto.InitiateBookingRequest) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.initiate")
	defer span.End()

	if userID == "" {
		span.SetStatus(codes.Error, "invalid user_id")
		return nil, domain.ErrInvalidUserID
	}
	if req == nil || req.VenueID == "" {
		span.SetStatus(codes.Error, "invalid venue_id")
		return nil, domain.ErrInvalidVenueID
	}
	if req.SlotID == "" {
		span.SetStatus(codes.Error, "invalid slot_id")
		return nil, domain.ErrInvalidSlotID
	}

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("venue_id", req.VenueID),
		attribute.String("slot_id", req.SlotID),
	)

	venue, slot, err := resolveSlot(ctx, s.venueRepo, s.slotRepo, req.VenueID, req.SlotID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	amount := venue.PriceFor(slot)
	if req.TotalAmount != 0 && req.TotalAmount != amount {
		span.SetStatus(codes.Error, "amount mismatch")
		return nil, domain.ErrInvalidAmount
	}

	bookingID := uuid.New().String()
	held, err := s.slotRepo.AcquireHold(ctx, slot.ID, bookingID, s.holdTTL)
	if err != nil {
		if errors.Is(err, domain.ErrSlotUnavailable) {
			metrics.RecordHold(ctx, venue.ID, false)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "hold failed")
		return nil, err
	}

	now := s.now()
	expiresAt := now.Add(s.holdTTL)
	if held.LockExpiresAt != nil {
		expiresAt = *held.LockExpiresAt
	}

	booking := &domain.Booking{
		ID:          bookingID,
		UserID:      userID,
		VenueID:     venue.ID,
		SlotID:      slot.ID,
		TotalAmount: amount,
		Currency:    s.currency,
		Status:      domain.BookingReserved,
		Source:      domain.SourceOnline,
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
		Participants: []*domain.Participant{{
			ID:          uuid.New().String(),
			BookingID:   bookingID,
			UserID:      userID,
			ShareAmount: amount,
			Status:      domain.ParticipantPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}},
	}

	if err := s.bookingRepo.Create(ctx, booking); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		if _, relErr := s.slotRepo.ReleaseHold(ctx, slot.ID, bookingID); relErr != nil {
			s.log.Error("failed to release hold after booking insert failed",
				zap.String("booking_id", bookingID),
				zap.String("slot_id", slot.ID),
				zap.Error(relErr),
			)
		}
		return nil, err
	}

	invalidateSlots(ctx, s.log, s.cache, venue.ID)
	publishAsync(s.log, booking, s.eventPublisher.PublishBookingCreated)
	metrics.RecordHold(ctx, venue.ID, true)

	span.AddEvent("slot_held", trace.WithAttributes(
		attribute.String("booking_id", booking.ID),
		attribute.String("expires_at", booking.ExpiresAt.Format(time.RFC3339)),
	))
	span.SetStatus(codes.Ok, "")
	return booking, nil
}

// CancelBooking cancels a RESERVED or CONFIRMED booking and frees its slot
func (s *bookingService) CancelBooking(ctx context.Context, bookingID, actorID string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("booking_id", bookingID), attribute.String("user_id", actorID))

	if bookingID == "" {
		span.SetStatus(codes.Error, "invalid booking_id")
		return nil, domain.ErrInvalidBookingID
	}

	var (
		cancelled *domain.Booking
		wasHeld   bool
	)
	err := s.bookingRepo.WithinBookingLock(ctx, bookingID, func(ctx context.Context, tx repository.BookingTx, b *domain.Booking) error {
		if !b.IsOrganizer(actorID) {
			return domain.ErrNotOwner
		}
		prev := b.Status
		if err := b.Cancel(domain.ReasonCancelledUser, s.now()); err != nil {
			return err
		}
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return err
		}

		switch prev {
		case domain.BookingReserved:
			wasHeld = true
			if _, err := tx.Slots().ReleaseHold(ctx, b.SlotID, b.ID); err != nil {
				return err
			}
		case domain.BookingConfirmed:
			if _, err := tx.Slots().ReleaseBooked(ctx, b.SlotID, b.ID); err != nil {
				return err
			}
		}
		cancelled = b
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	invalidateSlots(ctx, s.log, s.cache, cancelled.VenueID)
	publishAsync(s.log, cancelled, s.eventPublisher.PublishBookingCancelled)
	metrics.RecordCancellation(ctx, cancelled.VenueID, wasHeld)

	s.log.Info("booking cancelled",
		zap.String("booking_id", cancelled.ID),
		zap.Bool("was_held", wasHeld),
	)
	return cancelled, nil
}

// MarkExpired expires a RESERVED booking whose hold has lapsed
func (s *bookingService) MarkExpired(ctx context.Context, bookingID string) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.mark_expired")
	defer span.End()
	span.SetAttributes(attribute.String("booking_id", bookingID))

	var expired *domain.Booking
	err := s.bookingRepo.WithinBookingLock(ctx, bookingID, func(ctx context.Context, tx repository.BookingTx, b *domain.Booking) error {
		now := s.now()
		// A payment may have confirmed it since the sweeper listed it
		if !b.HoldExpired(now) {
			return nil
		}
		if err := b.Expire(domain.ReasonHoldExpired, now); err != nil {
			return err
		}
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return err
		}
		if _, err := tx.Slots().ReleaseHold(ctx, b.SlotID, b.ID); err != nil {
			return err
		}
		expired = b
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}
	if expired == nil {
		span.SetAttributes(attribute.Bool("skipped", true))
		return false, nil
	}

	invalidateSlots(ctx, s.log, s.cache, expired.VenueID)
	publishAsync(s.log, expired, s.eventPublisher.PublishBookingExpired)
	metrics.RecordExpiration(ctx, expired.VenueID, domain.ReasonHoldExpired)
	return true, nil
}

// GetBooking retrieves a booking visible to actorID
func (s *bookingService) GetBooking(ctx context.Context, bookingID, actorID string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.get")
	defer span.End()

	if bookingID == "" {
		return nil, domain.ErrInvalidBookingID
	}

	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !booking.IsOrganizer(actorID) && !booking.HasParticipant(actorID) {
		return nil, domain.ErrNotParticipant
	}
	return booking, nil
}

// ListMyBookings lists bookings userID organised or joined
func (s *bookingService) ListMyBookings(ctx context.Context, userID string, page, pageSize int) ([]*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.list_mine")
	defer span.End()

	if userID == "" {
		return nil, domain.ErrInvalidUserID
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.bookingRepo.ListByUser(ctx, userID, pageSize, (page-1)*pageSize)
}

// CreateWalkInBooking books a slot at the counter without a hold
func (s *bookingService) CreateWalkInBooking(ctx context.Context, ownerID string, req *dto.WalkInBookingRequest) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.walk_in")
	defer span.End()

	if ownerID == "" {
		span.SetStatus(codes.Error, "invalid owner_id")
		return nil, domain.ErrInvalidUserID
	}
	if req == nil || req.VenueID == "" {
		span.SetStatus(codes.Error, "invalid venue_id")
		return nil, domain.ErrInvalidVenueID
	}
	if req.SlotID == "" {
		span.SetStatus(codes.Error, "invalid slot_id")
		return nil, domain.ErrInvalidSlotID
	}
	if req.Amount < 0 {
		span.SetStatus(codes.Error, "invalid amount")
		return nil, domain.ErrInvalidAmount
	}

	venue, slot, err := resolveSlot(ctx, s.venueRepo, s.slotRepo, req.VenueID, req.SlotID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !venue.IsOwnedBy(ownerID) {
		span.SetStatus(codes.Error, "not venue owner")
		return nil, domain.ErrNotVenueOwner
	}

	amount := req.Amount
	if amount == 0 {
		amount = venue.PriceFor(slot)
	}

	qrSecret, err := domain.GenerateQRSecret()
	if err != nil {
		return nil, err
	}

	bookingID := uuid.New().String()
	if err := s.slotRepo.BookDirect(ctx, slot.ID, bookingID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "slot unavailable")
		return nil, err
	}

	now := s.now()
	booking := &domain.Booking{
		ID:            bookingID,
		UserID:        ownerID,
		VenueID:       venue.ID,
		SlotID:        slot.ID,
		TotalAmount:   amount,
		Currency:      s.currency,
		Status:        domain.BookingConfirmed,
		Source:        domain.SourceWalkIn,
		ExpiresAt:     now,
		QRSecret:      qrSecret,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		ConfirmedAt:   &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.bookingRepo.Create(ctx, booking); err != nil {
		span.RecordError(err)
		if _, relErr := s.slotRepo.ReleaseBooked(ctx, slot.ID, bookingID); relErr != nil {
			s.log.Error("failed to release walk-in slot after booking insert failed",
				zap.String("booking_id", bookingID),
				zap.String("slot_id", slot.ID),
				zap.Error(relErr),
			)
		}
		return nil, err
	}

	invalidateSlots(ctx, s.log, s.cache, venue.ID)
	publishAsync(s.log, booking, s.eventPublisher.PublishBookingConfirmed)
	metrics.RecordWalkIn(ctx, venue.ID)

	s.log.Info("walk-in booking created",
		zap.String("booking_id", booking.ID),
		zap.String("venue_id", venue.ID),
		zap.String("slot_id", slot.ID),
	)
	return booking, nil
}

// ListExpiredReserved returns bookings whose hold lapsed at or before now
func (s *bookingService) ListExpiredReserved(ctx context.Context, limit int) ([]*domain.Booking, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.bookingRepo.ListExpiredReserved(ctx, s.now(), limit)
}
