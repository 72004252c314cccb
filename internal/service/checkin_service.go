package service

import (
	"context"
	"strings"
	"time"

	"github.com/prohmpiriya/turf-booking/internal/domain"
	"github.com/prohmpiriya/turf-booking/internal/metrics"
	"github.com/prohmpiriya/turf-booking/internal/repository"
	"github.com/prohmpiriya/turf-booking/pkg/logger"
	"github.com/prohmpiriya/turf-booking/pkg/middleware"
	"github.com/prohmpiriya/turf-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// CheckInService verifies QR secrets at the venue gate
type CheckInService interface {
	// Verify completes the booking holding qrSecret. A secret is accepted once.
	Verify(ctx context.Context, qrSecret, staffID, role string) (*domain.Booking, error)
}

// CheckInServiceConfig contains configuration for check-in service
type CheckInServiceConfig struct {
	Clock  Clock
	Logger *logger.Logger
}

type checkInService struct {
	venueRepo      repository.VenueRepository
	bookingRepo    repository.BookingRepository
	eventPublisher EventPublisher
	now            Clock
	log            *logger.Logger
}

// NewCheckInService creates a new check-in service
func NewCheckInService(
	venueRepo repository.VenueRepository,
	bookingRepo repository.BookingRepository,
	eventPublisher EventPublisher,
	cfg *CheckInServiceConfig,
) CheckInService {
	s := &checkInService{
		venueRepo:      venueRepo,
		bookingRepo:    bookingRepo,
		eventPublisher: eventPublisher,
		now:            time.Now,
		log:            logger.NewNop(),
	}
	if cfg != nil {
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
	return s
}

// Verify completes the booking holding qrSecret
func (s *checkInService) Verify(ctx context.Context, qrSecret, staffID, role string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.checkin.verify")
	defer span.End()
	span.SetAttributes(attribute.String("staff_id", staffID), attribute.String("role", role))

	qrSecret = strings.TrimSpace(qrSecret)
	if qrSecret == "" {
		span.SetStatus(codes.Error, "missing qr secret")
		metrics.RecordCheckIn(ctx, "invalid")
		return nil, domain.ErrInvalidQRSecret
	}

	// Owners may only admit players to their own venues
	if role == middleware.RoleOwner {
		if err := s.checkVenueOwner(ctx, qrSecret, staffID); err != nil {
			span.SetStatus(codes.Error, err.Error())
			metrics.RecordCheckIn(ctx, checkInResult(err))
			return nil, err
		}
	}

	booking, ok, err := s.bookingRepo.CheckIn(ctx, qrSecret, s.now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "check-in failed")
		return nil, err
	}
	if !ok {
		err := s.classifyMiss(ctx, qrSecret)
		span.SetStatus(codes.Error, err.Error())
		metrics.RecordCheckIn(ctx, checkInResult(err))
		return nil, err
	}

	publishAsync(s.log, booking, s.eventPublisher.PublishBookingCompleted)
	metrics.RecordCheckIn(ctx, "ok")
	span.SetAttributes(attribute.String("booking_id", booking.ID))
	s.log.Info("booking checked in",
		zap.String("booking_id", booking.ID),
		zap.String("venue_id", booking.VenueID),
		zap.String("staff_id", staffID),
	)
	return booking, nil
}

func (s *checkInService) checkVenueOwner(ctx context.Context, qrSecret, ownerID string) error {
	booking, err := s.bookingRepo.GetByQRSecret(ctx, qrSecret)
	if err != nil {
		if domain.IsNotFoundError(err) {
			return domain.ErrQRSecretNotFound
		}
		return err
	}
	venue, err := s.venueRepo.GetByID(ctx, booking.VenueID)
	if err != nil {
		return err
	}
	if !venue.IsOwnedBy(ownerID) {
		return domain.ErrNotVenueOwner
	}
	return nil
}

// classifyMiss explains why the conditional check-in matched nothing
func (s *checkInService) classifyMiss(ctx context.Context, qrSecret string) error {
	booking, err := s.bookingRepo.GetByQRSecret(ctx, qrSecret)
	if err != nil {
		if domain.IsNotFoundError(err) {
			return domain.ErrQRSecretNotFound
		}
		return err
	}
	if booking.CheckedInAt != nil {
		return domain.ErrAlreadyCheckedIn
	}
	return domain.ErrNotConfirmed
}

func checkInResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case domain.IsNotFoundError(err):
		return "unknown"
	case domain.IsConflictError(err):
		return "already_checked_in"
	case domain.IsForbiddenError(err):
		return "forbidden"
	default:
		return "rejected"
	}
}
