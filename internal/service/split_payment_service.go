package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/turf-booking/internal/domain"
	"github.com/prohmpiriya/turf-booking/internal/metrics"
	"github.com/prohmpiriya/turf-booking/internal/repository"
	"github.com/prohmpiriya/turf-booking/pkg/logger"
	"github.com/prohmpiriya/turf-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// SplitPaymentService coordinates shares and payments of a booking
type SplitPaymentService interface {
	// AddParticipant adds userID to the booking and rewrites every share equally
	AddParticipant(ctx context.Context, bookingID, actorID, userID string) ([]*domain.Participant, error)

	// RecordPayment marks a share PAID and confirms the booking once all shares are in.
	// actorID is empty for gateway callbacks; otherwise it must be the participant or organizer.
	// A declined share can only be paid by the organizer.
	RecordPayment(ctx context.Context, bookingID, participantID, actorID, paymentRef string) (*domain.Booking, error)

	// DeclineParticipant withdraws a PENDING participant. The booking stays open.
	DeclineParticipant(ctx context.Context, bookingID, participantID, actorID string) ([]*domain.Participant, error)

	// RejectParticipantPayment records a failed payment attempt
	RejectParticipantPayment(ctx context.Context, bookingID, participantID, reason string) error
}

// SplitPaymentServiceConfig contains configuration for split payment service
type SplitPaymentServiceConfig struct {
	Clock  Clock
	Logger *logger.Logger
}

type splitPaymentService struct {
	bookingRepo    repository.BookingRepository
	cache          repository.SlotCache
	eventPublisher EventPublisher
	now            Clock
	log            *logger.Logger
}

// NewSplitPaymentService creates a new split payment service
func NewSplitPaymentService(
	bookingRepo repository.BookingRepository,
	cache repository.SlotCache,
	eventPublisher EventPublisher,
	cfg *SplitPaymentServiceConfig,
) SplitPaymentService {
	s := &splitPaymentService{
		bookingRepo:    bookingRepo,
		cache:          cache,
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
	if s.cache == nil {
		s.cache = repository.NoopSlotCache{}
	}
	return s
}

// organizerFirst orders participants so index 0 is the organizer, matching SplitEqually
func organizerFirst(b *domain.Booking) []*domain.Participant {
	ordered := make([]*domain.Participant, 0, len(b.Participants))
	if org := b.Organizer(); org != nil {
		ordered = append(ordered, org)
	}
	for _, p := range b.Participants {
		if p.UserID != b.UserID {
			ordered = append(ordered, p)
		}
	}
	return ordered
}

// AddParticipant adds userID to the booking and rewrites every share equally
func (s *splitPaymentService) AddParticipant(ctx context.Context, bookingID, actorID, userID string) ([]*domain.Participant, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.split.add_participant")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking_id", bookingID),
		attribute.String("user_id", userID),
	)

	if bookingID == "" {
		span.SetStatus(codes.Error, "invalid booking_id")
		return nil, domain.ErrInvalidBookingID
	}
	if userID == "" {
		span.SetStatus(codes.Error, "invalid user_id")
		return nil, domain.ErrInvalidUserID
	}

	var participants []*domain.Participant
	err := s.bookingRepo.WithinBookingLock(ctx, bookingID, func(ctx context.Context, tx repository.BookingTx, b *domain.Booking) error {
		now := s.now()
		if !b.IsOrganizer(actorID) {
			return domain.ErrNotOwner
		}
		if b.Status != domain.BookingReserved {
			return domain.ErrBookingNotReservable
		}
		if b.HoldExpired(now) {
			return domain.ErrBookingExpired
		}
		if b.HasParticipant(userID) {
			return domain.ErrAlreadyParticipant
		}
		if domain.AnyPaid(b.Participants) {
			return domain.ErrSharesLocked
		}

		added := &domain.Participant{
			ID:        uuid.New().String(),
			BookingID: b.ID,
			UserID:    userID,
			Status:    domain.ParticipantPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		ordered := append(organizerFirst(b), added)
		shares := domain.SplitEqually(b.TotalAmount, len(ordered))

		for i, p := range ordered {
			if p == added {
				p.ShareAmount = shares[i]
				if err := tx.InsertParticipant(ctx, p); err != nil {
					return err
				}
				continue
			}
			if p.ShareAmount == shares[i] {
				continue
			}
			p.ShareAmount = shares[i]
			p.UpdatedAt = now
			if err := tx.UpdateParticipant(ctx, p); err != nil {
				return err
			}
		}

		participants = ordered
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	metrics.RecordParticipantAdded(ctx)
	span.SetAttributes(attribute.Int("participants", len(participants)))
	return participants, nil
}

// RecordPayment marks a share PAID and confirms the booking once every share is in.
// When the hold is gone by then the payment still commits, the booking expires and
// ErrHoldLost tells the caller a refund is due.
func (s *splitPaymentService) RecordPayment(ctx context.Context, bookingID, participantID, actorID, paymentRef string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.split.record_payment")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking_id", bookingID),
		attribute.String("participant_id", participantID),
	)

	if bookingID == "" {
		span.SetStatus(codes.Error, "invalid booking_id")
		return nil, domain.ErrInvalidBookingID
	}
	if strings.TrimSpace(paymentRef) == "" {
		span.SetStatus(codes.Error, "invalid payment_ref")
		return nil, domain.ErrInvalidPaymentRef
	}

	var (
		result    *domain.Booking
		confirmed bool
		holdLost  bool
	)
	err := s.bookingRepo.WithinBookingLock(ctx, bookingID, func(ctx context.Context, tx repository.BookingTx, b *domain.Booking) error {
		now := s.now()
		p := domain.FindParticipant(b.Participants, participantID)
		if p == nil {
			return domain.ErrNotParticipant
		}
		if actorID != "" && actorID != p.UserID && !b.IsOrganizer(actorID) {
			return domain.ErrNotParticipant
		}
		if p.Status == domain.ParticipantPaid {
			return domain.ErrAlreadyPaid
		}
		switch b.Status {
		case domain.BookingReserved:
		case domain.BookingExpired:
			return domain.ErrBookingExpired
		default:
			return domain.ErrInvalidState
		}

		pay := p.MarkPaid
		if p.Status == domain.ParticipantDeclined {
			// only the organizer can cover a declined share
			if !b.IsOrganizer(actorID) {
				return domain.ErrInvalidState
			}
			pay = p.CoverShare
		}
		if err := pay(paymentRef, now); err != nil {
			return err
		}
		if err := tx.UpdateParticipant(ctx, p); err != nil {
			return err
		}

		holdLost = b.HoldExpired(now)
		if !holdLost && domain.AllPaid(b.Participants) {
			err := tx.Slots().ConfirmHold(ctx, b.SlotID, b.ID)
			switch {
			case errors.Is(err, domain.ErrLockMismatch):
				holdLost = true
			case err != nil:
				return err
			default:
				qrSecret, err := domain.GenerateQRSecret()
				if err != nil {
					return err
				}
				if err := b.Confirm(qrSecret, now); err != nil {
					return err
				}
				if err := tx.UpdateBooking(ctx, b); err != nil {
					return err
				}
				confirmed = true
			}
		}

		if holdLost {
			if err := b.Expire(domain.ReasonHoldLost, now); err != nil {
				return err
			}
			if err := tx.UpdateBooking(ctx, b); err != nil {
				return err
			}
			if _, err := tx.Slots().ReleaseHold(ctx, b.SlotID, b.ID); err != nil {
				return err
			}
		}

		result = b
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	switch {
	case holdLost:
		invalidateSlots(ctx, s.log, s.cache, result.VenueID)
		publishAsync(s.log, result, s.eventPublisher.PublishBookingExpired)
		metrics.RecordPayment(ctx, "hold_lost")
		metrics.RecordExpiration(ctx, result.VenueID, domain.ReasonHoldLost)
		s.log.Warn("payment recorded after hold was lost",
			zap.String("booking_id", result.ID),
			zap.String("participant_id", participantID),
			zap.String("payment_ref", paymentRef),
		)
		span.SetStatus(codes.Error, "hold lost")
		return result, domain.ErrHoldLost
	case confirmed:
		invalidateSlots(ctx, s.log, s.cache, result.VenueID)
		publishAsync(s.log, result, s.eventPublisher.PublishBookingConfirmed)
		metrics.RecordPayment(ctx, "confirmed")
		metrics.RecordConfirmation(ctx, result.VenueID, result.ConfirmedAt.Sub(result.CreatedAt).Seconds())
		s.log.Info("booking confirmed", zap.String("booking_id", result.ID))
	default:
		metrics.RecordPayment(ctx, "paid")
	}
	return result, nil
}

// DeclineParticipant withdraws a PENDING participant
func (s *splitPaymentService) DeclineParticipant(ctx context.Context, bookingID, participantID, actorID string) ([]*domain.Participant, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.split.decline")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking_id", bookingID),
		attribute.String("participant_id", participantID),
	)

	if bookingID == "" {
		return nil, domain.ErrInvalidBookingID
	}

	var participants []*domain.Participant
	err := s.bookingRepo.WithinBookingLock(ctx, bookingID, func(ctx context.Context, tx repository.BookingTx, b *domain.Booking) error {
		p := domain.FindParticipant(b.Participants, participantID)
		if p == nil {
			return domain.ErrParticipantNotFound
		}
		if actorID != p.UserID && !b.IsOrganizer(actorID) {
			return domain.ErrNotParticipant
		}
		// The organizer leaves by cancelling
		if p.UserID == b.UserID {
			return domain.ErrInvalidState
		}
		if b.Status != domain.BookingReserved {
			return domain.ErrBookingNotReservable
		}
		if err := p.Decline(s.now()); err != nil {
			return err
		}
		if err := tx.UpdateParticipant(ctx, p); err != nil {
			return err
		}
		participants = organizerFirst(b)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	metrics.RecordPayment(ctx, "declined")
	return participants, nil
}

// RejectParticipantPayment records a failed payment attempt for a PENDING share
func (s *splitPaymentService) RejectParticipantPayment(ctx context.Context, bookingID, participantID, reason string) error {
	ctx, span := telemetry.StartSpan(ctx, "service.split.reject_payment")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking_id", bookingID),
		attribute.String("participant_id", participantID),
	)

	if bookingID == "" {
		return domain.ErrInvalidBookingID
	}

	err := s.bookingRepo.WithinBookingLock(ctx, bookingID, func(ctx context.Context, tx repository.BookingTx, b *domain.Booking) error {
		p := domain.FindParticipant(b.Participants, participantID)
		if p == nil {
			return domain.ErrParticipantNotFound
		}
		if b.Status != domain.BookingReserved {
			return domain.ErrBookingNotReservable
		}
		if err := p.Reject(s.now()); err != nil {
			return err
		}
		return tx.UpdateParticipant(ctx, p)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	metrics.RecordPayment(ctx, "rejected")
	s.log.Info("participant payment rejected",
		zap.String("booking_id", bookingID),
		zap.String("participant_id", participantID),
		zap.String("reason", reason),
	)
	return nil
}
