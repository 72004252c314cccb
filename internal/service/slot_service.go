package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/turf-booking/internal/domain"
	"github.com/prohmpiriya/turf-booking/internal/dto"
	"github.com/prohmpiriya/turf-booking/internal/repository"
	"github.com/prohmpiriya/turf-booking/pkg/logger"
	"github.com/prohmpiriya/turf-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const (
	defaultDayStart     = "06:00"
	defaultDayEnd       = "23:00"
	defaultSlotMinutes  = 60
	maxSlotsPerGenerate = 100
)

// SlotService exposes venue slots and venue registration
type SlotService interface {
	// ListSlots returns a venue's slots for one date, ordered by start time
	ListSlots(ctx context.Context, venueID, date string) ([]*domain.Slot, error)

	// GenerateSlots creates a day of fixed-length slots for a venue owner
	GenerateSlots(ctx context.Context, ownerID, venueID string, req *dto.GenerateSlotsRequest) ([]*domain.Slot, error)

	CreateVenue(ctx context.Context, ownerID string, req *dto.CreateVenueRequest) (*domain.Venue, error)
	GetVenue(ctx context.Context, venueID string) (*domain.Venue, error)
}

// Clock returns the current time. Tests inject a fake one.
type Clock func() time.Time

// SlotServiceConfig contains configuration for slot service
type SlotServiceConfig struct {
	CacheTTL time.Duration
	Clock    Clock
	Logger   *logger.Logger
}

type slotService struct {
	venueRepo repository.VenueRepository
	slotRepo  repository.SlotRepository
	cache     repository.SlotCache
	cacheTTL  time.Duration
	now       Clock
	log       *logger.Logger
}

// NewSlotService creates a new slot service
func NewSlotService(
	venueRepo repository.VenueRepository,
	slotRepo repository.SlotRepository,
	cache repository.SlotCache,
	cfg *SlotServiceConfig,
) SlotService {
	s := &slotService{
		venueRepo: venueRepo,
		slotRepo:  slotRepo,
		cache:     cache,
		cacheTTL:  30 * time.Second,
		now:       time.Now,
		log:       logger.NewNop(),
	}
	if cfg != nil {
		if cfg.CacheTTL > 0 {
			s.cacheTTL = cfg.CacheTTL
		}
		if cfg.Clock != nil {
			s.now = cfg.Clock
		}
		if cfg.Logger != nil {
			s.log = cfg.Logger
		}
	}
	if s.cache == nil {
		s.cache = repository.NoopSlotCache{}
	}
	return s
}

// ListSlots returns a venue's slots for one date
func (s *slotService) ListSlots(ctx context.Context, venueID, date string) ([]*domain.Slot, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.slot.list")
	defer span.End()
	span.SetAttributes(attribute.String("venue_id", venueID), attribute.String("date", date))

	if venueID == "" {
		span.SetStatus(codes.Error, "invalid venue_id")
		return nil, domain.ErrInvalidVenueID
	}
	if _, err := domain.ParseSlotDate(date); err != nil {
		span.SetStatus(codes.Error, "invalid date")
		return nil, err
	}

	cached, version, hit, cacheErr := s.cache.Get(ctx, venueID, date)
	if cacheErr != nil {
		s.log.Warn("slot cache read failed", zap.String("venue_id", venueID), zap.Error(cacheErr))
	} else if hit {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		return cached, nil
	}

	if _, err := s.venueRepo.GetByID(ctx, venueID); err != nil {
		span.RecordError(err)
		return nil, err
	}

	slots, err := s.slotRepo.ListByVenueAndDate(ctx, venueID, date)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list failed")
		return nil, err
	}

	// a failed read leaves no version to write under
	if ttl := s.listTTL(slots); ttl > 0 && cacheErr == nil {
		if err := s.cache.Set(ctx, venueID, date, version, slots, ttl); err != nil {
			s.log.Warn("slot cache write failed", zap.String("venue_id", venueID), zap.Error(err))
		}
	}
	return slots, nil
}

// listTTL caps the cache lifetime at the earliest live lock expiry so a
// lapsed hold never stays cached as LOCKED past its deadline
func (s *slotService) listTTL(slots []*domain.Slot) time.Duration {
	ttl := s.cacheTTL
	now := s.now()
	for _, sl := range slots {
		if sl.State != domain.SlotLocked || sl.LockExpiresAt == nil {
			continue
		}
		if d := sl.LockExpiresAt.Sub(now); d > 0 && d < ttl {
			ttl = d
		}
	}
	return ttl
}

// GenerateSlots creates a day of fixed-length slots for a venue owner
func (s *slotService) GenerateSlots(ctx context.Context, ownerID, venueID string, req *dto.GenerateSlotsRequest) ([]*domain.Slot, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.slot.generate")
	defer span.End()
	span.SetAttributes(attribute.String("venue_id", venueID), attribute.String("owner_id", ownerID))

	if req == nil {
		span.SetStatus(codes.Error, "invalid date")
		return nil, domain.ErrInvalidDate
	}
	if venueID == "" {
		span.SetStatus(codes.Error, "invalid venue_id")
		return nil, domain.ErrInvalidVenueID
	}
	if _, err := domain.ParseSlotDate(req.Date); err != nil {
		span.SetStatus(codes.Error, "invalid date")
		return nil, err
	}

	venue, err := s.venueRepo.GetByID(ctx, venueID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !venue.IsOwnedBy(ownerID) {
		span.SetStatus(codes.Error, "not venue owner")
		return nil, domain.ErrNotVenueOwner
	}

	slots, err := buildSlots(venue, req, s.now())
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	created, err := s.slotRepo.CreateMany(ctx, slots)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return nil, err
	}

	invalidateSlots(ctx, s.log, s.cache, venueID)
	span.SetAttributes(attribute.Int("requested", len(slots)), attribute.Int("created", len(created)))
	s.log.Info("slots generated",
		zap.String("venue_id", venueID),
		zap.String("date", req.Date),
		zap.Int("created", len(created)),
		zap.Int("skipped", len(slots)-len(created)),
	)
	return created, nil
}

func buildSlots(venue *domain.Venue, req *dto.GenerateSlotsRequest, now time.Time) ([]*domain.Slot, error) {
	startStr, endStr := req.StartTime, req.EndTime
	if startStr == "" {
		startStr = defaultDayStart
	}
	if endStr == "" {
		endStr = defaultDayEnd
	}
	start, err := time.Parse(domain.ClockLayout, startStr)
	if err != nil {
		return nil, domain.ErrInvalidTimeRange
	}
	end, err := time.Parse(domain.ClockLayout, endStr)
	if err != nil {
		return nil, domain.ErrInvalidTimeRange
	}
	if !end.After(start) {
		return nil, domain.ErrInvalidTimeRange
	}

	minutes := req.DurationMinutes
	if minutes == 0 {
		minutes = defaultSlotMinutes
	}
	if minutes < 0 {
		return nil, domain.ErrInvalidTimeRange
	}
	step := time.Duration(minutes) * time.Minute

	price := req.Price
	if price <= 0 {
		price = venue.BasePrice
	}

	var slots []*domain.Slot
	for t := start; !t.Add(step).After(end); t = t.Add(step) {
		if len(slots) == maxSlotsPerGenerate {
			return nil, domain.ErrTooManySlots
		}
		slots = append(slots, &domain.Slot{
			ID:        uuid.New().String(),
			VenueID:   venue.ID,
			Date:      req.Date,
			StartTime: t.Format(domain.ClockLayout),
			EndTime:   t.Add(step).Format(domain.ClockLayout),
			Price:     price,
			State:     domain.SlotAvailable,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	if len(slots) == 0 {
		return nil, domain.ErrInvalidTimeRange
	}
	return slots, nil
}

// CreateVenue registers a turf owned by ownerID
func (s *slotService) CreateVenue(ctx context.Context, ownerID string, req *dto.CreateVenueRequest) (*domain.Venue, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.venue.create")
	defer span.End()

	if ownerID == "" {
		span.SetStatus(codes.Error, "invalid owner_id")
		return nil, domain.ErrInvalidUserID
	}
	if req == nil || strings.TrimSpace(req.Name) == "" {
		span.SetStatus(codes.Error, "invalid name")
		return nil, domain.ErrInvalidVenueName
	}
	if req.BasePrice <= 0 {
		span.SetStatus(codes.Error, "invalid base price")
		return nil, domain.ErrInvalidAmount
	}

	venue := &domain.Venue{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Name:      strings.TrimSpace(req.Name),
		Location:  strings.TrimSpace(req.Location),
		BasePrice: req.BasePrice,
		CreatedAt: s.now(),
	}
	if err := s.venueRepo.Create(ctx, venue); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return nil, err
	}

	span.SetAttributes(attribute.String("venue_id", venue.ID))
	return venue, nil
}

// GetVenue retrieves a venue by ID
func (s *slotService) GetVenue(ctx context.Context, venueID string) (*domain.Venue, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.venue.get")
	defer span.End()

	if venueID == "" {
		return nil, domain.ErrInvalidVenueID
	}
	return s.venueRepo.GetByID(ctx, venueID)
}

// invalidateSlots drops cached slot lists of a venue after a state change
func invalidateSlots(ctx context.Context, log *logger.Logger, cache repository.SlotCache, venueID string) {
	if cache == nil {
		return
	}
	if err := cache.Invalidate(ctx, venueID); err != nil {
		log.Warn("slot cache invalidation failed", zap.String("venue_id", venueID), zap.Error(err))
	}
}
