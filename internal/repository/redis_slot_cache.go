package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prohmpiriya/turf-booking/internal/domain"
	"github.com/prohmpiriya/turf-booking/pkg/telemetry"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
)

// SlotCache caches a venue's daily slot list. Invalidate drops every date of a venue.
// Get reports the version it read; Set only writes under that version, so a list
// loaded before an Invalidate can never be served after it.
type SlotCache interface {
	Get(ctx context.Context, venueID, date string) (slots []*domain.Slot, version int64, ok bool, err error)
	Set(ctx context.Context, venueID, date string, version int64, slots []*domain.Slot, ttl time.Duration) error
	Invalidate(ctx context.Context, venueID string) error
}

// RedisSlotCache stores slot lists under a per-venue version number so that one
// INCR invalidates all dates at once; stale versions age out by TTL.
type RedisSlotCache struct {
	client redis.Cmdable
}

// NewRedisSlotCache creates a new RedisSlotCache
func NewRedisSlotCache(client redis.Cmdable) *RedisSlotCache {
	return &RedisSlotCache{client: client}
}

func versionKey(venueID string) string {
	return fmt.Sprintf("slots:%s:ver", venueID)
}

func listKey(venueID, date string, version int64) string {
	return fmt.Sprintf("slots:%s:v%d:%s", venueID, version, date)
}

func (c *RedisSlotCache) version(ctx context.Context, venueID string) (int64, error) {
	ver, err := c.client.Get(ctx, versionKey(venueID)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, err
	}
	return ver, nil
}

// Get returns the cached list and the version it was looked up under; ok is false on a miss
func (c *RedisSlotCache) Get(ctx context.Context, venueID, date string) ([]*domain.Slot, int64, bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.slot_cache.get")
	defer span.End()
	span.SetAttributes(attribute.String("venue_id", venueID), attribute.String("date", date))

	ver, err := c.version(ctx, venueID)
	if err != nil {
		spanError(span, err)
		return nil, 0, false, fmt.Errorf("failed to read slot cache version: %w", err)
	}
	span.SetAttributes(attribute.Int64("version", ver))

	raw, err := c.client.Get(ctx, listKey(venueID, date, ver)).Bytes()
	if errors.Is(err, redis.Nil) {
		span.SetAttributes(attribute.Bool("hit", false))
		return nil, ver, false, nil
	}
	if err != nil {
		spanError(span, err)
		return nil, ver, false, fmt.Errorf("failed to read slot cache: %w", err)
	}

	var slots []*domain.Slot
	if err := json.Unmarshal(raw, &slots); err != nil {
		return nil, ver, false, fmt.Errorf("failed to decode slot cache: %w", err)
	}
	span.SetAttributes(attribute.Bool("hit", true))
	return slots, ver, true, nil
}

// Set stores the list under version, which must come from the Get that missed
func (c *RedisSlotCache) Set(ctx context.Context, venueID, date string, version int64, slots []*domain.Slot, ttl time.Duration) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.slot_cache.set")
	defer span.End()
	span.SetAttributes(attribute.String("venue_id", venueID), attribute.Int64("version", version))

	if ttl <= 0 {
		return nil
	}

	raw, err := json.Marshal(slots)
	if err != nil {
		return fmt.Errorf("failed to encode slot cache: %w", err)
	}
	if err := c.client.Set(ctx, listKey(venueID, date, version), raw, ttl).Err(); err != nil {
		spanError(span, err)
		return fmt.Errorf("failed to write slot cache: %w", err)
	}
	return nil
}

// Invalidate bumps the venue's version
func (c *RedisSlotCache) Invalidate(ctx context.Context, venueID string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.slot_cache.invalidate")
	defer span.End()

	if err := c.client.Incr(ctx, versionKey(venueID)).Err(); err != nil {
		spanError(span, err)
		return fmt.Errorf("failed to invalidate slot cache: %w", err)
	}
	return nil
}

// NoopSlotCache always misses
type NoopSlotCache struct{}

func (NoopSlotCache) Get(context.Context, string, string) ([]*domain.Slot, int64, bool, error) {
	return nil, 0, false, nil
}

func (NoopSlotCache) Set(context.Context, string, string, int64, []*domain.Slot, time.Duration) error {
	return nil
}

func (NoopSlotCache) Invalidate(context.Context, string) error {
	return nil
}
