package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prohmpiriya/turf-booking/internal/domain"
	"github.com/prohmpiriya/turf-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const slotColumns = `
	id, venue_id,
	to_char(slot_date, 'YYYY-MM-DD'),
	to_char(start_time, 'HH24:MI'),
	to_char(end_time, 'HH24:MI'),
	price, state, COALESCE(lock_owner::text, ''), lock_expires_at,
	created_at, updated_at`

// PostgresSlotRepository implements SlotRepository. It runs against the pool, or
// against a transaction when handed out by BookingTx.Slots.
type PostgresSlotRepository struct {
	db querier
}

// NewPostgresSlotRepository creates a new PostgresSlotRepository
func NewPostgresSlotRepository(db querier) *PostgresSlotRepository {
	return &PostgresSlotRepository{db: db}
}

func scanSlot(row rowScanner) (*domain.Slot, error) {
	s := &domain.Slot{}
	var state string
	err := row.Scan(
		&s.ID, &s.VenueID,
		&s.Date, &s.StartTime, &s.EndTime,
		&s.Price, &state, &s.LockOwner, &s.LockExpiresAt,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.State = domain.SlotState(state)
	return s, nil
}

// GetByID retrieves a slot
func (r *PostgresSlotRepository) GetByID(ctx context.Context, id string) (*domain.Slot, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.slot.get_by_id")
	defer span.End()
	span.SetAttributes(attribute.String("slot_id", id))

	s, err := scanSlot(r.db.QueryRow(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrSlotNotFound
		}
		spanError(span, err)
		return nil, fmt.Errorf("failed to get slot: %w", err)
	}
	return s, nil
}

// ListByVenueAndDate returns the venue's slots for one day ordered by start time
func (r *PostgresSlotRepository) ListByVenueAndDate(ctx context.Context, venueID, date string) ([]*domain.Slot, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.slot.list")
	defer span.End()
	span.SetAttributes(attribute.String("venue_id", venueID), attribute.String("date", date))

	rows, err := r.db.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE venue_id = $1 AND slot_date = $2::date
		ORDER BY start_time`, venueID, date)
	if err != nil {
		if isNoRows(err) {
			return []*domain.Slot{}, nil
		}
		spanError(span, err)
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}
	defer rows.Close()

	slots := []*domain.Slot{}
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			spanError(span, err)
			return nil, fmt.Errorf("failed to scan slot: %w", err)
		}
		slots = append(slots, s)
	}
	if err := rows.Err(); err != nil {
		if isNoRows(err) {
			return []*domain.Slot{}, nil
		}
		spanError(span, err)
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}
	return slots, nil
}

// CreateMany inserts slots in one batch, skipping duplicates
func (r *PostgresSlotRepository) CreateMany(ctx context.Context, slots []*domain.Slot) ([]*domain.Slot, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.slot.create_many")
	defer span.End()
	span.SetAttributes(attribute.Int("count", len(slots)))

	if len(slots) == 0 {
		return []*domain.Slot{}, nil
	}

	batch := &pgx.Batch{}
	for _, s := range slots {
		batch.Queue(`
			INSERT INTO slots (id, venue_id, slot_date, start_time, end_time, price, state, created_at, updated_at)
			VALUES ($1, $2, $3::date, $4::time, $5::time, $6, 'AVAILABLE', $7, $7)
			ON CONFLICT (venue_id, slot_date, start_time) DO NOTHING
			RETURNING `+slotColumns,
			s.ID, s.VenueID, s.Date, s.StartTime, s.EndTime, s.Price, s.CreatedAt,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	created := make([]*domain.Slot, 0, len(slots))
	for range slots {
		s, err := scanSlot(results.QueryRow())
		if err != nil {
			if isNoRows(err) {
				continue
			}
			spanError(span, err)
			return nil, fmt.Errorf("failed to create slots: %w", err)
		}
		created = append(created, s)
	}
	return created, nil
}

// AcquireHold locks an available (or expired-locked) slot for bookingID
func (r *PostgresSlotRepository) AcquireHold(ctx context.Context, slotID, bookingID string, ttl time.Duration) (*domain.Slot, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.slot.acquire_hold")
	defer span.End()
	span.SetAttributes(attribute.String("slot_id", slotID), attribute.String("booking_id", bookingID))

	s, err := scanSlot(r.db.QueryRow(ctx, `
		UPDATE slots
		SET state = 'LOCKED',
			lock_owner = $2,
			lock_expires_at = now() + make_interval(secs => $3),
			updated_at = now()
		WHERE id = $1
		  AND (state = 'AVAILABLE' OR (state = 'LOCKED' AND lock_expires_at <= now()))
		RETURNING `+slotColumns,
		slotID, bookingID, ttl.Seconds(),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.missingOr(ctx, slotID, domain.ErrSlotUnavailable)
		}
		if isNoRows(err) {
			return nil, domain.ErrSlotNotFound
		}
		spanError(span, err)
		return nil, fmt.Errorf("failed to acquire hold: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return s, nil
}

// ConfirmHold books the slot if bookingID still holds a live lock
func (r *PostgresSlotRepository) ConfirmHold(ctx context.Context, slotID, bookingID string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.slot.confirm_hold")
	defer span.End()
	span.SetAttributes(attribute.String("slot_id", slotID), attribute.String("booking_id", bookingID))

	tag, err := r.db.Exec(ctx, `
		UPDATE slots
		SET state = 'BOOKED', lock_expires_at = NULL, updated_at = now()
		WHERE id = $1 AND state = 'LOCKED' AND lock_owner = $2 AND lock_expires_at > now()`,
		slotID, bookingID,
	)
	if err != nil {
		if isNoRows(err) {
			return domain.ErrSlotNotFound
		}
		spanError(span, err)
		return fmt.Errorf("failed to confirm hold: %w", err)
	}
	if tag.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "lock mismatch")
		return domain.ErrLockMismatch
	}
	return nil
}

// ReleaseHold frees the slot if bookingID holds it; a no-op otherwise
func (r *PostgresSlotRepository) ReleaseHold(ctx context.Context, slotID, bookingID string) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.slot.release_hold")
	defer span.End()
	span.SetAttributes(attribute.String("slot_id", slotID), attribute.String("booking_id", bookingID))

	return r.reset(ctx, span, `
		UPDATE slots
		SET state = 'AVAILABLE', lock_owner = NULL, lock_expires_at = NULL, updated_at = now()
		WHERE id = $1 AND state = 'LOCKED' AND lock_owner = $2`, slotID, bookingID)
}

// BookDirect books an AVAILABLE slot without a hold
func (r *PostgresSlotRepository) BookDirect(ctx context.Context, slotID, bookingID string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.slot.book_direct")
	defer span.End()
	span.SetAttributes(attribute.String("slot_id", slotID), attribute.String("booking_id", bookingID))

	tag, err := r.db.Exec(ctx, `
		UPDATE slots
		SET state = 'BOOKED', lock_owner = $2, lock_expires_at = NULL, updated_at = now()
		WHERE id = $1 AND state = 'AVAILABLE'`,
		slotID, bookingID,
	)
	if err != nil {
		if isNoRows(err) {
			return domain.ErrSlotNotFound
		}
		spanError(span, err)
		return fmt.Errorf("failed to book slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missingOr(ctx, slotID, domain.ErrSlotUnavailable)
	}
	return nil
}

// ReleaseBooked frees a slot booked by bookingID
func (r *PostgresSlotRepository) ReleaseBooked(ctx context.Context, slotID, bookingID string) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.slot.release_booked")
	defer span.End()
	span.SetAttributes(attribute.String("slot_id", slotID), attribute.String("booking_id", bookingID))

	return r.reset(ctx, span, `
		UPDATE slots
		SET state = 'AVAILABLE', lock_owner = NULL, lock_expires_at = NULL, updated_at = now()
		WHERE id = $1 AND state = 'BOOKED' AND lock_owner = $2`, slotID, bookingID)
}

func (r *PostgresSlotRepository) reset(ctx context.Context, span trace.Span, query, slotID, bookingID string) (bool, error) {
	tag, err := r.db.Exec(ctx, query, slotID, bookingID)
	if err != nil {
		if isNoRows(err) {
			return false, nil
		}
		spanError(span, err)
		return false, fmt.Errorf("failed to release slot: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// missingOr distinguishes an unknown slot from a failed condition
func (r *PostgresSlotRepository) missingOr(ctx context.Context, slotID string, condErr error) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM slots WHERE id = $1)`, slotID).Scan(&exists); err != nil {
		if isNoRows(err) {
			return domain.ErrSlotNotFound
		}
		return fmt.Errorf("failed to check slot: %w", err)
	}
	if !exists {
		return domain.ErrSlotNotFound
	}
	return condErr
}
