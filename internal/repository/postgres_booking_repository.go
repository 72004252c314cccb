package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prohmpiriya/turf-booking/internal/domain"
	"github.com/prohmpiriya/turf-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const bookingColumns = `
	id, user_id, venue_id, slot_id, total_amount, currency, status, source,
	expires_at, qr_secret, status_reason, customer_name, customer_phone,
	checked_in_at, confirmed_at, cancelled_at, created_at, updated_at`

const participantColumns = `
	id, booking_id, user_id, share_amount, status, paid_at, payment_ref, created_at, updated_at`

// PostgresBookingRepository implements BookingRepository using PostgreSQL with pgxpool
type PostgresBookingRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresBookingRepository creates a new PostgresBookingRepository
func NewPostgresBookingRepository(pool *pgxpool.Pool) *PostgresBookingRepository {
	return &PostgresBookingRepository{pool: pool}
}

func scanBooking(row rowScanner) (*domain.Booking, error) {
	b := &domain.Booking{}
	var (
		status, source string
		qrSecret       *string
	)
	err := row.Scan(
		&b.ID, &b.UserID, &b.VenueID, &b.SlotID, &b.TotalAmount, &b.Currency, &status, &source,
		&b.ExpiresAt, &qrSecret, &b.StatusReason, &b.CustomerName, &b.CustomerPhone,
		&b.CheckedInAt, &b.ConfirmedAt, &b.CancelledAt, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.Status = domain.BookingStatus(status)
	b.Source = domain.BookingSource(source)
	b.QRSecret = derefString(qrSecret)
	return b, nil
}

func scanParticipant(row rowScanner) (*domain.Participant, error) {
	p := &domain.Participant{}
	var status string
	err := row.Scan(
		&p.ID, &p.BookingID, &p.UserID, &p.ShareAmount, &status,
		&p.PaidAt, &p.PaymentRef, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Status = domain.ParticipantStatus(status)
	return p, nil
}

// Create inserts a booking with its participants in one transaction
func (r *PostgresBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", booking.ID),
		attribute.String("user_id", booking.UserID),
		attribute.String("slot_id", booking.SlotID),
	)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		spanError(span, err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO bookings (
			id, user_id, venue_id, slot_id, total_amount, currency, status, source,
			expires_at, qr_secret, status_reason, customer_name, customer_phone,
			checked_in_at, confirmed_at, cancelled_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		booking.ID, booking.UserID, booking.VenueID, booking.SlotID, booking.TotalAmount,
		booking.Currency, string(booking.Status), string(booking.Source),
		booking.ExpiresAt, nullString(booking.QRSecret), booking.StatusReason,
		booking.CustomerName, booking.CustomerPhone,
		booking.CheckedInAt, booking.ConfirmedAt, booking.CancelledAt,
		booking.CreatedAt, booking.UpdatedAt,
	)
	if err != nil {
		spanError(span, err)
		return fmt.Errorf("failed to create booking: %w", err)
	}

	ptx := &postgresBookingTx{tx: tx}
	for _, p := range booking.Participants {
		if err := ptx.InsertParticipant(ctx, p); err != nil {
			spanError(span, err)
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		spanError(span, err)
		return fmt.Errorf("failed to commit booking: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetByID retrieves a booking with its participants
func (r *PostgresBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.get_by_id")
	defer span.End()
	span.SetAttributes(attribute.String("booking_id", id))

	return r.getOne(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
}

// GetByQRSecret retrieves the booking holding a check-in secret
func (r *PostgresBookingRepository) GetByQRSecret(ctx context.Context, qrSecret string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.get_by_qr_secret")
	defer span.End()

	b, err := r.getOne(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE qr_secret = $1`, qrSecret)
	if errors.Is(err, domain.ErrBookingNotFound) {
		return nil, domain.ErrQRSecretNotFound
	}
	return b, err
}

func (r *PostgresBookingRepository) getOne(ctx context.Context, query string, arg string) (*domain.Booking, error) {
	b, err := scanBooking(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	participants, err := loadParticipants(ctx, r.pool, []string{b.ID}, false)
	if err != nil {
		return nil, err
	}
	b.Participants = participants[b.ID]
	return b, nil
}

// ListByUser returns bookings the user organised or joined, newest first
func (r *PostgresBookingRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.list_by_user")
	defer span.End()
	span.SetAttributes(attribute.String("user_id", userID))

	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings b
		WHERE b.user_id = $1
		   OR EXISTS (SELECT 1 FROM booking_participants p WHERE p.booking_id = b.id AND p.user_id = $1)
		ORDER BY b.created_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		spanError(span, err)
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}

	bookings, err := r.collect(ctx, rows)
	if err != nil {
		spanError(span, err)
		return nil, err
	}
	return bookings, nil
}

// ListExpiredReserved returns RESERVED bookings whose hold has ended, oldest first
func (r *PostgresBookingRepository) ListExpiredReserved(ctx context.Context, now time.Time, limit int) ([]*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.list_expired_reserved")
	defer span.End()

	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE status = 'RESERVED' AND expires_at <= $1
		ORDER BY expires_at
		LIMIT $2`, now, limit)
	if err != nil {
		spanError(span, err)
		return nil, fmt.Errorf("failed to list expired bookings: %w", err)
	}

	bookings, err := r.collect(ctx, rows)
	if err != nil {
		spanError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("count", len(bookings)))
	return bookings, nil
}

func (r *PostgresBookingRepository) collect(ctx context.Context, rows pgx.Rows) ([]*domain.Booking, error) {
	defer rows.Close()

	bookings := []*domain.Booking{}
	ids := []string{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
		ids = append(ids, b.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read bookings: %w", err)
	}
	if len(ids) == 0 {
		return bookings, nil
	}

	participants, err := loadParticipants(ctx, r.pool, ids, false)
	if err != nil {
		return nil, err
	}
	for _, b := range bookings {
		b.Participants = participants[b.ID]
	}
	return bookings, nil
}

// WithinBookingLock runs fn in a transaction holding a row lock on the booking
func (r *PostgresBookingRepository) WithinBookingLock(ctx context.Context, bookingID string, fn BookingFunc) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.lock")
	defer span.End()
	span.SetAttributes(attribute.String("booking_id", bookingID))

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		spanError(span, err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	b, err := scanBooking(tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, bookingID))
	if err != nil {
		if isNoRows(err) {
			return domain.ErrBookingNotFound
		}
		spanError(span, err)
		return fmt.Errorf("failed to lock booking: %w", err)
	}

	participants, err := loadParticipants(ctx, tx, []string{b.ID}, true)
	if err != nil {
		spanError(span, err)
		return err
	}
	b.Participants = participants[b.ID]

	if err := fn(ctx, &postgresBookingTx{tx: tx}, b); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		spanError(span, err)
		return fmt.Errorf("failed to commit booking: %w", err)
	}
	return nil
}

// CheckIn completes a confirmed booking in a single conditional update
func (r *PostgresBookingRepository) CheckIn(ctx context.Context, qrSecret string, at time.Time) (*domain.Booking, bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.check_in")
	defer span.End()

	b, err := scanBooking(r.pool.QueryRow(ctx, `
		UPDATE bookings
		SET checked_in_at = $2, status = 'COMPLETED', updated_at = $2
		WHERE qr_secret = $1 AND status = 'CONFIRMED' AND checked_in_at IS NULL
		RETURNING `+bookingColumns, qrSecret, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		spanError(span, err)
		return nil, false, fmt.Errorf("failed to check in: %w", err)
	}

	span.SetAttributes(attribute.String("booking_id", b.ID))
	return b, true, nil
}

// loadParticipants groups participants by booking, organizer-first insertion order
func loadParticipants(ctx context.Context, db querier, bookingIDs []string, forUpdate bool) (map[string][]*domain.Participant, error) {
	query := `SELECT ` + participantColumns + `
		FROM booking_participants
		WHERE booking_id = ANY($1::uuid[])
		ORDER BY created_at, id`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	rows, err := db.Query(ctx, query, bookingIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load participants: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]*domain.Participant, len(bookingIDs))
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		out[p.BookingID] = append(out[p.BookingID], p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load participants: %w", err)
	}
	return out, nil
}

// postgresBookingTx implements BookingTx over a pgx transaction
type postgresBookingTx struct {
	tx pgx.Tx
}

func (t *postgresBookingTx) Slots() SlotRepository {
	return NewPostgresSlotRepository(t.tx)
}

func (t *postgresBookingTx) UpdateBooking(ctx context.Context, b *domain.Booking) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE bookings
		SET status = $2, qr_secret = $3, status_reason = $4,
			checked_in_at = $5, confirmed_at = $6, cancelled_at = $7, updated_at = $8
		WHERE id = $1`,
		b.ID, string(b.Status), nullString(b.QRSecret), b.StatusReason,
		b.CheckedInAt, b.ConfirmedAt, b.CancelledAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBookingNotFound
	}
	return nil
}

func (t *postgresBookingTx) InsertParticipant(ctx context.Context, p *domain.Participant) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO booking_participants (`+participantColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.BookingID, p.UserID, p.ShareAmount, string(p.Status),
		p.PaidAt, p.PaymentRef, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyParticipant
		}
		return fmt.Errorf("failed to insert participant: %w", err)
	}
	return nil
}

func (t *postgresBookingTx) UpdateParticipant(ctx context.Context, p *domain.Participant) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE booking_participants
		SET share_amount = $2, status = $3, paid_at = $4, payment_ref = $5, updated_at = $6
		WHERE id = $1`,
		p.ID, p.ShareAmount, string(p.Status), p.PaidAt, p.PaymentRef, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update participant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrParticipantNotFound
	}
	return nil
}
