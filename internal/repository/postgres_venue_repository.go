package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prohmpiriya/turf-booking/internal/domain"
	"github.com/prohmpiriya/turf-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// PostgresVenueRepository implements VenueRepository using PostgreSQL
type PostgresVenueRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresVenueRepository creates a new PostgresVenueRepository
func NewPostgresVenueRepository(pool *pgxpool.Pool) *PostgresVenueRepository {
	return &PostgresVenueRepository{pool: pool}
}

func (r *PostgresVenueRepository) Create(ctx context.Context, venue *domain.Venue) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.venue.create")
	defer span.End()

	_, err := r.pool.Exec(ctx, `
		INSERT INTO venues (id, owner_id, name, location, base_price, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		venue.ID, venue.OwnerID, venue.Name, venue.Location, venue.BasePrice, venue.CreatedAt,
	)
	if err != nil {
		spanError(span, err)
		return fmt.Errorf("failed to create venue: %w", err)
	}
	return nil
}

func (r *PostgresVenueRepository) GetByID(ctx context.Context, id string) (*domain.Venue, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.venue.get_by_id")
	defer span.End()
	span.SetAttributes(attribute.String("venue_id", id))

	v := &domain.Venue{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, owner_id, name, location, base_price, created_at
		FROM venues WHERE id = $1`, id,
	).Scan(&v.ID, &v.OwnerID, &v.Name, &v.Location, &v.BasePrice, &v.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrVenueNotFound
		}
		spanError(span, err)
		return nil, fmt.Errorf("failed to get venue: %w", err)
	}
	return v, nil
}
