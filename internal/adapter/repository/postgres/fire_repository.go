package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/V4T54L/firewatch/internal/domain"
)

// FireRepository implements domain.FireRepository for PostgreSQL.
type FireRepository struct {
	db *sql.DB
}

// NewFireRepository creates a new PostgreSQL fire repository.
func NewFireRepository(db *sql.DB) *FireRepository {
	return &FireRepository{db: db}
}

func (r *FireRepository) GetByID(ctx context.Context, id string) (*domain.FireEvent, error) {
	query := `
		SELECT id, source, ST_AsText(location), severity_level, is_extinguished, is_verified,
		       COALESCE(spread_prediction, ''), created_at
		FROM fire_events
		WHERE id = $1`

	var (
		f   domain.FireEvent
		wkt string
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&f.ID, &f.Source, &wkt, &f.SeverityLevel, &f.IsExtinguished, &f.IsVerified, &f.SpreadPrediction, &f.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fire %s: %w", id, err)
	}

	if f.Location, err = parseLocation(wkt); err != nil {
		return nil, err
	}
	return &f, nil
}
