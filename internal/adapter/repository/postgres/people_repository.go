package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/V4T54L/firewatch/internal/domain"
	"github.com/V4T54L/firewatch/internal/geo"
	"github.com/paulmach/orb"
)

// ResidentRepository implements domain.ResidentRepository on PostGIS.
type ResidentRepository struct {
	db *sql.DB
}

// NewResidentRepository creates a new PostgreSQL resident repository.
func NewResidentRepository(db *sql.DB) *ResidentRepository {
	return &ResidentRepository{db: db}
}

// FindNear uses geography distance, so a polygon area also matches residents inside it.
func (r *ResidentRepository) FindNear(ctx context.Context, area orb.Geometry, radiusMeters float64) ([]domain.Resident, error) {
	query := `
		SELECT id, user_id, ST_AsText(location)
		FROM residents
		WHERE ST_DWithin(location::geography, ST_GeomFromText($1, 4326)::geography, $2)
		ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, geo.FormatWKT(area), radiusMeters)
	if err != nil {
		return nil, fmt.Errorf("failed to query residents: %w", err)
	}
	defer rows.Close()

	var out []domain.Resident
	for rows.Next() {
		var (
			res domain.Resident
			wkt string
		)
		if err := rows.Scan(&res.ID, &res.UserID, &wkt); err != nil {
			return nil, fmt.Errorf("failed to scan resident: %w", err)
		}
		if res.Location, err = parsePoint(wkt); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// ResponderRepository implements domain.ResponderRepository on PostGIS.
type ResponderRepository struct {
	db *sql.DB
}

// NewResponderRepository creates a new PostgreSQL responder repository.
func NewResponderRepository(db *sql.DB) *ResponderRepository {
	return &ResponderRepository{db: db}
}

func (r *ResponderRepository) GetByID(ctx context.Context, id string) (*domain.Responder, error) {
	query := `SELECT id, user_id, status, ST_AsText(location) FROM responders WHERE id = $1`

	var (
		res domain.Responder
		wkt string
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(&res.ID, &res.UserID, &res.Status, &wkt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get responder %s: %w", id, err)
	}
	if res.Location, err = parsePoint(wkt); err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *ResponderRepository) FindNear(ctx context.Context, area orb.Geometry, radiusMeters float64) ([]domain.Responder, error) {
	query := `
		SELECT id, user_id, status, ST_AsText(location)
		FROM responders
		WHERE ST_DWithin(location::geography, ST_GeomFromText($1, 4326)::geography, $2)
		ORDER BY id`

	return r.query(ctx, query, geo.FormatWKT(area), radiusMeters)
}

// FindNearestAvailable orders by geography distance, breaking ties by id.
func (r *ResponderRepository) FindNearestAvailable(ctx context.Context, area orb.Geometry, limit int) ([]domain.Responder, error) {
	query := `
		SELECT id, user_id, status, ST_AsText(location)
		FROM responders
		WHERE status = $3
		ORDER BY ST_Distance(location::geography, ST_GeomFromText($1, 4326)::geography), id
		LIMIT $2`

	return r.query(ctx, query, geo.FormatWKT(area), limit, domain.ResponderAvailable)
}

func (r *ResponderRepository) query(ctx context.Context, query string, args ...any) ([]domain.Responder, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query responders: %w", err)
	}
	defer rows.Close()

	var out []domain.Responder
	for rows.Next() {
		var (
			res domain.Responder
			wkt string
		)
		if err := rows.Scan(&res.ID, &res.UserID, &res.Status, &wkt); err != nil {
			return nil, fmt.Errorf("failed to scan responder: %w", err)
		}
		if res.Location, err = parsePoint(wkt); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
