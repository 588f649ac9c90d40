package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/V4T54L/firewatch/internal/domain"
	"github.com/V4T54L/firewatch/internal/geo"
	"github.com/lib/pq"
	"github.com/paulmach/orb"
)

const pqForeignKeyViolation = "23503"

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return db, nil
}

// foreignKeyViolation returns the violated constraint name, if err is a foreign key violation.
func foreignKeyViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation {
		return pqErr.Constraint, true
	}
	return "", false
}

// mapFireReference turns a violated fire_id reference into ErrFireNotFound.
func mapFireReference(err error) error {
	if constraint, ok := foreignKeyViolation(err); ok && strings.Contains(constraint, "fire") {
		return fmt.Errorf("%w: %v", domain.ErrFireNotFound, err)
	}
	return err
}

func parseLocation(wkt string) (orb.Geometry, error) {
	g, err := geo.ParseWKT(wkt)
	if err != nil {
		return nil, fmt.Errorf("stored location %q: %w", wkt, err)
	}
	return g, nil
}

func parsePoint(wkt string) (orb.Point, error) {
	p, err := geo.ParsePoint(wkt)
	if err != nil {
		return orb.Point{}, fmt.Errorf("stored location %q: %w", wkt, err)
	}
	return p, nil
}
