package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/V4T54L/firewatch/internal/domain"
)

// CacheObserver counts cache lookups.
type CacheObserver interface {
	ObserveCacheLookup(cache string, hit bool)
}

// MunicipalityRepository implements domain.MunicipalityRepository. Municipalities change
// rarely and every risk prediction reads all of them, so the list is cached for cacheTTL.
type MunicipalityRepository struct {
	db       *sql.DB
	logger   *slog.Logger
	cacheTTL time.Duration
	observer CacheObserver
	now      func() time.Time

	mu        sync.RWMutex
	cached    []domain.Municipality
	expiresAt time.Time
}

// NewMunicipalityRepository creates a new PostgreSQL municipality repository.
// A zero cacheTTL disables caching. observer may be nil.
func NewMunicipalityRepository(db *sql.DB, logger *slog.Logger, cacheTTL time.Duration, observer CacheObserver) *MunicipalityRepository {
	return &MunicipalityRepository{
		db:       db,
		logger:   logger.With("component", "municipality_repository"),
		cacheTTL: cacheTTL,
		observer: observer,
		now:      time.Now,
	}
}

func (r *MunicipalityRepository) ListAll(ctx context.Context) ([]domain.Municipality, error) {
	if r.cacheTTL <= 0 {
		return r.load(ctx)
	}

	r.mu.RLock()
	list, fresh := r.cached, r.now().Before(r.expiresAt)
	r.mu.RUnlock()

	if fresh {
		r.observe(true)
		return list, nil
	}
	r.observe(false)

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another goroutine may have refreshed it while we waited.
	if r.now().Before(r.expiresAt) {
		return r.cached, nil
	}

	list, err := r.load(ctx)
	if err != nil {
		// Errors are not cached; the next call retries the database.
		r.logger.Error("failed to load municipalities", "error", err)
		return nil, err
	}
	r.cached = list
	r.expiresAt = r.now().Add(r.cacheTTL)
	return list, nil
}

func (r *MunicipalityRepository) load(ctx context.Context) ([]domain.Municipality, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, user_id, name FROM municipalities ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list municipalities: %w", err)
	}
	defer rows.Close()

	var out []domain.Municipality
	for rows.Next() {
		var m domain.Municipality
		if err := rows.Scan(&m.ID, &m.UserID, &m.Name); err != nil {
			return nil, fmt.Errorf("failed to scan municipality: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *MunicipalityRepository) observe(hit bool) {
	if r.observer != nil {
		r.observer.ObserveCacheLookup("municipalities", hit)
	}
}
