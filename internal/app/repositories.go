package app

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/V4T54L/firewatch/internal/adapter/repository/postgres"
	"github.com/V4T54L/firewatch/internal/pkg/config"
)

// Repositories groups the Postgres-backed repositories.
type Repositories struct {
	DB             *sql.DB
	Fires          *postgres.FireRepository
	Alerts         *postgres.AlertRepository
	Notifications  *postgres.NotificationRepository
	Assignments    *postgres.FireAssignmentRepository
	Residents      *postgres.ResidentRepository
	Responders     *postgres.ResponderRepository
	Municipalities *postgres.MunicipalityRepository
}

// OpenRepositories connects to Postgres, applies the schema when POSTGRES_MIGRATE is set,
// and builds every repository. cache may be nil.
func OpenRepositories(ctx context.Context, cfg *config.Config, logger *slog.Logger, cache postgres.CacheObserver) (*Repositories, error) {
	db, err := postgres.Open(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, err
	}
	if cfg.PostgresMigrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("database schema applied")
	}
	logger.Info("connected to postgres")

	return &Repositories{
		DB:             db,
		Fires:          postgres.NewFireRepository(db),
		Alerts:         postgres.NewAlertRepository(db),
		Notifications:  postgres.NewNotificationRepository(db),
		Assignments:    postgres.NewFireAssignmentRepository(db),
		Residents:      postgres.NewResidentRepository(db),
		Responders:     postgres.NewResponderRepository(db),
		Municipalities: postgres.NewMunicipalityRepository(db, logger, cfg.MunicipalityCacheTTL, cache),
	}, nil
}

// Close closes the database pool.
func (r *Repositories) Close() error {
	return r.DB.Close()
}
