package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/V4T54L/firewatch/internal/domain"
)

// AlertSweeper deletes alerts whose expiry has passed. Reads already filter expired rows;
// the sweep only reclaims storage.
type AlertSweeper struct {
	alerts domain.AlertRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewAlertSweeper creates a new AlertSweeper.
func NewAlertSweeper(alerts domain.AlertRepository, logger *slog.Logger) *AlertSweeper {
	return &AlertSweeper{
		alerts: alerts,
		logger: logger.With("component", "alert_sweeper"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SweepOnce deletes every alert expired at the current time.
func (s *AlertSweeper) SweepOnce(ctx context.Context) (int64, error) {
	n, err := s.alerts.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("delete expired alerts: %w", err)
	}
	if n > 0 {
		s.logger.Info("swept expired alerts", "deleted", n)
	}
	return n, nil
}

// Run sweeps every interval until ctx is cancelled. Sweep failures are logged and retried
// on the next tick.
func (s *AlertSweeper) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.SweepOnce(ctx); err != nil {
			s.logger.Error("alert sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
