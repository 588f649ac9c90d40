package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/V4T54L/firewatch/internal/domain"
)

// AlertRepository implements domain.AlertRepository for PostgreSQL.
type AlertRepository struct {
	db *sql.DB
}

// NewAlertRepository creates a new PostgreSQL alert repository.
func NewAlertRepository(db *sql.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

func (r *AlertRepository) Create(ctx context.Context, a domain.Alert) error {
	query := `
		INSERT INTO alerts (id, alert_type, target_role, message, expires_at, created_at, fire_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.AlertType, a.TargetRole, a.Message, a.ExpiresAt, a.CreatedAt, a.FireID)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", mapFireReference(err))
	}
	return nil
}

func (r *AlertRepository) ListActive(ctx context.Context, role domain.Role, now time.Time) ([]domain.Alert, error) {
	query := `
		SELECT id, alert_type, target_role, message, expires_at, created_at, fire_id
		FROM alerts
		WHERE target_role = $1 AND expires_at > $2
		ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, role, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []domain.Alert
	for rows.Next() {
		var a domain.Alert
		if err := rows.Scan(&a.ID, &a.AlertType, &a.TargetRole, &a.Message, &a.ExpiresAt, &a.CreatedAt, &a.FireID); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (r *AlertRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM alerts WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired alerts: %w", err)
	}
	return res.RowsAffected()
}

func (r *AlertRepository) DeleteByFire(ctx context.Context, fireID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM alerts WHERE fire_id = $1`, fireID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete alerts of fire %s: %w", fireID, err)
	}
	return res.RowsAffected()
}
