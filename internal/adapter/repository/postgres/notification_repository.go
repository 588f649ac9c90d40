package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/V4T54L/firewatch/internal/domain"
)

// NotificationRepository implements domain.NotificationRepository for PostgreSQL.
type NotificationRepository struct {
	db *sql.DB
}

// NewNotificationRepository creates a new PostgreSQL notification repository.
func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, n domain.Notification) error {
	query := `
		INSERT INTO notifications (id, target_role, message, status, expires_at, created_at, fire_id, user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		n.ID, n.TargetRole, n.Message, n.Status, n.ExpiresAt, n.CreatedAt, n.FireID, n.UserID)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", mapFireReference(err))
	}
	return nil
}

// UpdateStatus moves a Sent notification to a terminal status. The guard is part of the
// UPDATE so concurrent updates cannot both win.
func (r *NotificationRepository) UpdateStatus(ctx context.Context, id string, status domain.NotificationStatus) error {
	if !domain.NotificationSent.CanTransitionTo(status) {
		return fmt.Errorf("%w: to %s", domain.ErrInvalidStatusTransition, status)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET status = $2 WHERE id = $1 AND status = $3`,
		id, status, domain.NotificationSent)
	if err != nil {
		return fmt.Errorf("failed to update notification %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM notifications WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check notification %s: %w", id, err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return fmt.Errorf("%w: notification %s is no longer Sent", domain.ErrInvalidStatusTransition, id)
}

func (r *NotificationRepository) ListActiveForUser(ctx context.Context, userID string, now time.Time) ([]domain.Notification, error) {
	query := `
		SELECT id, target_role, message, status, expires_at, created_at, fire_id, user_id
		FROM notifications
		WHERE user_id = $1 AND expires_at > $2
		ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var (
			n      domain.Notification
			fireID sql.NullString
		)
		if err := rows.Scan(&n.ID, &n.TargetRole, &n.Message, &n.Status, &n.ExpiresAt, &n.CreatedAt, &fireID, &n.UserID); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		if fireID.Valid {
			n.FireID = &fireID.String
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
