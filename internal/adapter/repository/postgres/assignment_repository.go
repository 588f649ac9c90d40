package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/V4T54L/firewatch/internal/domain"
)

// FireAssignmentRepository implements domain.FireAssignmentRepository for PostgreSQL.
type FireAssignmentRepository struct {
	db *sql.DB
}

// NewFireAssignmentRepository creates a new PostgreSQL assignment repository.
func NewFireAssignmentRepository(db *sql.DB) *FireAssignmentRepository {
	return &FireAssignmentRepository{db: db}
}

func (r *FireAssignmentRepository) Create(ctx context.Context, a domain.FireAssignment) error {
	query := `
		INSERT INTO fire_assignments (id, assigned_at, status, fire_id, responder_id)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.ExecContext(ctx, query, a.ID, a.AssignedAt, a.Status, a.FireID, a.ResponderID)
	if err != nil {
		if constraint, ok := foreignKeyViolation(err); ok && strings.Contains(constraint, "responder") {
			return fmt.Errorf("%w: %s", domain.ErrResponderNotFound, a.ResponderID)
		}
		return fmt.Errorf("failed to insert assignment: %w", mapFireReference(err))
	}
	return nil
}
