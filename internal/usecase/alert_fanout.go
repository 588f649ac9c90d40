package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/V4T54L/firewatch/internal/domain"
	"github.com/V4T54L/firewatch/internal/events"
	"github.com/google/uuid"
)

// AlertFanout persists one Alert per broadcast role for every alert.created and
// evacuation.updated message.
type AlertFanout struct {
	alerts  domain.AlertRepository
	logger  *slog.Logger
	metrics MetricsRecorder
	now     func() time.Time
	newID   func() string
}

// NewAlertFanout creates a new AlertFanout.
func NewAlertFanout(alerts domain.AlertRepository, logger *slog.Logger, m MetricsRecorder) *AlertFanout {
	return &AlertFanout{
		alerts:  alerts,
		logger:  logger.With("component", "alert_fanout"),
		metrics: orNoOp(m),
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
}

// Handle decodes the message and broadcasts it. Only decode failures and cancellation are
// returned; per-role write failures are logged and the message is still acknowledged.
func (f *AlertFanout) Handle(ctx context.Context, msg domain.Message) error {
	p, err := events.Decode(msg.Subject, msg.Payload)
	if err != nil {
		return err
	}

	switch e := p.(type) {
	case *events.AlertCreated:
		f.HandleAlertCreated(ctx, e)
	case *events.EvacuationUpdated:
		f.HandleEvacuationUpdated(ctx, e)
	default:
		return fmt.Errorf("%w: %s on alert consumer", domain.ErrUnknownSubject, msg.Subject)
	}

	// A cancelled batch is left unacknowledged.
	return ctx.Err()
}

// HandleAlertCreated broadcasts e to every role in domain.BroadcastRoles.
func (f *AlertFanout) HandleAlertCreated(ctx context.Context, e *events.AlertCreated) BatchResult {
	return f.broadcast(ctx, e.AlertType, e.FireID, e.AlertMessage)
}

// HandleEvacuationUpdated broadcasts a route change as an EvacuationAlert.
func (f *AlertFanout) HandleEvacuationUpdated(ctx context.Context, e *events.EvacuationUpdated) BatchResult {
	return f.broadcast(ctx, domain.AlertTypeEvacuation, e.FireID, EvacuationMessage(e))
}

func (f *AlertFanout) broadcast(ctx context.Context, alertType domain.AlertType, fireID, message string) BatchResult {
	var res BatchResult
	now := f.now()

	for _, role := range domain.BroadcastRoles {
		if ctx.Err() != nil {
			res.Skipped++
			continue
		}

		alert := domain.Alert{
			ID:         f.newID(),
			AlertType:  alertType,
			TargetRole: role,
			Message:    RoleMessage(role, message),
			ExpiresAt:  now.Add(domain.AlertTTL),
			CreatedAt:  now,
			FireID:     fireID,
		}

		err := f.alerts.Create(ctx, alert)
		res.record(err)
		switch {
		case errors.Is(err, domain.ErrFireNotFound):
			f.logger.Warn("alert references unknown fire, skipping role", "fire_id", fireID, "role", role)
		case err != nil:
			f.logger.Warn("failed to create alert, skipping role", "fire_id", fireID, "role", role, "error", err)
		}
	}

	f.metrics.ObserveRecords("alert", res)
	f.logger.Info("alert fan-out complete", "fire_id", fireID, "alert_type", alertType, "result", res.String())
	return res
}

// RoleMessage tailors a broadcast message to its audience.
func RoleMessage(role domain.Role, message string) string {
	switch role {
	case domain.RoleResident:
		return message + " Stay alert and follow local evacuation guidance."
	case domain.RoleResponder:
		return message + " Check your assignments and stand by for dispatch."
	case domain.RoleMunicipality:
		return message + " Coordinate public response in affected areas."
	}
	return message
}

// EvacuationMessage describes an evacuation route update.
func EvacuationMessage(e *events.EvacuationUpdated) string {
	if e.RoutePriority == "" {
		return fmt.Sprintf("Evacuation route %s is now %s.", e.RouteID, e.RouteStatus)
	}
	return fmt.Sprintf("Evacuation route %s is now %s (priority %s).", e.RouteID, e.RouteStatus, e.RoutePriority)
}
