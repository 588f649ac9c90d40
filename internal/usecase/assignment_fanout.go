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

// AssignmentFanout notifies dispatched responders and alerts residents newly endangered by
// a spreading fire.
type AssignmentFanout struct {
	responders    domain.ResponderRepository
	residents     domain.ResidentRepository
	notifications domain.NotificationRepository
	alerts        domain.AlertRepository
	publisher     *Publisher
	radiusMeters  float64
	logger        *slog.Logger
	metrics       MetricsRecorder
	now           func() time.Time
	newID         func() string
}

// NewAssignmentFanout creates a new AssignmentFanout.
func NewAssignmentFanout(
	responders domain.ResponderRepository,
	residents domain.ResidentRepository,
	notifications domain.NotificationRepository,
	alerts domain.AlertRepository,
	publisher *Publisher,
	radiusMeters float64,
	logger *slog.Logger,
	m MetricsRecorder,
) *AssignmentFanout {
	return &AssignmentFanout{
		responders:    responders,
		residents:     residents,
		notifications: notifications,
		alerts:        alerts,
		publisher:     publisher,
		radiusMeters:  radiusMeters,
		logger:        logger.With("component", "assignment_fanout"),
		metrics:       orNoOp(m),
		now:           func() time.Time { return time.Now().UTC() },
		newID:         uuid.NewString,
	}
}

// Handle dispatches assignment.created and fire.spread messages to their typed handlers.
func (f *AssignmentFanout) Handle(ctx context.Context, msg domain.Message) error {
	p, err := events.Decode(msg.Subject, msg.Payload)
	if err != nil {
		return err
	}

	switch e := p.(type) {
	case *events.AssignmentCreated:
		_, err = f.HandleAssignmentCreated(ctx, e)
	case *events.FireSpread:
		_, err = f.HandleFireSpread(ctx, e)
	default:
		return fmt.Errorf("%w: %s on assignment consumer", domain.ErrUnknownSubject, msg.Subject)
	}
	if err != nil {
		return err
	}
	return ctx.Err()
}

// HandleAssignmentCreated creates one Notification for the assigned responder. An unknown
// responder is skipped without error since redelivery cannot fix it.
func (f *AssignmentFanout) HandleAssignmentCreated(ctx context.Context, e *events.AssignmentCreated) (BatchResult, error) {
	var res BatchResult

	responder, err := f.responders.GetByID(ctx, e.ResponderID)
	if errors.Is(err, domain.ErrNotFound) {
		f.logger.Warn("assignment references unknown responder, skipping",
			"assignment_id", e.AssignmentID, "responder_id", e.ResponderID)
		res.Skipped++
		f.metrics.ObserveRecords("assignment_notification", res)
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("get responder %s: %w", e.ResponderID, err)
	}

	now := f.now()
	fireID := e.FireID
	n := domain.Notification{
		ID:         f.newID(),
		TargetRole: domain.RoleResponder,
		Message:    AssignmentMessage(e.FireID, e.AssignmentID),
		Status:     domain.NotificationSent,
		ExpiresAt:  now.Add(domain.AssignmentNotificationTTL),
		CreatedAt:  now,
		FireID:     &fireID,
		UserID:     responder.UserID,
	}

	err = f.notifications.Create(ctx, n)
	res.record(err)
	if err != nil {
		f.logger.Warn("failed to create assignment notification",
			"assignment_id", e.AssignmentID, "responder_id", e.ResponderID, "error", err)
	} else {
		f.logger.Info("responder notified of assignment",
			"assignment_id", e.AssignmentID, "fire_id", e.FireID, "user_id", responder.UserID)
	}
	f.metrics.ObserveRecords("assignment_notification", res)
	return res, nil
}

// HandleFireSpread alerts residents in the updated danger zone and requests a cross-role
// broadcast. A spread that reaches no resident is acknowledged without further work.
func (f *AssignmentFanout) HandleFireSpread(ctx context.Context, e *events.FireSpread) (BatchResult, error) {
	var res BatchResult

	residents, err := f.residents.FindNear(ctx, e.Location(), f.radiusMeters)
	if err != nil {
		return res, fmt.Errorf("find residents near spread of fire %s: %w", e.FireID, err)
	}
	if len(residents) == 0 {
		f.logger.Info("fire spread reaches no residents", "fire_id", e.FireID)
		return res, nil
	}

	message := SpreadMessage(e.FireSeverityLevel, len(residents))
	now := f.now()
	alert := domain.Alert{
		ID:         f.newID(),
		AlertType:  domain.AlertTypeFire,
		TargetRole: domain.RoleResident,
		Message:    message,
		ExpiresAt:  now.Add(domain.AlertTTL),
		CreatedAt:  now,
		FireID:     e.FireID,
	}
	err = f.alerts.Create(ctx, alert)
	res.record(err)
	if err != nil {
		f.logger.Warn("failed to create spread alert", "fire_id", e.FireID, "error", err)
	}
	f.metrics.ObserveRecords("spread_alert", res)

	severity := e.FireSeverityLevel
	_, err = f.publisher.PublishAlertCreated(ctx, events.AlertCreated{
		AlertType:         domain.AlertTypeFire,
		AlertMessage:      message,
		FireID:            e.FireID,
		FireLocation:      e.FireLocation,
		FireSeverityLevel: &severity,
	})
	if err != nil {
		return res, fmt.Errorf("republish spread of fire %s as alert: %w", e.FireID, err)
	}

	f.logger.Info("fire spread alert requested", "fire_id", e.FireID, "residents", len(residents))
	return res, nil
}

// AssignmentMessage is the text sent to a dispatched responder.
func AssignmentMessage(fireID, assignmentID string) string {
	return fmt.Sprintf("You have been assigned to fire %s (assignment %s). Proceed to the fire location.", fireID, assignmentID)
}

// SpreadMessage describes a fire that has spread toward residents.
func SpreadMessage(severity, residents int) string {
	return fmt.Sprintf("Wildfire is spreading with severity level %d; %d residents are within the danger zone.", severity, residents)
}
