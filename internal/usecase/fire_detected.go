package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/V4T54L/firewatch/internal/domain"
	"github.com/V4T54L/firewatch/internal/events"
)

// FireDetectedFanout turns a confirmed fire into a generic alert.created event.
// It performs no persistence.
type FireDetectedFanout struct {
	publisher *Publisher
	logger    *slog.Logger
}

// NewFireDetectedFanout creates a new FireDetectedFanout.
func NewFireDetectedFanout(publisher *Publisher, logger *slog.Logger) *FireDetectedFanout {
	return &FireDetectedFanout{
		publisher: publisher,
		logger:    logger.With("component", "fire_detected_fanout"),
	}
}

// Handle decodes a fire.detected message. Decode and publish failures are returned so the
// message is redelivered.
func (f *FireDetectedFanout) Handle(ctx context.Context, msg domain.Message) error {
	p, err := events.Decode(msg.Subject, msg.Payload)
	if err != nil {
		return err
	}
	e, ok := p.(*events.FireDetected)
	if !ok {
		return fmt.Errorf("%w: %s on fire detected consumer", domain.ErrUnknownSubject, msg.Subject)
	}
	return f.HandleFireDetected(ctx, e)
}

// HandleFireDetected republishes e as a FireAlert.
func (f *FireDetectedFanout) HandleFireDetected(ctx context.Context, e *events.FireDetected) error {
	severity := e.FireSeverityLevel
	alert := events.AlertCreated{
		AlertType:         domain.AlertTypeFire,
		AlertMessage:      FireDetectedMessage(e.FireLocation, severity),
		FireID:            e.FireID,
		FireLocation:      e.FireLocation,
		FireSeverityLevel: &severity,
	}

	ack, err := f.publisher.PublishAlertCreated(ctx, alert)
	if err != nil {
		return fmt.Errorf("republish fire %s as alert: %w", e.FireID, err)
	}

	f.logger.Info("fire detected, alert requested", "fire_id", e.FireID, "severity", severity, "sequence", ack.Sequence)
	return nil
}

// FireDetectedMessage is the default alert text for a newly detected fire.
func FireDetectedMessage(location string, severity int) string {
	return fmt.Sprintf("Wildfire detected at %s with severity level %d.", location, severity)
}
