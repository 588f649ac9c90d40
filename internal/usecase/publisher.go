package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/V4T54L/firewatch/internal/domain"
	"github.com/V4T54L/firewatch/internal/events"
)

// Publisher shapes domain events into wire payloads and writes them to their fixed subjects.
// It never reads from storage.
type Publisher struct {
	bus    domain.EventPublisher
	logger *slog.Logger
	now    func() time.Time
}

// NewPublisher creates a new Publisher.
func NewPublisher(bus domain.EventPublisher, logger *slog.Logger) *Publisher {
	return &Publisher{
		bus:    bus,
		logger: logger.With("component", "publisher"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (p *Publisher) publish(ctx context.Context, payload events.Payload) (domain.PubAck, error) {
	data, err := events.Encode(payload)
	if err != nil {
		return domain.PubAck{}, err
	}

	ack, err := p.bus.Publish(ctx, payload.Subject(), data)
	if err != nil {
		return domain.PubAck{}, fmt.Errorf("publish %s: %w", payload.Subject(), err)
	}

	p.logger.Debug("published event", "subject", payload.Subject(), "sequence", ack.Sequence)
	return ack, nil
}

func (p *Publisher) stamp(ts *time.Time) {
	if ts.IsZero() {
		*ts = p.now()
	}
}

// PublishFireDetected publishes to fire.detected.
func (p *Publisher) PublishFireDetected(ctx context.Context, e events.FireDetected) (domain.PubAck, error) {
	p.stamp(&e.Timestamp)
	return p.publish(ctx, &e)
}

// PublishFireSpread publishes to fire.spread.
func (p *Publisher) PublishFireSpread(ctx context.Context, e events.FireSpread) (domain.PubAck, error) {
	p.stamp(&e.Timestamp)
	return p.publish(ctx, &e)
}

// PublishFireExtinguished publishes to fire.extinguished.
func (p *Publisher) PublishFireExtinguished(ctx context.Context, e events.FireExtinguished) (domain.PubAck, error) {
	p.stamp(&e.Timestamp)
	return p.publish(ctx, &e)
}

// PublishFireRiskPredicted publishes to fire.risk.predicted.
func (p *Publisher) PublishFireRiskPredicted(ctx context.Context, e events.FireRiskPredicted) (domain.PubAck, error) {
	p.stamp(&e.Timestamp)
	return p.publish(ctx, &e)
}

// PublishAlertCreated publishes to alert.created.
func (p *Publisher) PublishAlertCreated(ctx context.Context, e events.AlertCreated) (domain.PubAck, error) {
	p.stamp(&e.Timestamp)
	return p.publish(ctx, &e)
}

// PublishAssignmentCreated publishes to assignment.created.
func (p *Publisher) PublishAssignmentCreated(ctx context.Context, e events.AssignmentCreated) (domain.PubAck, error) {
	p.stamp(&e.Timestamp)
	return p.publish(ctx, &e)
}

// PublishEvacuationUpdated publishes to evacuation.updated.
func (p *Publisher) PublishEvacuationUpdated(ctx context.Context, e events.EvacuationUpdated) (domain.PubAck, error) {
	p.stamp(&e.Timestamp)
	return p.publish(ctx, &e)
}
