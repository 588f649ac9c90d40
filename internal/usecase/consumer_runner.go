package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/V4T54L/firewatch/internal/domain"
)

// Subscriber is the consuming half of the event bus.
type Subscriber interface {
	Subscribe(ctx context.Context, cfg domain.ConsumerConfig, handler domain.MessageHandler) error
}

// Handler processes one message for a consumer. A nil error acknowledges the message.
type Handler interface {
	Handle(ctx context.Context, msg domain.Message) error
}

// ConsumerRunner binds a durable consumer to its handler and runs the consumption loop.
type ConsumerRunner struct {
	bus      Subscriber
	consumer domain.ConsumerConfig
	handler  Handler
	logger   *slog.Logger
	metrics  MetricsRecorder
}

// NewConsumerRunner creates a runner for one consumer.
func NewConsumerRunner(bus Subscriber, consumer domain.ConsumerConfig, handler Handler, logger *slog.Logger, m MetricsRecorder) *ConsumerRunner {
	return &ConsumerRunner{
		bus:      bus,
		consumer: consumer,
		handler:  handler,
		logger:   logger.With("component", "consumer_runner", "consumer", consumer.Durable),
		metrics:  orNoOp(m),
	}
}

// Run blocks until ctx is cancelled or the bus subscription fails.
func (r *ConsumerRunner) Run(ctx context.Context) error {
	r.logger.Info("consumer started", "subjects", r.consumer.FilterSubjects)
	err := r.bus.Subscribe(ctx, r.consumer, r.Handle)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("consumer %s: %w", r.consumer.Durable, err)
	}
	r.logger.Info("consumer stopped")
	return nil
}

// Handle runs the handler for one delivery and records the outcome.
func (r *ConsumerRunner) Handle(ctx context.Context, msg domain.Message) error {
	start := time.Now()

	if !r.consumer.Filters(msg.Subject) {
		// Nothing here can ever process it; acknowledge so it does not cycle.
		r.logger.Warn("received subject outside consumer filter, acknowledging", "subject", msg.Subject, "message_id", msg.ID)
		r.metrics.ObserveMessage(r.consumer.Durable, msg.Subject, OutcomeAcked, time.Since(start))
		return nil
	}

	r.logger.Debug("received message", "subject", msg.Subject, "message_id", msg.ID, "attempt", msg.DeliveryAttempt)

	err := r.handler.Handle(ctx, msg)
	elapsed := time.Since(start)
	if err != nil {
		r.logger.Error("handler failed, message left unacknowledged",
			"subject", msg.Subject,
			"message_id", msg.ID,
			"attempt", msg.DeliveryAttempt,
			"error", err,
		)
		r.metrics.ObserveMessage(r.consumer.Durable, msg.Subject, OutcomeRetry, elapsed)
		return err
	}

	r.metrics.ObserveMessage(r.consumer.Durable, msg.Subject, OutcomeAcked, elapsed)
	return nil
}

// SetupBus ensures the stream and every consumer exist. Safe to call on every start and
// from several processes at once.
func SetupBus(ctx context.Context, bus domain.EventBus, stream domain.StreamConfig, consumers []domain.ConsumerConfig) error {
	if err := bus.EnsureStream(ctx, stream); err != nil {
		return fmt.Errorf("ensure stream %s: %w", stream.Name, err)
	}
	for _, c := range consumers {
		for _, s := range c.FilterSubjects {
			if !stream.Contains(s) {
				return fmt.Errorf("consumer %s filters %s: %w", c.Durable, s, domain.ErrUnknownSubject)
			}
		}
		if err := bus.EnsureConsumer(ctx, c); err != nil {
			return fmt.Errorf("ensure consumer %s: %w", c.Durable, err)
		}
	}
	return nil
}
