// Package kafka implements the event bus on Kafka. Each subject is a topic and each durable
// consumer is a consumer group over the topics it filters.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/V4T54L/firewatch/internal/domain"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// DeadLetterObserver is notified whenever a message is moved to the dead-letter topic.
type DeadLetterObserver interface {
	ObserveDeadLetter(consumer string, subject domain.Subject)
}

// Bus implements domain.EventBus on Kafka. Unlike consumer groups on Redis, a Kafka
// offset commit covers every earlier offset of the partition, so a failing message is
// retried in process until MaxDeliver and then dead-lettered before the commit moves on.
type Bus struct {
	brokers      []string
	logger       *slog.Logger
	writer       *kafka.Writer
	observer     DeadLetterObserver
	retryBackoff time.Duration
	now          func() time.Time

	mu        sync.Mutex
	stream    domain.StreamConfig
	consumers map[string]string
}

// NewBus creates a Kafka bus over brokers.
func NewBus(brokers []string, stream string, logger *slog.Logger, observer DeadLetterObserver) (*Bus, error) {
	if len(brokers) == 0 {
		return nil, errors.New("brokers cannot be empty")
	}
	if stream == "" {
		stream = domain.DefaultStreamName
	}
	return &Bus{
		brokers: brokers,
		logger:  logger.With("component", "kafka_bus", "stream", stream),
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: false,
		},
		observer:     observer,
		retryBackoff: 500 * time.Millisecond,
		now:          time.Now,
		stream:       domain.DefaultStreamConfig(stream),
		consumers:    make(map[string]string),
	}, nil
}

func (b *Bus) streamConfig() domain.StreamConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stream
}

// EnsureStream creates one topic per subject plus the dead-letter topic with age-based
// retention. Existing topics are left untouched.
func (b *Bus) EnsureStream(ctx context.Context, cfg domain.StreamConfig) error {
	conn, err := b.dialController(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	retention := strconv.FormatInt(cfg.MaxAge.Milliseconds(), 10)
	subjects := append(slices.Clone(cfg.Subjects), domain.SubjectDeadLetter)
	topics := make([]kafka.TopicConfig, 0, len(subjects))
	for _, s := range subjects {
		topics = append(topics, kafka.TopicConfig{
			Topic:             topicName(cfg.Name, s),
			NumPartitions:     3,
			ReplicationFactor: 1,
			ConfigEntries: []kafka.ConfigEntry{
				{ConfigName: "retention.ms", ConfigValue: retention},
				{ConfigName: "cleanup.policy", ConfigValue: "delete"},
			},
		})
	}

	for _, t := range topics {
		err := conn.CreateTopics(t)
		if err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
			return fmt.Errorf("failed to create topic %s: %w", t.Topic, err)
		}
	}

	b.mu.Lock()
	b.stream = cfg
	b.mu.Unlock()
	b.logger.Info("stream topics ensured", "topics", len(topics), "retention_ms", retention)
	return nil
}

// Ping reports whether the first broker accepts connections.
func (b *Bus) Ping(ctx context.Context) error {
	var dialer kafka.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", b.brokers[0])
	if err != nil {
		return fmt.Errorf("failed to dial kafka broker %s: %w", b.brokers[0], err)
	}
	return conn.Close()
}

func (b *Bus) dialController(ctx context.Context) (*kafka.Conn, error) {
	var dialer kafka.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", b.brokers[0])
	if err != nil {
		return nil, fmt.Errorf("failed to dial kafka broker %s: %w", b.brokers[0], err)
	}
	controller, err := conn.Controller()
	conn.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to find kafka controller: %w", err)
	}
	addr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	cc, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial kafka controller %s: %w", addr, err)
	}
	return cc, nil
}

// EnsureConsumer registers the consumer's filter. Kafka creates the group itself on first
// join, so only conflicting filters within this process can be detected.
func (b *Bus) EnsureConsumer(ctx context.Context, cfg domain.ConsumerConfig) error {
	filter := strings.Join(subjectStrings(cfg.FilterSubjects), ",")
	b.mu.Lock()
	defer b.mu.Unlock()
	if existing, ok := b.consumers[cfg.Durable]; ok && existing != filter {
		return fmt.Errorf("%w: %s filters %s, requested %s", domain.ErrConsumerConfigMismatch, cfg.Durable, existing, filter)
	}
	b.consumers[cfg.Durable] = filter
	return nil
}

// Publish writes payload to the subject's topic and waits for all in-sync replicas.
func (b *Bus) Publish(ctx context.Context, subject domain.Subject, payload []byte) (domain.PubAck, error) {
	stream := b.streamConfig()
	if !stream.Contains(subject) {
		return domain.PubAck{}, fmt.Errorf("%w: %s", domain.ErrUnknownSubject, subject)
	}

	id := uuid.NewString()
	err := b.writer.WriteMessages(ctx, kafka.Message{
		Topic: topicName(stream.Name, subject),
		Key:   []byte(id),
		Value: payload,
		Time:  b.now(),
	})
	if err != nil {
		return domain.PubAck{}, fmt.Errorf("failed to write to %s: %w", subject, err)
	}
	return domain.PubAck{Stream: stream.Name, Subject: subject, Sequence: id}, nil
}

// Subscribe joins the consumer group and delivers messages until ctx is done. Offsets are
// committed only after the handler succeeds or the message is dead-lettered, so anything
// uncommitted replays on restart.
func (b *Bus) Subscribe(ctx context.Context, cfg domain.ConsumerConfig, handler domain.MessageHandler) error {
	stream := b.streamConfig()
	topics := make([]string, 0, len(cfg.FilterSubjects))
	for _, s := range cfg.FilterSubjects {
		topics = append(topics, topicName(stream.Name, s))
	}
	if len(topics) == 0 {
		return fmt.Errorf("consumer %s has no subjects", cfg.Durable)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        b.brokers,
		GroupID:        cfg.Durable,
		GroupTopics:    topics,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
	})
	defer reader.Close()

	logger := b.logger.With("consumer", cfg.Durable)
	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error("failed to fetch message", "error", err)
			if !sleep(ctx, b.retryBackoff) {
				return ctx.Err()
			}
			continue
		}

		subject := subjectOf(stream.Name, m.Topic)
		if !b.deliver(ctx, cfg, subject, m, handler) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("consumer %s: message %s could not be settled", cfg.Durable, messageID(m))
		}
		if err := reader.CommitMessages(context.WithoutCancel(ctx), m); err != nil {
			logger.Error("failed to commit offset", "message_id", messageID(m), "error", err)
		}
	}
}

// deliver runs handler until it succeeds or the delivery budget is spent. It returns
// false when ctx ended before the message was settled.
func (b *Bus) deliver(ctx context.Context, cfg domain.ConsumerConfig, subject domain.Subject, m kafka.Message, handler domain.MessageHandler) bool {
	for attempt := 1; ; attempt++ {
		msg := toMessage(subject, m, attempt)
		err := handler(ctx, msg)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		if cfg.MaxDeliver > 0 && attempt >= cfg.MaxDeliver {
			if dlErr := b.deadLetter(context.WithoutCancel(ctx), cfg, msg, err); dlErr != nil {
				// Without a dead letter the offset must not move past the message.
				b.logger.Error("failed to dead-letter message", "message_id", msg.ID, "error", dlErr)
				return false
			}
			return true
		}
		if !sleep(ctx, backoff(b.retryBackoff, attempt)) {
			return false
		}
	}
}

func (b *Bus) deadLetter(ctx context.Context, cfg domain.ConsumerConfig, msg domain.Message, cause error) error {
	stream := b.streamConfig()
	err := b.writer.WriteMessages(ctx, kafka.Message{
		Topic: topicName(stream.Name, domain.SubjectDeadLetter),
		Key:   []byte(msg.ID),
		Value: msg.Payload,
		Time:  b.now(),
		Headers: []kafka.Header{
			{Key: "subject", Value: []byte(msg.Subject)},
			{Key: "consumer", Value: []byte(cfg.Durable)},
			{Key: "original_id", Value: []byte(msg.ID)},
			{Key: "delivery_attempt", Value: []byte(strconv.Itoa(msg.DeliveryAttempt))},
			{Key: "error", Value: []byte(cause.Error())},
		},
	})
	if err != nil {
		return err
	}
	b.logger.Warn("moved message to dead-letter topic",
		"consumer", cfg.Durable, "subject", msg.Subject, "message_id", msg.ID, "attempt", msg.DeliveryAttempt, "error", cause)
	if b.observer != nil {
		b.observer.ObserveDeadLetter(cfg.Durable, msg.Subject)
	}
	return nil
}

// Close flushes and closes the writer.
func (b *Bus) Close() error {
	return b.writer.Close()
}

func topicName(stream string, subject domain.Subject) string {
	return strings.ToLower(stream) + "." + string(subject)
}

func subjectOf(stream, topic string) domain.Subject {
	return domain.Subject(strings.TrimPrefix(topic, strings.ToLower(stream)+"."))
}

func messageID(m kafka.Message) string {
	return fmt.Sprintf("%s/%d/%d", m.Topic, m.Partition, m.Offset)
}

func toMessage(subject domain.Subject, m kafka.Message, attempt int) domain.Message {
	return domain.Message{
		ID:              messageID(m),
		Subject:         subject,
		Payload:         m.Value,
		DeliveryAttempt: attempt,
		PublishedAt:     m.Time,
	}
}

func subjectStrings(subjects []domain.Subject) []string {
	out := make([]string, len(subjects))
	for i, s := range subjects {
		out[i] = string(s)
	}
	return out
}

// backoff doubles base per failed attempt, capped at 30s.
func backoff(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt && d < 30*time.Second; i++ {
		d *= 2
	}
	return min(d, 30*time.Second)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
