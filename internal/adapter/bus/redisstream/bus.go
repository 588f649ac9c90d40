// Package redisstream implements the event bus on Redis Streams. Each subject is its own
// stream key and each durable consumer is a consumer group created on every key it filters.
package redisstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/V4T54L/firewatch/internal/domain"
	"github.com/redis/go-redis/v9"
)

// DeadLetterObserver is notified whenever a message is moved to the dead-letter stream.
type DeadLetterObserver interface {
	ObserveDeadLetter(consumer string, subject domain.Subject)
}

// Options tune a Bus. Zero values fall back to defaults.
type Options struct {
	Stream       string
	ConsumerName string
	BatchSize    int64
	Block        time.Duration
	Observer     DeadLetterObserver
}

// Bus implements domain.EventBus on Redis Streams.
type Bus struct {
	client       *redis.Client
	logger       *slog.Logger
	keys         keyspace
	consumerName string
	batchSize    int64
	block        time.Duration
	observer     DeadLetterObserver
	now          func() time.Time

	mu     sync.RWMutex
	stream domain.StreamConfig
}

// NewBus creates a Redis Streams bus. The stream definition is loaded by EnsureStream.
func NewBus(client *redis.Client, logger *slog.Logger, opts Options) *Bus {
	if opts.Stream == "" {
		opts.Stream = domain.DefaultStreamName
	}
	if opts.ConsumerName == "" {
		opts.ConsumerName = "firewatch"
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.Block <= 0 {
		opts.Block = 2 * time.Second
	}
	return &Bus{
		client:       client,
		logger:       logger.With("component", "redis_bus", "stream", opts.Stream),
		keys:         keyspace(opts.Stream),
		consumerName: opts.ConsumerName,
		batchSize:    opts.BatchSize,
		block:        opts.Block,
		observer:     opts.Observer,
		now:          time.Now,
		stream:       domain.DefaultStreamConfig(opts.Stream),
	}
}

// Ping reports whether Redis is reachable.
func (b *Bus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// EnsureStream records the stream definition. An identical definition is left untouched;
// a changed one is updated in place.
func (b *Bus) EnsureStream(ctx context.Context, cfg domain.StreamConfig) error {
	if cfg.Name != string(b.keys) {
		return fmt.Errorf("stream %s does not match bus stream %s", cfg.Name, b.keys)
	}

	want := map[string]string{
		"subjects":   joinSubjects(cfg.Subjects),
		"max_age_ms": strconv.FormatInt(cfg.MaxAge.Milliseconds(), 10),
	}
	current, err := b.client.HGetAll(ctx, b.keys.meta()).Result()
	if err != nil {
		return fmt.Errorf("failed to read stream definition: %w", err)
	}

	if current["subjects"] != want["subjects"] || current["max_age_ms"] != want["max_age_ms"] {
		if err := b.client.HSet(ctx, b.keys.meta(), "subjects", want["subjects"], "max_age_ms", want["max_age_ms"]).Err(); err != nil {
			return fmt.Errorf("failed to write stream definition: %w", err)
		}
		if len(current) > 0 {
			b.logger.Info("stream definition updated", "subjects", want["subjects"], "max_age", cfg.MaxAge)
		}
	}

	b.mu.Lock()
	b.stream = cfg
	b.mu.Unlock()
	return nil
}

func (b *Bus) streamConfig() domain.StreamConfig {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stream
}

// EnsureConsumer creates the consumer group on every filtered subject, starting from the
// earliest retained entry. Re-creating with a different filter returns ErrConsumerConfigMismatch.
func (b *Bus) EnsureConsumer(ctx context.Context, cfg domain.ConsumerConfig) error {
	filter := joinSubjects(cfg.FilterSubjects)
	existing, err := b.client.HGet(ctx, b.keys.consumer(cfg.Durable), "filter").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to read consumer %s: %w", cfg.Durable, err)
	}
	if err == nil && existing != filter {
		return fmt.Errorf("%w: %s filters %s, requested %s", domain.ErrConsumerConfigMismatch, cfg.Durable, existing, filter)
	}

	for _, s := range cfg.FilterSubjects {
		err := b.client.XGroupCreateMkStream(ctx, b.keys.subject(s), cfg.Durable, "0").Err()
		if err != nil && !isBusyGroupError(err) {
			return fmt.Errorf("failed to create consumer group %s on %s: %w", cfg.Durable, s, err)
		}
	}

	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, b.keys.consumer(cfg.Durable), map[string]interface{}{
			"filter":      filter,
			"max_deliver": cfg.MaxDeliver,
			"ack_wait_ms": cfg.AckWait.Milliseconds(),
		})
		pipe.SAdd(ctx, b.keys.consumers(), cfg.Durable)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record consumer %s: %w", cfg.Durable, err)
	}
	return nil
}

// Publish appends payload to the subject's stream key, evicting entries older than the
// stream's max age.
func (b *Bus) Publish(ctx context.Context, subject domain.Subject, payload []byte) (domain.PubAck, error) {
	stream := b.streamConfig()
	if !stream.Contains(subject) {
		return domain.PubAck{}, fmt.Errorf("%w: %s", domain.ErrUnknownSubject, subject)
	}

	now := b.now()
	args := &redis.XAddArgs{
		Stream: b.keys.subject(subject),
		Values: map[string]interface{}{
			"payload":      payload,
			"published_at": now.UTC().Format(time.RFC3339Nano),
		},
	}
	if stream.MaxAge > 0 {
		args.MinID = minID(now, stream.MaxAge)
		args.Approx = true
	}

	id, err := b.client.XAdd(ctx, args).Result()
	if err != nil {
		return domain.PubAck{}, fmt.Errorf("failed to XADD to %s: %w", subject, err)
	}
	return domain.PubAck{Stream: stream.Name, Subject: subject, Sequence: id}, nil
}

// Subscribe delivers messages for cfg until ctx is done. Entries left pending by an
// earlier run of this instance are replayed first; entries idle longer than AckWait on any
// instance are claimed and redelivered.
func (b *Bus) Subscribe(ctx context.Context, cfg domain.ConsumerConfig, handler domain.MessageHandler) error {
	if len(cfg.FilterSubjects) == 0 {
		return fmt.Errorf("consumer %s has no subjects", cfg.Durable)
	}
	logger := b.logger.With("consumer", cfg.Durable, "instance", b.consumerName)

	for _, s := range cfg.FilterSubjects {
		if err := b.reclaim(ctx, cfg, s, b.consumerName, 0, handler); err != nil {
			logger.Error("failed to replay pending messages", "subject", s, "error", err)
		}
	}

	streams := make([]string, 0, 2*len(cfg.FilterSubjects))
	for _, s := range cfg.FilterSubjects {
		streams = append(streams, b.keys.subject(s))
	}
	for range cfg.FilterSubjects {
		streams = append(streams, ">")
	}

	nextReclaim := b.now().Add(cfg.AckWait)
	for ctx.Err() == nil {
		if cfg.AckWait > 0 && !b.now().Before(nextReclaim) {
			for _, s := range cfg.FilterSubjects {
				if err := b.reclaim(ctx, cfg, s, "", cfg.AckWait, handler); err != nil {
					logger.Error("failed to reclaim idle messages", "subject", s, "error", err)
				}
			}
			nextReclaim = b.now().Add(cfg.AckWait)
		}

		res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    cfg.Durable,
			Consumer: b.consumerName,
			Streams:  streams,
			Count:    b.batchSize,
			Block:    b.block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			if isNetworkError(err) {
				logger.Warn("redis unavailable, retrying", "error", err)
			} else {
				logger.Error("failed to XREADGROUP", "error", err)
			}
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		for _, st := range res {
			subject := b.keys.subjectOf(st.Stream)
			for _, m := range st.Messages {
				b.deliver(ctx, cfg, subject, m, 1, handler)
			}
		}
	}
	return ctx.Err()
}

// reclaim redelivers pending entries idle for at least minIdle. An empty owner claims from
// every instance of the group. Entries past MaxDeliver are dead-lettered instead.
func (b *Bus) reclaim(ctx context.Context, cfg domain.ConsumerConfig, subject domain.Subject, owner string, minIdle time.Duration, handler domain.MessageHandler) error {
	from := "-"
	for ctx.Err() == nil {
		n, last, err := b.reclaimPage(ctx, cfg, subject, owner, minIdle, from, handler)
		if err != nil {
			return err
		}
		if n < b.batchSize {
			return nil
		}
		from = nextID(last)
	}
	return nil
}

// reclaimPage claims and delivers up to batchSize pending entries starting at from.
// It returns the number of pending entries seen and the id of the last one.
func (b *Bus) reclaimPage(ctx context.Context, cfg domain.ConsumerConfig, subject domain.Subject, owner string, minIdle time.Duration, from string, handler domain.MessageHandler) (int64, string, error) {
	key := b.keys.subject(subject)
	pending, err := b.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream:   key,
		Group:    cfg.Durable,
		Idle:     minIdle,
		Start:    from,
		End:      "+",
		Count:    b.batchSize,
		Consumer: owner,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, "", nil
	}
	if err != nil {
		return 0, "", fmt.Errorf("failed to XPENDING %s: %w", key, err)
	}
	if len(pending) == 0 {
		return 0, "", nil
	}
	last := pending[len(pending)-1].ID

	attempts := make(map[string]int, len(pending))
	var claim []string
	for _, p := range pending {
		if cfg.MaxDeliver > 0 && p.RetryCount >= int64(cfg.MaxDeliver) {
			if err := b.deadLetterByID(ctx, cfg, subject, p.ID, int(p.RetryCount)); err != nil {
				b.logger.Error("failed to dead-letter exhausted message", "message_id", p.ID, "error", err)
			}
			continue
		}
		attempts[p.ID] = int(p.RetryCount) + 1
		claim = append(claim, p.ID)
	}
	if len(claim) == 0 {
		return int64(len(pending)), last, nil
	}

	msgs, err := b.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   key,
		Group:    cfg.Durable,
		Consumer: b.consumerName,
		MinIdle:  minIdle,
		Messages: claim,
	}).Result()
	if err != nil {
		return 0, "", fmt.Errorf("failed to XCLAIM on %s: %w", key, err)
	}
	for _, m := range msgs {
		b.deliver(ctx, cfg, subject, m, attempts[m.ID], handler)
	}
	return int64(len(pending)), last, nil
}

func (b *Bus) deliver(ctx context.Context, cfg domain.ConsumerConfig, subject domain.Subject, m redis.XMessage, attempt int, handler domain.MessageHandler) {
	key := b.keys.subject(subject)
	msg, ok := toMessage(subject, m, attempt)
	if !ok {
		b.logger.Warn("invalid message format in stream, dead-lettering", "subject", subject, "message_id", m.ID)
		if err := b.deadLetter(ctx, cfg, subject, msg, errors.New("missing payload field")); err != nil {
			b.logger.Error("failed to dead-letter message", "message_id", m.ID, "error", err)
		}
		return
	}

	herr := handler(ctx, msg)
	// Settle even when shutdown began after the handler finished.
	sctx := context.WithoutCancel(ctx)
	switch {
	case herr == nil:
		if err := b.client.XAck(sctx, key, cfg.Durable, m.ID).Err(); err != nil {
			b.logger.Error("failed to XACK message", "subject", subject, "message_id", m.ID, "error", err)
		}
	case ctx.Err() != nil:
		// Left pending; replayed on the next start.
	case cfg.MaxDeliver > 0 && attempt >= cfg.MaxDeliver:
		if err := b.deadLetter(sctx, cfg, subject, msg, herr); err != nil {
			b.logger.Error("failed to dead-letter message", "message_id", m.ID, "error", err)
		}
	}
}

func (b *Bus) deadLetterByID(ctx context.Context, cfg domain.ConsumerConfig, subject domain.Subject, id string, attempts int) error {
	entries, err := b.client.XRangeN(ctx, b.keys.subject(subject), id, id, 1).Result()
	if err != nil {
		return fmt.Errorf("failed to XRANGE %s: %w", id, err)
	}
	if len(entries) == 0 {
		// Trimmed by retention; nothing left to keep.
		return b.client.XAck(ctx, b.keys.subject(subject), cfg.Durable, id).Err()
	}
	msg, _ := toMessage(subject, entries[0], attempts)
	return b.deadLetter(ctx, cfg, subject, msg, fmt.Errorf("exceeded %d deliveries", cfg.MaxDeliver))
}

// deadLetter copies msg to the dead-letter stream and acknowledges the original.
func (b *Bus) deadLetter(ctx context.Context, cfg domain.ConsumerConfig, subject domain.Subject, msg domain.Message, cause error) error {
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: b.keys.deadLetter(),
			Values: map[string]interface{}{
				"subject":          string(subject),
				"consumer":         cfg.Durable,
				"original_id":      msg.ID,
				"delivery_attempt": msg.DeliveryAttempt,
				"error":            cause.Error(),
				"payload":          msg.Payload,
				"failed_at":        b.now().UTC().Format(time.RFC3339Nano),
			},
		})
		pipe.XAck(ctx, b.keys.subject(subject), cfg.Durable, msg.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to execute dead-letter pipeline: %w", err)
	}

	b.logger.Warn("moved message to dead-letter stream",
		"consumer", cfg.Durable, "subject", subject, "message_id", msg.ID, "attempt", msg.DeliveryAttempt, "error", cause)
	if b.observer != nil {
		b.observer.ObserveDeadLetter(cfg.Durable, subject)
	}
	return nil
}

// EnforceRetention evicts entries older than the stream's max age from every subject key
// and the dead-letter stream, and returns the number removed.
func (b *Bus) EnforceRetention(ctx context.Context) (int64, error) {
	stream := b.streamConfig()
	if stream.MaxAge <= 0 {
		return 0, nil
	}
	cutoff := minID(b.now(), stream.MaxAge)

	keys := make([]string, 0, len(stream.Subjects)+1)
	for _, s := range stream.Subjects {
		keys = append(keys, b.keys.subject(s))
	}
	keys = append(keys, b.keys.deadLetter())

	var total int64
	for _, key := range keys {
		n, err := b.client.XTrimMinIDApprox(ctx, key, cutoff, 0).Result()
		if err != nil {
			return total, fmt.Errorf("failed to trim %s: %w", key, err)
		}
		total += n
	}
	return total, nil
}

// RunRetention enforces retention every interval until ctx is cancelled.
func (b *Bus) RunRetention(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := b.EnforceRetention(ctx)
			if err != nil {
				b.logger.Error("retention pass failed", "error", err)
				continue
			}
			if n > 0 {
				b.logger.Info("evicted expired entries", "count", n)
			}
		}
	}
}

// Close closes the underlying client.
func (b *Bus) Close() error {
	return b.client.Close()
}

func toMessage(subject domain.Subject, m redis.XMessage, attempt int) (domain.Message, bool) {
	msg := domain.Message{ID: m.ID, Subject: subject, DeliveryAttempt: attempt}
	if ts, ok := m.Values["published_at"].(string); ok {
		msg.PublishedAt, _ = time.Parse(time.RFC3339Nano, ts)
	}
	payload, ok := m.Values["payload"].(string)
	if !ok {
		return msg, false
	}
	msg.Payload = []byte(payload)
	return msg, true
}

func isBusyGroupError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

func isNetworkError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, redis.ErrClosed)
}
