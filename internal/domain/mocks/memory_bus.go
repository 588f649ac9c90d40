package mocks

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/V4T54L/firewatch/internal/domain"
)

// DeadLetter records a message that exceeded its consumer's delivery budget.
type DeadLetter struct {
	Consumer string
	Message  domain.Message
	Err      error
}

type memConsumer struct {
	cfg domain.ConsumerConfig
	// next indexes the first log entry not yet delivered.
	next int
	// pending holds delivered but unacknowledged messages, oldest first.
	pending []domain.Message
}

// MemoryBus is an in-process domain.EventBus with explicit acknowledgment. A failed delivery
// is retried until the consumer's MaxDeliver, then dead-lettered. Consumer state survives
// across Subscribe calls, so a second Subscribe behaves like a restarted process.
type MemoryBus struct {
	mu          sync.Mutex
	stream      *domain.StreamConfig
	log         []domain.Message
	consumers   map[string]*memConsumer
	notify      chan struct{}
	DeadLetters []DeadLetter
	PublishErr  error
	EnsureCalls int
	now         func() time.Time
}

// NewMemoryBus creates an empty bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		consumers: make(map[string]*memConsumer),
		notify:    make(chan struct{}),
		now:       time.Now,
	}
}

func (b *MemoryBus) EnsureStream(ctx context.Context, cfg domain.StreamConfig) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.EnsureCalls++
	if b.stream == nil {
		c := cfg
		b.stream = &c
	}
	return nil
}

func (b *MemoryBus) EnsureConsumer(ctx context.Context, cfg domain.ConsumerConfig) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.EnsureCalls++
	if existing, ok := b.consumers[cfg.Durable]; ok {
		if !slices.Equal(existing.cfg.FilterSubjects, cfg.FilterSubjects) {
			return fmt.Errorf("%w: %s", domain.ErrConsumerConfigMismatch, cfg.Durable)
		}
		return nil
	}
	b.consumers[cfg.Durable] = &memConsumer{cfg: cfg}
	return nil
}

// Consumers returns the names of the configured consumers, sorted.
func (b *MemoryBus) Consumers() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.consumers))
	for n := range b.consumers {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

func (b *MemoryBus) Publish(ctx context.Context, subject domain.Subject, payload []byte) (domain.PubAck, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.PublishErr != nil {
		return domain.PubAck{}, b.PublishErr
	}
	if b.stream != nil && !b.stream.Contains(subject) {
		return domain.PubAck{}, fmt.Errorf("%w: %s", domain.ErrUnknownSubject, subject)
	}
	seq := strconv.Itoa(len(b.log) + 1)
	b.log = append(b.log, domain.Message{
		ID:          seq,
		Subject:     subject,
		Payload:     append([]byte(nil), payload...),
		PublishedAt: b.now(),
	})
	close(b.notify)
	b.notify = make(chan struct{})

	name := "memory"
	if b.stream != nil {
		name = b.stream.Name
	}
	return domain.PubAck{Stream: name, Subject: subject, Sequence: seq}, nil
}

// Published returns every message published on subject.
func (b *MemoryBus) Published(subject domain.Subject) []domain.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.Message
	for _, m := range b.log {
		if m.Subject == subject {
			out = append(out, m)
		}
	}
	return out
}

// Pending returns the consumer's delivered but unacknowledged messages.
func (b *MemoryBus) Pending(durable string) []domain.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.consumers[durable]
	if !ok {
		return nil
	}
	return append([]domain.Message(nil), c.pending...)
}

// Deliver hands the consumer's next message to handler without acknowledging it,
// simulating a crash mid-handler. It reports whether a message was available.
func (b *MemoryBus) Deliver(ctx context.Context, durable string, handler domain.MessageHandler) (bool, error) {
	msg, ok, err := b.claim(durable)
	if err != nil || !ok {
		return false, err
	}
	_ = handler(ctx, msg)
	return true, nil
}

// Drain delivers every currently available message for the consumer, pending redeliveries
// first, and returns the number of deliveries made.
func (b *MemoryBus) Drain(ctx context.Context, durable string, handler domain.MessageHandler) (int, error) {
	deliveries := 0
	for ctx.Err() == nil {
		msg, ok, err := b.claim(durable)
		if err != nil {
			return deliveries, err
		}
		if !ok {
			return deliveries, nil
		}
		deliveries++
		if retained := b.settle(durable, msg, handler(ctx, msg)); retained && msg.DeliveryAttempt >= b.maxDeliver(durable) {
			return deliveries, nil
		}
	}
	return deliveries, ctx.Err()
}

// Subscribe drains the consumer and then waits for new publishes until ctx is done.
func (b *MemoryBus) Subscribe(ctx context.Context, cfg domain.ConsumerConfig, handler domain.MessageHandler) error {
	for {
		b.mu.Lock()
		wait := b.notify
		b.mu.Unlock()

		if _, err := b.Drain(ctx, cfg.Durable, handler); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}
	}
}

func (b *MemoryBus) Close() error { return nil }

// claim picks the oldest pending message, or else the next matching message from the log.
func (b *MemoryBus) claim(durable string) (domain.Message, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.consumers[durable]
	if !ok {
		return domain.Message{}, false, fmt.Errorf("consumer %s: %w", durable, domain.ErrNotFound)
	}

	if len(c.pending) > 0 {
		c.pending[0].DeliveryAttempt++
		return c.pending[0], true, nil
	}

	for c.next < len(b.log) {
		m := b.log[c.next]
		c.next++
		if !c.cfg.Filters(m.Subject) {
			continue
		}
		m.DeliveryAttempt = 1
		c.pending = append(c.pending, m)
		return m, true, nil
	}
	return domain.Message{}, false, nil
}

// settle acknowledges msg on success or once its delivery budget is spent, and reports
// whether it stays pending.
func (b *MemoryBus) settle(durable string, msg domain.Message, err error) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.consumers[durable]
	if err != nil && (c.cfg.MaxDeliver <= 0 || msg.DeliveryAttempt < c.cfg.MaxDeliver) {
		return true
	}
	if err != nil {
		b.DeadLetters = append(b.DeadLetters, DeadLetter{Consumer: durable, Message: msg, Err: err})
	}
	c.pending = slices.DeleteFunc(c.pending, func(m domain.Message) bool { return m.ID == msg.ID })
	return false
}

// maxDeliver is the consumer's delivery budget; unbounded consumers retry once per Drain.
func (b *MemoryBus) maxDeliver(durable string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n := b.consumers[durable].cfg.MaxDeliver; n > 0 {
		return n
	}
	return 0
}
