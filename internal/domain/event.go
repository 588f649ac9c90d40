package domain

import (
	"context"
	"time"
)

// Subject is a named channel on the event bus. The string values are part of the
// wire contract and must match exactly across producers and consumers.
type Subject string

const (
	SubjectFireDetected      Subject = "fire.detected"
	SubjectFireSpread        Subject = "fire.spread"
	SubjectFireExtinguished  Subject = "fire.extinguished"
	SubjectFireRiskPredicted Subject = "fire.risk.predicted"
	SubjectAlertCreated      Subject = "alert.created"
	SubjectAssignmentCreated Subject = "assignment.created"
	SubjectEvacuationUpdated Subject = "evacuation.updated"

	// SubjectDeadLetter receives messages that exceeded their consumer's delivery budget.
	// It is not part of the interop subject set.
	SubjectDeadLetter Subject = "events.deadletter"
)

// AllSubjects returns the interop subjects in a fixed order.
func AllSubjects() []Subject {
	return []Subject{
		SubjectFireDetected,
		SubjectFireSpread,
		SubjectFireExtinguished,
		SubjectFireRiskPredicted,
		SubjectAlertCreated,
		SubjectAssignmentCreated,
		SubjectEvacuationUpdated,
	}
}

// Valid reports whether s is one of the interop subjects.
func (s Subject) Valid() bool {
	for _, known := range AllSubjects() {
		if s == known {
			return true
		}
	}
	return false
}

func (s Subject) String() string { return string(s) }

const (
	DefaultStreamName   = "FIRE_EVENTS"
	DefaultStreamMaxAge = 7 * 24 * time.Hour
)

// StreamConfig describes the single durable log holding every subject.
type StreamConfig struct {
	Name     string
	Subjects []Subject
	MaxAge   time.Duration
}

// DefaultStreamConfig returns a stream carrying all interop subjects with 7-day retention.
func DefaultStreamConfig(name string) StreamConfig {
	if name == "" {
		name = DefaultStreamName
	}
	return StreamConfig{
		Name:     name,
		Subjects: AllSubjects(),
		MaxAge:   DefaultStreamMaxAge,
	}
}

// Contains reports whether the stream carries subject.
func (c StreamConfig) Contains(subject Subject) bool {
	for _, s := range c.Subjects {
		if s == subject {
			return true
		}
	}
	return false
}

// ConsumerConfig describes a durable, explicitly-acknowledged cursor over a subset of subjects.
// New consumers start from the earliest retained message.
type ConsumerConfig struct {
	Durable        string
	FilterSubjects []Subject
	MaxDeliver     int
	AckWait        time.Duration
}

// Filters reports whether the consumer receives subject.
func (c ConsumerConfig) Filters(subject Subject) bool {
	for _, s := range c.FilterSubjects {
		if s == subject {
			return true
		}
	}
	return false
}

const (
	ConsumerFireDetected = "fireDetected-consumer"
	ConsumerNotification = "notification-consumer"
	ConsumerAlert        = "alert-consumer"
	ConsumerAssignment   = "assignment-consumer"
)

// DefaultConsumers returns the four fan-out consumers with the given delivery policy.
func DefaultConsumers(maxDeliver int, ackWait time.Duration) []ConsumerConfig {
	mk := func(name string, subjects ...Subject) ConsumerConfig {
		return ConsumerConfig{
			Durable:        name,
			FilterSubjects: subjects,
			MaxDeliver:     maxDeliver,
			AckWait:        ackWait,
		}
	}
	return []ConsumerConfig{
		mk(ConsumerFireDetected, SubjectFireDetected),
		mk(ConsumerNotification, SubjectFireRiskPredicted),
		mk(ConsumerAlert, SubjectAlertCreated, SubjectEvacuationUpdated),
		mk(ConsumerAssignment, SubjectAssignmentCreated, SubjectFireSpread),
	}
}

// Message is a single delivery of a published event to a consumer.
type Message struct {
	ID              string
	Subject         Subject
	Payload         []byte
	DeliveryAttempt int
	PublishedAt     time.Time
}

// PubAck confirms that the bus durably stored a published message.
type PubAck struct {
	Stream   string
	Subject  Subject
	Sequence string
}

// MessageHandler processes one delivery. Returning nil acknowledges the message;
// returning an error leaves it unacknowledged so the bus redelivers it.
type MessageHandler func(ctx context.Context, msg Message) error

// EventPublisher writes payloads to subjects.
type EventPublisher interface {
	Publish(ctx context.Context, subject Subject, payload []byte) (PubAck, error)
}

// EventBus is the durable publish/subscribe log.
type EventBus interface {
	EventPublisher

	// EnsureStream creates the stream or leaves a matching one untouched.
	EnsureStream(ctx context.Context, cfg StreamConfig) error

	// EnsureConsumer creates the durable consumer or leaves a matching one untouched.
	EnsureConsumer(ctx context.Context, cfg ConsumerConfig) error

	// Subscribe blocks, delivering messages for the consumer to handler until ctx is done.
	Subscribe(ctx context.Context, cfg ConsumerConfig, handler MessageHandler) error

	Close() error
}
