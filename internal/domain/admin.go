package domain

import (
	"context"
	"time"
)

// ConsumerGroupInfo describes a durable consumer on one subject.
type ConsumerGroupInfo struct {
	Name            string    `json:"name"`
	Subject         Subject   `json:"subject"`
	FilterSubjects  []Subject `json:"filter_subjects,omitempty"`
	Consumers       int64     `json:"consumers"`
	Pending         int64     `json:"pending"`
	LastDeliveredID string    `json:"last_delivered_id"`
}

// PendingMessageSummary summarizes unacknowledged deliveries of a consumer on one subject.
type PendingMessageSummary struct {
	Total          int64            `json:"total"`
	FirstMessageID string           `json:"first_message_id,omitempty"`
	LastMessageID  string           `json:"last_message_id,omitempty"`
	ConsumerTotals map[string]int64 `json:"consumer_totals,omitempty"`
}

// PendingMessageDetail is a single unacknowledged delivery.
type PendingMessageDetail struct {
	ID         string        `json:"id"`
	Consumer   string        `json:"consumer"`
	IdleTime   time.Duration `json:"idle_time_ms"`
	RetryCount int64         `json:"retry_count"`
}

// DeadLetter is a message that exhausted its consumer's delivery budget.
type DeadLetter struct {
	ID              string    `json:"id"`
	Subject         Subject   `json:"subject"`
	Consumer        string    `json:"consumer"`
	OriginalID      string    `json:"original_id"`
	DeliveryAttempt int       `json:"delivery_attempt"`
	Error           string    `json:"error"`
	Payload         []byte    `json:"payload"`
	FailedAt        time.Time `json:"failed_at"`
}

// BusAdminRepository exposes operational views over the bus.
type BusAdminRepository interface {
	ListConsumers(ctx context.Context) ([]ConsumerGroupInfo, error)
	GetPendingSummary(ctx context.Context, subject Subject, consumer string) (*PendingMessageSummary, error)
	GetPendingMessages(ctx context.Context, subject Subject, consumer, startID string, count int64) ([]PendingMessageDetail, error)
	AcknowledgeMessages(ctx context.Context, subject Subject, consumer string, messageIDs ...string) (int64, error)
	ListDeadLetters(ctx context.Context, count int64) ([]DeadLetter, error)
	ReplayDeadLetter(ctx context.Context, id string) (PubAck, error)
}
