package redisstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/V4T54L/firewatch/internal/domain"
	"github.com/redis/go-redis/v9"
)

// AdminRepository implements the domain.BusAdminRepository interface for Redis.
type AdminRepository struct {
	client *redis.Client
	logger *slog.Logger
	keys   keyspace
}

// NewAdminRepository creates a new Redis admin repository for stream.
func NewAdminRepository(client *redis.Client, logger *slog.Logger, stream string) *AdminRepository {
	return &AdminRepository{
		client: client,
		logger: logger.With("component", "redis_admin", "stream", stream),
		keys:   keyspace(stream),
	}
}

// ListConsumers reports every durable consumer on every subject it filters.
func (r *AdminRepository) ListConsumers(ctx context.Context) ([]domain.ConsumerGroupInfo, error) {
	names, err := r.client.SMembers(ctx, r.keys.consumers()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list consumers: %w", err)
	}
	slices.Sort(names)

	var result []domain.ConsumerGroupInfo
	for _, name := range names {
		filter, err := r.client.HGet(ctx, r.keys.consumer(name), "filter").Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("failed to read consumer %s: %w", name, err)
		}
		subjects := splitSubjects(filter)
		for _, s := range subjects {
			groups, err := r.client.XInfoGroups(ctx, r.keys.subject(s)).Result()
			if err != nil {
				return nil, fmt.Errorf("failed to get group info for %s: %w", s, err)
			}
			for _, g := range groups {
				if g.Name != name {
					continue
				}
				result = append(result, domain.ConsumerGroupInfo{
					Name:            g.Name,
					Subject:         s,
					FilterSubjects:  subjects,
					Consumers:       g.Consumers,
					Pending:         g.Pending,
					LastDeliveredID: g.LastDeliveredID,
				})
			}
		}
	}
	return result, nil
}

// GetPendingSummary retrieves a summary of pending messages for a consumer on one subject.
func (r *AdminRepository) GetPendingSummary(ctx context.Context, subject domain.Subject, consumer string) (*domain.PendingMessageSummary, error) {
	pending, err := r.client.XPending(ctx, r.keys.subject(subject), consumer).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get pending summary for %s, consumer %s: %w", subject, consumer, err)
	}

	return &domain.PendingMessageSummary{
		Total:          pending.Count,
		FirstMessageID: pending.Lower,
		LastMessageID:  pending.Higher,
		ConsumerTotals: pending.Consumers,
	}, nil
}

// GetPendingMessages retrieves detailed information about pending messages.
func (r *AdminRepository) GetPendingMessages(ctx context.Context, subject domain.Subject, consumer, startID string, count int64) ([]domain.PendingMessageDetail, error) {
	messages, err := r.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: r.keys.subject(subject),
		Group:  consumer,
		Start:  startID,
		End:    "+",
		Count:  count,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get pending messages: %w", err)
	}

	result := make([]domain.PendingMessageDetail, len(messages))
	for i, m := range messages {
		result[i] = domain.PendingMessageDetail{
			ID:         m.ID,
			Consumer:   m.Consumer,
			IdleTime:   m.Idle,
			RetryCount: m.RetryCount,
		}
	}
	return result, nil
}

// AcknowledgeMessages acknowledges messages on behalf of a consumer.
func (r *AdminRepository) AcknowledgeMessages(ctx context.Context, subject domain.Subject, consumer string, messageIDs ...string) (int64, error) {
	if len(messageIDs) == 0 {
		return 0, errors.New("at least one message ID is required")
	}
	return r.client.XAck(ctx, r.keys.subject(subject), consumer, messageIDs...).Result()
}

// ListDeadLetters returns up to count dead letters, newest first.
func (r *AdminRepository) ListDeadLetters(ctx context.Context, count int64) ([]domain.DeadLetter, error) {
	entries, err := r.client.XRevRangeN(ctx, r.keys.deadLetter(), "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read dead letters: %w", err)
	}
	result := make([]domain.DeadLetter, 0, len(entries))
	for _, e := range entries {
		result = append(result, toDeadLetter(e))
	}
	return result, nil
}

// ReplayDeadLetter republishes a dead letter to its original subject and deletes it.
func (r *AdminRepository) ReplayDeadLetter(ctx context.Context, id string) (domain.PubAck, error) {
	entries, err := r.client.XRangeN(ctx, r.keys.deadLetter(), id, id, 1).Result()
	if err != nil {
		return domain.PubAck{}, fmt.Errorf("failed to read dead letter %s: %w", id, err)
	}
	if len(entries) == 0 {
		return domain.PubAck{}, fmt.Errorf("dead letter %s: %w", id, domain.ErrNotFound)
	}
	dl := toDeadLetter(entries[0])
	if !dl.Subject.Valid() {
		return domain.PubAck{}, fmt.Errorf("dead letter %s: %w: %q", id, domain.ErrUnknownSubject, dl.Subject)
	}

	var add *redis.StringCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		add = pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: r.keys.subject(dl.Subject),
			Values: map[string]interface{}{
				"payload":      dl.Payload,
				"published_at": time.Now().UTC().Format(time.RFC3339Nano),
			},
		})
		pipe.XDel(ctx, r.keys.deadLetter(), id)
		return nil
	})
	if err != nil {
		return domain.PubAck{}, fmt.Errorf("failed to replay dead letter %s: %w", id, err)
	}

	r.logger.Info("replayed dead letter", "id", id, "subject", dl.Subject, "new_id", add.Val())
	return domain.PubAck{Stream: string(r.keys), Subject: dl.Subject, Sequence: add.Val()}, nil
}

func toDeadLetter(e redis.XMessage) domain.DeadLetter {
	str := func(k string) string {
		v, _ := e.Values[k].(string)
		return v
	}
	dl := domain.DeadLetter{
		ID:         e.ID,
		Subject:    domain.Subject(str("subject")),
		Consumer:   str("consumer"),
		OriginalID: str("original_id"),
		Error:      str("error"),
		Payload:    []byte(str("payload")),
	}
	dl.DeliveryAttempt, _ = strconv.Atoi(str("delivery_attempt"))
	dl.FailedAt, _ = time.Parse(time.RFC3339Nano, str("failed_at"))
	return dl
}
