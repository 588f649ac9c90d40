// Package app wires configuration to concrete adapters for the binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/V4T54L/firewatch/internal/adapter/bus/kafka"
	"github.com/V4T54L/firewatch/internal/adapter/bus/redisstream"
	"github.com/V4T54L/firewatch/internal/domain"
	"github.com/V4T54L/firewatch/internal/pkg/config"
	"github.com/redis/go-redis/v9"
)

// DeadLetterObserver is satisfied by the metrics adapter.
type DeadLetterObserver interface {
	ObserveDeadLetter(consumer string, subject domain.Subject)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Bus is the configured event bus plus the driver-specific extras the binaries need.
type Bus struct {
	domain.EventBus

	driver string
	redis  *redis.Client
	stream string
	logger *slog.Logger
}

// OpenBus connects the bus selected by BUS_DRIVER. observer may be nil.
func OpenBus(ctx context.Context, cfg *config.Config, logger *slog.Logger, observer DeadLetterObserver) (*Bus, error) {
	b := &Bus{driver: cfg.BusDriver, stream: cfg.StreamName, logger: logger}

	switch cfg.BusDriver {
	case "kafka":
		var obs kafka.DeadLetterObserver
		if observer != nil {
			obs = observer
		}
		kb, err := kafka.NewBus(cfg.KafkaBrokers, cfg.StreamName, logger, obs)
		if err != nil {
			return nil, err
		}
		b.EventBus = kb

	default:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		b.redis = redis.NewClient(opts)

		var obs redisstream.DeadLetterObserver
		if observer != nil {
			obs = observer
		}
		b.EventBus = redisstream.NewBus(b.redis, logger, redisstream.Options{
			Stream:       cfg.StreamName,
			ConsumerName: ConsumerName(cfg),
			BatchSize:    cfg.ConsumerBatchSize,
			Block:        cfg.ConsumerBlock,
			Observer:     obs,
		})
	}

	if err := b.Ping(ctx); err != nil {
		b.Close()
		return nil, err
	}
	logger.Info("connected to event bus", "driver", b.driver, "stream", cfg.StreamName)
	return b, nil
}

// Ping reports whether the bus is reachable.
func (b *Bus) Ping(ctx context.Context) error {
	if p, ok := b.EventBus.(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Admin returns the bus administration repository, or nil when the driver has none.
func (b *Bus) Admin() domain.BusAdminRepository {
	if b.redis == nil {
		return nil
	}
	return redisstream.NewAdminRepository(b.redis, b.logger, b.stream)
}

// RunRetention trims expired entries every interval. Kafka enforces retention.ms on the
// broker, so for it this only waits for ctx.
func (b *Bus) RunRetention(ctx context.Context, interval time.Duration) error {
	if rb, ok := b.EventBus.(*redisstream.Bus); ok {
		return rb.RunRetention(ctx, interval)
	}
	<-ctx.Done()
	return nil
}

// ConsumerName identifies this process among the members of each consumer group.
func ConsumerName(cfg *config.Config) string {
	if cfg.ConsumerName != "" {
		return cfg.ConsumerName
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "firewatch"
	}
	return host
}
