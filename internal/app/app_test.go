package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/V4T54L/firewatch/internal/domain"
	"github.com/V4T54L/firewatch/internal/pkg/config"
	"github.com/alicebob/miniredis/v2"
)

func TestOpenBus_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{
		BusDriver:    "redis",
		RedisURL:     "redis://" + mr.Addr() + "/0",
		StreamName:   domain.DefaultStreamName,
		ConsumerName: "worker-1",
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	b, err := OpenBus(context.Background(), cfg, logger, nil)
	if err != nil {
		t.Fatalf("OpenBus() error = %v", err)
	}
	defer b.Close()

	if b.Admin() == nil {
		t.Error("expected a bus admin repository for redis")
	}
	if err := b.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestOpenBus_RedisUnreachable(t *testing.T) {
	cfg := &config.Config{BusDriver: "redis", RedisURL: "redis://127.0.0.1:1/0", StreamName: "S"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if _, err := OpenBus(context.Background(), cfg, logger, nil); err == nil {
		t.Fatal("expected an error for an unreachable redis")
	}
}

func TestConsumerName(t *testing.T) {
	if got := ConsumerName(&config.Config{ConsumerName: "explicit"}); got != "explicit" {
		t.Errorf("ConsumerName() = %q, want explicit", got)
	}
	if got := ConsumerName(&config.Config{}); got == "" {
		t.Error("ConsumerName() fell back to an empty name")
	}
}
