package redisstream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/V4T54L/firewatch/internal/domain"
	"github.com/redis/go-redis/v9"
)

func newTestAdmin(t *testing.T) (*AdminRepository, *redis.Client) {
	t.Helper()
	_, client := newTestBus(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAdminRepository(client, logger, "TEST"), client
}

func addDeadLetter(t *testing.T, client *redis.Client, subject string) string {
	t.Helper()
	id, err := client.XAdd(context.Background(), &redis.XAddArgs{
		Stream: "TEST:deadletter",
		Values: map[string]interface{}{
			"subject":          subject,
			"consumer":         domain.ConsumerAlert,
			"original_id":      "1-0",
			"delivery_attempt": "5",
			"error":            "boom",
			"payload":          `{"fire_id":"F1"}`,
		},
	}).Result()
	if err != nil {
		t.Fatalf("xadd dead letter: %v", err)
	}
	return id
}

func TestAdminRepository_ReplayDeadLetter(t *testing.T) {
	tests := []struct {
		name        string
		subject     string
		wantErr     error
		wantDeleted bool
	}{
		{name: "known subject is republished", subject: string(domain.SubjectAlertCreated), wantDeleted: true},
		{name: "empty subject is rejected", subject: "", wantErr: domain.ErrUnknownSubject},
		{name: "foreign subject is rejected", subject: "fire.unknown", wantErr: domain.ErrUnknownSubject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			admin, client := newTestAdmin(t)
			ctx := context.Background()
			id := addDeadLetter(t, client, tt.subject)

			ack, err := admin.ReplayDeadLetter(ctx, id)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
			} else {
				if err != nil {
					t.Fatalf("replay: %v", err)
				}
				if ack.Subject != domain.SubjectAlertCreated || ack.Sequence == "" {
					t.Errorf("unexpected ack %+v", ack)
				}
				entries, err := client.XRange(ctx, "TEST:alert.created", "-", "+").Result()
				if err != nil {
					t.Fatalf("xrange subject: %v", err)
				}
				if len(entries) != 1 || entries[0].Values["payload"] != `{"fire_id":"F1"}` {
					t.Errorf("unexpected republished entries %+v", entries)
				}
			}

			n, err := client.XLen(ctx, "TEST:deadletter").Result()
			if err != nil {
				t.Fatalf("xlen deadletter: %v", err)
			}
			if deleted := n == 0; deleted != tt.wantDeleted {
				t.Errorf("dead letter deleted = %v, want %v", deleted, tt.wantDeleted)
			}
		})
	}
}

func TestAdminRepository_ReplayMissingDeadLetter(t *testing.T) {
	admin, _ := newTestAdmin(t)

	_, err := admin.ReplayDeadLetter(context.Background(), "42-0")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
