package metrics

import (
	"testing"
	"time"

	"github.com/V4T54L/firewatch/internal/adapter/bus/kafka"
	"github.com/V4T54L/firewatch/internal/adapter/bus/redisstream"
	"github.com/V4T54L/firewatch/internal/adapter/repository/postgres"
	"github.com/V4T54L/firewatch/internal/domain"
	"github.com/V4T54L/firewatch/internal/usecase"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var (
	_ usecase.MetricsRecorder        = (*Metrics)(nil)
	_ redisstream.DeadLetterObserver = (*Metrics)(nil)
	_ kafka.DeadLetterObserver       = (*Metrics)(nil)
	_ postgres.CacheObserver         = (*Metrics)(nil)
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	t.Run("messages", func(t *testing.T) {
		m.ObserveMessage("alert-consumer", domain.SubjectAlertCreated, usecase.OutcomeAcked, 10*time.Millisecond)
		m.ObserveMessage("alert-consumer", domain.SubjectAlertCreated, usecase.OutcomeAcked, 20*time.Millisecond)
		m.ObserveMessage("alert-consumer", domain.SubjectAlertCreated, usecase.OutcomeRetry, time.Millisecond)

		got := testutil.ToFloat64(m.MessagesTotal.WithLabelValues("alert-consumer", "alert.created", "acked"))
		if got != 2 {
			t.Errorf("acked = %v, want 2", got)
		}
	})

	t.Run("records", func(t *testing.T) {
		m.ObserveRecords("alert", usecase.BatchResult{Attempted: 3, Succeeded: 2, Failed: 1})
		if got := testutil.ToFloat64(m.RecordsTotal.WithLabelValues("alert", "failed")); got != 1 {
			t.Errorf("failed = %v, want 1", got)
		}
		if got := testutil.ToFloat64(m.RecordsTotal.WithLabelValues("alert", "succeeded")); got != 2 {
			t.Errorf("succeeded = %v, want 2", got)
		}
	})

	t.Run("dispatch and dead letters", func(t *testing.T) {
		m.ObserveDispatch(usecase.DispatchNoResponder)
		m.ObserveDeadLetter("notification-consumer", domain.SubjectFireRiskPredicted)
		if got := testutil.ToFloat64(m.DispatchTotal.WithLabelValues("no_responder")); got != 1 {
			t.Errorf("no_responder = %v, want 1", got)
		}
		if got := testutil.ToFloat64(m.DeadLetterTotal.WithLabelValues("notification-consumer", "fire.risk.predicted")); got != 1 {
			t.Errorf("dead letters = %v, want 1", got)
		}
	})

	t.Run("cache", func(t *testing.T) {
		m.ObserveCacheLookup("municipalities", true)
		m.ObserveCacheLookup("municipalities", false)
		m.ObserveCacheLookup("municipalities", true)
		if got := testutil.ToFloat64(m.CacheLookups.WithLabelValues("municipalities", "hit")); got != 2 {
			t.Errorf("hits = %v, want 2", got)
		}
	})
}
