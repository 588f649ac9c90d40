package metrics

import (
	"time"

	"github.com/V4T54L/firewatch/internal/domain"
	"github.com/V4T54L/firewatch/internal/usecase"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "firewatch"

// Metrics holds all Prometheus metrics for the fire-response services.
type Metrics struct {
	MessagesTotal   *prometheus.CounterVec
	MessageDuration *prometheus.HistogramVec
	RecordsTotal    *prometheus.CounterVec
	DispatchTotal   *prometheus.CounterVec
	DeadLetterTotal *prometheus.CounterVec
	CacheLookups    *prometheus.CounterVec
}

// New registers the metrics with reg. Pass prometheus.DefaultRegisterer in binaries and a
// fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		MessagesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "messages_total",
			Help:      "Total number of handled messages by consumer, subject and outcome.",
		}, []string{"consumer", "subject", "outcome"}), // outcome: acked, retry
		MessageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "message_duration_seconds",
			Help:      "Time spent handling one message.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"consumer"}),
		RecordsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "records_total",
			Help:      "Total number of fan-out records by kind and result.",
		}, []string{"kind", "result"}), // result: succeeded, failed, skipped
		DispatchTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "requests_total",
			Help:      "Total number of dispatch requests by outcome.",
		}, []string{"outcome"}),
		DeadLetterTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "dead_letters_total",
			Help:      "Total number of messages moved to the dead-letter subject.",
		}, []string{"consumer", "subject"}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "cache_lookups_total",
			Help:      "Total number of repository cache lookups by cache and result.",
		}, []string{"cache", "result"}), // result: hit, miss
	}
}

func (m *Metrics) ObserveMessage(consumer string, subject domain.Subject, outcome string, elapsed time.Duration) {
	m.MessagesTotal.WithLabelValues(consumer, string(subject), outcome).Inc()
	m.MessageDuration.WithLabelValues(consumer).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveRecords(kind string, result usecase.BatchResult) {
	m.RecordsTotal.WithLabelValues(kind, "succeeded").Add(float64(result.Succeeded))
	m.RecordsTotal.WithLabelValues(kind, "failed").Add(float64(result.Failed))
	m.RecordsTotal.WithLabelValues(kind, "skipped").Add(float64(result.Skipped))
}

func (m *Metrics) ObserveDispatch(outcome string) {
	m.DispatchTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveDeadLetter(consumer string, subject domain.Subject) {
	m.DeadLetterTotal.WithLabelValues(consumer, string(subject)).Inc()
}

func (m *Metrics) ObserveCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(cache, result).Inc()
}
