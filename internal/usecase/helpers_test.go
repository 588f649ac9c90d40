package usecase

import (
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/V4T54L/firewatch/internal/domain"
	"github.com/V4T54L/firewatch/internal/events"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var fixedNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return prefix + "-" + strconv.Itoa(n)
	}
}

func encodeMessage(t *testing.T, p events.Payload) domain.Message {
	t.Helper()
	data, err := events.Encode(p)
	if err != nil {
		t.Fatalf("encode %s: %v", p.Subject(), err)
	}
	return domain.Message{ID: "1-0", Subject: p.Subject(), Payload: data, DeliveryAttempt: 1}
}

type recordingMetrics struct {
	mu         sync.Mutex
	messages   map[string]int
	records    map[string]BatchResult
	dispatches []string
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		messages: make(map[string]int),
		records:  make(map[string]BatchResult),
	}
}

func (m *recordingMetrics) ObserveMessage(consumer string, subject domain.Subject, outcome string, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[outcome]++
}

func (m *recordingMetrics) ObserveRecords(kind string, result BatchResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.records[kind]
	r.Add(result)
	m.records[kind] = r
}

func (m *recordingMetrics) ObserveDispatch(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatches = append(m.dispatches, outcome)
}
