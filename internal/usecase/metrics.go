package usecase

import (
	"time"

	"github.com/V4T54L/firewatch/internal/domain"
)

// Message outcomes reported to MetricsRecorder.
const (
	OutcomeAcked = "acked"
	OutcomeRetry = "retry"
)

// Dispatch outcomes reported to MetricsRecorder.
const (
	DispatchAssigned      = "assigned"
	DispatchFireNotFound  = "fire_not_found"
	DispatchNoResponder   = "no_responder"
	DispatchTimeout       = "timeout"
	DispatchPublishFailed = "publish_failed"
	DispatchError         = "error"
)

// MetricsRecorder receives operational measurements from the use cases.
type MetricsRecorder interface {
	ObserveMessage(consumer string, subject domain.Subject, outcome string, elapsed time.Duration)
	ObserveRecords(kind string, result BatchResult)
	ObserveDispatch(outcome string)
}

// NoOpMetrics discards all measurements.
type NoOpMetrics struct{}

func (NoOpMetrics) ObserveMessage(string, domain.Subject, string, time.Duration) {}
func (NoOpMetrics) ObserveRecords(string, BatchResult) {}
func (NoOpMetrics) ObserveDispatch(string) {}

func orNoOp(m MetricsRecorder) MetricsRecorder {
	if m == nil {
		return NoOpMetrics{}
	}
	return m
}
