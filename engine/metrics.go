package engine

import "time"

// MetricsCollector defines the interface for metrics collection
type MetricsCollector interface {
	// Session metrics
	RecordSessionOpened()
	RecordSessionClosed()

	// Attempt metrics
	RecordAttemptStarted(mechanism string)
	RecordAttemptFinished(mechanism, outcome string, duration time.Duration)
	RecordChallengeIssued(mechanism string)
}

// NoOpMetricsCollector is a MetricsCollector that does nothing
type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) RecordSessionOpened()                                 {}
func (NoOpMetricsCollector) RecordSessionClosed()                                 {}
func (NoOpMetricsCollector) RecordAttemptStarted(string)                          {}
func (NoOpMetricsCollector) RecordAttemptFinished(string, string, time.Duration)  {}
func (NoOpMetricsCollector) RecordChallengeIssued(string)                         {}
