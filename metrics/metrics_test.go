package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorRecordsSessions(t *testing.T) {
	collector := NewCollector("test", prometheus.NewRegistry())

	collector.RecordSessionOpened()
	collector.RecordSessionOpened()
	collector.RecordSessionClosed()

	if got := testutil.ToFloat64(collector.SessionsOpened); got != 2 {
		t.Errorf("sessions opened = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.SessionsClosed); got != 1 {
		t.Errorf("sessions closed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.SessionsActive); got != 1 {
		t.Errorf("sessions active = %v, want 1", got)
	}
}

func TestCollectorRecordsAttempts(t *testing.T) {
	collector := NewCollector("test", prometheus.NewRegistry())

	collector.RecordAttemptStarted("PLAIN")
	collector.RecordAttemptStarted("PLAIN")
	collector.RecordAttemptStarted("CRAM-MD5")
	collector.RecordChallengeIssued("CRAM-MD5")
	collector.RecordAttemptFinished("PLAIN", "authenticated", 2*time.Millisecond)
	collector.RecordAttemptFinished("PLAIN", "rejected", time.Millisecond)

	if got := testutil.ToFloat64(collector.AttemptsStarted.WithLabelValues("PLAIN")); got != 2 {
		t.Errorf("PLAIN attempts = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.AttemptsFinished.WithLabelValues("PLAIN", "authenticated")); got != 1 {
		t.Errorf("authenticated outcomes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.ChallengesIssued.WithLabelValues("CRAM-MD5")); got != 1 {
		t.Errorf("challenges issued = %v, want 1", got)
	}
}

func TestCollectorNamespaceDefault(t *testing.T) {
	collector := NewCollector("", prometheus.NewRegistry())
	collector.RecordSessionOpened()
	if got := testutil.ToFloat64(collector.SessionsOpened); got != 1 {
		t.Errorf("default-namespace counter = %v, want 1", got)
	}
}
