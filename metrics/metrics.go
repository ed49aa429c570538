package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics for the AUTH engine. It
// implements the engine's MetricsCollector interface.
type Collector struct {
	// Session metrics
	SessionsActive prometheus.Gauge
	SessionsOpened prometheus.Counter
	SessionsClosed prometheus.Counter

	// Attempt metrics
	AttemptsStarted  *prometheus.CounterVec
	AttemptsFinished *prometheus.CounterVec
	ChallengesIssued *prometheus.CounterVec
	DialogueDuration *prometheus.HistogramVec
}

// NewCollector creates a metrics collector registered on reg. A nil
// reg uses the default registerer.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	if namespace == "" {
		namespace = "smtpauth"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of connections with a live auth session",
		}),
		SessionsOpened: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_opened_total",
			Help:      "Total auth sessions opened",
		}),
		SessionsClosed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_closed_total",
			Help:      "Total auth sessions closed",
		}),
		AttemptsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_started_total",
			Help:      "Total authentication attempts by mechanism",
		}, []string{"mechanism"}),
		AttemptsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_finished_total",
			Help:      "Total finished authentication attempts by mechanism and outcome",
		}, []string{"mechanism", "outcome"}),
		ChallengesIssued: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "challenges_issued_total",
			Help:      "Total 334 continuation challenges sent by mechanism",
		}, []string{"mechanism"}),
		DialogueDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dialogue_duration_seconds",
			Help:      "Duration of authentication dialogues",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mechanism"}),
	}
}

// RecordSessionOpened increments the session counters
func (c *Collector) RecordSessionOpened() {
	c.SessionsOpened.Inc()
	c.SessionsActive.Inc()
}

// RecordSessionClosed decrements the active session gauge
func (c *Collector) RecordSessionClosed() {
	c.SessionsClosed.Inc()
	c.SessionsActive.Dec()
}

// RecordAttemptStarted counts a new authentication attempt
func (c *Collector) RecordAttemptStarted(mechanism string) {
	c.AttemptsStarted.WithLabelValues(mechanism).Inc()
}

// RecordAttemptFinished counts a terminal attempt outcome
func (c *Collector) RecordAttemptFinished(mechanism, outcome string, duration time.Duration) {
	c.AttemptsFinished.WithLabelValues(mechanism, outcome).Inc()
	c.DialogueDuration.WithLabelValues(mechanism).Observe(duration.Seconds())
}

// RecordChallengeIssued counts a 334 continuation
func (c *Collector) RecordChallengeIssued(mechanism string) {
	c.ChallengesIssued.WithLabelValues(mechanism).Inc()
}
