// File: internal/observability/metrics.go
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "deskpilot"

// SessionMetrics groups the counters the agent loop maintains. A nil
// Registerer yields working but unregistered collectors.
type SessionMetrics struct {
	sessions      *prometheus.CounterVec
	turns         prometheus.Counter
	actions       *prometheus.CounterVec
	violations    prometheus.Counter
	modelDuration prometheus.Histogram
}

// NewSessionMetrics creates and registers the session collectors on reg.
func NewSessionMetrics(reg prometheus.Registerer) *SessionMetrics {
	f := promauto.With(reg)
	return &SessionMetrics{
		sessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_total",
			Help:      "Sessions finished, by termination reason.",
		}, []string{"reason"}),
		turns: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "turns_total",
			Help:      "Completed loop iterations across all sessions.",
		}),
		actions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "actions_total",
			Help:      "Actions processed, by action type and outcome status.",
		}, []string{"action", "status"}),
		violations: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "protocol_violations_total",
			Help:      "Model replies that could not be acted on.",
		}),
		modelDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "model_request_duration_seconds",
			Help:      "Latency of model decisions including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
	}
}

func (m *SessionMetrics) SessionFinished(reason string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(reason).Inc()
}

func (m *SessionMetrics) TurnCompleted() {
	if m == nil {
		return
	}
	m.turns.Inc()
}

func (m *SessionMetrics) ActionProcessed(action, status string) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(action, status).Inc()
}

func (m *SessionMetrics) ProtocolViolation() {
	if m == nil {
		return
	}
	m.violations.Inc()
}

func (m *SessionMetrics) ObserveModelLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.modelDuration.Observe(d.Seconds())
}
