package api

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/warp/condition-engine/ledger"
	"github.com/warp/condition-engine/session"
)

// Metrics are the engine's Prometheus collectors.
type Metrics struct {
	Commits      *prometheus.CounterVec
	Adjustments  *prometheus.CounterVec
	Advances     *prometheus.CounterVec
	Differences  prometheus.Histogram
	OpenSessions prometheus.Gauge
}

// NewMetrics registers the collectors with reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not collide.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Commits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conditions",
			Name:      "commits_total",
			Help:      "Session commits by outcome.",
		}, []string{"outcome"}),
		Adjustments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conditions",
			Name:      "adjustments_total",
			Help:      "Cents auto-adjustments by outcome.",
		}, []string{"outcome"}),
		Advances: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conditions",
			Name:      "stage_advances_total",
			Help:      "Parent stage advances by outcome.",
		}, []string{"outcome"}),
		Differences: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "conditions",
			Name:      "reconciliation_difference_cents",
			Help:      "Absolute reference minus configured total, observed on every snapshot change.",
			Buckets:   []float64{0, 1, 10, 100, 1000, 10000, 100000, 1000000},
		}),
		OpenSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "conditions",
			Name:      "open_sessions",
			Help:      "Editor sessions currently held in memory.",
		}),
	}
}

// observe is the session listener feeding the difference histogram.
func (m *Metrics) observe(s ledger.Snapshot) {
	m.Differences.Observe(float64(s.Difference.Abs()))
}

// The recorders below are nil-safe so handlers run without metrics.

func (m *Metrics) commit(err error) {
	if m != nil {
		m.Commits.WithLabelValues(outcome(err)).Inc()
	}
}

func (m *Metrics) adjustment(err error) {
	if m != nil {
		m.Adjustments.WithLabelValues(outcome(err)).Inc()
	}
}

func (m *Metrics) advance(err error) {
	if m != nil {
		m.Advances.WithLabelValues(outcome(err)).Inc()
	}
}

// outcome labels an operation result for the counters.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, session.ErrPersistenceFailure) {
		return "error"
	}
	if session.IsClientError(err) || errors.Is(err, errBadRequest) {
		return "rejected"
	}
	return "error"
}
