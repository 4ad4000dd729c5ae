package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outbox delivery outcomes.
const (
	OutboxPublished    = "published"
	OutboxRetried      = "retried"
	OutboxDeadLettered = "dead_lettered"
	OutboxDuplicate    = "duplicate"
)

// OutboxMetrics tracks the publisher. Lag is measured from the row's creation, so
// a rising p99 means the publisher is falling behind writers.
type OutboxMetrics struct {
	events  *prometheus.CounterVec
	lag     prometheus.Histogram
	batches *prometheus.HistogramVec
}

// NewOutboxMetrics registers on reg. A nil reg yields a no-op recorder.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return nil
	}
	m := &OutboxMetrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "finance_outbox_events_total",
			Help: "Outbox events handled by the publisher, by type and outcome.",
		}, []string{"event_type", "outcome"}),
		lag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "finance_outbox_publish_lag_seconds",
			Help:    "Time from outbox insert to successful publish.",
			Buckets: []float64{0.1, 0.5, 1, 5, 30, 120, 600},
		}),
		batches: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "finance_outbox_batch_duration_seconds",
			Help:    "Duration of publisher batches.",
			Buckets: prometheus.DefBuckets,
		}, []string{"result"}),
	}
	reg.MustRegister(m.events, m.lag, m.batches)
	return m
}

// Event counts one event outcome. For published events createdAt feeds the lag histogram.
func (m *OutboxMetrics) Event(eventType, outcome string, createdAt, now time.Time) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(eventType, outcome).Inc()
	if outcome == OutboxPublished && !createdAt.IsZero() {
		m.lag.Observe(now.Sub(createdAt).Seconds())
	}
}

func (m *OutboxMetrics) Batch(duration time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.batches.WithLabelValues(result).Observe(duration.Seconds())
}

