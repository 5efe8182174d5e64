package stm

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the controller's Prometheus instruments. A nil
// *Metrics is never passed around; use NewMetrics(nil) to get
// instruments registered against prometheus.NewRegistry() when the
// caller doesn't care about a shared registry (e.g. tests).
type Metrics struct {
	AddTotal        prometheus.Counter
	AddFailedTotal  prometheus.Counter
	CancelTotal     prometheus.Counter
	InterruptTotal  prometheus.Counter
	AddDuration     prometheus.Histogram
	FeedbackBuffered prometheus.Gauge
	SentenceCount   prometheus.Gauge
}

// NewMetrics creates and registers the controller's instruments
// against reg. If reg is nil, a fresh prometheus.NewRegistry() is
// used, so callers that just want working instruments without wiring
// up a /metrics endpoint can pass nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		AddTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stm",
			Name:      "add_total",
			Help:      "Total number of add-command requests submitted to the backend.",
		}),
		AddFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stm",
			Name:      "add_failed_total",
			Help:      "Total number of add-command requests rejected by the backend.",
		}),
		CancelTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stm",
			Name:      "cancel_total",
			Help:      "Total number of sentences cancelled via edit-at.",
		}),
		InterruptTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stm",
			Name:      "interrupt_total",
			Help:      "Total number of interrupt requests forwarded to the backend.",
		}),
		AddDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "stm",
			Name:      "add_duration_seconds",
			Help:      "Latency of add-command round trips to the backend.",
			Buckets:   prometheus.DefBuckets,
		}),
		FeedbackBuffered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "stm",
			Name:      "feedback_buffered",
			Help:      "Number of feedback records currently held for unknown state-ids.",
		}),
		SentenceCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "stm",
			Name:      "sentence_count",
			Help:      "Number of live sentences in the tree.",
		}),
	}

	reg.MustRegister(
		m.AddTotal, m.AddFailedTotal, m.CancelTotal, m.InterruptTotal,
		m.AddDuration, m.FeedbackBuffered, m.SentenceCount,
	)
	return m
}
