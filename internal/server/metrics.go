package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics tracks compare traffic by outcome plus request latency.
type metrics struct {
	compares *prometheus.CounterVec
	latency  prometheus.Histogram
}

func newMetrics(reg *prometheus.Registry) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		compares: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rvl",
			Name:      "compare_requests_total",
			Help:      "Compare requests by outcome.",
		}, []string{"outcome"}),
		latency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rvl",
			Name:      "compare_duration_seconds",
			Help:      "Compare request duration.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *metrics) observe(outcome string, seconds float64) {
	m.compares.WithLabelValues(outcome).Inc()
	m.latency.Observe(seconds)
}
