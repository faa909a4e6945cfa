package store

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/compose-network/throne/metrics"
)

// Metrics holds storage metrics shared by every backend.
type Metrics struct {
	Operations    *prometheus.CounterVec
	Errors        *prometheus.CounterVec
	TTLExtensions *prometheus.CounterVec
	BatchSize     prometheus.Histogram
}

func NewMetrics() *Metrics {
	reg := metrics.NewComponentRegistry("", "store")

	return &Metrics{
		Operations: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "operations_total",
			Help: "Store operations by backend and kind",
		}, []string{"backend", "op"}),

		Errors: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Store operation failures by backend and kind",
		}, []string{"backend", "op"}),

		TTLExtensions: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "ttl_extensions_total",
			Help: "TTL renewals by outcome",
		}, []string{"backend", "outcome"}),

		BatchSize: reg.NewHistogram(prometheus.HistogramOpts{
			Name:    "batch_size",
			Help:    "Number of operations per atomic batch",
			Buckets: metrics.CountBuckets,
		}),
	}
}
