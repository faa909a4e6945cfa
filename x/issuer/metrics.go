package issuer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/compose-network/throne/metrics"
)

type Metrics struct {
	Requests *prometheus.CounterVec
	Duration prometheus.Histogram
}

func NewMetrics() *Metrics {
	reg := metrics.NewComponentRegistry("", "issuer")

	return &Metrics{
		Requests: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "requests_total",
			Help: "Attestation requests by result",
		}, []string{"result"}),

		Duration: reg.NewHistogram(prometheus.HistogramOpts{
			Name:    "duration_seconds",
			Help:    "End to end attestation time, proving included",
			Buckets: metrics.ProofBuckets,
		}),
	}
}
