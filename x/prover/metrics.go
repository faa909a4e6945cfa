package prover

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/compose-network/throne/metrics"
)

// Metrics tracks proof generation and verification.
type Metrics struct {
	Generated        *prometheus.CounterVec
	GenerateDuration prometheus.Histogram
	Verifications    *prometheus.CounterVec
	InFlight         prometheus.Gauge
}

func NewMetrics() *Metrics {
	reg := metrics.NewComponentRegistry("", "prover")

	return &Metrics{
		Generated: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "generated_total",
			Help: "Proof generation attempts by result",
		}, []string{"result"}),

		GenerateDuration: reg.NewHistogram(prometheus.HistogramOpts{
			Name:    "generate_duration_seconds",
			Help:    "Time spent producing a proof",
			Buckets: metrics.ProofBuckets,
		}),

		Verifications: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "verifications_total",
			Help: "Proof verifications by result",
		}, []string{"result"}),

		InFlight: reg.NewGauge(prometheus.GaugeOpts{
			Name: "inflight",
			Help: "Proofs currently being generated",
		}),
	}
}
