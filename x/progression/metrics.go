package progression

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/compose-network/throne/metrics"
)

// Metrics holds progression metrics.
type Metrics struct {
	Submissions    *prometheus.CounterVec
	SubmitDuration prometheus.Histogram
	Kings          prometheus.Counter
	CurrentRound   prometheus.Gauge
	TTLFailures    prometheus.Counter
	HubFailures    *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := metrics.NewComponentRegistry("", "progression")

	return &Metrics{
		Submissions: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "submissions_total",
			Help: "Submissions by path and result",
		}, []string{"path", "result"}),

		SubmitDuration: reg.NewHistogram(prometheus.HistogramOpts{
			Name:    "submit_duration_seconds",
			Help:    "Time to process a submission, verification included",
			Buckets: metrics.DurationBuckets,
		}),

		Kings: reg.NewCounter(prometheus.CounterOpts{
			Name: "kings_crowned_total",
			Help: "Kings crowned across all rounds",
		}),

		CurrentRound: reg.NewGauge(prometheus.GaugeOpts{
			Name: "current_round",
			Help: "Current round id",
		}),

		TTLFailures: reg.NewCounter(prometheus.CounterOpts{
			Name: "ttl_extension_failures_total",
			Help: "Advisory TTL extensions that failed",
		}),

		HubFailures: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "hub_failures_total",
			Help: "Game hub notifications that failed",
		}, []string{"op"}),
	}
}
