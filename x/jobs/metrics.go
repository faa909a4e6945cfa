package jobs

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/compose-network/throne/metrics"
)

type Metrics struct {
	Transitions *prometheus.CounterVec
	QueueDepth  prometheus.Gauge
	Rejected    prometheus.Counter
}

func NewMetrics() *Metrics {
	reg := metrics.NewComponentRegistry("", "jobs")

	return &Metrics{
		Transitions: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "transitions_total",
			Help: "Proof job state transitions",
		}, []string{"state"}),

		QueueDepth: reg.NewGauge(prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Jobs waiting for a worker",
		}),

		Rejected: reg.NewCounter(prometheus.CounterOpts{
			Name: "rejected_total",
			Help: "Jobs rejected because the queue was full",
		}),
	}
}
