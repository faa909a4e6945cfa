package middleware

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/compose-network/throne/metrics"
)

// Metrics covers the HTTP surface.
type Metrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	Panics   prometheus.Counter
}

func NewMetrics() *Metrics {
	reg := metrics.NewComponentRegistry("", "http")
	return &Metrics{
		Requests: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "requests_total",
			Help: "HTTP requests by route template, method and status code",
		}, []string{"route", "method", "status"}),
		Duration: reg.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "request_duration_seconds",
			Help:    "HTTP request latency by route template",
			Buckets: metrics.DurationBuckets,
		}, []string{"route"}),
		Panics: reg.NewCounter(prometheus.CounterOpts{
			Name: "panics_total",
			Help: "Handler panics recovered by the server",
		}),
	}
}
