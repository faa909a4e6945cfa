package metrics

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Namespace prefixes every metric exported by the service.
const Namespace = "throne"

var (
	registryOnce sync.Once
	registry     *prometheus.Registry
)

// Common histogram buckets.
var (
	CountBuckets    = []float64{1, 2, 5, 10, 20, 50, 100, 200, 500, 1000}
	DurationBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	// ProofBuckets covers multi-second groth16 proving times.
	ProofBuckets = []float64{.1, .25, .5, 1, 2, 5, 10, 20, 30, 60, 120, 300}
)

// GetRegistry returns the process-wide registry served on /metrics.
func GetRegistry() *prometheus.Registry {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
	return registry
}

// ComponentRegistry creates metrics under a shared namespace and subsystem.
// Registering the same metric twice returns the already registered collector,
// so components may be constructed more than once per process (tests).
type ComponentRegistry struct {
	namespace string
	subsystem string
	reg       prometheus.Registerer
}

// NewComponentRegistry scopes metrics to namespace_subsystem. An empty
// namespace defaults to Namespace.
func NewComponentRegistry(namespace, subsystem string) *ComponentRegistry {
	if namespace == "" {
		namespace = Namespace
	}
	return &ComponentRegistry{
		namespace: namespace,
		subsystem: subsystem,
		reg:       GetRegistry(),
	}
}

func (r *ComponentRegistry) NewCounter(opts prometheus.CounterOpts) prometheus.Counter {
	opts.Namespace, opts.Subsystem = r.namespace, r.subsystem
	return register(r.reg, prometheus.NewCounter(opts))
}

func (r *ComponentRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	opts.Namespace, opts.Subsystem = r.namespace, r.subsystem
	return register(r.reg, prometheus.NewCounterVec(opts, labels))
}

func (r *ComponentRegistry) NewGauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	opts.Namespace, opts.Subsystem = r.namespace, r.subsystem
	return register(r.reg, prometheus.NewGauge(opts))
}

func (r *ComponentRegistry) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) *prometheus.GaugeVec {
	opts.Namespace, opts.Subsystem = r.namespace, r.subsystem
	return register(r.reg, prometheus.NewGaugeVec(opts, labels))
}

func (r *ComponentRegistry) NewHistogram(opts prometheus.HistogramOpts) prometheus.Histogram {
	opts.Namespace, opts.Subsystem = r.namespace, r.subsystem
	return register(r.reg, prometheus.NewHistogram(opts))
}

func (r *ComponentRegistry) NewHistogramVec(
	opts prometheus.HistogramOpts,
	labels []string,
) *prometheus.HistogramVec {
	opts.Namespace, opts.Subsystem = r.namespace, r.subsystem
	return register(r.reg, prometheus.NewHistogramVec(opts, labels))
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
