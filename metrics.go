package toggle

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "toggle"

// metrics holds the provider's Prometheus collectors.
type metrics struct {
	evaluations   *prometheus.CounterVec
	fetches       *prometheus.CounterVec
	fetchDuration prometheus.Histogram
	telemetry     *prometheus.CounterVec
	staleReads    prometheus.Counter
	cachedToggles prometheus.Gauge
}

// newMetrics registers the collectors on reg, or on a private registry when
// reg is nil. Collectors already registered by another provider on the
// same registerer are shared.
func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &metrics{
		evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "evaluations_total",
				Help:      "Flag evaluations by flag type and result (success or OpenFeature error code).",
			},
			[]string{"type", "result"},
		),
		fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "fetches_total",
				Help:      "Evaluate calls to the Toggle service by outcome.",
			},
			[]string{"outcome"},
		),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of evaluate calls including retries.",
			Buckets:   prometheus.DefBuckets,
		}),
		telemetry: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "telemetry_total",
				Help:      "Telemetry reports by outcome.",
			},
			[]string{"outcome"},
		),
		staleReads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "stale_reads_total",
			Help:      "Typed reads served from an expired bundle.",
		}),
		cachedToggles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "cached_toggles",
			Help:      "Number of toggles in the cached bundle.",
		}),
	}

	m.evaluations = register(reg, m.evaluations)
	m.fetches = register(reg, m.fetches)
	m.fetchDuration = register(reg, m.fetchDuration)
	m.telemetry = register(reg, m.telemetry)
	m.staleReads = register(reg, m.staleReads)
	m.cachedToggles = register(reg, m.cachedToggles)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

const (
	outcomeSuccess = "success"
	outcomeEmpty   = "empty"
	outcomeError   = "error"
	outcomeSkipped = "skipped"
)

func (m *metrics) observeFetch(outcome string, elapsed time.Duration) {
	m.fetches.WithLabelValues(outcome).Inc()
	m.fetchDuration.Observe(elapsed.Seconds())
}

func (m *metrics) observeEvaluation(flagType, result string) {
	m.evaluations.WithLabelValues(flagType, result).Inc()
}
