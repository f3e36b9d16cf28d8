package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "weathersound"

// Metrics holds the Prometheus gauges and counters for the sound engine.
type Metrics struct {
	ActiveInstances prometheus.Gauge
	FadingInstances prometheus.Gauge
	ArmedEvents     prometheus.Gauge
	Volume          prometheus.Gauge
	Enabled         prometheus.Gauge

	Transitions   *prometheus.CounterVec // labels: scene
	OneShots      *prometheus.CounterVec // labels: voice
	BuildFailures *prometheus.CounterVec // labels: voice

	// Weather provider polling.
	ProviderRequests *prometheus.CounterVec // labels: outcome={success,error}
}

func newMetrics() *Metrics {
	return &Metrics{
		ActiveInstances: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_instances",
			Help:      "Named sound instances currently registered.",
		}),
		FadingInstances: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fading_instances",
			Help:      "Stopped instances still fading out before teardown.",
		}),
		ArmedEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "armed_events",
			Help:      "Randomized one-shot schedules currently armed.",
		}),
		Volume: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "master_volume",
			Help:      "Master volume, 0 to 1.",
		}),
		Enabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "enabled",
			Help:      "1 when ambient sound is enabled, 0 otherwise.",
		}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Soundscape transitions by target scene.",
		}, []string{"scene"}),
		OneShots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oneshots_total",
			Help:      "One-shot sounds spawned by voice.",
		}, []string{"voice"}),
		BuildFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "build_failures_total",
			Help:      "Graph constructions that failed and were skipped, by voice.",
		}, []string{"voice"}),
		ProviderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Weather provider requests by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ActiveInstances,
		m.FadingInstances,
		m.ArmedEvents,
		m.Volume,
		m.Enabled,
		m.Transitions,
		m.OneShots,
		m.BuildFailures,
		m.ProviderRequests,
	}
}

// NewMetrics creates all engine metrics and registers them with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics on a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := newMetrics()
	prometheus.NewRegistry().MustRegister(m.collectors()...)
	return m
}
