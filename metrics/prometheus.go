package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "keyfence"

type promCollectors struct {
	registry      *prometheus.Registry
	admissions    *prometheus.CounterVec
	degraded      *prometheus.CounterVec
	dropped       *prometheus.CounterVec
	aggregated    *prometheus.CounterVec
	retries       prometheus.Counter
	storeDuration *prometheus.HistogramVec
}

func newPromCollectors() *promCollectors {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &promCollectors{
		registry: reg,
		admissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "admissions_total",
				Help:      "Admission decisions by outcome",
			},
			[]string{"outcome"},
		),
		degraded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "degraded_total",
				Help:      "Decisions made by the failure policy because the bucket store failed",
			},
			[]string{"policy"},
		),
		dropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "usage_events_dropped_total",
				Help:      "Usage events dropped before reaching the queue",
			},
			[]string{"reason"},
		),
		aggregated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "aggregated_events_total",
				Help:      "Usage events consumed by the aggregator by outcome",
			},
			[]string{"outcome"},
		),
		retries: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "aggregator_retries_total",
				Help:      "Retried analytics writes",
			},
		),
		storeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "bucket_store_duration_seconds",
				Help:      "Bucket store call latency in seconds",
				Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
			},
			[]string{"result"},
		),
	}
}

// Registry exposes the Prometheus registry, e.g. for extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.prom.registry
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.prom.registry, promhttp.HandlerOpts{Registry: m.prom.registry})
}
