package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	searches          prometheus.Counter
	directions        *prometheus.CounterVec
	directionsLatency prometheus.Histogram
	geolocation       *prometheus.CounterVec
	sessions          prometheus.Gauge
	evictions         prometheus.Counter
}

// New registers the sinulogmap collectors plus the Go and process
// collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		searches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sinulogmap_search_queries_total",
			Help: "Non-blank search queries evaluated.",
		}),
		directions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sinulogmap_directions_requests_total",
			Help: "Directions requests by outcome.",
		}, []string{"outcome"}),
		directionsLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sinulogmap_directions_latency_seconds",
			Help:    "Latency of routed directions requests.",
			Buckets: prometheus.DefBuckets,
		}),
		geolocation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sinulogmap_geolocation_results_total",
			Help: "Geolocation results reported by browsers, by kind.",
		}, []string{"kind"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sinulogmap_sessions",
			Help: "Live viewer sessions.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sinulogmap_sessions_evicted_total",
			Help: "Sessions evicted for idleness.",
		}),
	}
	m.reg.MustRegister(
		m.searches,
		m.directions,
		m.directionsLatency,
		m.geolocation,
		m.sessions,
		m.evictions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) Search() { m.searches.Inc() }

func (m *Metrics) Directions(outcome string, took time.Duration) {
	m.directions.WithLabelValues(outcome).Inc()
	if outcome == "routed" {
		m.directionsLatency.Observe(took.Seconds())
	}
}

func (m *Metrics) Geolocation(kind string) { m.geolocation.WithLabelValues(kind).Inc() }

func (m *Metrics) Sessions(n int) { m.sessions.Set(float64(n)) }

func (m *Metrics) Evicted() { m.evictions.Inc() }
