package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "multiswap"

// Results recorded against each request.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics holds the collectors exported by the node. Each instance has its
// own registry so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	events          *prometheus.CounterVec
	height          prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Execute and query requests by kind and result.",
		}, []string{"kind", "result"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time spent handling execute and query requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Contract events emitted by committed invocations.",
		}, []string{"type"}),
		height: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "height",
			Help:      "Height of the last committed invocation.",
		}),
	}

	m.registry.MustRegister(
		m.requests,
		m.requestDuration,
		m.events,
		m.height,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveRequest records one request of kind that started at start.
func (m *Metrics) ObserveRequest(kind string, start time.Time, err error) {
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.requests.WithLabelValues(kind, result).Inc()
	m.requestDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveEvent(eventType string) {
	m.events.WithLabelValues(eventType).Inc()
}

func (m *Metrics) SetHeight(h uint64) {
	m.height.Set(float64(h))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
