package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge
	payloadBytes    *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "requests_total",
			Help:      "Total retrieval requests answered over NATS by status.",
		},
		[]string{"service", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "request_duration_seconds",
			Help:      "Request handling duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "requests_in_flight",
			Help:      "Number of retrieval requests being handled.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	payloadBytes := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "reply_bytes",
			Help:      "Size of reply payloads in bytes.",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
		},
		[]string{"service"},
	)

	registry.MustRegister(requestTotal, requestDuration, requestInFlight, payloadBytes)

	return &WorkerMetrics{
		registry:        registry,
		requestTotal:    requestTotal,
		requestDuration: requestDuration,
		requestInFlight: requestInFlight,
		payloadBytes:    payloadBytes,
	}
}

func (m *WorkerMetrics) Registerer() prometheus.Registerer {
	return m.registry
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartRequest() {
	m.requestInFlight.Inc()
}

func (m *WorkerMetrics) FinishRequest(service string, duration time.Duration, replyBytes int, err error) {
	m.requestInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.requestTotal.WithLabelValues(service, status).Inc()
	m.requestDuration.WithLabelValues(service, status).Observe(duration.Seconds())
	m.payloadBytes.WithLabelValues(service).Observe(float64(replyBytes))
}
