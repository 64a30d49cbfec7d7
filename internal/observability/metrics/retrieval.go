package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type RetrievalMetrics struct {
	requestsTotal   *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	stageDuration   *prometheus.HistogramVec
	degradedTotal   *prometheus.CounterVec
	candidates      *prometheus.HistogramVec
	resultsReturned *prometheus.HistogramVec
}

func NewRetrievalMetrics(registerer prometheus.Registerer) *RetrievalMetrics {
	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "requests_total",
			Help:      "Total retrieval calls by mode and outcome kind.",
		},
		[]string{"service", "mode", "outcome"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "End-to-end retrieval duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"service", "mode"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"service", "stage", "status"},
	)
	degradedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "stage_degraded_total",
			Help:      "Optional stages that fell back, by error kind.",
		},
		[]string{"service", "stage", "kind"},
	)
	candidates := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "candidates_before_truncation",
			Help:      "Deduplicated candidates per successful retrieval.",
			Buckets:   []float64{0, 5, 10, 20, 40, 80, 160, 320},
		},
		[]string{"service", "mode"},
	)
	resultsReturned := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "results_returned",
			Help:      "Results returned per successful retrieval.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21, 50},
		},
		[]string{"service", "mode"},
	)

	registerer.MustRegister(requestsTotal, duration, stageDuration, degradedTotal, candidates, resultsReturned)

	return &RetrievalMetrics{
		requestsTotal:   requestsTotal,
		duration:        duration,
		stageDuration:   stageDuration,
		degradedTotal:   degradedTotal,
		candidates:      candidates,
		resultsReturned: resultsReturned,
	}
}

func (m *RetrievalMetrics) RecordStage(service, stage string, duration time.Duration, failed bool) {
	status := "ok"
	if failed {
		status = "error"
	}
	m.stageDuration.WithLabelValues(service, stage, status).Observe(duration.Seconds())
}

func (m *RetrievalMetrics) RecordDegraded(service, stage, kind string) {
	if kind == "" {
		kind = "unknown"
	}
	m.degradedTotal.WithLabelValues(service, stage, kind).Inc()
}

// RecordRetrieval counts every call; size histograms only see successes.
func (m *RetrievalMetrics) RecordRetrieval(service, mode, outcome string, candidates, returned int, duration time.Duration) {
	if mode == "" {
		mode = "unknown"
	}
	m.requestsTotal.WithLabelValues(service, mode, outcome).Inc()
	m.duration.WithLabelValues(service, mode).Observe(duration.Seconds())
	if outcome != "ok" {
		return
	}
	m.candidates.WithLabelValues(service, mode).Observe(float64(candidates))
	m.resultsReturned.WithLabelValues(service, mode).Observe(float64(returned))
}
