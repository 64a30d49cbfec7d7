package observability

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/devdocs-retriever/internal/core/domain"
	"github.com/kirillkom/devdocs-retriever/internal/observability/logging"
	"github.com/kirillkom/devdocs-retriever/internal/observability/metrics"
)

func newObserverForTest(t *testing.T) (*PipelineObserver, *prometheus.Registry, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	registry := prometheus.NewRegistry()
	return NewPipelineObserver("test", logger, metrics.NewRetrievalMetrics(registry)), registry, &buf
}

func counterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			matched := 0
			for _, pair := range metric.GetLabel() {
				if want, ok := labels[pair.GetName()]; ok && want == pair.GetValue() {
					matched++
				}
			}
			if matched == len(labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestStageDegradedCountsKindAndLogsRequestID(t *testing.T) {
	observer, registry, buf := newObserverForTest(t)
	ctx := logging.WithRequestID(context.Background(), "req-42")

	observer.StageDegraded(ctx, domain.StageError{
		Stage:    "rerank",
		Kind:     "malformed_response",
		Message:  "no scores",
		Fallback: "fused order kept",
	})

	got := counterValue(t, registry, "ddr_retrieval_stage_degraded_total", map[string]string{
		"stage": "rerank",
		"kind":  "malformed_response",
	})
	if got != 1 {
		t.Fatalf("expected one degraded rerank, got %v", got)
	}
	logged := buf.String()
	if !strings.Contains(logged, "retrieve_stage_degraded") || !strings.Contains(logged, "req-42") {
		t.Fatalf("expected degraded log with request id, got %s", logged)
	}
}

func TestRetrievalFinishedLabelsOutcomeByKind(t *testing.T) {
	observer, registry, _ := newObserverForTest(t)
	ctx := context.Background()

	observer.RetrievalFinished(ctx, domain.ModeFast, 12, 5, 30*time.Millisecond, nil)
	observer.RetrievalFinished(ctx, domain.ModeFast, 0, 0, time.Millisecond,
		domain.WrapError(domain.ErrInvalidInput, "retrieve", errors.New("empty query")))
	observer.RetrievalFinished(ctx, domain.ModeAccurate, 0, 0, time.Second, domain.ErrDeadlineExceeded)

	if got := counterValue(t, registry, "ddr_retrieval_requests_total", map[string]string{"mode": "fast", "outcome": "ok"}); got != 1 {
		t.Fatalf("expected one ok fast retrieval, got %v", got)
	}
	if got := counterValue(t, registry, "ddr_retrieval_requests_total", map[string]string{"mode": "fast", "outcome": "invalid_input"}); got != 1 {
		t.Fatalf("expected one invalid fast retrieval, got %v", got)
	}
	if got := counterValue(t, registry, "ddr_retrieval_requests_total", map[string]string{"mode": "accurate", "outcome": "deadline_exceeded"}); got != 1 {
		t.Fatalf("expected one deadline accurate retrieval, got %v", got)
	}
}

func TestRetrievalFinishedBoundsModeLabel(t *testing.T) {
	observer, registry, _ := newObserverForTest(t)
	ctx := context.Background()
	invalid := domain.WrapError(domain.ErrInvalidInput, "retrieve", errors.New("unknown mode"))

	for i := 0; i < 50; i++ {
		observer.RetrievalFinished(ctx, domain.ModeName(fmt.Sprintf("junk-%d", i)), 0, 0, time.Millisecond, invalid)
	}
	observer.RetrievalFinished(ctx, domain.ModeName(" FAST "), 1, 1, time.Millisecond, nil)

	if got := counterValue(t, registry, "ddr_retrieval_requests_total", map[string]string{"mode": "invalid", "outcome": "invalid_input"}); got != 50 {
		t.Fatalf("expected rejected modes folded into one series, got %v", got)
	}
	if got := counterValue(t, registry, "ddr_retrieval_requests_total", map[string]string{"mode": "fast", "outcome": "ok"}); got != 1 {
		t.Fatalf("expected normalized fast label, got %v", got)
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() == "ddr_retrieval_requests_total" && len(family.GetMetric()) != 2 {
			t.Fatalf("expected 2 request series, got %d", len(family.GetMetric()))
		}
	}
}

func TestObserverWithoutMetricsOnlyLogs(t *testing.T) {
	var buf bytes.Buffer
	observer := NewPipelineObserver("test", slog.New(slog.NewJSONHandler(&buf, nil)), nil)

	observer.StageFinished(context.Background(), "fanout", time.Millisecond, nil)
	observer.RetrievalFinished(context.Background(), domain.ModeBalanced, 3, 3, time.Millisecond, nil)

	if !strings.Contains(buf.String(), "retrieve_finished") {
		t.Fatalf("expected retrieve_finished log, got %s", buf.String())
	}
}
