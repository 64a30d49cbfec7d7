package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/kirillkom/devdocs-retriever/internal/core/domain"
	"github.com/kirillkom/devdocs-retriever/internal/observability/logging"
	"github.com/kirillkom/devdocs-retriever/internal/observability/metrics"
)

// PipelineObserver logs pipeline events and feeds the retrieval metrics.
// Both sinks are optional.
type PipelineObserver struct {
	service string
	logger  *slog.Logger
	metrics *metrics.RetrievalMetrics
}

func NewPipelineObserver(service string, logger *slog.Logger, m *metrics.RetrievalMetrics) *PipelineObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &PipelineObserver{service: service, logger: logger, metrics: m}
}

func (o *PipelineObserver) StageFinished(ctx context.Context, stage string, duration time.Duration, err error) {
	if o.metrics != nil {
		o.metrics.RecordStage(o.service, stage, duration, err != nil)
	}
	o.logger.DebugContext(ctx, "retrieve_stage_finished",
		"request_id", logging.RequestIDFromContext(ctx),
		"stage", stage,
		"duration_ms", durationMillis(duration),
		"failed", err != nil,
	)
}

func (o *PipelineObserver) StageDegraded(ctx context.Context, stageErr domain.StageError) {
	if o.metrics != nil {
		o.metrics.RecordDegraded(o.service, stageErr.Stage, stageErr.Kind)
	}
	o.logger.WarnContext(ctx, "retrieve_stage_degraded",
		"request_id", logging.RequestIDFromContext(ctx),
		"stage", stageErr.Stage,
		"kind", stageErr.Kind,
		"fallback", stageErr.Fallback,
		"error", stageErr.Message,
	)
}

func (o *PipelineObserver) RetrievalFinished(ctx context.Context, mode domain.ModeName, candidates, returned int, duration time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = domain.ErrorKindName(err)
	}
	if o.metrics != nil {
		o.metrics.RecordRetrieval(o.service, modeLabel(mode), outcome, candidates, returned, duration)
	}

	attrs := []any{
		"request_id", logging.RequestIDFromContext(ctx),
		"mode", mode,
		"outcome", outcome,
		"candidates", candidates,
		"returned", returned,
		"duration_ms", durationMillis(duration),
	}
	switch {
	case err == nil:
		o.logger.InfoContext(ctx, "retrieve_finished", attrs...)
	case domain.IsKind(err, domain.ErrInvalidInput):
		o.logger.WarnContext(ctx, "retrieve_finished", append(attrs, "error", err)...)
	default:
		o.logger.ErrorContext(ctx, "retrieve_finished", append(attrs, "error", err)...)
	}
}

// modeLabel keeps the metric label set to the known profiles.
func modeLabel(mode domain.ModeName) string {
	if mode == "" {
		return ""
	}
	profile, err := domain.ProfileFor(mode)
	if err != nil {
		return "invalid"
	}
	return string(profile.Name)
}

func durationMillis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
