package ports

import (
	"context"
	"time"

	"github.com/kirillkom/devdocs-retriever/internal/core/domain"
)

// SimilarityIndex is the read-only nearest-neighbour index over passages.
type SimilarityIndex interface {
	Search(ctx context.Context, query string, k int, filter domain.SearchFilter) ([]domain.SearchHit, error)
}

// HealthChecker reports whether a backing service can serve requests.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Embedder builds query vectors for index adapters.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type CompletionOptions struct {
	Temperature float64
	MaxTokens   int
}

// TextGenerator is the optional generative service used for HyDE,
// multi-query expansion and relevance scoring.
type TextGenerator interface {
	Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error)
}

// PipelineObserver receives progress events from the retrieval pipeline.
type PipelineObserver interface {
	StageFinished(ctx context.Context, stage string, duration time.Duration, err error)
	StageDegraded(ctx context.Context, stageErr domain.StageError)
	RetrievalFinished(ctx context.Context, mode domain.ModeName, candidates, returned int, duration time.Duration, err error)
}
