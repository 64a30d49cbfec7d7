package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/kirillkom/devdocs-retriever/internal/core/domain"
	"github.com/kirillkom/devdocs-retriever/internal/core/ports"
)

type indexFake struct {
	mu      sync.Mutex
	hits    map[string][]domain.SearchHit
	err     error
	queries []string
	k       int
	filter  domain.SearchFilter
}

func (f *indexFake) Search(_ context.Context, query string, k int, filter domain.SearchFilter) ([]domain.SearchHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	f.k = k
	f.filter = filter
	if f.err != nil {
		return nil, f.err
	}
	return f.hits[query], nil
}

type blockingIndexFake struct{}

func (blockingIndexFake) Search(ctx context.Context, _ string, _ int, _ domain.SearchFilter) ([]domain.SearchHit, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type generatorFake struct {
	mu       sync.Mutex
	respond  func(prompt string) (string, error)
	prompts  []string
	lastOpts ports.CompletionOptions
}

func (f *generatorFake) Complete(_ context.Context, prompt string, opts ports.CompletionOptions) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.lastOpts = opts
	f.mu.Unlock()
	return f.respond(prompt)
}

type observerFake struct {
	mu       sync.Mutex
	stages   []string
	degraded []domain.StageError
	finished int
	modes    []domain.ModeName
}

func (o *observerFake) StageFinished(_ context.Context, stage string, _ time.Duration, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stages = append(o.stages, stage)
}

func (o *observerFake) StageDegraded(_ context.Context, stageErr domain.StageError) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.degraded = append(o.degraded, stageErr)
}

func (o *observerFake) RetrievalFinished(_ context.Context, mode domain.ModeName, _ int, _ int, _ time.Duration, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished++
	o.modes = append(o.modes, mode)
}
