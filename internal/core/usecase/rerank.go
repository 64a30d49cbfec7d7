package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/kirillkom/devdocs-retriever/internal/core/domain"
	"github.com/kirillkom/devdocs-retriever/internal/core/ports"
)

const defaultRerankTopK = 10

// GenerativeReranker asks the generative service for 0-10 relevance scores
// over the head of an already fused list.
type GenerativeReranker struct {
	generator *GeneratorSource
	topK      int
}

func NewGenerativeReranker(generator *GeneratorSource, topK int) *GenerativeReranker {
	if topK <= 0 {
		topK = defaultRerankTopK
	}
	return &GenerativeReranker{generator: generator, topK: topK}
}

// Rerank reorders at most max(topK, minHead) leading candidates and keeps the
// tail in place. When the service call fails the input comes back unchanged
// with Err set; an unparseable reply still reranks using neutral scores.
func (r *GenerativeReranker) Rerank(
	ctx context.Context,
	query string,
	fused []domain.Candidate,
	method domain.FusionMethod,
	minHead int,
) StageResult[[]domain.Candidate] {
	if len(fused) == 0 {
		return StageResult[[]domain.Candidate]{Value: fused}
	}

	topN := r.topK
	if minHead > topN {
		topN = minHead
	}
	if topN > len(fused) {
		topN = len(fused)
	}

	gen, err := r.generator.Resolve()
	if err != nil {
		return StageResult[[]domain.Candidate]{Value: fused, Err: err}
	}

	head := make([]domain.Candidate, topN)
	copy(head, fused[:topN])

	raw, err := gen.Complete(ctx, buildRelevancePrompt(query, head), ports.CompletionOptions{
		Temperature: 0,
		MaxTokens:   16 + 4*topN,
	})
	if err != nil {
		return StageResult[[]domain.Candidate]{
			Value: fused,
			Err:   domain.WrapError(domain.ErrExternalService, "generative rerank", err),
		}
	}

	scores, parseErr := parseRelevanceScores(raw, len(head))
	for i := range head {
		g := float64(scores[i])
		head[i].RerankScore = &g
		if method == domain.FusionWeighted {
			head[i].FusedScore = weightedScore(head[i], &g)
			continue
		}
		// Prior RRF scores stay below 0.05, so they only order equal g.
		head[i].FusedScore = g/10.0 + head[i].FusedScore
	}
	sortByFusedScore(head)

	out := make([]domain.Candidate, 0, len(fused))
	out = append(out, head...)
	out = append(out, fused[topN:]...)

	result := StageResult[[]domain.Candidate]{Value: out}
	if parseErr != nil {
		result.Err = domain.WrapError(domain.ErrMalformedResponse, "parse relevance scores", parseErr)
	}
	return result
}

// parseRelevanceScores always returns n scores in 0..10. Missing or invalid
// entries become the neutral score; the error reports that this happened.
func parseRelevanceScores(raw string, n int) ([]int, error) {
	scores := make([]int, n)
	for i := range scores {
		scores[i] = neutralRerankScore
	}

	var items []any
	if err := json.Unmarshal([]byte(extractJSONArray(raw)), &items); err != nil {
		return scores, fmt.Errorf("unmarshal relevance scores: %w", err)
	}

	invalid := 0
	for i := 0; i < n && i < len(items); i++ {
		v, ok := relevanceValue(items[i])
		if !ok {
			invalid++
			continue
		}
		scores[i] = v
	}

	switch {
	case len(items) < n:
		return scores, fmt.Errorf("expected %d scores, got %d", n, len(items))
	case invalid > 0:
		return scores, fmt.Errorf("%d of %d scores are not numbers", invalid, n)
	}
	return scores, nil
}

func relevanceValue(item any) (int, bool) {
	var f float64
	switch v := item.(type) {
	case float64:
		f = v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	rounded := int(math.Round(f))
	if rounded < 0 {
		rounded = 0
	}
	if rounded > 10 {
		rounded = 10
	}
	return rounded, true
}
