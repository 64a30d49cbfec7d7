package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kirillkom/devdocs-retriever/internal/core/domain"
	"github.com/kirillkom/devdocs-retriever/internal/core/ports"
)

const defaultHypotheticalChars = 600

// StageResult is the outcome of an optional stage. Value is always usable:
// on failure it holds the fallback and Err says why.
type StageResult[T any] struct {
	Value T
	Err   error
}

func (r StageResult[T]) Degraded() bool {
	return r.Err != nil
}

// GenerativeExpander adds HyDE and multi-query probes on top of the
// rule-based expander.
type GenerativeExpander struct {
	rules     *QueryExpander
	generator *GeneratorSource
	maxChars  int
}

func NewGenerativeExpander(rules *QueryExpander, generator *GeneratorSource, maxHypotheticalChars int) *GenerativeExpander {
	if maxHypotheticalChars <= 0 {
		maxHypotheticalChars = defaultHypotheticalChars
	}
	return &GenerativeExpander{
		rules:     rules,
		generator: generator,
		maxChars:  maxHypotheticalChars,
	}
}

// HypotheticalDocument returns an empty value with Err set when the passage
// cannot be produced; the caller then simply skips the probe.
func (g *GenerativeExpander) HypotheticalDocument(ctx context.Context, query string) StageResult[string] {
	gen, err := g.generator.Resolve()
	if err != nil {
		return StageResult[string]{Err: err}
	}

	raw, err := gen.Complete(ctx, buildHypotheticalDocumentPrompt(query), ports.CompletionOptions{
		Temperature: 0.7,
		MaxTokens:   256,
	})
	if err != nil {
		return StageResult[string]{Err: domain.WrapError(domain.ErrExternalService, "generate hypothetical document", err)}
	}

	passage := strings.Join(strings.Fields(raw), " ")
	if passage == "" {
		return StageResult[string]{Err: domain.WrapError(domain.ErrMalformedResponse, "generate hypothetical document", fmt.Errorf("empty passage"))}
	}
	return StageResult[string]{Value: truncateRunes(passage, g.maxChars)}
}

// MultiQueries asks for n reformulations. Any failure falls back to the
// rule-based candidate queries.
func (g *GenerativeExpander) MultiQueries(ctx context.Context, query string, n int) StageResult[[]string] {
	fallback := func(err error) StageResult[[]string] {
		return StageResult[[]string]{
			Value: g.rules.GenerateCandidateQueries(query, n),
			Err:   err,
		}
	}

	gen, err := g.generator.Resolve()
	if err != nil {
		return fallback(err)
	}

	raw, err := gen.Complete(ctx, buildMultiQueryPrompt(query, n), ports.CompletionOptions{
		Temperature: 0.8,
		MaxTokens:   256,
	})
	if err != nil {
		return fallback(domain.WrapError(domain.ErrExternalService, "generate multi queries", err))
	}

	reformulations, err := parseQueryList(raw)
	if err != nil {
		return fallback(domain.WrapError(domain.ErrMalformedResponse, "parse multi queries", err))
	}

	queries := append([]string{strings.TrimSpace(query)}, reformulations...)
	return StageResult[[]string]{Value: dedupeQueries(queries, n)}
}

func parseQueryList(raw string) ([]string, error) {
	var items []string
	if err := json.Unmarshal([]byte(extractJSONArray(raw)), &items); err != nil {
		return nil, fmt.Errorf("unmarshal query list: %w", err)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("query list is empty")
	}
	return out, nil
}

func extractJSONArray(raw string) string {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
