package usecase

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/devdocs-retriever/internal/core/domain"
	"github.com/kirillkom/devdocs-retriever/internal/core/ports"
)

const defaultFanoutWorkers = 4

// FanoutRetriever runs every candidate query against the index and merges
// the hits by document id.
type FanoutRetriever struct {
	index   ports.SimilarityIndex
	workers int
}

func NewFanoutRetriever(index ports.SimilarityIndex, workers int) *FanoutRetriever {
	if workers <= 0 {
		workers = defaultFanoutWorkers
	}
	return &FanoutRetriever{index: index, workers: workers}
}

// Retrieve fails as a whole if any index call fails.
func (r *FanoutRetriever) Retrieve(ctx context.Context, queries []string, k int, filter domain.SearchFilter) ([]domain.Candidate, error) {
	if len(queries) == 0 {
		return []domain.Candidate{}, nil
	}

	batches := make([][]domain.SearchHit, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, q := range queries {
		g.Go(func() error {
			hits, err := r.index.Search(gctx, q, k, filter)
			if err != nil {
				return fmt.Errorf("search %q: %w", q, err)
			}
			batches[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return mergeHits(batches), nil
}

// mergeHits folds per-query hit lists into candidates. The first occurrence
// of an id fixes content, metadata and discovery order; later queries bump
// QueryMatchCount and keep the smallest distance.
func mergeHits(batches [][]domain.SearchHit) []domain.Candidate {
	index := make(map[string]int)
	out := make([]domain.Candidate, 0)

	for _, hits := range batches {
		seenInBatch := make(map[string]struct{}, len(hits))
		for _, hit := range hits {
			if hit.ID == "" {
				continue
			}
			pos, exists := index[hit.ID]
			if !exists {
				index[hit.ID] = len(out)
				seenInBatch[hit.ID] = struct{}{}
				out = append(out, domain.Candidate{
					ID:              hit.ID,
					Content:         hit.Content,
					Metadata:        hit.Metadata,
					Distance:        hit.Distance,
					QueryMatchCount: 1,
					DiscoveryOrder:  len(out),
				})
				continue
			}

			c := &out[pos]
			if hit.Distance < c.Distance {
				c.Distance = hit.Distance
			}
			if _, dup := seenInBatch[hit.ID]; dup {
				continue
			}
			seenInBatch[hit.ID] = struct{}{}
			c.QueryMatchCount++
		}
	}
	return out
}
