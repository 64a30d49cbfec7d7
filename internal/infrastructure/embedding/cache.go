package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kirillkom/devdocs-retriever/internal/core/ports"
)

const defaultCacheSize = 1024

// CachedEmbedder memoizes query vectors by content hash. Fan-out issues the
// same probe texts repeatedly across requests, so the hit rate is high.
type CachedEmbedder struct {
	next  ports.Embedder
	cache *lru.Cache[string, []float32]
}

var _ ports.Embedder = (*CachedEmbedder)(nil)

func NewCachedEmbedder(next ports.Embedder, size int) *CachedEmbedder {
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		cache, _ = lru.New[string, []float32](defaultCacheSize)
	}
	return &CachedEmbedder{next: next, cache: cache}
}

func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	missing := make([]string, 0, len(texts))
	missingIdx := make([]int, 0, len(texts))
	for i, text := range texts {
		if vec, ok := c.cache.Get(contentHash(text)); ok {
			out[i] = copyVector(vec)
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vectors, err := c.next.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, vec := range vectors {
		if j >= len(missingIdx) {
			break
		}
		c.cache.Add(contentHash(missing[j]), copyVector(vec))
		out[missingIdx[j]] = vec
	}
	return out, nil
}

func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := contentHash(text)
	if vec, ok := c.cache.Get(key); ok {
		return copyVector(vec), nil
	}
	vec, err := c.next.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, copyVector(vec))
	return vec, nil
}

func (c *CachedEmbedder) Len() int {
	return c.cache.Len()
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// copyVector keeps callers from mutating cached entries.
func copyVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
