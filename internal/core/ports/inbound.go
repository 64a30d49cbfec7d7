package ports

import (
	"context"

	"github.com/kirillkom/devdocs-retriever/internal/core/domain"
)

// Retriever is the inbound contract used by downstream generation tooling.
type Retriever interface {
	Retrieve(ctx context.Context, req domain.RetrieveRequest) (*domain.RetrievalResult, error)
}
