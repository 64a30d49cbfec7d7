package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/devdocs-retriever/internal/core/domain"
	"github.com/kirillkom/devdocs-retriever/internal/core/ports"
	"github.com/kirillkom/devdocs-retriever/internal/infrastructure/resilience"
)

const defaultTimeout = 120 * time.Second

type Options struct {
	Timeout  time.Duration
	Executor *resilience.Executor
}

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, genModel, embedModel string, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: timeout},
		executor:   opts.Executor,
	}
}

type Embedder struct {
	client *Client
}

var _ ports.Embedder = (*Embedder)(nil)

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.call(ctx, "ollama.embed", "/api/embed", request, &response); err != nil {
		return nil, err
	}
	if len(response.Embeddings) != len(texts) {
		return nil, domain.WrapError(domain.ErrMalformedResponse, "ollama embed",
			fmt.Errorf("expected %d embeddings, got %d", len(texts), len(response.Embeddings)))
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, domain.WrapError(domain.ErrMalformedResponse, "ollama embed", fmt.Errorf("empty embedding result"))
	}
	return vectors[0], nil
}

// Generator is the text completion side of the client.
type Generator struct {
	client *Client
}

var _ ports.TextGenerator = (*Generator)(nil)

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) Complete(ctx context.Context, prompt string, opts ports.CompletionOptions) (string, error) {
	options := map[string]any{
		"temperature": opts.Temperature,
	}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}
	reqBody := map[string]any{
		"model":   g.client.genModel,
		"prompt":  prompt,
		"stream":  false,
		"options": options,
	}

	var response struct {
		Response string `json:"response"`
	}
	if err := g.client.call(ctx, "ollama.generate", "/api/generate", reqBody, &response); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

// call runs one request through the resilience executor when configured.
func (c *Client) call(ctx context.Context, operation, path string, payload any, out any) error {
	do := func(callCtx context.Context) error {
		return wrapTemporaryIfNeeded(operation, c.postJSON(callCtx, path, payload, out, operation))
	}
	if c.executor == nil {
		return do(ctx)
	}
	return c.executor.Execute(ctx, operation, do, classifyOllamaError)
}
