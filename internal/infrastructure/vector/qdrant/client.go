package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/devdocs-retriever/internal/core/domain"
	"github.com/kirillkom/devdocs-retriever/internal/core/ports"
	"github.com/kirillkom/devdocs-retriever/internal/infrastructure/resilience"
)

// Payload keys written by the indexing pipeline.
const (
	payloadChunkID = "chunk_id"
	payloadText    = "text"
	payloadContent = "content"
)

type Options struct {
	Timeout  time.Duration
	Executor *resilience.Executor
}

// Client is a read-only similarity index over a qdrant collection.
type Client struct {
	baseURL    string
	collection string
	embedder   ports.Embedder
	httpClient *http.Client
	executor   *resilience.Executor
}

var _ ports.SimilarityIndex = (*Client)(nil)

func New(baseURL, collection string, embedder ports.Embedder, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		embedder:   embedder,
		httpClient: &http.Client{Timeout: timeout},
		executor:   opts.Executor,
	}
}

func (c *Client) Search(ctx context.Context, query string, k int, filter domain.SearchFilter) ([]domain.SearchHit, error) {
	vector, err := c.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	reqBody := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	if filter.Category != "" {
		reqBody["filter"] = map[string]any{
			"must": []map[string]any{
				{
					"key": "category",
					"match": map[string]any{
						"value": filter.Category,
					},
				},
			},
		}
	}

	var searchResp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", c.collection)
	err = c.executor.Execute(ctx, "qdrant.search", func(callCtx context.Context) error {
		return wrapTemporaryIfNeeded("qdrant search", c.doJSON(callCtx, http.MethodPost, path, reqBody, &searchResp))
	}, classifyQdrantError)
	if err != nil {
		return nil, err
	}

	out := make([]domain.SearchHit, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		id := getStringPayload(r.Payload, payloadChunkID)
		if id == "" {
			id = scalarString(r.ID)
		}
		content := getStringPayload(r.Payload, payloadText)
		if content == "" {
			content = getStringPayload(r.Payload, payloadContent)
		}
		out = append(out, domain.SearchHit{
			ID:       id,
			Content:  content,
			Metadata: payloadMetadata(r.Payload),
			Distance: cosineDistance(r.Score),
		})
	}
	return out, nil
}

// Ping checks that the collection exists.
func (c *Client) Ping(ctx context.Context) error {
	var info map[string]any
	path := fmt.Sprintf("/collections/%s", c.collection)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &info); err != nil {
		return fmt.Errorf("qdrant ping: %w", err)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal qdrant request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create qdrant request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &HTTPStatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(raw)}
	}
	// Point ids and numeric payload values must survive as exact text.
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	if err := decoder.Decode(out); err != nil {
		return domain.WrapError(domain.ErrMalformedResponse, "decode qdrant response", err)
	}
	return nil
}

// cosineDistance maps qdrant's cosine similarity onto [0,2], lower is closer.
func cosineDistance(score float64) float64 {
	d := 1 - score
	if d < 0 {
		return 0
	}
	if d > 2 {
		return 2
	}
	return d
}

func payloadMetadata(payload map[string]any) map[string]string {
	out := make(map[string]string, len(payload))
	for key := range payload {
		switch key {
		case payloadText, payloadContent:
			continue
		}
		out[key] = getStringPayload(payload, key)
	}
	return out
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	return scalarString(v)
}

// scalarString renders a value decoded with UseNumber without float
// formatting. Nested values are re-encoded as JSON.
func scalarString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(raw)
	}
}
