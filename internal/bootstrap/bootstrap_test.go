package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/devdocs-retriever/internal/config"
	"github.com/kirillkom/devdocs-retriever/internal/core/usecase"
)

func baseConfig() config.Config {
	return config.Config{
		IndexBackend:          IndexBackendQdrant,
		QdrantURL:             "http://127.0.0.1:1",
		QdrantCollection:      "devdocs",
		OllamaURL:             "http://127.0.0.1:1",
		OllamaGenModel:        "llama3.1:8b",
		OllamaEmbedModel:      "nomic-embed-text",
		EmbeddingCacheSize:    16,
		RetrievalDefaultMode:  "balanced",
		RetrievalFusionMethod: "rrf",
		RetrievalRRFK:         60,
		RetrievalRerankTopK:   10,
		RetrievalTimeout:      time.Second,
		LexicalBM25K1:         1.5,
		LexicalBM25B:          0.75,
		HyDEMaxChars:          600,
	}
}

func TestNewBuildsRetrieverWithoutNetwork(t *testing.T) {
	app, err := New(context.Background(), baseConfig(), Options{
		Service:    "test",
		Registerer: prometheus.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer app.Close()

	if app.Retriever == nil {
		t.Fatalf("expected retriever to be wired")
	}
	if app.Queue != nil {
		t.Fatalf("queue must stay nil unless requested")
	}
	if app.Readiness == nil {
		t.Fatalf("expected the qdrant index to back readiness")
	}
}

func TestNewRejectsUnknownBackendAndFusion(t *testing.T) {
	cfg := baseConfig()
	cfg.IndexBackend = "elastic"
	if _, err := New(context.Background(), cfg, Options{}); err == nil || !strings.Contains(err.Error(), "INDEX_BACKEND") {
		t.Fatalf("expected INDEX_BACKEND error, got %v", err)
	}

	cfg = baseConfig()
	cfg.RetrievalFusionMethod = "borda"
	if _, err := New(context.Background(), cfg, Options{}); err == nil || !strings.Contains(err.Error(), "RETRIEVAL_FUSION_METHOD") {
		t.Fatalf("expected fusion error, got %v", err)
	}

	cfg = baseConfig()
	cfg.RetrievalDefaultMode = "turbo"
	if _, err := New(context.Background(), cfg, Options{}); err == nil || !strings.Contains(err.Error(), "RETRIEVAL_DEFAULT_MODE") {
		t.Fatalf("expected default mode error, got %v", err)
	}
}

func TestLoadExpansionRulesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `
max_terms: 1
synonyms:
  - term: vault
    related: [erc4626, shares, assets]
templates:
  general: ["{query}", "{query} documentation"]
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	cfg := baseConfig()
	cfg.ExpansionDictionaryPath = path
	cfg.ExpansionMaxTerms = 3

	rules, err := loadExpansionRules(cfg)
	if err != nil {
		t.Fatalf("loadExpansionRules() error: %v", err)
	}
	if rules.MaxTerms != 3 {
		t.Fatalf("expected configured max terms to win, got %d", rules.MaxTerms)
	}

	got := usecase.NewQueryExpander(rules).Expand("vault deposit")
	if got != "vault deposit (erc4626 shares assets)" {
		t.Fatalf("unexpected expansion %q", got)
	}
}

func TestLoadExpansionRulesMissingFile(t *testing.T) {
	cfg := baseConfig()
	cfg.ExpansionDictionaryPath = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := loadExpansionRules(cfg); err == nil {
		t.Fatalf("expected error for missing dictionary")
	}
}

func TestResilienceConfigKeepsDefaultsForZeroValues(t *testing.T) {
	cfg := baseConfig()
	cfg.ResilienceRetryMaxAttempts = 5
	cfg.ResilienceBreakerEnabled = true

	got := resilienceConfig(cfg)
	if got.RetryMaxAttempts != 5 {
		t.Fatalf("expected 5 attempts, got %d", got.RetryMaxAttempts)
	}
	if got.BreakerMinRequests != 10 {
		t.Fatalf("expected default min requests 10, got %d", got.BreakerMinRequests)
	}
	if !got.BreakerEnabled {
		t.Fatalf("expected breaker enabled")
	}
	if got.CallDeadline != cfg.RetrievalTimeout {
		t.Fatalf("expected retries bounded by the retrieval timeout, got %v", got.CallDeadline)
	}
}
