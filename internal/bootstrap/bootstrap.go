package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/devdocs-retriever/internal/config"
	"github.com/kirillkom/devdocs-retriever/internal/core/domain"
	"github.com/kirillkom/devdocs-retriever/internal/core/ports"
	"github.com/kirillkom/devdocs-retriever/internal/core/usecase"
	"github.com/kirillkom/devdocs-retriever/internal/infrastructure/embedding"
	"github.com/kirillkom/devdocs-retriever/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/devdocs-retriever/internal/infrastructure/queue/nats"
	"github.com/kirillkom/devdocs-retriever/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/devdocs-retriever/internal/infrastructure/resilience"
	"github.com/kirillkom/devdocs-retriever/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/devdocs-retriever/internal/observability"
	"github.com/kirillkom/devdocs-retriever/internal/observability/metrics"
)

const (
	IndexBackendQdrant   = "qdrant"
	IndexBackendPostgres = "postgres"
)

type Options struct {
	Service string
	Logger  *slog.Logger
	// Registerer receives the retrieval metrics. Nil disables them.
	Registerer prometheus.Registerer
	// WithQueue connects to NATS for the request/reply worker.
	WithQueue bool
}

type App struct {
	Config config.Config

	Retriever ports.Retriever
	Queue     *nats.Queue
	Executor  *resilience.Executor
	// Readiness pings the configured similarity index.
	Readiness ports.HealthChecker

	closeFns []func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg}

	executor := resilience.NewExecutor(resilienceConfig(cfg), logger)
	app.Executor = executor

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.Options{
		Timeout:  cfg.OllamaTimeout,
		Executor: executor,
	})
	embedder := embedding.NewCachedEmbedder(ollama.NewEmbedder(ollamaClient), cfg.EmbeddingCacheSize)

	index, err := app.newIndex(ctx, cfg, embedder, executor)
	if err != nil {
		app.Close()
		return nil, err
	}
	if checker, ok := index.(ports.HealthChecker); ok {
		app.Readiness = checker
	}

	rules, err := loadExpansionRules(cfg)
	if err != nil {
		app.Close()
		return nil, err
	}

	generators := usecase.NewGeneratorSource(nil)
	if cfg.GenerativeEnabled {
		generators = usecase.NewGeneratorSource(func() (ports.TextGenerator, error) {
			if strings.TrimSpace(cfg.OllamaGenModel) == "" {
				return nil, errors.New("OLLAMA_GEN_MODEL is empty")
			}
			return ollama.NewGenerator(ollamaClient), nil
		})
	}

	fusion, err := domain.ParseFusionMethod(cfg.RetrievalFusionMethod)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("config RETRIEVAL_FUSION_METHOD: %w", err)
	}
	defaultMode, err := domain.ProfileFor(domain.ModeName(cfg.RetrievalDefaultMode))
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("config RETRIEVAL_DEFAULT_MODE: %w", err)
	}

	var retrievalMetrics *metrics.RetrievalMetrics
	if opts.Registerer != nil {
		retrievalMetrics = metrics.NewRetrievalMetrics(opts.Registerer)
	}

	expander := usecase.NewQueryExpander(rules)
	app.Retriever = usecase.NewRetrieveUseCase(
		expander,
		usecase.NewGenerativeExpander(expander, generators, cfg.HyDEMaxChars),
		usecase.NewFanoutRetriever(index, cfg.RetrievalFanoutWorkers),
		usecase.NewLexicalScorer(cfg.LexicalBM25K1, cfg.LexicalBM25B, nil),
		usecase.NewGenerativeReranker(generators, cfg.RetrievalRerankTopK),
		observability.NewPipelineObserver(opts.Service, logger, retrievalMetrics),
		usecase.RetrieveConfig{
			DefaultMode: defaultMode.Name,
			Fusion:      fusion,
			RRFK:        cfg.RetrievalRRFK,
			Timeout:     cfg.RetrievalTimeout,
		},
	)

	if opts.WithQueue {
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: executor,
			Logger:             logger,
		})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.Queue = queue
		app.closeFns = append(app.closeFns, queue.Close)
	}

	logger.Info("retriever_bootstrapped",
		"index_backend", cfg.IndexBackend,
		"default_mode", defaultMode.Name,
		"fusion", fusion,
		"generative_enabled", cfg.GenerativeEnabled,
	)
	return app, nil
}

func (a *App) newIndex(ctx context.Context, cfg config.Config, embedder ports.Embedder, executor *resilience.Executor) (ports.SimilarityIndex, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.IndexBackend)) {
	case "", IndexBackendQdrant:
		return qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, embedder, qdrant.Options{
			Timeout:  cfg.QdrantTimeout,
			Executor: executor,
		}), nil
	case IndexBackendPostgres:
		db, err := postgres.OpenDB(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.closeFns = append(a.closeFns, func() { _ = db.Close() })
		return newPassageIndex(db, cfg, embedder, executor)
	default:
		return nil, fmt.Errorf("config INDEX_BACKEND: unsupported backend %q", cfg.IndexBackend)
	}
}

func newPassageIndex(db *sql.DB, cfg config.Config, embedder ports.Embedder, executor *resilience.Executor) (ports.SimilarityIndex, error) {
	index, err := postgres.NewPassageIndex(db, cfg.PostgresTable, embedder, executor)
	if err != nil {
		return nil, fmt.Errorf("init passage index: %w", err)
	}
	return index, nil
}

func loadExpansionRules(cfg config.Config) (usecase.ExpansionRules, error) {
	rules := usecase.DefaultExpansionRules()
	if path := strings.TrimSpace(cfg.ExpansionDictionaryPath); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return usecase.ExpansionRules{}, fmt.Errorf("read expansion dictionary: %w", err)
		}
		rules, err = usecase.ParseExpansionRules(data)
		if err != nil {
			return usecase.ExpansionRules{}, fmt.Errorf("load expansion dictionary %s: %w", path, err)
		}
	}
	if cfg.ExpansionMaxTerms > 0 {
		rules.MaxTerms = cfg.ExpansionMaxTerms
	}
	return rules, nil
}

func resilienceConfig(cfg config.Config) resilience.Config {
	out := resilience.DefaultConfig()
	out.RetryMaxAttempts = cfg.ResilienceRetryMaxAttempts
	out.RetryInitialBackoff = cfg.ResilienceRetryInitialBackoff
	out.RetryMaxBackoff = cfg.ResilienceRetryMaxBackoff
	out.CallDeadline = cfg.RetrievalTimeout
	out.BreakerEnabled = cfg.ResilienceBreakerEnabled
	if cfg.ResilienceBreakerMinRequests > 0 {
		out.BreakerMinRequests = uint32(cfg.ResilienceBreakerMinRequests)
	}
	out.BreakerFailureRatio = cfg.ResilienceBreakerFailureRatio
	out.BreakerOpenTimeout = cfg.ResilienceBreakerOpenTimeout
	return out
}

func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}
