package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/devdocs-retriever/internal/core/domain"
	"github.com/kirillkom/devdocs-retriever/internal/core/ports"
)

const (
	StageExpand               = "expand"
	StageHypotheticalDocument = "hypothetical_document"
	StageMultiQuery           = "multi_query"
	StageFanout               = "fanout"
	StageLexical              = "lexical"
	StageFusion               = "fusion"
	StageRerank               = "rerank"
)

const invalidModeLabel domain.ModeName = "invalid"

type RetrieveConfig struct {
	DefaultMode domain.ModeName
	Fusion      domain.FusionMethod
	RRFK        int
	Timeout     time.Duration
}

// RetrieveUseCase sequences expansion, fan-out, scoring, fusion and rerank
// according to the active mode profile.
type RetrieveUseCase struct {
	expander   *QueryExpander
	generative *GenerativeExpander
	fanout     *FanoutRetriever
	lexical    *LexicalScorer
	reranker   *GenerativeReranker
	observer   ports.PipelineObserver
	cfg        RetrieveConfig
}

func NewRetrieveUseCase(
	expander *QueryExpander,
	generative *GenerativeExpander,
	fanout *FanoutRetriever,
	lexical *LexicalScorer,
	reranker *GenerativeReranker,
	observer ports.PipelineObserver,
	cfg RetrieveConfig,
) *RetrieveUseCase {
	if cfg.DefaultMode == "" {
		cfg.DefaultMode = domain.ModeBalanced
	}
	if cfg.Fusion == "" {
		cfg.Fusion = domain.FusionRRF
	}
	if cfg.RRFK <= 0 {
		cfg.RRFK = defaultRRFK
	}
	if observer == nil {
		observer = nopObserver{}
	}
	if lexical == nil {
		lexical = NewLexicalScorer(0, defaultBM25B, nil)
	}
	if generative == nil {
		generative = NewGenerativeExpander(expander, nil, 0)
	}
	if reranker == nil {
		reranker = NewGenerativeReranker(nil, 0)
	}

	return &RetrieveUseCase{
		expander:   expander,
		generative: generative,
		fanout:     fanout,
		lexical:    lexical,
		reranker:   reranker,
		observer:   observer,
		cfg:        cfg,
	}
}

func (uc *RetrieveUseCase) Retrieve(ctx context.Context, req domain.RetrieveRequest) (*domain.RetrievalResult, error) {
	start := time.Now()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		err := domain.WrapError(domain.ErrInvalidInput, "retrieve", errors.New("query is required"))
		uc.observer.RetrievalFinished(ctx, uc.modeLabel(req.Mode), 0, 0, time.Since(start), err)
		return nil, err
	}
	profile, fusion, err := uc.resolveProfile(req)
	if err != nil {
		uc.observer.RetrievalFinished(ctx, uc.modeLabel(req.Mode), 0, 0, time.Since(start), err)
		return nil, err
	}

	if uc.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.cfg.Timeout)
		defer cancel()
	}

	result, err := uc.run(ctx, query, profile, fusion, domain.SearchFilter{Category: strings.TrimSpace(req.CategoryFilter)})

	candidates, returned := 0, 0
	if result != nil {
		candidates = result.Diagnostics.TotalCandidates
		returned = len(result.Results)
	}
	uc.observer.RetrievalFinished(ctx, profile.Name, candidates, returned, time.Since(start), err)
	return result, err
}

// modeLabel maps a requested mode onto a known profile name so that rejected
// requests never leak caller-chosen strings into observer labels.
func (uc *RetrieveUseCase) modeLabel(mode domain.ModeName) domain.ModeName {
	if strings.TrimSpace(string(mode)) == "" {
		mode = uc.cfg.DefaultMode
	}
	profile, err := domain.ProfileFor(mode)
	if err != nil {
		return invalidModeLabel
	}
	return profile.Name
}

func (uc *RetrieveUseCase) resolveProfile(req domain.RetrieveRequest) (domain.ModeProfile, domain.FusionMethod, error) {
	mode := req.Mode
	if strings.TrimSpace(string(mode)) == "" {
		mode = uc.cfg.DefaultMode
	}
	profile, err := domain.ProfileFor(mode)
	if err != nil {
		return domain.ModeProfile{}, "", err
	}
	profile = profile.Apply(req.Overrides)
	if req.FinalK != 0 {
		profile.FinalK = req.FinalK
	}
	if err := profile.Validate(); err != nil {
		return domain.ModeProfile{}, "", err
	}

	fusion := req.Fusion
	if fusion == "" {
		fusion = uc.cfg.Fusion
	}
	parsed, err := domain.ParseFusionMethod(string(fusion))
	if err != nil {
		return domain.ModeProfile{}, "", err
	}
	return profile, parsed, nil
}

func (uc *RetrieveUseCase) run(
	ctx context.Context,
	query string,
	profile domain.ModeProfile,
	fusion domain.FusionMethod,
	filter domain.SearchFilter,
) (*domain.RetrievalResult, error) {
	diag := domain.Diagnostics{
		Mode:         profile.Name,
		FusionMethod: fusion,
		StageErrors:  []domain.StageError{},
	}

	analysis, queries := uc.expand(ctx, query, profile, &diag)
	diag.Intent = analysis.Intent
	diag.Category = analysis.Category
	diag.ExpandedQuery = analysis.Expanded
	diag.CandidateQueries = queries
	if err := contextFailure(ctx); err != nil {
		return nil, err
	}

	stageStart := time.Now()
	candidates, err := uc.fanout.Retrieve(ctx, queries, profile.InitialK, filter)
	uc.observer.StageFinished(ctx, StageFanout, time.Since(stageStart), err)
	if err != nil {
		if ctxErr := contextFailure(ctx); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, domain.WrapError(domain.ErrExternalService, "fan-out retrieval", err)
	}

	if profile.UseLexicalScoring {
		stageStart = time.Now()
		uc.lexical.Apply(query, candidates)
		uc.observer.StageFinished(ctx, StageLexical, time.Since(stageStart), nil)
	}

	stageStart = time.Now()
	fused := fuseCandidates(candidates, fusion, uc.cfg.RRFK, profile.UseLexicalScoring)
	uc.observer.StageFinished(ctx, StageFusion, time.Since(stageStart), nil)

	if profile.UseGenerativeRerank && len(fused) > 0 {
		stageStart = time.Now()
		reranked := uc.reranker.Rerank(ctx, query, fused, fusion, profile.FinalK)
		uc.observer.StageFinished(ctx, StageRerank, time.Since(stageStart), reranked.Err)
		fused = reranked.Value
		if reranked.Degraded() {
			fallback := "fused order kept"
			if domain.IsKind(reranked.Err, domain.ErrMalformedResponse) {
				fallback = "neutral score 5 for unparsed entries"
			}
			uc.degrade(ctx, &diag, StageRerank, reranked.Err, fallback)
		}
		if err := contextFailure(ctx); err != nil {
			return nil, err
		}
	}

	diag.TotalCandidates = len(fused)
	return &domain.RetrievalResult{
		Results:     trimCandidates(fused, profile.FinalK),
		Diagnostics: diag,
	}, nil
}

// expand returns the analysed query and the capped, deduplicated probe list.
// The original query is always first.
func (uc *RetrieveUseCase) expand(
	ctx context.Context,
	query string,
	profile domain.ModeProfile,
	diag *domain.Diagnostics,
) (domain.Query, []string) {
	stageStart := time.Now()
	analysis := uc.expander.Analyze(query)
	if !profile.UseQueryExpansion {
		analysis.Expanded = query
	}

	probes := []string{query}
	switch {
	case profile.UseMultiQuery:
		multi := uc.generative.MultiQueries(ctx, query, profile.MaxQueries)
		if multi.Degraded() {
			uc.degrade(ctx, diag, StageMultiQuery, multi.Err, "rule-based candidate queries")
		}
		probes = append(probes, multi.Value...)
		if profile.UseQueryExpansion {
			probes = append(probes, analysis.Expanded)
		}
	case profile.UseQueryExpansion:
		probes = append(probes, uc.expander.GenerateCandidateQueries(query, profile.MaxQueries)...)
	}

	limit := profile.MaxQueries
	var hypothetical string
	if profile.UseHypotheticalDocument {
		hyde := uc.generative.HypotheticalDocument(ctx, query)
		if hyde.Degraded() {
			uc.degrade(ctx, diag, StageHypotheticalDocument, hyde.Err, "probe omitted")
		} else {
			hypothetical = hyde.Value
			analysis.HypotheticalDocument = hypothetical
			if limit > 1 {
				limit--
			}
		}
	}

	queries := dedupeQueries(probes, limit)
	if hypothetical != "" {
		queries = dedupeQueries(append(queries, hypothetical), profile.MaxQueries)
	}
	uc.observer.StageFinished(ctx, StageExpand, time.Since(stageStart), nil)
	return analysis, queries
}

func (uc *RetrieveUseCase) degrade(ctx context.Context, diag *domain.Diagnostics, stage string, err error, fallback string) {
	stageErr := domain.StageError{
		Stage:    stage,
		Kind:     domain.ErrorKindName(err),
		Message:  err.Error(),
		Fallback: fallback,
	}
	diag.StageErrors = append(diag.StageErrors, stageErr)
	uc.observer.StageDegraded(ctx, stageErr)
}

// contextFailure turns an expired or cancelled call context into the fatal
// error of the whole retrieval; partial results are never returned.
func contextFailure(ctx context.Context) error {
	err := ctx.Err()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return domain.WrapError(domain.ErrDeadlineExceeded, "retrieve", err)
	default:
		return fmt.Errorf("retrieve: %w", err)
	}
}

type nopObserver struct{}

func (nopObserver) StageFinished(context.Context, string, time.Duration, error) {}
func (nopObserver) StageDegraded(context.Context, domain.StageError)            {}
func (nopObserver) RetrievalFinished(context.Context, domain.ModeName, int, int, time.Duration, error) {
}
