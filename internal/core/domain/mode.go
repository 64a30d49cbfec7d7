package domain

import (
	"fmt"
	"strings"
)

type ModeName string

const (
	ModeFast     ModeName = "fast"
	ModeBalanced ModeName = "balanced"
	ModeAccurate ModeName = "accurate"
)

// FusionMethod selects how semantic and lexical signals are combined.
type FusionMethod string

const (
	FusionRRF      FusionMethod = "rrf"
	FusionWeighted FusionMethod = "weighted"
)

const (
	MaxFinalK   = 50
	MaxInitialK = 200
)

func ParseFusionMethod(raw string) (FusionMethod, error) {
	switch FusionMethod(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FusionRRF:
		return FusionRRF, nil
	case FusionWeighted, "score":
		return FusionWeighted, nil
	default:
		return "", WrapError(ErrInvalidInput, "parse fusion method", fmt.Errorf("unknown fusion method %q", raw))
	}
}

type ModeProfile struct {
	Name                    ModeName `json:"name"`
	UseQueryExpansion       bool     `json:"use_query_expansion"`
	UseHypotheticalDocument bool     `json:"use_hypothetical_document"`
	UseMultiQuery           bool     `json:"use_multi_query"`
	UseLexicalScoring       bool     `json:"use_lexical_scoring"`
	UseGenerativeRerank     bool     `json:"use_generative_rerank"`
	InitialK                int      `json:"initial_k"`
	FinalK                  int      `json:"final_k"`
	MaxQueries              int      `json:"max_queries"`
}

// ProfileOverrides replaces individual profile fields when set.
type ProfileOverrides struct {
	UseQueryExpansion       *bool `json:"use_query_expansion,omitempty"`
	UseHypotheticalDocument *bool `json:"use_hypothetical_document,omitempty"`
	UseMultiQuery           *bool `json:"use_multi_query,omitempty"`
	UseLexicalScoring       *bool `json:"use_lexical_scoring,omitempty"`
	UseGenerativeRerank     *bool `json:"use_generative_rerank,omitempty"`
	InitialK                *int  `json:"initial_k,omitempty"`
	FinalK                  *int  `json:"final_k,omitempty"`
	MaxQueries              *int  `json:"max_queries,omitempty"`
}

func Profiles() []ModeProfile {
	return []ModeProfile{
		{
			Name:              ModeFast,
			UseQueryExpansion: true,
			InitialK:          10,
			FinalK:            5,
			MaxQueries:        2,
		},
		{
			Name:              ModeBalanced,
			UseQueryExpansion: true,
			UseLexicalScoring: true,
			InitialK:          20,
			FinalK:            5,
			MaxQueries:        3,
		},
		{
			Name:                    ModeAccurate,
			UseQueryExpansion:       true,
			UseHypotheticalDocument: true,
			UseMultiQuery:           true,
			UseLexicalScoring:       true,
			UseGenerativeRerank:     true,
			InitialK:                30,
			FinalK:                  5,
			MaxQueries:              5,
		},
	}
}

func ProfileFor(name ModeName) (ModeProfile, error) {
	normalized := ModeName(strings.ToLower(strings.TrimSpace(string(name))))
	for _, p := range Profiles() {
		if p.Name == normalized {
			return p, nil
		}
	}
	return ModeProfile{}, WrapError(ErrInvalidInput, "resolve mode", fmt.Errorf("unknown mode %q", name))
}

func (p ModeProfile) Apply(o *ProfileOverrides) ModeProfile {
	if o == nil {
		return p
	}
	out := p
	if o.UseQueryExpansion != nil {
		out.UseQueryExpansion = *o.UseQueryExpansion
	}
	if o.UseHypotheticalDocument != nil {
		out.UseHypotheticalDocument = *o.UseHypotheticalDocument
	}
	if o.UseMultiQuery != nil {
		out.UseMultiQuery = *o.UseMultiQuery
	}
	if o.UseLexicalScoring != nil {
		out.UseLexicalScoring = *o.UseLexicalScoring
	}
	if o.UseGenerativeRerank != nil {
		out.UseGenerativeRerank = *o.UseGenerativeRerank
	}
	if o.InitialK != nil {
		out.InitialK = *o.InitialK
	}
	if o.FinalK != nil {
		out.FinalK = *o.FinalK
	}
	if o.MaxQueries != nil {
		out.MaxQueries = *o.MaxQueries
	}
	return out
}

func (p ModeProfile) Validate() error {
	if p.FinalK < 1 || p.FinalK > MaxFinalK {
		return WrapError(ErrInvalidInput, "validate profile", fmt.Errorf("final_k must be in 1..%d, got %d", MaxFinalK, p.FinalK))
	}
	if p.InitialK < 1 || p.InitialK > MaxInitialK {
		return WrapError(ErrInvalidInput, "validate profile", fmt.Errorf("initial_k must be in 1..%d, got %d", MaxInitialK, p.InitialK))
	}
	if p.MaxQueries < 1 {
		return WrapError(ErrInvalidInput, "validate profile", fmt.Errorf("max_queries must be positive, got %d", p.MaxQueries))
	}
	return nil
}
