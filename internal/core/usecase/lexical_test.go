package usecase

import (
	"strings"
	"testing"

	"github.com/kirillkom/devdocs-retriever/internal/core/domain"
)

func lexicalCandidates() []domain.Candidate {
	return []domain.Candidate{
		{ID: "a", Content: "ERC20 token transfer and approve functions"},
		{ID: "b", Content: "Governor contracts manage proposals and voting"},
		{ID: "c", Content: "The token balance is tracked per account; token transfers emit events"},
		{ID: "d", Content: ""},
	}
}

func TestLexicalScorerRanksOverlap(t *testing.T) {
	scorer := NewLexicalScorer(1.5, 0.75, nil)
	scores := scorer.Score("erc20 token transfer", lexicalCandidates())

	if len(scores) != 4 {
		t.Fatalf("expected 4 scores, got %d", len(scores))
	}
	if scores[0] <= scores[2] {
		t.Fatalf("expected candidate a to beat c: %v", scores)
	}
	if scores[1] != 0 || scores[3] != 0 {
		t.Fatalf("expected zero scores for non-matching candidates: %v", scores)
	}
	for i, s := range scores {
		if s < 0 {
			t.Fatalf("score %d is negative: %v", i, s)
		}
	}
}

func TestLexicalScorerIsDeterministic(t *testing.T) {
	scorer := NewLexicalScorer(0, 0.75, nil)
	first := scorer.Score("token transfer", lexicalCandidates())
	for run := 0; run < 10; run++ {
		again := scorer.Score("token transfer", lexicalCandidates())
		for i := range first {
			if first[i] != again[i] {
				t.Fatalf("run %d score %d changed: %v vs %v", run, i, first[i], again[i])
			}
		}
	}
}

func TestLexicalScorerEmptyCandidates(t *testing.T) {
	scorer := NewLexicalScorer(1.5, 0.75, nil)
	if scores := scorer.Score("anything", nil); len(scores) != 0 {
		t.Fatalf("expected empty scores, got %v", scores)
	}
}

func TestLexicalScorerEmptyQuery(t *testing.T) {
	scorer := NewLexicalScorer(1.5, 0.75, nil)
	for _, s := range scorer.Score("   ", lexicalCandidates()) {
		if s != 0 {
			t.Fatalf("expected zero scores for empty query, got %v", s)
		}
	}
}

func TestLexicalScorerUsesPluggableTokenizer(t *testing.T) {
	commaTokenizer := func(s string) []string {
		return strings.Split(strings.ToLower(s), ",")
	}
	scorer := NewLexicalScorer(1.5, 0.75, commaTokenizer)
	candidates := []domain.Candidate{{ID: "a", Content: "safe mint,burn"}, {ID: "b", Content: "safe,mint"}}

	scores := scorer.Score("safe mint", candidates)
	if scores[0] <= 0 || scores[1] != 0 {
		t.Fatalf("expected only the comma-token match to score: %v", scores)
	}
}

func TestLexicalScorerApplyWritesScores(t *testing.T) {
	scorer := NewLexicalScorer(1.5, 0.75, nil)
	candidates := lexicalCandidates()
	scorer.Apply("governor voting", candidates)
	if candidates[1].LexicalScore <= 0 {
		t.Fatalf("expected lexical score on candidate b, got %+v", candidates[1])
	}
}
