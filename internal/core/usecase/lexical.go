package usecase

import (
	"math"
	"strings"

	"github.com/kirillkom/devdocs-retriever/internal/core/domain"
)

const (
	defaultBM25K1 = 1.5
	defaultBM25B  = 0.75
)

// Tokenizer splits text into scoring terms.
type Tokenizer func(string) []string

// WhitespaceTokenizer lower-cases and splits on whitespace.
func WhitespaceTokenizer(s string) []string {
	return strings.Fields(strings.ToLower(s))
}

// LexicalScorer computes BM25 relevance of each candidate against a query,
// using the candidate set itself as the corpus.
type LexicalScorer struct {
	k1       float64
	b        float64
	tokenize Tokenizer
}

func NewLexicalScorer(k1, b float64, tokenize Tokenizer) *LexicalScorer {
	if k1 <= 0 {
		k1 = defaultBM25K1
	}
	if b < 0 || b > 1 {
		b = defaultBM25B
	}
	if tokenize == nil {
		tokenize = WhitespaceTokenizer
	}
	return &LexicalScorer{k1: k1, b: b, tokenize: tokenize}
}

// Score returns one non-negative score per candidate, in input order.
func (s *LexicalScorer) Score(query string, candidates []domain.Candidate) []float64 {
	scores := make([]float64, len(candidates))
	if len(candidates) == 0 {
		return scores
	}

	queryTerms := uniqueTerms(s.tokenize(query))
	if len(queryTerms) == 0 {
		return scores
	}

	termFreqs := make([]map[string]int, len(candidates))
	docLens := make([]float64, len(candidates))
	docFreq := make(map[string]int, len(queryTerms))
	var totalLen float64
	for i, c := range candidates {
		tokens := s.tokenize(c.Content)
		tf := make(map[string]int, len(tokens))
		for _, t := range tokens {
			tf[t]++
		}
		termFreqs[i] = tf
		docLens[i] = float64(len(tokens))
		totalLen += docLens[i]
		for _, term := range queryTerms {
			if tf[term] > 0 {
				docFreq[term]++
			}
		}
	}

	n := float64(len(candidates))
	avgLen := totalLen / n
	if avgLen == 0 {
		return scores
	}

	idf := make(map[string]float64, len(queryTerms))
	for _, term := range queryTerms {
		df := float64(docFreq[term])
		idf[term] = math.Log((n-df+0.5)/(df+0.5) + 1)
	}

	for i := range candidates {
		norm := s.k1 * (1 - s.b + s.b*(docLens[i]/avgLen))
		var score float64
		for _, term := range queryTerms {
			tf := float64(termFreqs[i][term])
			if tf == 0 {
				continue
			}
			score += idf[term] * (tf * (s.k1 + 1)) / (tf + norm)
		}
		if math.IsNaN(score) || math.IsInf(score, 0) || score < 0 {
			score = 0
		}
		scores[i] = score
	}
	return scores
}

// Apply writes scores into the candidates' LexicalScore fields.
func (s *LexicalScorer) Apply(query string, candidates []domain.Candidate) {
	for i, score := range s.Score(query, candidates) {
		candidates[i].LexicalScore = score
	}
}

func uniqueTerms(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
