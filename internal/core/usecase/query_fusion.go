package usecase

import (
	"sort"

	"github.com/kirillkom/devdocs-retriever/internal/core/domain"
)

const (
	defaultRRFK         = 60
	neutralRerankScore  = 5
	lexicalScoreCeiling = 10.0
	matchBoostPerQuery  = 0.1
)

// fuseCandidates ranks a copy of candidates by the chosen method. The input
// slice is left untouched.
func fuseCandidates(candidates []domain.Candidate, method domain.FusionMethod, rrfK int, lexicalEnabled bool) []domain.Candidate {
	out := make([]domain.Candidate, len(candidates))
	copy(out, candidates)
	if len(out) == 0 {
		return out
	}

	switch method {
	case domain.FusionWeighted:
		for i := range out {
			out[i].FusedScore = weightedScore(out[i], nil)
		}
	default:
		applyRRF(out, rrfK, lexicalEnabled)
	}

	sortByFusedScore(out)
	return out
}

func applyRRF(candidates []domain.Candidate, rrfK int, lexicalEnabled bool) {
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}

	denseRanks := competitionRanks(candidates, func(c domain.Candidate) float64 { return c.Distance }, true)
	var lexicalRanks []int
	if lexicalEnabled {
		lexicalRanks = competitionRanks(candidates, func(c domain.Candidate) float64 { return c.LexicalScore }, false)
	}

	for i := range candidates {
		if lexicalEnabled {
			candidates[i].FusedScore = rrfScore(rrfK, denseRanks[i], lexicalRanks[i])
			continue
		}
		candidates[i].FusedScore = rrfScore(rrfK, denseRanks[i])
	}
}

// rrfScore sums 1/(k+rank) over the rankings a candidate appears in.
func rrfScore(rrfK int, ranks ...int) float64 {
	var score float64
	for _, rank := range ranks {
		score += 1.0 / float64(rrfK+rank)
	}
	return score
}

// weightedScore blends the signals on a common 0..1 scale. A non-nil
// rerank score switches to the generative weighting.
func weightedScore(c domain.Candidate, rerank *float64) float64 {
	distanceScore := 1.0 / (1.0 + c.Distance)
	lexicalNormalized := c.LexicalScore / lexicalScoreCeiling
	if lexicalNormalized > 1 {
		lexicalNormalized = 1
	}
	matchBoost := float64(c.QueryMatchCount) * matchBoostPerQuery

	if rerank == nil {
		return 0.5*distanceScore + 0.4*lexicalNormalized + 0.1*matchBoost
	}
	return 0.3*distanceScore + 0.2*lexicalNormalized + 0.4*(*rerank/10.0) + 0.1*matchBoost
}

// competitionRanks assigns 1-based ranks where equal values share a rank.
func competitionRanks(candidates []domain.Candidate, value func(domain.Candidate) float64, ascending bool) []int {
	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		va, vb := value(candidates[order[a]]), value(candidates[order[b]])
		if va != vb {
			if ascending {
				return va < vb
			}
			return va > vb
		}
		return candidateBefore(candidates[order[a]], candidates[order[b]])
	})

	ranks := make([]int, len(candidates))
	for pos, idx := range order {
		if pos > 0 && value(candidates[idx]) == value(candidates[order[pos-1]]) {
			ranks[idx] = ranks[order[pos-1]]
			continue
		}
		ranks[idx] = pos + 1
	}
	return ranks
}

func sortByFusedScore(candidates []domain.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].FusedScore != candidates[j].FusedScore {
			return candidates[i].FusedScore > candidates[j].FusedScore
		}
		return candidateBefore(candidates[i], candidates[j])
	})
}

// candidateBefore is the deterministic tie-break: discovery order, then id.
func candidateBefore(a, b domain.Candidate) bool {
	if a.DiscoveryOrder != b.DiscoveryOrder {
		return a.DiscoveryOrder < b.DiscoveryOrder
	}
	return a.ID < b.ID
}

func trimCandidates(candidates []domain.Candidate, limit int) []domain.Candidate {
	if limit <= 0 || len(candidates) <= limit {
		return candidates
	}
	return candidates[:limit]
}
