package domain

import "encoding/json"

type SearchFilter struct {
	Category string
}

// SearchHit is one row returned by the similarity index for one query.
type SearchHit struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Distance float64           `json:"distance"`
}

// Candidate is a deduplicated passage flowing through scoring and fusion.
type Candidate struct {
	ID              string            `json:"id"`
	Content         string            `json:"content"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	Distance        float64           `json:"distance"`
	QueryMatchCount int               `json:"query_match_count"`
	LexicalScore    float64           `json:"lexical_score"`
	RerankScore     *float64          `json:"rerank_score,omitempty"`
	FusedScore      float64           `json:"final_score"`

	// DiscoveryOrder is the position at which the id was first merged.
	DiscoveryOrder int `json:"-"`
}

type StageError struct {
	Stage    string `json:"stage"`
	Kind     string `json:"kind"`
	Message  string `json:"message"`
	Fallback string `json:"fallback,omitempty"`
}

type Diagnostics struct {
	Mode             ModeName     `json:"mode"`
	FusionMethod     FusionMethod `json:"fusion_method"`
	Intent           Intent       `json:"intent"`
	Category         string       `json:"category"`
	ExpandedQuery    string       `json:"expanded_query"`
	CandidateQueries []string     `json:"candidate_queries_used"`
	TotalCandidates  int          `json:"total_candidates_before_truncation"`
	StageErrors      []StageError `json:"stage_errors"`
}

type RetrievalResult struct {
	Results     []Candidate `json:"results"`
	Diagnostics Diagnostics `json:"diagnostics"`
}

type RetrieveRequest struct {
	Query          string            `json:"query"`
	Mode           ModeName          `json:"mode,omitempty"`
	CategoryFilter string            `json:"category_filter,omitempty"`
	FinalK         int               `json:"final_k,omitempty"`
	Fusion         FusionMethod      `json:"fusion,omitempty"`
	Overrides      *ProfileOverrides `json:"overrides,omitempty"`
}

// UnmarshalJSON also accepts the older "category" key. When both keys are
// present, category_filter wins.
func (r *RetrieveRequest) UnmarshalJSON(data []byte) error {
	type plain RetrieveRequest
	var aux struct {
		plain
		Category string `json:"category"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = RetrieveRequest(aux.plain)
	if r.CategoryFilter == "" {
		r.CategoryFilter = aux.Category
	}
	return nil
}
