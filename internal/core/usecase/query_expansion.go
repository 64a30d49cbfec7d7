package usecase

import (
	"strings"

	"github.com/kirillkom/devdocs-retriever/internal/core/domain"
)

const queryPlaceholder = "{query}"

// QueryExpander rewrites one query into retrieval probes using ordered
// rule tables. It is deterministic and safe for concurrent use.
type QueryExpander struct {
	rules ExpansionRules
}

func NewQueryExpander(rules ExpansionRules) *QueryExpander {
	if rules.MaxTerms <= 0 {
		rules.MaxTerms = defaultMaxExpansionTerms
	}
	return &QueryExpander{rules: rules}
}

// Analyze fills the rule-based fields of a Query.
func (e *QueryExpander) Analyze(query string) domain.Query {
	query = strings.TrimSpace(query)
	return domain.Query{
		Original: query,
		Expanded: e.Expand(query),
		Intent:   e.ClassifyIntent(query),
		Category: e.InferCategory(query),
	}
}

// Expand appends up to MaxTerms related dictionary terms that the query does
// not already contain, as "<query> (<t1> <t2>)". Single-word dictionary keys
// match whole query tokens only; multi-word keys match as phrases.
func (e *QueryExpander) Expand(query string) string {
	lowered := strings.ToLower(query)
	present := queryTokenSet(lowered)

	added := make([]string, 0, e.rules.MaxTerms)
	seen := make(map[string]struct{}, e.rules.MaxTerms)
	for _, entry := range e.rules.Synonyms {
		if len(added) >= e.rules.MaxTerms {
			break
		}
		if !termPresent(entry.Term, lowered, present) {
			continue
		}
		for _, related := range entry.Related {
			if len(added) >= e.rules.MaxTerms {
				break
			}
			if termPresent(related, lowered, present) {
				continue
			}
			if _, dup := seen[related]; dup {
				continue
			}
			seen[related] = struct{}{}
			added = append(added, related)
		}
	}

	if len(added) == 0 {
		return query
	}
	return query + " (" + strings.Join(added, " ") + ")"
}

func (e *QueryExpander) ClassifyIntent(query string) domain.Intent {
	lowered := strings.ToLower(query)
	for _, rule := range e.rules.Intents {
		if containsAny(lowered, rule.Triggers) {
			return rule.Intent
		}
	}
	return domain.IntentGeneral
}

func (e *QueryExpander) InferCategory(query string) string {
	lowered := strings.ToLower(query)
	for _, rule := range e.rules.Categories {
		if containsAny(lowered, rule.Keywords) {
			return rule.Category
		}
	}
	return domain.CategoryGeneral
}

// GenerateCandidateQueries builds [original, expanded, intent variants...]
// deduplicated and truncated to n. It is the fallback whenever generative
// expansion is disabled or fails.
func (e *QueryExpander) GenerateCandidateQueries(query string, n int) []string {
	query = strings.TrimSpace(query)
	if n <= 0 || query == "" {
		return nil
	}

	candidates := []string{query, e.Expand(query)}
	intent := e.ClassifyIntent(query)
	for _, tpl := range e.templatesFor(intent) {
		candidates = append(candidates, strings.ReplaceAll(tpl, queryPlaceholder, query))
	}
	return dedupeQueries(candidates, n)
}

// templatesFor returns the intent's own templates followed by the general
// ones so that short queries still produce enough distinct variants.
func (e *QueryExpander) templatesFor(intent domain.Intent) []string {
	templates := make([]string, 0, 6)
	templates = append(templates, e.rules.Templates[intent]...)
	if intent != domain.IntentGeneral {
		templates = append(templates, e.rules.Templates[domain.IntentGeneral]...)
	}
	return templates
}

// dedupeQueries keeps first occurrences, comparing case- and
// whitespace-insensitively, and stops at limit (limit <= 0 means unbounded).
func dedupeQueries(queries []string, limit int) []string {
	out := make([]string, 0, len(queries))
	seen := make(map[string]struct{}, len(queries))
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		key := strings.ToLower(strings.Join(strings.Fields(q), " "))
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, q)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func queryTokenSet(lowered string) map[string]struct{} {
	fields := strings.Fields(lowered)
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?()[]{}\"'`")
		if f != "" {
			out[f] = struct{}{}
		}
	}
	return out
}

func termPresent(term, lowered string, tokens map[string]struct{}) bool {
	if strings.Contains(term, " ") {
		return strings.Contains(lowered, term)
	}
	_, ok := tokens[term]
	return ok
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(s, n) {
			return true
		}
	}
	return false
}
