package usecase

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/devdocs-retriever/internal/core/domain"
)

//go:embed expansion_rules.yaml
var defaultExpansionRulesYAML []byte

const defaultMaxExpansionTerms = 2

type SynonymEntry struct {
	Term    string   `yaml:"term"`
	Related []string `yaml:"related"`
}

type IntentRule struct {
	Intent   domain.Intent `yaml:"intent"`
	Triggers []string      `yaml:"triggers"`
}

type CategoryRule struct {
	Category string   `yaml:"category"`
	Keywords []string `yaml:"keywords"`
}

// ExpansionRules holds the ordered tables driving rule-based expansion.
type ExpansionRules struct {
	MaxTerms   int                        `yaml:"max_terms"`
	Synonyms   []SynonymEntry             `yaml:"synonyms"`
	Intents    []IntentRule               `yaml:"intents"`
	Categories []CategoryRule             `yaml:"categories"`
	Templates  map[domain.Intent][]string `yaml:"templates"`
}

func DefaultExpansionRules() ExpansionRules {
	rules, err := ParseExpansionRules(defaultExpansionRulesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded expansion rules are invalid: %v", err))
	}
	return rules
}

func ParseExpansionRules(data []byte) (ExpansionRules, error) {
	var rules ExpansionRules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return ExpansionRules{}, fmt.Errorf("decode expansion rules: %w", err)
	}
	if err := rules.normalize(); err != nil {
		return ExpansionRules{}, err
	}
	return rules, nil
}

func (r *ExpansionRules) normalize() error {
	if r.MaxTerms <= 0 {
		r.MaxTerms = defaultMaxExpansionTerms
	}

	for i := range r.Synonyms {
		r.Synonyms[i].Term = strings.ToLower(strings.TrimSpace(r.Synonyms[i].Term))
		if r.Synonyms[i].Term == "" {
			return fmt.Errorf("synonym entry %d has empty term", i)
		}
		r.Synonyms[i].Related = lowerAll(r.Synonyms[i].Related)
	}
	for i := range r.Intents {
		if !r.Intents[i].Intent.Valid() {
			return fmt.Errorf("unknown intent %q in rule %d", r.Intents[i].Intent, i)
		}
		r.Intents[i].Triggers = lowerAll(r.Intents[i].Triggers)
	}
	for i := range r.Categories {
		r.Categories[i].Category = strings.TrimSpace(r.Categories[i].Category)
		if r.Categories[i].Category == "" {
			return fmt.Errorf("category rule %d has empty name", i)
		}
		r.Categories[i].Keywords = lowerAll(r.Categories[i].Keywords)
	}
	if len(r.Templates[domain.IntentGeneral]) == 0 {
		return fmt.Errorf("templates for intent %q are required", domain.IntentGeneral)
	}
	for intent, templates := range r.Templates {
		if !intent.Valid() {
			return fmt.Errorf("unknown intent %q in templates", intent)
		}
		for _, tpl := range templates {
			if !strings.Contains(tpl, queryPlaceholder) {
				return fmt.Errorf("template %q for intent %q lacks %s", tpl, intent, queryPlaceholder)
			}
		}
	}
	return nil
}

// lowerAll keeps whitespace inside phrases: triggers such as " vs " rely on it.
func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		out = append(out, strings.ToLower(v))
	}
	return out
}
