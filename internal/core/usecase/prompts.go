package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/devdocs-retriever/internal/core/domain"
)

const rerankPassageChars = 800

func buildHypotheticalDocumentPrompt(query string) string {
	return fmt.Sprintf(`You are writing developer documentation.
Write one short passage (at most 120 words) that directly answers the question below,
as it would appear in official docs. Include the relevant API names. No preamble.

Question:
%s
`, query)
}

func buildMultiQueryPrompt(query string, n int) string {
	return fmt.Sprintf(`Rewrite the developer question below into %d diverse search queries
for a documentation search engine. Vary vocabulary and specificity.
Return strict JSON array of strings only. No markdown, no extra text.

Question:
%s
`, n, query)
}

func buildRelevancePrompt(query string, candidates []domain.Candidate) string {
	var b strings.Builder
	for idx, c := range candidates {
		b.WriteString(fmt.Sprintf("[%d]\n%s\n\n", idx+1, truncateRunes(c.Content, rerankPassageChars)))
	}

	return fmt.Sprintf(`Score how relevant each passage is to the question, from 0 (irrelevant) to 10 (answers it).
Return strict JSON array of %d integers in passage order. No markdown, no extra text.

Question:
%s

Passages:
%s`, len(candidates), query, b.String())
}

// truncateRunes cuts s to at most maxBytes without splitting a rune.
func truncateRunes(s string, maxBytes int) string {
	if maxBytes <= 0 || len(s) <= maxBytes {
		return s
	}
	cut := 0
	for i := range s {
		if i > maxBytes {
			break
		}
		cut = i
	}
	return s[:cut]
}
