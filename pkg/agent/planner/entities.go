package planner

import (
	"regexp"
	"strings"
)

const maxEntities = 5

var (
	companyRe  = regexp.MustCompile(`(?i)\b(jp\s*morgan|jpmorgan|google|microsoft|amazon|facebook|linkedin|indeed)\b`)
	jobTitleRe = regexp.MustCompile(`(?i)\b(software\s+engineer|developer|programmer|engineer|analyst)\b`)
	locationRe = regexp.MustCompile(`(?i)\b(india|bangalore|mumbai|delhi|hyderabad|remote)\b`)

	punctuation = regexp.MustCompile(`[^\w\s]`)
)

// extractEntities pulls the salient nouns out of one actionable unit.
// Known company, job-title, and location vocabularies are tried first;
// if none match, significant non-stopword tokens are used instead.
// Results are deduplicated case-insensitively and capped at five.
func extractEntities(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var entities []string
	used := make(map[string]bool)

	add := func(raw string) {
		e := strings.TrimSpace(raw)
		key := strings.Join(strings.Fields(strings.ToLower(e)), " ")
		if e != "" && !used[key] {
			entities = append(entities, e)
			used[key] = true
		}
	}

	for _, re := range []*regexp.Regexp{companyRe, jobTitleRe, locationRe} {
		for _, m := range re.FindAllString(text, -1) {
			add(m)
		}
	}

	// Fallback: significant tokens when no vocabulary matched.
	if len(entities) == 0 {
		for _, w := range strings.Fields(text) {
			w = punctuation.ReplaceAllString(w, "")
			if len(w) > 3 && !isPlannerStopWord(strings.ToLower(w)) {
				add(w)
			}
		}
	}

	if len(entities) > maxEntities {
		entities = entities[:maxEntities]
	}
	return entities
}

// The planner's stopword list is wider than the memory store's: it
// also drops auxiliaries and the planning verbs themselves, which
// would otherwise leak into every entity set.
var plannerStopWords = map[string]bool{
	"the": true, "and": true, "or": true, "but": true, "in": true,
	"on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "this": true, "that": true,
	"these": true, "those": true, "a": true, "an": true, "is": true,
	"are": true, "was": true, "were": true, "be": true, "been": true,
	"have": true, "has": true, "had": true, "do": true, "does": true,
	"did": true, "will": true, "would": true, "could": true,
	"should": true, "may": true, "might": true, "can": true,
	"go": true, "get": true, "find": true, "search": true,
}

func isPlannerStopWord(word string) bool {
	return plannerStopWords[word]
}
