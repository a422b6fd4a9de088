package planner

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gobwas/glob"
)

// SuggestionRule emits a domain-specific task suggestion when the
// objective matches. When is an any-of match on objective substrings;
// Requires, when set, is a second any-of condition that must also hold.
type SuggestionRule struct {
	When        []string
	Requires    []string
	Description string
	Confidence  float64
	Tools       []string
}

func (r SuggestionRule) matches(objective string) bool {
	if !containsAny(objective, r.When) {
		return false
	}
	if len(r.Requires) > 0 && !containsAny(objective, r.Requires) {
		return false
	}
	return true
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// VocabEntry associates a hostname pattern with a keyword vocabulary
// and optional suggestion rules.
type VocabEntry struct {
	Name        string
	HostPattern string
	Keywords    []string
	Suggestions []SuggestionRule

	pattern glob.Glob
}

// VocabTable is the data-driven domain vocabulary: new domains are
// added with Learn rather than by code changes. Additions are purely
// additive; there is no removal policy.
type VocabTable struct {
	mu      sync.RWMutex
	entries []*VocabEntry
	byName  map[string]*VocabEntry
}

// NewVocabTable creates a table pre-loaded with the generic web
// navigation vocabularies and the known job-site entries.
func NewVocabTable() *VocabTable {
	t := &VocabTable{byName: make(map[string]*VocabEntry)}
	for _, e := range defaultVocab() {
		// Defaults are statically valid; Learn only fails on bad globs.
		_ = t.add(e)
	}
	return t
}

// Learn registers or replaces a vocabulary entry. HostPattern is a
// glob over hostnames ("*.linkedin.com"); an empty pattern makes the
// entry generic (keywords only, never host-matched).
func (t *VocabTable) Learn(name, hostPattern string, keywords []string, suggestions ...SuggestionRule) error {
	return t.add(&VocabEntry{
		Name:        name,
		HostPattern: hostPattern,
		Keywords:    keywords,
		Suggestions: suggestions,
	})
}

func (t *VocabTable) add(e *VocabEntry) error {
	if e.HostPattern != "" {
		p, err := glob.Compile(e.HostPattern)
		if err != nil {
			return fmt.Errorf("invalid host pattern %q: %w", e.HostPattern, err)
		}
		e.pattern = p
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.byName[e.Name]; ok {
		*existing = *e
		return nil
	}
	t.entries = append(t.entries, e)
	t.byName[e.Name] = e
	return nil
}

// Keywords returns the keyword set for a named vocabulary, or nil.
func (t *VocabTable) Keywords(name string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if e, ok := t.byName[name]; ok {
		return e.Keywords
	}
	return nil
}

// MatchHost returns every entry whose host pattern matches the given
// hostname.
func (t *VocabTable) MatchHost(host string) []*VocabEntry {
	host = strings.ToLower(host)

	t.mu.RLock()
	defer t.mu.RUnlock()

	var matched []*VocabEntry
	for _, e := range t.entries {
		if e.pattern != nil && e.pattern.Match(host) {
			matched = append(matched, e)
		}
	}
	return matched
}

func defaultVocab() []*VocabEntry {
	return []*VocabEntry{
		{
			Name:     "job_search",
			Keywords: []string{"careers", "jobs", "opportunities", "positions", "employment", "work-with-us"},
		},
		{
			Name:     "company_search",
			Keywords: []string{"about", "company", "organization", "who-we-are", "our-company"},
		},
		{
			Name:     "location_filter",
			Keywords: []string{"location", "country", "city", "region", "office", "remote"},
		},
		{
			Name:     "job_type_filter",
			Keywords: []string{"software", "engineer", "developer", "programmer", "technical", "technology"},
		},
		{
			Name:        "linkedin_job_search",
			HostPattern: "*linkedin.com",
			Keywords:    []string{"jobs", "search", "location", "experience-level"},
		},
		{
			Name:        "indeed_job_search",
			HostPattern: "*indeed.com",
			Keywords:    []string{"job-search", "where", "salary", "job-type"},
		},
		{
			Name:        "jpmorgan_careers",
			HostPattern: "*jpmorgan*",
			Keywords:    []string{"careers", "search-jobs", "locations", "job-family"},
			Suggestions: []SuggestionRule{
				{
					When:        []string{"job", "career"},
					Description: "Use JP Morgan specific job search interface",
					Confidence:  0.9,
					Tools:       []string{"clickElement", "fillInput", "waitForElement"},
				},
				{
					When:        []string{"job", "career"},
					Requires:    []string{"india"},
					Description: "Filter by India office locations (Mumbai, Bangalore, Hyderabad)",
					Confidence:  0.85,
					Tools:       []string{"fillInput", "clickElement"},
				},
			},
		},
	}
}
