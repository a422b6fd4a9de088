package memory

import (
	"sort"
	"strings"
	"time"
)

const (
	// maxDomainPatterns bounds the mined pattern bag per domain.
	maxDomainPatterns = 50

	// maxDomainActions bounds how many successful actions a query returns.
	maxDomainActions = 10
)

// ActionRecord is one successful action observed on a domain.
type ActionRecord struct {
	Action    string    `json:"action"`
	Context   string    `json:"context"`
	Timestamp time.Time `json:"timestamp"`
}

// FailureRecord is one failed action observed on a domain.
type FailureRecord struct {
	Action    string    `json:"action"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// DomainMemory aggregates what the agent has learned about one website.
type DomainMemory struct {
	Domain            string          `json:"domain"`
	Patterns          []string        `json:"patterns"`
	SuccessfulActions []ActionRecord  `json:"successfulActions"`
	FailurePatterns   []FailureRecord `json:"failurePatterns"`
}

// lastActivity returns the timestamp of the most recent event on the
// domain, zero when the aggregate is empty.
func (d *DomainMemory) lastActivity() time.Time {
	var latest time.Time
	for _, a := range d.SuccessfulActions {
		if a.Timestamp.After(latest) {
			latest = a.Timestamp
		}
	}
	for _, f := range d.FailurePatterns {
		if f.Timestamp.After(latest) {
			latest = f.Timestamp
		}
	}
	return latest
}

// NormalizeDomain canonicalizes a hostname for aggregate lookup:
// lowercased, leading "www." stripped, trailing slash stripped.
func NormalizeDomain(domain string) string {
	d := strings.ToLower(domain)
	d = strings.TrimPrefix(d, "www.")
	return strings.TrimSuffix(d, "/")
}

// AddWebContextMemory records the outcome of one action against a
// domain, creating the aggregate lazily. Successful actions also feed
// the domain's mined pattern vocabulary.
func (s *System) AddWebContextMemory(domain, action, context string, success bool, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := NormalizeDomain(domain)
	dm, ok := s.domains[key]
	if !ok {
		dm = &DomainMemory{Domain: key}
		s.domains[key] = dm
	}

	if success {
		dm.SuccessfulActions = append(dm.SuccessfulActions, ActionRecord{
			Action:    action,
			Context:   context,
			Timestamp: s.now(),
		})
		minePatterns(dm, action, context)
	} else if errMsg != "" {
		dm.FailurePatterns = append(dm.FailurePatterns, FailureRecord{
			Action:    action,
			Error:     errMsg,
			Timestamp: s.now(),
		})
	}

	s.evictDomains()
}

// GetWebContextMemory returns the aggregate for a domain, or nil.
func (s *System) GetWebContextMemory(domain string) *DomainMemory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.domains[NormalizeDomain(domain)]
}

// GetSuccessfulActionsForDomain returns up to ten successful actions
// for the domain, most recent first, optionally filtered by substring
// match on the action text.
func (s *System) GetSuccessfulActionsForDomain(domain, actionType string) []ActionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	dm := s.domains[NormalizeDomain(domain)]
	if dm == nil {
		return nil
	}

	actions := make([]ActionRecord, 0, len(dm.SuccessfulActions))
	filter := strings.ToLower(actionType)
	for _, a := range dm.SuccessfulActions {
		if filter == "" || strings.Contains(strings.ToLower(a.Action), filter) {
			actions = append(actions, a)
		}
	}

	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].Timestamp.After(actions[j].Timestamp)
	})
	if len(actions) > maxDomainActions {
		actions = actions[:maxDomainActions]
	}
	return actions
}

// minePatterns extracts significant words from a successful action and
// its context into the domain's pattern bag: tokens longer than three
// characters, stopwords excluded, duplicates skipped, trimmed to the
// most recent fifty.
func minePatterns(dm *DomainMemory, action, context string) {
	seen := make(map[string]bool, len(dm.Patterns))
	for _, p := range dm.Patterns {
		seen[p] = true
	}

	words := append(strings.Fields(strings.ToLower(action)), strings.Fields(strings.ToLower(context))...)
	for _, w := range words {
		if len(w) > 3 && !isStopWord(w) && !seen[w] {
			dm.Patterns = append(dm.Patterns, w)
			seen[w] = true
		}
	}

	if len(dm.Patterns) > maxDomainPatterns {
		dm.Patterns = dm.Patterns[len(dm.Patterns)-maxDomainPatterns:]
	}
}

// evictDomains enforces the domain cap by dropping the aggregate whose
// most recent event is oldest. Caller holds the lock.
func (s *System) evictDomains() {
	if len(s.domains) <= s.maxDomains {
		return
	}

	type entry struct {
		key    string
		latest time.Time
	}
	entries := make([]entry, 0, len(s.domains))
	for key, dm := range s.domains {
		entries = append(entries, entry{key, dm.lastActivity()})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].latest.Before(entries[j].latest)
	})

	excess := len(s.domains) - s.maxDomains
	for _, e := range entries[:excess] {
		delete(s.domains, e.key)
	}
}

var stopWords = map[string]bool{
	"the": true, "and": true, "or": true, "but": true, "in": true,
	"on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "this": true, "that": true,
	"these": true, "those": true,
}

func isStopWord(word string) bool {
	return stopWords[strings.ToLower(word)]
}
