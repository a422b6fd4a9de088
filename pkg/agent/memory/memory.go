// Package memory implements the agent's learning store: a bounded,
// relevance-scored record store plus per-domain aggregates of past
// successful and failed web actions. Retrieval reinforces what gets
// used — returned records have their relevance bumped and their access
// time refreshed, biasing future queries toward proven memories.
package memory

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/surf/pkg/logging"
)

// RecordType classifies what a memory record encodes.
type RecordType string

const (
	TypeFact       RecordType = "fact"
	TypePreference RecordType = "preference"
	TypePattern    RecordType = "pattern"
	TypeContext    RecordType = "context"
)

const (
	// DefaultMaxRecords bounds the record store.
	DefaultMaxRecords = 1000

	// DefaultMaxDomains bounds the per-domain aggregate store.
	DefaultMaxDomains = 100

	// maxRelevance caps reinforcement growth.
	maxRelevance = 2.0

	// relevanceBoost is added on each retrieval.
	relevanceBoost = 0.1

	// scoreCutoff excludes weakly matching records from retrieval.
	scoreCutoff = 0.1
)

// Record is a scored, retrievable memory.
type Record struct {
	ID           string                 `json:"id"`
	Type         RecordType             `json:"type"`
	Content      string                 `json:"content"`
	Relevance    float64                `json:"relevance"`
	LastAccessed time.Time              `json:"lastAccessed"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// System is the memory store. All methods are safe for concurrent use.
type System struct {
	mu         sync.Mutex
	records    map[string]*Record
	domains    map[string]*DomainMemory
	maxRecords int
	maxDomains int
	now        func() time.Time
	log        *logging.Logger
}

// Option configures a System.
type Option func(*System)

// WithMaxRecords overrides the record cap.
func WithMaxRecords(n int) Option {
	return func(s *System) {
		s.maxRecords = n
	}
}

// WithMaxDomains overrides the domain aggregate cap.
func WithMaxDomains(n int) Option {
	return func(s *System) {
		s.maxDomains = n
	}
}

// WithClock overrides the time source. Used by tests to control the
// recency component of relevance scoring.
func WithClock(now func() time.Time) Option {
	return func(s *System) {
		s.now = now
	}
}

// NewSystem creates an empty memory system.
func NewSystem(opts ...Option) *System {
	log, _ := logging.NewLogger("memory")
	s := &System{
		records:    make(map[string]*Record),
		domains:    make(map[string]*DomainMemory),
		maxRecords: DefaultMaxRecords,
		maxDomains: DefaultMaxDomains,
		now:        time.Now,
		log:        log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddMemory stores a new record with relevance 1.0 and returns its id.
// The record cap is enforced by evicting the worst-scored records.
func (s *System) AddMemory(recordType RecordType, content string, metadata map[string]interface{}) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := &Record{
		ID:           uuid.New().String(),
		Type:         recordType,
		Content:      content,
		Relevance:    1.0,
		LastAccessed: s.now(),
		Metadata:     metadata,
	}
	s.records[rec.ID] = rec
	s.evictRecords()
	return rec.ID
}

// GetRelevantMemories scores every record against the query and
// returns the best matches, highest score first, at most limit.
//
// Retrieval is not read-only: each returned record has its relevance
// bumped by 0.1 (capped at 2.0) and its access time refreshed.
func (s *System) GetRelevantMemories(query string, limit int) []*Record {
	if limit <= 0 {
		limit = 5
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	queryLower := strings.ToLower(query)

	type scored struct {
		rec   *Record
		score float64
	}
	matches := make([]scored, 0, len(s.records))
	for _, rec := range s.records {
		score := s.relevanceScore(rec, queryLower)
		if score > scoreCutoff {
			matches = append(matches, scored{rec, score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}

	out := make([]*Record, 0, len(matches))
	for _, m := range matches {
		m.rec.LastAccessed = s.now()
		m.rec.Relevance = min(m.rec.Relevance+relevanceBoost, maxRelevance)
		out = append(out, m.rec)
	}
	return out
}

// relevanceScore computes the composite query score for one record:
// exact substring match, bag-of-words overlap, and a recency bonus
// decaying over seven days, all multiplied by the record's relevance.
func (s *System) relevanceScore(rec *Record, queryLower string) float64 {
	content := strings.ToLower(rec.Content)
	var score float64

	if strings.Contains(content, queryLower) {
		score += 1.0
	}

	queryWords := strings.Fields(queryLower)
	if len(queryWords) > 0 {
		contentWords := make(map[string]bool)
		for _, w := range strings.Fields(content) {
			contentWords[w] = true
		}
		overlap := 0
		for _, w := range queryWords {
			if contentWords[w] {
				overlap++
			}
		}
		score += float64(overlap) / float64(len(queryWords)) * 0.5
	}

	daysSinceAccess := s.now().Sub(rec.LastAccessed).Hours() / 24
	score += max(0, (7-daysSinceAccess)/7) * 0.2

	return score * rec.Relevance
}

// evictRecords enforces the record cap. Caller holds the lock.
// The eviction score favors keeping relevant, recently used records:
// lowest relevance × staleness goes first.
func (s *System) evictRecords() {
	if len(s.records) <= s.maxRecords {
		return
	}

	type entry struct {
		id    string
		score float64
	}
	entries := make([]entry, 0, len(s.records))
	now := s.now()
	for id, rec := range s.records {
		entries = append(entries, entry{id, rec.Relevance * float64(now.Sub(rec.LastAccessed))})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].score < entries[j].score
	})

	excess := len(s.records) - s.maxRecords
	for _, e := range entries[:excess] {
		delete(s.records, e.id)
	}
	s.log.Debugf("evicted %d memory records", excess)
}

// LearnFromSuccess records a success pattern from one execution round.
func (s *System) LearnFromSuccess(action, context, result string) {
	s.AddMemory(TypePattern,
		fmt.Sprintf("Action: %s in context: %s resulted in: %s", action, context, result),
		map[string]interface{}{
			"type":    "success_pattern",
			"action":  action,
			"context": context,
			"result":  result,
		})
}

// LearnFromFailure records a failure pattern from one execution round.
func (s *System) LearnFromFailure(action, context, errMsg string) {
	s.AddMemory(TypePattern,
		fmt.Sprintf("Action: %s in context: %s failed with: %s", action, context, errMsg),
		map[string]interface{}{
			"type":    "failure_pattern",
			"action":  action,
			"context": context,
			"error":   errMsg,
		})
}

// StoreUserPreference records a stated user preference.
func (s *System) StoreUserPreference(preference string, value interface{}) {
	s.AddMemory(TypePreference,
		fmt.Sprintf("User prefers %s: %v", preference, value),
		map[string]interface{}{
			"preference": preference,
			"value":      value,
		})
}

// RecordCount returns the number of stored records.
func (s *System) RecordCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
