package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Store.Get when no value exists for a key.
var ErrNotFound = errors.New("memory: key not found")

// Store is the persistence boundary: get/set of JSON blobs keyed by
// string. Records round-trip including their embedded timestamps.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// snapshot is the serialized form of a System.
type snapshot struct {
	Records []*Record                `json:"records"`
	Domains map[string]*DomainMemory `json:"domains"`
}

// SnapshotKey is the default key a System persists under.
const SnapshotKey = "surf:memory:snapshot"

// Save serializes the full memory state into the store.
func (s *System) Save(ctx context.Context, store Store) error {
	s.mu.Lock()
	snap := snapshot{
		Records: make([]*Record, 0, len(s.records)),
		Domains: s.domains,
	}
	for _, rec := range s.records {
		snap.Records = append(snap.Records, rec)
	}
	data, err := json.Marshal(snap)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to serialize memory: %w", err)
	}

	if err := store.Set(ctx, SnapshotKey, data); err != nil {
		return fmt.Errorf("failed to persist memory: %w", err)
	}
	return nil
}

// Load restores memory state from the store, replacing the current
// contents. A missing snapshot leaves the system empty and is not an
// error.
func (s *System) Load(ctx context.Context, store Store) error {
	data, err := store.Get(ctx, SnapshotKey)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read memory snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to parse memory snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]*Record, len(snap.Records))
	for _, rec := range snap.Records {
		s.records[rec.ID] = rec
	}
	s.domains = snap.Domains
	if s.domains == nil {
		s.domains = make(map[string]*DomainMemory)
	}
	return nil
}

// MapStore is an in-memory Store, used as the default backing and in
// tests.
type MapStore struct {
	values map[string][]byte
}

// NewMapStore creates an empty MapStore.
func NewMapStore() *MapStore {
	return &MapStore{values: make(map[string][]byte)}
}

// Get implements Store.
func (m *MapStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, ok := m.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

// Set implements Store.
func (m *MapStore) Set(ctx context.Context, key string, value []byte) error {
	cp := make([]byte, len(value))
	copy(cp, value)
	m.values[key] = cp
	return nil
}
