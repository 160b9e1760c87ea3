package runlog

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// MemoryStore keeps run records in a map.
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]Record
}

// NewMemoryStore creates an empty in-memory ledger. Call Init before use.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Init resets the ledger to empty.
func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]Record)
	return nil
}

// SaveRun stores rec, replacing any record with the same id.
func (s *MemoryStore) SaveRun(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	rec.Outputs = append([]string(nil), rec.Outputs...)
	s.runs[rec.ID] = rec
	return nil
}

// GetRun returns the record with the given id and whether it exists.
func (s *MemoryStore) GetRun(_ context.Context, id string) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.runs[id]
	return rec, ok, nil
}

// ListRuns returns all records ordered by start time, oldest first.
func (s *MemoryStore) ListRuns(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(s.runs))
	for _, rec := range s.runs {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out, nil
}
