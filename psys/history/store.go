// Package history provides an in-memory store of completed recorder
// runs, grounded on the teacher's in-memory run store: a map keyed by
// run id, safe for concurrent use, with no persistence across process
// restarts (spec.md's explicit Non-goal: no new persistent storage
// format — the CSV table remains the sole stable artifact).
package history

import (
	"sync"

	"github.com/cellmesh/psystem/psys"
)

// Store is an in-memory psys.History implementation. Entries are
// retained until explicitly cleared; there is no eviction policy,
// matching the teacher's MemStore scope (development/testing/
// single-process use, not a production persistence layer).
type Store struct {
	mu   sync.RWMutex
	runs map[string]psys.Table
	// order preserves insertion order for ListRuns, independent of Go's
	// randomized map iteration.
	order []string
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{runs: make(map[string]psys.Table)}
}

// SaveRun records table under runID, overwriting any prior entry with
// the same id.
func (s *Store) SaveRun(runID string, table psys.Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[runID]; !exists {
		s.order = append(s.order, runID)
	}
	s.runs[runID] = table
}

// LoadRun retrieves the table saved under runID.
func (s *Store) LoadRun(runID string) (psys.Table, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.runs[runID]
	return t, ok
}

// ListRuns returns every recorded run id, oldest first.
func (s *Store) ListRuns() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Clear removes runID's entry, or every entry if runID is empty.
func (s *Store) Clear(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if runID == "" {
		s.runs = make(map[string]psys.Table)
		s.order = nil
		return
	}
	if _, exists := s.runs[runID]; !exists {
		return
	}
	delete(s.runs, runID)
	for i, id := range s.order {
		if id == runID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}
