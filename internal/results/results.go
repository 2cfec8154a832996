// Package results holds detection results in memory: the most recent batch
// result of each session and the process-wide history of batch results.
package results

import (
	"sync"

	"github.com/ayusman/spacevision/internal/detection"
)

// Store is constructed once at process start and shared by reference.
// History is append-only and unbounded.
type Store struct {
	mu      sync.RWMutex
	history []detection.Result

	// sessionID -> detection.Result; sessions never contend with each other.
	last sync.Map
}

// New creates an empty Store.
func New() *Store {
	return &Store{}
}

// RecordBatch appends r to the history and makes it the last result of
// sessionID. Only batch results are accepted; it reports false and stores
// nothing for any other mode.
func (s *Store) RecordBatch(sessionID string, r detection.Result) bool {
	if r.Mode != detection.ModeBatch {
		return false
	}

	s.mu.Lock()
	s.history = append(s.history, r)
	s.mu.Unlock()

	s.last.Store(sessionID, r)
	return true
}

// Last returns the most recent batch result recorded for sessionID.
func (s *Store) Last(sessionID string) (detection.Result, bool) {
	v, ok := s.last.Load(sessionID)
	if !ok {
		return detection.Result{}, false
	}
	return v.(detection.Result), true
}

// History returns a copy of all batch results, most recent first.
func (s *Store) History() []detection.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]detection.Result, len(s.history))
	for i, r := range s.history {
		out[len(s.history)-1-i] = r
	}
	return out
}

// Len returns the number of results in the history.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}
