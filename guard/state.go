package guard

import "sync"

// RunState records the collections processed during one trigger cycle
// The caller creates a fresh RunState for every cycle and must not share it
// between cycles that run at the same time.
type RunState struct {
	mu        sync.Mutex
	processed map[string]struct{}
}

// NewRunState returns an empty run state
func NewRunState() *RunState {
	return &RunState{processed: make(map[string]struct{})}
}

// MarkProcessed marks id as processed and reports whether it was new
func (s *RunState) MarkProcessed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.processed[id]; ok {
		return false
	}
	s.processed[id] = struct{}{}
	return true
}

// Processed reports whether id was already processed in this cycle
func (s *RunState) Processed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processed[id]
	return ok
}

// Len returns the number of processed collections
func (s *RunState) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.processed)
}
