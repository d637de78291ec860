package action

import (
	"sync"

	"wayfinder/internal/domain"
)

// DefaultUndoDepth is used when NewUndoStack is given a non-positive depth.
const DefaultUndoDepth = 20

// UndoStack is a bounded LIFO of inverse actions. Pushing beyond depth
// drops the oldest entry.
type UndoStack struct {
	mu      sync.Mutex
	entries []domain.UndoEntry
	depth   int
}

// NewUndoStack creates a stack holding at most depth entries.
func NewUndoStack(depth int) *UndoStack {
	if depth <= 0 {
		depth = DefaultUndoDepth
	}
	return &UndoStack{depth: depth}
}

// Push adds e on top.
func (s *UndoStack) Push(e domain.UndoEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == s.depth {
		copy(s.entries, s.entries[1:])
		s.entries = s.entries[:len(s.entries)-1]
	}
	s.entries = append(s.entries, e)
}

// Pop removes and returns the most recent entry.
func (s *UndoStack) Pop() (domain.UndoEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return domain.UndoEntry{}, domain.ErrUndoEmpty
	}
	e := s.entries[len(s.entries)-1]
	s.entries = s.entries[:len(s.entries)-1]
	return e, nil
}

// List returns the entries newest first.
func (s *UndoStack) List() []domain.UndoEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UndoEntry, len(s.entries))
	for i, e := range s.entries {
		out[len(s.entries)-1-i] = e
	}
	return out
}

// Len returns the current depth.
func (s *UndoStack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
