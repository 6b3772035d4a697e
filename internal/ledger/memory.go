package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"oversight.dev/internal/action"
)

// InMemory keeps every entry for the lifetime of the process.
// Nothing is evicted; use the pg store for durable or long-running deployments.
type InMemory struct {
	mu      sync.RWMutex
	seq     uint64
	entries []Entry
	index   map[string]int // id -> position in entries
}

var _ Store = (*InMemory)(nil)

func NewInMemory() *InMemory {
	return &InMemory{index: make(map[string]int)}
}

func (s *InMemory) Append(ctx context.Context, e Entry) (Entry, error) {
	if strings.TrimSpace(e.ID) == "" {
		return Entry{}, fmt.Errorf("%w: id is required", ErrInvalid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[e.ID]; ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrDuplicate, e.ID)
	}
	s.seq++
	e.Sequence = s.seq
	s.index[e.ID] = len(s.entries)
	s.entries = append(s.entries, e)
	return cloneEntry(e), nil
}

func (s *InMemory) Find(ctx context.Context, id string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.index[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return cloneEntry(s.entries[pos]), nil
}

func (s *InMemory) SetOutcome(ctx context.Context, id string, outcome action.Outcome, at time.Time) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.index[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	e := &s.entries[pos]
	if e.Outcome != action.OutcomePending {
		return cloneEntry(*e), ErrNotPending
	}
	resolved := at.UTC()
	e.Outcome = outcome
	e.ResolvedAt = &resolved
	return cloneEntry(*e), nil
}

func (s *InMemory) List(ctx context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.entries))
	for i, e := range s.entries {
		out[i] = cloneEntry(e)
	}
	return out, nil
}

func (s *InMemory) Len(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// cloneEntry detaches the mutable parts so callers cannot reach into the store.
func cloneEntry(e Entry) Entry {
	out := e
	if e.Factors != nil {
		out.Factors = make([]string, len(e.Factors))
		copy(out.Factors, e.Factors)
	}
	if e.ResolvedAt != nil {
		t := *e.ResolvedAt
		out.ResolvedAt = &t
	}
	return out
}
