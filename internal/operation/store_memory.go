package operation

import (
	"context"
	"sort"
	"sync"
)

// InMemoryStore keeps the history in insertion order, deduplicated by
// operation ID.
type InMemoryStore struct {
	mu   sync.RWMutex
	ops  []Operation
	seen map[string]struct{}
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{seen: make(map[string]struct{})}
}

func (s *InMemoryStore) Append(_ context.Context, op Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[op.ID]; ok {
		return nil
	}
	s.seen[op.ID] = struct{}{}
	s.ops = append(s.ops, op)
	return nil
}

func (s *InMemoryStore) ListByAccession(_ context.Context, accession uint64) ([]Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Operation
	for _, op := range s.ops {
		if op.Accession == accession {
			out = append(out, op)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListByTypeAndAssembly(_ context.Context, eventType EventType, assembly string) ([]Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Operation
	for _, op := range s.ops {
		if op.EventType == eventType && op.Assembly == assembly {
			out = append(out, op)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Accession < out[j].Accession })
	return out, nil
}

func (s *InMemoryStore) DeleteByTypeAndAssembly(_ context.Context, eventTypes []EventType, assembly string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := make(map[EventType]struct{}, len(eventTypes))
	for _, t := range eventTypes {
		drop[t] = struct{}{}
	}
	kept := s.ops[:0]
	removed := 0
	for _, op := range s.ops {
		if _, match := drop[op.EventType]; match && op.Assembly == assembly {
			delete(s.seen, op.ID)
			removed++
			continue
		}
		kept = append(kept, op)
	}
	s.ops = kept
	return removed, nil
}
