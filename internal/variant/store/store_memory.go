package store

import (
	"context"
	"sort"
	"sync"

	"varreg/internal/variant/models"
)

// In-memory stores keep jobs and tests runnable without Postgres. They mirror
// the semantics of the SQL implementations, including the single-active-per-
// hash invariant.
type InMemoryClusteredStore struct {
	mu           sync.RWMutex
	byAccession  map[uint64]models.ClusteredVariant
	activeByHash map[string]uint64
}

func NewInMemoryClusteredStore() *InMemoryClusteredStore {
	return &InMemoryClusteredStore{
		byAccession:  make(map[uint64]models.ClusteredVariant),
		activeByHash: make(map[string]uint64),
	}
}

func (s *InMemoryClusteredStore) Upsert(_ context.Context, cv models.ClusteredVariant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.byAccession[cv.Accession]; ok {
		if owner, found := s.activeByHash[prev.Key().Hash()]; found && owner == prev.Accession {
			delete(s.activeByHash, prev.Key().Hash())
		}
	}
	s.byAccession[cv.Accession] = cv
	if cv.Status == models.StatusActive {
		s.activeByHash[cv.Key().Hash()] = cv.Accession
	}
	return nil
}

func (s *InMemoryClusteredStore) FindByAccession(_ context.Context, accession uint64) (models.ClusteredVariant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if cv, ok := s.byAccession[accession]; ok {
		return cv, nil
	}
	return models.ClusteredVariant{}, ErrNotFound
}

func (s *InMemoryClusteredStore) FindActiveByHash(_ context.Context, hash string) (models.ClusteredVariant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if accession, ok := s.activeByHash[hash]; ok {
		return s.byAccession[accession], nil
	}
	return models.ClusteredVariant{}, ErrNotFound
}

func (s *InMemoryClusteredStore) BulkInsert(_ context.Context, cvs []models.ClusteredVariant) (BulkResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res BulkResult
	for _, cv := range cvs {
		hash := cv.Key().Hash()
		_, hashTaken := s.activeByHash[hash]
		_, accessionTaken := s.byAccession[cv.Accession]
		if hashTaken || accessionTaken {
			res.DuplicateKeys = append(res.DuplicateKeys, hash)
			continue
		}
		s.byAccession[cv.Accession] = cv
		if cv.Status == models.StatusActive {
			s.activeByHash[hash] = cv.Accession
		}
		res.Inserted++
	}
	return res, nil
}

func (s *InMemoryClusteredStore) ListByAssembly(_ context.Context, assembly string) ([]models.ClusteredVariant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ClusteredVariant
	for _, cv := range s.byAccession {
		if cv.Assembly == assembly {
			out = append(out, cv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Accession < out[j].Accession })
	return out, nil
}

type InMemorySubmittedStore struct {
	mu          sync.RWMutex
	byAccession map[uint64]models.SubmittedVariant
	byHash      map[string]uint64
}

func NewInMemorySubmittedStore() *InMemorySubmittedStore {
	return &InMemorySubmittedStore{
		byAccession: make(map[uint64]models.SubmittedVariant),
		byHash:      make(map[string]uint64),
	}
}

func (s *InMemorySubmittedStore) Save(_ context.Context, sv models.SubmittedVariant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.byAccession[sv.Accession]; ok {
		delete(s.byHash, prev.Hash())
	}
	s.byAccession[sv.Accession] = sv
	s.byHash[sv.Hash()] = sv.Accession
	return nil
}

func (s *InMemorySubmittedStore) FindByAccession(_ context.Context, accession uint64) (models.SubmittedVariant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sv, ok := s.byAccession[accession]; ok {
		return sv, nil
	}
	return models.SubmittedVariant{}, ErrNotFound
}

func (s *InMemorySubmittedStore) FindByClusteredAccession(_ context.Context, clustered uint64) ([]models.SubmittedVariant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.SubmittedVariant
	for _, sv := range s.byAccession {
		if sv.ClusteredAccession != nil && *sv.ClusteredAccession == clustered {
			out = append(out, sv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Accession < out[j].Accession })
	return out, nil
}

func (s *InMemorySubmittedStore) BulkInsert(_ context.Context, svs []models.SubmittedVariant) (BulkResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res BulkResult
	for _, sv := range svs {
		hash := sv.Hash()
		_, hashTaken := s.byHash[hash]
		_, accessionTaken := s.byAccession[sv.Accession]
		if hashTaken || accessionTaken {
			res.DuplicateKeys = append(res.DuplicateKeys, hash)
			continue
		}
		s.byAccession[sv.Accession] = sv
		s.byHash[hash] = sv.Accession
		res.Inserted++
	}
	return res, nil
}

func (s *InMemorySubmittedStore) ReassignClustered(_ context.Context, from, to uint64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := 0
	for accession, sv := range s.byAccession {
		if sv.ClusteredAccession != nil && *sv.ClusteredAccession == from {
			target := to
			sv.ClusteredAccession = &target
			s.byAccession[accession] = sv
			changed++
		}
	}
	return changed, nil
}

func (s *InMemorySubmittedStore) SetClusteredAccession(_ context.Context, accession, clustered uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sv, ok := s.byAccession[accession]
	if !ok {
		return ErrNotFound
	}
	target := clustered
	sv.ClusteredAccession = &target
	s.byAccession[accession] = sv
	return nil
}

// InMemoryAccessionSource mints accessions from a process-local counter.
type InMemoryAccessionSource struct {
	mu   sync.Mutex
	next uint64
}

// NewInMemoryAccessionSource starts minting at the given value.
func NewInMemoryAccessionSource(start uint64) *InMemoryAccessionSource {
	return &InMemoryAccessionSource{next: start}
}

func (s *InMemoryAccessionSource) Next(_ context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.next
	s.next++
	return v, nil
}
