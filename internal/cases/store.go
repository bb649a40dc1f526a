package cases

import (
	"context"
	"sort"
	"sync"
)

// Store is the record store boundary. Every lookup is scoped by owner;
// implementations return ErrNotFound when the (owner, id) pair is absent.
type Store interface {
	Create(ctx context.Context, rec *CaseRecord) error
	Get(ctx context.Context, ownerID, id string) (*CaseRecord, error)
	Update(ctx context.Context, rec *CaseRecord) error
	Delete(ctx context.Context, ownerID, id string) error
	// List returns the owner's cases, newest first
	List(ctx context.Context, ownerID string) ([]CaseRecord, error)
}

// MemoryStore keeps cases in process memory. It backs local development
// when no database is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]CaseRecord
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]CaseRecord)}
}

func (s *MemoryStore) Create(ctx context.Context, rec *CaseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = clone(rec)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, ownerID, id string) (*CaseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok || rec.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	out := clone(&rec)
	return &out, nil
}

func (s *MemoryStore) Update(ctx context.Context, rec *CaseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.records[rec.ID]
	if !ok || existing.OwnerID != rec.OwnerID {
		return ErrNotFound
	}
	s.records[rec.ID] = clone(rec)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok || rec.OwnerID != ownerID {
		return ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, ownerID string) ([]CaseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]CaseRecord, 0)
	for _, rec := range s.records {
		if rec.OwnerID == ownerID {
			out = append(out, clone(&rec))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// clone copies rec so callers cannot mutate stored state
func clone(rec *CaseRecord) CaseRecord {
	out := *rec
	if rec.SelectedEvidence != nil {
		out.SelectedEvidence = append(StringList(nil), rec.SelectedEvidence...)
	}
	if rec.AIInsight != nil {
		insight := *rec.AIInsight
		insight.Steps = append([]string(nil), rec.AIInsight.Steps...)
		out.AIInsight = &insight
	}
	return out
}
