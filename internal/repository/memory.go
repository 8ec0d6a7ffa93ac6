package repository

import (
	"context"
	"sync"

	"github.com/tidwall/gjson"
)

// MemoryStore is an in-memory Store. It backs local development (the
// process uses it when no database is configured) and the test suite;
// production deployments use PostgresStore.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]Row
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]Row)}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Row, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rows[id]
	return r, ok, nil
}

func (s *MemoryStore) List(ctx context.Context, filter Filter) ([]Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Row, 0, len(s.rows))
	for _, r := range s.rows {
		if filter.Match != nil && !filter.Match(gjson.ParseBytes(r.Data)) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *MemoryStore) Upsert(ctx context.Context, id string, data []byte, expectedVersion, newVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.rows[id]
	if ok && existing.Version != expectedVersion {
		return ErrStale
	}
	if !ok && expectedVersion != 0 {
		return ErrStale
	}
	s.rows[id] = Row{ID: id, Version: newVersion, Data: data}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rows[id]
	delete(s.rows, id)
	return ok, nil
}
