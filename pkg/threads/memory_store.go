package threads

import (
	"context"
	"sync"
)

// InMemoryStore is a thread-safe Store that keeps indexes in memory.
type InMemoryStore struct {
	mu      sync.RWMutex
	indexes map[string]*Index
	closed  bool
}

var _ Store = (*InMemoryStore)(nil)

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		indexes: map[string]*Index{},
	}
}

func (s *InMemoryStore) Load(_ context.Context, tenant string) (*Index, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	idx, ok := s.indexes[tenant]
	if !ok {
		return nil, nil
	}
	return idx.Clone(), nil
}

func (s *InMemoryStore) Save(_ context.Context, idx *Index, opts SaveOptions) (*Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	if idx == nil {
		return nil, ErrInvalidTenant
	}

	actual := uint64(0)
	if existing, ok := s.indexes[idx.Tenant]; ok {
		actual = existing.Version
	}
	saved, err := prepareSave(idx, opts, actual)
	if err != nil {
		return nil, err
	}
	s.indexes[saved.Tenant] = saved
	return saved.Clone(), nil
}

func (s *InMemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *InMemoryStore) ensureOpen() error {
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}
