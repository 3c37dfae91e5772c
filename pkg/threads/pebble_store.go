package threads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble"
)

const pebbleKeyPrefix = "threads:index:"

// PebbleStore keeps tenant indexes as JSON values in a pebble database.
type PebbleStore struct {
	mu     sync.Mutex
	db     *pebble.DB
	closed bool
}

var _ Store = (*PebbleStore)(nil)

func NewPebbleStore(path string) (*PebbleStore, error) {
	if path == "" {
		return nil, fmt.Errorf("pebble thread store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Load(_ context.Context, tenant string) (*Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	b, ok, err := s.getLocked(tenant)
	if err != nil || !ok {
		return nil, err
	}
	idx := &Index{}
	if err := json.Unmarshal(b, idx); err != nil {
		return nil, &CorruptIndexError{Tenant: tenant, Err: err}
	}
	idx.Tenant = tenant
	idx.normalize()
	return idx, nil
}

func (s *PebbleStore) Save(_ context.Context, idx *Index, opts SaveOptions) (*Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	if idx == nil {
		return nil, ErrInvalidTenant
	}

	actual := uint64(0)
	b, ok, err := s.getLocked(idx.Tenant)
	if err != nil {
		return nil, err
	}
	if ok {
		existing := &Index{}
		// an undecodable value counts as absent and gets replaced
		if err := json.Unmarshal(b, existing); err == nil {
			actual = existing.Version
		}
	}

	saved, err := prepareSave(idx, opts, actual)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(saved)
	if err != nil {
		return nil, err
	}
	if err := s.db.Set(pebbleKey(saved.Tenant), payload, pebble.Sync); err != nil {
		return nil, err
	}
	return saved.Clone(), nil
}

func (s *PebbleStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *PebbleStore) getLocked(tenant string) ([]byte, bool, error) {
	v, closer, err := s.db.Get(pebbleKey(tenant))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer func() {
		_ = closer.Close()
	}()
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (s *PebbleStore) ensureOpen() error {
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

func pebbleKey(tenant string) []byte {
	return []byte(pebbleKeyPrefix + tenant)
}
