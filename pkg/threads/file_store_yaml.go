package threads

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type yamlDocument struct {
	Indexes map[string]*Index `yaml:"indexes"`
}

// YAMLFileStore keeps all tenant indexes in one YAML file. The file is re-read
// on every operation so that several processes sharing it see each other's
// writes; conflicting writes are caught by the version check.
type YAMLFileStore struct {
	mu     sync.Mutex
	path   string
	closed bool
}

var _ Store = (*YAMLFileStore)(nil)

func NewYAMLFileStore(path string) (*YAMLFileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("yaml thread store path is required")
	}
	return &YAMLFileStore{path: path}, nil
}

func (s *YAMLFileStore) Load(_ context.Context, tenant string) (*Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	doc, err := s.readLocked()
	if err != nil {
		return nil, &CorruptIndexError{Tenant: tenant, Err: err}
	}
	idx, ok := doc.Indexes[tenant]
	if !ok || idx == nil {
		return nil, nil
	}
	if idx.Tenant == "" {
		idx.Tenant = tenant
	}
	idx.normalize()
	return idx, nil
}

func (s *YAMLFileStore) Save(_ context.Context, idx *Index, opts SaveOptions) (*Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	if idx == nil {
		return nil, ErrInvalidTenant
	}

	doc, err := s.readLocked()
	if err != nil {
		// The file is shared by all tenants, so replacing it drops every
		// index it held. Keep the old bytes next to it.
		backup := s.path + ".corrupt"
		if rerr := os.Rename(s.path, backup); rerr != nil {
			log.Warn().Err(rerr).Str("path", s.path).Msg("could not back up unreadable thread file")
			backup = ""
		}
		log.Warn().Err(err).
			Str("path", s.path).
			Str("backup", backup).
			Str("tenant", idx.Tenant).
			Msg("replacing unreadable thread file, indexes of all tenants are reset")
		doc = &yamlDocument{}
	}
	if doc.Indexes == nil {
		doc.Indexes = map[string]*Index{}
	}

	actual := uint64(0)
	if existing, ok := doc.Indexes[idx.Tenant]; ok && existing != nil {
		actual = existing.Version
	}
	saved, err := prepareSave(idx, opts, actual)
	if err != nil {
		return nil, err
	}
	doc.Indexes[saved.Tenant] = saved

	if err := s.writeLocked(doc); err != nil {
		return nil, err
	}
	return saved.Clone(), nil
}

func (s *YAMLFileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *YAMLFileStore) readLocked() (*yamlDocument, error) {
	doc := &yamlDocument{}
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(b, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *YAMLFileStore) writeLocked(doc *yamlDocument) error {
	b, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.path)
}

func (s *YAMLFileStore) ensureOpen() error {
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}
