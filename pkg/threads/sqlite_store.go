package threads

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteThreadsSchemaV1 = `
CREATE TABLE IF NOT EXISTS thread_indexes (
    tenant TEXT PRIMARY KEY,
    version INTEGER NOT NULL DEFAULT 0,
    payload_json TEXT NOT NULL,
    updated_at_ms INTEGER NOT NULL DEFAULT 0
);
`

// SQLiteStore keeps one JSON payload per tenant row. The version lives in its
// own column so that the check-and-set runs inside one transaction.
type SQLiteStore struct {
	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("sqlite thread store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(sqliteThreadsSchemaV1); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context, tenant string) (*Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	var version uint64
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT version, payload_json FROM thread_indexes WHERE tenant = ?`, tenant,
	).Scan(&version, &payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	idx := &Index{}
	if err := json.Unmarshal([]byte(payload), idx); err != nil {
		return nil, &CorruptIndexError{Tenant: tenant, Version: version, Err: err}
	}
	idx.Tenant = tenant
	idx.Version = version
	idx.normalize()
	return idx, nil
}

func (s *SQLiteStore) Save(ctx context.Context, idx *Index, opts SaveOptions) (*Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	if idx == nil {
		return nil, ErrInvalidTenant
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var actual uint64
	err = tx.QueryRowContext(ctx,
		`SELECT version FROM thread_indexes WHERE tenant = ?`, idx.Tenant,
	).Scan(&actual)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}

	saved, err := prepareSave(idx, opts, actual)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(saved)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO thread_indexes (tenant, version, payload_json, updated_at_ms)
VALUES (?, ?, ?, ?)
ON CONFLICT(tenant) DO UPDATE SET version = excluded.version, payload_json = excluded.payload_json, updated_at_ms = excluded.updated_at_ms`,
		saved.Tenant,
		saved.Version,
		string(payload),
		time.Now().UnixMilli(),
	)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return saved.Clone(), nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *SQLiteStore) ensureOpen() error {
	if s.closed {
		return ErrStoreClosed
	}
	if s.db == nil {
		return fmt.Errorf("sqlite thread store db is nil")
	}
	return nil
}

func SQLiteDSNForFile(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("sqlite thread store: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path), nil
}
