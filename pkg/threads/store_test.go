package threads

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeFactory struct {
	name string
	open func(t *testing.T, dir string) Store
}

func storeFactories() []storeFactory {
	return []storeFactory{
		{
			name: "memory",
			open: func(t *testing.T, _ string) Store {
				return NewInMemoryStore()
			},
		},
		{
			name: "yaml",
			open: func(t *testing.T, dir string) Store {
				s, err := NewYAMLFileStore(filepath.Join(dir, "threads.yaml"))
				require.NoError(t, err)
				return s
			},
		},
		{
			name: "sqlite",
			open: func(t *testing.T, dir string) Store {
				dsn, err := SQLiteDSNForFile(filepath.Join(dir, "threads.db"))
				require.NoError(t, err)
				s, err := NewSQLiteStore(dsn)
				require.NoError(t, err)
				return s
			},
		},
		{
			name: "pebble",
			open: func(t *testing.T, dir string) Store {
				s, err := NewPebbleStore(filepath.Join(dir, "threads.pebble"))
				require.NoError(t, err)
				return s
			},
		},
	}
}

func TestStores_LoadSaveVersioning(t *testing.T) {
	ctx := context.Background()
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			s := f.open(t, t.TempDir())
			defer func() {
				_ = s.Close()
			}()

			idx, err := s.Load(ctx, "rsms")
			require.NoError(t, err)
			assert.Nil(t, idx)

			in := NewIndex("rsms")
			in.Threads = append(in.Threads, Thread{ID: "c_00000001", Title: "First"})
			saved, err := s.Save(ctx, in, SaveOptions{ExpectedVersion: 0})
			require.NoError(t, err)
			assert.Equal(t, uint64(1), saved.Version)
			assert.Equal(t, uint64(0), in.Version, "input index is not mutated")

			got, err := s.Load(ctx, "rsms")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, uint64(1), got.Version)
			assert.Equal(t, []Thread{{ID: "c_00000001", Title: "First"}}, got.Threads)

			got.Threads = append(got.Threads, Thread{ID: "c_00000002"})
			saved, err = s.Save(ctx, got, SaveOptions{ExpectedVersion: got.Version})
			require.NoError(t, err)
			assert.Equal(t, uint64(2), saved.Version)

			_, err = s.Save(ctx, in, SaveOptions{ExpectedVersion: 1})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrVersionConflict))
			var conflict *VersionConflictError
			require.True(t, errors.As(err, &conflict))
			assert.Equal(t, uint64(2), conflict.Actual)

			other, err := s.Load(ctx, "other-tenant")
			require.NoError(t, err)
			assert.Nil(t, other)
		})
	}
}

func TestStores_SaveNormalizesDuplicates(t *testing.T) {
	ctx := context.Background()
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			s := f.open(t, t.TempDir())
			defer func() {
				_ = s.Close()
			}()

			in := NewIndex("rsms")
			in.Threads = []Thread{{ID: "c_a"}, {ID: ""}, {ID: "c_b"}, {ID: "c_a", Title: "dup"}}
			_, err := s.Save(ctx, in, SaveOptions{})
			require.NoError(t, err)

			got, err := s.Load(ctx, "rsms")
			require.NoError(t, err)
			assert.Equal(t, []Thread{{ID: "c_a"}, {ID: "c_b"}}, got.Threads)
		})
	}
}

func TestStores_Closed(t *testing.T) {
	ctx := context.Background()
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			s := f.open(t, t.TempDir())
			require.NoError(t, s.Close())

			_, err := s.Load(ctx, "rsms")
			assert.ErrorIs(t, err, ErrStoreClosed)
			_, err = s.Save(ctx, NewIndex("rsms"), SaveOptions{})
			assert.ErrorIs(t, err, ErrStoreClosed)
		})
	}
}

func TestStores_PersistAcrossReopen(t *testing.T) {
	ctx := context.Background()
	for _, f := range storeFactories() {
		if f.name == "memory" {
			continue
		}
		t.Run(f.name, func(t *testing.T) {
			dir := t.TempDir()
			s := f.open(t, dir)
			in := NewIndex("rsms")
			in.Threads = []Thread{{ID: "c_keepme00", Title: "Kept"}}
			_, err := s.Save(ctx, in, SaveOptions{})
			require.NoError(t, err)
			require.NoError(t, s.Close())

			s = f.open(t, dir)
			defer func() {
				_ = s.Close()
			}()
			got, err := s.Load(ctx, "rsms")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, []Thread{{ID: "c_keepme00", Title: "Kept"}}, got.Threads)
		})
	}
}

func TestYAMLFileStore_CorruptFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "threads.yaml")
	require.NoError(t, os.WriteFile(path, []byte("indexes: [not: a, map"), 0o644))

	s, err := NewYAMLFileStore(path)
	require.NoError(t, err)

	_, err = s.Load(ctx, "rsms")
	assert.ErrorIs(t, err, ErrCorruptIndex)

	saved, err := s.Save(ctx, NewIndex("rsms"), SaveOptions{})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), saved.Version)

	got, err := s.Load(ctx, "rsms")
	require.NoError(t, err)
	require.NotNil(t, got)

	backup, err := os.ReadFile(path + ".corrupt")
	require.NoError(t, err)
	assert.Equal(t, "indexes: [not: a, map", string(backup))
}

func TestSQLiteStore_CorruptPayloadKeepsVersion(t *testing.T) {
	ctx := context.Background()
	dsn, err := SQLiteDSNForFile(filepath.Join(t.TempDir(), "threads.db"))
	require.NoError(t, err)
	s, err := NewSQLiteStore(dsn)
	require.NoError(t, err)
	defer func() {
		_ = s.Close()
	}()

	_, err = s.db.Exec(`INSERT INTO thread_indexes (tenant, version, payload_json) VALUES (?, ?, ?)`, "rsms", 7, "{broken")
	require.NoError(t, err)

	_, err = s.Load(ctx, "rsms")
	var corrupt *CorruptIndexError
	require.True(t, errors.As(err, &corrupt))
	assert.Equal(t, uint64(7), corrupt.Version)

	saved, err := s.Save(ctx, NewIndex("rsms"), SaveOptions{ExpectedVersion: 7})
	require.NoError(t, err)
	assert.Equal(t, uint64(8), saved.Version)
}
