package threads

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

const defaultMaxAttempts = 5

// Registry is the per-tenant thread index together with the id of the
// currently active conversation. The active id is never empty.
type Registry struct {
	mu          sync.Mutex
	store       Store
	tenant      string
	active      string
	maxAttempts int
}

type RegistryOption func(*Registry)

// WithActiveThread starts the registry on an existing thread instead of a
// freshly minted one.
func WithActiveThread(id string) RegistryOption {
	return func(r *Registry) {
		if ValidateThreadID(id) == nil {
			r.active = id
		}
	}
}

func WithMaxAttempts(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

func NewRegistry(store Store, tenant string, options ...RegistryOption) (*Registry, error) {
	if store == nil {
		return nil, fmt.Errorf("thread registry requires a store")
	}
	if strings.TrimSpace(tenant) == "" {
		return nil, ErrInvalidTenant
	}
	ret := &Registry{
		store:       store,
		tenant:      tenant,
		maxAttempts: defaultMaxAttempts,
	}
	for _, o := range options {
		o(ret)
	}
	if ret.active == "" {
		ret.active = NewThreadID()
	}
	return ret, nil
}

func (r *Registry) Tenant() string {
	return r.tenant
}

func (r *Registry) Active() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *Registry) Activate(id string) error {
	if err := ValidateThreadID(id); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = id
	return nil
}

// NewThread mints a new conversation id and makes it active. The thread is
// only persisted once it receives a title.
func (r *Registry) NewThread() string {
	id := NewThreadID()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = id
	return id
}

// List returns the persisted threads in insertion order followed by the active
// thread if it is not persisted yet. Untitled threads carry UntitledTitle.
func (r *Registry) List(ctx context.Context) []Thread {
	idx := r.load(ctx)
	active := r.Active()

	ret := make([]Thread, 0, len(idx.Threads)+1)
	for _, t := range idx.Threads {
		ret = append(ret, Thread{ID: t.ID, Title: t.DisplayTitle()})
	}
	if !idx.Contains(active) {
		ret = append(ret, Thread{ID: active, Title: UntitledTitle})
	}
	return ret
}

// Persisted returns only the threads stored in the index.
func (r *Registry) Persisted(ctx context.Context) []Thread {
	return r.load(ctx).Threads
}

func (r *Registry) Title(ctx context.Context, id string) string {
	idx := r.load(ctx)
	if i := idx.Find(id); i >= 0 {
		return idx.Threads[i].DisplayTitle()
	}
	return UntitledTitle
}

// RecordFirstTitle titles a thread with the first MaxTitleLength characters of
// text and persists it in the index. A thread that already has a title keeps
// it. The returned bool reports whether a title was assigned.
func (r *Registry) RecordFirstTitle(ctx context.Context, id string, text string) (bool, error) {
	if err := ValidateThreadID(id); err != nil {
		return false, err
	}
	if strings.TrimSpace(text) == "" {
		return false, nil
	}
	title := TruncateTitle(text)

	assigned := false
	err := r.update(ctx, func(idx *Index) bool {
		assigned = false
		i := idx.Find(id)
		if i >= 0 {
			if idx.Threads[i].HasTitle() {
				return false
			}
			idx.Threads[i].Title = title
		} else {
			idx.Threads = append(idx.Threads, Thread{ID: id, Title: title})
		}
		assigned = true
		return true
	})
	if err != nil {
		return false, err
	}

	if assigned {
		log.Debug().Str("tenant", r.tenant).Str("thread", id).Str("title", title).Msg("thread titled")
	}
	return assigned, nil
}

type DeleteResult struct {
	// Removed reports whether the id was present in the index.
	Removed bool
	// WasActive reports whether the deleted thread was the active one.
	WasActive bool
	// Active is the active thread after the deletion.
	Active string
}

// Delete removes the thread and its title. Deleting the active thread mints a
// new active one.
func (r *Registry) Delete(ctx context.Context, id string) (DeleteResult, error) {
	if err := ValidateThreadID(id); err != nil {
		return DeleteResult{}, err
	}

	removed := false
	err := r.update(ctx, func(idx *Index) bool {
		removed = idx.Remove(id)
		return removed
	})
	if err != nil {
		return DeleteResult{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	res := DeleteResult{Removed: removed}
	if r.active == id {
		res.WasActive = true
		r.active = NewThreadID()
	}
	res.Active = r.active

	log.Debug().
		Str("tenant", r.tenant).
		Str("thread", id).
		Bool("removed", removed).
		Bool("was_active", res.WasActive).
		Msg("thread deleted")
	return res, nil
}

func (r *Registry) Close() error {
	return r.store.Close()
}

// load reads the tenant index, degrading to an empty one on any failure.
func (r *Registry) load(ctx context.Context) *Index {
	idx, err := r.store.Load(ctx, r.tenant)
	if err != nil {
		log.Warn().Err(err).Str("tenant", r.tenant).Msg("could not load thread index, using empty index")
		return NewIndex(r.tenant)
	}
	if idx == nil {
		return NewIndex(r.tenant)
	}
	return idx
}

// update runs a read-modify-write cycle, retrying when another writer saved in
// between. fn returns false to leave the index untouched.
func (r *Registry) update(ctx context.Context, fn func(idx *Index) bool) error {
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		idx, err := r.store.Load(ctx, r.tenant)
		expected := uint64(0)
		switch {
		case err != nil:
			var corrupt *CorruptIndexError
			if !errors.As(err, &corrupt) {
				return err
			}
			log.Warn().Err(err).Str("tenant", r.tenant).Msg("replacing corrupt thread index")
			expected = corrupt.Version
			idx = NewIndex(r.tenant)
		case idx == nil:
			idx = NewIndex(r.tenant)
		default:
			expected = idx.Version
		}

		if !fn(idx) {
			return nil
		}

		_, err = r.store.Save(ctx, idx, SaveOptions{ExpectedVersion: expected})
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return err
		}
		log.Debug().Err(err).Int("attempt", attempt).Str("tenant", r.tenant).Msg("retrying thread index update")
	}
	return ErrTooManyConflicts
}
