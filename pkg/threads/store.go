package threads

import (
	"context"
	"time"
)

// SaveOptions carries the optimistic locking context of a write. Stores
// compare ExpectedVersion against the stored version (0 when absent).
type SaveOptions struct {
	ExpectedVersion uint64
}

// Store persists one Index per tenant.
type Store interface {
	// Load returns nil, nil when the tenant has no index yet.
	Load(ctx context.Context, tenant string) (*Index, error)
	// Save stores idx and returns the stored copy with its new version.
	Save(ctx context.Context, idx *Index, opts SaveOptions) (*Index, error)
	Close() error
}

func assertExpectedVersion(tenant string, expected, actual uint64) error {
	if expected == actual {
		return nil
	}
	return &VersionConflictError{
		Tenant:   tenant,
		Expected: expected,
		Actual:   actual,
	}
}

func prepareSave(idx *Index, opts SaveOptions, actual uint64) (*Index, error) {
	if idx == nil || idx.Tenant == "" {
		return nil, ErrInvalidTenant
	}
	if err := assertExpectedVersion(idx.Tenant, opts.ExpectedVersion, actual); err != nil {
		return nil, err
	}
	ret := idx.Clone()
	ret.normalize()
	ret.Version = actual + 1
	ret.UpdatedAt = time.Now().UTC()
	return ret, nil
}
