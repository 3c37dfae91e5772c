package threads

import (
	"errors"
	"fmt"
)

var (
	ErrStoreClosed      = errors.New("thread store closed")
	ErrVersionConflict  = errors.New("version conflict")
	ErrCorruptIndex     = errors.New("corrupt thread index")
	ErrInvalidThreadID  = errors.New("invalid thread id")
	ErrInvalidTenant    = errors.New("invalid tenant")
	ErrTooManyConflicts = errors.New("too many concurrent index updates")
)

// VersionConflictError reports optimistic-locking failures on a tenant index.
type VersionConflictError struct {
	Tenant   string
	Expected uint64
	Actual   uint64
}

func (e *VersionConflictError) Error() string {
	if e == nil {
		return ErrVersionConflict.Error()
	}
	return fmt.Sprintf("thread index %q version conflict: expected=%d actual=%d", e.Tenant, e.Expected, e.Actual)
}

func (e *VersionConflictError) Is(target error) bool { return target == ErrVersionConflict }

// CorruptIndexError is returned by stores whose persisted record cannot be
// decoded. Version is the stored version if the store could still read it.
type CorruptIndexError struct {
	Tenant  string
	Version uint64
	Err     error
}

func (e *CorruptIndexError) Error() string {
	if e == nil {
		return ErrCorruptIndex.Error()
	}
	return fmt.Sprintf("%s %q: %v", ErrCorruptIndex, e.Tenant, e.Err)
}

func (e *CorruptIndexError) Is(target error) bool { return target == ErrCorruptIndex }

func (e *CorruptIndexError) Unwrap() error { return e.Err }
