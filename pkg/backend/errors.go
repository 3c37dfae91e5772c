package backend

import (
	"github.com/pkg/errors"
)

var (
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrMissingField     = errors.New("missing required field")
	ErrLoginFailed      = errors.New("login failed")
)

// IsAPIError reports whether err carries a backend response, and returns it.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// Detail returns the text shown to the user for a failed request: the
// backend's detail for API errors, the error message otherwise.
func Detail(err error) string {
	if apiErr, ok := IsAPIError(err); ok && apiErr.Detail != "" {
		return apiErr.Detail
	}
	return errors.Cause(err).Error()
}
