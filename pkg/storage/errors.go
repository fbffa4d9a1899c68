package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound marks a 404-equivalent from the remote provider. It is a
	// legitimate terminal state, distinct from credential and transport
	// failures.
	ErrNotFound = errors.New("object not found")

	// ErrNotImplemented marks a provider tag the platform recognizes but has
	// no adapter for yet. Construction fails fast instead of degrading to a
	// silent no-op adapter.
	ErrNotImplemented = errors.New("storage provider not yet implemented")

	// ErrUnsupportedProvider marks an unknown provider tag.
	ErrUnsupportedProvider = errors.New("unsupported storage provider")
)

// ConfigError reports a provider config missing a field its adapter
// constructor requires. Raised at construction time, never deferred to the
// first remote call.
type ConfigError struct {
	Provider Provider
	Field    string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s config missing required field %q", e.Provider, e.Field)
}

// NewConfigError builds a construction-time validation error.
func NewConfigError(provider Provider, field string) error {
	return &ConfigError{Provider: provider, Field: field}
}
