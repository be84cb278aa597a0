// internal/metadata/errors.go
//
// Error taxonomy for the metadata store.
//
// Context
// -------
// Callers branch with errors.Is on the sentinels (ErrNotFound,
// ErrAlreadyExists, ErrCreation, ErrInvalid) and reach for errors.As
// when they need the key.  Storage and connectivity failures are not
// wrapped in any of these; they surface as 500s at the HTTP edge.
package metadata

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound matches every "no live entry" failure.
	ErrNotFound = errors.New("metadata not found")
	// ErrAlreadyExists matches every live-key collision.
	ErrAlreadyExists = errors.New("metadata already exists")
	// ErrCreation matches store rejections other than a key collision.
	ErrCreation = errors.New("metadata creation failed")
)

// KeyNotFoundError reports a missing live key for a resource.
type KeyNotFoundError struct {
	Key          string
	ResourceType string
	ResourceID   string
}

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("metadata key %q for %s %q not found", e.Key, e.ResourceType, e.ResourceID)
}

func (e *KeyNotFoundError) Is(target error) bool { return target == ErrNotFound }

// KeyExistsError reports a Create that collided with a live key.
type KeyExistsError struct {
	Key          string
	ResourceType string
	ResourceID   string
}

func (e *KeyExistsError) Error() string {
	return fmt.Sprintf("metadata key %q for %s %q already exists", e.Key, e.ResourceType, e.ResourceID)
}

func (e *KeyExistsError) Is(target error) bool { return target == ErrAlreadyExists }

// CreationError wraps the reason the store (or pre-insert validation)
// refused a row.
type CreationError struct {
	Key string
	Err error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("metadata key %q could not be created: %v", e.Key, e.Err)
}

func (e *CreationError) Unwrap() error        { return e.Err }
func (e *CreationError) Is(target error) bool { return target == ErrCreation }

// ErrInvalid marks caller input the Service refused before touching the
// store (bad scope, bad marker, bad filter).
var ErrInvalid = errors.New("invalid metadata request")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}
