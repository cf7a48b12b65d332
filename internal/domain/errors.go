package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy surfaced to callers. The lifecycle service never retries
// internally; it fails fast with one of these and lets the caller decide.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidKind     = fmt.Errorf("%w: unknown analysis kind", ErrInvalidArgument)
	ErrNotFound        = errors.New("job not found")
	ErrInvalidState    = errors.New("job is already in a terminal state")
)

// DependencyError marks a transient store or broker failure.
type DependencyError struct {
	Op  string
	Err error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("dependency failure: %s: %v", e.Op, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }

// IsDependency reports whether err is a DependencyError.
func IsDependency(err error) bool {
	var de *DependencyError
	return errors.As(err, &de)
}
