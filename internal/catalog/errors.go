package catalog

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation matches any *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound matches any *NotFoundError.
	ErrNotFound = errors.New("book not found")

	// ErrPersistence matches any *PersistenceError.
	ErrPersistence = errors.New("persistence failed")
)

// ValidationError lists every rule a candidate book violated.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid book: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError is returned when an operation references an unknown book ID.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("book %q not found", e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// PersistenceError wraps a backend failure. When it is returned the in-memory
// collection has not been modified.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }
