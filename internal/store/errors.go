// Package store defines the error taxonomy and row shapes shared by the
// cache and durable tiers.
package store

import (
	"errors"
	"fmt"
)

// Common store errors.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicateKey indicates an insert violated a uniqueness constraint.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrCacheUnavailable indicates the cache tier could not serve the call.
	// Always soft: callers fall back and never propagate it.
	ErrCacheUnavailable = errors.New("cache unavailable")

	// ErrDurableUnavailable indicates the durable tier could not serve the call.
	ErrDurableUnavailable = errors.New("durable store unavailable")

	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("store is closed")

	// ErrQueueFull indicates the detached-write queue rejected a submission.
	ErrQueueFull = errors.New("detached write queue full")
)

// NotFoundError wraps ErrNotFound with entity details.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NewNotFoundError creates a typed not found error.
func NewNotFoundError(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateKey checks if an error is a uniqueness violation.
func IsDuplicateKey(err error) bool {
	return errors.Is(err, ErrDuplicateKey)
}
