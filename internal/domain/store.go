package domain

import (
	"context"
	"time"

	"github.com/joss/statecore/internal/store"
)

// CacheStore is the ephemeral tier: key-value and list operations with TTL.
// Every operation may fail under transient unavailability; callers must
// never assume success and are expected to wrap calls in a best-effort
// policy. Values are serialized by the caller.
type CacheStore interface {
	// Get returns the value for key, or ok=false when absent or expired.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set stores value under key with the given TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Exists reports whether key is present and unexpired.
	Exists(ctx context.Context, key string) (bool, error)
	// TTL returns the remaining lifetime of key, or -1 when absent.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// ListAppend appends value to the list stored at key.
	ListAppend(ctx context.Context, key, value string) error
	// ListRange returns elements [start, end] inclusive; negative indexes
	// count from the tail, -1 being the last element.
	ListRange(ctx context.Context, key string, start, end int) ([]string, error)
	// ListTrim retains only elements [start, end] inclusive.
	ListTrim(ctx context.Context, key string, start, end int) error
	// Expire resets the TTL of key.
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// Statement is one parameterized statement in a durable batch.
type Statement struct {
	SQL  string
	Args []any
}

// DurableStore is the record-of-truth tier: parameterized relational access.
// Failures on synchronous paths are significant and must propagate.
// Uniqueness violations surface as store.ErrDuplicateKey so idempotent
// creators can branch on them.
type DurableStore interface {
	// Execute runs a write statement and returns rows affected.
	Execute(ctx context.Context, stmt string, args ...any) (int64, error)
	// Query runs a read statement and returns all rows.
	Query(ctx context.Context, stmt string, args ...any) ([]store.Record, error)
	// QueryOne runs a read statement and returns the first row, or nil
	// when no row matches.
	QueryOne(ctx context.Context, stmt string, args ...any) (store.Record, error)
	// Batch runs all statements in one transaction, all-or-nothing.
	Batch(ctx context.Context, stmts []Statement) error
}

// Catalog is the read-only content catalog consumed by calling agents.
// It is an external collaborator of this subsystem; only the contract
// lives here.
type Catalog interface {
	Lookup(ctx context.Context, key string) (string, bool)
}
