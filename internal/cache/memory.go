// Package cache provides the ephemeral tier: an in-process key-value and
// list store with per-key TTL. It implements domain.CacheStore and is
// process-local; a shared cache server can replace it behind the same
// interface.
package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     string
	list      []string
	isList    bool
	expiresAt time.Time // zero means no expiry
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Memory is an in-memory TTL cache. Safe for concurrent use.
// Expired entries are reaped lazily on access.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*entry
	clock   func() time.Time
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]*entry),
		clock:   time.Now,
	}
}

// SetClock overrides the time source (for tests).
func (m *Memory) SetClock(clock func() time.Time) {
	m.mu.Lock()
	m.clock = clock
	m.mu.Unlock()
}

// live returns the entry for key if present and unexpired, deleting it
// when expired. Caller must hold the write lock.
func (m *Memory) live(key string) *entry {
	e, ok := m.entries[key]
	if !ok {
		return nil
	}
	if e.expired(m.clock()) {
		delete(m.entries, key)
		return nil
	}
	return e
}

// Get returns the value for key, or ok=false when absent or expired.
func (m *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.live(key)
	if e == nil || e.isList {
		return "", false, nil
	}
	return e.value, true, nil
}

// Set stores value under key with the given TTL. A non-positive TTL means
// no expiry.
func (m *Memory) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := &entry{value: value}
	if ttl > 0 {
		e.expiresAt = m.clock().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

// Exists reports whether key is present and unexpired.
func (m *Memory) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.live(key) != nil, nil
}

// TTL returns the remaining lifetime of key, -1 when absent, 0 when the
// key has no expiry.
func (m *Memory) TTL(ctx context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.live(key)
	if e == nil {
		return -1, nil
	}
	if e.expiresAt.IsZero() {
		return 0, nil
	}
	return e.expiresAt.Sub(m.clock()), nil
}

// ListAppend appends value to the list at key, creating it when absent.
// The list keeps any TTL previously set via Expire.
func (m *Memory) ListAppend(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.live(key)
	if e == nil || !e.isList {
		e = &entry{isList: true}
		m.entries[key] = e
	}
	e.list = append(e.list, value)
	return nil
}

// ListRange returns elements [start, end] inclusive. Negative indexes count
// from the tail, -1 being the last element.
func (m *Memory) ListRange(ctx context.Context, key string, start, end int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.live(key)
	if e == nil || !e.isList {
		return nil, nil
	}
	lo, hi, ok := normalizeRange(start, end, len(e.list))
	if !ok {
		return nil, nil
	}
	out := make([]string, hi-lo+1)
	copy(out, e.list[lo:hi+1])
	return out, nil
}

// ListTrim retains only elements [start, end] inclusive.
func (m *Memory) ListTrim(ctx context.Context, key string, start, end int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.live(key)
	if e == nil || !e.isList {
		return nil
	}
	lo, hi, ok := normalizeRange(start, end, len(e.list))
	if !ok {
		e.list = nil
		return nil
	}
	e.list = append([]string(nil), e.list[lo:hi+1]...)
	return nil
}

// Expire resets the TTL of key. Expiring an absent key is a no-op.
func (m *Memory) Expire(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.live(key)
	if e == nil {
		return nil
	}
	if ttl > 0 {
		e.expiresAt = m.clock().Add(ttl)
	} else {
		e.expiresAt = time.Time{}
	}
	return nil
}

// Len returns the number of live entries (for tests and stats).
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	n := 0
	for k, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, k)
			continue
		}
		n++
	}
	return n
}

// normalizeRange resolves possibly-negative inclusive bounds against a list
// of length n. ok is false when the resolved window is empty.
func normalizeRange(start, end, n int) (int, int, bool) {
	if n == 0 {
		return 0, 0, false
	}
	if start < 0 {
		start += n
	}
	if end < 0 {
		end += n
	}
	if start < 0 {
		start = 0
	}
	if end >= n {
		end = n - 1
	}
	if start > end || start >= n || end < 0 {
		return 0, 0, false
	}
	return start, end, true
}
