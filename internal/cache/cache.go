// Package cache holds the most recent evaluation bundle together with its
// expiry. Readers load an immutable entry through an atomic pointer, so a
// reader sees either the previous or the new entry and never a mix.
package cache

import (
	"sync/atomic"
	"time"
)

// Entry is a bundle stamped with its absolute expiry.
type Entry[T any] struct {
	Value     T
	StoredAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether now is at or past the expiry.
func (e *Entry[T]) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Cache holds at most one Entry. The zero value is not usable; call New.
type Cache[T any] struct {
	current atomic.Pointer[Entry[T]]
	now     func() time.Time // injectable clock for testing
}

// New returns an empty cache that uses the wall clock.
func New[T any]() *Cache[T] {
	return &Cache[T]{now: time.Now}
}

// NewWithClock returns an empty cache driven by the given clock.
func NewWithClock[T any](now func() time.Time) *Cache[T] {
	if now == nil {
		now = time.Now
	}
	return &Cache[T]{now: now}
}

// Set replaces the held entry with v, expiring ttl from now. Concurrent
// writers race and the last store wins.
func (c *Cache[T]) Set(v T, ttl time.Duration) {
	stored := c.now()
	c.current.Store(&Entry[T]{
		Value:     v,
		StoredAt:  stored,
		ExpiresAt: stored.Add(ttl),
	})
}

// Get returns the held value, or false when nothing has been stored.
// Expired values are still returned.
func (c *Cache[T]) Get() (T, bool) {
	e := c.current.Load()
	if e == nil {
		var zero T
		return zero, false
	}
	return e.Value, true
}

// Entry returns the held entry or nil.
func (c *Cache[T]) Entry() *Entry[T] {
	return c.current.Load()
}

// IsExpired is true when nothing is held or the held entry has expired.
func (c *Cache[T]) IsExpired() bool {
	e := c.current.Load()
	if e == nil {
		return true
	}
	return e.Expired(c.now())
}

// Clear drops the held entry.
func (c *Cache[T]) Clear() {
	c.current.Store(nil)
}
