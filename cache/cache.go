// Package cache provides the small in-memory TTL stores backing the market
// data gateway. Entries expire lazily: a read past the TTL behaves as a miss
// and the slot stays in place until the next put overwrites it. There is no
// background eviction and no size bound; key spaces are per-token and small.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// TTL is a keyed store whose entries are visible only while
// now - storedAt < ttl. It is safe for concurrent use; the mutex guards the
// read-check-then-write sequence so a stale value never wins a race against
// a fresher concurrent fetch.
type TTL[V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]entry[V]
}

// NewTTL constructs a TTL cache. now may be nil, in which case time.Now is
// used; tests inject a fake clock for deterministic expiry.
func NewTTL[V any](ttl time.Duration, now func() time.Time) *TTL[V] {
	if now == nil {
		now = time.Now
	}
	return &TTL[V]{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]entry[V]),
	}
}

// Get returns the stored value for key if it is still fresh. A stale entry is
// reported as absent but not purged; the caller is expected to refetch and
// Put, which overwrites the slot.
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if c.now().Sub(e.storedAt) >= c.ttl {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Put stores value under key, stamping it with the current clock reading.
func (c *TTL[V]) Put(key string, value V) {
	c.mu.Lock()
	c.entries[key] = entry[V]{value: value, storedAt: c.now()}
	c.mu.Unlock()
}

// Len reports the number of slots, fresh or stale.
func (c *TTL[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Slot is the single-entry variant used for lookups that are not
// parameterized by token, such as the trending feed.
type Slot[V any] struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	value    V
	storedAt time.Time
	set      bool
}

// NewSlot constructs a single-slot cache with the same clock-injection
// contract as NewTTL.
func NewSlot[V any](ttl time.Duration, now func() time.Time) *Slot[V] {
	if now == nil {
		now = time.Now
	}
	return &Slot[V]{ttl: ttl, now: now}
}

// Get returns the slot value if fresh.
func (s *Slot[V]) Get() (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set || s.now().Sub(s.storedAt) >= s.ttl {
		var zero V
		return zero, false
	}
	return s.value, true
}

// Put overwrites the slot.
func (s *Slot[V]) Put(value V) {
	s.mu.Lock()
	s.value = value
	s.storedAt = s.now()
	s.set = true
	s.mu.Unlock()
}
