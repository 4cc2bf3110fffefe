package cache

import (
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestTTLReadWithinWindow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	c := NewTTL[string](2*time.Minute, clock.Now)

	c.Put("0xabc", "42.5")
	clock.Advance(2*time.Minute - time.Millisecond)

	got, ok := c.Get("0xabc")
	if !ok {
		t.Fatal("expected hit within TTL")
	}
	if got != "42.5" {
		t.Fatalf("expected stored value back, got %q", got)
	}
}

func TestTTLExpiryBehavesAsAbsent(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := NewTTL[int](time.Minute, clock.Now)

	c.Put("k", 7)
	clock.Advance(time.Minute)

	if _, ok := c.Get("k"); ok {
		t.Fatal("entry at exactly TTL must be absent")
	}
	// The slot is not purged; a fresh put overwrites it and is visible again.
	if c.Len() != 1 {
		t.Fatalf("stale slot should remain, len=%d", c.Len())
	}
	c.Put("k", 9)
	got, ok := c.Get("k")
	if !ok || got != 9 {
		t.Fatalf("overwritten slot should be fresh, got %d ok=%v", got, ok)
	}
}

func TestTTLMissOnUnknownKey(t *testing.T) {
	c := NewTTL[string](time.Minute, nil)
	if _, ok := c.Get("nope"); ok {
		t.Fatal("unknown key must miss")
	}
}

func TestSlotRoundTrip(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	s := NewSlot[[]string](time.Minute, clock.Now)

	if _, ok := s.Get(); ok {
		t.Fatal("empty slot must miss")
	}
	s.Put([]string{"a", "b"})
	got, ok := s.Get()
	if !ok || len(got) != 2 {
		t.Fatalf("expected fresh slot, got %v ok=%v", got, ok)
	}
	clock.Advance(61 * time.Second)
	if _, ok := s.Get(); ok {
		t.Fatal("slot past TTL must miss")
	}
}
