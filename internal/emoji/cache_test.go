package emoji

import (
	"testing"
	"time"
)

func TestGetMissOnAbsent(t *testing.T) {
	c := NewCache(time.Minute, 10)
	if _, ok := c.Get(time.Now(), "missing"); ok {
		t.Fatal("want miss on absent key")
	}
}

func TestSetThenGetHit(t *testing.T) {
	c := NewCache(time.Minute, 10)
	now := time.Now()
	c.Set(now, "k", []byte("data"), "image/webp")

	e, ok := c.Get(now, "k")
	if !ok {
		t.Fatal("want hit")
	}
	if string(e.Data) != "data" || e.ContentType != "image/webp" {
		t.Fatalf("unexpected entry: %+v", e)
	}
}

func TestGetExtendsExpiry(t *testing.T) {
	c := NewCache(2*time.Second, 10)
	start := time.Now()
	c.Set(start, "k", []byte("x"), "image/webp")

	// Access again just before the original expiry would hit; this should
	// push expiry forward another 2s from this access time.
	almostExpired := start.Add(1900 * time.Millisecond)
	if _, ok := c.Get(almostExpired, "k"); !ok {
		t.Fatal("want hit before expiry")
	}

	pastOriginalExpiry := start.Add(2100 * time.Millisecond)
	if _, ok := c.Get(pastOriginalExpiry, "k"); !ok {
		t.Fatal("continuous access should have extended expiry past the original window")
	}
}

func TestGetMissAfterExpiry(t *testing.T) {
	c := NewCache(time.Second, 10)
	start := time.Now()
	c.Set(start, "k", []byte("x"), "image/webp")

	if _, ok := c.Get(start.Add(2*time.Second), "k"); ok {
		t.Fatal("want miss after expiry with no intervening access")
	}
}

func TestMaintainEvictsExpiredEntries(t *testing.T) {
	c := NewCache(time.Second, 10)
	start := time.Now()
	c.Set(start, "a", []byte("x"), "image/webp")
	c.Set(start, "b", []byte("y"), "image/webp")

	c.Maintain(start.Add(2 * time.Second))
	if c.Len() != 0 {
		t.Fatalf("want 0 entries after expiry sweep, got %d", c.Len())
	}
}

func TestBytesSumsEntrySizes(t *testing.T) {
	c := NewCache(time.Minute, 10)
	now := time.Now()
	c.Set(now, "a", []byte("abc"), "image/webp")
	c.Set(now, "b", []byte("de"), "image/webp")

	if got := c.Bytes(); got != 5 {
		t.Fatalf("want 5 total bytes, got %d", got)
	}
}

func TestMaintainEvictsLeastRecentlyAccessedOverflow(t *testing.T) {
	c := NewCache(time.Hour, 2)
	start := time.Now()
	c.Set(start, "a", []byte("x"), "image/webp")
	c.Set(start.Add(time.Second), "b", []byte("y"), "image/webp")
	c.Set(start.Add(2*time.Second), "c", []byte("z"), "image/webp")

	c.Maintain(start.Add(3 * time.Second))

	if c.Len() != 2 {
		t.Fatalf("want 2 entries after overflow eviction, got %d", c.Len())
	}
	if _, ok := c.Get(start.Add(3*time.Second), "a"); ok {
		t.Fatal("oldest entry 'a' should have been evicted")
	}
}
