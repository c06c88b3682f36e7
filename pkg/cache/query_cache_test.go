package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// stubClock pins the cache's time source and returns a handle to move it.
func stubClock(c *QueryCache) *time.Time {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return &now
}

func TestNewQueryCache(t *testing.T) {
	c := NewQueryCache(64, time.Minute)
	if got := c.Stats().Capacity; got != 64 {
		t.Errorf("Capacity = %d, want 64", got)
	}

	for _, capacity := range []int{0, -1} {
		if got := NewQueryCache(capacity, 0).Stats().Capacity; got != DefaultCapacity {
			t.Errorf("NewQueryCache(%d) capacity = %d, want %d", capacity, got, DefaultCapacity)
		}
	}
}

func TestKey(t *testing.T) {
	tests := []struct {
		name string
		a, b uint64
		same bool
	}{
		{"stable", Key("path", "a", "b"), Key("path", "a", "b"), true},
		{"operation matters", Key("path", "a", "b"), Key("neighbors", "a", "b"), false},
		{"direction of path matters", Key("path", "a", "b"), Key("path", "b", "a"), false},
		{"part boundaries matter", Key("search", "ab", "c"), Key("search", "a", "bc"), false},
		{"empty part is not absent part", Key("search", ""), Key("search"), false},
		{"nil filter differs from empty filter", Key("neighbors", "n", "*"), Key("neighbors", "n", "[]"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if (tt.a == tt.b) != tt.same {
				t.Errorf("keys equal = %v, want %v", tt.a == tt.b, tt.same)
			}
		})
	}
}

func TestQueryCache_GetPut(t *testing.T) {
	c := NewQueryCache(8, 0)
	key := Key("stats")

	if _, ok := c.Get(key); ok {
		t.Fatal("empty cache returned a value")
	}

	c.Put(key, "first")
	c.Put(key, "second")

	v, ok := c.Get(key)
	if !ok || v.(string) != "second" {
		t.Errorf("Get = (%v, %v), want (second, true)", v, ok)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1 after overwrite", c.Len())
	}
}

func TestQueryCache_TTL(t *testing.T) {
	t.Run("expires", func(t *testing.T) {
		c := NewQueryCache(8, time.Minute)
		now := stubClock(c)
		c.Put(7, "v")

		*now = now.Add(time.Minute)
		if _, ok := c.Get(7); !ok {
			t.Error("entry exactly at its TTL should still be served")
		}

		*now = now.Add(time.Second)
		if _, ok := c.Get(7); ok {
			t.Error("entry past its TTL was served")
		}
		if c.Len() != 0 {
			t.Errorf("expired entry not reclaimed, Len = %d", c.Len())
		}
	})

	t.Run("zero ttl never expires", func(t *testing.T) {
		c := NewQueryCache(8, 0)
		now := stubClock(c)
		c.Put(7, "v")

		*now = now.Add(72 * time.Hour)
		if _, ok := c.Get(7); !ok {
			t.Error("entry without TTL expired")
		}
	})

	t.Run("overwrite restarts ttl", func(t *testing.T) {
		c := NewQueryCache(8, time.Minute)
		now := stubClock(c)
		c.Put(7, "old")

		*now = now.Add(45 * time.Second)
		c.Put(7, "new")

		*now = now.Add(45 * time.Second)
		if v, ok := c.Get(7); !ok || v.(string) != "new" {
			t.Errorf("Get = (%v, %v), want (new, true)", v, ok)
		}
	})
}

func TestQueryCache_Eviction(t *testing.T) {
	c := NewQueryCache(3, 0)
	c.Put(1, 1)
	c.Put(2, 2)
	c.Put(3, 3)

	// Touch 1 so 2 becomes the least recently used.
	c.Get(1)
	c.Put(4, 4)

	if _, ok := c.Get(2); ok {
		t.Error("least recently used entry survived")
	}
	for _, key := range []uint64{1, 3, 4} {
		if _, ok := c.Get(key); !ok {
			t.Errorf("entry %d was evicted", key)
		}
	}
	if got := c.Stats().Evictions; got != 1 {
		t.Errorf("Evictions = %d, want 1", got)
	}
}

func TestQueryCache_Invalidate(t *testing.T) {
	c := NewQueryCache(8, 0)
	c.Put(1, 1)
	c.Put(2, 2)

	c.Invalidate()

	if c.Len() != 0 {
		t.Errorf("Len = %d after Invalidate", c.Len())
	}
	if _, ok := c.Get(1); ok {
		t.Error("invalidated entry was served")
	}

	c.Put(1, "fresh")
	if v, ok := c.Get(1); !ok || v.(string) != "fresh" {
		t.Errorf("Get after refill = (%v, %v)", v, ok)
	}
	if got := c.Stats().Invalidations; got != 1 {
		t.Errorf("Invalidations = %d, want 1", got)
	}
}

func TestQueryCache_Stats(t *testing.T) {
	c := NewQueryCache(8, 0)
	if r := c.Stats().HitRatio(); r != 0 {
		t.Errorf("HitRatio before lookups = %v, want 0", r)
	}

	c.Put(1, 1)
	c.Get(1)
	c.Get(1)
	c.Get(1)
	c.Get(9)

	s := c.Stats()
	if s.Hits != 3 || s.Misses != 1 {
		t.Errorf("hits/misses = %d/%d, want 3/1", s.Hits, s.Misses)
	}
	if s.HitRatio() != 0.75 {
		t.Errorf("HitRatio = %v, want 0.75", s.HitRatio())
	}
	if s.Entries != 1 {
		t.Errorf("Entries = %d, want 1", s.Entries)
	}
}

func TestQueryCache_Concurrent(t *testing.T) {
	c := NewQueryCache(32, time.Minute)
	var wg sync.WaitGroup

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 400; i++ {
				key := Key("search", fmt.Sprintf("q%d", (w+i)%64))
				if _, ok := c.Get(key); !ok {
					c.Put(key, i)
				}
				if i%97 == 0 {
					c.Invalidate()
				}
			}
		}(w)
	}
	wg.Wait()

	if c.Len() > 32 {
		t.Errorf("Len = %d exceeds capacity", c.Len())
	}
}
