// Package cache memoizes graph query results between mutations.
//
// Path, neighbor, search and stats queries depend only on the graph, so a
// result stays valid until the next write. The owner calls Invalidate after
// every successful mutation; the TTL is a second bound for long-idle
// entries, and capacity is enforced by least-recently-used eviction.
//
// Example Usage:
//
//	c := cache.NewQueryCache(1000, 5*time.Minute)
//
//	key := cache.Key("neighbors", string(id), "outgoing", "2")
//	if v, ok := c.Get(key); ok {
//		return v.([]*storage.Node)
//	}
//	nodes := engine.Neighbors(id, nil, storage.Outgoing, 2)
//	c.Put(key, nodes)
//
//	// after a write:
//	c.Invalidate()
package cache

import (
	"container/list"
	"encoding/binary"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultCapacity is used when NewQueryCache is given a non-positive
// capacity.
const DefaultCapacity = 1000

// QueryCache is a bounded, TTL-aware result cache safe for concurrent use.
//
// Values are shared between callers and must be treated as read-only.
type QueryCache struct {
	capacity int
	ttl      time.Duration
	now      func() time.Time

	mu      sync.Mutex
	order   *list.List // front = most recently used
	entries map[uint64]*list.Element

	hits          atomic.Uint64
	misses        atomic.Uint64
	evictions     atomic.Uint64
	invalidations atomic.Uint64
}

type entry struct {
	key      uint64
	value    any
	storedAt time.Time
}

// NewQueryCache returns an empty cache holding at most capacity results.
// A ttl of 0 keeps entries until they are evicted or invalidated.
func NewQueryCache(capacity int, ttl time.Duration) *QueryCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &QueryCache{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		order:    list.New(),
		entries:  make(map[uint64]*list.Element, capacity),
	}
}

// Key hashes an operation name and its arguments with FNV-1a. Every part
// is length-prefixed, so ("ab", "c") and ("a", "bc") hash differently.
func Key(op string, parts ...string) uint64 {
	h := fnv.New64a()
	var size [4]byte
	for _, s := range append([]string{op}, parts...) {
		binary.BigEndian.PutUint32(size[:], uint32(len(s)))
		h.Write(size[:])
		h.Write([]byte(s))
	}
	return h.Sum64()
}

// Get returns the value stored under key. Expired entries are dropped and
// reported as misses.
func (c *QueryCache) Get(key uint64) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if ok && c.expired(elem.Value.(*entry)) {
		c.drop(elem)
		ok = false
	}
	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	c.order.MoveToFront(elem)
	c.hits.Add(1)
	return elem.Value.(*entry).value, true
}

// Put stores value under key, replacing any previous value and restarting
// its TTL. When the cache is full the least recently used entry goes.
func (c *QueryCache) Put(key uint64, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if elem, ok := c.entries[key]; ok {
		e := elem.Value.(*entry)
		e.value, e.storedAt = value, now
		c.order.MoveToFront(elem)
		return
	}

	for c.order.Len() >= c.capacity {
		c.drop(c.order.Back())
		c.evictions.Add(1)
	}
	c.entries[key] = c.order.PushFront(&entry{key: key, value: value, storedAt: now})
}

// Invalidate discards every entry.
func (c *QueryCache) Invalidate() {
	c.mu.Lock()
	c.order.Init()
	clear(c.entries)
	c.mu.Unlock()
	c.invalidations.Add(1)
}

// Len returns the number of stored entries, expired ones included until
// they are next looked up.
func (c *QueryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Entries       int    `json:"entries"`
	Capacity      int    `json:"capacity"`
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Evictions     uint64 `json:"evictions"`
	Invalidations uint64 `json:"invalidations"`
}

// HitRatio returns hits / (hits + misses), or 0 before any lookup.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Stats returns the current counters.
func (c *QueryCache) Stats() Stats {
	return Stats{
		Entries:       c.Len(),
		Capacity:      c.capacity,
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Evictions:     c.evictions.Load(),
		Invalidations: c.invalidations.Load(),
	}
}

// Caller must hold c.mu.
func (c *QueryCache) expired(e *entry) bool {
	return c.ttl > 0 && c.now().Sub(e.storedAt) > c.ttl
}

// Caller must hold c.mu.
func (c *QueryCache) drop(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.entries, elem.Value.(*entry).key)
}
