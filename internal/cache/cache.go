package cache

import (
	"container/list"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Cache is a bounded TTL + LRU response cache shared by all request
// handlers. It is read-through: callers compute on miss and Set the result;
// writers invalidate affected prefixes synchronously after a successful
// write, with the TTL bounding staleness if they forget.
//
// A configurable set of key prefixes is treated as priority: under
// capacity pressure those entries are evicted only when nothing else is
// left to evict. Aggregate counts stay warm while per-order entries churn.
type Cache struct {
	mu               sync.Mutex
	capacity         int
	items            map[string]*list.Element
	order            *list.List // Front = most recent, Back = least recent
	priorityPrefixes []string
	now              func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
}

type entry struct {
	key       string
	value     any
	expiresAt time.Time
}

func New(capacity int, priorityPrefixes []string) *Cache {
	if capacity <= 0 {
		capacity = 100
	}
	return &Cache{
		capacity:         capacity,
		items:            make(map[string]*list.Element, capacity),
		order:            list.New(),
		priorityPrefixes: priorityPrefixes,
		now:              time.Now,
	}
}

// Get returns the cached value, or (nil, false) on a miss. An expired
// entry is removed and reported as a miss; a value is never returned past
// its expiry.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	ent := elem.Value.(*entry)
	if !c.now().Before(ent.expiresAt) {
		c.removeElement(elem)
		c.misses.Add(1)
		return nil, false
	}

	c.order.MoveToFront(elem)
	c.hits.Add(1)
	return ent.value, true
}

// Set stores a value with an expiry, evicting least-recently-used entries
// when over capacity.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.now().Add(ttl)

	if elem, ok := c.items[key]; ok {
		ent := elem.Value.(*entry)
		ent.value = value
		ent.expiresAt = expires
		c.order.MoveToFront(elem)
		return
	}

	elem := c.order.PushFront(&entry{key: key, value: value, expiresAt: expires})
	c.items[key] = elem

	for len(c.items) > c.capacity {
		c.evictOne()
	}
}

// Delete removes a single key. Idempotent.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
}

// DeleteByPrefix bulk-invalidates every key sharing the prefix and returns
// how many entries were dropped. Writers call this synchronously after a
// successful mutation.
func (c *Cache) DeleteByPrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, elem := range c.items {
		if strings.HasPrefix(key, prefix) {
			c.removeElement(elem)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns cumulative hit/miss counters.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// evictOne removes the least-recently-used non-priority entry, falling back
// to the LRU priority entry when everything left is priority.
func (c *Cache) evictOne() {
	for elem := c.order.Back(); elem != nil; elem = elem.Prev() {
		if !c.isPriority(elem.Value.(*entry).key) {
			c.removeElement(elem)
			return
		}
	}
	if back := c.order.Back(); back != nil {
		c.removeElement(back)
	}
}

func (c *Cache) isPriority(key string) bool {
	for _, p := range c.priorityPrefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

func (c *Cache) removeElement(elem *list.Element) {
	ent := elem.Value.(*entry)
	delete(c.items, ent.key)
	c.order.Remove(elem)
}

// Key builders keep cache-key formats in one place; DeleteByPrefix relies
// on these shapes.

func QueueKey(dept string) string { return "queue:" + dept }
func CountsKey() string           { return "counts" }
func StatsKey(dept string) string { return "stats:" + dept }
func ReprintsKey() string         { return "reprints:open" }
func HistoryKey(orderID int) string {
	return "history:" + strconv.Itoa(orderID)
}
