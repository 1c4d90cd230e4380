package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests move time without sleeping.
type fakeClock struct {
	t time.Time
}

func (f *fakeClock) Now() time.Time          { return f.t }
func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestCache(capacity int, prefixes []string) (*Cache, *fakeClock) {
	c := New(capacity, prefixes)
	clk := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	c.now = clk.Now
	return c, clk
}

func TestCache_TTLExpiry(t *testing.T) {
	tests := []struct {
		name    string
		ttl     time.Duration
		elapsed time.Duration
		wantHit bool
	}{
		{name: "well before expiry", ttl: 10 * time.Second, elapsed: 1 * time.Second, wantHit: true},
		{name: "just before expiry", ttl: 10 * time.Second, elapsed: 10*time.Second - time.Millisecond, wantHit: true},
		{name: "exactly at expiry", ttl: 10 * time.Second, elapsed: 10 * time.Second, wantHit: false},
		{name: "after expiry", ttl: 10 * time.Second, elapsed: 11 * time.Second, wantHit: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, clk := newTestCache(10, nil)
			c.Set("queue:impressao", "v", tt.ttl)
			clk.Advance(tt.elapsed)

			got, ok := c.Get("queue:impressao")
			assert.Equal(t, tt.wantHit, ok)
			if tt.wantHit {
				assert.Equal(t, "v", got)
			} else {
				assert.Nil(t, got)
			}
		})
	}
}

func TestCache_ExpiredEntryIsRemoved(t *testing.T) {
	c, clk := newTestCache(10, nil)
	c.Set("k", 1, time.Second)
	clk.Advance(2 * time.Second)

	_, ok := c.Get("k")
	require.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCache_LRUEviction(t *testing.T) {
	c, _ := newTestCache(3, nil)
	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)
	c.Set("c", 3, time.Minute)

	// Touch "a" so "b" becomes the LRU victim.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("d", 4, time.Minute)

	_, ok = c.Get("b")
	assert.False(t, ok, "LRU entry should have been evicted")
	for _, key := range []string{"a", "c", "d"} {
		_, ok := c.Get(key)
		assert.True(t, ok, "key %s should survive", key)
	}
}

func TestCache_PriorityKeysRetained(t *testing.T) {
	c, _ := newTestCache(2, []string{"counts"})
	c.Set("counts", map[string]int{"impressao": 3}, time.Minute)
	c.Set("queue:corte", "q1", time.Minute)

	// counts is older than queue:corte, but queue:corte must be evicted
	// first because counts is priority.
	c.Set("queue:costura", "q2", time.Minute)

	_, ok := c.Get("counts")
	assert.True(t, ok, "priority key must survive eviction")
	_, ok = c.Get("queue:corte")
	assert.False(t, ok)
}

func TestCache_PriorityEvictedWhenNothingElseLeft(t *testing.T) {
	c, _ := newTestCache(2, []string{"stats:"})
	c.Set("stats:corte", 1, time.Minute)
	c.Set("stats:costura", 2, time.Minute)
	c.Set("stats:embalagem", 3, time.Minute)

	assert.Equal(t, 2, c.Len(), "capacity must hold even for priority keys")
}

func TestCache_DeleteByPrefix(t *testing.T) {
	c, _ := newTestCache(16, nil)
	for _, dept := range []string{"impressao", "corte", "costura"} {
		c.Set(QueueKey(dept), dept, time.Minute)
	}
	c.Set(CountsKey(), 9, time.Minute)

	removed := c.DeleteByPrefix("queue:")
	assert.Equal(t, 3, removed)
	assert.Equal(t, 1, c.Len())

	_, ok := c.Get(CountsKey())
	assert.True(t, ok)
}

func TestCache_DeleteByPrefixNoMatch(t *testing.T) {
	c, _ := newTestCache(4, nil)
	c.Set("counts", 1, time.Minute)
	assert.Equal(t, 0, c.DeleteByPrefix("queue:"))
	assert.Equal(t, 1, c.Len())
}

func TestCache_SetUpdatesExisting(t *testing.T) {
	c, clk := newTestCache(4, nil)
	c.Set("k", "old", time.Second)
	clk.Advance(900 * time.Millisecond)
	c.Set("k", "new", time.Second)
	clk.Advance(500 * time.Millisecond)

	got, ok := c.Get("k")
	require.True(t, ok, "update must refresh the expiry")
	assert.Equal(t, "new", got)
	assert.Equal(t, 1, c.Len())
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New(64, []string{"counts"})
	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("queue:%d", (g*7+i)%32)
				c.Set(key, i, time.Minute)
				c.Get(key)
				if i%50 == 0 {
					c.DeleteByPrefix("queue:")
				}
			}
		}(g)
	}
	for g := 0; g < 8; g++ {
		<-done
	}
}
