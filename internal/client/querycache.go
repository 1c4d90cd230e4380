package client

import (
	"context"
	"fmt"
	"sync"
)

// FetchFunc pulls the latest authoritative value for a query key.
type FetchFunc func(ctx context.Context) (any, error)

// QueryCache holds the dashboard's query results and keeps invalidation
// idempotent: marking a key stale while a refetch is already in flight is a
// no-op, so the push path and the poll path can race freely.
type QueryCache struct {
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	entries map[string]*queryEntry
}

type queryEntry struct {
	fetch    FetchFunc
	value    any
	valid    bool
	fetching bool
	done     chan struct{} // closed when the in-flight fetch finishes
}

func NewQueryCache() *QueryCache {
	ctx, cancel := context.WithCancel(context.Background())
	return &QueryCache{
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]*queryEntry),
	}
}

// Register binds a query key to its fetcher. Re-registering replaces the
// fetcher and drops any cached value.
func (q *QueryCache) Register(key string, fetch FetchFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries[key] = &queryEntry{fetch: fetch}
}

// Get returns the cached value, fetching first when the entry is stale.
// Concurrent callers of a stale key share one fetch.
func (q *QueryCache) Get(ctx context.Context, key string) (any, error) {
	q.mu.Lock()
	e, ok := q.entries[key]
	if !ok {
		q.mu.Unlock()
		return nil, fmt.Errorf("unknown query key %q", key)
	}
	if e.valid {
		v := e.value
		q.mu.Unlock()
		return v, nil
	}
	if !e.fetching {
		q.startFetchLocked(e)
	}
	done := e.done
	q.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-done:
		}

		q.mu.Lock()
		if e.valid {
			v := e.value
			q.mu.Unlock()
			return v, nil
		}
		if e.fetching {
			// An Invalidate landed between the fetch finishing and this
			// waiter waking; follow the newer fetch instead of erroring.
			done = e.done
			q.mu.Unlock()
			continue
		}
		q.mu.Unlock()
		return nil, fmt.Errorf("refetch failed for query %q", key)
	}
}

// Invalidate marks the key stale and triggers a background refetch. Calling
// it again before the refetch finishes changes nothing and causes no second
// fetch.
func (q *QueryCache) Invalidate(key string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[key]
	if !ok {
		return
	}
	e.valid = false
	if e.fetching {
		return
	}
	q.startFetchLocked(e)
}

// InvalidateAll is the high-priority escape hatch: every registered query
// goes stale at once.
func (q *QueryCache) InvalidateAll() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, e := range q.entries {
		e.valid = false
		if !e.fetching {
			q.startFetchLocked(e)
		}
	}
}

// Peek reports the cached value without triggering a fetch.
func (q *QueryCache) Peek(key string) (any, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[key]
	if !ok || !e.valid {
		return nil, false
	}
	return e.value, true
}

// Close cancels in-flight fetches; late results are discarded.
func (q *QueryCache) Close() {
	q.cancel()
}

func (q *QueryCache) startFetchLocked(e *queryEntry) {
	e.fetching = true
	e.done = make(chan struct{})
	done := e.done

	go func() {
		v, err := e.fetch(q.ctx)

		q.mu.Lock()
		e.fetching = false
		if err == nil && q.ctx.Err() == nil {
			e.value = v
			e.valid = true
		}
		q.mu.Unlock()
		close(done)
	}()
}
