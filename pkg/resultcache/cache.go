// Package resultcache stores produced annotation results keyed by
// request. It combines a TTL, an LRU bound on entry count, and
// single-flight deduplication: concurrent requests for one key share a
// single producer run. Failures are never stored, so a broken URL does
// not poison the cache for the TTL window.
package resultcache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Lines is one produced annotation: an ordered sequence of chat lines.
type Lines []string

// Producer performs the actual fetch/annotate work for a key.
type Producer func(ctx context.Context) (Lines, error)

// Cache is safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	entries  map[string]*list.Element
	order    *list.List // front = most recently used

	group  singleflight.Group
	hits   atomic.Uint64
	misses atomic.Uint64

	onHit  func()
	onMiss func()

	now func() time.Time // clock hook for tests
}

type entry struct {
	key      string
	lines    Lines
	storedAt time.Time
}

// New creates a cache holding at most capacity entries, each valid for
// ttl after insertion.
func New(capacity int, ttl time.Duration) *Cache {
	return &Cache{
		ttl:      ttl,
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

// Observe registers callbacks fired on every cache hit and miss.
// Call before the cache is in use; not synchronized with lookups.
func (c *Cache) Observe(onHit, onMiss func()) {
	c.onHit = onHit
	c.onMiss = onMiss
}

// GetOrExecute returns the cached result for key, or runs producer to
// create one. Concurrent callers for the same key share a single
// producer run and receive its outcome identically. Successful results
// are stored; failed runs are not, so the next independent request
// retries. Waiting callers abandon the wait when ctx is done, without
// cancelling the shared run.
func (c *Cache) GetOrExecute(ctx context.Context, key string, producer Producer) (Lines, error) {
	if lines, ok := c.lookup(key); ok {
		c.hits.Add(1)
		if c.onHit != nil {
			c.onHit()
		}
		return lines, nil
	}
	c.misses.Add(1)
	if c.onMiss != nil {
		c.onMiss()
	}

	ch := c.group.DoChan(key, func() (any, error) {
		// Another flight may have stored the result between our lookup
		// and joining the group.
		if lines, ok := c.lookup(key); ok {
			return lines, nil
		}
		lines, err := producer(ctx)
		if err != nil {
			return nil, err
		}
		c.store(key, lines)
		return lines, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Lines), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// lookup returns a live entry for key, bumping its recency. Expired
// entries are removed on the way.
func (c *Cache) lookup(key string) (Lines, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	ent := el.Value.(*entry)
	if c.now().Sub(ent.storedAt) >= c.ttl {
		c.order.Remove(el)
		delete(c.entries, key)
		return nil, false
	}
	c.order.MoveToFront(el)
	return ent.lines, true
}

func (c *Cache) store(key string, lines Lines) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		el.Value.(*entry).lines = lines
		el.Value.(*entry).storedAt = c.now()
		c.order.MoveToFront(el)
		return
	}
	for c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*entry).key)
	}
	c.entries[key] = c.order.PushFront(&entry{key: key, lines: lines, storedAt: c.now()})
}

// Sweep removes all expired entries and returns how many were dropped.
// Lookups already treat expired entries as absent; sweeping only bounds
// memory between lookups.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	dropped := 0
	now := c.now()
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		ent := el.Value.(*entry)
		if now.Sub(ent.storedAt) >= c.ttl {
			c.order.Remove(el)
			delete(c.entries, ent.key)
			dropped++
		}
		el = prev
	}
	return dropped
}

// Len reports the number of stored entries, including expired ones not
// yet purged.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Hits reports how many GetOrExecute calls were served from the cache.
func (c *Cache) Hits() uint64 { return c.hits.Load() }

// Misses reports how many GetOrExecute calls had to join or start a
// producer run.
func (c *Cache) Misses() uint64 { return c.misses.Load() }
