package session

import (
	"container/list"
	"context"
	"sync"

	"github.com/ikaris-ai/ikaris/internal/agent"
	"github.com/ikaris-ai/ikaris/internal/metrics"
	"github.com/ikaris-ai/ikaris/internal/state"
)

// CachedStore fronts a checkpoint store with an in-process LRU of
// recently active threads. The busy guard already serializes writers
// per thread, so a cached snapshot can only be stale if another
// process wrote the thread; a multi-instance deployment should size
// the cache at zero to bypass it.
type CachedStore struct {
	inner agent.Checkpointer
	max   int

	mu    sync.Mutex
	items map[string]*list.Element
	order *list.List
}

type cacheEntry struct {
	threadID string
	conv     *state.Conversation
}

// NewCachedStore wraps a checkpointer. max <= 0 disables caching.
func NewCachedStore(inner agent.Checkpointer, max int) *CachedStore {
	return &CachedStore{
		inner: inner,
		max:   max,
		items: make(map[string]*list.Element),
		order: list.New(),
	}
}

// Get serves from cache when possible, falling through to the store.
func (c *CachedStore) Get(ctx context.Context, threadID string) (*state.Conversation, bool, error) {
	if conv, ok := c.lookup(threadID); ok {
		metrics.SessionCacheHits.Inc()
		return conv, true, nil
	}
	metrics.SessionCacheMisses.Inc()

	conv, found, err := c.inner.Get(ctx, threadID)
	if err != nil || !found {
		return conv, found, err
	}
	c.store(threadID, conv)
	return conv, true, nil
}

// Put writes through to the store and refreshes the cache on success.
func (c *CachedStore) Put(ctx context.Context, threadID string, conv *state.Conversation) error {
	if err := c.inner.Put(ctx, threadID, conv); err != nil {
		return err
	}
	c.store(threadID, conv)
	return nil
}

func (c *CachedStore) lookup(threadID string) (*state.Conversation, bool) {
	if c.max <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[threadID]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).conv, true
}

func (c *CachedStore) store(threadID string, conv *state.Conversation) {
	if c.max <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[threadID]; ok {
		el.Value.(*cacheEntry).conv = conv
		c.order.MoveToFront(el)
		return
	}
	c.items[threadID] = c.order.PushFront(&cacheEntry{threadID: threadID, conv: conv})
	if c.order.Len() > c.max {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).threadID)
	}
}
