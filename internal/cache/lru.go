// Package cache provides score caching for radiowatch: an in-process LRU,
// a Redis cache and a two-phase cache layering the two.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/radiowatch/radiowatch/internal/domain"
)

const defaultLocalMaxSize = 10000

// LRUCache is a thread-safe LRU cache with per-entry TTL.
// It is the standalone cache and the L1 tier of TwoPhaseCache.
type LRUCache struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element
	order   *list.List
	now     func() time.Time
}

type cacheEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// NewLRUCache creates an LRU cache holding at most maxSize entries.
func NewLRUCache(maxSize int) *LRUCache {
	if maxSize <= 0 {
		maxSize = defaultLocalMaxSize
	}
	return &LRUCache{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
}

// Get returns the value under key, or nil on a miss or expired entry.
func (c *LRUCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return nil, nil
	}

	entry := elem.Value.(*cacheEntry)
	if !c.now().Before(entry.expiresAt) {
		c.removeElement(elem)
		return nil, nil
	}

	c.order.MoveToFront(elem)
	return entry.value, nil
}

// Set stores value under key. A non-positive ttl stores nothing.
func (c *LRUCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 {
		if elem, ok := c.items[key]; ok {
			c.removeElement(elem)
		}
		return nil
	}

	expiresAt := c.now().Add(ttl)
	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		entry := elem.Value.(*cacheEntry)
		entry.value = value
		entry.expiresAt = expiresAt
		return nil
	}

	elem := c.order.PushFront(&cacheEntry{key: key, value: value, expiresAt: expiresAt})
	c.items[key] = elem

	for c.order.Len() > c.maxSize {
		c.removeElement(c.order.Back())
	}
	return nil
}

// Delete removes key. Deleting a missing key is a no-op.
func (c *LRUCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
	return nil
}

// GetScore returns a cached score record, or nil when not cached.
func (c *LRUCache) GetScore(ctx context.Context, networkID string) (*domain.ScoreRecord, error) {
	return getScore(ctx, c, networkID)
}

// SetScore caches a score record.
func (c *LRUCache) SetScore(ctx context.Context, rec *domain.ScoreRecord, ttl time.Duration) error {
	return setScore(ctx, c, rec, ttl)
}

// InvalidateScore drops a cached score record.
func (c *LRUCache) InvalidateScore(ctx context.Context, networkID string) error {
	return c.Delete(ctx, scoreKey(networkID))
}

// Ping always succeeds.
func (c *LRUCache) Ping(ctx context.Context) error {
	return nil
}

// Close drops every entry.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order = list.New()
	return nil
}

// Stats returns the current entry count and the capacity.
func (c *LRUCache) Stats() (size int, capacity int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len(), c.maxSize
}

func (c *LRUCache) removeElement(elem *list.Element) {
	if elem == nil {
		return
	}
	c.order.Remove(elem)
	delete(c.items, elem.Value.(*cacheEntry).key)
}

var _ domain.Cache = (*LRUCache)(nil)
