// Package cache stores translation results keyed by image fingerprint.
//
// The cache is bounded by entry count and evicts in insertion order.
// Storage failures are logged and treated as a miss so that a broken
// cache never aborts a translation.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"go.aimuz.me/comictl/internal/types"
)

// DefaultCapacity is the maximum number of entries kept.
const DefaultCapacity = 100

// Store is the persistent backing of a Cache.
// Implementations must remember insertion order: Save of a new key appends
// it, Save of an existing key keeps its position.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Len(ctx context.Context) (int, error)
	// Oldest returns up to n keys, oldest inserted first.
	Oldest(ctx context.Context, n int) ([]string, error)
	Clear(ctx context.Context) error
	Close() error
}

// Cache is a bounded result cache.
// Zero value is not useful; create via New or Open.
type Cache struct {
	mu       sync.Mutex // serializes writes so eviction sees a stable count
	store    Store
	capacity int
}

// Option configures a Cache.
type Option func(*Cache)

// WithCapacity overrides DefaultCapacity.
func WithCapacity(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// New creates a Cache over store.
func New(store Store, opts ...Option) *Cache {
	c := &Cache{store: store, capacity: DefaultCapacity}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open creates a Cache backed by a badger database at path.
// An empty path keeps everything in memory.
func Open(path string, opts ...Option) (*Cache, error) {
	store, err := OpenBadgerStore(path)
	if err != nil {
		return nil, err
	}
	return New(store, opts...), nil
}

// Get returns the cached result for key.
func (c *Cache) Get(ctx context.Context, key string) (types.Result, bool) {
	data, found, err := c.store.Load(ctx, key)
	if err != nil {
		slog.Warn("cache get", "key", key, "error", err)
		return types.Result{}, false
	}
	if !found {
		return types.Result{}, false
	}

	var r types.Result
	if err := json.Unmarshal(data, &r); err != nil {
		slog.Warn("cache decode", "key", key, "error", err)
		return types.Result{}, false
	}
	return r, true
}

// Put stores r under key and evicts the oldest entries beyond capacity.
// Terminal results (no_text, error) are never stored.
func (c *Cache) Put(ctx context.Context, key string, r types.Result) {
	if !r.Cacheable() {
		return
	}
	if r.TextRegions == nil {
		r.TextRegions = []types.TextRegion{}
	}

	data, err := json.Marshal(r)
	if err != nil {
		slog.Warn("cache encode", "key", key, "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Save(ctx, key, data); err != nil {
		slog.Warn("cache put", "key", key, "error", err)
		return
	}
	if err := c.evict(ctx); err != nil {
		slog.Warn("cache evict", "error", err)
		return
	}
	slog.Debug("translation cached", "key", key)
}

func (c *Cache) evict(ctx context.Context) error {
	n, err := c.store.Len(ctx)
	if err != nil {
		return fmt.Errorf("count entries: %w", err)
	}
	if n <= c.capacity {
		return nil
	}

	keys, err := c.store.Oldest(ctx, n-c.capacity)
	if err != nil {
		return fmt.Errorf("list oldest: %w", err)
	}
	for _, k := range keys {
		if err := c.store.Delete(ctx, k); err != nil {
			return fmt.Errorf("delete %s: %w", k, err)
		}
	}
	return nil
}

// Invalidate removes key if present.
func (c *Cache) Invalidate(ctx context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Delete(ctx, key); err != nil {
		slog.Warn("cache invalidate", "key", key, "error", err)
	}
}

// Clear drops every entry.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// Len returns the number of entries.
func (c *Cache) Len(ctx context.Context) (int, error) {
	return c.store.Len(ctx)
}

// Close releases the underlying store.
func (c *Cache) Close() error {
	return c.store.Close()
}
