// Package cache provides a thread-safe LRU cache for parsed and typed rule
// language expressions.
//
// The engine uses it for ComputeExpression and for the eval, evalrule and
// remoteExec builtins, which receive source text at run time. Parsing and
// typing the same text again on every call is avoided, which matters for
// rules that call eval inside loops.
//
// # Example
//
//	c := cache.New(1024)
//	expr, err := c.GetOrCompile(`writeLine("stdout", "hello")`, compile)
package cache

import (
	"sync"

	lru "github.com/zyedidia/generic/cache"

	"github.com/sandrolain/goirl/pkg/types"
)

// DefaultCapacity is used when New is given a non positive capacity.
const DefaultCapacity = 256

// Cache is an LRU cache of compiled expressions keyed by source text.
// Once the capacity is reached, the least recently used entry is evicted.
//
// Safe for concurrent use by multiple goroutines.
type Cache struct {
	mu  sync.Mutex
	lru *lru.Cache[string, *types.Expression]
}

// New creates a new LRU cache with the given capacity.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{lru: lru.New[string, *types.Expression](capacity)}
}

// Get returns the expression cached under key and marks it most recently
// used.
func (c *Cache) Get(key string) (*types.Expression, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(key)
}

// Set inserts or replaces an expression.
func (c *Cache) Set(key string, expr *types.Expression) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Put(key, expr)
}

// GetOrCompile returns the expression cached under key, or calls compile,
// caches its result and returns it. Errors are not cached.
func (c *Cache) GetOrCompile(key string, compile func() (*types.Expression, error)) (*types.Expression, error) {
	if expr, ok := c.Get(key); ok {
		return expr, nil
	}
	expr, err := compile()
	if err != nil {
		return nil, err
	}
	c.Set(key, expr)
	return expr, nil
}

// Len returns the number of entries currently in the cache.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Size()
}

// Capacity returns the maximum number of entries the cache can hold.
func (c *Cache) Capacity() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Capacity()
}

// Invalidate removes a single entry.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// Clear removes all entries. A rule reload clears the cache because cached
// expressions were typed against the previous signatures.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru = lru.New[string, *types.Expression](c.lru.Capacity())
}
