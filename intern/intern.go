// Package intern deduplicates repeated byte-string payloads into shared Rime
// handles. The cache keeps one reference per resident entry and hands out
// clones, so an interned block stays alive while either the cache or any
// caller still references it.
package intern

import (
	"sync"

	"github.com/hashicorp/golang-lru/simplelru"

	"github.com/Pavez7274/kroos"
	"github.com/Pavez7274/kroos/balloc"
)

// Handle is the shared-pointer type the cache deals in. Interned handles are
// always synchronized: the cache has no way to know which goroutines end up
// holding clones.
type Handle = kroos.Rime[kroos.Atomic, byte]

// Cache is an LRU-bounded interning table. Safe for concurrent use.
type Cache struct {
	mm balloc.MemoryManager

	mu  sync.Mutex
	lru *simplelru.LRU
}

// NewCache creates a cache holding at most size entries; the least recently
// used entry is released on overflow.
func NewCache(mm balloc.MemoryManager, size int) (*Cache, error) {
	lru, err := simplelru.NewLRU(size, func(key, value interface{}) {
		value.(*Handle).Release()
	})
	if err != nil {
		return nil, err
	}
	return &Cache{mm: mm, lru: lru}, nil
}

// Get returns a handle over a block holding the bytes of s, building the
// block on first sight and sharing it afterwards. The caller owns the
// returned clone and must Release it.
func (c *Cache) Get(s string) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.lru.Get(s); ok {
		return v.(*Handle).Clone()
	}

	h := kroos.NewRimeString[kroos.Atomic](c.mm, s)
	c.lru.Add(s, &h)
	return h.Clone()
}

// Contains reports whether s is resident, without promoting it.
func (c *Cache) Contains(s string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Contains(s)
}

// Len returns the number of resident entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Purge releases the cache's reference to every resident entry. Clones held
// by callers keep their blocks alive.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}
