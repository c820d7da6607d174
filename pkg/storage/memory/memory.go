// Package memory provides an in-memory cache in front of a user directory.
// Successful lookups are kept for a fixed time with optional LRU eviction,
// so a database-backed store is not queried on every request.
package memory

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/rhuss/gatehouse/pkg/auth/basic"
)

// entry holds a cached user and its metadata.
type entry struct {
	user      basic.User
	expiresAt time.Time
	lruElem   *list.Element // position in LRU list
}

// Cache is a basic.UserStore that remembers positive lookups of next.
// Unknown users are never cached.
type Cache struct {
	next basic.UserStore
	ttl  time.Duration
	now  func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
	lruList *list.List // front = most recently used, back = least recently used
	maxSize int        // 0 = unlimited
}

var (
	_ basic.UserStore       = (*Cache)(nil)
	_ basic.PasswordUpdater = (*Cache)(nil)
)

// New creates a cache over next. If maxSize is 0, the cache grows without
// limit. A zero ttl disables caching.
func New(next basic.UserStore, maxSize int, ttl time.Duration) *Cache {
	return &Cache{
		next:    next,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]*entry),
		lruList: list.New(),
		maxSize: maxSize,
	}
}

// Lookup implements basic.UserStore.
func (c *Cache) Lookup(ctx context.Context, username string) (*basic.User, bool) {
	if c.ttl <= 0 {
		return c.next.Lookup(ctx, username)
	}

	c.mu.Lock()
	if e, ok := c.entries[username]; ok {
		if c.now().Before(e.expiresAt) {
			c.lruList.MoveToFront(e.lruElem)
			u := copyUser(e.user)
			c.mu.Unlock()
			return &u, true
		}
		c.remove(username, e)
	}
	c.mu.Unlock()

	u, ok := c.next.Lookup(ctx, username)
	if !ok {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if old, exists := c.entries[username]; exists {
		c.remove(username, old)
	}
	if c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}
	elem := c.lruList.PushFront(username)
	c.entries[username] = &entry{
		user:      copyUser(*u),
		expiresAt: c.now().Add(c.ttl),
		lruElem:   elem,
	}
	return u, true
}

// UpdatePassword forwards to the underlying store when it supports updates
// and drops the cached entry.
func (c *Cache) UpdatePassword(ctx context.Context, username, record string) error {
	pu, ok := c.next.(basic.PasswordUpdater)
	if !ok {
		return basic.ErrReadOnly
	}
	err := pu.UpdatePassword(ctx, username, record)
	c.Invalidate(username)
	return err
}

// Invalidate drops a cached user.
func (c *Cache) Invalidate(username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[username]; ok {
		c.remove(username, e)
	}
}

// Len returns the number of cached users.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) remove(username string, e *entry) {
	c.lruList.Remove(e.lruElem)
	delete(c.entries, username)
}

// evictOldest removes the least recently used entry. Caller must hold c.mu.
func (c *Cache) evictOldest() {
	back := c.lruList.Back()
	if back == nil {
		return
	}
	c.remove(back.Value.(string), c.entries[back.Value.(string)])
}

func copyUser(u basic.User) basic.User {
	u.Identity.Scopes = append([]string(nil), u.Identity.Scopes...)
	if u.Identity.Metadata != nil {
		meta := make(map[string]string, len(u.Identity.Metadata))
		for k, v := range u.Identity.Metadata {
			meta[k] = v
		}
		u.Identity.Metadata = meta
	}
	return u
}
