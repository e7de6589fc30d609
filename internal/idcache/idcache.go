// Package idcache memoizes unique id to remote id resolutions for a bounded time.
package idcache

import (
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"
	"github.com/openmined/mirrorbox/internal/pathid"
	"github.com/openmined/mirrorbox/internal/remote"
)

const (
	DefaultSize = 100
	DefaultTTL  = 24 * time.Hour
)

var ErrInvalidSize = errors.New("cache size must be positive")

type entry struct {
	id        remote.ID
	expiresAt time.Time
}

// Cache maps unique ids to remote ids. Entries expire after their ttl and the
// least recently used entry is evicted once the cache is full. Both cases
// look like a plain miss to callers.
type Cache struct {
	mu         sync.RWMutex
	lru        *lru.Cache[pathid.UniqueID, entry]
	clock      clockwork.Clock
	defaultTTL time.Duration
}

type Option func(*Cache)

// WithClock replaces the wall clock, mostly for tests
func WithClock(clock clockwork.Clock) Option {
	return func(c *Cache) {
		c.clock = clock
	}
}

// WithDefaultTTL sets the ttl used by Set
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.defaultTTL = ttl
	}
}

func New(size int, opts ...Option) (*Cache, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}

	l, err := lru.New[pathid.UniqueID, entry](size)
	if err != nil {
		return nil, err
	}

	c := &Cache{
		lru:        l,
		clock:      clockwork.NewRealClock(),
		defaultTTL: DefaultTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get returns the cached remote id, if present and not expired.
func (c *Cache) Get(id pathid.UniqueID) (remote.ID, bool) {
	c.mu.RLock()
	e, ok := c.lru.Get(id)
	c.mu.RUnlock()
	if !ok {
		return "", false
	}
	if c.clock.Now().Before(e.expiresAt) {
		return e.id, true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// a Put may have landed since the read above; only drop what was seen
	if cur, ok := c.lru.Peek(id); ok && cur == e {
		c.lru.Remove(id)
	}
	return "", false
}

// Put inserts or overwrites an entry and restarts its expiry clock
func (c *Cache) Put(id pathid.UniqueID, remoteID remote.ID, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(id, entry{id: remoteID, expiresAt: c.clock.Now().Add(ttl)})
}

// Set is Put with the cache's default ttl
func (c *Cache) Set(id pathid.UniqueID, remoteID remote.ID) {
	c.Put(id, remoteID, c.defaultTTL)
}

// Len counts entries, including expired ones not yet evicted
func (c *Cache) Len() int {
	return c.lru.Len()
}

func (c *Cache) TTL() time.Duration {
	return c.defaultTTL
}
