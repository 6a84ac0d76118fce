package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/speddy/speddy/core"
)

type entry struct {
	val     []byte
	expires time.Time // zero: never
}

// MemoryCache is a process local core.Cache, used when no Redis server is configured.
type MemoryCache struct {
	mutex   sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

var _ core.Cache = (*MemoryCache)(nil)

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]entry), now: time.Now}
}

// get returns the live entry of key. Callers hold the lock.
func (c *MemoryCache) get(key string) (entry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return entry{}, false
	}
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		delete(c.entries, key)
		return entry{}, false
	}
	return e, true
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	e, ok := c.get(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), e.val...), true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	e := entry{val: append([]byte(nil), val...)}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.entries[key] = e
	return nil
}

// Incr keeps the expiry of an existing counter, like Redis INCR.
func (c *MemoryCache) Incr(_ context.Context, key string) (int64, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	e, _ := c.get(key)
	var n int64
	if len(e.val) > 0 {
		var err error
		if n, err = strconv.ParseInt(string(e.val), 10, 64); err != nil {
			return 0, err
		}
	}
	n++
	e.val = []byte(strconv.FormatInt(n, 10))
	c.entries[key] = e
	return n, nil
}
