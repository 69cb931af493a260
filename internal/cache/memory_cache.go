package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type entry struct {
	value   string
	expires time.Time
}

// MemoryCache is the single-process stand-in used when Redis is not
// configured. Entries expire lazily on read.
type MemoryCache struct {
	mu    sync.Mutex
	items map[string]entry
	now   func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		items: make(map[string]entry),
		now:   time.Now,
	}
}

func (c *MemoryCache) Acquire(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := lockPrefix + key
	if _, ok := c.live(k); ok {
		return "", false, nil
	}

	token := uuid.NewString()
	c.items[k] = entry{value: token, expires: c.now().Add(ttl)}
	return token, true, nil
}

func (c *MemoryCache) Release(_ context.Context, key, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := lockPrefix + key
	e, ok := c.live(k)
	if !ok || e.value != token {
		return ErrNotHeld
	}
	delete(c.items, k)
	return nil
}

func (c *MemoryCache) Revoke(_ context.Context, sessionID string, until time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !until.After(c.now()) {
		return nil
	}
	c.items[revokedPrefix+sessionID] = entry{value: "1", expires: until}
	return nil
}

func (c *MemoryCache) IsRevoked(_ context.Context, sessionID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.live(revokedPrefix + sessionID)
	return ok, nil
}

func (c *MemoryCache) Touch(_ context.Context, sessionID string, at time.Time, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[seenPrefix+sessionID] = entry{value: at.Format(time.RFC3339Nano), expires: c.now().Add(ttl)}
	return nil
}

func (c *MemoryCache) LastSeen(_ context.Context, sessionID string) (time.Time, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.live(seenPrefix + sessionID)
	if !ok {
		return time.Time{}, false, nil
	}
	at, err := time.Parse(time.RFC3339Nano, e.value)
	if err != nil {
		return time.Time{}, false, err
	}
	return at, true, nil
}

// live must be called with mu held.
func (c *MemoryCache) live(k string) (entry, bool) {
	e, ok := c.items[k]
	if !ok {
		return entry{}, false
	}
	if !c.now().Before(e.expires) {
		delete(c.items, k)
		return entry{}, false
	}
	return e, true
}
