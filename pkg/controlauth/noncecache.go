package controlauth

import (
	"sync"
	"time"
)

// NonceCache tracks consumed nonces until they expire. It is process-wide
// state with no persistence; a restart resets replay protection, which is
// acceptable because short TTLs and secret rotation bound the exposure.
type NonceCache struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

// NewNonceCache creates an empty cache.
func NewNonceCache() *NonceCache {
	return &NonceCache{entries: map[string]time.Time{}}
}

// Prune drops entries whose expiry has passed.
func (c *NonceCache) Prune(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for nonce, expiry := range c.entries {
		if !expiry.After(now) {
			delete(c.entries, nonce)
		}
	}
}

// Seen reports whether the nonce is still live in the cache.
func (c *NonceCache) Seen(nonce string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[nonce]
	return ok
}

// Put records a consumed nonce until the given expiry.
func (c *NonceCache) Put(nonce string, expiry time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[nonce] = expiry
}

// Len returns the number of live entries.
func (c *NonceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
