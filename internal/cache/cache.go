// Botboard - Telegram Bot Analytics Dashboard API
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/botboard/botboard

// Package cache provides an in-memory TTL cache for analytics responses.
//
// Keys are derived from the endpoint name plus a canonical encoding of the
// query parameters, so two requests for the same data always share an
// entry regardless of parameter ordering. Expired entries are dropped
// lazily on read and by a background janitor.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// janitorInterval is how often the background janitor scans for expired
// entries.
const janitorInterval = 5 * time.Minute

type item struct {
	value     any
	expiresAt time.Time
}

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
	Size    int     `json:"size"`
	Enabled bool    `json:"enabled"`
}

// Cache is a thread-safe TTL cache. A disabled cache is valid and treats
// every Get as a miss and every Set as a no-op, so handlers never need to
// branch on configuration.
type Cache struct {
	mu         sync.RWMutex
	items      map[string]item
	defaultTTL time.Duration
	enabled    bool

	hits   uint64
	misses uint64

	stop chan struct{}
	once sync.Once

	// now is swapped out in tests.
	now func() time.Time
}

// New creates a cache with the given default TTL and starts its janitor.
// Callers should Close the cache when done to release the janitor.
func New(defaultTTL time.Duration, enabled bool) *Cache {
	c := &Cache{
		items:      make(map[string]item),
		defaultTTL: defaultTTL,
		enabled:    enabled,
		stop:       make(chan struct{}),
		now:        time.Now,
	}
	go c.janitor()
	return c
}

// Key derives the cache key for an endpoint and its parameters. Parameters
// are serialized with sorted keys so logically identical requests collide.
// The endpoint stays in the clear so Clear can invalidate by endpoint.
func Key(endpoint string, params map[string]any) string {
	sum := sha256.Sum256(canonicalParams(params))
	return endpoint + ":" + hex.EncodeToString(sum[:])
}

// canonicalParams encodes params deterministically. goccy/go-json already
// sorts map keys for map[string]any, but we sort explicitly so the key
// format does not depend on encoder internals.
func canonicalParams(params map[string]any) []byte {
	if len(params) == 0 {
		return []byte("{}")
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(params[k])
		b.Write(kb)
		b.WriteByte(':')
		b.Write(vb)
	}
	b.WriteByte('}')
	return []byte(b.String())
}

// Get returns the cached value for endpoint+params. Expired entries are
// removed on access and reported as misses.
func (c *Cache) Get(endpoint string, params map[string]any) (any, bool) {
	if !c.enabled {
		return nil, false
	}
	key := Key(endpoint, params)

	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()

	if !ok {
		c.miss()
		return nil, false
	}
	// An entry is dead the moment the clock reaches expiresAt, not one
	// tick after.
	if !c.now().Before(it.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have
		// refreshed the entry.
		if cur, ok := c.items[key]; ok && !c.now().Before(cur.expiresAt) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		c.miss()
		return nil, false
	}

	c.hit()
	return it.value, true
}

// Set stores value under endpoint+params with the default TTL.
func (c *Cache) Set(endpoint string, params map[string]any, value any) {
	c.SetWithTTL(endpoint, params, value, c.defaultTTL)
}

// SetWithTTL stores value with an explicit TTL. Non-positive TTLs fall
// back to the default.
func (c *Cache) SetWithTTL(endpoint string, params map[string]any, value any, ttl time.Duration) {
	if !c.enabled {
		return
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	key := Key(endpoint, params)

	c.mu.Lock()
	c.items[key] = item{value: value, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
}

// Clear removes entries for one endpoint, or every entry when endpoint is
// empty.
func (c *Cache) Clear(endpoint string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if endpoint == "" {
		c.items = make(map[string]item)
		return
	}
	prefix := endpoint + ":"
	for k := range c.items {
		if strings.HasPrefix(k, prefix) {
			delete(c.items, k)
		}
	}
}

// Stats reports hit/miss counters and current size.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{
		Hits:    c.hits,
		Misses:  c.misses,
		HitRate: rate,
		Size:    len(c.items),
		Enabled: c.enabled,
	}
}

// Close stops the janitor. Safe to call more than once.
func (c *Cache) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *Cache) hit() {
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
}

func (c *Cache) miss() {
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
}

func (c *Cache) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.evictExpired()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache) evictExpired() {
	now := c.now()
	c.mu.Lock()
	for k, it := range c.items {
		if !now.Before(it.expiresAt) {
			delete(c.items, k)
		}
	}
	c.mu.Unlock()
}
