// Gatehouse - HTTP Request Authorization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatehouse

package authz

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/gatehouse/internal/auth"
)

// decisionCache caches rule-based decisions. Decisions are pure functions of
// (snapshot, path, method, identity); the snapshot generation is part of the
// key, so entries written against a replaced snapshot are never served after
// a reload, even when the write raced the reload's clear.
type decisionCache struct {
	ttl      time.Duration
	mu       sync.RWMutex
	items    map[string]*cacheItem
	stopChan chan struct{}
	stopOnce sync.Once
}

type cacheItem struct {
	decision  Decision
	expiresAt time.Time
}

// newDecisionCache creates a new cache with a background sweep.
func newDecisionCache(ttl time.Duration) *decisionCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	c := &decisionCache{
		ttl:      ttl,
		items:    make(map[string]*cacheItem),
		stopChan: make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// key builds the cache key. The anonymous branch carries its own tag so an
// authenticated principal can never alias an anonymous entry, whatever its
// name. Roles are part of the key because two tokens for the same principal
// may carry different role sets; each role is NUL-terminated so a role name
// containing a separator cannot alias a differently-split set.
func (c *decisionCache) key(gen uint64, id *auth.Identity, path, method string) string {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(gen, 10))
	b.WriteByte('\x00')
	if id.Anonymous {
		b.WriteString("anon")
	} else {
		b.WriteString("principal\x00")
		b.WriteString(id.Principal)
	}
	b.WriteByte('\x00')
	for _, role := range id.Roles {
		b.WriteString(role)
		b.WriteByte('\x00')
	}
	b.WriteString(method)
	b.WriteByte('\x00')
	b.WriteString(path)
	return b.String()
}

// get retrieves a cached decision for the given snapshot generation.
func (c *decisionCache) get(gen uint64, id *auth.Identity, path, method string) (Decision, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[c.key(gen, id, path, method)]
	if !ok || time.Now().After(item.expiresAt) {
		return Decision{}, false
	}
	return item.decision, true
}

// set stores a decision under the given snapshot generation.
func (c *decisionCache) set(gen uint64, id *auth.Identity, path, method string, d Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[c.key(gen, id, path, method)] = &cacheItem{
		decision:  d,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// clear removes all cached decisions. Called on snapshot reload.
func (c *decisionCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*cacheItem)
}

// size returns the current entry count.
func (c *decisionCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// cleanup periodically removes expired items.
func (c *decisionCache) cleanup() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, item := range c.items {
				if now.After(item.expiresAt) {
					delete(c.items, key)
					cacheEvictions.Inc()
				}
			}
			cacheSize.Set(float64(len(c.items)))
			c.mu.Unlock()
		}
	}
}

// stop stops the cleanup goroutine. Safe to call multiple times.
func (c *decisionCache) stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
}
