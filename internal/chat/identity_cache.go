// Missionboard - Collaborative Mission Tracking and Team Chat
// Copyright 2026 Missionboard Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/missionhq/missionboard

package chat

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/missionhq/missionboard/internal/metrics"
	"github.com/missionhq/missionboard/internal/models"
)

// identityShardCount is the number of lock stripes in the identity cache.
// Power of two so the shard index reduces to a mask.
const identityShardCount = 16

// IdentityCache maps live connection IDs to resolved users with a TTL.
// It is lock-striped: per-connection lookups and the background sweep run
// concurrently without contending on a single lock. Entries are discarded
// on disconnect or TTL expiry; the cache is transient, process-lifetime
// state owned by the session manager.
type IdentityCache struct {
	shards [identityShardCount]*identityShard
	ttl    time.Duration

	// now is injectable for TTL tests.
	now func() time.Time
}

type identityShard struct {
	mu      sync.RWMutex
	entries map[string]identityEntry
}

type identityEntry struct {
	user      *models.User
	expiresAt time.Time
}

// NewIdentityCache creates a cache whose entries expire ttl after insert.
func NewIdentityCache(ttl time.Duration) *IdentityCache {
	c := &IdentityCache{ttl: ttl, now: time.Now}
	for i := range c.shards {
		c.shards[i] = &identityShard{entries: make(map[string]identityEntry)}
	}
	return c
}

func (c *IdentityCache) shard(connID string) *identityShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(connID))
	return c.shards[h.Sum32()&(identityShardCount-1)]
}

// Get returns the cached user for the connection if present and unexpired.
// Expired entries are treated as misses but left for the sweep to collect.
func (c *IdentityCache) Get(connID string) (*models.User, bool) {
	shard := c.shard(connID)
	shard.mu.RLock()
	entry, ok := shard.entries[connID]
	shard.mu.RUnlock()

	if !ok || c.now().After(entry.expiresAt) {
		metrics.IdentityCacheOps.WithLabelValues("miss").Inc()
		return nil, false
	}
	metrics.IdentityCacheOps.WithLabelValues("hit").Inc()
	return entry.user, true
}

// Put caches the user for the connection, resetting its TTL.
func (c *IdentityCache) Put(connID string, user *models.User) {
	shard := c.shard(connID)
	shard.mu.Lock()
	shard.entries[connID] = identityEntry{user: user, expiresAt: c.now().Add(c.ttl)}
	shard.mu.Unlock()
}

// Evict drops the connection's entry immediately, regardless of TTL.
func (c *IdentityCache) Evict(connID string) {
	shard := c.shard(connID)
	shard.mu.Lock()
	_, existed := shard.entries[connID]
	delete(shard.entries, connID)
	shard.mu.Unlock()

	if existed {
		metrics.IdentityCacheOps.WithLabelValues("eviction").Inc()
	}
}

// EvictExpired scans every shard and drops entries whose TTL has lapsed.
// Returns the number of entries evicted. Bounds cache growth from
// connections that disconnect without a clean teardown signal.
func (c *IdentityCache) EvictExpired() int {
	now := c.now()
	evicted := 0
	for _, shard := range c.shards {
		shard.mu.Lock()
		for connID, entry := range shard.entries {
			if now.After(entry.expiresAt) {
				delete(shard.entries, connID)
				evicted++
			}
		}
		shard.mu.Unlock()
	}
	if evicted > 0 {
		metrics.IdentityCacheOps.WithLabelValues("eviction").Add(float64(evicted))
	}
	return evicted
}

// Len returns the number of cached entries, expired or not.
func (c *IdentityCache) Len() int {
	total := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		total += len(shard.entries)
		shard.mu.RUnlock()
	}
	return total
}
