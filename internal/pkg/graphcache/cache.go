// Package graphcache memoizes positioned graphs per (snapshot digest, filter state, layout options).
// Entries expire after a TTL and the least recently used entry is evicted at capacity.
package graphcache

import (
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/PrasadTelasula/kaptivan-sub000/internal/models"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/pkg/metrics"
)

const keySep = "|"

// Cache holds graphs keyed by snapshot digest plus request parameters. Thread-safe.
type Cache struct {
	lru *expirable.LRU[string, *models.RBACGraph]
}

// New returns a cache with the given capacity and TTL. If size <= 0, Get will always
// miss (cache disabled). A ttl <= 0 means entries never expire.
func New(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		return &Cache{}
	}
	return &Cache{lru: expirable.NewLRU[string, *models.RBACGraph](size, nil, ttl)}
}

// Key builds the cache key of one graph request.
func Key(digest, filterKey, layoutKey string) string {
	return digest + keySep + filterKey + keySep + layoutKey
}

// Get returns a cached graph. Records hit/miss.
func (c *Cache) Get(key string) (*models.RBACGraph, bool) {
	if c.lru == nil {
		metrics.GraphCacheMissesTotal.Inc()
		return nil, false
	}
	g, ok := c.lru.Get(key)
	if !ok {
		metrics.GraphCacheMissesTotal.Inc()
		return nil, false
	}
	metrics.GraphCacheHitsTotal.Inc()
	return g, true
}

// Set stores a graph.
func (c *Cache) Set(key string, graph *models.RBACGraph) {
	if c.lru == nil || graph == nil {
		return
	}
	c.lru.Add(key, graph)
}

// InvalidateDigest removes every entry built from the snapshot with the given digest.
func (c *Cache) InvalidateDigest(digest string) int {
	if c.lru == nil {
		return 0
	}
	prefix := digest + keySep
	removed := 0
	for _, k := range c.lru.Keys() {
		if strings.HasPrefix(k, prefix) && c.lru.Remove(k) {
			removed++
		}
	}
	return removed
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	if c.lru == nil {
		return 0
	}
	return c.lru.Len()
}

// Purge drops all entries.
func (c *Cache) Purge() {
	if c.lru != nil {
		c.lru.Purge()
	}
}
