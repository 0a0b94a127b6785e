package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/lucaslopezpuerta/LavpopBusinessIntelligence-sub010/internal/feed"
)

// RowCache keeps the most recently changed rows per stream so the dashboard
// can show "what just happened" without a round trip. Bounded LRU with TTL;
// eviction only costs a database read later.
type RowCache struct {
	lru *expirable.LRU[string, json.RawMessage]
}

// NewRowCache creates a cache holding up to size rows for at most ttl.
func NewRowCache(size int, ttl time.Duration) *RowCache {
	return &RowCache{
		lru: expirable.NewLRU[string, json.RawMessage](size, nil, ttl),
	}
}

// Apply folds one change event into the cache. Inserts and updates store the
// payload; deletes drop the row. Events whose payload carries no row id are
// skipped.
func (c *RowCache) Apply(ev feed.ChangeEvent) {
	key, ok := rowKey(ev)
	if !ok {
		return
	}

	switch ev.Kind {
	case feed.OpInsert, feed.OpUpdate:
		c.lru.Add(key, ev.Payload)
	case feed.OpDelete:
		c.lru.Remove(key)
	}
}

// Get returns a cached row payload.
func (c *RowCache) Get(stream, id string) (json.RawMessage, bool) {
	return c.lru.Get(stream + "/" + id)
}

// Len returns the number of cached rows.
func (c *RowCache) Len() int {
	return c.lru.Len()
}

// Purge empties the cache.
func (c *RowCache) Purge() {
	c.lru.Purge()
}

// rowKey derives the cache key from the event payload's "id" field. The
// feed sends the full row for inserts/updates and the old row for deletes,
// so the id is present in all three.
func rowKey(ev feed.ChangeEvent) (string, bool) {
	var row struct {
		ID any `json:"id"`
	}
	if err := json.Unmarshal(ev.Payload, &row); err != nil || row.ID == nil {
		return "", false
	}
	return fmt.Sprintf("%s/%v", ev.Stream, row.ID), true
}
