package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/vbrik/cta-data-relay/core/catalog"

	"golang.org/x/sync/singleflight"
)

// Cache memoizes inventory snapshots for the audit API. Transfer runs never
// use it: they always plan from fresh listings.
type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]*snapshot
	sf      singleflight.Group
}

type snapshot struct {
	records []catalog.InventoryRecord
	built   time.Time
}

// NewCache returns a cache whose snapshots live for ttl. A zero ttl only
// collapses concurrent loads of the same key.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl, now: time.Now, entries: make(map[string]*snapshot)}
}

func (c *Cache) fresh(key string) ([]catalog.InventoryRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.entries[key]
	if !ok || c.ttl == 0 || c.now().Sub(s.built) > c.ttl {
		return nil, false
	}
	return s.records, true
}

// Snapshot returns the cached inventory for key, calling load when it is
// missing or expired. Concurrent callers for one key share a single load.
func (c *Cache) Snapshot(ctx context.Context, key string, load func(context.Context) ([]catalog.InventoryRecord, error)) ([]catalog.InventoryRecord, error) {
	if recs, ok := c.fresh(key); ok {
		return recs, nil
	}

	v, err, _ := c.sf.Do(key, func() (any, error) {
		if recs, ok := c.fresh(key); ok {
			return recs, nil
		}
		recs, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = &snapshot{records: recs, built: c.now()}
		c.mu.Unlock()
		return recs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]catalog.InventoryRecord), nil
}

// Invalidate drops the snapshot for key.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}
