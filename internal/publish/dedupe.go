package publish

import (
	"sync"
	"time"
)

// DedupeCache remembers event ids for a window so a refresh that rediscovers
// the same fact does not publish it twice.
type DedupeCache struct {
	mu    sync.Mutex
	items map[string]time.Time
}

func NewDedupeCache() *DedupeCache {
	return &DedupeCache{items: make(map[string]time.Time)}
}

func (d *DedupeCache) Seen(key string, now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if ts, ok := d.items[key]; ok {
		if now.Sub(ts) <= ttl {
			return true
		}
	}
	d.items[key] = now
	if len(d.items) > 10000 {
		d.compact(now, ttl)
	}
	return false
}

// Forget drops a key, used when publishing failed after Seen recorded it.
func (d *DedupeCache) Forget(key string) {
	d.mu.Lock()
	delete(d.items, key)
	d.mu.Unlock()
}

func (d *DedupeCache) Reset() {
	d.mu.Lock()
	d.items = make(map[string]time.Time)
	d.mu.Unlock()
}

func (d *DedupeCache) compact(now time.Time, ttl time.Duration) {
	for k, ts := range d.items {
		if now.Sub(ts) > ttl {
			delete(d.items, k)
		}
	}
}
