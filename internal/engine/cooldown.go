package engine

import (
	"sync"
	"time"
)

// Cooldown rate-limits actions per key, e.g. forced refreshes from the API.
type Cooldown struct {
	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

func NewCooldown(now func() time.Time) *Cooldown {
	if now == nil {
		now = time.Now
	}
	return &Cooldown{last: make(map[string]time.Time), now: now}
}

// AllowKey reports whether key may run now and, if so, records the attempt.
func (c *Cooldown) AllowKey(key string, cooldown time.Duration) bool {
	if cooldown <= 0 {
		return true
	}
	now := c.now().UTC()
	c.mu.Lock()
	defer c.mu.Unlock()
	if ts, ok := c.last[key]; ok {
		if now.Sub(ts) < cooldown {
			return false
		}
	}
	c.last[key] = now
	return true
}

// Remaining is how long key still has to wait.
func (c *Cooldown) Remaining(key string, cooldown time.Duration) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts, ok := c.last[key]
	if !ok {
		return 0
	}
	left := cooldown - c.now().UTC().Sub(ts)
	if left < 0 {
		return 0
	}
	return left
}

func (c *Cooldown) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = make(map[string]time.Time)
}
