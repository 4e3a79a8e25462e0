package publish

import (
	"sync"
	"time"
)

// Feed keeps the most recent events in memory for the API.
type Feed struct {
	mu    sync.RWMutex
	buf   []Event
	limit int
}

func NewFeed(limit int) *Feed {
	if limit <= 0 {
		limit = 1000
	}
	return &Feed{limit: limit}
}

func (f *Feed) Add(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.buf) < f.limit {
		f.buf = append(f.buf, ev)
		return
	}
	copy(f.buf, f.buf[1:])
	f.buf[len(f.buf)-1] = ev
}

// List returns the newest limit events, oldest first. limit <= 0 means all.
func (f *Feed) List(limit int) []Event {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if limit <= 0 || limit > len(f.buf) {
		limit = len(f.buf)
	}
	out := make([]Event, 0, limit)
	for i := len(f.buf) - limit; i < len(f.buf); i++ {
		out = append(out, f.buf[i])
	}
	return out
}

func (f *Feed) Since(ts time.Time) []Event {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Event, 0)
	for _, ev := range f.buf {
		if !ev.OccurredAt.Before(ts) {
			out = append(out, ev)
		}
	}
	return out
}

func (f *Feed) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buf = nil
}
