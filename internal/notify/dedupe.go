package notify

import (
	"sync"
	"time"
)

// Dedupe window defaults. Both are tunables, not hidden constants: a
// notification id is remembered until either the TTL elapses or the cache
// fills and evicts it as the oldest entry. A reconnect replay inside the
// window shows no duplicate toast.
const (
	DefaultDedupeCapacity = 512
	DefaultDedupeTTL      = 5 * time.Minute
)

// dedupeCache is a bounded recently-seen set of notification ids.
type dedupeCache struct {
	capacity int
	ttl      time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]time.Time
	order   []string
}

func newDedupeCache(capacity int, ttl time.Duration) *dedupeCache {
	return &dedupeCache{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		entries:  make(map[string]time.Time),
	}
}

// seen reports whether the id was already recorded inside the window and
// records it if not. The first sighting's timestamp is kept; duplicates do
// not extend the window.
func (d *dedupeCache) seen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.pruneLocked(now)

	if _, ok := d.entries[id]; ok {
		return true
	}

	if len(d.order) >= d.capacity {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.entries, oldest)
	}

	d.entries[id] = now
	d.order = append(d.order, id)
	return false
}

func (d *dedupeCache) pruneLocked(now time.Time) {
	for len(d.order) > 0 {
		oldest := d.order[0]
		seenAt, ok := d.entries[oldest]
		if ok && now.Sub(seenAt) < d.ttl {
			return
		}
		d.order = d.order[1:]
		delete(d.entries, oldest)
	}
}

func (d *dedupeCache) len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}
