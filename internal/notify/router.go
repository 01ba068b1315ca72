package notify

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/kubilayture/notes-realtime/internal/cache"
	"github.com/kubilayture/notes-realtime/internal/stats"
	"github.com/kubilayture/notes-realtime/internal/transport"
	"github.com/kubilayture/notes-realtime/internal/types"
)

const (
	StatNotificationsRouted = "NotificationsRouted"
	StatToastsShown         = "ToastsShown"
	StatToastsDeduped       = "ToastsDeduped"
	StatCountsUpdates       = "CountsUpdates"
	StatMalformedEvents     = "MalformedEvents"
)

// Toaster displays a transient notification to the user.
type Toaster interface {
	Toast(title, message string)
}

// Router classifies inbound notification events into three effects: a
// toast, a set of cache invalidations, and a navigation target for the
// toast's View action. Classification is deterministic; duplicate delivery
// of an id inside the dedupe window suppresses the toast but still runs
// invalidation, which is idempotent and cheap.
type Router struct {
	bus     transport.Bus
	inv     cache.Invalidator
	nav     cache.Navigator
	toaster Toaster
	log     *log.Logger
	stats   stats.StatsProvider
	dedupe  *dedupeCache

	mu     sync.Mutex
	counts types.NotificationCounts

	unsubs []func()
}

func NewRouter(bus transport.Bus, inv cache.Invalidator, nav cache.Navigator, toaster Toaster, logger *log.Logger, sp stats.StatsProvider) *Router {
	sp.RegisterMetric(StatNotificationsRouted)
	sp.RegisterMetric(StatToastsShown)
	sp.RegisterMetric(StatToastsDeduped)
	sp.RegisterMetric(StatCountsUpdates)
	sp.RegisterMetric(StatMalformedEvents)

	r := &Router{
		bus:     bus,
		inv:     inv,
		nav:     nav,
		toaster: toaster,
		log:     logger,
		stats:   sp,
		dedupe:  newDedupeCache(DefaultDedupeCapacity, DefaultDedupeTTL),
	}

	r.unsubs = append(r.unsubs,
		bus.Subscribe(transport.EventNotificationNew, r.handleNotification),
		bus.Subscribe(transport.EventNotificationCounts, r.handleCounts),
	)

	return r
}

// Close deregisters the router's transport handlers.
func (r *Router) Close() {
	for _, unsub := range r.unsubs {
		unsub()
	}
}

// SetDedupeWindow overrides the dedupe tunables. Call before events flow.
func (r *Router) SetDedupeWindow(capacity int, ttl time.Duration) {
	r.dedupe = newDedupeCache(capacity, ttl)
}

// Counts returns the latest aggregate counts snapshot pushed by the
// server.
func (r *Router) Counts() types.NotificationCounts {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts
}

// View performs the toast's View action: invalidate first, then navigate,
// so the destination page never renders against a stale cache.
func (r *Router) View(n *types.Notification) {
	for _, key := range InvalidationKeys(n) {
		r.inv.Invalidate(key)
	}
	r.nav.Navigate(RedirectPath(n))
}

func (r *Router) handleNotification(payload json.RawMessage) {
	var n types.Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		// one malformed event must not stop subsequent processing
		r.log.Print("notify: malformed notification:", err)
		r.stats.Incr(StatMalformedEvents)
		return
	}

	r.stats.Incr(StatNotificationsRouted)

	// invalidation runs on every delivery, duplicates included
	for _, key := range InvalidationKeys(&n) {
		r.inv.Invalidate(key)
	}

	if n.Id != "" && r.dedupe.seen(n.Id) {
		r.stats.Incr(StatToastsDeduped)
		return
	}

	r.toaster.Toast(n.Title, DisplayMessage(&n))
	r.stats.Incr(StatToastsShown)
}

// handleCounts replaces the local counts snapshot in full; pushes are
// never merged with the previous state.
func (r *Router) handleCounts(payload json.RawMessage) {
	var counts types.NotificationCounts
	if err := json.Unmarshal(payload, &counts); err != nil {
		r.log.Print("notify: malformed counts:", err)
		r.stats.Incr(StatMalformedEvents)
		return
	}

	r.mu.Lock()
	r.counts = counts
	r.mu.Unlock()
	r.stats.Incr(StatCountsUpdates)
}
