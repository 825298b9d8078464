package game

import (
	"sync"

	"github.com/google/uuid"

	"gridlock/pkg/metrics"
	"gridlock/pkg/models"
)

// subscriberBuffer is the per-subscriber queue depth. A subscriber that
// falls further behind than this is considered dead and pruned.
const subscriberBuffer = 16

// hub fans out session snapshots to subscribers. Delivery never blocks the
// mutating operation: each subscriber owns a buffered channel drained by its
// own connection handler, and a full channel drops the subscriber instead of
// stalling the publisher.
type hub struct {
	mu          sync.Mutex
	subscribers map[uuid.UUID]chan models.Snapshot
	lastVersion uint64
	closed      bool
}

func newHub() *hub {
	return &hub{subscribers: make(map[uuid.UUID]chan models.Snapshot)}
}

// subscribe registers a new subscriber and queues the current snapshot as
// its first delivery, so it observes the state at subscription time exactly
// once and never misses it. version is the snapshot's mutation counter.
func (h *hub) subscribe(current models.Snapshot, version uint64) (uuid.UUID, <-chan models.Snapshot) {
	id := uuid.New()
	ch := make(chan models.Snapshot, subscriberBuffer)
	ch <- current

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return id, ch
	}
	if version > h.lastVersion {
		h.lastVersion = version
	}
	h.subscribers[id] = ch
	metrics.Subscribers.Inc()
	return id, ch
}

// unsubscribe removes a subscriber. Safe to call after the hub already
// pruned it.
func (h *hub) unsubscribe(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subscribers[id]; ok {
		delete(h.subscribers, id)
		close(ch)
		metrics.Subscribers.Dec()
	}
}

// publish queues a snapshot for every subscriber. Publishes carry the
// session's mutation counter: a publish that arrives after a newer snapshot
// has already gone out is dropped, so no subscriber ever receives an older
// snapshot after a newer one even though broadcasting happens outside the
// session lock.
func (h *hub) publish(snap models.Snapshot, version uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || version <= h.lastVersion {
		return
	}
	h.lastVersion = version

	for id, ch := range h.subscribers {
		select {
		case ch <- snap:
			metrics.BroadcastsTotal.Inc()
		default:
			// Subscriber stopped draining; prune it so future
			// deliveries are never attempted.
			delete(h.subscribers, id)
			close(ch)
			metrics.Subscribers.Dec()
			metrics.SubscribersPruned.Inc()
		}
	}
}

// count returns the number of live subscribers.
func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// close drops all subscribers, ending their streams.
func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subscribers {
		delete(h.subscribers, id)
		close(ch)
		metrics.Subscribers.Dec()
	}
}
