package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the game host. promauto registers everything with
// the default registry, exposed on /metrics.
var (
	// --- Session metrics ---

	// SessionsLive tracks game sessions currently held in memory.
	SessionsLive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gridlock",
			Subsystem: "sessions",
			Name:      "live",
			Help:      "Number of game sessions resident in memory",
		},
	)

	// SessionsCreated counts sessions created (fresh, not reloaded).
	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gridlock",
			Subsystem: "sessions",
			Name:      "created_total",
			Help:      "Total game sessions created",
		},
	)

	// SessionsEvicted counts idle sessions dropped by the janitor.
	SessionsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gridlock",
			Subsystem: "sessions",
			Name:      "evicted_total",
			Help:      "Total idle sessions evicted from memory",
		},
	)

	// --- Move metrics ---

	// MovesTotal counts applied moves by resulting status.
	MovesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gridlock",
			Subsystem: "moves",
			Name:      "total",
			Help:      "Total accepted moves by resulting session status",
		},
		[]string{"status"},
	)

	// MovesRejected counts rejected moves by reason.
	MovesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gridlock",
			Subsystem: "moves",
			Name:      "rejected_total",
			Help:      "Total rejected moves by reason",
		},
		[]string{"reason"},
	)

	// --- Broadcast metrics ---

	// Subscribers tracks live snapshot subscribers across all sessions.
	Subscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gridlock",
			Subsystem: "broadcast",
			Name:      "subscribers",
			Help:      "Number of live snapshot subscribers",
		},
	)

	// BroadcastsTotal counts snapshot deliveries attempted.
	BroadcastsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gridlock",
			Subsystem: "broadcast",
			Name:      "deliveries_total",
			Help:      "Total snapshot deliveries to subscribers",
		},
	)

	// SubscribersPruned counts subscribers dropped after failed delivery.
	SubscribersPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gridlock",
			Subsystem: "broadcast",
			Name:      "pruned_total",
			Help:      "Total subscribers removed after delivery failure",
		},
	)

	// --- Election metrics ---

	// LeaderState is 1 while this replica holds the leader key.
	LeaderState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gridlock",
			Subsystem: "election",
			Name:      "leader",
			Help:      "1 if this replica is the active game host, else 0",
		},
	)

	// ElectionTransitions counts leadership gains and losses.
	ElectionTransitions = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gridlock",
			Subsystem: "election",
			Name:      "transitions_total",
			Help:      "Total leadership transitions observed locally",
		},
	)

	// --- Persistence metrics ---

	// PersistFailures counts failed snapshot writes.
	PersistFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gridlock",
			Subsystem: "storage",
			Name:      "save_failures_total",
			Help:      "Total failed snapshot persistence writes",
		},
	)

	// RoundsArchived counts finished rounds archived.
	RoundsArchived = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gridlock",
			Subsystem: "storage",
			Name:      "rounds_archived_total",
			Help:      "Total terminal round snapshots archived",
		},
	)
)
