package coordination

import (
	"context"
)

// Coordinator is the client for the external consistent coordination
// service. It issues time-bounded sessions (leases) and backs the leader
// election and the replica presence registry.
type Coordinator interface {
	// NewSession creates a lease-backed session with the given TTL in
	// seconds. The session keeps its lease alive until closed or until the
	// coordination service becomes unreachable.
	NewSession(ctx context.Context, ttl int) (Session, error)

	// RegisterReplica publishes this replica's presence under a
	// TTL-bounded key. Called periodically as a heartbeat.
	RegisterReplica(ctx context.Context, replicaID, payload string, ttl int) error

	// ActiveReplicas lists currently registered replicas (id -> payload).
	ActiveReplicas(ctx context.Context) (map[string]string, error)

	// CurrentLeader reads the value bound to the leader key for a
	// campaign, without joining the election.
	CurrentLeader(ctx context.Context, name string) (string, error)

	// Close terminates the coordinator connection.
	Close() error
}

// Session is one lease-backed ownership token.
type Session interface {
	// NewElection creates an election campaign bound to this session's
	// lease.
	NewElection(name string) Election

	// Done is closed when the session's lease can no longer be renewed,
	// which revokes every ownership claim bound to it.
	Done() <-chan struct{}

	// Close releases the lease.
	Close() error
}

// Election represents a single leader election campaign.
type Election interface {
	// Campaign blocks until leadership is acquired or an error occurs,
	// binding value to the leader key.
	Campaign(ctx context.Context, value string) error

	// Resign releases leadership.
	Resign(ctx context.Context) error

	// Leader returns the current leader's value (if any).
	Leader(ctx context.Context) (string, error)
}
