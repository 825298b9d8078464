package election

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"gridlock/pkg/coordination"
	"gridlock/pkg/metrics"
)

// Config holds elector configuration.
type Config struct {
	// Campaign is the well-known election name all replicas compete on.
	Campaign string
	// Value is this replica's advertised address, published as the leader
	// key's value while leading.
	Value string
	// TTL is the lease time-to-live in seconds.
	TTL int
	// RetryBackoff is the pause before re-entering the loop after a
	// coordination failure.
	RetryBackoff time.Duration
}

// DefaultConfig returns the election defaults: a 10 second lease checked
// every TTL/3, retried on a short fixed backoff.
func DefaultConfig(campaign, value string) Config {
	return Config{
		Campaign:     campaign,
		Value:        value,
		TTL:          10,
		RetryBackoff: 2 * time.Second,
	}
}

// Elector owns one coordination lease and campaigns for the leader key.
// Exactly one replica observes IsLeader() == true per campaign at a time;
// request handlers reject mutating operations while it is false.
//
// Leadership loss is detected in a single select loop per cycle: the
// session's Done channel (lease no longer renewable) and a periodic read of
// the leader key are treated as one loss signal, so there is no window where
// a renew loop and an ownership check disagree.
type Elector struct {
	coord  coordination.Coordinator
	config Config
	log    *zap.Logger

	leading atomic.Bool
	notify  chan bool
}

// New creates an elector. Run must be called for it to participate.
func New(coord coordination.Coordinator, cfg Config, log *zap.Logger) *Elector {
	if cfg.TTL <= 0 {
		cfg.TTL = 10
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 2 * time.Second
	}
	return &Elector{
		coord:  coord,
		config: cfg,
		log:    log,
		notify: make(chan bool, 1),
	}
}

// IsLeader reports whether this replica currently holds the leader key.
func (e *Elector) IsLeader() bool {
	return e.leading.Load()
}

// Notify delivers leadership transitions (true = gained, false = lost).
// Intermediate transitions may be coalesced; the latest value always
// arrives.
func (e *Elector) Notify() <-chan bool {
	return e.notify
}

// LeaderAddress returns the advertised address of the current leader, or ""
// when no leader is bound.
func (e *Elector) LeaderAddress(ctx context.Context) (string, error) {
	return e.coord.CurrentLeader(ctx, e.config.Campaign)
}

// Run drives the election loop until ctx is cancelled: create a session,
// campaign, lead until the lease is lost or ownership moves, tear down, and
// rejoin. Coordination failures are non-fatal and retried with backoff.
func (e *Elector) Run(ctx context.Context) {
	for ctx.Err() == nil {
		sess, err := e.coord.NewSession(ctx, e.config.TTL)
		if err != nil {
			e.log.Warn("failed to create coordination session",
				zap.Error(err),
				zap.Duration("retry_in", e.config.RetryBackoff))
			if !sleep(ctx, e.config.RetryBackoff) {
				return
			}
			continue
		}

		elec := sess.NewElection(e.config.Campaign)
		e.log.Info("campaigning for leadership",
			zap.String("campaign", e.config.Campaign),
			zap.String("value", e.config.Value))

		if err := elec.Campaign(ctx, e.config.Value); err != nil {
			_ = sess.Close()
			if ctx.Err() != nil {
				return
			}
			e.log.Warn("election campaign failed", zap.Error(err))
			if !sleep(ctx, e.config.RetryBackoff) {
				return
			}
			continue
		}

		e.setLeading(true)
		e.log.Info("leadership acquired", zap.String("campaign", e.config.Campaign))

		e.lead(ctx, sess, elec)

		e.setLeading(false)
		e.log.Info("leadership lost", zap.String("campaign", e.config.Campaign))

		// Best-effort hand-off: resign and release the lease so a peer can
		// take over before the TTL expires. Errors here are advisory.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := elec.Resign(releaseCtx); err != nil {
			e.log.Debug("resign failed", zap.Error(err))
		}
		cancel()
		if err := sess.Close(); err != nil {
			e.log.Debug("session close failed", zap.Error(err))
		}
	}
}

// lead blocks while this replica is leader, returning when leadership is
// lost or ctx is cancelled. The lease is renewed by the session itself; this
// loop only watches for the two loss conditions.
func (e *Elector) lead(ctx context.Context, sess coordination.Session, elec coordination.Election) {
	interval := time.Duration(e.config.TTL) * time.Second / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sess.Done():
			e.log.Warn("coordination lease expired")
			return
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, interval)
			value, err := elec.Leader(checkCtx)
			cancel()
			if err != nil {
				e.log.Warn("leadership check failed", zap.Error(err))
				return
			}
			if value != e.config.Value {
				e.log.Warn("leader key bound to another replica",
					zap.String("holder", value))
				return
			}
		}
	}
}

func (e *Elector) setLeading(leading bool) {
	if e.leading.Swap(leading) == leading {
		return
	}
	if leading {
		metrics.LeaderState.Set(1)
	} else {
		metrics.LeaderState.Set(0)
	}
	metrics.ElectionTransitions.Inc()

	// Coalesce: drop a stale pending notification before sending the
	// latest one.
	select {
	case <-e.notify:
	default:
	}
	e.notify <- leading
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
