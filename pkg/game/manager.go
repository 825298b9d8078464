package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gridlock/pkg/metrics"
	"gridlock/pkg/models"
	"gridlock/pkg/resilience"
	"gridlock/pkg/rules"
	"gridlock/pkg/storage"
)

// Manager is the in-memory registry of live game sessions. It serializes
// mutating operations per session, runs the rules engine, persists after
// every mutation and fans snapshots out to subscribers. Concurrency across
// distinct game ids is unconstrained; within one id it is serialized by that
// session's lock.
//
// A replica's in-memory state is a cache over the store: sessions are loaded
// on first access and never assumed authoritative across replicas beyond
// what persistence records.
type Manager struct {
	engine  rules.Engine
	store   storage.GameStore
	archive storage.ArchiveStore
	breaker *resilience.CircuitBreaker
	log     *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*session
}

// Option customizes a Manager.
type Option func(*Manager)

// WithArchive enables best-effort archival of terminal round snapshots.
func WithArchive(a storage.ArchiveStore) Option {
	return func(m *Manager) { m.archive = a }
}

// NewManager constructs a session manager with its own registry. Multiple
// independent managers can coexist in one process.
func NewManager(engine rules.Engine, store storage.GameStore, log *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		engine:   engine,
		store:    store,
		breaker:  resilience.NewCircuitBreaker("game-store", resilience.DefaultCircuitBreakerConfig()),
		log:      log,
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// lookup returns the in-memory session, or nil.
func (m *Manager) lookup(gameID string) *session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[gameID]
}

// load fetches a session into memory from the store. Returns ErrNotFound
// when no persisted record exists either; other store errors are transient
// and surfaced.
func (m *Manager) load(ctx context.Context, gameID string) (*session, error) {
	if s := m.lookup(gameID); s != nil {
		return s, nil
	}

	snap, err := m.store.Load(ctx, gameID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load game %s: %w", gameID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[gameID]; ok {
		return s, nil
	}
	s := sessionFromSnapshot(snap)
	m.sessions[gameID] = s
	metrics.SessionsLive.Set(float64(len(m.sessions)))
	return s, nil
}

// loadOrCreate is load with fallback to a fresh session.
func (m *Manager) loadOrCreate(ctx context.Context, gameID string) (*session, error) {
	s, err := m.load(ctx, gameID)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[gameID]; ok {
		return s, nil
	}
	s = newSession(gameID, m.engine)
	m.sessions[gameID] = s
	metrics.SessionsLive.Set(float64(len(m.sessions)))
	metrics.SessionsCreated.Inc()
	return s, nil
}

// CreateOrJoin creates the session on first reference with the caller as
// player X, or assigns the caller to the first empty slot. Joining the
// second slot transitions Waiting to Playing. A caller who already occupies
// a slot gets the current snapshot back unchanged.
func (m *Manager) CreateOrJoin(ctx context.Context, gameID, playerID string) (models.Snapshot, error) {
	s, err := m.loadOrCreate(ctx, gameID)
	if err != nil {
		return models.Snapshot{}, err
	}

	s.mu.Lock()
	s.touchLocked()
	changed := false
	switch {
	case s.hasPlayerLocked(playerID):
		// Idempotent re-join.
	case s.playerX == "":
		s.playerX = playerID
		if s.current == "" {
			s.current = playerID
		}
		changed = true
	case s.playerO == "":
		s.playerO = playerID
		changed = true
	default:
		s.mu.Unlock()
		return models.Snapshot{}, ErrGameFull
	}
	if changed {
		if s.playerX != "" && s.playerO != "" && s.status == models.StatusWaiting {
			// Both slots filled. The turn belongs to a slot, not an
			// identity: on a fresh board X moves first, on a resumed board
			// the joiner inherits the vacated slot's turn.
			s.status = models.StatusPlaying
			s.current = s.turnHolderLocked()
		}
		s.version++
	}
	snap, version := s.snapshotLocked(), s.version
	s.mu.Unlock()

	if !changed {
		return snap, nil
	}
	return snap, m.persistAndBroadcast(ctx, s, snap, version)
}

// ApplyMove validates and applies one move under the session lock, then
// persists and broadcasts the resulting snapshot.
func (m *Manager) ApplyMove(ctx context.Context, gameID, playerID string, mv rules.Move) (models.Snapshot, error) {
	s, err := m.load(ctx, gameID)
	if err != nil {
		return models.Snapshot{}, err
	}

	s.mu.Lock()
	s.touchLocked()
	if s.status != models.StatusPlaying {
		s.mu.Unlock()
		metrics.MovesRejected.WithLabelValues("invalid_state").Inc()
		return models.Snapshot{}, ErrInvalidState
	}
	if s.current != playerID {
		s.mu.Unlock()
		metrics.MovesRejected.WithLabelValues("not_your_turn").Inc()
		return models.Snapshot{}, ErrNotYourTurn
	}

	mark := models.MarkO
	if playerID == s.playerX {
		mark = models.MarkX
	}

	board, outcome, err := m.engine.Apply(s.board, mv, mark)
	if err != nil {
		s.mu.Unlock()
		metrics.MovesRejected.WithLabelValues(rejectReason(err)).Inc()
		return models.Snapshot{}, err
	}

	s.board = board
	switch outcome.Status {
	case models.StatusWon:
		s.status = models.StatusWon
		s.winnerID = playerID
		s.winLine = outcome.WinningLine
		if mark == models.MarkX {
			s.scoreX++
		} else {
			s.scoreO++
		}
	case models.StatusDraw:
		s.status = models.StatusDraw
	default:
		// Advance the turn. If player O has not joined yet the turn
		// stays with X.
		if mark == models.MarkX && s.playerO != "" {
			s.current = s.playerO
		} else {
			s.current = s.playerX
		}
	}
	s.version++
	snap, version := s.snapshotLocked(), s.version
	s.mu.Unlock()

	metrics.MovesTotal.WithLabelValues(string(snap.Status)).Inc()
	if snap.Status.Terminal() {
		m.archiveRound(ctx, snap)
	}
	return snap, m.persistAndBroadcast(ctx, s, snap, version)
}

// Reset clears the board and terminal fields for a new round, preserving
// player identities and scores.
func (m *Manager) Reset(ctx context.Context, gameID string) (models.Snapshot, error) {
	s, err := m.load(ctx, gameID)
	if err != nil {
		return models.Snapshot{}, err
	}

	s.mu.Lock()
	s.touchLocked()
	s.board = m.engine.NewBoard()
	s.winnerID = ""
	s.winLine = nil
	if s.playerX != "" && s.playerO != "" {
		s.status = models.StatusPlaying
	} else {
		s.status = models.StatusWaiting
	}
	s.current = s.playerX
	s.version++
	snap, version := s.snapshotLocked(), s.version
	s.mu.Unlock()

	return snap, m.persistAndBroadcast(ctx, s, snap, version)
}

// Snapshot returns the current state without mutating anything.
func (m *Manager) Snapshot(ctx context.Context, gameID string) (models.Snapshot, error) {
	s, err := m.load(ctx, gameID)
	if err != nil {
		return models.Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(), nil
}

// Exit clears the caller's slot. When both slots become empty the session
// and its persisted record are deleted; otherwise the vacancy is persisted.
// A mid-round exit drops the session back to Waiting so play resumes only
// once a replacement fills the slot.
func (m *Manager) Exit(ctx context.Context, gameID, playerID string) error {
	s, err := m.load(ctx, gameID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.touchLocked()
	vacated := false
	switch playerID {
	case s.playerX:
		s.playerX = ""
		vacated = true
	case s.playerO:
		s.playerO = ""
		vacated = true
	}
	if vacated {
		if s.status == models.StatusPlaying {
			s.status = models.StatusWaiting
		}
		if !s.hasPlayerLocked(s.current) {
			s.current = ""
		}
	}
	empty := s.playerX == "" && s.playerO == ""
	s.version++
	snap, version := s.snapshotLocked(), s.version
	s.mu.Unlock()

	if !empty {
		return m.persistAndBroadcast(ctx, s, snap, version)
	}

	m.remove(gameID, s)
	if err := m.store.Delete(ctx, gameID); err != nil {
		return fmt.Errorf("failed to delete game %s: %w", gameID, err)
	}
	return nil
}

// Subscribe registers an observer on the session's hub. The returned channel
// yields the current snapshot first, then one snapshot per mutation in
// order, until Unsubscribe or pruning closes it.
func (m *Manager) Subscribe(ctx context.Context, gameID string) (uuid.UUID, <-chan models.Snapshot, error) {
	s, err := m.load(ctx, gameID)
	if err != nil {
		return uuid.Nil, nil, err
	}
	s.mu.Lock()
	s.touchLocked()
	snap, version := s.snapshotLocked(), s.version
	s.mu.Unlock()

	id, ch := s.hub.subscribe(snap, version)
	return id, ch, nil
}

// Unsubscribe removes an observer registered with Subscribe.
func (m *Manager) Unsubscribe(gameID string, subID uuid.UUID) {
	if s := m.lookup(gameID); s != nil {
		s.hub.unsubscribe(subID)
	}
}

// StoreState reports the persistence circuit breaker's state. Open means
// writes are failing fast against a backend that is already down.
func (m *Manager) StoreState() resilience.CircuitState {
	return m.breaker.State()
}

// ActiveSession reports whether the player occupies any persisted session.
func (m *Manager) ActiveSession(ctx context.Context, playerID string) (string, bool, error) {
	gameID, err := m.store.FindByPlayer(ctx, playerID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return gameID, true, nil
}

// EvictIdle drops sessions from memory that have been idle longer than
// maxIdle and have no live subscribers. Evicted sessions were persisted on
// their last mutation and reload on next access. Returns the eviction count.
func (m *Manager) EvictIdle(ctx context.Context, maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	m.mu.Lock()
	var evicted []*session
	for id, s := range m.sessions {
		s.mu.Lock()
		idle := s.lastActive.Before(cutoff)
		s.mu.Unlock()
		if idle && s.hub.count() == 0 {
			delete(m.sessions, id)
			evicted = append(evicted, s)
		}
	}
	metrics.SessionsLive.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	for _, s := range evicted {
		s.hub.close()
		metrics.SessionsEvicted.Inc()
		m.log.Debug("evicted idle session", zap.String("game_id", s.id))
	}
	return len(evicted)
}

// remove unregisters a session and ends its subscriber streams.
func (m *Manager) remove(gameID string, s *session) {
	m.mu.Lock()
	if m.sessions[gameID] == s {
		delete(m.sessions, gameID)
	}
	metrics.SessionsLive.Set(float64(len(m.sessions)))
	m.mu.Unlock()
	s.hub.close()
}

// persistAndBroadcast runs after the session lock is released. The write
// goes through the circuit breaker; on failure the in-memory mutation stands
// and is still broadcast, and the error is surfaced to the caller. The next
// successful save reconciles the stored record.
func (m *Manager) persistAndBroadcast(ctx context.Context, s *session, snap models.Snapshot, version uint64) error {
	saveErr := m.breaker.Execute(ctx, func() error {
		return m.store.Save(ctx, snap)
	})
	if saveErr != nil {
		metrics.PersistFailures.Inc()
		m.log.Error("failed to persist game snapshot",
			zap.String("game_id", snap.GameID),
			zap.Error(saveErr))
	}

	s.hub.publish(snap, version)

	if saveErr != nil {
		return fmt.Errorf("%w: game %s: %v", ErrPersist, snap.GameID, saveErr)
	}
	return nil
}

// archiveRound records a finished round. Advisory: failures are logged,
// never propagated.
func (m *Manager) archiveRound(ctx context.Context, snap models.Snapshot) {
	if m.archive == nil {
		return
	}
	ref, err := m.archive.Archive(ctx, snap)
	if err != nil {
		m.log.Warn("failed to archive round",
			zap.String("game_id", snap.GameID),
			zap.Error(err))
		return
	}
	metrics.RoundsArchived.Inc()
	m.log.Debug("archived round",
		zap.String("game_id", snap.GameID),
		zap.String("ref", ref))
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, rules.ErrCellOccupied):
		return "cell_occupied"
	case errors.Is(err, rules.ErrOutOfRange):
		return "out_of_range"
	case errors.Is(err, rules.ErrWrongBoard):
		return "wrong_board"
	default:
		return "other"
	}
}
