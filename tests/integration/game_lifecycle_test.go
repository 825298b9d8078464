package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"gridlock/pkg/api"
	"gridlock/pkg/coordination/etcd"
	"gridlock/pkg/election"
	"gridlock/pkg/game"
	"gridlock/pkg/models"
	"gridlock/pkg/rules"
	"gridlock/pkg/storage/postgres"
	"gridlock/pkg/storage/redis"
)

// IntegrationTestSuite exercises the full stack against real backends. Each
// dependency that is unreachable skips the tests that need it.
type IntegrationTestSuite struct {
	suite.Suite
	store      *postgres.GameStore
	manager    *game.Manager
	server     *api.Server
	httpServer *httptest.Server
}

// SetupSuite runs once before all tests
func (s *IntegrationTestSuite) SetupSuite() {
	if os.Getenv("SKIP_INTEGRATION_TESTS") == "true" {
		s.T().Skip("Skipping integration tests (SKIP_INTEGRATION_TESTS=true)")
	}

	gin.SetMode(gin.TestMode)

	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		getEnv("TEST_DB_HOST", "localhost"),
		getEnv("TEST_DB_PORT", "5432"),
		getEnv("TEST_DB_USER", "gridlock"),
		getEnv("TEST_DB_PASS", "password"),
		getEnv("TEST_DB_NAME", "gridlock_test"),
	)

	store, err := postgres.NewGameStore(connStr)
	if err != nil {
		s.T().Skipf("Skipping integration tests: %v", err)
	}
	s.store = store

	engine, err := rules.ForVariant(rules.VariantClassic)
	require.NoError(s.T(), err)
	s.manager = game.NewManager(engine, store, zap.NewNop())

	s.server = api.NewServer(api.Config{
		Port:    "0",
		Manager: s.manager,
		Logger:  zap.NewNop(),
	})
	s.httpServer = httptest.NewServer(s.server.Handler())
}

// TearDownSuite runs once after all tests
func (s *IntegrationTestSuite) TearDownSuite() {
	if s.httpServer != nil {
		s.httpServer.Close()
	}
	if s.store != nil {
		s.store.Close()
	}
}

func (s *IntegrationTestSuite) postJSON(path string, body interface{}) (*http.Response, []byte) {
	payload, err := json.Marshal(body)
	require.NoError(s.T(), err)
	resp, err := http.Post(s.httpServer.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(s.T(), err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(s.T(), err)
	return resp, buf.Bytes()
}

// TestGameLifecycle drives create -> join -> play -> win -> reset -> exit
// over HTTP with state persisted in Postgres.
func (s *IntegrationTestSuite) TestGameLifecycle() {
	gameID := "it-" + uuid.New().String()

	resp, _ := s.postJSON("/api/v1/games", map[string]string{
		"game_id": gameID, "player_id": "alice",
	})
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)

	resp, body := s.postJSON("/api/v1/games", map[string]string{
		"game_id": gameID, "player_id": "bob",
	})
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	var snap models.Snapshot
	require.NoError(s.T(), json.Unmarshal(body, &snap))
	assert.Equal(s.T(), models.StatusPlaying, snap.Status)

	// Alice takes the top row.
	moves := []map[string]interface{}{
		{"player_id": "alice", "x": 0, "y": 0},
		{"player_id": "bob", "x": 1, "y": 0},
		{"player_id": "alice", "x": 0, "y": 1},
		{"player_id": "bob", "x": 1, "y": 1},
		{"player_id": "alice", "x": 0, "y": 2},
	}
	for _, mv := range moves {
		resp, body = s.postJSON("/api/v1/games/"+gameID+"/moves", mv)
		require.Equal(s.T(), http.StatusOK, resp.StatusCode, string(body))
	}
	require.NoError(s.T(), json.Unmarshal(body, &snap))
	assert.Equal(s.T(), models.StatusWon, snap.Status)
	assert.Equal(s.T(), "alice", snap.WinnerID)
	assert.Equal(s.T(), 1, snap.PlayerXScore)

	// The terminal state is durable.
	stored, err := s.store.Load(context.Background(), gameID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), models.StatusWon, stored.Status)

	resp, body = s.postJSON("/api/v1/games/"+gameID+"/reset", nil)
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	require.NoError(s.T(), json.Unmarshal(body, &snap))
	assert.Equal(s.T(), ".........", snap.Board)
	assert.Equal(s.T(), 1, snap.PlayerXScore, "score survives reset")

	for _, player := range []string{"bob", "alice"} {
		resp, _ = s.postJSON("/api/v1/games/"+gameID+"/exit", map[string]string{
			"player_id": player,
		})
		require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	}

	// Exit of the last player deletes the persisted record.
	_, err = s.store.Load(context.Background(), gameID)
	assert.Error(s.T(), err)
}

// TestSessionReconnect verifies the player-to-game index.
func (s *IntegrationTestSuite) TestSessionReconnect() {
	gameID := "it-" + uuid.New().String()
	playerID := "player-" + uuid.New().String()

	resp, _ := s.postJSON("/api/v1/games", map[string]string{
		"game_id": gameID, "player_id": playerID,
	})
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)

	httpResp, err := http.Get(s.httpServer.URL + "/api/v1/players/" + playerID + "/session")
	require.NoError(s.T(), err)
	defer httpResp.Body.Close()
	require.Equal(s.T(), http.StatusOK, httpResp.StatusCode)

	var lookup struct {
		Active bool   `json:"active"`
		GameID string `json:"game_id"`
	}
	require.NoError(s.T(), json.NewDecoder(httpResp.Body).Decode(&lookup))
	assert.True(s.T(), lookup.Active)
	assert.Equal(s.T(), gameID, lookup.GameID)

	s.postJSON("/api/v1/games/"+gameID+"/exit", map[string]string{"player_id": playerID})
}

// TestRedisStore runs the store contract against Redis when available.
func (s *IntegrationTestSuite) TestRedisStore() {
	addr := fmt.Sprintf("%s:%s",
		getEnv("TEST_REDIS_HOST", "localhost"),
		getEnv("TEST_REDIS_PORT", "6379"),
	)
	store, err := redis.NewGameStore(addr)
	if err != nil {
		s.T().Skipf("Redis unavailable: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	gameID := "it-" + uuid.New().String()
	snap := models.Snapshot{
		GameID:          gameID,
		PlayerX:         "alice",
		PlayerO:         "bob",
		Board:           "X........",
		ActiveBoard:     rules.AnyBoard,
		Status:          models.StatusPlaying,
		CurrentPlayerID: "bob",
	}

	require.NoError(s.T(), store.Save(ctx, snap))

	got, err := store.Load(ctx, gameID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), snap, got)

	foundID, err := store.FindByPlayer(ctx, "alice")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), gameID, foundID)

	require.NoError(s.T(), store.Delete(ctx, gameID))
	_, err = store.Load(ctx, gameID)
	assert.Error(s.T(), err)
}

// TestLeaderElection campaigns against a real etcd when available.
func (s *IntegrationTestSuite) TestLeaderElection() {
	endpoints := []string{getEnv("TEST_ETCD_ENDPOINTS", "localhost:2379")}
	coord, err := etcd.NewEtcdCoordinator(endpoints)
	if err != nil {
		s.T().Skipf("etcd unavailable: %v", err)
	}
	defer coord.Close()

	cfg := election.DefaultConfig("it-leader-"+uuid.New().String(), "replica-it:0")
	cfg.TTL = 5
	elector := election.New(coord, cfg, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go elector.Run(ctx)

	select {
	case gained := <-elector.Notify():
		assert.True(s.T(), gained)
	case <-time.After(10 * time.Second):
		s.T().Fatal("leadership not acquired in time")
	}

	addr, err := elector.LeaderAddress(ctx)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "replica-it:0", addr)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func TestIntegrationSuite(t *testing.T) {
	suite.Run(t, new(IntegrationTestSuite))
}
