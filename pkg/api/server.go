package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"gridlock/pkg/api/middleware"
	"gridlock/pkg/auth"
	"gridlock/pkg/coordination"
	"gridlock/pkg/election"
	"gridlock/pkg/game"
	"gridlock/pkg/resilience"
)

// Server encapsulates the HTTP API server and its dependencies.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	log        *zap.Logger

	manager     *game.Manager
	elector     *election.Elector
	coordinator coordination.Coordinator
}

// Config holds API server configuration.
type Config struct {
	Port        string
	Manager     *game.Manager
	Elector     *election.Elector
	Coordinator coordination.Coordinator
	Logger      *zap.Logger

	// JWTService enables bearer-token auth on game routes when non-nil.
	JWTService *auth.JWTService
	// TracingEnabled mounts the tracing middleware.
	TracingEnabled bool
}

// NewServer creates an API server with all dependencies.
func NewServer(cfg Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Middleware stack (order matters).
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.MetricsMiddleware())
	if cfg.TracingEnabled {
		router.Use(middleware.TracingMiddleware("gridlock"))
	}
	router.Use(requestLogger(cfg.Logger))
	router.Use(middleware.RateLimitMiddleware())
	router.Use(middleware.BodySizeLimitMiddleware(64 << 10)) // 64KB: payloads are tiny

	s := &Server{
		router:      router,
		log:         cfg.Logger,
		manager:     cfg.Manager,
		elector:     cfg.Elector,
		coordinator: cfg.Coordinator,
	}

	s.registerRoutes(cfg.JWTService)

	s.httpServer = &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // streams stay open indefinitely
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins listening for HTTP requests. A failure to bind is fatal for
// the process.
func (s *Server) Start() error {
	s.log.Info("starting http server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// registerRoutes sets up all API endpoints. Mutating game routes go through
// the leader gate; reads and subscriptions are served by any replica from
// local or persisted state.
func (s *Server) registerRoutes(jwtService *auth.JWTService) {
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/api/v1")

	games := v1.Group("/games")
	if jwtService != nil {
		games.Use(middleware.AuthMiddleware(jwtService))
	}
	{
		games.POST("", s.requireLeader, s.createGame)
		games.POST("/:id/moves", s.requireLeader, s.makeMove)
		games.POST("/:id/reset", s.requireLeader, s.resetRound)
		games.POST("/:id/exit", s.requireLeader, s.exitGame)
		games.GET("/:id", s.getState)
		games.GET("/:id/events", s.streamEvents)
	}

	v1.GET("/players/:id/session", s.checkActiveSession)

	cluster := v1.Group("/cluster")
	{
		cluster.GET("/replicas", s.listReplicas)
		cluster.GET("/leader", s.getLeader)
	}
}

// requireLeader rejects mutating operations unless the local elector holds
// the leader key. In-flight requests past this check are allowed to finish;
// new ones are rejected the moment leadership is lost.
func (s *Server) requireLeader(c *gin.Context) {
	if s.elector == nil || s.elector.IsLeader() {
		c.Next()
		return
	}

	leader := ""
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if addr, err := s.elector.LeaderAddress(ctx); err == nil {
		leader = addr
	}

	c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
		"error":  "not leader",
		"leader": leader,
	})
}

// requestLogger logs each HTTP request through zap.
func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetString(middleware.ContextRequestIDKey)),
		)
	}
}

// healthCheck returns server health, leadership, and host resource info.
// The store probe reflects the persistence circuit breaker: an open circuit
// means recent writes failed and new ones are being rejected fast.
func (s *Server) healthCheck(c *gin.Context) {
	storeState := s.manager.StoreState()
	deps := map[string]bool{
		"store":       storeState != resilience.CircuitOpen,
		"coordinator": s.coordinator != nil,
	}

	healthy := true
	for _, ok := range deps {
		if !ok {
			healthy = false
			break
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	body := gin.H{
		"status":       status,
		"leader":       s.elector != nil && s.elector.IsLeader(),
		"dependencies": deps,
		"store_state":  storeState.String(),
		"timestamp":    time.Now().UTC(),
	}
	if v, err := mem.VirtualMemory(); err == nil {
		body["memory"] = gin.H{
			"total_mb":     v.Total / 1024 / 1024,
			"used_percent": v.UsedPercent,
		}
	}

	c.JSON(httpStatus, body)
}
