package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	config "gridlock/configs"
	"gridlock/pkg/api"
	"gridlock/pkg/auth"
	"gridlock/pkg/coordination"
	"gridlock/pkg/coordination/etcd"
	"gridlock/pkg/election"
	"gridlock/pkg/game"
	"gridlock/pkg/logger"
	"gridlock/pkg/observability"
	"gridlock/pkg/rules"
	"gridlock/pkg/storage"
	"gridlock/pkg/storage/postgres"
	"gridlock/pkg/storage/redis"
)

func main() {
	cfg := config.LoadConfig()
	log.Println("[Gridlock] Starting up...")

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logCfg := logger.DefaultConfig("gridlock")
	logCfg.Level = cfg.LogLevel
	zlog, err := logger.New(logCfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	// Initialize Tracing
	if cfg.TracingEnabled {
		traceCfg := observability.DefaultConfig("gridlock")
		traceCfg.Enabled = true
		traceCfg.Endpoint = cfg.OTLPEndpoint
		provider, err := observability.Init(ctx, traceCfg)
		if err != nil {
			log.Fatalf("Failed to initialize tracing: %v", err)
		}
		defer provider.Shutdown(context.Background())
		log.Println("[Gridlock] Tracing enabled.")
	}

	// Initialize Game Store
	store, err := buildStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()
	log.Printf("[Gridlock] %s store connected.", cfg.StoreBackend)

	// Initialize Round Archive
	archive, err := buildArchive(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize round archive: %v", err)
	}

	// Initialize Rules Engine
	engine, err := rules.ForVariant(rules.Variant(cfg.GameVariant))
	if err != nil {
		log.Fatalf("Invalid game variant: %v", err)
	}
	log.Printf("[Gridlock] Running %s variant.", engine.Variant())

	// Initialize Etcd Coordinator
	etcdCoord, err := etcd.NewEtcdCoordinator(cfg.EtcdEndpoints)
	if err != nil {
		log.Fatalf("Failed to connect to etcd: %v", err)
	}
	defer etcdCoord.Close()
	log.Println("[Gridlock] Etcd connected.")

	// Create Session Manager
	var opts []game.Option
	if archive != nil {
		opts = append(opts, game.WithArchive(archive))
	}
	manager := game.NewManager(engine, store, zlog, opts...)

	// Start Leader Election
	electCfg := election.DefaultConfig(cfg.LeaderKey, cfg.AdvertiseAddr)
	electCfg.TTL = cfg.LeaderElectionTTL
	elector := election.New(etcdCoord, electCfg, zlog)
	go elector.Run(ctx)
	log.Printf("[Gridlock] Campaigning for leadership as %s...", cfg.AdvertiseAddr)

	// Register this replica and keep the lease refreshed
	go heartbeat(ctx, etcdCoord, elector, cfg, zlog)

	// Start Session Janitor
	janitor, err := game.NewJanitor(manager, cfg.EvictionSchedule, cfg.SessionIdleTTL, zlog)
	if err != nil {
		log.Fatalf("Invalid eviction schedule: %v", err)
	}
	go janitor.Run(ctx)

	// Optional player auth
	var jwtService *auth.JWTService
	if cfg.AuthEnabled {
		jwtCfg := auth.DefaultJWTConfig()
		jwtCfg.SecretKey = cfg.JWTSecret
		jwtService, err = auth.NewJWTService(jwtCfg)
		if err != nil {
			log.Fatalf("Failed to initialize auth: %v", err)
		}
		log.Println("[Gridlock] Player auth enabled.")
	}

	// Create API Server
	server := api.NewServer(api.Config{
		Port:           cfg.Port,
		Manager:        manager,
		Elector:        elector,
		Coordinator:    etcdCoord,
		Logger:         zlog,
		JWTService:     jwtService,
		TracingEnabled: cfg.TracingEnabled,
	})

	// Run API server in goroutine
	go func() {
		if err := server.Start(); err != nil {
			log.Printf("[Gridlock] Server error: %v", err)
		}
	}()

	log.Printf("[Gridlock] Server started on port %s", cfg.Port)

	// Wait for shutdown signal
	sig := <-sigChan
	log.Printf("[Gridlock] Received signal %v, initiating graceful shutdown...", sig)

	// Stop election and background loops so another replica can take over
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Gridlock] Shutdown error: %v", err)
	}

	log.Println("[Gridlock] Shutdown complete.")
}

func buildStore(cfg *config.Config) (storage.GameStore, error) {
	switch cfg.StoreBackend {
	case "redis":
		storeCfg := redis.DefaultConfig(fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort))
		storeCfg.Password = cfg.RedisPassword
		return redis.NewGameStoreWithConfig(storeCfg)
	case "", "postgres":
		connStr := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
			cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort)
		return postgres.NewGameStore(connStr)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func buildArchive(cfg *config.Config) (storage.ArchiveStore, error) {
	if !cfg.ArchiveEnabled {
		return nil, nil
	}
	if cfg.ArchiveBucket != "" {
		return storage.NewS3ArchiveStore(storage.S3ArchiveConfig{
			Bucket:          cfg.ArchiveBucket,
			Prefix:          cfg.ArchivePrefix,
			Region:          cfg.ArchiveRegion,
			Endpoint:        cfg.ArchiveEndpoint,
			AccessKeyID:     cfg.ArchiveAccessKey,
			SecretAccessKey: cfg.ArchiveSecretKey,
		})
	}
	if cfg.ArchiveDir != "" {
		return storage.NewLocalArchiveStore(cfg.ArchiveDir)
	}
	return nil, fmt.Errorf("archive enabled but neither ARCHIVE_BUCKET nor ARCHIVE_DIR is set")
}

// heartbeat republishes this replica's presence under a leased key so the
// cluster endpoints can list live replicas. The payload carries the
// advertise address plus coarse host utilization.
func heartbeat(ctx context.Context, coord coordination.Coordinator, elector *election.Elector, cfg *config.Config, zlog *zap.Logger) {
	ttl := cfg.LeaderElectionTTL
	if ttl < 5 {
		ttl = 5
	}
	interval := time.Duration(ttl) * time.Second / 2

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	publish := func() {
		payload := replicaPayload(cfg, elector)
		regCtx, regCancel := context.WithTimeout(ctx, 3*time.Second)
		defer regCancel()
		if err := coord.RegisterReplica(regCtx, cfg.ReplicaID, payload, ttl); err != nil {
			zlog.Warn("failed to register replica", zap.Error(err))
		}
	}
	publish()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			publish()
		}
	}
}

func replicaPayload(cfg *config.Config, elector *election.Elector) string {
	info := map[string]interface{}{
		"addr":    cfg.AdvertiseAddr,
		"variant": cfg.GameVariant,
		"leader":  elector.IsLeader(),
	}
	if v, err := mem.VirtualMemory(); err == nil {
		info["mem_used_percent"] = v.UsedPercent
	}
	if pcts, err := cpu.Percent(0, false); err == nil && len(pcts) > 0 {
		info["cpu_percent"] = pcts[0]
	}
	b, _ := json.Marshal(info)
	return string(b)
}
