package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port          string
	AdvertiseAddr string
	ReplicaID     string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	RedisHost     string
	RedisPort     string
	RedisPassword string

	EtcdEndpoints     []string
	LeaderKey         string
	LeaderElectionTTL int

	StoreBackend string // postgres or redis
	GameVariant  string // classic or ultimate

	EvictionSchedule string
	SessionIdleTTL   time.Duration

	AuthEnabled bool
	JWTSecret   string

	ArchiveEnabled   bool
	ArchiveBucket    string
	ArchivePrefix    string
	ArchiveEndpoint  string
	ArchiveRegion    string
	ArchiveAccessKey string
	ArchiveSecretKey string
	ArchiveDir       string

	TracingEnabled bool
	OTLPEndpoint   string
	LogLevel       string
}

func LoadConfig() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		AdvertiseAddr: getEnv("ADVERTISE_ADDR", "localhost:8080"),
		ReplicaID:     getEnv("REPLICA_ID", hostname()),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "gridlock"),
		DBPassword: getEnv("DB_PASSWORD", "password"),
		DBName:     getEnv("DB_NAME", "gridlock"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		EtcdEndpoints:     splitList(getEnv("ETCD_ENDPOINTS", "localhost:2379")),
		LeaderKey:         getEnv("LEADER_KEY", "gridlock-leader"),
		LeaderElectionTTL: getEnvAsInt("LEADER_ELECTION_TTL", 10),

		StoreBackend: getEnv("STORE_BACKEND", "postgres"),
		GameVariant:  getEnv("GAME_VARIANT", "classic"),

		EvictionSchedule: getEnv("EVICTION_SCHEDULE", "*/5 * * * *"),
		SessionIdleTTL:   getEnvAsDuration("SESSION_IDLE_TTL", 30*time.Minute),

		AuthEnabled: getEnvAsBool("AUTH_ENABLED", false),
		JWTSecret:   getEnv("JWT_SECRET", ""),

		ArchiveEnabled:   getEnvAsBool("ARCHIVE_ENABLED", false),
		ArchiveBucket:    getEnv("ARCHIVE_BUCKET", ""),
		ArchivePrefix:    getEnv("ARCHIVE_PREFIX", "rounds/"),
		ArchiveEndpoint:  getEnv("ARCHIVE_ENDPOINT", ""),
		ArchiveRegion:    getEnv("ARCHIVE_REGION", "us-east-1"),
		ArchiveAccessKey: getEnv("ARCHIVE_ACCESS_KEY", ""),
		ArchiveSecretKey: getEnv("ARCHIVE_SECRET_KEY", ""),
		ArchiveDir:       getEnv("ARCHIVE_DIR", ""),

		TracingEnabled: getEnvAsBool("TRACING_ENABLED", false),
		OTLPEndpoint:   getEnv("OTLP_ENDPOINT", "localhost:4318"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return fallback
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func hostname() string {
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "gridlock"
}
