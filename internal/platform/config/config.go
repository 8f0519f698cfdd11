// Package config builds process configuration from environment variables so
// main stays lean. Every knob has a development default; production
// deployments override through the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"civitas/internal/policy"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	JWTSigningKey   string
	ShutdownTimeout time.Duration

	// Service accounts. The owner and controller are ordinary account IDs;
	// their API requests authenticate with bcrypt-hashed keys.
	OwnerAccount         string
	OwnerAPIKeyHash      string
	ControllerAccount    string
	ControllerAPIKeyHash string

	// CustodyAccount holds locked stake on the token ledger. Empty selects a
	// process-local random account, which only makes sense with the in-memory
	// token service.
	CustodyAccount string

	// Ledger policy overrides.
	StakeAsset           string
	EligibilityThreshold int64
	RevocationMinimum    int64
	SweepInterval        time.Duration

	// External collaborators. Empty endpoints select in-process defaults.
	RendererEndpoint   string
	StakeTokenEndpoint string

	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
}

// PostgresConfig selects the persistent ledger store. An empty URL selects
// the in-memory stores.
type PostgresConfig struct {
	URL string
}

// RedisConfig configures the eligibility snapshot cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the audit event pipeline. No brokers means audit
// events stay in the local store only.
type KafkaConfig struct {
	Brokers       []string
	ConsumerGroup string
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	return Server{
		Addr:            envOr("CIVITAS_ADDR", ":8080"),
		JWTSigningKey:   envOr("CIVITAS_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		ShutdownTimeout: envDuration("CIVITAS_SHUTDOWN_TIMEOUT", 10*time.Second),

		OwnerAccount:         os.Getenv("CIVITAS_OWNER_ACCOUNT"),
		OwnerAPIKeyHash:      os.Getenv("CIVITAS_OWNER_API_KEY_HASH"),
		ControllerAccount:    os.Getenv("CIVITAS_CONTROLLER_ACCOUNT"),
		ControllerAPIKeyHash: os.Getenv("CIVITAS_CONTROLLER_API_KEY_HASH"),
		CustodyAccount:       os.Getenv("CIVITAS_CUSTODY_ACCOUNT"),

		StakeAsset:           envOr("CIVITAS_STAKE_ASSET", "CIV"),
		EligibilityThreshold: envInt64("CIVITAS_ELIGIBILITY_THRESHOLD", policy.DefaultEligibilityThreshold),
		RevocationMinimum:    envInt64("CIVITAS_REVOCATION_MINIMUM", policy.DefaultRevocationMinimum),
		SweepInterval:        envDuration("CIVITAS_SWEEP_INTERVAL", time.Minute),

		RendererEndpoint:   os.Getenv("CIVITAS_RENDERER_ENDPOINT"),
		StakeTokenEndpoint: os.Getenv("CIVITAS_STAKE_TOKEN_ENDPOINT"),

		Postgres: PostgresConfig{
			URL: os.Getenv("CIVITAS_POSTGRES_URL"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("CIVITAS_REDIS_URL"),
			PoolSize:     int(envInt64("CIVITAS_REDIS_POOL_SIZE", 10)),
			MinIdleConns: int(envInt64("CIVITAS_REDIS_MIN_IDLE_CONNS", 2)),
			DialTimeout:  envDuration("CIVITAS_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("CIVITAS_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("CIVITAS_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:       envList("CIVITAS_KAFKA_BROKERS"),
			ConsumerGroup: envOr("CIVITAS_KAFKA_CONSUMER_GROUP", "civitas-audit"),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
