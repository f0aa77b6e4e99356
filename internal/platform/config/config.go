// Package config loads process configuration from the environment so main
// stays lean. Delegation tunables have their own runtime-mutable config in
// internal/delegation/config; the values here only seed the defaults.
package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process-level configuration.
type Server struct {
	Addr       string
	LogLevel   string
	AdminToken string

	PostgresURL  string
	Redis        RedisConfig
	KafkaBrokers string // comma-separated; empty disables the outbox relay

	// Grant token signing settings.
	GrantTokenKey    string
	GrantTokenIssuer string
	GrantTokenTTL    time.Duration

	// Seed values for the delegation failure tracker tunables.
	FailureThreshold int
	FailureWindow    time.Duration
}

// RedisConfig holds connection settings for the Redis-backed failure store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	return Server{
		Addr:         envOr("AUTHRELAY_ADDR", ":8080"),
		LogLevel:     envOr("AUTHRELAY_LOG_LEVEL", "info"),
		AdminToken:   os.Getenv("AUTHRELAY_ADMIN_TOKEN"),
		PostgresURL:  os.Getenv("AUTHRELAY_POSTGRES_URL"),
		KafkaBrokers: os.Getenv("AUTHRELAY_KAFKA_BROKERS"),
		Redis: RedisConfig{
			URL:          os.Getenv("AUTHRELAY_REDIS_URL"),
			PoolSize:     envIntOr("AUTHRELAY_REDIS_POOL_SIZE", 10),
			MinIdleConns: envIntOr("AUTHRELAY_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDurationOr("AUTHRELAY_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDurationOr("AUTHRELAY_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDurationOr("AUTHRELAY_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		GrantTokenKey:    envOr("AUTHRELAY_GRANT_TOKEN_KEY", "dev-only-signing-key"),
		GrantTokenIssuer: envOr("AUTHRELAY_GRANT_TOKEN_ISSUER", "authrelay"),
		GrantTokenTTL:    envDurationOr("AUTHRELAY_GRANT_TOKEN_TTL", 5*time.Minute),
		FailureThreshold: envIntOr("AUTHRELAY_FAILURE_THRESHOLD", 10),
		FailureWindow:    envDurationOr("AUTHRELAY_FAILURE_WINDOW", 5*time.Minute),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
