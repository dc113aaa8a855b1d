// Package config centralizes environment-driven configuration so main stays
// lean. Every knob has a development default; production overrides via env.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full application configuration.
type Config struct {
	Server   Server
	Database Database
	Redis    Redis
	Kafka    Kafka
	Auth     Auth
	Distress Distress
	SMTP     SMTP

	// SupportUserID is the service's own support account. Conversations with
	// it never wait on consent.
	SupportUserID string
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr string
}

// Database holds the Postgres connection settings.
type Database struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

// Redis holds the cache connection settings. An empty URL disables Redis and
// the components using it fall back to their store-backed paths.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka holds the alert queue settings.
type Kafka struct {
	Brokers       []string
	AlertTopic    string
	DLQTopic      string
	ConsumerGroup string
}

// Auth holds JWT validation settings.
type Auth struct {
	SigningKey string
	Issuer     string
	Audience   string
}

// Distress tunes the escalation pipeline.
type Distress struct {
	Threshold  int
	RateWindow time.Duration
	From       string
	Recipients []string
}

// SMTP holds the outbound mail relay settings.
type SMTP struct {
	Addr     string
	Username string
	Password string
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr: envOr("SHAREPAIRS_ADDR", ":8080"),
		},
		Database: Database{
			URL:          envOr("DATABASE_URL", "postgres://localhost:5432/sharepairs?sslmode=disable"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 20),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Redis: Redis{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers:       splitList(envOr("KAFKA_BROKERS", "localhost:9092")),
			AlertTopic:    envOr("KAFKA_ALERT_TOPIC", "distress.alerts"),
			DLQTopic:      envOr("KAFKA_DLQ_TOPIC", "distress.alerts.dlq"),
			ConsumerGroup: envOr("KAFKA_CONSUMER_GROUP", "sharepairs-alert-worker"),
		},
		Auth: Auth{
			// Override in production.
			SigningKey: envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			Issuer:     envOr("JWT_ISSUER", "sharepairs"),
			Audience:   envOr("JWT_AUDIENCE", "sharepairs-api"),
		},
		Distress: Distress{
			Threshold:  envInt("DISTRESS_THRESHOLD", 70),
			RateWindow: envDuration("DISTRESS_RATE_WINDOW", 15*time.Minute),
			From:       envOr("DISTRESS_ALERT_FROM", "alerts@sharepairs.local"),
			Recipients: splitList(envOr("DISTRESS_ALERT_RECIPIENTS", "support@sharepairs.local")),
		},
		SMTP: SMTP{
			Addr:     envOr("SMTP_ADDR", "localhost:1025"),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
		},
		SupportUserID: envOr("SUPPORT_USER_ID", "support"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
