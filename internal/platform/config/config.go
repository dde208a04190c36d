// Package config loads service configuration from the environment, optionally
// seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	pkgstrings "piiguard/pkg/platform/strings"
)

const (
	defaultAddr           = ":8080"
	defaultSweepInterval  = time.Hour
	defaultSessionOnlyTTL = 30 * time.Minute
	defaultKDFIterations  = 600_000
	minKDFIterations      = 100_000
	maxKDFIterations      = 6_000_000
	defaultMaxFailed      = 5
	defaultMaxDocBytes    = 1 << 20
	defaultAuditTopic     = "piiguard.audit"
	defaultPolicyVersion  = "2024-01"
)

// Config is the full service configuration.
type Config struct {
	Environment string
	Server      Server
	Log         LogConfig
	Vault       VaultConfig
	Detector    DetectorConfig
	Redis       RedisConfig
	Database    DatabaseConfig
	Kafka       KafkaConfig
	Consent     ConsentConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// VaultConfig controls the secure store and its sweeper.
type VaultConfig struct {
	SweepInterval       time.Duration
	SessionOnlyTTL      time.Duration
	KDFIterations       int
	MaxFailedRetrievals int
	ContextHashKey      string
}

type DetectorConfig struct {
	MaxDocumentBytes int
}

// RedisConfig selects the Redis-backed secure store. An empty URL keeps
// entries in memory.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig selects PostgreSQL for consent and audit. An empty URL keeps
// them in memory.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// KafkaConfig enables the audit event sink when brokers are set.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

type ConsentConfig struct {
	PolicyVersion string
}

// Load reads ENV_FILE (or ./.env when present) into the environment without
// overriding variables that are already set, then builds the config.
func Load() (Config, error) {
	if path := os.Getenv("ENV_FILE"); path != "" {
		if err := godotenv.Load(path); err != nil {
			return Config{}, fmt.Errorf("load env file %s: %w", path, err)
		}
	} else {
		_ = godotenv.Load()
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	p := &parser{}
	cfg := Config{
		Environment: p.str("PIIGUARD_ENV", "development"),
		Server: Server{
			Addr:            p.str("PIIGUARD_ADDR", defaultAddr),
			ShutdownTimeout: p.duration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Log: LogConfig{
			Level:  p.str("LOG_LEVEL", "info"),
			Format: p.str("LOG_FORMAT", ""),
		},
		Vault: VaultConfig{
			SweepInterval:       p.duration("SWEEP_INTERVAL", defaultSweepInterval),
			SessionOnlyTTL:      p.duration("SESSION_ONLY_TTL", defaultSessionOnlyTTL),
			KDFIterations:       p.int("KDF_ITERATIONS", defaultKDFIterations),
			MaxFailedRetrievals: p.int("MAX_FAILED_RETRIEVALS", defaultMaxFailed),
			ContextHashKey:      p.str("CONTEXT_HASH_KEY", ""),
		},
		Detector: DetectorConfig{
			MaxDocumentBytes: p.int("MAX_DOCUMENT_BYTES", defaultMaxDocBytes),
		},
		Redis: RedisConfig{
			URL:          p.str("REDIS_URL", ""),
			PoolSize:     p.int("REDIS_POOL_SIZE", 10),
			MinIdleConns: p.int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  p.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  p.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: p.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Database: DatabaseConfig{
			URL:             p.str("DATABASE_URL", ""),
			MaxOpenConns:    p.int("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    p.int("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: p.duration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers:    pkgstrings.SplitList(os.Getenv("KAFKA_BROKERS")),
			AuditTopic: p.str("AUDIT_TOPIC", defaultAuditTopic),
		},
		Consent: ConsentConfig{
			PolicyVersion: p.str("POLICY_VERSION", defaultPolicyVersion),
		},
	}
	if p.err != nil {
		return Config{}, p.err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// IsProduction reports whether the service runs in production.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c Config) validate() error {
	switch {
	case c.Vault.KDFIterations < minKDFIterations:
		return fmt.Errorf("KDF_ITERATIONS must be at least %d", minKDFIterations)
	case c.Vault.KDFIterations > maxKDFIterations:
		return fmt.Errorf("KDF_ITERATIONS must be at most %d", maxKDFIterations)
	case c.Vault.SweepInterval <= 0:
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	case c.Vault.SessionOnlyTTL <= 0 || c.Vault.SessionOnlyTTL > 24*time.Hour:
		return fmt.Errorf("SESSION_ONLY_TTL must be between 0 and 24h")
	case c.Vault.MaxFailedRetrievals < 0:
		return fmt.Errorf("MAX_FAILED_RETRIEVALS must not be negative")
	case c.Detector.MaxDocumentBytes <= 0:
		return fmt.Errorf("MAX_DOCUMENT_BYTES must be positive")
	case c.IsProduction() && c.Vault.ContextHashKey == "":
		return fmt.Errorf("CONTEXT_HASH_KEY is required in production")
	}
	return nil
}

// parser reads typed values and keeps the first error.
type parser struct {
	err error
}

func (p *parser) str(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (p *parser) int(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v
}
