package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/timewave-computer/causality-sub004/internal/domain"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	LocalDomain   string
	JWTSigningKey string

	// LockTTL bounds how long an in-flight operation may hold its input
	// registers before the watchdog reclaims them.
	LockTTL time.Duration
	// CollaboratorTimeout bounds each blocking authorization/proof call.
	CollaboratorTimeout time.Duration
	// WatchdogInterval is how often expired locks are scanned for.
	WatchdogInterval time.Duration

	Archival domain.ArchivalPolicy

	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
}

// PostgresConfig holds the connection settings shared by the register store
// and the causal log.
type PostgresConfig struct {
	DSN string
}

// RedisConfig holds archive storage connection settings.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds causal log mirroring settings. Empty brokers disable the
// mirror.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("LEDGER_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	localDomain := os.Getenv("LEDGER_LOCAL_DOMAIN")
	if localDomain == "" {
		localDomain = "local"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		brokers = strings.Split(raw, ",")
	}
	topic := os.Getenv("KAFKA_CAUSAL_TOPIC")
	if topic == "" {
		topic = "causality.causal-log"
	}

	return Server{
		Addr:                addr,
		LocalDomain:         localDomain,
		JWTSigningKey:       jwtSigningKey,
		LockTTL:             envDuration("LEDGER_LOCK_TTL", 30*time.Second),
		CollaboratorTimeout: envDuration("LEDGER_COLLABORATOR_TIMEOUT", 5*time.Second),
		WatchdogInterval:    envDuration("LEDGER_WATCHDOG_INTERVAL", 5*time.Second),
		Archival: domain.ArchivalPolicy{
			KeepEpochs:      envUint("LEDGER_KEEP_EPOCHS", 2),
			PruneAfter:      envUint("LEDGER_PRUNE_AFTER", 5),
			SummaryStrategy: summaryStrategy(os.Getenv("LEDGER_SUMMARY_STRATEGY")),
			ArchiveLocation: os.Getenv("LEDGER_ARCHIVE_LOCATION"),
			BatchSize:       int(envUint("LEDGER_GC_BATCH_SIZE", 128)),
		},
		Postgres: PostgresConfig{DSN: os.Getenv("POSTGRES_DSN")},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     int(envUint("REDIS_POOL_SIZE", 10)),
			MinIdleConns: int(envUint("REDIS_MIN_IDLE_CONNS", 2)),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{Brokers: brokers, Topic: topic},
	}
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func envUint(key string, fallback uint64) uint64 {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.ParseUint(raw, 10, 64); err == nil {
			return v
		}
	}
	return fallback
}

func summaryStrategy(raw string) domain.SummaryStrategy {
	// SummarizeCustom needs a grouping function wired in code, so it cannot
	// be selected from the environment.
	switch domain.SummaryStrategy(raw) {
	case domain.SummarizeByOwner, domain.SummarizeByKind:
		return domain.SummaryStrategy(raw)
	default:
		return domain.SummarizeByResource
	}
}
