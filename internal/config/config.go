// Package config provides configuration structures and validation for the household ledger services.
// It covers the HTTP backend, the document stores (remote and local fallback), the transaction log,
// messaging, the reaper schedule and the membership defaults shared by every binary.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Store modes accepted by StoreConfig.Mode.
const (
	StoreModeRemote = "remote"
	StoreModeLocal  = "local"
)

// EnvProduction is the APP_ENV value of a production deployment.
const EnvProduction = "production"

// Config holds the complete application configuration with settings for all components.
type Config struct {
	Application ApplicationConfig
	Logging     LoggingConfig
	Server      ServerConfig
	Auth        AuthConfig
	Kafka       KafkaConfig
	Postgres    PostgresConfig
	MongoDB     MongoDBConfig
	Store       StoreConfig
	Membership  MembershipConfig
	Reaper      ReaperConfig
	WorkerPool  WorkerPoolConfig
	Gemini      GeminiConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env  string
	Name string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port            int           // Port to listen on
	ShutdownTimeout time.Duration // Grace period for server shutdown
	ReadTimeout     time.Duration // Maximum duration for reading entire request
	WriteTimeout    time.Duration // Maximum duration for writing response
	IdleTimeout     time.Duration // Maximum duration to wait for next request
}

// AuthConfig controls how the backend identifies the acting user.
type AuthConfig struct {
	JWTSecret      string // HS256 secret shared with the identity provider
	AllowDevHeader bool   // Accept X-User-ID when no bearer token is present
	ExpectedIssuer string // Optional issuer claim to enforce
}

// KafkaConfig contains Kafka configuration
type KafkaConfig struct {
	Brokers           string
	FireRequestTopic  string // Template fire and due-check requests
	NumPartitions     int    // Number of partitions for topics
	ReplicationFactor int    // Replication factor for topics
	ConsumerGroup     string
	MinBytes          int
	MaxBytes          int
	MaxWait           time.Duration
	StartOffset       int64
	DLQTopic          string // Topic for Dead Letter Queue
}

// PostgresConfig contains PostgreSQL configuration
type PostgresConfig struct {
	URL             string        // Database connection string
	MaxConns        int32         // Maximum number of open connections
	MinConns        int32         // Maximum number of idle connections
	ConnMaxLifetime time.Duration // Maximum lifetime of a connection
	ConnMaxIdleTime time.Duration // Maximum idle time of a connection
	MigrationsPath  string        // Path to migration files
}

// MongoDBConfig contains MongoDB configuration
type MongoDBConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// StoreConfig selects the persistence strategy used for a process or session.
type StoreConfig struct {
	Mode              string        // remote or local
	LocalPath         string        // sqlite file for the local fallback store
	ConnectTimeout    time.Duration // Budget for reaching the remote store at startup
	UpdateMaxAttempts int           // Attempts for an atomic update before giving up on conflicts
	UpdateBackoff     time.Duration // Base delay between conflicting attempts
}

// MembershipConfig contains ledger membership defaults.
type MembershipConfig struct {
	DefaultLedgerName string
	JoinedLedgerName  string
	UnnamedLedgerName string
	DeleteGracePeriod time.Duration
	ExpenseCategories []string
	IncomeCategories  []string
	ReconcileTimeout  time.Duration // Upper bound for a queued remote reconciliation
	ReconcileWorkers  int
}

// ReaperConfig contains the abandoned-ledger sweep schedule.
type ReaperConfig struct {
	Interval    time.Duration
	BatchSize   int
	Concurrency int
}

// WorkerPoolConfig contains worker pool configuration
type WorkerPoolConfig struct {
	Size int // Maximum number of workers in the pool
}

// GeminiConfig contains the text-to-transaction parser settings.
type GeminiConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// validate performs validation of all configuration values,
// ensuring they meet minimum requirements and logical constraints
func (c *Config) validate() error {
	var validationErrors []string

	// Validate Server config
	if c.Server.Port <= 0 {
		validationErrors = append(validationErrors, "SERVER_PORT must be greater than 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_SHUTDOWN_TIMEOUT must be greater than 0")
	}
	if c.Server.ReadTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_READ_TIMEOUT must be greater than 0")
	}
	if c.Server.WriteTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_WRITE_TIMEOUT must be greater than 0")
	}
	if c.Server.IdleTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_IDLE_TIMEOUT must be greater than 0")
	}

	// Validate Auth config
	if c.Auth.AllowDevHeader && strings.EqualFold(c.Application.Env, EnvProduction) {
		validationErrors = append(validationErrors, "AUTH_ALLOW_DEV_HEADER must be false when APP_ENV is production")
	}

	// Validate Kafka config
	if len(c.Kafka.Brokers) == 0 {
		validationErrors = append(validationErrors, "KAFKA_BROKERS is required")
	}
	if c.Kafka.FireRequestTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_FIRE_REQUEST_TOPIC is required")
	}
	if c.Kafka.ConsumerGroup == "" {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_GROUP is required")
	}
	if c.Kafka.MinBytes <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MIN_BYTES must be greater than 0")
	}
	if c.Kafka.MaxBytes <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_BYTES must be greater than 0")
	}
	if c.Kafka.MaxWait <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_WAIT must be greater than 0")
	}
	if c.Kafka.DLQTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_DLQ_TOPIC is required")
	}

	// Validate PostgreSQL config
	if c.Postgres.URL == "" {
		validationErrors = append(validationErrors, "POSTGRES_URL is required")
	}
	if c.Postgres.MaxConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONNS must be greater than 0")
	}
	if c.Postgres.MinConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MIN_CONNS must be greater than 0")
	}
	if c.Postgres.ConnMaxLifetime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_LIFETIME must be greater than 0")
	}
	if c.Postgres.ConnMaxIdleTime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Validate MongoDB config
	if c.MongoDB.URI == "" {
		validationErrors = append(validationErrors, "MONGO_URI is required")
	}
	if c.MongoDB.Database == "" {
		validationErrors = append(validationErrors, "MONGO_DATABASE is required")
	}
	if c.MongoDB.Timeout <= 0 {
		validationErrors = append(validationErrors, "MONGO_TIMEOUT must be greater than 0")
	}
	if c.MongoDB.MaxPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_POOL_SIZE must be greater than 0")
	}
	if c.MongoDB.MinPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MIN_POOL_SIZE must be greater than 0")
	}
	if c.MongoDB.MaxConnIdleTime <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Validate Store config
	if c.Store.Mode != StoreModeRemote && c.Store.Mode != StoreModeLocal {
		validationErrors = append(validationErrors, fmt.Sprintf("STORE_MODE must be %q or %q", StoreModeRemote, StoreModeLocal))
	}
	if c.Store.LocalPath == "" {
		validationErrors = append(validationErrors, "STORE_LOCAL_PATH is required")
	}
	if c.Store.ConnectTimeout <= 0 {
		validationErrors = append(validationErrors, "STORE_CONNECT_TIMEOUT must be greater than 0")
	}
	if c.Store.UpdateMaxAttempts <= 0 {
		validationErrors = append(validationErrors, "STORE_UPDATE_MAX_ATTEMPTS must be greater than 0")
	}
	if c.Store.UpdateBackoff < 0 {
		validationErrors = append(validationErrors, "STORE_UPDATE_BACKOFF must not be negative")
	}

	// Validate Membership config
	if strings.TrimSpace(c.Membership.DefaultLedgerName) == "" {
		validationErrors = append(validationErrors, "MEMBERSHIP_DEFAULT_LEDGER_NAME is required")
	}
	if strings.TrimSpace(c.Membership.JoinedLedgerName) == "" {
		validationErrors = append(validationErrors, "MEMBERSHIP_JOINED_LEDGER_NAME is required")
	}
	if strings.TrimSpace(c.Membership.UnnamedLedgerName) == "" {
		validationErrors = append(validationErrors, "MEMBERSHIP_UNNAMED_LEDGER_NAME is required")
	}
	if c.Membership.DeleteGracePeriod <= 0 {
		validationErrors = append(validationErrors, "MEMBERSHIP_DELETE_GRACE_PERIOD must be greater than 0")
	}
	if len(c.Membership.ExpenseCategories) == 0 {
		validationErrors = append(validationErrors, "MEMBERSHIP_EXPENSE_CATEGORIES must not be empty")
	}
	if len(c.Membership.IncomeCategories) == 0 {
		validationErrors = append(validationErrors, "MEMBERSHIP_INCOME_CATEGORIES must not be empty")
	}
	if c.Membership.ReconcileTimeout <= 0 {
		validationErrors = append(validationErrors, "MEMBERSHIP_RECONCILE_TIMEOUT must be greater than 0")
	}
	if c.Membership.ReconcileWorkers <= 0 {
		validationErrors = append(validationErrors, "MEMBERSHIP_RECONCILE_WORKERS must be greater than 0")
	}

	// Validate Reaper config
	if c.Reaper.Interval <= 0 {
		validationErrors = append(validationErrors, "REAPER_INTERVAL must be greater than 0")
	}
	if c.Reaper.BatchSize <= 0 {
		validationErrors = append(validationErrors, "REAPER_BATCH_SIZE must be greater than 0")
	}
	if c.Reaper.Concurrency <= 0 {
		validationErrors = append(validationErrors, "REAPER_CONCURRENCY must be greater than 0")
	}

	// Validate WorkerPool config
	if c.WorkerPool.Size <= 0 {
		validationErrors = append(validationErrors, "WORKER_POOL_SIZE must be greater than 0")
	}

	// Gemini is optional; only the timeout needs to make sense when a key is set.
	if c.Gemini.APIKey != "" {
		if c.Gemini.Model == "" {
			validationErrors = append(validationErrors, "GEMINI_MODEL is required when GEMINI_API_KEY is set")
		}
		if c.Gemini.Timeout <= 0 {
			validationErrors = append(validationErrors, "GEMINI_TIMEOUT must be greater than 0")
		}
	}

	if len(validationErrors) > 0 {
		return errors.New(strings.Join(validationErrors, ", "))
	}

	return nil
}

// ValidateServer checks the settings only the HTTP backend depends on. Without
// the dev header every caller must present a token signed with AUTH_JWT_SECRET.
func (c *Config) ValidateServer() error {
	if !c.Auth.AllowDevHeader && strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("AUTH_JWT_SECRET is required when AUTH_ALLOW_DEV_HEADER is false")
	}
	return nil
}
