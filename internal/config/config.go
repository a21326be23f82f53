package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the engine.
type Config struct {
	App       AppConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Auth      AuthConfig
	Scheduler SchedulerConfig
	Batch     BatchConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds control-plane DB connection values plus the pool
// sizing applied to every tenant pool.
type PostgresConfig struct {
	ControlDSN     string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines ops API authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// SchedulerConfig tunes the SLA notification scheduler.
type SchedulerConfig struct {
	PollTickSeconds        int
	MinIntervalSeconds     int
	MaxRunBudgetSeconds    int
	TenantTimeoutSeconds   int
	TicketBatchSize        int
	TicketPacingMillis     int
	DefaultIntervalSeconds int
}

// BatchConfig tunes the background rule runner.
type BatchConfig struct {
	ChunkSize         int
	MaxAttempts       int
	BackoffMillis     int
	BreakerThreshold  int
	ChunkPacingMillis int
	JobQueueSize      int
	MatchLimit        int
}

// Load reads configuration from environment variables, applying defaults
// where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "sla-engine"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			ControlDSN:     os.Getenv("POSTGRES_CONTROL_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
			Channel:  getEnv("REDIS_NOTIFICATION_CHANNEL", "sla:notifications"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Scheduler: SchedulerConfig{
			PollTickSeconds:        getEnvAsInt("SLA_POLL_TICK_SECONDS", 30),
			MinIntervalSeconds:     getEnvAsInt("SLA_MIN_INTERVAL_SECONDS", 60),
			MaxRunBudgetSeconds:    getEnvAsInt("SLA_MAX_RUN_BUDGET_SECONDS", 600),
			TenantTimeoutSeconds:   getEnvAsInt("SLA_TENANT_TIMEOUT_SECONDS", 120),
			TicketBatchSize:        getEnvAsInt("SLA_TICKET_BATCH_SIZE", 500),
			TicketPacingMillis:     getEnvAsInt("SLA_TICKET_PACING_MILLIS", 50),
			DefaultIntervalSeconds: getEnvAsInt("SLA_DEFAULT_INTERVAL_SECONDS", 300),
		},
		Batch: BatchConfig{
			ChunkSize:         getEnvAsInt("RULE_BATCH_CHUNK_SIZE", 50),
			MaxAttempts:       getEnvAsInt("RULE_BATCH_MAX_ATTEMPTS", 3),
			BackoffMillis:     getEnvAsInt("RULE_BATCH_BACKOFF_MILLIS", 500),
			BreakerThreshold:  getEnvAsInt("RULE_BATCH_BREAKER_THRESHOLD", 5),
			ChunkPacingMillis: getEnvAsInt("RULE_BATCH_CHUNK_PACING_MILLIS", 250),
			JobQueueSize:      getEnvAsInt("RULE_BATCH_JOB_QUEUE_SIZE", 16),
			MatchLimit:        getEnvAsInt("RULE_MATCH_LIMIT", 1000),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// PollTick returns the scheduler wake-up cadence.
func (s SchedulerConfig) PollTick() time.Duration {
	return time.Duration(s.PollTickSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
