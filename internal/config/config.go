package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Store        StoreConfig
	Intake       IntakeConfig
	Ledger       LedgerConfig
	Propagation  PropagationConfig
	Lifecycle    LifecycleConfig
	Events       EventsConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	CORSOrigins           string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
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
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret                 string
	AccessTokenTTLMinutes     int
	BcryptCost                int
	DefaultTenant             string
	DefaultOwnerPassword      string
	DefaultTechnicianPassword string
}

// StoreConfig bounds every call to the backing document store.
type StoreConfig struct {
	TimeoutMillis int
}

// IntakeConfig governs ticket intake.
type IntakeConfig struct {
	CustomerCapPerTeam int
	TicketPrefix       string
	TicketSeqStart     int64
}

// LedgerConfig controls monthly aggregation boundaries.
type LedgerConfig struct {
	Timezone string
}

// PropagationConfig tunes change feed reconnects and subscriber buffers.
type PropagationConfig struct {
	MinBackoffMillis int
	MaxBackoffMillis int
	MaxPending       int
}

// LifecycleConfig tunes status transition retries after lost races.
type LifecycleConfig struct {
	MaxTransitionRetries int
}

// EventsConfig configures the outbound event sink.
type EventsConfig struct {
	KafkaBrokers []string
	KafkaTopic   string
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	EmailFrom  string
	WebhookURL string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "fix-manager"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			CORSOrigins:           getEnv("CORS_ALLOW_ORIGINS", "*"),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:                 getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes:     getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:                getEnvAsInt("AUTH_BCRYPT_COST", 12),
			DefaultTenant:             getEnv("AUTH_DEFAULT_TENANT", "default"),
			DefaultOwnerPassword:      getEnv("AUTH_DEFAULT_OWNER_PASSWORD", "owner"),
			DefaultTechnicianPassword: getEnv("AUTH_DEFAULT_TECHNICIAN_PASSWORD", "password"),
		},
		Store: StoreConfig{
			TimeoutMillis: getEnvAsInt("STORE_TIMEOUT_MS", 5000),
		},
		Intake: IntakeConfig{
			CustomerCapPerTeam: getEnvAsInt("INTAKE_CUSTOMER_CAP_PER_TEAM", 5000),
			TicketPrefix:       getEnv("INTAKE_TICKET_PREFIX", "R"),
			TicketSeqStart:     int64(getEnvAsInt("INTAKE_TICKET_SEQ_START", 1000)),
		},
		Ledger: LedgerConfig{
			Timezone: getEnv("LEDGER_TIMEZONE", "UTC"),
		},
		Propagation: PropagationConfig{
			MinBackoffMillis: getEnvAsInt("PROPAGATION_MIN_BACKOFF_MS", 250),
			MaxBackoffMillis: getEnvAsInt("PROPAGATION_MAX_BACKOFF_MS", 30000),
			MaxPending:       getEnvAsInt("PROPAGATION_MAX_PENDING", 256),
		},
		Lifecycle: LifecycleConfig{
			MaxTransitionRetries: getEnvAsInt("LIFECYCLE_MAX_TRANSITION_RETRIES", 3),
		},
		Events: EventsConfig{
			KafkaBrokers: splitList(os.Getenv("EVENTS_KAFKA_BROKERS")),
			KafkaTopic:   getEnv("EVENTS_KAFKA_TOPIC", "fix-manager.events"),
		},
		Notification: NotificationConfig{
			EmailFrom:  getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
	}

	if _, err := cfg.Ledger.Location(); err != nil {
		return nil, fmt.Errorf("invalid LEDGER_TIMEZONE: %w", err)
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

// Timeout returns the per-call store deadline.
func (s StoreConfig) Timeout() time.Duration {
	if s.TimeoutMillis <= 0 {
		return 5 * time.Second
	}
	return time.Duration(s.TimeoutMillis) * time.Millisecond
}

// Location resolves the ledger timezone.
func (l LedgerConfig) Location() (*time.Location, error) {
	if l.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(l.Timezone)
}

// MinBackoff returns the first reconnect delay.
func (p PropagationConfig) MinBackoff() time.Duration {
	if p.MinBackoffMillis <= 0 {
		return 250 * time.Millisecond
	}
	return time.Duration(p.MinBackoffMillis) * time.Millisecond
}

// MaxBackoff caps the reconnect delay.
func (p PropagationConfig) MaxBackoff() time.Duration {
	if p.MaxBackoffMillis <= 0 {
		return 30 * time.Second
	}
	return time.Duration(p.MaxBackoffMillis) * time.Millisecond
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

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
