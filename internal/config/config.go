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
	Notification NotificationConfig
	Moderation   ModerationConfig
	Classifier   ClassifierConfig
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
	// AuditStream is the stream key the moderation log is mirrored into.
	AuditStream       string
	AuditStreamMaxLen int64
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level    string
	Encoding string
	Service  string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
	// OwnerName is the privileged account; matched case-insensitively.
	OwnerName string
}

// NotificationConfig holds the audit webhook endpoint.
type NotificationConfig struct {
	WebhookURL string
}

// ModerationConfig tunes the sanction pipeline.
type ModerationConfig struct {
	StrikeThreshold    int
	ImageTimeout       time.Duration
	SpamTimeout        time.Duration
	SpamWindow         time.Duration
	SpamBurstSize      int
	RateWindowCapacity int
	CoinBaseReward     int64
	CoinMultiplier     float64
}

// FailurePolicy decides what happens when the image classifier cannot answer.
type FailurePolicy string

const (
	FailOpen   FailurePolicy = "open"
	FailClosed FailurePolicy = "closed"
)

// ClassifierConfig selects and configures the image classifier.
type ClassifierConfig struct {
	ImageProvider string
	Timeout       time.Duration
	FailurePolicy FailurePolicy
	HiveAPIToken  string
	HiveEndpoint  string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	policy := FailurePolicy(strings.ToLower(getEnv("CLASSIFIER_FAILURE_POLICY", string(FailOpen))))
	if policy != FailOpen && policy != FailClosed {
		return nil, fmt.Errorf("invalid CLASSIFIER_FAILURE_POLICY %q", policy)
	}

	multiplier, err := strconv.ParseFloat(getEnv("COIN_MULTIPLIER", "1"), 64)
	if err != nil || multiplier < 0 {
		return nil, fmt.Errorf("invalid COIN_MULTIPLIER %q", os.Getenv("COIN_MULTIPLIER"))
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "nexus-moderation"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
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
			Addr:              getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:          os.Getenv("REDIS_PASSWORD"),
			DB:                redisDB,
			AuditStream:       getEnv("REDIS_AUDIT_STREAM", "audit:mod-actions"),
			AuditStreamMaxLen: int64(getEnvAsInt("REDIS_AUDIT_STREAM_MAXLEN", 10000)),
		},
		Logger: LoggerConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Encoding: getEnv("LOG_ENCODING", "json"),
			Service:  getEnv("APP_NAME", "nexus-moderation"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
			OwnerName:             getEnv("OWNER_NAME", "Brick"),
		},
		Notification: NotificationConfig{
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
		Moderation: ModerationConfig{
			StrikeThreshold:    getEnvAsInt("MOD_STRIKE_THRESHOLD", 3),
			ImageTimeout:       getEnvAsDuration("MOD_IMAGE_TIMEOUT", 5*time.Minute),
			SpamTimeout:        getEnvAsDuration("MOD_SPAM_TIMEOUT", time.Minute),
			SpamWindow:         getEnvAsDuration("MOD_SPAM_WINDOW", 5*time.Second),
			SpamBurstSize:      getEnvAsInt("MOD_SPAM_BURST_SIZE", 3),
			RateWindowCapacity: getEnvAsInt("MOD_RATE_WINDOW_CAPACITY", 100000),
			CoinBaseReward:     int64(getEnvAsInt("COIN_BASE_REWARD", 5)),
			CoinMultiplier:     multiplier,
		},
		Classifier: ClassifierConfig{
			ImageProvider: strings.ToLower(getEnv("CLASSIFIER_IMAGE_PROVIDER", "none")),
			Timeout:       getEnvAsDuration("CLASSIFIER_TIMEOUT", 10*time.Second),
			FailurePolicy: policy,
			HiveAPIToken:  os.Getenv("HIVE_API_TOKEN"),
			HiveEndpoint:  getEnv("HIVE_ENDPOINT", "https://api.thehive.ai/api/v2/task/sync"),
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

// TokenTTL returns the access token lifetime.
func (a AuthConfig) TokenTTL() time.Duration {
	if a.AccessTokenTTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
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

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
