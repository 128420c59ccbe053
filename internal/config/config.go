package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	IngestSecret string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	Ledger    LedgerConfig
	RateLimit RateLimitConfig
	SMTP      SMTPConfig
}

// LedgerConfig configures the external accounting service client.
type LedgerConfig struct {
	Environment string // sandbox or production
	BaseURL     string // overrides the environment default when set
	MinorUnit   bool   // amounts sent as minor currency units instead of decimal
	Timeout     int    // seconds
}

// RateLimitConfig configures the redis-backed ingest limiter.
type RateLimitConfig struct {
	Enabled               bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	IngestRate            float64
	IngestBurst           int
	PostingLockTTLSeconds int
}

// SMTPConfig configures the operator notification mailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Operator string // recipient for posting run summaries
}

// Module provides the configuration value object.
var Module = fx.Provide(Load)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:      getenv("APP_SERVICE", "tutorledger"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		IngestSecret: strings.TrimSpace(getenv("INGEST_SECRET", "")),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "sqlite"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "tutorledger"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 2),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 10),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),

		Ledger: LedgerConfig{
			Environment: strings.ToLower(getenv("LEDGER_ENVIRONMENT", "sandbox")),
			BaseURL:     strings.TrimSpace(getenv("LEDGER_BASE_URL", "")),
			Timeout:     getenvInt("LEDGER_TIMEOUT_SECONDS", 30),
		},
		RateLimit: RateLimitConfig{
			Enabled:               getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:             strings.TrimSpace(getenv("RATE_LIMIT_REDIS_ADDR", "")),
			RedisPassword:         getenv("RATE_LIMIT_REDIS_PASSWORD", ""),
			RedisDB:               getenvInt("RATE_LIMIT_REDIS_DB", 0),
			IngestRate:            getenvFloat("RATE_LIMIT_INGEST_RATE", 10),
			IngestBurst:           getenvInt("RATE_LIMIT_INGEST_BURST", 30),
			PostingLockTTLSeconds: getenvInt("RATE_LIMIT_POSTING_LOCK_TTL", 300),
		},
		SMTP: SMTPConfig{
			Host:     strings.TrimSpace(getenv("SMTP_HOST", "")),
			Port:     getenvInt("SMTP_PORT", 587),
			Username: getenv("SMTP_USERNAME", ""),
			Password: getenv("SMTP_PASSWORD", ""),
			From:     getenv("SMTP_FROM", ""),
			Operator: strings.TrimSpace(getenv("OPERATOR_EMAIL", "")),
		},
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
