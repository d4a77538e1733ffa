package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv         string
	HTTPAddr       string
	MigrationsPath string
	LogLevel       string

	// DATABASE_URL: runtime connection for the action audit store.
	// DIRECT_URL: direct connection for migrations (bypasses poolers).
	DatabaseURL string
	DirectURL   string

	DB DBConfig

	Backend BackendConfig

	Session SessionConfig

	// AuditEnabled toggles the Postgres action audit. When false the gateway runs without a database.
	AuditEnabled bool

	// MessagePollInterval is how often an open thread stream refetches messages from the backend.
	MessagePollInterval time.Duration

	// AllowedOrigins is a comma-separated allowlist of UI origins. Example:
	//   https://app.umrahlink.com,http://localhost:3000
	AllowedOrigins []string

	OTel OTelConfig
}

type DBConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
}

type BackendConfig struct {
	// BaseURL is the marketplace REST API root, including the /api prefix.
	BaseURL string
	Timeout time.Duration
}

type SessionConfig struct {
	Secret     string
	TTL        time.Duration
	CookieName string
}

type OTelConfig struct {
	Endpoint string
	Insecure bool
}

func Load() Config {
	// Convenience for local dev: load variables from .env if present.
	// In production, rely on real environment variables.
	_ = godotenv.Load()

	httpAddr := os.Getenv("HTTP_ADDR")
	if httpAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			httpAddr = ":" + port
		} else {
			httpAddr = ":8082"
		}
	}

	return Config{
		AppEnv:         env("APP_ENV", "dev"),
		HTTPAddr:       httpAddr,
		MigrationsPath: os.Getenv("MIGRATIONS_PATH"),
		LogLevel:       env("LOG_LEVEL", "info"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		DirectURL:      os.Getenv("DIRECT_URL"),
		DB: DBConfig{
			Host:     env("DB_HOST", "localhost"),
			Port:     env("DB_PORT", "5432"),
			Name:     env("DB_NAME", "umrahlink"),
			User:     env("DB_USER", "umrahlink"),
			Password: env("DB_PASSWORD", "umrahlink"),
			SSLMode:  env("DB_SSLMODE", "disable"),
		},
		Backend: BackendConfig{
			BaseURL: strings.TrimSuffix(env("BACKEND_BASE_URL", "http://127.0.0.1:8000/api"), "/"),
			Timeout: envDuration("BACKEND_TIMEOUT", 20*time.Second),
		},
		Session: SessionConfig{
			Secret:     os.Getenv("SESSION_SECRET"),
			TTL:        envDuration("SESSION_TTL", 12*time.Hour),
			CookieName: env("SESSION_COOKIE", "umrahlink_session"),
		},
		AuditEnabled:        envBool("AUDIT_ENABLED", true),
		MessagePollInterval: envDuration("MESSAGE_POLL_INTERVAL", 8*time.Second),
		AllowedOrigins:      envList("ALLOWED_ORIGINS", "http://localhost:3000"),
		OTel: OTelConfig{
			Endpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			Insecure: envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		},
	}
}

func (c Config) IsProd() bool {
	return c.AppEnv == "prod"
}

func env(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// envDuration accepts Go durations ("8s") or bare seconds ("8").
func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func envList(key, fallbackCSV string) []string {
	v := os.Getenv(key)
	if v == "" {
		v = fallbackCSV
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
