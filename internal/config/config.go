package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"lifeplan/internal/log"
	"lifeplan/internal/settings"
)

// Backends accepted by DATA_BACKEND.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRemote   = "remote"
)

var validBackends = []string{BackendMemory, BackendSQLite, BackendPostgres, BackendRemote}

type Config struct {
	// HTTP Server
	Port               string
	TrustedProxies     []string
	BlockSuspicious    bool
	RateLimitPerMinute int

	// Backend selection
	DataBackend string
	DataDir     string

	// Database
	SQLiteDBPath string
	DatabaseURL  string

	// Remote backend
	RemoteBaseURL  string
	RemoteToken    string
	RemoteEmail    string
	RemotePassword string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets mirror
	GoogleSpreadsheetID      string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Caching and sessions
	RedisURL   string
	CacheTTL   time.Duration
	SessionTTL time.Duration

	// Worker
	SyncBatchSize int
	SyncInterval  time.Duration

	// Presentation and logging
	LogLevel      string
	DefaultTheme  string
	DefaultLocale string
}

func Load() *Config {
	cfg := &Config{
		Port:               getEnv("PORT", "8081"),
		TrustedProxies:     getEnvList("TRUSTED_PROXIES"),
		BlockSuspicious:    getEnvBool("BLOCK_SUSPICIOUS", false),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),

		DataBackend: getEnv("DATA_BACKEND", BackendMemory),
		DataDir:     getEnv("DATA_DIR", "data"),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/lifeplan.db"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),

		RemoteBaseURL:  getEnv("REMOTE_BASE_URL", ""),
		RemoteToken:    getEnv("REMOTE_TOKEN", ""),
		RemoteEmail:    getEnv("REMOTE_EMAIL", ""),
		RemotePassword: getEnv("REMOTE_PASSWORD", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "lifeplan"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "sync_plans"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),

		RedisURL:   getEnv("REDIS_URL", ""),
		CacheTTL:   getEnvDuration("CACHE_TTL", 5*time.Minute),
		SessionTTL: getEnvDuration("SESSION_TTL", 2*time.Hour),

		SyncBatchSize: getEnvInt("SYNC_BATCH_SIZE", 10),
		SyncInterval:  getEnvDuration("SYNC_INTERVAL", 30*time.Second),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DefaultTheme:  getEnv("DEFAULT_THEME", string(settings.ThemeLight)),
		DefaultLocale: getEnv("DEFAULT_LOCALE", "en"),
	}

	return cfg
}

// MirrorEnabled reports whether a Sheets mirror is configured.
func (c *Config) MirrorEnabled() bool {
	return strings.TrimSpace(c.GoogleSpreadsheetID) != ""
}

// Settings returns the presentation defaults. Call after Validate.
func (c *Config) Settings() settings.Settings {
	theme, err := settings.ParseTheme(c.DefaultTheme)
	if err != nil {
		theme = settings.ThemeLight
	}
	return settings.Settings{Theme: theme, Locale: c.DefaultLocale}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	for _, cidr := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errors = append(errors, fmt.Sprintf("invalid trusted proxy '%s': must be a CIDR such as 10.0.0.0/8", cidr))
		}
	}
	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	} else if c.RateLimitPerMinute > 10000 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at most 10000 requests per minute", c.RateLimitPerMinute))
	}

	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case BackendSQLite:
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errors = append(errors, "DATABASE_URL is required when using postgres backend")
		} else if u, err := url.Parse(c.DatabaseURL); err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
			errors = append(errors, fmt.Sprintf("invalid DATABASE_URL '%s': must be a postgres:// URL", c.DatabaseURL))
		}
	case BackendRemote:
		if c.RemoteBaseURL == "" {
			errors = append(errors, "REMOTE_BASE_URL is required when using remote backend")
		} else if u, err := url.Parse(c.RemoteBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errors = append(errors, fmt.Sprintf("invalid REMOTE_BASE_URL '%s': must be an http(s) URL", c.RemoteBaseURL))
		}
		hasCreds := c.RemoteEmail != "" && c.RemotePassword != ""
		if c.RemoteToken == "" && !hasCreds {
			errors = append(errors, "either REMOTE_TOKEN or REMOTE_EMAIL and REMOTE_PASSWORD must be provided for remote backend")
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.MirrorEnabled() {
		hasJSON := c.GoogleServiceAccountJSON != ""
		hasFile := c.GoogleServiceAccountFile != ""
		if !hasJSON && !hasFile {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided for the sheets mirror")
		}
		if hasFile {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	if c.RedisURL != "" {
		if u, err := url.Parse(c.RedisURL); err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
			errors = append(errors, fmt.Sprintf("invalid REDIS_URL '%s': must be a redis:// URL", c.RedisURL))
		}
	}
	if c.CacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must be at least 1 second", c.CacheTTL))
	}
	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	}

	if c.SyncBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at least 1", c.SyncBatchSize))
	} else if c.SyncBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at most 1000", c.SyncBatchSize))
	}

	if c.SyncInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, err.Error())
	}
	if _, err := settings.ParseTheme(c.DefaultTheme); err != nil {
		errors = append(errors, fmt.Sprintf("invalid default theme '%s': must be light or dark", c.DefaultTheme))
	}
	if strings.TrimSpace(c.DefaultLocale) == "" {
		errors = append(errors, "default locale cannot be empty")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping blank entries.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
