package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server      ServerConfig
	Store       StoreConfig
	Auth        AuthConfig
	Oracle      OracleConfig
	Fingerprint FingerprintConfig
	Flashcards  FlashcardConfig
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
	LoginRateLimit int      // login requests per IP per minute
	TrustedProxies []string // CIDRs allowed to set X-Forwarded-For
}

// StoreConfig selects the backend that plays the role of local storage
type StoreConfig struct {
	Driver     string // sqlite, postgres or memory
	Origin     string
	SQLitePath string
	Postgres   PostgresConfig
}

type PostgresConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type AuthConfig struct {
	MaxFailedAttempts   int
	LockoutDurations    []time.Duration
	EscalationStaleAge  time.Duration
	SessionLifetime     time.Duration // 0 means sessions never expire
	ResetCodeHash       string        // bcrypt hash; empty means the yearly default code
	TimingBaseDelayMs   int
	TimingRandomDelayMs int
}

// MaxRejectionDelay is the longest sleep a rejected login can add
func (a AuthConfig) MaxRejectionDelay() time.Duration {
	return time.Duration(a.TimingBaseDelayMs+a.TimingRandomDelayMs) * time.Millisecond
}

type OracleConfig struct {
	Endpoint        string
	Timeout         time.Duration
	RefreshInterval time.Duration
}

type FingerprintConfig struct {
	Language     string
	ScreenWidth  int
	ScreenHeight int
	Extended     bool
}

type FlashcardConfig struct {
	DeckPath      string // empty uses the embedded deck
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

const (
	StoreDriverSQLite   = "sqlite"
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	lockouts, err := getEnvAsDurations("LOCKOUT_DURATIONS", []time.Duration{
		5 * time.Minute, 15 * time.Minute, time.Hour, 24 * time.Hour,
	})
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			RequestTimeout: getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 30*time.Second),
			LoginRateLimit: getEnvAsInt("LOGIN_RATE_LIMIT", 10),
			TrustedProxies: splitList(getEnv("TRUSTED_PROXIES", "")),
		},
		Store: StoreConfig{
			Driver:     strings.ToLower(getEnv("STORE_DRIVER", StoreDriverSQLite)),
			Origin:     getEnv("STORE_ORIGIN", "matcenter"),
			SQLitePath: getEnv("STORE_SQLITE_PATH", "data/matcenter.db"),
			Postgres: PostgresConfig{
				Host:              getEnv("DB_HOST", "localhost"),
				Port:              getEnvAsInt("DB_PORT", 5432),
				User:              getEnv("DB_USER", "postgres"),
				Password:          getEnv("DB_PASSWORD", ""),
				Name:              getEnv("DB_NAME", "matcenter"),
				SSLMode:           getEnv("DB_SSLMODE", "disable"),
				MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 5)),
				MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 1)),
				MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
				MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
				HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			},
		},
		Auth: AuthConfig{
			MaxFailedAttempts:   getEnvAsInt("MAX_FAILED_ATTEMPTS", 3),
			LockoutDurations:    lockouts,
			EscalationStaleAge:  getEnvAsDuration("LOCKOUT_STALE_AGE", 7*24*time.Hour),
			SessionLifetime:     getEnvAsDuration("SESSION_LIFETIME", 0),
			ResetCodeHash:       getEnv("RESET_CODE_HASH", ""),
			TimingBaseDelayMs:   getEnvAsInt("TIMING_BASE_DELAY_MS", 300),
			TimingRandomDelayMs: getEnvAsInt("TIMING_RANDOM_DELAY_MS", 200),
		},
		Oracle: OracleConfig{
			Endpoint:        getEnv("ORACLE_ENDPOINT", ""),
			Timeout:         getEnvAsDuration("ORACLE_TIMEOUT", 15*time.Second),
			RefreshInterval: getEnvAsDuration("ORACLE_REFRESH_INTERVAL", 5*time.Minute),
		},
		Fingerprint: FingerprintConfig{
			Language:     getEnv("FP_LANGUAGE", ""),
			ScreenWidth:  getEnvAsInt("FP_SCREEN_WIDTH", 1920),
			ScreenHeight: getEnvAsInt("FP_SCREEN_HEIGHT", 1080),
			Extended:     getEnvAsBool("FP_EXTENDED", false),
		},
		Flashcards: FlashcardConfig{
			DeckPath:      getEnv("DECK_PATH", ""),
			IdleTimeout:   getEnvAsDuration("FLASHCARD_IDLE_TIMEOUT", 2*time.Hour),
			SweepInterval: getEnvAsDuration("FLASHCARD_SWEEP_INTERVAL", 10*time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the invariants the lockout engine and store rely on
func (c *Config) Validate() error {
	if c.Auth.MaxFailedAttempts < 1 {
		return fmt.Errorf("MAX_FAILED_ATTEMPTS must be at least 1 (got %d)", c.Auth.MaxFailedAttempts)
	}
	if len(c.Auth.LockoutDurations) == 0 {
		return fmt.Errorf("LOCKOUT_DURATIONS must contain at least one duration")
	}
	for i, d := range c.Auth.LockoutDurations {
		if d <= 0 {
			return fmt.Errorf("LOCKOUT_DURATIONS[%d] must be positive", i)
		}
		if i > 0 && d < c.Auth.LockoutDurations[i-1] {
			return fmt.Errorf("LOCKOUT_DURATIONS must be non-decreasing")
		}
	}
	if c.Auth.SessionLifetime < 0 {
		return fmt.Errorf("SESSION_LIFETIME cannot be negative")
	}
	if c.Oracle.Endpoint == "" {
		return fmt.Errorf("ORACLE_ENDPOINT is required")
	}
	if c.Oracle.Timeout <= 0 {
		return fmt.Errorf("ORACLE_TIMEOUT must be positive")
	}
	// A login can wait on the oracle and then sleep the rejection delay
	if c.Server.WriteTimeout <= c.Oracle.Timeout+c.Auth.MaxRejectionDelay() {
		return fmt.Errorf("SERVER_WRITE_TIMEOUT (%s) must exceed ORACLE_TIMEOUT plus the rejection delay (%s)",
			c.Server.WriteTimeout, c.Oracle.Timeout+c.Auth.MaxRejectionDelay())
	}
	if c.Flashcards.IdleTimeout <= 0 || c.Flashcards.SweepInterval <= 0 {
		return fmt.Errorf("FLASHCARD_IDLE_TIMEOUT and FLASHCARD_SWEEP_INTERVAL must be positive")
	}

	switch c.Store.Driver {
	case StoreDriverSQLite, StoreDriverMemory:
	case StoreDriverPostgres:
		if c.Store.Postgres.Password == "" {
			return fmt.Errorf("DB_PASSWORD is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}

	return nil
}

func (c *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

// getEnvAsDurations parses a comma separated list such as "5m,15m,1h,24h".
// Unlike the scalar helpers a malformed entry is an error, since silently
// falling back would change the escalation policy.
func getEnvAsDurations(key string, defaultVal []time.Duration) ([]time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultVal, nil
	}

	parts := strings.Split(value, ",")
	out := make([]time.Duration, 0, len(parts))
	for _, part := range parts {
		d, err := time.ParseDuration(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("%s: invalid duration %q: %w", key, part, err)
		}
		out = append(out, d)
	}
	return out, nil
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		return splitList(getEnv("ALLOWED_ORIGINS", ""))
	}

	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
