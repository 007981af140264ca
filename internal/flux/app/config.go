package app

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

type Config struct {
	APIURL         string        // Flux API base URL (default: http://localhost:8000)
	RequestTimeout time.Duration // Per-request timeout (default: 30s)

	Store             string        // Credential store driver: sqlite, redis, memory (default: sqlite)
	StoreFile         string        // SQLite file shared by every tab (default: flux.db)
	StorePollInterval time.Duration // SQLite change-log poll interval (default: 250ms)
	StoreKeyFile      string        // Optional: key material for sealing the stored token

	RedisHost     string // default: localhost
	RedisPort     string // default: 6379
	RedisUsername string
	RedisPassword string

	IdleTimeout           time.Duration // Inactivity window before sign-out (default: 10m)
	IdlePollInterval      time.Duration // How often idleness is checked (default: 1s)
	ActivityWriteInterval time.Duration // Minimum spacing of lastActivity writes (default: 1s)

	EventRetention       time.Duration // Age after which store change events are pruned (default: 24h)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)

	Env       string // Environment (dev, staging, prod) (default: prod)
	LogLevel  string // Log level (debug, info, warn, error) (default: warn)
	LogFormat string // Log format (json, text) (default: text)
}

// LoadConfig reads the environment. A .env file in the working directory is
// applied first without overriding variables that are already set.
func LoadConfig() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: ignoring .env: %v\n", err)
	}

	return Config{
		APIURL:                getEnvOrDefault("FLUX_API_URL", "http://localhost:8000"),
		RequestTimeout:        getEnvDurationOrDefault("FLUX_REQUEST_TIMEOUT", 30*time.Second),
		Store:                 getEnvOrDefault("FLUX_STORE", StoreSQLite),
		StoreFile:             getEnvOrDefault("FLUX_STORE_FILE", "flux.db"),
		StorePollInterval:     getEnvDurationOrDefault("FLUX_STORE_POLL_INTERVAL", 250*time.Millisecond),
		StoreKeyFile:          os.Getenv("FLUX_STORE_KEY_FILE"),
		RedisHost:             getEnvOrDefault("REDIS_HOST", "localhost"),
		RedisPort:             strconv.Itoa(getEnvIntOrDefault("REDIS_PORT", 6379)),
		RedisUsername:         os.Getenv("REDIS_USERNAME"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		IdleTimeout:           getEnvDurationOrDefault("FLUX_IDLE_TIMEOUT", 10*time.Minute),
		IdlePollInterval:      getEnvDurationOrDefault("FLUX_IDLE_POLL_INTERVAL", time.Second),
		ActivityWriteInterval: getEnvDurationOrDefault("FLUX_ACTIVITY_WRITE_INTERVAL", time.Second),
		EventRetention:        getEnvDurationOrDefault("FLUX_EVENT_RETENTION", 24*time.Hour),
		HousekeepingInterval:  getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", time.Hour),
		Env:                   getEnvOrDefault("ENV", "prod"),
		LogLevel:              getEnvOrDefault("LOG_LEVEL", "warn"),
		LogFormat:             getEnvOrDefault("LOG_FORMAT", "text"),
	}
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid API URL %q", c.APIURL)
	}

	switch c.Store {
	case StoreSQLite:
		if c.StoreFile == "" {
			return errors.New("store file is required for the sqlite store")
		}
	case StoreRedis, StoreMemory:
	default:
		return fmt.Errorf("unknown store %q (want sqlite, redis or memory)", c.Store)
	}

	if c.IdleTimeout <= 0 {
		return errors.New("idle timeout must be positive")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "10m", "250ms")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are seconds.
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
