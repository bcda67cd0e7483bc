// Package config loads server settings from the environment and an optional
// .env file, and builds the process logger.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends accepted by STORE.
const (
	StoreSQLite = "sqlite"
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

type Config struct {
	Addr         string
	Store        string
	SQLitePath   string
	MongoURI     string
	MongoDB      string
	RedisAddr    string // empty: in-process locking
	LockTTL      time.Duration
	MaxAttempts  int
	LogLevel     string
	CORSOrigins  []string
	SeedScenario string
}

// Load reads files (default ".env") into the environment without overriding
// variables that are already set, then builds the Config. Missing files are
// ignored.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv(), nil
}

// FromEnv builds the Config from environment variables only.
func FromEnv() Config {
	return Config{
		Addr:         getEnv("APP_ADDR", ":8080"),
		Store:        getEnv("STORE", StoreSQLite),
		SQLitePath:   getEnv("SQLITE_PATH", "payroll.db"),
		MongoURI:     getEnv("MONGO_URI", ""),
		MongoDB:      getEnv("MONGO_DB", "payroll"),
		RedisAddr:    getEnv("REDIS_ADDR", ""),
		LockTTL:      getEnvDuration("LOCK_TTL", 10*time.Second),
		MaxAttempts:  getEnvInt("MAX_ATTEMPTS", 10),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		CORSOrigins:  getEnvList("CORS_ORIGINS", []string{"http://localhost:5173", "http://localhost:8080"}),
		SeedScenario: getEnv("SEED_SCENARIO", ""),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c Config) Validate() error {
	switch c.Store {
	case StoreSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE=sqlite")
		}
	case StoreMongo:
		if strings.TrimSpace(c.MongoURI) == "" {
			return fmt.Errorf("MONGO_URI is required when STORE=mongo")
		}
		if strings.TrimSpace(c.MongoDB) == "" {
			return fmt.Errorf("MONGO_DB must not be empty")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("STORE must be one of %s, %s, %s; got %q", StoreSQLite, StoreMongo, StoreMemory, c.Store)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("MAX_ATTEMPTS must be positive")
	}
	if c.RedisAddr != "" && c.LockTTL <= 0 {
		return fmt.Errorf("LOCK_TTL must be positive when REDIS_ADDR is set")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}
