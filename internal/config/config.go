// Package config provides billing configuration loaded from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/diewo77/go-billing/internal/logger"
)

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig
	Log      logger.LogConfig
	App      AppConfig
}

// DatabaseConfig selects the store and holds its connection settings.
type DatabaseConfig struct {
	Driver string // postgres or sqlite

	// DSNOverride is DATABASE_DSN; when set it wins over the discrete fields.
	DSNOverride string
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string

	SQLitePath string
	Debug      bool
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Migrations bool   // apply embedded SQL migrations instead of AutoMigrate
	PDFBaseURL string // prefix of rendered artifact links
	ActorID    uint   // user recorded for CLI operations
}

// DSN returns the PostgreSQL connection string in key=value format.
func (d DatabaseConfig) DSN() string {
	if d.DSNOverride != "" {
		return d.DSNOverride
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// URL returns the PostgreSQL connection string in URL format.
func (d DatabaseConfig) URL() string {
	if strings.HasPrefix(d.DSNOverride, "postgres://") || strings.HasPrefix(d.DSNOverride, "postgresql://") {
		return d.DSNOverride
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// Load reads configuration from environment variables.
// Defaults target a local PostgreSQL.
func Load() (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			Driver:      strings.ToLower(getEnv("DB_DRIVER", "postgres")),
			DSNOverride: os.Getenv("DATABASE_DSN"),
			Host:        getEnv("DB_HOST", "localhost"),
			Port:        getEnvInt("DB_PORT", 5432),
			User:        getEnv("DB_USER", "billing"),
			Password:    getEnv("DB_PASSWORD", "billing"),
			DBName:      getEnv("DB_NAME", "billing"),
			SSLMode:     getEnv("DB_SSLMODE", "disable"),
			SQLitePath:  getEnv("SQLITE_PATH", "billing.db"),
			Debug:       getEnvBool("DB_DEBUG", false),
		},
		Log: logger.LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "console"),
			TimeFormat: getEnv("LOG_TIME_FORMAT", logger.DefaultConfig().TimeFormat),
			Output:     getEnv("LOG_OUTPUT", "stderr"),
		},
		App: AppConfig{
			Migrations: getEnvBool("MIGRATIONS", false),
			PDFBaseURL: getEnv("PDF_BASE_URL", "/files"),
			ActorID:    uint(getEnvInt("ACTOR_ID", 0)),
		},
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings no store can be opened with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.DSNOverride == "" && c.Database.Host == "" {
			return fmt.Errorf("config: DB_HOST or DATABASE_DSN is required for postgres")
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("config: SQLITE_PATH is required for sqlite")
		}
		if c.App.Migrations {
			return fmt.Errorf("config: MIGRATIONS is only supported with postgres")
		}
	default:
		return fmt.Errorf("config: unknown DB_DRIVER %q", c.Database.Driver)
	}
	if c.Database.Port <= 0 {
		return fmt.Errorf("config: invalid DB_PORT %d", c.Database.Port)
	}
	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the integer value of an environment variable or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvBool returns the boolean value of an environment variable or a default.
// Accepts "1", "true", "yes" as true; everything else is false.
func getEnvBool(key string, defaultValue bool) bool {
	value := strings.ToLower(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value == "1" || value == "true" || value == "yes"
}
