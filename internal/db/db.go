// Package db opens the billing store and applies its schema.
package db

import (
	"fmt"
	"time"

	"github.com/diewo77/go-billing/internal/config"
	"github.com/diewo77/go-billing/internal/logger"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	connectAttempts = 5
	connectBackoff  = 2 * time.Second
)

// Open connects to the configured store. PostgreSQL connections are retried
// while the server starts up.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	log := logger.WithComponent("db")

	level := gormlogger.Silent
	if cfg.Debug {
		level = gormlogger.Info
	}
	gcfg := &gorm.Config{
		Logger:         gormlogger.Default.LogMode(level),
		TranslateError: true,
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		log.Info().Str("path", cfg.SQLitePath).Msg("opening sqlite store")
		conn, err := gorm.Open(sqlite.Open(cfg.SQLitePath+"?_foreign_keys=on"), gcfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
		}
		return conn, nil
	case "postgres":
		dsn := NormalizeDSN(cfg.DSN())
		log.Info().Str("dsn", MaskDSN(dsn)).Msg("connecting to postgres")
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}

	var (
		conn *gorm.DB
		err  error
	)
	for i := 1; i <= connectAttempts; i++ {
		conn, err = gorm.Open(dialector, gcfg)
		if err == nil {
			err = conn.Exec("SELECT 1").Error
		}
		if err == nil {
			return conn, nil
		}
		log.Warn().Err(err).Int("attempt", i).Int("of", connectAttempts).Msg("database not ready, retrying")
		if i < connectAttempts {
			time.Sleep(connectBackoff)
		}
	}
	return nil, fmt.Errorf("connect database after %d attempts: %w", connectAttempts, err)
}
