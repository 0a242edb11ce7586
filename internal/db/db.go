// Package db opens the database, applies migrations and seeds reference data.
package db

import (
	"fmt"
	"log"
	"time"

	"github.com/diewo77/go-immo/internal/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const openAttempts = 10

// Open connects with retries so the app survives a database that starts
// after it (docker compose).
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		log.Printf("Connecting to database: sqlite path=%s", cfg.SQLitePath)
		dialector = sqlite.Open(cfg.SQLitePath)
	case "postgres", "":
		log.Printf("Connecting to database: host=%s port=%d dbname=%s user=%s",
			cfg.Host, cfg.Port, cfg.DBName, cfg.User)
		dialector = postgres.Open(cfg.DSN())
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Driver)
	}

	logLevel := logger.Silent
	if cfg.Debug {
		logLevel = logger.Info
	}
	gcfg := &gorm.Config{Logger: logger.Default.LogMode(logLevel)}

	var (
		conn *gorm.DB
		err  error
	)
	for i := 0; i < openAttempts; i++ {
		conn, err = gorm.Open(dialector, gcfg)
		if err == nil {
			err = conn.Exec("SELECT 1").Error
		}
		if err == nil {
			return conn, nil
		}
		log.Printf("db connection attempt %d/%d failed: %v", i+1, openAttempts, err)
		time.Sleep(2 * time.Second)
	}
	return nil, fmt.Errorf("failed to connect database after retries: %w", err)
}
