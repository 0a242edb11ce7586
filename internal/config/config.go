// Package config provides application configuration loaded from environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	App      AppConfig
	Redis    RedisConfig
	Schedule ScheduleConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string
	ReadTimeout  int // seconds
	WriteTimeout int // seconds
	IdleTimeout  int // seconds
}

// DatabaseConfig holds connection settings for postgres or sqlite.
type DatabaseConfig struct {
	Driver     string
	Host       string
	Port       int
	User       string
	Password   string
	DBName     string
	SSLMode    string
	SQLitePath string
	Debug      bool
}

// Migration modes.
const (
	MigrateAuto = "auto"
	MigrateSQL  = "sql"
	MigrateOff  = "off"
)

// AppConfig holds application-level settings.
type AppConfig struct {
	Dev            bool
	Migrations     string
	Timezone       string
	CORSOrigins    []string
	SessionSecret  string
	SeedAdminEmail string
	SeedAdminPass  string
	AgencyName     string
}

// RedisConfig enables the shared payment guard when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ScheduleConfig holds the installment day thresholds.
type ScheduleConfig struct {
	SoonDays     int
	UpcomingDays int
	CriticalDays int
	InflightTTL  time.Duration
}

// DSN returns the PostgreSQL connection string in key=value format.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// URL returns the connection URL golang-migrate expects.
func (d DatabaseConfig) URL() string {
	if d.Driver == "sqlite" {
		return "sqlite3://" + filepath.ToSlash(d.SQLitePath)
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// Load reads configuration from environment variables.
// It uses sensible defaults for local development.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getEnvInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvInt("SERVER_WRITE_TIMEOUT", 15),
			IdleTimeout:  getEnvInt("SERVER_IDLE_TIMEOUT", 60),
		},
		Database: DatabaseConfig{
			Driver:     strings.ToLower(getEnv("DB_DRIVER", "postgres")),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnvInt("DB_PORT", 5432),
			User:       getEnv("DB_USER", "immo"),
			Password:   getEnv("DB_PASSWORD", "immo123"),
			DBName:     getEnv("DB_NAME", "immo"),
			SSLMode:    getEnv("DB_SSLMODE", "disable"),
			SQLitePath: getEnv("SQLITE_PATH", "immo.db"),
			Debug:      getEnvBool("DB_DEBUG", false),
		},
		App: AppConfig{
			Dev:            getEnvBool("DEV", true),
			Migrations:     migrationMode(getEnv("MIGRATIONS", MigrateAuto)),
			Timezone:       getEnv("APP_TIMEZONE", "Africa/Dakar"),
			CORSOrigins:    getEnvList("CORS_ORIGINS"),
			SessionSecret:  os.Getenv("SESSION_SECRET"),
			SeedAdminEmail: os.Getenv("SEED_ADMIN_EMAIL"),
			SeedAdminPass:  os.Getenv("SEED_ADMIN_PASSWORD"),
			AgencyName:     getEnv("AGENCY_NAME", "Agence"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Schedule: ScheduleConfig{
			SoonDays:     getEnvInt("ECHEANCE_SOON_DAYS", 7),
			UpcomingDays: getEnvInt("ECHEANCE_UPCOMING_DAYS", 30),
			CriticalDays: getEnvInt("ECHEANCE_CRITICAL_DAYS", 30),
			InflightTTL:  time.Duration(getEnvInt("INFLIGHT_TTL_SECONDS", 30)) * time.Second,
		},
	}
}

// migrationMode maps legacy boolean values onto the named modes.
func migrationMode(v string) string {
	switch strings.ToLower(v) {
	case MigrateSQL:
		return MigrateSQL
	case MigrateOff, "0", "false", "no":
		return MigrateOff
	default:
		return MigrateAuto
	}
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
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "1" || value == "true" || value == "yes"
}

func getEnvList(key string) []string {
	var out []string
	for _, p := range strings.Split(os.Getenv(key), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
