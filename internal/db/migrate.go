package db

import (
	"errors"
	"fmt"

	"github.com/diewo77/go-immo/internal/models"
	migrate "github.com/golang-migrate/migrate/v4"
	// register the postgres driver and file source for golang-migrate
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"gorm.io/gorm"
)

// Migrate runs AutoMigrate for all models.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		// Auth & Authorization
		&models.User{},
		&models.Profile{},
		&models.Permission{},
		// Sales
		&models.Buyer{},
		&models.PropertyListing{},
		&models.Sale{},
		&models.Installment{},
		// Settings & history
		&models.ReceiptTemplate{},
		&models.AuditLog{},
	); err != nil {
		return err
	}
	for _, table := range []string{"users", "profiles", "echeances_ventes", "receipt_templates"} {
		if !db.Migrator().HasTable(table) {
			return errors.New("missing table after migration: " + table)
		}
	}
	return nil
}

// RunSQLMigrations applies ./migrations through golang-migrate. url is a
// postgres:// connection URL.
func RunSQLMigrations(dir, url string) error {
	if dir == "" {
		dir = "migrations"
	}
	m, err := migrate.New("file://"+dir, url)
	if err != nil {
		return fmt.Errorf("open sql migrations: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply sql migrations: %w", err)
	}
	return nil
}
