package db

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/diewo77/go-immo/auth"
	"github.com/diewo77/go-immo/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var permissionSeeds = []struct {
	ResourceType string
	Action       string
	Description  string
}{
	{"*", "*", "Full system access"},
	{"echeance", "*", "All installment actions"},
	{"echeance", "list", "List installments"},
	{"echeance", "view", "View installment details and receipts"},
	{"echeance", "pay", "Record installment payments"},
	{"echeance", "remind", "Send payment reminders"},
	{"receipt_template", "*", "All receipt template actions"},
	{"receipt_template", "view", "View the receipt template"},
	{"receipt_template", "update", "Edit the receipt template"},
}

var profileSeeds = []struct {
	Name        string
	Description string
	Permissions []string
}{
	{"admin", "Agency administrator with all permissions", []string{"*:*"}},
	{"agent", "Records payments and follows up on late installments", []string{
		"echeance:*",
		"receipt_template:view",
	}},
	{"viewer", "Read-only access to installments", []string{
		"echeance:list",
		"echeance:view",
		"receipt_template:view",
	}},
}

// SeedPermissions creates the permission rows, skipping existing ones.
func SeedPermissions(db *gorm.DB) error {
	for _, p := range permissionSeeds {
		perm := models.Permission{ResourceType: p.ResourceType, Action: p.Action, Description: p.Description}
		if err := db.Where("resource_type = ? AND action = ?", p.ResourceType, p.Action).
			FirstOrCreate(&perm).Error; err != nil {
			return fmt.Errorf("seed permission %s:%s: %w", p.ResourceType, p.Action, err)
		}
	}
	return nil
}

// SeedProfiles creates the system profiles and resets their permissions.
func SeedProfiles(db *gorm.DB) error {
	if err := SeedPermissions(db); err != nil {
		return err
	}
	for _, p := range profileSeeds {
		profile := models.Profile{Name: p.Name, Description: p.Description, IsSystem: true}
		if err := db.Where("name = ?", p.Name).FirstOrCreate(&profile).Error; err != nil {
			return fmt.Errorf("seed profile %s: %w", p.Name, err)
		}
		var perms []models.Permission
		for _, code := range p.Permissions {
			resource, action, _ := strings.Cut(code, ":")
			var perm models.Permission
			if err := db.Where("resource_type = ? AND action = ?", resource, action).First(&perm).Error; err == nil {
				perms = append(perms, perm)
			}
		}
		if err := db.Model(&profile).Association("Permissions").Replace(perms); err != nil {
			return fmt.Errorf("seed profile %s permissions: %w", p.Name, err)
		}
	}
	return nil
}

// SeedAdmin creates an admin user for email when none exists. An existing
// user keeps its password.
func SeedAdmin(db *gorm.DB, email, password, agency string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, nil
	}
	var admin models.Profile
	if err := db.Where("name = ?", "admin").First(&admin).Error; err != nil {
		return nil, fmt.Errorf("admin profile: %w", err)
	}
	var user models.User
	err := db.Where("email = ?", email).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if password == "" {
		return nil, errors.New("SEED_ADMIN_PASSWORD is required to create the admin user")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	user = models.User{Email: email, Name: "Administrateur", Password: hash, AgencyName: agency, ProfileID: &admin.ID}
	if err := db.Create(&user).Error; err != nil {
		return nil, fmt.Errorf("create admin: %w", err)
	}
	return &user, nil
}

// Seed initializes the database with required seed data.
// Should be called after Migrate.
func Seed(db *gorm.DB) error {
	return SeedProfiles(db)
}

// SeedDemo adds one installment sale around today for ownerID when the
// owner has no sale yet. Used in dev mode only.
func SeedDemo(db *gorm.DB, ownerID uint, today time.Time) error {
	var count int64
	if err := db.Model(&models.Sale{}).Where("user_id = ?", ownerID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	return db.Transaction(func(tx *gorm.DB) error {
		buyer := models.Buyer{UserID: ownerID, Name: "Aïssatou Diop", Phone: "+221 77 123 45 67", Email: "aissatou@example.com"}
		if err := tx.Create(&buyer).Error; err != nil {
			return err
		}
		property := models.PropertyListing{UserID: ownerID, Title: "Parcelle 12 - Cité Keur Gorgui", Reference: "LOT-A-12",
			Lotissement: "Keur Gorgui", Parcelle: "12", Price: decimal.NewFromInt(3400000)}
		if err := tx.Create(&property).Error; err != nil {
			return err
		}
		sale := models.Sale{UserID: ownerID, PropertyID: property.ID, BuyerID: buyer.ID, SaleDate: day.AddDate(0, -2, 0),
			TotalPrice: property.Price, PaymentMode: models.PaymentModeInstallment}
		if err := tx.Create(&sale).Error; err != nil {
			return err
		}
		offsets := []int{-40, -5, 0, 4, 20, 45}
		for i, off := range offsets {
			inst := models.Installment{UserID: ownerID, SaleID: sale.ID, Number: i + 1,
				DueDate: day.AddDate(0, 0, off), Amount: decimal.NewFromInt(850000), Status: models.InstallmentPending}
			if err := tx.Create(&inst).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
