package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/diewo77/go-immo/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TemplateStore persists one receipt template document per owner.
type TemplateStore interface {
	GetReceiptTemplate(ctx context.Context, ownerID uint) (*models.ReceiptTemplate, error)
	SaveReceiptTemplate(ctx context.Context, t *models.ReceiptTemplate) error
}

// GetReceiptTemplate returns ErrNotFound when the owner never saved one.
func (s *GormStore) GetReceiptTemplate(ctx context.Context, ownerID uint) (*models.ReceiptTemplate, error) {
	var t models.ReceiptTemplate
	err := s.db.WithContext(ctx).Where("user_id = ?", ownerID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get receipt template: %w", err)
	}
	return &t, nil
}

// SaveReceiptTemplate inserts or replaces the owner's template.
func (s *GormStore) SaveReceiptTemplate(ctx context.Context, t *models.ReceiptTemplate) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"schema_version", "document", "updated_at"}),
	}).Create(t).Error
	if err != nil {
		return fmt.Errorf("save receipt template: %w", err)
	}
	return nil
}
