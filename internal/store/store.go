// Package store persists installments and receipt templates through gorm.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diewo77/go-immo/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict means no pending row matched the expected version:
	// the installment was paid or modified since it was read.
	ErrVersionConflict = errors.New("installment changed since it was read")
)

// Filter scopes installment listings. Zero fields are ignored except
// OwnerID, which is always applied.
type Filter struct {
	OwnerID uint
	SaleID  uint
}

// PaymentUpdate is the write half of recording a payment.
type PaymentUpdate struct {
	ID              uint
	ExpectedVersion int
	PaidDate        time.Time
	PaidAmount      decimal.Decimal
	PaymentMethod   string
	ReceiptNumber   string
	ActorID         uint
}

type InstallmentReader interface {
	ListInstallments(ctx context.Context, f Filter) ([]models.Installment, error)
	GetInstallment(ctx context.Context, id uint) (*models.Installment, error)
}

type InstallmentWriter interface {
	MarkPaid(ctx context.Context, u PaymentUpdate) (*models.Installment, error)
}

type InstallmentStore interface {
	InstallmentReader
	InstallmentWriter
}

// GormStore implements InstallmentStore and TemplateStore.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) withSale(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Preload("Sale.Property").Preload("Sale.Buyer")
}

func (s *GormStore) ListInstallments(ctx context.Context, f Filter) ([]models.Installment, error) {
	q := s.withSale(ctx).Where("user_id = ?", f.OwnerID)
	if f.SaleID != 0 {
		q = q.Where("sale_id = ?", f.SaleID)
	}
	var items []models.Installment
	if err := q.Order("due_date ASC, id ASC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list installments: %w", err)
	}
	return items, nil
}

func (s *GormStore) GetInstallment(ctx context.Context, id uint) (*models.Installment, error) {
	var inst models.Installment
	err := s.withSale(ctx).First(&inst, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get installment %d: %w", id, err)
	}
	return &inst, nil
}

// MarkPaid moves a pending installment to paid in one transaction together
// with its audit rows. The update only matches the pending row at
// ExpectedVersion, so two concurrent writers cannot both succeed. The
// returned row is read inside the transaction: an error always means
// nothing was written.
func (s *GormStore) MarkPaid(ctx context.Context, u PaymentUpdate) (*models.Installment, error) {
	paidDate := time.Date(u.PaidDate.Year(), u.PaidDate.Month(), u.PaidDate.Day(), 0, 0, 0, 0, time.UTC)
	var updated models.Installment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Installment{}).
			Where("id = ? AND status = ? AND version = ?", u.ID, models.InstallmentPending, u.ExpectedVersion).
			Updates(map[string]any{
				"status":         models.InstallmentPaid,
				"paid_date":      paidDate,
				"paid_amount":    u.PaidAmount,
				"payment_method": u.PaymentMethod,
				"receipt_number": u.ReceiptNumber,
				"version":        gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			return fmt.Errorf("update installment %d: %w", u.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.Installment{}).Where("id = ?", u.ID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrNotFound
			}
			return ErrVersionConflict
		}
		logs := []models.AuditLog{
			{UserID: u.ActorID, EntityType: "installment", EntityID: u.ID, Action: "pay", Field: "status",
				OldValue: string(models.InstallmentPending), NewValue: string(models.InstallmentPaid)},
			{UserID: u.ActorID, EntityType: "installment", EntityID: u.ID, Action: "pay", Field: "paid_amount",
				NewValue: u.PaidAmount.String()},
			{UserID: u.ActorID, EntityType: "installment", EntityID: u.ID, Action: "pay", Field: "receipt_number",
				NewValue: u.ReceiptNumber},
		}
		if err := tx.Create(&logs).Error; err != nil {
			return fmt.Errorf("audit installment %d: %w", u.ID, err)
		}
		if err := tx.Preload("Sale.Property").Preload("Sale.Buyer").First(&updated, u.ID).Error; err != nil {
			return fmt.Errorf("reload installment %d: %w", u.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}
