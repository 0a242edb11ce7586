package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InstallmentStatus is the persisted payment state of an échéance.
type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "pending"
	InstallmentPaid    InstallmentStatus = "paid"
)

// ErrInstallmentInvariant is returned by CheckInvariant.
var ErrInstallmentInvariant = errors.New("installment paid fields inconsistent with status")

// Installment is one scheduled partial payment of a sale (échéance de vente).
// Rows are created with the sale and only ever move from pending to paid.
type Installment struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	// UserID is the agency owner, copied from the sale for ownership checks.
	UserID uint  `gorm:"index;not null" json:"user_id"`
	SaleID uint  `gorm:"index;not null" json:"sale_id"`
	Sale   *Sale `gorm:"foreignKey:SaleID" json:"sale,omitempty"`

	Number  int               `gorm:"default:0" json:"number"`
	DueDate time.Time         `gorm:"type:date;not null;index" json:"due_date"`
	Amount  decimal.Decimal   `gorm:"type:numeric(14,2);not null" json:"amount"`
	Status  InstallmentStatus `gorm:"size:20;not null;default:'pending';index" json:"status"`

	PaidDate      *time.Time       `gorm:"type:date" json:"paid_date,omitempty"`
	PaidAmount    *decimal.Decimal `gorm:"type:numeric(14,2)" json:"paid_amount,omitempty"`
	PaymentMethod string           `gorm:"size:50" json:"payment_method,omitempty"`
	ReceiptNumber string           `gorm:"size:64;index" json:"receipt_number,omitempty"`

	// Version is bumped on every write and guards concurrent payment recording.
	Version int `gorm:"not null;default:0" json:"version"`
}

// TableName keeps the historical table name used by the agency backend.
func (Installment) TableName() string {
	return "echeances_ventes"
}

// GetUserID implements policy.Ownable.
func (i *Installment) GetUserID() uint { return i.UserID }

// IsPaid reports whether the installment has been settled.
func (i *Installment) IsPaid() bool {
	return i.Status == InstallmentPaid
}

// CheckInvariant verifies that paid fields are set exactly when the
// installment is paid.
func (i *Installment) CheckInvariant() error {
	hasPaid := i.PaidDate != nil && i.PaidAmount != nil
	hasAny := i.PaidDate != nil || i.PaidAmount != nil
	switch i.Status {
	case InstallmentPaid:
		if !hasPaid {
			return ErrInstallmentInvariant
		}
	case InstallmentPending:
		if hasAny {
			return ErrInstallmentInvariant
		}
	default:
		return ErrInstallmentInvariant
	}
	return nil
}

// PropertyTitle returns the title of the sold property when preloaded.
func (i *Installment) PropertyTitle() string {
	if i.Sale == nil || i.Sale.Property == nil {
		return ""
	}
	return i.Sale.Property.Title
}

// BuyerName returns the buyer name when preloaded.
func (i *Installment) BuyerName() string {
	if i.Sale == nil || i.Sale.Buyer == nil {
		return ""
	}
	return i.Sale.Buyer.Name
}

// BuyerPhone returns the buyer phone when preloaded.
func (i *Installment) BuyerPhone() string {
	if i.Sale == nil || i.Sale.Buyer == nil {
		return ""
	}
	return i.Sale.Buyer.Phone
}
