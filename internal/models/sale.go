package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentMode describes how a sale is settled.
type PaymentMode string

const (
	PaymentModeCash        PaymentMode = "comptant"
	PaymentModeInstallment PaymentMode = "echelonne"
)

// Buyer is the acquéreur of a sale.
type Buyer struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	UserID uint   `gorm:"index;not null" json:"user_id"`
	Name   string `gorm:"size:255;not null" json:"name"`
	Phone  string `gorm:"size:50" json:"phone,omitempty"`
	Email  string `gorm:"size:255" json:"email,omitempty"`
}

// GetUserID implements policy.Ownable.
func (b *Buyer) GetUserID() uint { return b.UserID }

// PropertyListing is a property offered for sale, usually a parcelle inside
// a lotissement.
type PropertyListing struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	UserID      uint            `gorm:"index;not null" json:"user_id"`
	Title       string          `gorm:"size:255;not null" json:"title"`
	Reference   string          `gorm:"size:100" json:"reference,omitempty"`
	Lotissement string          `gorm:"size:255" json:"lotissement,omitempty"`
	Parcelle    string          `gorm:"size:100" json:"parcelle,omitempty"`
	Price       decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"price"`
}

// GetUserID implements policy.Ownable.
func (p *PropertyListing) GetUserID() uint { return p.UserID }

// Sale links a property to its buyer. Installment-based sales own a payment
// schedule created when the sale is registered.
type Sale struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	UserID uint `gorm:"index;not null" json:"user_id"`

	PropertyID uint             `gorm:"index;not null" json:"property_id"`
	Property   *PropertyListing `gorm:"foreignKey:PropertyID" json:"property,omitempty"`
	BuyerID    uint             `gorm:"index;not null" json:"buyer_id"`
	Buyer      *Buyer           `gorm:"foreignKey:BuyerID" json:"buyer,omitempty"`

	SaleDate    time.Time       `gorm:"type:date;not null" json:"sale_date"`
	TotalPrice  decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"total_price"`
	PaymentMode PaymentMode     `gorm:"size:20;not null;default:'echelonne'" json:"payment_mode"`

	Installments []Installment `gorm:"foreignKey:SaleID" json:"installments,omitempty"`
}

// GetUserID implements policy.Ownable.
func (s *Sale) GetUserID() uint { return s.UserID }
