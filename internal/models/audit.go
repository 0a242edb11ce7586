package models

import "time"

// AuditLog records who changed which entity.
type AuditLog struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"index" json:"user_id"`
	EntityType string    `gorm:"size:50;index:idx_audit_entity" json:"entity_type"` // ex: "installment"
	EntityID   uint      `gorm:"index:idx_audit_entity" json:"entity_id"`
	Action     string    `gorm:"size:50" json:"action"` // ex: "pay"
	Field      string    `gorm:"size:50" json:"field,omitempty"`
	OldValue   string    `gorm:"size:255" json:"old_value,omitempty"`
	NewValue   string    `gorm:"size:255" json:"new_value,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
