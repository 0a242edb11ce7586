package models

import "time"

// ReceiptTemplate stores one agency's receipt customization as a versioned
// JSON document. The receipt package owns the document schema.
type ReceiptTemplate struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	UserID        uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	SchemaVersion int       `gorm:"not null;default:1" json:"schema_version"`
	Document      string    `gorm:"type:text;not null" json:"document"`
}

// GetUserID implements policy.Ownable.
func (t *ReceiptTemplate) GetUserID() uint { return t.UserID }
