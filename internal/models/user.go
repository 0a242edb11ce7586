package models

import (
	"time"

	"gorm.io/gorm"
)

// User is an agency team member. Installments, sales and the receipt
// template are scoped to the agency owner through UserID columns.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
	Email     string         `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Name      string         `gorm:"size:255" json:"name,omitempty"`
	Password  string         `gorm:"size:255;not null" json:"-"`
	// AgencyName is printed on receipts as the issuing agency.
	AgencyName string `gorm:"size:255" json:"agency_name,omitempty"`
	// ProfileID is nil for members that have not been granted any access yet.
	ProfileID *uint    `gorm:"index" json:"profile_id,omitempty"`
	Profile   *Profile `gorm:"foreignKey:ProfileID" json:"profile,omitempty"`
	// AgencyOwnerID points members at the user owning their agency's data.
	// It is nil for agency owners.
	AgencyOwnerID *uint `gorm:"index" json:"agency_owner_id,omitempty"`
}

// AgencyID is the owner ID the user's installments are stored under.
func (u *User) AgencyID() uint {
	if u.AgencyOwnerID != nil && *u.AgencyOwnerID != 0 {
		return *u.AgencyOwnerID
	}
	return u.ID
}
