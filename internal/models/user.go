package models

import (
	"strings"

	"gorm.io/gorm"

	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/utils"
)

// User is the minimal identity the booking core needs: who somebody is and
// which role they act in. Registration, KYC and document verification live
// upstream.
type User struct {
	gorm.Model

	UserID   string `json:"user_id" gorm:"uniqueIndex"`
	Name     string `json:"name"`
	Phone    string `json:"phone" gorm:"uniqueIndex"`
	Role     string `json:"role"` // "driver", "customer" or "admin"
	IsActive bool   `json:"is_active" gorm:"default:true"`
}

// BeforeCreate generates the UserID and normalizes the phone number.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.UserID == "" {
		u.UserID = utils.GenerateSecureID("USR")
	}
	u.Phone = NormalizePhone(u.Phone)
	return nil
}

// NormalizePhone prefixes bare Indian numbers with +91 so lookups match no
// matter which form the caller typed.
func NormalizePhone(phone string) string {
	if phone == "" || strings.HasPrefix(phone, "+") {
		return phone
	}
	return "+91" + strings.TrimPrefix(phone, "91")
}

// Actor is the caller identity resolved once by the auth middleware and
// passed unchanged into the core. Core code never re-fetches user types.
type Actor struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// IsAdmin reports whether the actor carries the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// UserRegistration is the payload for creating a user.
type UserRegistration struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Role  string `json:"role"`
}
