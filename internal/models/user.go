package models

import (
	"time"

	"github.com/iudanet/taskhub/internal/rbac"
)

// User представляет учетную запись в системе
type User struct {
	ResetExpiresAt     *time.Time `json:"-"`
	OTPExpiresAt       *time.Time `json:"-"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	Email              string     `json:"email"` // unique, lower-cased
	PasswordHash       string     `json:"-"`     // bcrypt
	Role               rbac.Role  `json:"role"`
	ResetTokenHash     string     `json:"-"` // sha256 hex of the reset secret
	OTPHash            string     `json:"-"` // sha256 hex of the verification code
	Verified           bool       `json:"verified"`
	MustChangePassword bool       `json:"must_change_password"`
}

// Profile is the subset of account data exposed to clients and the page bridge
type Profile struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Email              string    `json:"email"`
	Role               rbac.Role `json:"role"`
	MustChangePassword bool      `json:"must_change_password"`
}

// Profile projects the user onto its public fields
func (u *User) Profile() Profile {
	return Profile{
		ID:                 u.ID,
		Name:               u.Name,
		Email:              u.Email,
		Role:               u.Role,
		MustChangePassword: u.MustChangePassword,
	}
}
