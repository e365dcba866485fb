package domain

import "time"

type User struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	Email        string `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Username     string `gorm:"uniqueIndex;size:64;not null" json:"username"`
	PasswordHash string `gorm:"size:128;not null" json:"-"`

	IsEmailVerified bool `gorm:"not null;default:false" json:"is_email_verified"`

	// One-time token trace: only the SHA-256 hash and the absolute expiry are
	// ever stored. The plain value goes out once, inside the emailed link.
	EmailVerificationTokenHash *string    `gorm:"size:128;index" json:"-"`
	EmailVerificationExpiresAt *time.Time `json:"-"`
	PasswordResetTokenHash     *string    `gorm:"size:128;index" json:"-"`
	PasswordResetExpiresAt     *time.Time `json:"-"`

	// At most one live refresh token per user. Stored peppered-hashed so a DB
	// leak cannot be replayed; rotated on login/refresh, cleared on logout.
	RefreshTokenHash *string `gorm:"size:128" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
