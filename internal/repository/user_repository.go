package repository

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/ramcharankhv-byte/taskhub/internal/domain"
)

type UserRepository interface {
	Create(u *domain.User) error
	FindByID(id uint) (*domain.User, error)
	FindByEmail(email string) (*domain.User, error)
	FindByEmailOrUsername(email, username string) (*domain.User, error)
	FindByEmailVerificationHash(hash string, now time.Time) (*domain.User, error)
	FindByPasswordResetHash(hash string, now time.Time) (*domain.User, error)

	SetEmailVerificationToken(userID uint, hash string, expiresAt time.Time) error
	MarkEmailVerified(userID uint) error
	SetPasswordResetToken(userID uint, hash string, expiresAt time.Time) error
	ResetPassword(userID uint, passwordHash string) error
	UpdatePassword(userID uint, passwordHash string) error

	SetRefreshTokenHash(userID uint, hash *string) error
	RotateRefreshTokenHash(userID uint, oldHash, newHash string) error
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(u *domain.User) error {
	if err := r.db.Create(u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
			return ErrDuplicateUser
		}
		return err
	}
	return nil
}

func (r *userRepository) FindByID(id uint) (*domain.User, error) {
	var u domain.User
	if err := r.db.First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) FindByEmail(email string) (*domain.User, error) {
	var u domain.User
	err := r.db.Where("email = ?", normalizeEmail(email)).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) FindByEmailOrUsername(email, username string) (*domain.User, error) {
	var u domain.User
	err := r.db.
		Where("email = ? OR username = ?", normalizeEmail(email), strings.ToLower(strings.TrimSpace(username))).
		First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) FindByEmailVerificationHash(hash string, now time.Time) (*domain.User, error) {
	return r.findByTokenHash("email_verification_token_hash", "email_verification_expires_at", hash, now)
}

func (r *userRepository) FindByPasswordResetHash(hash string, now time.Time) (*domain.User, error) {
	return r.findByTokenHash("password_reset_token_hash", "password_reset_expires_at", hash, now)
}

func (r *userRepository) findByTokenHash(hashCol, expiryCol, hash string, now time.Time) (*domain.User, error) {
	var u domain.User
	err := r.db.
		Where(hashCol+" = ? AND "+expiryCol+" > ?", hash, now).
		First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// Security-field mutations are targeted column updates scoped to exactly the
// fields being changed; the full record is never re-saved.

func (r *userRepository) SetEmailVerificationToken(userID uint, hash string, expiresAt time.Time) error {
	return r.updateFields(userID, map[string]interface{}{
		"email_verification_token_hash": hash,
		"email_verification_expires_at": expiresAt,
	})
}

func (r *userRepository) MarkEmailVerified(userID uint) error {
	return r.updateFields(userID, map[string]interface{}{
		"is_email_verified":             true,
		"email_verification_token_hash": nil,
		"email_verification_expires_at": nil,
	})
}

func (r *userRepository) SetPasswordResetToken(userID uint, hash string, expiresAt time.Time) error {
	return r.updateFields(userID, map[string]interface{}{
		"password_reset_token_hash": hash,
		"password_reset_expires_at": expiresAt,
	})
}

// ResetPassword replaces the credential, consumes the reset token and revokes
// the live refresh token in one write.
func (r *userRepository) ResetPassword(userID uint, passwordHash string) error {
	return r.updateFields(userID, map[string]interface{}{
		"password_hash":             passwordHash,
		"password_reset_token_hash": nil,
		"password_reset_expires_at": nil,
		"refresh_token_hash":        nil,
	})
}

func (r *userRepository) UpdatePassword(userID uint, passwordHash string) error {
	return r.updateFields(userID, map[string]interface{}{"password_hash": passwordHash})
}

func (r *userRepository) SetRefreshTokenHash(userID uint, hash *string) error {
	return r.updateFields(userID, map[string]interface{}{"refresh_token_hash": hash})
}

// RotateRefreshTokenHash is an atomic compare-and-swap: the update only lands
// when the stored hash still equals oldHash, so of two concurrent refreshes
// presenting the same token at most one succeeds.
func (r *userRepository) RotateRefreshTokenHash(userID uint, oldHash, newHash string) error {
	res := r.db.Model(&domain.User{}).
		Where("id = ? AND refresh_token_hash = ?", userID, oldHash).
		Update("refresh_token_hash", newHash)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRefreshTokenMismatch
	}
	return nil
}

func (r *userRepository) updateFields(userID uint, fields map[string]interface{}) error {
	res := r.db.Model(&domain.User{}).Where("id = ?", userID).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
