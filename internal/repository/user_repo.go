// Package repository contains the data access layer. Every method takes a
// context and scopes the gorm session with WithContext; business rules live
// one layer up in the services.
package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/jodi-app/jodi-server/internal/db"
)

// UserRepository handles account rows and the transactional pieces of
// registration.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(database *gorm.DB) *UserRepository {
	return &UserRepository{db: database}
}

// CreateWithProfile inserts the user, an initial profile and default
// preferences in one transaction so a half-registered account never exists.
func (r *UserRepository) CreateWithProfile(ctx context.Context, user *db.User, profile *db.Profile) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		profile.UserID = user.ID
		if err := tx.Create(profile).Error; err != nil {
			return err
		}
		prefs := &db.UserPreference{UserID: user.ID}
		return tx.Create(prefs).Error
	})
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*db.User, error) {
	var user db.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*db.User, error) {
	var user db.User
	err := r.db.WithContext(ctx).First(&user, "email = ?", email).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// EmailOrPhoneExists is the pre-registration uniqueness check.
func (r *UserRepository) EmailOrPhoneExists(ctx context.Context, email, phone string) (bool, error) {
	var count int64
	q := r.db.WithContext(ctx).Model(&db.User{}).Where("email = ?", email)
	if phone != "" {
		q = r.db.WithContext(ctx).Model(&db.User{}).
			Where("email = ? OR phone = ?", email, phone)
	}
	err := q.Count(&count).Error
	return count > 0, err
}

// RecordLogin stamps last_login_at and clears the failed attempt counter.
func (r *UserRepository) RecordLogin(ctx context.Context, userID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&db.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"last_login_at":         at,
			"failed_login_attempts": 0,
		}).Error
}

// RecordFailedLogin bumps the counter and returns the new value.
func (r *UserRepository) RecordFailedLogin(ctx context.Context, userID string) (int, error) {
	err := r.db.WithContext(ctx).Model(&db.User{}).
		Where("id = ?", userID).
		UpdateColumn("failed_login_attempts", gorm.Expr("failed_login_attempts + 1")).Error
	if err != nil {
		return 0, err
	}
	var user db.User
	if err := r.db.WithContext(ctx).Select("failed_login_attempts").First(&user, "id = ?", userID).Error; err != nil {
		return 0, err
	}
	return user.FailedLoginAttempts, nil
}

// Lock blocks sign-in until the given time and resets the failure counter.
func (r *UserRepository) Lock(ctx context.Context, userID string, until time.Time) error {
	return r.db.WithContext(ctx).Model(&db.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{"locked_until": until, "failed_login_attempts": 0}).Error
}

func (r *UserRepository) SetPassword(ctx context.Context, userID, hash string) error {
	return r.db.WithContext(ctx).Model(&db.User{}).
		Where("id = ?", userID).
		Update("password_hash", hash).Error
}

func (r *UserRepository) SetPhoneVerified(ctx context.Context, userID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&db.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{"phone_verified_at": at, "is_verified": true}).Error
}

// SetTier moves a user between subscription tiers.
func (r *UserRepository) SetTier(ctx context.Context, userID, tier string) error {
	return r.db.WithContext(ctx).Model(&db.User{}).
		Where("id = ?", userID).
		Update("subscription_tier", tier).Error
}

// Deactivate soft-deletes the account and hides the profile.
func (r *UserRepository) Deactivate(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&db.User{}).Where("id = ?", userID).Update("is_active", false).Error; err != nil {
			return err
		}
		err := tx.Model(&db.Profile{}).Where("user_id = ?", userID).Update("is_visible", false).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Delete(&db.User{}, "id = ?", userID).Error
	})
}
