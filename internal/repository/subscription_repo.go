package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/jodi-app/jodi-server/internal/db"
)

// SubscriptionRepository provides data access for subscriptions and payments.
type SubscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(database *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: database}
}

// ActiveForUser returns the user's current active subscription, expiring
// stale rows on the fly.
//
// Behavior:
//   - Active and cancelled rows whose paid period has run out are flipped
//     to expired and the user drops back to the free tier.
//   - A cancelled subscription still inside its paid period is not
//     returned, but the tier is kept until it runs out.
func (r *SubscriptionRepository) ActiveForUser(ctx context.Context, userID string) (*db.Subscription, error) {
	if err := r.sweepLapsed(ctx, userID); err != nil {
		return nil, err
	}
	var sub db.Subscription
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, db.SubscriptionActive).
		Order("created_at DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// sweepLapsed expires lapsed rows and resets users.subscription_tier so a
// lapsed premium user cannot keep paid features.
func (r *SubscriptionRepository) sweepLapsed(ctx context.Context, userID string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&db.Subscription{}).
			Where("user_id = ? AND status IN ? AND expires_at IS NOT NULL AND expires_at < ?",
				userID, []string{db.SubscriptionActive, db.SubscriptionCancelled}, now).
			Update("status", db.SubscriptionExpired)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		return tx.Model(&db.User{}).
			Where("id = ?", userID).
			Update("subscription_tier", "free").Error
	})
}

// Activate replaces any active subscription with a new one and bumps the
// user's tier in one transaction.
func (r *SubscriptionRepository) Activate(ctx context.Context, sub *db.Subscription) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&db.Subscription{}).
			Where("user_id = ? AND status IN ?", sub.UserID,
				[]string{db.SubscriptionActive, db.SubscriptionCancelled}).
			Update("status", db.SubscriptionExpired).Error
		if err != nil {
			return err
		}
		if err := tx.Create(sub).Error; err != nil {
			return err
		}
		return tx.Model(&db.User{}).
			Where("id = ?", sub.UserID).
			Update("subscription_tier", sub.PlanCode).Error
	})
}

// Cancel stops auto-renewal; access continues until the paid period ends.
func (r *SubscriptionRepository) Cancel(ctx context.Context, userID, reason string) error {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&db.Subscription{}).
		Where("user_id = ? AND status = ?", userID, db.SubscriptionActive).
		Updates(map[string]any{
			"status":              db.SubscriptionCancelled,
			"auto_renew":          false,
			"cancelled_at":        now,
			"cancellation_reason": reason,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DowngradeToFree expires the subscription and resets the tier, used after
// repeated payment failures.
func (r *SubscriptionRepository) DowngradeToFree(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&db.Subscription{}).
			Where("user_id = ? AND status IN ?", userID,
				[]string{db.SubscriptionActive, db.SubscriptionCancelled}).
			Update("status", db.SubscriptionExpired).Error
		if err != nil {
			return err
		}
		return tx.Model(&db.User{}).
			Where("id = ?", userID).
			Update("subscription_tier", "free").Error
	})
}

// History returns all of a user's subscriptions, newest first.
func (r *SubscriptionRepository) History(ctx context.Context, userID string) ([]db.Subscription, error) {
	var subs []db.Subscription
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&subs).Error
	return subs, err
}

func (r *SubscriptionRepository) CreatePayment(ctx context.Context, payment *db.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *SubscriptionRepository) GetPayment(ctx context.Context, id string) (*db.Payment, error) {
	var payment db.Payment
	err := r.db.WithContext(ctx).First(&payment, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// CompletePayment marks success and links the subscription it paid for.
func (r *SubscriptionRepository) CompletePayment(ctx context.Context, paymentID, subscriptionID string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&db.Payment{}).
		Where("id = ? AND status = ?", paymentID, db.PaymentPending).
		Updates(map[string]any{
			"status":          db.PaymentCompleted,
			"subscription_id": subscriptionID,
			"completed_at":    now,
		}).Error
}

func (r *SubscriptionRepository) FailPayment(ctx context.Context, paymentID, reason string) error {
	return r.db.WithContext(ctx).Model(&db.Payment{}).
		Where("id = ?", paymentID).
		Updates(map[string]any{
			"status":         db.PaymentFailed,
			"failure_reason": reason,
		}).Error
}

// CountRecentFailures counts failed payments in the retry window, used to
// decide between grace period and downgrade.
func (r *SubscriptionRepository) CountRecentFailures(ctx context.Context, userID string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&db.Payment{}).
		Where("user_id = ? AND status = ? AND created_at >= ?", userID, db.PaymentFailed, since).
		Count(&count).Error
	return count, err
}

func (r *SubscriptionRepository) Payments(ctx context.Context, userID string, limit int) ([]db.Payment, error) {
	var payments []db.Payment
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&payments).Error
	return payments, err
}
