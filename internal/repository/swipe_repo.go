package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/jodi-app/jodi-server/internal/db"
	"github.com/jodi-app/jodi-server/internal/utils/pagination"
)

// SwipeRepository provides data access for swipe decisions.
type SwipeRepository struct {
	db *gorm.DB
}

func NewSwipeRepository(database *gorm.DB) *SwipeRepository {
	return &SwipeRepository{db: database}
}

// Create inserts a swipe. The unique (swiper_id, swiped_id) index rejects a
// second decision on the same pair; the caller maps that to a conflict.
func (r *SwipeRepository) Create(ctx context.Context, swipe *db.Swipe) error {
	return r.db.WithContext(ctx).Create(swipe).Error
}

// Get returns the swipe from swiper to swiped, if any.
func (r *SwipeRepository) Get(ctx context.Context, swiperID, swipedID string) (*db.Swipe, error) {
	var swipe db.Swipe
	err := r.db.WithContext(ctx).
		First(&swipe, "swiper_id = ? AND swiped_id = ?", swiperID, swipedID).Error
	if err != nil {
		return nil, err
	}
	return &swipe, nil
}

// HasLiked reports whether swiper liked (or superliked) swiped. Used for the
// mutual-like check on every like.
func (r *SwipeRepository) HasLiked(ctx context.Context, swiperID, swipedID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&db.Swipe{}).
		Where("swiper_id = ? AND swiped_id = ? AND action IN ?",
			swiperID, swipedID, []string{db.ActionLike, db.ActionSuperlike}).
		Count(&count).Error
	return count > 0, err
}

// CountLikesReceived counts likes on a user, excluding likers the user has
// already passed on. Backs the Redis like counter on cache miss.
func (r *SwipeRepository) CountLikesReceived(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Table("swipes s").
		Where("s.swiped_id = ? AND s.action IN ?", userID, []string{db.ActionLike, db.ActionSuperlike}).
		Where(`NOT EXISTS (
			SELECT 1 FROM swipes s2
			WHERE s2.swiper_id = ?
			  AND s2.swiped_id = s.swiper_id
			  AND s2.action = ?
		)`, userID, db.ActionDislike).
		Count(&count).Error
	return count, err
}

// ListLikers returns users who liked userID and are not yet matched with
// them, newest first with cursor pagination.
func (r *SwipeRepository) ListLikers(
	ctx context.Context,
	userID string,
	cursorToken string,
	limit int,
) ([]db.Swipe, string, error) {
	cursor, err := pagination.Decode(cursorToken)
	if err != nil {
		return nil, "", err
	}

	mutual := r.db.
		Table("swipes").
		Select("1").
		Where("swiper_id = s.swiped_id AND swiped_id = s.swiper_id AND action IN ?",
			[]string{db.ActionLike, db.ActionSuperlike})

	query := r.db.WithContext(ctx).
		Table("swipes s").
		Where("s.swiped_id = ? AND s.action IN ?", userID, []string{db.ActionLike, db.ActionSuperlike}).
		Where("NOT EXISTS (?)", mutual).
		Where(`NOT EXISTS (
			SELECT 1 FROM swipes s2
			WHERE s2.swiper_id = ?
			  AND s2.swiped_id = s.swiper_id
			  AND s2.action = ?
		)`, userID, db.ActionDislike).
		Order("s.created_at DESC, s.id DESC").
		Limit(limit + 1)

	if !cursor.IsZero() {
		ts := cursor.CreatedAt()
		query = query.Where(
			"(s.created_at < ? OR (s.created_at = ? AND s.id < ?))",
			ts, ts, cursor.LastID,
		)
	}

	var swipes []db.Swipe
	if err := query.Find(&swipes).Error; err != nil {
		return nil, "", err
	}

	var next string
	if len(swipes) > limit {
		last := swipes[limit-1]
		next = pagination.Encode(pagination.From(last.ID, last.CreatedAt))
		swipes = swipes[:limit]
	}
	return swipes, next, nil
}

// CountSince counts swipes a user made at or after a cutoff. Backs the
// daily quota when Redis has no counter yet.
func (r *SwipeRepository) CountSince(ctx context.Context, swiperID string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&db.Swipe{}).
		Where("swiper_id = ? AND created_at >= ?", swiperID, since).
		Count(&count).Error
	return count, err
}

// CountSuperlikesSince counts superlikes since a cutoff, for the per-day
// superlike quota.
func (r *SwipeRepository) CountSuperlikesSince(ctx context.Context, swiperID string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&db.Swipe{}).
		Where("swiper_id = ? AND action = ? AND created_at >= ?", swiperID, db.ActionSuperlike, since).
		Count(&count).Error
	return count, err
}
