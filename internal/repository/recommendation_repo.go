package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jodi-app/jodi-server/internal/db"
)

// RecommendationRepository stores scored candidate lists produced by the
// matching agent.
type RecommendationRepository struct {
	db *gorm.DB
}

func NewRecommendationRepository(database *gorm.DB) *RecommendationRepository {
	return &RecommendationRepository{db: database}
}

// UpsertBatch refreshes scores for a recommendation run. Re-scoring an
// existing pair overwrites the score and reason rather than duplicating.
func (r *RecommendationRepository) UpsertBatch(ctx context.Context, recs []db.Recommendation) error {
	if len(recs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "recommended_user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"compatibility", "reason", "common_interests"}),
		}).
		Create(&recs).Error
}

// ListFresh returns un-acted-on recommendations, best score first.
func (r *RecommendationRepository) ListFresh(ctx context.Context, userID string, limit int) ([]db.Recommendation, error) {
	var recs []db.Recommendation
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND user_action = ''", userID).
		Order("compatibility DESC").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}

func (r *RecommendationRepository) MarkShown(ctx context.Context, userID string, recommendedIDs []string) error {
	if len(recommendedIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&db.Recommendation{}).
		Where("user_id = ? AND recommended_user_id IN ?", userID, recommendedIDs).
		Update("shown_to_user", true).Error
}

// RecordAction notes what the user did with a recommendation so future runs
// can weigh the feedback.
func (r *RecommendationRepository) RecordAction(ctx context.Context, userID, recommendedID, action string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&db.Recommendation{}).
		Where("user_id = ? AND recommended_user_id = ?", userID, recommendedID).
		Updates(map[string]any{"user_action": action, "action_at": now}).Error
}
