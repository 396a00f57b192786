package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/jodi-app/jodi-server/internal/db"
)

// SafetyRepository provides data access for reports and blocks.
type SafetyRepository struct {
	db *gorm.DB
}

func NewSafetyRepository(database *gorm.DB) *SafetyRepository {
	return &SafetyRepository{db: database}
}

func (r *SafetyRepository) CreateReport(ctx context.Context, report *db.Report) error {
	return r.db.WithContext(ctx).Create(report).Error
}

func (r *SafetyRepository) GetReport(ctx context.Context, id string) (*db.Report, error) {
	var report db.Report
	err := r.db.WithContext(ctx).First(&report, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// ListReports returns reports filtered by status for the moderation queue.
func (r *SafetyRepository) ListReports(ctx context.Context, status string, limit int) ([]db.Report, error) {
	query := r.db.WithContext(ctx).Order("created_at ASC").Limit(limit)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var reports []db.Report
	err := query.Find(&reports).Error
	return reports, err
}

func (r *SafetyRepository) ResolveReport(ctx context.Context, id, resolvedBy, resolution, actionTaken string) error {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&db.Report{}).
		Where("id = ? AND status = ?", id, "pending").
		Updates(map[string]any{
			"status":       "resolved",
			"resolution":   resolution,
			"resolved_by":  resolvedBy,
			"resolved_at":  now,
			"action_taken": actionTaken,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountReportsAgainst counts reports filed against a user, an input to the
// fraud agent's risk signals.
func (r *SafetyRepository) CountReportsAgainst(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&db.Report{}).
		Where("reported_id = ?", userID).
		Count(&count).Error
	return count, err
}

func (r *SafetyRepository) CreateBlock(ctx context.Context, block *db.Block) error {
	return r.db.WithContext(ctx).Create(block).Error
}

func (r *SafetyRepository) DeleteBlock(ctx context.Context, blockerID, blockedID string) error {
	res := r.db.WithContext(ctx).
		Delete(&db.Block{}, "blocker_id = ? AND blocked_id = ?", blockerID, blockedID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// IsBlocked reports whether either user has blocked the other.
func (r *SafetyRepository) IsBlocked(ctx context.Context, a, b string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&db.Block{}).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)",
			a, b, b, a).
		Count(&count).Error
	return count > 0, err
}

func (r *SafetyRepository) ListBlocked(ctx context.Context, blockerID string) ([]db.Block, error) {
	var blocks []db.Block
	err := r.db.WithContext(ctx).
		Where("blocker_id = ?", blockerID).
		Order("created_at DESC").
		Find(&blocks).Error
	return blocks, err
}
