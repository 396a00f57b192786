package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/jodi-app/jodi-server/internal/db"
)

// AgentLogRepository records agent executions and serves the status
// endpoint's aggregates.
type AgentLogRepository struct {
	db *gorm.DB
}

func NewAgentLogRepository(database *gorm.DB) *AgentLogRepository {
	return &AgentLogRepository{db: database}
}

func (r *AgentLogRepository) Create(ctx context.Context, log *db.AgentLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *AgentLogRepository) RecentForUser(ctx context.Context, userID string, limit int) ([]db.AgentLog, error) {
	var logs []db.AgentLog
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

// AgentStats is one row of the status aggregate.
type AgentStats struct {
	AgentName  string  `json:"agent_name"`
	Executions int64   `json:"executions"`
	Failures   int64   `json:"failures"`
	AvgTimeMS  float64 `json:"avg_time_ms"`
	TokensUsed int64   `json:"tokens_used"`
}

// Stats aggregates executions per agent since the cutoff.
func (r *AgentLogRepository) Stats(ctx context.Context, since time.Time) ([]AgentStats, error) {
	var stats []AgentStats
	err := r.db.WithContext(ctx).Model(&db.AgentLog{}).
		Select(`agent_name,
			COUNT(*) AS executions,
			SUM(CASE WHEN success THEN 0 ELSE 1 END) AS failures,
			AVG(execution_time_ms) AS avg_time_ms,
			COALESCE(SUM(tokens_used), 0) AS tokens_used`).
		Where("created_at >= ?", since).
		Group("agent_name").
		Order("agent_name").
		Scan(&stats).Error
	return stats, err
}
