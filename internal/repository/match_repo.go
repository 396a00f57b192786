package repository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/jodi-app/jodi-server/internal/db"
)

// MatchRepository provides data access for matches and their conversations.
type MatchRepository struct {
	db *gorm.DB
}

func NewMatchRepository(database *gorm.DB) *MatchRepository {
	return &MatchRepository{db: database}
}

// OrderPair returns the two ids in storage order, user1 < user2.
func OrderPair(a, b string) (string, string) {
	if strings.Compare(a, b) > 0 {
		return b, a
	}
	return a, b
}

// CreateWithConversation inserts the match and its conversation atomically.
// The pair is normalized to user1 < user2 before insert.
func (r *MatchRepository) CreateWithConversation(ctx context.Context, match *db.Match) (*db.Conversation, error) {
	match.User1ID, match.User2ID = OrderPair(match.User1ID, match.User2ID)
	convo := &db.Conversation{}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(match).Error; err != nil {
			return err
		}
		convo.MatchID = match.ID
		convo.User1ID = match.User1ID
		convo.User2ID = match.User2ID
		convo.IsActive = true
		return tx.Create(convo).Error
	})
	if err != nil {
		return nil, err
	}
	return convo, nil
}

func (r *MatchRepository) GetByID(ctx context.Context, id string) (*db.Match, error) {
	var match db.Match
	err := r.db.WithContext(ctx).First(&match, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &match, nil
}

func (r *MatchRepository) GetByUsers(ctx context.Context, a, b string) (*db.Match, error) {
	u1, u2 := OrderPair(a, b)
	var match db.Match
	err := r.db.WithContext(ctx).First(&match, "user1_id = ? AND user2_id = ?", u1, u2).Error
	if err != nil {
		return nil, err
	}
	return &match, nil
}

// ListForUser returns a user's active matches, most recent activity first.
func (r *MatchRepository) ListForUser(ctx context.Context, userID string, limit int) ([]db.Match, error) {
	var matches []db.Match
	err := r.db.WithContext(ctx).
		Where("(user1_id = ? OR user2_id = ?) AND status = ?", userID, userID, db.MatchActive).
		Order("COALESCE(last_message_at, created_at) DESC").
		Limit(limit).
		Find(&matches).Error
	return matches, err
}

// Unmatch marks the match unmatched and closes the conversation.
func (r *MatchRepository) Unmatch(ctx context.Context, matchID, byUserID, reason string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&db.Match{}).
			Where("id = ? AND status = ?", matchID, db.MatchActive).
			Updates(map[string]any{
				"status":           db.MatchUnmatched,
				"unmatched_at":     now,
				"unmatched_by":     byUserID,
				"unmatched_reason": reason,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Model(&db.Conversation{}).
			Where("match_id = ?", matchID).
			Update("is_active", false).Error
	})
}

// RecordMessage updates the match's message bookkeeping after a send.
func (r *MatchRepository) RecordMessage(ctx context.Context, matchID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&db.Match{}).
		Where("id = ?", matchID).
		Updates(map[string]any{
			"message_count":    gorm.Expr("message_count + 1"),
			"last_message_at":  at,
			"first_message_at": gorm.Expr("COALESCE(first_message_at, ?)", at),
		}).Error
}
