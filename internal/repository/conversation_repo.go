package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/jodi-app/jodi-server/internal/db"
)

// ConversationRepository provides data access for conversations and messages.
type ConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(database *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: database}
}

func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*db.Conversation, error) {
	var convo db.Conversation
	err := r.db.WithContext(ctx).First(&convo, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &convo, nil
}

func (r *ConversationRepository) GetByMatchID(ctx context.Context, matchID string) (*db.Conversation, error) {
	var convo db.Conversation
	err := r.db.WithContext(ctx).First(&convo, "match_id = ?", matchID).Error
	if err != nil {
		return nil, err
	}
	return &convo, nil
}

// ListForUser returns a user's conversations, latest activity first.
func (r *ConversationRepository) ListForUser(ctx context.Context, userID string, limit int) ([]db.Conversation, error) {
	var convos []db.Conversation
	err := r.db.WithContext(ctx).
		Where("user1_id = ? OR user2_id = ?", userID, userID).
		Order("COALESCE(last_message_at, created_at) DESC").
		Limit(limit).
		Find(&convos).Error
	return convos, err
}

// AppendMessage inserts a message and moves all conversation counters in the
// same transaction: total, the recipient's unread count, and last_message_at.
func (r *ConversationRepository) AppendMessage(ctx context.Context, convo *db.Conversation, msg *db.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		unreadCol := "unread_count_user2"
		if msg.SenderID == convo.User2ID {
			unreadCol = "unread_count_user1"
		}
		return tx.Model(&db.Conversation{}).
			Where("id = ?", convo.ID).
			Updates(map[string]any{
				"total_messages":  gorm.Expr("total_messages + 1"),
				unreadCol:         gorm.Expr(unreadCol + " + 1"),
				"last_message_at": msg.CreatedAt,
			}).Error
	})
}

// ListMessages returns messages in a conversation, newest first. When
// beforeID is set, only messages older than that message are returned.
func (r *ConversationRepository) ListMessages(
	ctx context.Context,
	conversationID string,
	beforeID string,
	limit int,
) ([]db.Message, error) {
	query := r.db.WithContext(ctx).
		Where("conversation_id = ? AND is_deleted = ?", conversationID, false).
		Order("created_at DESC, id DESC").
		Limit(limit)

	if beforeID != "" {
		var pivot db.Message
		if err := r.db.WithContext(ctx).
			Select("id", "created_at").
			First(&pivot, "id = ? AND conversation_id = ?", beforeID, conversationID).Error; err != nil {
			return nil, err
		}
		query = query.Where(
			"(created_at < ? OR (created_at = ? AND id < ?))",
			pivot.CreatedAt, pivot.CreatedAt, pivot.ID,
		)
	}

	var messages []db.Message
	err := query.Find(&messages).Error
	return messages, err
}

// MarkRead flags the peer's messages read and clears the reader's unread
// counter.
func (r *ConversationRepository) MarkRead(ctx context.Context, convo *db.Conversation, readerID string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&db.Message{}).
			Where("conversation_id = ? AND sender_id <> ? AND is_read = ?", convo.ID, readerID, false).
			Updates(map[string]any{"is_read": true, "read_at": now}).Error
		if err != nil {
			return err
		}
		unreadCol := "unread_count_user1"
		if readerID == convo.User2ID {
			unreadCol = "unread_count_user2"
		}
		return tx.Model(&db.Conversation{}).
			Where("id = ?", convo.ID).
			Update(unreadCol, 0).Error
	})
}

// UnreadTotal sums unread counts across all of a user's conversations.
func (r *ConversationRepository) UnreadTotal(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&db.Conversation{}).
		Select(`COALESCE(SUM(CASE
			WHEN user1_id = ? THEN unread_count_user1
			WHEN user2_id = ? THEN unread_count_user2
			ELSE 0 END), 0)`, userID, userID).
		Where("user1_id = ? OR user2_id = ?", userID, userID).
		Scan(&total).Error
	return total, err
}
