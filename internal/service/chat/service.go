// Package chat implements conversations, messaging and the realtime socket.
package chat

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/jodi-app/jodi-server/internal/agent"
	"github.com/jodi-app/jodi-server/internal/app"
	authn "github.com/jodi-app/jodi-server/internal/auth"
	"github.com/jodi-app/jodi-server/internal/db"
	svcErr "github.com/jodi-app/jodi-server/internal/errors"
	"github.com/jodi-app/jodi-server/internal/logger"
	"github.com/jodi-app/jodi-server/internal/plans"
	"github.com/jodi-app/jodi-server/internal/push"
	"github.com/jodi-app/jodi-server/internal/server"
	"github.com/jodi-app/jodi-server/internal/ws"
)

const (
	maxMessageLength = 2000
	messagePageSize  = 50
)

// Service owns the chat endpoints and the websocket entrypoint.
type Service struct {
	appCtx *app.Context
}

func NewService(appCtx *app.Context) *Service {
	return &Service{appCtx: appCtx}
}

// Conversations lists the caller's conversations, most recent first.
func (s *Service) Conversations(c *gin.Context) {
	userID := authn.UserID(c)
	ctx := c.Request.Context()

	convos, err := s.appCtx.Conversations.ListForUser(ctx, userID, 50)
	if err != nil {
		server.Fail(c, err)
		return
	}

	otherIDs := make([]string, 0, len(convos))
	for _, cv := range convos {
		otherIDs = append(otherIDs, cv.Other(userID))
	}
	profiles, err := s.appCtx.Profiles.ProfilesByUserIDs(ctx, otherIDs)
	if err != nil {
		server.Fail(c, err)
		return
	}

	items := make([]gin.H, 0, len(convos))
	for _, cv := range convos {
		otherID := cv.Other(userID)
		unread := cv.UnreadCountUser1
		if cv.User2ID == userID {
			unread = cv.UnreadCountUser2
		}
		item := gin.H{
			"conversation_id": cv.ID,
			"match_id":        cv.MatchID,
			"user_id":         otherID,
			"unread_count":    unread,
			"total_messages":  cv.TotalMessages,
			"last_message_at": cv.LastMessageAt,
			"is_online":       s.appCtx.Hub.IsOnline(otherID),
		}
		if p, ok := profiles[otherID]; ok {
			item["profile"] = p
		}
		items = append(items, item)
	}
	c.JSON(http.StatusOK, gin.H{"conversations": items})
}

// Messages returns a page of messages, newest first. Pass before=<messageID>
// to page further back.
func (s *Service) Messages(c *gin.Context) {
	userID := authn.UserID(c)
	ctx := c.Request.Context()

	convo, err := s.memberConversation(ctx, c.Param("conversationID"), userID)
	if err != nil {
		server.Fail(c, err)
		return
	}

	limit := messagePageSize
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 100 {
			limit = v
		}
	}

	messages, err := s.appCtx.Conversations.ListMessages(ctx, convo.ID, c.Query("before"), limit)
	if err != nil {
		server.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

type sendRequest struct {
	Content     string `json:"content" binding:"required"`
	ContentType string `json:"content_type"`
	MediaURL    string `json:"media_url"`
}

// Send persists a message after safety screening and fans it out.
//
// Behavior:
//   - Content that fails screening with a block or escalate verdict is
//     rejected; escalations additionally open an automated report.
//   - Flagged content is delivered but stored with moderation_status
//     flagged for review.
//   - Delivery goes over the socket when the recipient is connected,
//     otherwise web push.
func (s *Service) Send(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		server.Fail(c, svcErr.InvalidArgument("%s", err.Error()))
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		server.Fail(c, svcErr.InvalidArgument("message cannot be empty"))
		return
	}
	if len(content) > maxMessageLength {
		server.Fail(c, svcErr.InvalidArgument("message exceeds %d characters", maxMessageLength))
		return
	}

	userID := authn.UserID(c)
	ctx := c.Request.Context()

	convo, err := s.memberConversation(ctx, c.Param("conversationID"), userID)
	if err != nil {
		server.Fail(c, err)
		return
	}
	if !convo.IsActive {
		server.Fail(c, svcErr.PermissionDenied("conversation is closed"))
		return
	}
	recipientID := convo.Other(userID)

	msg := &db.Message{
		ConversationID: convo.ID,
		SenderID:       userID,
		Content:        content,
		ContentType:    defaultString(req.ContentType, "text"),
		MediaURL:       req.MediaURL,
	}

	if s.appCtx.Config.Moderation.AutoEnabled {
		screening, _ := s.appCtx.SafetyAgent.Screen(ctx, content)
		switch screening.Verdict {
		case agent.VerdictBlock:
			server.Fail(c, svcErr.InvalidArgument("message violates community guidelines"))
			return
		case agent.VerdictEscalate:
			s.openAutomatedReport(ctx, userID, recipientID, content, screening.Reasons)
			server.Fail(c, svcErr.InvalidArgument("message violates community guidelines"))
			return
		case agent.VerdictFlag:
			msg.ModerationStatus = db.ModerationFlagged
			msg.FlaggedReason = strings.Join(screening.Reasons, "; ")
			score := 1 - screening.Score
			msg.ToxicityScore = &score
		}
	}

	if err := s.appCtx.Conversations.AppendMessage(ctx, convo, msg); err != nil {
		server.Fail(c, err)
		return
	}
	if msg.ModerationStatus == db.ModerationFlagged && msg.ToxicityScore != nil &&
		*msg.ToxicityScore >= s.appCtx.Config.Moderation.ToxicityThreshold {
		s.openAutomatedReport(ctx, userID, recipientID, content, strings.Split(msg.FlaggedReason, "; "))
	}
	if err := s.appCtx.Matches.RecordMessage(ctx, convo.MatchID, msg.CreatedAt); err != nil {
		logger.Warn("record message on match", "error", err)
	}

	delivered := s.appCtx.Hub.SendToUser(recipientID, ws.Envelope{
		Type: ws.EventNewMessage,
		Payload: map[string]any{
			"conversation_id": convo.ID,
			"message_id":      msg.ID,
			"sender_id":       userID,
			"content":         msg.Content,
			"content_type":    msg.ContentType,
			"created_at":      msg.CreatedAt,
		},
	})
	if !delivered {
		s.appCtx.Push.Send(ctx, recipientID, push.Notification{
			Title:     "New message",
			Body:      truncate(content, 80),
			ActionURL: "/chat/" + convo.ID,
		})
	}

	c.JSON(http.StatusCreated, msg)
}

// MarkRead zeroes the caller's unread counter and pushes a read receipt to
// the other side.
func (s *Service) MarkRead(c *gin.Context) {
	userID := authn.UserID(c)
	ctx := c.Request.Context()

	convo, err := s.memberConversation(ctx, c.Param("conversationID"), userID)
	if err != nil {
		server.Fail(c, err)
		return
	}
	if err := s.appCtx.Conversations.MarkRead(ctx, convo, userID); err != nil {
		server.Fail(c, err)
		return
	}

	s.appCtx.Hub.SendToUser(convo.Other(userID), ws.Envelope{
		Type: ws.EventReadReceipt,
		Payload: map[string]any{
			"conversation_id": convo.ID,
			"reader_id":       userID,
			"read_at":         time.Now(),
		},
	})
	c.JSON(http.StatusOK, gin.H{"status": "read"})
}

// UnreadCount returns the total unread messages across conversations.
func (s *Service) UnreadCount(c *gin.Context) {
	total, err := s.appCtx.Conversations.UnreadTotal(c.Request.Context(), authn.UserID(c))
	if err != nil {
		server.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": total})
}

// Suggestions asks the conversation agent for reply suggestions. Requires a
// plan with the AI assistant feature.
func (s *Service) Suggestions(c *gin.Context) {
	userID := authn.UserID(c)
	ctx := c.Request.Context()

	user, err := s.appCtx.Users.GetByID(ctx, userID)
	if err != nil {
		server.Fail(c, err)
		return
	}
	plan, _ := plans.ByCode(user.SubscriptionTier)
	if !plan.Has(plans.FeatureAIAssistant) {
		server.Fail(c, svcErr.PermissionDenied("reply suggestions require the premium plan"))
		return
	}

	convo, err := s.memberConversation(ctx, c.Param("conversationID"), userID)
	if err != nil {
		server.Fail(c, err)
		return
	}

	result, err := s.appCtx.Orchestrator.Dispatch(ctx, agent.Task{
		Action:  "suggest_reply",
		UserID:  userID,
		Payload: map[string]any{"conversation_id": convo.ID},
	})
	if err != nil {
		server.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result.Data)
}

// Socket upgrades the request and keeps the connection registered with the
// hub. Typing indicators arrive inbound and are relayed to the peer.
func (s *Service) Socket(c *gin.Context) {
	userID := authn.UserID(c)
	s.appCtx.Hub.Serve(c, userID, s.handleInbound)
}

func (s *Service) handleInbound(userID string, envelope ws.Envelope) {
	if envelope.Type != ws.EventTyping {
		return
	}
	payload, ok := envelope.Payload.(map[string]any)
	if !ok {
		return
	}
	convoID, _ := payload["conversation_id"].(string)
	if convoID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	convo, err := s.appCtx.Conversations.GetByID(ctx, convoID)
	if err != nil || !convo.HasMember(userID) {
		return
	}
	s.appCtx.Hub.SendToUser(convo.Other(userID), ws.Envelope{
		Type: ws.EventTyping,
		Payload: map[string]any{
			"conversation_id": convoID,
			"user_id":         userID,
		},
	})
}

func (s *Service) memberConversation(ctx context.Context, convoID, userID string) (*db.Conversation, error) {
	convo, err := s.appCtx.Conversations.GetByID(ctx, convoID)
	if err != nil {
		return nil, err
	}
	if !convo.HasMember(userID) {
		return nil, svcErr.PermissionDenied("not a participant of this conversation")
	}
	return convo, nil
}

func (s *Service) openAutomatedReport(ctx context.Context, senderID, recipientID, content string, reasons []string) {
	report := &db.Report{
		ReporterID:  "system",
		ReportedID:  senderID,
		Type:        "automated_screening",
		Description: "screened message to " + recipientID + ": " + truncate(content, 200) + " [" + strings.Join(reasons, "; ") + "]",
	}
	if err := s.appCtx.Safety.CreateReport(ctx, report); err != nil {
		logger.Warn("open automated report", "error", err)
	}
	logger.Warn("message escalated", "sender_id", senderID, "reasons", strings.Join(reasons, ","))
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// truncate shortens s to at most n runes, never splitting a multi-byte
// character.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "…"
}
