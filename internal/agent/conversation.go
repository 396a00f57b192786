package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jodi-app/jodi-server/internal/db"
	"github.com/jodi-app/jodi-server/internal/errors"
	"github.com/jodi-app/jodi-server/internal/llm"
	"github.com/jodi-app/jodi-server/internal/logger"
	"github.com/jodi-app/jodi-server/internal/repository"
)

// ConversationAgent drafts replies and icebreakers and summarizes how a chat
// is going. Canned suggestions cover LLM outages.
type ConversationAgent struct {
	convos   *repository.ConversationRepository
	profiles *repository.ProfileRepository
	llm      *llm.Client
}

func NewConversationAgent(
	convos *repository.ConversationRepository,
	profiles *repository.ProfileRepository,
	client *llm.Client,
) *ConversationAgent {
	return &ConversationAgent{convos: convos, profiles: profiles, llm: client}
}

func (a *ConversationAgent) Name() string    { return "conversation" }
func (a *ConversationAgent) Version() string { return "1.2" }

func (a *ConversationAgent) Handles() []string {
	return []string{"suggest_reply", "generate_icebreaker", "analyze_conversation"}
}

var fallbackIcebreakers = []string{
	"What is the one place in Nepal you would take a visitor first?",
	"Momo or chowmein when it really matters?",
	"What is something you are weirdly good at?",
}

var fallbackReplies = []string{
	"That sounds great, tell me more!",
	"Haha, I did not expect that. What happened next?",
	"Interesting! How did you get into that?",
}

func (a *ConversationAgent) Process(ctx context.Context, task Task) (*Outcome, error) {
	switch task.Action {
	case "suggest_reply":
		return a.suggestReply(ctx, task)
	case "generate_icebreaker":
		return a.generateIcebreaker(ctx, task)
	case "analyze_conversation":
		return a.analyzeConversation(ctx, task)
	}
	return nil, errors.InvalidArgument("conversation agent cannot handle %s", task.Action)
}

func (a *ConversationAgent) suggestReply(ctx context.Context, task Task) (*Outcome, error) {
	history, convo, err := a.recentHistory(ctx, task)
	if err != nil {
		return nil, err
	}
	if convo != nil && !convo.HasMember(task.UserID) {
		return nil, errors.PermissionDenied("not a participant in this conversation")
	}

	suggestions, tokens := a.complete(ctx,
		"You help someone reply in a dating app chat. Based on the conversation, "+
			"suggest 3 short replies they could send. Reply with JSON only: "+
			"{\"suggestions\": [\"...\", \"...\", \"...\"]}. Match the chat's language and tone.",
		historyPrompt(history, task.UserID),
		fallbackReplies,
	)
	return &Outcome{Data: map[string]any{"suggestions": suggestions}, TokensUsed: tokens}, nil
}

func (a *ConversationAgent) generateIcebreaker(ctx context.Context, task Task) (*Outcome, error) {
	targetID, _ := task.Payload["target_user_id"].(string)
	if targetID == "" {
		return nil, errors.InvalidArgument("target_user_id is required")
	}

	profile, err := a.profiles.GetByUserID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	interests, err := a.profiles.ListInterests(ctx, profile.ID)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Their bio: %q.", profile.Bio)
	if len(interests) > 0 {
		fmt.Fprintf(&sb, " Their interests: %s.", strings.Join(interestNames(interests), ", "))
	}

	suggestions, tokens := a.complete(ctx,
		"You write opening messages for a dating app. Given the match's profile, "+
			"suggest 3 playful, specific openers. Never mention their appearance. "+
			"Reply with JSON only: {\"suggestions\": [\"...\", \"...\", \"...\"]}.",
		sb.String(),
		fallbackIcebreakers,
	)
	return &Outcome{Data: map[string]any{"suggestions": suggestions}, TokensUsed: tokens}, nil
}

func (a *ConversationAgent) analyzeConversation(ctx context.Context, task Task) (*Outcome, error) {
	history, convo, err := a.recentHistory(ctx, task)
	if err != nil {
		return nil, err
	}
	if convo != nil && !convo.HasMember(task.UserID) {
		return nil, errors.PermissionDenied("not a participant in this conversation")
	}
	if len(history) == 0 {
		return &Outcome{Data: map[string]any{
			"engagement": "none",
			"summary":    "No messages yet.",
		}}, nil
	}

	data := map[string]any{
		"message_count": len(history),
		"engagement":    engagementLevel(history, task.UserID),
	}
	tokens := 0
	if a.llm != nil {
		resp, err := a.llm.Complete(ctx, llm.Request{
			Messages: []llm.Message{
				{Role: "system", Content: "Summarize how this dating app conversation is going " +
					"in two sentences: tone, balance, and one suggestion. Address the reader as 'you'."},
				{Role: "user", Content: historyPrompt(history, task.UserID)},
			},
			MaxTokens: 200,
		})
		if err == nil {
			data["summary"] = strings.TrimSpace(resp.Content)
			tokens = resp.TokensUsed
		} else {
			logger.Warn("conversation analysis degraded to counts", "error", err)
		}
	}
	return &Outcome{Data: data, TokensUsed: tokens}, nil
}

// recentHistory loads the last messages of the payload's conversation,
// oldest first.
func (a *ConversationAgent) recentHistory(ctx context.Context, task Task) ([]db.Message, *db.Conversation, error) {
	convoID, _ := task.Payload["conversation_id"].(string)
	if convoID == "" {
		return nil, nil, errors.InvalidArgument("conversation_id is required")
	}
	convo, err := a.convos.GetByID(ctx, convoID)
	if err != nil {
		return nil, nil, err
	}
	messages, err := a.convos.ListMessages(ctx, convoID, "", 20)
	if err != nil {
		return nil, nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, convo, nil
}

// complete asks for JSON suggestions and falls back to canned ones.
func (a *ConversationAgent) complete(ctx context.Context, system, user string, fallback []string) ([]string, int) {
	if a.llm == nil {
		return fallback, 0
	}
	resp, err := a.llm.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens: 300,
	})
	if err != nil {
		logger.Warn("suggestion generation degraded to canned replies", "error", err)
		return fallback, 0
	}

	var out struct {
		Suggestions []string `json:"suggestions"`
	}
	raw := llm.ExtractJSON(resp.Content)
	if raw == "" || json.Unmarshal([]byte(raw), &out) != nil || len(out.Suggestions) == 0 {
		return fallback, resp.TokensUsed
	}
	return out.Suggestions, resp.TokensUsed
}

func historyPrompt(history []db.Message, readerID string) string {
	var sb strings.Builder
	for _, m := range history {
		role := "them"
		if m.SenderID == readerID {
			role = "you"
		}
		fmt.Fprintf(&sb, "%s: %s\n", role, m.Content)
	}
	return sb.String()
}

func engagementLevel(history []db.Message, userID string) string {
	var mine, theirs int
	for _, m := range history {
		if m.SenderID == userID {
			mine++
		} else {
			theirs++
		}
	}
	switch {
	case mine == 0 || theirs == 0:
		return "one_sided"
	case len(history) >= 10:
		return "high"
	default:
		return "warming_up"
	}
}
