package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jodi-app/jodi-server/internal/errors"
	"github.com/jodi-app/jodi-server/internal/llm"
	"github.com/jodi-app/jodi-server/internal/logger"
	"github.com/jodi-app/jodi-server/internal/repository"
)

// Risk bands for the heuristic score. Inside the gray zone the LLM gets a
// second look at the account before a recommendation goes out.
const (
	fraudMonitorRisk = 0.4
	fraudSuspendRisk = 0.7
)

// FraudAgent scores accounts on behavioral risk signals. The hard signals
// (reports, swipe velocity, account age) come from our own data; the LLM
// reviews gray-zone accounts where the heuristics alone cannot decide.
type FraudAgent struct {
	users   *repository.UserRepository
	swipes  *repository.SwipeRepository
	safety  *repository.SafetyRepository
	profile *repository.ProfileRepository
	llm     *llm.Client
}

func NewFraudAgent(
	users *repository.UserRepository,
	swipes *repository.SwipeRepository,
	safety *repository.SafetyRepository,
	profiles *repository.ProfileRepository,
	client *llm.Client,
) *FraudAgent {
	return &FraudAgent{users: users, swipes: swipes, safety: safety, profile: profiles, llm: client}
}

func (a *FraudAgent) Name() string    { return "fraud_detection" }
func (a *FraudAgent) Version() string { return "1.1" }

func (a *FraudAgent) Handles() []string {
	return []string{"check_fraud"}
}

func (a *FraudAgent) Process(ctx context.Context, task Task) (*Outcome, error) {
	if task.Action != "check_fraud" {
		return nil, errors.InvalidArgument("fraud agent cannot handle %s", task.Action)
	}
	targetID, _ := task.Payload["target_user_id"].(string)
	if targetID == "" {
		targetID = task.UserID
	}

	user, err := a.users.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	risk := 0.0
	var signals []string

	if now.Sub(user.CreatedAt) < 24*time.Hour {
		risk += 0.2
		signals = append(signals, "account newer than 24h")
	}
	if !user.IsVerified {
		risk += 0.1
		signals = append(signals, "unverified account")
	}

	reports, err := a.safety.CountReportsAgainst(ctx, targetID)
	if err != nil {
		return nil, err
	}
	switch {
	case reports >= 3:
		risk += 0.4
		signals = append(signals, "multiple reports filed against account")
	case reports > 0:
		risk += 0.2
		signals = append(signals, "has been reported")
	}

	swipesToday, err := a.swipes.CountSince(ctx, targetID, now.Truncate(24*time.Hour))
	if err != nil {
		return nil, err
	}
	if swipesToday > 200 {
		risk += 0.3
		signals = append(signals, "abnormal swipe velocity")
	}

	var bio string
	if profile, err := a.profile.GetByUserID(ctx, targetID); err == nil {
		bio = profile.Bio
		if profile.Bio == "" && profile.PhotoCount == 0 {
			risk += 0.2
			signals = append(signals, "empty profile")
		}
	}

	if risk > 1 {
		risk = 1
	}

	tokens := 0
	if risk >= fraudMonitorRisk && risk < fraudSuspendRisk && a.llm != nil {
		review, used, err := a.llmReview(ctx, bio, signals, risk)
		if err != nil {
			logger.Warn("llm fraud review unavailable, heuristics only", "error", err)
		} else {
			risk = review.Risk
			if review.Reason != "" {
				signals = append(signals, review.Reason)
			}
			tokens = used
		}
	}

	recommendation := "allow"
	switch {
	case risk >= fraudSuspendRisk:
		recommendation = "suspend_pending_review"
	case risk >= fraudMonitorRisk:
		recommendation = "limit_and_monitor"
	}

	return &Outcome{
		Data: map[string]any{
			"target_user_id": targetID,
			"risk_score":     risk,
			"signals":        signals,
			"recommendation": recommendation,
		},
		TokensUsed: tokens,
	}, nil
}

type fraudReview struct {
	Risk   float64 `json:"risk"`
	Reason string  `json:"reason"`
}

// llmReview asks the model to settle a gray-zone score. Heuristic bounds
// still apply: the model may move the score within [0, 1] but a failure
// leaves the heuristic verdict untouched.
func (a *FraudAgent) llmReview(ctx context.Context, bio string, signals []string, risk float64) (fraudReview, int, error) {
	resp, err := a.llm.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: "You review accounts on a dating app for romance scams and fake profiles. " +
				"Reply with JSON only: {\"risk\": 0..1, \"reason\": \"...\"}. " +
				"Risk 0 is clearly genuine, 1 is clearly fraudulent."},
			{Role: "user", Content: fmt.Sprintf(
				"Heuristic risk %.2f. Signals: %v. Profile bio: %q", risk, signals, bio)},
		},
		MaxTokens: 150,
	})
	if err != nil {
		return fraudReview{}, 0, err
	}

	raw := llm.ExtractJSON(resp.Content)
	var review fraudReview
	if raw == "" || json.Unmarshal([]byte(raw), &review) != nil {
		return fraudReview{}, 0, errors.Unavailable("fraud review unparseable")
	}
	if review.Risk < 0 {
		review.Risk = 0
	}
	if review.Risk > 1 {
		review.Risk = 1
	}
	return review, resp.TokensUsed, nil
}
