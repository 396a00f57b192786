package agent

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/jodi-app/jodi-server/internal/errors"
	"github.com/jodi-app/jodi-server/internal/llm"
	"github.com/jodi-app/jodi-server/internal/logger"
)

// Verdict labels for moderated content.
const (
	VerdictApprove  = "approve"
	VerdictFlag     = "flag"
	VerdictBlock    = "block"
	VerdictEscalate = "escalate"
)

// Safety score thresholds: below blockThreshold the content is blocked,
// below flagThreshold it is flagged for review.
const (
	blockThreshold = 0.3
	flagThreshold  = 0.6
)

var (
	linkPattern        = regexp.MustCompile(`(?i)\b(?:https?://|www\.)\S+`)
	phonePattern       = regexp.MustCompile(`\b\d{10}\b`)
	nepaliPhonePattern = regexp.MustCompile(`\+977\d{10}`)
	contactPatterns    = []string{"@gmail", "@yahoo", "facebook.com", "instagram", "whatsapp", "viber", "telegram"}
	moneyWords         = []string{"money", "paisa", "bank account", "western union", "gift card", "bitcoin", "crypto", "invest", "loan", "transfer"}
	escalationPhrases  = []string{"i love you", "marry me", "send photo", "send pic"}
)

// SafetyAgent screens messages and profile text. A fast heuristic pass runs
// on every message; the LLM verdict only runs when heuristics are unsure and
// a client is configured.
type SafetyAgent struct {
	llm *llm.Client
}

func NewSafetyAgent(client *llm.Client) *SafetyAgent {
	return &SafetyAgent{llm: client}
}

func (a *SafetyAgent) Name() string    { return "safety" }
func (a *SafetyAgent) Version() string { return "1.3" }

func (a *SafetyAgent) Handles() []string {
	return []string{"check_message", "moderate_content"}
}

// Screening is the structured moderation result.
type Screening struct {
	Safe     bool     `json:"safe"`
	Score    float64  `json:"score"`
	Verdict  string   `json:"verdict"`
	Severity string   `json:"severity"`
	Reasons  []string `json:"reasons,omitempty"`
}

func (a *SafetyAgent) Process(ctx context.Context, task Task) (*Outcome, error) {
	content, _ := task.Payload["content"].(string)
	if strings.TrimSpace(content) == "" {
		return nil, errors.InvalidArgument("content is required")
	}

	switch task.Action {
	case "check_message", "moderate_content":
		screening, tokens := a.Screen(ctx, content)
		return &Outcome{
			Data: map[string]any{
				"safe":     screening.Safe,
				"score":    screening.Score,
				"verdict":  screening.Verdict,
				"severity": screening.Severity,
				"reasons":  screening.Reasons,
			},
			TokensUsed: tokens,
		}, nil
	}
	return nil, errors.InvalidArgument("safety agent cannot handle %s", task.Action)
}

// Screen runs heuristics first, then asks the LLM only for the gray zone.
// Heuristic hits are authoritative; they catch the scam playbook regardless
// of model availability.
func (a *SafetyAgent) Screen(ctx context.Context, content string) (Screening, int) {
	screening := heuristicScreen(content)
	if screening.Verdict != VerdictApprove || a.llm == nil {
		return screening, 0
	}

	verdict, tokens, err := a.llmScreen(ctx, content)
	if err != nil {
		logger.Warn("llm moderation unavailable, heuristics only", "error", err)
		return screening, 0
	}
	return verdict, tokens
}

func heuristicScreen(content string) Screening {
	lower := strings.ToLower(content)
	score := 1.0
	var reasons []string

	if linkPattern.MatchString(content) {
		score -= 0.5
		reasons = append(reasons, "contains link")
	}
	if phonePattern.MatchString(content) || nepaliPhonePattern.MatchString(content) {
		score -= 0.5
		reasons = append(reasons, "shares phone number")
	}
	for _, p := range contactPatterns {
		if strings.Contains(lower, p) {
			score -= 0.5
			reasons = append(reasons, "moves conversation off platform")
			break
		}
	}
	moneyHits := 0
	for _, w := range moneyWords {
		if strings.Contains(lower, w) {
			moneyHits++
		}
	}
	if moneyHits > 0 {
		score -= 0.3 * float64(moneyHits)
		reasons = append(reasons, "mentions money or payments")
	}
	for _, p := range escalationPhrases {
		if strings.Contains(lower, p) {
			score -= 0.45
			reasons = append(reasons, "premature emotional escalation")
			break
		}
	}
	if score < 0 {
		score = 0
	}

	severity := "none"
	switch {
	case moneyHits >= 2 && (phonePattern.MatchString(content) || linkPattern.MatchString(content)):
		severity = "critical"
	case score < blockThreshold:
		severity = "high"
	case score < flagThreshold:
		severity = "medium"
	}

	return Screening{
		Safe:     score >= flagThreshold,
		Score:    score,
		Verdict:  verdictFor(score, severity),
		Severity: severity,
		Reasons:  reasons,
	}
}

func verdictFor(score float64, severity string) string {
	switch {
	case severity == "critical":
		return VerdictEscalate
	case score < blockThreshold:
		return VerdictBlock
	case score < flagThreshold:
		return VerdictFlag
	default:
		return VerdictApprove
	}
}

type llmVerdict struct {
	Safe     bool     `json:"safe"`
	Score    float64  `json:"score"`
	Severity string   `json:"severity"`
	Reasons  []string `json:"reasons"`
}

func (a *SafetyAgent) llmScreen(ctx context.Context, content string) (Screening, int, error) {
	resp, err := a.llm.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: "You moderate messages on a dating app. " +
				"Reply with JSON only: {\"safe\": bool, \"score\": 0..1, " +
				"\"severity\": \"none|medium|high|critical\", \"reasons\": [..]}. " +
				"Score 1 is clearly fine, 0 is clearly harmful. Watch for romance scams, " +
				"harassment, underage signals and sexual content."},
			{Role: "user", Content: content},
		},
		MaxTokens: 200,
	})
	if err != nil {
		return Screening{}, 0, err
	}

	raw := llm.ExtractJSON(resp.Content)
	var v llmVerdict
	if raw == "" || json.Unmarshal([]byte(raw), &v) != nil {
		return Screening{}, 0, errors.Unavailable("moderation verdict unparseable")
	}

	return Screening{
		Safe:     v.Score >= flagThreshold,
		Score:    v.Score,
		Verdict:  verdictFor(v.Score, v.Severity),
		Severity: v.Severity,
		Reasons:  v.Reasons,
	}, resp.TokensUsed, nil
}
