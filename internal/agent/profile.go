package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	"github.com/jodi-app/jodi-server/internal/db"
	"github.com/jodi-app/jodi-server/internal/errors"
	"github.com/jodi-app/jodi-server/internal/llm"
	"github.com/jodi-app/jodi-server/internal/logger"
	"github.com/jodi-app/jodi-server/internal/repository"
)

// embeddingDim is the size of the profile feature vector used for cosine
// matching.
const embeddingDim = 64

// UserProfileAgent analyzes profiles: personality traits and improvement
// tips come from the LLM, the completion score and feature embedding are
// computed locally and persisted for the matching agent.
type UserProfileAgent struct {
	profiles *repository.ProfileRepository
	llm      *llm.Client
}

func NewUserProfileAgent(profiles *repository.ProfileRepository, client *llm.Client) *UserProfileAgent {
	return &UserProfileAgent{profiles: profiles, llm: client}
}

func (a *UserProfileAgent) Name() string    { return "user_profile" }
func (a *UserProfileAgent) Version() string { return "1.4" }

func (a *UserProfileAgent) Handles() []string {
	return []string{"analyze_profile"}
}

func (a *UserProfileAgent) Process(ctx context.Context, task Task) (*Outcome, error) {
	if task.Action != "analyze_profile" {
		return nil, errors.InvalidArgument("profile agent cannot handle %s", task.Action)
	}

	profile, err := a.profiles.GetByUserID(ctx, task.UserID)
	if err != nil {
		return nil, err
	}
	interests, err := a.profiles.ListInterests(ctx, profile.ID)
	if err != nil {
		return nil, err
	}

	completion := CompletionScore(profile, len(interests))
	embedding := FeatureEmbedding(profile, interestNames(interests))

	data := map[string]any{
		"completion_score": completion,
		"tips":             completionTips(profile, len(interests)),
	}

	traits := map[string]float64{}
	tokens := 0
	if a.llm != nil && strings.TrimSpace(profile.Bio) != "" {
		traits, tokens = a.analyzeTraits(ctx, profile, interests)
		if len(traits) > 0 {
			data["personality_traits"] = traits
		}
	}

	if err := a.profiles.SetDerived(ctx, task.UserID, traits, embedding); err != nil {
		return nil, err
	}
	if err := a.profiles.Update(ctx, task.UserID, map[string]any{"completion_score": completion}); err != nil {
		return nil, err
	}

	return &Outcome{Data: data, TokensUsed: tokens}, nil
}

func (a *UserProfileAgent) analyzeTraits(ctx context.Context, profile *db.Profile, interests []db.Interest) (map[string]float64, int) {
	prompt := fmt.Sprintf(
		"Bio: %q\nLooking for: %q\nInterests: %s",
		profile.Bio, profile.LookingFor, strings.Join(interestNames(interests), ", "),
	)
	resp, err := a.llm.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: "Estimate big-five personality traits from a dating profile. " +
				"Reply with JSON only: {\"openness\": 0..1, \"conscientiousness\": 0..1, " +
				"\"extraversion\": 0..1, \"agreeableness\": 0..1, \"neuroticism\": 0..1}."},
			{Role: "user", Content: prompt},
		},
		MaxTokens: 150,
	})
	if err != nil {
		logger.Warn("trait analysis skipped", "error", err)
		return nil, 0
	}

	var traits map[string]float64
	raw := llm.ExtractJSON(resp.Content)
	if raw == "" || json.Unmarshal([]byte(raw), &traits) != nil {
		return nil, resp.TokensUsed
	}
	return traits, resp.TokensUsed
}

// CompletionScore rates how filled-in a profile is, 0-100.
func CompletionScore(p *db.Profile, interestCount int) int {
	score := 0
	checks := []struct {
		filled bool
		weight int
	}{
		{p.Bio != "", 20},
		{p.ProfilePhotoURL != "" || p.PhotoCount > 0, 20},
		{interestCount >= 3, 15},
		{p.Occupation != "", 10},
		{p.Education != "", 10},
		{p.City != "", 10},
		{p.LookingFor != "", 10},
		{p.HeightCM > 0, 5},
	}
	for _, c := range checks {
		if c.filled {
			score += c.weight
		}
	}
	return score
}

func completionTips(p *db.Profile, interestCount int) []string {
	var tips []string
	if p.Bio == "" {
		tips = append(tips, "Write a bio. Profiles with bios get far more likes.")
	}
	if p.ProfilePhotoURL == "" && p.PhotoCount == 0 {
		tips = append(tips, "Add at least one photo.")
	}
	if interestCount < 3 {
		tips = append(tips, "Add a few interests so matches have something to open with.")
	}
	if p.LookingFor == "" {
		tips = append(tips, "Say what you are looking for.")
	}
	if len(tips) == 0 {
		tips = append(tips, "Your profile looks complete. Keep it fresh!")
	}
	return tips
}

// FeatureEmbedding hashes profile attributes into a fixed-size unit vector.
// Two profiles with overlapping attributes land near each other under
// cosine similarity; the vector is deterministic so re-analysis is stable.
func FeatureEmbedding(p *db.Profile, interests []string) []float64 {
	vec := make([]float64, embeddingDim)
	features := []string{
		"religion:" + strings.ToLower(p.Religion),
		"education:" + strings.ToLower(p.Education),
		"city:" + strings.ToLower(p.City),
		"province:" + strings.ToLower(p.Province),
		"diet:" + strings.ToLower(p.Diet),
		"smoking:" + strings.ToLower(p.Smoking),
		"drinking:" + strings.ToLower(p.Drinking),
		"occupation:" + strings.ToLower(p.Occupation),
	}
	for _, in := range interests {
		features = append(features, "interest:"+strings.ToLower(in))
	}
	for _, tok := range strings.Fields(strings.ToLower(p.Bio)) {
		if len(tok) > 3 {
			features = append(features, "bio:"+tok)
		}
	}

	for _, f := range features {
		if strings.HasSuffix(f, ":") {
			continue
		}
		h := fnv.New64a()
		_, _ = h.Write([]byte(f))
		sum := h.Sum64()
		idx := int(sum % embeddingDim)
		sign := 1.0
		if (sum>>32)&1 == 1 {
			sign = -1.0
		}
		vec[idx] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
