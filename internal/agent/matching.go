package agent

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/jodi-app/jodi-server/internal/db"
	"github.com/jodi-app/jodi-server/internal/errors"
	"github.com/jodi-app/jodi-server/internal/llm"
	"github.com/jodi-app/jodi-server/internal/logger"
	"github.com/jodi-app/jodi-server/internal/repository"
)

// Hybrid score weights. They sum to 1; the final score is scaled to 0-100.
const (
	weightEmbedding  = 0.40
	weightPreference = 0.30
	weightBehavioral = 0.20
	weightDiversity  = 0.10
)

// MatchingAgent scores candidate pairs and explains matches.
type MatchingAgent struct {
	profiles *repository.ProfileRepository
	recs     *repository.RecommendationRepository
	llm      *llm.Client
}

func NewMatchingAgent(
	profiles *repository.ProfileRepository,
	recs *repository.RecommendationRepository,
	client *llm.Client,
) *MatchingAgent {
	return &MatchingAgent{profiles: profiles, recs: recs, llm: client}
}

func (a *MatchingAgent) Name() string    { return "matching" }
func (a *MatchingAgent) Version() string { return "2.1" }

func (a *MatchingAgent) Handles() []string {
	return []string{"find_matches", "calculate_compatibility", "explain_match"}
}

func (a *MatchingAgent) Process(ctx context.Context, task Task) (*Outcome, error) {
	switch task.Action {
	case "find_matches":
		return a.findMatches(ctx, task)
	case "calculate_compatibility":
		return a.calculateCompatibility(ctx, task)
	case "explain_match":
		return a.explainMatch(ctx, task)
	}
	return nil, errors.InvalidArgument("matching agent cannot handle %s", task.Action)
}

// ScoredCandidate is one entry of a find_matches result.
type ScoredCandidate struct {
	UserID          string   `json:"user_id"`
	Score           float64  `json:"score"`
	CommonInterests []string `json:"common_interests"`
}

func (a *MatchingAgent) findMatches(ctx context.Context, task Task) (*Outcome, error) {
	seeker, err := a.profiles.GetByUserID(ctx, task.UserID)
	if err != nil {
		return nil, err
	}
	prefs, err := a.profiles.Preferences(ctx, task.UserID)
	if err != nil {
		return nil, err
	}

	limit := payloadInt(task.Payload, "limit", 20)
	candidates, err := a.profiles.DiscoverCandidates(ctx, task.UserID, prefs, limit*3)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return &Outcome{Data: map[string]any{"matches": []ScoredCandidate{}}}, nil
	}

	profileIDs := make([]string, 0, len(candidates)+1)
	profileIDs = append(profileIDs, seeker.ID)
	for _, c := range candidates {
		profileIDs = append(profileIDs, c.ID)
	}
	interestsByProfile, err := a.profiles.InterestsByProfileIDs(ctx, profileIDs)
	if err != nil {
		return nil, err
	}
	seekerInterests := interestNames(interestsByProfile[seeker.ID])

	scored := make([]ScoredCandidate, 0, len(candidates))
	recs := make([]db.Recommendation, 0, len(candidates))
	for i := range candidates {
		cand := &candidates[i]
		candInterests := interestNames(interestsByProfile[cand.ID])
		score := HybridScore(seeker, cand, prefs, seekerInterests, candInterests)
		common := intersect(seekerInterests, candInterests)
		scored = append(scored, ScoredCandidate{
			UserID:          cand.UserID,
			Score:           score,
			CommonInterests: common,
		})
		recs = append(recs, db.Recommendation{
			UserID:            task.UserID,
			RecommendedUserID: cand.UserID,
			Compatibility:     score,
			Reason:            scoreReason(score, common),
			CommonInterests:   common,
		})
	}

	sortByScore(scored)
	if len(scored) > limit {
		scored = scored[:limit]
		recs = recsFor(recs, scored)
	}
	if err := a.recs.UpsertBatch(ctx, recs); err != nil {
		logger.Warn("recommendation upsert failed", "user_id", task.UserID, "error", err)
	}

	return &Outcome{Data: map[string]any{"matches": scored}}, nil
}

func (a *MatchingAgent) calculateCompatibility(ctx context.Context, task Task) (*Outcome, error) {
	otherID, _ := task.Payload["target_user_id"].(string)
	if otherID == "" {
		return nil, errors.InvalidArgument("target_user_id is required")
	}

	score, breakdown, err := a.ScorePair(ctx, task.UserID, otherID)
	if err != nil {
		return nil, err
	}
	return &Outcome{Data: map[string]any{
		"compatibility_score": score,
		"breakdown":           breakdown,
	}}, nil
}

// ScorePair loads both profiles and returns the hybrid score with its
// component breakdown. Also used directly by the discovery service on each
// swipe.
func (a *MatchingAgent) ScorePair(ctx context.Context, userID, otherID string) (float64, map[string]float64, error) {
	me, err := a.profiles.GetByUserID(ctx, userID)
	if err != nil {
		return 0, nil, err
	}
	other, err := a.profiles.GetByUserID(ctx, otherID)
	if err != nil {
		return 0, nil, err
	}
	prefs, err := a.profiles.Preferences(ctx, userID)
	if err != nil {
		return 0, nil, err
	}
	interests, err := a.profiles.InterestsByProfileIDs(ctx, []string{me.ID, other.ID})
	if err != nil {
		return 0, nil, err
	}

	mine := interestNames(interests[me.ID])
	theirs := interestNames(interests[other.ID])
	breakdown := map[string]float64{
		"embedding":  EmbeddingScore(me.Embedding, other.Embedding),
		"preference": PreferenceScore(me, other, prefs),
		"behavioral": BehavioralScore(me, other, mine, theirs),
		"diversity":  DiversityScore(me, other, mine, theirs),
	}
	return HybridScore(me, other, prefs, mine, theirs), breakdown, nil
}

func (a *MatchingAgent) explainMatch(ctx context.Context, task Task) (*Outcome, error) {
	otherID, _ := task.Payload["target_user_id"].(string)
	if otherID == "" {
		return nil, errors.InvalidArgument("target_user_id is required")
	}
	score, breakdown, err := a.ScorePair(ctx, task.UserID, otherID)
	if err != nil {
		return nil, err
	}

	data := map[string]any{"compatibility_score": score, "breakdown": breakdown}
	tokens := 0
	explanation := heuristicExplanation(score, breakdown)

	if a.llm != nil {
		prompt := fmt.Sprintf(
			"Two dating profiles scored %.1f/100 for compatibility. Component scores: "+
				"embedding %.2f, preferences %.2f, lifestyle %.2f, diversity %.2f. "+
				"Write one warm, specific sentence explaining why they could be a good match. "+
				"No names, no numbers.",
			score, breakdown["embedding"], breakdown["preference"],
			breakdown["behavioral"], breakdown["diversity"],
		)
		resp, err := a.llm.Complete(ctx, llm.Request{
			Messages: []llm.Message{
				{Role: "system", Content: "You are a thoughtful matchmaker for a Nepali dating app."},
				{Role: "user", Content: prompt},
			},
			MaxTokens: 120,
		})
		if err == nil && strings.TrimSpace(resp.Content) != "" {
			explanation = strings.TrimSpace(resp.Content)
			tokens = resp.TokensUsed
		}
	}

	data["explanation"] = explanation
	return &Outcome{Data: data, TokensUsed: tokens}, nil
}

// HybridScore combines the four components into a 0-100 score rounded to
// two decimals.
func HybridScore(me, other *db.Profile, prefs *db.UserPreference, myInterests, theirInterests []string) float64 {
	score := weightEmbedding*EmbeddingScore(me.Embedding, other.Embedding) +
		weightPreference*PreferenceScore(me, other, prefs) +
		weightBehavioral*BehavioralScore(me, other, myInterests, theirInterests) +
		weightDiversity*DiversityScore(me, other, myInterests, theirInterests)
	return math.Round(score*100*100) / 100
}

// EmbeddingScore is cosine similarity normalized to [0,1]. Missing or
// mismatched embeddings score a neutral 0.5.
func EmbeddingScore(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0.5
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0.5
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return (sim + 1) / 2
}

// PreferenceScore measures how well the candidate fits the seeker's stated
// / preferences: age window, location, religion and education.
func PreferenceScore(me, other *db.Profile, prefs *db.UserPreference) float64 {
	now := time.Now().UTC()

	age := 0.3
	otherAge := other.Age(now)
	if otherAge >= prefs.AgeMin && otherAge <= prefs.AgeMax {
		age = 1.0
	}

	location := 0.3
	switch {
	case me.City != "" && strings.EqualFold(me.City, other.City):
		location = 1.0
	case me.Province != "" && strings.EqualFold(me.Province, other.Province):
		location = 0.7
	}

	religion := 0.2
	if me.Religion != "" && strings.EqualFold(me.Religion, other.Religion) {
		religion = 1.0
	}

	education := 0.4
	if me.Education != "" && strings.EqualFold(me.Education, other.Education) {
		education = 1.0
	}

	return (age + location + religion + education) / 4
}

// BehavioralScore compares lifestyle habits and interest overlap.
func BehavioralScore(me, other *db.Profile, myInterests, theirInterests []string) float64 {
	smoking := 0.6
	switch {
	case me.Smoking != "" && me.Smoking == other.Smoking:
		smoking = 1.0
	case (me.Smoking == "never" && other.Smoking == "regularly") ||
		(me.Smoking == "regularly" && other.Smoking == "never"):
		smoking = 0.3
	}

	drinking := 0.7
	if me.Drinking != "" && me.Drinking == other.Drinking {
		drinking = 1.0
	}

	diet := 0.7
	switch {
	case me.Diet != "" && me.Diet == other.Diet:
		diet = 1.0
	case (me.Diet == "vegetarian" && other.Diet == "non-vegetarian") ||
		(me.Diet == "non-vegetarian" && other.Diet == "vegetarian"):
		diet = 0.3
	}

	return (smoking + drinking + diet + jaccard(myInterests, theirInterests)) / 4
}

// DiversityScore rewards pairs with some but not total overlap. A little
// novelty keeps matches interesting; none at all means nothing to talk about.
func DiversityScore(me, other *db.Profile, myInterests, theirInterests []string) float64 {
	overlap := len(intersect(myInterests, theirInterests))
	interests := 0.7
	switch {
	case overlap == 0:
		interests = 0.5
	case overlap <= 3:
		interests = 1.0
	}

	education := 1.0
	if me.Education != "" && other.Education != "" && !strings.EqualFold(me.Education, other.Education) {
		education = 0.8
	}

	return (interests + education) / 2
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := len(intersect(a, b))
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func intersect(a, b []string) []string {
	set := make(map[string]bool, len(a))
	for _, v := range a {
		set[strings.ToLower(v)] = true
	}
	var out []string
	for _, v := range b {
		if set[strings.ToLower(v)] {
			out = append(out, v)
			set[strings.ToLower(v)] = false
		}
	}
	return out
}

func interestNames(interests []db.Interest) []string {
	names := make([]string, len(interests))
	for i, in := range interests {
		names[i] = in.Name
	}
	return names
}

func sortByScore(s []ScoredCandidate) {
	sort.Slice(s, func(i, j int) bool { return s[i].Score > s[j].Score })
}

func recsFor(recs []db.Recommendation, kept []ScoredCandidate) []db.Recommendation {
	keep := make(map[string]bool, len(kept))
	for _, s := range kept {
		keep[s.UserID] = true
	}
	out := recs[:0]
	for _, r := range recs {
		if keep[r.RecommendedUserID] {
			out = append(out, r)
		}
	}
	return out
}

func scoreReason(score float64, common []string) string {
	switch {
	case len(common) > 0:
		return "shared interests: " + strings.Join(common, ", ")
	case score >= 70:
		return "strong lifestyle and preference alignment"
	default:
		return "preference alignment"
	}
}

func heuristicExplanation(score float64, breakdown map[string]float64) string {
	best := "preference"
	for k, v := range breakdown {
		if v > breakdown[best] {
			best = k
		}
	}
	reason := map[string]string{
		"embedding":  "your profiles express very similar values",
		"preference": "you are each exactly what the other is looking for",
		"behavioral": "your lifestyles fit together naturally",
		"diversity":  "you share enough to connect with plenty left to discover",
	}[best]
	if score >= 70 {
		return "You two look highly compatible; " + reason + "."
	}
	return "There is real potential here; " + reason + "."
}

func payloadInt(payload map[string]any, key string, def int) int {
	if payload == nil {
		return def
	}
	switch v := payload[key].(type) {
	case float64:
		if v > 0 {
			return int(v)
		}
	case int:
		if v > 0 {
			return v
		}
	}
	return def
}
