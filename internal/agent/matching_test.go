package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jodi-app/jodi-server/internal/db"
)

func profileAged(age int) *db.Profile {
	return &db.Profile{
		DateOfBirth: time.Now().UTC().AddDate(-age, -1, 0),
	}
}

func TestEmbeddingScore(t *testing.T) {
	a := []float64{1, 0, 0}
	b := []float64{1, 0, 0}
	opposite := []float64{-1, 0, 0}
	orthogonal := []float64{0, 1, 0}

	assert.InDelta(t, 1.0, EmbeddingScore(a, b), 1e-9)
	assert.InDelta(t, 0.0, EmbeddingScore(a, opposite), 1e-9)
	assert.InDelta(t, 0.5, EmbeddingScore(a, orthogonal), 1e-9)

	// Missing or mismatched vectors are neutral.
	assert.Equal(t, 0.5, EmbeddingScore(nil, b))
	assert.Equal(t, 0.5, EmbeddingScore(a, []float64{1, 0}))
	assert.Equal(t, 0.5, EmbeddingScore([]float64{0, 0, 0}, b))
}

func TestPreferenceScore(t *testing.T) {
	me := profileAged(28)
	me.City = "Kathmandu"
	me.Province = "Bagmati"
	me.Religion = "Hindu"
	me.Education = "Bachelors"

	prefs := &db.UserPreference{AgeMin: 25, AgeMax: 32}

	perfect := profileAged(27)
	perfect.City = "Kathmandu"
	perfect.Province = "Bagmati"
	perfect.Religion = "Hindu"
	perfect.Education = "Bachelors"
	assert.InDelta(t, 1.0, PreferenceScore(me, perfect, prefs), 1e-9)

	// Same province but different city, different religion and education,
	// age outside the window.
	partial := profileAged(40)
	partial.City = "Pokhara"
	partial.Province = "Bagmati"
	partial.Religion = "Buddhist"
	partial.Education = "Masters"
	want := (0.3 + 0.7 + 0.2 + 0.4) / 4
	assert.InDelta(t, want, PreferenceScore(me, partial, prefs), 1e-9)
}

func TestBehavioralScore(t *testing.T) {
	me := &db.Profile{Smoking: "never", Drinking: "socially", Diet: "vegetarian"}

	same := &db.Profile{Smoking: "never", Drinking: "socially", Diet: "vegetarian"}
	interests := []string{"hiking", "music"}
	// All habits match and interests are identical: (1+1+1+1)/4.
	assert.InDelta(t, 1.0, BehavioralScore(me, same, interests, interests), 1e-9)

	clash := &db.Profile{Smoking: "regularly", Drinking: "never", Diet: "non-vegetarian"}
	// Smoker vs never 0.3, drinking differs 0.7, veg vs non-veg 0.3, no overlap 0.
	want := (0.3 + 0.7 + 0.3 + 0.0) / 4
	assert.InDelta(t, want, BehavioralScore(me, clash, interests, []string{"gaming"}), 1e-9)
}

func TestDiversityScore(t *testing.T) {
	me := &db.Profile{Education: "Bachelors"}
	other := &db.Profile{Education: "Bachelors"}

	// Small overlap is ideal.
	score := DiversityScore(me, other, []string{"a", "b", "c", "d"}, []string{"a", "b", "x"})
	assert.InDelta(t, 1.0, score, 1e-9)

	// No overlap at all.
	score = DiversityScore(me, other, []string{"a"}, []string{"x"})
	assert.InDelta(t, 0.75, score, 1e-9)

	// Heavy overlap with different education.
	other2 := &db.Profile{Education: "Masters"}
	big := []string{"a", "b", "c", "d", "e"}
	score = DiversityScore(me, other2, big, big)
	assert.InDelta(t, (0.7+0.8)/2, score, 1e-9)
}

func TestHybridScoreBounds(t *testing.T) {
	me := profileAged(28)
	me.City = "Kathmandu"
	me.Province = "Bagmati"
	me.Religion = "Hindu"
	me.Education = "Bachelors"
	me.Smoking = "never"
	me.Drinking = "socially"
	me.Diet = "vegetarian"
	me.Embedding = []float64{1, 0}

	twin := profileAged(27)
	*twin = *me
	twin.DateOfBirth = time.Now().UTC().AddDate(-27, -1, 0)

	prefs := &db.UserPreference{AgeMin: 25, AgeMax: 32}
	interests := []string{"hiking", "music"}

	score := HybridScore(me, twin, prefs, interests, interests)
	assert.Greater(t, score, 90.0)
	assert.LessOrEqual(t, score, 100.0)

	stranger := profileAged(50)
	stranger.Embedding = []float64{-1, 0}
	low := HybridScore(me, stranger, prefs, interests, nil)
	assert.Less(t, low, score)
	assert.GreaterOrEqual(t, low, 0.0)
}

func TestJaccardAndIntersect(t *testing.T) {
	assert.InDelta(t, 0.5, jaccard([]string{"a", "b", "c"}, []string{"b", "c", "d"}), 1e-9)
	assert.Equal(t, 0.0, jaccard(nil, nil))

	common := intersect([]string{"Hiking", "music"}, []string{"hiking", "Food"})
	assert.Equal(t, []string{"hiking"}, common)
}
