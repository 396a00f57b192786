package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/jodi-app/jodi-server/internal/app"
	"github.com/jodi-app/jodi-server/internal/cache"
	"github.com/jodi-app/jodi-server/internal/config"
	"github.com/jodi-app/jodi-server/internal/db"
	"github.com/jodi-app/jodi-server/internal/server"
)

func newTestApp(t *testing.T) *app.Context {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:discsvc_%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	t.Cleanup(func() {
		sqlDB, _ := gdb.DB()
		_ = sqlDB.Close()
	})

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	appCtx := app.Assemble(config.New(), gdb, cache.NewFromClient(client))
	go appCtx.Hub.Run()
	return appCtx
}

func seedMember(t *testing.T, appCtx *app.Context, email, gender string) (*db.User, string) {
	t.Helper()
	user := &db.User{Email: email, PasswordHash: "x"}
	profile := &db.Profile{
		FirstName:       email[:3],
		Gender:          gender,
		DateOfBirth:     time.Date(1997, 3, 15, 0, 0, 0, 0, time.UTC),
		City:            "Kathmandu",
		Province:        "Bagmati",
		Religion:        "hindu",
		IsVisible:       true,
		CompletionScore: 80,
	}
	require.NoError(t, appCtx.Users.CreateWithProfile(context.Background(), user, profile))
	pair, err := appCtx.Tokens.IssuePair(user.ID, "user")
	require.NoError(t, err)
	return user, pair.AccessToken
}

func doJSON(t *testing.T, router *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestSwipeCreatesMatchOnMutualLike(t *testing.T) {
	appCtx := newTestApp(t)
	router := server.NewRouter(appCtx.Config, appCtx.Cache, NewRegistrar(appCtx))

	alice, aliceTok := seedMember(t, appCtx, "alice@example.com", "female")
	bob, bobTok := seedMember(t, appCtx, "bob@example.com", "male")

	rec := doJSON(t, router, http.MethodPost, "/api/v1/matches/swipe", aliceTok, map[string]any{
		"target_user_id": bob.ID, "action": "like",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	out := decode(t, rec)
	assert.Equal(t, false, out["matched"])

	// swiping the same person twice is rejected
	rec = doJSON(t, router, http.MethodPost, "/api/v1/matches/swipe", aliceTok, map[string]any{
		"target_user_id": bob.ID, "action": "like",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// the like back completes the match
	rec = doJSON(t, router, http.MethodPost, "/api/v1/matches/swipe", bobTok, map[string]any{
		"target_user_id": alice.ID, "action": "like",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	out = decode(t, rec)
	assert.Equal(t, true, out["matched"])
	assert.NotEmpty(t, out["match_id"])
	assert.NotEmpty(t, out["conversation_id"])

	// both sides now see the match
	rec = doJSON(t, router, http.MethodGet, "/api/v1/matches", aliceTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	matches := decode(t, rec)["matches"].([]any)
	require.Len(t, matches, 1)
	assert.Equal(t, bob.ID, matches[0].(map[string]any)["user_id"])
}

func TestSwipeSelfRejected(t *testing.T) {
	appCtx := newTestApp(t)
	router := server.NewRouter(appCtx.Config, appCtx.Cache, NewRegistrar(appCtx))

	alice, aliceTok := seedMember(t, appCtx, "self@example.com", "female")
	rec := doJSON(t, router, http.MethodPost, "/api/v1/matches/swipe", aliceTok, map[string]any{
		"target_user_id": alice.ID, "action": "like",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSwipeQuotaExhausted(t *testing.T) {
	appCtx := newTestApp(t)
	router := server.NewRouter(appCtx.Config, appCtx.Cache, NewRegistrar(appCtx))

	_, aliceTok := seedMember(t, appCtx, "quota@example.com", "female")
	bob, _ := seedMember(t, appCtx, "target@example.com", "male")

	alice, err := appCtx.Users.GetByEmail(context.Background(), "quota@example.com")
	require.NoError(t, err)

	// burn the free tier's 50 daily swipes
	for i := 0; i < 50; i++ {
		_, err := appCtx.Cache.IncrDailySwipes(context.Background(), alice.ID, time.Now())
		require.NoError(t, err)
	}

	rec := doJSON(t, router, http.MethodPost, "/api/v1/matches/swipe", aliceTok, map[string]any{
		"target_user_id": bob.ID, "action": "like",
	})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestSuperlikeNeedsPaidPlan(t *testing.T) {
	appCtx := newTestApp(t)
	router := server.NewRouter(appCtx.Config, appCtx.Cache, NewRegistrar(appCtx))

	_, aliceTok := seedMember(t, appCtx, "super@example.com", "female")
	bob, _ := seedMember(t, appCtx, "starget@example.com", "male")

	rec := doJSON(t, router, http.MethodPost, "/api/v1/matches/swipe", aliceTok, map[string]any{
		"target_user_id": bob.ID, "action": "superlike",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLikesMeGatedByPlan(t *testing.T) {
	appCtx := newTestApp(t)
	router := server.NewRouter(appCtx.Config, appCtx.Cache, NewRegistrar(appCtx))

	alice, aliceTok := seedMember(t, appCtx, "gated@example.com", "female")
	bob, bobTok := seedMember(t, appCtx, "liker@example.com", "male")

	rec := doJSON(t, router, http.MethodPost, "/api/v1/matches/swipe", bobTok, map[string]any{
		"target_user_id": alice.ID, "action": "like",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// free tier cannot see likers
	rec = doJSON(t, router, http.MethodGet, "/api/v1/matches/likes-me", aliceTok, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	require.NoError(t, appCtx.Users.SetTier(context.Background(), alice.ID, "basic"))
	rec = doJSON(t, router, http.MethodGet, "/api/v1/matches/likes-me", aliceTok, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	likers := decode(t, rec)["likers"].([]any)
	require.Len(t, likers, 1)
	assert.Equal(t, bob.ID, likers[0].(map[string]any)["user_id"])
}

func TestUnmatchClosesConversation(t *testing.T) {
	appCtx := newTestApp(t)
	router := server.NewRouter(appCtx.Config, appCtx.Cache, NewRegistrar(appCtx))

	alice, aliceTok := seedMember(t, appCtx, "um1@example.com", "female")
	bob, bobTok := seedMember(t, appCtx, "um2@example.com", "male")
	_, eveTok := seedMember(t, appCtx, "um3@example.com", "female")

	doJSON(t, router, http.MethodPost, "/api/v1/matches/swipe", aliceTok, map[string]any{
		"target_user_id": bob.ID, "action": "like",
	})
	rec := doJSON(t, router, http.MethodPost, "/api/v1/matches/swipe", bobTok, map[string]any{
		"target_user_id": alice.ID, "action": "like",
	})
	matchID := decode(t, rec)["match_id"].(string)

	// outsiders cannot unmatch
	rec = doJSON(t, router, http.MethodDelete, "/api/v1/matches/"+matchID, eveTok, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/api/v1/matches/"+matchID, aliceTok, map[string]any{"reason": "no spark"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/matches", bobTok, nil)
	assert.Len(t, decode(t, rec)["matches"].([]any), 0)
}

func TestLikeCountFallsBackToDatabase(t *testing.T) {
	appCtx := newTestApp(t)
	router := server.NewRouter(appCtx.Config, appCtx.Cache, NewRegistrar(appCtx))

	alice, aliceTok := seedMember(t, appCtx, "lc@example.com", "female")
	bob, bobTok := seedMember(t, appCtx, "lcliker@example.com", "male")
	_ = bob

	rec := doJSON(t, router, http.MethodPost, "/api/v1/matches/swipe", bobTok, map[string]any{
		"target_user_id": alice.ID, "action": "like",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/matches/likes-me/count", aliceTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["count"])
}

func TestDiscoverExcludesSwiped(t *testing.T) {
	appCtx := newTestApp(t)
	router := server.NewRouter(appCtx.Config, appCtx.Cache, NewRegistrar(appCtx))

	_, seekerTok := seedMember(t, appCtx, "browse@example.com", "male")
	fresh, _ := seedMember(t, appCtx, "fresh@example.com", "female")
	seen, _ := seedMember(t, appCtx, "seen@example.com", "female")

	rec := doJSON(t, router, http.MethodPost, "/api/v1/matches/swipe", seekerTok, map[string]any{
		"target_user_id": seen.ID, "action": "dislike",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodGet, "/api/v1/discover", seekerTok, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	profiles := decode(t, rec)["profiles"].([]any)

	ids := map[string]bool{}
	for _, p := range profiles {
		ids[p.(map[string]any)["user_id"].(string)] = true
	}
	assert.True(t, ids[fresh.ID])
	assert.False(t, ids[seen.ID])
}

func TestRejectedSwipeKeepsQuota(t *testing.T) {
	appCtx := newTestApp(t)
	router := server.NewRouter(appCtx.Config, appCtx.Cache, NewRegistrar(appCtx))

	alice, aliceTok := seedMember(t, appCtx, "thrifty@example.com", "female")
	bob, _ := seedMember(t, appCtx, "crush@example.com", "male")
	carl, _ := seedMember(t, appCtx, "fresh@example.com", "male")

	rec := doJSON(t, router, http.MethodPost, "/api/v1/matches/swipe", aliceTok, map[string]any{
		"target_user_id": bob.ID, "action": "like",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// The duplicate is rejected before the counter moves.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/matches/swipe", aliceTok, map[string]any{
		"target_user_id": bob.ID, "action": "like",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// A superlike refused by the plan gate does not count either.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/matches/swipe", aliceTok, map[string]any{
		"target_user_id": carl.ID, "action": "superlike",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	n, err := appCtx.Cache.DailySwipes(context.Background(), alice.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
