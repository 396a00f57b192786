package agents

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

	dsn := fmt.Sprintf("file:agentsvc_%s?mode=memory&cache=shared", t.Name())
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

func seedMember(t *testing.T, appCtx *app.Context, email, tier string) (*db.User, string) {
	t.Helper()
	user := &db.User{Email: email, PasswordHash: "x", Role: "user", SubscriptionTier: tier}
	profile := &db.Profile{
		FirstName:   "Asha",
		Gender:      "female",
		DateOfBirth: time.Date(1996, 4, 2, 0, 0, 0, 0, time.UTC),
		Bio:         "Trail runner, terrible at momo folding, great at eating them.",
		IsVisible:   true,
	}
	require.NoError(t, appCtx.Users.CreateWithProfile(context.Background(), user, profile))
	pair, err := appCtx.Tokens.IssuePair(user.ID, user.Role)
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

func TestExecuteAnalyzeProfile(t *testing.T) {
	appCtx := newTestApp(t)
	router := server.NewRouter(appCtx.Config, appCtx.Cache, NewRegistrar(appCtx))
	_, tok := seedMember(t, appCtx, "analyze@example.com", "free")

	rec := doJSON(t, router, http.MethodPost, "/api/v1/agents/execute", tok, map[string]any{
		"action": "analyze_profile",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "analyze_profile", body["action"])

	rec = doJSON(t, router, http.MethodGet, "/api/v1/agents/logs", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode(t, rec)["logs"])
}

func TestExecuteRejectsUnknownAction(t *testing.T) {
	appCtx := newTestApp(t)
	router := server.NewRouter(appCtx.Config, appCtx.Cache, NewRegistrar(appCtx))
	_, tok := seedMember(t, appCtx, "unknown@example.com", "free")

	rec := doJSON(t, router, http.MethodPost, "/api/v1/agents/execute", tok, map[string]any{
		"action": "handle_failed_payment",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAssistantActionsGatedByPlan(t *testing.T) {
	appCtx := newTestApp(t)
	router := server.NewRouter(appCtx.Config, appCtx.Cache, NewRegistrar(appCtx))

	target, _ := seedMember(t, appCtx, "target@example.com", "free")
	_, freeTok := seedMember(t, appCtx, "freeuser@example.com", "free")
	_, premiumTok := seedMember(t, appCtx, "premiumuser@example.com", "premium")

	payload := map[string]any{
		"action":  "generate_icebreaker",
		"payload": map[string]any{"target_user_id": target.ID},
	}

	rec := doJSON(t, router, http.MethodPost, "/api/v1/agents/execute", freeTok, payload)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/agents/execute", premiumTok, payload)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decode(t, rec)["data"].(map[string]any)
	assert.Len(t, data["suggestions"], 3)
}

func TestExecuteParallel(t *testing.T) {
	appCtx := newTestApp(t)
	router := server.NewRouter(appCtx.Config, appCtx.Cache, NewRegistrar(appCtx))
	_, tok := seedMember(t, appCtx, "parallel@example.com", "free")

	rec := doJSON(t, router, http.MethodPost, "/api/v1/agents/execute-parallel", tok, map[string]any{
		"tasks": []map[string]any{
			{"action": "analyze_profile"},
			{"action": "find_matches"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	results := decode(t, rec)["results"].([]any)
	require.Len(t, results, 2)
	first := results[0].(map[string]any)
	assert.Equal(t, "analyze_profile", first["action"])

	// over the per-request cap
	tasks := make([]map[string]any, 6)
	for i := range tasks {
		tasks[i] = map[string]any{"action": "analyze_profile"}
	}
	rec = doJSON(t, router, http.MethodPost, "/api/v1/agents/execute-parallel", tok, map[string]any{"tasks": tasks})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusRequiresAdmin(t *testing.T) {
	appCtx := newTestApp(t)
	router := server.NewRouter(appCtx.Config, appCtx.Cache, NewRegistrar(appCtx))
	_, tok := seedMember(t, appCtx, "status@example.com", "free")

	rec := doJSON(t, router, http.MethodGet, "/api/v1/agents/status", tok, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
