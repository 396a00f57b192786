package billing

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

	dsn := fmt.Sprintf("file:billsvc_%s?mode=memory&cache=shared", t.Name())
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

func seedMember(t *testing.T, appCtx *app.Context, email string) (*db.User, string) {
	t.Helper()
	user := &db.User{Email: email, PasswordHash: "x"}
	profile := &db.Profile{
		FirstName:   "Bill",
		Gender:      "male",
		DateOfBirth: time.Date(1994, 2, 1, 0, 0, 0, 0, time.UTC),
		IsVisible:   true,
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

func TestPlansArePublic(t *testing.T) {
	appCtx := newTestApp(t)
	router := server.NewRouter(appCtx.Config, appCtx.Cache, NewRegistrar(appCtx))

	rec := doJSON(t, router, http.MethodGet, "/api/v1/subscriptions/plans", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, "NPR", out["currency"])
	planList := out["plans"].([]any)
	require.Len(t, planList, 4)

	premium := planList[2].(map[string]any)
	assert.Equal(t, "premium", premium["code"])
	assert.Equal(t, float64(999), premium["monthly_price"])
	// quarterly carries a 10% discount
	assert.InDelta(t, 999*3*0.9, premium["quarterly_price"].(float64), 0.01)
}

func TestSubscribeConfirmActivates(t *testing.T) {
	appCtx := newTestApp(t)
	router := server.NewRouter(appCtx.Config, appCtx.Cache, NewRegistrar(appCtx))
	user, token := seedMember(t, appCtx, "payer@example.com")

	rec := doJSON(t, router, http.MethodPost, "/api/v1/subscriptions/subscribe", token, map[string]any{
		"plan_code": "basic", "period": "monthly", "method": "khalti",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	intent := decode(t, rec)
	paymentID := intent["payment_id"].(string)
	assert.Equal(t, float64(499), intent["amount"])
	assert.Contains(t, intent["transaction_id"], "KHL_")

	rec = doJSON(t, router, http.MethodPost, "/api/v1/subscriptions/payments/"+paymentID+"/confirm", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sub := decode(t, rec)
	assert.Equal(t, "basic", sub["plan_code"])
	assert.Equal(t, "active", sub["status"])

	refreshed, err := appCtx.Users.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "basic", refreshed.SubscriptionTier)

	// confirming twice fails, the payment is no longer pending
	rec = doJSON(t, router, http.MethodPost, "/api/v1/subscriptions/payments/"+paymentID+"/confirm", token, nil)
	assert.NotEqual(t, http.StatusOK, rec.Code)
}

func TestSubscribeValidation(t *testing.T) {
	appCtx := newTestApp(t)
	router := server.NewRouter(appCtx.Config, appCtx.Cache, NewRegistrar(appCtx))
	_, token := seedMember(t, appCtx, "val@example.com")

	rec := doJSON(t, router, http.MethodPost, "/api/v1/subscriptions/subscribe", token, map[string]any{
		"plan_code": "free", "period": "monthly", "method": "khalti",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/subscriptions/subscribe", token, map[string]any{
		"plan_code": "basic", "period": "weekly", "method": "khalti",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/subscriptions/subscribe", token, map[string]any{
		"plan_code": "basic", "period": "monthly", "method": "paypal",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfirmRequiresOwnership(t *testing.T) {
	appCtx := newTestApp(t)
	router := server.NewRouter(appCtx.Config, appCtx.Cache, NewRegistrar(appCtx))
	_, token := seedMember(t, appCtx, "owner@example.com")
	_, otherToken := seedMember(t, appCtx, "other@example.com")

	rec := doJSON(t, router, http.MethodPost, "/api/v1/subscriptions/subscribe", token, map[string]any{
		"plan_code": "premium", "period": "monthly", "method": "esewa",
	})
	paymentID := decode(t, rec)["payment_id"].(string)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/subscriptions/payments/"+paymentID+"/confirm", otherToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestFailedPaymentGraceThenDowngrade(t *testing.T) {
	appCtx := newTestApp(t)
	router := server.NewRouter(appCtx.Config, appCtx.Cache, NewRegistrar(appCtx))
	user, token := seedMember(t, appCtx, "dunning@example.com")

	// start on premium
	rec := doJSON(t, router, http.MethodPost, "/api/v1/subscriptions/subscribe", token, map[string]any{
		"plan_code": "premium", "period": "monthly", "method": "khalti",
	})
	paymentID := decode(t, rec)["payment_id"].(string)
	rec = doJSON(t, router, http.MethodPost, "/api/v1/subscriptions/payments/"+paymentID+"/confirm", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	failOnce := func() map[string]any {
		rec := doJSON(t, router, http.MethodPost, "/api/v1/subscriptions/subscribe", token, map[string]any{
			"plan_code": "elite", "period": "monthly", "method": "khalti",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		pid := decode(t, rec)["payment_id"].(string)
		rec = doJSON(t, router, http.MethodPost, "/api/v1/subscriptions/payments/"+pid+"/fail", token, map[string]any{
			"reason": "card declined",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		return decode(t, rec)
	}

	out := failOnce()
	assert.Equal(t, "grace_period", out["action"])

	failOnce()
	out = failOnce()
	assert.Equal(t, "downgrade_to_free", out["action"])

	refreshed, err := appCtx.Users.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "free", refreshed.SubscriptionTier)
}

func TestCancelKeepsAccessUntilExpiry(t *testing.T) {
	appCtx := newTestApp(t)
	router := server.NewRouter(appCtx.Config, appCtx.Cache, NewRegistrar(appCtx))
	_, token := seedMember(t, appCtx, "cancel@example.com")

	rec := doJSON(t, router, http.MethodPost, "/api/v1/subscriptions/subscribe", token, map[string]any{
		"plan_code": "basic", "period": "monthly", "method": "imepay",
	})
	paymentID := decode(t, rec)["payment_id"].(string)
	doJSON(t, router, http.MethodPost, "/api/v1/subscriptions/payments/"+paymentID+"/confirm", token, nil)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/subscriptions/cancel", token, map[string]any{"reason": "too pricey"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/subscriptions/history", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	subs := decode(t, rec)["subscriptions"].([]any)
	require.Len(t, subs, 1)
	assert.Equal(t, "cancelled", subs[0].(map[string]any)["status"])
}
