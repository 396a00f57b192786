package agent

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/jodi-app/jodi-server/internal/db"
	"github.com/jodi-app/jodi-server/internal/repository"
)

func newAgentTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:agent_%s?mode=memory&cache=shared", t.Name())
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
	return gdb
}

func seedBillingUser(t *testing.T, gdb *gorm.DB, email string) *db.User {
	t.Helper()
	user := &db.User{Email: email, PasswordHash: "x", IsActive: true}
	require.NoError(t, repository.NewUserRepository(gdb).CreateWithProfile(
		context.Background(), user, &db.Profile{FirstName: "Payer"},
	))
	return user
}

func TestInitiatePaymentMintsGatewayIntent(t *testing.T) {
	gdb := newAgentTestDB(t)
	ctx := context.Background()
	user := seedBillingUser(t, gdb, "payer@example.com")

	a := NewSubscriptionAgent(repository.NewSubscriptionRepository(gdb), repository.NewUserRepository(gdb))

	intent, err := a.InitiatePayment(ctx, user.ID, "premium", "monthly", "khalti")
	require.NoError(t, err)
	assert.Equal(t, 999.0, intent.Amount)
	assert.Equal(t, "NPR", intent.Currency)
	assert.True(t, strings.HasPrefix(intent.TransactionID, "KHL_"))
	assert.True(t, strings.HasPrefix(intent.RedirectURL, "https://khalti.com/payment/verify/"))

	// Bank transfers have no redirect flow.
	intent, err = a.InitiatePayment(ctx, user.ID, "basic", "yearly", "bank_transfer")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(intent.TransactionID, "BNK_"))
	assert.Empty(t, intent.RedirectURL)
	assert.Equal(t, 4491.0, intent.Amount)
}

func TestInitiatePaymentValidation(t *testing.T) {
	gdb := newAgentTestDB(t)
	ctx := context.Background()
	user := seedBillingUser(t, gdb, "payer@example.com")
	a := NewSubscriptionAgent(repository.NewSubscriptionRepository(gdb), repository.NewUserRepository(gdb))

	_, err := a.InitiatePayment(ctx, user.ID, "free", "monthly", "khalti")
	assert.Error(t, err)
	_, err = a.InitiatePayment(ctx, user.ID, "premium", "weekly", "khalti")
	assert.Error(t, err)
	_, err = a.InitiatePayment(ctx, user.ID, "premium", "monthly", "paypal")
	assert.Error(t, err)
}

func TestConfirmPaymentActivatesPlan(t *testing.T) {
	gdb := newAgentTestDB(t)
	ctx := context.Background()
	user := seedBillingUser(t, gdb, "payer@example.com")
	subs := repository.NewSubscriptionRepository(gdb)
	a := NewSubscriptionAgent(subs, repository.NewUserRepository(gdb))

	intent, err := a.InitiatePayment(ctx, user.ID, "premium", "quarterly", "esewa")
	require.NoError(t, err)

	sub, err := a.ConfirmPayment(ctx, user.ID, intent.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, "premium", sub.PlanCode)
	require.NotNil(t, sub.ExpiresAt)
	assert.InDelta(t, 3, sub.ExpiresAt.Sub(sub.StartedAt).Hours()/(30*24), 0.2)

	got, err := repository.NewUserRepository(gdb).GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "premium", got.SubscriptionTier)

	payment, err := subs.GetPayment(ctx, intent.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, db.PaymentCompleted, payment.Status)

	// Confirming twice fails.
	_, err = a.ConfirmPayment(ctx, user.ID, intent.PaymentID)
	assert.Error(t, err)

	// Another user cannot confirm it either.
	other := seedBillingUser(t, gdb, "other@example.com")
	_, err = a.ConfirmPayment(ctx, other.ID, intent.PaymentID)
	assert.Error(t, err)
}

func TestUpgradeProration(t *testing.T) {
	gdb := newAgentTestDB(t)
	ctx := context.Background()
	user := seedBillingUser(t, gdb, "payer@example.com")
	subs := repository.NewSubscriptionRepository(gdb)
	a := NewSubscriptionAgent(subs, repository.NewUserRepository(gdb))

	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	// Active basic plan, exactly half of the month remaining.
	started := now.AddDate(0, 0, -15)
	expires := now.AddDate(0, 0, 15)
	require.NoError(t, subs.Activate(ctx, &db.Subscription{
		UserID: user.ID, PlanCode: "basic", Period: "monthly",
		StartedAt: started, ExpiresAt: &expires, Status: db.SubscriptionActive,
	}))

	intent, err := a.InitiatePayment(ctx, user.ID, "premium", "monthly", "khalti")
	require.NoError(t, err)
	// 999 minus half of 499.
	assert.InDelta(t, 999-499.0/2, intent.Amount, 0.01)

	// Downgrades and re-buys of the same tier are rejected.
	_, err = a.InitiatePayment(ctx, user.ID, "basic", "monthly", "khalti")
	assert.Error(t, err)
}

func TestHandleFailedPaymentDunning(t *testing.T) {
	gdb := newAgentTestDB(t)
	ctx := context.Background()
	user := seedBillingUser(t, gdb, "payer@example.com")
	subs := repository.NewSubscriptionRepository(gdb)
	a := NewSubscriptionAgent(subs, repository.NewUserRepository(gdb))

	expires := time.Now().UTC().AddDate(0, 1, 0)
	require.NoError(t, subs.Activate(ctx, &db.Subscription{
		UserID: user.ID, PlanCode: "premium", Period: "monthly",
		StartedAt: time.Now().UTC(), ExpiresAt: &expires, Status: db.SubscriptionActive,
	}))

	fail := func() *Outcome {
		intent, err := a.InitiatePayment(ctx, user.ID, "elite", "monthly", "khalti")
		require.NoError(t, err)
		out, err := a.Process(ctx, Task{
			Action: "handle_failed_payment",
			UserID: user.ID,
			Payload: map[string]any{
				"payment_id": intent.PaymentID,
				"reason":     "gateway declined",
			},
		})
		require.NoError(t, err)
		return out
	}

	// First two failures earn a grace period.
	out := fail()
	assert.Equal(t, "grace_period", out.Data["action"])
	out = fail()
	assert.Equal(t, "grace_period", out.Data["action"])

	// Third failure downgrades to free.
	out = fail()
	assert.Equal(t, "downgrade_to_free", out.Data["action"])

	got, err := repository.NewUserRepository(gdb).GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "free", got.SubscriptionTier)
}
