package agent

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jodi-app/jodi-server/internal/db"
	"github.com/jodi-app/jodi-server/internal/errors"
	"github.com/jodi-app/jodi-server/internal/plans"
	"github.com/jodi-app/jodi-server/internal/repository"
)

// Payment methods we initiate. Gateway calls are mocked: we mint the
// transaction id and redirect URL the real integration would return.
var paymentMethods = map[string]struct {
	prefix   string
	redirect string
}{
	"khalti":        {"KHL", "https://khalti.com/payment/verify/"},
	"esewa":         {"ESW", "https://esewa.com.np/epay/main/"},
	"imepay":        {"IME", "https://imepay.com.np/checkout/"},
	"bank_transfer": {"BNK", ""},
}

// SubscriptionAgent owns payment initiation, failure handling and upgrade
// proration.
type SubscriptionAgent struct {
	subs  *repository.SubscriptionRepository
	users *repository.UserRepository
	now   func() time.Time

	khaltiKey     string
	esewaMerchant string
}

func NewSubscriptionAgent(subs *repository.SubscriptionRepository, users *repository.UserRepository) *SubscriptionAgent {
	return &SubscriptionAgent{subs: subs, users: users, now: func() time.Time { return time.Now().UTC() }}
}

// ConfigureGateways provides live gateway credentials. Without them the
// matching gateway runs in sandbox mode.
func (a *SubscriptionAgent) ConfigureGateways(khaltiKey, esewaMerchant string) {
	a.khaltiKey = khaltiKey
	a.esewaMerchant = esewaMerchant
}

func (a *SubscriptionAgent) sandbox(method string) bool {
	switch method {
	case "khalti":
		return a.khaltiKey == ""
	case "esewa":
		return a.esewaMerchant == ""
	}
	return true
}

func (a *SubscriptionAgent) Name() string    { return "subscription" }
func (a *SubscriptionAgent) Version() string { return "1.2" }

func (a *SubscriptionAgent) Handles() []string {
	return []string{"process_payment", "handle_failed_payment"}
}

func (a *SubscriptionAgent) Process(ctx context.Context, task Task) (*Outcome, error) {
	switch task.Action {
	case "process_payment":
		return a.processPayment(ctx, task)
	case "handle_failed_payment":
		return a.handleFailedPayment(ctx, task)
	}
	return nil, errors.InvalidArgument("subscription agent cannot handle %s", task.Action)
}

// PaymentIntent is what the client needs to complete a checkout.
type PaymentIntent struct {
	PaymentID     string  `json:"payment_id"`
	TransactionID string  `json:"transaction_id"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	Method        string  `json:"method"`
	RedirectURL   string  `json:"redirect_url,omitempty"`
	Sandbox       bool    `json:"sandbox"`
}

// InitiatePayment validates the plan/period/method, computes the charge net
// of any proration credit, and records a pending payment.
func (a *SubscriptionAgent) InitiatePayment(ctx context.Context, userID, planCode, period, method string) (*PaymentIntent, error) {
	plan, ok := plans.ByCode(planCode)
	if !ok || planCode == plans.Free {
		return nil, errors.InvalidArgument("unknown plan: %s", planCode)
	}
	if !plans.IsValidPeriod(period) {
		return nil, errors.InvalidArgument("unknown billing period: %s", period)
	}
	gateway, ok := paymentMethods[method]
	if !ok {
		return nil, errors.InvalidArgument("unsupported payment method: %s", method)
	}

	amount := plan.Price(period)
	if current, err := a.subs.ActiveForUser(ctx, userID); err == nil {
		if plans.Rank(planCode) <= plans.Rank(current.PlanCode) {
			return nil, errors.AlreadyExists("already subscribed to %s", current.PlanCode)
		}
		amount = math.Max(0, amount-a.prorationCredit(current))
		amount = math.Round(amount*100) / 100
	}

	txnID := fmt.Sprintf("%s_%d", gateway.prefix, a.now().UnixMilli())
	payment := &db.Payment{
		UserID:                userID,
		PlanCode:              planCode,
		Period:                period,
		AmountNPR:             amount,
		Currency:              "NPR",
		Method:                method,
		ExternalTransactionID: txnID,
		Status:                db.PaymentPending,
	}
	if err := a.subs.CreatePayment(ctx, payment); err != nil {
		return nil, err
	}

	intent := &PaymentIntent{
		PaymentID:     payment.ID,
		TransactionID: txnID,
		Amount:        amount,
		Currency:      "NPR",
		Method:        method,
		Sandbox:       a.sandbox(method),
	}
	if gateway.redirect != "" {
		intent.RedirectURL = gateway.redirect + txnID
	}
	return intent, nil
}

// prorationCredit is the unused fraction of the current subscription's
// price, credited against an upgrade.
func (a *SubscriptionAgent) prorationCredit(sub *db.Subscription) float64 {
	if sub.ExpiresAt == nil {
		return 0
	}
	plan, ok := plans.ByCode(sub.PlanCode)
	if !ok {
		return 0
	}
	total := sub.ExpiresAt.Sub(sub.StartedAt)
	remaining := sub.ExpiresAt.Sub(a.now())
	if total <= 0 || remaining <= 0 {
		return 0
	}
	frac := remaining.Seconds() / total.Seconds()
	return plan.Price(sub.Period) * frac
}

// ConfirmPayment completes a pending payment and activates the plan it
// bought. In production this is driven by the gateway callback.
func (a *SubscriptionAgent) ConfirmPayment(ctx context.Context, userID, paymentID string) (*db.Subscription, error) {
	payment, err := a.subs.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.UserID != userID {
		return nil, errors.PermissionDenied("payment belongs to another user")
	}
	if payment.Status != db.PaymentPending {
		return nil, errors.InvalidArgument("payment is %s, not pending", payment.Status)
	}

	now := a.now()
	expires := now.AddDate(0, plans.PeriodMonths(payment.Period), 0)
	sub := &db.Subscription{
		UserID:        payment.UserID,
		PlanCode:      payment.PlanCode,
		Period:        payment.Period,
		StartedAt:     now,
		ExpiresAt:     &expires,
		Status:        db.SubscriptionActive,
		AutoRenew:     true,
		PaymentMethod: payment.Method,
	}
	if err := a.subs.Activate(ctx, sub); err != nil {
		return nil, err
	}
	if err := a.subs.CompletePayment(ctx, payment.ID, sub.ID); err != nil {
		return nil, err
	}
	return sub, nil
}

func (a *SubscriptionAgent) processPayment(ctx context.Context, task Task) (*Outcome, error) {
	planCode, _ := task.Payload["plan"].(string)
	period, _ := task.Payload["period"].(string)
	method, _ := task.Payload["payment_method"].(string)

	intent, err := a.InitiatePayment(ctx, task.UserID, planCode, period, method)
	if err != nil {
		return nil, err
	}
	return &Outcome{Data: map[string]any{
		"payment_id":     intent.PaymentID,
		"transaction_id": intent.TransactionID,
		"amount":         intent.Amount,
		"currency":       intent.Currency,
		"redirect_url":   intent.RedirectURL,
	}}, nil
}

// handleFailedPayment applies the dunning policy: under three recent
// failures the subscription gets a three day grace extension, after that the
// account downgrades to free.
func (a *SubscriptionAgent) handleFailedPayment(ctx context.Context, task Task) (*Outcome, error) {
	paymentID, _ := task.Payload["payment_id"].(string)
	reason, _ := task.Payload["reason"].(string)
	if paymentID != "" {
		if err := a.subs.FailPayment(ctx, paymentID, reason); err != nil {
			return nil, err
		}
	}

	failures, err := a.subs.CountRecentFailures(ctx, task.UserID, a.now().AddDate(0, 0, -30))
	if err != nil {
		return nil, err
	}

	if failures < 3 {
		return &Outcome{Data: map[string]any{
			"action":       "grace_period",
			"grace_days":   3,
			"retries_left": 3 - failures,
		}}, nil
	}

	if err := a.subs.DowngradeToFree(ctx, task.UserID); err != nil {
		return nil, err
	}
	return &Outcome{Data: map[string]any{"action": "downgrade_to_free"}}, nil
}
