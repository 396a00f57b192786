// Package billing implements plans, subscriptions and payment handling.
package billing

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/jodi-app/jodi-server/internal/agent"
	"github.com/jodi-app/jodi-server/internal/app"
	authn "github.com/jodi-app/jodi-server/internal/auth"
	svcErr "github.com/jodi-app/jodi-server/internal/errors"
	"github.com/jodi-app/jodi-server/internal/plans"
	"github.com/jodi-app/jodi-server/internal/server"
)

// Service owns the billing endpoints.
type Service struct {
	appCtx *app.Context
}

func NewService(appCtx *app.Context) *Service {
	return &Service{appCtx: appCtx}
}

// Plans returns the plan catalog with prices per billing period.
func (s *Service) Plans(c *gin.Context) {
	items := make([]gin.H, 0, 4)
	for _, p := range plans.All() {
		items = append(items, gin.H{
			"code":               p.Code,
			"name":               p.Name,
			"name_nepali":        p.NameNepali,
			"monthly_price":      p.Price(plans.PeriodMonthly),
			"quarterly_price":    p.Price(plans.PeriodQuarterly),
			"yearly_price":       p.Price(plans.PeriodYearly),
			"daily_swipe_limit":  p.DailySwipeLimit,
			"superlikes_per_day": p.SuperlikesPerDay,
			"boosts_per_month":   p.BoostsPerMonth,
			"features":           p.Features,
		})
	}
	c.JSON(http.StatusOK, gin.H{"plans": items, "currency": "NPR"})
}

// Current returns the caller's active subscription, or the free tier.
func (s *Service) Current(c *gin.Context) {
	userID := authn.UserID(c)
	sub, err := s.appCtx.Subscriptions.ActiveForUser(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusOK, gin.H{"plan_code": plans.Free, "status": "none"})
			return
		}
		server.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

type subscribeRequest struct {
	PlanCode string `json:"plan_code" binding:"required"`
	Period   string `json:"period" binding:"required"`
	Method   string `json:"method" binding:"required"`
}

// Subscribe opens a payment with the chosen gateway and returns the intent
// the client completes out of band.
func (s *Service) Subscribe(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		server.Fail(c, svcErr.InvalidArgument("%s", err.Error()))
		return
	}
	intent, err := s.appCtx.Billing.InitiatePayment(
		c.Request.Context(), authn.UserID(c), req.PlanCode, req.Period, req.Method)
	if err != nil {
		server.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, intent)
}

// Confirm finalizes a pending payment and activates the subscription.
func (s *Service) Confirm(c *gin.Context) {
	sub, err := s.appCtx.Billing.ConfirmPayment(
		c.Request.Context(), authn.UserID(c), c.Param("paymentID"))
	if err != nil {
		server.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

type failRequest struct {
	Reason string `json:"reason"`
}

// Fail records a gateway failure for a pending payment. The dunning policy
// decides between a grace period and a downgrade.
func (s *Service) Fail(c *gin.Context) {
	var req failRequest
	_ = c.ShouldBindJSON(&req)

	result, err := s.appCtx.Orchestrator.Dispatch(c.Request.Context(), agent.Task{
		Action: "handle_failed_payment",
		UserID: authn.UserID(c),
		Payload: map[string]any{
			"payment_id": c.Param("paymentID"),
			"reason":     req.Reason,
		},
	})
	if err != nil {
		server.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result.Data)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// Cancel stops auto-renewal. Paid features stay until the period ends.
func (s *Service) Cancel(c *gin.Context) {
	var req cancelRequest
	_ = c.ShouldBindJSON(&req)

	if err := s.appCtx.Subscriptions.Cancel(c.Request.Context(), authn.UserID(c), req.Reason); err != nil {
		server.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// History lists past and present subscriptions.
func (s *Service) History(c *gin.Context) {
	subs, err := s.appCtx.Subscriptions.History(c.Request.Context(), authn.UserID(c))
	if err != nil {
		server.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": subs})
}

// Payments lists the caller's payment records.
func (s *Service) Payments(c *gin.Context) {
	payments, err := s.appCtx.Subscriptions.Payments(c.Request.Context(), authn.UserID(c), 50)
	if err != nil {
		server.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}
