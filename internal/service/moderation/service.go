// Package moderation implements reporting, blocking and the admin review
// queue.
package moderation

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jodi-app/jodi-server/internal/agent"
	"github.com/jodi-app/jodi-server/internal/app"
	authn "github.com/jodi-app/jodi-server/internal/auth"
	"github.com/jodi-app/jodi-server/internal/db"
	svcErr "github.com/jodi-app/jodi-server/internal/errors"
	"github.com/jodi-app/jodi-server/internal/logger"
	"github.com/jodi-app/jodi-server/internal/server"
)

// Service owns the moderation endpoints.
type Service struct {
	appCtx *app.Context
}

func NewService(appCtx *app.Context) *Service {
	return &Service{appCtx: appCtx}
}

type reportRequest struct {
	ReportedID  string `json:"reported_id" binding:"required"`
	Type        string `json:"type" binding:"required"`
	Description string `json:"description"`
	MessageID   string `json:"message_id"`
}

// Report files a report against another user.
//
// Behavior:
//   - Self-reports are rejected.
//   - Filing triggers a background fraud check on the reported user so
//     repeat offenders surface quickly.
func (s *Service) Report(c *gin.Context) {
	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		server.Fail(c, svcErr.InvalidArgument("%s", err.Error()))
		return
	}
	userID := authn.UserID(c)
	if req.ReportedID == userID {
		server.Fail(c, svcErr.InvalidArgument("cannot report yourself"))
		return
	}

	report := &db.Report{
		ReporterID:  userID,
		ReportedID:  req.ReportedID,
		Type:        req.Type,
		Description: req.Description,
	}
	if req.MessageID != "" {
		report.RelatedMessageID = &req.MessageID
	}
	if err := s.appCtx.Safety.CreateReport(c.Request.Context(), report); err != nil {
		server.Fail(c, err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		result, err := s.appCtx.Orchestrator.Dispatch(ctx, agent.Task{
			Action:  "check_fraud",
			UserID:  userID,
			Payload: map[string]any{"target_user_id": req.ReportedID},
		})
		if err != nil {
			logger.Warn("fraud check after report", "error", err)
			return
		}
		if rec, ok := result.Data["recommendation"].(string); ok && rec != "allow" {
			logger.Warn("reported user flagged", "user_id", req.ReportedID, "recommendation", rec)
		}
	}()

	c.JSON(http.StatusCreated, gin.H{"report_id": report.ID, "status": report.Status})
}

type blockRequest struct {
	BlockedID string `json:"blocked_id" binding:"required"`
	Reason    string `json:"reason"`
}

// Block prevents all contact with another user.
func (s *Service) Block(c *gin.Context) {
	var req blockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		server.Fail(c, svcErr.InvalidArgument("%s", err.Error()))
		return
	}
	userID := authn.UserID(c)
	if req.BlockedID == userID {
		server.Fail(c, svcErr.InvalidArgument("cannot block yourself"))
		return
	}
	block := &db.Block{BlockerID: userID, BlockedID: req.BlockedID, Reason: req.Reason}
	if err := s.appCtx.Safety.CreateBlock(c.Request.Context(), block); err != nil {
		server.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "blocked"})
}

// Unblock removes a block the caller placed.
func (s *Service) Unblock(c *gin.Context) {
	userID := authn.UserID(c)
	if err := s.appCtx.Safety.DeleteBlock(c.Request.Context(), userID, c.Param("userID")); err != nil {
		server.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "unblocked"})
}

// Blocked lists users the caller has blocked.
func (s *Service) Blocked(c *gin.Context) {
	blocks, err := s.appCtx.Safety.ListBlocked(c.Request.Context(), authn.UserID(c))
	if err != nil {
		server.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"blocks": blocks})
}

// ReportQueue lists reports for admin review, pending first.
func (s *Service) ReportQueue(c *gin.Context) {
	status := c.DefaultQuery("status", "pending")
	reports, err := s.appCtx.Safety.ListReports(c.Request.Context(), status, 100)
	if err != nil {
		server.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports})
}

type resolveRequest struct {
	Resolution  string `json:"resolution" binding:"required,oneof=dismissed warning suspended banned"`
	ActionTaken string `json:"action_taken"`
}

// Resolve closes a pending report with an admin decision.
func (s *Service) Resolve(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		server.Fail(c, svcErr.InvalidArgument("%s", err.Error()))
		return
	}
	adminID := authn.UserID(c)
	reportID := c.Param("reportID")

	if err := s.appCtx.Safety.ResolveReport(
		c.Request.Context(), reportID, adminID, req.Resolution, req.ActionTaken); err != nil {
		server.Fail(c, err)
		return
	}

	if req.Resolution == "suspended" || req.Resolution == "banned" {
		report, err := s.appCtx.Safety.GetReport(c.Request.Context(), reportID)
		if err == nil {
			if err := s.appCtx.Users.Deactivate(c.Request.Context(), report.ReportedID); err != nil {
				logger.Error("deactivate reported user", "error", err)
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "resolved"})
}

// FraudCheck runs the fraud agent against a user on demand.
func (s *Service) FraudCheck(c *gin.Context) {
	result, err := s.appCtx.Orchestrator.Dispatch(c.Request.Context(), agent.Task{
		Action:  "check_fraud",
		UserID:  authn.UserID(c),
		Payload: map[string]any{"target_user_id": c.Param("userID")},
	})
	if err != nil {
		server.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result.Data)
}
