// Package agents exposes the agent orchestrator over HTTP.
package agents

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jodi-app/jodi-server/internal/agent"
	"github.com/jodi-app/jodi-server/internal/app"
	authn "github.com/jodi-app/jodi-server/internal/auth"
	svcErr "github.com/jodi-app/jodi-server/internal/errors"
	"github.com/jodi-app/jodi-server/internal/plans"
	"github.com/jodi-app/jodi-server/internal/server"
)

const maxParallelTasks = 5

// userActions are the actions callers may invoke directly. Anything else
// is internal or admin-only.
var userActions = map[string]bool{
	"analyze_profile":         true,
	"find_matches":            true,
	"calculate_compatibility": true,
	"explain_match":           true,
	"suggest_reply":           true,
	"generate_icebreaker":     true,
	"analyze_conversation":    true,
}

// assistantActions additionally require the ai_assistant plan feature.
var assistantActions = map[string]bool{
	"suggest_reply":        true,
	"generate_icebreaker":  true,
	"analyze_conversation": true,
}

// Service owns the agent endpoints.
type Service struct {
	appCtx *app.Context
}

func NewService(appCtx *app.Context) *Service {
	return &Service{appCtx: appCtx}
}

type executeRequest struct {
	Action  string         `json:"action" binding:"required"`
	Payload map[string]any `json:"payload"`
}

// Execute dispatches a single agent task for the caller.
func (s *Service) Execute(c *gin.Context) {
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		server.Fail(c, svcErr.InvalidArgument("%s", err.Error()))
		return
	}
	if err := s.authorize(c, req.Action); err != nil {
		server.Fail(c, err)
		return
	}

	result, err := s.appCtx.Orchestrator.Dispatch(c.Request.Context(), agent.Task{
		Action:  req.Action,
		UserID:  authn.UserID(c),
		Payload: req.Payload,
	})
	if err != nil {
		server.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type executeParallelRequest struct {
	Tasks []executeRequest `json:"tasks" binding:"required,min=1"`
}

// ExecuteParallel dispatches up to five tasks concurrently and returns the
// results in request order.
func (s *Service) ExecuteParallel(c *gin.Context) {
	var req executeParallelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		server.Fail(c, svcErr.InvalidArgument("%s", err.Error()))
		return
	}
	if len(req.Tasks) > maxParallelTasks {
		server.Fail(c, svcErr.InvalidArgument("at most %d tasks per request", maxParallelTasks))
		return
	}

	userID := authn.UserID(c)
	tasks := make([]agent.Task, 0, len(req.Tasks))
	for _, t := range req.Tasks {
		if err := s.authorize(c, t.Action); err != nil {
			server.Fail(c, err)
			return
		}
		tasks = append(tasks, agent.Task{Action: t.Action, UserID: userID, Payload: t.Payload})
	}

	results, err := s.appCtx.Orchestrator.DispatchParallel(c.Request.Context(), tasks)
	if err != nil {
		server.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// Logs returns the caller's recent agent executions.
func (s *Service) Logs(c *gin.Context) {
	logs, err := s.appCtx.AgentLogs.RecentForUser(c.Request.Context(), authn.UserID(c), 50)
	if err != nil {
		server.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

// Status reports per-agent execution stats over the last 24 hours.
func (s *Service) Status(c *gin.Context) {
	statuses, err := s.appCtx.Orchestrator.Status(c.Request.Context())
	if err != nil {
		server.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": statuses})
}

func (s *Service) authorize(c *gin.Context, action string) error {
	if c.GetString(authn.CtxRole) == "admin" {
		return nil
	}
	if !userActions[action] {
		return svcErr.PermissionDenied("action %q is not available", action)
	}
	if assistantActions[action] {
		user, err := s.appCtx.Users.GetByID(c.Request.Context(), authn.UserID(c))
		if err != nil {
			return err
		}
		plan, _ := plans.ByCode(user.SubscriptionTier)
		if !plan.Has(plans.FeatureAIAssistant) {
			return svcErr.PermissionDenied("the AI assistant requires the premium plan")
		}
	}
	return nil
}
