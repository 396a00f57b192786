// Package agent contains the AI agents behind discovery, chat assistance,
// safety screening, fraud checks and billing, plus the orchestrator that
// routes actions to them. Every execution is persisted to agent_logs.
package agent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jodi-app/jodi-server/internal/db"
	"github.com/jodi-app/jodi-server/internal/logger"
	"github.com/jodi-app/jodi-server/internal/repository"
)

// Task is one unit of agent work.
type Task struct {
	Action  string         `json:"action"`
	UserID  string         `json:"user_id,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Outcome is what an agent produces. TokensUsed is zero when the agent
// answered heuristically without an LLM call.
type Outcome struct {
	Data       map[string]any
	TokensUsed int
}

// Agent is one specialist. Handles lists the actions it accepts.
type Agent interface {
	Name() string
	Version() string
	Handles() []string
	Process(ctx context.Context, task Task) (*Outcome, error)
}

// Result is the orchestrator's envelope around an outcome.
type Result struct {
	Agent           string         `json:"agent"`
	Action          string         `json:"action"`
	Success         bool           `json:"success"`
	Data            map[string]any `json:"data,omitempty"`
	Error           string         `json:"error,omitempty"`
	ExecutionTimeMS int64          `json:"execution_time_ms"`
}

// Runner executes an agent and records the attempt. Logging failures never
// fail the task itself.
type Runner struct {
	logs *repository.AgentLogRepository
}

func NewRunner(logs *repository.AgentLogRepository) *Runner {
	return &Runner{logs: logs}
}

func (r *Runner) Run(ctx context.Context, a Agent, task Task) (*Result, error) {
	start := time.Now()
	outcome, err := a.Process(ctx, task)
	elapsed := time.Since(start)

	result := &Result{
		Agent:           a.Name(),
		Action:          task.Action,
		Success:         err == nil,
		ExecutionTimeMS: elapsed.Milliseconds(),
	}
	tokens := 0
	if outcome != nil {
		result.Data = outcome.Data
		tokens = outcome.TokensUsed
	}
	if err != nil {
		result.Error = err.Error()
	}

	r.record(ctx, a, task, result, tokens)
	return result, err
}

func (r *Runner) record(ctx context.Context, a Agent, task Task, result *Result, tokens int) {
	if r.logs == nil {
		return
	}
	entry := &db.AgentLog{
		AgentName:       a.Name(),
		AgentVersion:    a.Version(),
		RequestType:     task.Action,
		InputPayload:    marshalPayload(task.Payload),
		OutputPayload:   marshalPayload(result.Data),
		ExecutionTimeMS: int(result.ExecutionTimeMS),
		TokensUsed:      tokens,
		Success:         result.Success,
		ErrorMessage:    result.Error,
	}
	if task.UserID != "" {
		entry.UserID = &task.UserID
	}
	if err := r.logs.Create(ctx, entry); err != nil {
		logger.Warn("agent log write failed", "agent", a.Name(), "action", task.Action, "error", err)
	}
}

func marshalPayload(payload map[string]any) string {
	if len(payload) == 0 {
		return ""
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return string(raw)
}
