package agent

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jodi-app/jodi-server/internal/errors"
	"github.com/jodi-app/jodi-server/internal/repository"
)

// Orchestrator routes actions to agents and fans out parallel batches.
type Orchestrator struct {
	runner  *Runner
	logs    *repository.AgentLogRepository
	agents  map[string]Agent // by name
	routing map[string]Agent // by action
}

func NewOrchestrator(runner *Runner, logs *repository.AgentLogRepository, agents ...Agent) *Orchestrator {
	o := &Orchestrator{
		runner:  runner,
		logs:    logs,
		agents:  make(map[string]Agent, len(agents)),
		routing: make(map[string]Agent),
	}
	for _, a := range agents {
		o.agents[a.Name()] = a
		for _, action := range a.Handles() {
			o.routing[action] = a
		}
	}
	return o
}

// Agent returns a registered agent by name, for services that call one
// specialist directly.
func (o *Orchestrator) Agent(name string) Agent {
	return o.agents[name]
}

// Dispatch routes one action to its agent.
func (o *Orchestrator) Dispatch(ctx context.Context, task Task) (*Result, error) {
	a, ok := o.routing[task.Action]
	if !ok {
		return nil, errors.InvalidArgument("unknown action: %s", task.Action)
	}
	return o.runner.Run(ctx, a, task)
}

// DispatchParallel runs independent tasks concurrently and returns results
// in input order. Individual failures land in their Result; the batch itself
// only errors on unroutable actions.
func (o *Orchestrator) DispatchParallel(ctx context.Context, tasks []Task) ([]*Result, error) {
	for _, t := range tasks {
		if _, ok := o.routing[t.Action]; !ok {
			return nil, errors.InvalidArgument("unknown action: %s", t.Action)
		}
	}

	results := make([]*Result, len(tasks))
	var wg sync.WaitGroup
	for i, t := range tasks {
		wg.Add(1)
		go func(i int, t Task) {
			defer wg.Done()
			res, err := o.runner.Run(ctx, o.routing[t.Action], t)
			if res == nil {
				res = &Result{Action: t.Action, Success: false, Error: err.Error()}
			}
			results[i] = res
		}(i, t)
	}
	wg.Wait()
	return results, nil
}

// AgentStatus is one agent's health summary.
type AgentStatus struct {
	Name       string   `json:"name"`
	Version    string   `json:"version"`
	Actions    []string `json:"actions"`
	Executions int64    `json:"executions_24h"`
	Failures   int64    `json:"failures_24h"`
	AvgTimeMS  float64  `json:"avg_time_ms"`
	TokensUsed int64    `json:"tokens_used_24h"`
}

// Status reports every registered agent with its last-24h aggregates.
func (o *Orchestrator) Status(ctx context.Context) ([]AgentStatus, error) {
	byName := map[string]repository.AgentStats{}
	if o.logs != nil {
		stats, err := o.logs.Stats(ctx, time.Now().UTC().Add(-24*time.Hour))
		if err != nil {
			return nil, err
		}
		for _, s := range stats {
			byName[s.AgentName] = s
		}
	}

	out := make([]AgentStatus, 0, len(o.agents))
	for _, a := range o.agents {
		s := byName[a.Name()]
		out = append(out, AgentStatus{
			Name:       a.Name(),
			Version:    a.Version(),
			Actions:    a.Handles(),
			Executions: s.Executions,
			Failures:   s.Failures,
			AvgTimeMS:  s.AvgTimeMS,
			TokensUsed: s.TokensUsed,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
