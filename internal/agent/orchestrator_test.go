package agent

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jodi-app/jodi-server/internal/repository"
)

type echoAgent struct {
	name    string
	actions []string
	fail    bool
}

func (e *echoAgent) Name() string      { return e.name }
func (e *echoAgent) Version() string   { return "0.1" }
func (e *echoAgent) Handles() []string { return e.actions }

func (e *echoAgent) Process(_ context.Context, task Task) (*Outcome, error) {
	if e.fail {
		return nil, fmt.Errorf("%s is broken", e.name)
	}
	return &Outcome{Data: map[string]any{"echo": task.Action}, TokensUsed: 7}, nil
}

func TestDispatchRoutesByAction(t *testing.T) {
	gdb := newAgentTestDB(t)
	logs := repository.NewAgentLogRepository(gdb)
	runner := NewRunner(logs)

	o := NewOrchestrator(runner, logs,
		&echoAgent{name: "alpha", actions: []string{"do_a", "do_b"}},
		&echoAgent{name: "beta", actions: []string{"do_c"}},
	)

	res, err := o.Dispatch(context.Background(), Task{Action: "do_c", UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "beta", res.Agent)
	assert.True(t, res.Success)
	assert.Equal(t, "do_c", res.Data["echo"])

	_, err = o.Dispatch(context.Background(), Task{Action: "do_z"})
	assert.Error(t, err)
}

func TestDispatchRecordsAgentLog(t *testing.T) {
	gdb := newAgentTestDB(t)
	logs := repository.NewAgentLogRepository(gdb)
	runner := NewRunner(logs)
	o := NewOrchestrator(runner, logs,
		&echoAgent{name: "alpha", actions: []string{"do_a"}},
		&echoAgent{name: "broken", actions: []string{"do_fail"}, fail: true},
	)
	ctx := context.Background()

	_, err := o.Dispatch(ctx, Task{Action: "do_a", UserID: "u1", Payload: map[string]any{"k": "v"}})
	require.NoError(t, err)
	_, err = o.Dispatch(ctx, Task{Action: "do_fail", UserID: "u1"})
	require.Error(t, err)

	entries, err := logs.RecentForUser(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byAgent := map[string]bool{}
	for _, e := range entries {
		byAgent[e.AgentName] = e.Success
	}
	assert.True(t, byAgent["alpha"])
	assert.False(t, byAgent["broken"])
}

func TestDispatchParallelKeepsOrder(t *testing.T) {
	gdb := newAgentTestDB(t)
	logs := repository.NewAgentLogRepository(gdb)
	o := NewOrchestrator(NewRunner(logs), logs,
		&echoAgent{name: "alpha", actions: []string{"do_a"}},
		&echoAgent{name: "beta", actions: []string{"do_b"}},
		&echoAgent{name: "broken", actions: []string{"do_fail"}, fail: true},
	)

	results, err := o.DispatchParallel(context.Background(), []Task{
		{Action: "do_a"}, {Action: "do_fail"}, {Action: "do_b"},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "alpha", results[0].Agent)
	assert.False(t, results[1].Success)
	assert.NotEmpty(t, results[1].Error)
	assert.Equal(t, "beta", results[2].Agent)

	// One unroutable action fails the whole batch up front.
	_, err = o.DispatchParallel(context.Background(), []Task{{Action: "do_a"}, {Action: "nope"}})
	assert.Error(t, err)
}

func TestStatusAggregates(t *testing.T) {
	gdb := newAgentTestDB(t)
	logs := repository.NewAgentLogRepository(gdb)
	o := NewOrchestrator(NewRunner(logs), logs,
		&echoAgent{name: "alpha", actions: []string{"do_a"}},
		&echoAgent{name: "beta", actions: []string{"do_b"}},
	)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := o.Dispatch(ctx, Task{Action: "do_a", UserID: "u1"})
		require.NoError(t, err)
	}

	status, err := o.Status(ctx)
	require.NoError(t, err)
	require.Len(t, status, 2)
	assert.Equal(t, "alpha", status[0].Name)
	assert.Equal(t, int64(3), status[0].Executions)
	assert.Equal(t, int64(21), status[0].TokensUsed)
	assert.Equal(t, "beta", status[1].Name)
	assert.Equal(t, int64(0), status[1].Executions)
}
