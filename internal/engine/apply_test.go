package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakeforge/lakeforge/internal/ir"
	"github.com/lakeforge/lakeforge/internal/provider"
	"github.com/lakeforge/lakeforge/internal/schema"
	"github.com/lakeforge/lakeforge/providers/local"
)

func newApplyEngine() (*Engine, *local.Provider) {
	prov := local.New()
	reg := provider.NewRegistry()
	reg.Register("local", prov)
	return New(schema.DefaultRegistry(), reg), prov
}

func localResource(name string, content map[string]any, deps ...string) *ir.Resource {
	return &ir.Resource{
		Kind:       "local_object",
		Name:       name,
		Provider:   "local",
		DependsOn:  deps,
		Attributes: map[string]any{"content": content},
	}
}

func planFor(t *testing.T, eng *Engine, st *ir.State, resources ...*ir.Resource) *ir.Plan {
	t.Helper()
	plan, err := eng.CreatePlan(context.Background(), &ir.Config{Resources: resources}, st)
	require.NoError(t, err)
	return plan
}

func stateEntry(st *ir.State, addr string) *ir.ResourceState {
	for _, rs := range st.Resources {
		if rs.Addr() == addr {
			return rs
		}
	}
	return nil
}

func TestApplyPlan_CreatesInDependencyOrder(t *testing.T) {
	eng, prov := newApplyEngine()
	st := ir.NewState()
	plan := planFor(t, eng, st,
		localResource("base", map[string]any{"tier": "bronze"}),
		localResource("child", map[string]any{
			"upstream": ir.Ref("local_object.base", "id"),
		}),
	)

	var mu sync.Mutex
	var order []string
	newState, stats, err := eng.ApplyPlanWithCallback(context.Background(), plan, st, func(ev ApplyEvent) {
		if ev.Status == StatusApplied {
			mu.Lock()
			order = append(order, ev.Address)
			mu.Unlock()
		}
	})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Applied)
	assert.Equal(t, []string{"local_object.base", "local_object.child"}, order)
	assert.True(t, prov.Exists("local-local_object-base"))
	assert.True(t, prov.Exists("local-local_object-child"))

	base := stateEntry(newState, "local_object.base")
	require.NotNil(t, base)
	assert.Equal(t, "local-local_object-base", base.Outputs["id"])
	assert.NotEmpty(t, base.InputsHash)

	child := stateEntry(newState, "local_object.child")
	require.NotNil(t, child)
	assert.Equal(t, []string{"local_object.base"}, child.Dependencies)

	// The marker was resolved before the adapter saw it.
	content := child.Outputs["content"].(map[string]any)
	assert.Equal(t, "local-local_object-base", content["upstream"])
}

func TestApplyPlan_FailFastSkipsDependents(t *testing.T) {
	eng, prov := newApplyEngine()
	prov.FailNext["create:local_object.b"] = errors.New("access denied")

	st := ir.NewState()
	plan := planFor(t, eng, st,
		localResource("a", map[string]any{"n": "1"}),
		localResource("b", map[string]any{"n": "2"}, "local_object.a"),
		localResource("c", map[string]any{"n": "3"}, "local_object.b"),
	)

	newState, stats, err := eng.ApplyPlan(context.Background(), plan, st)
	require.Error(t, err)

	assert.Equal(t, 1, stats.Applied)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Skipped)

	assert.NotNil(t, stateEntry(newState, "local_object.a"))
	assert.Nil(t, stateEntry(newState, "local_object.b"))
	assert.Nil(t, stateEntry(newState, "local_object.c"))
}

func TestApplyPlan_ContinueOnError(t *testing.T) {
	eng, prov := newApplyEngine()
	eng.ContinueOnError = true
	prov.FailNext["create:local_object.broken"] = errors.New("access denied")

	st := ir.NewState()
	plan := planFor(t, eng, st,
		localResource("broken", map[string]any{"n": "1"}),
		localResource("dependent", map[string]any{"n": "2"}, "local_object.broken"),
		localResource("independent", map[string]any{"n": "3"}),
	)

	newState, stats, err := eng.ApplyPlan(context.Background(), plan, st)
	require.Error(t, err)

	assert.Equal(t, 1, stats.Applied)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Skipped)
	assert.NotNil(t, stateEntry(newState, "local_object.independent"))
}

func TestApplyPlan_BlockedChangesAreSkipped(t *testing.T) {
	eng, _ := newApplyEngine()
	st := ir.NewState()
	plan := planFor(t, eng, st,
		localResource("ok", map[string]any{"n": "1"}),
		localResource("waiting", map[string]any{
			"principal": ir.Pending("external principal arn"),
		}),
		localResource("downstream", map[string]any{"n": "2"}, "local_object.waiting"),
	)
	require.Equal(t, 2, plan.Summary.Blocked)

	var skipped []string
	_, stats, err := eng.ApplyPlanWithCallback(context.Background(), plan, st, func(ev ApplyEvent) {
		if ev.Status == StatusSkipped {
			skipped = append(skipped, ev.Address)
		}
	})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Applied)
	assert.Equal(t, 2, stats.Skipped)
	assert.ElementsMatch(t, []string{"local_object.waiting", "local_object.downstream"}, skipped)
}

func TestApplyPlan_UpdateChangesOnlyDiffedAttributes(t *testing.T) {
	eng, _ := newApplyEngine()
	st := ir.NewState()
	plan := planFor(t, eng, st, localResource("obj", map[string]any{"tier": "bronze"}))
	st, _, err := eng.ApplyPlan(context.Background(), plan, st)
	require.NoError(t, err)
	firstToken := stateEntry(st, "local_object.obj").Outputs["token"]

	plan = planFor(t, eng, st, localResource("obj", map[string]any{"tier": "silver"}))
	require.Equal(t, 1, plan.Summary.Update)

	newState, stats, err := eng.ApplyPlan(context.Background(), plan, st)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Applied)
	entry := stateEntry(newState, "local_object.obj")
	content := entry.Outputs["content"].(map[string]any)
	assert.Equal(t, "silver", content["tier"])
	assert.NotEqual(t, firstToken, entry.Outputs["token"])
}

func TestApplyPlan_DestroyReversesDependencyOrder(t *testing.T) {
	eng, _ := newApplyEngine()
	st := ir.NewState()
	plan := planFor(t, eng, st,
		localResource("base", map[string]any{"n": "1"}),
		localResource("child", map[string]any{"n": "2"}, "local_object.base"),
	)
	st, _, err := eng.ApplyPlan(context.Background(), plan, st)
	require.NoError(t, err)

	destroy, err := eng.CreateDestroyPlan(context.Background(), st)
	require.NoError(t, err)

	var mu sync.Mutex
	var order []string
	newState, stats, err := eng.ApplyPlanWithCallback(context.Background(), destroy, st, func(ev ApplyEvent) {
		if ev.Status == StatusApplied {
			mu.Lock()
			order = append(order, ev.Address)
			mu.Unlock()
		}
	})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Applied)
	assert.Equal(t, []string{"local_object.child", "local_object.base"}, order)
	assert.Empty(t, newState.Resources)
	assert.Empty(t, newState.Outputs)
}

func TestApplyPlan_AsyncCreatePollsUntilDone(t *testing.T) {
	if testing.Short() {
		t.Skip("polls with real backoff delays")
	}
	eng, prov := newApplyEngine()
	prov.AsyncReads = 2

	st := ir.NewState()
	plan := planFor(t, eng, st, localResource("slow", map[string]any{"n": "1"}))

	newState, stats, err := eng.ApplyPlan(context.Background(), plan, st)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Applied)
	entry := stateEntry(newState, "local_object.slow")
	require.NotNil(t, entry)
	assert.Equal(t, "local-local_object-slow", entry.Outputs["id"])
}

func TestApplyPlan_PersistsStateAfterEachResource(t *testing.T) {
	eng, _ := newApplyEngine()
	var mu sync.Mutex
	persisted := 0
	eng.Persist = func(st *ir.State) error {
		mu.Lock()
		persisted++
		mu.Unlock()
		return nil
	}

	st := ir.NewState()
	plan := planFor(t, eng, st,
		localResource("a", map[string]any{"n": "1"}),
		localResource("b", map[string]any{"n": "2"}, "local_object.a"),
	)
	_, stats, err := eng.ApplyPlan(context.Background(), plan, st)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Applied)
	assert.Equal(t, 2, persisted)
}

func TestApplyPlan_NilAttributes(t *testing.T) {
	eng, prov := newApplyEngine()
	st := ir.NewState()
	bare := &ir.Resource{Kind: "local_object", Name: "bare", Provider: "local"}
	plan := planFor(t, eng, st, bare)

	newState, stats, err := eng.ApplyPlan(context.Background(), plan, st)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Applied)
	assert.True(t, prov.Exists("local-local_object-bare"))
	require.NotNil(t, stateEntry(newState, "local_object.bare"))
}

func TestApplyPlan_CancelledBeforeStart(t *testing.T) {
	eng, prov := newApplyEngine()
	st := ir.NewState()
	plan := planFor(t, eng, st, localResource("never", map[string]any{"n": "1"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, stats, err := eng.ApplyPlan(ctx, plan, st)
	require.Error(t, err)

	assert.Equal(t, 0, stats.Applied)
	assert.Equal(t, 1, stats.Skipped)
	assert.False(t, prov.Exists("local-local_object-never"))
}
