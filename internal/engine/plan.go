package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/lakeforge/lakeforge/internal/diag"
	"github.com/lakeforge/lakeforge/internal/ir"
	"github.com/lakeforge/lakeforge/internal/logging"
	"github.com/lakeforge/lakeforge/internal/provider"
	"github.com/lakeforge/lakeforge/internal/schema"
)

// Engine orchestrates planning and applying of resource declarations.
type Engine struct {
	schemas   *schema.Registry
	providers *provider.Registry

	// Parallelism bounds the number of concurrent adapter calls.
	Parallelism int
	// ContinueOnError applies independent subtrees past failures instead
	// of halting the run.
	ContinueOnError bool
	// Persist, when set, is called after every successfully applied node
	// so state survives partial failures. Calls are serialized.
	Persist func(state *ir.State) error
}

func New(schemas *schema.Registry, providers *provider.Registry) *Engine {
	return &Engine{
		schemas:     schemas,
		providers:   providers,
		Parallelism: DefaultParallelism,
	}
}

// CreatePlan diffs the desired configuration against prior state and
// produces an ordered plan. Planning never calls a provider adapter: the
// plan is a pure function of declarations, prior state and the schema
// registry, so planning twice over unchanged input yields identical plans.
func (e *Engine) CreatePlan(ctx context.Context, cfg *ir.Config, state *ir.State) (*ir.Plan, error) {
	logging.Debug("creating plan", "resources", len(cfg.Resources), "state_resources", len(state.Resources))

	resources := ExpandForEach(cfg.Resources)

	for _, res := range resources {
		if err := e.schemas.Validate(res.Kind, res.Attributes, isDeferredValue); err != nil {
			return nil, &diag.SchemaViolationError{Address: res.Addr(), Err: err}
		}
	}

	graph, err := BuildGraph(resources)
	if err != nil {
		return nil, err
	}

	byAddr := make(map[string]*ir.Resource, len(resources))
	for _, res := range resources {
		byAddr[res.Addr()] = res
	}

	plan := &ir.Plan{
		Metadata: &ir.PlanMetadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Serial:    state.Serial,
		},
		Changes: []*ir.ResourceChange{},
		Summary: &ir.PlanSummary{},
		Outputs: cfg.Outputs,
	}

	blocked := make(map[string]bool)

	for _, addr := range graph.CreationOrder() {
		res := byAddr[addr]
		prior := state.Resource(addr)
		kindSchema, _ := e.schemas.Kind(res.Kind)

		change := e.diffResource(res, prior, kindSchema)

		// A node is blocked when its attributes still carry a pending
		// value, or when anything upstream of it is blocked.
		var blockedOn []string
		if ContainsPending(res.Attributes) {
			blockedOn = append(blockedOn, pendingLabels(res.Attributes)...)
		}
		for _, dep := range graph.Dependencies(addr) {
			if blocked[dep] {
				blockedOn = append(blockedOn, dep)
			}
		}
		if len(blockedOn) > 0 && change.Action != ir.ActionNoOp {
			blocked[addr] = true
			change.Blocked = true
			change.BlockedOn = dedupe(blockedOn)
			plan.Summary.Blocked++
		}

		switch change.Action {
		case ir.ActionNoOp:
			plan.Summary.NoOp++
		case ir.ActionCreate:
			plan.Summary.Create++
			plan.Changes = append(plan.Changes, change)
		case ir.ActionUpdate:
			plan.Summary.Update++
			plan.Changes = append(plan.Changes, change)
		case ir.ActionReplace:
			plan.Summary.Replace++
			plan.Changes = append(plan.Changes, change)
		}
	}

	// Resources recorded in state but no longer declared are deleted, in
	// reverse dependency order so dependents go first.
	var orphaned []*ir.ResourceState
	for _, rs := range state.Resources {
		if _, declared := byAddr[rs.Addr()]; !declared {
			orphaned = append(orphaned, rs)
		}
	}
	if len(orphaned) > 0 {
		deletes, err := deleteChanges(state, orphaned)
		if err != nil {
			return nil, err
		}
		plan.Changes = append(plan.Changes, deletes...)
		plan.Summary.Delete += len(deletes)
	}

	plan.Metadata.ConfigHash = configHash(resources)

	return plan, nil
}

// CreateDestroyPlan produces an all-delete plan over everything in state,
// ordered so dependents are removed before the resources they depend on.
func (e *Engine) CreateDestroyPlan(ctx context.Context, state *ir.State) (*ir.Plan, error) {
	plan := &ir.Plan{
		Metadata: &ir.PlanMetadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Serial:    state.Serial,
		},
		Changes: []*ir.ResourceChange{},
		Summary: &ir.PlanSummary{},
		Destroy: true,
	}

	deletes, err := deleteChanges(state, state.Resources)
	if err != nil {
		return nil, err
	}
	plan.Changes = append(plan.Changes, deletes...)
	plan.Summary.Delete = len(deletes)

	return plan, nil
}

// deleteChanges orders delete actions for the given state entries using the
// full state graph's destruction order.
func deleteChanges(state *ir.State, doomed []*ir.ResourceState) ([]*ir.ResourceChange, error) {
	graph, err := BuildGraphFromState(state.Resources)
	if err != nil {
		return nil, err
	}

	doomedSet := make(map[string]*ir.ResourceState, len(doomed))
	for _, rs := range doomed {
		doomedSet[rs.Addr()] = rs
	}

	var changes []*ir.ResourceChange
	for _, addr := range graph.DestructionOrder() {
		rs, ok := doomedSet[addr]
		if !ok {
			continue
		}
		changes = append(changes, &ir.ResourceChange{
			Address: addr,
			Action:  ir.ActionDelete,
			Prior:   rs,
			Diff:    deleteDiff(rs.Inputs),
		})
	}
	return changes, nil
}

// diffResource computes the action and attribute diff for one resource.
func (e *Engine) diffResource(res *ir.Resource, prior *ir.ResourceState, kindSchema *schema.Resource) *ir.ResourceChange {
	change := &ir.ResourceChange{
		Address: res.Addr(),
		Desired: res,
		Prior:   prior,
	}

	if prior == nil {
		change.Action = ir.ActionCreate
		change.Diff = createDiff(res.Attributes, kindSchema)
		return change
	}

	desiredHash := HashAttributes(res.Attributes)
	if desiredHash == prior.InputsHash {
		change.Action = ir.ActionNoOp
		return change
	}

	// Update carries only the changed attributes. An update touching any
	// attribute the schema marks ForcesReplacement becomes a replace.
	diff := make(map[string]*ir.AttributeDiff)
	replace := false
	allKeys := make(map[string]bool)
	for k := range prior.Inputs {
		allKeys[k] = true
	}
	for k := range res.Attributes {
		allKeys[k] = true
	}

	for k := range allKeys {
		priorVal, inPrior := prior.Inputs[k]
		desiredVal, inDesired := res.Attributes[k]
		spec := kindSchema.Attributes[k]

		switch {
		case !inPrior:
			diff[k] = &ir.AttributeDiff{After: desiredVal, Action: ir.ActionCreate}
		case !inDesired:
			diff[k] = &ir.AttributeDiff{Before: priorVal, Action: ir.ActionDelete}
		case !ValuesEqual(priorVal, desiredVal):
			diff[k] = &ir.AttributeDiff{Before: priorVal, After: desiredVal, Action: ir.ActionUpdate}
		default:
			continue
		}
		if spec != nil {
			diff[k].Sensitive = spec.Sensitive
			diff[k].ForcesReplacement = spec.ForcesReplacement
			if spec.ForcesReplacement {
				replace = true
			}
		}
	}

	if len(diff) == 0 {
		// Hash differs only through encoding noise.
		change.Action = ir.ActionNoOp
		return change
	}

	change.Diff = diff
	if replace {
		change.Action = ir.ActionReplace
	} else {
		change.Action = ir.ActionUpdate
	}
	return change
}

func createDiff(attrs map[string]any, kindSchema *schema.Resource) map[string]*ir.AttributeDiff {
	diff := make(map[string]*ir.AttributeDiff, len(attrs))
	for k, v := range attrs {
		d := &ir.AttributeDiff{After: v, Action: ir.ActionCreate}
		if spec := kindSchema.Attributes[k]; spec != nil {
			d.Sensitive = spec.Sensitive
		}
		diff[k] = d
	}
	return diff
}

func deleteDiff(attrs map[string]any) map[string]*ir.AttributeDiff {
	diff := make(map[string]*ir.AttributeDiff, len(attrs))
	for k, v := range attrs {
		diff[k] = &ir.AttributeDiff{Before: v, Action: ir.ActionDelete}
	}
	return diff
}

// configHash summarizes the whole declaration set for plan metadata.
func configHash(resources []*ir.Resource) string {
	lines := make([]string, 0, len(resources))
	for _, res := range resources {
		lines = append(lines, res.Addr()+":"+HashAttributes(res.Attributes))
	}
	sort.Strings(lines)
	joined := make(map[string]any, 1)
	joined["resources"] = toAnySlice(lines)
	return HashAttributes(joined)
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// pendingLabels collects human-readable labels of pending markers in a value.
func pendingLabels(v any) []string {
	var labels []string
	switch val := v.(type) {
	case string:
		if ir.IsPending(val) {
			labels = append(labels, fmt.Sprintf("pending value %q", val[len(ir.PendingScheme):]))
		} else if containsPendingSubstring(val) {
			labels = append(labels, fmt.Sprintf("pending value embedded in %q", val))
		}
	case map[string]any:
		for _, k := range sortedKeys(val) {
			labels = append(labels, pendingLabels(val[k])...)
		}
	case []any:
		for _, e := range val {
			labels = append(labels, pendingLabels(e)...)
		}
	}
	return labels
}

func dedupe(ss []string) []string {
	seen := make(map[string]bool, len(ss))
	var out []string
	for _, s := range ss {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// isDeferredValue mirrors config.isDeferred for post-expansion validation.
func isDeferredValue(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	return refPattern.MatchString(s) || containsPendingSubstring(s)
}
