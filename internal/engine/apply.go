package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lakeforge/lakeforge/internal/diag"
	"github.com/lakeforge/lakeforge/internal/ir"
	"github.com/lakeforge/lakeforge/internal/logging"
	"github.com/lakeforge/lakeforge/pkg/provider"
)

// NodeStatus is the lifecycle state of one plan node during apply.
type NodeStatus string

const (
	StatusPending    NodeStatus = "pending"
	StatusInProgress NodeStatus = "in_progress"
	StatusApplied    NodeStatus = "applied"
	StatusFailed     NodeStatus = "failed"
	// StatusSkipped covers nodes never attempted: blocked on a pending
	// value, downstream of a failure, or unscheduled after cancellation.
	StatusSkipped NodeStatus = "skipped"
)

// ApplyEvent is a progress notification for one node.
type ApplyEvent struct {
	Address  string
	Action   ir.Action
	Status   NodeStatus
	Duration time.Duration
	Error    error
}

// ApplyCallback receives progress events during apply.
type ApplyCallback func(event ApplyEvent)

// ApplyStats summarizes an apply run.
type ApplyStats struct {
	Applied int
	Failed  int
	Skipped int
}

// ApplyPlan executes a plan against the providers and returns the updated
// state. Creates and updates run first in dependency order, then deletes in
// reverse dependency order. The returned state is valid even when err is
// non-nil: it reflects exactly the nodes that completed.
func (e *Engine) ApplyPlan(ctx context.Context, plan *ir.Plan, state *ir.State) (*ir.State, *ApplyStats, error) {
	return e.ApplyPlanWithCallback(ctx, plan, state, nil)
}

// ApplyPlanWithCallback is ApplyPlan with progress events. Nodes whose
// dependencies are satisfied run concurrently, bounded by e.Parallelism.
// Cancelling ctx stops scheduling new nodes but lets in-flight adapter
// calls reach a terminal state, so no provider-side operation is abandoned
// midway.
func (e *Engine) ApplyPlanWithCallback(ctx context.Context, plan *ir.Plan, state *ir.State, callback ApplyCallback) (*ir.State, *ApplyStats, error) {
	stats := &ApplyStats{}
	var mu sync.Mutex // guards state and stats

	emit := func(event ApplyEvent) {
		if callback != nil {
			callback(event)
		}
	}

	var ops, deletes []*ir.ResourceChange
	for _, change := range plan.Changes {
		if change.Blocked {
			emit(ApplyEvent{Address: change.Address, Action: change.Action, Status: StatusSkipped,
				Error: fmt.Errorf("blocked on %v", change.BlockedOn)})
			stats.Skipped++
			continue
		}
		if change.Action == ir.ActionDelete {
			deletes = append(deletes, change)
		} else {
			ops = append(ops, change)
		}
	}

	var errs []error
	if len(ops) > 0 {
		if err := e.runBatch(ctx, ops, opDependencies(ops), state, &mu, stats, emit); err != nil {
			if !e.ContinueOnError {
				return state, stats, err
			}
			errs = append(errs, err)
		}
	}

	if len(deletes) > 0 && ctx.Err() == nil {
		if err := e.runBatch(ctx, deletes, deleteDependencies(deletes), state, &mu, stats, emit); err != nil {
			if !e.ContinueOnError {
				return state, stats, err
			}
			errs = append(errs, err)
		}
	}

	state.Serial++
	if state.Outputs == nil {
		state.Outputs = make(map[string]*ir.Output)
	}
	if plan.Destroy {
		state.Outputs = map[string]*ir.Output{}
	} else if plan.Outputs != nil {
		resolved, err := resolveOutputs(plan.Outputs, state)
		if err != nil {
			errs = append(errs, err)
		} else {
			state.Outputs = resolved
		}
	}

	if len(errs) > 0 {
		return state, stats, errors.Join(errs...)
	}
	return state, stats, nil
}

// opDependencies maps each create/update node to the nodes in the same
// batch it must wait for, from explicit depends_on plus ref:// markers.
func opDependencies(changes []*ir.ResourceChange) map[string][]string {
	inBatch := make(map[string]bool, len(changes))
	for _, c := range changes {
		inBatch[c.Address] = true
	}

	deps := make(map[string][]string, len(changes))
	for _, c := range changes {
		if c.Desired == nil {
			continue
		}
		seen := make(map[string]bool)
		for _, d := range c.Desired.DependsOn {
			if inBatch[d] && !seen[d] {
				seen[d] = true
				deps[c.Address] = append(deps[c.Address], d)
			}
		}
		for _, ref := range ExtractRefs(c.Desired.Attributes) {
			if addr, _, ok := splitRef(ref); ok && inBatch[addr] && addr != c.Address && !seen[addr] {
				seen[addr] = true
				deps[c.Address] = append(deps[c.Address], addr)
			}
		}
	}
	return deps
}

// deleteDependencies inverts the recorded dependency edges: a resource's
// delete waits for the deletes of everything that depended on it.
func deleteDependencies(changes []*ir.ResourceChange) map[string][]string {
	inBatch := make(map[string]bool, len(changes))
	for _, c := range changes {
		inBatch[c.Address] = true
	}

	deps := make(map[string][]string, len(changes))
	for _, c := range changes {
		if c.Prior == nil {
			continue
		}
		for _, d := range c.Prior.Dependencies {
			if inBatch[d] {
				deps[d] = append(deps[d], c.Address)
			}
		}
	}
	return deps
}

// runBatch applies a set of changes concurrently, each node waiting for its
// in-batch dependencies to reach StatusApplied first.
func (e *Engine) runBatch(ctx context.Context, changes []*ir.ResourceChange, deps map[string][]string, state *ir.State, mu *sync.Mutex, stats *ApplyStats, emit func(ApplyEvent)) error {
	parallelism := e.Parallelism
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}

	applied := make(map[string]bool)
	failed := make(map[string]bool)
	trackMu := sync.Mutex{}
	trackCond := sync.NewCond(&trackMu)
	var firstErr error
	var allErrs []error
	sem := make(chan struct{}, parallelism)

	var wg sync.WaitGroup
	for _, change := range changes {
		wg.Add(1)
		go func(c *ir.ResourceChange) {
			defer wg.Done()

			trackMu.Lock()
			for {
				if firstErr != nil && !e.ContinueOnError {
					trackMu.Unlock()
					e.skip(c, stats, mu, emit, fmt.Errorf("run halted by earlier failure"))
					return
				}
				depFailed := ""
				ready := true
				for _, dep := range deps[c.Address] {
					if failed[dep] {
						depFailed = dep
						break
					}
					if !applied[dep] {
						ready = false
						break
					}
				}
				if depFailed != "" {
					failed[c.Address] = true
					trackMu.Unlock()
					trackCond.Broadcast()
					e.skip(c, stats, mu, emit, fmt.Errorf("dependency %s failed", depFailed))
					return
				}
				if ready {
					break
				}
				trackCond.Wait()
			}
			trackMu.Unlock()

			// Cancellation stops new work; whatever already started
			// runs to completion below under context.WithoutCancel.
			if err := ctx.Err(); err != nil {
				trackMu.Lock()
				failed[c.Address] = true
				if firstErr == nil {
					firstErr = fmt.Errorf("apply cancelled: %w", err)
				}
				trackMu.Unlock()
				trackCond.Broadcast()
				e.skip(c, stats, mu, emit, fmt.Errorf("cancelled before start"))
				return
			}

			sem <- struct{}{}
			defer func() { <-sem }()

			start := time.Now()
			emit(ApplyEvent{Address: c.Address, Action: c.Action, Status: StatusInProgress})

			err := e.applyChange(ctx, c, state, mu)

			trackMu.Lock()
			if err != nil {
				failed[c.Address] = true
				if firstErr == nil {
					firstErr = err
				}
				allErrs = append(allErrs, err)
			} else {
				applied[c.Address] = true
			}
			trackMu.Unlock()
			trackCond.Broadcast()

			mu.Lock()
			if err != nil {
				stats.Failed++
			} else {
				stats.Applied++
			}
			mu.Unlock()

			if err != nil {
				emit(ApplyEvent{Address: c.Address, Action: c.Action, Status: StatusFailed, Duration: time.Since(start), Error: err})
				return
			}
			emit(ApplyEvent{Address: c.Address, Action: c.Action, Status: StatusApplied, Duration: time.Since(start)})
		}(change)
	}
	wg.Wait()

	if e.ContinueOnError {
		if len(allErrs) > 0 {
			return fmt.Errorf("%d resource(s) failed: %w", len(allErrs), errors.Join(allErrs...))
		}
		return nil
	}
	return firstErr
}

func (e *Engine) skip(c *ir.ResourceChange, stats *ApplyStats, mu *sync.Mutex, emit func(ApplyEvent), reason error) {
	mu.Lock()
	stats.Skipped++
	mu.Unlock()
	emit(ApplyEvent{Address: c.Address, Action: c.Action, Status: StatusSkipped, Error: reason})
}

// applyChange performs one node's action against its provider and folds the
// realized attributes into state. A failed node leaves its prior state entry
// untouched so a retry starts clean.
func (e *Engine) applyChange(ctx context.Context, change *ir.ResourceChange, state *ir.State, mu *sync.Mutex) error {
	addr := change.Address
	logging.Debug("applying change", "address", addr, "action", change.Action)

	// In-flight work must reach a terminal state even if the run is
	// cancelled; only the per-resource timeout bounds it.
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultTimeout)
	defer cancel()

	provName := providerName(change)
	prov, err := e.providers.Get(provName)
	if err != nil {
		return &diag.AdapterError{Address: addr, Operation: string(change.Action), Err: err}
	}

	switch change.Action {
	case ir.ActionCreate:
		return e.applyCreate(opCtx, prov, change, state, mu)
	case ir.ActionUpdate:
		return e.applyUpdate(opCtx, prov, change, state, mu)
	case ir.ActionReplace:
		if err := e.applyDelete(opCtx, prov, change, state, mu); err != nil {
			return err
		}
		return e.applyCreate(opCtx, prov, change, state, mu)
	case ir.ActionDelete:
		return e.applyDelete(opCtx, prov, change, state, mu)
	default:
		return nil
	}
}

func (e *Engine) applyCreate(ctx context.Context, prov provider.Provider, change *ir.ResourceChange, state *ir.State, mu *sync.Mutex) error {
	res := change.Desired
	addr := change.Address

	mu.Lock()
	desired, err := resolveAttributes(res.Attributes, state)
	mu.Unlock()
	if err != nil {
		return &diag.AdapterError{Address: addr, Operation: "create", Err: err}
	}

	var resp *provider.Response
	err = RetryWithBackoff(ctx, DefaultRetryPolicy(), func() error {
		var callErr error
		resp, callErr = prov.Create(ctx, &provider.CreateRequest{
			Kind:    res.Kind,
			Name:    res.Name,
			Desired: desired,
		})
		return callErr
	}, IsRetryable)
	if err != nil {
		return wrapAdapterErr(addr, "create", err)
	}

	realized := resp.Attributes
	if resp.InProgress {
		realized, err = e.pollUntilDone(ctx, prov, res.Kind, addr, realized)
		if err != nil {
			return err
		}
	}

	e.recordApplied(change, realized, state, mu)
	return e.persist(state, mu)
}

func (e *Engine) applyUpdate(ctx context.Context, prov provider.Provider, change *ir.ResourceChange, state *ir.State, mu *sync.Mutex) error {
	res := change.Desired
	addr := change.Address

	mu.Lock()
	desired, err := resolveAttributes(res.Attributes, state)
	mu.Unlock()
	if err != nil {
		return &diag.AdapterError{Address: addr, Operation: "update", Err: err}
	}

	changed := make([]string, 0, len(change.Diff))
	for name := range change.Diff {
		changed = append(changed, name)
	}

	var resp *provider.Response
	err = RetryWithBackoff(ctx, DefaultRetryPolicy(), func() error {
		var callErr error
		resp, callErr = prov.Update(ctx, &provider.UpdateRequest{
			Kind:    res.Kind,
			Name:    res.Name,
			ID:      priorID(change.Prior),
			Desired: desired,
			Prior:   change.Prior.Outputs,
			Changed: changed,
		})
		return callErr
	}, IsRetryable)
	if err != nil {
		return wrapAdapterErr(addr, "update", err)
	}

	realized := resp.Attributes
	if resp.InProgress {
		realized, err = e.pollUntilDone(ctx, prov, res.Kind, addr, realized)
		if err != nil {
			return err
		}
	}

	e.recordApplied(change, realized, state, mu)
	return e.persist(state, mu)
}

func (e *Engine) applyDelete(ctx context.Context, prov provider.Provider, change *ir.ResourceChange, state *ir.State, mu *sync.Mutex) error {
	addr := change.Address
	prior := change.Prior
	if prior == nil {
		return nil
	}

	err := RetryWithBackoff(ctx, DefaultRetryPolicy(), func() error {
		return prov.Delete(ctx, &provider.DeleteRequest{
			Kind:  prior.Kind,
			ID:    priorID(prior),
			Prior: prior.Outputs,
		})
	}, IsRetryable)
	if err != nil {
		return wrapAdapterErr(addr, "delete", err)
	}

	mu.Lock()
	for i, rs := range state.Resources {
		if rs.Addr() == addr {
			state.Resources = append(state.Resources[:i], state.Resources[i+1:]...)
			break
		}
	}
	mu.Unlock()
	return e.persist(state, mu)
}

// resolveAttributes resolves a declaration's ref:// markers into a concrete
// attribute map. A declaration without attributes yields an empty map.
func resolveAttributes(attrs map[string]any, state *ir.State) (map[string]any, error) {
	if attrs == nil {
		return map[string]any{}, nil
	}
	resolved, err := ResolveRefs(attrs, state)
	if err != nil {
		return nil, err
	}
	return resolved.(map[string]any), nil
}

// pollUntilDone polls Read with bounded backoff until the adapter reports a
// terminal state or the operation context times out.
func (e *Engine) pollUntilDone(ctx context.Context, prov provider.Provider, kind, addr string, lastKnown map[string]any) (map[string]any, error) {
	policy := DefaultPollPolicy()
	id := ""
	if lastKnown != nil {
		if v, ok := lastKnown["id"].(string); ok {
			id = v
		}
	}

	for attempt := 0; ; attempt++ {
		select {
		case <-ctx.Done():
			return nil, &diag.TimeoutError{Address: addr, Timeout: DefaultTimeout}
		case <-time.After(Backoff(attempt, policy)):
		}

		resp, err := prov.Read(ctx, &provider.ReadRequest{Kind: kind, ID: id, Prior: lastKnown})
		if errors.Is(err, provider.ErrInProgress) {
			continue
		}
		if err != nil {
			return nil, wrapAdapterErr(addr, "read", err)
		}
		if resp.InProgress {
			continue
		}
		return resp.Attributes, nil
	}
}

// recordApplied merges a node's realized attributes into state, replacing
// any prior entry at the same address.
func (e *Engine) recordApplied(change *ir.ResourceChange, realized map[string]any, state *ir.State, mu *sync.Mutex) {
	res := change.Desired
	entry := &ir.ResourceState{
		Kind:         res.Kind,
		Name:         res.Name,
		Provider:     res.Provider,
		Inputs:       res.Attributes,
		InputsHash:   HashAttributes(res.Attributes),
		Outputs:      realized,
		Dependencies: dependencyAddrs(res),
	}

	mu.Lock()
	defer mu.Unlock()
	for i, rs := range state.Resources {
		if rs.Addr() == change.Address {
			state.Resources[i] = entry
			return
		}
	}
	state.Resources = append(state.Resources, entry)
}

func (e *Engine) persist(state *ir.State, mu *sync.Mutex) error {
	if e.Persist == nil {
		return nil
	}
	mu.Lock()
	defer mu.Unlock()
	if err := e.Persist(state); err != nil {
		return fmt.Errorf("failed to persist state: %w", err)
	}
	return nil
}

// dependencyAddrs records the addresses a resource depends on, explicit and
// implicit, for later destroy ordering.
func dependencyAddrs(res *ir.Resource) []string {
	seen := make(map[string]bool)
	var deps []string
	for _, d := range res.DependsOn {
		if !seen[d] {
			seen[d] = true
			deps = append(deps, d)
		}
	}
	for _, ref := range ExtractRefs(res.Attributes) {
		if addr, _, ok := splitRef(ref); ok && addr != res.Addr() && !seen[addr] {
			seen[addr] = true
			deps = append(deps, addr)
		}
	}
	return deps
}

func providerName(change *ir.ResourceChange) string {
	if change.Desired != nil {
		return change.Desired.Provider
	}
	if change.Prior != nil {
		return change.Prior.Provider
	}
	return "local"
}

func priorID(prior *ir.ResourceState) string {
	if prior == nil || prior.Outputs == nil {
		return ""
	}
	if id, ok := prior.Outputs["id"].(string); ok {
		return id
	}
	return fmt.Sprintf("%v", prior.Outputs["id"])
}

func wrapAdapterErr(addr, op string, err error) error {
	var ae *diag.AdapterError
	if errors.As(err, &ae) {
		if ae.Address == "" {
			ae.Address = addr
		}
		return err
	}
	var te *diag.TimeoutError
	if errors.As(err, &te) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &diag.TimeoutError{Address: addr, Timeout: DefaultTimeout}
	}
	return &diag.AdapterError{Address: addr, Operation: op, Retryable: IsTransientError(err), Err: err}
}

// resolveOutputs resolves declared outputs' ref:// markers against the final
// state. Outputs referencing blocked or failed resources are carried over
// unresolved rather than failing the run.
func resolveOutputs(outputs map[string]*ir.Output, state *ir.State) (map[string]*ir.Output, error) {
	resolved := make(map[string]*ir.Output, len(outputs))
	for name, out := range outputs {
		val, err := ResolveRefs(out.Value, state)
		if err != nil {
			val = out.Value
		}
		resolved[name] = &ir.Output{Value: val, Sensitive: out.Sensitive}
	}
	return resolved, nil
}
