package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lakeforge/lakeforge/internal/config"
	"github.com/lakeforge/lakeforge/internal/engine"
	"github.com/lakeforge/lakeforge/internal/ir"
	"github.com/lakeforge/lakeforge/internal/provider"
	"github.com/lakeforge/lakeforge/internal/schema"
	"github.com/lakeforge/lakeforge/internal/state"
)

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorGray   = "\033[90m"
)

const redactedPlaceholder = "(sensitive value)"

// workspace bundles everything a command needs once the configuration
// directory is loaded.
type workspace struct {
	schemas   *schema.Registry
	registry  *provider.Registry
	engine    *engine.Engine
	config    *ir.Config
	variables map[string]*config.Variable
	backend   state.Backend
}

func statePath() string {
	if flagState != "" {
		return flagState
	}
	return filepath.Join(".lakeforge", "state.json")
}

// newBackend builds the state backend selected by --backend, overlaying any
// --backend-config key=value pairs. The local backend stores at the --state
// path unless the config overrides it.
func newBackend() (state.Backend, error) {
	cfg := &state.BackendConfig{
		Type:   flagBackend,
		Config: map[string]string{"path": statePath()},
	}
	for _, entry := range flagBackendConfig {
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("invalid backend config %q: expected key=value", entry)
		}
		cfg.Config[key] = value
	}
	return state.NewBackend(cfg)
}

// loadWorkspace parses the current directory's declarations and prepares
// providers and the engine. Provider adapters are only loaded when
// withProviders is set, so read-only commands never touch credentials.
func loadWorkspace(ctx context.Context, withProviders bool) (*workspace, error) {
	schemas := schema.DefaultRegistry()
	loader := config.NewLoader(schemas)

	result, err := loader.LoadDir(".", &config.Options{VarFiles: flagVarFiles})
	if err != nil {
		return nil, err
	}

	registry := provider.NewRegistry()
	for name, settings := range result.ProviderSettings {
		registry.Configure(name, settings)
	}

	backend, err := newBackend()
	if err != nil {
		return nil, err
	}

	ws := &workspace{
		schemas:   schemas,
		registry:  registry,
		engine:    engine.New(schemas, registry),
		config:    result.Config,
		variables: result.Variables,
		backend:   backend,
	}

	if withProviders {
		if err := ws.loadProviders(ctx, result.Config, nil); err != nil {
			return nil, err
		}
	}
	return ws, nil
}

// loadProviders loads every adapter referenced by the configuration or by
// prior state (deletes need the adapters of resources no longer declared).
func (ws *workspace) loadProviders(ctx context.Context, cfg *ir.Config, st *ir.State) error {
	seen := make(map[string]bool)
	if cfg != nil {
		for _, res := range cfg.Resources {
			if res.Provider != "" && !seen[res.Provider] {
				seen[res.Provider] = true
				if err := ws.registry.Load(ctx, res.Provider); err != nil {
					return fmt.Errorf("failed to load provider %s: %w", res.Provider, err)
				}
			}
		}
	}
	if st != nil {
		for _, res := range st.Resources {
			if res.Provider != "" && !seen[res.Provider] {
				seen[res.Provider] = true
				if err := ws.registry.Load(ctx, res.Provider); err != nil {
					return fmt.Errorf("failed to load provider %s: %w", res.Provider, err)
				}
			}
		}
	}
	return nil
}

func actionSymbol(action ir.Action) (symbol, color string) {
	switch action {
	case ir.ActionCreate:
		return "+", colorGreen
	case ir.ActionDelete:
		return "-", colorRed
	case ir.ActionReplace:
		return "-/+", colorYellow
	case ir.ActionUpdate:
		return "~", colorYellow
	default:
		return " ", colorReset
	}
}

// renderPlanChanges prints the change list. Sensitive attribute values are
// always redacted here; only `output --show-sensitive` reveals them.
func renderPlanChanges(plan *ir.Plan) {
	for _, change := range plan.Changes {
		if change.Action == ir.ActionNoOp {
			continue
		}
		symbol, color := actionSymbol(change.Action)

		kind, name := changeIdentity(change)
		if change.Blocked {
			fmt.Printf("\n%s  # %s blocked on %v%s\n", colorGray, change.Address, change.BlockedOn, colorReset)
			fmt.Printf("%s  ? resource %q %q { ... }%s\n", colorGray, kind, name, colorReset)
			continue
		}

		fmt.Printf("\n%s  # %s will be %sd%s\n", color, change.Address, change.Action, colorReset)
		fmt.Printf("%s  %s resource %q %q {%s\n", color, symbol, kind, name, colorReset)
		renderAttributeDiff(change)
		fmt.Printf("%s    }%s\n", color, colorReset)
	}
}

func changeIdentity(change *ir.ResourceChange) (kind, name string) {
	if change.Desired != nil {
		return change.Desired.Kind, change.Desired.Name
	}
	if change.Prior != nil {
		return change.Prior.Kind, change.Prior.Name
	}
	return "", ""
}

func renderAttributeDiff(change *ir.ResourceChange) {
	for _, key := range sortedDiffKeys(change.Diff) {
		diff := change.Diff[key]
		before := formatValue(diff.Before, diff.Sensitive)
		after := formatValue(diff.After, diff.Sensitive)

		switch diff.Action {
		case ir.ActionCreate:
			fmt.Printf("%s      + %s = %s%s\n", colorGreen, key, after, colorReset)
		case ir.ActionDelete:
			fmt.Printf("%s      - %s = %s%s\n", colorRed, key, before, colorReset)
		default:
			note := ""
			if diff.ForcesReplacement {
				note = " # forces replacement"
			}
			fmt.Printf("%s      ~ %s = %s -> %s%s%s\n", colorYellow, key, before, after, note, colorReset)
		}
	}
}

func sortedDiffKeys(diff map[string]*ir.AttributeDiff) []string {
	keys := make([]string, 0, len(diff))
	for k := range diff {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatValue(v any, sensitive bool) string {
	if sensitive {
		return redactedPlaceholder
	}
	if v == nil {
		return "null"
	}
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%v", v)
}

func renderPlanSummary(plan *ir.Plan) {
	s := plan.Summary
	fmt.Printf("\nPlan: %d to create, %d to update, %d to replace, %d to delete", s.Create, s.Update, s.Replace, s.Delete)
	if s.Blocked > 0 {
		fmt.Printf(", %d blocked", s.Blocked)
	}
	fmt.Printf(" (%d unchanged).\n", s.NoOp)
}
