package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lakeforge/lakeforge/internal/engine"
	"github.com/lakeforge/lakeforge/internal/ir"
)

var (
	applyAutoApprove     bool
	applyContinueOnError bool
	applyParallelism     int
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply the configuration",
	Long: `Plans and then executes the changes needed to reach the declared
state. State is persisted after every applied resource, so an interrupted run
never loses what it already did. Ctrl-C stops scheduling new resources and
lets in-flight operations finish.`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().BoolVar(&applyAutoApprove, "auto-approve", false, "Skip interactive approval of the plan")
	applyCmd.Flags().BoolVar(&applyContinueOnError, "continue-on-error", false, "Apply independent resources past failures instead of halting")
	applyCmd.Flags().IntVar(&applyParallelism, "parallelism", engine.DefaultParallelism, "Maximum concurrent resource operations")
}

func runApply(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ws, err := loadWorkspace(ctx, true)
	if err != nil {
		return err
	}

	if err := ws.backend.Lock(); err != nil {
		return err
	}
	defer ws.backend.Unlock()

	st, err := ws.backend.Read(ctx)
	if err != nil {
		return err
	}
	if err := ws.loadProviders(ctx, nil, st); err != nil {
		return err
	}

	plan, err := ws.engine.CreatePlan(ctx, ws.config, st)
	if err != nil {
		return err
	}

	if !plan.HasChanges() {
		fmt.Println("No changes. Infrastructure is up-to-date.")
		return nil
	}

	fmt.Println("Lakeforge will perform the following actions:")
	renderPlanChanges(plan)
	renderPlanSummary(plan)

	if !applyAutoApprove {
		fmt.Print("\nDo you want to perform these actions? (yes/no): ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "yes" {
			fmt.Println("Apply cancelled.")
			return nil
		}
	}

	ws.engine.Parallelism = applyParallelism
	ws.engine.ContinueOnError = applyContinueOnError
	// State writes must survive a Ctrl-C that cancels ctx: an interrupted
	// run still records everything it applied.
	writeCtx := context.WithoutCancel(ctx)
	ws.engine.Persist = func(s *ir.State) error { return ws.backend.Write(writeCtx, s) }

	fmt.Println()
	newState, stats, applyErr := ws.engine.ApplyPlanWithCallback(ctx, plan, st, renderApplyEvent)

	// The final write records the bumped serial and resolved outputs even
	// when some nodes failed.
	if err := ws.backend.Write(writeCtx, newState); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}

	fmt.Printf("\nApply complete. Resources: %d applied, %d failed, %d skipped.\n",
		stats.Applied, stats.Failed, stats.Skipped)

	if len(newState.Outputs) > 0 {
		fmt.Println("\nOutputs:")
		renderOutputs(newState.Outputs, false)
	}

	if applyErr != nil {
		if stats.Applied > 0 {
			return &exitCodeError{code: ExitPartialFailure, err: fmt.Errorf("apply finished with failures: %w", applyErr)}
		}
		return fmt.Errorf("apply failed: %w", applyErr)
	}
	return nil
}

func renderApplyEvent(event engine.ApplyEvent) {
	switch event.Status {
	case engine.StatusInProgress:
		fmt.Printf("%s: %sing...\n", event.Address, event.Action)
	case engine.StatusApplied:
		fmt.Printf("%s: %sd in %s\n", event.Address, event.Action, event.Duration.Round(time.Millisecond))
	case engine.StatusFailed:
		fmt.Printf("%s%s: failed: %v%s\n", colorRed, event.Address, event.Error, colorReset)
	case engine.StatusSkipped:
		fmt.Printf("%s%s: skipped (%v)%s\n", colorGray, event.Address, event.Error, colorReset)
	}
}

func renderOutputs(outputs map[string]*ir.Output, showSensitive bool) {
	for _, name := range sortedOutputNames(outputs) {
		out := outputs[name]
		if out.Sensitive && !showSensitive {
			fmt.Printf("  %s = %s\n", name, redactedPlaceholder)
			continue
		}
		fmt.Printf("  %s = %v\n", name, out.Value)
	}
}

func sortedOutputNames(outputs map[string]*ir.Output) []string {
	names := make([]string, 0, len(outputs))
	for name := range outputs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
