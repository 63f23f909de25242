package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lakeforge/lakeforge/internal/ir"
)

var destroyAutoApprove bool

var destroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Delete all managed resources",
	Long: `Deletes every resource recorded in state, in reverse dependency
order: dependents go before the resources they depend on.`,
	RunE: runDestroy,
}

func init() {
	destroyCmd.Flags().BoolVar(&destroyAutoApprove, "auto-approve", false, "Skip interactive approval")
}

func runDestroy(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ws, err := loadWorkspace(ctx, false)
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
	if len(st.Resources) == 0 {
		fmt.Println("Nothing to destroy: state is empty.")
		return nil
	}

	if err := ws.loadProviders(ctx, nil, st); err != nil {
		return err
	}

	plan, err := ws.engine.CreateDestroyPlan(ctx, st)
	if err != nil {
		return err
	}

	fmt.Println("Lakeforge will destroy the following resources:")
	renderPlanChanges(plan)
	renderPlanSummary(plan)

	if !destroyAutoApprove {
		fmt.Print("\nDo you really want to destroy all resources? (yes/no): ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "yes" {
			fmt.Println("Destroy cancelled.")
			return nil
		}
	}

	writeCtx := context.WithoutCancel(ctx)
	ws.engine.Persist = func(s *ir.State) error { return ws.backend.Write(writeCtx, s) }

	fmt.Println()
	newState, stats, applyErr := ws.engine.ApplyPlanWithCallback(ctx, plan, st, renderApplyEvent)

	if err := ws.backend.Write(writeCtx, newState); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}

	fmt.Printf("\nDestroy complete. Resources: %d destroyed, %d failed.\n", stats.Applied, stats.Failed)
	if applyErr != nil {
		return fmt.Errorf("destroy failed: %w", applyErr)
	}
	return nil
}
