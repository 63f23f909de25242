package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var planOutFile string

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show what an apply would change",
	Long: `Parses the configuration, diffs it against recorded state and prints
the actions an apply would take. Planning never calls a provider: the same
configuration and state always produce the same plan.`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVarP(&planOutFile, "out", "o", "", "Write the plan as JSON to this file")
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	ws, err := loadWorkspace(ctx, false)
	if err != nil {
		return err
	}

	st, err := ws.backend.Read(ctx)
	if err != nil {
		return err
	}

	plan, err := ws.engine.CreatePlan(ctx, ws.config, st)
	if err != nil {
		return err
	}

	if planOutFile != "" {
		data, err := json.MarshalIndent(plan, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to serialize plan: %w", err)
		}
		if err := os.WriteFile(planOutFile, append(data, '\n'), 0600); err != nil {
			return fmt.Errorf("failed to write plan file: %w", err)
		}
		fmt.Printf("Plan written to %s\n", planOutFile)
	}

	if !plan.HasChanges() && plan.Summary.Blocked == 0 {
		fmt.Println("No changes. Infrastructure is up-to-date.")
		return nil
	}

	fmt.Println("Lakeforge will perform the following actions:")
	renderPlanChanges(plan)
	renderPlanSummary(plan)
	return nil
}
