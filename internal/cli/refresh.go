package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lakeforge/lakeforge/pkg/provider"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Update state from remote resources",
	Long: `Reads every resource in state from its provider and records the
attributes the provider reports. Resources that no longer exist remotely are
dropped from state so the next plan recreates them.`,
	RunE: runRefresh,
}

func runRefresh(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

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

	var kept []int
	for i, res := range st.Resources {
		prov, err := ws.registry.Get(res.Provider)
		if err != nil {
			return err
		}

		id, _ := res.Outputs["id"].(string)
		resp, err := prov.Read(ctx, &provider.ReadRequest{
			Kind:  res.Kind,
			ID:    id,
			Prior: res.Outputs,
		})
		if errors.Is(err, provider.ErrNotFound) {
			fmt.Printf("%s: gone, removing from state\n", res.Addr())
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to refresh %s: %w", res.Addr(), err)
		}

		res.Outputs = resp.Attributes
		fmt.Printf("%s: refreshed\n", res.Addr())
		kept = append(kept, i)
	}

	if len(kept) < len(st.Resources) {
		refreshed := st.Resources[:0]
		for _, i := range kept {
			refreshed = append(refreshed, st.Resources[i])
		}
		st.Resources = refreshed
	}

	st.Serial++
	if err := ws.backend.Write(ctx, st); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	fmt.Printf("Refresh complete: %d resources in state.\n", len(st.Resources))
	return nil
}
