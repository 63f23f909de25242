package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lakeforge/lakeforge/internal/engine"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the dependency graph in DOT format",
	Long:  `Renders the resource dependency graph for 'dot -Tsvg' and friends.`,
	RunE:  runGraph,
}

func runGraph(cmd *cobra.Command, args []string) error {
	ws, err := loadWorkspace(cmd.Context(), false)
	if err != nil {
		return err
	}

	resources := engine.ExpandForEach(ws.config.Resources)
	g, err := engine.BuildGraph(resources)
	if err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString("digraph lakeforge {\n")
	b.WriteString("  rankdir = \"LR\";\n")

	order := g.CreationOrder()
	for _, addr := range order {
		fmt.Fprintf(&b, "  %q;\n", addr)
	}
	for _, addr := range order {
		deps := g.Dependencies(addr)
		sort.Strings(deps)
		for _, dep := range deps {
			fmt.Fprintf(&b, "  %q -> %q;\n", addr, dep)
		}
	}
	b.WriteString("}\n")

	fmt.Print(b.String())
	return nil
}
