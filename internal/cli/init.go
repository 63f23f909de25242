package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Prepare a working directory",
	Long:  `Creates the local state directory and a starter declaration file if none exists.`,
	RunE:  runInit,
}

const starterConfig = `# Declarations for this workspace. See 'lakeforge plan'.

variable "environment" {
  default = "dev"
}
`

func runInit(cmd *cobra.Command, args []string) error {
	if err := os.MkdirAll(filepath.Dir(statePath()), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	matches, err := filepath.Glob("*.hcl")
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		if err := os.WriteFile("main.hcl", []byte(starterConfig), 0644); err != nil {
			return fmt.Errorf("failed to write starter configuration: %w", err)
		}
		fmt.Println("Created main.hcl.")
	}

	fmt.Println("Lakeforge initialized. Run 'lakeforge plan' to get started.")
	return nil
}
