// Package cli implements the lakeforge command surface.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lakeforge/lakeforge/internal/logging"
)

var (
	flagChdir         string
	flagVarFiles      []string
	flagLogLevel      string
	flagState         string
	flagBackend       string
	flagBackendConfig []string
)

// ExitPartialFailure is returned by apply when some resources failed but
// others were applied and persisted.
const ExitPartialFailure = 3

// exitCodeError carries a specific process exit code up to main.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }
func (e *exitCodeError) Unwrap() error { return e.err }

var rootCmd = &cobra.Command{
	Use:   "lakeforge",
	Short: "Declarative data lake infrastructure",
	Long: `Lakeforge reconciles declared data lake resources (S3 buckets, IAM
identities, Snowflake warehouses and stages) against their live state.

Declarations are HCL files; lakeforge diffs them against recorded state,
shows a plan, and applies it in dependency order.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(flagLogLevel)
		if flagChdir != "" {
			if err := os.Chdir(flagChdir); err != nil {
				return fmt.Errorf("failed to change directory: %w", err)
			}
		}
		return nil
	},
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var ec *exitCodeError
		if errors.As(err, &ec) {
			return ec.code
		}
		return 1
	}
	return 0
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagChdir, "chdir", "", "Switch to this directory before running")
	rootCmd.PersistentFlags().StringArrayVar(&flagVarFiles, "var-file", nil, "Variable definition file (may be repeated)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flagState, "state", "", "Path to the state file")
	rootCmd.PersistentFlags().StringVar(&flagBackend, "backend", "local", "State backend type (local or s3)")
	rootCmd.PersistentFlags().StringArrayVar(&flagBackendConfig, "backend-config", nil, "Backend setting as key=value (may be repeated)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(outputCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(fmtCmd)
	rootCmd.AddCommand(versionCmd)
}
