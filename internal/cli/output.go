package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	outputJSON          bool
	outputShowSensitive bool
)

var outputCmd = &cobra.Command{
	Use:   "output [name]",
	Short: "Show output values from state",
	Long: `Prints output values recorded by the last apply. Sensitive outputs
are redacted unless --show-sensitive is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runOutput,
}

func init() {
	outputCmd.Flags().BoolVar(&outputJSON, "json", false, "Print outputs as JSON")
	outputCmd.Flags().BoolVar(&outputShowSensitive, "show-sensitive", false, "Reveal sensitive output values")
}

func runOutput(cmd *cobra.Command, args []string) error {
	ws, err := loadWorkspace(cmd.Context(), false)
	if err != nil {
		return err
	}

	st, err := ws.backend.Read(cmd.Context())
	if err != nil {
		return err
	}

	if len(args) > 0 {
		name := args[0]
		out, ok := st.Outputs[name]
		if !ok {
			return fmt.Errorf("output %q not found in state", name)
		}
		value := out.Value
		if out.Sensitive && !outputShowSensitive {
			value = redactedPlaceholder
		}
		if outputJSON {
			data, err := json.Marshal(value)
			if err != nil {
				return fmt.Errorf("failed to serialize output: %w", err)
			}
			fmt.Println(string(data))
		} else {
			fmt.Println(value)
		}
		return nil
	}

	if len(st.Outputs) == 0 {
		fmt.Println("No outputs recorded. Run 'lakeforge apply' first.")
		return nil
	}

	if outputJSON {
		redacted := make(map[string]any, len(st.Outputs))
		for name, out := range st.Outputs {
			if out.Sensitive && !outputShowSensitive {
				redacted[name] = redactedPlaceholder
			} else {
				redacted[name] = out.Value
			}
		}
		data, err := json.MarshalIndent(redacted, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to serialize outputs: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	renderOutputs(st.Outputs, outputShowSensitive)
	return nil
}
