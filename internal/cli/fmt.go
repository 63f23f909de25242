package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/spf13/cobra"
)

var fmtCheck bool

var fmtCmd = &cobra.Command{
	Use:   "fmt",
	Short: "Rewrite declaration files to canonical format",
	RunE:  runFmt,
}

func init() {
	fmtCmd.Flags().BoolVar(&fmtCheck, "check", false, "Report files that need formatting without rewriting them")
}

func runFmt(cmd *cobra.Command, args []string) error {
	paths, err := filepath.Glob("*.hcl")
	if err != nil {
		return err
	}
	sort.Strings(paths)

	var needsFormat []string
	for _, path := range paths {
		src, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		formatted := hclwrite.Format(src)
		if bytes.Equal(src, formatted) {
			continue
		}
		needsFormat = append(needsFormat, path)

		if !fmtCheck {
			if err := os.WriteFile(path, formatted, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}
			fmt.Println(path)
		}
	}

	if fmtCheck && len(needsFormat) > 0 {
		for _, path := range needsFormat {
			fmt.Println(path)
		}
		return fmt.Errorf("%d file(s) need formatting", len(needsFormat))
	}
	return nil
}
