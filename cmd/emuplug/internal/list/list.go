package list

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/go-lynx/emuplug/contrib"
)

// CmdList represents the list command
var CmdList = &cobra.Command{
	Use:   "list",
	Short: "List the builtin instrumentation modules",
	Example: `  # Show builtin modules and their arguments
  emuplug list`,
	Run: func(cmd *cobra.Command, _ []string) {
		w := cmd.OutOrStdout()
		for _, m := range contrib.Modules() {
			fmt.Fprintf(w, "  %-16s %s\n", color.CyanString(m.Path()), m.Summary)
		}
	},
}
