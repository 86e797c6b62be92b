package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/go-lynx/emuplug/cmd/emuplug/internal/list"
	"github.com/go-lynx/emuplug/cmd/emuplug/internal/run"
)

// release is the version of the CLI, overridden at link time
var release = "v0.1.0"

// rootCmd is the root command of the emuplug CLI
var rootCmd = &cobra.Command{
	Use:   "emuplug",
	Short: "emuplug: instrumentation plugins for a synthetic CPU emulator",
	Long: `emuplug drives the instrumentation plugin registry with a synthetic
translation engine. Builtin modules count instructions, memory accesses
and blocks and print their totals on exit.`,
	Version:       release,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(run.CmdRun)
	rootCmd.AddCommand(list.CmdList)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
