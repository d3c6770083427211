// Package cli wires the gpuwatch commands: serve (the default), status,
// and version.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFlag string

var rootCmd = &cobra.Command{
	Use:   "gpuwatch",
	Short: "Live GPU telemetry from a remote host in your browser",
	Long: `gpuwatch polls nvidia-smi on a remote host over SSH and serves a
local dashboard with live utilization, memory, temperature, power, and fan
readings.

Running gpuwatch with no subcommand starts the dashboard (same as
'gpuwatch serve').`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

// Execute runs the CLI and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, renderError(err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "",
		"path to gpuwatch.yaml (default: ./gpuwatch.yaml, then ~/.config/gpuwatch/)")

	registerServeFlags(rootCmd)

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newVersionCmd())
}
