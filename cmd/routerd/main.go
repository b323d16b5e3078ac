// Command routerd is the process-level CLI for the packet router: it
// loads a YAML router description, starts a Master with N Threads running
// the router's tasks, serves a ControlSocket for live introspection and
// hot swap, and optionally exports Prometheus metrics.
package main

import (
	"fmt"
	"os"

	"github.com/packetflow/router/internal/logging"
	"github.com/spf13/cobra"
)

var log *logging.Logger

var rootCmd = &cobra.Command{
	Use:   "routerd",
	Short: "Run a packet router process",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(controlCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	log = logging.New(os.Stderr, level)
}
