package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate CONFIG",
	Short: "Load CONFIG and build the router without running it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(args[0])
		if err != nil {
			return err
		}
		r, err := buildRouter(cfg, builtinRegistry())
		if err != nil {
			return err
		}
		if err := r.Activate(false); err != nil {
			return fmt.Errorf("routerd: activate: %w", err)
		}
		fmt.Printf("OK: %d elements, %d connections\n", len(r.Elements()), len(r.Connections()))
		return nil
	},
}
