package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"milkbook/internal/backend"
)

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List the available data backends",
	RunE:  runBackends,
}

func init() {
	rootCmd.AddCommand(backendsCmd)
}

func runBackends(cmd *cobra.Command, args []string) error {
	current := ""
	if cfg, err := loadConfig(); err == nil {
		current = cfg.DataBackend
	}

	out := cmd.OutOrStdout()
	for _, bt := range backend.GetBackendTypes() {
		marker := " "
		if bt.String() == current {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %-9s %s\n", marker, bt, bt.Describe())
	}
	return nil
}
