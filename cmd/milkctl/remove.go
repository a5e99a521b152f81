package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"milkbook/internal/records"
)

var removeDates []string

var removeCmd = &cobra.Command{
	Use:   "remove",
	Short: "Delete stored days",
	Long: `Deletes the given dates from storage. Materializing the month afterwards
shows them as zero. The spreadsheet backend does not support removal.`,
	Example: "  milkctl remove --date 05/03/2025 --date 06/03/2025",
	RunE:    runRemove,
}

func init() {
	removeCmd.Flags().StringArrayVar(&removeDates, "date", nil, "day as dd/mm/yyyy (repeatable)")
	_ = removeCmd.MarkFlagRequired("date")
	rootCmd.AddCommand(removeCmd)
}

func runRemove(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	ledger, cfg, closeFn, err := openLedger(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	n, err := ledger.Remove(ctx, removeDates)
	if errors.Is(err, records.ErrUnsupported) {
		return fmt.Errorf("the %s backend cannot remove records", backendLabel(cfg))
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d of %d dates\n", n, len(removeDates))
	return nil
}
