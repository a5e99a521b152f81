package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"milkbook/internal/core"
)

var (
	setDate    string
	setMorning string
	setEvening string
)

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Record the morning and evening quantities of one day",
	Long: `Writes one day, overwriting what is stored for that date or adding it.
Quantities are in millilitres; both dot and comma decimals are accepted.`,
	Example: "  milkctl set --date 05/03/2025 --morning 1200 --evening 950",
	RunE:    runSet,
}

func init() {
	setCmd.Flags().StringVar(&setDate, "date", "", "day as dd/mm/yyyy")
	setCmd.Flags().StringVar(&setMorning, "morning", "0", "morning quantity (ml)")
	setCmd.Flags().StringVar(&setEvening, "evening", "0", "evening quantity (ml)")
	_ = setCmd.MarkFlagRequired("date")
	rootCmd.AddCommand(setCmd)
}

func runSet(cmd *cobra.Command, args []string) error {
	rec := core.DailyRecord{Date: setDate}
	if err := rec.Validate(); err != nil {
		return err
	}
	var err error
	if rec.Morning, err = core.ParseQuantity(setMorning); err != nil {
		return fmt.Errorf("morning: %w", err)
	}
	if rec.Evening, err = core.ParseQuantity(setEvening); err != nil {
		return fmt.Errorf("evening: %w", err)
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	ledger, cfg, closeFn, err := openLedger(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	stats, err := ledger.Reconcile(ctx, []core.DailyRecord{rec})
	if err != nil {
		return err
	}

	verb := "updated"
	if stats.Appended > 0 {
		verb = "added"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s in %s: morning %s, evening %s\n",
		rec.Date, verb, backendLabel(cfg), core.FormatQuantity(rec.Morning), core.FormatQuantity(rec.Evening))
	return nil
}
