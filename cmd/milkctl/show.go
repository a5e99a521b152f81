package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"milkbook/internal/core"
)

var showFlags monthFlags

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print every day of a month with its totals",
	Long: `Materializes the month: one line per calendar day, zero where nothing
is stored, followed by litres and the amount due at the unit price.`,
	RunE: runShow,
}

func init() {
	showFlags.register(showCmd)
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	sel, err := showFlags.selection()
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	ledger, cfg, closeFn, err := openLedger(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	price, err := showFlags.unitPrice(cfg)
	if err != nil {
		return err
	}

	sheet, err := ledger.Materialize(ctx, sel)
	if err != nil {
		return fmt.Errorf("materializing %s: %w", sel, err)
	}

	out := cmd.OutOrStdout()
	if sheet.Degraded() {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", sheet.Warning)
	}
	printSheet(out, sheet)
	printTotals(out, ledger.Total(sheet.Records, price))
	return nil
}

func printSheet(out io.Writer, sheet core.MonthSheet) {
	fmt.Fprintf(out, "\n%s\n", sheet.Selection)
	fmt.Fprintln(out, "----------------------------------------")
	fmt.Fprintf(out, "%-12s  %12s  %12s\n", "Date", "Morning", "Evening")
	fmt.Fprintln(out, "----------------------------------------")
	for _, r := range sheet.Records {
		fmt.Fprintf(out, "%-12s  %12s  %12s\n", r.Date, core.FormatQuantity(r.Morning), core.FormatQuantity(r.Evening))
	}
	fmt.Fprintln(out, "----------------------------------------")
}

func printTotals(out io.Writer, t core.Totals) {
	fmt.Fprintf(out, "Litres: %s (%d days)\n", t.LitresText(), t.Days)
	fmt.Fprintf(out, "Total:  %s at %s per litre\n", t.PayableText(), core.FormatQuantity(float64(t.UnitPrice)))
}
