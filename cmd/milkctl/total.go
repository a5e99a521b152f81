package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	totalFlags monthFlags
	totalJSON  bool
)

var totalCmd = &cobra.Command{
	Use:   "total",
	Short: "Print litres and amount due for a month",
	RunE:  runTotal,
}

func init() {
	totalFlags.register(totalCmd)
	totalCmd.Flags().BoolVar(&totalJSON, "json", false, "print JSON")
	rootCmd.AddCommand(totalCmd)
}

func runTotal(cmd *cobra.Command, args []string) error {
	sel, err := totalFlags.selection()
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

	price, err := totalFlags.unitPrice(cfg)
	if err != nil {
		return err
	}

	sheet, err := ledger.Materialize(ctx, sel)
	if err != nil {
		return fmt.Errorf("materializing %s: %w", sel, err)
	}
	if sheet.Degraded() {
		return sheet.Warning
	}

	totals := ledger.Total(sheet.Records, price)
	out := cmd.OutOrStdout()
	if totalJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(totals)
	}
	fmt.Fprintf(out, "%s: %s L, %s\n", sel, totals.LitresText(), totals.PayableText())
	return nil
}
