package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"milkbook/internal/amqp"
	"milkbook/internal/core"
	"milkbook/internal/records"
)

// Materializer reads a full month from the primary store.
type Materializer interface {
	Materialize(ctx context.Context, sel core.MonthSelection) (core.MonthSheet, error)
}

// TotalsPublisher is implemented by *publisher.Publisher.
type TotalsPublisher interface {
	PublishTotals(sel core.MonthSelection, t core.Totals) error
}

// MirrorWorker copies saved months from the primary store to a mirror
// (usually the spreadsheet) and publishes the month totals.
type MirrorWorker struct {
	ledger Materializer
	mirror records.Upserter
	totals TotalsPublisher
	price  core.UnitPrice
	now    func() time.Time
}

// NewMirrorWorker builds a worker. mirror and totals may be nil to skip
// that leg.
func NewMirrorWorker(ledger Materializer, mirror records.Upserter, totals TotalsPublisher, price core.UnitPrice) *MirrorWorker {
	return &MirrorWorker{
		ledger: ledger,
		mirror: mirror,
		totals: totals,
		price:  price,
		now:    time.Now,
	}
}

// HandleMonthSaved processes a single month saved message from AMQP.
func (w *MirrorWorker) HandleMonthSaved(ctx context.Context, msg *amqp.MonthSavedMessage) error {
	slog.InfoContext(ctx, "Processing month saved message",
		"year", msg.Year,
		"month", msg.Month,
		"session_id", msg.SessionID)

	return w.SyncMonth(ctx, core.MonthSelection{Month: msg.Month, Year: msg.Year})
}

// SyncMonth re-reads sel and runs the mirror and totals legs concurrently.
// A degraded read is an error so the message is retried instead of
// overwriting the mirror with zeros.
func (w *MirrorWorker) SyncMonth(ctx context.Context, sel core.MonthSelection) error {
	sheet, err := w.ledger.Materialize(ctx, sel)
	if err != nil {
		return fmt.Errorf("materialize %s: %w", sel, err)
	}
	if sheet.Degraded() {
		return fmt.Errorf("materialize %s: %w", sel, sheet.Warning)
	}

	g, gctx := errgroup.WithContext(ctx)

	if w.mirror != nil {
		g.Go(func() error {
			stats, err := w.mirror.Upsert(gctx, sheet.Records)
			if err != nil {
				return fmt.Errorf("mirror %s: %w", sel, err)
			}
			slog.InfoContext(gctx, "Month mirrored",
				"year", sel.Year, "month", sel.Month,
				"updated", stats.Updated, "appended", stats.Appended)
			return nil
		})
	}

	if w.totals != nil {
		g.Go(func() error {
			totals := core.Total(sheet.Records, w.price)
			if err := w.totals.PublishTotals(sel, totals); err != nil {
				return fmt.Errorf("publish totals %s: %w", sel, err)
			}
			slog.InfoContext(gctx, "Totals published",
				"year", sel.Year, "month", sel.Month,
				"litres", totals.LitresText(), "amount", totals.PayableText())
			return nil
		})
	}

	return g.Wait()
}

// ResyncCurrent mirrors the current month. It backs up lost messages.
func (w *MirrorWorker) ResyncCurrent(ctx context.Context) error {
	return w.SyncMonth(ctx, core.CurrentMonth(w.now()))
}

// RunPeriodic calls ResyncCurrent every interval until ctx is done.
func (w *MirrorWorker) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.ResyncCurrent(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic resync failed", "error", err)
			}
		}
	}
}
