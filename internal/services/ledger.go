package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"milkbook/internal/core"
	"milkbook/internal/records"
)

var (
	// ErrConnectionFailure marks a read that could not reach storage.
	// Materialize recovers from it with a zero-filled sheet.
	ErrConnectionFailure = errors.New("storage unreachable")

	// ErrPersistFailure marks a rejected or interrupted write.
	ErrPersistFailure = errors.New("could not save records")
)

// MonthlyLedger materializes months from a store and writes edits back to it.
type MonthlyLedger struct {
	store  records.Store
	logger *slog.Logger
}

func NewMonthlyLedger(store records.Store, logger *slog.Logger) *MonthlyLedger {
	if logger == nil {
		logger = slog.Default()
	}
	return &MonthlyLedger{
		store:  store,
		logger: logger.With("component", "ledger"),
	}
}

// Materialize returns one record per day of sel, in day order, with stored
// values where present and zeros elsewhere. Stored values that are not finite
// numbers read as zero. Only an invalid selection is
// returned as an error; a failing store yields a zero sheet with Warning set.
func (l *MonthlyLedger) Materialize(ctx context.Context, sel core.MonthSelection) (core.MonthSheet, error) {
	sheet, err := core.ZeroSheet(sel)
	if err != nil {
		return core.MonthSheet{}, err
	}

	dates := make([]string, len(sheet.Records))
	for i, r := range sheet.Records {
		dates[i] = r.Date
	}

	stored, err := l.store.Fetch(ctx, dates)
	if err != nil {
		l.logger.WarnContext(ctx, "Falling back to empty month",
			"year", sel.Year, "month", sel.Month, "error", err)
		sheet.Warning = fmt.Errorf("%w: %v", ErrConnectionFailure, err)
		return sheet, nil
	}

	records.Apply(sheet.Records, stored)
	for i, r := range sheet.Records {
		if !r.Finite() {
			l.logger.WarnContext(ctx, "Ignoring non-numeric stored values",
				"date", r.Date, "morning", r.Morning, "evening", r.Evening)
			sheet.Records[i] = core.DailyRecord{Date: r.Date}
		}
	}
	l.logger.DebugContext(ctx, "Month materialized",
		"year", sel.Year, "month", sel.Month, "stored", len(stored))
	return sheet, nil
}

// Reconcile writes recs to the store, overwriting dates that exist and
// creating the rest. A date given more than once keeps its last values.
func (l *MonthlyLedger) Reconcile(ctx context.Context, recs []core.DailyRecord) (records.UpsertStats, error) {
	batch, err := collapse(recs)
	if err != nil {
		return records.UpsertStats{}, err
	}
	if len(batch) == 0 {
		return records.UpsertStats{}, nil
	}

	stats, err := l.store.Upsert(ctx, batch)
	if err != nil {
		l.logger.ErrorContext(ctx, "Failed to save records", "records", len(batch), "error", err)
		return records.UpsertStats{}, fmt.Errorf("%w: %w", ErrPersistFailure, err)
	}

	l.logger.InfoContext(ctx, "Records saved",
		"records", len(batch), "updated", stats.Updated, "appended", stats.Appended)
	return stats, nil
}

// Total is core.Total, exposed here so callers only need the ledger.
func (l *MonthlyLedger) Total(recs []core.DailyRecord, price core.UnitPrice) core.Totals {
	return core.Total(recs, price)
}

// Remove deletes dates from stores that support it.
func (l *MonthlyLedger) Remove(ctx context.Context, dates []string) (int, error) {
	rm, ok := l.store.(records.Remover)
	if !ok {
		return 0, records.ErrUnsupported
	}
	for _, d := range dates {
		if _, err := core.ParseDate(d); err != nil {
			return 0, err
		}
	}

	n, err := rm.Remove(ctx, dates)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrPersistFailure, err)
	}
	l.logger.InfoContext(ctx, "Records removed", "requested", len(dates), "removed", n)
	return n, nil
}

// Ping reports whether the store is reachable. Stores without a health check
// are assumed reachable.
func (l *MonthlyLedger) Ping(ctx context.Context) error {
	if p, ok := l.store.(records.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// collapse validates every date and merges repeated dates in place of their
// first occurrence.
func collapse(recs []core.DailyRecord) ([]core.DailyRecord, error) {
	out := make([]core.DailyRecord, 0, len(recs))
	pos := make(map[string]int, len(recs))
	for _, r := range recs {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if i, ok := pos[r.Date]; ok {
			out[i] = r
			continue
		}
		pos[r.Date] = len(out)
		out = append(out, r)
	}
	return out, nil
}
