// Package records defines the storage port of the milk ledger.
//
// Every backend is keyed by the dd/mm/yyyy date of a record. Adapters live
// in the sub packages and in internal/storage.
package records

import (
	"context"
	"errors"

	"milkbook/internal/core"
)

// ErrUnsupported is returned when a backend lacks an optional capability.
var ErrUnsupported = errors.New("operation not supported by backend")

// Quantities are the stored values of one date, in millilitres.
type Quantities struct {
	Morning float64
	Evening float64
}

// UpsertStats reports how many dates were overwritten and how many were new.
type UpsertStats struct {
	Updated  int `json:"updated"`
	Appended int `json:"appended"`
}

func (s UpsertStats) Total() int { return s.Updated + s.Appended }

// Add accumulates other into s.
func (s UpsertStats) Add(other UpsertStats) UpsertStats {
	return UpsertStats{Updated: s.Updated + other.Updated, Appended: s.Appended + other.Appended}
}

// Ports for outbound adapters.
type (
	// Fetcher returns stored values for the requested dates. Dates with no
	// stored entry are absent from the result.
	Fetcher interface {
		Fetch(ctx context.Context, dates []string) (map[string]Quantities, error)
	}

	// Upserter overwrites existing dates and creates missing ones.
	// Upserting the same records twice leaves the store unchanged.
	Upserter interface {
		Upsert(ctx context.Context, recs []core.DailyRecord) (UpsertStats, error)
	}

	Store interface {
		Fetcher
		Upserter
	}

	// Remover deletes stored dates. Only some backends implement it.
	Remover interface {
		Remove(ctx context.Context, dates []string) (int, error)
	}

	// Pinger is implemented by backends that can report reachability.
	Pinger interface {
		Ping(ctx context.Context) error
	}
)

// Apply copies stored values onto recs in place, leaving unknown dates untouched.
func Apply(recs []core.DailyRecord, stored map[string]Quantities) {
	for i := range recs {
		if q, ok := stored[recs[i].Date]; ok {
			recs[i].Morning = q.Morning
			recs[i].Evening = q.Evening
		}
	}
}

// GroupByMonth splits records by the month their date belongs to, keeping order.
// Records with malformed dates are reported through the returned error.
func GroupByMonth(recs []core.DailyRecord) (map[core.MonthSelection][]core.DailyRecord, error) {
	out := make(map[core.MonthSelection][]core.DailyRecord)
	for _, r := range recs {
		sel, err := core.SelectionOf(r.Date)
		if err != nil {
			return nil, err
		}
		out[sel] = append(out[sel], r)
	}
	return out, nil
}

// DatesByMonth splits date keys by the month they belong to.
func DatesByMonth(dates []string) (map[core.MonthSelection][]string, error) {
	out := make(map[core.MonthSelection][]string)
	for _, d := range dates {
		sel, err := core.SelectionOf(d)
		if err != nil {
			return nil, err
		}
		out[sel] = append(out[sel], d)
	}
	return out, nil
}
