package cache

import (
	"context"
	"log/slog"
	"time"

	"milkbook/internal/core"
	"milkbook/internal/records"
)

// CachedStore memoises month reads of a slower backend. A month is cached as
// the full set of its stored dates and dropped whenever it is written.
type CachedStore struct {
	inner  records.Store
	months *LRUCache[map[string]records.Quantities]
	logger *slog.Logger
}

var (
	_ records.Store   = (*CachedStore)(nil)
	_ records.Remover = (*CachedStore)(nil)
	_ records.Pinger  = (*CachedStore)(nil)
)

func NewCachedStore(inner records.Store, maxMonths int, ttl time.Duration, logger *slog.Logger) *CachedStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedStore{
		inner:  inner,
		months: NewLRUCache[map[string]records.Quantities](maxMonths, ttl),
		logger: logger.With("component", "cache"),
	}
}

// Cleaner exposes the month cache for registration with a Manager.
func (s *CachedStore) Cleaner() Cleaner { return s.months }

func (s *CachedStore) Fetch(ctx context.Context, dates []string) (map[string]records.Quantities, error) {
	byMonth, err := records.DatesByMonth(dates)
	if err != nil {
		return nil, err
	}

	out := make(map[string]records.Quantities, len(dates))
	for sel, wanted := range byMonth {
		month, err := s.month(ctx, sel)
		if err != nil {
			return nil, err
		}
		for _, d := range wanted {
			if q, ok := month[d]; ok {
				out[d] = q
			}
		}
	}
	return out, nil
}

func (s *CachedStore) month(ctx context.Context, sel core.MonthSelection) (map[string]records.Quantities, error) {
	if m, ok := s.months.Get(sel.Key()); ok {
		s.logger.DebugContext(ctx, "Month cache hit", "month", sel.Key())
		return m, nil
	}
	dates, err := core.Dates(sel)
	if err != nil {
		return nil, err
	}
	m, err := s.inner.Fetch(ctx, dates)
	if err != nil {
		return nil, err
	}
	s.months.Set(sel.Key(), m)
	return m, nil
}

func (s *CachedStore) Upsert(ctx context.Context, recs []core.DailyRecord) (records.UpsertStats, error) {
	defer s.invalidateRecords(recs)
	return s.inner.Upsert(ctx, recs)
}

func (s *CachedStore) Remove(ctx context.Context, dates []string) (int, error) {
	rm, ok := s.inner.(records.Remover)
	if !ok {
		return 0, records.ErrUnsupported
	}
	defer s.invalidateDates(dates)
	return rm.Remove(ctx, dates)
}

func (s *CachedStore) Ping(ctx context.Context) error {
	if p, ok := s.inner.(records.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Unwrap returns the decorated store.
func (s *CachedStore) Unwrap() records.Store { return s.inner }

func (s *CachedStore) invalidateRecords(recs []core.DailyRecord) {
	dates := make([]string, len(recs))
	for i, r := range recs {
		dates[i] = r.Date
	}
	s.invalidateDates(dates)
}

func (s *CachedStore) invalidateDates(dates []string) {
	for _, d := range dates {
		if sel, err := core.SelectionOf(d); err == nil {
			s.months.Delete(sel.Key())
		}
	}
}
