package adapters

import (
	"context"
	"log/slog"
	"sort"

	"milkbook/internal/amqp"
	"milkbook/internal/core"
	"milkbook/internal/records"
)

// MonthPublisher is implemented by *amqp.Client.
type MonthPublisher interface {
	PublishMonthSaved(ctx context.Context, msg *amqp.MonthSavedMessage) error
}

// PublishingStore wraps a store so that every successful upsert announces the
// touched months. The write is committed first; publishing is best effort.
type PublishingStore struct {
	records.Store
	publisher MonthPublisher
	logger    *slog.Logger
}

var (
	_ records.Store   = (*PublishingStore)(nil)
	_ records.Remover = (*PublishingStore)(nil)
	_ records.Pinger  = (*PublishingStore)(nil)
)

func NewPublishingStore(store records.Store, publisher MonthPublisher, logger *slog.Logger) *PublishingStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PublishingStore{
		Store:     store,
		publisher: publisher,
		logger:    logger.With("component", "amqp"),
	}
}

func (s *PublishingStore) Upsert(ctx context.Context, recs []core.DailyRecord) (records.UpsertStats, error) {
	stats, err := s.Store.Upsert(ctx, recs)
	if err != nil {
		return stats, err
	}
	s.announce(ctx, recs, stats)
	return stats, nil
}

// Remove publishes a zero-count message for each month it removed from.
func (s *PublishingStore) Remove(ctx context.Context, dates []string) (int, error) {
	rm, ok := s.Store.(records.Remover)
	if !ok {
		return 0, records.ErrUnsupported
	}
	n, err := rm.Remove(ctx, dates)
	if err != nil || n == 0 {
		return n, err
	}

	byMonth, err := records.DatesByMonth(dates)
	if err != nil {
		return n, nil
	}
	for _, sel := range sortedSelections(byMonth) {
		s.publish(ctx, amqp.NewMonthSavedMessage(sel.Year, sel.Month, 0, 0, SessionIDFrom(ctx)))
	}
	return n, nil
}

func (s *PublishingStore) Ping(ctx context.Context) error {
	if p, ok := s.Store.(records.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// announce sends one message per month. Stats are only split per month when
// the batch covers a single month; otherwise each message carries the record
// count of its month as appended.
func (s *PublishingStore) announce(ctx context.Context, recs []core.DailyRecord, stats records.UpsertStats) {
	if s.publisher == nil || len(recs) == 0 {
		return
	}
	groups, err := records.GroupByMonth(recs)
	if err != nil {
		s.logger.WarnContext(ctx, "Skipping publish for malformed batch", "error", err)
		return
	}

	sessionID := SessionIDFrom(ctx)
	for _, sel := range sortedSelections(groups) {
		updated, appended := stats.Updated, stats.Appended
		if len(groups) > 1 {
			updated, appended = 0, len(groups[sel])
		}
		s.publish(ctx, amqp.NewMonthSavedMessage(sel.Year, sel.Month, updated, appended, sessionID))
	}
}

func (s *PublishingStore) publish(ctx context.Context, msg *amqp.MonthSavedMessage) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishMonthSaved(ctx, msg); err != nil {
		// the records are already stored
		s.logger.ErrorContext(ctx, "Failed to publish month saved message",
			"year", msg.Year, "month", msg.Month, "error", err)
	}
}

func sortedSelections[T any](m map[core.MonthSelection]T) []core.MonthSelection {
	out := make([]core.MonthSelection, 0, len(m))
	for sel := range m {
		out = append(out, sel)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Month < out[j].Month
	})
	return out
}
