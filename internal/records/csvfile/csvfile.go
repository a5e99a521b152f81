// Package csvfile keeps one CSV file per month ("milk_YYYY_MM.csv") in a
// blob store, either a local directory or an S3 bucket.
package csvfile

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"milkbook/internal/core"
	"milkbook/internal/records"
)

// ErrNotFound is returned by Blobs when a key does not exist.
var ErrNotFound = errors.New("blob not found")

var header = []string{"date", "morning", "evening"}

// Blobs stores whole files by key.
type Blobs interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte) error
}

type Store struct {
	// mu serialises read-modify-write cycles within the process.
	mu     sync.Mutex
	blobs  Blobs
	logger *slog.Logger
}

var (
	_ records.Store   = (*Store)(nil)
	_ records.Remover = (*Store)(nil)
	_ records.Pinger  = (*Store)(nil)
)

func New(blobs Blobs, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{blobs: blobs, logger: logger.With("component", "storage.csv")}
}

// FileName returns the key holding the records of sel.
func FileName(sel core.MonthSelection) string {
	return fmt.Sprintf("milk_%04d_%02d.csv", sel.Year, sel.Month)
}

// Fetch implements records.Fetcher
func (s *Store) Fetch(ctx context.Context, dates []string) (map[string]records.Quantities, error) {
	byMonth, err := records.DatesByMonth(dates)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]records.Quantities, len(dates))
	for sel, wanted := range byMonth {
		rows, err := s.load(ctx, sel)
		if err != nil {
			return nil, err
		}
		for _, d := range wanted {
			if q, ok := rows[d]; ok {
				out[d] = q
			}
		}
	}
	return out, nil
}

// Upsert implements records.Upserter
func (s *Store) Upsert(ctx context.Context, recs []core.DailyRecord) (records.UpsertStats, error) {
	var stats records.UpsertStats
	if len(recs) == 0 {
		return stats, nil
	}
	groups, err := records.GroupByMonth(recs)
	if err != nil {
		return stats, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sel := range sortedMonths(groups) {
		rows, err := s.load(ctx, sel)
		if err != nil {
			return stats, err
		}
		for _, r := range groups[sel] {
			if _, ok := rows[r.Date]; ok {
				stats.Updated++
			} else {
				stats.Appended++
			}
			rows[r.Date] = records.Quantities{Morning: r.Morning, Evening: r.Evening}
		}
		if err := s.save(ctx, sel, rows); err != nil {
			return stats, err
		}
	}

	s.logger.DebugContext(ctx, "Milk records saved to CSV",
		"updated", stats.Updated,
		"appended", stats.Appended)
	return stats, nil
}

// Remove implements records.Remover
func (s *Store) Remove(ctx context.Context, dates []string) (int, error) {
	byMonth, err := records.DatesByMonth(dates)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for sel, ds := range byMonth {
		rows, err := s.load(ctx, sel)
		if err != nil {
			return removed, err
		}
		n := 0
		for _, d := range ds {
			if _, ok := rows[d]; ok {
				delete(rows, d)
				n++
			}
		}
		if n == 0 {
			continue
		}
		if err := s.save(ctx, sel, rows); err != nil {
			return removed, err
		}
		removed += n
	}
	return removed, nil
}

// Ping checks the underlying blobs when they can report reachability.
func (s *Store) Ping(ctx context.Context) error {
	if p, ok := s.blobs.(records.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (s *Store) load(ctx context.Context, sel core.MonthSelection) (map[string]records.Quantities, error) {
	data, err := s.blobs.Read(ctx, FileName(sel))
	if errors.Is(err, ErrNotFound) {
		return map[string]records.Quantities{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", FileName(sel), err)
	}
	rows, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", FileName(sel), err)
	}
	return rows, nil
}

func (s *Store) save(ctx context.Context, sel core.MonthSelection, rows map[string]records.Quantities) error {
	data, err := encode(rows)
	if err != nil {
		return fmt.Errorf("encode %s: %w", FileName(sel), err)
	}
	if err := s.blobs.Write(ctx, FileName(sel), data); err != nil {
		return fmt.Errorf("write %s: %w", FileName(sel), err)
	}
	return nil
}

func decode(data []byte) (map[string]records.Quantities, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	lines, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	out := make(map[string]records.Quantities, len(lines))
	for i, line := range lines {
		if i == 0 && len(line) > 0 && strings.EqualFold(strings.TrimSpace(line[0]), header[0]) {
			continue
		}
		if len(line) < 3 {
			return nil, fmt.Errorf("line %d: expected 3 fields, got %d", i+1, len(line))
		}
		date := strings.TrimSpace(line[0])
		if _, err := core.ParseDate(date); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		morning, err := core.ParseQuantity(line[1])
		if err != nil {
			return nil, fmt.Errorf("line %d morning: %w", i+1, err)
		}
		evening, err := core.ParseQuantity(line[2])
		if err != nil {
			return nil, fmt.Errorf("line %d evening: %w", i+1, err)
		}
		out[date] = records.Quantities{Morning: morning, Evening: evening}
	}
	return out, nil
}

// encode writes rows in day order.
func encode(rows map[string]records.Quantities) ([]byte, error) {
	type dated struct {
		day  time.Time
		date string
	}
	keys := make([]dated, 0, len(rows))
	for d := range rows {
		t, err := core.ParseDate(d)
		if err != nil {
			return nil, err
		}
		keys = append(keys, dated{day: t, date: d})
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].day.Before(keys[j].day) })

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, k := range keys {
		q := rows[k.date]
		if err := w.Write([]string{
			k.date,
			strconv.FormatFloat(q.Morning, 'f', -1, 64),
			strconv.FormatFloat(q.Evening, 'f', -1, 64),
		}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func sortedMonths(groups map[core.MonthSelection][]core.DailyRecord) []core.MonthSelection {
	out := make([]core.MonthSelection, 0, len(groups))
	for sel := range groups {
		out = append(out, sel)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}
