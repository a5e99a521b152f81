package memory

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"milkbook/internal/core"
	"milkbook/internal/records"
)

// SeedFile is read from the data directory by NewFromFiles.
const SeedFile = "seed_records.txt"

type Store struct {
	mu   sync.Mutex
	rows map[string]records.Quantities
}

var (
	_ records.Store   = (*Store)(nil)
	_ records.Remover = (*Store)(nil)
	_ records.Pinger  = (*Store)(nil)
)

func New(seed ...core.DailyRecord) *Store {
	s := &Store{rows: make(map[string]records.Quantities, len(seed))}
	for _, r := range seed {
		if r.Validate() != nil {
			continue
		}
		s.rows[r.Date] = records.Quantities{Morning: r.Morning, Evening: r.Evening}
	}
	return s
}

// NewFromFiles seeds the store from base/seed_records.txt when present.
// Each line is "dd/mm/yyyy,morning,evening"; blank lines and # comments are skipped.
func NewFromFiles(base string) *Store {
	return New(readSeed(filepath.Join(base, SeedFile))...)
}

// Fetch returns the stored quantities for the requested dates.
func (s *Store) Fetch(_ context.Context, dates []string) (map[string]records.Quantities, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]records.Quantities, len(dates))
	for _, d := range dates {
		if q, ok := s.rows[d]; ok {
			out[d] = q
		}
	}
	return out, nil
}

// Upsert overwrites or inserts every record keyed by date.
func (s *Store) Upsert(_ context.Context, recs []core.DailyRecord) (records.UpsertStats, error) {
	for _, r := range recs {
		if err := r.Validate(); err != nil {
			return records.UpsertStats{}, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var stats records.UpsertStats
	for _, r := range recs {
		if _, ok := s.rows[r.Date]; ok {
			stats.Updated++
		} else {
			stats.Appended++
		}
		s.rows[r.Date] = records.Quantities{Morning: r.Morning, Evening: r.Evening}
	}
	return stats, nil
}

// Remove deletes the given dates and reports how many existed.
func (s *Store) Remove(_ context.Context, dates []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, d := range dates {
		if _, ok := s.rows[d]; ok {
			delete(s.rows, d)
			n++
		}
	}
	return n, nil
}

func (s *Store) Ping(context.Context) error { return nil }

// Len returns the number of stored dates.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func readSeed(path string) []core.DailyRecord {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []core.DailyRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) != 3 {
			continue
		}
		morning, err := core.ParseQuantity(parts[1])
		if err != nil {
			continue
		}
		evening, err := core.ParseQuantity(parts[2])
		if err != nil {
			continue
		}
		out = append(out, core.DailyRecord{Date: strings.TrimSpace(parts[0]), Morning: morning, Evening: evening})
	}
	return out
}
