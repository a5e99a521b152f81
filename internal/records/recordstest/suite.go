// Package recordstest holds the behaviour every records.Store must share.
package recordstest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"milkbook/internal/core"
	"milkbook/internal/records"
)

// Run exercises a fresh, empty store returned by open.
func Run(t *testing.T, open func(t *testing.T) records.Store) {
	t.Helper()

	t.Run("fetch on empty store", func(t *testing.T) {
		s := open(t)
		got, err := s.Fetch(context.Background(), []string{"01/02/2024", "02/02/2024"})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("upsert then fetch round trips", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		recs := []core.DailyRecord{
			{Date: "01/02/2024", Morning: 1000, Evening: 500},
			{Date: "29/02/2024", Morning: 750.5, Evening: 0},
		}
		stats, err := s.Upsert(ctx, recs)
		require.NoError(t, err)
		assert.Equal(t, records.UpsertStats{Appended: 2}, stats)

		dates, err := core.Dates(core.MonthSelection{Month: 2, Year: 2024})
		require.NoError(t, err)
		got, err := s.Fetch(ctx, dates)
		require.NoError(t, err)
		assert.Len(t, got, 2)
		assert.Equal(t, records.Quantities{Morning: 1000, Evening: 500}, got["01/02/2024"])
		assert.Equal(t, records.Quantities{Morning: 750.5}, got["29/02/2024"])
	})

	t.Run("upsert overwrites without duplicating", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		_, err := s.Upsert(ctx, []core.DailyRecord{{Date: "10/03/2025", Morning: 1, Evening: 2}})
		require.NoError(t, err)

		stats, err := s.Upsert(ctx, []core.DailyRecord{
			{Date: "10/03/2025", Morning: 3, Evening: 4},
			{Date: "11/03/2025", Morning: 5, Evening: 6},
		})
		require.NoError(t, err)
		assert.Equal(t, records.UpsertStats{Updated: 1, Appended: 1}, stats)

		got, err := s.Fetch(ctx, []string{"10/03/2025", "11/03/2025", "12/03/2025"})
		require.NoError(t, err)
		assert.Equal(t, map[string]records.Quantities{
			"10/03/2025": {Morning: 3, Evening: 4},
			"11/03/2025": {Morning: 5, Evening: 6},
		}, got)
	})

	t.Run("upsert is idempotent", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		recs := []core.DailyRecord{{Date: "05/05/2025", Morning: 900, Evening: 800}}
		_, err := s.Upsert(ctx, recs)
		require.NoError(t, err)
		stats, err := s.Upsert(ctx, recs)
		require.NoError(t, err)
		assert.Equal(t, records.UpsertStats{Updated: 1}, stats)

		got, err := s.Fetch(ctx, []string{"05/05/2025"})
		require.NoError(t, err)
		assert.Equal(t, records.Quantities{Morning: 900, Evening: 800}, got["05/05/2025"])
	})

	t.Run("months are independent", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		_, err := s.Upsert(ctx, []core.DailyRecord{
			{Date: "31/01/2025", Morning: 1},
			{Date: "01/02/2025", Morning: 2},
		})
		require.NoError(t, err)

		jan, err := core.Dates(core.MonthSelection{Month: 1, Year: 2025})
		require.NoError(t, err)
		got, err := s.Fetch(ctx, jan)
		require.NoError(t, err)
		assert.Len(t, got, 1)
		assert.Contains(t, got, "31/01/2025")
	})
}
