package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDaysIn(t *testing.T) {
	cases := []struct {
		month, year, want int
	}{
		{2, 2024, 29},
		{2, 2023, 28},
		{2, 2000, 29},
		{2, 2100, 28},
		{4, 2025, 30},
		{1, 2025, 31},
		{12, 2099, 31},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DaysIn(tc.month, tc.year), "month=%d year=%d", tc.month, tc.year)
	}
}

func TestDates(t *testing.T) {
	dates, err := Dates(MonthSelection{Month: 2, Year: 2024})
	require.NoError(t, err)
	require.Len(t, dates, 29)
	assert.Equal(t, "01/02/2024", dates[0])
	assert.Equal(t, "29/02/2024", dates[28])

	seen := map[string]bool{}
	for i, d := range dates {
		assert.False(t, seen[d], "duplicate %s", d)
		seen[d] = true
		ts, err := ParseDate(d)
		require.NoError(t, err)
		assert.Equal(t, i+1, ts.Day())
	}
}

func TestMonthSelectionValidate(t *testing.T) {
	cases := []struct {
		name string
		sel  MonthSelection
		want error
	}{
		{"ok", MonthSelection{Month: 6, Year: 2025}, nil},
		{"month zero", MonthSelection{Month: 0, Year: 2025}, ErrInvalidMonth},
		{"month thirteen", MonthSelection{Month: 13, Year: 2025}, ErrInvalidMonth},
		{"year low", MonthSelection{Month: 1, Year: 1999}, ErrInvalidYear},
		{"year high", MonthSelection{Month: 1, Year: 2101}, ErrInvalidYear},
		{"bounds", MonthSelection{Month: 12, Year: 2100}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.sel.Validate()
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err := Dates(MonthSelection{Month: 13, Year: 2025})
	assert.ErrorIs(t, err, ErrInvalidMonth)
}

func TestParseDate(t *testing.T) {
	_, err := ParseDate("05/03/2025")
	assert.NoError(t, err)

	for _, bad := range []string{"5/3/2025", "2025-03-05", "31/02/2025", "", "aa/bb/cccc"} {
		_, err := ParseDate(bad)
		assert.ErrorIs(t, err, ErrInvalidDate, bad)
	}
}

func TestSelectionOf(t *testing.T) {
	sel, err := SelectionOf("17/11/2031")
	require.NoError(t, err)
	assert.Equal(t, MonthSelection{Month: 11, Year: 2031}, sel)
	assert.Equal(t, "2031-11", sel.Key())
}

func TestDailyRecordDay(t *testing.T) {
	assert.Equal(t, 9, DailyRecord{Date: "09/01/2025"}.Day())
	assert.Equal(t, 0, DailyRecord{Date: "nope"}.Day())
	assert.True(t, DailyRecord{Date: "09/01/2025"}.IsZero())
}
