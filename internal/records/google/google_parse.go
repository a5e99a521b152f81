package google

import (
	"errors"
	"fmt"
	"strings"

	"milkbook/internal/core"
	"milkbook/internal/records"
)

var header = []string{"Date", "Morning", "Evening"}

// sheetRow is a parsed data row; Row is the 1-based sheet row number.
// Err is set when a quantity cell holds something other than a number.
type sheetRow struct {
	Row int
	records.Quantities
	Err error
}

type rowUpdate struct {
	Row    int
	Record core.DailyRecord
}

// reconcilePlan lists in-place rewrites and appends for one upsert.
type reconcilePlan struct {
	Updates     []rowUpdate
	Appends     []core.DailyRecord
	NeedsHeader bool
}

// indexRows maps each date found in column A to its first row. Rows with a
// malformed date, including the header, are ignored. Unparseable quantities
// are recorded in the row's Err.
func indexRows(values [][]interface{}) map[string]sheetRow {
	out := make(map[string]sheetRow, len(values))
	for i, raw := range values {
		row := toStrings(raw)
		date := strings.TrimSpace(safeGet(row, 0))
		if _, err := core.ParseDate(date); err != nil {
			continue
		}
		if _, dup := out[date]; dup {
			continue
		}
		morning, mErr := parseQuantity(safeGet(row, 1))
		evening, eErr := parseQuantity(safeGet(row, 2))
		parsed := sheetRow{
			Row:        i + 1,
			Quantities: records.Quantities{Morning: morning, Evening: evening},
		}
		if mErr != nil || eErr != nil {
			parsed.Err = fmt.Errorf("row %d (%s): %w", i+1, date, errors.Join(mErr, eErr))
		}
		out[date] = parsed
	}
	return out
}

// planReconcile decides, for each record, whether it rewrites an existing row
// or is appended. Repeated dates in recs keep their last values and are
// appended at most once.
func planReconcile(values [][]interface{}, recs []core.DailyRecord) reconcilePlan {
	index := indexRows(values)

	var plan reconcilePlan
	plan.NeedsHeader = len(values) == 0

	updateAt := map[string]int{}
	appendAt := map[string]int{}
	for _, r := range recs {
		if row, ok := index[r.Date]; ok {
			if i, seen := updateAt[r.Date]; seen {
				plan.Updates[i].Record = r
				continue
			}
			updateAt[r.Date] = len(plan.Updates)
			plan.Updates = append(plan.Updates, rowUpdate{Row: row.Row, Record: r})
			continue
		}
		if i, seen := appendAt[r.Date]; seen {
			plan.Appends[i] = r
			continue
		}
		appendAt[r.Date] = len(plan.Appends)
		plan.Appends = append(plan.Appends, r)
	}
	return plan
}

func headerRow() []interface{} {
	out := make([]interface{}, len(header))
	for i, h := range header {
		out[i] = h
	}
	return out
}

func recordRow(r core.DailyRecord) []interface{} {
	return []interface{}{r.Date, r.Morning, r.Evening}
}

// parseQuantity reads a cell fetched unformatted. Numeric cells arrive as
// float64 and are already rendered plainly by toStrings; text cells may use a
// decimal comma.
func parseQuantity(s string) (float64, error) {
	v, err := core.ParseQuantity(s)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", s, err)
	}
	return v, nil
}

func toStrings(row []interface{}) []string {
	out := make([]string, len(row))
	for i, v := range row {
		switch t := v.(type) {
		case string:
			out[i] = t
		case float64:
			out[i] = core.FormatQuantity(t)
		case nil:
			out[i] = ""
		default:
			out[i] = fmt.Sprint(t)
		}
	}
	return out
}

func safeGet(row []string, i int) string {
	if i >= 0 && i < len(row) {
		return row[i]
	}
	return ""
}
