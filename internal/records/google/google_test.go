package google

import (
	"context"
	"errors"
	"strings"
	"testing"

	"milkbook/internal/core"
	"milkbook/internal/records"
	"milkbook/internal/records/recordstest"
)

func TestSheetsStoreContract(t *testing.T) {
	recordstest.Run(t, func(t *testing.T) records.Store {
		return newTestClient(&fakeValues{})
	})
}

func TestUpsertWritesHeaderOnEmptySheet(t *testing.T) {
	f := &fakeValues{}
	c := newTestClient(f)

	stats, err := c.Upsert(context.Background(), []core.DailyRecord{{Date: "01/01/2025", Morning: 1000, Evening: 500}})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if stats.Appended != 1 || stats.Updated != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if len(f.rows) != 2 || f.rows[0][0] != "Date" {
		t.Fatalf("expected header plus one row, got %v", f.rows)
	}
}

func TestUpsertUpdatesInPlace(t *testing.T) {
	f := &fakeValues{rows: [][]interface{}{
		{"Date", "Morning", "Evening"},
		{"01/01/2025", "100", "200"},
		{"02/01/2025", "300", "400"},
	}}
	c := newTestClient(f)

	stats, err := c.Upsert(context.Background(), []core.DailyRecord{
		{Date: "02/01/2025", Morning: 1, Evening: 2},
		{Date: "03/01/2025", Morning: 5, Evening: 6},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if stats != (records.UpsertStats{Updated: 1, Appended: 1}) {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if len(f.rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(f.rows))
	}
	if f.rows[2][0] != "02/01/2025" || f.rows[2][1] != 1.0 {
		t.Fatalf("row 3 not rewritten: %v", f.rows[2])
	}
	if f.appends != 1 || f.updates != 1 {
		t.Fatalf("appends=%d updates=%d", f.appends, f.updates)
	}
}

func TestFetchReadsUnformattedValues(t *testing.T) {
	f := &fakeValues{rows: [][]interface{}{
		{"Date", "Morning", "Evening"},
		{"01/01/2025", 1250.5, ""},
		{"not a date", "1", "1"},
		{"02/01/2025", 750.0},
		{"09/01/2025", "lots", 1.0},
	}}
	c := newTestClient(f)

	got, err := c.Fetch(context.Background(), []string{"01/01/2025", "02/01/2025", "03/01/2025"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 dates, got %v", got)
	}
	if got["01/01/2025"] != (records.Quantities{Morning: 1250.5}) {
		t.Fatalf("unexpected 01/01: %+v", got["01/01/2025"])
	}
	if got["02/01/2025"] != (records.Quantities{Morning: 750}) {
		t.Fatalf("unexpected 02/01: %+v", got["02/01/2025"])
	}
}

func TestFetchReportsMalformedCells(t *testing.T) {
	f := &fakeValues{rows: [][]interface{}{
		{"Date", "Morning", "Evening"},
		{"01/01/2025", 1000.0, 500.0},
		{"02/01/2025", "₹1,000.00", 0.0},
	}}
	c := newTestClient(f)

	_, err := c.Fetch(context.Background(), []string{"01/01/2025", "02/01/2025"})
	if !errors.Is(err, core.ErrInvalidQuantity) {
		t.Fatalf("err = %v, want ErrInvalidQuantity", err)
	}
	if !strings.Contains(err.Error(), "02/01/2025") {
		t.Errorf("error does not name the date: %v", err)
	}
}

func TestFetchPropagatesReadError(t *testing.T) {
	c := newTestClient(&fakeValues{getErr: errors.New("quota exceeded")})
	if _, err := c.Fetch(context.Background(), []string{"01/01/2025"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestA1QuotesSheetName(t *testing.T) {
	c := newClient(&fakeValues{}, Config{SpreadsheetID: "x", SheetName: "Bob's milk"}, newTestClient(&fakeValues{}).logger)
	if got := c.a1("A:C"); got != "'Bob''s milk'!A:C" {
		t.Fatalf("a1 = %q", got)
	}
}
