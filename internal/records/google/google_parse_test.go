package google

import (
	"errors"
	"testing"

	"milkbook/internal/core"
)

func TestPlanReconcileAppendsNewDateOnce(t *testing.T) {
	values := [][]interface{}{
		{"Date", "Morning", "Evening"},
		{"01/02/2024", "1", "1"},
	}
	plan := planReconcile(values, []core.DailyRecord{
		{Date: "02/02/2024", Morning: 1},
		{Date: "02/02/2024", Morning: 9},
	})
	if len(plan.Appends) != 1 {
		t.Fatalf("expected one append, got %v", plan.Appends)
	}
	if plan.Appends[0].Morning != 9 {
		t.Fatalf("last value should win, got %v", plan.Appends[0])
	}
	if len(plan.Updates) != 0 || plan.NeedsHeader {
		t.Fatalf("unexpected plan %+v", plan)
	}
}

func TestPlanReconcileUpdatesFirstOccurrence(t *testing.T) {
	values := [][]interface{}{
		{"Date", "Morning", "Evening"},
		{"05/02/2024", "1", "1"},
		{"05/02/2024", "2", "2"},
	}
	plan := planReconcile(values, []core.DailyRecord{{Date: "05/02/2024", Morning: 7}})
	if len(plan.Updates) != 1 || plan.Updates[0].Row != 2 {
		t.Fatalf("expected update of row 2, got %+v", plan.Updates)
	}
}

func TestPlanReconcileEmptySheetNeedsHeader(t *testing.T) {
	plan := planReconcile(nil, []core.DailyRecord{{Date: "01/01/2025"}})
	if !plan.NeedsHeader || len(plan.Appends) != 1 {
		t.Fatalf("unexpected plan %+v", plan)
	}
}

func TestParseQuantity(t *testing.T) {
	cases := map[string]float64{
		"":       0,
		"1000":   1000,
		"1250,5": 1250.5,
	}
	for in, want := range cases {
		got, err := parseQuantity(in)
		if err != nil || got != want {
			t.Errorf("parseQuantity(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	for _, in := range []string{"abc", "1,250.5", "₹1,000.00"} {
		if _, err := parseQuantity(in); !errors.Is(err, core.ErrInvalidQuantity) {
			t.Errorf("parseQuantity(%q) err = %v, want ErrInvalidQuantity", in, err)
		}
	}
}

func TestIndexRowsUnformattedNumbers(t *testing.T) {
	values := [][]interface{}{
		{"Date", "Morning", "Evening"},
		{"01/01/2025", 1000.0, 1500.0},
		{"02/01/2025", "₹1,000.00", 2.0},
	}
	index := indexRows(values)

	first := index["01/01/2025"]
	if first.Err != nil || first.Morning != 1000 || first.Evening != 1500 {
		t.Errorf("01/01 = %+v", first)
	}
	second := index["02/01/2025"]
	if !errors.Is(second.Err, core.ErrInvalidQuantity) {
		t.Errorf("02/01 err = %v, want ErrInvalidQuantity", second.Err)
	}
	if second.Row != 3 {
		t.Errorf("02/01 row = %d, want 3", second.Row)
	}
}
