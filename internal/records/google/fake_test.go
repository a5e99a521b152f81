package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	gsheet "google.golang.org/api/sheets/v4"
)

// fakeValues emulates one sheet tab in memory.
type fakeValues struct {
	rows    [][]interface{}
	getErr  error
	appends int
	updates int
}

func (f *fakeValues) Get(_ context.Context, _, _ string) ([][]interface{}, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	out := make([][]interface{}, len(f.rows))
	for i, r := range f.rows {
		out[i] = append([]interface{}(nil), r...)
	}
	return out, nil
}

func (f *fakeValues) BatchUpdate(_ context.Context, _ string, data []*gsheet.ValueRange) error {
	for _, vr := range data {
		var row int
		cells := vr.Range[strings.Index(vr.Range, "!")+1:]
		if _, err := fmt.Sscanf(cells, "A%d:", &row); err != nil {
			return fmt.Errorf("bad range %q: %w", vr.Range, err)
		}
		if row < 1 || row > len(f.rows) {
			return errors.New("row out of range")
		}
		f.rows[row-1] = vr.Values[0]
		f.updates++
	}
	return nil
}

func (f *fakeValues) Append(_ context.Context, _, _ string, rows [][]interface{}) error {
	f.rows = append(f.rows, rows...)
	f.appends += len(rows)
	return nil
}

func newTestClient(f *fakeValues) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return newClient(f, Config{SpreadsheetID: "sheet-id", SheetName: "Milk"}, logger)
}
