// Package google keeps the milk ledger in a Google spreadsheet tab with a
// "Date, Morning, Evening" header and one row per day.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"milkbook/internal/core"
	"milkbook/internal/records"
)

// DefaultSheetName is used when Config.SheetName is empty.
const DefaultSheetName = "Milk"

// Config describes the spreadsheet and the account used to reach it.
// A complete OAuth user configuration takes precedence over the service
// account; with neither, Application Default Credentials are used.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
	OAuth           OAuthConfig
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.SpreadsheetID) == "" {
		return errors.New("missing spreadsheet id")
	}
	return nil
}

// valuesAPI is the subset of the Sheets values service the store needs.
type valuesAPI interface {
	Get(ctx context.Context, spreadsheetID, rng string) ([][]interface{}, error)
	BatchUpdate(ctx context.Context, spreadsheetID string, data []*gsheet.ValueRange) error
	Append(ctx context.Context, spreadsheetID, rng string, rows [][]interface{}) error
}

type Client struct {
	values        valuesAPI
	spreadsheetID string
	sheet         string
	logger        *slog.Logger
}

// Ensure interface conformance
var (
	_ records.Store  = (*Client)(nil)
	_ records.Pinger = (*Client)(nil)
)

// New creates a Sheets client.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	svc, err := newSheetsService(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return newClient(serviceValues{svc: svc}, cfg, logger), nil
}

func newClient(values valuesAPI, cfg Config, logger *slog.Logger) *Client {
	sheet := strings.TrimSpace(cfg.SheetName)
	if sheet == "" {
		sheet = DefaultSheetName
	}
	return &Client{
		values:        values,
		spreadsheetID: cfg.SpreadsheetID,
		sheet:         sheet,
		logger:        logger.With("component", "sheets"),
	}
}

func newSheetsService(ctx context.Context, cfg Config, logger *slog.Logger) (*gsheet.Service, error) {
	opts := []goption.ClientOption{goption.WithScopes(gsheet.SpreadsheetsScope)}

	switch {
	case cfg.OAuth.Enabled():
		ts, err := cfg.OAuth.TokenSource(ctx)
		if err != nil {
			return nil, err
		}
		logger.InfoContext(ctx, "Using OAuth user credentials")
		opts = append(opts, goption.WithTokenSource(ts))
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		logger.InfoContext(ctx, "Using inline service account credentials")
		opts = append(opts, goption.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		logger.InfoContext(ctx, "Using service account credentials file", "path", cfg.CredentialsFile)
		opts = append(opts, goption.WithCredentialsJSON(data))
	default:
		logger.InfoContext(ctx, "Using application default credentials")
	}

	service, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// Ping reads the header row.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.values.Get(ctx, c.spreadsheetID, c.a1("A1:C1"))
	return err
}

// Fetch implements records.Fetcher
func (c *Client) Fetch(ctx context.Context, dates []string) (map[string]records.Quantities, error) {
	rows, err := c.readRows(ctx)
	if err != nil {
		return nil, err
	}
	index := indexRows(rows)

	out := make(map[string]records.Quantities, len(dates))
	var bad []error
	for _, d := range dates {
		row, ok := index[d]
		if !ok {
			continue
		}
		if row.Err != nil {
			bad = append(bad, row.Err)
			continue
		}
		out[d] = row.Quantities
	}
	if len(bad) > 0 {
		return nil, fmt.Errorf("sheet %q: %w", c.sheet, errors.Join(bad...))
	}
	return out, nil
}

// Upsert implements records.Upserter: rows whose date is already on the sheet
// are rewritten in place, the rest are appended below the last row.
func (c *Client) Upsert(ctx context.Context, recs []core.DailyRecord) (records.UpsertStats, error) {
	if len(recs) == 0 {
		return records.UpsertStats{}, nil
	}
	for _, r := range recs {
		if err := r.Validate(); err != nil {
			return records.UpsertStats{}, err
		}
	}

	rows, err := c.readRows(ctx)
	if err != nil {
		return records.UpsertStats{}, err
	}
	plan := planReconcile(rows, recs)

	if len(plan.Updates) > 0 {
		data := make([]*gsheet.ValueRange, 0, len(plan.Updates))
		for _, u := range plan.Updates {
			data = append(data, &gsheet.ValueRange{
				Range:  c.a1(fmt.Sprintf("A%d:C%d", u.Row, u.Row)),
				Values: [][]interface{}{recordRow(u.Record)},
			})
		}
		if err := c.values.BatchUpdate(ctx, c.spreadsheetID, data); err != nil {
			return records.UpsertStats{}, fmt.Errorf("update rows: %w", err)
		}
	}

	if len(plan.Appends) > 0 || plan.NeedsHeader {
		var out [][]interface{}
		if plan.NeedsHeader {
			out = append(out, headerRow())
		}
		for _, r := range plan.Appends {
			out = append(out, recordRow(r))
		}
		if err := c.values.Append(ctx, c.spreadsheetID, c.a1("A:C"), out); err != nil {
			return records.UpsertStats{}, fmt.Errorf("append rows: %w", err)
		}
	}

	stats := records.UpsertStats{Updated: len(plan.Updates), Appended: len(plan.Appends)}
	c.logger.InfoContext(ctx, "Milk records saved to Google Sheets",
		"sheet", c.sheet,
		"updated", stats.Updated,
		"appended", stats.Appended)
	return stats, nil
}

func (c *Client) readRows(ctx context.Context) ([][]interface{}, error) {
	rows, err := c.values.Get(ctx, c.spreadsheetID, c.a1("A:C"))
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", c.sheet, err)
	}
	return rows, nil
}

// a1 qualifies a range with the quoted sheet name.
func (c *Client) a1(rng string) string {
	return "'" + strings.ReplaceAll(c.sheet, "'", "''") + "'!" + rng
}

// serviceValues adapts *gsheet.Service to valuesAPI.
type serviceValues struct {
	svc *gsheet.Service
}

func (s serviceValues) Get(ctx context.Context, spreadsheetID, rng string) ([][]interface{}, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").
		DateTimeRenderOption("FORMATTED_STRING").
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (s serviceValues) BatchUpdate(ctx context.Context, spreadsheetID string, data []*gsheet.ValueRange) error {
	req := &gsheet.BatchUpdateValuesRequest{
		// RAW keeps dd/mm/yyyy as text instead of a locale dependent date.
		ValueInputOption: "RAW",
		Data:             data,
	}
	_, err := s.svc.Spreadsheets.Values.BatchUpdate(spreadsheetID, req).Context(ctx).Do()
	return err
}

func (s serviceValues) Append(ctx context.Context, spreadsheetID, rng string, rows [][]interface{}) error {
	vr := &gsheet.ValueRange{Values: rows}
	_, err := s.svc.Spreadsheets.Values.Append(spreadsheetID, rng, vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}
