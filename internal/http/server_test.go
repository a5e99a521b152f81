package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"milkbook/internal/core"
	applog "milkbook/internal/log"
	"milkbook/internal/records"
	"milkbook/internal/records/memory"
	"milkbook/internal/services"
)

var errDown = errors.New("backend down")

// countingStore wraps a memory store and can be switched to fail.
type countingStore struct {
	*memory.Store
	upserts   atomic.Int32
	failRead  bool
	failWrite bool
	failPing  bool
	// raw overrides fetched values, bypassing the memory store's validation.
	raw map[string]records.Quantities
}

func (c *countingStore) Fetch(ctx context.Context, dates []string) (map[string]records.Quantities, error) {
	if c.failRead {
		return nil, errDown
	}
	out, err := c.Store.Fetch(ctx, dates)
	if err != nil {
		return nil, err
	}
	for date, q := range c.raw {
		out[date] = q
	}
	return out, nil
}

func (c *countingStore) Upsert(ctx context.Context, recs []core.DailyRecord) (records.UpsertStats, error) {
	c.upserts.Add(1)
	if c.failWrite {
		return records.UpsertStats{}, errDown
	}
	return c.Store.Upsert(ctx, recs)
}

func (c *countingStore) Ping(ctx context.Context) error {
	if c.failPing {
		return errDown
	}
	return nil
}

func newTestServer(t *testing.T, store records.Store) *Server {
	t.Helper()
	return newTestServerWith(t, store, Options{})
}

func newTestServerWith(t *testing.T, store records.Store, opts Options) *Server {
	t.Helper()
	logger := applog.New(applog.Config{Level: slog.LevelError, Output: io.Discard})
	opts.Logger = logger
	srv := NewServer(":0", services.NewMonthlyLedger(store, logger.Logger), opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func do(t *testing.T, srv *Server, method, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

var sessionRe = regexp.MustCompile(`name="session" value="([^"]+)"`)

func openMonth(t *testing.T, srv *Server, month, year string) string {
	t.Helper()
	rr := do(t, srv, http.MethodGet, "/ui/ledger?month="+month+"&year="+year, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("ledger status=%d body=%s", rr.Code, rr.Body.String())
	}
	m := sessionRe.FindStringSubmatch(rr.Body.String())
	if m == nil {
		t.Fatalf("no session id in ledger partial")
	}
	return m[1]
}

func TestIndexAndHealth(t *testing.T) {
	srv := newTestServer(t, &countingStore{Store: memory.New()})

	rr := do(t, srv, http.MethodGet, "/", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("index status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Milkbook") {
		t.Fatalf("index body missing heading")
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Errorf("security headers not applied")
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Errorf("request id not set")
	}

	for _, path := range []string{"/healthz", "/readyz", "/static/app.css"} {
		rr := do(t, srv, http.MethodGet, path, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}

	if rr := do(t, srv, http.MethodGet, "/nope", nil); rr.Code != http.StatusNotFound {
		t.Errorf("unknown path status=%d", rr.Code)
	}
}

func TestReadyReportsStorage(t *testing.T) {
	srv := newTestServer(t, &countingStore{Store: memory.New(), failPing: true})

	rr := do(t, srv, http.MethodGet, "/readyz", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "backend down") {
		t.Errorf("readyz body = %s", rr.Body.String())
	}
}

func TestLedgerPartialHasOneRowPerDay(t *testing.T) {
	store := &countingStore{Store: memory.New(core.DailyRecord{Date: "10/02/2024", Morning: 1000, Evening: 500})}
	srv := newTestServer(t, store)

	rr := do(t, srv, http.MethodGet, "/ui/ledger?month=2&year=2024&price=50", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()
	if got := strings.Count(body, `name="morning_`); got != 29 {
		t.Errorf("morning inputs = %d, want 29", got)
	}
	for _, want := range []string{"29/02/2024", `name="morning_10" value="1000"`, `name="evening_10" value="500"`, "75.00"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
	if strings.Contains(body, "30/02/2024") {
		t.Errorf("body has a day past the end of the month")
	}
}

func TestLedgerRejectsBadSelection(t *testing.T) {
	srv := newTestServer(t, &countingStore{Store: memory.New()})

	for _, q := range []string{"month=13&year=2025", "month=1&year=1999", "month=x", "month=1&year=2025&price=-1"} {
		if rr := do(t, srv, http.MethodGet, "/ui/ledger?"+q, nil); rr.Code != http.StatusUnprocessableEntity {
			t.Errorf("%s: status=%d, want 422", q, rr.Code)
		}
	}
}

func TestLedgerDegradedRead(t *testing.T) {
	srv := newTestServer(t, &countingStore{Store: memory.New(), failRead: true})

	rr := do(t, srv, http.MethodGet, "/ui/ledger?month=4&year=2025", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "could not be read") {
		t.Errorf("missing warning banner")
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), `"type":"warning"`) {
		t.Errorf("missing warning trigger: %s", rr.Header().Get("HX-Trigger"))
	}
	if got := strings.Count(rr.Body.String(), `name="evening_`); got != 30 {
		t.Errorf("evening inputs = %d, want 30", got)
	}
}

func TestSaveLedgerFlow(t *testing.T) {
	store := &countingStore{Store: memory.New()}
	srv := newTestServer(t, store)
	session := openMonth(t, srv, "1", "2025")

	// Unedited grid is not written.
	rr := do(t, srv, http.MethodPost, "/ledger", url.Values{"session": {session}})
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "No changes to save.") {
		t.Errorf("expected no-op notice, got %s", rr.Body.String())
	}
	if store.upserts.Load() != 0 {
		t.Fatalf("unedited grid was written")
	}

	rr = do(t, srv, http.MethodPost, "/ledger", url.Values{
		"session":   {session},
		"price":     {"45"},
		"morning_1": {"1000"},
		"evening_1": {"500"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("save status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Saved: 0 updated, 31 added.") {
		t.Errorf("unexpected save notice: %s", rr.Body.String())
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), `"ledger:saved"`) {
		t.Errorf("missing ledger:saved trigger")
	}
	if !strings.Contains(rr.Body.String(), "67.50") {
		t.Errorf("totals not recomputed")
	}

	got, _ := store.Fetch(context.Background(), []string{"01/01/2025"})
	if got["01/01/2025"] != (records.Quantities{Morning: 1000, Evening: 500}) {
		t.Errorf("stored = %+v", got)
	}

	// Same values again: snapshot was adopted, nothing written.
	do(t, srv, http.MethodPost, "/ledger", url.Values{
		"session":   {session},
		"morning_1": {"1000"},
		"evening_1": {"500"},
	})
	if store.upserts.Load() != 1 {
		t.Errorf("upserts = %d, want 1", store.upserts.Load())
	}

	// A second session sees the saved values and updates in place.
	other := openMonth(t, srv, "1", "2025")
	rr = do(t, srv, http.MethodPost, "/ledger", url.Values{"session": {other}, "morning_2": {"250"}, "morning_1": {"1000"}, "evening_1": {"500"}})
	if !strings.Contains(rr.Body.String(), "Saved: 31 updated, 0 added.") {
		t.Errorf("unexpected save notice: %s", rr.Body.String())
	}
}

func TestSaveLedgerUnknownSession(t *testing.T) {
	srv := newTestServer(t, &countingStore{Store: memory.New()})

	rr := do(t, srv, http.MethodPost, "/ledger", url.Values{"session": {"missing"}})
	if rr.Code != http.StatusGone {
		t.Fatalf("status=%d, want 410", rr.Code)
	}
	if rr := do(t, srv, http.MethodGet, "/ledger", nil); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /ledger status=%d", rr.Code)
	}
}

func TestSaveLedgerFailureKeepsEdits(t *testing.T) {
	store := &countingStore{Store: memory.New(), failWrite: true}
	srv := newTestServer(t, store)
	session := openMonth(t, srv, "3", "2025")

	rr := do(t, srv, http.MethodPost, "/ledger", url.Values{"session": {session}, "morning_5": {"1234"}})
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "Could not save") {
		t.Errorf("missing error banner")
	}
	if !strings.Contains(body, `name="morning_5" value="1234"`) {
		t.Errorf("submitted value not re-rendered")
	}

	// The snapshot is unchanged, so a retry still writes.
	store.failWrite = false
	rr = do(t, srv, http.MethodPost, "/ledger", url.Values{"session": {session}, "morning_5": {"1234"}})
	if !strings.Contains(rr.Body.String(), "Saved:") {
		t.Errorf("retry did not save: %s", rr.Body.String())
	}
}

func TestSaveLedgerBadQuantity(t *testing.T) {
	srv := newTestServer(t, &countingStore{Store: memory.New()})
	session := openMonth(t, srv, "3", "2025")

	rr := do(t, srv, http.MethodPost, "/ledger", url.Values{"session": {session}, "morning_5": {"lots"}})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d, want 422", rr.Code)
	}
}

func TestTotalsPartial(t *testing.T) {
	srv := newTestServer(t, &countingStore{Store: memory.New()})

	rr := do(t, srv, http.MethodPost, "/ui/totals", url.Values{
		"month":     {"1"},
		"year":      {"2025"},
		"price":     {"45"},
		"morning_1": {"1000"},
		"evening_1": {"500"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	for _, want := range []string{`id="totals"`, "1.50", "67.50"} {
		if !strings.Contains(rr.Body.String(), want) {
			t.Errorf("totals missing %q: %s", want, rr.Body.String())
		}
	}
}

func TestAPILedger(t *testing.T) {
	store := &countingStore{Store: memory.New()}
	srv := newTestServer(t, store)

	req := httptest.NewRequest(http.MethodPost, "/api/ledger",
		strings.NewReader(`{"records":[{"date":"05/06/2025","morning":800,"evening":200}]}`))
	req.Header.Set(SessionHeader, "cli-1")
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("post status=%d body=%s", rr.Code, rr.Body.String())
	}
	var stats apiReconcileResponse
	if err := json.NewDecoder(rr.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.Appended != 1 || stats.Updated != 0 {
		t.Errorf("stats = %+v", stats)
	}

	rr = do(t, srv, http.MethodGet, "/api/ledger?month=6&year=2025&price=45", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get status=%d", rr.Code)
	}
	var sheet struct {
		Records []core.DailyRecord `json:"records"`
		Totals  struct {
			Litres     float64 `json:"litres"`
			AmountText string  `json:"amount_text"`
		} `json:"totals"`
		Warning string `json:"warning"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&sheet); err != nil {
		t.Fatal(err)
	}
	if len(sheet.Records) != 30 {
		t.Errorf("records = %d, want 30", len(sheet.Records))
	}
	if sheet.Records[4].Morning != 800 || sheet.Totals.AmountText != "45.00" || sheet.Warning != "" {
		t.Errorf("sheet = %+v", sheet)
	}
}

func TestAPILedgerErrors(t *testing.T) {
	store := &countingStore{Store: memory.New()}
	srv := newTestServer(t, store)

	post := func(body string) int {
		rr := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/ledger", strings.NewReader(body)))
		return rr.Code
	}

	if code := post(`{"records":[{"date":"2025-06-05"}]}`); code != http.StatusBadRequest {
		t.Errorf("bad date status=%d", code)
	}
	if code := post(`not json`); code != http.StatusBadRequest {
		t.Errorf("bad json status=%d", code)
	}
	store.failWrite = true
	if code := post(`{"records":[{"date":"05/06/2025","morning":1}]}`); code != http.StatusBadGateway {
		t.Errorf("persist failure status=%d", code)
	}
	if rr := do(t, srv, http.MethodDelete, "/api/ledger", nil); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("DELETE status=%d", rr.Code)
	}
}

func TestSessionsExpire(t *testing.T) {
	store := &countingStore{Store: memory.New()}
	logger := applog.New(applog.Config{Level: slog.LevelError, Output: io.Discard})
	srv := NewServer(":0", services.NewMonthlyLedger(store, logger.Logger), Options{Logger: logger, SessionTTL: time.Millisecond})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	session := openMonth(t, srv, "1", "2025")
	time.Sleep(5 * time.Millisecond)

	rr := do(t, srv, http.MethodPost, "/ledger", url.Values{"session": {session}, "morning_1": {"1"}})
	if rr.Code != http.StatusGone {
		t.Fatalf("status=%d, want 410", rr.Code)
	}
}

func TestTotalsPartialUsesConfiguredPrice(t *testing.T) {
	price := core.UnitPrice(50)
	srv := newTestServerWith(t, &countingStore{Store: memory.New()}, Options{DefaultPrice: &price})

	rr := do(t, srv, http.MethodPost, "/ui/totals", url.Values{
		"month":     {"1"},
		"year":      {"2025"},
		"price":     {""},
		"morning_1": {"1000"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "50.00") {
		t.Errorf("totals did not use the configured price: %s", rr.Body.String())
	}
}

func TestZeroConfiguredPriceIsKept(t *testing.T) {
	price := core.UnitPrice(0)
	srv := newTestServerWith(t, &countingStore{Store: memory.New()}, Options{DefaultPrice: &price})
	if srv.price != 0 {
		t.Fatalf("price = %v, want 0", srv.price)
	}

	srv = newTestServer(t, &countingStore{Store: memory.New()})
	if srv.price != core.DefaultUnitPrice {
		t.Fatalf("unset price = %v, want %v", srv.price, core.DefaultUnitPrice)
	}
}

func TestOverflowingInputIsRejected(t *testing.T) {
	store := &countingStore{Store: memory.New()}
	srv := newTestServer(t, store)
	session := openMonth(t, srv, "1", "2025")

	rr := do(t, srv, http.MethodPost, "/ledger", url.Values{"session": {session}, "morning_1": {"1e400"}})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("save status=%d, want 422", rr.Code)
	}
	rr = do(t, srv, http.MethodPost, "/ui/totals", url.Values{"month": {"1"}, "year": {"2025"}, "price": {"1e400"}})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("totals status=%d, want 422", rr.Code)
	}
	if store.upserts.Load() != 0 {
		t.Errorf("upserts = %d, want 0", store.upserts.Load())
	}
}

func TestStoredNonFiniteValueDoesNotBreakReads(t *testing.T) {
	store := &countingStore{
		Store: memory.New(core.DailyRecord{Date: "02/01/2025", Morning: 1000, Evening: 500}),
		raw:   map[string]records.Quantities{"01/01/2025": {Morning: math.Inf(1)}},
	}
	srv := newTestServer(t, store)

	rr := do(t, srv, http.MethodGet, "/api/ledger?month=1&year=2025&price=45", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("api status=%d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"amount_text":"67.50"`) {
		t.Errorf("api totals = %s", rr.Body.String())
	}

	rr = do(t, srv, http.MethodGet, "/ui/ledger?month=1&year=2025", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("ui status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "67.50") {
		t.Errorf("ui totals missing 67.50")
	}
}
