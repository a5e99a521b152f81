package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"milkbook/internal/core"
)

// sanitizeInput removes potentially dangerous characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}

func formatPrice(p core.UnitPrice) string {
	return strconv.FormatFloat(float64(p), 'f', -1, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type monthOption struct {
	Value    int
	Name     string
	Selected bool
}

type indexView struct {
	Months  []monthOption
	Year    int
	MinYear int
	MaxYear int
	Price   string
}

func newIndexView(now time.Time, price core.UnitPrice) indexView {
	v := indexView{
		Year:    now.Year(),
		MinYear: core.MinYear,
		MaxYear: core.MaxYear,
		Price:   formatPrice(price),
	}
	for m := time.January; m <= time.December; m++ {
		v.Months = append(v.Months, monthOption{
			Value:    int(m),
			Name:     m.String(),
			Selected: m == now.Month(),
		})
	}
	return v
}

type ledgerRow struct {
	Day     int
	Date    string
	Morning string
	Evening string
}

type totalsView struct {
	Month   int
	Year    int
	Days    int
	Morning string
	Evening string
	Litres  string
	Amount  string
	Price   string
}

type ledgerView struct {
	SessionID string
	Month     int
	Year      int
	Title     string
	Price     string
	Rows      []ledgerRow
	Totals    totalsView
	Warning   string
	Error     string
	Notice    string
}

func newTotalsView(sel core.MonthSelection, t core.Totals) totalsView {
	return totalsView{
		Month:   sel.Month,
		Year:    sel.Year,
		Days:    t.Days,
		Morning: core.FormatQuantity(t.Morning),
		Evening: core.FormatQuantity(t.Evening),
		Litres:  t.LitresText(),
		Amount:  t.PayableText(),
		Price:   formatPrice(t.UnitPrice),
	}
}

func newLedgerView(sessionID string, sel core.MonthSelection, recs []core.DailyRecord, price core.UnitPrice) ledgerView {
	v := ledgerView{
		SessionID: sessionID,
		Month:     sel.Month,
		Year:      sel.Year,
		Title:     sel.String(),
		Price:     formatPrice(price),
		Rows:      make([]ledgerRow, len(recs)),
		Totals:    newTotalsView(sel, core.Total(recs, price)),
	}
	for i, r := range recs {
		v.Rows[i] = ledgerRow{
			Day:     i + 1,
			Date:    r.Date,
			Morning: core.FormatQuantity(r.Morning),
			Evening: core.FormatQuantity(r.Evening),
		}
	}
	return v
}

// apiSheet is the JSON form of a materialized month.
type apiSheet struct {
	Year      int                `json:"year"`
	Month     int                `json:"month"`
	UnitPrice core.UnitPrice     `json:"unit_price"`
	Records   []core.DailyRecord `json:"records"`
	Totals    apiTotals          `json:"totals"`
	Warning   string             `json:"warning,omitempty"`
}

type apiTotals struct {
	core.Totals
	LitresText string `json:"litres_text"`
	AmountText string `json:"amount_text"`
}

func newAPITotals(t core.Totals) apiTotals {
	return apiTotals{Totals: t, LitresText: t.LitresText(), AmountText: t.PayableText()}
}

type apiReconcileRequest struct {
	Records []core.DailyRecord `json:"records"`
}

type apiReconcileResponse struct {
	Updated  int `json:"updated"`
	Appended int `json:"appended"`
}
