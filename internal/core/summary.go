package core

import "github.com/shopspring/decimal"

// Totals summarises a month of records at a given unit price.
type Totals struct {
	Morning   float64   `json:"morning_ml"`
	Evening   float64   `json:"evening_ml"`
	Litres    float64   `json:"litres"`
	Amount    float64   `json:"amount"`
	UnitPrice UnitPrice `json:"unit_price"`
	Days      int       `json:"days"`

	litres decimal.Decimal
	amount decimal.Decimal
}

// LitresText formats the volume with two fractional digits.
func (t Totals) LitresText() string {
	return t.litres.StringFixed(2)
}

// PayableText formats the amount with two fractional digits.
func (t Totals) PayableText() string {
	return t.amount.StringFixed(2)
}

// Total sums both collections of records, converts millilitres to litres and
// multiplies by price. The amount is not rounded; only the text forms are.
// Non-finite quantities count as zero.
func Total(records []DailyRecord, price UnitPrice) Totals {
	morning := decimal.Zero
	evening := decimal.Zero
	for _, r := range records {
		morning = morning.Add(decimalOf(r.Morning))
		evening = evening.Add(decimalOf(r.Evening))
	}

	litres := morning.Add(evening).Div(decimal.NewFromInt(MillilitresPerLitre))
	amount := litres.Mul(price.Decimal())

	return Totals{
		Morning:   morning.InexactFloat64(),
		Evening:   evening.InexactFloat64(),
		Litres:    litres.InexactFloat64(),
		Amount:    amount.InexactFloat64(),
		UnitPrice: price,
		Days:      len(records),
		litres:    litres,
		amount:    amount,
	}
}

// MonthSheet is a materialized month: one record per calendar day, in order.
// Warning is set when stored values could not be read and every record was
// zero-filled instead.
type MonthSheet struct {
	Selection MonthSelection
	Records   []DailyRecord
	Warning   error
}

// Degraded reports whether the sheet was built without stored values.
func (s MonthSheet) Degraded() bool {
	return s.Warning != nil
}

// ZeroSheet returns a sheet with one zero record per day of sel.
func ZeroSheet(sel MonthSelection) (MonthSheet, error) {
	dates, err := Dates(sel)
	if err != nil {
		return MonthSheet{}, err
	}
	recs := make([]DailyRecord, len(dates))
	for i, d := range dates {
		recs[i] = DailyRecord{Date: d}
	}
	return MonthSheet{Selection: sel, Records: recs}, nil
}

// Changed reports whether current differs from original in any value.
// Both slices are compared by date; a date present on one side only counts
// as a change unless its values are zero.
func Changed(original, current []DailyRecord) bool {
	base := make(map[string]DailyRecord, len(original))
	for _, r := range original {
		base[r.Date] = r
	}
	seen := make(map[string]bool, len(current))
	for _, r := range current {
		seen[r.Date] = true
		o, ok := base[r.Date]
		if !ok {
			if !r.IsZero() {
				return true
			}
			continue
		}
		if o.Morning != r.Morning || o.Evening != r.Evening {
			return true
		}
	}
	for d, r := range base {
		if !seen[d] && !r.IsZero() {
			return true
		}
	}
	return false
}
