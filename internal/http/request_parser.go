// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data:
// month selection, unit price and the day-by-day ledger grid.

package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"milkbook/internal/core"
)

// Form field prefixes of the ledger grid; the day of month is appended.
const (
	morningField = "morning_"
	eveningField = "evening_"
)

// ParseMonthParams extracts year and month from values, defaulting each
// missing field to now. Present but malformed or out of range values are
// rejected.
func ParseMonthParams(values url.Values, now time.Time) (core.MonthSelection, error) {
	sel := core.CurrentMonth(now)

	if v := strings.TrimSpace(values.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return core.MonthSelection{}, fmt.Errorf("%w: %q", core.ErrInvalidYear, v)
		}
		sel.Year = y
	}
	if v := strings.TrimSpace(values.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			return core.MonthSelection{}, fmt.Errorf("%w: %q", core.ErrInvalidMonth, v)
		}
		sel.Month = m
	}

	if err := sel.Validate(); err != nil {
		return core.MonthSelection{}, err
	}
	return sel, nil
}

// ParsePrice reads the "price" field. Empty means fallback.
func ParsePrice(values url.Values, fallback core.UnitPrice) (core.UnitPrice, error) {
	raw := sanitizeInput(values.Get("price"))
	if raw == "" {
		return fallback, nil
	}
	return core.ParseUnitPrice(raw)
}

// LedgerForm is a submitted month grid.
type LedgerForm struct {
	SessionID string
	Price     core.UnitPrice
	Records   []core.DailyRecord
}

// ParseLedgerForm reads one morning and one evening field per day of sel.
// Missing or empty fields count as zero and an empty price means fallback.
// Every malformed quantity is reported.
func ParseLedgerForm(form url.Values, sel core.MonthSelection, fallback core.UnitPrice) (LedgerForm, error) {
	dates, err := core.Dates(sel)
	if err != nil {
		return LedgerForm{}, err
	}

	price, err := ParsePrice(form, fallback)
	if err != nil {
		return LedgerForm{}, err
	}

	out := LedgerForm{
		SessionID: sanitizeInput(form.Get("session")),
		Price:     price,
		Records:   make([]core.DailyRecord, len(dates)),
	}

	var errs []error
	for i, date := range dates {
		day := strconv.Itoa(i + 1)
		morning, err := core.ParseQuantity(sanitizeInput(form.Get(morningField + day)))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s morning: %w", date, err))
		}
		evening, err := core.ParseQuantity(sanitizeInput(form.Get(eveningField + day)))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s evening: %w", date, err))
		}
		out.Records[i] = core.DailyRecord{Date: date, Morning: morning, Evening: evening}
	}

	return out, errors.Join(errs...)
}

// RequireMethod checks if the request method matches the expected method(s).
// Returns an error response builder if the method doesn't match.
func RequireMethod(r *http.Request, methods ...string) *HTMXResponseBuilder {
	for _, m := range methods {
		if r.Method == m {
			return nil
		}
	}
	return MethodNotAllowedError(strings.Join(methods, ", "))
}

// RequirePOST is a convenience function for POST-only handlers.
func RequirePOST(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodPost)
}

// ParseFormOrFail parses the request form and returns an error response on failure.
// Returns nil on success.
func ParseFormOrFail(r *http.Request) *HTMXResponseBuilder {
	if err := r.ParseForm(); err != nil {
		return BadRequestError("Malformed request")
	}
	return nil
}
