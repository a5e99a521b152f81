package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the persisted and displayed day key, zero padded.
const DateLayout = "02/01/2006"

const (
	MinYear = 2000
	MaxYear = 2100
)

type (
	// DailyRecord holds the two collections of one calendar day, in millilitres.
	DailyRecord struct {
		Date    string  `json:"date"`
		Morning float64 `json:"morning"`
		Evening float64 `json:"evening"`
	}

	// MonthSelection identifies the month being edited.
	MonthSelection struct {
		Month int `json:"month"`
		Year  int `json:"year"`
	}
)

var (
	ErrInvalidMonth = errors.New("invalid month")
	ErrInvalidYear  = errors.New("invalid year")
	ErrInvalidDate  = errors.New("invalid date")
)

func (s MonthSelection) Validate() error {
	if s.Month < 1 || s.Month > 12 {
		return fmt.Errorf("%w: %d", ErrInvalidMonth, s.Month)
	}
	if s.Year < MinYear || s.Year > MaxYear {
		return fmt.Errorf("%w: %d", ErrInvalidYear, s.Year)
	}
	return nil
}

// Key is the "yyyy-mm" identifier used for caches, files and topics.
func (s MonthSelection) Key() string {
	return fmt.Sprintf("%04d-%02d", s.Year, s.Month)
}

func (s MonthSelection) String() string {
	return time.Month(s.Month).String() + " " + fmt.Sprint(s.Year)
}

// CurrentMonth returns the selection containing t.
func CurrentMonth(t time.Time) MonthSelection {
	return MonthSelection{Month: int(t.Month()), Year: t.Year()}
}

// DaysIn returns the number of days of month in year (proleptic Gregorian).
func DaysIn(month, year int) int {
	// Day 0 of the following month normalises to the last day of this one.
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Dates lists every day of the selection as dd/mm/yyyy in ascending order.
func Dates(sel MonthSelection) ([]string, error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}
	n := DaysIn(sel.Month, sel.Year)
	out := make([]string, 0, n)
	for d := 1; d <= n; d++ {
		out = append(out, FormatDate(sel.Year, sel.Month, d))
	}
	return out, nil
}

func FormatDate(year, month, day int) string {
	return fmt.Sprintf("%02d/%02d/%04d", day, month, year)
}

// ParseDate parses a dd/mm/yyyy key. Non-padded or out of range values are rejected.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q: %v", ErrInvalidDate, s, err)
	}
	if t.Format(DateLayout) != s {
		return time.Time{}, fmt.Errorf("%w %q: not zero padded", ErrInvalidDate, s)
	}
	return t, nil
}

// SelectionOf returns the month a date key belongs to.
func SelectionOf(date string) (MonthSelection, error) {
	t, err := ParseDate(date)
	if err != nil {
		return MonthSelection{}, err
	}
	return CurrentMonth(t), nil
}

func (r DailyRecord) Validate() error {
	if _, err := ParseDate(r.Date); err != nil {
		return err
	}
	if !r.Finite() {
		return fmt.Errorf("%w on %s", ErrInvalidQuantity, r.Date)
	}
	return nil
}

// IsZero reports whether no milk was recorded for the day.
func (r DailyRecord) IsZero() bool {
	return r.Morning == 0 && r.Evening == 0
}

// Day returns the day of month of the record, or 0 if the date is malformed.
func (r DailyRecord) Day() int {
	t, err := ParseDate(r.Date)
	if err != nil {
		return 0
	}
	return t.Day()
}
