// Package core provides the milk ledger domain model.
//
// This file contains price parsing and the conversion from recorded
// millilitres to litres and a payable amount.
package core

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultUnitPrice is the price per litre offered when a session opens.
const DefaultUnitPrice = 45.0

// MillilitresPerLitre converts stored quantities to litres.
const MillilitresPerLitre = 1000

var (
	ErrInvalidPrice    = errors.New("invalid unit price")
	ErrInvalidQuantity = errors.New("invalid quantity")
)

// UnitPrice is the price of one litre. It is never persisted.
type UnitPrice float64

func (p UnitPrice) Validate() error {
	if p < 0 || !finite(float64(p)) {
		return ErrInvalidPrice
	}
	return nil
}

// Decimal returns the price as a decimal. A non-finite price counts as zero.
func (p UnitPrice) Decimal() decimal.Decimal {
	return decimalOf(float64(p))
}

// ParseUnitPrice accepts dot (45.5) and comma (45,5) decimal separators.
// An empty string yields DefaultUnitPrice.
//
// Examples:
//
//	ParseUnitPrice("")     -> 45, nil
//	ParseUnitPrice("52,5") -> 52.5, nil
//	ParseUnitPrice("-1")   -> 0, ErrInvalidPrice
//	ParseUnitPrice("1e400") -> 0, ErrInvalidPrice
func ParseUnitPrice(s string) (UnitPrice, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultUnitPrice, nil
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
	if err != nil {
		return 0, ErrInvalidPrice
	}
	if d.IsNegative() {
		return 0, ErrInvalidPrice
	}
	v := d.InexactFloat64()
	if !finite(v) {
		return 0, ErrInvalidPrice
	}
	return UnitPrice(v), nil
}

// ParseQuantity parses a millilitre value from user input. Empty means zero.
// Negative values are accepted as entered; values beyond float64 range are not.
func ParseQuantity(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
	if err != nil {
		return 0, ErrInvalidQuantity
	}
	v := d.InexactFloat64()
	if !finite(v) {
		return 0, ErrInvalidQuantity
	}
	return v, nil
}

// FormatQuantity renders a millilitre value without trailing zeros.
func FormatQuantity(v float64) string {
	if !finite(v) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return decimal.NewFromFloat(v).String()
}

// Finite reports whether both quantities of r are real numbers.
func (r DailyRecord) Finite() bool {
	return finite(r.Morning) && finite(r.Evening)
}

func finite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}

// decimalOf converts v, mapping NaN and infinities to zero since
// decimal.NewFromFloat panics on them.
func decimalOf(v float64) decimal.Decimal {
	if !finite(v) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}
