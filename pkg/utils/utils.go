// Package utils provides utility functions for the crossover trader.
package utils

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// DateLayout is the calendar date format used on the wire.
const DateLayout = "2006-01-02"

// FormatSymbol normalizes a ticker symbol.
func FormatSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Round2 rounds a monetary value to cents.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Percent returns part/whole*100, or zero when whole is not positive.
func Percent(part, whole decimal.Decimal) decimal.Decimal {
	if !whole.IsPositive() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred)
}

// CalculatePercentageChange calculates percentage change between two values.
func CalculatePercentageChange(old, new decimal.Decimal) decimal.Decimal {
	if old.IsZero() {
		return decimal.Zero
	}
	return new.Sub(old).Div(old).Mul(hundred)
}

// Drawdown is the deepest peak-to-trough decline of a value series.
type Drawdown struct {
	Amount  decimal.Decimal
	Percent decimal.Decimal
}

// CalculateMaxDrawdown walks values left to right with a running peak that
// starts at initial. Percent belongs to the same observation as Amount and is
// measured against the peak active at that point.
func CalculateMaxDrawdown(initial decimal.Decimal, values []decimal.Decimal) Drawdown {
	var dd Drawdown
	peak := initial

	for _, value := range values {
		if value.GreaterThan(peak) {
			peak = value
		}
		amount := peak.Sub(value)
		if amount.GreaterThan(dd.Amount) {
			dd.Amount = amount
			dd.Percent = Percent(amount, peak)
		}
	}

	return dd
}

// ParseDate parses a YYYY-MM-DD date in UTC.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
}

// TruncateDay drops the clock part of t, keeping its calendar date in UTC.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
