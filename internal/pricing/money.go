package pricing

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/allotment/pkg/apperr"
)

// Precision is the number of decimal places amounts are rounded to.
const Precision = 8

// Round rounds d half away from zero to Precision places.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Precision)
}

// MonthlyPriceMultiplier is the share of the current month still to be
// billed: whole days from yesterday (or now, on the first of the month) to
// the end of the month, over the number of days in that month.
func MonthlyPriceMultiplier(now time.Time) (decimal.Decimal, error) {
	end := EndOfMonth(now)
	from := now.AddDate(0, 0, -1)
	if from.Year() != now.Year() || from.Month() != now.Month() {
		from = now
	}

	days := int64(end.Sub(from).Hours() / 24)
	multiplier := decimal.NewFromInt(days).Div(decimal.NewFromInt(int64(DaysInMonth(from))))
	if !multiplier.IsPositive() {
		return decimal.Zero, apperr.UndefinedState("Was not able to derive monthly price multiplier")
	}
	return multiplier, nil
}

// StartOfMonth returns midnight of the first day of t's month.
func StartOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// EndOfMonth returns the last millisecond of t's month.
func EndOfMonth(t time.Time) time.Time {
	return StartOfMonth(t).AddDate(0, 1, 0).Add(-time.Millisecond)
}

func DaysInMonth(t time.Time) int {
	return EndOfMonth(t).Day()
}

// Quantity converts an item count to a decimal.
func Quantity(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}
