// Package aggregate derives display statistics from a raw price series.
package aggregate

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kjannette/cryptodash/internal/models"
)

const places = 2

var hundred = decimal.NewFromInt(100)

// MonthKey formats t as YYYY-MM in loc. A nil loc means time.Local.
func MonthKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	return fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month()))
}

// Monthly buckets the series by local calendar month and averages each
// bucket, rounding half away from zero to two decimals. Months come back in
// ascending order.
func Monthly(series models.PriceSeries, loc *time.Location) models.MonthlyAverages {
	type bucket struct {
		sum   decimal.Decimal
		count int64
	}

	buckets := make(map[string]*bucket)
	var months []string
	for _, p := range series {
		key := MonthKey(p.Time(), loc)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
			months = append(months, key)
		}
		b.sum = b.sum.Add(decimal.NewFromFloat(p.Price))
		b.count++
	}

	// YYYY-MM sorts lexically in calendar order.
	sort.Strings(months)

	out := make(models.MonthlyAverages, 0, len(months))
	for _, m := range months {
		b := buckets[m]
		avg := b.sum.Div(decimal.NewFromInt(b.count)).Round(places)
		out = append(out, models.MonthlyAverage{Month: m, Average: avg})
	}
	return out
}

// Overall is the mean of every raw price in the series (not a mean of the
// monthly means), rounded to two decimals. ok is false for an empty series.
func Overall(series models.PriceSeries) (avg decimal.Decimal, ok bool) {
	if len(series) == 0 {
		return decimal.Zero, false
	}
	sum := decimal.Zero
	for _, p := range series {
		sum = sum.Add(decimal.NewFromFloat(p.Price))
	}
	return sum.Div(decimal.NewFromInt(int64(len(series)))).Round(places), true
}

// Deviation returns how far live sits above (positive) or below (negative)
// avg, in percent rounded to two decimals. ok is false when avg is zero.
func Deviation(live float64, avg decimal.Decimal) (pct decimal.Decimal, ok bool) {
	if avg.IsZero() {
		return decimal.Zero, false
	}
	diff := decimal.NewFromFloat(live).Sub(avg)
	return diff.Div(avg).Mul(hundred).Round(places), true
}

// Direction labels a deviation for display.
func Direction(pct decimal.Decimal) string {
	if pct.IsNegative() {
		return "down"
	}
	return "up"
}
