package models

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// MonthlyAverage is the mean price over one local calendar month.
type MonthlyAverage struct {
	Month   string          // YYYY-MM
	Average decimal.Decimal // rounded to two decimals
}

// MonthlyAverages keeps months in display order. Its JSON form is an object
// keyed by month with two-decimal string values, in slice order.
type MonthlyAverages []MonthlyAverage

func (m MonthlyAverages) Get(month string) (decimal.Decimal, bool) {
	for _, ma := range m {
		if ma.Month == month {
			return ma.Average, true
		}
	}
	return decimal.Decimal{}, false
}

func (m MonthlyAverages) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, ma := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(ma.Month)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(ma.Average.StringFixed(2))
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m *MonthlyAverages) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("monthly averages: expected object, got %v", tok)
	}

	out := MonthlyAverages{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		month, _ := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		// Accept both "20.00" and 20.
		s := string(bytes.Trim(raw, `"`))
		avg, err := decimal.NewFromString(s)
		if err != nil {
			return fmt.Errorf("monthly average %s: %w", month, err)
		}
		out = append(out, MonthlyAverage{Month: month, Average: avg})
	}
	*m = out
	return nil
}

// HistoricalData is what the historical endpoint serves and what the
// historical cache entry holds.
type HistoricalData struct {
	Prices          PriceSeries     `json:"prices"`
	MonthlyAverages MonthlyAverages `json:"monthlyAverages"`
}

// Summary compares the live price against the lookback window's average.
// Amounts are two-decimal strings. AveragePrice and DeviationPercent are nil
// when they cannot be computed (empty series, zero average).
type Summary struct {
	CoinID           string  `json:"coinId"`
	AveragePrice     *string `json:"averagePrice"`
	LivePrice        float64 `json:"livePrice"`
	DeviationPercent *string `json:"deviationPercent"`
	Direction        string  `json:"direction,omitempty"`
}
