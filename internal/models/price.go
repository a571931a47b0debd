package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// PricePoint is one (timestamp, price) sample. On the wire it is the
// upstream's two-element array: [ms, usd].
type PricePoint struct {
	Timestamp int64   `json:"t"`
	Price     float64 `json:"p"`
}

func (p PricePoint) Time() time.Time {
	return time.UnixMilli(p.Timestamp)
}

func (p PricePoint) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{float64(p.Timestamp), p.Price})
}

func (p *PricePoint) UnmarshalJSON(b []byte) error {
	var pair []json.Number
	if err := json.Unmarshal(b, &pair); err != nil {
		return fmt.Errorf("price point: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("price point: expected [timestamp, price], got %d elements", len(pair))
	}
	ts, err := pair[0].Float64()
	if err != nil {
		return fmt.Errorf("price point timestamp: %w", err)
	}
	price, err := pair[1].Float64()
	if err != nil {
		return fmt.Errorf("price point price: %w", err)
	}
	p.Timestamp = int64(ts)
	p.Price = price
	return nil
}

// PriceSeries is ordered by timestamp ascending.
type PriceSeries []PricePoint

func (s PriceSeries) Prices() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Price
	}
	return out
}

// LivePrices maps coin id to its USD price. A zero price is a valid price;
// use the comma-ok form to test for presence.
type LivePrices map[string]float64

type usdQuote struct {
	USD float64 `json:"usd"`
}

// MarshalJSON renders the upstream simple/price shape: {"bitcoin":{"usd":1}}.
func (lp LivePrices) MarshalJSON() ([]byte, error) {
	out := make(map[string]usdQuote, len(lp))
	for id, usd := range lp {
		out[id] = usdQuote{USD: usd}
	}
	return json.Marshal(out)
}

func (lp *LivePrices) UnmarshalJSON(b []byte) error {
	var raw map[string]struct {
		USD *float64 `json:"usd"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(LivePrices, len(raw))
	for id, q := range raw {
		if q.USD == nil {
			return fmt.Errorf("live price for %q has no usd field", id)
		}
		out[id] = *q.USD
	}
	*lp = out
	return nil
}
