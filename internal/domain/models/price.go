package models

import (
	"math"
	"sort"
	"time"
)

// PricePoint is one daily OHLCV bar. Immutable once loaded.
type PricePoint struct {
	Date     time.Time `json:"date"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	AdjClose float64   `json:"adjClose"`
	Volume   float64   `json:"volume"`
}

// PriceSeries is an ordered daily price history for one symbol.
// Dates are strictly ascending and unique after NewPriceSeries.
type PriceSeries struct {
	Symbol string       `json:"symbol"`
	Points []PricePoint `json:"points"`
}

// NewPriceSeries sorts points by date ascending and drops duplicate dates,
// keeping the first occurrence.
func NewPriceSeries(symbol string, pts []PricePoint) PriceSeries {
	sorted := make([]PricePoint, len(pts))
	copy(sorted, pts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})
	out := make([]PricePoint, 0, len(sorted))
	for _, p := range sorted {
		if len(out) > 0 && sameDay(out[len(out)-1].Date, p.Date) {
			continue
		}
		out = append(out, p)
	}
	return PriceSeries{Symbol: symbol, Points: out}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Len returns the number of bars.
func (s PriceSeries) Len() int { return len(s.Points) }

// Closes returns the close column.
func (s PriceSeries) Closes() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Close
	}
	return out
}

// LogReturns computes r_t = ln(C_t / C_{t-1}). Returns len-1 values,
// or nil for fewer than two bars. Non-positive closes contribute zero.
func (s PriceSeries) LogReturns() []float64 {
	if len(s.Points) < 2 {
		return nil
	}
	out := make([]float64, 0, len(s.Points)-1)
	for i := 1; i < len(s.Points); i++ {
		prev := s.Points[i-1].Close
		cur := s.Points[i].Close
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}
