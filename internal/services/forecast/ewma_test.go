package forecast

import (
	"math"
	"testing"
	"time"

	"QuantDesk/internal/domain/models"
	domsvc "QuantDesk/internal/domain/service"
	"QuantDesk/pkg/util"
)

func dailySeries(symbol string, start time.Time, closes []float64) models.PriceSeries {
	pts := make([]models.PricePoint, 0, len(closes))
	d := start
	for !util.IsBusinessDay(d) {
		d = util.NextBusinessDay(d)
	}
	for _, c := range closes {
		pts = append(pts, models.PricePoint{
			Date:  d,
			Open:  c,
			High:  c * 1.01,
			Low:   c * 0.99,
			Close: c,
		})
		d = util.NextBusinessDay(d)
	}
	return models.NewPriceSeries(symbol, pts)
}

func constantCloses(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func trendCloses(n int, start, dailyLogRet float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start * math.Exp(dailyLogRet*float64(i))
	}
	return out
}

func TestWalkForwardInsufficientData(t *testing.T) {
	f := NewEWMAForecaster(nil)
	series := dailySeries("AAPL", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), constantCloses(10, 100))

	_, err := f.WalkForward(series, domsvc.ForecastParams{Lambda: 0.94, Horizon: 1})
	if err != models.ErrInsufficientData {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestWalkForwardRejectsBadLambda(t *testing.T) {
	f := NewEWMAForecaster(nil)
	series := dailySeries("AAPL", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), constantCloses(100, 100))

	for _, lam := range []float64{0, 1, -0.5, 1.5} {
		if _, err := f.WalkForward(series, domsvc.ForecastParams{Lambda: lam, Horizon: 1}); err == nil {
			t.Fatalf("lambda=%v: expected error, got nil", lam)
		}
	}
}

func TestWalkForwardFlatSeries(t *testing.T) {
	f := NewEWMAForecaster(nil)
	series := dailySeries("FLAT", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), constantCloses(120, 100))

	for _, biased := range []bool{false, true} {
		path, err := f.WalkForward(series, domsvc.ForecastParams{Lambda: 0.94, Horizon: 1, Biased: biased})
		if err != nil {
			t.Fatalf("biased=%v: unexpected error: %v", biased, err)
		}
		if len(path) == 0 {
			t.Fatalf("biased=%v: empty path", biased)
		}
		for _, wp := range path {
			if math.Abs(wp.Forecast-100) > 1e-9 {
				t.Fatalf("biased=%v: flat series forecast = %v, want 100", biased, wp.Forecast)
			}
		}
	}
}

func TestWalkForwardTargetIsBusinessDay(t *testing.T) {
	f := NewEWMAForecaster(nil)
	series := dailySeries("AAPL", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), trendCloses(120, 100, 0.001))

	for _, h := range []int{1, 5, 21} {
		path, err := f.WalkForward(series, domsvc.ForecastParams{Lambda: 0.9, Horizon: h})
		if err != nil {
			t.Fatalf("horizon=%d: unexpected error: %v", h, err)
		}
		for _, wp := range path {
			if !util.IsBusinessDay(wp.Target) {
				t.Fatalf("horizon=%d: target %s falls on a weekend", h, wp.Target.Format(util.DayFormat))
			}
			if got := util.BusinessDaysBetween(wp.Origin, wp.Target); got != h {
				t.Fatalf("horizon=%d: origin->target spans %d business days", h, got)
			}
		}
	}
}

func TestWalkForwardNoLookahead(t *testing.T) {
	// Forecasts up to a cutoff must be identical whether or not the series
	// continues past the cutoff.
	f := NewEWMAForecaster(nil)
	closes := trendCloses(200, 100, 0.0015)
	full := dailySeries("AAPL", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), closes)
	truncated := dailySeries("AAPL", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), closes[:120])

	p := domsvc.ForecastParams{Lambda: 0.94, Horizon: 5, Biased: true}
	fullPath, err := f.WalkForward(full, p)
	if err != nil {
		t.Fatalf("full series: %v", err)
	}
	truncPath, err := f.WalkForward(truncated, p)
	if err != nil {
		t.Fatalf("truncated series: %v", err)
	}
	if len(truncPath) > len(fullPath) {
		t.Fatalf("truncated path longer than full path: %d > %d", len(truncPath), len(fullPath))
	}
	for i, wp := range truncPath {
		got := fullPath[i]
		if !wp.Origin.Equal(got.Origin) {
			t.Fatalf("point %d: origin mismatch %s vs %s", i, wp.Origin, got.Origin)
		}
		if wp.Forecast != got.Forecast || wp.Sigma != got.Sigma {
			t.Fatalf("point %d: forecast depends on future bars: %v/%v vs %v/%v",
				i, wp.Forecast, wp.Sigma, got.Forecast, got.Sigma)
		}
	}
}

func TestWalkForwardBiasedFollowsTrend(t *testing.T) {
	f := NewEWMAForecaster(nil)
	series := dailySeries("TRND", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), trendCloses(150, 100, 0.002))

	unbiased, err := f.WalkForward(series, domsvc.ForecastParams{Lambda: 0.94, Horizon: 5, Biased: false})
	if err != nil {
		t.Fatalf("unbiased: %v", err)
	}
	biased, err := f.WalkForward(series, domsvc.ForecastParams{Lambda: 0.94, Horizon: 5, Biased: true})
	if err != nil {
		t.Fatalf("biased: %v", err)
	}
	if len(unbiased) != len(biased) {
		t.Fatalf("path length mismatch: %d vs %d", len(unbiased), len(biased))
	}
	// On a steady uptrend the drift-adjusted forecast sits above the flat one.
	last := len(biased) - 1
	if biased[last].Forecast <= unbiased[last].Forecast {
		t.Fatalf("biased forecast %v not above unbiased %v on an uptrend",
			biased[last].Forecast, unbiased[last].Forecast)
	}
}

func TestWalkForwardRealizedLookup(t *testing.T) {
	f := NewEWMAForecaster(nil)
	closes := trendCloses(100, 100, 0.001)
	series := dailySeries("AAPL", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), closes)

	path, err := f.WalkForward(series, domsvc.ForecastParams{Lambda: 0.94, Horizon: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	byDate := make(map[string]float64, len(series.Points))
	for _, p := range series.Points {
		byDate[p.Date.Format(util.DayFormat)] = p.Close
	}
	for _, wp := range path {
		if !wp.Realized {
			continue
		}
		want, ok := byDate[wp.Target.Format(util.DayFormat)]
		if !ok {
			continue // target filled by the first later bar
		}
		if wp.SpotTp1 != want {
			t.Fatalf("origin %s: realized %v, want close at %s = %v",
				wp.Origin.Format(util.DayFormat), wp.SpotTp1, wp.Target.Format(util.DayFormat), want)
		}
	}
	// The tail of the path cannot be realized yet.
	if path[len(path)-1].Realized {
		t.Fatalf("last origin should not have a realized target")
	}
}
