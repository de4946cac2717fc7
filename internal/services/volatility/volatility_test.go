package volatility

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"QuantDesk/internal/domain/models"
	domsvc "QuantDesk/internal/domain/service"
	"QuantDesk/pkg/util"
)

// gbmBars simulates daily OHLC bars from a geometric Brownian motion with
// the given daily log volatility.
func gbmBars(n int, start, dailyVol float64, seed int64) models.PriceSeries {
	rng := rand.New(rand.NewSource(seed))
	pts := make([]models.PricePoint, 0, n)
	d := time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC)
	close := start
	for i := 0; i < n; i++ {
		open := close
		close = open * math.Exp(rng.NormFloat64()*dailyVol)
		hi := math.Max(open, close) * math.Exp(math.Abs(rng.NormFloat64())*dailyVol*0.5)
		lo := math.Min(open, close) * math.Exp(-math.Abs(rng.NormFloat64())*dailyVol*0.5)
		pts = append(pts, models.PricePoint{
			Date: d, Open: open, High: hi, Low: lo, Close: close,
		})
		d = util.NextBusinessDay(d)
	}
	return models.NewPriceSeries("SIM", pts)
}

func TestGBMRecoversSigma(t *testing.T) {
	series := gbmBars(1000, 100, 0.02, 1)
	est, err := NewGBM().Estimate(series, domsvc.VolSpec{Window: 900, Horizon: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !est.Valid {
		t.Fatalf("estimate invalid: %s", est.Err)
	}
	if est.Sigma1D < 0.015 || est.Sigma1D > 0.025 {
		t.Fatalf("sigma %v far from simulated 0.02", est.Sigma1D)
	}
}

func TestGBMEWMAWeighting(t *testing.T) {
	series := gbmBars(300, 100, 0.02, 2)
	flat, err := NewGBM().Estimate(series, domsvc.VolSpec{Window: 250, Horizon: 1})
	if err != nil {
		t.Fatalf("equal weight: %v", err)
	}
	ewma, err := NewGBM().Estimate(series, domsvc.VolSpec{Window: 250, Horizon: 1, GbmLambda: 0.94})
	if err != nil {
		t.Fatalf("ewma: %v", err)
	}
	if !flat.Valid || !ewma.Valid {
		t.Fatalf("estimates invalid: %s / %s", flat.Err, ewma.Err)
	}
	// Both estimators see the same process; they should agree loosely.
	ratio := ewma.Sigma1D / flat.Sigma1D
	if ratio < 0.5 || ratio > 2 {
		t.Fatalf("ewma/flat sigma ratio %v out of range", ratio)
	}
}

func TestRangeEstimatorsOnSimulatedBars(t *testing.T) {
	series := gbmBars(600, 100, 0.015, 3)
	for _, kind := range []models.VolModelKind{
		models.VolRangePK, models.VolRangeGK, models.VolRangeRS, models.VolRangeYZ,
	} {
		est, err := NewRange(kind).Estimate(series, domsvc.VolSpec{Window: 500, Horizon: 1})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", kind, err)
		}
		if !est.Valid {
			t.Fatalf("%s: invalid: %s", kind, est.Err)
		}
		if est.Sigma1D <= 0 || est.Sigma1D > 0.1 {
			t.Fatalf("%s: sigma %v implausible for a 1.5%% process", kind, est.Sigma1D)
		}
		if est.Lower >= est.Upper {
			t.Fatalf("%s: band not ordered: [%v, %v]", kind, est.Lower, est.Upper)
		}
	}
}

func TestYangZhangDriftWeight(t *testing.T) {
	// Golden value for the five-bar fixture under the canonical drift
	// weight k = 0.34 / (1.34 + (n+1)/(n-1)).
	quads := [][4]float64{
		{100, 103, 98, 102},
		{101, 106, 100, 105},
		{104, 107, 101, 102},
		{103, 104, 99, 100},
		{101, 105, 100, 104},
	}
	bars := make([]models.PricePoint, 0, len(quads))
	d := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	for _, q := range quads {
		bars = append(bars, models.PricePoint{Date: d, Open: q[0], High: q[1], Low: q[2], Close: q[3]})
		d = util.NextBusinessDay(d)
	}

	got := yangZhang(bars)
	const want = 0.0011775321114452482
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("yang-zhang variance %v, want %v", got, want)
	}
}

func TestRangeInsufficientData(t *testing.T) {
	series := gbmBars(1, 100, 0.02, 4)
	_, err := NewRange(models.VolRangePK).Estimate(series, domsvc.VolSpec{Window: 20, Horizon: 1})
	if err != models.ErrInsufficientData {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestGARCHFitsStationarySeries(t *testing.T) {
	// Simulate a GARCH(1,1) with known parameters and check the fit is
	// stationary with plausible persistence.
	rng := rand.New(rand.NewSource(5))
	const (
		omega = 2e-6
		alpha = 0.08
		beta  = 0.88
	)
	n := 1500
	pts := make([]models.PricePoint, 0, n)
	d := time.Date(2019, 1, 2, 0, 0, 0, 0, time.UTC)
	price := 100.0
	h := omega / (1 - alpha - beta)
	for i := 0; i < n; i++ {
		r := rng.NormFloat64() * math.Sqrt(h)
		h = omega + alpha*r*r + beta*h
		price *= math.Exp(r)
		pts = append(pts, models.PricePoint{Date: d, Open: price, High: price, Low: price, Close: price})
		d = util.NextBusinessDay(d)
	}
	series := models.NewPriceSeries("GARCH", pts)

	est, err := NewGARCH(models.VolGARCHNormal).Estimate(series, domsvc.VolSpec{Window: 500, Horizon: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !est.Valid || est.Garch == nil {
		t.Fatalf("invalid estimate: %s", est.Err)
	}
	if est.Garch.Persistence < 0.7 || est.Garch.Persistence >= 1 {
		t.Fatalf("persistence %v implausible for alpha+beta=0.96", est.Garch.Persistence)
	}
	if est.Garch.UncondVar <= 0 {
		t.Fatalf("unconditional variance %v", est.Garch.UncondVar)
	}
	// Multi-step scaling must stay within the sub/super square-root range.
	if est.SigmaH <= est.Sigma1D {
		t.Fatalf("5-day sigma %v not above 1-day sigma %v", est.SigmaH, est.Sigma1D)
	}
}

func TestGARCHStudentCarriesDof(t *testing.T) {
	series := gbmBars(800, 100, 0.02, 6)
	est, err := NewGARCH(models.VolGARCHStudent).Estimate(series, domsvc.VolSpec{Window: 400, Horizon: 1, Dof: 8})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if est.Garch == nil || est.Garch.Dof != 8 {
		t.Fatalf("student fit should carry dof, got %+v", est.Garch)
	}
}

func TestGARCHInsufficientData(t *testing.T) {
	series := gbmBars(20, 100, 0.02, 7)
	_, err := NewGARCH(models.VolGARCHNormal).Estimate(series, domsvc.VolSpec{Window: 60, Horizon: 1})
	if err != models.ErrInsufficientData {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestHARRVForecastsPositiveVariance(t *testing.T) {
	series := gbmBars(700, 100, 0.018, 8)
	est, err := NewHARRV().Estimate(series, domsvc.VolSpec{Window: 250, Horizon: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !est.Valid {
		t.Fatalf("invalid estimate: %s", est.Err)
	}
	if est.Sigma1D <= 0 || est.Sigma1D > 0.1 {
		t.Fatalf("sigma %v implausible", est.Sigma1D)
	}
	if est.SigmaH <= est.Sigma1D {
		t.Fatalf("horizon sigma %v should exceed 1-day sigma %v", est.SigmaH, est.Sigma1D)
	}
}

func TestBundleRendersEveryCell(t *testing.T) {
	series := gbmBars(400, 100, 0.02, 9)
	mods := DefaultModels()
	b := Bundle(series, domsvc.VolSpec{Window: 120, Horizon: 5}, mods)

	if len(b.Cells) != len(mods) {
		t.Fatalf("bundle has %d cells, want %d", len(b.Cells), len(mods))
	}
	for _, m := range mods {
		cell, ok := b.Cell(m.Kind())
		if !ok {
			t.Fatalf("missing cell for %s", m.Kind())
		}
		if cell.Horizon != 5 {
			t.Fatalf("%s: horizon %d, want 5", m.Kind(), cell.Horizon)
		}
	}
}

func TestBundleSurvivesShortSeries(t *testing.T) {
	// A 5-bar series cannot feed GARCH or HAR-RV; the bundle must still
	// render one cell per model with errors recorded inline.
	series := gbmBars(5, 100, 0.02, 10)
	b := Bundle(series, domsvc.VolSpec{Window: 60, Horizon: 1}, DefaultModels())
	if len(b.Cells) != len(DefaultModels()) {
		t.Fatalf("bundle dropped cells: %d", len(b.Cells))
	}
	garch, ok := b.Cell(models.VolGARCHNormal)
	if !ok || garch.Valid || garch.Err == "" {
		t.Fatalf("garch cell should be invalid with an error, got %+v", garch)
	}
}

func TestLinearDomainClampsLower(t *testing.T) {
	series := gbmBars(300, 1.0, 0.02, 11) // penny-priced symbol
	est, err := NewGBM().Estimate(series, domsvc.VolSpec{Window: 250, Horizon: 250, Z: 5, Domain: models.DomainLinear})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if est.Lower < 0 {
		t.Fatalf("linear-domain lower bound went negative: %v", est.Lower)
	}
}
