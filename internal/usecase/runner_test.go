package usecase

import (
	"context"
	"math"
	"testing"
	"time"

	"QuantDesk/internal/domain/models"
	"QuantDesk/internal/services/forecast"
	"QuantDesk/internal/services/sim"
	"QuantDesk/internal/services/volatility"
	"QuantDesk/pkg/cache"
	"QuantDesk/pkg/util"
)

type nopMetrics struct{}

func (nopMetrics) RecordBarStored(string, string)  {}
func (nopMetrics) RecordError(string)              {}
func (nopMetrics) RecordLastClose(string, float64) {}
func (nopMetrics) RecordLatency(string, float64)   {}
func (nopMetrics) RecordRun(string)                {}
func (nopMetrics) RecordStopOut(string)            {}

type fakeHistory struct {
	series models.PriceSeries
	calls  int
}

func (f *fakeHistory) GetDaily(ctx context.Context, symbol string, from, to time.Time) (models.PriceSeries, error) {
	f.calls++
	return f.series, nil
}

func (f *fakeHistory) GetLatestN(ctx context.Context, symbol string, n int) (models.PriceSeries, error) {
	f.calls++
	if len(f.series.Points) > n {
		return models.PriceSeries{Symbol: f.series.Symbol, Points: f.series.Points[len(f.series.Points)-n:]}, nil
	}
	return f.series, nil
}

func trendingSeries(symbol string, n int) models.PriceSeries {
	pts := make([]models.PricePoint, 0, n)
	d := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		c := 100 * math.Exp(0.001*float64(i))
		pts = append(pts, models.PricePoint{Date: d, Open: c, High: c * 1.01, Low: c * 0.99, Close: c})
		d = util.NextBusinessDay(d)
	}
	return models.NewPriceSeries(symbol, pts)
}

func newTestRunner(history *fakeHistory, c cache.Service) (*ForecastRunner, *RunComparator) {
	simulator := sim.NewTrading212(nil)
	comparator := NewRunComparator(nil, time.Hour, nil)
	r := NewForecastRunner(
		history,
		forecast.NewEWMAForecaster(nil),
		forecast.NewConformalCalibrator(),
		volatility.DefaultModels(),
		simulator,
		sim.NewOptimizer(simulator, nil),
		comparator,
		c,
		nopMetrics{},
		nil,
		time.Minute,
	)
	return r, comparator
}

func TestForecastInsufficientData(t *testing.T) {
	history := &fakeHistory{series: trendingSeries("AAPL", 10)}
	r, _ := newTestRunner(history, nil)

	res, err := r.Forecast(context.Background(), models.ForecastRequest{
		Symbol: "AAPL", Lambda: 0.94, Horizon: 1, Coverage: 0.95, N: 756,
	})
	if err != nil {
		t.Fatalf("short history must be a soft failure, got %v", err)
	}
	if res.Status != models.ForecastInsufficientData {
		t.Fatalf("status %s, want insufficient_data", res.Status)
	}
	if len(res.Path) != 0 {
		t.Fatalf("insufficient-data result should carry no path")
	}
}

func TestForecastComputesAndCaches(t *testing.T) {
	history := &fakeHistory{series: trendingSeries("AAPL", 400)}
	r, _ := newTestRunner(history, cache.NewMemoryCache(0))

	req := models.ForecastRequest{Symbol: "AAPL", Lambda: 0.94, Horizon: 1, Coverage: 0.95, N: 756}
	first, err := r.Forecast(context.Background(), req)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if first.Status != models.ForecastOK || len(first.Path) == 0 {
		t.Fatalf("unexpected result: status=%s path=%d", first.Status, len(first.Path))
	}
	if first.Summary.NPoints != len(first.Path) {
		t.Fatalf("summary covers %d points for a %d-point path", first.Summary.NPoints, len(first.Path))
	}

	second, err := r.Forecast(context.Background(), req)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if history.calls != 1 {
		t.Fatalf("history hit %d times, cache should have served the second call", history.calls)
	}
	if len(second.Path) != len(first.Path) {
		t.Fatalf("cached path differs: %d vs %d", len(second.Path), len(first.Path))
	}
}

func TestVolatilityBundleAllCells(t *testing.T) {
	history := &fakeHistory{series: trendingSeries("AAPL", 500)}
	r, _ := newTestRunner(history, nil)

	b, err := r.Volatility(context.Background(), models.VolatilityRequest{
		Symbol: "AAPL", Window: 60, Horizon: 5, Dof: 6, N: 756,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(b.Cells) != len(volatility.DefaultModels()) {
		t.Fatalf("bundle has %d cells", len(b.Cells))
	}
	if b.Horizon != 5 {
		t.Fatalf("bundle horizon %d", b.Horizon)
	}
}

func TestVolatilityGbmLambdaReachesEstimator(t *testing.T) {
	// The equally weighted GBM cell demeans its returns; the EWMA variant
	// does not. On a constant-drift series the two must disagree, which
	// proves the request knob reaches the model.
	history := &fakeHistory{series: trendingSeries("AAPL", 500)}
	r, _ := newTestRunner(history, nil)

	equal, err := r.Volatility(context.Background(), models.VolatilityRequest{
		Symbol: "AAPL", Window: 60, Horizon: 1, Dof: 6, N: 756,
	})
	if err != nil {
		t.Fatalf("equal weight: %v", err)
	}
	weighted, err := r.Volatility(context.Background(), models.VolatilityRequest{
		Symbol: "AAPL", Window: 60, Horizon: 1, GbmLambda: 0.94, Dof: 6, N: 756,
	})
	if err != nil {
		t.Fatalf("ewma weight: %v", err)
	}

	g0, ok0 := equal.Cell(models.VolGBM)
	g1, ok1 := weighted.Cell(models.VolGBM)
	if !ok0 || !ok1 {
		t.Fatalf("bundle missing gbm cell")
	}
	if !g0.Valid || !g1.Valid {
		t.Fatalf("gbm cells invalid: %q / %q", g0.Err, g1.Err)
	}
	if math.Abs(g0.Sigma1D-g1.Sigma1D) < 1e-9 {
		t.Fatalf("gbmLambda had no effect: sigma %v in both modes", g0.Sigma1D)
	}
}

func TestSimulateRegistersRun(t *testing.T) {
	history := &fakeHistory{series: trendingSeries("AAPL", 400)}
	r, comparator := newTestRunner(history, nil)

	res, err := r.Simulate(context.Background(), models.SimulateRequest{
		Symbol: "AAPL", Lambda: 0.94, Horizon: 1, Coverage: 0.95,
		InitialEquity: 10000, Leverage: 5, PositionFrac: 0.25,
		ThresholdBps: 10, CostBps: 5, SwapBps: 1,
		SignalRule: "bps", ZMode: "auto", TrainFrac: 0.7, N: 756,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != models.ForecastOK {
		t.Fatalf("status %s", res.Status)
	}
	if len(res.Snapshots) == 0 {
		t.Fatalf("no snapshots")
	}
	if res.Summary.FinalEquity <= 0 {
		t.Fatalf("final equity %v", res.Summary.FinalEquity)
	}

	runs := comparator.List("AAPL")
	if len(runs) != 1 {
		t.Fatalf("comparator holds %d runs, want 1", len(runs))
	}
	if runs[0].Symbol != "AAPL" || runs[0].Days != len(res.Snapshots) {
		t.Fatalf("stored summary mismatch: %+v", runs[0])
	}
}

func TestSimulateZModeOptimize(t *testing.T) {
	history := &fakeHistory{series: trendingSeries("AAPL", 400)}
	r, _ := newTestRunner(history, nil)

	res, err := r.Simulate(context.Background(), models.SimulateRequest{
		Symbol: "AAPL", Lambda: 0.94, Horizon: 1, Coverage: 0.95,
		InitialEquity: 10000, Leverage: 5, PositionFrac: 0.25,
		CostBps: 5, SwapBps: 1,
		SignalRule: "z", ZMode: "optimize", TrainFrac: 0.7, N: 756,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Thresholds == nil {
		t.Fatalf("z-rule optimize run should report a recommendation")
	}
	if err := sim.ValidateThresholds(res.Thresholds.Thresholds); err != nil {
		t.Fatalf("recommended thresholds invalid: %v", err)
	}
}

func TestOptimizeShortHistoryFallsBack(t *testing.T) {
	history := &fakeHistory{series: trendingSeries("AAPL", 20)}
	r, _ := newTestRunner(history, nil)

	rec, err := r.Optimize(context.Background(), models.OptimizeRequest{
		Symbol: "AAPL", Lambda: 0.94, Horizon: 1, N: 756,
	})
	if err != nil {
		t.Fatalf("short history must be soft: %v", err)
	}
	if rec.Tier != models.TierAutoDefault {
		t.Fatalf("tier %s, want auto_default", rec.Tier)
	}
}

func TestBeginSupersedesGenerations(t *testing.T) {
	history := &fakeHistory{series: trendingSeries("AAPL", 100)}
	r, _ := newTestRunner(history, nil)

	g1 := r.Begin()
	g2 := r.Begin()
	if g2 <= g1 {
		t.Fatalf("generations must be monotonic: %d then %d", g1, g2)
	}
	if r.current(g1) {
		t.Fatalf("superseded generation still current")
	}
	if !r.current(g2) {
		t.Fatalf("latest generation not current")
	}
}
