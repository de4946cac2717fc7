package sim

import (
	"math"
	"testing"
	"time"

	"QuantDesk/internal/domain/models"
	domsvc "QuantDesk/internal/domain/service"
	"QuantDesk/pkg/util"
)

func TestValidateThresholds(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*models.ZThresholds)
		wantErr bool
	}{
		{"defaults valid", func(*models.ZThresholds) {}, false},
		{"exit above enter", func(z *models.ZThresholds) { z.ExitLong = z.EnterLong + 0.1 }, true},
		{"enter above flip", func(z *models.ZThresholds) { z.EnterLong = z.FlipLong + 0.1 }, true},
		{"negative exit long", func(z *models.ZThresholds) { z.ExitLong = -0.1 }, true},
		{"short side not mirrored", func(z *models.ZThresholds) { z.EnterShort = 0.5 }, true},
		{"short exit below enter", func(z *models.ZThresholds) { z.ExitShort = z.EnterShort - 0.1 }, true},
	}
	for _, tc := range tests {
		z := DefaultThresholds()
		tc.mutate(&z)
		err := ValidateThresholds(z)
		if tc.wantErr && err != models.ErrBadThresholdOrder {
			t.Fatalf("%s: expected ErrBadThresholdOrder, got %v", tc.name, err)
		}
		if !tc.wantErr && err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
	}
}

// pathFromSignals builds a daily walk path with the requested per-day
// forecast edge (in log units) over a flat sigma.
func pathFromSignals(prices []float64, edges []float64, sigma float64) []models.WalkPoint {
	d := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	for !util.IsBusinessDay(d) {
		d = util.NextBusinessDay(d)
	}
	path := make([]models.WalkPoint, 0, len(prices))
	for i, p := range prices {
		edge := 0.0
		if i < len(edges) {
			edge = edges[i]
		}
		path = append(path, models.WalkPoint{
			Origin:   d,
			Target:   util.NextBusinessDay(d),
			SpotT:    p,
			Forecast: p * math.Exp(edge),
			Sigma:    sigma,
		})
		d = util.NextBusinessDay(d)
	}
	return path
}

func flatEdges(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func baseConfig() domsvc.SimConfig {
	return domsvc.SimConfig{
		InitialEquity: 10000,
		Leverage:      5,
		PositionFrac:  0.25,
		ThresholdBps:  10,
		CostBps:       5,
		SwapBps:       1,
		SignalRule:    "bps",
	}
}

func TestRunRejectsBadThresholds(t *testing.T) {
	sim := NewTrading212(nil)
	cfg := baseConfig()
	cfg.SignalRule = "z"
	cfg.Thresholds = DefaultThresholds()
	cfg.Thresholds.ExitLong = 5 // above enter

	path := pathFromSignals([]float64{100, 101, 102}, flatEdges(3, 0.01), 0.01)
	_, err := sim.Run(models.PriceSeries{Symbol: "X"}, path, cfg)
	if err != models.ErrBadThresholdOrder {
		t.Fatalf("expected ErrBadThresholdOrder, got %v", err)
	}
}

func TestRunEquityConservation(t *testing.T) {
	// Final realized equity must equal initial equity plus the sum of net
	// trade PnL, to the cent, across a run with entries, exits, and flips.
	sim := NewTrading212(nil)
	cfg := baseConfig()

	prices := []float64{100, 102, 104, 103, 101, 99, 98, 100, 103, 105, 104, 102}
	edges := []float64{0.01, 0.01, 0, 0, -0.01, -0.01, -0.01, 0.01, 0.01, 0, 0, 0}
	path := pathFromSignals(prices, edges, 0.01)

	res, err := sim.Run(models.PriceSeries{Symbol: "X"}, path, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Trades) == 0 {
		t.Fatalf("scenario should produce trades")
	}

	var netSum float64
	for _, tr := range res.Trades {
		netSum += tr.NetPnl
		if math.Abs(tr.NetPnl-(tr.GrossPnl-tr.SwapFees-tr.SpreadCost)) > 1e-9 {
			t.Fatalf("trade net %v != gross %v - swap %v - spread %v",
				tr.NetPnl, tr.GrossPnl, tr.SwapFees, tr.SpreadCost)
		}
	}
	final := res.Snapshots[len(res.Snapshots)-1]
	if final.Side != models.SideFlat {
		t.Fatalf("run should end flat, got %s", final.Side)
	}
	if math.Abs(final.Equity-(cfg.InitialEquity+netSum)) > 1e-6 {
		t.Fatalf("equity not conserved: final %v, initial+net %v", final.Equity, cfg.InitialEquity+netSum)
	}
}

func TestRunFlipClosesAndReverses(t *testing.T) {
	sim := NewTrading212(nil)
	cfg := baseConfig()

	prices := []float64{100, 101, 102, 101, 100, 99, 98}
	edges := []float64{0.01, 0.01, -0.01, -0.01, -0.01, -0.01, 0}
	path := pathFromSignals(prices, edges, 0.01)

	res, err := sim.Run(models.PriceSeries{Symbol: "X"}, path, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var sawFlip bool
	for _, tr := range res.Trades {
		if tr.ExitReason == models.ExitFlip {
			sawFlip = true
			if tr.Side != models.SideLong {
				t.Fatalf("flip should close the long, closed %s", tr.Side)
			}
		}
	}
	if !sawFlip {
		t.Fatalf("scenario should flip long->short, trades: %+v", res.Trades)
	}
	// After the flip a short must be open.
	var sawShort bool
	for _, sn := range res.Snapshots {
		if sn.Side == models.SideShort {
			sawShort = true
		}
	}
	if !sawShort {
		t.Fatalf("no short exposure after flip")
	}
}

func TestRunMarginCall(t *testing.T) {
	// Full-size position at max leverage into a crash: the maintenance
	// check must fire, count a stop-out, and tag the trade as margin_call
	// rather than a signal exit.
	sim := NewTrading212(nil)
	cfg := baseConfig()
	cfg.Leverage = 30
	cfg.PositionFrac = 1.0

	prices := []float64{100, 100, 97, 93, 88, 80, 75, 75}
	edges := flatEdges(len(prices), 0.01) // signal stays long throughout
	path := pathFromSignals(prices, edges, 0.01)

	res, err := sim.Run(models.PriceSeries{Symbol: "X"}, path, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.StopOuts == 0 {
		t.Fatalf("crash at 30x should stop out, trades: %+v", res.Trades)
	}
	var sawCall bool
	for _, tr := range res.Trades {
		if tr.ExitReason == models.ExitMarginCall {
			sawCall = true
		}
	}
	if !sawCall {
		t.Fatalf("no margin_call trade recorded")
	}
	for _, sn := range res.Snapshots {
		if sn.Equity < 0 {
			t.Fatalf("equity went negative: %v on %s", sn.Equity, sn.Date)
		}
	}
}

func TestRunEndOfDataForceClose(t *testing.T) {
	sim := NewTrading212(nil)
	cfg := baseConfig()

	prices := []float64{100, 101, 102, 103}
	edges := flatEdges(4, 0.01)
	path := pathFromSignals(prices, edges, 0.01)

	res, err := sim.Run(models.PriceSeries{Symbol: "X"}, path, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Trades) == 0 {
		t.Fatalf("no trades")
	}
	last := res.Trades[len(res.Trades)-1]
	if last.ExitReason != models.ExitEndOfData {
		t.Fatalf("open position at end of data should force-close, got %s", last.ExitReason)
	}
	if res.Snapshots[len(res.Snapshots)-1].Side != models.SideFlat {
		t.Fatalf("account not flat at end of data")
	}
}

func TestRunZRuleHysteresis(t *testing.T) {
	// An edge between exitLong and enterLong must hold an open long but
	// never open a new one.
	sim := NewTrading212(nil)
	cfg := baseConfig()
	cfg.SignalRule = "z"
	cfg.Thresholds = models.ZThresholds{
		EnterLong: 1.0, ExitLong: 0.3, FlipLong: 2.0,
		EnterShort: -1.0, ExitShort: -0.3, FlipShort: -2.0,
	}

	sigma := 0.01
	// day 0: strong edge opens the long; days 1-3: weak edge holds it.
	edges := []float64{0.015, 0.005, 0.005, 0.005, 0.005, 0.005}
	prices := []float64{100, 100.5, 101, 101.2, 101.4, 101.5}
	path := pathFromSignals(prices, edges, sigma)

	res, err := sim.Run(models.PriceSeries{Symbol: "X"}, path, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	longDays := 0
	for _, sn := range res.Snapshots {
		if sn.Side == models.SideLong {
			longDays++
		}
	}
	if longDays < 4 {
		t.Fatalf("weak edge should hold the long, only %d long days", longDays)
	}

	// The same weak edge from flat must not trigger an entry.
	weakOnly := pathFromSignals(prices, flatEdges(len(prices), 0.005), sigma)
	res2, err := sim.Run(models.PriceSeries{Symbol: "X"}, weakOnly, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res2.Trades) != 0 {
		t.Fatalf("sub-entry edge opened a position: %+v", res2.Trades)
	}
}

func TestBuildRunSummary(t *testing.T) {
	sim := NewTrading212(nil)
	cfg := baseConfig()
	prices := []float64{100, 102, 104, 103, 105, 106, 104, 107}
	path := pathFromSignals(prices, flatEdges(len(prices), 0.01), 0.01)

	res, err := sim.Run(models.PriceSeries{Symbol: "AAPL"}, path, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := BuildRunSummary("run-1", "baseline", models.PriceSeries{Symbol: "AAPL"}, res, cfg, 0.94, 0.7)
	if s.ID != "run-1" || s.Symbol != "AAPL" {
		t.Fatalf("identity fields wrong: %+v", s)
	}
	if s.Days != len(res.Snapshots) || s.TradeCount != len(res.Trades) {
		t.Fatalf("counts wrong: %+v", s)
	}
	if s.FinalEquity <= 0 {
		t.Fatalf("final equity %v", s.FinalEquity)
	}
	wantRet := (s.FinalEquity/cfg.InitialEquity - 1) * 100
	if math.Abs(s.ReturnPct-wantRet) > 1e-9 {
		t.Fatalf("return %v, want %v", s.ReturnPct, wantRet)
	}
	if s.MaxDrawdown < 0 || s.MaxDrawdown > 100 {
		t.Fatalf("drawdown %v out of range", s.MaxDrawdown)
	}
}

func TestOptimizerFallsBackOnShortPath(t *testing.T) {
	o := NewOptimizer(NewTrading212(nil), nil)
	path := pathFromSignals([]float64{100, 101, 102}, flatEdges(3, 0.01), 0.01)

	rec, err := o.Optimize(models.PriceSeries{Symbol: "X"}, path, baseConfig(), 0.7)
	if err != models.ErrInsufficientData {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
	if rec.Tier != models.TierAutoDefault {
		t.Fatalf("short path should fall back to defaults, got %s", rec.Tier)
	}
	if err := ValidateThresholds(rec.Thresholds); err != nil {
		t.Fatalf("fallback thresholds invalid: %v", err)
	}
}

func TestOptimizerDemotesAlwaysInMarketSets(t *testing.T) {
	o := NewOptimizer(NewTrading212(nil), nil)

	// Training edges ramp across the candidate quantile range; validation
	// then carries a permanently strong edge, so every candidate enters on
	// the first day of each fold and never goes flat again.
	n := 400
	split := 280
	prices := make([]float64, n)
	edges := make([]float64, n)
	for i := 0; i < n; i++ {
		prices[i] = 100 * math.Exp(0.0005*float64(i))
		if i < split {
			edges[i] = 0.01 * (1.0 + float64(i)/float64(split))
		} else {
			edges[i] = 0.025
		}
	}
	path := pathFromSignals(prices, edges, 0.01)

	rec, err := o.Optimize(models.PriceSeries{Symbol: "X"}, path, baseConfig(), 0.7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Evaluated == 0 {
		t.Fatalf("no candidates evaluated")
	}
	if rec.Tier != models.TierBestEffort {
		t.Fatalf("a set holding a position nearly every day qualified as %s", rec.Tier)
	}
	if err := ValidateThresholds(rec.Thresholds); err != nil {
		t.Fatalf("recommended thresholds invalid: %v", err)
	}
}

func TestOptimizerProducesOrderedThresholds(t *testing.T) {
	o := NewOptimizer(NewTrading212(nil), nil)

	// A long oscillating path with alternating strong edges so candidate
	// sets actually trade in every fold.
	n := 400
	prices := make([]float64, n)
	edges := make([]float64, n)
	for i := 0; i < n; i++ {
		prices[i] = 100 + 5*math.Sin(float64(i)/10)
		edges[i] = 0.02 * math.Cos(float64(i)/10)
	}
	path := pathFromSignals(prices, edges, 0.01)

	rec, err := o.Optimize(models.PriceSeries{Symbol: "X"}, path, baseConfig(), 0.7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateThresholds(rec.Thresholds); err != nil {
		t.Fatalf("recommended thresholds invalid: %v (%+v)", err, rec.Thresholds)
	}
	if rec.Tier == models.TierAutoDefault && rec.Evaluated > 0 && rec.Score != 0 {
		t.Fatalf("inconsistent recommendation: %+v", rec)
	}
}
