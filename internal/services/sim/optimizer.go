package sim

import (
	"math"
	"sort"

	"QuantDesk/internal/domain/models"
	domsvc "QuantDesk/internal/domain/service"
	"QuantDesk/internal/services/features"
	applogger "QuantDesk/pkg/logger"
	"QuantDesk/pkg/util"
)

const (
	optValidationFolds = 3
	optMinTrades       = 3
	optMinFlatFrac     = 0.1
)

// Optimizer searches z-threshold band sets by walk-forward cross
// validation. Candidates come from quantiles of the realized signal
// distribution, so the grid adapts to how sharp the forecaster actually is
// on this symbol. Sets are scored by mean Calmar ratio over validation
// folds; a set that has gone quiet recently, or that is almost never flat,
// is demoted below ones with healthy turnover.
type Optimizer struct {
	simulator domsvc.Simulator
	l         *applogger.Logger
}

func NewOptimizer(simulator domsvc.Simulator, l *applogger.Logger) *Optimizer {
	if l == nil {
		l = applogger.Nop()
	}
	return &Optimizer{simulator: simulator, l: l}
}

// Optimize returns the best threshold set found, tagged with how it
// qualified. strict means ordering, recency, and the minimum flat fraction
// all held; best_effort means the set scored well but was not trading in
// the most recent fold or spent almost no time flat; auto_default means
// the search produced nothing usable and the defaults are returned. The
// returned set always passes ValidateThresholds.
func (o *Optimizer) Optimize(series models.PriceSeries, path []models.WalkPoint, cfg domsvc.SimConfig, trainFrac float64) (models.ThresholdRecommendation, error) {
	if trainFrac <= 0 || trainFrac >= 1 {
		trainFrac = 0.7
	}
	fallback := models.ThresholdRecommendation{
		Thresholds: DefaultThresholds(),
		Tier:       models.TierAutoDefault,
	}

	sorted := make([]models.WalkPoint, len(path))
	copy(sorted, path)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Origin.Before(sorted[j].Origin) })

	split := int(float64(len(sorted)) * trainFrac)
	if split < 30 || len(sorted)-split < 2*optValidationFolds {
		return fallback, models.ErrInsufficientData
	}
	train, valid := sorted[:split], sorted[split:]

	candidates := o.candidates(train)
	if len(candidates) == 0 {
		return fallback, nil
	}

	folds := splitFolds(valid, optValidationFolds)
	type scored struct {
		t      models.ZThresholds
		score  float64
		strict bool
	}
	var best *scored
	var bestStale *scored
	evaluated := 0
	for _, cand := range candidates {
		if ValidateThresholds(cand) != nil {
			continue
		}
		evaluated++
		runCfg := cfg
		runCfg.SignalRule = "z"
		runCfg.Thresholds = cand

		var calmarSum float64
		trades := 0
		lastFoldTrades := 0
		flatDays, totalDays := 0, 0
		usable := true
		for fi, fold := range folds {
			res, err := o.simulator.Run(series, fold, runCfg)
			if err != nil {
				usable = false
				break
			}
			calmarSum += calmar(res, runCfg.InitialEquity)
			trades += len(res.Trades)
			if fi == len(folds)-1 {
				lastFoldTrades = len(res.Trades)
			}
			for _, sn := range res.Snapshots {
				totalDays++
				if sn.Side == models.SideFlat {
					flatDays++
				}
			}
		}
		if !usable || trades < optMinTrades {
			continue
		}
		// A set that is almost always in the market has degenerated into
		// buy-and-hold; it may score, but never as the strict pick.
		flatFrac := 0.0
		if totalDays > 0 {
			flatFrac = float64(flatDays) / float64(totalDays)
		}
		s := scored{
			t:      cand,
			score:  calmarSum / float64(len(folds)),
			strict: lastFoldTrades > 0 && flatFrac >= optMinFlatFrac,
		}
		if s.strict {
			if best == nil || s.score > best.score {
				v := s
				best = &v
			}
		} else {
			if bestStale == nil || s.score > bestStale.score {
				v := s
				bestStale = &v
			}
		}
	}

	rec := fallback
	rec.Evaluated = evaluated
	switch {
	case best != nil:
		rec.Thresholds = best.t
		rec.Tier = models.TierStrict
		rec.Score = best.score
	case bestStale != nil:
		rec.Thresholds = bestStale.t
		rec.Tier = models.TierBestEffort
		rec.Score = bestStale.score
	}
	o.l.Info("threshold search finished",
		applogger.String("symbol", series.Symbol),
		applogger.Int("evaluated", evaluated),
		applogger.String("tier", string(rec.Tier)),
		applogger.Float64("score", rec.Score),
	)
	return rec, nil
}

// candidates builds symmetric band sets from quantiles of the absolute
// training-signal distribution.
func (o *Optimizer) candidates(train []models.WalkPoint) []models.ZThresholds {
	var zs []float64
	for _, wp := range train {
		if wp.Sigma <= 0 || wp.SpotT <= 0 || wp.Forecast <= 0 {
			continue
		}
		h := util.BusinessDaysBetween(wp.Origin, wp.Target)
		if h < 1 {
			h = 1
		}
		z := math.Abs(math.Log(wp.Forecast/wp.SpotT)) / (wp.Sigma * math.Sqrt(float64(h)))
		if features.IsFinite(z) {
			zs = append(zs, z)
		}
	}
	if len(zs) < 20 {
		return nil
	}

	var out []models.ZThresholds
	for _, q := range []float64{0.5, 0.6, 0.7, 0.8, 0.9} {
		enter := features.Quantile(zs, q)
		if enter <= 0 {
			continue
		}
		for _, exitFrac := range []float64{0.25, 0.5} {
			for _, flipMul := range []float64{1.5, 2.0} {
				out = append(out, models.ZThresholds{
					EnterLong:  enter,
					ExitLong:   enter * exitFrac,
					FlipLong:   enter * flipMul,
					EnterShort: -enter,
					ExitShort:  -enter * exitFrac,
					FlipShort:  -enter * flipMul,
				})
			}
		}
	}
	return out
}

// splitFolds partitions points into n contiguous chronological folds.
func splitFolds(points []models.WalkPoint, n int) [][]models.WalkPoint {
	if n < 1 {
		n = 1
	}
	size := len(points) / n
	if size == 0 {
		return [][]models.WalkPoint{points}
	}
	folds := make([][]models.WalkPoint, 0, n)
	for i := 0; i < n; i++ {
		lo := i * size
		hi := lo + size
		if i == n-1 {
			hi = len(points)
		}
		folds = append(folds, points[lo:hi])
	}
	return folds
}

// calmar is the annualized return over max drawdown; capped so a
// near-zero-drawdown fold cannot dominate the average.
func calmar(res models.SimResult, initialEquity float64) float64 {
	if len(res.Snapshots) == 0 || initialEquity <= 0 {
		return 0
	}
	final := res.Snapshots[len(res.Snapshots)-1].Equity
	days := len(res.Snapshots)
	ret := final/initialEquity - 1
	annual := ret * features.TradingDaysPerYear / float64(days)
	dd := maxDrawdownPct(res.Snapshots) / 100
	if dd < 0.01 {
		dd = 0.01
	}
	c := annual / dd
	if c > 100 {
		c = 100
	}
	if c < -100 {
		c = -100
	}
	return c
}
