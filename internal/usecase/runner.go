package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"QuantDesk/internal/domain/models"
	drepo "QuantDesk/internal/domain/repository"
	domsvc "QuantDesk/internal/domain/service"
	"QuantDesk/internal/services/sim"
	"QuantDesk/internal/services/volatility"
	"QuantDesk/pkg/cache"
	applogger "QuantDesk/pkg/logger"
)

// ForecastRunner drives the computation chain: price history in, walk
// forward, calibrate, volatility bundle, simulate, summary out. Results
// are memoized in the layered cache keyed by (symbol, params).
//
// Every computation starts by taking a generation token. When a newer
// computation has started before an older one commits, the older result is
// discarded wholesale: the cache and the run comparator only ever see the
// latest generation.
type ForecastRunner struct {
	history    drepo.HistoryStore
	forecaster domsvc.Forecaster
	calibrator domsvc.Calibrator
	volModels  []domsvc.VolatilityModel
	simulator  domsvc.Simulator
	optimizer  *sim.Optimizer
	comparator *RunComparator
	cache      cache.Service
	metrics    drepo.Metrics
	l          *applogger.Logger

	gen      atomic.Uint64
	cacheTTL time.Duration
}

func NewForecastRunner(
	history drepo.HistoryStore,
	forecaster domsvc.Forecaster,
	calibrator domsvc.Calibrator,
	volModels []domsvc.VolatilityModel,
	simulator domsvc.Simulator,
	optimizer *sim.Optimizer,
	comparator *RunComparator,
	cacheSvc cache.Service,
	metrics drepo.Metrics,
	l *applogger.Logger,
	cacheTTL time.Duration,
) *ForecastRunner {
	if l == nil {
		l = applogger.Nop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &ForecastRunner{
		history:    history,
		forecaster: forecaster,
		calibrator: calibrator,
		volModels:  volModels,
		simulator:  simulator,
		optimizer:  optimizer,
		comparator: comparator,
		cache:      cacheSvc,
		metrics:    metrics,
		l:          l,
		cacheTTL:   cacheTTL,
	}
}

// Begin takes a new generation token, superseding every computation still
// in flight.
func (r *ForecastRunner) Begin() uint64 {
	return r.gen.Add(1)
}

func (r *ForecastRunner) current(g uint64) bool {
	return r.gen.Load() == g
}

// Forecast runs the walk-forward plus conformal calibration for one
// symbol. A series below the warm-up requirement is a soft failure: the
// result comes back with status insufficient_data and an empty path.
func (r *ForecastRunner) Forecast(ctx context.Context, req models.ForecastRequest) (models.ForecastResult, error) {
	g := r.Begin()
	key := cache.Key("forecast", req.Symbol, req.Lambda, req.Horizon, req.Coverage, req.Biased, req.N)
	if r.cache != nil {
		var cached models.ForecastResult
		if err := r.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	start := time.Now()
	series, err := r.history.GetLatestN(ctx, req.Symbol, req.N)
	if err != nil {
		r.metrics.RecordError("history")
		return models.ForecastResult{}, fmt.Errorf("load history: %w", err)
	}

	res := models.ForecastResult{
		Symbol:  req.Symbol,
		Lambda:  req.Lambda,
		Horizon: req.Horizon,
		Biased:  req.Biased,
		Status:  models.ForecastOK,
	}
	path, err := r.forecaster.WalkForward(series, domsvc.ForecastParams{
		Lambda:  req.Lambda,
		Horizon: req.Horizon,
		Biased:  req.Biased,
	})
	if err != nil {
		if errors.Is(err, models.ErrInsufficientData) {
			res.Status = models.ForecastInsufficientData
			return res, nil
		}
		return models.ForecastResult{}, fmt.Errorf("walk forward: %w", err)
	}
	res.Path, res.Summary = r.calibrator.Calibrate(path, domsvc.CalibrationParams{
		TargetCoverage: req.Coverage,
	})
	if res.Summary.Underflow {
		r.l.Warn("conformal buffer never matured, bounds stayed on the sigma fallback",
			applogger.String("symbol", req.Symbol),
			applogger.Error(models.ErrCalibrationUnderflow),
		)
	}

	r.metrics.RecordRun("forecast")
	r.metrics.RecordLatency("forecast", time.Since(start).Seconds())
	if r.cache != nil && r.current(g) {
		_ = r.cache.Set(ctx, key, res, r.cacheTTL)
	}
	return res, nil
}

// Volatility computes the full model bundle for one symbol.
func (r *ForecastRunner) Volatility(ctx context.Context, req models.VolatilityRequest) (models.VolBundle, error) {
	g := r.Begin()
	key := cache.Key("vol", req.Symbol, req.Window, req.Horizon, req.GbmLambda, req.Dof, req.N)
	if r.cache != nil {
		var cached models.VolBundle
		if err := r.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	start := time.Now()
	series, err := r.history.GetLatestN(ctx, req.Symbol, req.N)
	if err != nil {
		r.metrics.RecordError("history")
		return models.VolBundle{}, fmt.Errorf("load history: %w", err)
	}

	bundle := volatility.Bundle(series, domsvc.VolSpec{
		Window:    req.Window,
		Horizon:   req.Horizon,
		Dof:       req.Dof,
		GbmLambda: req.GbmLambda,
	}, r.volModels)

	r.metrics.RecordRun("volatility")
	r.metrics.RecordLatency("volatility", time.Since(start).Seconds())
	if r.cache != nil && r.current(g) {
		_ = r.cache.Set(ctx, key, bundle, r.cacheTTL)
	}
	return bundle, nil
}

// SimulateResult is the full output of one backtest request.
type SimulateResult struct {
	Status     models.ForecastStatus           `json:"status"`
	Snapshots  []models.AccountSnapshot        `json:"snapshots"`
	Trades     []models.Trade                  `json:"trades"`
	StopOuts   int                             `json:"stopOuts"`
	Summary    models.RunSummary               `json:"summary"`
	Walk       models.WalkSummary              `json:"walkSummary"`
	Thresholds *models.ThresholdRecommendation `json:"thresholds,omitempty"`
}

// Simulate runs the full chain for one configuration and registers the
// outcome with the comparator. The z signal rule resolves its thresholds
// per zMode: manual takes the defaults, optimize and auto run the search,
// auto accepting the default tier silently.
func (r *ForecastRunner) Simulate(ctx context.Context, req models.SimulateRequest) (SimulateResult, error) {
	g := r.Begin()
	start := time.Now()

	series, err := r.history.GetLatestN(ctx, req.Symbol, req.N)
	if err != nil {
		r.metrics.RecordError("history")
		return SimulateResult{}, fmt.Errorf("load history: %w", err)
	}

	path, err := r.forecaster.WalkForward(series, domsvc.ForecastParams{
		Lambda:  req.Lambda,
		Horizon: req.Horizon,
		Biased:  req.Biased,
	})
	if err != nil {
		if errors.Is(err, models.ErrInsufficientData) {
			return SimulateResult{Status: models.ForecastInsufficientData}, nil
		}
		return SimulateResult{}, fmt.Errorf("walk forward: %w", err)
	}
	calibrated, walkSummary := r.calibrator.Calibrate(path, domsvc.CalibrationParams{
		TargetCoverage: req.Coverage,
	})

	cfg := domsvc.SimConfig{
		InitialEquity: req.InitialEquity,
		Leverage:      req.Leverage,
		PositionFrac:  req.PositionFrac,
		ThresholdBps:  req.ThresholdBps,
		CostBps:       req.CostBps,
		SwapBps:       req.SwapBps,
		SignalRule:    req.SignalRule,
		Thresholds:    sim.DefaultThresholds(),
	}

	var rec *models.ThresholdRecommendation
	if req.SignalRule == "z" && req.ZMode != "manual" {
		found, optErr := r.optimizer.Optimize(series, calibrated, cfg, req.TrainFrac)
		if optErr != nil && !errors.Is(optErr, models.ErrInsufficientData) {
			return SimulateResult{}, fmt.Errorf("optimize thresholds: %w", optErr)
		}
		cfg.Thresholds = found.Thresholds
		rec = &found
	}

	simRes, err := r.simulator.Run(series, calibrated, cfg)
	if err != nil {
		return SimulateResult{}, fmt.Errorf("simulate: %w", err)
	}
	r.metrics.RecordRun("simulate")
	if simRes.StopOuts > 0 {
		r.metrics.RecordStopOut(req.Symbol)
	}

	id := cache.Key("run", req.Symbol, req.Lambda, req.Horizon, req.SignalRule)
	summary := sim.BuildRunSummary(id, req.Symbol, series, simRes, cfg, req.Lambda, req.TrainFrac)
	summary.Volatility = volatility.Bundle(series, domsvc.VolSpec{Horizon: req.Horizon}, r.volModels)
	if len(calibrated) > 0 {
		summary.HorizonFcst = calibrated[len(calibrated)-1].Forecast
	}

	if r.current(g) {
		if r.comparator != nil {
			r.comparator.Put(ctx, summary)
		}
	} else {
		r.l.Debug("discarding superseded simulation",
			applogger.String("symbol", req.Symbol),
			applogger.Int64("generation", int64(g)),
		)
	}
	r.metrics.RecordLatency("simulate", time.Since(start).Seconds())

	return SimulateResult{
		Status:     models.ForecastOK,
		Snapshots:  simRes.Snapshots,
		Trades:     simRes.Trades,
		StopOuts:   simRes.StopOuts,
		Summary:    summary,
		Walk:       walkSummary,
		Thresholds: rec,
	}, nil
}

// Optimize runs just the threshold search for one symbol.
func (r *ForecastRunner) Optimize(ctx context.Context, req models.OptimizeRequest) (models.ThresholdRecommendation, error) {
	series, err := r.history.GetLatestN(ctx, req.Symbol, req.N)
	if err != nil {
		r.metrics.RecordError("history")
		return models.ThresholdRecommendation{}, fmt.Errorf("load history: %w", err)
	}
	path, err := r.forecaster.WalkForward(series, domsvc.ForecastParams{
		Lambda:  req.Lambda,
		Horizon: req.Horizon,
	})
	if err != nil {
		if errors.Is(err, models.ErrInsufficientData) {
			return models.ThresholdRecommendation{
				Thresholds: sim.DefaultThresholds(),
				Tier:       models.TierAutoDefault,
			}, nil
		}
		return models.ThresholdRecommendation{}, fmt.Errorf("walk forward: %w", err)
	}
	calibrated, _ := r.calibrator.Calibrate(path, domsvc.CalibrationParams{})

	cfg := domsvc.SimConfig{
		InitialEquity: 10000,
		Leverage:      5,
		PositionFrac:  0.25,
		SignalRule:    "z",
		Thresholds:    sim.DefaultThresholds(),
	}
	rec, err := r.optimizer.Optimize(series, calibrated, cfg, 0.7)
	if err != nil && !errors.Is(err, models.ErrInsufficientData) {
		return models.ThresholdRecommendation{}, fmt.Errorf("optimize: %w", err)
	}
	r.metrics.RecordRun("optimize")
	return rec, nil
}
