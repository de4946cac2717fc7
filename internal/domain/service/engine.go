package service

import (
	"QuantDesk/internal/domain/models"
)

// ForecastParams drives one walk-forward pass.
type ForecastParams struct {
	Lambda      float64 // EWMA decay in (0,1)
	Horizon     int     // business days ahead, >= 1
	Biased      bool    // drift-adjusted extrapolation when true
	Shrink      float64 // drift shrink factor k, default 0.5
	TrendWeight float64 // drift trend weight, default 1
	Warmup      int     // minimum bars before the first origin, default 30
}

// CalibrationParams drives the conformal calibrator.
type CalibrationParams struct {
	TargetCoverage float64 // in (0,1)
	Window         int     // trailing error buffer size, default 250
	MinSamples     int     // below this the bounds stay conservative, default 10
}

// VolSpec drives one volatility estimate.
type VolSpec struct {
	Window    int
	Horizon   int
	Z         float64 // band z multiple, default 1.96
	Dof       float64 // Student-t degrees of freedom
	GbmLambda float64 // EWMA decay for the GBM estimator, 0 = equal weight
	Domain    models.PriceDomain
	Center    float64 // band center price; last close when 0
}

// SimConfig drives one Trading212 CFD run.
type SimConfig struct {
	InitialEquity   float64
	Leverage        float64
	PositionFrac    float64
	ThresholdBps    float64 // bps no-trade band for the bps rule
	CostBps         float64 // entry spread cost
	SwapBps         float64 // per trading day while a position is open
	SignalRule      string  // "bps" | "z"
	Thresholds      models.ZThresholds
	MaintenanceFrac float64 // maintenance margin as fraction of initial margin, default 0.5
}

// Forecaster produces a walk-forward point-forecast path.
type Forecaster interface {
	WalkForward(series models.PriceSeries, p ForecastParams) ([]models.WalkPoint, error)
}

// Calibrator wraps a path with conformal prediction intervals.
type Calibrator interface {
	Calibrate(path []models.WalkPoint, p CalibrationParams) ([]models.WalkPoint, models.WalkSummary)
}

// VolatilityModel is one pluggable sigma estimator.
type VolatilityModel interface {
	Kind() models.VolModelKind
	Estimate(series models.PriceSeries, spec VolSpec) (models.VolEstimate, error)
}

// Simulator replays a calibrated path through the CFD account model.
type Simulator interface {
	Run(series models.PriceSeries, path []models.WalkPoint, cfg SimConfig) (models.SimResult, error)
}
