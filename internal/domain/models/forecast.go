package models

import "time"

// PriceDomain says whether a value (and its sigma) lives in log-price or
// linear-price space. It is threaded explicitly through every producer and
// consumer; nothing guesses the domain from magnitudes.
type PriceDomain string

const (
	DomainLinear PriceDomain = "linear"
	DomainLog    PriceDomain = "log"
)

// WalkPoint is one origin of the walk-forward path: the forecast made at
// Origin for Target (Origin advanced by the horizon in business days),
// together with the realized outcome once known.
type WalkPoint struct {
	Origin   time.Time `json:"origin"`
	Target   time.Time `json:"target"`
	SpotT    float64   `json:"spotT"`    // close at origin
	SpotTp1  float64   `json:"spotTp1"`  // realized close at target, 0 if not yet realized
	Forecast float64   `json:"forecast"` // point forecast for target
	Lower    float64   `json:"lower"`    // calibrated interval lower bound
	Upper    float64   `json:"upper"`    // calibrated interval upper bound
	Sigma    float64   `json:"sigma"`    // volatility estimate at origin (per-day, log domain)
	Realized bool      `json:"realized"`
	Bounded  bool      `json:"bounded"` // interval bounds populated by the calibrator
}

// WalkSummary aggregates calibration quality over a full path.
// Recomputed whenever the path changes; read-only for consumers.
type WalkSummary struct {
	NPoints          int     `json:"nPoints"`
	TargetCoverage   float64 `json:"targetCoverage"`
	Coverage         float64 `json:"coverage"`
	IntervalScore    float64 `json:"intervalScore"`
	AvgWidth         float64 `json:"avgWidth"`
	ZMean            float64 `json:"zMean"`
	ZStd             float64 `json:"zStd"`
	DirectionHitRate float64 `json:"directionHitRate"`
	Underflow        bool    `json:"underflow"` // no origin ever had enough matured errors
}

// ForecastStatus tells the rendering layer why a result may be empty.
type ForecastStatus string

const (
	ForecastOK               ForecastStatus = "ok"
	ForecastInsufficientData ForecastStatus = "insufficient_data"
)

// ForecastResult is the full output of one walk-forward pass.
type ForecastResult struct {
	Symbol  string         `json:"symbol"`
	Lambda  float64        `json:"lambda"`
	Horizon int            `json:"horizon"`
	Biased  bool           `json:"biased"`
	Status  ForecastStatus `json:"status"`
	Path    []WalkPoint    `json:"path"`
	Summary WalkSummary    `json:"summary"`
}
