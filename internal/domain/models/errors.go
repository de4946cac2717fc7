package models

import "errors"

// Computation-layer error kinds. These are recovered locally with safe
// defaults and a status flag; they do not cross the HTTP boundary as 500s.
var (
	// ErrInsufficientData: series shorter than the warm-up requirement.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrNonStationary: GARCH fit reached alpha+beta >= 1. Reported
	// distinctly, never clamped silently.
	ErrNonStationary = errors.New("non-stationary garch fit")

	// ErrBadThresholdOrder: enter/exit/flip bands violate the required
	// ordering. Hard validation failure; the set must not be applied.
	ErrBadThresholdOrder = errors.New("invalid threshold ordering")

	// ErrCalibrationUnderflow: conformal error buffer too small for a
	// stable quantile.
	ErrCalibrationUnderflow = errors.New("calibration buffer underflow")
)
