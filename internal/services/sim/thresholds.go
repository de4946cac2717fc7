package sim

import (
	"math"

	"QuantDesk/internal/domain/models"
	domsvc "QuantDesk/internal/domain/service"
)

// DefaultThresholds is the fallback band set applied when optimization is
// off or fails. Entry at one sigma, exit near flat, flip only past two.
func DefaultThresholds() models.ZThresholds {
	return models.ZThresholds{
		EnterLong:  1.0,
		ExitLong:   0.25,
		FlipLong:   2.0,
		EnterShort: -1.0,
		ExitShort:  -0.25,
		FlipShort:  -2.0,
	}
}

// ValidateThresholds enforces the band ordering. The long side must satisfy
// exitLong < enterLong < flipLong with all three positive; the short side
// is its negative mirror. Any violation returns ErrBadThresholdOrder and
// the set must not be applied.
func ValidateThresholds(t models.ZThresholds) error {
	if !(t.ExitLong > 0 && t.ExitLong < t.EnterLong && t.EnterLong < t.FlipLong) {
		return models.ErrBadThresholdOrder
	}
	if !(t.ExitShort < 0 && t.ExitShort > t.EnterShort && t.EnterShort > t.FlipShort) {
		return models.ErrBadThresholdOrder
	}
	return nil
}

// signal is the per-day decision input: the forecast edge at an origin,
// expressed both in basis points and in z-score units.
type signal struct {
	edgeBps float64
	z       float64
}

// signalAt derives the decision edge from one walk point. The bps edge is
// the forecast move off spot; the z edge normalizes it by the
// horizon-scaled sigma.
func signalAt(wp models.WalkPoint, horizon int) signal {
	var s signal
	if wp.SpotT <= 0 || wp.Forecast <= 0 {
		return s
	}
	edge := math.Log(wp.Forecast / wp.SpotT)
	s.edgeBps = edge * 1e4
	if wp.Sigma > 0 && horizon >= 1 {
		s.z = edge / (wp.Sigma * math.Sqrt(float64(horizon)))
	}
	return s
}

// desiredSide maps a signal to the next position side given the current
// one. Flips are checked before plain exits so a hard reversal does not
// degrade into a flat day.
func desiredSide(cur models.PositionSide, s signal, cfg domsvc.SimConfig) (models.PositionSide, models.ExitReason) {
	if cfg.SignalRule == "z" {
		return desiredSideZ(cur, s.z, cfg.Thresholds)
	}
	return desiredSideBps(cur, s.edgeBps, cfg.ThresholdBps)
}

// desiredSideBps is the symmetric no-trade-band rule: enter (or hold) long
// above +band, short below -band, flat inside.
func desiredSideBps(cur models.PositionSide, edgeBps, band float64) (models.PositionSide, models.ExitReason) {
	switch {
	case edgeBps > band:
		if cur == models.SideShort {
			return models.SideLong, models.ExitFlip
		}
		return models.SideLong, ""
	case edgeBps < -band:
		if cur == models.SideLong {
			return models.SideShort, models.ExitFlip
		}
		return models.SideShort, ""
	default:
		if cur != models.SideFlat {
			return models.SideFlat, models.ExitSignal
		}
		return models.SideFlat, ""
	}
}

// desiredSideZ is the hysteresis band rule: entries need a stronger edge
// than holds, and flips need a stronger opposite edge than exits.
func desiredSideZ(cur models.PositionSide, z float64, t models.ZThresholds) (models.PositionSide, models.ExitReason) {
	switch cur {
	case models.SideLong:
		if z < t.FlipShort {
			return models.SideShort, models.ExitFlip
		}
		if z < t.ExitLong {
			return models.SideFlat, models.ExitSignal
		}
		return models.SideLong, ""
	case models.SideShort:
		if z > t.FlipLong {
			return models.SideLong, models.ExitFlip
		}
		if z > t.ExitShort {
			return models.SideFlat, models.ExitSignal
		}
		return models.SideShort, ""
	default:
		if z > t.EnterLong {
			return models.SideLong, ""
		}
		if z < t.EnterShort {
			return models.SideShort, ""
		}
		return models.SideFlat, ""
	}
}
