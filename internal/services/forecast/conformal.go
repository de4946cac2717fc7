package forecast

import (
	"math"
	"sort"

	"QuantDesk/internal/domain/models"
	domsvc "QuantDesk/internal/domain/service"
	"QuantDesk/internal/services/features"
	"QuantDesk/pkg/util"
)

const (
	defaultCalibWindow = 250
	defaultMinSamples  = 10
	fallbackBandZ      = 3.0
)

// ConformalCalibrator attaches split-conformal prediction intervals to a
// walk-forward path. The nonconformity score is the absolute log error of
// the point forecast; the interval half-width at each origin is the
// target-coverage quantile of the trailing score buffer. Only errors whose
// target date has already passed the current origin enter the buffer, so
// the bounds at origin t use no information from after t.
type ConformalCalibrator struct{}

func NewConformalCalibrator() *ConformalCalibrator {
	return &ConformalCalibrator{}
}

var _ domsvc.Calibrator = (*ConformalCalibrator)(nil)

// Calibrate returns the path with Lower/Upper populated and an aggregate
// quality summary. While the buffer holds fewer than MinSamples scores the
// bounds fall back to a wide sigma band and Bounded stays false; bounds are
// always finite and ordered, never NaN.
func (c *ConformalCalibrator) Calibrate(path []models.WalkPoint, p domsvc.CalibrationParams) ([]models.WalkPoint, models.WalkSummary) {
	if p.TargetCoverage <= 0 || p.TargetCoverage >= 1 {
		p.TargetCoverage = 0.9
	}
	if p.Window <= 0 {
		p.Window = defaultCalibWindow
	}
	if p.MinSamples <= 0 {
		p.MinSamples = defaultMinSamples
	}

	out := make([]models.WalkPoint, len(path))
	copy(out, path)
	sort.Slice(out, func(i, j int) bool { return out[i].Origin.Before(out[j].Origin) })

	buf := make([]float64, 0, p.Window)
	matured := 0 // index of the next point whose error may enter the buffer
	for i := range out {
		// Absorb every point already realized by this origin.
		for matured < i {
			m := out[matured]
			if m.Target.After(out[i].Origin) {
				break
			}
			if m.Realized && m.Forecast > 0 && m.SpotTp1 > 0 {
				score := math.Abs(math.Log(m.SpotTp1 / m.Forecast))
				if features.IsFinite(score) {
					buf = append(buf, score)
					if len(buf) > p.Window {
						buf = buf[1:]
					}
				}
			}
			matured++
		}

		wp := &out[i]
		if len(buf) >= p.MinSamples {
			half := features.Quantile(buf, p.TargetCoverage)
			wp.Lower = wp.Forecast * math.Exp(-half)
			wp.Upper = wp.Forecast * math.Exp(half)
			wp.Bounded = true
		} else {
			h := util.BusinessDaysBetween(wp.Origin, wp.Target)
			if h < 1 {
				h = 1
			}
			half := fallbackBandZ * wp.Sigma * math.Sqrt(float64(h))
			wp.Lower = wp.Forecast * math.Exp(-half)
			wp.Upper = wp.Forecast * math.Exp(half)
			wp.Bounded = false
		}
		if wp.Lower > wp.Upper {
			wp.Lower, wp.Upper = wp.Upper, wp.Lower
		}
	}

	return out, summarize(out, p.TargetCoverage)
}

// summarize computes coverage, interval score, width, z diagnostics and
// direction hit rate over the realized portion of a calibrated path.
func summarize(path []models.WalkPoint, targetCoverage float64) models.WalkSummary {
	s := models.WalkSummary{
		NPoints:        len(path),
		TargetCoverage: targetCoverage,
	}
	alpha := 1 - targetCoverage
	if alpha <= 0 {
		alpha = 0.1
	}

	var (
		covered, bounded   int
		scoreSum, widthSum float64
		zs                 []float64
		dirHits, dirTotal  int
	)
	for _, wp := range path {
		if wp.Bounded && wp.SpotT > 0 {
			widthSum += (wp.Upper - wp.Lower) / wp.SpotT
			bounded++
		}
		if !wp.Realized || wp.SpotTp1 <= 0 {
			continue
		}

		if wp.Bounded {
			y := wp.SpotTp1
			score := wp.Upper - wp.Lower
			switch {
			case y < wp.Lower:
				score += 2 / alpha * (wp.Lower - y)
			case y > wp.Upper:
				score += 2 / alpha * (y - wp.Upper)
			default:
				covered++
			}
			scoreSum += score
		}

		if wp.Sigma > 0 && wp.Forecast > 0 {
			h := util.BusinessDaysBetween(wp.Origin, wp.Target)
			if h < 1 {
				h = 1
			}
			z := math.Log(wp.SpotTp1/wp.Forecast) / (wp.Sigma * math.Sqrt(float64(h)))
			if features.IsFinite(z) {
				zs = append(zs, z)
			}
		}

		fMove := wp.Forecast - wp.SpotT
		rMove := wp.SpotTp1 - wp.SpotT
		if fMove != 0 && rMove != 0 {
			dirTotal++
			if (fMove > 0) == (rMove > 0) {
				dirHits++
			}
		}
	}

	var realizedBounded int
	for _, wp := range path {
		if wp.Realized && wp.Bounded && wp.SpotTp1 > 0 {
			realizedBounded++
		}
	}
	if realizedBounded > 0 {
		s.Coverage = float64(covered) / float64(realizedBounded)
		s.IntervalScore = scoreSum / float64(realizedBounded)
	}
	if bounded > 0 {
		s.AvgWidth = widthSum / float64(bounded)
	}
	if len(zs) > 0 {
		s.ZMean, s.ZStd = features.MeanStd(zs)
	}
	if dirTotal > 0 {
		s.DirectionHitRate = float64(dirHits) / float64(dirTotal)
	}
	if len(path) > 0 && bounded == 0 {
		s.Underflow = true
	}
	return s
}
