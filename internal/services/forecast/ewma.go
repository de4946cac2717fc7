package forecast

import (
	"math"

	"QuantDesk/internal/domain/models"
	domsvc "QuantDesk/internal/domain/service"
	applogger "QuantDesk/pkg/logger"
	"QuantDesk/pkg/util"
)

const defaultWarmup = 30

// EWMAForecaster produces walk-forward h-day-ahead point forecasts from an
// exponentially weighted moving average of log prices. The walk updates
// state strictly in date order; the forecast at origin t sees nothing past
// bar t.
type EWMAForecaster struct {
	l *applogger.Logger
}

func NewEWMAForecaster(l *applogger.Logger) *EWMAForecaster {
	if l == nil {
		l = applogger.Nop()
	}
	return &EWMAForecaster{l: l}
}

var _ domsvc.Forecaster = (*EWMAForecaster)(nil)

// WalkForward emits one WalkPoint per valid origin. In unbiased mode the
// projection is the smoothed log level held flat; in biased mode an EWMA
// drift term, scaled by Shrink and TrendWeight, extrapolates the level
// over the horizon. Target dates advance by Horizon business days.
func (f *EWMAForecaster) WalkForward(series models.PriceSeries, p domsvc.ForecastParams) ([]models.WalkPoint, error) {
	if p.Lambda <= 0 || p.Lambda >= 1 {
		return nil, models.ErrInsufficientData
	}
	if p.Horizon < 1 {
		p.Horizon = 1
	}
	if p.Warmup <= 0 {
		p.Warmup = defaultWarmup
	}
	if p.Shrink == 0 {
		p.Shrink = 0.5
	}
	if p.TrendWeight == 0 {
		p.TrendWeight = 1
	}

	pts := series.Points
	if len(pts) < p.Warmup+2 {
		f.l.Debug("walk-forward skipped",
			applogger.String("symbol", series.Symbol),
			applogger.Int("bars", len(pts)),
			applogger.Int("warmup", p.Warmup),
		)
		return nil, models.ErrInsufficientData
	}

	lam := p.Lambda
	level := math.Log(pts[0].Close) // EWMA of log price
	drift := 0.0                    // EWMA of log returns
	variance := 0.0                 // EWMA of squared drift deviations

	path := make([]models.WalkPoint, 0, len(pts)-p.Warmup)
	for t := 1; t < len(pts); t++ {
		cur := pts[t]
		prev := pts[t-1]
		if cur.Close <= 0 || prev.Close <= 0 {
			continue
		}
		r := math.Log(cur.Close / prev.Close)
		drift = lam*drift + (1-lam)*r
		dev := r - drift
		variance = lam*variance + (1-lam)*dev*dev
		level = lam*level + (1-lam)*math.Log(cur.Close)

		if t < p.Warmup {
			continue
		}

		projected := level
		if p.Biased {
			projected += p.Shrink * p.TrendWeight * drift * float64(p.Horizon)
		}
		forecast := math.Exp(projected)
		if !isFinite(forecast) {
			continue
		}

		target := util.AddBusinessDays(cur.Date, p.Horizon)
		wp := models.WalkPoint{
			Origin:   cur.Date,
			Target:   target,
			SpotT:    cur.Close,
			Forecast: forecast,
			Sigma:    math.Sqrt(variance),
		}
		// Realized close is the first bar at or past the target date.
		for j := t + 1; j < len(pts); j++ {
			if !pts[j].Date.Before(target) {
				if pts[j].Close > 0 {
					wp.SpotTp1 = pts[j].Close
					wp.Realized = true
				}
				break
			}
		}
		path = append(path, wp)
	}

	if len(path) == 0 {
		return nil, models.ErrInsufficientData
	}
	return path, nil
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
