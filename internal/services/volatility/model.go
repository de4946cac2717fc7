package volatility

import (
	"math"

	"QuantDesk/internal/domain/models"
	domsvc "QuantDesk/internal/domain/service"
	"QuantDesk/internal/services/features"
)

const (
	defaultWindow = 60
	defaultBandZ  = 1.96
)

// normalizeSpec applies defaults shared by every estimator.
func normalizeSpec(spec domsvc.VolSpec) domsvc.VolSpec {
	if spec.Window <= 0 {
		spec.Window = defaultWindow
	}
	if spec.Horizon < 1 {
		spec.Horizon = 1
	}
	if spec.Z <= 0 {
		spec.Z = defaultBandZ
	}
	if spec.Domain == "" {
		spec.Domain = models.DomainLog
	}
	return spec
}

// bandCenter picks the band center: the request override, else the last close.
func bandCenter(series models.PriceSeries, spec domsvc.VolSpec) float64 {
	if spec.Center > 0 {
		return spec.Center
	}
	for i := len(series.Points) - 1; i >= 0; i-- {
		if series.Points[i].Close > 0 {
			return series.Points[i].Close
		}
	}
	return 0
}

// buildEstimate scales a 1-day sigma to the horizon with the square-root
// rule and attaches the price band.
func buildEstimate(kind models.VolModelKind, series models.PriceSeries, spec domsvc.VolSpec, sigma1d float64) models.VolEstimate {
	return buildEstimateH(kind, series, spec, sigma1d, sigma1d*math.Sqrt(float64(spec.Horizon)))
}

// buildEstimateH attaches the price band around the center in the requested
// domain for a model that scaled sigma to the horizon itself. Lower is
// clamped at zero in the linear domain; the log domain keeps bounds
// positive by construction.
func buildEstimateH(kind models.VolModelKind, series models.PriceSeries, spec domsvc.VolSpec, sigma1d, sigmaH float64) models.VolEstimate {
	est := models.VolEstimate{
		Model:   kind,
		Domain:  spec.Domain,
		Horizon: spec.Horizon,
	}
	if !features.IsFinite(sigma1d) || sigma1d < 0 || !features.IsFinite(sigmaH) || sigmaH < 0 {
		est.Err = "sigma not finite"
		return est
	}
	center := bandCenter(series, spec)
	if center <= 0 {
		est.Err = "no valid close for band center"
		return est
	}

	est.Sigma1D = sigma1d
	est.SigmaH = sigmaH

	half := spec.Z * sigmaH
	switch spec.Domain {
	case models.DomainLinear:
		est.Lower = center * (1 - half)
		est.Upper = center * (1 + half)
		if est.Lower < 0 {
			est.Lower = 0
		}
	default:
		est.Lower = center * math.Exp(-half)
		est.Upper = center * math.Exp(half)
	}
	est.WidthPct = (est.Upper - est.Lower) / center
	est.Valid = true
	return est
}

// cleanReturns extracts log returns from the trailing window, skipping
// non-positive closes.
func cleanReturns(series models.PriceSeries, window int) []float64 {
	closes := series.Closes()
	if len(closes) > window+1 {
		closes = closes[len(closes)-window-1:]
	}
	out := make([]float64, 0, len(closes))
	for i := 1; i < len(closes); i++ {
		prev, cur := closes[i-1], closes[i]
		if prev <= 0 || cur <= 0 {
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// Bundle runs every registered model over the same series and spec,
// collecting per-model estimates. Individual model failures are recorded
// in their cell, never propagated; the grid always renders fully.
func Bundle(series models.PriceSeries, spec domsvc.VolSpec, mods []domsvc.VolatilityModel) models.VolBundle {
	spec = normalizeSpec(spec)
	b := models.VolBundle{
		Symbol:  series.Symbol,
		Window:  spec.Window,
		Horizon: spec.Horizon,
		Cells:   make([]models.VolEstimate, 0, len(mods)),
	}
	for _, m := range mods {
		est, err := m.Estimate(series, spec)
		if err != nil && est.Err == "" {
			est.Err = err.Error()
		}
		if est.Model == "" {
			est.Model = m.Kind()
		}
		if est.Domain == "" {
			est.Domain = spec.Domain
		}
		if est.Horizon == 0 {
			est.Horizon = spec.Horizon
		}
		b.Cells = append(b.Cells, est)
	}
	return b
}

// DefaultModels returns the full estimator set in grid order.
func DefaultModels() []domsvc.VolatilityModel {
	return []domsvc.VolatilityModel{
		NewGBM(),
		NewGARCH(models.VolGARCHNormal),
		NewGARCH(models.VolGARCHStudent),
		NewHARRV(),
		NewRange(models.VolRangePK),
		NewRange(models.VolRangeGK),
		NewRange(models.VolRangeRS),
		NewRange(models.VolRangeYZ),
	}
}
