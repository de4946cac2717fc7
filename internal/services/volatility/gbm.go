package volatility

import (
	"math"

	"QuantDesk/internal/domain/models"
	domsvc "QuantDesk/internal/domain/service"
	"QuantDesk/internal/services/features"
)

// GBM estimates constant diffusion volatility from trailing log returns.
// With GbmLambda set it switches to the RiskMetrics exponentially weighted
// variance; otherwise the window is equally weighted.
type GBM struct{}

func NewGBM() *GBM { return &GBM{} }

var _ domsvc.VolatilityModel = (*GBM)(nil)

func (g *GBM) Kind() models.VolModelKind { return models.VolGBM }

func (g *GBM) Estimate(series models.PriceSeries, spec domsvc.VolSpec) (models.VolEstimate, error) {
	spec = normalizeSpec(spec)
	rets := cleanReturns(series, spec.Window)
	if len(rets) < 2 {
		return models.VolEstimate{Model: g.Kind(), Domain: spec.Domain, Horizon: spec.Horizon, Err: models.ErrInsufficientData.Error()},
			models.ErrInsufficientData
	}

	var sigma float64
	if spec.GbmLambda > 0 && spec.GbmLambda < 1 {
		sigma = ewmaStd(rets, spec.GbmLambda)
	} else {
		_, sigma = features.MeanStd(rets)
	}
	return buildEstimate(g.Kind(), series, spec, sigma), nil
}

// ewmaStd computes sqrt of the exponentially weighted variance with the
// most recent return weighted highest. Weights are normalized so a short
// window is not biased low.
func ewmaStd(rets []float64, lambda float64) float64 {
	var variance, wsum, w float64
	w = 1
	for i := len(rets) - 1; i >= 0; i-- {
		variance += w * rets[i] * rets[i]
		wsum += w
		w *= lambda
	}
	if wsum == 0 {
		return 0
	}
	return math.Sqrt(variance / wsum)
}
