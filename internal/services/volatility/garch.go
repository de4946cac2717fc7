package volatility

import (
	"math"

	"QuantDesk/internal/domain/models"
	domsvc "QuantDesk/internal/domain/service"
	"QuantDesk/internal/services/features"
)

const (
	garchMinObs     = 50
	garchDefaultDof = 6.0
	garchMinDof     = 2.5
)

// GARCH fits a GARCH(1,1) by maximum likelihood, with Normal or Student-t
// innovations depending on the kind. The fit is a coarse grid over
// (alpha, beta) with variance-targeted omega, refined by coordinate descent
// on all three parameters. Multi-step forecasts iterate the conditional
// variance recursion rather than applying the square-root rule.
type GARCH struct {
	kind models.VolModelKind
}

func NewGARCH(kind models.VolModelKind) *GARCH {
	if kind != models.VolGARCHStudent {
		kind = models.VolGARCHNormal
	}
	return &GARCH{kind: kind}
}

var _ domsvc.VolatilityModel = (*GARCH)(nil)

func (g *GARCH) Kind() models.VolModelKind { return g.kind }

func (g *GARCH) Estimate(series models.PriceSeries, spec domsvc.VolSpec) (models.VolEstimate, error) {
	spec = normalizeSpec(spec)
	// GARCH needs more history than the display window; use everything
	// available up to 3x the window.
	rets := cleanReturns(series, 3*spec.Window)
	if len(rets) < garchMinObs {
		return models.VolEstimate{Model: g.kind, Domain: spec.Domain, Horizon: spec.Horizon, Err: models.ErrInsufficientData.Error()},
			models.ErrInsufficientData
	}

	dof := spec.Dof
	if g.kind == models.VolGARCHStudent && dof <= garchMinDof {
		dof = garchDefaultDof
	}

	fit := fitGARCH(rets, g.kind, dof)
	diag := &models.GarchDiagnostics{
		Omega:       fit.omega,
		Alpha:       fit.alpha,
		Beta:        fit.beta,
		Persistence: fit.alpha + fit.beta,
	}
	if g.kind == models.VolGARCHStudent {
		diag.Dof = dof
	}

	if diag.Persistence >= 1 {
		est := models.VolEstimate{
			Model:   g.kind,
			Domain:  spec.Domain,
			Horizon: spec.Horizon,
			Err:     models.ErrNonStationary.Error(),
			Garch:   diag,
		}
		return est, models.ErrNonStationary
	}
	diag.UncondVar = fit.omega / (1 - diag.Persistence)

	// The filter leaves lastVar at the one-step-ahead conditional variance;
	// iterate the recursion out to the horizon from there.
	h1 := fit.lastVar
	cum := 0.0
	hk := h1
	for k := 0; k < spec.Horizon; k++ {
		cum += hk
		hk = fit.omega + diag.Persistence*hk
	}
	est := buildEstimateH(g.kind, series, spec, math.Sqrt(h1), math.Sqrt(cum))
	est.Garch = diag
	return est, nil
}

type garchFit struct {
	omega, alpha, beta float64
	lastRet2, lastVar  float64
	nll                float64
}

// fitGARCH runs the grid search plus coordinate refinement. Positivity is
// enforced; stationarity is not, so an explosive series can surface a
// persistence at or above one.
func fitGARCH(rets []float64, kind models.VolModelKind, dof float64) garchFit {
	_, std := features.MeanStd(rets)
	uncond := std * std
	if uncond <= 0 {
		uncond = 1e-8
	}

	best := garchFit{nll: math.Inf(1)}
	for _, alpha := range []float64{0.02, 0.05, 0.1, 0.15, 0.2} {
		for _, beta := range []float64{0.5, 0.7, 0.8, 0.9, 0.95} {
			if alpha+beta >= 0.999 {
				continue
			}
			omega := uncond * (1 - alpha - beta)
			if f := evalGARCH(rets, omega, alpha, beta, kind, dof); f.nll < best.nll {
				best = f
			}
		}
	}

	// Coordinate descent with a shrinking step on each parameter in turn.
	step := 0.05
	for iter := 0; iter < 40; iter++ {
		improved := false
		for _, dir := range []float64{1, -1} {
			if f := tryGARCH(rets, best.omega*(1+dir*step), best.alpha, best.beta, kind, dof); f.nll < best.nll {
				best = f
				improved = true
			}
			if f := tryGARCH(rets, best.omega, best.alpha+dir*step*0.1, best.beta, kind, dof); f.nll < best.nll {
				best = f
				improved = true
			}
			if f := tryGARCH(rets, best.omega, best.alpha, best.beta+dir*step*0.1, kind, dof); f.nll < best.nll {
				best = f
				improved = true
			}
		}
		if !improved {
			step /= 2
			if step < 1e-4 {
				break
			}
		}
	}
	return best
}

func tryGARCH(rets []float64, omega, alpha, beta float64, kind models.VolModelKind, dof float64) garchFit {
	if omega <= 0 || alpha < 0 || beta < 0 || alpha+beta > 1.05 {
		return garchFit{nll: math.Inf(1)}
	}
	return evalGARCH(rets, omega, alpha, beta, kind, dof)
}

// evalGARCH filters the variance recursion and returns the negative
// log-likelihood together with the terminal state.
func evalGARCH(rets []float64, omega, alpha, beta float64, kind models.VolModelKind, dof float64) garchFit {
	_, std := features.MeanStd(rets)
	h := std * std
	if h <= 0 {
		h = 1e-8
	}

	var nll float64
	var lastRet2 float64
	for _, r := range rets {
		if h <= 0 || !features.IsFinite(h) {
			return garchFit{nll: math.Inf(1)}
		}
		if kind == models.VolGARCHStudent {
			nll += tNegLogLik(r, h, dof)
		} else {
			nll += 0.5 * (math.Log(2*math.Pi) + math.Log(h) + r*r/h)
		}
		lastRet2 = r * r
		h = omega + alpha*lastRet2 + beta*h
	}
	if !features.IsFinite(nll) {
		nll = math.Inf(1)
	}
	return garchFit{
		omega: omega, alpha: alpha, beta: beta,
		lastRet2: lastRet2, lastVar: h, nll: nll,
	}
}

// tNegLogLik is the per-observation negative log density of a standardized
// Student-t with the given degrees of freedom, scaled to variance h.
func tNegLogLik(r, h, dof float64) float64 {
	scale2 := h * (dof - 2) / dof
	lg1, _ := math.Lgamma((dof + 1) / 2)
	lg2, _ := math.Lgamma(dof / 2)
	logDensity := lg1 - lg2 - 0.5*math.Log(math.Pi*dof*scale2) -
		(dof+1)/2*math.Log(1+r*r/(dof*scale2))
	return -logDensity
}
