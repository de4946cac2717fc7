package volatility

import (
	"math"

	"QuantDesk/internal/domain/models"
	domsvc "QuantDesk/internal/domain/service"
)

// Range estimates volatility from OHLC ranges instead of close-to-close
// returns. Four estimators share the bar validation and band plumbing:
// Parkinson (high-low), Garman-Klass (high-low plus open-close),
// Rogers-Satchell (drift-robust), and Yang-Zhang (overnight-aware).
type Range struct {
	kind models.VolModelKind
}

func NewRange(kind models.VolModelKind) *Range { return &Range{kind: kind} }

var _ domsvc.VolatilityModel = (*Range)(nil)

func (r *Range) Kind() models.VolModelKind { return r.kind }

func (r *Range) Estimate(series models.PriceSeries, spec domsvc.VolSpec) (models.VolEstimate, error) {
	spec = normalizeSpec(spec)
	bars := validBars(series, spec.Window)
	if len(bars) < 2 {
		return models.VolEstimate{Model: r.kind, Domain: spec.Domain, Horizon: spec.Horizon, Err: models.ErrInsufficientData.Error()},
			models.ErrInsufficientData
	}

	var variance float64
	switch r.kind {
	case models.VolRangePK:
		variance = parkinson(bars)
	case models.VolRangeGK:
		variance = garmanKlass(bars)
	case models.VolRangeRS:
		variance = rogersSatchell(bars)
	case models.VolRangeYZ:
		variance = yangZhang(bars)
	default:
		variance = parkinson(bars)
	}
	if variance < 0 {
		variance = 0
	}
	return buildEstimate(r.kind, series, spec, math.Sqrt(variance)), nil
}

// validBars returns the trailing window of bars with positive OHLC and
// high >= low.
func validBars(series models.PriceSeries, window int) []models.PricePoint {
	pts := series.Points
	if len(pts) > window {
		pts = pts[len(pts)-window:]
	}
	out := make([]models.PricePoint, 0, len(pts))
	for _, p := range pts {
		if p.Open <= 0 || p.High <= 0 || p.Low <= 0 || p.Close <= 0 {
			continue
		}
		if p.High < p.Low {
			continue
		}
		out = append(out, p)
	}
	return out
}

func parkinson(bars []models.PricePoint) float64 {
	var sum float64
	for _, b := range bars {
		hl := math.Log(b.High / b.Low)
		sum += hl * hl
	}
	return sum / (4 * math.Ln2 * float64(len(bars)))
}

func garmanKlass(bars []models.PricePoint) float64 {
	var sum float64
	for _, b := range bars {
		hl := math.Log(b.High / b.Low)
		co := math.Log(b.Close / b.Open)
		sum += 0.5*hl*hl - (2*math.Ln2-1)*co*co
	}
	return sum / float64(len(bars))
}

func rogersSatchell(bars []models.PricePoint) float64 {
	var sum float64
	for _, b := range bars {
		sum += math.Log(b.High/b.Close)*math.Log(b.High/b.Open) +
			math.Log(b.Low/b.Close)*math.Log(b.Low/b.Open)
	}
	return sum / float64(len(bars))
}

// yangZhang combines overnight, open-to-close, and Rogers-Satchell
// variances with the drift-minimizing weight k.
func yangZhang(bars []models.PricePoint) float64 {
	n := len(bars)
	if n < 2 {
		return 0
	}
	overnight := make([]float64, 0, n-1)
	openClose := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		overnight = append(overnight, math.Log(bars[i].Open/bars[i-1].Close))
		openClose = append(openClose, math.Log(bars[i].Close/bars[i].Open))
	}
	vo := sampleVar(overnight)
	vc := sampleVar(openClose)
	vrs := rogersSatchell(bars[1:])

	k := 0.34 / (1.34 + float64(n+1)/float64(n-1))
	return vo + k*vc + (1-k)*vrs
}

func sampleVar(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(n)
	var sum2 float64
	for _, x := range xs {
		d := x - mean
		sum2 += d * d
	}
	return sum2 / float64(n-1)
}
