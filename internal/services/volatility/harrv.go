package volatility

import (
	"math"

	"QuantDesk/internal/domain/models"
	domsvc "QuantDesk/internal/domain/service"
	"QuantDesk/internal/services/features"
)

const (
	harWeekly  = 5
	harMonthly = 22
	harMinObs  = 60
)

// HARRV fits the heterogeneous autoregressive model of realized variance:
// next-day RV regressed on daily, weekly (5-day mean), and monthly (22-day
// mean) RV components. Daily RV is proxied by the squared log return. The
// regression is plain OLS over the available history.
type HARRV struct{}

func NewHARRV() *HARRV { return &HARRV{} }

var _ domsvc.VolatilityModel = (*HARRV)(nil)

func (h *HARRV) Kind() models.VolModelKind { return models.VolHARRV }

func (h *HARRV) Estimate(series models.PriceSeries, spec domsvc.VolSpec) (models.VolEstimate, error) {
	spec = normalizeSpec(spec)
	rets := series.LogReturns()
	if len(rets) < harMinObs {
		return models.VolEstimate{Model: h.Kind(), Domain: spec.Domain, Horizon: spec.Horizon, Err: models.ErrInsufficientData.Error()},
			models.ErrInsufficientData
	}

	rv := features.DailyRV(rets)

	// Build the design matrix: one row per day with a full monthly lookback
	// and a next-day response.
	var xs [][4]float64
	var ys []float64
	for t := harMonthly - 1; t < len(rv)-1; t++ {
		xs = append(xs, [4]float64{
			1,
			rv[t],
			features.TrailingMean(rv, t, harWeekly),
			features.TrailingMean(rv, t, harMonthly),
		})
		ys = append(ys, rv[t+1])
	}
	if len(ys) < 10 {
		return models.VolEstimate{Model: h.Kind(), Domain: spec.Domain, Horizon: spec.Horizon, Err: models.ErrInsufficientData.Error()},
			models.ErrInsufficientData
	}

	beta, ok := ols4(xs, ys)
	if !ok {
		est := models.VolEstimate{Model: h.Kind(), Domain: spec.Domain, Horizon: spec.Horizon, Err: "singular regression"}
		return est, nil
	}

	// Iterate the fitted recursion forward, appending each forecast so the
	// weekly and monthly components roll with the projection.
	ext := make([]float64, len(rv), len(rv)+spec.Horizon)
	copy(ext, rv)
	cum := 0.0
	var first float64
	for k := 0; k < spec.Horizon; k++ {
		t := len(ext) - 1
		next := beta[0] + beta[1]*ext[t] +
			beta[2]*features.TrailingMean(ext, t, harWeekly) +
			beta[3]*features.TrailingMean(ext, t, harMonthly)
		if next < 0 {
			next = 0
		}
		if k == 0 {
			first = next
		}
		cum += next
		ext = append(ext, next)
	}

	return buildEstimateH(h.Kind(), series, spec, math.Sqrt(first), math.Sqrt(cum)), nil
}

// ols4 solves the 4-variable least-squares normal equations by Gaussian
// elimination with partial pivoting. Returns ok=false on a singular system.
func ols4(xs [][4]float64, ys []float64) ([4]float64, bool) {
	var a [4][5]float64
	for i, row := range xs {
		y := ys[i]
		for j := 0; j < 4; j++ {
			for k := 0; k < 4; k++ {
				a[j][k] += row[j] * row[k]
			}
			a[j][4] += row[j] * y
		}
	}

	for col := 0; col < 4; col++ {
		pivot := col
		for r := col + 1; r < 4; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-18 {
			return [4]float64{}, false
		}
		a[col], a[pivot] = a[pivot], a[col]
		for r := 0; r < 4; r++ {
			if r == col {
				continue
			}
			f := a[r][col] / a[col][col]
			for k := col; k < 5; k++ {
				a[r][k] -= f * a[col][k]
			}
		}
	}

	var beta [4]float64
	for i := 0; i < 4; i++ {
		beta[i] = a[i][4] / a[i][i]
	}
	return beta, true
}
