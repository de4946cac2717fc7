package models

// VolModelKind identifies a volatility model family.
type VolModelKind string

const (
	VolGBM          VolModelKind = "gbm"
	VolGARCHNormal  VolModelKind = "garch_normal"
	VolGARCHStudent VolModelKind = "garch_student"
	VolHARRV        VolModelKind = "har_rv"
	VolRangePK      VolModelKind = "range_parkinson"
	VolRangeGK      VolModelKind = "range_garman_klass"
	VolRangeRS      VolModelKind = "range_rogers_satchell"
	VolRangeYZ      VolModelKind = "range_yang_zhang"
)

// GarchDiagnostics exposes the fitted GARCH(1,1) parameters. Persistence is
// alpha+beta; UncondVar is omega/(1-alpha-beta) and only meaningful when the
// fit is stationary.
type GarchDiagnostics struct {
	Omega       float64 `json:"omega"`
	Alpha       float64 `json:"alpha"`
	Beta        float64 `json:"beta"`
	Persistence float64 `json:"persistence"`
	UncondVar   float64 `json:"uncondVar"`
	Dof         float64 `json:"dof,omitempty"` // Student-t innovations only
}

// VolEstimate is one model's 1-day sigma plus its horizon-scaled band.
// Sigma1D and SigmaH are log-return volatilities; Lower/Upper are price
// bounds around the center in the tagged domain. Lower <= Upper always
// holds when Valid.
type VolEstimate struct {
	Model    VolModelKind      `json:"model"`
	Domain   PriceDomain       `json:"domain"`
	Sigma1D  float64           `json:"sigma1d"`
	SigmaH   float64           `json:"sigmaH"`
	Horizon  int               `json:"horizon"`
	Lower    float64           `json:"lower"`
	Upper    float64           `json:"upper"`
	WidthPct float64           `json:"widthPct"` // (upper-lower)/center
	Valid    bool              `json:"valid"`
	Err      string            `json:"err,omitempty"`
	Garch    *GarchDiagnostics `json:"garch,omitempty"`
}

// VolBundle collects the per-model estimates for one symbol/window/horizon.
type VolBundle struct {
	Symbol  string        `json:"symbol"`
	Window  int           `json:"window"`
	Horizon int           `json:"horizon"`
	Cells   []VolEstimate `json:"cells"`
}

// Cell returns the estimate for a model kind, if present.
func (b VolBundle) Cell(kind VolModelKind) (VolEstimate, bool) {
	for _, c := range b.Cells {
		if c.Model == kind {
			return c, true
		}
	}
	return VolEstimate{}, false
}
