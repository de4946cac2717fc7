package models

import "time"

// PositionSide is the simulator's current exposure.
type PositionSide string

const (
	SideFlat  PositionSide = ""
	SideLong  PositionSide = "long"
	SideShort PositionSide = "short"
)

// ExitReason distinguishes how a position was closed. A margin call is an
// account event, not a signal decision, and must stay distinguishable.
type ExitReason string

const (
	ExitSignal     ExitReason = "signal"
	ExitFlip       ExitReason = "flip"
	ExitMarginCall ExitReason = "margin_call"
	ExitEndOfData  ExitReason = "end_of_data"
)

// Trade is one closed CFD position. Quantity and Margin are fixed at entry;
// NetPnl is finalized at exit.
type Trade struct {
	EntryDate  time.Time    `json:"entryDate"`
	ExitDate   time.Time    `json:"exitDate"`
	Side       PositionSide `json:"side"`
	EntryPrice float64      `json:"entryPrice"`
	ExitPrice  float64      `json:"exitPrice"`
	Quantity   float64      `json:"quantity"`
	Margin     float64      `json:"margin"`
	GrossPnl   float64      `json:"grossPnl"`
	SwapFees   float64      `json:"swapFees"`
	SpreadCost float64      `json:"spreadCost"`
	NetPnl     float64      `json:"netPnl"`
	RunUp      float64      `json:"runUp"`
	Drawdown   float64      `json:"drawdown"`
	ExitReason ExitReason   `json:"exitReason"`
}

// AccountSnapshot is the end-of-day account state. One snapshot per
// simulated trading day; a side change marks a trade boundary.
type AccountSnapshot struct {
	Date          time.Time    `json:"date"`
	Equity        float64      `json:"equity"`
	UnrealisedPnl float64      `json:"unrealisedPnl"`
	MarginUsed    float64      `json:"marginUsed"`
	FreeMargin    float64      `json:"freeMargin"`
	Side          PositionSide `json:"side"`
}

// SimResult is the full output of one simulator run.
type SimResult struct {
	Snapshots []AccountSnapshot `json:"snapshots"`
	Trades    []Trade           `json:"trades"`
	StopOuts  int               `json:"stopOuts"`
}

// RunSummary is one completed backtest configuration's aggregate result.
// Immutable once a run completes; a re-run with the same id supersedes it.
type RunSummary struct {
	ID          string    `json:"id"`
	Label       string    `json:"label"`
	Symbol      string    `json:"symbol"`
	Lambda      float64   `json:"lambda"`
	TrainFrac   float64   `json:"trainFraction"`
	ReturnPct   float64   `json:"returnPct"`
	MaxDrawdown float64   `json:"maxDrawdown"`
	TradeCount  int       `json:"tradeCount"`
	StopOuts    int       `json:"stopOutEvents"`
	Days        int       `json:"days"`
	FirstDate   time.Time `json:"firstDate"`
	LastDate    time.Time `json:"lastDate"`
	FinalEquity float64   `json:"finalEquity"`
	Volatility  VolBundle `json:"volatility"`
	HorizonFcst float64   `json:"horizonForecast"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ZThresholds is an enter/exit/flip band set in z-score units. Long-side
// values are positive and short-side values are their negative mirror.
// Validity requires exitLong < enterLong < flipLong (and the mirrored
// ordering on the short side).
type ZThresholds struct {
	EnterLong  float64 `json:"enterLong"`
	ExitLong   float64 `json:"exitLong"`
	FlipLong   float64 `json:"flipLong"`
	EnterShort float64 `json:"enterShort"`
	ExitShort  float64 `json:"exitShort"`
	FlipShort  float64 `json:"flipShort"`
}

// ThresholdTier reports how an optimized threshold set qualified.
type ThresholdTier string

const (
	TierStrict      ThresholdTier = "strict"       // ordering + recency constraints met
	TierBestEffort  ThresholdTier = "best_effort"  // ordering met, recency relaxed
	TierAutoDefault ThresholdTier = "auto_default" // search failed, defaults returned
)

// ThresholdRecommendation is the optimizer's output.
type ThresholdRecommendation struct {
	Thresholds ZThresholds   `json:"thresholds"`
	Tier       ThresholdTier `json:"tier"`
	Score      float64       `json:"score"` // Calmar over validation folds
	Evaluated  int           `json:"evaluated"`
}
