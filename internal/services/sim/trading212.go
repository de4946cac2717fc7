package sim

import (
	"sort"
	"time"

	"QuantDesk/internal/domain/models"
	domsvc "QuantDesk/internal/domain/service"
	applogger "QuantDesk/pkg/logger"
	"QuantDesk/pkg/util"
)

const defaultMaintenanceFrac = 0.5

// Trading212 replays a walk-forward path through a CFD account with
// leverage, spread, swap, and margin-call mechanics. One decision per
// trading day, taken at the close; fills happen at the same close. The
// account carries negative balance protection: equity is floored at zero
// and trading halts once it is exhausted.
type Trading212 struct {
	l *applogger.Logger
}

func NewTrading212(l *applogger.Logger) *Trading212 {
	if l == nil {
		l = applogger.Nop()
	}
	return &Trading212{l: l}
}

var _ domsvc.Simulator = (*Trading212)(nil)

// position is the open-position state between entry and exit.
type position struct {
	side       models.PositionSide
	entryDate  time.Time
	entryPrice float64
	qty        float64
	margin     float64
	swap       float64
	spread     float64
	runUp      float64
	drawdown   float64
}

func (p *position) dir() float64 {
	if p.side == models.SideShort {
		return -1
	}
	return 1
}

func (p *position) unrealized(price float64) float64 {
	return p.qty * (price - p.entryPrice) * p.dir()
}

// Run walks the path day by day. The daily order is fixed: accrue swap and
// mark to market, check maintenance margin, then apply the signal, then
// snapshot. A margin call closes at the same close as a signal exit would,
// but is reported as a distinct account event.
func (t *Trading212) Run(series models.PriceSeries, path []models.WalkPoint, cfg domsvc.SimConfig) (models.SimResult, error) {
	if cfg.InitialEquity <= 0 {
		return models.SimResult{}, models.ErrInsufficientData
	}
	if cfg.Leverage < 1 {
		cfg.Leverage = 1
	}
	if cfg.PositionFrac <= 0 || cfg.PositionFrac > 1 {
		cfg.PositionFrac = 0.25
	}
	if cfg.MaintenanceFrac <= 0 {
		cfg.MaintenanceFrac = defaultMaintenanceFrac
	}
	if cfg.SignalRule == "z" {
		if err := ValidateThresholds(cfg.Thresholds); err != nil {
			return models.SimResult{}, err
		}
	}

	days := make([]models.WalkPoint, 0, len(path))
	for _, wp := range path {
		if wp.SpotT > 0 {
			days = append(days, wp)
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Origin.Before(days[j].Origin) })
	if len(days) == 0 {
		return models.SimResult{}, models.ErrInsufficientData
	}

	res := models.SimResult{
		Snapshots: make([]models.AccountSnapshot, 0, len(days)),
	}
	equity := cfg.InitialEquity // realized equity; unrealized rides on top
	var pos *position
	halted := false

	closeOut := func(p *position, date time.Time, price float64, reason models.ExitReason) {
		gross := p.unrealized(price)
		equity += gross
		if equity < 0 {
			equity = 0
		}
		res.Trades = append(res.Trades, models.Trade{
			EntryDate:  p.entryDate,
			ExitDate:   date,
			Side:       p.side,
			EntryPrice: p.entryPrice,
			ExitPrice:  price,
			Quantity:   p.qty,
			Margin:     p.margin,
			GrossPnl:   gross,
			SwapFees:   p.swap,
			SpreadCost: p.spread,
			NetPnl:     gross - p.swap - p.spread,
			RunUp:      p.runUp,
			Drawdown:   p.drawdown,
			ExitReason: reason,
		})
		if reason == models.ExitMarginCall {
			res.StopOuts++
		}
	}

	open := func(side models.PositionSide, date time.Time, price float64) {
		notional := equity * cfg.PositionFrac * cfg.Leverage
		if notional <= 0 || price <= 0 {
			return
		}
		spread := notional * cfg.CostBps * 1e-4
		equity -= spread
		if equity < 0 {
			equity = 0
		}
		pos = &position{
			side:       side,
			entryDate:  date,
			entryPrice: price,
			qty:        notional / price,
			margin:     notional / cfg.Leverage,
			spread:     spread,
		}
	}

	for i, wp := range days {
		price := wp.SpotT
		date := wp.Origin

		// Swap accrues on every day a position is held open.
		if pos != nil {
			swap := pos.qty * pos.entryPrice * cfg.SwapBps * 1e-4
			pos.swap += swap
			equity -= swap
			if equity < 0 {
				equity = 0
			}

			upnl := pos.unrealized(price)
			if upnl > pos.runUp {
				pos.runUp = upnl
			}
			if upnl < pos.drawdown {
				pos.drawdown = upnl
			}

			// Maintenance check against the marked account.
			if equity+upnl < cfg.MaintenanceFrac*pos.margin {
				t.l.Warn("margin call",
					applogger.String("symbol", series.Symbol),
					applogger.String("date", date.Format("2006-01-02")),
					applogger.Float64("equity", equity+upnl),
				)
				closeOut(pos, date, price, models.ExitMarginCall)
				pos = nil
				if equity <= 0 {
					halted = true
				}
			}
		}

		last := i == len(days)-1
		if !halted && !last {
			cur := models.SideFlat
			if pos != nil {
				cur = pos.side
			}
			h := util.BusinessDaysBetween(wp.Origin, wp.Target)
			if h < 1 {
				h = 1
			}
			want, reason := desiredSide(cur, signalAt(wp, h), cfg)
			if want != cur {
				if pos != nil {
					closeOut(pos, date, price, reason)
					pos = nil
					if equity <= 0 {
						halted = true
					}
				}
				if !halted && want != models.SideFlat {
					open(want, date, price)
				}
			}
		} else if pos != nil && last {
			closeOut(pos, date, price, models.ExitEndOfData)
			pos = nil
		}

		snap := models.AccountSnapshot{
			Date:   date,
			Equity: equity,
			Side:   models.SideFlat,
		}
		if pos != nil {
			snap.UnrealisedPnl = pos.unrealized(price)
			snap.MarginUsed = pos.margin
			snap.Side = pos.side
			snap.Equity = equity + snap.UnrealisedPnl
			if snap.Equity < 0 {
				snap.Equity = 0
			}
		}
		snap.FreeMargin = snap.Equity - snap.MarginUsed
		res.Snapshots = append(res.Snapshots, snap)
	}

	return res, nil
}

// BuildRunSummary aggregates a completed run for comparison and storage.
func BuildRunSummary(id, label string, series models.PriceSeries, res models.SimResult, cfg domsvc.SimConfig, lambda, trainFrac float64) models.RunSummary {
	s := models.RunSummary{
		ID:         id,
		Label:      label,
		Symbol:     series.Symbol,
		Lambda:     lambda,
		TrainFrac:  trainFrac,
		TradeCount: len(res.Trades),
		StopOuts:   res.StopOuts,
		Days:       len(res.Snapshots),
		CreatedAt:  time.Now().UTC(),
	}
	if len(res.Snapshots) == 0 {
		return s
	}
	s.FirstDate = res.Snapshots[0].Date
	s.LastDate = res.Snapshots[len(res.Snapshots)-1].Date
	s.FinalEquity = res.Snapshots[len(res.Snapshots)-1].Equity
	if cfg.InitialEquity > 0 {
		s.ReturnPct = (s.FinalEquity/cfg.InitialEquity - 1) * 100
	}
	s.MaxDrawdown = maxDrawdownPct(res.Snapshots)
	return s
}

// maxDrawdownPct is the largest peak-to-trough equity decline, in percent.
func maxDrawdownPct(snaps []models.AccountSnapshot) float64 {
	peak := 0.0
	worst := 0.0
	for _, sn := range snaps {
		if sn.Equity > peak {
			peak = sn.Equity
		}
		if peak > 0 {
			dd := (peak - sn.Equity) / peak * 100
			if dd > worst {
				worst = dd
			}
		}
	}
	return worst
}
