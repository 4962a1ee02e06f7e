package backtest

import (
	"math"

	"liquidity-sniper/internal/sim"
)

// Report is the closed-trade and equity-curve metric bundle.
type Report struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64

	TotalPnL    float64
	TotalPnLPct float64
	AvgWin      float64
	AvgLoss     float64
	AvgPnL      float64

	AvgRRRatio     float64
	MaxDrawdown    float64
	MaxDrawdownPct float64
	SharpeRatio    float64
	ProfitFactor   float64 // may be +Inf

	ExitBreakdown map[sim.ExitReason]int
}

// Analyzer computes performance statistics from a finished run.
type Analyzer struct {
	// AnnualizationFactor scales the per-step Sharpe ratio; √252 daily bars
	// by default, overridable for other cadences.
	AnnualizationFactor float64
}

// NewAnalyzer returns an analyzer with the default annualization.
func NewAnalyzer() *Analyzer {
	return &Analyzer{AnnualizationFactor: 252}
}

// Analyze computes the full metric bundle.
func (a *Analyzer) Analyze(trades []sim.ClosedTrade, equity []sim.EquityPoint, initialCapital float64) Report {
	r := Report{
		ExitBreakdown: map[sim.ExitReason]int{
			sim.ExitTP1: 0, sim.ExitTP2: 0, sim.ExitTP3: 0,
			sim.ExitStopLoss: 0, sim.ExitLiquidation: 0, sim.ExitTimeout: 0,
		},
	}

	var grossProfit, grossLoss float64
	var rrSum float64
	rrCount := 0

	for _, t := range trades {
		r.TotalTrades++
		r.TotalPnL += t.PnLUSD
		r.ExitBreakdown[t.ExitReason]++

		if t.PnLUSD > 0 {
			r.WinningTrades++
			grossProfit += t.PnLUSD
		} else {
			r.LosingTrades++
			grossLoss += t.PnLUSD
		}

		risk := math.Abs(t.EntryPrice-t.StopAtEntry) * t.Qty
		if risk > 0 {
			rrSum += t.PnLUSD / risk
			rrCount++
		}
	}

	if r.TotalTrades > 0 {
		r.WinRate = float64(r.WinningTrades) / float64(r.TotalTrades) * 100
		r.AvgPnL = r.TotalPnL / float64(r.TotalTrades)
	}
	if r.WinningTrades > 0 {
		r.AvgWin = grossProfit / float64(r.WinningTrades)
	}
	if r.LosingTrades > 0 {
		r.AvgLoss = grossLoss / float64(r.LosingTrades)
	}
	if rrCount > 0 {
		r.AvgRRRatio = rrSum / float64(rrCount)
	}
	if initialCapital > 0 {
		r.TotalPnLPct = r.TotalPnL / initialCapital * 100
	}

	r.MaxDrawdown, r.MaxDrawdownPct = maxDrawdown(equity, initialCapital)
	r.SharpeRatio = a.sharpe(equity)

	switch {
	case grossLoss != 0:
		r.ProfitFactor = grossProfit / math.Abs(grossLoss)
	case grossProfit > 0:
		r.ProfitFactor = math.Inf(1)
	default:
		r.ProfitFactor = 0
	}

	return r
}

// maxDrawdown is the largest peak-to-trough equity drop and its percent of
// initial capital.
func maxDrawdown(equity []sim.EquityPoint, initialCapital float64) (float64, float64) {
	if len(equity) == 0 {
		return 0, 0
	}
	peak := equity[0].Equity
	maxDD := 0.0
	for _, p := range equity {
		if p.Equity > peak {
			peak = p.Equity
		}
		if dd := peak - p.Equity; dd > maxDD {
			maxDD = dd
		}
	}
	pct := 0.0
	if initialCapital > 0 {
		pct = maxDD / initialCapital * 100
	}
	return maxDD, pct
}

// sharpe computes mean/std of per-step equity returns scaled by the
// annualization factor; zero when the deviation is zero.
func (a *Analyzer) sharpe(equity []sim.EquityPoint) float64 {
	if len(equity) < 2 {
		return 0
	}

	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev == 0 {
			continue
		}
		returns = append(returns, (equity[i].Equity-prev)/prev)
	}
	if len(returns) == 0 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		diff := r - mean
		variance += diff * diff
	}
	std := math.Sqrt(variance / float64(len(returns)))
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(a.AnnualizationFactor)
}

// JSONSafe renders the report as a JSON-serializable map: NaN and infinities
// become null, except the profit factor which reports the documented
// "Infinity" sentinel when gross loss is zero and gross profit positive.
func (r Report) JSONSafe() map[string]interface{} {
	out := map[string]interface{}{
		"total_trades":     r.TotalTrades,
		"winning_trades":   r.WinningTrades,
		"losing_trades":    r.LosingTrades,
		"win_rate":         jsonNumber(r.WinRate),
		"total_pnl":        jsonNumber(r.TotalPnL),
		"total_pnl_pct":    jsonNumber(r.TotalPnLPct),
		"avg_win":          jsonNumber(r.AvgWin),
		"avg_loss":         jsonNumber(r.AvgLoss),
		"avg_pnl":          jsonNumber(r.AvgPnL),
		"avg_rr_ratio":     jsonNumber(r.AvgRRRatio),
		"max_drawdown":     jsonNumber(r.MaxDrawdown),
		"max_drawdown_pct": jsonNumber(r.MaxDrawdownPct),
		"sharpe_ratio":     jsonNumber(r.SharpeRatio),
	}

	if math.IsInf(r.ProfitFactor, 1) {
		out["profit_factor"] = "Infinity"
	} else {
		out["profit_factor"] = jsonNumber(r.ProfitFactor)
	}

	breakdown := map[string]int{}
	for reason, count := range r.ExitBreakdown {
		breakdown[string(reason)] = count
	}
	out["exit_breakdown"] = breakdown
	return out
}

// jsonNumber maps NaN/Inf to nil so the serialized result stays valid JSON.
func jsonNumber(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
