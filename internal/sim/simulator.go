package sim

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"liquidity-sniper/internal/candle"
	"liquidity-sniper/internal/strategy"
)

// stopSafetyTick is how far beyond the liquidation price a stop is pulled in
// when the raw stop would sit past liquidation on the losing side.
const stopSafetyTick = 0.0005

// Config holds the simulator's portfolio and execution parameters.
type Config struct {
	InitialBalance        float64
	RiskPerTrade          float64 // fraction of balance risked per trade
	Leverage              float64
	MaxPositions          int
	MaxOrderValue         float64
	MinNotional           float64
	MaintenanceMarginRate float64
	MaxHoldDuration       time.Duration
	LimitOrderExpiry      int // candles a parked limit order survives
	AllowFlip             bool
	SameCandlePriority    SameCandlePriority
	TPSizes               [3]float64 // partial close fractions per TP level
}

// DefaultConfig returns the shark-tank defaults.
func DefaultConfig(initialBalance float64) Config {
	return Config{
		InitialBalance:        initialBalance,
		RiskPerTrade:          0.01,
		Leverage:              10,
		MaxPositions:          3,
		MaxOrderValue:         50000,
		MinNotional:           10,
		MaintenanceMarginRate: 0.004,
		MaxHoldDuration:       4 * time.Hour,
		LimitOrderExpiry:      3,
		SameCandlePriority:    StopFirst,
		TPSizes:               [3]float64{0.6, 0.3, 0.1},
	}
}

// Simulator is the portfolio execution simulator. Phase A (Update) marks and
// manages open positions; Phase B (ProcessBatchSignals) runs admission
// control over candidate signals. The simulator exclusively owns the
// portfolio state; callers read it through accessors.
type Simulator struct {
	cfg    Config
	logger zerolog.Logger

	balance     float64
	equity      float64
	peakEquity  float64
	positions   map[string]*Position
	pending     map[string]*pendingOrder
	trades      []ClosedTrade
	equityCurve []EquityPoint
}

// NewSimulator creates a simulator with the given configuration.
func NewSimulator(cfg Config, logger zerolog.Logger) *Simulator {
	if cfg.InitialBalance <= 0 {
		panic(fmt.Sprintf("sim: non-positive initial balance %.4f", cfg.InitialBalance))
	}
	if cfg.Leverage < 1 {
		cfg.Leverage = 1
	}
	if cfg.MaxPositions < 1 {
		cfg.MaxPositions = 1
	}
	if cfg.LimitOrderExpiry < 1 {
		cfg.LimitOrderExpiry = 3
	}
	if cfg.SameCandlePriority == "" {
		cfg.SameCandlePriority = StopFirst
	}
	if cfg.TPSizes == [3]float64{} {
		cfg.TPSizes = [3]float64{0.6, 0.3, 0.1}
	}
	return &Simulator{
		cfg:        cfg,
		logger:     logger.With().Str("component", "sim").Logger(),
		balance:    cfg.InitialBalance,
		equity:     cfg.InitialBalance,
		peakEquity: cfg.InitialBalance,
		positions:  map[string]*Position{},
		pending:    map[string]*pendingOrder{},
	}
}

// Balance returns realized cash.
func (s *Simulator) Balance() float64 { return s.balance }

// Equity returns balance plus unrealized PnL as of the last update.
func (s *Simulator) Equity() float64 { return s.equity }

// Trades returns the append-only closed-trade ledger.
func (s *Simulator) Trades() []ClosedTrade { return s.trades }

// EquityCurve returns the per-tick equity samples.
func (s *Simulator) EquityCurve() []EquityPoint { return s.equityCurve }

// OpenPositions returns a snapshot of the open positions.
func (s *Simulator) OpenPositions() []Position {
	out := make([]Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Update is Phase A: fill parked limits, then for each open position run
// liquidation, stop/TP and timeout checks against the tick's candles, and
// finally sample the equity curve. Returns the trades closed at this tick.
func (s *Simulator) Update(candles map[string]candle.Candle, now time.Time) []ClosedTrade {
	closedBefore := len(s.trades)

	s.fillPendingOrders(candles, now)

	// Symbols are visited in sorted order so the ledger is deterministic.
	for _, sym := range sortedKeys(s.positions) {
		pos := s.positions[sym]
		c, ok := candles[sym]
		if !ok {
			continue
		}
		s.managePosition(pos, c, now)
	}

	// Recompute equity after all closes.
	unrealized := 0.0
	for sym, pos := range s.positions {
		if c, ok := candles[sym]; ok {
			pos.markPrice = c.Close
		}
		if pos.markPrice > 0 {
			unrealized += positionPnL(pos.Side, pos.EntryPrice, pos.markPrice, pos.Qty)
		}
	}
	s.equity = s.balance + unrealized
	mustFinite(s.equity, "equity")
	if s.equity > s.peakEquity {
		s.peakEquity = s.equity
	}

	if n := len(s.equityCurve); n > 0 && !s.equityCurve[n-1].Time.Before(now) {
		panic(fmt.Sprintf("sim: equity curve time going backwards at %s", now))
	}
	s.equityCurve = append(s.equityCurve, EquityPoint{Time: now, Equity: s.equity})

	return s.trades[closedBefore:]
}

// managePosition applies the per-candle exit ladder to one position.
func (s *Simulator) managePosition(pos *Position, c candle.Candle, now time.Time) {
	pos.markPrice = c.Close

	// 1. Liquidation takes precedence over everything.
	if pos.Leverage > 1 && inRange(pos.LiquidationPrice, c) {
		s.closeRemainder(pos, pos.LiquidationPrice, ExitLiquidation, now)
		return
	}

	stopHit := inRange(pos.StopLoss, c)
	if s.cfg.SameCandlePriority == StopFirst && stopHit {
		s.closeRemainder(pos, pos.StopLoss, ExitStopLoss, now)
		return
	}

	// 2. Walk the TP ladder in order.
	tps := [3]float64{pos.TPLevels.TP1, pos.TPLevels.TP2, pos.TPLevels.TP3}
	reasons := [3]ExitReason{ExitTP1, ExitTP2, ExitTP3}
	for i := 0; i < 3; i++ {
		if pos.RemainingTPSizes[i] <= 0 || !inRange(tps[i], c) {
			continue
		}
		sliceQty := pos.OriginalQty * pos.RemainingTPSizes[i]
		if sliceQty > pos.Qty {
			sliceQty = pos.Qty
		}
		pos.RemainingTPSizes[i] = 0
		s.closeSlice(pos, sliceQty, tps[i], reasons[i], now)

		// Trailing: break-even after TP1, TP1 after TP2.
		switch i {
		case 0:
			pos.StopLoss = pos.EntryPrice
		case 1:
			pos.StopLoss = pos.TPLevels.TP1
		}
		if pos.Qty <= 1e-12 {
			delete(s.positions, pos.Symbol)
			return
		}
	}

	if s.cfg.SameCandlePriority == TPFirst && stopHit {
		if _, open := s.positions[pos.Symbol]; open {
			s.closeRemainder(pos, pos.StopLoss, ExitStopLoss, now)
			return
		}
	}

	// 3. Timeout on the remainder.
	if s.cfg.MaxHoldDuration > 0 && now.Sub(pos.OpenedAt) >= s.cfg.MaxHoldDuration {
		if _, open := s.positions[pos.Symbol]; open {
			s.closeRemainder(pos, c.Close, ExitTimeout, now)
		}
	}
}

// fillPendingOrders checks each parked limit against the tick's candle range
// and expires stale orders.
func (s *Simulator) fillPendingOrders(candles map[string]candle.Candle, now time.Time) {
	for _, sym := range sortedKeys(s.pending) {
		order := s.pending[sym]
		c, ok := candles[sym]
		if !ok {
			continue
		}

		limit := order.position.EntryPrice
		filled := (order.position.Side == strategy.SideBuy && c.Low <= limit) ||
			(order.position.Side == strategy.SideSell && c.High >= limit)

		if filled {
			delete(s.pending, sym)
			if len(s.positions) >= s.cfg.MaxPositions {
				s.logger.Debug().Str("symbol", sym).Msg("limit fill rejected, position cap reached")
				continue
			}
			if _, exists := s.positions[sym]; exists {
				continue
			}
			order.position.OpenedAt = now
			s.positions[sym] = order.position
			s.logger.Debug().
				Str("symbol", sym).
				Str("side", string(order.position.Side)).
				Float64("price", limit).
				Msg("limit order filled")
			continue
		}

		order.candlesLeft--
		if order.candlesLeft <= 0 {
			delete(s.pending, sym)
			s.logger.Debug().Str("symbol", sym).Msg("limit order expired")
		}
	}
}

// ProcessBatchSignals is Phase B: admission control over a batch of
// candidate signals at timeline time now. Returns the number admitted.
func (s *Simulator) ProcessBatchSignals(batch []*strategy.Signal, now time.Time) int {
	if len(batch) == 0 {
		return 0
	}

	candidates := make([]*strategy.Signal, 0, len(batch))
	for _, sig := range batch {
		if sig == nil {
			continue
		}
		if _, open := s.positions[sig.Symbol]; open && !s.cfg.AllowFlip {
			continue
		}
		if _, parked := s.pending[sig.Symbol]; parked {
			continue
		}
		candidates = append(candidates, sig)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})

	admitted := 0
	for _, sig := range candidates {
		if len(s.positions)+len(s.pending) >= s.cfg.MaxPositions {
			break
		}

		if pos, open := s.positions[sig.Symbol]; open && s.cfg.AllowFlip {
			s.closeRemainder(pos, pos.markPrice, ExitManual, now)
		}

		pos, ok := s.admit(sig, now)
		if !ok {
			continue
		}

		if sig.IsLimitOrder {
			s.pending[sig.Symbol] = &pendingOrder{
				position:    pos,
				signal:      sig,
				candlesLeft: s.cfg.LimitOrderExpiry,
			}
		} else {
			pos.OpenedAt = now
			s.positions[sig.Symbol] = pos
		}
		admitted++
	}
	return admitted
}

// admit sizes and risk-checks one signal, returning the prepared position.
// Rejections are silent by design: logged, never fatal.
func (s *Simulator) admit(sig *strategy.Signal, now time.Time) (*Position, bool) {
	entry := sig.EntryPrice
	stop := sig.StopLoss
	riskPerUnit := math.Abs(entry - stop)
	if riskPerUnit <= 0 || entry <= 0 {
		s.logger.Debug().Str("symbol", sig.Symbol).Msg("rejecting signal with zero risk distance")
		return nil, false
	}

	notional := math.Min(s.cfg.MaxOrderValue, s.balance*s.cfg.RiskPerTrade/riskPerUnit*entry)
	qty := notional / entry
	if math.IsNaN(qty) || qty < 0 {
		panic(fmt.Sprintf("sim: invalid quantity %.8f for %s", qty, sig.Symbol))
	}
	if notional < s.cfg.MinNotional {
		s.logger.Debug().Str("symbol", sig.Symbol).Float64("notional", notional).
			Msg("rejecting signal below min notional")
		return nil, false
	}

	margin := notional / s.cfg.Leverage
	if margin > s.freeMargin() {
		s.logger.Debug().Str("symbol", sig.Symbol).Float64("margin", margin).
			Msg("rejecting signal, insufficient free margin")
		return nil, false
	}

	liq := liquidationPrice(sig.Side, entry, s.cfg.Leverage, s.cfg.MaintenanceMarginRate)

	// If liquidation sits between entry and stop on the losing side, pull
	// the stop one tick inside liquidation; reject when that inverts R:R.
	if sig.Side == strategy.SideBuy && liq > stop && liq < entry {
		stop = liq * (1 + stopSafetyTick)
		if rr := (sig.TPLevels.TP1 - entry) / (entry - stop); rr < 1 {
			s.logger.Debug().Str("symbol", sig.Symbol).Msg("rejecting signal, liquidation-adjusted stop inverts R:R")
			return nil, false
		}
	}
	if sig.Side == strategy.SideSell && liq < stop && liq > entry {
		stop = liq * (1 - stopSafetyTick)
		if rr := (entry - sig.TPLevels.TP1) / (stop - entry); rr < 1 {
			s.logger.Debug().Str("symbol", sig.Symbol).Msg("rejecting signal, liquidation-adjusted stop inverts R:R")
			return nil, false
		}
	}

	return &Position{
		ID:               uuid.NewString(),
		Symbol:           sig.Symbol,
		Side:             sig.Side,
		Qty:              qty,
		OriginalQty:      qty,
		EntryPrice:       entry,
		StopLoss:         stop,
		InitialStop:      stop,
		TPLevels:         sig.TPLevels,
		RemainingTPSizes: s.cfg.TPSizes,
		Leverage:         s.cfg.Leverage,
		Notional:         notional,
		Margin:           margin,
		OpenedAt:         now,
		LiquidationPrice: liq,
		markPrice:        entry,
	}, true
}

// closeSlice realizes a partial close of qty at price.
func (s *Simulator) closeSlice(pos *Position, qty, price float64, reason ExitReason, now time.Time) {
	if qty <= 0 {
		return
	}
	pnl := positionPnL(pos.Side, pos.EntryPrice, price, qty)
	mustFinite(pnl, "pnl")

	s.balance += pnl
	if s.balance < 0 {
		panic(fmt.Sprintf("sim: balance went negative (%.4f) closing %s", s.balance, pos.Symbol))
	}
	pos.Qty -= qty
	pos.Notional = pos.Qty * pos.EntryPrice
	pos.Margin = pos.Notional / pos.Leverage

	pnlPct := 0.0
	if pos.EntryPrice > 0 {
		pnlPct = positionPnL(pos.Side, pos.EntryPrice, price, 1) / pos.EntryPrice * 100
	}

	s.trades = append(s.trades, ClosedTrade{
		PositionID:      pos.ID,
		Symbol:          pos.Symbol,
		Side:            pos.Side,
		Qty:             qty,
		EntryPrice:      pos.EntryPrice,
		ExitPrice:       price,
		EntryTime:       pos.OpenedAt,
		ExitTime:        now,
		PnLUSD:          pnl,
		PnLPct:          pnlPct,
		ExitReason:      reason,
		LeverageAtEntry: pos.Leverage,
		StopAtEntry:     pos.InitialStop,
	})
}

// closeRemainder closes everything left in the position and removes it.
func (s *Simulator) closeRemainder(pos *Position, price float64, reason ExitReason, now time.Time) {
	s.closeSlice(pos, pos.Qty, price, reason, now)
	delete(s.positions, pos.Symbol)
}

// freeMargin is equity minus margin locked by open positions.
func (s *Simulator) freeMargin() float64 {
	locked := 0.0
	for _, p := range s.positions {
		locked += p.Margin
	}
	return s.equity - locked
}

// Stats summarizes the run for the result payload.
func (s *Simulator) Stats() map[string]interface{} {
	wins, losses := 0, 0
	for _, t := range s.trades {
		if t.PnLUSD > 0 {
			wins++
		} else {
			losses++
		}
	}
	winRate := 0.0
	if len(s.trades) > 0 {
		winRate = float64(wins) / float64(len(s.trades)) * 100
	}
	return map[string]interface{}{
		"initial_balance": s.cfg.InitialBalance,
		"final_balance":   s.balance,
		"net_return_usd":  s.balance - s.cfg.InitialBalance,
		"net_return_pct":  (s.balance - s.cfg.InitialBalance) / s.cfg.InitialBalance * 100,
		"total_trades":    len(s.trades),
		"win_rate":        winRate,
		"winning_trades":  wins,
		"losing_trades":   losses,
	}
}

// positionPnL computes realized PnL for closing qty at exit.
func positionPnL(side strategy.Side, entry, exit, qty float64) float64 {
	if side == strategy.SideBuy {
		return (exit - entry) * qty
	}
	return (entry - exit) * qty
}

// liquidationPrice uses the linear perpetual formula.
func liquidationPrice(side strategy.Side, entry, leverage, maintRate float64) float64 {
	if leverage <= 1 {
		return 0
	}
	if side == strategy.SideBuy {
		return entry * (1 - 1/leverage + maintRate)
	}
	return entry * (1 + 1/leverage - maintRate)
}

// inRange reports whether price lies inside the candle's [low, high].
func inRange(price float64, c candle.Candle) bool {
	return price > 0 && price >= c.Low && price <= c.High
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func mustFinite(v float64, what string) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		panic(fmt.Sprintf("sim: %s is not finite", what))
	}
}
