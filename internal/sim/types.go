package sim

import (
	"time"

	"liquidity-sniper/internal/strategy"
)

// ExitReason is stamped on every closed trade.
type ExitReason string

const (
	ExitTP1         ExitReason = "TP1"
	ExitTP2         ExitReason = "TP2"
	ExitTP3         ExitReason = "TP3"
	ExitStopLoss    ExitReason = "STOP_LOSS"
	ExitLiquidation ExitReason = "LIQUIDATION"
	ExitTimeout     ExitReason = "TIMEOUT"
	ExitManual      ExitReason = "MANUAL"
)

// SameCandlePriority names the resolution order when stop-loss and
// take-profit both lie inside one candle's range.
type SameCandlePriority string

const (
	StopFirst SameCandlePriority = "stop_first" // conservative default
	TPFirst   SameCandlePriority = "tp_first"
)

// Position is one open trade. Exactly one position per symbol exists at any
// time; only the simulator mutates it.
type Position struct {
	ID               string
	Symbol           string
	Side             strategy.Side
	Qty              float64 // remaining quantity
	OriginalQty      float64
	EntryPrice       float64
	StopLoss         float64
	InitialStop      float64
	TPLevels         strategy.TPLevels
	RemainingTPSizes [3]float64 // fractions of OriginalQty
	Leverage         float64
	Notional         float64
	Margin           float64
	OpenedAt         time.Time
	LiquidationPrice float64

	markPrice float64
}

// ClosedTrade is one entry in the append-only trade ledger.
type ClosedTrade struct {
	PositionID      string        `json:"trade_id"`
	Symbol          string        `json:"symbol"`
	Side            strategy.Side `json:"side"`
	Qty             float64       `json:"position_size"`
	EntryPrice      float64       `json:"entry_price"`
	ExitPrice       float64       `json:"exit_price"`
	EntryTime       time.Time     `json:"entry_time"`
	ExitTime        time.Time     `json:"exit_time"`
	PnLUSD          float64       `json:"pnl_usd"`
	PnLPct          float64       `json:"pnl_pct"`
	ExitReason      ExitReason    `json:"exit_reason"`
	LeverageAtEntry float64       `json:"leverage_at_entry"`
	StopAtEntry     float64       `json:"-"`
}

// EquityPoint is one mark-to-market sample of the portfolio.
type EquityPoint struct {
	Time   time.Time `json:"time"`
	Equity float64   `json:"balance"`
}

// pendingOrder is a parked limit entry waiting for price to reach it.
type pendingOrder struct {
	position    *Position
	signal      *strategy.Signal
	candlesLeft int
}
