package state

import "time"

// ActivePosition is the persisted record of the one open position.
// Both bracket order ids must be non-empty from the moment the record
// exists; startup integrity enforces this.
type ActivePosition struct {
	Symbol        string    `json:"symbol"`
	Direction     string    `json:"direction"` // long or short
	EntryPrice    float64   `json:"entry_price"`
	StopPrice     float64   `json:"stop_price"`
	TargetPrice   float64   `json:"target_price"`
	Size          float64   `json:"size"`
	EnteredAt     time.Time `json:"entered_at"`
	StopOrderID   string    `json:"stop_order_id"`
	TargetOrderID string    `json:"target_order_id"`
}

// LeverageSettings is the persisted leverage configuration.
type LeverageSettings struct {
	TradingCapitalUSD float64 `json:"trading_capital_usd"`
	Leverage          int     `json:"leverage"`
	MaxRiskPct        float64 `json:"max_risk_pct"`
	MaxDrawdownPct    float64 `json:"max_drawdown_pct"`
	MarginMode        string  `json:"margin_mode"`
}

// LeverageState is the persisted derived margin state for the open position.
type LeverageState struct {
	CurrentLeverage      int     `json:"current_leverage"`
	LiquidationPrice     float64 `json:"liquidation_price"`
	MarginUtilizationPct float64 `json:"margin_utilization_pct"`
	CollateralUsedUSD    float64 `json:"collateral_used_usd"`
	MaxNotionalUSD       float64 `json:"max_notional_usd"`
}

// RiskTracking holds the running loss bookkeeping.
type RiskTracking struct {
	DailyRealizedPnl float64   `json:"daily_realized_pnl"`
	UnrealizedPnl    float64   `json:"unrealized_pnl"`
	LossStreak       int       `json:"loss_streak"`
	EquityCurve      []float64 `json:"equity_curve"`
}

// AccountSnapshot is the full account state read at the start of each
// decision cycle. Fields are written back individually by outcomes.
type AccountSnapshot struct {
	AutomationEnabled bool
	Balance           float64
	Rolling24hPnl     float64
	DailyTradeCount   int
	DailyTradeDate    string // UTC date, YYYY-MM-DD, exchange-synced
	ConsecutiveLosses int
	CooldownUntil     time.Time
	Position          *ActivePosition
	Leverage          LeverageSettings
	LeverageState     LeverageState
	Risk              RiskTracking
}
