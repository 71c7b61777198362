package executor

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"futures-controller/internal/leverage"
	"futures-controller/internal/risk"
	"futures-controller/internal/state"
)

const (
	ghostSlippagePct = 0.0004
	ghostFeePct      = 0.0004
)

// GhostExecutor simulates fills without placing orders or consuming rate
// budget. Outcomes feed the signal-quality ledger only.
type GhostExecutor struct {
	ledger *SignalLedger
	logger zerolog.Logger
}

func NewGhostExecutor(ledger *SignalLedger, logger zerolog.Logger) *GhostExecutor {
	return &GhostExecutor{
		ledger: ledger,
		logger: logger.With().Str("component", "ghost_executor").Logger(),
	}
}

func (e *GhostExecutor) Mode() Mode { return ModeGhost }

func (e *GhostExecutor) Execute(ctx context.Context, plan *risk.EntryPlan) *Result {
	fill := simulatedFill(plan.Side, plan.EntryPrice, ghostSlippagePct)
	fee := fill * plan.Size * ghostFeePct

	e.logger.Info().
		Str("symbol", plan.Symbol).
		Str("side", string(plan.Side)).
		Float64("fill", fill).
		Float64("fee", fee).
		Msg("ghost fill simulated")

	return &Result{
		Success:       true,
		EntryFilled:   true,
		FilledPrice:   fill,
		Fee:           fee,
		StopOrderID:   "ghost-" + uuid.NewString(),
		TargetOrderID: "ghost-" + uuid.NewString(),
	}
}

func (e *GhostExecutor) ClosePosition(ctx context.Context, pos *state.ActivePosition, markPrice float64) *Result {
	side := closeSide(pos.Direction)
	fill := simulatedFill(side, markPrice, ghostSlippagePct)
	fee := fill * pos.Size * ghostFeePct
	pnl := realizedPnl(pos, fill) - fee

	e.ledger.Record(pnl)
	total, trades, winRate := e.ledger.Stats()
	e.logger.Info().
		Str("symbol", pos.Symbol).
		Float64("pnl", pnl).
		Float64("ledger_pnl", total).
		Int("ledger_trades", trades).
		Float64("ledger_win_rate", winRate).
		Msg("ghost close recorded")

	return &Result{
		Success:     true,
		FilledPrice: fill,
		Fee:         fee,
		RealizedPnl: pnl,
	}
}

// simulatedFill applies direction-dependent adverse slippage.
func simulatedFill(side leverage.Side, price, slippagePct float64) float64 {
	if side == leverage.SideLong {
		return price * (1 + slippagePct)
	}
	return price * (1 - slippagePct)
}

// closeSide is the side of the order that exits a position.
func closeSide(direction string) leverage.Side {
	if direction == "long" {
		return leverage.SideShort
	}
	return leverage.SideLong
}

func realizedPnl(pos *state.ActivePosition, exitPrice float64) float64 {
	if pos.Direction == "long" {
		return (exitPrice - pos.EntryPrice) * pos.Size
	}
	return (pos.EntryPrice - exitPrice) * pos.Size
}
