package executor

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"futures-controller/internal/risk"
	"futures-controller/internal/state"
)

// BacktestExecutor fills at exactly the requested price. Replay has no
// execution uncertainty, so only the maker fee is charged.
type BacktestExecutor struct {
	makerFeeRate float64
	logger       zerolog.Logger
}

func NewBacktestExecutor(makerFeeRate float64, logger zerolog.Logger) *BacktestExecutor {
	return &BacktestExecutor{
		makerFeeRate: makerFeeRate,
		logger:       logger.With().Str("component", "backtest_executor").Logger(),
	}
}

func (e *BacktestExecutor) Mode() Mode { return ModeBacktest }

func (e *BacktestExecutor) Execute(ctx context.Context, plan *risk.EntryPlan) *Result {
	fee := plan.EntryPrice * plan.Size * e.makerFeeRate
	return &Result{
		Success:       true,
		EntryFilled:   true,
		FilledPrice:   plan.EntryPrice,
		Fee:           fee,
		StopOrderID:   "backtest-" + uuid.NewString(),
		TargetOrderID: "backtest-" + uuid.NewString(),
	}
}

func (e *BacktestExecutor) ClosePosition(ctx context.Context, pos *state.ActivePosition, markPrice float64) *Result {
	fee := markPrice * pos.Size * e.makerFeeRate
	return &Result{
		Success:     true,
		FilledPrice: markPrice,
		Fee:         fee,
		RealizedPnl: realizedPnl(pos, markPrice) - fee,
	}
}
