package executor

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"futures-controller/internal/governor"
	"futures-controller/internal/risk"
	"futures-controller/internal/state"
)

const (
	// Paper mode models slightly worse slippage than ghost so paper
	// results stay conservative.
	paperSlippagePct = 0.0005
	paperFeePct      = 0.0004
)

// PaperExecutor simulates fills but routes through the rate governor so
// throttling behaves exactly as it would live.
type PaperExecutor struct {
	governor *governor.Governor
	logger   zerolog.Logger
}

func NewPaperExecutor(gov *governor.Governor, logger zerolog.Logger) *PaperExecutor {
	return &PaperExecutor{
		governor: gov,
		logger:   logger.With().Str("component", "paper_executor").Logger(),
	}
}

func (e *PaperExecutor) Mode() Mode { return ModePaper }

func (e *PaperExecutor) Execute(ctx context.Context, plan *risk.EntryPlan) *Result {
	if err := e.governor.Acquire(ctx, "paper_entry"); err != nil {
		return &Result{Reason: "cancelled while throttled: " + err.Error()}
	}

	fill := simulatedFill(plan.Side, plan.EntryPrice, paperSlippagePct)
	fee := fill * plan.Size * paperFeePct

	e.logger.Info().
		Str("symbol", plan.Symbol).
		Str("side", string(plan.Side)).
		Float64("fill", fill).
		Float64("fee", fee).
		Msg("paper fill simulated")

	return &Result{
		Success:       true,
		EntryFilled:   true,
		FilledPrice:   fill,
		Fee:           fee,
		StopOrderID:   "paper-" + uuid.NewString(),
		TargetOrderID: "paper-" + uuid.NewString(),
	}
}

func (e *PaperExecutor) ClosePosition(ctx context.Context, pos *state.ActivePosition, markPrice float64) *Result {
	if err := e.governor.Acquire(ctx, "paper_close"); err != nil {
		return &Result{Reason: "cancelled while throttled: " + err.Error()}
	}

	fill := simulatedFill(closeSide(pos.Direction), markPrice, paperSlippagePct)
	fee := fill * pos.Size * paperFeePct
	pnl := realizedPnl(pos, fill) - fee

	e.logger.Info().
		Str("symbol", pos.Symbol).
		Float64("fill", fill).
		Float64("pnl", pnl).
		Msg("paper close simulated")

	return &Result{
		Success:     true,
		FilledPrice: fill,
		Fee:         fee,
		RealizedPnl: pnl,
	}
}
