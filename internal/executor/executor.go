package executor

import (
	"context"

	"futures-controller/internal/risk"
	"futures-controller/internal/state"
)

// Mode selects the execution implementation.
type Mode string

const (
	ModeGhost    Mode = "ghost"
	ModePaper    Mode = "paper"
	ModeBacktest Mode = "backtest"
	ModeLive     Mode = "live"
)

// Result is every mode's answer to an execution request. Expected
// rejections come back as Success=false with a reason, never as an error.
// EntryFilled stays true on aborted live brackets whose entry executed
// before the failure, so those still count against the daily trade cap.
type Result struct {
	Success       bool
	EntryFilled   bool
	FilledPrice   float64
	Fee           float64
	RealizedPnl   float64
	StopOrderID   string
	TargetOrderID string
	Reason        string
}

// Executor places an entry plan and closes positions. Implementations
// differ only in whether orders are real and how fills are modeled.
type Executor interface {
	Mode() Mode
	Execute(ctx context.Context, plan *risk.EntryPlan) *Result
	ClosePosition(ctx context.Context, pos *state.ActivePosition, markPrice float64) *Result
}
