package executor

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"futures-controller/internal/governor"
	"futures-controller/internal/state"
)

func TestGhostFillSlippage(t *testing.T) {
	e := NewGhostExecutor(&SignalLedger{}, zerolog.Nop())

	res := e.Execute(context.Background(), testPlan())
	if !res.Success {
		t.Fatalf("ghost execution should always succeed, got %q", res.Reason)
	}
	want := 50000 * 1.0004
	if math.Abs(res.FilledPrice-want) > 1e-6 {
		t.Errorf("expected long fill %f with adverse slippage, got %f", want, res.FilledPrice)
	}
	wantFee := res.FilledPrice * 0.02 * 0.0004
	if math.Abs(res.Fee-wantFee) > 1e-9 {
		t.Errorf("expected fee %f, got %f", wantFee, res.Fee)
	}
}

func TestGhostLedgerTracksCloses(t *testing.T) {
	ledger := &SignalLedger{}
	e := NewGhostExecutor(ledger, zerolog.Nop())

	pos := &state.ActivePosition{
		Symbol:     "BTCUSDT",
		Direction:  "long",
		EntryPrice: 50000,
		Size:       0.02,
		EnteredAt:  time.Now(),
	}
	res := e.ClosePosition(context.Background(), pos, 52000)
	if !res.Success {
		t.Fatal("ghost close should succeed")
	}
	if res.RealizedPnl <= 0 {
		t.Errorf("close above entry should profit, got %f", res.RealizedPnl)
	}

	total, trades, winRate := ledger.Stats()
	if trades != 1 || total != res.RealizedPnl || winRate != 100 {
		t.Errorf("ledger out of sync: total=%f trades=%d winRate=%f", total, trades, winRate)
	}
}

func TestPaperRoutesThroughGovernor(t *testing.T) {
	gov := governor.New(10, 10*time.Second, zerolog.Nop())
	e := NewPaperExecutor(gov, zerolog.Nop())

	res := e.Execute(context.Background(), testPlan())
	if !res.Success {
		t.Fatalf("paper execution should succeed, got %q", res.Reason)
	}
	if gov.InFlight() != 1 {
		t.Errorf("paper entry must consume a governor slot, in flight %d", gov.InFlight())
	}

	want := 50000 * 1.0005
	if math.Abs(res.FilledPrice-want) > 1e-6 {
		t.Errorf("expected paper fill %f, got %f", want, res.FilledPrice)
	}
}

func TestBacktestExactFill(t *testing.T) {
	e := NewBacktestExecutor(0.0002, zerolog.Nop())

	res := e.Execute(context.Background(), testPlan())
	if !res.Success {
		t.Fatal("backtest execution should succeed")
	}
	if res.FilledPrice != 50000 {
		t.Errorf("backtest must fill at the requested price, got %f", res.FilledPrice)
	}
	if math.Abs(res.Fee-50000*0.02*0.0002) > 1e-9 {
		t.Errorf("expected maker fee only, got %f", res.Fee)
	}
}
