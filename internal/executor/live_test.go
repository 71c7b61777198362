package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"futures-controller/internal/exchange"
	"futures-controller/internal/leverage"
	"futures-controller/internal/risk"
	"futures-controller/internal/state"
)

func testPlan() *risk.EntryPlan {
	return &risk.EntryPlan{
		Symbol:      "BTCUSDT",
		Side:        leverage.SideLong,
		EntryPrice:  50000,
		StopPrice:   49000,
		TargetPrice: 53000,
		Size:        0.02,
	}
}

func TestLiveExecuteFullBracket(t *testing.T) {
	mock := exchange.NewMockClient()
	e := NewLiveExecutor(mock, 0.0004, zerolog.Nop())

	res := e.Execute(context.Background(), testPlan())
	if !res.Success {
		t.Fatalf("expected success, got reason %q", res.Reason)
	}
	if res.StopOrderID == "" || res.TargetOrderID == "" {
		t.Errorf("expected both bracket ids, got stop=%q target=%q", res.StopOrderID, res.TargetOrderID)
	}
	if len(mock.PlacedOrders) != 3 {
		t.Errorf("expected entry, stop and target orders, got %d", len(mock.PlacedOrders))
	}
	if mock.PlacedOrders[1].Type != exchange.OrderTypeStopMarket || !mock.PlacedOrders[1].ReduceOnly {
		t.Errorf("second order should be a reduce-only stop, got %+v", mock.PlacedOrders[1])
	}
}

func TestLiveStopFailureForcesMarketClose(t *testing.T) {
	mock := exchange.NewMockClient()
	mock.FailOrderTypes[exchange.OrderTypeStopMarket] = errors.New("transport error")
	e := NewLiveExecutor(mock, 0.0004, zerolog.Nop())

	res := e.Execute(context.Background(), testPlan())
	if res.Success {
		t.Fatal("stop failure must never report success")
	}
	if res.StopOrderID != "" {
		t.Errorf("no stop order id may surface, got %q", res.StopOrderID)
	}
	if !res.EntryFilled {
		t.Error("aborted bracket must still report the filled entry")
	}

	closes := 0
	for _, req := range mock.PlacedOrders {
		if req.Type == exchange.OrderTypeMarket && req.ReduceOnly {
			closes++
			if req.Side != exchange.OrderSideSell {
				t.Errorf("long position must close with a sell, got %s", req.Side)
			}
		}
	}
	if closes != 1 {
		t.Errorf("expected exactly one forced market close, got %d", closes)
	}
}

func TestLiveEntryFailureOpensNothing(t *testing.T) {
	mock := exchange.NewMockClient()
	mock.FailOrderTypes[exchange.OrderTypeLimit] = errors.New("transport error")
	e := NewLiveExecutor(mock, 0.0004, zerolog.Nop())

	res := e.Execute(context.Background(), testPlan())
	if res.Success {
		t.Fatal("entry failure must not report success")
	}
	if res.EntryFilled {
		t.Error("a rejected entry fills nothing")
	}
	if len(mock.PlacedOrders) != 1 {
		t.Errorf("failed entry must not be followed by more orders, got %d", len(mock.PlacedOrders))
	}
}

func TestLiveTargetFailureIsNonFatal(t *testing.T) {
	mock := exchange.NewMockClient()
	mock.FailOrderTypes[exchange.OrderTypeTakeProfit] = errors.New("transport error")
	e := NewLiveExecutor(mock, 0.0004, zerolog.Nop())

	res := e.Execute(context.Background(), testPlan())
	if !res.Success {
		t.Fatalf("target failure should stay successful, got reason %q", res.Reason)
	}
	if res.StopOrderID == "" {
		t.Error("stop order id must be present")
	}
	if res.TargetOrderID != "" {
		t.Error("target order id must be empty after target failure")
	}
	if res.Reason == "" {
		t.Error("caller must be told to retry target placement")
	}

	// No forced close: the stop still protects the position.
	for _, req := range mock.PlacedOrders {
		if req.Type == exchange.OrderTypeMarket {
			t.Errorf("no market close expected, got %+v", req)
		}
	}
}

func TestLiveClosePositionCancelsBrackets(t *testing.T) {
	mock := exchange.NewMockClient()
	e := NewLiveExecutor(mock, 0.0004, zerolog.Nop())

	pos := &state.ActivePosition{
		Symbol:        "BTCUSDT",
		Direction:     "long",
		EntryPrice:    50000,
		StopPrice:     49000,
		TargetPrice:   53000,
		Size:          0.02,
		EnteredAt:     time.Now(),
		StopOrderID:   "sl-1",
		TargetOrderID: "tp-1",
	}
	res := e.ClosePosition(context.Background(), pos, 51000)
	if !res.Success {
		t.Fatalf("expected close to succeed, got %q", res.Reason)
	}
	if len(mock.CancelledIDs) != 2 {
		t.Errorf("expected both brackets cancelled, got %v", mock.CancelledIDs)
	}
	if res.RealizedPnl <= 0 {
		t.Errorf("long closed above entry should profit, got %f", res.RealizedPnl)
	}
}

func TestPlaceTargetRetry(t *testing.T) {
	mock := exchange.NewMockClient()
	e := NewLiveExecutor(mock, 0.0004, zerolog.Nop())

	pos := &state.ActivePosition{
		Symbol:      "BTCUSDT",
		Direction:   "short",
		TargetPrice: 47000,
		Size:        0.02,
	}
	id, err := e.PlaceTarget(context.Background(), pos)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "" {
		t.Error("expected a target order id")
	}
	last := mock.PlacedOrders[len(mock.PlacedOrders)-1]
	if last.Side != exchange.OrderSideBuy {
		t.Errorf("short target must be a buy, got %s", last.Side)
	}
}
