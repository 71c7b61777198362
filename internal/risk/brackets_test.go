package risk

import (
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"

	"futures-controller/internal/leverage"
)

func testPlanner() *Planner {
	cfg := PlannerConfig{
		SLATRMultiplier:        1.5,
		TPATRMultiplier:        3.0,
		AccountRiskPerTradePct: 2.0,
		MaxPositionNotionalUSD: 400,
		TradingCapitalUSD:      200,
		Leverage:               5,
	}
	return NewPlanner(cfg, leverage.NewSizer(zerolog.Nop()), zerolog.Nop())
}

func TestComputeBracketsLong(t *testing.T) {
	p := testPlanner()

	stop, target, err := p.ComputeBrackets(leverage.SideLong, 50000, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stop != 49850 {
		t.Errorf("expected stop 49850, got %f", stop)
	}
	if target != 50300 {
		t.Errorf("expected target 50300, got %f", target)
	}
}

func TestComputeBracketsShort(t *testing.T) {
	p := testPlanner()

	stop, target, err := p.ComputeBrackets(leverage.SideShort, 50000, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stop != 50150 {
		t.Errorf("expected stop 50150, got %f", stop)
	}
	if target != 49700 {
		t.Errorf("expected target 49700, got %f", target)
	}
}

func TestComputeBracketsInvalidATR(t *testing.T) {
	p := testPlanner()

	if _, _, err := p.ComputeBrackets(leverage.SideLong, 50000, 0); !errors.Is(err, ErrInvalidATR) {
		t.Errorf("expected ErrInvalidATR, got %v", err)
	}
}

func TestPlanCapsNotional(t *testing.T) {
	p := testPlanner()

	plan, err := p.Plan("BTCUSDT", leverage.SideLong, 10000, 50000, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan == nil {
		t.Fatal("expected a plan")
	}
	// Sizer yields 800 notional at the leveraged-capital cap, then the
	// 400 position cap shrinks the size.
	if math.Abs(plan.Size-400.0/50000) > 1e-9 {
		t.Errorf("expected size capped to 0.008, got %f", plan.Size)
	}
	if plan.StopPrice >= plan.EntryPrice || plan.TargetPrice <= plan.EntryPrice {
		t.Errorf("long brackets out of order: stop %f entry %f target %f",
			plan.StopPrice, plan.EntryPrice, plan.TargetPrice)
	}
}

func TestPlanDeclinesDust(t *testing.T) {
	p := testPlanner()

	plan, err := p.Plan("BTCUSDT", leverage.SideLong, 50, 50000, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan != nil {
		t.Errorf("dust-sized entry should be declined, got %+v", plan)
	}
}
