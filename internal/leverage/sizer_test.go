package leverage

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
)

func TestSizePositionRiskBudget(t *testing.T) {
	s := NewSizer(zerolog.Nop())

	// 10000 balance at 2% risk gives 200, times 5x leverage is 1000,
	// under the 4000 leveraged-capital cap.
	res, err := s.SizePosition(10000, 1000, 5, 50000, 50, 2, SideLong)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.NotionalUSD != 1000 {
		t.Errorf("expected notional 1000, got %f", res.NotionalUSD)
	}
	if math.Abs(res.Amount-0.02) > 1e-9 {
		t.Errorf("expected amount 0.02, got %f", res.Amount)
	}
	// 1000 of capital backing a 1000 notional is 100% utilization.
	if math.Abs(res.MarginUtilizationPct-100) > 1e-9 {
		t.Errorf("expected margin utilization 100, got %f", res.MarginUtilizationPct)
	}
}

func TestSizePositionMarginCriticalRefusal(t *testing.T) {
	s := NewSizer(zerolog.Nop())

	// Unleveraged 10% risk sizes an 800 notional against 1000 of capital,
	// 125% utilization, past the 95% critical threshold.
	res, err := s.SizePosition(10000, 1000, 1, 50000, 50, 10, SideLong)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.MarginUtilizationPct <= MarginCriticalPct {
		t.Fatalf("expected utilization above %f, got %f", MarginCriticalPct, res.MarginUtilizationPct)
	}
	if res.IsSafe {
		t.Error("critical margin utilization must refuse the trade")
	}
	if res.Reason == "" {
		t.Error("refusal should carry a reason")
	}

	// A 4000 notional on the same capital sits at 25% and passes.
	res, err = s.SizePosition(100000, 1000, 5, 50000, 50, 2, SideLong)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(res.MarginUtilizationPct-25) > 1e-9 {
		t.Errorf("expected margin utilization 25, got %f", res.MarginUtilizationPct)
	}
	if !res.IsSafe {
		t.Errorf("healthy utilization should pass, reason: %s", res.Reason)
	}
}

func TestSizePositionNotionalCap(t *testing.T) {
	s := NewSizer(zerolog.Nop())

	// 50% risk on a large balance would blow past the capital cap.
	res, err := s.SizePosition(100000, 1000, 5, 50000, 50, 50, SideLong)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.NotionalUSD != 4000 {
		t.Errorf("expected notional capped at 4000, got %f", res.NotionalUSD)
	}
}

func TestSizePositionDustFloor(t *testing.T) {
	s := NewSizer(zerolog.Nop())

	res, err := s.SizePosition(100, 1000, 1, 50000, 50, 1, SideLong)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Amount != 0 {
		t.Errorf("dust notional should size to zero, got %f", res.Amount)
	}
	if res.Reason == "" {
		t.Error("dust result should carry a reason")
	}
}

func TestSizePositionInvalidLeverage(t *testing.T) {
	s := NewSizer(zerolog.Nop())

	if _, err := s.SizePosition(10000, 1000, 25, 50000, 50, 2, SideLong); err == nil {
		t.Error("expected error for leverage above 20")
	}
	if _, err := s.SizePosition(10000, 1000, 0, 50000, 50, 2, SideShort); err == nil {
		t.Error("expected error for leverage below 1")
	}
}

func TestSizePositionShortSide(t *testing.T) {
	s := NewSizer(zerolog.Nop())

	res, err := s.SizePosition(10000, 1000, 5, 50000, 50, 2, SideShort)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Metrics.LiquidationPrice <= 50000 {
		t.Errorf("short liquidation should be above entry, got %f", res.Metrics.LiquidationPrice)
	}
}
