package risk

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"futures-controller/internal/state"
)

func testGateConfig() GateConfig {
	return GateConfig{
		MaxDailyTrades:       10,
		MaxConsecutiveLosses: 3,
		CooldownMinutes:      45,
		DailyDrawdownKillPct: 2.0,
		MaxHoldMinutes:       90,
		MarginDangerPct:      90,
		MarginCriticalPct:    95,
	}
}

func healthySnapshot() *state.AccountSnapshot {
	return &state.AccountSnapshot{
		AutomationEnabled: true,
		Balance:           10000,
		DailyTradeCount:   2,
		DailyTradeDate:    time.Now().UTC().Format("2006-01-02"),
	}
}

func TestGatePassesHealthyState(t *testing.T) {
	g := NewGate(testGateConfig(), zerolog.Nop())

	res := g.Evaluate(healthySnapshot(), time.Now().UTC(), 50000)
	if !res.Allowed {
		t.Errorf("healthy state should pass, tripped %s: %s", res.Breaker, res.Reason)
	}
}

func TestDailyTradeCapShortCircuits(t *testing.T) {
	g := NewGate(testGateConfig(), zerolog.Nop())
	now := time.Now().UTC()

	// Every other breaker is also in a tripped condition; CB1 must win.
	snap := &state.AccountSnapshot{
		Balance:           10000,
		Rolling24hPnl:     -500,
		DailyTradeCount:   10,
		DailyTradeDate:    now.Format("2006-01-02"),
		ConsecutiveLosses: 5,
		CooldownUntil:     now.Add(time.Hour),
		Position: &state.ActivePosition{
			Symbol:        "BTCUSDT",
			Direction:     "long",
			EnteredAt:     now.Add(-3 * time.Hour),
			StopOrderID:   "sl",
			TargetOrderID: "tp",
		},
		LeverageState: state.LeverageState{
			MarginUtilizationPct: 99,
			LiquidationPrice:     49900,
		},
	}

	res := g.Evaluate(snap, now, 50000)
	if res.Allowed {
		t.Fatal("expected rejection")
	}
	if res.Breaker != BreakerDailyTradeCap {
		t.Errorf("expected daily trade cap to short-circuit, got %s", res.Breaker)
	}
}

func TestDailyCapResetsOnUTCDateRollover(t *testing.T) {
	g := NewGate(testGateConfig(), zerolog.Nop())
	now := time.Now().UTC()

	snap := healthySnapshot()
	snap.DailyTradeCount = 10
	snap.DailyTradeDate = now.AddDate(0, 0, -1).Format("2006-01-02")

	res := g.Evaluate(snap, now, 50000)
	if !res.Allowed {
		t.Errorf("rolled-over date should clear the cap, tripped %s", res.Breaker)
	}
	if !res.ResetDailyCount {
		t.Error("expected a daily counter reset signal")
	}
	if res.NewTradeDate != now.Format("2006-01-02") {
		t.Errorf("expected new trade date %s, got %s", now.Format("2006-01-02"), res.NewTradeDate)
	}
}

func TestLossCooldownTripsAndSetsDeadline(t *testing.T) {
	g := NewGate(testGateConfig(), zerolog.Nop())
	now := time.Now().UTC()

	snap := healthySnapshot()
	snap.ConsecutiveLosses = 3

	res := g.Evaluate(snap, now, 50000)
	if res.Allowed {
		t.Fatal("loss streak at threshold should trip")
	}
	if res.Breaker != BreakerLossCooldown {
		t.Errorf("expected loss cooldown breaker, got %s", res.Breaker)
	}
	want := now.Add(45 * time.Minute)
	if res.SetCooldownUntil.IsZero() || res.SetCooldownUntil.Before(want.Add(-time.Second)) {
		t.Errorf("expected cooldown deadline near %v, got %v", want, res.SetCooldownUntil)
	}
}

func TestLossCooldownIgnoresStaleDeadline(t *testing.T) {
	g := NewGate(testGateConfig(), zerolog.Nop())
	now := time.Now().UTC()

	// A deadline left over from an earlier, fully served cooldown episode
	// must not let a fresh streak trade immediately.
	snap := healthySnapshot()
	snap.ConsecutiveLosses = 3
	snap.CooldownUntil = now.Add(-2 * time.Hour)

	res := g.Evaluate(snap, now, 50000)
	if res.Allowed {
		t.Fatal("fresh loss streak with a stale deadline must cool down again")
	}
	if res.Breaker != BreakerLossCooldown {
		t.Errorf("expected loss cooldown breaker, got %s", res.Breaker)
	}
	want := now.Add(45 * time.Minute)
	if res.SetCooldownUntil.Before(want.Add(-time.Second)) {
		t.Errorf("expected extended deadline near %v, got %v", want, res.SetCooldownUntil)
	}
}

func TestLossCooldownRecoversOnStreakReset(t *testing.T) {
	g := NewGate(testGateConfig(), zerolog.Nop())
	now := time.Now().UTC()

	snap := healthySnapshot()
	snap.ConsecutiveLosses = 0
	snap.CooldownUntil = now.Add(-time.Minute)

	res := g.Evaluate(snap, now, 50000)
	if !res.Allowed {
		t.Errorf("cleared streak should pass, tripped %s", res.Breaker)
	}
}

func TestDrawdownKillSwitch(t *testing.T) {
	g := NewGate(testGateConfig(), zerolog.Nop())

	snap := healthySnapshot()
	snap.Rolling24hPnl = -200 // 2% of 10000

	res := g.Evaluate(snap, time.Now().UTC(), 50000)
	if res.Allowed {
		t.Fatal("2% drawdown at kill threshold should trip")
	}
	if res.Breaker != BreakerDrawdownKill {
		t.Errorf("expected drawdown kill breaker, got %s", res.Breaker)
	}
}

func TestDrawdownIgnoresPositivePnl(t *testing.T) {
	g := NewGate(testGateConfig(), zerolog.Nop())

	snap := healthySnapshot()
	snap.Rolling24hPnl = 500

	res := g.Evaluate(snap, time.Now().UTC(), 50000)
	if !res.Allowed {
		t.Errorf("positive PnL must not count as drawdown, tripped %s", res.Breaker)
	}
}

func TestMaxHoldDuration(t *testing.T) {
	g := NewGate(testGateConfig(), zerolog.Nop())
	now := time.Now().UTC()

	snap := healthySnapshot()
	snap.Position = &state.ActivePosition{
		Symbol:        "BTCUSDT",
		Direction:     "long",
		EnteredAt:     now.Add(-2 * time.Hour),
		StopOrderID:   "sl",
		TargetOrderID: "tp",
	}

	res := g.Evaluate(snap, now, 50000)
	if res.Allowed {
		t.Fatal("position past max hold should trip")
	}
	if res.Breaker != BreakerMaxHold {
		t.Errorf("expected max hold breaker, got %s", res.Breaker)
	}
	if res.ForceClose {
		t.Error("max hold is a new-entry gate, not a force close")
	}
}

func TestMarginCriticalForcesClose(t *testing.T) {
	g := NewGate(testGateConfig(), zerolog.Nop())

	snap := healthySnapshot()
	snap.LeverageState.MarginUtilizationPct = 96

	res := g.Evaluate(snap, time.Now().UTC(), 50000)
	if res.Allowed {
		t.Fatal("critical margin utilization should trip")
	}
	if res.Breaker != BreakerMarginCritical {
		t.Errorf("expected margin critical breaker, got %s", res.Breaker)
	}
	if !res.ForceClose {
		t.Error("critical margin must demand a forced close")
	}
}

func TestLiquidationBufferForcesClose(t *testing.T) {
	g := NewGate(testGateConfig(), zerolog.Nop())
	now := time.Now().UTC()

	snap := healthySnapshot()
	snap.Position = &state.ActivePosition{
		Symbol:        "BTCUSDT",
		Direction:     "long",
		EnteredAt:     now.Add(-time.Minute),
		StopOrderID:   "sl",
		TargetOrderID: "tp",
	}
	snap.LeverageState.LiquidationPrice = 49000

	// Mark price 2% above liquidation, inside the 5% critical band.
	res := g.Evaluate(snap, now, 49980)
	if res.Allowed {
		t.Fatal("thin liquidation buffer should trip")
	}
	if res.Breaker != BreakerLiquidationBuffer {
		t.Errorf("expected liquidation buffer breaker, got %s", res.Breaker)
	}
	if !res.ForceClose {
		t.Error("critical liquidation buffer must demand a forced close")
	}
}
