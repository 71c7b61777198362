package risk

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"futures-controller/internal/leverage"
	"futures-controller/internal/state"
)

// Breaker identifies which rule tripped.
type Breaker string

const (
	BreakerNone              Breaker = ""
	BreakerDailyTradeCap     Breaker = "daily_trade_cap"
	BreakerLossCooldown      Breaker = "consecutive_loss_cooldown"
	BreakerDrawdownKill      Breaker = "daily_drawdown_kill"
	BreakerMaxHold           Breaker = "max_hold_duration"
	BreakerMarginCritical    Breaker = "margin_utilization_critical"
	BreakerLiquidationBuffer Breaker = "liquidation_buffer_critical"
)

const liquidationBufferCriticalPct = 5.0

// GateConfig holds the breaker thresholds.
type GateConfig struct {
	MaxDailyTrades       int
	MaxConsecutiveLosses int
	CooldownMinutes      int
	DailyDrawdownKillPct float64
	MaxHoldMinutes       int
	MarginDangerPct      float64
	MarginCriticalPct    float64
}

// GateResult is the gate's verdict. ForceClose means the open position must
// be market-closed now, not merely that a new entry is rejected; callers
// must act on it even when no entry was proposed.
type GateResult struct {
	Allowed    bool
	Breaker    Breaker
	Reason     string
	ForceClose bool

	// ResetDailyCount is set when the UTC date rolled over and the caller
	// should persist a zeroed counter for the new date.
	ResetDailyCount bool
	NewTradeDate    string

	// SetCooldownUntil is non-zero when the loss-streak breaker just
	// tripped and the cooldown deadline should be persisted.
	SetCooldownUntil time.Time
}

// Gate evaluates the six safety breakers in fixed order and returns the
// first failure.
type Gate struct {
	cfg    GateConfig
	logger zerolog.Logger
}

func NewGate(cfg GateConfig, logger zerolog.Logger) *Gate {
	return &Gate{
		cfg:    cfg,
		logger: logger.With().Str("component", "circuit_breaker_gate").Logger(),
	}
}

// Evaluate gates a decision cycle. now must be exchange-synced time so the
// daily rollover tracks the exchange's UTC date; markPrice feeds the
// liquidation-buffer breaker.
func (g *Gate) Evaluate(snap *state.AccountSnapshot, now time.Time, markPrice float64) GateResult {
	res := GateResult{Allowed: true}

	// CB1: daily trade cap, reset at UTC date rollover.
	today := now.UTC().Format("2006-01-02")
	count := snap.DailyTradeCount
	if snap.DailyTradeDate != today {
		count = 0
		res.ResetDailyCount = true
		res.NewTradeDate = today
	}
	if count >= g.cfg.MaxDailyTrades {
		return g.reject(res, BreakerDailyTradeCap,
			fmt.Sprintf("daily trade cap reached: %d/%d", count, g.cfg.MaxDailyTrades))
	}

	// CB2: consecutive-loss cooldown. The deadline is recomputed as
	// max(persisted, now+cooldown) on every evaluation, so a stale deadline
	// from an earlier episode never lets a fresh streak through. Recovery
	// comes from the loss streak resetting, not from waiting it out.
	if snap.ConsecutiveLosses >= g.cfg.MaxConsecutiveLosses {
		cooldownUntil := now.Add(time.Duration(g.cfg.CooldownMinutes) * time.Minute)
		if snap.CooldownUntil.After(cooldownUntil) {
			cooldownUntil = snap.CooldownUntil
		}
		if cooldownUntil.After(snap.CooldownUntil) {
			res.SetCooldownUntil = cooldownUntil
		}
		if now.Before(cooldownUntil) {
			return g.reject(res, BreakerLossCooldown,
				fmt.Sprintf("loss streak %d, cooling down until %s",
					snap.ConsecutiveLosses, cooldownUntil.UTC().Format(time.RFC3339)))
		}
	}

	// CB3: 24h drawdown kill-switch.
	if snap.Balance > 0 {
		drawdown := math.Abs(math.Min(0, snap.Rolling24hPnl)) / snap.Balance * 100
		if drawdown >= g.cfg.DailyDrawdownKillPct {
			return g.reject(res, BreakerDrawdownKill,
				fmt.Sprintf("24h drawdown %.2f%% at kill threshold %.2f%%",
					drawdown, g.cfg.DailyDrawdownKillPct))
		}
	}

	// CB4: max hold duration.
	if snap.Position != nil {
		age := now.Sub(snap.Position.EnteredAt)
		if age > time.Duration(g.cfg.MaxHoldMinutes)*time.Minute {
			return g.reject(res, BreakerMaxHold,
				fmt.Sprintf("position open %s, exceeds max hold %dm",
					age.Round(time.Minute), g.cfg.MaxHoldMinutes))
		}
	}

	// CB5: margin utilization critical. Applies even without a proposed
	// entry and demands a forced close.
	util := snap.LeverageState.MarginUtilizationPct
	if util > g.cfg.MarginCriticalPct {
		r := g.reject(res, BreakerMarginCritical,
			fmt.Sprintf("margin utilization %.1f%% above critical %.1f%%",
				util, g.cfg.MarginCriticalPct))
		r.ForceClose = true
		return r
	}
	if util > g.cfg.MarginDangerPct {
		g.logger.Warn().
			Float64("margin_utilization_pct", util).
			Msg("margin utilization in danger zone")
	}

	// CB6: liquidation buffer critical for the open position.
	if snap.Position != nil && markPrice > 0 && snap.LeverageState.LiquidationPrice != 0 {
		side := leverage.Side(snap.Position.Direction)
		buffer := leverage.BufferToLiquidationPct(markPrice, snap.LeverageState.LiquidationPrice, side)
		if buffer < liquidationBufferCriticalPct {
			r := g.reject(res, BreakerLiquidationBuffer,
				fmt.Sprintf("liquidation buffer %.2f%% below critical %.2f%%",
					buffer, liquidationBufferCriticalPct))
			r.ForceClose = true
			return r
		}
		if buffer < leverage.LiquidationBufferPct {
			g.logger.Warn().
				Float64("buffer_pct", buffer).
				Msg("liquidation buffer narrowing")
		}
	}

	return res
}

func (g *Gate) reject(res GateResult, b Breaker, reason string) GateResult {
	g.logger.Warn().
		Str("breaker", string(b)).
		Str("reason", reason).
		Msg("circuit breaker tripped")
	res.Allowed = false
	res.Breaker = b
	res.Reason = reason
	return res
}
