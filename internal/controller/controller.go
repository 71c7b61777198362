package controller

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog"

	"futures-controller/internal/exchange"
	"futures-controller/internal/executor"
	"futures-controller/internal/journal"
	"futures-controller/internal/leverage"
	"futures-controller/internal/risk"
	"futures-controller/internal/state"
)

// Decision is the opaque output of the signal generator. The controller
// does not look inside the score; it only sizes, gates and executes.
type Decision struct {
	Side            leverage.Side
	CompositeScore  float64
	SuggestedStop   float64
	SuggestedTarget float64
}

// SignalProvider produces at most one decision per cycle. A nil decision
// means no trade is favored.
type SignalProvider interface {
	Next(ctx context.Context, candles []exchange.Candle) (*Decision, error)
}

// MarkPriceSource is anything that can answer "what is the mark price now".
type MarkPriceSource interface {
	Latest() (price float64, age time.Duration)
}

const markPriceMaxAge = 30 * time.Second

// Controller runs the decision cycle: snapshot, gate, size, execute,
// write back. One instance owns one account.
type Controller struct {
	symbol   string
	interval time.Duration

	store    *state.Store
	gate     *risk.Gate
	planner  *risk.Planner
	exec     executor.Executor
	liveExec *executor.LiveExecutor
	client   exchange.Client
	signals  SignalProvider
	marks    MarkPriceSource
	journal  *journal.Journal

	openTradeID int64
	logger      zerolog.Logger
}

type Options struct {
	Symbol        string
	CycleInterval time.Duration
	Store         *state.Store
	Gate          *risk.Gate
	Planner       *risk.Planner
	Executor      executor.Executor
	Client        exchange.Client
	Signals       SignalProvider
	Marks         MarkPriceSource
	Journal       *journal.Journal
	Logger        zerolog.Logger
}

func New(opts Options) *Controller {
	c := &Controller{
		symbol:   opts.Symbol,
		interval: opts.CycleInterval,
		store:    opts.Store,
		gate:     opts.Gate,
		planner:  opts.Planner,
		exec:     opts.Executor,
		client:   opts.Client,
		signals:  opts.Signals,
		marks:    opts.Marks,
		journal:  opts.Journal,
		logger:   opts.Logger.With().Str("component", "controller").Logger(),
	}
	if live, ok := opts.Executor.(*executor.LiveExecutor); ok {
		c.liveExec = live
	}
	return c
}

// Startup verifies persisted state before the first cycle. A position
// missing either bracket id is a critical fault whose only recovery is
// an emergency close issued right here.
func (c *Controller) Startup(ctx context.Context) error {
	snap, err := c.store.ReadSnapshot(ctx)
	if err != nil {
		return err
	}

	if err := state.CheckStartupIntegrity(snap, c.logger); err != nil {
		if !errors.Is(err, state.ErrCriticalIntegrityFault) {
			return err
		}
		c.logger.Error().
			Bool("critical", true).
			Msg("integrity fault on startup, issuing emergency close before trading")
		c.emergencyClose(ctx, snap, "startup integrity fault")
	}

	c.syncAccountBalance(ctx)
	return nil
}

// syncAccountBalance refreshes the persisted balance from the exchange so
// sizing and the drawdown breaker work from real numbers instead of
// whatever the store last held.
func (c *Controller) syncAccountBalance(ctx context.Context) {
	bal, err := c.client.FetchBalance(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("balance sync failed, keeping persisted balance")
		return
	}
	if bal == nil || bal.WalletBalance <= 0 {
		return
	}
	if err := c.store.SetBalance(ctx, bal.WalletBalance); err != nil {
		c.logger.Warn().Err(err).Msg("failed to persist synced balance")
	}
}

// reconcileExchangePosition guards live entries against an exchange-side
// position the store does not know about, such as one left behind when a
// take-profit leg could not be placed.
func (c *Controller) reconcileExchangePosition(ctx context.Context) bool {
	positions, err := c.client.FetchPositions(ctx, c.symbol)
	if err != nil {
		c.logger.Warn().Err(err).Msg("position reconciliation failed, refusing new entry")
		return false
	}
	for _, p := range positions {
		if p.PositionAmt != 0 {
			c.logger.Error().
				Bool("critical", true).
				Float64("position_amt", p.PositionAmt).
				Msg("untracked exchange position, refusing new entry until resolved")
			return false
		}
	}
	return true
}

// RunCycle executes one decision cycle against current state.
func (c *Controller) RunCycle(ctx context.Context) error {
	if c.liveExec != nil {
		c.syncAccountBalance(ctx)
	}

	snap, err := c.store.ReadSnapshot(ctx)
	if err != nil {
		return err
	}
	if !snap.AutomationEnabled {
		c.logger.Debug().Msg("automation disabled, skipping cycle")
		return nil
	}

	markPrice := c.markPrice(ctx)

	candles, err := c.client.FetchCandles(ctx, c.symbol, "1m", 100)
	if err != nil {
		// Transient data failures get neutral fallbacks, never a hard stop.
		c.logger.Info().Err(err).Msg("candle fetch failed, continuing without candles")
		candles = nil
	}
	state.CheckCandleIntegrity(snap.Position, candles, c.logger)

	now := time.Now().UTC()
	if syncer, ok := c.client.(interface{ ExchangeNow() time.Time }); ok {
		now = syncer.ExchangeNow().UTC()
	}

	gateRes := c.gate.Evaluate(snap, now, markPrice)
	c.persistGateUpdates(ctx, gateRes)

	if gateRes.ForceClose && snap.Position != nil {
		c.logger.Warn().
			Str("breaker", string(gateRes.Breaker)).
			Msg("breaker demands forced close")
		c.closePosition(ctx, snap, markPrice, gateRes.Reason)
		return nil
	}
	if !gateRes.Allowed {
		return nil
	}

	if snap.Position != nil {
		// One position at a time; nothing more to do this cycle.
		return nil
	}

	if c.liveExec != nil && !c.reconcileExchangePosition(ctx) {
		return nil
	}

	decision, err := c.signals.Next(ctx, candles)
	if err != nil {
		c.logger.Info().Err(err).Msg("signal provider failed, skipping cycle")
		return nil
	}
	if decision == nil {
		return nil
	}

	return c.enter(ctx, snap, decision, markPrice, candles, now)
}

// Run drives cycles on the configured interval until cancelled.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.Startup(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.RunCycle(ctx); err != nil {
				c.logger.Error().Err(err).Msg("decision cycle failed")
			}
		}
	}
}

func (c *Controller) enter(ctx context.Context, snap *state.AccountSnapshot, decision *Decision, markPrice float64, candles []exchange.Candle, now time.Time) error {
	entry := markPrice
	if entry <= 0 {
		c.logger.Warn().Msg("no usable mark price, skipping entry")
		return nil
	}

	atr := atrFromCandles(candles, 14)
	if atr <= 0 {
		if decision.SuggestedStop > 0 {
			atr = math.Abs(entry-decision.SuggestedStop) / 1.5
		}
		if atr <= 0 {
			c.logger.Warn().Msg("no volatility estimate available, skipping entry")
			return nil
		}
	}

	plan, err := c.planner.Plan(c.symbol, decision.Side, snap.Balance, entry, atr)
	if err != nil {
		c.logger.Error().Err(err).Msg("planning failed")
		return nil
	}
	if plan == nil {
		return nil
	}

	res := c.exec.Execute(ctx, plan)
	if res.EntryFilled {
		// Aborted brackets whose entry filled still consumed a real
		// execution, so they count against the daily cap too.
		c.bumpDailyTrades(ctx, snap, now)
	}
	if !res.Success {
		c.logger.Error().Str("reason", res.Reason).Msg("execution failed")
		return nil
	}

	// A stopped-but-untargeted live position gets one immediate TP retry.
	if res.TargetOrderID == "" && c.liveExec != nil {
		pos := &state.ActivePosition{
			Symbol:      plan.Symbol,
			Direction:   string(plan.Side),
			TargetPrice: plan.TargetPrice,
			Size:        plan.Size,
		}
		if id, err := c.liveExec.PlaceTarget(ctx, pos); err != nil {
			c.logger.Error().Err(err).Msg("take-profit retry failed, position remains stop-protected")
		} else {
			res.TargetOrderID = id
		}
	}

	pos := &state.ActivePosition{
		Symbol:        plan.Symbol,
		Direction:     string(plan.Side),
		EntryPrice:    res.FilledPrice,
		StopPrice:     plan.StopPrice,
		TargetPrice:   plan.TargetPrice,
		Size:          plan.Size,
		EnteredAt:     now,
		StopOrderID:   res.StopOrderID,
		TargetOrderID: res.TargetOrderID,
	}
	if res.TargetOrderID == "" {
		// The record would violate the bracket invariant; the exchange
		// position stays stop-protected and the reconciliation guard keeps
		// new entries out until it is resolved.
		c.logger.Error().
			Bool("critical", true).
			Msg("position opened without target order id, not persisting record")
	} else if err := c.store.SaveActivePosition(ctx, pos); err != nil {
		c.logger.Error().Err(err).Msg("failed to persist active position")
	}

	c.updateLeverageState(ctx, plan, res)

	if c.journal != nil {
		id, err := c.journal.RecordOpen(ctx, journal.TradeRecord{
			Symbol:     plan.Symbol,
			Direction:  string(plan.Side),
			Mode:       string(c.exec.Mode()),
			EntryPrice: res.FilledPrice,
			Size:       plan.Size,
			Fee:        res.Fee,
			OpenedAt:   now,
		})
		if err != nil {
			c.logger.Warn().Err(err).Msg("failed to journal trade open")
		} else {
			c.openTradeID = id
		}
	}

	c.logger.Info().
		Str("side", string(plan.Side)).
		Float64("fill", res.FilledPrice).
		Float64("size", plan.Size).
		Msg("position opened")
	return nil
}

func (c *Controller) closePosition(ctx context.Context, snap *state.AccountSnapshot, markPrice float64, reason string) {
	res := c.exec.ClosePosition(ctx, snap.Position, markPrice)
	if !res.Success {
		c.logger.Error().
			Bool("critical", true).
			Str("reason", res.Reason).
			Msg("forced close failed")
		return
	}
	c.recordClose(ctx, snap, res, reason)
}

func (c *Controller) emergencyClose(ctx context.Context, snap *state.AccountSnapshot, reason string) {
	if snap.Position == nil {
		if err := c.store.ClearActivePosition(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("failed to clear position record")
		}
		return
	}
	markPrice := c.markPrice(ctx)
	if markPrice <= 0 {
		markPrice = snap.Position.EntryPrice
	}
	c.closePosition(ctx, snap, markPrice, reason)
}

func (c *Controller) recordClose(ctx context.Context, snap *state.AccountSnapshot, res *executor.Result, reason string) {
	if err := c.store.ClearActivePosition(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("failed to clear position record")
	}

	losses := snap.ConsecutiveLosses
	if res.RealizedPnl < 0 {
		losses++
	} else if res.RealizedPnl > 0 {
		losses = 0
	}
	if err := c.store.SetConsecutiveLosses(ctx, losses); err != nil {
		c.logger.Warn().Err(err).Msg("failed to persist loss streak")
	}
	if err := c.store.SetRolling24hPnl(ctx, snap.Rolling24hPnl+res.RealizedPnl); err != nil {
		c.logger.Warn().Err(err).Msg("failed to persist rolling pnl")
	}
	if err := c.store.SetBalance(ctx, snap.Balance+res.RealizedPnl); err != nil {
		c.logger.Warn().Err(err).Msg("failed to persist balance")
	}

	rt := snap.Risk
	rt.DailyRealizedPnl += res.RealizedPnl
	rt.LossStreak = losses
	rt.EquityCurve = append(rt.EquityCurve, snap.Balance+res.RealizedPnl)
	if err := c.store.SetRiskTracking(ctx, rt); err != nil {
		c.logger.Warn().Err(err).Msg("failed to persist risk tracking")
	}
	if err := c.store.SetLeverageState(ctx, state.LeverageState{}); err != nil {
		c.logger.Warn().Err(err).Msg("failed to clear leverage state")
	}

	if c.journal != nil && c.openTradeID != 0 {
		if err := c.journal.RecordClose(ctx, c.openTradeID, res.FilledPrice, res.Fee,
			res.RealizedPnl, reason, time.Now().UTC()); err != nil {
			c.logger.Warn().Err(err).Msg("failed to journal trade close")
		}
		c.openTradeID = 0
	}
	if c.journal != nil {
		if err := c.journal.SampleEquity(ctx, snap.Balance+res.RealizedPnl, 0); err != nil {
			c.logger.Warn().Err(err).Msg("failed to sample equity")
		}
	}

	c.logger.Info().
		Float64("pnl", res.RealizedPnl).
		Str("reason", reason).
		Msg("position closed")
}

func (c *Controller) bumpDailyTrades(ctx context.Context, snap *state.AccountSnapshot, now time.Time) {
	today := now.Format("2006-01-02")
	count := snap.DailyTradeCount
	if snap.DailyTradeDate != today {
		count = 0
	}
	if err := c.store.SetDailyTrades(ctx, count+1, today); err != nil {
		c.logger.Warn().Err(err).Msg("failed to persist daily trade count")
	}
}

func (c *Controller) persistGateUpdates(ctx context.Context, res risk.GateResult) {
	if res.ResetDailyCount {
		if err := c.store.SetDailyTrades(ctx, 0, res.NewTradeDate); err != nil {
			c.logger.Warn().Err(err).Msg("failed to persist daily counter reset")
		}
	}
	if !res.SetCooldownUntil.IsZero() {
		if err := c.store.SetCooldownUntil(ctx, res.SetCooldownUntil); err != nil {
			c.logger.Warn().Err(err).Msg("failed to persist cooldown deadline")
		}
	}
}

func (c *Controller) updateLeverageState(ctx context.Context, plan *risk.EntryPlan, res *executor.Result) {
	snapCfg, err := c.store.ReadSnapshot(ctx)
	if err != nil {
		return
	}
	lev := snapCfg.Leverage.Leverage
	if lev == 0 {
		lev = leverage.MinLeverage
	}
	// The isolated margin backing the position is the configured trading
	// capital, the same reading the sizer refuses on.
	collateral := snapCfg.Leverage.TradingCapitalUSD
	liq, err := leverage.LiquidationPrice(plan.Side, res.FilledPrice, collateral, plan.Size)
	if err != nil {
		return
	}
	marginUtil := leverage.MarginUtilizationPct(collateral, plan.Size*res.FilledPrice)
	st := state.LeverageState{
		CurrentLeverage:      lev,
		LiquidationPrice:     liq,
		MarginUtilizationPct: marginUtil,
		CollateralUsedUSD:    collateral,
		MaxNotionalUSD:       snapCfg.Leverage.TradingCapitalUSD * float64(lev) * 0.8,
	}
	if err := c.store.SetLeverageState(ctx, st); err != nil {
		c.logger.Warn().Err(err).Msg("failed to persist leverage state")
	}
}

func (c *Controller) markPrice(ctx context.Context) float64 {
	if c.marks != nil {
		if price, age := c.marks.Latest(); price > 0 && age < markPriceMaxAge {
			return price
		}
	}
	price, err := c.client.FetchMarkPrice(ctx, c.symbol)
	if err != nil {
		c.logger.Info().Err(err).Msg("mark price fetch failed")
		return 0
	}
	return price
}

// atrFromCandles is a simple ATR over the last period true ranges.
func atrFromCandles(candles []exchange.Candle, period int) float64 {
	if len(candles) < period+1 {
		return 0
	}
	start := len(candles) - period
	sum := 0.0
	for i := start; i < len(candles); i++ {
		highLow := candles[i].High - candles[i].Low
		highClose := math.Abs(candles[i].High - candles[i-1].Close)
		lowClose := math.Abs(candles[i].Low - candles[i-1].Close)
		sum += math.Max(highLow, math.Max(highClose, lowClose))
	}
	return sum / float64(period)
}
