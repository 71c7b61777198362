package executor

import (
	"context"

	"github.com/rs/zerolog"

	"futures-controller/internal/exchange"
	"futures-controller/internal/leverage"
	"futures-controller/internal/risk"
	"futures-controller/internal/state"
)

// bracketStage tracks where in the entry sequence a live execution is.
type bracketStage string

const (
	stageNew               bracketStage = "NEW"
	stageEntrySubmitted    bracketStage = "ENTRY_SUBMITTED"
	stageEntryFilled       bracketStage = "ENTRY_FILLED"
	stageSLSubmitted       bracketStage = "SL_SUBMITTED"
	stageSLConfirmed       bracketStage = "SL_CONFIRMED"
	stageSLFailed          bracketStage = "SL_FAILED"
	stageMarketCloseIssued bracketStage = "MARKET_CLOSE_ISSUED"
	stageTPSubmitted       bracketStage = "TP_SUBMITTED"
	stageBracketed         bracketStage = "BRACKETED"
	stageAborted           bracketStage = "ABORTED"
)

// LiveExecutor places real bracket orders. Its one non-negotiable rule:
// once the entry fills, the position is either protected by a confirmed
// stop order or market-closed before Execute returns. The sequence is not
// cancellable mid-flight; context cancellation is ignored between entry
// fill and stop resolution.
type LiveExecutor struct {
	client       exchange.Client
	takerFeeRate float64
	logger       zerolog.Logger
}

func NewLiveExecutor(client exchange.Client, takerFeeRate float64, logger zerolog.Logger) *LiveExecutor {
	return &LiveExecutor{
		client:       client,
		takerFeeRate: takerFeeRate,
		logger:       logger.With().Str("component", "live_executor").Logger(),
	}
}

func (e *LiveExecutor) Mode() Mode { return ModeLive }

func (e *LiveExecutor) Execute(ctx context.Context, plan *risk.EntryPlan) *Result {
	stage := stageNew
	log := e.logger.With().
		Str("symbol", plan.Symbol).
		Str("side", string(plan.Side)).
		Logger()

	entrySide := exchange.OrderSideBuy
	exitSide := exchange.OrderSideSell
	if plan.Side == leverage.SideShort {
		entrySide = exchange.OrderSideSell
		exitSide = exchange.OrderSideBuy
	}

	// Stage 1: entry. A failure here opens nothing, so it aborts cleanly.
	stage = stageEntrySubmitted
	entry, err := e.client.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol:   plan.Symbol,
		Side:     entrySide,
		Type:     exchange.OrderTypeLimit,
		Quantity: plan.Size,
		Price:    plan.EntryPrice,
	})
	if err != nil || entry == nil || entry.OrderID == "" {
		log.Error().Err(err).Str("stage", string(stage)).Msg("entry order failed")
		return &Result{Reason: "entry order failed"}
	}
	stage = stageEntryFilled

	filledPrice := entry.AvgFillPrice
	if filledPrice == 0 {
		filledPrice = plan.EntryPrice
	}
	fee := filledPrice * plan.Size * e.takerFeeRate

	// Stage 2: the protective stop. From here on the position exists and
	// must not be left unprotected, so cancellation no longer applies.
	stage = stageSLSubmitted
	stop, err := e.client.PlaceOrder(context.WithoutCancel(ctx), exchange.OrderRequest{
		Symbol:     plan.Symbol,
		Side:       exitSide,
		Type:       exchange.OrderTypeStopMarket,
		Quantity:   plan.Size,
		StopPrice:  plan.StopPrice,
		ReduceOnly: true,
	})
	if err != nil || stop == nil || stop.OrderID == "" {
		stage = stageSLFailed
		log.Error().Err(err).
			Bool("critical", true).
			Str("stage", string(stage)).
			Msg("stop order failed, forcing market close of unprotected position")

		stage = stageMarketCloseIssued
		if closeErr := e.marketClose(context.WithoutCancel(ctx), plan.Symbol, exitSide, plan.Size); closeErr != nil {
			log.Error().Err(closeErr).
				Bool("critical", true).
				Str("stage", string(stage)).
				Msg("forced market close failed, position may be unprotected")
			return &Result{
				EntryFilled: true,
				FilledPrice: filledPrice,
				Fee:         fee,
				Reason:      "stop order failed and forced close failed, manual intervention required",
			}
		}
		stage = stageAborted
		return &Result{
			EntryFilled: true,
			FilledPrice: filledPrice,
			Fee:         fee,
			Reason:      "stop order failed, position market-closed",
		}
	}
	stage = stageSLConfirmed

	// Stage 3: take profit. Failure is non-fatal, the stop already
	// protects the position; the caller retries target placement.
	stage = stageTPSubmitted
	target, err := e.client.PlaceOrder(context.WithoutCancel(ctx), exchange.OrderRequest{
		Symbol:     plan.Symbol,
		Side:       exitSide,
		Type:       exchange.OrderTypeTakeProfit,
		Quantity:   plan.Size,
		StopPrice:  plan.TargetPrice,
		ReduceOnly: true,
	})
	targetID := ""
	reason := ""
	if err != nil || target == nil || target.OrderID == "" {
		log.Error().Err(err).Str("stage", string(stage)).
			Msg("take-profit order failed, position remains stop-protected")
		reason = "take-profit placement failed, retry required"
	} else {
		targetID = target.OrderID
	}
	stage = stageBracketed

	log.Info().
		Str("stage", string(stage)).
		Float64("fill", filledPrice).
		Str("stop_order_id", stop.OrderID).
		Str("target_order_id", targetID).
		Msg("bracket sequence complete")

	return &Result{
		Success:       true,
		EntryFilled:   true,
		FilledPrice:   filledPrice,
		Fee:           fee,
		StopOrderID:   stop.OrderID,
		TargetOrderID: targetID,
		Reason:        reason,
	}
}

// PlaceTarget retries the take-profit leg for an already stop-protected
// position.
func (e *LiveExecutor) PlaceTarget(ctx context.Context, pos *state.ActivePosition) (string, error) {
	exitSide := exchange.OrderSideSell
	if pos.Direction == "short" {
		exitSide = exchange.OrderSideBuy
	}
	target, err := e.client.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol:     pos.Symbol,
		Side:       exitSide,
		Type:       exchange.OrderTypeTakeProfit,
		Quantity:   pos.Size,
		StopPrice:  pos.TargetPrice,
		ReduceOnly: true,
	})
	if err != nil {
		return "", err
	}
	if target.OrderID == "" {
		return "", exchange.ErrMissingOrderID
	}
	return target.OrderID, nil
}

// ClosePosition cancels the brackets and market-closes the position.
func (e *LiveExecutor) ClosePosition(ctx context.Context, pos *state.ActivePosition, markPrice float64) *Result {
	log := e.logger.With().Str("symbol", pos.Symbol).Logger()

	for _, orderID := range []string{pos.StopOrderID, pos.TargetOrderID} {
		if orderID == "" {
			continue
		}
		if err := e.client.CancelOrder(ctx, pos.Symbol, orderID); err != nil {
			log.Warn().Err(err).Str("order_id", orderID).Msg("bracket cancel failed, continuing with close")
		}
	}

	exitSide := exchange.OrderSideSell
	if pos.Direction == "short" {
		exitSide = exchange.OrderSideBuy
	}
	if err := e.marketClose(ctx, pos.Symbol, exitSide, pos.Size); err != nil {
		log.Error().Err(err).Bool("critical", true).Msg("market close failed")
		return &Result{Reason: "market close failed: " + err.Error()}
	}

	fee := markPrice * pos.Size * e.takerFeeRate
	return &Result{
		Success:     true,
		FilledPrice: markPrice,
		Fee:         fee,
		RealizedPnl: realizedPnl(pos, markPrice) - fee,
	}
}

func (e *LiveExecutor) marketClose(ctx context.Context, symbol string, side exchange.OrderSide, size float64) error {
	_, err := e.client.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol:     symbol,
		Side:       side,
		Type:       exchange.OrderTypeMarket,
		Quantity:   size,
		ReduceOnly: true,
	})
	return err
}
