package signals

import (
	"context"

	"github.com/rs/zerolog"

	"futures-controller/internal/controller"
	"futures-controller/internal/exchange"
	"futures-controller/internal/leverage"
)

// MomentumProvider is a deliberately simple moving-average crossover
// signal. The engine treats any provider as an opaque decision source;
// this one exists so the controller has something to run against.
type MomentumProvider struct {
	fastPeriod int
	slowPeriod int
	logger     zerolog.Logger
}

func NewMomentumProvider(fastPeriod, slowPeriod int, logger zerolog.Logger) *MomentumProvider {
	return &MomentumProvider{
		fastPeriod: fastPeriod,
		slowPeriod: slowPeriod,
		logger:     logger.With().Str("component", "momentum_signal").Logger(),
	}
}

func (p *MomentumProvider) Next(ctx context.Context, candles []exchange.Candle) (*controller.Decision, error) {
	if len(candles) < p.slowPeriod+1 {
		return nil, nil
	}

	fastNow := sma(candles, p.fastPeriod, 0)
	slowNow := sma(candles, p.slowPeriod, 0)
	fastPrev := sma(candles, p.fastPeriod, 1)
	slowPrev := sma(candles, p.slowPeriod, 1)

	var side leverage.Side
	switch {
	case fastPrev <= slowPrev && fastNow > slowNow:
		side = leverage.SideLong
	case fastPrev >= slowPrev && fastNow < slowNow:
		side = leverage.SideShort
	default:
		return nil, nil
	}

	score := 0.0
	if slowNow > 0 {
		score = (fastNow - slowNow) / slowNow
		if side == leverage.SideShort {
			score = -score
		}
	}

	p.logger.Debug().
		Str("side", string(side)).
		Float64("score", score).
		Msg("crossover signal")

	return &controller.Decision{Side: side, CompositeScore: score}, nil
}

// sma averages the last period closes, shifted back by offset candles.
func sma(candles []exchange.Candle, period, offset int) float64 {
	end := len(candles) - offset
	start := end - period
	if start < 0 {
		return 0
	}
	sum := 0.0
	for i := start; i < end; i++ {
		sum += candles[i].Close
	}
	return sum / float64(period)
}
