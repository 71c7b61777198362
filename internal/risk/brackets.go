package risk

import (
	"errors"

	"github.com/rs/zerolog"

	"futures-controller/internal/leverage"
)

var ErrInvalidATR = errors.New("atr must be positive")

// EntryPlan is a fully priced, fully sized trade ready for execution.
type EntryPlan struct {
	Symbol      string
	Side        leverage.Side
	EntryPrice  float64
	StopPrice   float64
	TargetPrice float64
	Size        float64
}

// PlannerConfig holds bracket and sizing parameters.
type PlannerConfig struct {
	SLATRMultiplier        float64
	TPATRMultiplier        float64
	AccountRiskPerTradePct float64
	MaxPositionNotionalUSD float64
	TradingCapitalUSD      float64
	Leverage               int
}

// Planner turns a trade decision into an EntryPlan: ATR-scaled brackets
// around the entry, sized by the leverage-aware sizer.
type Planner struct {
	cfg    PlannerConfig
	sizer  *leverage.Sizer
	logger zerolog.Logger
}

func NewPlanner(cfg PlannerConfig, sizer *leverage.Sizer, logger zerolog.Logger) *Planner {
	return &Planner{
		cfg:    cfg,
		sizer:  sizer,
		logger: logger.With().Str("component", "entry_planner").Logger(),
	}
}

// ComputeBrackets places the stop and target at ATR multiples of the entry,
// on the protective and profit sides respectively.
func (p *Planner) ComputeBrackets(side leverage.Side, entry, atr float64) (stop, target float64, err error) {
	if atr <= 0 {
		return 0, 0, ErrInvalidATR
	}
	if !side.Valid() {
		return 0, 0, leverage.ErrInvalidSide
	}
	if side == leverage.SideLong {
		stop = entry - p.cfg.SLATRMultiplier*atr
		target = entry + p.cfg.TPATRMultiplier*atr
	} else {
		stop = entry + p.cfg.SLATRMultiplier*atr
		target = entry - p.cfg.TPATRMultiplier*atr
	}
	return stop, target, nil
}

// Plan sizes and brackets a proposed entry. A nil plan with no error means
// the sizer declined the trade; the reason is logged.
func (p *Planner) Plan(symbol string, side leverage.Side, accountBalance, entry, atr float64) (*EntryPlan, error) {
	stop, target, err := p.ComputeBrackets(side, entry, atr)
	if err != nil {
		return nil, err
	}

	sized, err := p.sizer.SizePosition(accountBalance, p.cfg.TradingCapitalUSD,
		p.cfg.Leverage, entry, atr, p.cfg.AccountRiskPerTradePct, side)
	if err != nil {
		return nil, err
	}
	if sized.Amount == 0 || sized.MarginUtilizationPct > leverage.MarginCriticalPct {
		p.logger.Info().
			Str("symbol", symbol).
			Str("reason", sized.Reason).
			Msg("entry declined by sizer")
		return nil, nil
	}

	notional := sized.NotionalUSD
	size := sized.Amount
	if p.cfg.MaxPositionNotionalUSD > 0 && notional > p.cfg.MaxPositionNotionalUSD {
		size = p.cfg.MaxPositionNotionalUSD / entry
	}

	// A stop inside the liquidation buffer is widened to the recommended
	// safe level rather than refused outright.
	if sized.Metrics != nil && sized.Metrics.RecommendedStop != 0 {
		stop = sized.Metrics.RecommendedStop
	}

	return &EntryPlan{
		Symbol:      symbol,
		Side:        side,
		EntryPrice:  entry,
		StopPrice:   stop,
		TargetPrice: target,
		Size:        size,
	}, nil
}
