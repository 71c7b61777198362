package leverage

import (
	"github.com/rs/zerolog"
)

const (
	// notionalHeadroom keeps 20% of collateral capacity undeployed so a
	// single fill can never exhaust the margin pool.
	notionalHeadroom = 0.8

	// minNotionalUSD is the dust floor below which no order is worth placing.
	minNotionalUSD = 10.0

	// defaultStopATRMult places the safety-validation stop at 1.5 ATR
	// from entry when the caller has not chosen one yet.
	defaultStopATRMult = 1.5
)

// SizingResult is the sizer's answer to "how big, and is it safe".
// A zero Amount with Reason set means "no position", not an error.
type SizingResult struct {
	Amount               float64
	NotionalUSD          float64
	CollateralUSD        float64
	MarginUtilizationPct float64
	Metrics              *LiquidationMetrics
	IsSafe               bool
	Reason               string
}

// Sizer computes risk-based, leverage-aware position sizes.
type Sizer struct {
	logger zerolog.Logger
}

func NewSizer(logger zerolog.Logger) *Sizer {
	return &Sizer{
		logger: logger.With().Str("component", "position_sizer").Logger(),
	}
}

// SizePosition sizes a position from account risk and leverage limits.
// Notional is capped both by the per-trade risk budget scaled by leverage
// and by 80% of the total leveraged capital.
func (s *Sizer) SizePosition(accountBalance, tradingCapital float64, lev int, entryPrice, atrStopDistance, maxRiskPct float64, side Side) (*SizingResult, error) {
	if lev < MinLeverage || lev > MaxLeverage {
		return nil, ErrInvalidLeverage
	}
	if !side.Valid() {
		return nil, ErrInvalidSide
	}
	if entryPrice <= 0 {
		return nil, ErrInvalidAmount
	}

	riskAmount := accountBalance * maxRiskPct / 100
	maxNotional := tradingCapital * float64(lev) * notionalHeadroom

	notional := riskAmount * float64(lev)
	if notional > maxNotional {
		notional = maxNotional
	}

	if notional < minNotionalUSD {
		s.logger.Debug().
			Float64("notional", notional).
			Msg("notional below dust floor, skipping position")
		return &SizingResult{Reason: "notional below minimum order size"}, nil
	}

	amount := notional / entryPrice

	// The whole trading capital backs the position as isolated margin, so
	// utilization is capital over notional. A reading near or above 100%
	// means the position is too small to justify the margin it locks.
	collateral := tradingCapital
	marginUtil := MarginUtilizationPct(collateral, notional)

	var stop float64
	if side == SideLong {
		stop = entryPrice - defaultStopATRMult*atrStopDistance
	} else {
		stop = entryPrice + defaultStopATRMult*atrStopDistance
	}

	metrics, err := ValidateStopSafety(entryPrice, stop, collateral, amount, side, lev)
	if err != nil {
		return nil, err
	}
	metrics.MarginUtilizationPct = marginUtil

	result := &SizingResult{
		Amount:               amount,
		NotionalUSD:          notional,
		CollateralUSD:        collateral,
		MarginUtilizationPct: marginUtil,
		Metrics:              metrics,
		IsSafe:               metrics.IsSafe,
	}

	if marginUtil > MarginCriticalPct {
		result.IsSafe = false
		result.Reason = "margin utilization above critical threshold"
		s.logger.Warn().
			Float64("margin_utilization_pct", marginUtil).
			Msg("sizing refused, margin utilization critical")
	} else if marginUtil > MarginDangerPct {
		s.logger.Warn().
			Float64("margin_utilization_pct", marginUtil).
			Msg("margin utilization in danger zone")
	}

	if !metrics.IsSafe {
		result.Reason = "stop too close to liquidation price"
		s.logger.Warn().
			Float64("liquidation_price", metrics.LiquidationPrice).
			Float64("recommended_stop", metrics.RecommendedStop).
			Msg("default stop fails liquidation buffer check")
	}

	return result, nil
}
