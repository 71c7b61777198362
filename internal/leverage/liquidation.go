package leverage

import (
	"errors"
	"fmt"
	"math"
)

const (
	// LiquidationBufferPct is the minimum distance, as a percentage of the
	// liquidation price, that a stop must keep from liquidation.
	LiquidationBufferPct = 10.0

	// MarginDangerPct and MarginCriticalPct are the utilization thresholds
	// at which warnings and hard refusals kick in.
	MarginDangerPct   = 90.0
	MarginCriticalPct = 95.0

	MinLeverage = 1
	MaxLeverage = 20
)

var (
	ErrInvalidAmount   = errors.New("position amount must be positive")
	ErrInvalidSide     = errors.New("side must be long or short")
	ErrInvalidLeverage = fmt.Errorf("leverage must be between %d and %d", MinLeverage, MaxLeverage)
)

type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

func (s Side) Valid() bool {
	return s == SideLong || s == SideShort
}

// LiquidationMetrics is the full safety picture for a proposed stop,
// recomputed on every sizing request and never persisted as-is.
type LiquidationMetrics struct {
	LiquidationPrice     float64
	BufferPrice          float64
	BufferPct            float64
	MarginUtilizationPct float64
	IsSafe               bool
	RecommendedStop      float64
}

// LiquidationPrice returns the price at which an isolated position's margin
// reaches zero. Long positions liquidate below entry, shorts above.
func LiquidationPrice(side Side, entry, collateral, amount float64) (float64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	switch side {
	case SideLong:
		return entry - collateral/amount, nil
	case SideShort:
		return entry + collateral/amount, nil
	default:
		return 0, ErrInvalidSide
	}
}

// MarginUtilizationPct returns collateral as a percentage of notional,
// clamped to 0 when notional is not positive.
func MarginUtilizationPct(collateral, notional float64) float64 {
	if notional <= 0 {
		return 0
	}
	return collateral / notional * 100
}

// BufferToLiquidationPct measures how far the current price sits from
// liquidation, as a percentage of the liquidation price. A breached buffer
// reports 0, never a negative value.
func BufferToLiquidationPct(current, liquidation float64, side Side) float64 {
	denom := math.Abs(liquidation)
	if denom == 0 {
		return 0
	}
	var pct float64
	switch side {
	case SideLong:
		pct = (current - liquidation) / denom * 100
	case SideShort:
		pct = (liquidation - current) / denom * 100
	default:
		return 0
	}
	if pct < 0 {
		return 0
	}
	return pct
}

// ValidateStopSafety checks that a stop keeps at least LiquidationBufferPct
// distance from the liquidation price. When the stop is too close it returns
// IsSafe=false together with a recommended stop moved to the safe side.
func ValidateStopSafety(entry, stop, collateral, amount float64, side Side, lev int) (*LiquidationMetrics, error) {
	if lev < MinLeverage || lev > MaxLeverage {
		return nil, ErrInvalidLeverage
	}
	liq, err := LiquidationPrice(side, entry, collateral, amount)
	if err != nil {
		return nil, err
	}

	absLiq := math.Abs(liq)
	required := absLiq * LiquidationBufferPct / 100

	var distance float64
	switch side {
	case SideLong:
		distance = stop - liq
	case SideShort:
		distance = liq - stop
	}

	m := &LiquidationMetrics{
		LiquidationPrice: liq,
		BufferPrice:      distance,
		BufferPct:        BufferToLiquidationPct(stop, liq, side),
		IsSafe:           distance >= required,
	}
	if !m.IsSafe {
		if side == SideLong {
			m.RecommendedStop = liq + required
		} else {
			m.RecommendedStop = liq - required
		}
	}
	return m, nil
}
