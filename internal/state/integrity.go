package state

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"futures-controller/internal/exchange"
)

// ErrCriticalIntegrityFault marks persisted state that violates the
// bracket-order invariant. The only valid recovery is an emergency close
// issued before any other trading logic runs.
var ErrCriticalIntegrityFault = errors.New("critical state integrity fault")

// CheckStartupIntegrity verifies that a persisted position, if any, still
// carries both bracket order ids.
func CheckStartupIntegrity(snap *AccountSnapshot, logger zerolog.Logger) error {
	if snap.Position == nil {
		return nil
	}
	if snap.Position.StopOrderID == "" {
		logger.Error().
			Bool("critical", true).
			Str("symbol", snap.Position.Symbol).
			Msg("persisted position has no stop order id")
		return fmt.Errorf("%w: position %s missing stop order id",
			ErrCriticalIntegrityFault, snap.Position.Symbol)
	}
	if snap.Position.TargetOrderID == "" {
		logger.Error().
			Bool("critical", true).
			Str("symbol", snap.Position.Symbol).
			Msg("persisted position has no target order id")
		return fmt.Errorf("%w: position %s missing target order id",
			ErrCriticalIntegrityFault, snap.Position.Symbol)
	}
	return nil
}

// CheckCandleIntegrity verifies that the persisted stop still brackets the
// realized price range since entry. For a long the stop must sit below every
// low seen since entry, for a short above every high. Violations warn only;
// forcing a close here is a product decision that has not been made.
func CheckCandleIntegrity(pos *ActivePosition, candles []exchange.Candle, logger zerolog.Logger) bool {
	if pos == nil || len(candles) == 0 {
		return true
	}

	ok := true
	for _, c := range candles {
		if c.OpenTime.Before(pos.EnteredAt) {
			continue
		}
		switch pos.Direction {
		case "long":
			if pos.StopPrice > c.Low {
				ok = false
			}
		case "short":
			if pos.StopPrice < c.High {
				ok = false
			}
		}
	}
	if !ok {
		logger.Warn().
			Str("symbol", pos.Symbol).
			Str("direction", pos.Direction).
			Float64("stop_price", pos.StopPrice).
			Msg("stop no longer brackets realized price range since entry")
	}
	return ok
}
