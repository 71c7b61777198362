package exchange

import (
	"sync"

	"github.com/shopspring/decimal"
)

// symbolFilter holds the price tick and quantity step for one symbol.
type symbolFilter struct {
	tickSize decimal.Decimal
	stepSize decimal.Decimal
}

// precisionTable rounds prices and quantities to exchange filters using
// decimal arithmetic so repeated rounding never drifts.
type precisionTable struct {
	mu      sync.RWMutex
	filters map[string]symbolFilter
}

func newPrecisionTable() *precisionTable {
	return &precisionTable{
		filters: map[string]symbolFilter{
			// Seed for the primary market; SetFilter overrides from exchangeInfo.
			"BTCUSDT": {
				tickSize: decimal.RequireFromString("0.10"),
				stepSize: decimal.RequireFromString("0.001"),
			},
		},
	}
}

func (p *precisionTable) SetFilter(symbol, tickSize, stepSize string) error {
	tick, err := decimal.NewFromString(tickSize)
	if err != nil {
		return err
	}
	step, err := decimal.NewFromString(stepSize)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.filters[symbol] = symbolFilter{tickSize: tick, stepSize: step}
	p.mu.Unlock()
	return nil
}

// PriceToPrecision floors a price onto the symbol's tick grid.
func (p *precisionTable) PriceToPrecision(symbol string, price float64) float64 {
	p.mu.RLock()
	f, ok := p.filters[symbol]
	p.mu.RUnlock()
	if !ok || f.tickSize.IsZero() {
		return price
	}
	d := decimal.NewFromFloat(price)
	snapped := d.Div(f.tickSize).Floor().Mul(f.tickSize)
	v, _ := snapped.Float64()
	return v
}

// AmountToPrecision floors a quantity onto the symbol's step grid.
// Flooring, never rounding up, so an order cannot exceed intended size.
func (p *precisionTable) AmountToPrecision(symbol string, amount float64) float64 {
	p.mu.RLock()
	f, ok := p.filters[symbol]
	p.mu.RUnlock()
	if !ok || f.stepSize.IsZero() {
		return amount
	}
	d := decimal.NewFromFloat(amount)
	snapped := d.Div(f.stepSize).Floor().Mul(f.stepSize)
	v, _ := snapped.Float64()
	return v
}
