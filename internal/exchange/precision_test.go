package exchange

import "testing"

func TestPriceToPrecisionSnapsToTick(t *testing.T) {
	p := newPrecisionTable()

	if got := p.PriceToPrecision("BTCUSDT", 50000.17); got != 50000.1 {
		t.Errorf("expected 50000.1, got %v", got)
	}
	if got := p.PriceToPrecision("BTCUSDT", 50000.0); got != 50000.0 {
		t.Errorf("on-grid price must be unchanged, got %v", got)
	}
}

func TestAmountToPrecisionFloors(t *testing.T) {
	p := newPrecisionTable()

	// Always floors so a snapped order can never exceed intended size.
	if got := p.AmountToPrecision("BTCUSDT", 0.0299); got != 0.029 {
		t.Errorf("expected 0.029, got %v", got)
	}
	if got := p.AmountToPrecision("BTCUSDT", 0.02); got != 0.02 {
		t.Errorf("on-grid amount must be unchanged, got %v", got)
	}
}

func TestPrecisionUnknownSymbolPassthrough(t *testing.T) {
	p := newPrecisionTable()

	if got := p.PriceToPrecision("ETHUSDT", 1234.5678); got != 1234.5678 {
		t.Errorf("unknown symbol must pass through, got %v", got)
	}
}

func TestSetFilterOverrides(t *testing.T) {
	p := newPrecisionTable()
	if err := p.SetFilter("ETHUSDT", "0.01", "0.01"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := p.AmountToPrecision("ETHUSDT", 1.237); got != 1.23 {
		t.Errorf("expected 1.23, got %v", got)
	}
}
