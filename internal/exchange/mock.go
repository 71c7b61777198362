package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockClient is an in-memory exchange for tests and mock mode. Failure
// injection is per order type so bracket-leg failures can be simulated.
type MockClient struct {
	mu sync.Mutex

	Balance   Balance
	MarkPrice float64
	Candles   []Candle
	precision *precisionTable

	orders    map[string]*Order
	positions map[string]*Position

	// FailOrderTypes makes PlaceOrder fail for the listed order types.
	FailOrderTypes map[OrderType]error

	PlacedOrders []OrderRequest
	CancelledIDs []string
}

func NewMockClient() *MockClient {
	return &MockClient{
		Balance: Balance{
			Asset:            "USDT",
			WalletBalance:    10000,
			AvailableBalance: 10000,
		},
		MarkPrice:      50000,
		precision:      newPrecisionTable(),
		orders:         make(map[string]*Order),
		positions:      make(map[string]*Position),
		FailOrderTypes: make(map[OrderType]error),
	}
}

func (m *MockClient) FetchBalance(ctx context.Context) (*Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.Balance
	return &b, nil
}

func (m *MockClient) FetchPositions(ctx context.Context, symbol string) ([]Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Position
	for _, p := range m.positions {
		if symbol == "" || p.Symbol == symbol {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *MockClient) FetchMarkPrice(ctx context.Context, symbol string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.MarkPrice, nil
}

func (m *MockClient) FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Candles) > limit {
		return m.Candles[len(m.Candles)-limit:], nil
	}
	return m.Candles, nil
}

func (m *MockClient) FetchServerTime(ctx context.Context) (time.Time, error) {
	return time.Now(), nil
}

func (m *MockClient) PlaceOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PlacedOrders = append(m.PlacedOrders, req)

	if err, ok := m.FailOrderTypes[req.Type]; ok {
		if err == nil {
			err = fmt.Errorf("simulated %s failure", req.Type)
		}
		return nil, err
	}

	fillPrice := req.Price
	if req.Type == OrderTypeMarket {
		fillPrice = m.MarkPrice
	}
	order := &Order{
		OrderID:       uuid.NewString(),
		ClientOrderID: uuid.NewString(),
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Price:         req.Price,
		StopPrice:     req.StopPrice,
		Quantity:      req.Quantity,
		ExecutedQty:   req.Quantity,
		AvgFillPrice:  fillPrice,
		Status:        "FILLED",
		ReduceOnly:    req.ReduceOnly,
		CreatedAt:     time.Now(),
	}
	m.orders[order.OrderID] = order

	if !req.ReduceOnly && (req.Type == OrderTypeLimit || req.Type == OrderTypeMarket) {
		amt := req.Quantity
		if req.Side == OrderSideSell {
			amt = -amt
		}
		m.positions[req.Symbol] = &Position{
			Symbol:      req.Symbol,
			PositionAmt: amt,
			EntryPrice:  fillPrice,
			MarkPrice:   m.MarkPrice,
		}
	}
	if req.ReduceOnly && req.Type == OrderTypeMarket {
		delete(m.positions, req.Symbol)
	}

	return order, nil
}

func (m *MockClient) CancelOrder(ctx context.Context, symbol, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CancelledIDs = append(m.CancelledIDs, orderID)
	delete(m.orders, orderID)
	return nil
}

func (m *MockClient) PriceToPrecision(symbol string, price float64) float64 {
	return m.precision.PriceToPrecision(symbol, price)
}

func (m *MockClient) AmountToPrecision(symbol string, amount float64) float64 {
	return m.precision.AmountToPrecision(symbol, amount)
}
