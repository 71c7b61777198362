package exchange

import (
	"context"
	"errors"
	"time"
)

var (
	ErrOrderRejected  = errors.New("order rejected by exchange")
	ErrMissingOrderID = errors.New("exchange returned no order id")
)

// Client is the exchange surface the engine consumes. Trading calls are
// rate-governed by the implementation; market-data reads are not.
type Client interface {
	FetchBalance(ctx context.Context) (*Balance, error)
	FetchPositions(ctx context.Context, symbol string) ([]Position, error)
	FetchMarkPrice(ctx context.Context, symbol string) (float64, error)
	FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	FetchServerTime(ctx context.Context) (time.Time, error)

	PlaceOrder(ctx context.Context, req OrderRequest) (*Order, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error

	PriceToPrecision(symbol string, price float64) float64
	AmountToPrecision(symbol string, amount float64) float64
}
