package exchange

import "time"

type OrderType string

const (
	OrderTypeLimit      OrderType = "LIMIT"
	OrderTypeMarket     OrderType = "MARKET"
	OrderTypeStopMarket OrderType = "STOP_MARKET"
	OrderTypeTakeProfit OrderType = "TAKE_PROFIT_MARKET"
)

type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Order is the exchange's view of a placed order.
type Order struct {
	OrderID       string
	ClientOrderID string
	Symbol        string
	Side          OrderSide
	Type          OrderType
	Price         float64
	StopPrice     float64
	Quantity      float64
	ExecutedQty   float64
	AvgFillPrice  float64
	Status        string
	ReduceOnly    bool
	CreatedAt     time.Time
}

// OrderRequest is everything needed to place one order.
type OrderRequest struct {
	Symbol     string
	Side       OrderSide
	Type       OrderType
	Quantity   float64
	Price      float64
	StopPrice  float64
	ReduceOnly bool
}

// Balance is the futures wallet balance for the quote asset.
type Balance struct {
	Asset            string
	WalletBalance    float64
	AvailableBalance float64
	UnrealizedPnl    float64
}

// Position is an open futures position as reported by the exchange.
type Position struct {
	Symbol           string
	PositionAmt      float64
	EntryPrice       float64
	MarkPrice        float64
	LiquidationPrice float64
	UnrealizedPnl    float64
	Leverage         int
	IsolatedMargin   float64
}

// Candle is one OHLCV bar.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}
