package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"futures-controller/internal/governor"
)

const (
	futuresBaseURL = "https://fapi.binance.com"
	testnetBaseURL = "https://testnet.binancefuture.com"
)

// BinanceClient talks to the Binance USD-M futures REST API. Every
// account and trading call goes through the rate governor first;
// market-data reads bypass it.
type BinanceClient struct {
	apiKey     string
	secretKey  string
	baseURL    string
	httpClient *http.Client
	governor   *governor.Governor
	precision  *precisionTable
	logger     zerolog.Logger

	// timeOffsetMs is exchange server time minus local time, refreshed
	// periodically so signed timestamps and UTC date rollovers track
	// the exchange clock rather than the local one.
	timeOffsetMs atomic.Int64
}

func NewBinanceClient(apiKey, secretKey, baseURL string, testnet bool, gov *governor.Governor, logger zerolog.Logger) *BinanceClient {
	if baseURL == "" {
		baseURL = futuresBaseURL
	}
	if testnet {
		baseURL = testnetBaseURL
	}
	return &BinanceClient{
		apiKey:    apiKey,
		secretKey: secretKey,
		baseURL:   baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		governor:  gov,
		precision: newPrecisionTable(),
		logger:    logger.With().Str("component", "binance_client").Logger(),
	}
}

// ExchangeNow returns the current time as the exchange sees it.
func (c *BinanceClient) ExchangeNow() time.Time {
	return time.Now().Add(time.Duration(c.timeOffsetMs.Load()) * time.Millisecond)
}

// SyncServerTime refreshes the exchange clock offset.
func (c *BinanceClient) SyncServerTime(ctx context.Context) error {
	serverTime, err := c.FetchServerTime(ctx)
	if err != nil {
		return err
	}
	offset := serverTime.Sub(time.Now()).Milliseconds()
	c.timeOffsetMs.Store(offset)
	c.logger.Debug().Int64("offset_ms", offset).Msg("synced exchange server time")
	return nil
}

func (c *BinanceClient) FetchServerTime(ctx context.Context) (time.Time, error) {
	body, err := c.publicGet(ctx, "/fapi/v1/time", nil)
	if err != nil {
		return time.Time{}, err
	}
	var resp struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return time.Time{}, fmt.Errorf("error parsing server time: %w", err)
	}
	return time.UnixMilli(resp.ServerTime), nil
}

func (c *BinanceClient) FetchBalance(ctx context.Context) (*Balance, error) {
	if err := c.governor.Acquire(ctx, "fetch_balance"); err != nil {
		return nil, err
	}
	body, err := c.signedGet(ctx, "/fapi/v2/balance", nil)
	if err != nil {
		return nil, err
	}
	var balances []struct {
		Asset            string `json:"asset"`
		Balance          string `json:"balance"`
		AvailableBalance string `json:"availableBalance"`
		CrossUnPnl       string `json:"crossUnPnl"`
	}
	if err := json.Unmarshal(body, &balances); err != nil {
		return nil, fmt.Errorf("error parsing balance response: %w", err)
	}
	for _, b := range balances {
		if b.Asset == "USDT" {
			return &Balance{
				Asset:            b.Asset,
				WalletBalance:    parseFloat(b.Balance),
				AvailableBalance: parseFloat(b.AvailableBalance),
				UnrealizedPnl:    parseFloat(b.CrossUnPnl),
			}, nil
		}
	}
	return &Balance{Asset: "USDT"}, nil
}

func (c *BinanceClient) FetchPositions(ctx context.Context, symbol string) ([]Position, error) {
	if err := c.governor.Acquire(ctx, "fetch_positions"); err != nil {
		return nil, err
	}
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}
	body, err := c.signedGet(ctx, "/fapi/v2/positionRisk", params)
	if err != nil {
		return nil, err
	}
	var raw []struct {
		Symbol           string `json:"symbol"`
		PositionAmt      string `json:"positionAmt"`
		EntryPrice       string `json:"entryPrice"`
		MarkPrice        string `json:"markPrice"`
		LiquidationPrice string `json:"liquidationPrice"`
		UnRealizedProfit string `json:"unRealizedProfit"`
		Leverage         string `json:"leverage"`
		IsolatedMargin   string `json:"isolatedMargin"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("error parsing positions response: %w", err)
	}
	positions := make([]Position, 0, len(raw))
	for _, p := range raw {
		amt := parseFloat(p.PositionAmt)
		if amt == 0 {
			continue
		}
		lev, _ := strconv.Atoi(p.Leverage)
		positions = append(positions, Position{
			Symbol:           p.Symbol,
			PositionAmt:      amt,
			EntryPrice:       parseFloat(p.EntryPrice),
			MarkPrice:        parseFloat(p.MarkPrice),
			LiquidationPrice: parseFloat(p.LiquidationPrice),
			UnrealizedPnl:    parseFloat(p.UnRealizedProfit),
			Leverage:         lev,
			IsolatedMargin:   parseFloat(p.IsolatedMargin),
		})
	}
	return positions, nil
}

func (c *BinanceClient) FetchMarkPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	body, err := c.publicGet(ctx, "/fapi/v1/premiumIndex", params)
	if err != nil {
		return 0, err
	}
	var resp struct {
		MarkPrice string `json:"markPrice"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("error parsing mark price response: %w", err)
	}
	return parseFloat(resp.MarkPrice), nil
}

func (c *BinanceClient) FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))
	body, err := c.publicGet(ctx, "/fapi/v1/klines", params)
	if err != nil {
		return nil, err
	}
	var raw [][]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("error parsing klines response: %w", err)
	}
	candles := make([]Candle, 0, len(raw))
	for _, k := range raw {
		if len(k) < 6 {
			continue
		}
		openTime, _ := k[0].(float64)
		candles = append(candles, Candle{
			OpenTime: time.UnixMilli(int64(openTime)),
			Open:     parseFloat(asString(k[1])),
			High:     parseFloat(asString(k[2])),
			Low:      parseFloat(asString(k[3])),
			Close:    parseFloat(asString(k[4])),
			Volume:   parseFloat(asString(k[5])),
		})
	}
	return candles, nil
}

func (c *BinanceClient) PlaceOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if err := c.governor.Acquire(ctx, "place_order"); err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", string(req.Side))
	params.Set("type", string(req.Type))
	params.Set("quantity", strconv.FormatFloat(c.AmountToPrecision(req.Symbol, req.Quantity), 'f', -1, 64))
	switch req.Type {
	case OrderTypeLimit:
		params.Set("price", strconv.FormatFloat(c.PriceToPrecision(req.Symbol, req.Price), 'f', -1, 64))
		params.Set("timeInForce", "GTC")
	case OrderTypeStopMarket, OrderTypeTakeProfit:
		params.Set("stopPrice", strconv.FormatFloat(c.PriceToPrecision(req.Symbol, req.StopPrice), 'f', -1, 64))
	}
	if req.ReduceOnly {
		params.Set("reduceOnly", "true")
	}

	body, err := c.signedPost(ctx, "/fapi/v1/order", params)
	if err != nil {
		return nil, err
	}
	var resp struct {
		OrderID       int64  `json:"orderId"`
		ClientOrderID string `json:"clientOrderId"`
		Status        string `json:"status"`
		AvgPrice      string `json:"avgPrice"`
		ExecutedQty   string `json:"executedQty"`
		UpdateTime    int64  `json:"updateTime"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("error parsing order response: %w", err)
	}
	if resp.OrderID == 0 {
		return nil, ErrMissingOrderID
	}
	return &Order{
		OrderID:       strconv.FormatInt(resp.OrderID, 10),
		ClientOrderID: resp.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Price:         req.Price,
		StopPrice:     req.StopPrice,
		Quantity:      req.Quantity,
		ExecutedQty:   parseFloat(resp.ExecutedQty),
		AvgFillPrice:  parseFloat(resp.AvgPrice),
		Status:        resp.Status,
		ReduceOnly:    req.ReduceOnly,
		CreatedAt:     time.UnixMilli(resp.UpdateTime),
	}, nil
}

func (c *BinanceClient) CancelOrder(ctx context.Context, symbol, orderID string) error {
	if err := c.governor.Acquire(ctx, "cancel_order"); err != nil {
		return err
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)
	_, err := c.signedDelete(ctx, "/fapi/v1/order", params)
	return err
}

func (c *BinanceClient) PriceToPrecision(symbol string, price float64) float64 {
	return c.precision.PriceToPrecision(symbol, price)
}

func (c *BinanceClient) AmountToPrecision(symbol string, amount float64) float64 {
	return c.precision.AmountToPrecision(symbol, amount)
}

// LoadSymbolFilters pulls tick and step sizes from exchangeInfo.
func (c *BinanceClient) LoadSymbolFilters(ctx context.Context, symbol string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	body, err := c.publicGet(ctx, "/fapi/v1/exchangeInfo", params)
	if err != nil {
		return err
	}
	var resp struct {
		Symbols []struct {
			Symbol  string `json:"symbol"`
			Filters []struct {
				FilterType string `json:"filterType"`
				TickSize   string `json:"tickSize"`
				StepSize   string `json:"stepSize"`
			} `json:"filters"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("error parsing exchangeInfo response: %w", err)
	}
	for _, s := range resp.Symbols {
		if s.Symbol != symbol {
			continue
		}
		var tick, step string
		for _, f := range s.Filters {
			switch f.FilterType {
			case "PRICE_FILTER":
				tick = f.TickSize
			case "LOT_SIZE":
				step = f.StepSize
			}
		}
		if tick != "" && step != "" {
			return c.precision.SetFilter(symbol, tick, step)
		}
	}
	return fmt.Errorf("symbol %s not found in exchangeInfo", symbol)
}

func (c *BinanceClient) publicGet(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *BinanceClient) signedGet(ctx context.Context, path string, params url.Values) ([]byte, error) {
	return c.signedRequest(ctx, http.MethodGet, path, params)
}

func (c *BinanceClient) signedPost(ctx context.Context, path string, params url.Values) ([]byte, error) {
	return c.signedRequest(ctx, http.MethodPost, path, params)
}

func (c *BinanceClient) signedDelete(ctx context.Context, path string, params url.Values) ([]byte, error) {
	return c.signedRequest(ctx, http.MethodDelete, path, params)
}

func (c *BinanceClient) signedRequest(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", strconv.FormatInt(c.ExchangeNow().UnixMilli(), 10))
	params.Set("recvWindow", "5000")

	query := params.Encode()
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(query))
	signature := hex.EncodeToString(mac.Sum(nil))
	query += "&signature=" + signature

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path+"?"+query, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MBX-APIKEY", c.apiKey)
	return c.do(req)
}

func (c *BinanceClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("exchange request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading exchange response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Msg != "" {
			return nil, fmt.Errorf("%w: %s (code %d)", ErrOrderRejected, apiErr.Msg, apiErr.Code)
		}
		return nil, fmt.Errorf("exchange returned status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}
