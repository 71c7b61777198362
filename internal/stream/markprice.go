package stream

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// MarkPriceStream keeps a live mark price for one symbol over the futures
// websocket feed. The latest price is read lock-free by the decision loop;
// the liquidation-buffer breaker depends on it being fresh.
type MarkPriceStream struct {
	baseURL string
	symbol  string
	logger  zerolog.Logger

	priceBits atomic.Uint64
	updatedAt atomic.Int64
}

func NewMarkPriceStream(baseURL, symbol string, logger zerolog.Logger) *MarkPriceStream {
	return &MarkPriceStream{
		baseURL: baseURL,
		symbol:  symbol,
		logger:  logger.With().Str("component", "mark_price_stream").Str("symbol", symbol).Logger(),
	}
}

// Latest returns the most recent mark price and its age. A zero price
// means no update has arrived yet.
func (s *MarkPriceStream) Latest() (price float64, age time.Duration) {
	price = math.Float64frombits(s.priceBits.Load())
	if ts := s.updatedAt.Load(); ts > 0 {
		age = time.Since(time.UnixMilli(ts))
	}
	return price, age
}

// Run connects and consumes updates until the context is cancelled,
// reconnecting with capped backoff on any failure.
func (s *MarkPriceStream) Run(ctx context.Context) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		if err := s.consume(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn().Err(err).Dur("backoff", backoff).Msg("stream disconnected, reconnecting")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}

func (s *MarkPriceStream) consume(ctx context.Context) error {
	url := s.baseURL + "/ws/" + strings.ToLower(s.symbol) + "@markPrice@1s"
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	s.logger.Info().Str("url", url).Msg("mark price stream connected")

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var event struct {
			EventType string `json:"e"`
			MarkPrice string `json:"p"`
			EventTime int64  `json:"E"`
		}
		if err := json.Unmarshal(msg, &event); err != nil {
			s.logger.Debug().Err(err).Msg("skipping unparseable stream message")
			continue
		}
		if event.EventType != "markPriceUpdate" {
			continue
		}
		price, err := strconv.ParseFloat(event.MarkPrice, 64)
		if err != nil || price <= 0 {
			continue
		}
		s.priceBits.Store(math.Float64bits(price))
		s.updatedAt.Store(time.Now().UnixMilli())
	}
}
