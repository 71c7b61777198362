package state

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	keyAutomationEnabled = "controller:automation_enabled"
	keyActivePosition    = "controller:active_position"
	keyBalance           = "controller:balance"
	keyRolling24hPnl     = "controller:rolling_24h_pnl"
	keyDailyTradeCount   = "controller:daily_trade_count"
	keyDailyTradeDate    = "controller:daily_trade_date"
	keyConsecutiveLosses = "controller:consecutive_losses"
	keyCooldownUntil     = "controller:cooldown_until"
	keyLeverageConfig    = "controller:leverage_config"
	keyLeverageState     = "controller:leverage_state"
	keyRiskTracking      = "controller:risk_tracking"
)

// Store persists controller state in Redis with an in-memory fallback so a
// Redis outage degrades to per-process state instead of halting trading
// decisions. The fallback is best effort and not shared across restarts.
type Store struct {
	client         *redis.Client
	redisAvailable atomic.Bool
	logger         zerolog.Logger

	mu       sync.RWMutex
	fallback map[string]string
}

func NewStore(addr, password string, db, poolSize int, logger zerolog.Logger) *Store {
	s := &Store{
		client: redis.NewClient(&redis.Options{
			Addr:         addr,
			Password:     password,
			DB:           db,
			PoolSize:     poolSize,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		}),
		logger:   logger.With().Str("component", "state_store").Logger(),
		fallback: make(map[string]string),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("redis unavailable, using in-memory state fallback")
		s.redisAvailable.Store(false)
	} else {
		s.redisAvailable.Store(true)
	}
	return s
}

// NewMemoryStore returns a store that never touches Redis. Used by tests
// and mock mode.
func NewMemoryStore(logger zerolog.Logger) *Store {
	s := &Store{
		logger:   logger.With().Str("component", "state_store").Logger(),
		fallback: make(map[string]string),
	}
	s.redisAvailable.Store(false)
	return s
}

func (s *Store) Available() bool {
	return s.redisAvailable.Load()
}

func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// ReadSnapshot reads the full account state in one pipelined round trip.
// This is a best-effort consistent view, not a transaction.
func (s *Store) ReadSnapshot(ctx context.Context) (*AccountSnapshot, error) {
	values, err := s.readAll(ctx)
	if err != nil {
		return nil, err
	}

	snap := &AccountSnapshot{}

	auto, ok := values[keyAutomationEnabled]
	if !ok {
		// Absent flag never means "on". Persist the safe default so the
		// operator sees an explicit off state.
		s.logger.Warn().Msg("automation flag absent, defaulting to disabled")
		if err := s.set(ctx, keyAutomationEnabled, "false"); err != nil {
			s.logger.Warn().Err(err).Msg("failed to persist automation default")
		}
		snap.AutomationEnabled = false
	} else {
		snap.AutomationEnabled = auto == "true"
	}

	snap.Balance = parseFloat(values[keyBalance])
	snap.Rolling24hPnl = parseFloat(values[keyRolling24hPnl])
	snap.DailyTradeCount = parseInt(values[keyDailyTradeCount])
	snap.DailyTradeDate = values[keyDailyTradeDate]
	snap.ConsecutiveLosses = parseInt(values[keyConsecutiveLosses])

	if raw := values[keyCooldownUntil]; raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			snap.CooldownUntil = ts
		}
	}
	if raw := values[keyActivePosition]; raw != "" {
		var pos ActivePosition
		if err := json.Unmarshal([]byte(raw), &pos); err != nil {
			s.logger.Error().Err(err).Msg("corrupt active position record")
		} else {
			snap.Position = &pos
		}
	}
	if raw := values[keyLeverageConfig]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &snap.Leverage); err != nil {
			s.logger.Error().Err(err).Msg("corrupt leverage config record")
		}
	}
	if raw := values[keyLeverageState]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &snap.LeverageState); err != nil {
			s.logger.Error().Err(err).Msg("corrupt leverage state record")
		}
	}
	if raw := values[keyRiskTracking]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &snap.Risk); err != nil {
			s.logger.Error().Err(err).Msg("corrupt risk tracking record")
		}
	}

	return snap, nil
}

func (s *Store) SetAutomationEnabled(ctx context.Context, enabled bool) error {
	return s.set(ctx, keyAutomationEnabled, strconv.FormatBool(enabled))
}

func (s *Store) SaveActivePosition(ctx context.Context, pos *ActivePosition) error {
	if pos.StopOrderID == "" || pos.TargetOrderID == "" {
		return fmt.Errorf("refusing to persist position without bracket order ids")
	}
	data, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("error marshaling position: %w", err)
	}
	return s.set(ctx, keyActivePosition, string(data))
}

func (s *Store) ClearActivePosition(ctx context.Context) error {
	return s.del(ctx, keyActivePosition)
}

func (s *Store) SetBalance(ctx context.Context, balance float64) error {
	return s.set(ctx, keyBalance, formatFloat(balance))
}

func (s *Store) SetRolling24hPnl(ctx context.Context, pnl float64) error {
	return s.set(ctx, keyRolling24hPnl, formatFloat(pnl))
}

func (s *Store) SetDailyTrades(ctx context.Context, count int, date string) error {
	if err := s.set(ctx, keyDailyTradeCount, strconv.Itoa(count)); err != nil {
		return err
	}
	return s.set(ctx, keyDailyTradeDate, date)
}

func (s *Store) SetConsecutiveLosses(ctx context.Context, n int) error {
	return s.set(ctx, keyConsecutiveLosses, strconv.Itoa(n))
}

func (s *Store) SetCooldownUntil(ctx context.Context, t time.Time) error {
	return s.set(ctx, keyCooldownUntil, t.UTC().Format(time.RFC3339))
}

func (s *Store) SetLeverageSettings(ctx context.Context, cfg LeverageSettings) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return s.set(ctx, keyLeverageConfig, string(data))
}

func (s *Store) SetLeverageState(ctx context.Context, st LeverageState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.set(ctx, keyLeverageState, string(data))
}

func (s *Store) SetRiskTracking(ctx context.Context, rt RiskTracking) error {
	data, err := json.Marshal(rt)
	if err != nil {
		return err
	}
	return s.set(ctx, keyRiskTracking, string(data))
}

var snapshotKeys = []string{
	keyAutomationEnabled,
	keyActivePosition,
	keyBalance,
	keyRolling24hPnl,
	keyDailyTradeCount,
	keyDailyTradeDate,
	keyConsecutiveLosses,
	keyCooldownUntil,
	keyLeverageConfig,
	keyLeverageState,
	keyRiskTracking,
}

func (s *Store) readAll(ctx context.Context) (map[string]string, error) {
	if !s.redisAvailable.Load() {
		s.mu.RLock()
		defer s.mu.RUnlock()
		out := make(map[string]string, len(s.fallback))
		for k, v := range s.fallback {
			out[k] = v
		}
		return out, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(snapshotKeys))
	for i, key := range snapshotKeys {
		cmds[i] = pipe.Get(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		s.markUnavailable(err)
		return s.readAll(ctx)
	}

	out := make(map[string]string, len(snapshotKeys))
	for i, cmd := range cmds {
		val, err := cmd.Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			continue
		}
		out[snapshotKeys[i]] = val
	}
	return out, nil
}

func (s *Store) set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	s.fallback[key] = value
	s.mu.Unlock()

	if !s.redisAvailable.Load() {
		return nil
	}
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		s.markUnavailable(err)
	}
	return nil
}

func (s *Store) del(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.fallback, key)
	s.mu.Unlock()

	if !s.redisAvailable.Load() {
		return nil
	}
	if err := s.client.Del(ctx, key).Err(); err != nil {
		s.markUnavailable(err)
	}
	return nil
}

func (s *Store) markUnavailable(err error) {
	if s.redisAvailable.CompareAndSwap(true, false) {
		s.logger.Warn().Err(err).Msg("redis became unavailable, switching to in-memory fallback")
	}
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func parseInt(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
