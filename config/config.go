package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	BinanceConfig   BinanceConfig   `json:"binance"`
	ExecutionConfig ExecutionConfig `json:"execution"`
	RiskConfig      RiskConfig      `json:"risk"`
	LeverageConfig  LeverageConfig  `json:"leverage"`
	GovernorConfig  GovernorConfig  `json:"governor"`
	RedisConfig     RedisConfig     `json:"redis"`
	DatabaseConfig  DatabaseConfig  `json:"database"`
	VaultConfig     VaultConfig     `json:"vault"`
	ServerConfig    ServerConfig    `json:"server"`
	LoggingConfig   LoggingConfig   `json:"logging"`
}

// BinanceConfig holds exchange connectivity settings. Credentials may be
// empty here when Vault is enabled; see VaultConfig.
type BinanceConfig struct {
	APIKey          string `json:"api_key"`
	SecretKey       string `json:"secret_key"`
	BaseURL         string `json:"base_url"`
	WSBaseURL       string `json:"ws_base_url"`
	TestNet         bool   `json:"testnet"`
	MockMode        bool   `json:"mock_mode"`
	Symbol          string `json:"symbol"`
	TimeSyncMinutes int    `json:"time_sync_minutes"`
}

// ExecutionConfig selects the execution mode for the controller.
type ExecutionConfig struct {
	Mode              string  `json:"mode"` // ghost, paper, backtest, live
	CycleIntervalSecs int     `json:"cycle_interval_secs"`
	MakerFeeRate      float64 `json:"maker_fee_rate"`
	TakerFeeRate      float64 `json:"taker_fee_rate"`
}

// RiskConfig holds circuit breaker and bracket parameters.
type RiskConfig struct {
	AccountRiskPerTradePct float64 `json:"account_risk_per_trade_pct"`
	MaxPositionNotionalUSD float64 `json:"max_position_notional_usd"`
	SLATRMultiplier        float64 `json:"sl_atr_multiplier"`
	TPATRMultiplier        float64 `json:"tp_atr_multiplier"`
	MaxDailyTrades         int     `json:"max_daily_trades"`
	MaxConsecutiveLosses   int     `json:"max_consecutive_losses"`
	CooldownMinutes        int     `json:"cooldown_minutes"`
	DailyDrawdownKillPct   float64 `json:"daily_drawdown_kill_pct"`
	MaxHoldMinutes         int     `json:"max_hold_minutes"`
}

// LeverageConfig holds leverage and margin-safety parameters.
// Leverage is bounded to [1,20]; Validate rejects anything outside.
type LeverageConfig struct {
	TradingCapitalUSD    float64 `json:"trading_capital_usd"`
	Leverage             int     `json:"leverage"`
	MaxRiskPct           float64 `json:"max_risk_pct"`
	MaxDrawdownPct       float64 `json:"max_drawdown_pct"`
	MarginMode           string  `json:"margin_mode"` // isolated or cross
	LiquidationBufferPct float64 `json:"liquidation_buffer_pct"`
	MarginDangerPct      float64 `json:"margin_danger_pct"`
	MarginCriticalPct    float64 `json:"margin_critical_pct"`
}

// GovernorConfig holds the sliding-window API rate governor settings.
type GovernorConfig struct {
	MaxCalls      int `json:"max_calls"`
	WindowSeconds int `json:"window_seconds"`
}

// RedisConfig holds state store connection settings.
type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// DatabaseConfig holds the PostgreSQL trade journal connection.
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// VaultConfig holds HashiCorp Vault settings for API key retrieval.
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// ServerConfig holds the read-only status HTTP server settings.
type ServerConfig struct {
	Enabled         bool   `json:"enabled"`
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"`
	ReadTimeout     int    `json:"read_timeout"`
	WriteTimeout    int    `json:"write_timeout"`
	ShutdownTimeout int    `json:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Output string `json:"output"` // stdout, stderr, or file path
	Pretty bool   `json:"pretty"`
}

func Load() (*Config, error) {
	return LoadFrom("config.json")
}

func LoadFrom(path string) (*Config, error) {
	cfg, err := loadFromFile(path)
	if err != nil {
		cfg = &Config{}
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configurations the risk engine must never run with.
func (c *Config) Validate() error {
	if c.LeverageConfig.Leverage < 1 || c.LeverageConfig.Leverage > 20 {
		return fmt.Errorf("leverage must be between 1 and 20, got %d", c.LeverageConfig.Leverage)
	}
	switch c.LeverageConfig.MarginMode {
	case "isolated", "cross":
	default:
		return fmt.Errorf("margin_mode must be isolated or cross, got %q", c.LeverageConfig.MarginMode)
	}
	switch c.ExecutionConfig.Mode {
	case "ghost", "paper", "backtest", "live":
	default:
		return fmt.Errorf("execution mode must be ghost, paper, backtest or live, got %q", c.ExecutionConfig.Mode)
	}
	if c.GovernorConfig.MaxCalls <= 0 || c.GovernorConfig.WindowSeconds <= 0 {
		return fmt.Errorf("governor window must be positive, got %d calls / %ds",
			c.GovernorConfig.MaxCalls, c.GovernorConfig.WindowSeconds)
	}
	if c.RiskConfig.AccountRiskPerTradePct <= 0 || c.RiskConfig.AccountRiskPerTradePct > 100 {
		return fmt.Errorf("account_risk_per_trade_pct must be in (0,100], got %.2f",
			c.RiskConfig.AccountRiskPerTradePct)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.BinanceConfig.BaseURL == "" {
		cfg.BinanceConfig.BaseURL = "https://fapi.binance.com"
	}
	if cfg.BinanceConfig.WSBaseURL == "" {
		cfg.BinanceConfig.WSBaseURL = "wss://fstream.binance.com"
	}
	if cfg.BinanceConfig.Symbol == "" {
		cfg.BinanceConfig.Symbol = "BTCUSDT"
	}
	if cfg.BinanceConfig.TimeSyncMinutes == 0 {
		cfg.BinanceConfig.TimeSyncMinutes = 30
	}
	if cfg.ExecutionConfig.Mode == "" {
		cfg.ExecutionConfig.Mode = "paper"
	}
	if cfg.ExecutionConfig.CycleIntervalSecs == 0 {
		cfg.ExecutionConfig.CycleIntervalSecs = 60
	}
	if cfg.ExecutionConfig.MakerFeeRate == 0 {
		cfg.ExecutionConfig.MakerFeeRate = 0.0002
	}
	if cfg.ExecutionConfig.TakerFeeRate == 0 {
		cfg.ExecutionConfig.TakerFeeRate = 0.0004
	}
	if cfg.RiskConfig.AccountRiskPerTradePct == 0 {
		cfg.RiskConfig.AccountRiskPerTradePct = 1.0
	}
	if cfg.RiskConfig.MaxPositionNotionalUSD == 0 {
		cfg.RiskConfig.MaxPositionNotionalUSD = 400.0
	}
	if cfg.RiskConfig.SLATRMultiplier == 0 {
		cfg.RiskConfig.SLATRMultiplier = 1.5
	}
	if cfg.RiskConfig.TPATRMultiplier == 0 {
		cfg.RiskConfig.TPATRMultiplier = 3.0
	}
	if cfg.RiskConfig.MaxDailyTrades == 0 {
		cfg.RiskConfig.MaxDailyTrades = 10
	}
	if cfg.RiskConfig.MaxConsecutiveLosses == 0 {
		cfg.RiskConfig.MaxConsecutiveLosses = 3
	}
	if cfg.RiskConfig.CooldownMinutes == 0 {
		cfg.RiskConfig.CooldownMinutes = 45
	}
	if cfg.RiskConfig.DailyDrawdownKillPct == 0 {
		cfg.RiskConfig.DailyDrawdownKillPct = 2.0
	}
	if cfg.RiskConfig.MaxHoldMinutes == 0 {
		cfg.RiskConfig.MaxHoldMinutes = 90
	}
	if cfg.LeverageConfig.TradingCapitalUSD == 0 {
		cfg.LeverageConfig.TradingCapitalUSD = 1000.0
	}
	if cfg.LeverageConfig.Leverage == 0 {
		cfg.LeverageConfig.Leverage = 5
	}
	if cfg.LeverageConfig.MaxRiskPct == 0 {
		cfg.LeverageConfig.MaxRiskPct = 2.0
	}
	if cfg.LeverageConfig.MaxDrawdownPct == 0 {
		cfg.LeverageConfig.MaxDrawdownPct = 5.0
	}
	if cfg.LeverageConfig.MarginMode == "" {
		cfg.LeverageConfig.MarginMode = "isolated"
	}
	if cfg.LeverageConfig.LiquidationBufferPct == 0 {
		cfg.LeverageConfig.LiquidationBufferPct = 10.0
	}
	if cfg.LeverageConfig.MarginDangerPct == 0 {
		cfg.LeverageConfig.MarginDangerPct = 90.0
	}
	if cfg.LeverageConfig.MarginCriticalPct == 0 {
		cfg.LeverageConfig.MarginCriticalPct = 95.0
	}
	if cfg.GovernorConfig.MaxCalls == 0 {
		cfg.GovernorConfig.MaxCalls = 10
	}
	if cfg.GovernorConfig.WindowSeconds == 0 {
		cfg.GovernorConfig.WindowSeconds = 10
	}
	if cfg.RedisConfig.Address == "" {
		cfg.RedisConfig.Address = "localhost:6379"
	}
	if cfg.RedisConfig.PoolSize == 0 {
		cfg.RedisConfig.PoolSize = 10
	}
	if cfg.DatabaseConfig.Port == 0 {
		cfg.DatabaseConfig.Port = 5432
	}
	if cfg.DatabaseConfig.SSLMode == "" {
		cfg.DatabaseConfig.SSLMode = "disable"
	}
	if cfg.VaultConfig.MountPath == "" {
		cfg.VaultConfig.MountPath = "secret"
	}
	if cfg.VaultConfig.SecretPath == "" {
		cfg.VaultConfig.SecretPath = "futures-controller/api-keys"
	}
	if cfg.ServerConfig.Port == 0 {
		cfg.ServerConfig.Port = 8080
	}
	if cfg.ServerConfig.Host == "" {
		cfg.ServerConfig.Host = "0.0.0.0"
	}
	if cfg.ServerConfig.AllowedOrigins == "" {
		cfg.ServerConfig.AllowedOrigins = "*"
	}
	if cfg.ServerConfig.ReadTimeout == 0 {
		cfg.ServerConfig.ReadTimeout = 30
	}
	if cfg.ServerConfig.WriteTimeout == 0 {
		cfg.ServerConfig.WriteTimeout = 30
	}
	if cfg.ServerConfig.ShutdownTimeout == 0 {
		cfg.ServerConfig.ShutdownTimeout = 10
	}
	if cfg.LoggingConfig.Level == "" {
		cfg.LoggingConfig.Level = "info"
	}
	if cfg.LoggingConfig.Output == "" {
		cfg.LoggingConfig.Output = "stdout"
	}
}

func applyEnvOverrides(cfg *Config) {
	cfg.BinanceConfig.BaseURL = getEnvOrDefault("BINANCE_BASE_URL", cfg.BinanceConfig.BaseURL)
	cfg.BinanceConfig.WSBaseURL = getEnvOrDefault("BINANCE_WS_BASE_URL", cfg.BinanceConfig.WSBaseURL)
	cfg.BinanceConfig.TestNet = getEnvBoolOrDefault("BINANCE_TESTNET", cfg.BinanceConfig.TestNet)
	cfg.BinanceConfig.MockMode = getEnvBoolOrDefault("MOCK_MODE", cfg.BinanceConfig.MockMode)
	cfg.BinanceConfig.Symbol = getEnvOrDefault("TRADING_SYMBOL", cfg.BinanceConfig.Symbol)
	// Credentials from environment are the fallback when Vault is disabled.
	cfg.BinanceConfig.APIKey = getEnvOrDefault("BINANCE_API_KEY", cfg.BinanceConfig.APIKey)
	cfg.BinanceConfig.SecretKey = getEnvOrDefault("BINANCE_SECRET_KEY", cfg.BinanceConfig.SecretKey)

	cfg.ExecutionConfig.Mode = getEnvOrDefault("EXECUTION_MODE", cfg.ExecutionConfig.Mode)
	cfg.ExecutionConfig.CycleIntervalSecs = getEnvIntOrDefault("CYCLE_INTERVAL_SECS", cfg.ExecutionConfig.CycleIntervalSecs)

	cfg.RiskConfig.AccountRiskPerTradePct = getEnvFloatOrDefault("RISK_PER_TRADE_PCT", cfg.RiskConfig.AccountRiskPerTradePct)
	cfg.RiskConfig.MaxPositionNotionalUSD = getEnvFloatOrDefault("RISK_MAX_NOTIONAL_USD", cfg.RiskConfig.MaxPositionNotionalUSD)
	cfg.RiskConfig.MaxDailyTrades = getEnvIntOrDefault("RISK_MAX_DAILY_TRADES", cfg.RiskConfig.MaxDailyTrades)
	cfg.RiskConfig.MaxConsecutiveLosses = getEnvIntOrDefault("RISK_MAX_CONSECUTIVE_LOSSES", cfg.RiskConfig.MaxConsecutiveLosses)
	cfg.RiskConfig.CooldownMinutes = getEnvIntOrDefault("RISK_COOLDOWN_MINUTES", cfg.RiskConfig.CooldownMinutes)
	cfg.RiskConfig.DailyDrawdownKillPct = getEnvFloatOrDefault("RISK_DRAWDOWN_KILL_PCT", cfg.RiskConfig.DailyDrawdownKillPct)
	cfg.RiskConfig.MaxHoldMinutes = getEnvIntOrDefault("RISK_MAX_HOLD_MINUTES", cfg.RiskConfig.MaxHoldMinutes)

	cfg.LeverageConfig.TradingCapitalUSD = getEnvFloatOrDefault("LEVERAGE_TRADING_CAPITAL", cfg.LeverageConfig.TradingCapitalUSD)
	cfg.LeverageConfig.Leverage = getEnvIntOrDefault("LEVERAGE_MULTIPLIER", cfg.LeverageConfig.Leverage)
	cfg.LeverageConfig.MaxRiskPct = getEnvFloatOrDefault("LEVERAGE_MAX_RISK_PCT", cfg.LeverageConfig.MaxRiskPct)
	cfg.LeverageConfig.MarginMode = getEnvOrDefault("LEVERAGE_MARGIN_MODE", cfg.LeverageConfig.MarginMode)

	cfg.GovernorConfig.MaxCalls = getEnvIntOrDefault("GOVERNOR_MAX_CALLS", cfg.GovernorConfig.MaxCalls)
	cfg.GovernorConfig.WindowSeconds = getEnvIntOrDefault("GOVERNOR_WINDOW_SECONDS", cfg.GovernorConfig.WindowSeconds)

	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)

	cfg.DatabaseConfig.Enabled = getEnvBoolOrDefault("DATABASE_ENABLED", cfg.DatabaseConfig.Enabled)
	cfg.DatabaseConfig.Host = getEnvOrDefault("DATABASE_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DATABASE_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DATABASE_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DATABASE_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DATABASE_NAME", cfg.DatabaseConfig.Database)

	cfg.VaultConfig.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", cfg.VaultConfig.Enabled)
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", cfg.VaultConfig.MountPath)
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", cfg.VaultConfig.SecretPath)

	cfg.ServerConfig.Enabled = getEnvBoolOrDefault("SERVER_ENABLED", cfg.ServerConfig.Enabled)
	cfg.ServerConfig.Port = getEnvIntOrDefault("SERVER_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.Host = getEnvOrDefault("SERVER_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", cfg.ServerConfig.AllowedOrigins)

	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", cfg.LoggingConfig.Output)
	cfg.LoggingConfig.Pretty = getEnvBoolOrDefault("LOG_PRETTY", cfg.LoggingConfig.Pretty)
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
