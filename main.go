package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"futures-controller/config"
	"futures-controller/internal/api"
	"futures-controller/internal/controller"
	"futures-controller/internal/exchange"
	"futures-controller/internal/executor"
	"futures-controller/internal/governor"
	"futures-controller/internal/journal"
	"futures-controller/internal/leverage"
	"futures-controller/internal/risk"
	"futures-controller/internal/signals"
	"futures-controller/internal/state"
	"futures-controller/internal/stream"
	"futures-controller/internal/vault"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLogger := zerolog.New(os.Stderr)
		fallbackLogger.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := newLogger(cfg.LoggingConfig)
	logger.Info().
		Str("mode", cfg.ExecutionConfig.Mode).
		Str("symbol", cfg.BinanceConfig.Symbol).
		Msg("starting futures controller")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	apiKey, secretKey := cfg.BinanceConfig.APIKey, cfg.BinanceConfig.SecretKey
	if cfg.VaultConfig.Enabled {
		vc, err := vault.NewClient(cfg.VaultConfig.Address, cfg.VaultConfig.Token,
			cfg.VaultConfig.MountPath, cfg.VaultConfig.SecretPath,
			cfg.VaultConfig.TLSEnabled, cfg.VaultConfig.CACert, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create vault client")
		}
		creds, err := vc.FetchCredentials(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to fetch credentials from vault")
		}
		apiKey, secretKey = creds.APIKey, creds.SecretKey
	}

	gov := governor.New(cfg.GovernorConfig.MaxCalls,
		time.Duration(cfg.GovernorConfig.WindowSeconds)*time.Second, logger)

	var client exchange.Client
	var binanceClient *exchange.BinanceClient
	if cfg.BinanceConfig.MockMode {
		logger.Warn().Msg("mock mode enabled, no real exchange connectivity")
		client = exchange.NewMockClient()
	} else {
		binanceClient = exchange.NewBinanceClient(apiKey, secretKey,
			cfg.BinanceConfig.BaseURL, cfg.BinanceConfig.TestNet, gov, logger)
		if err := binanceClient.SyncServerTime(ctx); err != nil {
			logger.Warn().Err(err).Msg("initial server time sync failed")
		}
		if err := binanceClient.LoadSymbolFilters(ctx, cfg.BinanceConfig.Symbol); err != nil {
			logger.Warn().Err(err).Msg("failed to load symbol filters, using defaults")
		}
		client = binanceClient
	}

	store := state.NewStore(cfg.RedisConfig.Address, cfg.RedisConfig.Password,
		cfg.RedisConfig.DB, cfg.RedisConfig.PoolSize, logger)
	defer store.Close()

	if err := store.SetLeverageSettings(ctx, state.LeverageSettings{
		TradingCapitalUSD: cfg.LeverageConfig.TradingCapitalUSD,
		Leverage:          cfg.LeverageConfig.Leverage,
		MaxRiskPct:        cfg.LeverageConfig.MaxRiskPct,
		MaxDrawdownPct:    cfg.LeverageConfig.MaxDrawdownPct,
		MarginMode:        cfg.LeverageConfig.MarginMode,
	}); err != nil {
		logger.Warn().Err(err).Msg("failed to persist leverage settings")
	}

	var tradeJournal *journal.Journal
	if cfg.DatabaseConfig.Enabled {
		tradeJournal, err = journal.Connect(ctx, cfg.DatabaseConfig.Host, cfg.DatabaseConfig.Port,
			cfg.DatabaseConfig.User, cfg.DatabaseConfig.Password,
			cfg.DatabaseConfig.Database, cfg.DatabaseConfig.SSLMode, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("trade journal unavailable, continuing without it")
		} else {
			defer tradeJournal.Close()
		}
	}

	ledger := &executor.SignalLedger{}
	exec := buildExecutor(cfg, client, gov, ledger, logger)

	gate := risk.NewGate(risk.GateConfig{
		MaxDailyTrades:       cfg.RiskConfig.MaxDailyTrades,
		MaxConsecutiveLosses: cfg.RiskConfig.MaxConsecutiveLosses,
		CooldownMinutes:      cfg.RiskConfig.CooldownMinutes,
		DailyDrawdownKillPct: cfg.RiskConfig.DailyDrawdownKillPct,
		MaxHoldMinutes:       cfg.RiskConfig.MaxHoldMinutes,
		MarginDangerPct:      cfg.LeverageConfig.MarginDangerPct,
		MarginCriticalPct:    cfg.LeverageConfig.MarginCriticalPct,
	}, logger)

	planner := risk.NewPlanner(risk.PlannerConfig{
		SLATRMultiplier:        cfg.RiskConfig.SLATRMultiplier,
		TPATRMultiplier:        cfg.RiskConfig.TPATRMultiplier,
		AccountRiskPerTradePct: cfg.RiskConfig.AccountRiskPerTradePct,
		MaxPositionNotionalUSD: cfg.RiskConfig.MaxPositionNotionalUSD,
		TradingCapitalUSD:      cfg.LeverageConfig.TradingCapitalUSD,
		Leverage:               cfg.LeverageConfig.Leverage,
	}, leverage.NewSizer(logger), logger)

	var marks controller.MarkPriceSource
	if !cfg.BinanceConfig.MockMode {
		markStream := stream.NewMarkPriceStream(cfg.BinanceConfig.WSBaseURL,
			cfg.BinanceConfig.Symbol, logger)
		go markStream.Run(ctx)
		marks = markStream
	}

	ctrl := controller.New(controller.Options{
		Symbol:        cfg.BinanceConfig.Symbol,
		CycleInterval: time.Duration(cfg.ExecutionConfig.CycleIntervalSecs) * time.Second,
		Store:         store,
		Gate:          gate,
		Planner:       planner,
		Executor:      exec,
		Client:        client,
		Signals:       signals.NewMomentumProvider(9, 21, logger),
		Marks:         marks,
		Journal:       tradeJournal,
		Logger:        logger,
	})

	if cfg.ServerConfig.Enabled {
		srv := api.NewServer(api.Options{
			Host:           cfg.ServerConfig.Host,
			Port:           cfg.ServerConfig.Port,
			AllowedOrigins: cfg.ServerConfig.AllowedOrigins,
			ReadTimeout:    time.Duration(cfg.ServerConfig.ReadTimeout) * time.Second,
			WriteTimeout:   time.Duration(cfg.ServerConfig.WriteTimeout) * time.Second,
			Store:          store,
			Journal:        tradeJournal,
			Ledger:         ledger,
			Governor:       gov,
			Mode:           exec.Mode(),
			Logger:         logger,
		})
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error().Err(err).Msg("status api failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(),
				time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("status api shutdown failed")
			}
		}()
	}

	if binanceClient != nil {
		go resyncServerTime(ctx, binanceClient,
			time.Duration(cfg.BinanceConfig.TimeSyncMinutes)*time.Minute, logger)
	}

	if err := ctrl.Run(ctx); err != nil && err != context.Canceled {
		logger.Fatal().Err(err).Msg("controller stopped")
	}
	logger.Info().Msg("futures controller stopped")
}

func buildExecutor(cfg *config.Config, client exchange.Client, gov *governor.Governor, ledger *executor.SignalLedger, logger zerolog.Logger) executor.Executor {
	switch executor.Mode(cfg.ExecutionConfig.Mode) {
	case executor.ModeGhost:
		return executor.NewGhostExecutor(ledger, logger)
	case executor.ModePaper:
		return executor.NewPaperExecutor(gov, logger)
	case executor.ModeBacktest:
		return executor.NewBacktestExecutor(cfg.ExecutionConfig.MakerFeeRate, logger)
	case executor.ModeLive:
		return executor.NewLiveExecutor(client, cfg.ExecutionConfig.TakerFeeRate, logger)
	default:
		logger.Fatal().Str("mode", cfg.ExecutionConfig.Mode).Msg("unknown execution mode")
		return nil
	}
}

func resyncServerTime(ctx context.Context, client *exchange.BinanceClient, interval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := client.SyncServerTime(ctx); err != nil {
				logger.Warn().Err(err).Msg("server time resync failed")
			}
		}
	}
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out *os.File
	switch cfg.Output {
	case "stdout", "":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			out = os.Stdout
		} else {
			out = f
		}
	}

	ctxLogger := zerolog.New(out)
	if cfg.Pretty {
		ctxLogger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	}
	return ctxLogger.Level(level).With().Timestamp().Logger()
}
