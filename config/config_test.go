package config

import "testing"

func TestDefaultsAreSafe(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)

	if cfg.ExecutionConfig.Mode != "paper" {
		t.Errorf("default mode should be paper, got %q", cfg.ExecutionConfig.Mode)
	}
	if cfg.GovernorConfig.MaxCalls != 10 || cfg.GovernorConfig.WindowSeconds != 10 {
		t.Errorf("governor defaults wrong: %d/%ds",
			cfg.GovernorConfig.MaxCalls, cfg.GovernorConfig.WindowSeconds)
	}
	if cfg.RiskConfig.MaxDailyTrades != 10 || cfg.RiskConfig.MaxConsecutiveLosses != 3 {
		t.Errorf("risk defaults wrong: %d trades, %d losses",
			cfg.RiskConfig.MaxDailyTrades, cfg.RiskConfig.MaxConsecutiveLosses)
	}
	if cfg.RiskConfig.SLATRMultiplier != 1.5 || cfg.RiskConfig.TPATRMultiplier != 3.0 {
		t.Errorf("bracket multipliers wrong: %f/%f",
			cfg.RiskConfig.SLATRMultiplier, cfg.RiskConfig.TPATRMultiplier)
	}
	if cfg.LeverageConfig.MarginMode != "isolated" {
		t.Errorf("default margin mode should be isolated, got %q", cfg.LeverageConfig.MarginMode)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate, got %v", err)
	}
}

func TestValidateRejectsBadLeverage(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.LeverageConfig.Leverage = 25

	if err := cfg.Validate(); err == nil {
		t.Error("leverage above 20 must be rejected")
	}

	cfg.LeverageConfig.Leverage = 0
	if err := cfg.Validate(); err == nil {
		t.Error("leverage below 1 must be rejected")
	}
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.ExecutionConfig.Mode = "yolo"

	if err := cfg.Validate(); err == nil {
		t.Error("unknown execution mode must be rejected")
	}
}

func TestEnvOverride(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)

	t.Setenv("RISK_MAX_DAILY_TRADES", "5")
	t.Setenv("EXECUTION_MODE", "ghost")
	applyEnvOverrides(cfg)

	if cfg.RiskConfig.MaxDailyTrades != 5 {
		t.Errorf("expected env override 5, got %d", cfg.RiskConfig.MaxDailyTrades)
	}
	if cfg.ExecutionConfig.Mode != "ghost" {
		t.Errorf("expected env override ghost, got %q", cfg.ExecutionConfig.Mode)
	}
}
