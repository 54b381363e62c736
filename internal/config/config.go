package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"binance-spot-bot-go/internal/models"
)

// LoadConfig reads the JSON config file, applies profile presets to every bot
// entry and validates the result. A bot with an invalid configuration never
// starts, so validation failures are returned from here.
func LoadConfig(path string) (*models.Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	config := &models.Config{}
	if err := json.NewDecoder(file).Decode(config); err != nil {
		return nil, err
	}

	if config.PollIntervalSec <= 0 {
		config.PollIntervalSec = 10
	}

	for i := range config.Bots {
		if err := ApplyProfile(&config.Bots[i]); err != nil {
			return nil, fmt.Errorf("bot %q: %w", config.Bots[i].Symbol, err)
		}
		if err := Validate(&config.Bots[i]); err != nil {
			return nil, fmt.Errorf("bot %q: %w", config.Bots[i].Symbol, err)
		}
	}

	return config, nil
}

// ApplyProfile fills zero-valued fields of a bot config from its named risk
// profile and derives identity fields left blank.
func ApplyProfile(cfg *models.BotConfig) error {
	preset, ok := Profiles[strings.ToLower(cfg.Profile)]
	if !ok {
		return fmt.Errorf("unknown profile %q", cfg.Profile)
	}

	cfg.Profile = strings.ToLower(cfg.Profile)
	cfg.Symbol = strings.ToUpper(cfg.Symbol)

	if cfg.BotID == "" {
		cfg.BotID = models.NewBotID()
	}
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}
	if cfg.BaseAsset == "" {
		cfg.BaseAsset = strings.TrimSuffix(cfg.Symbol, cfg.QuoteAsset)
	}
	if cfg.Mode == "" {
		cfg.Mode = defaultMode(cfg.Profile)
	}

	if cfg.CapitalPct == 0 {
		cfg.CapitalPct = preset.CapitalPct
	}
	if cfg.TradePct == 0 {
		cfg.TradePct = preset.TradePct
	}
	if cfg.MinTradeUSDT == 0 {
		cfg.MinTradeUSDT = preset.MinTradeUSDT
	}
	if cfg.MaxBuysPerDay == 0 {
		cfg.MaxBuysPerDay = preset.MaxBuysPerDay
	}
	if cfg.DailyBudgetUSDT == 0 {
		cfg.DailyBudgetUSDT = preset.DailyBudgetUSDT
	}
	if cfg.SMAFast == 0 {
		cfg.SMAFast = preset.SMAFast
	}
	if cfg.SMASlow == 0 {
		cfg.SMASlow = preset.SMASlow
	}
	if cfg.KlineInterval == "" {
		cfg.KlineInterval = preset.KlineInterval
	}
	if cfg.KlineLimit == 0 {
		cfg.KlineLimit = preset.KlineLimit
	}
	if cfg.TrailingPct == 0 {
		cfg.TrailingPct = preset.TrailingPct
	}
	if cfg.NewHighEpsilonPct == 0 {
		cfg.NewHighEpsilonPct = preset.NewHighEpsilonPct
	}
	if cfg.CooldownAfterSellSec == 0 {
		cfg.CooldownAfterSellSec = preset.CooldownAfterSellSec
	}
	if cfg.TrendSMAPeriod == 0 {
		cfg.TrendSMAPeriod = preset.TrendSMAPeriod
	}
	if cfg.MaxHoldSecWithoutNewHigh == 0 {
		cfg.MaxHoldSecWithoutNewHigh = preset.MaxHoldSecWithoutNewHigh
	}
	if !cfg.TrendExitEnabled {
		cfg.TrendExitEnabled = preset.TrendExitEnabled
	}
	if cfg.RealCapitalLimit == 0 {
		cfg.RealCapitalLimit = 5.0
	}

	return nil
}

// Validate rejects configurations the engine cannot run with.
func Validate(cfg *models.BotConfig) error {
	switch {
	case cfg.Symbol == "":
		return fmt.Errorf("symbol is required")
	case cfg.BaseAsset == "" || cfg.BaseAsset == cfg.Symbol:
		return fmt.Errorf("base asset could not be derived from symbol %q", cfg.Symbol)
	case cfg.CapitalPct <= 0 || cfg.CapitalPct > 1:
		return fmt.Errorf("capital_pct must be in (0, 1], got %v", cfg.CapitalPct)
	case cfg.TradePct <= 0 || cfg.TradePct > 1:
		return fmt.Errorf("trade_pct must be in (0, 1], got %v", cfg.TradePct)
	case cfg.MinTradeUSDT <= 0:
		return fmt.Errorf("min_trade_usdt must be positive")
	case cfg.TrailingPct <= 0 || cfg.TrailingPct >= 1:
		return fmt.Errorf("trailing_pct must be in (0, 1), got %v", cfg.TrailingPct)
	case cfg.SMAFast <= 0 || cfg.SMASlow <= 0 || cfg.SMAFast >= cfg.SMASlow:
		return fmt.Errorf("sma periods must satisfy 0 < fast < slow, got fast=%d slow=%d", cfg.SMAFast, cfg.SMASlow)
	case cfg.KlineLimit < cfg.SMASlow:
		return fmt.Errorf("kline_limit %d is below sma_slow %d", cfg.KlineLimit, cfg.SMASlow)
	case !cfg.DisableMaxBuysPerDay && cfg.MaxBuysPerDay <= 0:
		return fmt.Errorf("max_buys_per_day must be positive when enabled")
	case !cfg.DisableDailyBudget && cfg.DailyBudgetUSDT <= 0:
		return fmt.Errorf("daily_budget_usdt must be positive when enabled")
	case cfg.MaxHoldSecWithoutNewHigh <= 0:
		return fmt.Errorf("max_hold_sec_without_new_high must be positive")
	}

	switch cfg.Mode {
	case models.ModeSimulation, models.ModeArmed, models.ModeLive, models.ModeAdvisory:
	default:
		return fmt.Errorf("unknown trading mode %q", cfg.Mode)
	}

	return nil
}

func defaultMode(profile string) models.TradingMode {
	// Vortex starts in paper trading and has to earn its way to ARMED.
	if profile == ProfileVortex {
		return models.ModeSimulation
	}
	return models.ModeLive
}
