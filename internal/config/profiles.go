package config

import "binance-spot-bot-go/internal/models"

// Risk profile names. Only the equilibrium profile is eligible for adaptive
// parameter overrides; the others are evaluated for telemetry only.
const (
	ProfileSentinel    = "sentinel"    // conservative
	ProfileEquilibrium = "equilibrium" // balanced, adaptive-eligible
	ProfileVortex      = "vortex"      // aggressive, velocity/ATR entry
)

// AdaptiveProfile is the single profile whose parameters the adaptive
// controller may override.
const AdaptiveProfile = ProfileEquilibrium

// Profiles are the built-in risk presets. A bot config entry names one of
// these and may override individual fields.
var Profiles = map[string]models.BotConfig{
	ProfileSentinel: {
		CapitalPct:               0.20,
		TradePct:                 0.20,
		MinTradeUSDT:             7.0,
		MaxBuysPerDay:            5,
		DailyBudgetUSDT:          40.0,
		SMAFast:                  14,
		SMASlow:                  50,
		KlineInterval:            "1m",
		KlineLimit:               60,
		TrailingPct:              0.01,
		NewHighEpsilonPct:        0.0002,
		CooldownAfterSellSec:     60,
		TrendExitEnabled:         true,
		TrendSMAPeriod:           25,
		MaxHoldSecWithoutNewHigh: 900,
	},
	ProfileEquilibrium: {
		CapitalPct:               0.15,
		TradePct:                 0.35,
		MinTradeUSDT:             7.0,
		MaxBuysPerDay:            20,
		DailyBudgetUSDT:          100.0,
		SMAFast:                  9,
		SMASlow:                  21,
		KlineInterval:            "1m",
		KlineLimit:               60,
		TrailingPct:              0.015,
		NewHighEpsilonPct:        0.0002,
		CooldownAfterSellSec:     45,
		TrendExitEnabled:         true,
		TrendSMAPeriod:           25,
		MaxHoldSecWithoutNewHigh: 600,
	},
	ProfileVortex: {
		CapitalPct:               0.08,
		TradePct:                 0.90,
		MinTradeUSDT:             7.0,
		MaxBuysPerDay:            60,
		DailyBudgetUSDT:          200.0,
		SMAFast:                  5,
		SMASlow:                  13,
		KlineInterval:            "1m",
		KlineLimit:               60,
		TrailingPct:              0.03,
		NewHighEpsilonPct:        0.0002,
		CooldownAfterSellSec:     30,
		TrendExitEnabled:         true,
		TrendSMAPeriod:           25,
		MaxHoldSecWithoutNewHigh: 300,
	},
}
