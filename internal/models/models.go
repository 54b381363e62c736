package models

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/jxskiss/base62"
)

// TradingMode describes how a bot is allowed to interact with the exchange.
type TradingMode string

const (
	ModeSimulation TradingMode = "SIMULATION" // paper trading on virtual capital
	ModeArmed      TradingMode = "ARMED"      // simulation passed, waiting for live authorization
	ModeLive       TradingMode = "LIVE"       // real orders
	ModeAdvisory   TradingMode = "ADVISORY"   // signals and telemetry only, never trades
)

// Side of a trade.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// AdaptiveState is the risk posture assigned by the adaptive controller.
type AdaptiveState string

const (
	AdaptiveNormal           AdaptiveState = "NORMAL"
	AdaptiveDefensive        AdaptiveState = "DEFENSIVE"
	AdaptiveCooldownExtended AdaptiveState = "COOLDOWN_EXTENDED"
	AdaptiveSleep            AdaptiveState = "SLEEP"
)

// Exit reasons reported by the trailing-exit loop.
const (
	ExitTimeStop  = "TIME_STOP"
	ExitTrendExit = "TREND_EXIT"
	ExitTrailing  = "TRAILING"
)

// Config is the top-level application configuration loaded from JSON.
type Config struct {
	DBPath          string      `json:"db_path"` // Badger directory for position snapshots
	IsTestnet       bool        `json:"is_testnet"`
	Bots            []BotConfig `json:"bots"`
	LogConfig       LogConfig   `json:"log"`
	PollIntervalSec int         `json:"poll_interval_sec,omitempty"` // trade-cycle sleep, default 10
}

// LogConfig mirrors the logger setup: console, file or both, with rotation.
type LogConfig struct {
	Level      string `json:"level"`
	Output     string `json:"output"` // "console", "file", "both"
	File       string `json:"file"`
	MaxSize    int    `json:"max_size"` // MB
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"` // days
	Compress   bool   `json:"compress"`
}

// BotConfig holds everything one per-symbol worker needs. It is immutable for
// the lifetime of the bot; the adaptive controller overrides parameters on the
// runtime state, never here.
type BotConfig struct {
	// Identity
	BotID      string `json:"bot_id"`
	Symbol     string `json:"symbol"`
	BaseAsset  string `json:"base_asset"`
	QuoteAsset string `json:"quote_asset"`
	Profile    string `json:"profile"`

	Mode TradingMode `json:"mode"`

	// Capital & risk
	CapitalPct           float64 `json:"capital_pct"`
	TradePct             float64 `json:"trade_pct"`
	MinTradeUSDT         float64 `json:"min_trade_usdt"`
	MaxBuysPerDay        int     `json:"max_buys_per_day"`
	DailyBudgetUSDT      float64 `json:"daily_budget_usdt"`
	DisableMaxBuysPerDay bool    `json:"disable_max_buys_per_day"`
	DisableDailyBudget   bool    `json:"disable_daily_budget"`

	// Entry strategy
	SMAFast       int    `json:"sma_fast"`
	SMASlow       int    `json:"sma_slow"`
	KlineInterval string `json:"kline_interval"`
	KlineLimit    int    `json:"kline_limit"`

	// Exit management
	TrailingPct              float64 `json:"trailing_pct"`
	NewHighEpsilonPct        float64 `json:"new_high_epsilon_pct"`
	CooldownAfterSellSec     float64 `json:"cooldown_after_sell_sec"`
	TrendExitEnabled         bool    `json:"trend_exit_enabled"`
	TrendSMAPeriod           int     `json:"trend_sma_period"`
	MaxHoldSecWithoutNewHigh float64 `json:"max_hold_sec_without_new_high"`

	// Live safety
	RealCapitalEnabled bool    `json:"real_capital_enabled"`
	RealCapitalLimit   float64 `json:"real_capital_limit"`
}

// CooldownAfterSell returns the profile cooldown as a duration.
func (c *BotConfig) CooldownAfterSell() time.Duration {
	return time.Duration(c.CooldownAfterSellSec * float64(time.Second))
}

// MaxHoldWithoutNewHigh returns the time-stall exit window as a duration.
func (c *BotConfig) MaxHoldWithoutNewHigh() time.Duration {
	return time.Duration(c.MaxHoldSecWithoutNewHigh * float64(time.Second))
}

// Kline is one OHLCV candle, oldest-first in any slice the market port returns.
type Kline struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// Fill is the outcome of a filled market order.
type Fill struct {
	Price float64 // average fill price
	Qty   float64 // executed base quantity
	Quote float64 // quote spent (BUY) or received (SELL)
}

// ExitFill is a sell fill produced by the trailing-exit loop, tagged with the
// trigger that caused it.
type ExitFill struct {
	Fill
	Reason string // TIME_STOP, TREND_EXIT or TRAILING
}

// TradeRecord is an immutable append-only fact about one fill. The SELL rows
// are the sole input of the adaptive risk controller.
type TradeRecord struct {
	Timestamp     time.Time
	BotID         string
	Profile       string
	Symbol        string
	Side          Side
	Price         float64
	Qty           float64
	SpentUSDT     float64
	ReceivedUSDT  float64
	PnL           float64 // zero for BUY
	CumulativePnL float64 // running total at record time
	ExitReason    string  // TIME_STOP / TREND_EXIT / TRAILING, empty for BUY
}

// PositionSnapshot is the resumable persisted view of an open position. Saved
// on buy, refreshed on every new trailing high, deleted on a clean sell.
type PositionSnapshot struct {
	Symbol      string    `json:"symbol"`
	Profile     string    `json:"profile"`
	InPosition  bool      `json:"in_position"`
	EntryPrice  float64   `json:"entry_price"`
	EntryQty    float64   `json:"entry_qty"`
	SpentUSDT   float64   `json:"spent_usdt"`
	MaxPrice    float64   `json:"max_price"`
	TrailingPct float64   `json:"trailing_pct"`
	EntryTime   time.Time `json:"entry_time"`
	LastUpdate  time.Time `json:"last_update"`
}

// StopPrice returns the trailing stop implied by the snapshot.
func (p *PositionSnapshot) StopPrice() float64 {
	return p.MaxPrice * (1 - p.TrailingPct)
}

// NewBotID generates a short unique identifier, e.g. "bot-3Hk9PzQx".
func NewBotID() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("bot-%d", time.Now().UnixNano())
	}
	return "bot-" + base62.EncodeToString(buf)
}

// NewClientOrderID generates a client order id accepted by Binance.
func NewClientOrderID(botID string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", botID, time.Now().UnixNano())
	}
	return botID + "-" + base62.EncodeToString(buf)
}
