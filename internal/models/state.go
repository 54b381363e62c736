package models

import (
	"sync"
	"time"
)

// RuntimeSnapshot is the full mutable view of one bot. The engine mutates it
// through RuntimeState.Apply; everyone else (console, reporter) receives a
// point-in-time copy from RuntimeState.Snapshot and must treat it as read-only.
type RuntimeSnapshot struct {
	// Identity
	BotID   string      `json:"bot_id"`
	Symbol  string      `json:"symbol"`
	Profile string      `json:"profile"`
	Mode    TradingMode `json:"mode"`

	// Lifecycle flags
	Running                 bool `json:"running"`
	Armed                   bool `json:"armed"`
	TrailingEnabled         bool `json:"trailing_enabled"`
	WaitingForSignal        bool `json:"waiting_for_signal"`
	WaitingForConfirmation  bool `json:"waiting_for_confirmation"`
	AwaitingUserConfirm     bool `json:"awaiting_user_confirm"`
	UserConfirmedBuy        bool `json:"user_confirmed_buy"`
	SignalIgnored           bool `json:"signal_ignored"`
	CapitalSkipNotified     bool `json:"capital_skip_notified"`
	LiveAuthorized          bool `json:"live_authorized"`
	AwaitingFreshEntry      bool `json:"awaiting_fresh_entry"`
	LiveAuthorizedAtUnix    float64 `json:"live_authorized_at_unix"`
	LastSignalAtUnix        float64 `json:"last_signal_at_unix"`
	LastAction              string  `json:"last_action"`

	// Market / position
	InPosition        bool    `json:"in_position"`
	LastPrice         float64 `json:"last_price"`
	ArmPrice          float64 `json:"arm_price"`
	EntryPrice        float64 `json:"entry_price"`
	StopPrice         float64 `json:"stop_price"`
	TrailingMaxPrice  float64 `json:"trailing_max_price"`
	OpenPositionSpent float64 `json:"open_position_spent"`
	VortexScore       float64 `json:"vortex_score"`
	SMAFastValue      float64 `json:"sma_fast_value"`
	SMASlowValue      float64 `json:"sma_slow_value"`

	// Balances (telemetry only)
	QuoteBalance float64 `json:"quote_balance"`
	BaseBalance  float64 `json:"base_balance"`

	// Daily accounting
	BuysToday  int     `json:"buys_today"`
	SpentToday float64 `json:"spent_today"`

	// Results
	LastTradePnL float64 `json:"last_trade_pnl"`
	TotalPnLUSDT float64 `json:"total_pnl_usdt"`

	// Effective risk parameters. TrailingPct always carries the effective
	// value; the override fields are nil while the profile defaults apply.
	TrailingPct              float64        `json:"trailing_pct"`
	AdaptiveState            AdaptiveState  `json:"adaptive_state"`
	AdaptiveReason           string         `json:"adaptive_reason"`
	AdaptiveMaxBuysPerDay    *int           `json:"adaptive_max_buys_per_day"`
	AdaptiveCooldownOverride *time.Duration `json:"adaptive_cooldown_override"`

	// Advisory (opaque regime signal, telemetry only)
	Regime            string  `json:"regime"`
	RegimeConfidence  float64 `json:"regime_confidence"`
	LastDecision      string  `json:"last_decision"`
	LastDecisionNote  string  `json:"last_decision_note"`
	BlockedByAdvisor  bool    `json:"blocked_by_advisor"`

	// Simulation (vortex paper phase)
	VirtualCapital    float64 `json:"virtual_capital"`
	VirtualQty        float64 `json:"virtual_qty"`
	VirtualEntryPrice float64 `json:"virtual_entry_price"`
	VirtualMaxPrice   float64 `json:"virtual_max_price"`
	VirtualPnL        float64 `json:"virtual_pnl"`
	VirtualPeakPnL    float64 `json:"virtual_peak_pnl"`
	SimTrades         int     `json:"sim_trades"`
	SimWins           int     `json:"sim_wins"`
	SimLosses         int     `json:"sim_losses"`
	SimMaxDrawdown    float64 `json:"sim_max_drawdown"`

	LastUpdate time.Time `json:"last_update"`
}

// RuntimeState owns a RuntimeSnapshot behind a lock. All mutation happens
// inside Apply so a reader can never observe a half-written cycle.
type RuntimeState struct {
	mu   sync.RWMutex
	data RuntimeSnapshot
}

// NewRuntimeState seeds the state for a freshly constructed bot.
func NewRuntimeState(cfg *BotConfig) *RuntimeState {
	return &RuntimeState{
		data: RuntimeSnapshot{
			BotID:          cfg.BotID,
			Symbol:         cfg.Symbol,
			Profile:        cfg.Profile,
			Mode:           cfg.Mode,
			TrailingPct:    cfg.TrailingPct,
			AdaptiveState:  AdaptiveNormal,
			LastAction:     "INIT",
			VirtualCapital: 1.0,
		},
	}
}

// Apply runs fn with exclusive access to the snapshot and stamps LastUpdate.
func (s *RuntimeState) Apply(fn func(*RuntimeSnapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.data)
	s.data.LastUpdate = time.Now()
}

// Snapshot returns a copy safe for concurrent readers. Pointer-typed override
// fields are duplicated so a reader cannot reach back into engine-owned memory.
func (s *RuntimeState) Snapshot() RuntimeSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.data
	if s.data.AdaptiveMaxBuysPerDay != nil {
		v := *s.data.AdaptiveMaxBuysPerDay
		snap.AdaptiveMaxBuysPerDay = &v
	}
	if s.data.AdaptiveCooldownOverride != nil {
		v := *s.data.AdaptiveCooldownOverride
		snap.AdaptiveCooldownOverride = &v
	}
	return snap
}
