// Package adaptive implements the risk-posture state machine. It reads the
// recent trade window, derives rolling metrics and decides whether a bot
// should tighten (DEFENSIVE, COOLDOWN_EXTENDED), pause (SLEEP) or run with
// its profile defaults (NORMAL).
package adaptive

import (
	"fmt"

	"binance-spot-bot-go/internal/models"

	"go.uber.org/zap"
)

// TradeSource provides the bounded trade-history window. Satisfied by the
// ledger; kept as a local interface so this package stays testable with a
// slice-backed fake.
type TradeSource interface {
	RecentTrades(botID string, limit int, side models.Side) ([]models.TradeRecord, error)
}

// EventSink records state transitions for audit. Optional.
type EventSink interface {
	RecordAdaptiveEvent(botID, profile, symbol string, from, to models.AdaptiveState, reason string, m Metrics) error
}

// Thresholds tune the state machine. Zero value is unusable; use
// DefaultThresholds.
type Thresholds struct {
	DefensiveDrawdownPct      float64
	DefensiveWinRate          float64
	DefensiveNegativeStreak   int
	DefensiveVolatilityPct    float64
	DefensiveRangeAvgAbsPct   float64
	DefensiveLateralFlipRate  float64
	DefensiveLateralAvgAbsPct float64

	CooldownNegativeStreak int
	CooldownDrawdownPct    float64
	CooldownWinRate        float64

	SleepVolatilityPct float64
	SleepAvgAbsPnLPct  float64
	SleepFlipRate      float64

	RecoveryWinsLast3 int
}

// DefaultThresholds matches the tuned production values.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DefensiveDrawdownPct:      0.05,
		DefensiveWinRate:          0.40,
		DefensiveNegativeStreak:   3,
		DefensiveVolatilityPct:    0.02,
		DefensiveRangeAvgAbsPct:   0.002,
		DefensiveLateralFlipRate:  0.7,
		DefensiveLateralAvgAbsPct: 0.002,

		CooldownNegativeStreak: 5,
		CooldownDrawdownPct:    0.08,
		CooldownWinRate:        0.30,

		SleepVolatilityPct: 0.0015,
		SleepAvgAbsPnLPct:  0.001,
		SleepFlipRate:      0.3,

		RecoveryWinsLast3: 2,
	}
}

// Scaling factors applied when a bot enters DEFENSIVE, and the floors that
// keep the overrides sane.
const (
	DefensiveTrailingFactor = 0.8
	DefensiveTrailingFloor  = 0.001
	DefensiveMaxBuysFactor  = 0.5
	DefensiveCooldownFactor = 1.5
)

// Controller evaluates one bot after every closed trade.
type Controller struct {
	source          TradeSource
	events          EventSink
	logger          *zap.SugaredLogger
	windowSize      int
	minTrades       int
	adaptiveProfile string
	thresholds      Thresholds
}

// NewController wires a controller over the given trade source.
// adaptiveProfile names the single profile whose parameters may be
// overridden; every other profile is evaluated for telemetry only.
func NewController(source TradeSource, events EventSink, adaptiveProfile string, logger *zap.SugaredLogger) *Controller {
	return &Controller{
		source:          source,
		events:          events,
		logger:          logger,
		windowSize:      10,
		minTrades:       5,
		adaptiveProfile: adaptiveProfile,
		thresholds:      DefaultThresholds(),
	}
}

// Evaluation is the outcome of one controller pass.
type Evaluation struct {
	Target  models.AdaptiveState
	Reason  string
	Metrics Metrics
	Changed bool
}

// Evaluate recomputes metrics for the bot's recent SELL window and decides
// the next risk posture. It is deterministic: the same window and current
// state always yield the same target and reason.
func (c *Controller) Evaluate(botID, profile, symbol string, current models.AdaptiveState) (Evaluation, error) {
	trades, err := c.source.RecentTrades(botID, c.windowSize, models.Sell)
	if err != nil {
		return Evaluation{Target: current}, fmt.Errorf("load trade window: %w", err)
	}

	m := ComputeMetrics(trades)

	c.logger.Infow("adaptive evaluation",
		"bot", botID,
		"profile", profile,
		"trades", m.TotalTrades,
		"win_rate", m.WinRate,
		"pnl", m.CumulativePnL,
		"drawdown_pct", m.DrawdownPct,
		"neg_streak", m.NegativeStreak,
		"state", current,
	)

	eval := Evaluation{Target: current, Metrics: m}

	if profile != c.adaptiveProfile {
		return eval, nil
	}
	if m.TotalTrades < c.minTrades {
		return eval, nil
	}

	target, reason := Decide(m, current, c.thresholds)
	eval.Target = target
	eval.Reason = reason
	eval.Changed = target != current

	if eval.Changed && c.events != nil {
		if err := c.events.RecordAdaptiveEvent(botID, profile, symbol, current, target, reason, m); err != nil {
			c.logger.Warnw("adaptive event record failed", "err", err)
		}
	}

	return eval, nil
}

// Decide is the pure transition function. Priority when leaving NORMAL is
// COOLDOWN_EXTENDED > DEFENSIVE > SLEEP; recovery requires 2 of the last 3
// trades to be wins, with COOLDOWN_EXTENDED stepping down through DEFENSIVE.
func Decide(m Metrics, current models.AdaptiveState, t Thresholds) (models.AdaptiveState, string) {
	switch current {
	case models.AdaptiveSleep:
		if shouldWake(m, t) {
			return models.AdaptiveNormal, fmt.Sprintf("market_active (vol=%s)", fmtPct(m.PnLVolatilityPct, m.HasPct))
		}
		return models.AdaptiveSleep, ""

	case models.AdaptiveCooldownExtended:
		if m.WinsLast3 >= t.RecoveryWinsLast3 {
			return models.AdaptiveDefensive, fmt.Sprintf("recovered (%d/3 wins)", m.WinsLast3)
		}
		return models.AdaptiveCooldownExtended, ""

	case models.AdaptiveDefensive:
		if m.WinsLast3 >= t.RecoveryWinsLast3 {
			return models.AdaptiveNormal, fmt.Sprintf("recovered (%d/3 wins)", m.WinsLast3)
		}
		return models.AdaptiveDefensive, ""
	}

	if reason := cooldownReason(m, t); reason != "" {
		return models.AdaptiveCooldownExtended, reason
	}
	if reason := defensiveReason(m, t); reason != "" {
		return models.AdaptiveDefensive, reason
	}
	if reason := sleepReason(m, t); reason != "" {
		return models.AdaptiveSleep, reason
	}

	return models.AdaptiveNormal, ""
}

func cooldownReason(m Metrics, t Thresholds) string {
	if m.NegativeStreak >= t.CooldownNegativeStreak {
		return fmt.Sprintf("loss_streak (%d)", m.NegativeStreak)
	}
	if m.DrawdownPct >= t.CooldownDrawdownPct {
		return fmt.Sprintf("drawdown (%s)", fmtPct(m.DrawdownPct, true))
	}
	if m.WinRate <= t.CooldownWinRate {
		return fmt.Sprintf("win_rate (%.2f)", m.WinRate)
	}
	return ""
}

func defensiveReason(m Metrics, t Thresholds) string {
	if m.NegativeStreak >= t.DefensiveNegativeStreak {
		return fmt.Sprintf("loss_streak (%d)", m.NegativeStreak)
	}
	if m.DrawdownPct >= t.DefensiveDrawdownPct {
		return fmt.Sprintf("drawdown (%s)", fmtPct(m.DrawdownPct, true))
	}
	if m.WinRate <= t.DefensiveWinRate {
		return fmt.Sprintf("win_rate (%.2f)", m.WinRate)
	}
	if m.HasPct && m.PnLVolatilityPct >= t.DefensiveVolatilityPct && m.CumulativePnL < 0 {
		return fmt.Sprintf("volatility (%s)", fmtPct(m.PnLVolatilityPct, true))
	}
	if m.HasFlipRate && m.FlipRate >= t.DefensiveLateralFlipRate &&
		m.HasPct && m.AvgAbsPnLPct <= t.DefensiveLateralAvgAbsPct {
		return fmt.Sprintf("lateral_chop (flip_rate=%.2f)", m.FlipRate)
	}
	if m.HasPct && m.AvgAbsPnLPct <= t.DefensiveRangeAvgAbsPct {
		return fmt.Sprintf("range_tight (avg_abs=%s)", fmtPct(m.AvgAbsPnLPct, true))
	}
	return ""
}

func sleepReason(m Metrics, t Thresholds) string {
	if !m.HasPct {
		return ""
	}
	if m.PnLVolatilityPct <= t.SleepVolatilityPct &&
		m.AvgAbsPnLPct <= t.SleepAvgAbsPnLPct &&
		(!m.HasFlipRate || m.FlipRate <= t.SleepFlipRate) {
		return fmt.Sprintf("market_dead (vol=%s, avg_abs=%s)",
			fmtPct(m.PnLVolatilityPct, true), fmtPct(m.AvgAbsPnLPct, true))
	}
	return ""
}

func shouldWake(m Metrics, t Thresholds) bool {
	if !m.HasPct {
		return false
	}
	return m.PnLVolatilityPct > t.SleepVolatilityPct || m.AvgAbsPnLPct > t.SleepAvgAbsPnLPct
}

func fmtPct(v float64, ok bool) string {
	if !ok {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", v*100)
}
