// Package ledger is the trade-ledger sink: an append-only record of fills,
// adaptive transitions and entry decisions. The SELL window it serves back is
// the sole input of the adaptive risk controller.
package ledger

import (
	"binance-spot-bot-go/internal/adaptive"
	"binance-spot-bot-go/internal/models"
)

// Ledger records trading facts and serves bounded history windows.
// Implementations must never mutate a record after it is written.
type Ledger interface {
	// RecordTrade appends one fill, stamping the bot's cumulative pnl.
	RecordTrade(rec *models.TradeRecord) error

	// RecentTrades returns up to limit most recent trades for the bot,
	// oldest-first. An empty side matches both sides.
	RecentTrades(botID string, limit int, side models.Side) ([]models.TradeRecord, error)

	// RecordAdaptiveEvent audits one risk-posture transition.
	RecordAdaptiveEvent(botID, profile, symbol string, from, to models.AdaptiveState, reason string, m adaptive.Metrics) error

	// RecordDecision audits one entry decision (ENTER / NO_TRADE) together
	// with the advisory regime that was in effect.
	RecordDecision(botID, profile, symbol, decision, regime string, confidence float64, reason string) error

	Close() error
}
