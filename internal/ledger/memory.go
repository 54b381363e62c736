package ledger

import (
	"sync"
	"time"

	"binance-spot-bot-go/internal/adaptive"
	"binance-spot-bot-go/internal/models"
)

// MemoryLedger keeps the ledger in process memory. Used by simulation mode
// and by tests; it never fails.
type MemoryLedger struct {
	mu     sync.Mutex
	trades map[string][]models.TradeRecord
	cumPnL map[string]float64

	Events    []AdaptiveEvent
	Decisions []Decision
}

// AdaptiveEvent mirrors one row of the adaptive_events table.
type AdaptiveEvent struct {
	BotID   string
	Profile string
	Symbol  string
	From    models.AdaptiveState
	To      models.AdaptiveState
	Reason  string
	Metrics adaptive.Metrics
}

// Decision mirrors one row of the decisions table.
type Decision struct {
	BotID      string
	Profile    string
	Symbol     string
	Decision   string
	Regime     string
	Confidence float64
	Reason     string
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		trades: make(map[string][]models.TradeRecord),
		cumPnL: make(map[string]float64),
	}
}

func (l *MemoryLedger) RecordTrade(rec *models.TradeRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cumPnL[rec.BotID] += rec.PnL
	rec.CumulativePnL = l.cumPnL[rec.BotID]
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	l.trades[rec.BotID] = append(l.trades[rec.BotID], *rec)
	return nil
}

func (l *MemoryLedger) RecentTrades(botID string, limit int, side models.Side) ([]models.TradeRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var matched []models.TradeRecord
	for _, t := range l.trades[botID] {
		if side == "" || t.Side == side {
			matched = append(matched, t)
		}
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	out := make([]models.TradeRecord, len(matched))
	copy(out, matched)
	return out, nil
}

func (l *MemoryLedger) RecordAdaptiveEvent(botID, profile, symbol string, from, to models.AdaptiveState, reason string, m adaptive.Metrics) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Events = append(l.Events, AdaptiveEvent{
		BotID: botID, Profile: profile, Symbol: symbol,
		From: from, To: to, Reason: reason, Metrics: m,
	})
	return nil
}

func (l *MemoryLedger) RecordDecision(botID, profile, symbol, decision, regime string, confidence float64, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Decisions = append(l.Decisions, Decision{
		BotID: botID, Profile: profile, Symbol: symbol,
		Decision: decision, Regime: regime, Confidence: confidence, Reason: reason,
	})
	return nil
}

func (l *MemoryLedger) Close() error { return nil }
