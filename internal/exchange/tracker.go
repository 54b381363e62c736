package exchange

import (
	"time"

	"binance-spot-bot-go/internal/models"
)

// trailTracker is the pure decision core of the trailing exit. It holds the
// monotonic max price and the time of the last accepted new high, and per
// observed tick either advances the high or names the exit to take.
//
// Exit priority per tick: time stop, then trend exit, then trailing stop.
// A tick that sets a new high never also sells.
type trailTracker struct {
	trailingPct float64
	epsilonPct  float64
	maxHold     time.Duration

	maxPrice    float64
	lastNewHigh time.Time
}

func newTrailTracker(p TrailParams) *trailTracker {
	t := &trailTracker{
		trailingPct: p.TrailingPct,
		epsilonPct:  p.NewHighEpsilon,
		maxHold:     p.MaxHold,
		maxPrice:    p.MaxPrice,
		lastNewHigh: p.LastNewHigh,
	}
	if t.maxPrice <= 0 {
		t.maxPrice = p.EntryPrice
	}
	if t.lastNewHigh.IsZero() {
		t.lastNewHigh = time.Now()
	}
	return t
}

func (t *trailTracker) stopPrice() float64 {
	return t.maxPrice * (1 - t.trailingPct)
}

// observe processes one tick. exitReason is empty while the position should
// stay open; newHigh reports whether this tick advanced the max.
func (t *trailTracker) observe(price float64, now time.Time, belowTrend bool) (exitReason string, newHigh bool) {
	if t.maxHold > 0 && now.Sub(t.lastNewHigh) >= t.maxHold {
		return models.ExitTimeStop, false
	}
	if belowTrend {
		return models.ExitTrendExit, false
	}
	if price > t.maxPrice*(1+t.epsilonPct) {
		t.maxPrice = price
		t.lastNewHigh = now
		return "", true
	}
	if price <= t.stopPrice() {
		return models.ExitTrailing, false
	}
	return "", false
}
