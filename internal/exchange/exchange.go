// Package exchange is the execution port: balance reads, market buys by
// quote amount, and the blocking trailing-exit loop that owns an open
// position until it is sold or the bot stops.
package exchange

import (
	"context"
	"time"

	"binance-spot-bot-go/internal/models"
)

// TickInfo is passed to the progress callback on every trailing-exit poll.
type TickInfo struct {
	Price     float64
	MaxPrice  float64
	StopPrice float64
	NewHigh   bool
}

// TrailParams describes one trailing-exit run. MaxPrice and LastNewHigh are
// pre-seeded when resuming a persisted position; otherwise they start at the
// entry.
type TrailParams struct {
	Symbol     string
	BaseAsset  string
	EntryPrice float64
	Qty        float64

	MaxPrice    float64
	LastNewHigh time.Time

	TrailingPct      float64
	NewHighEpsilon   float64
	MaxHold          time.Duration
	TrendExitEnabled bool
	TrendSMAPeriod   int
	KlineInterval    string

	PollInterval  time.Duration
	ClientOrderID string
}

// Exchange executes orders for one account. Implementations must be safe for
// use from a single bot goroutine; they are not required to be concurrent.
type Exchange interface {
	// GetFreeBalance returns the free (unlocked) amount of the asset.
	GetFreeBalance(ctx context.Context, asset string) (float64, error)

	// Buy places a market buy spending quoteUSDT of the quote asset and
	// returns the aggregate fill.
	Buy(ctx context.Context, symbol string, quoteUSDT float64, clientOrderID string) (*models.Fill, error)

	// TrailingExit blocks until the position is sold and returns the exit
	// fill with its reason. Context cancellation aborts the loop with
	// ctx.Err() and no fill; the position stays open.
	TrailingExit(ctx context.Context, p TrailParams, onTick func(TickInfo)) (*models.ExitFill, error)
}
