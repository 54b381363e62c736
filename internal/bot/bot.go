// Package bot runs one trading worker per symbol: a strictly sequential
// trade cycle that arms, evaluates entries, opens a position and then blocks
// inside the trailing exit until the position is closed.
package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"binance-spot-bot-go/internal/adaptive"
	"binance-spot-bot-go/internal/exchange"
	"binance-spot-bot-go/internal/ledger"
	"binance-spot-bot-go/internal/market"
	"binance-spot-bot-go/internal/models"
	"binance-spot-bot-go/internal/notifier"
	"binance-spot-bot-go/internal/persistence"
	"binance-spot-bot-go/internal/strategy"

	"go.uber.org/zap"
)

const (
	// armPct is the rise above the tracked low that arms a vortex bot.
	armPct = 0.002

	heartbeatInterval = 5 * time.Second
	errorBackoff      = 5 * time.Second
	defaultCycleSleep = 10 * time.Second

	// confirmTimeout bounds how long a live-entry confirmation prompt may
	// block the cycle.
	confirmTimeout = 2 * time.Minute

	stopJoinTimeout = 15 * time.Second

	// rolloverTZ keys the daily counters; trading days follow the
	// operator's clock, not UTC.
	rolloverTZ = "America/Bogota"
)

// Deps carries the collaborators a bot is wired with.
type Deps struct {
	Data      market.Data
	Exchange  exchange.Exchange
	Ledger    ledger.Ledger
	Snapshots persistence.SnapshotRepository
	Notifier  notifier.Notifier
	Adaptive  *adaptive.Controller
	Advisor   strategy.Advisor

	// AdvisorActive lets a NO_EDGE regime veto trend entries. When false
	// the advisor runs in shadow: consulted, recorded, never blocking.
	AdvisorActive bool

	Logger       *zap.SugaredLogger
	CycleSleep   time.Duration
	PollInterval time.Duration
}

// Bot is one per-symbol worker. All trading state lives in b.state; the
// goroutine running the cycle is the only writer.
type Bot struct {
	cfg    *models.BotConfig
	deps   Deps
	state  *models.RuntimeState
	signal strategy.EntrySignal
	logger *zap.SugaredLogger

	loc        *time.Location
	currentDay string

	cooldownUntil time.Time
	armRef        float64
	simLastHigh   time.Time

	// resume holds a rehydrated open position until the first cycle
	// reattaches it.
	resume *models.PositionSnapshot

	stopCh   chan struct{}
	stopOnce sync.Once
	doneCh   chan struct{}

	cancelMu sync.Mutex
	cancel   context.CancelFunc
}

// New builds a bot. Configuration problems surface here, never mid-cycle.
func New(cfg *models.BotConfig, deps Deps) (*Bot, error) {
	if deps.Data == nil || deps.Exchange == nil || deps.Ledger == nil {
		return nil, fmt.Errorf("bot %s: market data, exchange and ledger are required", cfg.BotID)
	}
	if deps.Notifier == nil {
		deps.Notifier = notifier.Noop{}
	}
	if deps.Advisor == nil {
		deps.Advisor = strategy.NullAdvisor{}
	}
	if deps.CycleSleep <= 0 {
		deps.CycleSleep = defaultCycleSleep
	}

	loc, err := time.LoadLocation(rolloverTZ)
	if err != nil {
		return nil, fmt.Errorf("bot %s: load timezone %s: %w", cfg.BotID, rolloverTZ, err)
	}

	b := &Bot{
		cfg:    cfg,
		deps:   deps,
		state:  models.NewRuntimeState(cfg),
		signal: strategy.ForProfile(cfg),
		logger: deps.Logger.With("bot", cfg.BotID, "symbol", cfg.Symbol, "profile", cfg.Profile),
		loc:    loc,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	b.currentDay = time.Now().In(loc).Format("2006-01-02")

	if err := b.rehydrate(); err != nil {
		return nil, err
	}
	return b, nil
}

// rehydrate reattaches a persisted open position instead of re-entering.
// Only live-capable modes resume; a simulation bot starts flat.
func (b *Bot) rehydrate() error {
	if b.deps.Snapshots == nil {
		return nil
	}
	if b.cfg.Mode != models.ModeLive && b.cfg.Mode != models.ModeArmed {
		return nil
	}

	snap, err := b.deps.Snapshots.Load(b.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("bot %s: load position snapshot: %w", b.cfg.BotID, err)
	}
	if snap == nil || !snap.InPosition {
		return nil
	}

	b.resume = snap
	b.state.Apply(func(s *models.RuntimeSnapshot) {
		s.InPosition = true
		s.EntryPrice = snap.EntryPrice
		s.OpenPositionSpent = snap.SpentUSDT
		s.TrailingMaxPrice = snap.MaxPrice
		s.StopPrice = snap.StopPrice()
		if snap.TrailingPct > 0 {
			// The stop width in force when the position was opened, which
			// may be an adaptive override tighter than the profile base.
			s.TrailingPct = snap.TrailingPct
		}
		s.LastAction = "RESUMED"
	})
	b.logger.Infow("resuming open position from snapshot",
		"entry", snap.EntryPrice, "qty", snap.EntryQty,
		"max", snap.MaxPrice, "stop", snap.StopPrice())
	return nil
}

// Snapshot exposes a read-only copy of the runtime state.
func (b *Bot) Snapshot() models.RuntimeSnapshot {
	return b.state.Snapshot()
}

// Config returns the immutable bot configuration.
func (b *Bot) Config() *models.BotConfig {
	return b.cfg
}

// Start launches the worker goroutine.
func (b *Bot) Start() {
	b.state.Apply(func(s *models.RuntimeSnapshot) { s.Running = true })
	go b.run()
}

// Stop asks the worker to wind down and waits a bounded time for it.
func (b *Bot) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
		b.cancelMu.Lock()
		if b.cancel != nil {
			b.cancel()
		}
		b.cancelMu.Unlock()
	})

	select {
	case <-b.doneCh:
	case <-time.After(stopJoinTimeout):
		b.logger.Warnw("bot did not stop within join timeout")
	}
}

func (b *Bot) run() {
	defer close(b.doneCh)
	defer b.state.Apply(func(s *models.RuntimeSnapshot) { s.Running = false })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.cancelMu.Lock()
	b.cancel = cancel
	b.cancelMu.Unlock()

	go b.heartbeat()

	b.logger.Infow("bot started", "mode", b.cfg.Mode)

	for {
		select {
		case <-b.stopCh:
			b.logger.Infow("bot stopped")
			return
		default:
		}

		if err := b.runCycle(ctx); err != nil {
			if ctx.Err() != nil {
				b.logger.Infow("bot stopped mid-position")
				return
			}
			b.logger.Errorw("trade cycle failed", "error", err)
			b.sleep(errorBackoff)
			continue
		}
		b.sleep(b.deps.CycleSleep)
	}
}

// heartbeat emits a liveness line while the bot runs, including through the
// long blocking stretches inside the trailing exit.
func (b *Bot) heartbeat() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			s := b.state.Snapshot()
			b.logger.Debugw("heartbeat",
				"action", s.LastAction,
				"price", s.LastPrice,
				"in_position", s.InPosition,
				"buys_today", s.BuysToday,
				"pnl", s.TotalPnLUSDT,
			)
		}
	}
}

func (b *Bot) sleep(d time.Duration) {
	select {
	case <-time.After(d):
	case <-b.stopCh:
	}
}

// rolloverIfNeeded resets the daily counters when the trading day changes.
func (b *Bot) rolloverIfNeeded(now time.Time) {
	day := now.In(b.loc).Format("2006-01-02")
	if day == b.currentDay {
		return
	}
	b.currentDay = day
	b.state.Apply(func(s *models.RuntimeSnapshot) {
		s.BuysToday = 0
		s.SpentToday = 0
		s.CapitalSkipNotified = false
	})
	b.logger.Infow("daily rollover", "day", day)
}

// effectiveMaxBuys returns the adaptive override when one applies.
func (b *Bot) effectiveMaxBuys(s models.RuntimeSnapshot) int {
	if s.AdaptiveMaxBuysPerDay != nil {
		return *s.AdaptiveMaxBuysPerDay
	}
	return b.cfg.MaxBuysPerDay
}

// effectiveCooldown returns the adaptive override when one applies.
func (b *Bot) effectiveCooldown(s models.RuntimeSnapshot) time.Duration {
	if s.AdaptiveCooldownOverride != nil {
		return *s.AdaptiveCooldownOverride
	}
	return b.cfg.CooldownAfterSell()
}
