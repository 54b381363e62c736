package bot

import (
	"context"
	"fmt"
	"time"

	"binance-spot-bot-go/internal/adaptive"
	"binance-spot-bot-go/internal/exchange"
	"binance-spot-bot-go/internal/models"
	"binance-spot-bot-go/internal/strategy"
)

// runCycle executes one pass of the per-symbol state machine. A cycle either
// observes, opens a position (then blocks in the trailing exit until it is
// closed), or explains in LastAction why it did neither.
func (b *Bot) runCycle(ctx context.Context) error {
	now := time.Now()
	b.rolloverIfNeeded(now)

	// A rehydrated position skips straight to exit management.
	if b.resume != nil {
		snap := b.resume
		b.resume = nil
		trailing := snap.TrailingPct
		if trailing <= 0 {
			trailing = b.state.Snapshot().TrailingPct
		}
		return b.manageOpenPosition(ctx, openPosition{
			entryPrice:  snap.EntryPrice,
			qty:         snap.EntryQty,
			spent:       snap.SpentUSDT,
			maxPrice:    snap.MaxPrice,
			lastNewHigh: snap.LastUpdate,
			trailingPct: trailing,
		})
	}

	switch b.state.Snapshot().Mode {
	case models.ModeSimulation:
		return b.runSimulationCycle(ctx, now)
	case models.ModeAdvisory:
		return b.runAdvisoryCycle(ctx)
	default:
		return b.runLiveCycle(ctx, now)
	}
}

// openPosition carries an open position into the trailing exit.
type openPosition struct {
	entryPrice  float64
	qty         float64
	spent       float64
	maxPrice    float64
	lastNewHigh time.Time
	trailingPct float64
}

func (b *Bot) runLiveCycle(ctx context.Context, now time.Time) error {
	if now.Before(b.cooldownUntil) {
		b.setAction("COOLDOWN")
		return nil
	}

	price, err := b.deps.Data.LastPrice(ctx, b.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("fetch price: %w", err)
	}
	b.state.Apply(func(s *models.RuntimeSnapshot) { s.LastPrice = price })

	snap := b.state.Snapshot()

	// While asleep the controller is re-consulted every cycle so the wake
	// transition fires from fresh metrics, not only after a closed trade.
	if snap.AdaptiveState == models.AdaptiveSleep {
		b.evaluateAdaptive()
		snap = b.state.Snapshot()
		if snap.AdaptiveState == models.AdaptiveSleep {
			b.setAction("SLEEPING")
			return nil
		}
	}

	if b.cfg.Profile == "vortex" && !b.armed(price) {
		return nil
	}

	// Risk gates, in fixed order. The first one that fires names the cycle.
	if !b.cfg.DisableMaxBuysPerDay && snap.BuysToday >= b.effectiveMaxBuys(snap) {
		b.setAction("MAX_BUYS_REACHED")
		return nil
	}

	free, err := b.deps.Exchange.GetFreeBalance(ctx, b.cfg.QuoteAsset)
	if err != nil {
		return fmt.Errorf("fetch free balance: %w", err)
	}
	b.state.Apply(func(s *models.RuntimeSnapshot) { s.QuoteBalance = free })

	tradeUSDT := b.computeTradeUSDT(free)

	if b.cfg.RealCapitalEnabled && snap.SpentToday+tradeUSDT > b.cfg.RealCapitalLimit {
		b.setAction("REAL_CAPITAL_CAP")
		return nil
	}

	if !b.cfg.DisableDailyBudget && snap.SpentToday+tradeUSDT > b.cfg.DailyBudgetUSDT {
		b.setAction("BUDGET_REACHED")
		return nil
	}

	if tradeUSDT <= 0 || free < tradeUSDT {
		b.handleInsufficientCapital(free, tradeUSDT)
		return nil
	}
	b.clearCapitalSkip()

	// Entry signal.
	klines, err := b.deps.Data.Klines(ctx, b.cfg.Symbol, b.cfg.KlineInterval, b.cfg.KlineLimit)
	if err != nil {
		return fmt.Errorf("fetch klines: %w", err)
	}
	sig := b.signal.Evaluate(klines)
	b.recordSignal(sig)

	if !sig.Buy {
		b.setAction("NO_SIGNAL")
		return nil
	}

	if ok, err := b.entryApproved(ctx, sig); err != nil || !ok {
		return err
	}

	return b.executeBuy(ctx, tradeUSDT)
}

// armed implements the vortex pre-entry gate: the first observed price is
// snapshotted as the arm reference, entries unlock once price rises armPct
// above it. The reference never moves until the position cycle resets it.
func (b *Bot) armed(price float64) bool {
	snap := b.state.Snapshot()
	if snap.Armed {
		return true
	}

	if b.armRef == 0 {
		b.armRef = price
		b.state.Apply(func(s *models.RuntimeSnapshot) {
			s.ArmPrice = price
			s.LastAction = "WAITING_ARM"
		})
		return false
	}
	if price >= b.armRef*(1+armPct) {
		b.state.Apply(func(s *models.RuntimeSnapshot) {
			s.Armed = true
			s.LastAction = "ARMED"
		})
		b.logger.Infow("armed", "reference", b.armRef, "price", price)
		return true
	}
	b.setAction("WAITING_ARM")
	return false
}

// computeTradeUSDT sizes the next buy: the configured fraction of the free
// wallet, raised to the exchange minimum when the bot's capital slice can
// afford it, zero when it cannot.
func (b *Bot) computeTradeUSDT(free float64) float64 {
	slice := free * b.cfg.CapitalPct
	notional := slice * b.cfg.TradePct
	if notional >= b.cfg.MinTradeUSDT {
		return notional
	}
	if slice >= b.cfg.MinTradeUSDT {
		return b.cfg.MinTradeUSDT
	}
	return 0
}

// handleInsufficientCapital logs every time but pings the operator only once
// per shortage episode.
func (b *Bot) handleInsufficientCapital(free, tradeUSDT float64) {
	b.setAction("INSUFFICIENT_CAPITAL")
	snap := b.state.Snapshot()
	if snap.CapitalSkipNotified {
		return
	}
	b.state.Apply(func(s *models.RuntimeSnapshot) { s.CapitalSkipNotified = true })
	b.deps.Notifier.NotifyEphemeral(fmt.Sprintf(
		"⚠️ %s: skipping entries, free %.2f %s below trade size %.2f",
		b.cfg.Symbol, free, b.cfg.QuoteAsset, tradeUSDT), 10*time.Minute)
	b.logger.Warnw("insufficient capital, entries paused",
		"free", free, "trade_usdt", tradeUSDT)
}

func (b *Bot) clearCapitalSkip() {
	if b.state.Snapshot().CapitalSkipNotified {
		b.state.Apply(func(s *models.RuntimeSnapshot) { s.CapitalSkipNotified = false })
	}
}

func (b *Bot) recordSignal(sig strategy.Signal) {
	b.state.Apply(func(s *models.RuntimeSnapshot) {
		s.VortexScore = sig.Score
		s.SMAFastValue = sig.SMAFast
		s.SMASlowValue = sig.SMASlow
	})
}

// entryApproved runs the last gates between a firing signal and the order:
// the regime advisor for trend profiles and the operator confirmation for a
// vortex bot that has not yet been authorized live.
func (b *Bot) entryApproved(ctx context.Context, sig strategy.Signal) (bool, error) {
	if b.cfg.Profile == "vortex" {
		return b.vortexEntryApproved(ctx, sig)
	}
	return b.advisorApproved(ctx)
}

func (b *Bot) advisorApproved(ctx context.Context) (bool, error) {
	advice, err := b.deps.Advisor.Assess(ctx, b.cfg.Symbol)
	if err != nil {
		b.logger.Warnw("advisor unavailable, proceeding without regime", "error", err)
		advice = strategy.Advice{Regime: strategy.RegimeUnknown}
	}

	blocked := b.deps.AdvisorActive && advice.Regime == strategy.RegimeNoEdge
	decision := "ENTER"
	note := "signal"
	if blocked {
		decision = "NO_TRADE"
		note = "advisor veto"
	}

	b.state.Apply(func(s *models.RuntimeSnapshot) {
		s.Regime = advice.Regime
		s.RegimeConfidence = advice.Confidence
		s.LastDecision = decision
		s.LastDecisionNote = note
		s.BlockedByAdvisor = blocked
	})
	if err := b.deps.Ledger.RecordDecision(
		b.cfg.BotID, b.cfg.Profile, b.cfg.Symbol,
		decision, advice.Regime, advice.Confidence, note,
	); err != nil {
		b.logger.Warnw("decision record failed", "error", err)
	}

	if blocked {
		b.setAction("ADVISOR_BLOCKED")
		return false, nil
	}
	return true, nil
}

func (b *Bot) executeBuy(ctx context.Context, tradeUSDT float64) error {
	fill, err := b.deps.Exchange.Buy(ctx, b.cfg.Symbol, tradeUSDT, models.NewClientOrderID(b.cfg.BotID))
	if err != nil {
		return fmt.Errorf("buy: %w", err)
	}

	now := time.Now()
	b.state.Apply(func(s *models.RuntimeSnapshot) {
		s.InPosition = true
		s.EntryPrice = fill.Price
		s.OpenPositionSpent = fill.Quote
		s.TrailingMaxPrice = fill.Price
		s.StopPrice = fill.Price * (1 - s.TrailingPct)
		s.BuysToday++
		s.SpentToday += fill.Quote
		s.LastAction = "BOUGHT"
	})

	rec := &models.TradeRecord{
		Timestamp: now,
		BotID:     b.cfg.BotID,
		Profile:   b.cfg.Profile,
		Symbol:    b.cfg.Symbol,
		Side:      models.Buy,
		Price:     fill.Price,
		Qty:       fill.Qty,
		SpentUSDT: fill.Quote,
	}
	if err := b.deps.Ledger.RecordTrade(rec); err != nil {
		b.logger.Errorw("buy record failed", "error", err)
	}

	b.persistPosition(fill.Price, fill.Qty, fill.Quote, fill.Price, now)

	b.logger.Infow("position opened",
		"price", fill.Price, "qty", fill.Qty, "spent", fill.Quote)
	b.deps.Notifier.Notify(fmt.Sprintf("🟢 %s BUY %.6f @ %.4f (%.2f USDT)",
		b.cfg.Symbol, fill.Qty, fill.Price, fill.Quote))

	return b.manageOpenPosition(ctx, openPosition{
		entryPrice:  fill.Price,
		qty:         fill.Qty,
		spent:       fill.Quote,
		maxPrice:    fill.Price,
		lastNewHigh: now,
		trailingPct: b.state.Snapshot().TrailingPct,
	})
}

// manageOpenPosition hands the position to the trailing exit and settles the
// outcome: ledger row, pnl accounting, adaptive evaluation, cooldown.
func (b *Bot) manageOpenPosition(ctx context.Context, pos openPosition) error {
	params := exchange.TrailParams{
		Symbol:           b.cfg.Symbol,
		BaseAsset:        b.cfg.BaseAsset,
		EntryPrice:       pos.entryPrice,
		Qty:              pos.qty,
		MaxPrice:         pos.maxPrice,
		LastNewHigh:      pos.lastNewHigh,
		TrailingPct:      pos.trailingPct,
		NewHighEpsilon:   b.cfg.NewHighEpsilonPct,
		MaxHold:          b.cfg.MaxHoldWithoutNewHigh(),
		TrendExitEnabled: b.cfg.TrendExitEnabled,
		TrendSMAPeriod:   b.cfg.TrendSMAPeriod,
		KlineInterval:    b.cfg.KlineInterval,
		PollInterval:     b.deps.PollInterval,
		ClientOrderID:    models.NewClientOrderID(b.cfg.BotID),
	}

	b.setAction("TRAILING")
	exitFill, err := b.deps.Exchange.TrailingExit(ctx, params, func(tick exchange.TickInfo) {
		b.state.Apply(func(s *models.RuntimeSnapshot) {
			s.LastPrice = tick.Price
			s.TrailingMaxPrice = tick.MaxPrice
			s.StopPrice = tick.StopPrice
		})
		if tick.NewHigh {
			b.persistPosition(pos.entryPrice, pos.qty, pos.spent, tick.MaxPrice, time.Now())
		}
	})
	if err != nil {
		return fmt.Errorf("trailing exit: %w", err)
	}

	pnl := exitFill.Quote - pos.spent
	now := time.Now()

	b.state.Apply(func(s *models.RuntimeSnapshot) {
		s.InPosition = false
		s.EntryPrice = 0
		s.OpenPositionSpent = 0
		s.TrailingMaxPrice = 0
		s.StopPrice = 0
		s.Armed = false
		s.ArmPrice = 0
		s.LastTradePnL = pnl
		s.TotalPnLUSDT += pnl
		s.LastAction = "SOLD_" + exitFill.Reason
	})
	b.armRef = 0

	rec := &models.TradeRecord{
		Timestamp:    now,
		BotID:        b.cfg.BotID,
		Profile:      b.cfg.Profile,
		Symbol:       b.cfg.Symbol,
		Side:         models.Sell,
		Price:        exitFill.Price,
		Qty:          exitFill.Qty,
		SpentUSDT:    pos.spent,
		ReceivedUSDT: exitFill.Quote,
		PnL:          pnl,
		ExitReason:   exitFill.Reason,
	}
	if err := b.deps.Ledger.RecordTrade(rec); err != nil {
		b.logger.Errorw("sell record failed", "error", err)
	}

	if b.deps.Snapshots != nil {
		if err := b.deps.Snapshots.Clear(b.cfg.Symbol); err != nil {
			b.logger.Warnw("snapshot clear failed", "error", err)
		}
	}

	b.logger.Infow("position closed",
		"reason", exitFill.Reason, "price", exitFill.Price,
		"received", exitFill.Quote, "pnl", pnl)
	b.deps.Notifier.Notify(fmt.Sprintf("🔴 %s SELL [%s] %.6f @ %.4f | pnl %+.4f USDT",
		b.cfg.Symbol, exitFill.Reason, exitFill.Qty, exitFill.Price, pnl))

	b.evaluateAdaptive()

	cooldown := b.effectiveCooldown(b.state.Snapshot())
	b.cooldownUntil = now.Add(cooldown)
	return nil
}

// persistPosition saves the resumable snapshot; a failed save is a warning,
// the in-memory position stays authoritative.
func (b *Bot) persistPosition(entry, qty, spent, maxPrice float64, entryTime time.Time) {
	if b.deps.Snapshots == nil {
		return
	}
	snap := &models.PositionSnapshot{
		Symbol:      b.cfg.Symbol,
		Profile:     b.cfg.Profile,
		InPosition:  true,
		EntryPrice:  entry,
		EntryQty:    qty,
		SpentUSDT:   spent,
		MaxPrice:    maxPrice,
		TrailingPct: b.state.Snapshot().TrailingPct,
		EntryTime:   entryTime,
	}
	if err := b.deps.Snapshots.Save(snap); err != nil {
		b.logger.Warnw("snapshot save failed", "error", err)
	}
}

// evaluateAdaptive consults the risk controller, after every closed trade and
// on every sleeping cycle, and applies the posture's parameter overrides.
func (b *Bot) evaluateAdaptive() {
	if b.deps.Adaptive == nil {
		return
	}
	snap := b.state.Snapshot()
	eval, err := b.deps.Adaptive.Evaluate(b.cfg.BotID, b.cfg.Profile, b.cfg.Symbol, snap.AdaptiveState)
	if err != nil {
		b.logger.Warnw("adaptive evaluation failed", "error", err)
		return
	}
	if !eval.Changed {
		return
	}

	b.applyAdaptiveState(eval.Target, eval.Reason)
	b.logger.Infow("adaptive transition",
		"from", snap.AdaptiveState, "to", eval.Target, "reason", eval.Reason)
	b.deps.Notifier.Notify(fmt.Sprintf("🛡 %s risk posture %s → %s (%s)",
		b.cfg.Symbol, snap.AdaptiveState, eval.Target, eval.Reason))
}

// applyAdaptiveState installs the target posture's side effects on the
// runtime state. NORMAL and SLEEP restore the profile's base parameters;
// DEFENSIVE and COOLDOWN_EXTENDED tighten them.
func (b *Bot) applyAdaptiveState(target models.AdaptiveState, reason string) {
	b.state.Apply(func(s *models.RuntimeSnapshot) {
		s.AdaptiveState = target
		s.AdaptiveReason = reason

		switch target {
		case models.AdaptiveDefensive, models.AdaptiveCooldownExtended:
			trailing := b.cfg.TrailingPct * adaptive.DefensiveTrailingFactor
			if trailing < adaptive.DefensiveTrailingFloor {
				trailing = adaptive.DefensiveTrailingFloor
			}
			s.TrailingPct = trailing

			maxBuys := int(float64(b.cfg.MaxBuysPerDay) * adaptive.DefensiveMaxBuysFactor)
			if maxBuys < 1 {
				maxBuys = 1
			}
			s.AdaptiveMaxBuysPerDay = &maxBuys

			cooldown := time.Duration(float64(b.cfg.CooldownAfterSell()) * adaptive.DefensiveCooldownFactor)
			s.AdaptiveCooldownOverride = &cooldown

		default:
			s.TrailingPct = b.cfg.TrailingPct
			s.AdaptiveMaxBuysPerDay = nil
			s.AdaptiveCooldownOverride = nil
		}
	})
}

func (b *Bot) setAction(action string) {
	b.state.Apply(func(s *models.RuntimeSnapshot) { s.LastAction = action })
}
