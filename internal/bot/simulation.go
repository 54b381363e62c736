package bot

import (
	"context"
	"fmt"
	"time"

	"binance-spot-bot-go/internal/models"
	"binance-spot-bot-go/internal/strategy"
)

// Promotion criteria for a vortex bot to graduate from paper trading.
const (
	promotionMinTrades  = 30
	promotionMinWinRate = 0.55
)

// runSimulationCycle paper-trades the vortex signal on virtual capital. The
// position is virtual so the whole lifecycle fits in one non-blocking pass
// per cycle instead of delegating to the trailing-exit loop.
func (b *Bot) runSimulationCycle(ctx context.Context, now time.Time) error {
	price, err := b.deps.Data.LastPrice(ctx, b.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("fetch price: %w", err)
	}
	b.state.Apply(func(s *models.RuntimeSnapshot) { s.LastPrice = price })

	snap := b.state.Snapshot()
	if snap.VirtualQty > 0 {
		b.manageVirtualPosition(price, now)
		return nil
	}

	if now.Before(b.cooldownUntil) {
		b.setAction("COOLDOWN")
		return nil
	}
	if !b.armed(price) {
		return nil
	}

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

	b.simLastHigh = now
	b.state.Apply(func(s *models.RuntimeSnapshot) {
		s.VirtualEntryPrice = price
		s.VirtualQty = s.VirtualCapital / price
		s.VirtualMaxPrice = price
		s.LastAction = "SIM_BUY"
	})
	b.logger.Infow("simulated entry", "price", price, "score", sig.Score)
	return nil
}

// manageVirtualPosition mirrors the trailing-exit decision rules on the
// virtual position: time stop, then trailing stop off the virtual max.
func (b *Bot) manageVirtualPosition(price float64, now time.Time) {
	snap := b.state.Snapshot()

	maxHold := b.cfg.MaxHoldWithoutNewHigh()
	timeStop := maxHold > 0 && now.Sub(b.simLastHigh) >= maxHold

	if !timeStop && price > snap.VirtualMaxPrice*(1+b.cfg.NewHighEpsilonPct) {
		b.simLastHigh = now
		b.state.Apply(func(s *models.RuntimeSnapshot) {
			s.VirtualMaxPrice = price
			s.LastAction = "SIM_NEW_HIGH"
		})
		return
	}

	stop := snap.VirtualMaxPrice * (1 - snap.TrailingPct)
	if !timeStop && price > stop {
		b.setAction("SIM_TRAILING")
		return
	}

	// Virtual sell.
	proceeds := snap.VirtualQty * price
	pnl := proceeds - snap.VirtualCapital

	b.state.Apply(func(s *models.RuntimeSnapshot) {
		s.VirtualCapital = proceeds
		s.VirtualPnL += pnl
		s.VirtualQty = 0
		s.VirtualEntryPrice = 0
		s.VirtualMaxPrice = 0
		s.Armed = false
		s.ArmPrice = 0
		s.SimTrades++
		if pnl > 0 {
			s.SimWins++
		} else {
			s.SimLosses++
		}
		if s.VirtualPnL > s.VirtualPeakPnL {
			s.VirtualPeakPnL = s.VirtualPnL
		}
		if dd := s.VirtualPeakPnL - s.VirtualPnL; dd > s.SimMaxDrawdown {
			s.SimMaxDrawdown = dd
		}
		s.LastAction = "SIM_SOLD"
	})
	b.armRef = 0
	b.cooldownUntil = now.Add(b.cfg.CooldownAfterSell())

	b.logger.Infow("simulated exit",
		"price", price, "pnl", pnl, "time_stop", timeStop,
		"sim_trades", snap.SimTrades+1)

	b.maybePromote()
}

// maybePromote graduates the simulation to ARMED once the paper record is
// long enough, winning enough, and net positive.
func (b *Bot) maybePromote() {
	snap := b.state.Snapshot()
	if snap.SimTrades < promotionMinTrades || snap.VirtualPnL <= 0 {
		return
	}
	winRate := float64(snap.SimWins) / float64(snap.SimTrades)
	if winRate < promotionMinWinRate {
		return
	}

	b.state.Apply(func(s *models.RuntimeSnapshot) {
		s.Mode = models.ModeArmed
		s.LastAction = "PROMOTED"
	})
	b.logger.Infow("simulation promoted to armed",
		"sim_trades", snap.SimTrades, "win_rate", winRate, "virtual_pnl", snap.VirtualPnL)
	b.deps.Notifier.Notify(fmt.Sprintf(
		"🎓 %s vortex simulation promoted: %d trades, %.0f%% win rate, %+.4f virtual pnl. Live entries now require confirmation.",
		b.cfg.Symbol, snap.SimTrades, winRate*100, snap.VirtualPnL))
}

// vortexEntryApproved gates vortex buys with real money. Until the operator
// authorizes live trading, every firing signal raises a one-time YES/NO
// prompt; a declined or stale signal stays ignored until the score falls
// back under the threshold and crosses again.
func (b *Bot) vortexEntryApproved(ctx context.Context, sig strategy.Signal) (bool, error) {
	snap := b.state.Snapshot()

	if sig.Score <= strategy.VortexEntryThreshold {
		// Fresh crossing resets the ignore latches.
		if snap.SignalIgnored || snap.AwaitingFreshEntry {
			b.state.Apply(func(s *models.RuntimeSnapshot) {
				s.SignalIgnored = false
				s.AwaitingFreshEntry = false
			})
		}
		return false, nil
	}

	if snap.SignalIgnored || snap.AwaitingFreshEntry {
		b.setAction("SIGNAL_IGNORED")
		return false, nil
	}
	if snap.LiveAuthorized {
		return true, nil
	}

	b.state.Apply(func(s *models.RuntimeSnapshot) {
		s.AwaitingUserConfirm = true
		s.LastSignalAtUnix = float64(time.Now().Unix())
		s.LastAction = "AWAITING_CONFIRM"
	})
	defer b.state.Apply(func(s *models.RuntimeSnapshot) { s.AwaitingUserConfirm = false })

	confirmCtx, cancel := context.WithTimeout(ctx, confirmTimeout)
	defer cancel()
	approved, err := b.deps.Notifier.AskConfirmation(confirmCtx, fmt.Sprintf(
		"⚡ %s vortex signal (score %.2f). Execute LIVE buy?", b.cfg.Symbol, sig.Score))
	if err != nil {
		b.logger.Warnw("confirmation unanswered, signal ignored", "error", err)
		b.state.Apply(func(s *models.RuntimeSnapshot) { s.SignalIgnored = true })
		return false, nil
	}

	if !approved {
		b.state.Apply(func(s *models.RuntimeSnapshot) {
			s.SignalIgnored = true
			s.LastAction = "DECLINED"
		})
		b.logger.Infow("live entry declined by operator")
		return false, nil
	}

	b.state.Apply(func(s *models.RuntimeSnapshot) {
		s.LiveAuthorized = true
		s.UserConfirmedBuy = true
		s.LiveAuthorizedAtUnix = float64(time.Now().Unix())
		s.Mode = models.ModeLive
	})
	b.logger.Infow("live trading authorized by operator")
	return true, nil
}

// runAdvisoryCycle evaluates and records without ever trading.
func (b *Bot) runAdvisoryCycle(ctx context.Context) error {
	price, err := b.deps.Data.LastPrice(ctx, b.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("fetch price: %w", err)
	}
	b.state.Apply(func(s *models.RuntimeSnapshot) { s.LastPrice = price })

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

	advice, err := b.deps.Advisor.Assess(ctx, b.cfg.Symbol)
	if err != nil {
		advice = strategy.Advice{Regime: strategy.RegimeUnknown}
	}
	b.state.Apply(func(s *models.RuntimeSnapshot) {
		s.Regime = advice.Regime
		s.RegimeConfidence = advice.Confidence
		s.LastDecision = "ADVISORY_SIGNAL"
		s.LastAction = "ADVISORY_SIGNAL"
	})
	if err := b.deps.Ledger.RecordDecision(
		b.cfg.BotID, b.cfg.Profile, b.cfg.Symbol,
		"ADVISORY_SIGNAL", advice.Regime, advice.Confidence, "advisory mode",
	); err != nil {
		b.logger.Warnw("decision record failed", "error", err)
	}
	return nil
}
