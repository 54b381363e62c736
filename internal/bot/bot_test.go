package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"binance-spot-bot-go/internal/adaptive"
	"binance-spot-bot-go/internal/config"
	"binance-spot-bot-go/internal/exchange"
	"binance-spot-bot-go/internal/ledger"
	"binance-spot-bot-go/internal/models"
	"binance-spot-bot-go/internal/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// --- mocks ---

type mockData struct {
	price      float64
	priceErr   error
	klines     []models.Kline
	klinesErr  error
	priceCalls int
}

func (m *mockData) LastPrice(ctx context.Context, symbol string) (float64, error) {
	m.priceCalls++
	return m.price, m.priceErr
}

func (m *mockData) Klines(ctx context.Context, symbol, interval string, limit int) ([]models.Kline, error) {
	return m.klines, m.klinesErr
}

type mockExchange struct {
	free    float64
	freeErr error

	buyFill  *models.Fill
	buyErr   error
	buyCalls []float64

	exitFill  *models.ExitFill
	exitErr   error
	exitCalls []exchange.TrailParams
	ticks     []exchange.TickInfo

	balanceCalls int
}

func (m *mockExchange) GetFreeBalance(ctx context.Context, asset string) (float64, error) {
	m.balanceCalls++
	return m.free, m.freeErr
}

func (m *mockExchange) Buy(ctx context.Context, symbol string, quoteUSDT float64, clientOrderID string) (*models.Fill, error) {
	m.buyCalls = append(m.buyCalls, quoteUSDT)
	return m.buyFill, m.buyErr
}

func (m *mockExchange) TrailingExit(ctx context.Context, p exchange.TrailParams, onTick func(exchange.TickInfo)) (*models.ExitFill, error) {
	m.exitCalls = append(m.exitCalls, p)
	for _, tick := range m.ticks {
		onTick(tick)
	}
	return m.exitFill, m.exitErr
}

type mockNotifier struct {
	messages      []string
	ephemeral     []string
	confirmAnswer bool
	confirmErr    error
	confirmCalls  int
}

func (m *mockNotifier) Notify(text string) { m.messages = append(m.messages, text) }

func (m *mockNotifier) NotifyEphemeral(text string, _ time.Duration) {
	m.ephemeral = append(m.ephemeral, text)
}

func (m *mockNotifier) AskConfirmation(ctx context.Context, text string) (bool, error) {
	m.confirmCalls++
	return m.confirmAnswer, m.confirmErr
}

type mockSnapshots struct {
	mu         sync.Mutex
	saved      map[string]*models.PositionSnapshot
	saveCalls  int
	clearCalls int
}

func newMockSnapshots() *mockSnapshots {
	return &mockSnapshots{saved: make(map[string]*models.PositionSnapshot)}
}

func (m *mockSnapshots) Save(snap *models.PositionSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	cp := *snap
	m.saved[snap.Symbol] = &cp
	return nil
}

func (m *mockSnapshots) Load(symbol string) (*models.PositionSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.saved[symbol]
	if !ok {
		return nil, nil
	}
	cp := *snap
	return &cp, nil
}

func (m *mockSnapshots) Clear(symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearCalls++
	delete(m.saved, symbol)
	return nil
}

func (m *mockSnapshots) Close() error { return nil }

type mockAdvisor struct {
	advice strategy.Advice
	err    error
}

func (m *mockAdvisor) Assess(ctx context.Context, symbol string) (strategy.Advice, error) {
	return m.advice, m.err
}

// --- helpers ---

func testBotConfig(t *testing.T, profile string) *models.BotConfig {
	t.Helper()
	cfg := &models.BotConfig{Symbol: "BTCUSDT", Profile: profile}
	require.NoError(t, config.ApplyProfile(cfg))
	return cfg
}

// risingKlines produces a window that fires both signal families: closes
// climb one per candle with tight ranges, so the fast SMA leads and the
// velocity/ATR score lands near 0.9.
func risingKlines(n int, start float64) []models.Kline {
	klines := make([]models.Kline, n)
	for i := range klines {
		c := start + float64(i)
		klines[i] = models.Kline{Open: c, High: c + 0.1, Low: c - 0.1, Close: c}
	}
	return klines
}

func flatTestKlines(n int, price float64) []models.Kline {
	klines := make([]models.Kline, n)
	for i := range klines {
		klines[i] = models.Kline{Open: price, High: price + 0.1, Low: price - 0.1, Close: price}
	}
	return klines
}

type testHarness struct {
	bot       *Bot
	data      *mockData
	exchange  *mockExchange
	ledger    *ledger.MemoryLedger
	snapshots *mockSnapshots
	notifier  *mockNotifier
	advisor   *mockAdvisor
}

func newTestBot(t *testing.T, cfg *models.BotConfig, mutate func(*Deps)) *testHarness {
	t.Helper()

	h := &testHarness{
		data: &mockData{
			price:  100.0,
			klines: risingKlines(30, 100.0),
		},
		exchange: &mockExchange{
			free:     1000.0,
			buyFill:  &models.Fill{Price: 100.0, Qty: 0.525, Quote: 52.5},
			exitFill: &models.ExitFill{Fill: models.Fill{Price: 105.0, Qty: 0.525, Quote: 55.0}, Reason: models.ExitTrailing},
		},
		ledger:    ledger.NewMemoryLedger(),
		snapshots: newMockSnapshots(),
		notifier:  &mockNotifier{},
		advisor:   &mockAdvisor{advice: strategy.Advice{Regime: strategy.RegimeUnknown}},
	}

	deps := Deps{
		Data:      h.data,
		Exchange:  h.exchange,
		Ledger:    h.ledger,
		Snapshots: h.snapshots,
		Notifier:  h.notifier,
		Advisor:   h.advisor,
		Logger:    zap.NewNop().Sugar(),
	}
	if mutate != nil {
		mutate(&deps)
	}

	b, err := New(cfg, deps)
	require.NoError(t, err, "bot construction should succeed")
	h.bot = b
	return h
}

// --- tests ---

func TestNewRequiresCoreDependencies(t *testing.T) {
	cfg := testBotConfig(t, config.ProfileEquilibrium)

	_, err := New(cfg, Deps{Logger: zap.NewNop().Sugar()})
	assert.Error(t, err)
}

func TestComputeTradeUSDT(t *testing.T) {
	cfg := testBotConfig(t, config.ProfileEquilibrium) // 15% capital, 35% per trade, 7 min
	h := newTestBot(t, cfg, nil)

	// 1000 free: slice 150, notional 52.5.
	assert.InDelta(t, 52.5, h.bot.computeTradeUSDT(1000.0), 1e-9)

	// 100 free: notional 5.25 is under the minimum but the slice of 15
	// still affords the 7 USDT floor.
	assert.InDelta(t, 7.0, h.bot.computeTradeUSDT(100.0), 1e-9)

	// 40 free: the 6 USDT slice cannot cover the minimum at all.
	assert.Zero(t, h.bot.computeTradeUSDT(40.0))
}

func TestCooldownBlocksCycleBeforePriceFetch(t *testing.T) {
	cfg := testBotConfig(t, config.ProfileEquilibrium)
	h := newTestBot(t, cfg, nil)
	h.bot.cooldownUntil = time.Now().Add(time.Minute)

	require.NoError(t, h.bot.runLiveCycle(context.Background(), time.Now()))

	assert.Equal(t, "COOLDOWN", h.bot.Snapshot().LastAction)
	assert.Zero(t, h.data.priceCalls)
}

func TestSleepStateBlocksEntries(t *testing.T) {
	cfg := testBotConfig(t, config.ProfileEquilibrium)
	h := newTestBot(t, cfg, nil)
	h.bot.state.Apply(func(s *models.RuntimeSnapshot) { s.AdaptiveState = models.AdaptiveSleep })

	require.NoError(t, h.bot.runLiveCycle(context.Background(), time.Now()))

	assert.Equal(t, "SLEEPING", h.bot.Snapshot().LastAction)
	assert.Empty(t, h.exchange.buyCalls)
}

func TestSleepingBotWakesWhenMarketTurnsActive(t *testing.T) {
	cfg := testBotConfig(t, config.ProfileEquilibrium)
	led := ledger.NewMemoryLedger()
	ctrl := adaptive.NewController(led, led, config.ProfileEquilibrium, zap.NewNop().Sugar())
	h := newTestBot(t, cfg, func(d *Deps) {
		d.Ledger = led
		d.Adaptive = ctrl
	})
	h.ledger = led

	// A choppy window: pnl swings of 1% dwarf the sleep thresholds.
	for i := 0; i < 6; i++ {
		pnl := 1.0
		if i%2 == 0 {
			pnl = -1.0
		}
		require.NoError(t, led.RecordTrade(&models.TradeRecord{
			BotID:        cfg.BotID,
			Profile:      cfg.Profile,
			Symbol:       cfg.Symbol,
			Side:         models.Sell,
			SpentUSDT:    100.0,
			ReceivedUSDT: 100.0 + pnl,
			PnL:          pnl,
		}))
	}
	h.bot.state.Apply(func(s *models.RuntimeSnapshot) { s.AdaptiveState = models.AdaptiveSleep })

	require.NoError(t, h.bot.runLiveCycle(context.Background(), time.Now()))

	// The sleeping cycle re-evaluates the controller, wakes on the volatile
	// window and then proceeds through the entry gates.
	assert.Equal(t, models.AdaptiveNormal, h.bot.Snapshot().AdaptiveState)
	assert.Len(t, h.exchange.buyCalls, 1)
}

func TestMaxBuysGateFiresBeforeBalanceFetch(t *testing.T) {
	cfg := testBotConfig(t, config.ProfileEquilibrium)
	h := newTestBot(t, cfg, nil)
	h.bot.state.Apply(func(s *models.RuntimeSnapshot) { s.BuysToday = cfg.MaxBuysPerDay })

	require.NoError(t, h.bot.runLiveCycle(context.Background(), time.Now()))

	assert.Equal(t, "MAX_BUYS_REACHED", h.bot.Snapshot().LastAction)
	assert.Zero(t, h.exchange.balanceCalls)
}

func TestRealCapitalCapBlocksOversizedEntry(t *testing.T) {
	cfg := testBotConfig(t, config.ProfileEquilibrium)
	cfg.RealCapitalEnabled = true
	cfg.RealCapitalLimit = 5.0
	h := newTestBot(t, cfg, nil)

	require.NoError(t, h.bot.runLiveCycle(context.Background(), time.Now()))

	// The 52.5 sized from the wallet would breach the 5 USDT limit, so the
	// cycle skips entirely; the order is never shrunk to fit.
	assert.Equal(t, "REAL_CAPITAL_CAP", h.bot.Snapshot().LastAction)
	assert.Empty(t, h.exchange.buyCalls)
}

func TestRealCapitalCapAdmitsEntryWithinLimit(t *testing.T) {
	cfg := testBotConfig(t, config.ProfileEquilibrium)
	cfg.RealCapitalEnabled = true
	cfg.RealCapitalLimit = 60.0
	h := newTestBot(t, cfg, nil)

	require.NoError(t, h.bot.runLiveCycle(context.Background(), time.Now()))

	require.Len(t, h.exchange.buyCalls, 1)
	assert.InDelta(t, 52.5, h.exchange.buyCalls[0], 1e-9)
}

func TestRealCapitalCapCountsSpentToday(t *testing.T) {
	cfg := testBotConfig(t, config.ProfileEquilibrium)
	cfg.RealCapitalEnabled = true
	cfg.RealCapitalLimit = 60.0
	h := newTestBot(t, cfg, nil)
	h.bot.state.Apply(func(s *models.RuntimeSnapshot) { s.SpentToday = 20.0 })

	require.NoError(t, h.bot.runLiveCycle(context.Background(), time.Now()))

	assert.Equal(t, "REAL_CAPITAL_CAP", h.bot.Snapshot().LastAction)
	assert.Empty(t, h.exchange.buyCalls)
}

func TestDailyBudgetGate(t *testing.T) {
	cfg := testBotConfig(t, config.ProfileEquilibrium)
	h := newTestBot(t, cfg, nil)
	h.bot.state.Apply(func(s *models.RuntimeSnapshot) { s.SpentToday = cfg.DailyBudgetUSDT - 1 })

	require.NoError(t, h.bot.runLiveCycle(context.Background(), time.Now()))

	assert.Equal(t, "BUDGET_REACHED", h.bot.Snapshot().LastAction)
	assert.Empty(t, h.exchange.buyCalls)
}

func TestInsufficientCapitalNotifiesOnce(t *testing.T) {
	cfg := testBotConfig(t, config.ProfileEquilibrium)
	h := newTestBot(t, cfg, nil)
	h.exchange.free = 40.0 // slice below the trade minimum

	require.NoError(t, h.bot.runLiveCycle(context.Background(), time.Now()))
	require.NoError(t, h.bot.runLiveCycle(context.Background(), time.Now()))

	assert.Equal(t, "INSUFFICIENT_CAPITAL", h.bot.Snapshot().LastAction)
	assert.Len(t, h.notifier.ephemeral, 1, "the shortage should ping the operator once")

	// Capital recovers: the latch clears and the next shortage pings again.
	h.exchange.free = 1000.0
	require.NoError(t, h.bot.runLiveCycle(context.Background(), time.Now()))
	assert.False(t, h.bot.Snapshot().CapitalSkipNotified)

	// The recovery cycle traded and armed a cooldown; skip past it.
	h.bot.cooldownUntil = time.Time{}
	h.exchange.free = 40.0
	require.NoError(t, h.bot.runLiveCycle(context.Background(), time.Now()))
	assert.Len(t, h.notifier.ephemeral, 2)
}

func TestNoSignalMeansNoBuy(t *testing.T) {
	cfg := testBotConfig(t, config.ProfileEquilibrium)
	h := newTestBot(t, cfg, nil)
	h.data.klines = flatTestKlines(30, 100.0)

	require.NoError(t, h.bot.runLiveCycle(context.Background(), time.Now()))

	assert.Equal(t, "NO_SIGNAL", h.bot.Snapshot().LastAction)
	assert.Empty(t, h.exchange.buyCalls)
}

func TestBuyAndTrailingExitSettlement(t *testing.T) {
	cfg := testBotConfig(t, config.ProfileEquilibrium)
	h := newTestBot(t, cfg, nil)

	require.NoError(t, h.bot.runCycle(context.Background()))

	// Order sizing reached the exchange.
	require.Len(t, h.exchange.buyCalls, 1)
	assert.InDelta(t, 52.5, h.exchange.buyCalls[0], 1e-9)

	// The trailing exit ran with the entry parameters.
	require.Len(t, h.exchange.exitCalls, 1)
	params := h.exchange.exitCalls[0]
	assert.Equal(t, "BTCUSDT", params.Symbol)
	assert.InDelta(t, 100.0, params.EntryPrice, 1e-9)
	assert.InDelta(t, cfg.TrailingPct, params.TrailingPct, 1e-9)
	assert.Equal(t, cfg.MaxHoldWithoutNewHigh(), params.MaxHold)

	// Ledger carries the BUY and the settled SELL.
	trades, err := h.ledger.RecentTrades(cfg.BotID, 10, "")
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, models.Buy, trades[0].Side)
	assert.Equal(t, models.Sell, trades[1].Side)
	assert.InDelta(t, 2.5, trades[1].PnL, 1e-9, "pnl is received minus spent")
	assert.Equal(t, models.ExitTrailing, trades[1].ExitReason)

	// Runtime state settled.
	snap := h.bot.Snapshot()
	assert.False(t, snap.InPosition)
	assert.Equal(t, 1, snap.BuysToday)
	assert.InDelta(t, 52.5, snap.SpentToday, 1e-9)
	assert.InDelta(t, 2.5, snap.TotalPnLUSDT, 1e-9)
	assert.Equal(t, "SOLD_TRAILING", snap.LastAction)

	// Snapshot persisted on entry, cleared on exit; cooldown armed.
	assert.GreaterOrEqual(t, h.snapshots.saveCalls, 1)
	assert.Empty(t, h.snapshots.saved)
	assert.True(t, h.bot.cooldownUntil.After(time.Now()))

	assert.Len(t, h.notifier.messages, 2, "buy and sell notifications")
}

func TestTrailingTicksUpdateStateAndPersistNewHighs(t *testing.T) {
	cfg := testBotConfig(t, config.ProfileEquilibrium)
	h := newTestBot(t, cfg, nil)
	h.exchange.ticks = []exchange.TickInfo{
		{Price: 101.0, MaxPrice: 101.0, StopPrice: 99.485, NewHigh: true},
		{Price: 100.2, MaxPrice: 101.0, StopPrice: 99.485},
	}

	require.NoError(t, h.bot.runCycle(context.Background()))

	// Entry save plus one refresh for the new high.
	assert.Equal(t, 2, h.snapshots.saveCalls)
}

func TestTrailingExitErrorKeepsPositionOpen(t *testing.T) {
	cfg := testBotConfig(t, config.ProfileEquilibrium)
	h := newTestBot(t, cfg, nil)
	h.exchange.exitFill = nil
	h.exchange.exitErr = context.Canceled

	err := h.bot.runCycle(context.Background())
	require.Error(t, err)

	snap := h.bot.Snapshot()
	assert.True(t, snap.InPosition, "position must survive an aborted exit loop")
	assert.NotEmpty(t, h.snapshots.saved, "resumable snapshot must stay on disk")
}

func TestAdvisorVetoBlocksEntryWhenActive(t *testing.T) {
	cfg := testBotConfig(t, config.ProfileEquilibrium)
	h := newTestBot(t, cfg, func(d *Deps) { d.AdvisorActive = true })
	h.advisor.advice = strategy.Advice{Regime: strategy.RegimeNoEdge, Confidence: 0.9}

	require.NoError(t, h.bot.runLiveCycle(context.Background(), time.Now()))

	assert.Equal(t, "ADVISOR_BLOCKED", h.bot.Snapshot().LastAction)
	assert.Empty(t, h.exchange.buyCalls)

	require.Len(t, h.ledger.Decisions, 1)
	assert.Equal(t, "NO_TRADE", h.ledger.Decisions[0].Decision)
	assert.Equal(t, strategy.RegimeNoEdge, h.ledger.Decisions[0].Regime)
}

func TestAdvisorInShadowModeNeverBlocks(t *testing.T) {
	cfg := testBotConfig(t, config.ProfileEquilibrium)
	h := newTestBot(t, cfg, nil) // AdvisorActive false
	h.advisor.advice = strategy.Advice{Regime: strategy.RegimeNoEdge, Confidence: 0.9}

	require.NoError(t, h.bot.runLiveCycle(context.Background(), time.Now()))

	assert.Len(t, h.exchange.buyCalls, 1, "shadow advisor is telemetry only")
	require.NotEmpty(t, h.ledger.Decisions)
	assert.Equal(t, "ENTER", h.ledger.Decisions[0].Decision)
}

func TestAdvisorErrorDoesNotBlock(t *testing.T) {
	cfg := testBotConfig(t, config.ProfileEquilibrium)
	h := newTestBot(t, cfg, func(d *Deps) { d.AdvisorActive = true })
	h.advisor.err = errors.New("advisor down")

	require.NoError(t, h.bot.runLiveCycle(context.Background(), time.Now()))

	assert.Len(t, h.exchange.buyCalls, 1)
}

func TestDailyRolloverResetsCounters(t *testing.T) {
	cfg := testBotConfig(t, config.ProfileEquilibrium)
	h := newTestBot(t, cfg, nil)
	h.bot.currentDay = "2000-01-01"
	h.bot.state.Apply(func(s *models.RuntimeSnapshot) {
		s.BuysToday = 5
		s.SpentToday = 80.0
		s.CapitalSkipNotified = true
	})

	h.bot.rolloverIfNeeded(time.Now())

	snap := h.bot.Snapshot()
	assert.Zero(t, snap.BuysToday)
	assert.Zero(t, snap.SpentToday)
	assert.False(t, snap.CapitalSkipNotified)
	assert.NotEqual(t, "2000-01-01", h.bot.currentDay)
}

func TestRolloverIsIdempotentWithinTheDay(t *testing.T) {
	cfg := testBotConfig(t, config.ProfileEquilibrium)
	h := newTestBot(t, cfg, nil)
	h.bot.state.Apply(func(s *models.RuntimeSnapshot) { s.BuysToday = 3 })

	h.bot.rolloverIfNeeded(time.Now())

	assert.Equal(t, 3, h.bot.Snapshot().BuysToday)
}

func TestRehydrateResumesPersistedPosition(t *testing.T) {
	cfg := testBotConfig(t, config.ProfileEquilibrium)
	snapshots := newMockSnapshots()
	require.NoError(t, snapshots.Save(&models.PositionSnapshot{
		Symbol:      "BTCUSDT",
		Profile:     cfg.Profile,
		InPosition:  true,
		EntryPrice:  100.0,
		EntryQty:    0.5,
		SpentUSDT:   50.0,
		MaxPrice:    110.0,
		TrailingPct: cfg.TrailingPct,
	}))

	h := newTestBot(t, cfg, func(d *Deps) { d.Snapshots = snapshots })
	h.snapshots = snapshots

	snap := h.bot.Snapshot()
	assert.True(t, snap.InPosition)
	assert.Equal(t, "RESUMED", snap.LastAction)
	assert.InDelta(t, 100.0, snap.EntryPrice, 1e-9)
	assert.InDelta(t, 110.0, snap.TrailingMaxPrice, 1e-9)

	// The first cycle goes straight to exit management with the persisted
	// high, not back through the entry gates.
	h.exchange.exitFill = &models.ExitFill{
		Fill:   models.Fill{Price: 108.0, Qty: 0.5, Quote: 54.0},
		Reason: models.ExitTrailing,
	}
	require.NoError(t, h.bot.runCycle(context.Background()))

	require.Len(t, h.exchange.exitCalls, 1)
	assert.InDelta(t, 110.0, h.exchange.exitCalls[0].MaxPrice, 1e-9)
	assert.Empty(t, h.exchange.buyCalls)

	trades, err := h.ledger.RecentTrades(cfg.BotID, 10, models.Sell)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.InDelta(t, 4.0, trades[0].PnL, 1e-9)
}

func TestRehydrateKeepsPersistedTrailingPct(t *testing.T) {
	cfg := testBotConfig(t, config.ProfileEquilibrium) // base trailing 1.5%
	snapshots := newMockSnapshots()
	require.NoError(t, snapshots.Save(&models.PositionSnapshot{
		Symbol:      "BTCUSDT",
		Profile:     cfg.Profile,
		InPosition:  true,
		EntryPrice:  100.0,
		EntryQty:    0.5,
		SpentUSDT:   50.0,
		MaxPrice:    110.0,
		TrailingPct: 0.012,
	}))

	h := newTestBot(t, cfg, func(d *Deps) { d.Snapshots = snapshots })

	require.NoError(t, h.bot.runCycle(context.Background()))

	// A position opened under a tightened stop resumes with the persisted
	// width, not the profile base.
	require.Len(t, h.exchange.exitCalls, 1)
	assert.InDelta(t, 0.012, h.exchange.exitCalls[0].TrailingPct, 1e-9)
}

func TestSimulationBotStartsFlatDespiteSnapshot(t *testing.T) {
	cfg := testBotConfig(t, config.ProfileVortex) // defaults to SIMULATION
	snapshots := newMockSnapshots()
	require.NoError(t, snapshots.Save(&models.PositionSnapshot{
		Symbol: "BTCUSDT", InPosition: true, EntryPrice: 100.0,
	}))

	h := newTestBot(t, cfg, func(d *Deps) { d.Snapshots = snapshots })

	assert.False(t, h.bot.Snapshot().InPosition)
	assert.Nil(t, h.bot.resume)
}

func TestApplyAdaptiveStateDefensiveTightens(t *testing.T) {
	cfg := testBotConfig(t, config.ProfileEquilibrium)
	h := newTestBot(t, cfg, nil)

	h.bot.applyAdaptiveState(models.AdaptiveDefensive, "loss_streak (3)")

	snap := h.bot.Snapshot()
	assert.Equal(t, models.AdaptiveDefensive, snap.AdaptiveState)
	assert.InDelta(t, cfg.TrailingPct*0.8, snap.TrailingPct, 1e-9)

	require.NotNil(t, snap.AdaptiveMaxBuysPerDay)
	assert.Equal(t, cfg.MaxBuysPerDay/2, *snap.AdaptiveMaxBuysPerDay)
	assert.Equal(t, *snap.AdaptiveMaxBuysPerDay, h.bot.effectiveMaxBuys(snap))

	require.NotNil(t, snap.AdaptiveCooldownOverride)
	expected := time.Duration(float64(cfg.CooldownAfterSell()) * 1.5)
	assert.Equal(t, expected, *snap.AdaptiveCooldownOverride)
	assert.Equal(t, expected, h.bot.effectiveCooldown(snap))
}

func TestApplyAdaptiveStateNormalRestoresDefaults(t *testing.T) {
	cfg := testBotConfig(t, config.ProfileEquilibrium)
	h := newTestBot(t, cfg, nil)

	h.bot.applyAdaptiveState(models.AdaptiveDefensive, "loss_streak (3)")
	h.bot.applyAdaptiveState(models.AdaptiveNormal, "recovered (2/3 wins)")

	snap := h.bot.Snapshot()
	assert.Equal(t, models.AdaptiveNormal, snap.AdaptiveState)
	assert.InDelta(t, cfg.TrailingPct, snap.TrailingPct, 1e-9)
	assert.Nil(t, snap.AdaptiveMaxBuysPerDay)
	assert.Nil(t, snap.AdaptiveCooldownOverride)
	assert.Equal(t, cfg.MaxBuysPerDay, h.bot.effectiveMaxBuys(snap))
	assert.Equal(t, cfg.CooldownAfterSell(), h.bot.effectiveCooldown(snap))
}

func TestApplyAdaptiveStateFloors(t *testing.T) {
	cfg := testBotConfig(t, config.ProfileEquilibrium)
	cfg.TrailingPct = 0.001
	cfg.MaxBuysPerDay = 1
	h := newTestBot(t, cfg, nil)

	h.bot.applyAdaptiveState(models.AdaptiveDefensive, "loss_streak (3)")

	snap := h.bot.Snapshot()
	assert.InDelta(t, 0.001, snap.TrailingPct, 1e-9, "trailing never tightens below the floor")
	require.NotNil(t, snap.AdaptiveMaxBuysPerDay)
	assert.Equal(t, 1, *snap.AdaptiveMaxBuysPerDay, "at least one buy per day stays allowed")
}

func TestArmedSnapshotsReferenceThenArms(t *testing.T) {
	cfg := testBotConfig(t, config.ProfileVortex)
	h := newTestBot(t, cfg, nil)

	assert.False(t, h.bot.armed(100.0), "first observation seeds the reference")
	assert.Equal(t, "WAITING_ARM", h.bot.Snapshot().LastAction)

	assert.False(t, h.bot.armed(99.0), "a dip does not lower the reference")
	assert.False(t, h.bot.armed(99.3), "a bounce off the dip is measured against the reference")
	assert.InDelta(t, 100.0, h.bot.Snapshot().ArmPrice, 1e-9)

	assert.False(t, h.bot.armed(100.1), "0.1% above the reference is not enough")
	assert.True(t, h.bot.armed(100.0*1.002), "0.2% above the reference arms")
	assert.Equal(t, "ARMED", h.bot.Snapshot().LastAction)

	assert.True(t, h.bot.armed(50.0), "armed is sticky until the position closes")
}
