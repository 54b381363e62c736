package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"binance-spot-bot-go/internal/market"
	"binance-spot-bot-go/internal/models"
	"binance-spot-bot-go/internal/strategy"

	"go.uber.org/zap"
)

// defaultTakerFee mirrors the standard Binance spot taker rate.
const defaultTakerFee = 0.001

// PaperExchange fills orders instantly at the live market price against a
// virtual balance. Used for simulation mode and dry runs; no order ever
// reaches the exchange.
type PaperExchange struct {
	data   market.Data
	logger *zap.SugaredLogger
	fee    float64

	mu       sync.Mutex
	balances map[string]float64
}

// NewPaperExchange seeds the virtual account with quoteUSDT of the quote asset.
func NewPaperExchange(data market.Data, quoteAsset string, quoteUSDT float64, logger *zap.SugaredLogger) *PaperExchange {
	return &PaperExchange{
		data:     data,
		logger:   logger,
		fee:      defaultTakerFee,
		balances: map[string]float64{quoteAsset: quoteUSDT},
	}
}

func (e *PaperExchange) GetFreeBalance(_ context.Context, asset string) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balances[asset], nil
}

func (e *PaperExchange) Buy(ctx context.Context, symbol string, quoteUSDT float64, _ string) (*models.Fill, error) {
	price, err := e.data.LastPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}

	base, quote := splitSymbol(symbol)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.balances[quote] < quoteUSDT {
		return nil, fmt.Errorf("paper balance %.2f %s below order size %.2f", e.balances[quote], quote, quoteUSDT)
	}
	qty := quoteUSDT / price * (1 - e.fee)
	e.balances[quote] -= quoteUSDT
	e.balances[base] += qty

	e.logger.Infow("paper buy filled",
		"symbol", symbol, "price", price, "qty", qty, "spent", quoteUSDT)
	return &models.Fill{Price: price, Qty: qty, Quote: quoteUSDT}, nil
}

func (e *PaperExchange) sell(ctx context.Context, symbol string, qty float64) (*models.Fill, error) {
	price, err := e.data.LastPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}

	base, quote := splitSymbol(symbol)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.balances[base] < qty {
		qty = e.balances[base]
	}
	if qty <= 0 {
		return nil, fmt.Errorf("paper balance holds no %s to sell", base)
	}
	received := qty * price * (1 - e.fee)
	e.balances[base] -= qty
	e.balances[quote] += received

	e.logger.Infow("paper sell filled",
		"symbol", symbol, "price", price, "qty", qty, "received", received)
	return &models.Fill{Price: price, Qty: qty, Quote: received}, nil
}

// TrailingExit runs the same decision loop as the live exchange, selling
// against the virtual balance.
func (e *PaperExchange) TrailingExit(ctx context.Context, p TrailParams, onTick func(TickInfo)) (*models.ExitFill, error) {
	poll := p.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	tracker := newTrailTracker(p)

	var (
		belowTrend     bool
		lastTrendCheck time.Time
	)

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		price, err := e.data.LastPrice(ctx, p.Symbol)
		if err != nil {
			e.logger.Warnw("paper trailing exit price fetch failed",
				"symbol", p.Symbol, "error", err)
			continue
		}

		now := time.Now()
		if p.TrendExitEnabled && p.TrendSMAPeriod > 0 && now.Sub(lastTrendCheck) >= trendCheckInterval {
			if below, err := e.belowTrendSMA(ctx, p, price); err == nil {
				belowTrend = below
				lastTrendCheck = now
			}
		}

		reason, newHigh := tracker.observe(price, now, belowTrend)
		if onTick != nil {
			onTick(TickInfo{
				Price:     price,
				MaxPrice:  tracker.maxPrice,
				StopPrice: tracker.stopPrice(),
				NewHigh:   newHigh,
			})
		}
		if reason == "" {
			continue
		}

		fill, err := e.sell(ctx, p.Symbol, p.Qty)
		if err != nil {
			return nil, err
		}
		return &models.ExitFill{Fill: *fill, Reason: reason}, nil
	}
}

func (e *PaperExchange) belowTrendSMA(ctx context.Context, p TrailParams, price float64) (bool, error) {
	interval := p.KlineInterval
	if interval == "" {
		interval = "1m"
	}
	klines, err := e.data.Klines(ctx, p.Symbol, interval, p.TrendSMAPeriod+1)
	if err != nil {
		return false, err
	}
	if len(klines) < p.TrendSMAPeriod {
		return false, nil
	}
	closes := make([]float64, len(klines))
	for i, k := range klines {
		closes[i] = k.Close
	}
	trend := strategy.SMA(closes, p.TrendSMAPeriod)
	return trend > 0 && price < trend, nil
}

// splitSymbol separates a spot pair into base and quote assets. Only USDT
// pairs are traded here; anything else falls back to the full symbol as base.
func splitSymbol(symbol string) (base, quote string) {
	const usdt = "USDT"
	if len(symbol) > len(usdt) && symbol[len(symbol)-len(usdt):] == usdt {
		return symbol[:len(symbol)-len(usdt)], usdt
	}
	return symbol, ""
}
