package exchange

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"binance-spot-bot-go/internal/market"
	"binance-spot-bot-go/internal/models"
	"binance-spot-bot-go/internal/strategy"

	"github.com/adshao/go-binance/v2"
	"go.uber.org/zap"
)

const (
	defaultPollInterval = 2 * time.Second
	trendCheckInterval  = 30 * time.Second
)

// BinanceExchange executes real orders against the Binance spot API.
type BinanceExchange struct {
	client *binance.Client
	data   market.Data
	logger *zap.SugaredLogger

	mu      sync.Mutex
	filters map[string]*symbolFilters
}

func NewBinanceExchange(client *binance.Client, data market.Data, logger *zap.SugaredLogger) *BinanceExchange {
	return &BinanceExchange{
		client:  client,
		data:    data,
		logger:  logger,
		filters: make(map[string]*symbolFilters),
	}
}

func (e *BinanceExchange) GetFreeBalance(ctx context.Context, asset string) (float64, error) {
	account, err := e.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch account: %w", err)
	}
	for _, b := range account.Balances {
		if b.Asset == asset {
			free, err := strconv.ParseFloat(b.Free, 64)
			if err != nil {
				return 0, fmt.Errorf("failed to parse free balance %q: %w", b.Free, err)
			}
			return free, nil
		}
	}
	return 0, nil
}

func (e *BinanceExchange) Buy(ctx context.Context, symbol string, quoteUSDT float64, clientOrderID string) (*models.Fill, error) {
	order, err := e.client.NewCreateOrderService().
		Symbol(symbol).
		Side(binance.SideTypeBuy).
		Type(binance.OrderTypeMarket).
		QuoteOrderQty(fmt.Sprintf("%.2f", quoteUSDT)).
		NewClientOrderID(clientOrderID).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("market buy %s for %.2f USDT failed: %w", symbol, quoteUSDT, err)
	}
	return fillFromOrder(order)
}

func (e *BinanceExchange) sell(ctx context.Context, symbol string, qty float64, clientOrderID string) (*models.Fill, error) {
	order, err := e.client.NewCreateOrderService().
		Symbol(symbol).
		Side(binance.SideTypeSell).
		Type(binance.OrderTypeMarket).
		Quantity(strconv.FormatFloat(qty, 'f', -1, 64)).
		NewClientOrderID(clientOrderID).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("market sell %s qty %s failed: %w", symbol, strconv.FormatFloat(qty, 'f', -1, 64), err)
	}
	return fillFromOrder(order)
}

func fillFromOrder(order *binance.CreateOrderResponse) (*models.Fill, error) {
	qty, err := strconv.ParseFloat(order.ExecutedQuantity, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse executed quantity %q: %w", order.ExecutedQuantity, err)
	}
	quote, err := strconv.ParseFloat(order.CummulativeQuoteQuantity, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse quote quantity %q: %w", order.CummulativeQuoteQuantity, err)
	}
	if qty <= 0 {
		return nil, fmt.Errorf("order %d executed with zero quantity", order.OrderID)
	}
	return &models.Fill{
		Price: quote / qty,
		Qty:   qty,
		Quote: quote,
	}, nil
}

func (e *BinanceExchange) filtersFor(ctx context.Context, symbol string) (*symbolFilters, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if f, ok := e.filters[symbol]; ok {
		return f, nil
	}
	f, err := fetchSymbolFilters(ctx, e.client, symbol)
	if err != nil {
		return nil, err
	}
	e.filters[symbol] = f
	return f, nil
}

// TrailingExit polls the market and holds the position until the tracker
// names an exit. Trend state is refreshed at most every trendCheckInterval
// to keep the kline endpoint quiet.
func (e *BinanceExchange) TrailingExit(ctx context.Context, p TrailParams, onTick func(TickInfo)) (*models.ExitFill, error) {
	filters, err := e.filtersFor(ctx, p.Symbol)
	if err != nil {
		return nil, err
	}

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
			e.logger.Warnw("trailing exit price fetch failed",
				"symbol", p.Symbol, "error", err)
			continue
		}

		now := time.Now()
		if p.TrendExitEnabled && p.TrendSMAPeriod > 0 && now.Sub(lastTrendCheck) >= trendCheckInterval {
			below, err := e.belowTrendSMA(ctx, p, price)
			if err != nil {
				e.logger.Warnw("trend check failed, keeping previous trend state",
					"symbol", p.Symbol, "error", err)
			} else {
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

		qty, ok := filters.sellableQty(p.Qty, price)
		if !ok {
			e.logger.Warnw("sell quantity below exchange minimums, holding",
				"symbol", p.Symbol, "qty", p.Qty, "price", price, "reason", reason)
			continue
		}

		e.logger.Infow("trailing exit triggered",
			"symbol", p.Symbol, "reason", reason,
			"price", price, "max", tracker.maxPrice, "stop", tracker.stopPrice())

		fill, err := e.sell(ctx, p.Symbol, qty, p.ClientOrderID)
		if err != nil {
			return nil, fmt.Errorf("exit sell failed: %w", err)
		}
		return &models.ExitFill{Fill: *fill, Reason: reason}, nil
	}
}

func (e *BinanceExchange) belowTrendSMA(ctx context.Context, p TrailParams, price float64) (bool, error) {
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
