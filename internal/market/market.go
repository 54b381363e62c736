// Package market is the read-only market-data port: last trade price and
// recent candles for a symbol. The live implementation talks to Binance spot
// over REST, with an optional websocket ticker feeding the price cache.
package market

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"binance-spot-bot-go/internal/models"

	"github.com/adshao/go-binance/v2"
	"go.uber.org/zap"
)

// Data serves prices and candles. Klines are returned oldest-first.
type Data interface {
	LastPrice(ctx context.Context, symbol string) (float64, error)
	Klines(ctx context.Context, symbol, interval string, limit int) ([]models.Kline, error)
}

// BinanceData implements Data against the Binance spot REST API. When a
// TradeStream is attached, LastPrice prefers the streamed price and falls
// back to REST while the stream is warming up or down.
type BinanceData struct {
	client *binance.Client
	stream *TradeStream
	logger *zap.SugaredLogger
}

func NewBinanceData(client *binance.Client, logger *zap.SugaredLogger) *BinanceData {
	return &BinanceData{client: client, logger: logger}
}

// AttachStream wires a running trade stream into the price path.
func (d *BinanceData) AttachStream(s *TradeStream) {
	d.stream = s
}

func (d *BinanceData) LastPrice(ctx context.Context, symbol string) (float64, error) {
	if d.stream != nil {
		if price, ok := d.stream.Price(); ok {
			return price, nil
		}
	}

	prices, err := d.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch ticker price for %s: %w", symbol, err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("no ticker price returned for %s", symbol)
	}
	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse ticker price %q: %w", prices[0].Price, err)
	}
	return price, nil
}

func (d *BinanceData) Klines(ctx context.Context, symbol, interval string, limit int) ([]models.Kline, error) {
	raw, err := d.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch klines for %s: %w", symbol, err)
	}

	klines := make([]models.Kline, 0, len(raw))
	for _, k := range raw {
		parsed, err := parseKline(k)
		if err != nil {
			d.logger.Warnw("skipping malformed kline", "symbol", symbol, "error", err)
			continue
		}
		klines = append(klines, parsed)
	}
	return klines, nil
}

func parseKline(k *binance.Kline) (models.Kline, error) {
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return models.Kline{}, fmt.Errorf("bad open %q: %w", k.Open, err)
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return models.Kline{}, fmt.Errorf("bad high %q: %w", k.High, err)
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return models.Kline{}, fmt.Errorf("bad low %q: %w", k.Low, err)
	}
	closePrice, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return models.Kline{}, fmt.Errorf("bad close %q: %w", k.Close, err)
	}
	volume, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return models.Kline{}, fmt.Errorf("bad volume %q: %w", k.Volume, err)
	}
	return models.Kline{
		OpenTime: time.UnixMilli(k.OpenTime),
		Open:     open,
		High:     high,
		Low:      low,
		Close:    closePrice,
		Volume:   volume,
	}, nil
}
