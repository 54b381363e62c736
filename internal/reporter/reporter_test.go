package reporter

import (
	"bytes"
	"testing"
	"time"

	"binance-spot-bot-go/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestStatusRowFromSnapshot(t *testing.T) {
	row := StatusRowFromSnapshot(models.RuntimeSnapshot{
		BotID:         "bot-1",
		Symbol:        "BTCUSDT",
		Profile:       "equilibrium",
		Mode:          models.ModeLive,
		AdaptiveState: models.AdaptiveDefensive,
		InPosition:    true,
		EntryPrice:    50000.0,
		LastPrice:     50500.0,
		BuysToday:     2,
		TotalPnLUSDT:  1.25,
	})

	assert.Equal(t, "BTCUSDT", row.Symbol)
	assert.True(t, row.InPosition)
	assert.Equal(t, 50500.0, row.CurrentPrice)
	assert.Equal(t, models.AdaptiveDefensive, row.AdaptiveState)
}

func TestWriteStatusRendersRows(t *testing.T) {
	var buf bytes.Buffer
	WriteStatus(&buf, []StatusRow{
		{BotID: "bot-1", Symbol: "BTCUSDT", Profile: "equilibrium", Mode: models.ModeLive,
			AdaptiveState: models.AdaptiveNormal, InPosition: true, EntryPrice: 50000.0,
			CurrentPrice: 50500.0, BuysToday: 1, TotalPnLUSDT: 0.5},
		{BotID: "bot-2", Symbol: "SOLUSDT", Profile: "vortex", Mode: models.ModeSimulation,
			AdaptiveState: models.AdaptiveNormal, CurrentPrice: 150.0},
	})

	out := buf.String()
	assert.Contains(t, out, "BTCUSDT")
	assert.Contains(t, out, "SOLUSDT")
	assert.Contains(t, out, "OPEN")
	assert.Contains(t, out, "50000.0000")
	assert.Contains(t, out, "+0.5000")
}

func TestWritePerformance(t *testing.T) {
	var buf bytes.Buffer
	WritePerformance(&buf, "bot-1", "BTCUSDT", []models.TradeRecord{
		{Side: models.Sell, PnL: 1.0, SpentUSDT: 100},
		{Side: models.Sell, PnL: -0.5, SpentUSDT: 100},
	})

	out := buf.String()
	assert.Contains(t, out, "Performance BTCUSDT (bot-1)")
	assert.Contains(t, out, "50.0%")
	assert.Contains(t, out, "+0.5000 USDT")
}

func TestWriteTrades(t *testing.T) {
	var buf bytes.Buffer
	WriteTrades(&buf, []models.TradeRecord{
		{Timestamp: time.Now(), Symbol: "BTCUSDT", Side: models.Buy, Price: 50000.0, Qty: 0.001},
		{Timestamp: time.Now(), Symbol: "BTCUSDT", Side: models.Sell, Price: 50500.0, Qty: 0.001,
			PnL: 0.5, CumulativePnL: 0.5, ExitReason: models.ExitTrailing},
	})

	out := buf.String()
	assert.Contains(t, out, "TRAILING")
	assert.Contains(t, out, "BUY")
}
