// Package reporter renders operator-facing summary tables for the console:
// per-bot status and realized performance built from the trade ledger.
package reporter

import (
	"fmt"
	"io"
	"time"

	"binance-spot-bot-go/internal/adaptive"
	"binance-spot-bot-go/internal/models"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// StatusRow is one bot's line in the status table.
type StatusRow struct {
	BotID         string
	Symbol        string
	Profile       string
	Mode          models.TradingMode
	AdaptiveState models.AdaptiveState
	InPosition    bool
	EntryPrice    float64
	CurrentPrice  float64
	BuysToday     int
	TotalPnLUSDT  float64
}

// StatusRowFromSnapshot flattens a runtime snapshot into a table row.
func StatusRowFromSnapshot(s models.RuntimeSnapshot) StatusRow {
	return StatusRow{
		BotID:         s.BotID,
		Symbol:        s.Symbol,
		Profile:       s.Profile,
		Mode:          s.Mode,
		AdaptiveState: s.AdaptiveState,
		InPosition:    s.InPosition,
		EntryPrice:    s.EntryPrice,
		CurrentPrice:  s.LastPrice,
		BuysToday:     s.BuysToday,
		TotalPnLUSDT:  s.TotalPnLUSDT,
	}
}

// WriteStatus renders the per-bot status table.
func WriteStatus(w io.Writer, rows []StatusRow) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Bot Status %s", time.Now().Format("2006-01-02 15:04:05"))
	t.AppendHeader(table.Row{"Bot", "Symbol", "Profile", "Mode", "Risk", "Position", "Entry", "Price", "Buys Today", "PnL USDT"})

	for _, r := range rows {
		position := "-"
		entry := "-"
		if r.InPosition {
			position = "OPEN"
			entry = fmt.Sprintf("%.4f", r.EntryPrice)
		}
		t.AppendRow(table.Row{
			r.BotID,
			r.Symbol,
			r.Profile,
			r.Mode,
			r.AdaptiveState,
			position,
			entry,
			fmt.Sprintf("%.4f", r.CurrentPrice),
			r.BuysToday,
			fmt.Sprintf("%+.4f", r.TotalPnLUSDT),
		})
	}

	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "PnL USDT", Align: text.AlignRight},
		{Name: "Buys Today", Align: text.AlignRight},
	})
	t.Render()
}

// WritePerformance renders realized performance for one bot from its SELL
// history, reusing the adaptive controller's metric definitions.
func WritePerformance(w io.Writer, botID, symbol string, sells []models.TradeRecord) {
	m := adaptive.ComputeMetrics(sells)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Performance %s (%s)", symbol, botID)
	t.AppendRow(table.Row{"Closed trades", m.TotalTrades})
	t.AppendRow(table.Row{"Win rate", fmt.Sprintf("%.1f%%", m.WinRate*100)})
	t.AppendRow(table.Row{"Cumulative PnL", fmt.Sprintf("%+.4f USDT", m.CumulativePnL)})
	t.AppendRow(table.Row{"Avg |PnL|", fmt.Sprintf("%.4f USDT", m.AvgAbsPnL)})
	t.AppendRow(table.Row{"PnL volatility", fmt.Sprintf("%.4f USDT", m.PnLVolatility)})
	t.AppendRow(table.Row{"Max drawdown", fmt.Sprintf("%.2f%%", m.DrawdownPct*100)})
	t.AppendRow(table.Row{"Loss streak", m.NegativeStreak})
	if m.HasFlipRate {
		t.AppendRow(table.Row{"Flip rate", fmt.Sprintf("%.2f", m.FlipRate)})
	}
	t.Render()
}

// WriteTrades renders the most recent fills, newest last.
func WriteTrades(w io.Writer, trades []models.TradeRecord) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Time", "Symbol", "Side", "Price", "Qty", "PnL", "Cum PnL", "Exit"})

	for _, tr := range trades {
		exit := tr.ExitReason
		if exit == "" {
			exit = "-"
		}
		t.AppendRow(table.Row{
			tr.Timestamp.Format("01-02 15:04:05"),
			tr.Symbol,
			tr.Side,
			fmt.Sprintf("%.4f", tr.Price),
			fmt.Sprintf("%.6f", tr.Qty),
			fmt.Sprintf("%+.4f", tr.PnL),
			fmt.Sprintf("%+.4f", tr.CumulativePnL),
			exit,
		})
	}
	t.Render()
}
