package adaptive

import (
	"math"

	"binance-spot-bot-go/internal/models"
)

// Metrics are derived from the most recent window of closed (SELL) trades.
// They carry no state of their own and are recomputed on every evaluation.
type Metrics struct {
	TotalTrades   int
	WinRate       float64
	CumulativePnL float64
	AvgAbsPnL     float64
	PnLVolatility float64 // population stddev of raw pnl

	// Percent variants are normalized by the notional spent per trade.
	// HasPct is false when no trade in the window carried a usable notional.
	AvgAbsPnLPct     float64
	PnLVolatilityPct float64
	HasPct           bool

	DrawdownPct    float64 // max peak-to-trough of the cumulative-pnl path
	NegativeStreak int     // consecutive losses counted back from the latest trade
	WinsLast3      int

	// FlipRate is the fraction of consecutive sign changes across the
	// window. HasFlipRate is false with fewer than two signed results.
	FlipRate    float64
	HasFlipRate bool
}

// ComputeMetrics derives the full metric set from an oldest-first trade
// window. BUY rows contribute nothing and are skipped defensively.
func ComputeMetrics(trades []models.TradeRecord) Metrics {
	var pnls []float64
	var pnlPcts []float64
	var signs []int

	for _, t := range trades {
		if t.Side == models.Buy {
			continue
		}
		pnls = append(pnls, t.PnL)
		if t.PnL > 0 {
			signs = append(signs, 1)
		} else if t.PnL < 0 {
			signs = append(signs, -1)
		}
		if t.SpentUSDT > 0 {
			pnlPcts = append(pnlPcts, t.PnL/t.SpentUSDT)
		}
	}

	m := Metrics{TotalTrades: len(pnls)}
	if m.TotalTrades == 0 {
		return m
	}

	wins := 0
	sumAbs := 0.0
	for _, pnl := range pnls {
		if pnl > 0 {
			wins++
		}
		m.CumulativePnL += pnl
		sumAbs += math.Abs(pnl)
	}
	m.WinRate = float64(wins) / float64(m.TotalTrades)
	m.AvgAbsPnL = sumAbs / float64(m.TotalTrades)
	m.PnLVolatility = stddev(pnls)

	if len(pnlPcts) > 0 {
		m.HasPct = true
		sumAbsPct := 0.0
		for _, p := range pnlPcts {
			sumAbsPct += math.Abs(p)
		}
		m.AvgAbsPnLPct = sumAbsPct / float64(len(pnlPcts))
		m.PnLVolatilityPct = stddev(pnlPcts)
	}

	m.DrawdownPct = maxDrawdownPct(pnls)
	m.NegativeStreak = negativeStreak(pnls)

	for _, pnl := range pnls[max(0, len(pnls)-3):] {
		if pnl > 0 {
			m.WinsLast3++
		}
	}

	if len(signs) >= 2 {
		m.HasFlipRate = true
		m.FlipRate = flipRate(signs)
	}

	return m
}

// maxDrawdownPct walks the cumulative-pnl path and returns the largest
// peak-to-trough decline normalized by the peak. Zero while the path never
// rises above zero or never declines.
func maxDrawdownPct(pnls []float64) float64 {
	peak := 0.0
	running := 0.0
	maxDrawdown := 0.0

	for _, pnl := range pnls {
		running += pnl
		if running > peak {
			peak = running
		}
		if peak <= 0 {
			continue
		}
		if dd := peak - running; dd > maxDrawdown {
			maxDrawdown = dd
		}
	}

	if peak <= 0 {
		return 0
	}
	return maxDrawdown / peak
}

func negativeStreak(pnls []float64) int {
	streak := 0
	for i := len(pnls) - 1; i >= 0; i-- {
		if pnls[i] >= 0 {
			break
		}
		streak++
	}
	return streak
}

func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}

func flipRate(signs []int) float64 {
	flips := 0
	last := signs[0]
	for _, s := range signs[1:] {
		if s != last {
			flips++
			last = s
		}
	}
	return float64(flips) / float64(len(signs)-1)
}
