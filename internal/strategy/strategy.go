// Package strategy holds the entry-signal families. Each family is a pure
// function of the recent candle window so the engine can evaluate it every
// cycle without side effects.
package strategy

import "binance-spot-bot-go/internal/models"

// Signal is the outcome of one entry evaluation.
type Signal struct {
	Buy   bool
	Price float64 // latest close

	// Diagnostics for state/telemetry. Score is only set by the vortex
	// family, the SMA values only by the trend family.
	Score   float64
	SMAFast float64
	SMASlow float64
}

// EntrySignal decides whether the current candle window justifies a buy.
type EntrySignal interface {
	Evaluate(klines []models.Kline) Signal
}

// ForProfile selects the signal family a profile trades with.
func ForProfile(cfg *models.BotConfig) EntrySignal {
	if cfg.Profile == "vortex" {
		return NewVortexSignal()
	}
	return &TrendCrossSignal{Fast: cfg.SMAFast, Slow: cfg.SMASlow}
}

// TrendCrossSignal buys while the fast SMA sits above the slow SMA. It is a
// level test, not an edge detector: repeated true signals across cycles are
// expected and the engine's position/risk checks keep them from re-buying.
type TrendCrossSignal struct {
	Fast int
	Slow int
}

func (s *TrendCrossSignal) Evaluate(klines []models.Kline) Signal {
	closes := closePrices(klines)
	if len(closes) < s.Slow {
		return Signal{}
	}

	fast := sma(closes, s.Fast)
	slow := sma(closes, s.Slow)

	return Signal{
		Buy:     fast > slow,
		Price:   closes[len(closes)-1],
		SMAFast: fast,
		SMASlow: slow,
	}
}

const (
	// VortexEntryThreshold is the velocity/ATR score above which the
	// aggressive profile wants in.
	VortexEntryThreshold = 0.5

	// VortexScoreClamp caps the score before the threshold comparison.
	// The raw ratio is unbounded when ATR collapses faster than velocity;
	// the cap is a tunable, not derived behavior.
	VortexScoreClamp = 10.0

	defaultVelocityPeriod = 5
	defaultATRPeriod      = 14
)

// VortexSignal scores recent momentum against volatility: velocity over the
// last n closes divided by the average true range. Zero ATR means no signal.
type VortexSignal struct {
	VelocityPeriod int
	ATRPeriod      int
	Threshold      float64
	Clamp          float64
}

func NewVortexSignal() *VortexSignal {
	return &VortexSignal{
		VelocityPeriod: defaultVelocityPeriod,
		ATRPeriod:      defaultATRPeriod,
		Threshold:      VortexEntryThreshold,
		Clamp:          VortexScoreClamp,
	}
}

func (s *VortexSignal) Evaluate(klines []models.Kline) Signal {
	closes := closePrices(klines)
	if len(closes) == 0 {
		return Signal{}
	}

	price := closes[len(closes)-1]
	vel := velocity(closes, s.VelocityPeriod)
	atr := averageTrueRange(klines, s.ATRPeriod)

	score := 0.0
	if atr > 0 {
		score = vel / atr
	}
	if score > s.Clamp {
		score = s.Clamp
	}

	return Signal{
		Buy:   score > s.Threshold,
		Price: price,
		Score: score,
	}
}

func closePrices(klines []models.Kline) []float64 {
	closes := make([]float64, len(klines))
	for i, k := range klines {
		closes[i] = k.Close
	}
	return closes
}

// sma averages the most recent period closes.
func sma(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}

// SMA is the exported form used by the trailing-exit trend check.
func SMA(values []float64, period int) float64 {
	return sma(values, period)
}

// velocity is the average per-candle close change over the last n candles.
func velocity(closes []float64, n int) float64 {
	if n <= 0 || len(closes) < n+1 {
		return 0
	}
	return (closes[len(closes)-1] - closes[len(closes)-1-n]) / float64(n)
}

// averageTrueRange over the last n candles, using the usual
// max(high, prevClose) - min(low, prevClose) true range.
func averageTrueRange(klines []models.Kline, n int) float64 {
	if n <= 0 || len(klines) < n+1 {
		return 0
	}

	trs := make([]float64, 0, len(klines)-1)
	for i := 1; i < len(klines); i++ {
		high := klines[i].High
		low := klines[i].Low
		prevClose := klines[i-1].Close
		if prevClose > high {
			high = prevClose
		}
		if prevClose < low {
			low = prevClose
		}
		trs = append(trs, high-low)
	}

	sum := 0.0
	for _, tr := range trs[len(trs)-n:] {
		sum += tr
	}
	return sum / float64(n)
}
