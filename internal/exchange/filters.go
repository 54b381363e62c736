package exchange

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/adshao/go-binance/v2"
)

// symbolFilters is the subset of the exchange trading rules a sell has to
// respect: LOT_SIZE step/min quantity and the minimum order notional.
type symbolFilters struct {
	stepSize    string
	minQty      float64
	minNotional float64
}

func fetchSymbolFilters(ctx context.Context, client *binance.Client, symbol string) (*symbolFilters, error) {
	info, err := client.NewExchangeInfoService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch exchange info for %s: %w", symbol, err)
	}

	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		f := &symbolFilters{stepSize: "0.00000001"}
		if lot := s.LotSizeFilter(); lot != nil {
			f.stepSize = lot.StepSize
			f.minQty, _ = strconv.ParseFloat(lot.MinQuantity, 64)
		}
		if notional := s.NotionalFilter(); notional != nil {
			f.minNotional, _ = strconv.ParseFloat(notional.MinNotional, 64)
		}
		return f, nil
	}
	return nil, fmt.Errorf("symbol %s not present in exchange info", symbol)
}

// sellableQty floors qty to the LOT_SIZE step and reports whether the result
// is a valid sell at the given price. An invalid quantity means the caller
// should hold and retry on the next tick.
func (f *symbolFilters) sellableQty(qty, price float64) (float64, bool) {
	adjusted := adjustValueToStep(qty, f.stepSize)
	if adjusted <= 0 || adjusted < f.minQty {
		return 0, false
	}
	if f.minNotional > 0 && adjusted*price < f.minNotional {
		return 0, false
	}
	return adjusted, true
}

// adjustValueToStep floors value to the decimal precision of step, going
// through a string round-trip to avoid float drift.
func adjustValueToStep(value float64, step string) float64 {
	if !strings.Contains(step, ".") {
		return math.Floor(value)
	}
	decimalPlaces := len(step) - strings.Index(step, ".") - 1

	factor := math.Pow(10, float64(decimalPlaces))
	adjusted := math.Floor(value*factor) / factor

	final, _ := strconv.ParseFloat(fmt.Sprintf("%.*f", decimalPlaces, adjusted), 64)
	return final
}
