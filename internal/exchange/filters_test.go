package exchange

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdjustValueToStep(t *testing.T) {
	testCases := []struct {
		value    float64
		step     string
		expected float64
	}{
		{123.456, "1", 123.0},
		{123.456, "0.1", 123.4},
		{123.456789, "0.001", 123.456},
		{0.000123456, "0.00000001", 0.00012345},
		{100.0, "0.001", 100.0},
		{0.0009, "0.001", 0.0},
	}

	for _, tc := range testCases {
		result := adjustValueToStep(tc.value, tc.step)
		assert.Equal(t, tc.expected, result, "value %f step %s", tc.value, tc.step)
	}
}

func TestSellableQtyFloorsToStep(t *testing.T) {
	f := &symbolFilters{stepSize: "0.001", minQty: 0.001, minNotional: 10.0}

	qty, ok := f.sellableQty(0.123456, 100.0)
	assert.True(t, ok)
	assert.Equal(t, 0.123, qty)
}

func TestSellableQtyRejectsBelowMinQty(t *testing.T) {
	f := &symbolFilters{stepSize: "0.001", minQty: 0.01, minNotional: 0}

	_, ok := f.sellableQty(0.0095, 50000.0)
	assert.False(t, ok, "0.009 after flooring is below the 0.01 minimum")
}

func TestSellableQtyRejectsBelowMinNotional(t *testing.T) {
	f := &symbolFilters{stepSize: "0.001", minQty: 0.001, minNotional: 10.0}

	_, ok := f.sellableQty(0.005, 100.0)
	assert.False(t, ok, "0.5 USDT notional is below the 10 USDT minimum")

	qty, ok := f.sellableQty(0.5, 100.0)
	assert.True(t, ok)
	assert.Equal(t, 0.5, qty)
}

func TestSellableQtyRejectsZero(t *testing.T) {
	f := &symbolFilters{stepSize: "1", minQty: 1, minNotional: 0}

	_, ok := f.sellableQty(0.9, 100.0)
	assert.False(t, ok)
}
