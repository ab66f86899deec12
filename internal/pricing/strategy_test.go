package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	pricedomain "github.com/smallbiznis/allotment/internal/price/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quantity(ranges []float64, prices [][]float64) *QuantityStrategy {
	return &QuantityStrategy{Ranges: ranges, Prices: prices, Inclusivity: pricedomain.InclusivityLowerClosed}
}

func TestQuantityStrategyFlatTiers(t *testing.T) {
	s := quantity([]float64{0, 10}, [][]float64{{5}, {3}})

	cases := map[int64]string{
		1:   "5",
		9:   "5",
		10:  "3",
		250: "3",
	}
	for n, want := range cases {
		got, err := s.GetPrice(n)
		require.NoError(t, err)
		assert.True(t, got.Equal(decimal.RequireFromString(want)), "n=%d got %s", n, got)
	}
}

func TestQuantityStrategyZeroQuantityIsFree(t *testing.T) {
	s := quantity([]float64{5}, [][]float64{{7}})
	got, err := s.GetPrice(0)
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestQuantityStrategyInterpolatesWithinTier(t *testing.T) {
	// Tier [1, 11) falls from 20 at 1 to 10 at 10.
	s := quantity([]float64{1, 11}, [][]float64{{10, 20}, {5}})

	got, err := s.GetPrice(1)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(20)), "got %s", got)

	got, err = s.GetPrice(10)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(10)), "got %s", got)

	got, err = s.GetPrice(4)
	require.NoError(t, err)
	// 20 - 10*3/9
	assert.Equal(t, "16.66666667", Round(got).StringFixed(8))

	got, err = s.GetPrice(11)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(5)))
}

func TestQuantityStrategyLastTierPairUsesMax(t *testing.T) {
	s := quantity([]float64{0, 100}, [][]float64{{4}, {1, 2}})
	got, err := s.GetPrice(500)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(2)))
}

func TestQuantityStrategySortsTiersWithPrices(t *testing.T) {
	s := quantity([]float64{10, 0}, [][]float64{{3}, {5}})
	got, err := s.GetPrice(5)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(5)))
}

func TestQuantityStrategyErrors(t *testing.T) {
	_, err := quantity([]float64{5}, [][]float64{{7}}).GetPrice(3)
	assert.ErrorIs(t, err, ErrPriceNotDerived)

	_, err = quantity([]float64{0, 5}, [][]float64{{7}}).GetPrice(3)
	assert.ErrorIs(t, err, ErrCorruptedPrice)

	_, err = quantity([]float64{0}, [][]float64{{0}}).GetPrice(3)
	assert.ErrorIs(t, err, ErrPriceNotDerived)

	_, err = quantity([]float64{0}, [][]float64{{1, 2, 3}}).GetPrice(3)
	assert.ErrorIs(t, err, ErrCorruptedPrice)

	s := &QuantityStrategy{Ranges: []float64{0}, Prices: [][]float64{{1}}, Inclusivity: "(]"}
	_, err = s.GetPrice(1)
	assert.ErrorIs(t, err, ErrNotImplemented)
}

func TestNewStrategyRejectsUnknownType(t *testing.T) {
	_, err := NewStrategy(pricedomain.ItemPrice{Type: "USAGE", Ranges: []float64{0}, Prices: [][]float64{{1}}})
	assert.ErrorIs(t, err, ErrUnknownStrategy)

	s, err := NewStrategy(pricedomain.ItemPrice{Type: pricedomain.StrategyQuantity, Ranges: []float64{0}, Prices: [][]float64{{1}}})
	require.NoError(t, err)
	assert.Equal(t, pricedomain.StrategyQuantity, s.Type())
}
