// Package pricing turns stored price shapes into per-item unit prices and
// resolves which price applies to each item key of a subscription.
package pricing

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"
	pricedomain "github.com/smallbiznis/allotment/internal/price/domain"
)

var (
	ErrCorruptedPrice  = errors.New("corrupted price entry")
	ErrPriceNotDerived = errors.New("could not derive price for range")
	ErrNotImplemented  = errors.New("not implemented inclusivity range type")
	ErrUnknownStrategy = errors.New("unknown pricing strategy")
	ErrInvalidQuantity = errors.New("quantity must not be negative")
)

// Strategy computes the unit price for a quantity.
type Strategy interface {
	Type() pricedomain.StrategyType
	GetPrice(quantity int64) (decimal.Decimal, error)
	Validate() error
}

// NewStrategy builds the strategy described by price.
func NewStrategy(price pricedomain.ItemPrice) (Strategy, error) {
	switch price.Type {
	case pricedomain.StrategyQuantity, "":
		s := &QuantityStrategy{
			Ranges:      price.Ranges,
			Prices:      price.Prices,
			Inclusivity: price.Inclusivity,
		}
		if err := s.Validate(); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, price.Type)
	}
}

// QuantityStrategy prices by tier. The unit price of n is taken from the
// tier i with ranges[i] <= n < ranges[i+1] (the last tier is open ended).
// A tier price is either flat ([p]) or a [min, max] pair falling linearly
// from max at the tier's lower bound towards min at its upper bound.
type QuantityStrategy struct {
	Ranges      []float64
	Prices      [][]float64
	Inclusivity string
}

func (s *QuantityStrategy) Type() pricedomain.StrategyType {
	return pricedomain.StrategyQuantity
}

func (s *QuantityStrategy) Validate() error {
	if s.Inclusivity != "" && s.Inclusivity != pricedomain.InclusivityLowerClosed {
		return ErrNotImplemented
	}
	if len(s.Ranges) == 0 {
		if len(s.Prices) != 1 || len(s.Prices[0]) != 1 {
			return ErrCorruptedPrice
		}
		return checkFinite(s.Prices[0]...)
	}
	if len(s.Prices) != len(s.Ranges) {
		return ErrCorruptedPrice
	}
	if err := checkFinite(s.Ranges...); err != nil {
		return err
	}
	for _, tier := range s.Prices {
		if len(tier) != 1 && len(tier) != 2 {
			return ErrCorruptedPrice
		}
		if err := checkFinite(tier...); err != nil {
			return err
		}
	}
	return nil
}

func (s *QuantityStrategy) GetPrice(n int64) (decimal.Decimal, error) {
	if err := s.Validate(); err != nil {
		return decimal.Zero, err
	}
	if n < 0 {
		return decimal.Zero, ErrInvalidQuantity
	}
	if n == 0 {
		return decimal.Zero, nil
	}

	if len(s.Ranges) == 0 {
		return positive(decimal.NewFromFloat(s.Prices[0][0]))
	}

	ranges, prices := s.sortedTiers()
	q := float64(n)
	for i := range ranges {
		last := i+1 == len(ranges)
		if ranges[i] > q || (!last && q >= ranges[i+1]) {
			continue
		}

		tier := prices[i]
		if len(tier) == 1 {
			return positive(decimal.NewFromFloat(tier[0]))
		}

		low, high := tier[0], tier[1]
		if low > high {
			low, high = high, low
		}
		top := decimal.NewFromFloat(high)
		bottom := decimal.NewFromFloat(low)
		if last {
			return positive(top)
		}
		rangeLow := decimal.NewFromFloat(ranges[i])
		rangeHigh := decimal.NewFromFloat(ranges[i+1] - 1)
		width := rangeHigh.Sub(rangeLow)
		if !width.IsPositive() {
			return positive(top)
		}
		// Multiply before dividing so tier bounds land on exact prices.
		drop := top.Sub(bottom).Mul(decimal.NewFromInt(n).Sub(rangeLow)).Div(width)
		return positive(top.Sub(drop))
	}
	return decimal.Zero, ErrPriceNotDerived
}

// sortedTiers returns ranges ascending with their prices kept aligned.
func (s *QuantityStrategy) sortedTiers() ([]float64, [][]float64) {
	idx := make([]int, len(s.Ranges))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return s.Ranges[idx[a]] < s.Ranges[idx[b]] })

	ranges := make([]float64, len(idx))
	prices := make([][]float64, len(idx))
	for i, j := range idx {
		ranges[i] = s.Ranges[j]
		prices[i] = s.Prices[j]
	}
	return ranges, prices
}

func positive(d decimal.Decimal) (decimal.Decimal, error) {
	if !d.IsPositive() {
		return decimal.Zero, ErrPriceNotDerived
	}
	return d, nil
}

func checkFinite(values ...float64) error {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrCorruptedPrice
		}
	}
	return nil
}
