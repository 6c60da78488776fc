package engine

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type RoundingStrategy string

const (
	RoundingNone      RoundingStrategy = "NONE"
	RoundingUp        RoundingStrategy = "ROUND_UP"
	RoundingDown      RoundingStrategy = "ROUND_DOWN"
	RoundingNearest5  RoundingStrategy = "ROUND_TO_NEAREST_5"
	RoundingNearest10 RoundingStrategy = "ROUND_TO_NEAREST_10"
	RoundingNearest   RoundingStrategy = "ROUND_TO_NEAREST_100"
	RoundingEnding    RoundingStrategy = "ENDING"
)

var hundred = decimal.NewFromInt(100)

// RoundMoney applies HALF_UP rounding to two decimal places.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

func roundWorking(d decimal.Decimal) decimal.Decimal {
	return d.Round(WorkingScale)
}

// ApplyRounding rounds price with strategy. ROUND_UP and ROUND_DOWN work on
// whole currency units; ROUND_TO_NEAREST_n rounds half up to a multiple of n,
// so 103.40 becomes 100.00 with n=10. ENDING keeps the leading digits and
// replaces the tail with ending: 103.40 with ".99" is 103.99, with "9.99"
// it is 109.99.
func ApplyRounding(price decimal.Decimal, strategy RoundingStrategy, ending string) (decimal.Decimal, error) {
	switch strategy {
	case "", RoundingNone:
		return RoundMoney(price), nil
	case RoundingUp:
		return price.Ceil(), nil
	case RoundingDown:
		return price.Floor(), nil
	case RoundingNearest5:
		return nearestMultiple(price, decimal.NewFromInt(5)), nil
	case RoundingNearest10:
		return nearestMultiple(price, decimal.NewFromInt(10)), nil
	case RoundingNearest:
		return nearestMultiple(price, hundred), nil
	case RoundingEnding:
		return roundToEnding(price, ending)
	}
	return decimal.Zero, fmt.Errorf("%w: unknown rounding strategy %q", ErrInvalidParameter, strategy)
}

func nearestMultiple(price, step decimal.Decimal) decimal.Decimal {
	return price.Div(step).Round(0).Mul(step)
}

func roundToEnding(price decimal.Decimal, ending string) (decimal.Decimal, error) {
	ending = strings.TrimSpace(ending)
	if ending == "" {
		return decimal.Zero, fmt.Errorf("%w: ENDING rounding requires roundingEnding", ErrInvalidParameter)
	}
	if strings.HasPrefix(ending, ".") {
		ending = "0" + ending
	}
	tail, err := decimal.NewFromString(ending)
	if err != nil || tail.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: invalid roundingEnding %q", ErrInvalidParameter, ending)
	}
	step := decimal.NewFromInt(1)
	for whole := tail.Floor(); whole.GreaterThanOrEqual(decimal.NewFromInt(1)); whole = whole.Div(decimal.NewFromInt(10)).Floor() {
		step = step.Mul(decimal.NewFromInt(10))
	}
	return RoundMoney(price.Div(step).Floor().Mul(step).Add(tail)), nil
}

// MarginOnSale is (price - cost) / price * 100.
func MarginOnSale(price, cost decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() {
		return decimal.Zero
	}
	return price.Sub(cost).Div(price).Mul(hundred)
}

// MarginOnCost is (price - cost) / cost * 100.
func MarginOnCost(price, cost decimal.Decimal) decimal.Decimal {
	if !cost.IsPositive() {
		return decimal.Zero
	}
	return price.Sub(cost).Div(cost).Mul(hundred)
}

func percentOf(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred)
}
