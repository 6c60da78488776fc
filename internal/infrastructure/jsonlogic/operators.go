package jsonlogic

import (
	"sync"

	"github.com/diegoholiveira/jsonlogic/v3"
	"github.com/shopspring/decimal"
)

var registerOnce sync.Once

// Register adds the pricing operators to the JsonLogic evaluator used by
// JSON_LOGIC rule conditions. It is safe to call more than once.
//
//	{"pct":    [part, whole]}      part as a percentage of whole
//	{"margin": [price, cost]}      margin on sale, in percent
//	{"round":  [value, precision]} half-up rounding
//	{"sum":    [a, b, ...]}
func Register() {
	registerOnce.Do(func() {
		jsonlogic.AddOperator("pct", func(values, _ any) any { return Pct(args(values)...) })
		jsonlogic.AddOperator("margin", func(values, _ any) any { return Margin(args(values)...) })
		jsonlogic.AddOperator("round", func(values, _ any) any { return Round(args(values)...) })
		jsonlogic.AddOperator("sum", func(values, _ any) any { return Sum(args(values)...) })
	})
}

func args(values any) []any {
	if list, ok := values.([]any); ok {
		return list
	}
	return []any{values}
}

func Sum(values ...any) float64 {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(toDecimal(v))
	}
	return total.InexactFloat64()
}

func Round(values ...any) float64 {
	if len(values) == 0 {
		return 0
	}
	precision := int32(0)
	if len(values) > 1 {
		precision = int32(toDecimal(values[1]).IntPart())
	}
	return toDecimal(values[0]).Round(precision).InexactFloat64()
}

func Pct(values ...any) float64 {
	if len(values) < 2 {
		return 0
	}
	whole := toDecimal(values[1])
	if whole.IsZero() {
		return 0
	}
	return toDecimal(values[0]).Div(whole).Mul(decimal.NewFromInt(100)).Round(4).InexactFloat64()
}

func Margin(values ...any) float64 {
	if len(values) < 2 {
		return 0
	}
	price, cost := toDecimal(values[0]), toDecimal(values[1])
	if !price.IsPositive() {
		return 0
	}
	return price.Sub(cost).Div(price).Mul(decimal.NewFromInt(100)).Round(4).InexactFloat64()
}

func toDecimal(v any) decimal.Decimal {
	switch val := v.(type) {
	case float64:
		return decimal.NewFromFloat(val)
	case float32:
		return decimal.NewFromFloat32(val)
	case int:
		return decimal.NewFromInt(int64(val))
	case int64:
		return decimal.NewFromInt(val)
	case int32:
		return decimal.NewFromInt(int64(val))
	case string:
		d, err := decimal.NewFromString(val)
		if err != nil {
			return decimal.Zero
		}
		return d
	case bool:
		if val {
			return decimal.NewFromInt(1)
		}
		return decimal.Zero
	default:
		return decimal.Zero
	}
}
