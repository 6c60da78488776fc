package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyRounding(t *testing.T) {
	tests := []struct {
		strategy RoundingStrategy
		ending   string
		in       string
		want     string
	}{
		{RoundingNone, "", "103.404", "103.40"},
		{RoundingUp, "", "103.40", "104.00"},
		{RoundingDown, "", "103.40", "103.00"},
		{RoundingNearest5, "", "103.40", "105.00"},
		{RoundingNearest10, "", "103.40", "100.00"},
		{RoundingNearest10, "", "105.00", "110.00"},
		{RoundingNearest, "", "103.40", "100.00"},
		{RoundingNearest, "", "150.00", "200.00"},
		{RoundingEnding, ".99", "103.40", "103.99"},
		{RoundingEnding, "9.99", "103.40", "109.99"},
		{RoundingEnding, "0.95", "7.10", "7.95"},
	}

	for _, tt := range tests {
		t.Run(string(tt.strategy)+" "+tt.in, func(t *testing.T) {
			got, err := ApplyRounding(dec(tt.in), tt.strategy, tt.ending)
			require.NoError(t, err)
			assertMoney(t, tt.want, got)
		})
	}

	t.Run("ending requires a value", func(t *testing.T) {
		_, err := ApplyRounding(dec("10"), RoundingEnding, "")
		assert.ErrorIs(t, err, ErrInvalidParameter)
	})
	t.Run("unknown strategy", func(t *testing.T) {
		_, err := ApplyRounding(dec("10"), "BANKERS", "")
		assert.ErrorIs(t, err, ErrInvalidParameter)
	})
}

func TestSetPrice_RoundToNearestTen(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	ev, err := e.Evaluate([]PricingRule{
		rule(1, 1, setPrice("103.40", "roundingStrategy", "ROUND_TO_NEAREST_10")),
	}, newContext())
	require.NoError(t, err)

	require.Len(t, ev.Results, 1)
	res := ev.Results[0]
	assert.True(t, res.Success, res.ErrorMessage)
	assertMoney(t, "100.00", res.OriginalPrice)
	assertMoney(t, "100.00", res.AdjustedPrice)
	assertMoney(t, "100.00", ev.FinalPrice)
	assert.Equal(t, "ROUND_TO_NEAREST_10", res.Metadata["roundingStrategy"])
}

func TestSetPrice_Variants(t *testing.T) {
	tests := []struct {
		name   string
		action RuleAction
		want   string
		noted  bool
	}{
		{"explicit price", setPrice("110.00"), "110.00", false},
		{"basis with percent", RuleAction{Type: ActionSetPrice, Parameters: params("basis", "COST", "adjustmentPercent", "50")}, "90.00", false},
		{"basis with amount", RuleAction{Type: ActionSetPrice, Parameters: params("basis", "COMPETITOR", "adjustmentAmount", "-0.01")}, "94.99", false},
		{"implicit current basis", RuleAction{Type: ActionSetPrice, Parameters: params("adjustmentPercent", "-10")}, "90.00", false},
		{"increase blocked", setPrice("120.00", "allowPriceIncrease", "false"), "100.00", true},
		{"increase capped", setPrice("130.00", "maxPriceIncrease", "5"), "105.00", true},
		{"ending after cap", setPrice("130.00", "maxPriceIncrease", "5", "roundingStrategy", "ENDING", "roundingEnding", ".99"), "105.99", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := NewActionExecutor(DefaultConfig(), DefaultActionRegistry(), nil)
			res, err := x.Apply(rule(1, 1, tt.action), newContext(), RuleEvaluationResult{})
			require.NoError(t, err)
			require.True(t, res.Success, res.ErrorMessage)
			assertMoney(t, tt.want, res.AdjustedPrice)
			if tt.noted {
				require.NotEmpty(t, res.Violations)
				assert.Equal(t, ViolationPriceCeiling, res.Violations[0].Code)
			} else {
				assert.Empty(t, res.Violations)
			}
		})
	}
}

func TestSetPrice_PrecisionRejected(t *testing.T) {
	x := NewActionExecutor(DefaultConfig(), nil, nil)
	res, err := x.Apply(rule(1, 1, setPrice("99.999")), newContext(), RuleEvaluationResult{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, ViolationPrecision, res.Violations[0].Code)
	assert.ErrorIs(t, res.Violations[0], ErrPrecision)
	assertMoney(t, "100.00", res.AdjustedPrice)
}

func TestEnforceMargin(t *testing.T) {
	tests := []struct {
		name   string
		params Parameters
		want   string
	}{
		{"on cost", params("marginBasis", "ON_COST", "targetMargin", "25"), "100.00"},
		{"on sale", params("marginBasis", "ON_SALE", "targetMargin", "25"), "106.67"},
		{"minimum keeps higher price", params("marginBasis", "ON_COST", "targetMargin", "10", "enforceMode", "MINIMUM"), "100.00"},
		{"minimum raises lower price", params("marginBasis", "ON_SALE", "targetMargin", "30", "enforceMode", "MINIMUM"), "114.29"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := newContext()
			ctx.CostPrice = dec("80.00")

			x := NewActionExecutor(DefaultConfig(), nil, nil)
			r := rule(1, 1, RuleAction{Type: ActionEnforceMargin, Parameters: tt.params})
			r.Type = RuleTypeMargin
			res, err := x.Apply(r, ctx, RuleEvaluationResult{})
			require.NoError(t, err)
			require.True(t, res.Success, res.ErrorMessage)
			assertMoney(t, tt.want, res.AdjustedPrice)
			require.True(t, res.MarginPercentage.Valid)
		})
	}
}

func TestEnforceMargin_InvalidParameters(t *testing.T) {
	tests := []struct {
		name   string
		params Parameters
		cost   string
		target error
	}{
		{"basis required", params("targetMargin", "25"), "80", ErrInvalidParameter},
		{"target required", params("marginBasis", "ON_COST"), "80", ErrInvalidParameter},
		{"on sale below 100", params("marginBasis", "ON_SALE", "targetMargin", "100"), "80", ErrInvalidParameter},
		{"cost required", params("marginBasis", "ON_COST", "targetMargin", "25"), "0", ErrActionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := newContext()
			ctx.CostPrice = dec(tt.cost)
			x := NewActionExecutor(DefaultConfig(), nil, nil)
			res, err := x.Apply(rule(1, 1, RuleAction{Type: ActionEnforceMargin, Parameters: tt.params}), ctx, RuleEvaluationResult{})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)
			assert.False(t, res.Success)
			assert.NotEmpty(t, res.ErrorMessage)
			assertMoney(t, "100.00", res.AdjustedPrice)
		})
	}
}

func TestDiscount_CappedByMaxDiscountPercent(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	r := rule(1, 1, discount("discountType", "PERCENTAGE", "value", "30", "maxDiscountPercent", "20"))
	r.Type = RuleTypeDiscount

	ev, err := e.Evaluate([]PricingRule{r}, newContext())
	require.NoError(t, err)
	require.Len(t, ev.Results, 1)

	res := ev.Results[0]
	assert.True(t, res.Success, res.ErrorMessage)
	assertMoney(t, "80.00", res.AdjustedPrice)
	assertMoney(t, "20.00", res.DiscountAmount)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, ViolationDiscountCap, res.Violations[0].Code)
	assert.Equal(t, true, res.Metadata["discountCapped"])
}

func TestDiscount_CappedByMaxTotalDiscount(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	ev, err := e.Evaluate([]PricingRule{
		rule(1, 2, discount("discountType", "FIXED_AMOUNT", "value", "10")),
		rule(2, 1, discount("discountType", "FIXED_AMOUNT", "value", "10", "maxTotalDiscount", "15")),
	}, newContext())
	require.NoError(t, err)
	require.Len(t, ev.Results, 2)
	assertMoney(t, "90.00", ev.Results[0].AdjustedPrice)
	assertMoney(t, "85.00", ev.Results[1].AdjustedPrice)
	assertMoney(t, "5.00", ev.Results[1].DiscountAmount)
	assert.Equal(t, ViolationDiscountCap, ev.Results[1].Violations[0].Code)
}

func TestDiscount_StackingPolicies(t *testing.T) {
	tests := []struct {
		name   string
		first  RuleAction
		second RuleAction
		want   []string
		ok     []bool
	}{
		{
			name:   "sequential compounds",
			first:  discount("value", "10"),
			second: discount("value", "10"),
			want:   []string{"90.00", "81.00"},
			ok:     []bool{true, true},
		},
		{
			name:   "multiplicative compounds",
			first:  discount("value", "10", "stackingPolicy", "MULTIPLICATIVE"),
			second: discount("value", "10", "stackingPolicy", "MULTIPLICATIVE"),
			want:   []string{"90.00", "81.00"},
			ok:     []bool{true, true},
		},
		{
			name:   "additive sums percentages",
			first:  discount("value", "10", "stackingPolicy", "ADDITIVE"),
			second: discount("value", "10", "stackingPolicy", "ADDITIVE"),
			want:   []string{"90.00", "80.00"},
			ok:     []bool{true, true},
		},
		{
			name:   "highest wins tops up",
			first:  discount("value", "10", "stackingPolicy", "HIGHEST_WINS"),
			second: discount("value", "15", "stackingPolicy", "HIGHEST_WINS"),
			want:   []string{"90.00", "85.00"},
			ok:     []bool{true, true},
		},
		{
			name:   "highest wins ignores smaller",
			first:  discount("value", "15", "stackingPolicy", "HIGHEST_WINS"),
			second: discount("value", "10", "stackingPolicy", "HIGHEST_WINS"),
			want:   []string{"85.00", "85.00"},
			ok:     []bool{true, true},
		},
		{
			name:   "non stackable second rejected",
			first:  discount("value", "10"),
			second: discount("value", "5", "stackable", "false"),
			want:   []string{"90.00", "90.00"},
			ok:     []bool{true, false},
		},
		{
			name:   "exclusive first blocks second",
			first:  discount("value", "10", "stackable", "false"),
			second: discount("value", "5"),
			want:   []string{"90.00", "90.00"},
			ok:     []bool{true, false},
		},
		{
			name:   "highest wins does not mix",
			first:  discount("value", "10"),
			second: discount("value", "20", "stackingPolicy", "HIGHEST_WINS"),
			want:   []string{"90.00", "90.00"},
			ok:     []bool{true, false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(DefaultConfig(), nil)
			ev, err := e.Evaluate([]PricingRule{rule(1, 10, tt.first), rule(2, 5, tt.second)}, newContext())
			require.NoError(t, err)
			require.Len(t, ev.Results, 2)
			for i, res := range ev.Results {
				assert.Equal(t, tt.ok[i], res.Success, "rule %d: %s", res.RuleID, res.ErrorMessage)
				assertMoney(t, tt.want[i], res.AdjustedPrice, "rule %d", res.RuleID)
			}
			if !tt.ok[1] {
				assert.Equal(t, ViolationStacking, ev.Results[1].Violations[0].Code)
			}
			assertMoney(t, tt.want[1], ev.FinalPrice)
		})
	}
}

func TestDiscount_InvalidParameters(t *testing.T) {
	tests := []struct {
		name   string
		action RuleAction
	}{
		{"missing value", discount("discountType", "PERCENTAGE")},
		{"unknown type", discount("discountType", "BOGO", "value", "1")},
		{"unknown policy", discount("value", "5", "stackingPolicy", "RANDOM")},
		{"percentage above 100", discount("value", "150")},
		{"non boolean stackable", discount("value", "5", "stackable", "maybe")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := NewActionExecutor(DefaultConfig(), nil, nil)
			res, err := x.Apply(rule(1, 1, tt.action), newContext(), RuleEvaluationResult{})
			assert.ErrorIs(t, err, ErrInvalidParameter)
			assert.False(t, res.Success)
		})
	}
}

func TestActionExecutor_RuleIsAtomic(t *testing.T) {
	x := NewActionExecutor(DefaultConfig(), nil, nil)
	r := rule(7, 1,
		RuleAction{Type: ActionSetPrice, Sequence: 1, Parameters: params("price", "120.00")},
		RuleAction{Type: ActionApplyDiscount, Sequence: 2, Parameters: params("value", "90")},
	)

	res, err := x.Apply(r, newContext(), RuleEvaluationResult{})
	require.NoError(t, err, "violations are data, not errors")
	assert.False(t, res.Success)
	assertMoney(t, "100.00", res.OriginalPrice)
	assertMoney(t, "100.00", res.AdjustedPrice)
	assertMoney(t, "0.00", res.DiscountAmount)
	require.NotEmpty(t, res.Violations)
	assert.Contains(t, res.ErrorMessage, "rejected")
}

func TestActionExecutor_SequenceOrder(t *testing.T) {
	x := NewActionExecutor(DefaultConfig(), nil, nil)
	r := rule(1, 1,
		RuleAction{Type: ActionApplyDiscount, Sequence: 2, Parameters: params("value", "10")},
		RuleAction{Type: ActionSetPrice, Sequence: 1, Parameters: params("price", "120.00")},
	)

	res, err := x.Apply(r, newContext(), RuleEvaluationResult{})
	require.NoError(t, err)
	require.True(t, res.Success, res.ErrorMessage)
	assertMoney(t, "108.00", res.AdjustedPrice)
	assertMoney(t, "12.00", res.DiscountAmount)
}

func TestActionExecutor_CustomActions(t *testing.T) {
	t.Run("competitor match undercuts", func(t *testing.T) {
		x := NewActionExecutor(DefaultConfig(), DefaultActionRegistry(), nil)
		r := rule(1, 1, RuleAction{Type: "CUSTOM:competitor_match", Parameters: params("undercutAmount", "1")})
		res, err := x.Apply(r, newContext(), RuleEvaluationResult{})
		require.NoError(t, err)
		require.True(t, res.Success, res.ErrorMessage)
		assertMoney(t, "94.00", res.AdjustedPrice)
		assert.Equal(t, "95.00", res.Metadata["competitorPrice"])
		assert.Equal(t, "competitor_match", res.Metadata["customAction"])
	})

	t.Run("competitor match respects floor", func(t *testing.T) {
		x := NewActionExecutor(DefaultConfig(), DefaultActionRegistry(), nil)
		r := rule(1, 1, RuleAction{Type: ActionCustom, CustomName: "competitor_match", Parameters: params("undercutPercent", "10", "floorPrice", "90")})
		res, err := x.Apply(r, newContext(), RuleEvaluationResult{})
		require.NoError(t, err)
		assertMoney(t, "90.00", res.AdjustedPrice)
	})

	t.Run("round", func(t *testing.T) {
		x := NewActionExecutor(DefaultConfig(), DefaultActionRegistry(), nil)
		r := rule(1, 1,
			RuleAction{Type: ActionApplyDiscount, Sequence: 1, Parameters: params("value", "12.5")},
			RuleAction{Type: "CUSTOM:round", Sequence: 2},
		)
		res, err := x.Apply(r, newContext(), RuleEvaluationResult{})
		require.NoError(t, err)
		require.True(t, res.Success, res.ErrorMessage)
		assertMoney(t, "88.00", res.AdjustedPrice)
	})

	t.Run("unknown custom action", func(t *testing.T) {
		x := NewActionExecutor(DefaultConfig(), DefaultActionRegistry(), nil)
		res, err := x.Apply(rule(1, 1, RuleAction{Type: "CUSTOM:nope"}), newContext(), RuleEvaluationResult{})
		require.Error(t, err)

		var unknown *UnknownActionTypeError
		require.True(t, errors.As(err, &unknown))
		assert.Equal(t, "CUSTOM:nope", unknown.Name)
		assert.ErrorIs(t, err, ErrUnknownActionType)
		assert.False(t, res.Success)
		assert.Contains(t, res.ErrorMessage, "nope")
	})

	t.Run("handler validation", func(t *testing.T) {
		x := NewActionExecutor(DefaultConfig(), DefaultActionRegistry(), nil)
		r := rule(1, 1, RuleAction{Type: "CUSTOM:competitor_match", Parameters: params("undercutAmount", "1", "undercutPercent", "5")})
		_, err := x.Apply(r, newContext(), RuleEvaluationResult{})
		assert.ErrorIs(t, err, ErrInvalidParameter)
	})
}

func TestActionExecutor_PriceChangeLimitCoversWholeRule(t *testing.T) {
	raise := func(seq int, pct string) RuleAction {
		return RuleAction{Type: ActionSetPrice, Sequence: seq, Parameters: params("basis", "CURRENT", "adjustmentPercent", pct)}
	}
	e := NewEngine(DefaultConfig(), nil)

	ev, err := e.Evaluate([]PricingRule{rule(1, 1, raise(1, "40"), raise(2, "40"))}, newContext())
	require.NoError(t, err)
	require.Len(t, ev.Results, 1)
	res := ev.Results[0]
	assert.False(t, res.Success, "140 then 196 moves 96 percent within one rule")
	assert.Equal(t, []ViolationCode{ViolationPriceChange}, codes(res.Violations))
	assertMoney(t, "100.00", ev.FinalPrice)

	ev, err = e.Evaluate([]PricingRule{rule(1, 1, raise(1, "20"), raise(2, "20"))}, newContext())
	require.NoError(t, err)
	require.Len(t, ev.Results, 1)
	assert.True(t, ev.Results[0].Success)
	assertMoney(t, "144.00", ev.FinalPrice)
}
