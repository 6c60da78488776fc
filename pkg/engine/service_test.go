package engine

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_OrdersByPriorityThenID(t *testing.T) {
	bump := RuleAction{Type: ActionSetPrice, Parameters: params("adjustmentAmount", "1")}
	rules := []PricingRule{
		rule(30, 3, bump),
		rule(20, 5, bump),
		rule(10, 5, bump),
	}

	ev, err := NewEngine(DefaultConfig(), nil).Evaluate(rules, newContext())
	require.NoError(t, err)

	ids := make([]int64, 0, len(ev.Results))
	for _, r := range ev.Results {
		ids = append(ids, r.RuleID)
	}
	assert.Equal(t, []int64{10, 20, 30}, ids)

	assertMoney(t, "100.00", ev.Results[0].OriginalPrice)
	assertMoney(t, "101.00", ev.Results[0].AdjustedPrice)
	assertMoney(t, "101.00", ev.Results[1].OriginalPrice)
	assertMoney(t, "103.00", ev.FinalPrice)

	assert.Equal(t, []int64{30, 20, 10}, []int64{rules[0].ID, rules[1].ID, rules[2].ID}, "input slice is not reordered")
}

func TestEngine_Deterministic(t *testing.T) {
	rules := []PricingRule{
		rule(1, 10, discount("value", "7.5")),
		rule(2, 10, RuleAction{Type: ActionEnforceMargin, Parameters: params("marginBasis", "ON_SALE", "targetMargin", "33.3", "enforceMode", "MINIMUM")}),
		rule(3, 1, setPrice("99.00", "roundingStrategy", "ENDING", "roundingEnding", ".95")),
	}
	e := NewEngine(DefaultConfig(), nil)

	first, err := e.EvaluateRules(rules, newContext())
	require.NoError(t, err)
	second, err := e.EvaluateRules(rules, newContext())
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestEngine_EmptyRules(t *testing.T) {
	results, err := EvaluateRules(nil, newContext())
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)

	ev, err := NewEngine(DefaultConfig(), nil).Evaluate([]PricingRule{}, newContext())
	require.NoError(t, err)
	assertMoney(t, "100.00", ev.FinalPrice)
	assert.Empty(t, ev.ExecutionLog)
}

func TestEngine_FatalErrors(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)

	_, err := e.Evaluate(nil, nil)
	assert.ErrorIs(t, err, ErrInvalidContext)

	_, err = e.Evaluate([]PricingRule{rule(0, 1, setPrice("10.00"))}, newContext())
	assert.ErrorIs(t, err, ErrInvalidRule)

	ctx := newContext()
	ctx.BasePrice = dec("10.005")
	_, err = e.Evaluate(nil, ctx)
	assert.ErrorIs(t, err, ErrPrecision)

	ctx = newContext()
	ctx.EvaluatedAt = time.Time{}
	_, err = e.Evaluate(nil, ctx)
	assert.ErrorIs(t, err, ErrInvalidContext)

	ctx = newContext()
	ctx.BasePrice = dec("0")
	_, err = e.Evaluate(nil, ctx)
	assert.ErrorIs(t, err, ErrInvalidContext)
}

func TestEngine_Applicability(t *testing.T) {
	inactive := rule(1, 1, setPrice("90.00"))
	inactive.Active = false

	otherSeller := rule(2, 1, setPrice("90.00"))
	otherSeller.Scope = Scope{SellerIDs: []string{"seller-9"}}

	expired := rule(3, 1, setPrice("90.00"))
	expired.EffectiveTo = &wednesdayNoon

	startsNow := rule(4, 1, setPrice("95.00"))
	startsNow.EffectiveFrom = &wednesdayNoon
	startsNow.Scope = Scope{SiteIDs: []string{"site-1"}, CategoryIDs: []string{"cat-1", "cat-2"}}

	ev, err := NewEngine(DefaultConfig(), nil).Evaluate([]PricingRule{inactive, otherSeller, expired, startsNow}, newContext())
	require.NoError(t, err)

	require.Len(t, ev.Results, 1)
	assert.Equal(t, int64(4), ev.Results[0].RuleID)
	assertMoney(t, "95.00", ev.FinalPrice)

	reasons := map[int64]string{}
	for _, s := range ev.Skipped {
		reasons[s.RuleID] = s.Reason
	}
	assert.Equal(t, map[int64]string{1: "inactive", 2: "out of scope", 3: "not in effect"}, reasons)
}

func TestEngine_ConditionsSeeStaticContext(t *testing.T) {
	onlyAbove95 := rule(2, 1, discount("value", "5"))
	onlyAbove95.Conditions = []RuleCondition{{Type: ConditionPriceRange, Operator: OpGT, Value: NumberValueOf("95")}}

	ev, err := NewEngine(DefaultConfig(), nil).Evaluate([]PricingRule{
		rule(1, 10, setPrice("90.00")),
		onlyAbove95,
	}, newContext())
	require.NoError(t, err)

	require.Len(t, ev.Results, 2, "the second rule still matches on the original price")
	assertMoney(t, "90.00", ev.Results[1].OriginalPrice)
	assertMoney(t, "85.50", ev.FinalPrice)
}

func TestEngine_MalformedConditionSkipsRule(t *testing.T) {
	bad := rule(1, 10, setPrice("50.00"))
	bad.Conditions = []RuleCondition{{Type: ConditionAttribute, Attribute: "color", Operator: "LIKE", Value: StringValue("r")}}
	noMatch := rule(2, 5, setPrice("50.00"))
	noMatch.Conditions = []RuleCondition{{Type: ConditionAttribute, Attribute: "size", Operator: OpEquals, Value: StringValue("XL")}}

	ev, err := NewEngine(DefaultConfig(), nil).Evaluate([]PricingRule{bad, noMatch, rule(3, 1, setPrice("98.00"))}, newContext())
	require.NoError(t, err)

	require.Len(t, ev.Results, 1)
	assert.Equal(t, int64(3), ev.Results[0].RuleID)
	require.Len(t, ev.Skipped, 2)
	assert.Equal(t, int64(1), ev.Skipped[0].RuleID)
	assert.Contains(t, ev.Skipped[0].Reason, "malformed")
	assert.Equal(t, int64(2), ev.Skipped[1].RuleID)
}

func TestEngine_FailedRuleDoesNotStopEvaluation(t *testing.T) {
	registry, err := NewActionRegistry(map[string]CustomActionHandler{
		"explode": CustomActionFuncs{
			ExecuteFn: func(RuleAction, *RuleEvaluationContext, RuleEvaluationResult) (RuleEvaluationResult, error) {
				panic("boom")
			},
		},
	})
	require.NoError(t, err)
	e := NewEngine(DefaultConfig(), registry)

	ev, err := e.Evaluate([]PricingRule{
		rule(1, 40, setPrice("95.00")),
		rule(2, 30, RuleAction{Type: "CUSTOM:explode"}),
		rule(3, 20, RuleAction{Type: "CUSTOM:missing"}),
		rule(4, 15, setPrice("40.00")),
		rule(5, 10, discount("value", "10")),
	}, newContext())
	require.NoError(t, err)
	require.Len(t, ev.Results, 5)

	assert.True(t, ev.Results[0].Success)
	for _, i := range []int{1, 2, 3} {
		res := ev.Results[i]
		assert.False(t, res.Success, "rule %d", res.RuleID)
		assert.NotEmpty(t, res.ErrorMessage, "rule %d", res.RuleID)
		assertMoney(t, "95.00", res.AdjustedPrice, "rule %d", res.RuleID)
	}
	assert.Contains(t, ev.Results[1].ErrorMessage, "boom")
	assert.Contains(t, ev.Results[2].ErrorMessage, "missing")

	assert.True(t, ev.Results[4].Success)
	assertMoney(t, "95.00", ev.Results[4].OriginalPrice)
	assertMoney(t, "85.50", ev.FinalPrice)
}

func TestEngine_CollectAllReportsEveryViolation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = CollectAll
	e := NewEngine(cfg, nil)

	ev, err := e.Evaluate([]PricingRule{rule(1, 1, setPrice("40.00"))}, newContext())
	require.NoError(t, err)
	require.Len(t, ev.Results, 1)

	codes := map[ViolationCode]bool{}
	for _, v := range ev.Results[0].Violations {
		codes[v.Code] = true
	}
	assert.True(t, codes[ViolationMarginRange])
	assert.True(t, codes[ViolationPriceChange])
}

func TestEngine_RuleBounds(t *testing.T) {
	r := rule(1, 1, setPrice("120.00"))
	r.MaxPrice = DecimalPtr("110.00")

	ev, err := NewEngine(DefaultConfig(), nil).Evaluate([]PricingRule{r}, newContext())
	require.NoError(t, err)
	require.Len(t, ev.Results, 1)
	assert.False(t, ev.Results[0].Success)
	assert.Equal(t, ViolationPriceRange, ev.Results[0].Violations[0].Code)
	assertMoney(t, "100.00", ev.FinalPrice)
}

func TestEngine_BlackoutDefaultPrice(t *testing.T) {
	def := dec("79.99")
	r := rule(1, 1, discount("value", "50"))
	r.Conditions = []RuleCondition{{Type: ConditionTime, Window: &TimeWindow{
		BlackoutDates:  []string{"2024-03-13"},
		BlackoutPolicy: BlackoutDefaultPrice,
		DefaultPrice:   &def,
	}}}

	ev, err := NewEngine(DefaultConfig(), nil).Evaluate([]PricingRule{r}, newContext())
	require.NoError(t, err)
	require.Len(t, ev.Results, 1)

	res := ev.Results[0]
	assert.True(t, res.Success, res.ErrorMessage)
	assertMoney(t, "79.99", res.AdjustedPrice)
	assert.Equal(t, true, res.Metadata["blackout"])
}

func TestEngine_ExecutionLog(t *testing.T) {
	skipped := rule(2, 1, setPrice("90.00"))
	skipped.Active = false

	ev, err := NewEngine(DefaultConfig(), nil).Evaluate([]PricingRule{rule(1, 5, setPrice("99.00")), skipped}, newContext())
	require.NoError(t, err)

	phases := make([]string, 0, len(ev.ExecutionLog))
	for _, s := range ev.ExecutionLog {
		phases = append(phases, s.Phase)
	}
	assert.Equal(t, []string{PhaseCollect, PhaseSort, PhaseConditions, PhaseActions, PhaseRecord}, phases)
	assert.Equal(t, "100.00 -> 99.00", ev.ExecutionLog[4].Message)
}

func TestRuleEvaluationContext_Memo(t *testing.T) {
	ctx := newContext()
	calls := 0
	compute := func() any {
		calls++
		return calls
	}

	assert.Equal(t, 1, ctx.Memo("k", compute))
	assert.Equal(t, 1, ctx.Memo("k", compute), "computed once per key")
	assert.Equal(t, 2, ctx.Memo("other", compute))
	assert.Equal(t, 2, calls)
}

func TestEngine_JSONLogicDataIsPerEvaluation(t *testing.T) {
	eng := NewEngine(DefaultConfig(), nil)
	redOnly := rule(1, 1, discount("value", "10"))
	redOnly.Conditions = []RuleCondition{{
		Type:  ConditionJSONLogic,
		Value: StringValue(`{"==": [{"var": "attributes.color"}, "red"]}`),
	}}
	rules := []PricingRule{redOnly}

	red := newContext()
	ev, err := eng.Evaluate(rules, red)
	require.NoError(t, err)
	require.Len(t, ev.Results, 1)
	assertMoney(t, "90.00", ev.FinalPrice)

	blue := *red
	blue.Attributes = map[string]any{"color": "blue"}
	ev, err = eng.Evaluate(rules, &blue)
	require.NoError(t, err)
	assert.Empty(t, ev.Results, "copied context must not see the red data")
	assertMoney(t, "100.00", ev.FinalPrice)

	red.Attributes["color"] = "blue"
	ev, err = eng.Evaluate(rules, red)
	require.NoError(t, err)
	assert.Empty(t, ev.Results, "mutated context is re-read")
}

func TestRuleEvaluationContext_MemoNotSharedByCopies(t *testing.T) {
	a := newContext()
	a.Memo("k", func() any { return "a" })

	b := *a
	assert.Equal(t, "b", b.Memo("k", func() any { return "b" }))
	assert.Equal(t, "a", a.Memo("k", func() any { return "again" }))
}
