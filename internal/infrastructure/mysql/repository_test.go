package mysql

import (
	"testing"
	"time"

	"github.com/Victor-armando18/service-pricing/pkg/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleRow_RoundTrip(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rule, err := engine.NewRuleBuilder(5, "electronics floor", engine.RuleTypeMargin).
		Priority(3).
		Scope(engine.Scope{CategoryIDs: []string{"electronics"}}).
		Effective(from, to).
		When(engine.RuleCondition{Type: engine.ConditionInventory, Operator: engine.OpLT, Value: engine.NumberValueOf("5")}).
		Then(engine.RuleAction{
			Type:       engine.ActionEnforceMargin,
			Sequence:   1,
			Parameters: engine.Parameters{"marginBasis": engine.StringValue("ON_SALE"), "targetMargin": engine.NumberValueOf("12")},
		}).
		PriceBounds(engine.DecimalPtr("1.00"), nil).
		MarginBounds(engine.DecimalPtr("10"), engine.DecimalPtr("60")).
		Build()
	require.NoError(t, err)

	row, err := fromRule(rule)
	require.NoError(t, err)
	assert.True(t, row.MinPrice.Valid)
	assert.False(t, row.MaxPrice.Valid)
	assert.JSONEq(t, `{"categoryIds":["electronics"]}`, string(row.Scope))

	back, err := row.toRule()
	require.NoError(t, err)
	assert.Equal(t, rule.ID, back.ID)
	assert.Equal(t, rule.Scope, back.Scope)
	assert.Equal(t, rule.Conditions, back.Conditions)
	assert.Equal(t, rule.Actions, back.Actions)
	assert.True(t, rule.MinPrice.Equal(*back.MinPrice))
	assert.Nil(t, back.MaxPrice)
	assert.Equal(t, from, *back.EffectiveFrom)
	assert.NoError(t, back.Validate())
}

func TestRuleRow_EmptyCollections(t *testing.T) {
	row, err := fromRule(engine.PricingRule{ID: 1, Name: "bare", Type: engine.RuleTypePrice, Active: true})
	require.NoError(t, err)
	assert.Equal(t, "[]", string(row.Conditions))
	assert.Equal(t, "[]", string(row.Actions))
	assert.Len(t, row.values(), len(row.dest())-1)
}

func TestRuleRow_BadJSON(t *testing.T) {
	row := ruleRow{ID: 9, Name: "broken", Type: "PRICE", Scope: []byte(`{}`), Actions: []byte(`{not json`)}
	_, err := row.toRule()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "column actions")
}
