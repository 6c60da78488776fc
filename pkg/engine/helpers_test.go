package engine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

// wednesdayNoon is 2024-03-13 12:00 UTC.
var wednesdayNoon = time.Date(2024, 3, 13, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newContext() *RuleEvaluationContext {
	return &RuleEvaluationContext{
		ProductID:  "p-1",
		SellerID:   "seller-1",
		SiteID:     "site-1",
		CategoryID: "cat-1",
		BrandID:    "brand-1",
		Quantity:   2,
		BasePrice:  dec("100.00"),
		CostPrice:  dec("60.00"),
		Attributes: map[string]any{
			"color":           "red",
			"tags":            []string{"summer", "outdoor"},
			"competitorPrice": dec("95.00"),
			"inventory":       12,
		},
		EvaluatedAt: wednesdayNoon,
	}
}

func assertMoney(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.Equal(t, want, got.StringFixed(MoneyScale), msgAndArgs...)
}

func rule(id int64, priority int, actions ...RuleAction) PricingRule {
	return PricingRule{
		ID:       id,
		Name:     "rule",
		Type:     RuleTypePrice,
		Priority: priority,
		Active:   true,
		Actions:  actions,
	}
}

func setPrice(price string, extra ...string) RuleAction {
	return RuleAction{Type: ActionSetPrice, Sequence: 1, Parameters: params(append([]string{"price", price}, extra...)...)}
}

func discount(kv ...string) RuleAction {
	return RuleAction{Type: ActionApplyDiscount, Sequence: 1, Parameters: params(kv...)}
}

// params builds a parameter bag from key/value pairs.
func params(kv ...string) Parameters {
	p := Parameters{}
	for i := 0; i+1 < len(kv); i += 2 {
		p[kv[i]] = StringValue(kv[i+1])
	}
	return p
}
