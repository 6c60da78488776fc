package engine

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/diegoholiveira/jsonlogic/v3"
	"github.com/shopspring/decimal"
)

const jsonLogicDataKey = "jsonlogic:data"

// evaluateJSONLogic runs the JsonLogic expression held in the condition value
// against a flat view of the context.
func evaluateJSONLogic(c RuleCondition, ctx *RuleEvaluationContext) (bool, error) {
	expr := strings.TrimSpace(c.Value.Raw)
	if expr == "" {
		return false, malformed(c, "JSON_LOGIC condition needs an expression")
	}
	if !json.Valid([]byte(expr)) {
		return false, malformed(c, "JSON_LOGIC expression is not valid JSON")
	}

	data, _ := ctx.Memo(jsonLogicDataKey, func() any {
		b, err := json.Marshal(ctx.logicData())
		if err != nil {
			return []byte("{}")
		}
		return b
	}).([]byte)

	var out bytes.Buffer
	if err := jsonlogic.Apply(strings.NewReader(expr), bytes.NewReader(data), &out); err != nil {
		return false, malformed(c, "JSON_LOGIC: %v", err)
	}

	var res any
	if out.Len() == 0 {
		return false, nil
	}
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		return false, nil
	}
	return truthy(res), nil
}

func (c *RuleEvaluationContext) logicData() map[string]any {
	data := map[string]any{
		"productId":    c.ProductID,
		"sellerId":     c.SellerID,
		"siteId":       c.SiteID,
		"categoryId":   c.CategoryID,
		"brandId":      c.BrandID,
		"quantity":     c.Quantity,
		"basePrice":    c.BasePrice.InexactFloat64(),
		"costPrice":    c.CostPrice.InexactFloat64(),
		"currentPrice": c.CurrentPrice.InexactFloat64(),
		"price":        c.StartingPrice().InexactFloat64(),
	}
	attrs := make(map[string]any, len(c.Attributes))
	for k, v := range c.Attributes {
		if d, ok := v.(decimal.Decimal); ok {
			v = d.InexactFloat64()
		}
		attrs[k] = v
	}
	data["attributes"] = attrs
	return data
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	}
	return true
}
