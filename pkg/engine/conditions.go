package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ConditionEvaluator decides whether a rule's trigger conditions hold for a
// context. It never fails on missing data: a condition over an attribute the
// context does not carry is simply not satisfied.
type ConditionEvaluator struct{}

func NewConditionEvaluator() *ConditionEvaluator {
	return &ConditionEvaluator{}
}

// ConditionOutcome is the combined outcome of a rule's condition set.
// Override is set when a blackout window asks for a default price.
type ConditionOutcome struct {
	Matched  bool
	Override *decimal.Decimal
	Reason   string
}

func (e *ConditionEvaluator) Evaluate(c RuleCondition, ctx *RuleEvaluationContext) (bool, error) {
	out, err := e.evaluate(c, ctx)
	return out.Matched, err
}

// EvaluateAll AND-combines conditions. An empty set matches.
func (e *ConditionEvaluator) EvaluateAll(conditions []RuleCondition, ctx *RuleEvaluationContext) (ConditionOutcome, error) {
	combined := ConditionOutcome{Matched: true}
	for i, c := range conditions {
		out, err := e.evaluate(c, ctx)
		if err != nil {
			return ConditionOutcome{}, err
		}
		if !out.Matched {
			reason := out.Reason
			if reason == "" {
				reason = fmt.Sprintf("condition %d (%s) not satisfied", i+1, c.Type)
			}
			return ConditionOutcome{Reason: reason}, nil
		}
		if out.Override != nil {
			combined.Override = out.Override
			combined.Reason = out.Reason
		}
	}
	return combined, nil
}

func (e *ConditionEvaluator) evaluate(c RuleCondition, ctx *RuleEvaluationContext) (ConditionOutcome, error) {
	switch c.Type {
	case ConditionTime:
		return e.evaluateTime(c, ctx)
	case ConditionJSONLogic:
		ok, err := evaluateJSONLogic(c, ctx)
		return ConditionOutcome{Matched: ok}, err
	case ConditionAttribute:
		if strings.TrimSpace(c.Attribute) == "" {
			return ConditionOutcome{}, malformed(c, "attribute name is required")
		}
		ok, err := compareAttribute(c, ctx, c.Attribute, ValueString)
		return ConditionOutcome{Matched: ok}, err
	case ConditionPriceRange:
		ok, err := compareAttribute(c, ctx, attributeOr(c, "price"), ValueNumber)
		return ConditionOutcome{Matched: ok}, err
	case ConditionCompetitorPrice:
		ok, err := compareAttribute(c, ctx, attributeOr(c, "competitorPrice"), ValueNumber)
		return ConditionOutcome{Matched: ok}, err
	case ConditionInventory:
		ok, err := compareAttribute(c, ctx, attributeOr(c, "inventory"), ValueNumber)
		return ConditionOutcome{Matched: ok}, err
	case ConditionQuantity:
		ok, err := compareAttribute(c, ctx, attributeOr(c, "quantity"), ValueNumber)
		return ConditionOutcome{Matched: ok}, err
	}
	return ConditionOutcome{}, malformed(c, "unknown condition type %q", c.Type)
}

func attributeOr(c RuleCondition, def string) string {
	if a := strings.TrimSpace(c.Attribute); a != "" {
		return a
	}
	return def
}

func (e *ConditionEvaluator) evaluateTime(c RuleCondition, ctx *RuleEvaluationContext) (ConditionOutcome, error) {
	if c.Window != nil {
		out, err := c.Window.check(ctx.EvaluatedAt)
		if err != nil {
			return ConditionOutcome{}, malformed(c, "%v", err)
		}
		if out.blackout {
			if out.defaultPrice != nil {
				return ConditionOutcome{Matched: true, Override: out.defaultPrice, Reason: "blackout date: default price"}, nil
			}
			return ConditionOutcome{Reason: "blackout date: pricing disabled"}, nil
		}
		if !out.open {
			return ConditionOutcome{Reason: "outside time window"}, nil
		}
		if c.Operator == "" {
			return ConditionOutcome{Matched: true}, nil
		}
	}
	if c.Operator == "" {
		return ConditionOutcome{}, malformed(c, "time condition needs a window or an operator")
	}
	if c.Value.Type == "" {
		c.Value.Type = ValueDate
	}
	ok, err := compareAttribute(c, ctx, attributeOr(c, "evaluatedAt"), ValueDate)
	return ConditionOutcome{Matched: ok}, err
}

// compareAttribute parses the operands first so a malformed condition is
// reported even when the attribute is missing.
func compareAttribute(c RuleCondition, ctx *RuleEvaluationContext, attribute string, defKind ValueType) (bool, error) {
	kind := c.Value.Type
	if kind == "" {
		kind = defKind
	}
	operands, err := parseOperands(c, kind)
	if err != nil {
		return false, err
	}

	raw, ok := ctx.Lookup(attribute)
	if !ok {
		return false, nil
	}

	if c.Operator == OpContains {
		return contains(raw, operands[0]), nil
	}

	actual, ok := coerce(kind, raw)
	if !ok {
		return false, nil
	}

	switch c.Operator {
	case OpEquals:
		return compare(kind, actual, operands[0]) == 0, nil
	case OpNotEquals:
		return compare(kind, actual, operands[0]) != 0, nil
	case OpGT:
		return compare(kind, actual, operands[0]) > 0, nil
	case OpGTE:
		return compare(kind, actual, operands[0]) >= 0, nil
	case OpLT:
		return compare(kind, actual, operands[0]) < 0, nil
	case OpLTE:
		return compare(kind, actual, operands[0]) <= 0, nil
	case OpBetween:
		return compare(kind, actual, operands[0]) >= 0 && compare(kind, actual, operands[1]) <= 0, nil
	case OpIn:
		for _, o := range operands {
			if compare(kind, actual, o) == 0 {
				return true, nil
			}
		}
		return false, nil
	}
	return false, malformed(c, "unknown operator %q", c.Operator)
}

func parseOperands(c RuleCondition, kind ValueType) ([]any, error) {
	var raws []string
	switch c.Operator {
	case OpEquals, OpNotEquals, OpGT, OpGTE, OpLT, OpLTE:
		if strings.TrimSpace(c.Value.Raw) == "" {
			return nil, malformed(c, "operator %s needs a value", c.Operator)
		}
		if kind == ValueBool && c.Operator != OpEquals && c.Operator != OpNotEquals {
			return nil, malformed(c, "operator %s is not defined for booleans", c.Operator)
		}
		raws = []string{c.Value.Raw}
	case OpBetween:
		if len(c.Value.List) != 2 {
			return nil, malformed(c, "BETWEEN needs exactly two bounds, got %d", len(c.Value.List))
		}
		if kind == ValueBool {
			return nil, malformed(c, "BETWEEN is not defined for booleans")
		}
		raws = c.Value.List
	case OpIn:
		if len(c.Value.List) == 0 {
			return nil, malformed(c, "IN needs a non-empty list")
		}
		raws = c.Value.List
	case OpContains:
		if c.Value.Raw == "" {
			return nil, malformed(c, "CONTAINS needs a value")
		}
		return []any{c.Value.Raw}, nil
	case "":
		return nil, malformed(c, "operator is required")
	default:
		return nil, malformed(c, "unknown operator %q", c.Operator)
	}

	out := make([]any, 0, len(raws))
	for _, r := range raws {
		v, err := parseOperand(kind, r)
		if err != nil {
			return nil, malformed(c, "%v", err)
		}
		out = append(out, v)
	}
	if c.Operator == OpBetween && compare(kind, out[0], out[1]) > 0 {
		return nil, malformed(c, "BETWEEN lower bound %s is above upper bound %s", raws[0], raws[1])
	}
	return out, nil
}

func parseOperand(kind ValueType, s string) (any, error) {
	switch kind {
	case ValueString:
		return s, nil
	case ValueNumber:
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", s)
		}
		return d, nil
	case ValueBool:
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("%q is not a boolean", s)
		}
		return b, nil
	case ValueDate:
		return parseTimeValue(s)
	}
	return nil, fmt.Errorf("unknown value type %q", kind)
}

// coerce converts a context attribute to the comparison kind. A value that
// cannot be converted does not satisfy the condition.
func coerce(kind ValueType, raw any) (any, bool) {
	switch kind {
	case ValueString:
		switch v := raw.(type) {
		case string:
			return v, true
		case fmt.Stringer:
			return v.String(), true
		case int, int64, int32, float64, float32, bool:
			return fmt.Sprint(v), true
		}
	case ValueNumber:
		return toDecimal(raw)
	case ValueBool:
		switch v := raw.(type) {
		case bool:
			return v, true
		case string:
			b, err := strconv.ParseBool(v)
			return b, err == nil
		}
	case ValueDate:
		switch v := raw.(type) {
		case time.Time:
			return v.UTC(), true
		case string:
			t, err := parseTimeValue(v)
			return t, err == nil
		}
	}
	return nil, false
}

func toDecimal(raw any) (decimal.Decimal, bool) {
	switch v := raw.(type) {
	case decimal.Decimal:
		return v, true
	case *decimal.Decimal:
		if v == nil {
			return decimal.Zero, false
		}
		return *v, true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int32:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case float64:
		return decimal.NewFromFloat(v), true
	case float32:
		return decimal.NewFromFloat32(v), true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		return d, err == nil
	case fmt.Stringer:
		d, err := decimal.NewFromString(v.String())
		return d, err == nil
	}
	return decimal.Zero, false
}

func compare(kind ValueType, a, b any) int {
	switch kind {
	case ValueNumber:
		return a.(decimal.Decimal).Cmp(b.(decimal.Decimal))
	case ValueString:
		return strings.Compare(a.(string), b.(string))
	case ValueBool:
		if a.(bool) == b.(bool) {
			return 0
		}
		return 1
	case ValueDate:
		return a.(time.Time).Compare(b.(time.Time))
	}
	return 1
}

func contains(raw any, needle any) bool {
	n := needle.(string)
	switch v := raw.(type) {
	case string:
		return strings.Contains(v, n)
	case []string:
		for _, s := range v {
			if s == n {
				return true
			}
		}
	case []any:
		for _, s := range v {
			if fmt.Sprint(s) == n {
				return true
			}
		}
	}
	return false
}

// Lookup resolves a condition attribute against the context. Built-in fields
// win over the free-form attribute map; empty ids and zero cost or current
// price count as missing.
func (c *RuleEvaluationContext) Lookup(name string) (any, bool) {
	switch name {
	case "productId":
		return c.ProductID, c.ProductID != ""
	case "sellerId":
		return c.SellerID, c.SellerID != ""
	case "siteId":
		return c.SiteID, c.SiteID != ""
	case "categoryId":
		return c.CategoryID, c.CategoryID != ""
	case "brandId":
		return c.BrandID, c.BrandID != ""
	case "quantity":
		return c.Quantity, true
	case "basePrice":
		return c.BasePrice, true
	case "costPrice":
		return c.CostPrice, c.CostPrice.IsPositive()
	case "currentPrice":
		return c.CurrentPrice, c.CurrentPrice.IsPositive()
	case "price":
		return c.StartingPrice(), true
	case "evaluatedAt":
		return c.EvaluatedAt, !c.EvaluatedAt.IsZero()
	}
	v, ok := c.Attributes[name]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}
