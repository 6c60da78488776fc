package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ConstraintValidator runs independent business-rule checks. Checks report
// violations as data; only programmer errors come back as error.
type ConstraintValidator struct {
	cfg        Config
	conditions *ConditionEvaluator
}

func NewConstraintValidator(cfg Config, conditions *ConditionEvaluator) *ConstraintValidator {
	if conditions == nil {
		conditions = NewConditionEvaluator()
	}
	return &ConstraintValidator{cfg: cfg.withDefaults(), conditions: conditions}
}

// Candidate is a proposed price for a rule. PreviousPrice, Discount and
// Applied are optional; the checks that need them are skipped when absent.
type Candidate struct {
	Rule          PricingRule
	Context       *RuleEvaluationContext
	PreviousPrice decimal.Decimal
	Price         decimal.Decimal
	Discount      *DiscountAttempt
	Applied       []AppliedDiscount
}

func (v *ConstraintValidator) Validate(c *Candidate, mode ValidationMode) ([]Violation, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: nil candidate", ErrInvalidContext)
	}
	if c.Context == nil {
		return nil, fmt.Errorf("%w: candidate has no context", ErrInvalidContext)
	}

	checks := []func() []Violation{
		func() []Violation { return v.CheckPriceRange(c.Price, c.Rule) },
		func() []Violation { return v.CheckMarginRange(c.Price, c.Context.CostPrice, c.Rule) },
		func() []Violation { return v.CheckPriceChange(c.PreviousPrice, c.Price) },
		func() []Violation {
			if c.Discount == nil {
				return nil
			}
			return v.CheckStacking(*c.Discount, c.Applied)
		},
		func() []Violation { return v.CheckTimeConstraints(c.Rule, c.Context) },
	}

	var out []Violation
	for _, check := range checks {
		found := check()
		if len(found) == 0 {
			continue
		}
		if mode != CollectAll {
			return found[:1], nil
		}
		out = append(out, found...)
	}
	return out, nil
}

func (v *ConstraintValidator) CheckPriceRange(price decimal.Decimal, rule PricingRule) []Violation {
	var out []Violation
	if !price.Equal(price.Round(MoneyScale)) {
		out = append(out, violationf(ViolationPrecision, "price %s has more than %d decimal places", price, MoneyScale))
	}
	if !price.IsPositive() {
		return append(out, violationf(ViolationPriceRange, "price %s must be positive", price.StringFixed(MoneyScale)))
	}
	if price.LessThan(v.cfg.MinPrice) {
		out = append(out, violationf(ViolationPriceRange, "price %s is below the minimum %s", price.StringFixed(MoneyScale), v.cfg.MinPrice.StringFixed(MoneyScale)))
	}
	if v.cfg.MaxPrice.Valid && price.GreaterThan(v.cfg.MaxPrice.Decimal) {
		out = append(out, violationf(ViolationPriceRange, "price %s is above the maximum %s", price.StringFixed(MoneyScale), v.cfg.MaxPrice.Decimal.StringFixed(MoneyScale)))
	}
	if rule.MinPrice != nil && price.LessThan(*rule.MinPrice) {
		out = append(out, violationf(ViolationPriceRange, "price %s is below rule %d minimum %s", price.StringFixed(MoneyScale), rule.ID, rule.MinPrice.StringFixed(MoneyScale)))
	}
	if rule.MaxPrice != nil && price.GreaterThan(*rule.MaxPrice) {
		out = append(out, violationf(ViolationPriceRange, "price %s is above rule %d maximum %s", price.StringFixed(MoneyScale), rule.ID, rule.MaxPrice.StringFixed(MoneyScale)))
	}
	return out
}

// CheckMarginRange measures margin on sale price. It is skipped when the
// cost price is unknown.
func (v *ConstraintValidator) CheckMarginRange(price, cost decimal.Decimal, rule PricingRule) []Violation {
	if !cost.IsPositive() || !price.IsPositive() {
		return nil
	}
	margin := MarginOnSale(price, cost).Round(MoneyScale)
	var out []Violation
	if margin.LessThan(v.cfg.MinMargin) {
		out = append(out, violationf(ViolationMarginRange, "margin %s%% is below the minimum %s%%", margin, v.cfg.MinMargin))
	}
	if margin.GreaterThan(v.cfg.MaxMargin) {
		out = append(out, violationf(ViolationMarginRange, "margin %s%% is above the maximum %s%%", margin, v.cfg.MaxMargin))
	}
	if rule.MinMargin != nil && margin.LessThan(*rule.MinMargin) {
		out = append(out, violationf(ViolationMarginRange, "margin %s%% is below rule %d minimum %s%%", margin, rule.ID, rule.MinMargin))
	}
	if rule.MaxMargin != nil && margin.GreaterThan(*rule.MaxMargin) {
		out = append(out, violationf(ViolationMarginRange, "margin %s%% is above rule %d maximum %s%%", margin, rule.ID, rule.MaxMargin))
	}
	return out
}

// CheckPriceChange guards against runaway rule chains by capping the change
// of a single step.
func (v *ConstraintValidator) CheckPriceChange(previous, next decimal.Decimal) []Violation {
	if !previous.IsPositive() {
		return nil
	}
	change := percentOf(next.Sub(previous).Abs(), previous)
	if change.GreaterThan(v.cfg.MaxPriceChangePercent) {
		return []Violation{violationf(ViolationPriceChange, "price change of %s%% exceeds the %s%% limit (%s -> %s)",
			change.Round(MoneyScale), v.cfg.MaxPriceChangePercent, previous.StringFixed(MoneyScale), next.StringFixed(MoneyScale))}
	}
	return nil
}

func (v *ConstraintValidator) CheckStacking(attempt DiscountAttempt, applied []AppliedDiscount) []Violation {
	if len(applied) == 0 {
		return nil
	}
	var out []Violation
	if !attempt.Stackable {
		out = append(out, violationf(ViolationStacking, "discount of rule %d is not stackable with %d discount(s) already applied", attempt.RuleID, len(applied)))
	}
	for _, a := range applied {
		if !a.Stackable {
			out = append(out, violationf(ViolationStacking, "discount of rule %d is exclusive", a.RuleID))
			continue
		}
		if (a.Policy == StackingHighestWins) != (attempt.Policy == StackingHighestWins) {
			out = append(out, violationf(ViolationStacking, "%s discount of rule %d cannot combine with %s discount of rule %d",
				attempt.Policy, attempt.RuleID, a.Policy, a.RuleID))
		}
	}
	return out
}

// CheckTimeConstraints delegates to the condition evaluator's time logic.
func (v *ConstraintValidator) CheckTimeConstraints(rule PricingRule, ctx *RuleEvaluationContext) []Violation {
	var out []Violation
	if !rule.InEffect(ctx.EvaluatedAt) {
		out = append(out, violationf(ViolationTime, "rule %d is not in effect at %s", rule.ID, ctx.EvaluatedAt.UTC().Format("2006-01-02T15:04:05Z")))
	}
	for _, c := range rule.Conditions {
		if c.Type != ConditionTime {
			continue
		}
		ok, err := v.conditions.Evaluate(c, ctx)
		if err != nil {
			out = append(out, violationf(ViolationTime, "%v", err))
			continue
		}
		if !ok {
			out = append(out, violationf(ViolationTime, "rule %d is outside its time window", rule.ID))
		}
	}
	return out
}
