package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RuleBuilder assembles a PricingRule and validates it in Build.
type RuleBuilder struct {
	rule PricingRule
}

func NewRuleBuilder(id int64, name string, typ RuleType) *RuleBuilder {
	return &RuleBuilder{rule: PricingRule{ID: id, Name: name, Type: typ, Active: true}}
}

func (b *RuleBuilder) Priority(p int) *RuleBuilder {
	b.rule.Priority = p
	return b
}

func (b *RuleBuilder) Scope(s Scope) *RuleBuilder {
	b.rule.Scope = s
	return b
}

// Effective sets the half-open window [from, to). A zero time leaves that
// end open.
func (b *RuleBuilder) Effective(from, to time.Time) *RuleBuilder {
	b.rule.EffectiveFrom = timePtr(from)
	b.rule.EffectiveTo = timePtr(to)
	return b
}

func (b *RuleBuilder) Active(active bool) *RuleBuilder {
	b.rule.Active = active
	return b
}

func (b *RuleBuilder) When(conditions ...RuleCondition) *RuleBuilder {
	b.rule.Conditions = append(b.rule.Conditions, conditions...)
	return b
}

func (b *RuleBuilder) Then(actions ...RuleAction) *RuleBuilder {
	b.rule.Actions = append(b.rule.Actions, actions...)
	return b
}

func (b *RuleBuilder) PriceBounds(lo, hi *decimal.Decimal) *RuleBuilder {
	b.rule.MinPrice, b.rule.MaxPrice = lo, hi
	return b
}

func (b *RuleBuilder) MarginBounds(lo, hi *decimal.Decimal) *RuleBuilder {
	b.rule.MinMargin, b.rule.MaxMargin = lo, hi
	return b
}

func (b *RuleBuilder) Build() (PricingRule, error) {
	r := b.rule.clone()
	if err := r.Validate(); err != nil {
		return PricingRule{}, err
	}
	return r, nil
}

// Validate checks ids, names, bounds and actions. Every problem is reported, joined.
func (r PricingRule) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: rule %d: %s", ErrInvalidRule, r.ID, fmt.Sprintf(format, args...)))
	}

	if r.ID == 0 {
		fail("id is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		fail("name is required")
	}
	if !r.Type.Valid() {
		fail("unknown type %q", r.Type)
	}
	if r.MinPrice != nil && r.MaxPrice != nil && r.MinPrice.GreaterThan(*r.MaxPrice) {
		fail("minPrice %s is above maxPrice %s", r.MinPrice, r.MaxPrice)
	}
	if r.MinMargin != nil && r.MaxMargin != nil && r.MinMargin.GreaterThan(*r.MaxMargin) {
		fail("minMargin %s is above maxMargin %s", r.MinMargin, r.MaxMargin)
	}
	if r.EffectiveFrom != nil && r.EffectiveTo != nil && !r.EffectiveFrom.Before(*r.EffectiveTo) {
		fail("effectiveFrom must be before effectiveTo")
	}
	for i, c := range r.Conditions {
		if c.Type == "" {
			fail("condition %d has no type", i+1)
		}
	}
	for i, a := range r.Actions {
		a = a.normalize()
		switch a.Type {
		case ActionSetPrice, ActionApplyDiscount, ActionEnforceMargin:
		case ActionCustom:
			if a.CustomName == "" {
				fail("action %d: custom action needs a name", i+1)
			}
		default:
			fail("action %d: unknown type %q", i+1, a.Type)
		}
	}
	return errors.Join(errs...)
}

// Update applies mutate to a copy of r and returns it once it validates. r
// itself is never changed.
func (r PricingRule) Update(mutate func(*PricingRule)) (PricingRule, error) {
	next := r.clone()
	mutate(&next)
	if next.ID != r.ID {
		return PricingRule{}, fmt.Errorf("%w: rule id cannot change (%d -> %d)", ErrInvalidRule, r.ID, next.ID)
	}
	if err := next.Validate(); err != nil {
		return PricingRule{}, err
	}
	return next, nil
}

func (r PricingRule) clone() PricingRule {
	c := r
	c.Scope = Scope{
		SellerIDs:   cloneStrings(r.Scope.SellerIDs),
		SiteIDs:     cloneStrings(r.Scope.SiteIDs),
		CategoryIDs: cloneStrings(r.Scope.CategoryIDs),
		BrandIDs:    cloneStrings(r.Scope.BrandIDs),
	}
	c.Conditions = append([]RuleCondition(nil), r.Conditions...)
	c.Actions = make([]RuleAction, len(r.Actions))
	for i, a := range r.Actions {
		params := make(Parameters, len(a.Parameters))
		for k, v := range a.Parameters {
			params[k] = v
		}
		a.Parameters = params
		c.Actions[i] = a
	}
	if len(r.Actions) == 0 {
		c.Actions = nil
	}
	return c
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

// DecimalPtr is a convenience for optional bounds.
func DecimalPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}
