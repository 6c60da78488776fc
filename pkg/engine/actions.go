package engine

import (
	"fmt"
	"maps"
	"strings"

	"github.com/shopspring/decimal"
)

// ActionExecutor applies a rule's actions, in sequence order, to a running
// price. Every action's outcome is checked by the ConstraintValidator; the
// first rejection reverts the whole rule.
type ActionExecutor struct {
	cfg       Config
	registry  *ActionRegistry
	validator *ConstraintValidator
}

func NewActionExecutor(cfg Config, registry *ActionRegistry, validator *ConstraintValidator) *ActionExecutor {
	cfg = cfg.withDefaults()
	if validator == nil {
		validator = NewConstraintValidator(cfg, nil)
	}
	return &ActionExecutor{cfg: cfg, registry: registry, validator: validator}
}

// Apply runs rule against running.AdjustedPrice, or the context's starting
// price when running carries none. Constraint violations come back in the
// result with Success=false; action errors are returned as well.
func (x *ActionExecutor) Apply(rule PricingRule, ctx *RuleEvaluationContext, running RuleEvaluationResult) (RuleEvaluationResult, error) {
	if ctx == nil {
		return RuleEvaluationResult{}, fmt.Errorf("%w: nil context", ErrInvalidContext)
	}
	start := running.AdjustedPrice
	if !start.IsPositive() {
		start = ctx.StartingPrice()
	}
	out := x.applyRule(rule, ctx, roundWorking(start), newDiscountPass(), nil)
	return out.result, out.err
}

type ruleOutcome struct {
	result RuleEvaluationResult
	price  decimal.Decimal
	pass   *discountPass
	err    error
}

type actionRun struct {
	rule     PricingRule
	ctx      *RuleEvaluationContext
	start    decimal.Decimal
	price    decimal.Decimal
	pass     *discountPass
	discount decimal.Decimal
	reasons  []string
	notes    []Violation
	metadata map[string]any
}

type stepResult struct {
	price    decimal.Decimal
	reason   string
	notes    []Violation
	rejected []Violation
	discount *discountStep
	metadata map[string]any
}

type discountStep struct {
	attempt DiscountAttempt
	amount  decimal.Decimal
	nominal decimal.Decimal
}

// applyRule works on a copy of pass; the returned pass is the updated copy on
// success and the untouched original on failure.
func (x *ActionExecutor) applyRule(rule PricingRule, ctx *RuleEvaluationContext, start decimal.Decimal, pass *discountPass, override *decimal.Decimal) (out ruleOutcome) {
	run := &actionRun{
		rule:     rule,
		ctx:      ctx,
		start:    start,
		price:    start,
		pass:     pass.clone(),
		metadata: map[string]any{},
	}
	defer func() {
		if r := recover(); r != nil {
			out = run.failed(pass, fmt.Errorf("%w: rule %d panicked: %v", ErrActionFailed, rule.ID, r), nil)
		}
	}()

	if override != nil {
		rejected, err := x.commit(run, stepResult{
			price:    roundWorking(*override),
			reason:   "blackout date: default price " + override.StringFixed(MoneyScale),
			metadata: map[string]any{"blackout": true},
		})
		if err != nil || len(rejected) > 0 {
			return run.failed(pass, err, rejected)
		}
		return run.succeeded()
	}

	for _, a := range rule.SortedActions() {
		a = a.normalize()
		step, err := x.step(run, a)
		if err != nil {
			return run.failed(pass, fmt.Errorf("action %s (sequence %d): %w", a.Key(), a.Sequence, err), nil)
		}
		rejected, err := x.commit(run, step)
		if err != nil || len(rejected) > 0 {
			return run.failed(pass, err, rejected)
		}
	}
	return run.succeeded()
}

func (x *ActionExecutor) step(run *actionRun, a RuleAction) (stepResult, error) {
	switch a.Type {
	case ActionSetPrice:
		return x.setPrice(run, a.Parameters)
	case ActionApplyDiscount:
		return x.applyDiscount(run, a.Parameters)
	case ActionEnforceMargin:
		return x.enforceMargin(run, a.Parameters)
	case ActionCustom:
		return x.custom(run, a)
	}
	return stepResult{}, &UnknownActionTypeError{Name: string(a.Type)}
}

// commit validates a step and, when accepted, moves the run forward.
func (x *ActionExecutor) commit(run *actionRun, s stepResult) ([]Violation, error) {
	if len(s.rejected) > 0 {
		return s.rejected, nil
	}
	c := &Candidate{
		Rule:          run.rule,
		Context:       run.ctx,
		PreviousPrice: RoundMoney(run.start),
		Price:         RoundMoney(s.price),
		Applied:       run.pass.applied,
	}
	if s.discount != nil {
		c.Discount = &s.discount.attempt
	}
	violations, err := x.validator.Validate(c, x.cfg.Mode)
	if err != nil {
		return nil, err
	}
	if len(violations) > 0 {
		return violations, nil
	}

	run.price = s.price
	if s.discount != nil {
		run.pass.record(AppliedDiscount{
			RuleID:    run.rule.ID,
			Amount:    s.discount.amount,
			Policy:    s.discount.attempt.Policy,
			Stackable: s.discount.attempt.Stackable,
		}, s.discount.nominal)
		run.discount = run.discount.Add(s.discount.amount)
	}
	if s.reason != "" {
		run.reasons = append(run.reasons, s.reason)
	}
	run.notes = append(run.notes, s.notes...)
	maps.Copy(run.metadata, s.metadata)
	return nil, nil
}

func (x *ActionExecutor) setPrice(run *actionRun, p Parameters) (stepResult, error) {
	target, err := x.priceTarget(run, p)
	if err != nil {
		return stepResult{}, err
	}
	if len(target.rejected) > 0 {
		return target, nil
	}
	price := target.price

	allowIncrease, err := p.Bool("allowPriceIncrease", true)
	if err != nil {
		return stepResult{}, err
	}
	if !allowIncrease && price.GreaterThan(run.price) {
		target.notes = append(target.notes, violationf(ViolationPriceCeiling,
			"increase to %s not allowed, kept %s", RoundMoney(price).StringFixed(MoneyScale), RoundMoney(run.price).StringFixed(MoneyScale)))
		price = run.price
	}
	maxIncrease, ok, err := p.Decimal("maxPriceIncrease")
	if err != nil {
		return stepResult{}, err
	}
	if ok {
		if maxIncrease.IsNegative() {
			return stepResult{}, fmt.Errorf("%w: maxPriceIncrease must not be negative", ErrInvalidParameter)
		}
		ceiling := run.price.Mul(hundred.Add(maxIncrease)).Div(hundred)
		if price.GreaterThan(ceiling) {
			target.notes = append(target.notes, violationf(ViolationPriceCeiling,
				"increase to %s capped at %s%% (%s)", RoundMoney(price).StringFixed(MoneyScale), maxIncrease, RoundMoney(ceiling).StringFixed(MoneyScale)))
			price = ceiling
		}
	}

	rounded, strategy, err := roundWithParams(p, price)
	if err != nil {
		return stepResult{}, err
	}
	target.price = rounded
	if strategy != RoundingNone {
		target.metadata["roundingStrategy"] = string(strategy)
	}
	target.reason = "price set to " + RoundMoney(rounded).StringFixed(MoneyScale)
	if len(target.notes) > 0 {
		target.metadata["priceIncreaseCapped"] = true
	}
	return target, nil
}

// priceTarget resolves SET_PRICE's target from "price" or from
// basis × (1 + adjustmentPercent/100) + adjustmentAmount.
func (x *ActionExecutor) priceTarget(run *actionRun, p Parameters) (stepResult, error) {
	s := stepResult{metadata: map[string]any{}}
	explicit, ok, err := p.Decimal("price")
	if err != nil {
		return s, err
	}
	if ok {
		if !explicit.IsPositive() {
			return s, fmt.Errorf("%w: price must be positive", ErrInvalidParameter)
		}
		if !explicit.Equal(RoundMoney(explicit)) {
			s.rejected = []Violation{violationf(ViolationPrecision, "price %s has more than %d decimal places", explicit, MoneyScale)}
			return s, nil
		}
		s.price = explicit
		return s, nil
	}

	pct, hasPct, err := p.Decimal("adjustmentPercent")
	if err != nil {
		return s, err
	}
	amount, hasAmount, err := p.Decimal("adjustmentAmount")
	if err != nil {
		return s, err
	}

	basis := strings.ToUpper(p.String("basis", ""))
	if basis == "" {
		if !hasPct && !hasAmount {
			return s, fmt.Errorf("%w: SET_PRICE needs price or basis", ErrInvalidParameter)
		}
		basis = "CURRENT"
	}
	var base decimal.Decimal
	switch basis {
	case "BASE":
		base = run.ctx.BasePrice
	case "CURRENT":
		base = run.price
	case "COST":
		if !run.ctx.CostPrice.IsPositive() {
			return s, fmt.Errorf("%w: COST basis needs a cost price", ErrActionFailed)
		}
		base = run.ctx.CostPrice
	case "COMPETITOR":
		raw, found := run.ctx.Lookup("competitorPrice")
		d, valid := toDecimal(raw)
		if !found || !valid || !d.IsPositive() {
			return s, fmt.Errorf("%w: competitor price unavailable", ErrActionFailed)
		}
		base = d
	default:
		return s, fmt.Errorf("%w: unknown basis %q", ErrInvalidParameter, basis)
	}
	s.metadata["basis"] = basis
	s.price = base.Mul(hundred.Add(pct)).Div(hundred).Add(amount)
	return s, nil
}

func (x *ActionExecutor) applyDiscount(run *actionRun, p Parameters) (stepResult, error) {
	s := stepResult{metadata: map[string]any{}}

	policy := StackingPolicy(strings.ToUpper(p.String("stackingPolicy", string(x.cfg.DefaultStacking))))
	if !policy.Valid() {
		return s, fmt.Errorf("%w: unknown stackingPolicy %q", ErrInvalidParameter, policy)
	}
	stackable, err := p.Bool("stackable", true)
	if err != nil {
		return s, err
	}
	value, ok, err := p.Decimal("value")
	if err != nil {
		return s, err
	}
	if !ok || !value.IsPositive() {
		return s, fmt.Errorf("%w: discount value must be positive", ErrInvalidParameter)
	}

	pass := run.pass
	pass.begin(run.price)
	ref := pass.reference(policy, run.price)

	var nominal decimal.Decimal
	discountType := strings.ToUpper(p.String("discountType", "PERCENTAGE"))
	switch discountType {
	case "PERCENTAGE":
		if value.GreaterThan(hundred) {
			return s, fmt.Errorf("%w: percentage discount above 100", ErrInvalidParameter)
		}
		nominal = ref.Mul(value).Div(hundred)
		s.reason = fmt.Sprintf("%s%% discount (%s)", value, policy)
	case "FIXED_AMOUNT":
		nominal = value
		s.reason = fmt.Sprintf("%s off (%s)", value.StringFixed(MoneyScale), policy)
	default:
		return s, fmt.Errorf("%w: unknown discountType %q", ErrInvalidParameter, discountType)
	}
	amount := pass.effective(policy, nominal)

	if maxPct, ok, err := p.Decimal("maxDiscountPercent"); err != nil {
		return s, err
	} else if ok {
		allowed := pass.base.Mul(maxPct).Div(hundred).Sub(pass.total)
		if amount.GreaterThan(allowed) {
			amount = decimal.Max(allowed, decimal.Zero)
			s.notes = append(s.notes, violationf(ViolationDiscountCap,
				"discount capped at %s%% of %s", maxPct, RoundMoney(pass.base).StringFixed(MoneyScale)))
		}
	}
	if maxTotal, ok, err := p.Decimal("maxTotalDiscount"); err != nil {
		return s, err
	} else if ok {
		allowed := maxTotal.Sub(pass.total)
		if amount.GreaterThan(allowed) {
			amount = decimal.Max(allowed, decimal.Zero)
			s.notes = append(s.notes, violationf(ViolationDiscountCap,
				"discount capped at total %s", maxTotal.StringFixed(MoneyScale)))
		}
	}
	if len(s.notes) > 0 {
		s.metadata["discountCapped"] = true
	}

	amount = roundWorking(amount)
	s.price = run.price.Sub(amount)
	s.discount = &discountStep{
		attempt: DiscountAttempt{RuleID: run.rule.ID, Policy: policy, Stackable: stackable},
		amount:  amount,
		nominal: nominal,
	}
	return s, nil
}

// enforceMargin prices for targetMargin over cost. ON_COST is a markup,
// ON_SALE is a margin on the selling price.
func (x *ActionExecutor) enforceMargin(run *actionRun, p Parameters) (stepResult, error) {
	s := stepResult{metadata: map[string]any{}}

	basis := strings.ToUpper(p.String("marginBasis", ""))
	if basis != "ON_SALE" && basis != "ON_COST" {
		return s, fmt.Errorf("%w: marginBasis must be ON_SALE or ON_COST", ErrInvalidParameter)
	}
	margin, ok, err := p.Decimal("targetMargin")
	if err != nil {
		return s, err
	}
	if !ok || margin.IsNegative() {
		return s, fmt.Errorf("%w: targetMargin is required and must not be negative", ErrInvalidParameter)
	}
	cost := run.ctx.CostPrice
	if !cost.IsPositive() {
		return s, fmt.Errorf("%w: margin needs a cost price", ErrActionFailed)
	}

	var target decimal.Decimal
	if basis == "ON_COST" {
		target = cost.Mul(hundred.Add(margin)).Div(hundred)
	} else {
		if margin.GreaterThanOrEqual(hundred) {
			return s, fmt.Errorf("%w: ON_SALE margin must be below 100", ErrInvalidParameter)
		}
		target = cost.Mul(hundred).Div(hundred.Sub(margin))
	}

	mode := strings.ToUpper(p.String("enforceMode", "EXACT"))
	switch mode {
	case "EXACT":
	case "MINIMUM":
		target = decimal.Max(target, run.price)
	default:
		return s, fmt.Errorf("%w: unknown enforceMode %q", ErrInvalidParameter, mode)
	}

	rounded, _, err := roundWithParams(p, target)
	if err != nil {
		return s, err
	}
	s.price = rounded
	s.reason = fmt.Sprintf("%s%% margin %s (%s)", margin, basis, mode)
	s.metadata["marginBasis"] = basis
	s.metadata["targetMargin"] = margin.String()
	return s, nil
}

func (x *ActionExecutor) custom(run *actionRun, a RuleAction) (stepResult, error) {
	h, ok := x.registry.Lookup(a.CustomName)
	if !ok {
		return stepResult{}, &UnknownActionTypeError{Name: a.Key()}
	}
	if err := h.Validate(a.Parameters); err != nil {
		return stepResult{}, err
	}

	in := RuleEvaluationResult{
		RuleID:         run.rule.ID,
		RuleName:       run.rule.Name,
		RuleType:       run.rule.Type,
		OriginalPrice:  run.start,
		AdjustedPrice:  run.price,
		DiscountAmount: run.discount,
		Metadata:       maps.Clone(run.metadata),
		Success:        true,
	}
	out, err := h.Execute(a, run.ctx, in)
	if err != nil {
		return stepResult{}, fmt.Errorf("%w: %v", ErrActionFailed, err)
	}
	if !out.AdjustedPrice.IsPositive() {
		return stepResult{}, fmt.Errorf("%w: custom action %s produced price %s", ErrActionFailed, a.CustomName, out.AdjustedPrice)
	}

	s := stepResult{
		price:    roundWorking(out.AdjustedPrice),
		reason:   out.AppliedReason,
		metadata: maps.Clone(out.Metadata),
	}
	if s.metadata == nil {
		s.metadata = map[string]any{}
	}
	s.metadata["customAction"] = a.CustomName
	return s, nil
}

func roundWithParams(p Parameters, price decimal.Decimal) (decimal.Decimal, RoundingStrategy, error) {
	strategy := RoundingStrategy(strings.ToUpper(p.String("roundingStrategy", string(RoundingNone))))
	if strategy == RoundingNone {
		return roundWorking(price), strategy, nil
	}
	rounded, err := ApplyRounding(price, strategy, p.String("roundingEnding", ""))
	return rounded, strategy, err
}

func (r *actionRun) succeeded() ruleOutcome {
	adjusted := RoundMoney(r.price)
	res := r.result()
	res.AdjustedPrice = adjusted
	res.DiscountAmount = RoundMoney(r.discount)
	res.AppliedReason = strings.Join(r.reasons, "; ")
	res.Success = true
	res.Violations = r.notes
	if r.ctx.CostPrice.IsPositive() {
		res.MarginPercentage = decimal.NewNullDecimal(MarginOnSale(adjusted, r.ctx.CostPrice).Round(MoneyScale))
	}
	return ruleOutcome{result: res, price: r.price, pass: r.pass}
}

func (r *actionRun) failed(original *discountPass, err error, violations []Violation) ruleOutcome {
	res := r.result()
	res.Metadata = nil
	res.AdjustedPrice = res.OriginalPrice
	res.DiscountAmount = decimal.Zero
	res.Success = false
	res.Violations = violations
	switch {
	case err != nil:
		res.ErrorMessage = err.Error()
	case len(violations) > 0:
		msgs := make([]string, len(violations))
		for i, v := range violations {
			msgs[i] = v.Error()
		}
		res.ErrorMessage = "rejected: " + strings.Join(msgs, "; ")
	}
	return ruleOutcome{result: res, price: r.start, pass: original, err: err}
}

func (r *actionRun) result() RuleEvaluationResult {
	return RuleEvaluationResult{
		RuleID:        r.rule.ID,
		RuleName:      r.rule.Name,
		RuleType:      r.rule.Type,
		OriginalPrice: RoundMoney(r.start),
		Metadata:      r.metadata,
	}
}
