package engine

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	PhaseCollect    = "collect"
	PhaseSort       = "sort"
	PhaseConditions = "conditions"
	PhaseActions    = "actions"
	PhaseValidate   = "validate"
	PhaseRecord     = "record"
)

// Engine orders and applies pricing rules to a context. It holds no
// per-request state and is safe for concurrent use.
type Engine struct {
	cfg        Config
	conditions *ConditionEvaluator
	validator  *ConstraintValidator
	actions    *ActionExecutor
	log        zerolog.Logger
}

// NewEngine builds an engine. A nil registry means the built-in custom
// actions only.
func NewEngine(cfg Config, registry *ActionRegistry) *Engine {
	cfg = cfg.withDefaults()
	if registry == nil {
		registry = DefaultActionRegistry()
	}
	conditions := NewConditionEvaluator()
	validator := NewConstraintValidator(cfg, conditions)
	return &Engine{
		cfg:        cfg,
		conditions: conditions,
		validator:  validator,
		actions:    NewActionExecutor(cfg, registry, validator),
		log:        cfg.Logger,
	}
}

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) Validator() *ConstraintValidator { return e.validator }

func (e *Engine) EvaluateRules(rules []PricingRule, ctx *RuleEvaluationContext) ([]RuleEvaluationResult, error) {
	ev, err := e.Evaluate(rules, ctx)
	if err != nil {
		return nil, err
	}
	return ev.Results, nil
}

// Evaluate runs collect, sort, then conditions and actions per rule.
// Conditions see the static context; actions see the running price left by
// the previous rule. Failures local to a rule are recorded in its result and
// never abort the pass.
func (e *Engine) Evaluate(rules []PricingRule, ctx *RuleEvaluationContext) (*Evaluation, error) {
	if ctx == nil {
		return nil, fmt.Errorf("%w: nil context", ErrInvalidContext)
	}
	if err := ctx.Validate(); err != nil {
		return nil, err
	}
	ctx = ctx.forEvaluation()
	for i, r := range rules {
		if r.ID == 0 {
			return nil, fmt.Errorf("%w: rule at index %d (%q) has no id", ErrInvalidRule, i, r.Name)
		}
	}

	start := roundWorking(ctx.StartingPrice())
	ev := &Evaluation{
		Results:      []RuleEvaluationResult{},
		StartPrice:   RoundMoney(start),
		ExecutionLog: []ExecutionStep{},
	}

	applicable := e.collect(rules, ctx, ev)
	sortRules(applicable)
	if len(applicable) > 0 {
		ev.step(PhaseSort, 0, "order", orderSummary(applicable))
	}

	running := start
	pass := newDiscountPass()
	for _, rule := range applicable {
		outcome, err := e.conditions.EvaluateAll(rule.Conditions, ctx)
		if err != nil {
			e.log.Warn().Err(err).Int64("ruleId", rule.ID).Msg("rule skipped: malformed condition")
			ev.skip(rule.ID, err.Error())
			ev.step(PhaseConditions, rule.ID, "skip", err.Error())
			continue
		}
		if !outcome.Matched {
			ev.skip(rule.ID, outcome.Reason)
			ev.step(PhaseConditions, rule.ID, "no-match", outcome.Reason)
			continue
		}
		ev.step(PhaseConditions, rule.ID, "match", matchMessage(outcome))

		out := e.actions.applyRule(rule, ctx, running, pass, outcome.Override)
		switch {
		case out.err != nil:
			e.log.Error().Err(out.err).Int64("ruleId", rule.ID).Msg("rule failed")
			ev.step(PhaseActions, rule.ID, "fail", out.err.Error())
		case !out.result.Success:
			e.log.Warn().Int64("ruleId", rule.ID).Str("reason", out.result.ErrorMessage).Msg("rule rejected")
			ev.step(PhaseValidate, rule.ID, "reject", out.result.ErrorMessage)
		default:
			ev.step(PhaseActions, rule.ID, "apply", out.result.AppliedReason)
		}
		running = out.price
		pass = out.pass

		ev.Results = append(ev.Results, out.result)
		ev.step(PhaseRecord, rule.ID, "record", fmt.Sprintf("%s -> %s",
			out.result.OriginalPrice.StringFixed(MoneyScale), out.result.AdjustedPrice.StringFixed(MoneyScale)))
	}

	ev.FinalPrice = RoundMoney(running)
	e.log.Debug().
		Str("productId", ctx.ProductID).
		Int("rules", len(rules)).
		Int("applied", len(ev.Results)).
		Str("finalPrice", ev.FinalPrice.StringFixed(MoneyScale)).
		Msg("evaluation finished")
	return ev, nil
}

// collect keeps active, in-scope, in-effect rules. The input slice is never
// modified.
func (e *Engine) collect(rules []PricingRule, ctx *RuleEvaluationContext, ev *Evaluation) []PricingRule {
	out := make([]PricingRule, 0, len(rules))
	for _, r := range rules {
		var reason string
		switch {
		case !r.Active:
			reason = "inactive"
		case !r.Scope.Matches(ctx):
			reason = "out of scope"
		case !r.InEffect(ctx.EvaluatedAt):
			reason = "not in effect"
		}
		if reason != "" {
			ev.skip(r.ID, reason)
			ev.step(PhaseCollect, r.ID, "skip", reason)
			continue
		}
		out = append(out, r)
	}
	return out
}

// sortRules orders by priority descending, then id ascending.
func sortRules(rules []PricingRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})
}

func orderSummary(rules []PricingRule) string {
	ids := make([]string, len(rules))
	for i, r := range rules {
		ids[i] = fmt.Sprintf("%d(p%d)", r.ID, r.Priority)
	}
	return strings.Join(ids, ", ")
}

func matchMessage(o ConditionOutcome) string {
	if o.Override != nil {
		return o.Reason
	}
	return "all conditions satisfied"
}

func (ev *Evaluation) step(phase string, ruleID int64, action, message string) {
	ev.ExecutionLog = append(ev.ExecutionLog, ExecutionStep{Phase: phase, RuleID: ruleID, Action: action, Message: message})
}

func (ev *Evaluation) skip(ruleID int64, reason string) {
	ev.Skipped = append(ev.Skipped, SkippedRule{RuleID: ruleID, Reason: reason})
}

// Validate checks the context before any rule runs.
func (c *RuleEvaluationContext) Validate() error {
	if c.EvaluatedAt.IsZero() {
		return fmt.Errorf("%w: evaluatedAt is required", ErrInvalidContext)
	}
	if c.Quantity < 0 {
		return fmt.Errorf("%w: quantity %d is negative", ErrInvalidContext, c.Quantity)
	}
	prices := []struct {
		name  string
		value decimal.Decimal
	}{
		{"basePrice", c.BasePrice},
		{"costPrice", c.CostPrice},
		{"currentPrice", c.CurrentPrice},
	}
	for _, p := range prices {
		if p.value.IsNegative() {
			return fmt.Errorf("%w: %s %s is negative", ErrInvalidContext, p.name, p.value)
		}
		if !p.value.Equal(p.value.Round(MoneyScale)) {
			return fmt.Errorf("%w: %s %s has more than %d decimal places", ErrPrecision, p.name, p.value, MoneyScale)
		}
	}
	if !c.StartingPrice().IsPositive() {
		return fmt.Errorf("%w: basePrice or currentPrice must be positive", ErrInvalidContext)
	}
	return nil
}

var defaultEngine = sync.OnceValue(func() *Engine {
	return NewEngine(DefaultConfig(), nil)
})

// EvaluateRules evaluates rules with the default configuration and the
// built-in custom actions.
func EvaluateRules(rules []PricingRule, ctx *RuleEvaluationContext) ([]RuleEvaluationResult, error) {
	return defaultEngine().EvaluateRules(rules, ctx)
}
