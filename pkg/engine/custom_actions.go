package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// BuiltinCustomActions returns the handlers every registry starts from.
// Callers may extend the map before passing it to NewActionRegistry.
func BuiltinCustomActions() map[string]CustomActionHandler {
	return map[string]CustomActionHandler{
		"round":            roundAction{},
		"competitor_match": competitorMatchAction{},
	}
}

// roundAction rounds the running price half up to "precision" places
// (default 0).
type roundAction struct{}

func (roundAction) Validate(params Parameters) error {
	p, ok, err := params.Decimal("precision")
	if err != nil || !ok {
		return err
	}
	if !p.IsInteger() || p.IsNegative() || p.GreaterThan(decimal.NewFromInt(int64(WorkingScale))) {
		return fmt.Errorf("%w: precision must be an integer between 0 and %d", ErrInvalidParameter, WorkingScale)
	}
	return nil
}

func (roundAction) Execute(action RuleAction, _ *RuleEvaluationContext, running RuleEvaluationResult) (RuleEvaluationResult, error) {
	p, _, err := action.Parameters.Decimal("precision")
	if err != nil {
		return running, err
	}
	running.AdjustedPrice = running.AdjustedPrice.Round(int32(p.IntPart()))
	running.AppliedReason = fmt.Sprintf("rounded to %d places", p.IntPart())
	return running, nil
}

// competitorMatchAction undercuts the "competitorPrice" attribute by a fixed
// amount or a percentage, never going below floorPrice. Without a competitor
// price the running price is left alone.
type competitorMatchAction struct{}

func (competitorMatchAction) Validate(params Parameters) error {
	amount, hasAmount, err := params.Decimal("undercutAmount")
	if err != nil {
		return err
	}
	pct, hasPct, err := params.Decimal("undercutPercent")
	if err != nil {
		return err
	}
	if hasAmount && hasPct {
		return fmt.Errorf("%w: undercutAmount and undercutPercent are exclusive", ErrInvalidParameter)
	}
	if amount.IsNegative() {
		return fmt.Errorf("%w: undercutAmount must not be negative", ErrInvalidParameter)
	}
	if pct.IsNegative() || pct.GreaterThanOrEqual(hundred) {
		return fmt.Errorf("%w: undercutPercent must be in [0, 100)", ErrInvalidParameter)
	}
	if _, _, err := params.Decimal("floorPrice"); err != nil {
		return err
	}
	return nil
}

func (competitorMatchAction) Execute(action RuleAction, ctx *RuleEvaluationContext, running RuleEvaluationResult) (RuleEvaluationResult, error) {
	raw, ok := ctx.Lookup("competitorPrice")
	if !ok {
		running.AppliedReason = "no competitor price"
		return running, nil
	}
	competitor, ok := toDecimal(raw)
	if !ok || !competitor.IsPositive() {
		running.AppliedReason = "no usable competitor price"
		return running, nil
	}

	target := competitor
	if amount, ok, _ := action.Parameters.Decimal("undercutAmount"); ok {
		target = competitor.Sub(amount)
	} else if pct, ok, _ := action.Parameters.Decimal("undercutPercent"); ok {
		target = competitor.Mul(hundred.Sub(pct)).Div(hundred)
	}
	if floor, ok, _ := action.Parameters.Decimal("floorPrice"); ok && target.LessThan(floor) {
		target = floor
	}

	running.AdjustedPrice = roundWorking(target)
	running.AppliedReason = fmt.Sprintf("matched competitor price %s", competitor.StringFixed(MoneyScale))
	if running.Metadata == nil {
		running.Metadata = map[string]any{}
	}
	running.Metadata["competitorPrice"] = competitor.StringFixed(MoneyScale)
	return running, nil
}
