package preview

import (
	"context"
	"fmt"

	"github.com/Victor-armando18/service-pricing/internal/domain"
	"github.com/Victor-armando18/service-pricing/pkg/engine"
)

// UseCase valida rascunhos de regras sem tocar no pricing em produção.
// Todas as violações são reportadas, não só a primeira.
type UseCase struct {
	Engine *engine.Engine
	Differ Differ
}

type Differ interface {
	Diff(before, after map[string]any) map[string]any
}

// New builds a preview use case whose engine shares cfg's bounds but always
// collects every violation.
func New(cfg engine.Config, registry *engine.ActionRegistry, differ Differ) *UseCase {
	cfg.Mode = engine.CollectAll
	return &UseCase{Engine: engine.NewEngine(cfg, registry), Differ: differ}
}

func (u *UseCase) Preview(ctx context.Context, req domain.PreviewRequest) (*domain.PreviewResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := req.Rule.Validate(); err != nil {
		return nil, err
	}

	evalCtx := req.Context
	if err := evalCtx.Validate(); err != nil {
		return nil, err
	}

	res := &domain.PreviewResult{Violations: []engine.Violation{}}
	start := engine.RoundMoney(evalCtx.StartingPrice())

	if req.ProposedPrice != nil {
		found, err := u.Engine.Validator().Validate(&engine.Candidate{
			Rule:          req.Rule,
			Context:       &evalCtx,
			PreviousPrice: start,
			Price:         *req.ProposedPrice,
		}, engine.CollectAll)
		if err != nil {
			return nil, err
		}
		res.Violations = append(res.Violations, found...)
	}

	// Execução a seco da regra isolada e ativa (rascunhos desativados também)
	draft := req.Rule
	draft.Active = true
	dry := evalCtx
	ev, err := u.Engine.Evaluate([]engine.PricingRule{draft}, &dry)
	if err != nil {
		return nil, fmt.Errorf("dry run: %w", err)
	}
	res.DryRun = ev
	res.Valid = len(res.Violations) == 0
	for _, r := range ev.Results {
		if !r.Success {
			res.Valid = false
			res.Violations = append(res.Violations, r.Violations...)
		}
	}

	if u.Differ != nil {
		res.Delta = u.Differ.Diff(
			map[string]any{"price": start.StringFixed(engine.MoneyScale)},
			map[string]any{"price": ev.FinalPrice.StringFixed(engine.MoneyScale)},
		)
	}
	return res, nil
}
