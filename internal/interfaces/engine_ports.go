package interfaces

import (
	"context"

	"github.com/Victor-armando18/service-pricing/internal/domain"
	"github.com/Victor-armando18/service-pricing/pkg/engine"
)

// RuleSource define o contrato para obter as regras relevantes para uma consulta (disco, base de dados, cache).
type RuleSource interface {
	Rules(ctx context.Context, q domain.RuleQuery) ([]engine.PricingRule, error)
}

// RulePackLoader carrega um RulePack versionado completo.
type RulePackLoader interface {
	Load(ctx context.Context, version string) (*domain.RulePack, error)
}

// RuleStore gere regras individuais. Apenas fontes com base de dados o
// implementam.
type RuleStore interface {
	Rule(ctx context.Context, version string, id int64) (engine.PricingRule, error)
	CreateRule(ctx context.Context, version string, rule engine.PricingRule) error
	SaveRule(ctx context.Context, version string, rule engine.PricingRule) error
	DeleteRule(ctx context.Context, version string, id int64) error
}

// ResultSink recebe as avaliações concluídas e as decisões de buybox.
type ResultSink interface {
	PublishEvaluation(ctx context.Context, event domain.EvaluationEvent) error
	PublishBuybox(ctx context.Context, event domain.BuyboxEvent) error
}

// PricingFacade é a porta de entrada da aplicação para o pricing em produção.
type PricingFacade interface {
	Price(ctx context.Context, req domain.PriceRequest) (*domain.PriceOutcome, error)
	PriceBatch(ctx context.Context, reqs []domain.PriceRequest) ([]domain.BatchItem, error)
}

type BuyboxFacade interface {
	SelectWinner(ctx context.Context, req domain.BuyboxRequest) (*domain.BuyboxOutcome, error)
}

type PreviewFacade interface {
	Preview(ctx context.Context, req domain.PreviewRequest) (*domain.PreviewResult, error)
}
