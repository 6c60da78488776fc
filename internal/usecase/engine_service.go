package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Victor-armando18/service-pricing/internal/domain"
	"github.com/Victor-armando18/service-pricing/internal/infrastructure/diff"
	"github.com/Victor-armando18/service-pricing/internal/interfaces"
	"github.com/Victor-armando18/service-pricing/pkg/engine"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// PricingService carrega as regras do pedido, executa o motor e publica o
// resultado.
type PricingService struct {
	rules   interfaces.RuleSource
	engine  *engine.Engine
	sink    interfaces.ResultSink
	differ  *diff.Differ
	version string
	workers int
	log     zerolog.Logger
	now     func() time.Time
}

type PricingOptions struct {
	// DefaultVersion is used when a request names no rules version.
	DefaultVersion string
	// Workers bounds PriceBatch concurrency. Defaults to 4.
	Workers int
	Logger  zerolog.Logger
	Now     func() time.Time
}

func NewPricingService(rules interfaces.RuleSource, eng *engine.Engine, sink interfaces.ResultSink, opts PricingOptions) *PricingService {
	if opts.Workers < 1 {
		opts.Workers = 4
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &PricingService{
		rules:   rules,
		engine:  eng,
		sink:    sink,
		differ:  &diff.Differ{},
		version: opts.DefaultVersion,
		workers: opts.Workers,
		log:     opts.Logger,
		now:     opts.Now,
	}
}

func (s *PricingService) Price(ctx context.Context, req domain.PriceRequest) (*domain.PriceOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	version := req.RulesVersion
	if version == "" {
		version = s.version
	}
	if version == "" {
		return nil, fmt.Errorf("%w: rulesVersion is required", domain.ErrInvalidRequest)
	}

	// Cada pedido avalia a sua própria cópia do contexto
	evalCtx := req.Context
	if evalCtx.EvaluatedAt.IsZero() {
		evalCtx.EvaluatedAt = s.now().UTC()
	}

	rules, err := s.rules.Rules(ctx, domain.QueryFor(version, &evalCtx))
	if err != nil {
		return nil, err
	}

	ev, err := s.engine.Evaluate(rules, &evalCtx)
	if err != nil {
		return nil, err
	}

	outcome := &domain.PriceOutcome{
		RequestID:    req.RequestID,
		ProductID:    evalCtx.ProductID,
		RulesVersion: version,
		StartPrice:   ev.StartPrice,
		FinalPrice:   ev.FinalPrice,
		Evaluation:   ev,
		ServerDelta:  !ev.FinalPrice.Equal(ev.StartPrice),
		Delta:        s.differ.Diff(priceState(ev.StartPrice, evalCtx.CostPrice), priceState(ev.FinalPrice, evalCtx.CostPrice)),
	}

	event := domain.EvaluationEvent{
		RequestID:    req.RequestID,
		ProductID:    evalCtx.ProductID,
		SellerID:     evalCtx.SellerID,
		SiteID:       evalCtx.SiteID,
		RulesVersion: version,
		StartPrice:   ev.StartPrice,
		FinalPrice:   ev.FinalPrice,
		AppliedRules: []int64{},
	}
	for _, r := range ev.Results {
		if r.Success {
			event.AppliedRules = append(event.AppliedRules, r.RuleID)
		} else {
			event.FailedRules = append(event.FailedRules, r.RuleID)
		}
	}
	if err := s.sink.PublishEvaluation(ctx, event); err != nil {
		s.log.Error().Err(err).Str("productId", evalCtx.ProductID).Msg("failed to publish evaluation")
	}

	s.log.Info().
		Str("productId", evalCtx.ProductID).
		Str("rulesVersion", version).
		Str("startPrice", ev.StartPrice.StringFixed(engine.MoneyScale)).
		Str("finalPrice", ev.FinalPrice.StringFixed(engine.MoneyScale)).
		Int("applied", len(event.AppliedRules)).
		Int("failed", len(event.FailedRules)).
		Msg("priced")
	return outcome, nil
}

// PriceBatch processa os pedidos com um pool limitado de workers. Os itens
// mantêm a ordem de entrada; um pedido falhado não falha o lote.
func (s *PricingService) PriceBatch(ctx context.Context, reqs []domain.PriceRequest) ([]domain.BatchItem, error) {
	items := make([]domain.BatchItem, len(reqs))
	if len(reqs) == 0 {
		return items, nil
	}
	for i := range items {
		items[i].Index = i
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	workers := min(s.workers, len(reqs))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				outcome, err := s.Price(ctx, reqs[i])
				if err != nil {
					items[i].Error = err.Error()
					continue
				}
				items[i].Outcome = outcome
			}
		}()
	}

feed:
	for i := range reqs {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		for i := range items {
			if items[i].Outcome == nil && items[i].Error == "" {
				items[i].Error = err.Error()
			}
		}
		return items, err
	}
	return items, nil
}

func priceState(price, cost decimal.Decimal) map[string]any {
	state := map[string]any{"price": price.StringFixed(engine.MoneyScale)}
	if cost.IsPositive() && price.IsPositive() {
		state["marginPercentage"] = engine.MarginOnSale(price, cost).StringFixed(engine.MoneyScale)
	}
	return state
}

// IsClientError indica se err foi causado pelo pedido e não pelo serviço.
func IsClientError(err error) bool {
	for _, target := range []error{
		domain.ErrInvalidRequest,
		domain.ErrRulePackNotFound,
		engine.ErrInvalidContext,
		engine.ErrInvalidRule,
		engine.ErrPrecision,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
