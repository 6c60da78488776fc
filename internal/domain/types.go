package domain

import (
	"errors"
	"time"

	"github.com/Victor-armando18/service-pricing/pkg/engine"
	"github.com/shopspring/decimal"
)

// --- RulePacks e Consultas ---

// RulePack representa um conjunto versionado de regras, tal como guardado em
// disco ou na tabela de regras.
type RulePack struct {
	Version     string               `json:"version" yaml:"version"`
	Description string               `json:"description,omitempty" yaml:"description,omitempty"`
	Rules       []engine.PricingRule `json:"rules" yaml:"rules"`
}

// RuleQuery restringe as regras devolvidas por uma fonte. Campos de âmbito
// vazios aceitam qualquer regra; um At zero desliga o filtro de vigência.
type RuleQuery struct {
	Version    string
	SellerID   string
	SiteID     string
	CategoryID string
	BrandID    string
	At         time.Time
}

// QueryFor constrói a consulta das regras relevantes para ctx.
func QueryFor(version string, ctx *engine.RuleEvaluationContext) RuleQuery {
	return RuleQuery{
		Version:    version,
		SellerID:   ctx.SellerID,
		SiteID:     ctx.SiteID,
		CategoryID: ctx.CategoryID,
		BrandID:    ctx.BrandID,
		At:         ctx.EvaluatedAt,
	}
}

// Matches aplica o âmbito e a vigência da consulta a uma regra. Regras
// inativas ficam para o motor reportar como ignoradas.
func (q RuleQuery) Matches(r engine.PricingRule) bool {
	probe := &engine.RuleEvaluationContext{
		SellerID:   q.SellerID,
		SiteID:     q.SiteID,
		CategoryID: q.CategoryID,
		BrandID:    q.BrandID,
	}
	if !r.Scope.Matches(probe) {
		return false
	}
	return q.At.IsZero() || r.InEffect(q.At)
}

// Filter mantém as regras que correspondem a q, preservando a ordem.
func (q RuleQuery) Filter(rules []engine.PricingRule) []engine.PricingRule {
	out := make([]engine.PricingRule, 0, len(rules))
	for _, r := range rules {
		if q.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}

// --- Pedidos de Pricing ---

type PriceRequest struct {
	RequestID    string                       `json:"requestId,omitempty"`
	RulesVersion string                       `json:"rulesVersion,omitempty"`
	Context      engine.RuleEvaluationContext `json:"context"`
}

type PriceOutcome struct {
	RequestID    string             `json:"requestId,omitempty"`
	ProductID    string             `json:"productId"`
	RulesVersion string             `json:"rulesVersion"`
	StartPrice   decimal.Decimal    `json:"startPrice"`
	FinalPrice   decimal.Decimal    `json:"finalPrice"`
	Evaluation   *engine.Evaluation `json:"evaluation"`
	ServerDelta  bool               `json:"serverDelta"`
	Delta        map[string]any     `json:"delta,omitempty"`
}

// BatchItem guarda o resultado ou o erro de um pedido do lote, na posição
// original do pedido.
type BatchItem struct {
	Index   int           `json:"index"`
	Outcome *PriceOutcome `json:"outcome,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// --- Buybox ---

type BuyboxRequest struct {
	ProductID string               `json:"productId"`
	SiteID    string               `json:"siteId,omitempty"`
	Offers    []engine.Offer       `json:"offers"`
	Weights   *engine.ScoreWeights `json:"weights,omitempty"`
}

type BuyboxOutcome struct {
	ProductID string               `json:"productId"`
	Winner    engine.Offer         `json:"winner"`
	Ranking   []engine.BuyboxScore `json:"ranking"`
	Eligible  int                  `json:"eligible"`
}

// --- Pré-visualização ---

// PreviewRequest pergunta se um preço proposto passa as restrições da regra
// e o que a regra, sozinha, faria ao contexto.
type PreviewRequest struct {
	Rule          engine.PricingRule           `json:"rule"`
	Context       engine.RuleEvaluationContext `json:"context"`
	ProposedPrice *decimal.Decimal             `json:"proposedPrice,omitempty"`
}

type PreviewResult struct {
	Valid      bool               `json:"valid"`
	Violations []engine.Violation `json:"violations"`
	DryRun     *engine.Evaluation `json:"dryRun,omitempty"`
	Delta      map[string]any     `json:"delta,omitempty"`
}

// --- Eventos ---

const (
	EventPricingEvaluated = "pricing.evaluated"
	EventBuyboxSelected   = "buybox.selected"
)

type EvaluationEvent struct {
	EventID      string          `json:"eventId"`
	Type         string          `json:"type"`
	RequestID    string          `json:"requestId,omitempty"`
	ProductID    string          `json:"productId"`
	SellerID     string          `json:"sellerId,omitempty"`
	SiteID       string          `json:"siteId,omitempty"`
	RulesVersion string          `json:"rulesVersion"`
	StartPrice   decimal.Decimal `json:"startPrice"`
	FinalPrice   decimal.Decimal `json:"finalPrice"`
	AppliedRules []int64         `json:"appliedRules"`
	FailedRules  []int64         `json:"failedRules,omitempty"`
	OccurredAt   time.Time       `json:"occurredAt"`
}

type BuyboxEvent struct {
	EventID        string          `json:"eventId"`
	Type           string          `json:"type"`
	ProductID      string          `json:"productId"`
	SiteID         string          `json:"siteId,omitempty"`
	WinnerSellerID string          `json:"winnerSellerId"`
	WinnerPrice    decimal.Decimal `json:"winnerPrice"`
	Score          float64         `json:"score"`
	Candidates     int             `json:"candidates"`
	OccurredAt     time.Time       `json:"occurredAt"`
}

// --- Erros ---
var (
	ErrRulePackNotFound    = errors.New("rule pack not found")
	ErrRuleNotFound        = errors.New("rule not found")
	ErrDuplicateRule       = errors.New("rule already exists")
	ErrRuleSourceFailed    = errors.New("rule source failed")
	ErrNoEligibleOffers    = errors.New("no eligible offers")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrRuleUpdatesDisabled = errors.New("rule updates are not supported by the configured rule source")
)
