package engine

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type RuleType string

const (
	RuleTypePrice    RuleType = "PRICE"
	RuleTypeDiscount RuleType = "DISCOUNT"
	RuleTypeMargin   RuleType = "MARGIN"
	RuleTypeCustom   RuleType = "CUSTOM"
)

func (t RuleType) Valid() bool {
	switch t {
	case RuleTypePrice, RuleTypeDiscount, RuleTypeMargin, RuleTypeCustom:
		return true
	}
	return false
}

// Scope restricts a rule to sellers, sites, categories and brands. An empty
// list matches everything.
type Scope struct {
	SellerIDs   []string `json:"sellerIds,omitempty" yaml:"sellerIds,omitempty"`
	SiteIDs     []string `json:"siteIds,omitempty" yaml:"siteIds,omitempty"`
	CategoryIDs []string `json:"categoryIds,omitempty" yaml:"categoryIds,omitempty"`
	BrandIDs    []string `json:"brandIds,omitempty" yaml:"brandIds,omitempty"`
}

func (s Scope) Matches(ctx *RuleEvaluationContext) bool {
	return inSet(s.SellerIDs, ctx.SellerID) &&
		inSet(s.SiteIDs, ctx.SiteID) &&
		inSet(s.CategoryIDs, ctx.CategoryID) &&
		inSet(s.BrandIDs, ctx.BrandID)
}

func inSet(set []string, v string) bool {
	if len(set) == 0 {
		return true
	}
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// PricingRule is read-only during evaluation. Build it with NewRuleBuilder and
// change it with Update so it is validated again.
type PricingRule struct {
	ID            int64            `json:"id" yaml:"id"`
	Name          string           `json:"name" yaml:"name"`
	Type          RuleType         `json:"type" yaml:"type"`
	Priority      int              `json:"priority" yaml:"priority"`
	Scope         Scope            `json:"scope" yaml:"scope"`
	EffectiveFrom *time.Time       `json:"effectiveFrom,omitempty" yaml:"effectiveFrom,omitempty"`
	EffectiveTo   *time.Time       `json:"effectiveTo,omitempty" yaml:"effectiveTo,omitempty"`
	Active        bool             `json:"active" yaml:"active"`
	Conditions    []RuleCondition  `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Actions       []RuleAction     `json:"actions,omitempty" yaml:"actions,omitempty"`
	MinPrice      *decimal.Decimal `json:"minPrice,omitempty" yaml:"minPrice,omitempty"`
	MaxPrice      *decimal.Decimal `json:"maxPrice,omitempty" yaml:"maxPrice,omitempty"`
	MinMargin     *decimal.Decimal `json:"minMargin,omitempty" yaml:"minMargin,omitempty"`
	MaxMargin     *decimal.Decimal `json:"maxMargin,omitempty" yaml:"maxMargin,omitempty"`
}

// InEffect reports whether at falls inside [EffectiveFrom, EffectiveTo).
func (r PricingRule) InEffect(at time.Time) bool {
	at = at.UTC()
	if r.EffectiveFrom != nil && at.Before(r.EffectiveFrom.UTC()) {
		return false
	}
	if r.EffectiveTo != nil && !at.Before(r.EffectiveTo.UTC()) {
		return false
	}
	return true
}

// AppliesTo combines the active flag, scope and effective window.
func (r PricingRule) AppliesTo(ctx *RuleEvaluationContext) bool {
	return r.Active && r.Scope.Matches(ctx) && r.InEffect(ctx.EvaluatedAt)
}

// SortedActions returns the actions ordered by sequence number.
func (r PricingRule) SortedActions() []RuleAction {
	out := make([]RuleAction, len(r.Actions))
	copy(out, r.Actions)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Sequence < out[j].Sequence
	})
	return out
}

type ConditionType string

const (
	ConditionAttribute       ConditionType = "ATTRIBUTE"
	ConditionPriceRange      ConditionType = "PRICE_RANGE"
	ConditionCompetitorPrice ConditionType = "COMPETITOR_PRICE"
	ConditionInventory       ConditionType = "INVENTORY"
	ConditionQuantity        ConditionType = "QUANTITY"
	ConditionTime            ConditionType = "TIME"
	ConditionJSONLogic       ConditionType = "JSON_LOGIC"
)

type Operator string

const (
	OpEquals    Operator = "EQUALS"
	OpNotEquals Operator = "NOT_EQUALS"
	OpGT        Operator = "GT"
	OpGTE       Operator = "GTE"
	OpLT        Operator = "LT"
	OpLTE       Operator = "LTE"
	OpBetween   Operator = "BETWEEN"
	OpIn        Operator = "IN"
	OpContains  Operator = "CONTAINS"
)

type RuleCondition struct {
	Type      ConditionType `json:"type" yaml:"type"`
	Attribute string        `json:"attribute,omitempty" yaml:"attribute,omitempty"`
	Operator  Operator      `json:"operator,omitempty" yaml:"operator,omitempty"`
	Value     Value         `json:"value" yaml:"value"`
	Window    *TimeWindow   `json:"window,omitempty" yaml:"window,omitempty"`
}

type RuleAction struct {
	Type       ActionType `json:"type" yaml:"type"`
	CustomName string     `json:"customName,omitempty" yaml:"customName,omitempty"`
	Sequence   int        `json:"sequence" yaml:"sequence"`
	Parameters Parameters `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// RuleEvaluationContext is the static input of one evaluation request. It is
// not safe for concurrent use because of the scratch memo.
type RuleEvaluationContext struct {
	ProductID    string          `json:"productId"`
	SellerID     string          `json:"sellerId"`
	SiteID       string          `json:"siteId"`
	CategoryID   string          `json:"categoryId"`
	BrandID      string          `json:"brandId"`
	Quantity     int             `json:"quantity"`
	BasePrice    decimal.Decimal `json:"basePrice"`
	CostPrice    decimal.Decimal `json:"costPrice"`
	CurrentPrice decimal.Decimal `json:"currentPrice"`
	Attributes   map[string]any  `json:"attributes,omitempty"`
	EvaluatedAt  time.Time       `json:"evaluatedAt"`

	scratch *memo
}

// memo belongs to the context that created it. A copied context sees a
// foreign owner and starts a fresh memo.
type memo struct {
	owner  *RuleEvaluationContext
	values map[string]any
}

// Memo returns the cached value for key, computing it on first use. Values
// live until the engine finishes the evaluation that created them.
func (c *RuleEvaluationContext) Memo(key string, compute func() any) any {
	if c.scratch == nil || c.scratch.owner != c {
		c.scratch = &memo{owner: c, values: make(map[string]any)}
	}
	if v, ok := c.scratch.values[key]; ok {
		return v
	}
	v := compute()
	c.scratch.values[key] = v
	return v
}

// forEvaluation returns a shallow copy with an empty memo, so nothing cached
// during one evaluation reaches the next.
func (c *RuleEvaluationContext) forEvaluation() *RuleEvaluationContext {
	local := *c
	local.scratch = nil
	return &local
}

// StartingPrice is the price the first rule sees: the current price when set,
// the base price otherwise.
func (c *RuleEvaluationContext) StartingPrice() decimal.Decimal {
	if c.CurrentPrice.IsPositive() {
		return c.CurrentPrice
	}
	return c.BasePrice
}

type RuleEvaluationResult struct {
	RuleID           int64               `json:"ruleId"`
	RuleName         string              `json:"ruleName"`
	RuleType         RuleType            `json:"ruleType"`
	OriginalPrice    decimal.Decimal     `json:"originalPrice"`
	AdjustedPrice    decimal.Decimal     `json:"adjustedPrice"`
	DiscountAmount   decimal.Decimal     `json:"discountAmount"`
	MarginPercentage decimal.NullDecimal `json:"marginPercentage"`
	AppliedReason    string              `json:"appliedReason"`
	Metadata         map[string]any      `json:"metadata,omitempty"`
	Success          bool                `json:"success"`
	ErrorMessage     string              `json:"errorMessage,omitempty"`
	Violations       []Violation         `json:"violations,omitempty"`
}

type ExecutionStep struct {
	Phase   string `json:"phase"`
	RuleID  int64  `json:"ruleId"`
	Action  string `json:"action"`
	Message string `json:"message"`
}

type SkippedRule struct {
	RuleID int64  `json:"ruleId"`
	Reason string `json:"reason"`
}

// Evaluation is the full outcome of one EvaluateRules pass.
type Evaluation struct {
	Results      []RuleEvaluationResult `json:"results"`
	StartPrice   decimal.Decimal        `json:"startPrice"`
	FinalPrice   decimal.Decimal        `json:"finalPrice"`
	ExecutionLog []ExecutionStep        `json:"executionLog"`
	Skipped      []SkippedRule          `json:"skipped,omitempty"`
}
