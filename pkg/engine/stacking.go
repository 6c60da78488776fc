package engine

import (
	"github.com/shopspring/decimal"
)

// StackingPolicy decides how a discount combines with the discounts already
// applied earlier in the same evaluation pass.
//
//	SEQUENTIAL      off the running, already discounted price (default)
//	MULTIPLICATIVE  same compounding as SEQUENTIAL, reported separately
//	ADDITIVE        percentages are taken off the pre-discount price, so 10% + 10% = 20%
//	HIGHEST_WINS    only the largest discount of the pass counts
type StackingPolicy string

const (
	StackingAdditive       StackingPolicy = "ADDITIVE"
	StackingMultiplicative StackingPolicy = "MULTIPLICATIVE"
	StackingHighestWins    StackingPolicy = "HIGHEST_WINS"
	StackingSequential     StackingPolicy = "SEQUENTIAL"
)

func (p StackingPolicy) Valid() bool {
	switch p {
	case StackingAdditive, StackingMultiplicative, StackingHighestWins, StackingSequential:
		return true
	}
	return false
}

// AppliedDiscount is a discount already taken in the current pass.
type AppliedDiscount struct {
	RuleID    int64
	Amount    decimal.Decimal
	Policy    StackingPolicy
	Stackable bool
}

// DiscountAttempt describes a discount about to be applied.
type DiscountAttempt struct {
	RuleID    int64
	Policy    StackingPolicy
	Stackable bool
}

// discountPass is the per-evaluation discount ledger. It is copied before a
// rule runs so a rejected rule leaves no trace.
type discountPass struct {
	started bool
	base    decimal.Decimal
	total   decimal.Decimal
	highest decimal.Decimal
	applied []AppliedDiscount
}

func newDiscountPass() *discountPass {
	return &discountPass{}
}

func (p *discountPass) clone() *discountPass {
	c := *p
	c.applied = append([]AppliedDiscount(nil), p.applied...)
	return &c
}

func (p *discountPass) begin(running decimal.Decimal) {
	if !p.started {
		p.started = true
		p.base = running
	}
}

// record books d, whose Amount is the effective amount, and tracks the
// nominal amount for HIGHEST_WINS.
func (p *discountPass) record(d AppliedDiscount, nominal decimal.Decimal) {
	p.applied = append(p.applied, d)
	p.total = p.total.Add(d.Amount)
	if nominal.GreaterThan(p.highest) {
		p.highest = nominal
	}
}

// reference is the price a percentage discount is taken from.
func (p *discountPass) reference(policy StackingPolicy, running decimal.Decimal) decimal.Decimal {
	switch policy {
	case StackingAdditive, StackingHighestWins:
		return p.base
	}
	return running
}

// effective is the amount actually taken off the running price for a
// discount worth amount.
func (p *discountPass) effective(policy StackingPolicy, amount decimal.Decimal) decimal.Decimal {
	if policy != StackingHighestWins {
		return amount
	}
	if amount.LessThanOrEqual(p.highest) {
		return decimal.Zero
	}
	return amount.Sub(p.highest)
}
