package engine

import (
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type ValidationMode string

const (
	// FailFast stops at the first violation. Live pricing uses it.
	FailFast ValidationMode = "FAIL_FAST"
	// CollectAll reports every violation. Validation previews use it.
	CollectAll ValidationMode = "COLLECT_ALL"
)

const (
	// MoneyScale is the scale of every recorded price.
	MoneyScale int32 = 2
	// WorkingScale is the precision carried between chained actions.
	WorkingScale int32 = 4
)

// Config holds the global bounds applied on top of rule-level bounds.
//
// Defaults:
//
//	MinPrice              0.01
//	MaxPrice              none
//	MinMargin             0
//	MaxMargin             100
//	MaxPriceChangePercent 50
//	Mode                  FAIL_FAST
//	DefaultStacking       SEQUENTIAL
type Config struct {
	MinPrice              decimal.Decimal
	MaxPrice              decimal.NullDecimal
	MinMargin             decimal.Decimal
	MaxMargin             decimal.Decimal
	MaxPriceChangePercent decimal.Decimal
	Mode                  ValidationMode
	DefaultStacking       StackingPolicy
	Logger                zerolog.Logger
}

func DefaultConfig() Config {
	return Config{
		MinPrice:              decimal.New(1, -2),
		MinMargin:             decimal.Zero,
		MaxMargin:             decimal.NewFromInt(100),
		MaxPriceChangePercent: decimal.NewFromInt(50),
		Mode:                  FailFast,
		DefaultStacking:       StackingSequential,
		Logger:                zerolog.Nop(),
	}
}

// withDefaults fills zero fields so a partially populated Config still works.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MinPrice.IsZero() {
		c.MinPrice = d.MinPrice
	}
	if c.MaxMargin.IsZero() {
		c.MaxMargin = d.MaxMargin
	}
	if c.MaxPriceChangePercent.IsZero() {
		c.MaxPriceChangePercent = d.MaxPriceChangePercent
	}
	if c.Mode == "" {
		c.Mode = d.Mode
	}
	if c.DefaultStacking == "" {
		c.DefaultStacking = d.DefaultStacking
	}
	return c
}
