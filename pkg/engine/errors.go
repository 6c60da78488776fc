package engine

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedCondition  = errors.New("malformed condition")
	ErrUnknownActionType   = errors.New("unknown action type")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrPrecision           = errors.New("precision error")
	ErrInvalidRule         = errors.New("invalid rule")
	ErrInvalidContext      = errors.New("invalid evaluation context")
	ErrInvalidParameter    = errors.New("invalid action parameter")
	ErrActionFailed        = errors.New("action execution failed")
)

type MalformedConditionError struct {
	Condition RuleCondition
	Reason    string
}

func (e *MalformedConditionError) Error() string {
	return fmt.Sprintf("malformed condition (type=%s operator=%s): %s", e.Condition.Type, e.Condition.Operator, e.Reason)
}

func (e *MalformedConditionError) Unwrap() error { return ErrMalformedCondition }

func malformed(c RuleCondition, format string, args ...any) error {
	return &MalformedConditionError{Condition: c, Reason: fmt.Sprintf(format, args...)}
}

type UnknownActionTypeError struct {
	Name string
}

func (e *UnknownActionTypeError) Error() string {
	return fmt.Sprintf("unknown action type %q", e.Name)
}

func (e *UnknownActionTypeError) Unwrap() error { return ErrUnknownActionType }

// ViolationCode classifies a business-rule failure reported by the
// ConstraintValidator.
type ViolationCode string

const (
	ViolationPriceRange   ViolationCode = "PRICE_RANGE"
	ViolationMarginRange  ViolationCode = "MARGIN_RANGE"
	ViolationPriceChange  ViolationCode = "PRICE_CHANGE"
	ViolationStacking     ViolationCode = "DISCOUNT_STACKING"
	ViolationTime         ViolationCode = "TIME_CONSTRAINT"
	ViolationPrecision    ViolationCode = "PRECISION"
	ViolationDiscountCap  ViolationCode = "DISCOUNT_CAP"
	ViolationPriceCeiling ViolationCode = "PRICE_INCREASE"
)

type Violation struct {
	Code    ViolationCode `json:"code"`
	Message string        `json:"message"`
}

func (v Violation) Error() string { return fmt.Sprintf("%s: %s", v.Code, v.Message) }

// Unwrap lets a Violation used as an error match ErrConstraintViolation, or
// ErrPrecision for precision failures.
func (v Violation) Unwrap() error {
	if v.Code == ViolationPrecision {
		return ErrPrecision
	}
	return ErrConstraintViolation
}

func violationf(code ViolationCode, format string, args ...any) Violation {
	return Violation{Code: code, Message: fmt.Sprintf(format, args...)}
}
