package engine

import (
	"fmt"
	"sort"
	"strings"
)

type ActionType string

const (
	ActionSetPrice      ActionType = "SET_PRICE"
	ActionApplyDiscount ActionType = "APPLY_DISCOUNT"
	ActionEnforceMargin ActionType = "ENFORCE_MARGIN"
	ActionCustom        ActionType = "CUSTOM"
)

const customPrefix = "CUSTOM:"

// ParseActionType accepts the closed action types and the "CUSTOM:<name>"
// form, returning the handler name for the latter.
func ParseActionType(s string) (ActionType, string, error) {
	s = strings.TrimSpace(s)
	switch ActionType(s) {
	case ActionSetPrice, ActionApplyDiscount, ActionEnforceMargin:
		return ActionType(s), "", nil
	}
	if name, ok := strings.CutPrefix(s, customPrefix); ok {
		name = strings.TrimSpace(name)
		if name == "" {
			return "", "", &UnknownActionTypeError{Name: s}
		}
		return ActionCustom, name, nil
	}
	return "", "", &UnknownActionTypeError{Name: s}
}

// Key is the dispatch key of an action: its type, or CUSTOM:<name>.
func (a RuleAction) Key() string {
	if a.Type == ActionCustom {
		return customPrefix + a.CustomName
	}
	return string(a.Type)
}

// normalize folds a "CUSTOM:<name>" type into Type and CustomName.
func (a RuleAction) normalize() RuleAction {
	if strings.HasPrefix(string(a.Type), customPrefix) {
		a.CustomName = strings.TrimSpace(strings.TrimPrefix(string(a.Type), customPrefix))
		a.Type = ActionCustom
	}
	return a
}

// CustomActionHandler extends the executor with a named action. Execute
// receives the running result and returns the updated one; the price it
// sets is still subject to the constraint checks.
type CustomActionHandler interface {
	Execute(action RuleAction, ctx *RuleEvaluationContext, running RuleEvaluationResult) (RuleEvaluationResult, error)
	Validate(params Parameters) error
}

// CustomActionFuncs adapts plain functions to CustomActionHandler. A nil
// ValidateFn accepts every parameter set.
type CustomActionFuncs struct {
	ExecuteFn  func(action RuleAction, ctx *RuleEvaluationContext, running RuleEvaluationResult) (RuleEvaluationResult, error)
	ValidateFn func(params Parameters) error
}

func (f CustomActionFuncs) Execute(action RuleAction, ctx *RuleEvaluationContext, running RuleEvaluationResult) (RuleEvaluationResult, error) {
	return f.ExecuteFn(action, ctx, running)
}

func (f CustomActionFuncs) Validate(params Parameters) error {
	if f.ValidateFn == nil {
		return nil
	}
	return f.ValidateFn(params)
}

// ActionRegistry maps custom action names to handlers. It is built once and
// never mutated, so it can be shared between goroutines.
type ActionRegistry struct {
	handlers map[string]CustomActionHandler
}

func NewActionRegistry(handlers map[string]CustomActionHandler) (*ActionRegistry, error) {
	r := &ActionRegistry{handlers: make(map[string]CustomActionHandler, len(handlers))}
	for name, h := range handlers {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("custom action name must not be empty")
		}
		if h == nil {
			return nil, fmt.Errorf("custom action %q has no handler", name)
		}
		if _, dup := r.handlers[name]; dup {
			return nil, fmt.Errorf("custom action %q registered twice", name)
		}
		r.handlers[name] = h
	}
	return r, nil
}

// DefaultActionRegistry holds the built-in custom actions.
func DefaultActionRegistry() *ActionRegistry {
	r, err := NewActionRegistry(BuiltinCustomActions())
	if err != nil {
		panic(err)
	}
	return r
}

func (r *ActionRegistry) Lookup(name string) (CustomActionHandler, bool) {
	if r == nil {
		return nil, false
	}
	h, ok := r.handlers[name]
	return h, ok
}

func (r *ActionRegistry) Names() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
