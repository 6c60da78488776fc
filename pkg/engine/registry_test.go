package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseActionType(t *testing.T) {
	typ, name, err := ParseActionType("APPLY_DISCOUNT")
	require.NoError(t, err)
	assert.Equal(t, ActionApplyDiscount, typ)
	assert.Empty(t, name)

	typ, name, err = ParseActionType("CUSTOM:competitor_match")
	require.NoError(t, err)
	assert.Equal(t, ActionCustom, typ)
	assert.Equal(t, "competitor_match", name)

	for _, bad := range []string{"CUSTOM:", "DISCOUNT", ""} {
		_, _, err = ParseActionType(bad)
		var unknown *UnknownActionTypeError
		assert.True(t, errors.As(err, &unknown), "input %q", bad)
	}
}

func TestNewActionRegistry(t *testing.T) {
	noop := CustomActionFuncs{ExecuteFn: func(_ RuleAction, _ *RuleEvaluationContext, r RuleEvaluationResult) (RuleEvaluationResult, error) {
		return r, nil
	}}

	r, err := NewActionRegistry(map[string]CustomActionHandler{"zeta": noop, "alpha": noop})
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, r.Names())

	h, ok := r.Lookup("alpha")
	require.True(t, ok)
	assert.NoError(t, h.Validate(nil))

	_, ok = r.Lookup("beta")
	assert.False(t, ok)

	_, err = NewActionRegistry(map[string]CustomActionHandler{" ": noop})
	assert.Error(t, err)
	_, err = NewActionRegistry(map[string]CustomActionHandler{"nil": nil})
	assert.Error(t, err)

	var nilRegistry *ActionRegistry
	_, ok = nilRegistry.Lookup("alpha")
	assert.False(t, ok)
}

func TestRegistryIsNotAffectedBySourceMap(t *testing.T) {
	handlers := BuiltinCustomActions()
	r, err := NewActionRegistry(handlers)
	require.NoError(t, err)

	delete(handlers, "round")
	_, ok := r.Lookup("round")
	assert.True(t, ok)
	assert.Equal(t, []string{"competitor_match", "round"}, r.Names())
}

func TestRoundAction_Validate(t *testing.T) {
	h := roundAction{}
	assert.NoError(t, h.Validate(params("precision", "2")))
	assert.ErrorIs(t, h.Validate(params("precision", "1.5")), ErrInvalidParameter)
	assert.ErrorIs(t, h.Validate(params("precision", "9")), ErrInvalidParameter)
	assert.ErrorIs(t, h.Validate(params("precision", "x")), ErrInvalidParameter)
}
