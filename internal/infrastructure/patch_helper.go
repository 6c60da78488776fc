package infrastructure

import (
	"encoding/json"
	"fmt"

	"github.com/Victor-armando18/service-pricing/pkg/engine"
	jsonpatch "github.com/evanphx/json-patch/v5"
)

// ApplyRulePatch recebe a regra original e o patch (RFC 6902), retornando a
// regra atualizada e revalidada. A original nunca é modificada.
func ApplyRulePatch(original engine.PricingRule, patchData []byte) (engine.PricingRule, error) {
	patch, err := jsonpatch.DecodePatch(patchData)
	if err != nil {
		return original, fmt.Errorf("%w: decode patch: %v", engine.ErrInvalidRule, err)
	}
	return patchRule(original, func(doc []byte) ([]byte, error) {
		return patch.Apply(doc)
	})
}

// ApplyRuleMergePatch aplica um merge patch (RFC 7386).
func ApplyRuleMergePatch(original engine.PricingRule, patchData []byte) (engine.PricingRule, error) {
	return patchRule(original, func(doc []byte) ([]byte, error) {
		return jsonpatch.MergePatch(doc, patchData)
	})
}

func patchRule(original engine.PricingRule, apply func([]byte) ([]byte, error)) (engine.PricingRule, error) {
	// 1. Converter a regra original para JSON
	originalJSON, err := json.Marshal(original)
	if err != nil {
		return original, err
	}

	// 2. Aplicar o patch
	modifiedJSON, err := apply(originalJSON)
	if err != nil {
		return original, fmt.Errorf("%w: apply patch: %v", engine.ErrInvalidRule, err)
	}

	var patched engine.PricingRule
	if err := json.Unmarshal(modifiedJSON, &patched); err != nil {
		return original, fmt.Errorf("%w: patched rule: %v", engine.ErrInvalidRule, err)
	}

	// 3. Revalidar via Update (recusa alterações de id)
	updated, err := original.Update(func(r *engine.PricingRule) { *r = patched })
	if err != nil {
		return original, err
	}
	return updated, nil
}
