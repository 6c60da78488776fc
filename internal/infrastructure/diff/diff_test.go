package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffer_Diff(t *testing.T) {
	d := &Differ{}

	before := map[string]any{"price": "100.00", "tags": []any{"a"}, "gone": 1.0}
	after := map[string]any{"price": "95.00", "tags": []any{"a"}, "new": true}

	assert.Equal(t, map[string]any{"price": "95.00", "new": true, "gone": nil}, d.Diff(before, after))
	assert.Empty(t, d.Diff(after, after))
}

func TestSnapshot(t *testing.T) {
	type inner struct {
		Value string `json:"value"`
	}
	snap, err := Snapshot(struct {
		ID     int              `json:"id"`
		Params map[string]inner `json:"params"`
		List   []int            `json:"list"`
		Empty  []int            `json:"empty"`
	}{
		ID:     3,
		Params: map[string]inner{"price": {Value: "9.99"}},
		List:   []int{4, 5},
		Empty:  []int{},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"id":                 3.0,
		"params.price.value": "9.99",
		"list.0":             4.0,
		"list.1":             5.0,
		"empty":              []any{},
	}, snap)
}
