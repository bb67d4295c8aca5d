package canonical

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_SortsKeysRecursively(t *testing.T) {
	var a, b any
	require.NoError(t, json.Unmarshal([]byte(`{"b":1,"a":{"z":[1,2],"y":3}}`), &a))
	require.NoError(t, json.Unmarshal([]byte(`{"a":{"y":3,"z":[1,2]},"b":1}`), &b))

	ca, err := Marshal(a)
	require.NoError(t, err)
	cb, err := Marshal(b)
	require.NoError(t, err)

	assert.Equal(t, string(ca), string(cb))
	assert.JSONEq(t, `{"a":{"y":3,"z":[1,2]},"b":1}`, string(ca))
}

func TestMarshal_PreservesArrayOrder(t *testing.T) {
	ca, err := Marshal([]int{3, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, "[3,1,2]", string(ca))
}

func TestMarshal_NumbersSurviveRoundTrip(t *testing.T) {
	// Large ids and high-precision floats must not be mangled by float64.
	ca, err := Marshal(map[string]any{"id": json.Number("9007199254740993"), "pct": json.Number("0.1")})
	require.NoError(t, err)
	assert.Equal(t, `{"id":9007199254740993,"pct":0.1}`, string(ca))
}

func TestDigest_EqualForReorderedKeys(t *testing.T) {
	d1, err := Digest(map[string]any{"stage": "audience_analysis", "progress": 25})
	require.NoError(t, err)
	d2, err := Digest(map[string]any{"progress": 25, "stage": "audience_analysis"})
	require.NoError(t, err)

	assert.Equal(t, d1, d2)
}

func TestDigest_DiffersOnAnyFieldChange(t *testing.T) {
	base := map[string]any{"stage": "budget_allocation", "progress": 50}
	d1, err := Digest(base)
	require.NoError(t, err)

	changed := map[string]any{"stage": "budget_allocation", "progress": 51}
	d2, err := Digest(changed)
	require.NoError(t, err)

	assert.NotEqual(t, d1, d2)
}

func TestMarshal_StructTagsApply(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Inner map[string]int
	}
	ca, err := Marshal(payload{Name: "x", Inner: map[string]int{"b": 2, "a": 1}})
	require.NoError(t, err)
	assert.Equal(t, `{"Inner":{"a":1,"b":2},"name":"x"}`, string(ca))
}
