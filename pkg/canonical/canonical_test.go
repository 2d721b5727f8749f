package canonical

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unmarshalUsingNumber(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func TestMarshal_SortsObjectKeys(t *testing.T) {
	out, err := Marshal(map[string]any{
		"zebra": 1,
		"alpha": 2,
		"mike":  3,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"mike":3,"zebra":1}`, string(out))
}

func TestMarshal_KeyOrderIndependence(t *testing.T) {
	a := map[string]any{"x": 1, "y": "two", "z": []any{1, 2, 3}}
	b := map[string]any{"z": []any{1, 2, 3}, "y": "two", "x": 1}

	outA, err := Marshal(a)
	require.NoError(t, err)
	outB, err := Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, outA, outB)
}

func TestMarshal_PreservesArrayOrder(t *testing.T) {
	out, err := Marshal([]string{"c", "a", "b"})
	require.NoError(t, err)
	assert.Equal(t, `["c","a","b"]`, string(out))
}

func TestMarshal_Deterministic(t *testing.T) {
	input := map[string]any{
		"files": []any{
			map[string]any{"name": "a.pdf", "hash": "abc"},
			map[string]any{"name": "b.pdf", "hash": nil},
		},
		"count": 2,
	}

	first, err := Marshal(input)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := Marshal(input)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestMarshal_Structs(t *testing.T) {
	type entry struct {
		Name string  `json:"name"`
		Hash *string `json:"hash"`
	}
	type doc struct {
		ID    string  `json:"id"`
		Files []entry `json:"files"`
	}

	h := "deadbeef"
	out, err := Marshal(doc{ID: "snap-1", Files: []entry{{Name: "a", Hash: &h}, {Name: "b"}}})
	require.NoError(t, err)
	assert.Equal(t, `{"files":[{"hash":"deadbeef","name":"a"},{"hash":null,"name":"b"}],"id":"snap-1"}`, string(out))
}

func TestMarshal_NumberStability(t *testing.T) {
	out, err := Marshal(map[string]any{"int": 42, "float": 1.5, "big": int64(9007199254740993)})
	require.NoError(t, err)
	assert.Equal(t, `{"big":9007199254740993,"float":1.5,"int":42}`, string(out))

	// Re-canonicalizing the output must reproduce it byte for byte
	var parsed map[string]any
	require.NoError(t, unmarshalUsingNumber(out, &parsed))
	again, err := Marshal(parsed)
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestMarshal_RejectsUnsupportedTypes(t *testing.T) {
	_, err := Marshal(make(chan int))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not serializable")

	_, err = Marshal(func() {})
	assert.Error(t, err)
}

func TestMarshal_EscapesStrings(t *testing.T) {
	out, err := Marshal(map[string]any{"q": `a "quoted" value`})
	require.NoError(t, err)
	assert.Equal(t, `{"q":"a \"quoted\" value"}`, string(out))
}
