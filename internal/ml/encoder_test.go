package ml

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelEncoder(t *testing.T) {
	t.Run("classes are sorted and deduplicated", func(t *testing.T) {
		e := NewLabelEncoder([]string{"bearing_wear", "normal", "imbalance", "normal"})
		assert.Equal(t, []string{"bearing_wear", "imbalance", "normal"}, e.Classes)
		assert.Equal(t, 3, e.NumClasses())
	})

	t.Run("encode and decode round trip", func(t *testing.T) {
		e := NewLabelEncoder([]string{"normal", "imbalance"})
		idx, err := e.Encode("normal")
		require.NoError(t, err)
		label, err := e.Decode(idx)
		require.NoError(t, err)
		assert.Equal(t, "normal", label)
	})

	t.Run("unknown label returns error", func(t *testing.T) {
		e := NewLabelEncoder([]string{"normal"})
		_, err := e.Encode("misalignment")
		assert.Error(t, err)
		assert.False(t, e.Knows("misalignment"))
	})

	t.Run("decode out of range returns error", func(t *testing.T) {
		e := NewLabelEncoder([]string{"normal"})
		_, err := e.Decode(5)
		assert.Error(t, err)
	})

	t.Run("index is rebuilt after deserialization", func(t *testing.T) {
		e := NewLabelEncoder([]string{"a", "b"})
		data, err := json.Marshal(e)
		require.NoError(t, err)

		var restored LabelEncoder
		require.NoError(t, json.Unmarshal(data, &restored))

		idx, err := restored.Encode("b")
		require.NoError(t, err)
		assert.Equal(t, 1, idx)
	})
}

func TestLabelEncoderEncodeAll(t *testing.T) {
	e := NewLabelEncoder([]string{"a", "b", "c"})

	idxs, err := e.EncodeAll([]string{"c", "a", "a"})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0, 0}, idxs)

	_, err = e.EncodeAll([]string{"a", "z"})
	assert.Error(t, err)
}
