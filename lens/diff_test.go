package lens

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffTrees(t *testing.T) {
	t.Parallel()

	t.Run("equal", func(t *testing.T) {
		diff, err := DiffTrees(Inspect(map[string]int{"a": 1}), Inspect(map[string]int{"a": 1}))
		require.NoError(t, err)
		assert.Empty(t, diff)
	})

	t.Run("changed", func(t *testing.T) {
		diff, err := DiffTrees(Inspect(map[string]int{"a": 1, "b": 2}), Inspect(map[string]int{"a": 3, "b": 2}))
		require.NoError(t, err)
		assert.Contains(t, diff, "--- left")
		assert.Contains(t, diff, "+++ right")
		assert.Contains(t, diff, "-  a: 1\n")
		assert.Contains(t, diff, "+  a: 3\n")
		assert.Contains(t, diff, "   b: 2\n")
	})
}

func TestClientDiff(t *testing.T) {
	t.Parallel()

	c, rec := newTestClient(t, testConfig())
	require.NoError(t, c.Diff("same", []int{1}, []int{1}))
	body := decodeData[DiffBody](t, lastEnvelope(t, rec))
	assert.Equal(t, "same", body.Label)
	assert.True(t, body.Equal)
	assert.Empty(t, body.Diff)

	require.NoError(t, c.Diff("changed", Pairs{{Key: "k", Value: "x"}}, Pairs{{Key: "k", Value: "y"}}))
	env := lastEnvelope(t, rec)
	assert.Equal(t, EventDiff, env.Type)
	body = decodeData[DiffBody](t, env)
	assert.False(t, body.Equal)
	assert.Contains(t, body.Diff, "+  k: y")
	require.NotNil(t, body.Left)
	assert.Equal(t, "x", body.Left.Child("k").DisplayValue)
}
