package lens

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutbox(t *testing.T) {
	t.Parallel()

	t.Run("add_and_len", func(t *testing.T) {
		ob := NewOutbox(NewMemStorage())
		n, err := ob.Len()
		require.NoError(t, err)
		assert.Zero(t, n)

		for i := 0; i < 3; i++ {
			require.NoError(t, ob.Add(testEncoded(t, "m")))
		}
		n, err = ob.Len()
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		require.NoError(t, ob.Clear())
		n, err = ob.Len()
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("shared_storage", func(t *testing.T) {
		store := NewMemStorage()
		require.NoError(t, store.Put("other", []byte("x")))
		ob := NewOutbox(store)
		require.NoError(t, ob.Add(testEncoded(t, "m")))

		n, err := ob.Len()
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		keys, err := store.Keys("")
		require.NoError(t, err)
		assert.Len(t, keys, 2)
	})

	t.Run("replay", func(t *testing.T) {
		ob := NewOutbox(NewMemStorage())
		for _, msg := range []string{"first", "second", "third"} {
			require.NoError(t, ob.Add(testEncoded(t, msg)))
		}

		rec := &recordingTransport{}
		delivered, err := ob.Replay(context.Background(), rec, 1)
		require.NoError(t, err)
		assert.Equal(t, 3, delivered)

		envs := rec.envelopes(t)
		require.Len(t, envs, 3)
		for i, msg := range []string{"first", "second", "third"} {
			data, ok := envs[i].Data.(map[string]any)
			require.True(t, ok)
			assert.Equal(t, msg, data["message"])
		}
		n, err := ob.Len()
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("replay_failure_keeps_envelopes", func(t *testing.T) {
		ob := NewOutbox(NewMemStorage())
		require.NoError(t, ob.Add(testEncoded(t, "a")))
		require.NoError(t, ob.Add(testEncoded(t, "b")))

		rec := &recordingTransport{}
		rec.fail.Store(true)
		delivered, err := ob.Replay(context.Background(), rec, 4)
		require.ErrorIs(t, err, errDeliveryRefused)
		assert.Zero(t, delivered)
		n, err := ob.Len()
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		rec.fail.Store(false)
		delivered, err = ob.Replay(context.Background(), rec, 4)
		require.NoError(t, err)
		assert.Equal(t, 2, delivered)
	})

	t.Run("replay_canceled", func(t *testing.T) {
		ob := NewOutbox(NewMemStorage())
		require.NoError(t, ob.Add(testEncoded(t, "a")))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		delivered, err := ob.Replay(ctx, &recordingTransport{}, 1)
		require.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, delivered)
		n, err := ob.Len()
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("replay_empty", func(t *testing.T) {
		delivered, err := NewOutbox(NewMemStorage()).Replay(context.Background(), &recordingTransport{}, 0)
		require.NoError(t, err)
		assert.Zero(t, delivered)
	})
}
