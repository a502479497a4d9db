package lens

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestStorageCommon(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		store Storage
	}{
		{
			name:  "mem",
			store: NewMemStorage(),
		},
		{
			name:  "prefix",
			store: KeyPrefixStorage(NewMemStorage(), "prefix"),
		},
	}

	if !testing.Short() {
		badgerStorage, err := NewBadgerStorage(filepath.Join(t.TempDir(), "badger"), 32)
		require.NoError(t, err)
		t.Cleanup(func() { _ = badgerStorage.Close() })

		tests = append(tests, struct {
			name  string
			store Storage
		}{
			name:  "badger",
			store: badgerStorage,
		})
	}

	for _, tc := range tests {
		t.Run(tc.name+"_put_clear", func(t *testing.T) {
			require.NoError(t, tc.store.Put("t1", []byte{1, 2, 3}))
			require.NoError(t, tc.store.Clear())

			keys, err := tc.store.Keys("")
			require.NoError(t, err)
			assert.Empty(t, keys)
		})

		t.Run(tc.name+"_put_get_delete", func(t *testing.T) {
			require.NoError(t, tc.store.Clear())
			data := []byte{1, 2, 0, 4, 5} // embedded NUL must survive

			require.NoError(t, tc.store.Put("t1", data))
			got, ok, err := tc.store.Get("t1")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, data, got)

			require.NoError(t, tc.store.Delete("t1"))
			_, ok, err = tc.store.Get("t1")
			require.NoError(t, err)
			assert.False(t, ok)
		})

		t.Run(tc.name+"_keys_sorted", func(t *testing.T) {
			require.NoError(t, tc.store.Clear())

			for _, k := range []string{"b1", "a2", "a1", "a10"} {
				require.NoError(t, tc.store.Put(k, []byte(k)))
			}

			keys, err := tc.store.Keys("")
			require.NoError(t, err)
			assert.Equal(t, []string{"a1", "a10", "a2", "b1"}, keys)

			keys, err = tc.store.Keys("a")
			require.NoError(t, err)
			assert.Equal(t, []string{"a1", "a10", "a2"}, keys)
		})

		t.Run(tc.name+"_put_copies_blob", func(t *testing.T) {
			require.NoError(t, tc.store.Clear())
			blob := []byte("original")
			require.NoError(t, tc.store.Put("copy", blob))
			blob[0] = 'X'

			got, ok, err := tc.store.Get("copy")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, []byte("original"), got)
		})

		t.Run(tc.name+"_overwrite", func(t *testing.T) {
			require.NoError(t, tc.store.Clear())
			type payload struct {
				N int
			}
			for i := 0; i < 10; i++ {
				b, err := msgpack.Marshal(payload{N: i})
				require.NoError(t, err)
				require.NoError(t, tc.store.Put("target", b))
			}

			got, ok, err := tc.store.Get("target")
			require.NoError(t, err)
			require.True(t, ok)
			var out payload
			require.NoError(t, msgpack.Unmarshal(got, &out))
			assert.Equal(t, 9, out.N)
		})
	}
}

func TestBadgerStorage(t *testing.T) {
	t.Run("persist_across_open", func(t *testing.T) {
		if testing.Short() {
			t.Skip("skip in short mode")
		}
		t.Parallel()

		path := filepath.Join(t.TempDir(), "db")
		store, err := NewBadgerStorage(path, 16)
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			require.NoError(t, store.Put("k"+strconv.Itoa(i), []byte{byte(i)}))
		}
		require.NoError(t, store.Close())

		entries, err := os.ReadDir(path)
		require.NoError(t, err)
		assert.NotEmpty(t, entries)

		store, err = NewBadgerStorage(path, 16)
		require.NoError(t, err)
		defer func() { _ = store.Close() }()
		keys, err := store.Keys("k")
		require.NoError(t, err)
		assert.Equal(t, []string{"k0", "k1", "k2"}, keys)
	})

	t.Run("small_cache_budget", func(t *testing.T) {
		t.Parallel()

		store, err := NewBadgerStorage(filepath.Join(t.TempDir(), "db"), 1)
		require.NoError(t, err)
		defer func() { _ = store.Close() }()

		blob := make([]byte, 64<<10)
		require.NoError(t, store.Put("blob", blob))
		got, ok, err := store.Get("blob")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Len(t, got, len(blob))
	})

	t.Run("invalid_path", func(t *testing.T) {
		t.Parallel()

		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
		_, err := NewBadgerStorage(filepath.Join(file, "db"), 16)
		require.Error(t, err)
	})
}

func TestKeyPrefixStorage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prefix string
		keys   []string
		filter string
		expect []string
	}{
		{
			name:   "simple",
			prefix: "p",
			keys:   []string{"k1", "sub/k2"},
			filter: "k",
			expect: []string{"k1"},
		},
		{
			name:   "nested",
			prefix: "dir/sub",
			keys:   []string{"a", "sub/a1"},
			filter: "sub",
			expect: []string{"sub/a1"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			base := NewMemStorage()
			store := KeyPrefixStorage(base, tc.prefix)
			for _, k := range tc.keys {
				require.NoError(t, store.Put(k, []byte(k)))
			}

			baseKeys, err := base.Keys("")
			require.NoError(t, err)
			for _, k := range baseKeys {
				assert.Contains(t, k, tc.prefix+";")
			}

			keys, err := store.Keys(tc.filter)
			require.NoError(t, err)
			assert.Equal(t, tc.expect, keys)

			require.NoError(t, store.Clear())
			baseKeys, err = base.Keys("")
			require.NoError(t, err)
			assert.Empty(t, baseKeys)
		})
	}

	t.Run("empty_prefix", func(t *testing.T) {
		base := NewMemStorage()
		assert.Same(t, base, KeyPrefixStorage(base, ""))
	})
}
