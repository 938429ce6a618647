package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func providers(t *testing.T) map[string]Provider {
	t.Helper()
	return map[string]Provider{
		"sqlite": NewSQLiteCache(filepath.Join(t.TempDir(), "cache.db")),
		"memory": NewMemCache(),
	}
}

func TestPutGet(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, p.Put("bucket:key", []byte("value")))

			got, ok, err := p.Get("bucket:key")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, []byte("value"), got)

			_, ok, err = p.Get("bucket:missing")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestPutIsWholeValueReplacement(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, p.Put("bucket:key", []byte("old")))
			require.NoError(t, p.Put("bucket:key", []byte("new")))
			require.NoError(t, p.Put("bucket:key", []byte("new")))

			got, ok, err := p.Get("bucket:key")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, []byte("new"), got)
		})
	}
}

func TestPurgeAndHas(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, p.Put("bucket:key", []byte("value")))
			assert.True(t, p.Has("bucket:key"))

			p.Purge("bucket:key")
			assert.False(t, p.Has("bucket:key"))
		})
	}
}

func TestKeysByPrefix(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, p.Put("one:a", []byte("1")))
			require.NoError(t, p.Put("one:b", []byte("2")))
			require.NoError(t, p.Put("two:c", []byte("3")))

			keys := make(map[string]bool)
			p.Keys("one:", func(key string) { keys[key] = true })
			assert.Equal(t, map[string]bool{"one:a": true, "one:b": true}, keys)
		})
	}
}

func TestTrimEvictsOldestFirst(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			for _, key := range []string{"bucket:a", "bucket:b", "bucket:c"} {
				require.NoError(t, p.Put(key, []byte("x")))
				// entries need distinct insertion times for eviction order
				time.Sleep(5 * time.Millisecond)
			}
			require.NoError(t, p.Put("other:z", []byte("x")))

			require.NoError(t, p.Trim("bucket:", 2))

			assert.False(t, p.Has("bucket:a"))
			assert.True(t, p.Has("bucket:b"))
			assert.True(t, p.Has("bucket:c"))
			assert.True(t, p.Has("other:z"), "trim must not touch other buckets")
		})
	}
}

func TestTrimZeroMeansUnbounded(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, p.Put("bucket:a", []byte("x")))
			require.NoError(t, p.Trim("bucket:", 0))
			assert.True(t, p.Has("bucket:a"))
		})
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "cache.db")

	first := NewSQLiteCache(filename)
	require.NoError(t, first.Put("bucket:key", []byte("survives")))
	require.NoError(t, first.db.Close())

	second := NewSQLiteCache(filename)
	got, ok, err := second.Get("bucket:key")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("survives"), got)
}
