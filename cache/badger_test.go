package cache

import (
	"io/ioutil"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBadgerCache(t *testing.T) {
	dir, err := ioutil.TempDir("", "osmtopo_cache_test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	db, err := Open(dir, time.Hour)
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return now }

	_, ok, err := db.Get("missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, db.Put("key", []byte(`{"elements":[]}`)))
	data, ok, err := db.Get("key")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `{"elements":[]}`, string(data))

	now = now.Add(2 * time.Hour)
	_, ok, err = db.Get("key")
	require.NoError(t, err)
	require.False(t, ok, "entry should be expired")

	db.TTL = 0
	_, ok, err = db.Get("key")
	require.NoError(t, err)
	require.True(t, ok, "zero TTL keeps entries")

	require.NoError(t, db.Delete("key"))
	_, ok, err = db.Get("key")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBadgerCacheReopen(t *testing.T) {
	dir, err := ioutil.TempDir("", "osmtopo_cache_test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	cacheDir := dir + "/responses"

	db, err := Open(cacheDir, 0)
	require.NoError(t, err)
	require.NoError(t, db.Put("key", []byte("data")))
	require.NoError(t, db.Close())

	files, err := ioutil.ReadDir(cacheDir)
	require.NoError(t, err)
	require.NotEmpty(t, files)

	db, err = Open(cacheDir, 0)
	require.NoError(t, err)
	defer db.Close()
	data, ok, err := db.Get("key")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "data", string(data))
}
