package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/dmi-observation-cache/internal/observations"
)

func newCachedStore(t *testing.T) (*CachedStore, string) {
	t.Helper()
	dir := t.TempDir()
	cs, err := NewCachedStore(NewFileStore(dir), DefaultReadCacheConfig())
	require.NoError(t, err)
	return cs, dir
}

func TestCachedStoreServesRepeatReadsFromMemory(t *testing.T) {
	cs, dir := newCachedStore(t)
	day := mustDate(t, "2024-01-05")
	require.NoError(t, cs.Write(day, json.RawMessage(`{"v":1}`)))

	got, err := cs.Read(day)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(got))
	assert.Equal(t, 1, cs.Size())

	// Change the file behind the cache's back; the cached copy is still served.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2024-01-05.json"), []byte(`{"v":9}`), 0o644))
	got, err = cs.Read(day)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(got))
}

func TestCachedStoreWriteInvalidates(t *testing.T) {
	cs, _ := newCachedStore(t)
	day := mustDate(t, "2024-01-05")
	require.NoError(t, cs.Write(day, json.RawMessage(`{"v":1}`)))

	_, err := cs.Read(day)
	require.NoError(t, err)

	require.NoError(t, cs.Write(day, json.RawMessage(`{"v":2}`)))

	got, err := cs.Read(day)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(got))
}

func TestCachedStoreMissingDayNotCached(t *testing.T) {
	cs, _ := newCachedStore(t)
	day := mustDate(t, "2024-01-05")

	_, err := cs.Read(day)
	assert.ErrorIs(t, err, observations.ErrDayNotFound)
	assert.Equal(t, 0, cs.Size())

	require.NoError(t, cs.Write(day, json.RawMessage(`{"v":1}`)))
	got, err := cs.Read(day)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(got))
}

func TestCachedStoreDelegatesScans(t *testing.T) {
	cs, _ := newCachedStore(t)
	require.NoError(t, cs.Write(mustDate(t, "2024-01-05"), json.RawMessage(`{}`)))
	require.NoError(t, cs.Write(mustDate(t, "2024-01-09"), json.RawMessage(`{}`)))

	r, ok, err := cs.ScanDateRange()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2024-01-05", r.From.String())
	assert.Equal(t, "2024-01-09", r.To.String())
	assert.True(t, cs.Exists(mustDate(t, "2024-01-09")))
}

func TestReadCacheConfigValidate(t *testing.T) {
	cfg := DefaultReadCacheConfig()
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.TTL = 0
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.EvictionPercentage = 101
	assert.Error(t, bad.Validate())

	_, err := NewCachedStore(NewFileStore(t.TempDir()), ReadCacheConfig{TTL: time.Minute})
	assert.Error(t, err)
}
