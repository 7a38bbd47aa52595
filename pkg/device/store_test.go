package device

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEnvironment struct {
	calls int
}

func (e *countingEnvironment) Attributes() (Attributes, bool) {
	e.calls++
	return chromeOnWindows, true
}

func TestFingerprintStoreGetOrCreateIsIdempotent(t *testing.T) {
	env := &countingEnvironment{}
	store := NewFingerprintStore(NewMemoryKeyValue(), env)

	_, ok := store.Get()
	assert.False(t, ok)

	first, err := store.GetOrCreate()
	require.NoError(t, err)
	second, err := store.GetOrCreate()
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, env.calls)

	cached, ok := store.Get()
	assert.True(t, ok)
	assert.Equal(t, first, cached)
}

func TestFingerprintStoreRegeneratesAfterClear(t *testing.T) {
	env := &countingEnvironment{}
	kv := NewMemoryKeyValue()
	store := NewFingerprintStore(kv, env)

	first, err := store.GetOrCreate()
	require.NoError(t, err)

	kv.Clear()
	second, err := store.GetOrCreate()
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, env.calls)
}

func TestFingerprintStoreSet(t *testing.T) {
	env := &countingEnvironment{}
	store := NewFingerprintStore(NewMemoryKeyValue(), env)

	require.NoError(t, store.Set("preset"))
	fp, err := store.GetOrCreate()
	require.NoError(t, err)
	assert.Equal(t, "preset", fp)
	assert.Equal(t, 0, env.calls)

	assert.Error(t, store.Set(""))
}

func TestFileKeyValueSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile", "storage.json")

	kv, err := NewFileKeyValue(path)
	require.NoError(t, err)
	fp, err := NewFingerprintStore(kv, StaticEnvironment(chromeOnWindows)).GetOrCreate()
	require.NoError(t, err)

	reopened, err := NewFileKeyValue(path)
	require.NoError(t, err)
	env := &countingEnvironment{}
	again, err := NewFingerprintStore(reopened, env).GetOrCreate()
	require.NoError(t, err)

	assert.Equal(t, fp, again)
	assert.Equal(t, 0, env.calls)
}
