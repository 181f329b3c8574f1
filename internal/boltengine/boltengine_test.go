package boltengine

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"kvd/internal/engine"
	"kvd/internal/kverrors"
)

func setupTemp(t *testing.T) *Engine {
	t.Helper()
	dir, err := os.MkdirTemp("", "boltengine_test_*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	e, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestGetMissOnEmptyStore(t *testing.T) {
	e := setupTemp(t)
	_, ok, err := e.Get("k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSetThenGet(t *testing.T) {
	e := setupTemp(t)
	require.NoError(t, e.Set("k", "v1"))
	val, ok, err := e.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v1", val)

	require.NoError(t, e.Set("k", "v2"))
	val, ok, err = e.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v2", val)
}

func TestRemove(t *testing.T) {
	e := setupTemp(t)
	require.NoError(t, e.Set("k", "v"))
	require.NoError(t, e.Remove("k"))

	_, ok, err := e.Get("k")
	require.NoError(t, err)
	require.False(t, ok)

	err = e.Remove("k")
	require.ErrorIs(t, err, engine.ErrKeyNotFound)
}

func TestEngineTagMismatch(t *testing.T) {
	dir, err := os.MkdirTemp("", "boltengine_test_*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	require.NoError(t, os.WriteFile(dir+"/ENGINE", []byte("kvd"), 0o644))

	_, err = Open(dir)
	require.Error(t, err)
	require.Equal(t, kverrors.CodeEngineMismatch, kverrors.ClassifyOf(err))
}
