package lock

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/parley-chat/parley/internal/errors"
)

func TestDirLock_SecondHolderIsRejected(t *testing.T) {
	// Given: a directory locked by one holder
	dir := filepath.Join(t.TempDir(), "data")
	first := New(dir)
	require.NoError(t, first.TryLock())
	t.Cleanup(func() { _ = first.Unlock() })

	// When: a second holder tries the same directory
	err := New(dir).TryLock()

	// Then: it fails fast with the data-dir-locked code
	require.Error(t, err)
	assert.Equal(t, perrors.ErrCodeDataDirLocked, perrors.GetCode(err))
	assert.True(t, first.IsLocked())
	assert.Equal(t, filepath.Join(dir, FileName), first.Path())
}

func TestDirLock_ReleaseAllowsReacquire(t *testing.T) {
	dir := t.TempDir()
	first := New(dir)
	require.NoError(t, first.TryLock())
	require.NoError(t, first.Unlock())
	require.NoError(t, first.Unlock())
	assert.False(t, first.IsLocked())

	second := New(dir)
	require.NoError(t, second.TryLock())
	require.NoError(t, second.Unlock())
}
