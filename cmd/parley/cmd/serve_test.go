package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/parley-chat/parley/internal/errors"
	"github.com/parley-chat/parley/internal/lock"
)

func TestServeCmd_Flags(t *testing.T) {
	cmd := newServeCmd()

	assert.NotNil(t, cmd.Flags().Lookup("skip-reconcile"))
	assert.Error(t, cmd.Args(cmd, []string{"extra"}))
}

func TestServeCmd_FailsWhenDataDirLocked(t *testing.T) {
	// Given: a data dir held by another server
	dataDir := testEnv(t)
	held := lock.New(dataDir)
	require.NoError(t, held.TryLock())
	defer func() { _ = held.Unlock() }()

	// When: starting the server
	out, err := runCmd(t, "--data-dir", dataDir, "serve")

	// Then: it exits before touching stdout
	require.Error(t, err)
	assert.Equal(t, perrors.ErrCodeDataDirLocked, perrors.GetCode(err))
	assert.Empty(t, out)
}
