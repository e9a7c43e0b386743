package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
)

// testEnv points HOME and XDG_CONFIG_HOME at a temp dir so no test touches
// the real user config, data or logs. It returns the data dir to pass with
// --data-dir.
func testEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	return filepath.Join(home, "data")
}

// runCmd executes the root command with args and returns combined output.
func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	// PersistentPostRunE is skipped when RunE fails.
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return buf.String(), err
}
