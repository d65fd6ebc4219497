package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRun_PanicRecovery(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// A config file with a syntax error makes app.NewApp panic.
	invalidHCL := `
		logging {
			level = "debug"
		// Missing closing brace here
	`
	tempDir := t.TempDir()
	cfgPath := filepath.Join(tempDir, "calcgrid.hcl")
	require.NoError(t, os.WriteFile(cfgPath, []byte(invalidHCL), 0o600), "failed to set up test file")
	docPath := filepath.Join(tempDir, "doc.json")
	require.NoError(t, os.WriteFile(docPath, []byte(`{"fileType": "apogee model", "version": "1.0"}`), 0o600))

	out := &bytes.Buffer{}

	// --- Act ---
	runErr := run(context.Background(), out, []string{"--config", cfgPath, "run", docPath})

	// --- Assert ---
	require.Error(t, runErr, "run() should have returned an error after recovering from a panic")
	require.Contains(t, runErr.Error(), "application startup panicked")
	require.Contains(t, runErr.Error(), "failed to parse")
}

func TestRun_Help(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	err := run(context.Background(), out, []string{"-h"})

	require.NoError(t, err, "run() should return a nil error for help")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	err := run(context.Background(), out, []string{"--this-is-not-a-valid-flag"})

	require.Error(t, err, "run() should return an error when argument parsing fails")
	require.Contains(t, err.Error(), "unknown flag: --this-is-not-a-valid-flag")
}
