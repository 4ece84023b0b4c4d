package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlan_ValidManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	content := `version: "1.0"
stages:
  geometry: false
concurrency:
  interval: 1m
  max_parallelism: 8
forecast:
  seeds:
    tables: 90s
output:
  destination: stdout
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w
	defer func() { os.Stdout = oldStdout }()

	rootCmd.SetArgs([]string{"plan", "--job", path})
	rootCmd.SetContext(context.Background())

	require.NoError(t, rootCmd.Execute())
	rootCmd.SetArgs(nil)

	require.NoError(t, w.Close())

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)
	out := buf.String()

	require.Contains(t, out, "Pipeline Plan")
	require.Contains(t, out, "geometry")
	require.Contains(t, out, "disabled")
	require.Contains(t, out, "tables")
	require.Contains(t, out, "90s")
	require.Contains(t, out, "validated successfully")
}

func TestPlan_InvalidManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: \"9.9\"\n"), 0o644))

	rootCmd.SetArgs([]string{"plan", "--job", path})
	rootCmd.SetContext(context.Background())

	err := rootCmd.Execute()
	rootCmd.SetArgs(nil)

	require.Error(t, err)
	require.Contains(t, err.Error(), "Invalid manifest")
}
