package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farnunglab/afrigid/internal/config"
	"github.com/farnunglab/afrigid/internal/selection"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestArguments(t *testing.T) {
	_, err := execute(t, "a", "b")
	assert.ErrorContains(t, err, "expected 0 or 4 positional arguments")

	_, err = execute(t, "--selection", "sel.json")
	assert.ErrorContains(t, err, "provide --selection, --predictions and --output")
}

func TestInvalidFlagValue(t *testing.T) {
	dir := t.TempDir()
	sel := filepath.Join(dir, "selection.json")
	require.NoError(t, os.WriteFile(sel, []byte(`{"predictions": [{"name": "x"}]}`), 0o644))

	_, err := execute(t, "--config", dir, "--selection", sel, "--predictions", dir,
		"--output", t.TempDir(), "--method", "fuzzy")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestPositionalForm(t *testing.T) {
	dir := t.TempDir()
	sel := filepath.Join(dir, "selection.json")
	require.NoError(t, os.WriteFile(sel, []byte(`{"predictions": [{"name": "absent"}]}`), 0o644))

	_, err := execute(t, dir, sel, dir, t.TempDir())
	assert.ErrorIs(t, err, selection.ErrNotFound)
}
