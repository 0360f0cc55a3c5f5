package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farnunglab/afrigid/internal/afinput"
)

func TestWriteAF3Jobs(t *testing.T) {
	dir := t.TempDir()
	targets := filepath.Join(dir, "targets.yaml")
	require.NoError(t, os.WriteFile(targets, []byte(`
first:
  - modelSeeds: 2
    entities:
      - name: lig4
        type: proteinChain
        range: [2, 5]
`), 0o644))
	sequences := filepath.Join(dir, "proteins.fasta")
	require.NoError(t, os.WriteFile(sequences, []byte(">lig4\nMAASQTSQTV\n"), 0o644))

	out := t.TempDir()
	cmd := newRootCmd()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{"--targets", targets, "--sequences", sequences, "--output", out, "--seed", "42"})
	require.NoError(t, cmd.Execute())

	path := filepath.Join(out, "first", "first_set_0.json")
	assert.Equal(t, path, strings.TrimSpace(stdout.String()))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"sequence": "AASQ"`)
	assert.Equal(t, 2, strings.Count(string(data), `"name": "lig4_1_2to5_`))
}

func TestUnknownSequence(t *testing.T) {
	dir := t.TempDir()
	targets := filepath.Join(dir, "targets.yaml")
	require.NoError(t, os.WriteFile(targets, []byte("c:\n  - entities: [{name: xrcc4, type: proteinChain}]\n"), 0o644))
	sequences := filepath.Join(dir, "proteins.fasta")
	require.NoError(t, os.WriteFile(sequences, []byte(">lig4\nMAAS\n"), 0o644))

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--targets", targets, "--sequences", sequences, "--output", t.TempDir(), "--mode", "af2"})
	assert.ErrorIs(t, cmd.Execute(), afinput.ErrUnknownSequence)
}
