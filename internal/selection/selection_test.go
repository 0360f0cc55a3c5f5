package selection

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farnunglab/afrigid/internal/prediction"
	"github.com/farnunglab/afrigid/internal/structure"
)

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644))
	}
}

func intPtr(v int) *int { return &v }

func TestParse(t *testing.T) {
	entries, err := Parse([]byte(`{
		"predictions": [
			{"name": "lig4_xrcc4", "select": [{"chain": "A", "start": 1, "end": 240}, {"chain": "B"}]},
			{"name": "ku", "structure": "ku.cif", "confidence": "ku.json"}
		]
	}`), "sel.json")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "lig4_xrcc4", entries[0].Name)
	assert.Equal(t, Range{Chain: "A", Start: intPtr(1), End: intPtr(240)}, entries[0].Select[0])
	assert.Nil(t, entries[0].Select[1].Start)
	assert.Equal(t, "ku.cif", entries[1].Structure)

	bare, err := Parse([]byte(`[{"name": "x"}]`), "sel.json")
	require.NoError(t, err)
	assert.Len(t, bare, 1)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte(`{"predictions": []}`), "sel.json")
	assert.ErrorIs(t, err, ErrNoPredictions)

	var formatErr *prediction.FormatError
	for name, doc := range map[string]string{
		"not json":      `{"predictions": `,
		"missing name":  `[{"structure": "a.cif"}]`,
		"missing chain": `[{"name": "a", "select": [{"start": 1}]}]`,
		"reversed":      `[{"name": "a", "select": [{"chain": "A", "start": 9, "end": 2}]}]`,
		"duplicate":     `[{"name": "a"}, {"name": "a"}]`,
	} {
		_, err := Parse([]byte(doc), "sel.json")
		assert.ErrorAs(t, err, &formatErr, name)
	}
}

func TestResolveLayouts(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir,
		"fold_complex_model_0.cif", "fold_complex_full_data_0.json",
		"local_model.cif", "local_confidences.json",
		"cf_unrelaxed_rank_001_alphafold2_multimer_v3_model_2_seed_000.pdb",
		"cf_scores_rank_001_alphafold2_multimer_v3_model_2_seed_000.json",
		"AF-P12345-F1-model_v3.pdb", "AF-P12345-F1-model_v4.pdb",
		"AF-P12345-F1-predicted_aligned_error_v4.json",
		"AF-P1-F1-model_v3.pdb", "AF-P1-F1-model_v4.pdb",
		"AF-P1-F1-predicted_aligned_error_v3.json",
		"AF-P2-F1-model_v9.pdb", "AF-P2-F1-model_v10.pdb",
		"AF-P2-F1-predicted_aligned_error_v9.json", "AF-P2-F1-predicted_aligned_error_v10.json",
		"cf2_unrelaxed_rank_001_alphafold2_ptm_model_1_seed_000.pdb",
		"cf2_unrelaxed_rank_001_alphafold2_ptm_model_3_seed_000.pdb",
		"cf2_scores_rank_001_alphafold2_ptm_model_1_seed_000.json",
	)

	tests := []struct {
		name, structure, confidence string
	}{
		{"complex", "fold_complex_model_0.cif", "fold_complex_full_data_0.json"},
		{"Complex", "fold_complex_model_0.cif", "fold_complex_full_data_0.json"},
		{"local", "local_model.cif", "local_confidences.json"},
		{"cf", "cf_unrelaxed_rank_001_alphafold2_multimer_v3_model_2_seed_000.pdb", "cf_scores_rank_001_alphafold2_multimer_v3_model_2_seed_000.json"},
		{"P12345", "AF-P12345-F1-model_v4.pdb", "AF-P12345-F1-predicted_aligned_error_v4.json"},
		{"P1", "AF-P1-F1-model_v3.pdb", "AF-P1-F1-predicted_aligned_error_v3.json"},
		{"P2", "AF-P2-F1-model_v10.pdb", "AF-P2-F1-predicted_aligned_error_v10.json"},
		{"cf2", "cf2_unrelaxed_rank_001_alphafold2_ptm_model_1_seed_000.pdb", "cf2_scores_rank_001_alphafold2_ptm_model_1_seed_000.json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, c, err := Entry{Name: tt.name}.Resolve(dir)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(dir, tt.structure), s)
			assert.Equal(t, filepath.Join(dir, tt.confidence), c)
		})
	}

	_, _, err := Entry{Name: "absent"}.Resolve(dir)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveExplicit(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "m.pdb", "m.json")

	s, c, err := Entry{Name: "m", Structure: "m.pdb", Confidence: "m.json"}.Resolve(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "m.pdb"), s)
	assert.Equal(t, filepath.Join(dir, "m.json"), c)

	_, _, err = Entry{Name: "m", Structure: "m.pdb", Confidence: "other.json"}.Resolve(dir)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIndices(t *testing.T) {
	var residues []structure.Residue
	for _, chain := range []string{"A", "B"} {
		for num := 1; num <= 5; num++ {
			residues = append(residues, structure.Residue{ID: structure.ResidueID{Chain: chain, Num: num}})
		}
	}

	all, err := Entry{Name: "x"}.Indices(residues)
	require.NoError(t, err)
	assert.Len(t, all, 10)

	some, err := Entry{Name: "x", Select: []Range{
		{Chain: "A", Start: intPtr(2), End: intPtr(3)},
		{Chain: "B", Start: intPtr(5)},
	}}.Indices(residues)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 9}, some)

	_, err = Entry{Name: "x", Select: []Range{{Chain: "C"}}}.Indices(residues)
	var formatErr *prediction.FormatError
	assert.ErrorAs(t, err, &formatErr)
}
