package emit

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farnunglab/afrigid/internal/prediction"
	"github.com/farnunglab/afrigid/internal/rigidbody"
	"github.com/farnunglab/afrigid/internal/segment"
	"github.com/farnunglab/afrigid/internal/structure"
)

// fixture builds a two chain prediction with two well separated blocks and a
// low confidence linker.
func fixture(t *testing.T) (*prediction.Prediction, *rigidbody.Assignment) {
	t.Helper()
	pred := &prediction.Prediction{Name: "complex", StructurePath: "complex.cif", ConfidencePath: "complex.json"}
	var block []int
	for i := 0; i < 30; i++ {
		chain, num := "A", i+1
		if i >= 18 {
			chain, num = "B", i-17
		}
		plddt := 90.0
		if i >= 12 && i < 18 {
			plddt = 35
		}
		pred.Residues = append(pred.Residues, structure.Residue{
			ID:    structure.ResidueID{Chain: chain, Num: num},
			Name:  "GLY",
			PLDDT: plddt,
		})
		b := 0
		if i >= 15 {
			b = 1
		}
		block = append(block, b)
	}
	pred.PAE = prediction.NewMatrix(30)
	for i := 0; i < 30; i++ {
		for j := 0; j < 30; j++ {
			if block[i] == block[j] {
				pred.PAE.Set(i, j, 1.5)
			} else {
				pred.PAE.Set(i, j, 25)
			}
		}
	}
	domains, err := segment.Segment(pred.PAE, segment.Soft, segment.DefaultParams())
	require.NoError(t, err)
	a, err := rigidbody.DefaultFilter().Apply(pred, domains, segment.Soft)
	require.NoError(t, err)
	require.Len(t, a.Bodies, 2)
	return pred, a
}

func TestListingsAreSetEqual(t *testing.T) {
	pred, a := fixture(t)
	want := ListingOf(a)

	var txt, js, csvBuf bytes.Buffer
	require.NoError(t, WriteText(&txt, a))
	require.NoError(t, WriteJSON(&js, NewDocument(a, pred, Meta{RunID: "run", Segment: segment.DefaultParams()})))
	require.NoError(t, WriteCSV(&csvBuf, a))

	fromText, err := ReadText(&txt)
	require.NoError(t, err)
	fromJSON, err := ReadJSON(&js)
	require.NoError(t, err)
	fromCSV, err := ReadCSV(&csvBuf)
	require.NoError(t, err)

	assert.Equal(t, want, fromText)
	assert.Equal(t, want, fromJSON)
	assert.Equal(t, want, fromCSV)

	for _, r := range a.Dropped {
		assert.False(t, fromText.Residues()[r.ID], "%s has low pLDDT", r.ID)
	}
}

func TestWriteText(t *testing.T) {
	_, a := fixture(t)
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, a))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "RB1\tA:1-12", lines[1])
	assert.Equal(t, "RB2\tB:1-12", lines[2])
}

func TestReadTextErrors(t *testing.T) {
	for _, in := range []string{
		"RB1 A:1-3\n",
		"XX1\tA:1-3\n",
		"RB1\tA1-3\n",
		"RB1\tA:5-3\n",
	} {
		_, err := ReadText(strings.NewReader(in))
		assert.Error(t, err, in)
	}
}

func TestReadTextNegativeNumbers(t *testing.T) {
	l, err := ReadText(strings.NewReader("RB2\tA:-2-1\n"))
	require.NoError(t, err)
	assert.Len(t, l[2], 4)
	assert.Equal(t, structure.ResidueID{Chain: "A", Num: -2}, l[2][0])
}

func TestVisualizationScripts(t *testing.T) {
	_, a := fixture(t)

	var pml bytes.Buffer
	require.NoError(t, WritePyMOL(&pml, a))
	assert.Contains(t, pml.String(), "select RB1, (chain A and resi 1-12)")
	assert.Contains(t, pml.String(), "color 0x1f77b4, RB1")

	var cxc bytes.Buffer
	require.NoError(t, WriteChimeraX(&cxc, a))
	assert.Contains(t, cxc.String(), "name RB2 /B:1-12")
	assert.Contains(t, cxc.String(), "color RB2 #ff7f0e")
}

func TestPyMOLSelectionMultipleChains(t *testing.T) {
	sel := pymolSelection([]rigidbody.Segment{
		{Chain: "A", Start: 1, End: 5},
		{Chain: "A", Start: 9, End: 12},
		{Chain: "B", Start: -3, End: 2},
	})
	assert.Equal(t, `(chain A and resi 1-5+9-12) or (chain B and resi \-3-2)`, sel)
}

func TestChimeraXSpecNegativeNumbers(t *testing.T) {
	spec := chimeraxSpec([]rigidbody.Segment{
		{Chain: "A", Start: -3, End: 2},
		{Chain: "A", Start: 5, End: 9},
		{Chain: "B", Start: -2, End: -1},
		{Chain: "B", Start: 4, End: 4},
	})
	assert.Equal(t, "/A:-3,-2,-1,0-2,5-9 /B:-2,-1,4", spec)
}

func TestOverview(t *testing.T) {
	pred, a := fixture(t)
	out := Overview(a, pred)
	lines := strings.Split(out, "\n")
	require.GreaterOrEqual(t, len(lines), 5)
	assert.Equal(t, "complex (soft): 2 rigid bodies, 24/30 residues kept", lines[0])
	assert.Equal(t, "Bodies:   "+strings.Repeat("1", 12)+strings.Repeat(" ", 6)+strings.Repeat("2", 12), lines[4])
	assert.Contains(t, out, "RB1")
}

func TestWriterWritesAllOutputs(t *testing.T) {
	pred, a := fixture(t)
	dir := t.TempDir()
	w := &Writer{
		Dir:     filepath.Join(dir, "complex"),
		Formats: []Format{FormatText, FormatJSON, FormatCSV},
		Viz:     []Viz{VizPyMOL, VizChimeraX},
		Meta:    Meta{RunID: "abc"},
	}
	written, err := w.Write(a, pred)
	require.NoError(t, err)
	require.Len(t, written, 6)
	for _, suffix := range []string{"rigid_bodies.txt", "rigid_bodies.json", "rigid_bodies.csv", "rigid_bodies.pml", "rigid_bodies.cxc", "overview.txt"} {
		path := filepath.Join(dir, "complex", "complex_soft_"+suffix)
		assert.FileExists(t, path)
		assert.Contains(t, written, path)
	}

	f, err := os.Open(filepath.Join(dir, "complex", "complex_soft_rigid_bodies.json"))
	require.NoError(t, err)
	defer f.Close()
	l, err := ReadJSON(f)
	require.NoError(t, err)
	assert.Equal(t, ListingOf(a), l)
}

func TestParseFormatsAndViz(t *testing.T) {
	formats, err := ParseFormats([]string{"TXT", " json", ""})
	require.NoError(t, err)
	assert.Equal(t, []Format{FormatText, FormatJSON}, formats)
	_, err = ParseFormats([]string{"xml"})
	assert.Error(t, err)

	viz, err := ParseViz([]string{"none", "chimerax"})
	require.NoError(t, err)
	assert.Equal(t, []Viz{VizChimeraX}, viz)
	_, err = ParseViz([]string{"vmd"})
	assert.Error(t, err)
}
