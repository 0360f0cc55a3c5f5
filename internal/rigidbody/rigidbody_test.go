package rigidbody

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farnunglab/afrigid/internal/prediction"
	"github.com/farnunglab/afrigid/internal/segment"
	"github.com/farnunglab/afrigid/internal/structure"
)

func makePrediction(chains []string, nums []int, plddt []float64, pae float64) *prediction.Prediction {
	pred := &prediction.Prediction{Name: "test", PAE: prediction.NewMatrix(len(nums))}
	for i := range nums {
		pred.Residues = append(pred.Residues, structure.Residue{
			ID:    structure.ResidueID{Chain: chains[i], Num: nums[i]},
			Name:  "ALA",
			PLDDT: plddt[i],
		})
		for j := range nums {
			if i != j {
				pred.PAE.Set(i, j, pae)
			}
		}
	}
	return pred
}

func TestApplyDropsLowConfidence(t *testing.T) {
	pred := makePrediction(
		[]string{"A", "A", "A", "A", "B", "B"},
		[]int{1, 2, 3, 4, 1, 2},
		[]float64{90, 40, 85, 80, 30, 20},
		2,
	)
	domains := []segment.Domain{{0, 1, 2, 3}, {4, 5}}

	a, err := DefaultFilter().Apply(pred, domains, segment.Soft)
	require.NoError(t, err)
	require.Len(t, a.Bodies, 1)

	rb := a.Bodies[0]
	assert.Equal(t, 1, rb.ID)
	assert.Equal(t, []int{0, 2, 3}, rb.Indices)
	assert.Equal(t, []Segment{{Chain: "A", Start: 1, End: 1}, {Chain: "A", Start: 3, End: 4}}, rb.Segments)
	assert.InDelta(t, 85.0, rb.MeanPLDDT, 1e-9)
	assert.InDelta(t, 2.0, rb.MeanPAE, 1e-9)
	assert.Len(t, a.Dropped, 3)
	assert.Equal(t, 3, a.Kept())
	assert.Equal(t, 6, a.Total)

	for _, r := range a.Dropped {
		assert.Zero(t, a.BodyOf(r.ID))
	}
}

func TestApplyRenumbersAndRespectsMinSize(t *testing.T) {
	pred := makePrediction(
		[]string{"A", "A", "A", "A", "A"},
		[]int{10, 11, 12, 13, 14},
		[]float64{90, 90, 90, 90, 90},
		1,
	)
	domains := []segment.Domain{{3, 4}, {0}, {1, 2}}

	a, err := Filter{PLDDTCutoff: 70, MinSize: 2}.Apply(pred, domains, segment.Strict)
	require.NoError(t, err)
	require.Len(t, a.Bodies, 2)
	assert.Equal(t, 1, a.Bodies[0].ID)
	assert.Equal(t, []int{1, 2}, a.Bodies[0].Indices)
	assert.Equal(t, 2, a.Bodies[1].ID)
	assert.Equal(t, []int{3, 4}, a.Bodies[1].Indices)
	assert.Equal(t, 2, a.BodyOf(structure.ResidueID{Chain: "A", Num: 14}))
}

func TestApplyRejectsBadIndex(t *testing.T) {
	pred := makePrediction([]string{"A"}, []int{1}, []float64{90}, 0)
	_, err := DefaultFilter().Apply(pred, []segment.Domain{{1}}, segment.Soft)
	assert.Error(t, err)
}

func TestApplyDetectsDuplicates(t *testing.T) {
	pred := makePrediction([]string{"A", "A"}, []int{1, 2}, []float64{90, 90}, 1)
	_, err := DefaultFilter().Apply(pred, []segment.Domain{{0, 1}, {1}}, segment.Soft)
	assert.ErrorIs(t, err, ErrInvariant)
}

func TestSegmentsAcrossChains(t *testing.T) {
	residues := []structure.Residue{
		{ID: structure.ResidueID{Chain: "B", Num: 7}},
		{ID: structure.ResidueID{Chain: "A", Num: 1}},
		{ID: structure.ResidueID{Chain: "A", Num: 2}},
		{ID: structure.ResidueID{Chain: "B", Num: 8}},
		{ID: structure.ResidueID{Chain: "A", Num: 5}},
	}
	segments := Segments(residues)
	assert.Equal(t, []Segment{
		{Chain: "B", Start: 7, End: 8},
		{Chain: "A", Start: 1, End: 2},
		{Chain: "A", Start: 5, End: 5},
	}, segments)
	assert.Equal(t, "B:7-8 A:1-2,5-5", FormatSegments(segments))
	assert.Equal(t, 2, segments[0].Len())
}

func TestEndToEndProperties(t *testing.T) {
	chains := make([]string, 12)
	nums := make([]int, 12)
	plddt := make([]float64, 12)
	for i := range nums {
		chains[i] = "A"
		nums[i] = i + 1
		plddt[i] = 95
		if i%4 == 0 {
			plddt[i] = 50
		}
	}
	pred := makePrediction(chains, nums, plddt, 1)

	for _, method := range segment.Methods {
		domains, err := segment.Segment(pred.PAE, method, segment.DefaultParams())
		require.NoError(t, err)
		a, err := DefaultFilter().Apply(pred, domains, method)
		require.NoError(t, err)
		require.NoError(t, a.Check())
		for _, rb := range a.Bodies {
			for _, r := range rb.Residues {
				assert.GreaterOrEqual(t, r.PLDDT, 70.0)
			}
		}
		assert.Equal(t, 9, a.Kept())
	}
}
