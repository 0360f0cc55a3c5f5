// Package rigidbody turns candidate domains into the final rigid bodies of a
// prediction: low confidence residues are removed, small groups dropped and
// the survivors numbered and summarised.
package rigidbody

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/farnunglab/afrigid/internal/prediction"
	"github.com/farnunglab/afrigid/internal/segment"
	"github.com/farnunglab/afrigid/internal/structure"
)

// ErrInvariant is returned by Assignment.Check when an assignment places a
// residue twice or keeps a residue below the pLDDT cutoff.
var ErrInvariant = errors.New("rigid body invariant violated")

// Filter removes low confidence residues from domains.
type Filter struct {
	PLDDTCutoff float64
	MinSize     int
}

// DefaultFilter keeps residues with pLDDT >= 70 in groups of any size.
func DefaultFilter() Filter {
	return Filter{PLDDTCutoff: 70, MinSize: 1}
}

// Segment is a run of consecutive residue numbers of one chain.
type Segment struct {
	Chain string `json:"chain"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

func (s Segment) String() string {
	return fmt.Sprintf("%s:%d-%d", s.Chain, s.Start, s.End)
}

// Len is the number of residue numbers the segment spans.
func (s Segment) Len() int { return s.End - s.Start + 1 }

// RigidBody is one filtered domain.
type RigidBody struct {
	ID        int
	Indices   []int
	Residues  []structure.Residue
	MeanPLDDT float64
	MeanPAE   float64
	Segments  []Segment
}

// Size is the number of residues in the body.
func (rb RigidBody) Size() int { return len(rb.Residues) }

// Assignment is the residue to rigid body mapping of one prediction.
type Assignment struct {
	Prediction string
	Method     segment.Method
	Filter     Filter
	Bodies     []RigidBody
	// Dropped lists residues removed for low pLDDT.
	Dropped []structure.Residue
	// Total is the number of residues that were segmented.
	Total int
}

// Apply filters domains of pred and numbers the surviving rigid bodies
// 1..k in order of their first residue.
func (f Filter) Apply(pred *prediction.Prediction, domains []segment.Domain, method segment.Method) (*Assignment, error) {
	n := len(pred.Residues)
	a := &Assignment{Prediction: pred.Name, Method: method, Filter: f, Total: n}
	minSize := max(f.MinSize, 1)

	for _, domain := range domains {
		var kept []int
		for _, i := range domain {
			if i < 0 || i >= n {
				return nil, fmt.Errorf("domain index %d out of range [0,%d)", i, n)
			}
			if pred.Residues[i].PLDDT < f.PLDDTCutoff {
				a.Dropped = append(a.Dropped, pred.Residues[i])
				continue
			}
			kept = append(kept, i)
		}
		if len(kept) < minSize {
			continue
		}
		sort.Ints(kept)
		a.Bodies = append(a.Bodies, newRigidBody(pred, kept))
	}

	sort.SliceStable(a.Bodies, func(i, j int) bool { return a.Bodies[i].Indices[0] < a.Bodies[j].Indices[0] })
	for i := range a.Bodies {
		a.Bodies[i].ID = i + 1
	}
	if err := a.Check(); err != nil {
		return nil, err
	}
	return a, nil
}

func newRigidBody(pred *prediction.Prediction, indices []int) RigidBody {
	rb := RigidBody{Indices: indices, Residues: make([]structure.Residue, len(indices))}
	var sum float64
	for k, i := range indices {
		rb.Residues[k] = pred.Residues[i]
		sum += pred.Residues[i].PLDDT
	}
	rb.MeanPLDDT = math.Round(sum/float64(len(indices))*10) / 10

	var paeSum float64
	pairs := 0
	for a := 0; a < len(indices); a++ {
		for b := a + 1; b < len(indices); b++ {
			paeSum += segment.SymmetricMean(pred.PAE, indices[a], indices[b])
			pairs++
		}
	}
	if pairs > 0 {
		rb.MeanPAE = math.Round(paeSum/float64(pairs)*100) / 100
	}
	rb.Segments = Segments(rb.Residues)
	return rb
}

// Segments compresses residues into per-chain runs of consecutive numbers.
// Chains keep their order of first appearance.
func Segments(residues []structure.Residue) []Segment {
	byChain := map[string][]int{}
	var chains []string
	for _, r := range residues {
		if _, ok := byChain[r.ID.Chain]; !ok {
			chains = append(chains, r.ID.Chain)
		}
		byChain[r.ID.Chain] = append(byChain[r.ID.Chain], r.ID.Num)
	}

	var segments []Segment
	for _, chain := range chains {
		nums := byChain[chain]
		sort.Ints(nums)
		start := nums[0]
		for i := 1; i < len(nums); i++ {
			if nums[i] == nums[i-1] || nums[i] == nums[i-1]+1 {
				continue
			}
			segments = append(segments, Segment{Chain: chain, Start: start, End: nums[i-1]})
			start = nums[i]
		}
		segments = append(segments, Segment{Chain: chain, Start: start, End: nums[len(nums)-1]})
	}
	return segments
}

// FormatSegments renders segments as "A:1-10,20-30 B:5-40".
func FormatSegments(segments []Segment) string {
	var parts []string
	last := ""
	for _, s := range segments {
		span := fmt.Sprintf("%d-%d", s.Start, s.End)
		if s.Chain == last {
			parts[len(parts)-1] += "," + span
			continue
		}
		parts = append(parts, s.Chain+":"+span)
		last = s.Chain
	}
	return strings.Join(parts, " ")
}

// Kept is the number of residues across all bodies.
func (a *Assignment) Kept() int {
	total := 0
	for _, rb := range a.Bodies {
		total += rb.Size()
	}
	return total
}

// BodyOf returns the rigid body ID holding id, or 0.
func (a *Assignment) BodyOf(id structure.ResidueID) int {
	for _, rb := range a.Bodies {
		for _, r := range rb.Residues {
			if r.ID == id {
				return rb.ID
			}
		}
	}
	return 0
}

// Check verifies that no residue is in two bodies, that every body meets
// the filter and that IDs run 1..k.
func (a *Assignment) Check() error {
	seen := map[structure.ResidueID]int{}
	for k, rb := range a.Bodies {
		if rb.ID != k+1 {
			return fmt.Errorf("%w: rigid body %d has ID %d", ErrInvariant, k+1, rb.ID)
		}
		if rb.Size() == 0 || rb.Size() < a.Filter.MinSize {
			return fmt.Errorf("%w: rigid body %d has %d residues", ErrInvariant, rb.ID, rb.Size())
		}
		for _, r := range rb.Residues {
			if r.PLDDT < a.Filter.PLDDTCutoff {
				return fmt.Errorf("%w: %s in RB%d has pLDDT %.1f below %.1f", ErrInvariant, r.ID, rb.ID, r.PLDDT, a.Filter.PLDDTCutoff)
			}
			if other, ok := seen[r.ID]; ok {
				return fmt.Errorf("%w: %s is in RB%d and RB%d", ErrInvariant, r.ID, other, rb.ID)
			}
			seen[r.ID] = rb.ID
		}
	}
	return nil
}
