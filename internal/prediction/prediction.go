// Package prediction loads one AlphaFold prediction: the residues of the
// first model with their pLDDT and the PAE matrix indexed the same way.
package prediction

import (
	"errors"
	"fmt"

	"github.com/farnunglab/afrigid/internal/structure"
)

// Prediction is a predicted model reduced to what rigid body extraction
// needs. Residues[i] corresponds to row and column i of PAE.
type Prediction struct {
	Name           string
	StructurePath  string
	ConfidencePath string
	Residues       []structure.Residue
	PAE            *Matrix
}

// Load reads the structure and confidence files of one prediction and
// checks that they describe the same residues.
func Load(name, structurePath, confidencePath string) (*Prediction, error) {
	st, err := structure.Read(structurePath)
	if err != nil {
		if errors.Is(err, structure.ErrUnknownFormat) || errors.Is(err, structure.ErrNoResidues) {
			return nil, &FormatError{Path: structurePath, Reason: err.Error()}
		}
		return nil, err
	}
	conf, err := ReadConfidence(confidencePath)
	if err != nil {
		return nil, err
	}
	pred, err := Assemble(name, st, conf)
	if err != nil {
		var formatErr *FormatError
		if errors.As(err, &formatErr) && formatErr.Path == "" {
			formatErr.Path = confidencePath
		}
		return nil, err
	}
	pred.StructurePath = structurePath
	pred.ConfidencePath = confidencePath
	return pred, nil
}

// Assemble combines an already parsed structure and confidence document.
func Assemble(name string, st *structure.Structure, conf *Confidence) (*Prediction, error) {
	residues := make([]structure.Residue, len(st.Residues))
	copy(residues, st.Residues)

	var pae *Matrix
	if len(conf.TokenChainIDs) > 0 {
		collapsed, err := collapseTokens(residues, conf)
		if err != nil {
			return nil, err
		}
		pae = collapsed
	} else {
		if len(conf.PAE) != len(residues) {
			return nil, &FormatError{
				Path:   st.Path,
				Reason: fmt.Sprintf("structure has %d residues but PAE matrix is %dx%d", len(residues), len(conf.PAE), len(conf.PAE)),
			}
		}
		pae = MatrixFromRows(conf.PAE)
	}

	if len(conf.PLDDT) > 0 {
		if len(conf.PLDDT) != len(residues) {
			return nil, &FormatError{
				Path:   st.Path,
				Reason: fmt.Sprintf("structure has %d residues but confidence file has %d pLDDT values", len(residues), len(conf.PLDDT)),
			}
		}
		for i := range residues {
			residues[i].PLDDT = conf.PLDDT[i]
		}
	}
	return &Prediction{Name: name, StructurePath: st.Path, Residues: residues, PAE: pae}, nil
}

// collapseTokens maps AlphaFold 3 tokens onto structure residues. Residues
// covered by more than one token get the mean of their token cells.
func collapseTokens(residues []structure.Residue, conf *Confidence) (*Matrix, error) {
	if len(conf.TokenChainIDs) != len(conf.PAE) {
		return nil, &FormatError{Reason: fmt.Sprintf("%d tokens but PAE matrix is %dx%d", len(conf.TokenChainIDs), len(conf.PAE), len(conf.PAE))}
	}
	index := make(map[string]int, len(residues))
	for i, r := range residues {
		index[tokenKey(r.ID.Chain, r.ID.Num)] = i
	}
	tokenRes := make([]int, len(conf.TokenChainIDs))
	covered := make([]bool, len(residues))
	for t, chain := range conf.TokenChainIDs {
		i, ok := index[tokenKey(chain, conf.TokenResIDs[t])]
		if !ok {
			return nil, &FormatError{Reason: fmt.Sprintf("token %d (%s:%d) has no residue in the structure", t, chain, conf.TokenResIDs[t])}
		}
		tokenRes[t] = i
		covered[i] = true
	}
	for i, ok := range covered {
		if !ok {
			return nil, &FormatError{Reason: fmt.Sprintf("residue %s has no token in the confidence file", residues[i].ID)}
		}
	}

	n := len(residues)
	sums := NewMatrix(n)
	counts := make([]int, n*n)
	for a, i := range tokenRes {
		for b, j := range tokenRes {
			sums.Set(i, j, sums.At(i, j)+conf.PAE[a][b])
			counts[i*n+j]++
		}
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			sums.Set(i, j, sums.At(i, j)/float64(counts[i*n+j]))
		}
	}
	return sums, nil
}

// PLDDT returns the per-residue pLDDT in residue order.
func (p *Prediction) PLDDT() []float64 {
	out := make([]float64, len(p.Residues))
	for i, r := range p.Residues {
		out[i] = r.PLDDT
	}
	return out
}

// Subset returns a prediction restricted to the given residue indices.
func (p *Prediction) Subset(indices []int) *Prediction {
	residues := make([]structure.Residue, len(indices))
	for k, i := range indices {
		residues[k] = p.Residues[i]
	}
	return &Prediction{
		Name:           p.Name,
		StructurePath:  p.StructurePath,
		ConfidencePath: p.ConfidencePath,
		Residues:       residues,
		PAE:            p.PAE.Sub(indices),
	}
}
