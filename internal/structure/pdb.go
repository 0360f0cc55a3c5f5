package structure

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/TuftsBCB/io/pdb"
)

type pdbKey struct {
	chain byte
	num   int
}

type pdbResidue struct {
	name    string
	first   float64
	ca      float64
	hasCA   bool
	hasAtom bool
}

// ReadPDB reads a PDB formatted model. Residue order is the order in which
// residues of the first model appear in each chain; pLDDT is the B-factor of
// the CA atom (or the first atom for residues without one).
func ReadPDB(r io.Reader, path string) (*Structure, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	entry, err := pdb.Read(bytes.NewReader(data), path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	bfactors, err := readBFactors(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	s := &Structure{Path: path}
	for _, chain := range entry.Chains {
		if len(chain.Models) == 0 {
			continue
		}
		model := chain.Models[0]
		for _, res := range model.Residues {
			key := pdbKey{chain: chain.Ident, num: res.SequenceNum}
			info, ok := bfactors[key]
			if !ok || !info.hasAtom {
				return nil, fmt.Errorf("%s: residue %c:%d has no B-factor", path, chain.Ident, res.SequenceNum)
			}
			plddt := info.first
			if info.hasCA {
				plddt = info.ca
			}
			s.Residues = append(s.Residues, Residue{
				ID:    ResidueID{Chain: normalizeChain(string(chain.Ident)), Num: res.SequenceNum},
				Name:  info.name,
				PLDDT: plddt,
			})
		}
	}
	if len(s.Residues) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoResidues)
	}
	return s, nil
}

// readBFactors collects per-residue B-factors from ATOM/HETATM records of the
// first model.
func readBFactors(data []byte) (map[pdbKey]*pdbResidue, error) {
	residues := map[pdbKey]*pdbResidue{}
	models := 0
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "MODEL") {
			models++
			if models > 1 {
				break
			}
			continue
		}
		if strings.HasPrefix(line, "ENDMDL") && models == 1 {
			break
		}
		if !strings.HasPrefix(line, "ATOM") && !strings.HasPrefix(line, "HETATM") {
			continue
		}
		if len(line) < 66 {
			continue
		}
		resName := strings.TrimSpace(line[17:20])
		if resName == "HOH" {
			continue
		}
		resSeq, err := strconv.Atoi(strings.TrimSpace(line[22:26]))
		if err != nil {
			continue
		}
		bFactor, err := strconv.ParseFloat(strings.TrimSpace(line[60:66]), 64)
		if err != nil {
			return nil, fmt.Errorf("bad B-factor %q", line[60:66])
		}
		if insCode := line[26]; insCode != ' ' {
			return nil, fmt.Errorf("residue %c:%d%c: %w", line[21], resSeq, insCode, ErrInsertionCode)
		}
		key := pdbKey{chain: line[21], num: resSeq}
		info, ok := residues[key]
		if !ok {
			info = &pdbResidue{name: resName}
			residues[key] = info
		}
		if !info.hasAtom {
			info.first = bFactor
			info.hasAtom = true
		}
		if strings.TrimSpace(line[12:16]) == "CA" && !info.hasCA {
			info.ca = bFactor
			info.hasCA = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return residues, nil
}
