// Package structure reads predicted structures (PDB and mmCIF) into an ordered
// list of residues carrying the per-residue confidence stored in the B-factor
// column. Only the first model of a file is read.
package structure

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnknownFormat is returned when a structure file extension is not one of
// .pdb, .ent or .cif (optionally gzipped).
var ErrUnknownFormat = errors.New("unknown structure format")

// ErrNoResidues is returned when a structure file has no residues in its
// first model.
var ErrNoResidues = errors.New("no residues found")

// ErrInsertionCode is returned for residues with an insertion code. Residues
// are identified by chain and number only, so 52 and 52A would collide.
var ErrInsertionCode = errors.New("insertion codes are not supported")

// ResidueID identifies a residue by chain and residue sequence number.
type ResidueID struct {
	Chain string `json:"chain"`
	Num   int    `json:"residue"`
}

func (id ResidueID) String() string {
	return fmt.Sprintf("%s:%d", id.Chain, id.Num)
}

// Residue is one residue of the first model with its pLDDT.
type Residue struct {
	ID    ResidueID
	Name  string
	PLDDT float64
}

// Structure is the ordered residue list of a predicted model.
type Structure struct {
	Path     string
	Residues []Residue
}

// Chains returns chain identifiers in order of first appearance.
func (s *Structure) Chains() []string {
	var chains []string
	seen := map[string]bool{}
	for _, r := range s.Residues {
		if seen[r.ID.Chain] {
			continue
		}
		seen[r.ID.Chain] = true
		chains = append(chains, r.ID.Chain)
	}
	return chains
}

// Format is the on-disk structure format.
type Format int

const (
	FormatUnknown Format = iota
	FormatPDB
	FormatCIF
)

// DetectFormat guesses the format from the file name.
func DetectFormat(path string) Format {
	name := strings.ToLower(filepath.Base(path))
	name = strings.TrimSuffix(name, ".gz")
	switch filepath.Ext(name) {
	case ".pdb", ".ent":
		return FormatPDB
	case ".cif", ".mmcif":
		return FormatCIF
	}
	return FormatUnknown
}

// Read loads the structure at path. Gzipped files are decompressed.
func Read(path string) (*Structure, error) {
	format := DetectFormat(path)
	if format == FormatUnknown {
		return nil, fmt.Errorf("%s: %w", path, ErrUnknownFormat)
	}
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatPDB:
		return ReadPDB(bytes.NewReader(data), path)
	default:
		return ReadCIF(bytes.NewReader(data), path)
	}
}

func readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var reader io.Reader = f
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		defer gz.Close()
		reader = gz
	}
	return io.ReadAll(reader)
}

func normalizeChain(chain string) string {
	chain = strings.TrimSpace(chain)
	if chain == "" {
		// Single chain models written without a chain column.
		return "A"
	}
	return chain
}
