package structure

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Columns of the _atom_site table that we use. Everything else in an mmCIF
// file is skipped without being tokenised.
const (
	colGroup   = "group_PDB"
	colAtom    = "label_atom_id"
	colComp    = "label_comp_id"
	colAsym    = "label_asym_id"
	colSeq     = "label_seq_id"
	colAuthAsy = "auth_asym_id"
	colAuthSeq = "auth_seq_id"
	colInsCode = "pdbx_PDB_ins_code"
	colBIso    = "B_iso_or_equiv"
	colModel   = "pdbx_PDB_model_num"
)

var nucleotides = map[string]bool{
	"A": true, "C": true, "G": true, "U": true, "I": true,
	"DA": true, "DC": true, "DG": true, "DT": true, "DI": true, "DU": true,
}

type cifResidue struct {
	id    ResidueID
	name  string
	first float64
	rep   float64
	isRep bool
}

// ReadCIF reads the _atom_site table of an mmCIF file. Rows of any model
// other than the first are ignored.
func ReadCIF(r io.Reader, path string) (*Structure, error) {
	p := cifParser{path: path}
	if err := p.parse(r); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(p.order) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoResidues)
	}
	s := &Structure{Path: path, Residues: make([]Residue, 0, len(p.order))}
	for _, res := range p.order {
		plddt := res.first
		if res.isRep {
			plddt = res.rep
		}
		s.Residues = append(s.Residues, Residue{ID: res.id, Name: res.name, PLDDT: plddt})
	}
	return s, nil
}

type cifParser struct {
	path    string
	columns map[string]int
	ncols   int
	model   string
	pending []string
	order   []*cifResidue
	index   map[ResidueID]*cifResidue

	// Ligands without a sequence number are numbered per chain.
	counters map[string]int
	lastAnon string
}

func (p *cifParser) parse(r io.Reader) error {
	p.index = map[ResidueID]*cifResidue{}
	p.counters = map[string]int{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	inLoop := false     // just saw loop_, reading headers
	inAtomSite := false // reading _atom_site rows
	inText := false     // inside a ;-delimited text field
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.HasPrefix(line, ";") {
			inText = !inText
			continue
		}
		if inText {
			continue
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		switch {
		case trimmed == "loop_":
			if inAtomSite {
				return nil
			}
			inLoop = true
			p.columns = map[string]int{}
			p.ncols = 0
			continue
		case strings.HasPrefix(trimmed, "_"):
			if inAtomSite {
				return nil
			}
			if inLoop && strings.HasPrefix(trimmed, "_atom_site.") {
				name := strings.Fields(trimmed)[0]
				p.columns[strings.TrimPrefix(name, "_atom_site.")] = p.ncols
				p.ncols++
			} else if inLoop && p.ncols > 0 {
				// A different table; its header lines carry no interest.
				inLoop = false
			}
			continue
		case trimmed[0] == '#' || strings.HasPrefix(trimmed, "data_"):
			if inAtomSite {
				return nil
			}
			inLoop = false
			continue
		}

		if inLoop && p.ncols > 0 {
			if err := p.checkColumns(); err != nil {
				return err
			}
			inLoop = false
			inAtomSite = true
		}
		if !inAtomSite {
			continue
		}
		done, err := p.row(trimmed, lineNo)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if len(p.pending) > 0 {
		return fmt.Errorf("truncated _atom_site row at end of file")
	}
	return nil
}

func (p *cifParser) checkColumns() error {
	for _, col := range []string{colAtom, colComp, colBIso} {
		if _, ok := p.columns[col]; !ok {
			return fmt.Errorf("_atom_site is missing column %s", col)
		}
	}
	_, hasAsym := p.columns[colAsym]
	_, hasAuthAsym := p.columns[colAuthAsy]
	if !hasAsym && !hasAuthAsym {
		return fmt.Errorf("_atom_site has no chain column")
	}
	return nil
}

// row consumes one line of the atom table. It reports done once the first
// model has been read completely.
func (p *cifParser) row(line string, lineNo int) (bool, error) {
	p.pending = append(p.pending, tokenize(line)...)
	if len(p.pending) < p.ncols {
		return false, nil
	}
	if len(p.pending) > p.ncols {
		return false, fmt.Errorf("line %d: expected %d fields, got %d", lineNo, p.ncols, len(p.pending))
	}
	fields := p.pending
	p.pending = nil

	if i, ok := p.columns[colGroup]; ok && fields[i] != "ATOM" && fields[i] != "HETATM" {
		return false, nil
	}
	if i, ok := p.columns[colModel]; ok {
		if p.model == "" {
			p.model = fields[i]
		} else if fields[i] != p.model {
			return true, nil
		}
	}

	comp := p.field(fields, colComp)
	if comp == "HOH" {
		return false, nil
	}
	chain := p.field(fields, colAsym)
	if chain == "" {
		chain = p.field(fields, colAuthAsy)
	}
	chain = normalizeChain(chain)
	seqRaw := p.field(fields, colSeq)
	if seqRaw == "" {
		seqRaw = p.field(fields, colAuthSeq)
		if ins := p.field(fields, colInsCode); ins != "" {
			return false, fmt.Errorf("line %d: residue %s:%s%s: %w", lineNo, chain, seqRaw, ins, ErrInsertionCode)
		}
	}
	var num int
	if seqRaw == "" {
		num = p.anonymous(chain, comp)
	} else {
		n, err := strconv.Atoi(seqRaw)
		if err != nil {
			return false, fmt.Errorf("line %d: bad residue number %q", lineNo, seqRaw)
		}
		num = n
		p.lastAnon = ""
	}
	bIso, err := strconv.ParseFloat(p.field(fields, colBIso), 64)
	if err != nil {
		return false, fmt.Errorf("line %d: bad B_iso_or_equiv: %w", lineNo, err)
	}

	id := ResidueID{Chain: chain, Num: num}
	res, ok := p.index[id]
	if !ok {
		res = &cifResidue{id: id, name: comp, first: bIso}
		p.index[id] = res
		p.order = append(p.order, res)
	}
	atom := p.field(fields, colAtom)
	if !res.isRep && isRepresentative(comp, atom) {
		res.rep = bIso
		res.isRep = true
	}
	return false, nil
}

// anonymous numbers a residue that has neither label_seq_id nor auth_seq_id.
// Consecutive rows of the same component in the same chain are one residue.
func (p *cifParser) anonymous(chain, comp string) int {
	key := chain + "/" + comp
	if p.lastAnon != key {
		p.counters[chain]++
		p.lastAnon = key
	}
	return p.counters[chain]
}

// field returns the value of a column, mapping the mmCIF null markers ? and .
// to the empty string.
func (p *cifParser) field(fields []string, col string) string {
	i, ok := p.columns[col]
	if !ok || i >= len(fields) {
		return ""
	}
	v := fields[i]
	if v == "?" || v == "." {
		return ""
	}
	return v
}

func isRepresentative(comp, atom string) bool {
	if nucleotides[comp] {
		return atom == "C1'"
	}
	return atom == "CA" && len(comp) == 3
}

// tokenize splits a data line on whitespace. Quoted values ('...' or "...")
// may contain spaces; a quote only closes a value when followed by
// whitespace, so names like C1' survive.
func tokenize(line string) []string {
	var tokens []string
	i := 0
	for i < len(line) {
		for i < len(line) && isSpace(line[i]) {
			i++
		}
		if i >= len(line) {
			break
		}
		if q := line[i]; q == '\'' || q == '"' {
			j := i + 1
			for j < len(line) && !(line[j] == q && (j+1 == len(line) || isSpace(line[j+1]))) {
				j++
			}
			tokens = append(tokens, line[i+1:min(j, len(line))])
			i = j + 1
			continue
		}
		j := i
		for j < len(line) && !isSpace(line[j]) {
			j++
		}
		tokens = append(tokens, line[i:j])
		i = j
	}
	return tokens
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t'
}
