package afinput

import (
	"fmt"
	"slices"
)

// Allowed CCD codes, as accepted by the AlphaFold Server.
var (
	ptmCodes = []string{
		"CCD_SEP", "CCD_TPO", "CCD_PTR", "CCD_NEP", "CCD_HIP", "CCD_ALY", "CCD_MLY", "CCD_M3L",
		"CCD_MLZ", "CCD_2MR", "CCD_AGM", "CCD_MCS", "CCD_HYP", "CCD_HY3", "CCD_LYZ", "CCD_AHB",
		"CCD_P1L", "CCD_SNN", "CCD_SNC", "CCD_TRF", "CCD_KCR", "CCD_CIR", "CCD_YHA",
	}
	dnaModCodes = []string{
		"CCD_5CM", "CCD_C34", "CCD_5HC", "CCD_6OG", "CCD_6MA", "CCD_1CC", "CCD_8OG", "CCD_5FC", "CCD_3DR",
	}
	rnaModCodes = []string{
		"CCD_PSU", "CCD_5MC", "CCD_OMC", "CCD_4OC", "CCD_5MU", "CCD_OMU", "CCD_UR3", "CCD_A2M",
		"CCD_MA6", "CCD_6MZ", "CCD_2MG", "CCD_OMG", "CCD_7MG", "CCD_RSQ",
	}
	ligandCodes = []string{
		"CCD_ADP", "CCD_ATP", "CCD_AMP", "CCD_GTP", "CCD_GDP", "CCD_FAD", "CCD_NAD", "CCD_NAP",
		"CCD_NDP", "CCD_HEM", "CCD_HEC", "CCD_PLM", "CCD_OLA", "CCD_MYR", "CCD_CIT", "CCD_CLA",
		"CCD_CHL", "CCD_BCL", "CCD_BCB",
	}
	ionCodes = []string{"MG", "ZN", "CL", "CA", "NA", "MN", "K", "FE", "CU", "CO"}
)

// Chain is an entity with its sequence resolved and cut to its range.
// Site positions are relative to Start.
type Chain struct {
	Name          string
	Type          string
	Count         int
	Start, End    int
	Sequence      string
	Glycans       []Site
	Modifications []Site
	// Template settings apply to proteins only.
	UseTemplate     bool
	MaxTemplateDate string
	templateIgnored bool
}

// Fragment names the chain in generated job names.
func (c *Chain) Fragment() string {
	return fmt.Sprintf("%s_%d_%dto%d", c.Name, c.Count, c.Start, c.End)
}

// IsPolymer reports whether the chain has a sequence.
func (c *Chain) IsPolymer() bool {
	return c.Type == ProteinChain || c.Type == DNASequence || c.Type == RNASequence
}

// Resolve looks up the sequence of e, applies its range and checks it.
func (s Sequences) Resolve(e Entity) (*Chain, error) {
	c := &Chain{Name: e.Name, Type: e.Type, Count: e.Copies(), Start: 1, End: 1}
	invalid := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s: %s", ErrInvalidEntity, e.Name, fmt.Sprintf(format, args...))
	}

	switch e.Type {
	case ProteinChain, DNASequence, RNASequence:
		full, err := s.lookup(e)
		if err != nil {
			return nil, err
		}
		c.End = len(full)
		if len(e.Range) == 2 {
			c.Start, c.End = e.Range[0], e.Range[1]
		}
		if c.Start < 1 || c.Start > c.End || c.End > len(full) {
			return nil, invalid("range %d-%d outside sequence of length %d", c.Start, c.End, len(full))
		}
		c.Sequence = full[c.Start-1 : c.End]
	case Ligand:
		if !slices.Contains(ligandCodes, e.Name) {
			return nil, invalid("unknown ligand")
		}
	case Ion:
		if !slices.Contains(ionCodes, e.Name) {
			return nil, invalid("unknown ion")
		}
	default:
		return nil, invalid("unknown type %q", e.Type)
	}

	if len(e.Glycans) > 0 && e.Type != ProteinChain {
		return nil, invalid("glycans are only supported on protein chains")
	}
	if len(e.Modifications) > 0 && !c.IsPolymer() {
		return nil, invalid("modifications are not supported on %s entities", e.Type)
	}

	var allowed []string
	switch e.Type {
	case ProteinChain:
		allowed = ptmCodes
	case DNASequence:
		allowed = dnaModCodes
	case RNASequence:
		allowed = rnaModCodes
	}
	for _, g := range e.Glycans {
		pos := g.Position - c.Start + 1
		if pos < 1 || pos > len(c.Sequence) {
			return nil, invalid("glycan position %d outside range %d-%d", g.Position, c.Start, c.End)
		}
		c.Glycans = append(c.Glycans, Site{Code: g.Code, Position: pos})
	}
	for _, m := range e.Modifications {
		if !slices.Contains(allowed, m.Code) {
			return nil, invalid("modification %s not allowed on %s", m.Code, e.Type)
		}
		pos := m.Position - c.Start + 1
		if pos < 1 || pos > len(c.Sequence) {
			return nil, invalid("modification position %d outside range %d-%d", m.Position, c.Start, c.End)
		}
		c.Modifications = append(c.Modifications, Site{Code: m.Code, Position: pos})
	}

	if e.Type == ProteinChain {
		c.UseTemplate = e.UseStructureTemplate == nil || *e.UseStructureTemplate
		if c.UseTemplate {
			c.MaxTemplateDate = e.MaxTemplateDate
			if c.MaxTemplateDate == "" {
				c.MaxTemplateDate = DefaultMaxTemplateDate
			}
		} else {
			c.templateIgnored = e.MaxTemplateDate != ""
		}
	}
	return c, nil
}
