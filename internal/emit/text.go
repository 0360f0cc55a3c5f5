package emit

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/farnunglab/afrigid/internal/rigidbody"
	"github.com/farnunglab/afrigid/internal/structure"
)

var spanPattern = regexp.MustCompile(`^\s*(-?\d+)\s*-\s*(-?\d+)\s*$`)

// WriteText writes one line per rigid body:
//
//	RB1	A:1-120,130-200 B:5-60
func WriteText(w io.Writer, a *rigidbody.Assignment) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# %s %s plddt_cutoff=%g bodies=%d\n", a.Prediction, a.Method, a.Filter.PLDDTCutoff, len(a.Bodies))
	for _, rb := range a.Bodies {
		fmt.Fprintf(bw, "RB%d\t%s\n", rb.ID, rigidbody.FormatSegments(rb.Segments))
	}
	return bw.Flush()
}

// ReadText parses the output of WriteText.
func ReadText(r io.Reader) (Listing, error) {
	l := Listing{}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		label, spec, ok := strings.Cut(line, "\t")
		if !ok {
			return nil, fmt.Errorf("line %d: missing tab after rigid body label", lineNo)
		}
		id, err := strconv.Atoi(strings.TrimPrefix(label, "RB"))
		if err != nil || !strings.HasPrefix(label, "RB") {
			return nil, fmt.Errorf("line %d: bad rigid body label %q", lineNo, label)
		}
		residues, err := parseSelection(spec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		l[id] = append(l[id], residues...)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	l.sort()
	return l, nil
}

// parseSelection expands "A:1-3,7-7 B:2-4" into residue IDs.
func parseSelection(spec string) ([]structure.ResidueID, error) {
	var out []structure.ResidueID
	for _, part := range strings.Fields(spec) {
		chain, spans, ok := strings.Cut(part, ":")
		if !ok || chain == "" {
			return nil, fmt.Errorf("bad chain selection %q", part)
		}
		for _, span := range strings.Split(spans, ",") {
			matches := spanPattern.FindStringSubmatch(span)
			if matches == nil {
				return nil, fmt.Errorf("bad residue range %q", span)
			}
			start, _ := strconv.Atoi(matches[1])
			end, _ := strconv.Atoi(matches[2])
			if start > end {
				return nil, fmt.Errorf("residue range %q has start after end", span)
			}
			for num := start; num <= end; num++ {
				out = append(out, structure.ResidueID{Chain: chain, Num: num})
			}
		}
	}
	return out, nil
}
