package emit

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/farnunglab/afrigid/internal/rigidbody"
)

// palette is the matplotlib tab10 cycle.
var palette = []string{
	"1f77b4", "ff7f0e", "2ca02c", "d62728", "9467bd",
	"8c564b", "e377c2", "7f7f7f", "bcbd22", "17becf",
}

func color(id int) string {
	return palette[(id-1)%len(palette)]
}

// WritePyMOL writes a PyMOL script that selects and colours every rigid body.
func WritePyMOL(w io.Writer, a *rigidbody.Assignment) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# rigid bodies of %s (%s)\n", a.Prediction, a.Method)
	fmt.Fprintln(bw, "hide everything")
	fmt.Fprintln(bw, "show cartoon")
	fmt.Fprintln(bw, "color grey80")
	for _, rb := range a.Bodies {
		name := fmt.Sprintf("RB%d", rb.ID)
		fmt.Fprintf(bw, "select %s, %s\n", name, pymolSelection(rb.Segments))
		fmt.Fprintf(bw, "color 0x%s, %s\n", color(rb.ID), name)
	}
	fmt.Fprintln(bw, "deselect")
	return bw.Flush()
}

func pymolSelection(segments []rigidbody.Segment) string {
	var clauses []string
	var spans []string
	chain := ""
	flush := func() {
		if chain != "" {
			clauses = append(clauses, fmt.Sprintf("(chain %s and resi %s)", chain, strings.Join(spans, "+")))
		}
	}
	for _, s := range segments {
		if s.Chain != chain {
			flush()
			chain = s.Chain
			spans = nil
		}
		spans = append(spans, pymolResi(s.Start)+"-"+pymolResi(s.End))
	}
	flush()
	return strings.Join(clauses, " or ")
}

// pymolResi escapes negative residue numbers, which PyMOL otherwise reads
// as range separators.
func pymolResi(num int) string {
	if num < 0 {
		return fmt.Sprintf("\\%d", num)
	}
	return fmt.Sprint(num)
}

// WriteChimeraX writes a ChimeraX command script naming and colouring every
// rigid body.
func WriteChimeraX(w io.Writer, a *rigidbody.Assignment) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# rigid bodies of %s (%s)\n", a.Prediction, a.Method)
	fmt.Fprintln(bw, "color lightgray")
	for _, rb := range a.Bodies {
		name := fmt.Sprintf("RB%d", rb.ID)
		fmt.Fprintf(bw, "name %s %s\n", name, chimeraxSpec(rb.Segments))
		fmt.Fprintf(bw, "color %s #%s\n", name, color(rb.ID))
	}
	return bw.Flush()
}

// chimeraxSpec renders segments as "/A:1-10,20-30 /B:5-40". ChimeraX reads a
// leading minus inside a range as the separator, so negative residue numbers
// are listed one by one.
func chimeraxSpec(segments []rigidbody.Segment) string {
	var parts []string
	last := ""
	for _, seg := range segments {
		span := chimeraxSpan(seg.Start, seg.End)
		if seg.Chain == last {
			parts[len(parts)-1] += "," + span
			continue
		}
		parts = append(parts, "/"+seg.Chain+":"+span)
		last = seg.Chain
	}
	return strings.Join(parts, " ")
}

func chimeraxSpan(start, end int) string {
	var nums []string
	for ; start < 0 && start <= end; start++ {
		nums = append(nums, fmt.Sprint(start))
	}
	switch {
	case start > end:
	case start == end:
		nums = append(nums, fmt.Sprint(start))
	default:
		nums = append(nums, fmt.Sprintf("%d-%d", start, end))
	}
	return strings.Join(nums, ",")
}
