package emit

import (
	"bytes"
	"fmt"

	"github.com/farnunglab/afrigid/internal/prediction"
	"github.com/farnunglab/afrigid/internal/rigidbody"
)

const overviewWidth = 80

var bodyChars = []rune("123456789abcdefghijklmnopqrstuvwxyz")

// Overview draws the pLDDT profile and rigid body layout of a prediction as
// fixed width text tracks, followed by a legend.
func Overview(a *rigidbody.Assignment, pred *prediction.Prediction) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s (%s): %d rigid bodies, %d/%d residues kept\n", a.Prediction, a.Method, len(a.Bodies), a.Kept(), a.Total)

	n := len(pred.Residues)
	if n == 0 {
		return buf.String()
	}
	plddt := pred.PLDDT()
	owner := make([]int, n)
	for _, rb := range a.Bodies {
		for _, i := range rb.Indices {
			owner[i] = rb.ID
		}
	}

	width := min(n, overviewWidth)
	scale := float64(n) / float64(width)
	window := func(i int) (int, int) {
		start := int(float64(i) * scale)
		end := int(float64(i+1)*scale) - 1
		return start, max(start, end)
	}

	buf.WriteString("Position: ")
	for i := 0; i < width; i++ {
		if i%20 == 0 {
			buf.WriteString("|")
		} else {
			buf.WriteString("-")
		}
	}
	buf.WriteString("\n")

	buf.WriteString("pLDDT:    ")
	for i := 0; i < width; i++ {
		start, end := window(i)
		buf.WriteString(plddtChar(avgWindow(plddt, start, end)))
	}
	buf.WriteString("\n")

	buf.WriteString("Low:      ")
	for i := 0; i < width; i++ {
		start, end := window(i)
		low := false
		for j := start; j <= end && j < n; j++ {
			if plddt[j] < a.Filter.PLDDTCutoff {
				low = true
				break
			}
		}
		if low {
			buf.WriteString("#")
		} else {
			buf.WriteString(".")
		}
	}
	buf.WriteString("\n")

	buf.WriteString("Bodies:   ")
	for i := 0; i < width; i++ {
		start, end := window(i)
		buf.WriteRune(bodyChar(dominant(owner, start, end)))
	}
	buf.WriteString("\n")

	for _, rb := range a.Bodies {
		fmt.Fprintf(&buf, "\n  [%c] RB%-3d %4d res  pLDDT %5.1f  PAE %5.2f  %s",
			bodyChar(rb.ID), rb.ID, rb.Size(), rb.MeanPLDDT, rb.MeanPAE, rigidbody.FormatSegments(rb.Segments))
	}
	return buf.String()
}

// dominant returns the most common non-zero owner in [start, end], or 0.
func dominant(owner []int, start, end int) int {
	counts := map[int]int{}
	best, bestCount := 0, 0
	for j := start; j <= end && j < len(owner); j++ {
		id := owner[j]
		if id == 0 {
			continue
		}
		counts[id]++
		if counts[id] > bestCount || (counts[id] == bestCount && id < best) {
			best, bestCount = id, counts[id]
		}
	}
	return best
}

func bodyChar(id int) rune {
	switch {
	case id <= 0:
		return ' '
	case id <= len(bodyChars):
		return bodyChars[id-1]
	}
	return '*'
}

func plddtChar(avg float64) string {
	chars := []string{" ", ".", ":", "-", "=", "+", "*", "#"}
	if avg == 0 {
		return " "
	}
	idx := int(avg / 100 * float64(len(chars)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(chars) {
		idx = len(chars) - 1
	}
	return chars[idx]
}

func avgWindow(values []float64, start, end int) float64 {
	start = max(0, start)
	end = min(len(values)-1, end)
	if start > end {
		return 0
	}
	sum := 0.0
	for i := start; i <= end; i++ {
		sum += values[i]
	}
	return sum / float64(end-start+1)
}
