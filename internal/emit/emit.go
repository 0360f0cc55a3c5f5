// Package emit writes rigid body assignments to disk and reads the listing
// formats back.
package emit

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/farnunglab/afrigid/internal/prediction"
	"github.com/farnunglab/afrigid/internal/rigidbody"
	"github.com/farnunglab/afrigid/internal/segment"
	"github.com/farnunglab/afrigid/internal/structure"
)

// Format is a residue listing format.
type Format string

const (
	FormatText Format = "txt"
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// Viz is a molecular viewer script flavour.
type Viz string

const (
	VizPyMOL    Viz = "pymol"
	VizChimeraX Viz = "chimerax"
)

// ParseFormats validates listing format names.
func ParseFormats(names []string) ([]Format, error) {
	var out []Format
	for _, name := range names {
		switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
		case FormatText, FormatJSON, FormatCSV:
			out = append(out, f)
		case "":
		default:
			return nil, fmt.Errorf("unknown output format %q (want txt, json or csv)", name)
		}
	}
	return out, nil
}

// ParseViz validates viewer names. "none" disables scripts.
func ParseViz(names []string) ([]Viz, error) {
	var out []Viz
	for _, name := range names {
		switch v := Viz(strings.ToLower(strings.TrimSpace(name))); v {
		case VizPyMOL, VizChimeraX:
			out = append(out, v)
		case "", "none":
		default:
			return nil, fmt.Errorf("unknown visualization %q (want pymol or chimerax)", name)
		}
	}
	return out, nil
}

// Meta is run metadata recorded in the JSON listing.
type Meta struct {
	RunID   string
	Segment segment.Params
}

// Writer writes every configured output of an assignment into Dir.
type Writer struct {
	Dir     string
	Formats []Format
	Viz     []Viz
	Meta    Meta
	Logger  *slog.Logger
}

// Prefix is the file name prefix shared by all outputs of one assignment.
func Prefix(a *rigidbody.Assignment) string {
	return fmt.Sprintf("%s_%s_", a.Prediction, a.Method)
}

// Write emits the listings, viewer scripts and ASCII overview. It returns
// the paths written.
func (w *Writer) Write(a *rigidbody.Assignment, pred *prediction.Prediction) ([]string, error) {
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	type output struct {
		name  string
		write func(f *os.File) error
	}
	var outputs []output
	for _, format := range w.Formats {
		switch format {
		case FormatText:
			outputs = append(outputs, output{"rigid_bodies.txt", func(f *os.File) error { return WriteText(f, a) }})
		case FormatJSON:
			outputs = append(outputs, output{"rigid_bodies.json", func(f *os.File) error { return WriteJSON(f, NewDocument(a, pred, w.Meta)) }})
		case FormatCSV:
			outputs = append(outputs, output{"rigid_bodies.csv", func(f *os.File) error { return WriteCSV(f, a) }})
		}
	}
	for _, viz := range w.Viz {
		switch viz {
		case VizPyMOL:
			outputs = append(outputs, output{"rigid_bodies.pml", func(f *os.File) error { return WritePyMOL(f, a) }})
		case VizChimeraX:
			outputs = append(outputs, output{"rigid_bodies.cxc", func(f *os.File) error { return WriteChimeraX(f, a) }})
		}
	}
	outputs = append(outputs, output{"overview.txt", func(f *os.File) error {
		_, err := f.WriteString(Overview(a, pred) + "\n")
		return err
	}})

	var written []string
	for _, out := range outputs {
		path := filepath.Join(w.Dir, Prefix(a)+out.name)
		if err := writeFile(path, out.write); err != nil {
			return written, err
		}
		logger.Debug("wrote output", "path", path)
		written = append(written, path)
	}
	return written, nil
}

func writeFile(path string, write func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// Listing maps rigid body IDs to their residues, as recovered from any of
// the listing formats.
type Listing map[int][]structure.ResidueID

// ListingOf builds the listing of an assignment.
func ListingOf(a *rigidbody.Assignment) Listing {
	l := Listing{}
	for _, rb := range a.Bodies {
		for _, r := range rb.Residues {
			l[rb.ID] = append(l[rb.ID], r.ID)
		}
	}
	l.sort()
	return l
}

func (l Listing) sort() {
	for id := range l {
		ids := l[id]
		sort.Slice(ids, func(i, j int) bool {
			if ids[i].Chain != ids[j].Chain {
				return ids[i].Chain < ids[j].Chain
			}
			return ids[i].Num < ids[j].Num
		})
	}
}

// Residues returns the union of all rigid bodies.
func (l Listing) Residues() map[structure.ResidueID]bool {
	out := map[structure.ResidueID]bool{}
	for _, ids := range l {
		for _, id := range ids {
			out[id] = true
		}
	}
	return out
}
