// Package selection reads the residue selection file and locates the
// prediction files it refers to.
package selection

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/farnunglab/afrigid/internal/prediction"
	"github.com/farnunglab/afrigid/internal/structure"
)

var (
	// ErrNoPredictions is returned for a selection file without entries.
	ErrNoPredictions = errors.New("selection lists no predictions")
	// ErrNotFound is returned when prediction files cannot be located.
	ErrNotFound = errors.New("prediction files not found")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Range selects residues start..end (inclusive) of a chain. Missing bounds
// are open.
type Range struct {
	Chain string `json:"chain" validate:"required"`
	Start *int   `json:"start,omitempty"`
	End   *int   `json:"end,omitempty"`
}

// Contains reports whether id falls within the range.
func (r Range) Contains(id structure.ResidueID) bool {
	if id.Chain != r.Chain {
		return false
	}
	if r.Start != nil && id.Num < *r.Start {
		return false
	}
	if r.End != nil && id.Num > *r.End {
		return false
	}
	return true
}

// Entry is one prediction to process.
type Entry struct {
	Name       string  `json:"name" validate:"required"`
	Structure  string  `json:"structure,omitempty"`
	Confidence string  `json:"confidence,omitempty"`
	Select     []Range `json:"select,omitempty" validate:"dive"`
}

type document struct {
	Predictions []Entry `json:"predictions"`
}

// Read parses a selection file. Both {"predictions": [...]} and a bare
// array of entries are accepted.
func Read(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, path)
}

// Parse is Read on an in-memory document.
func Parse(data []byte, path string) ([]Entry, error) {
	data = bytes.TrimSpace(data)
	var entries []Entry
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, &prediction.FormatError{Path: path, Reason: err.Error()}
		}
	} else {
		var doc document
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, &prediction.FormatError{Path: path, Reason: err.Error()}
		}
		entries = doc.Predictions
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoPredictions)
	}

	seen := map[string]bool{}
	for i, e := range entries {
		if err := validate.Struct(e); err != nil {
			return nil, &prediction.FormatError{Path: path, Reason: fmt.Sprintf("prediction %d: %v", i, err)}
		}
		if seen[e.Name] {
			return nil, &prediction.FormatError{Path: path, Reason: fmt.Sprintf("prediction %q listed twice", e.Name)}
		}
		seen[e.Name] = true
		for _, r := range e.Select {
			if r.Start != nil && r.End != nil && *r.Start > *r.End {
				return nil, &prediction.FormatError{Path: path, Reason: fmt.Sprintf("prediction %q: chain %s range %d-%d is reversed", e.Name, r.Chain, *r.Start, *r.End)}
			}
		}
	}
	return entries, nil
}

type layout struct {
	structure  string
	confidence string
}

// layouts are the file naming schemes of the supported prediction sources,
// tried in order. %s is the prediction name.
var layouts = []layout{
	{"fold_%s_model_0.cif", "fold_%s_full_data_0.json"},
	{"%s_model.cif", "%s_confidences.json"},
	{"%s_unrelaxed_rank_001_*.pdb", "%s_scores_rank_001_*.json"},
	{"AF-%s-F1-model_v*.pdb", "AF-%s-F1-predicted_aligned_error_v*.json"},
}

// Resolve returns the structure and confidence paths of e. Explicit paths
// are taken relative to dir; missing ones are discovered from the name.
func (e Entry) Resolve(dir string) (string, string, error) {
	structurePath := joinIfRelative(dir, e.Structure)
	confidencePath := joinIfRelative(dir, e.Confidence)
	if structurePath != "" && confidencePath != "" {
		for _, p := range []string{structurePath, confidencePath} {
			if _, err := os.Stat(p); err != nil {
				return "", "", fmt.Errorf("%s: %w: %v", e.Name, ErrNotFound, err)
			}
		}
		return structurePath, confidencePath, nil
	}

	names := []string{e.Name}
	if lower := strings.ToLower(e.Name); lower != e.Name {
		names = append(names, lower)
	}
	for _, l := range layouts {
		for _, name := range names {
			if s, c := l.match(dir, name, structurePath, confidencePath); s != "" && c != "" {
				return s, c, nil
			}
		}
	}
	return "", "", fmt.Errorf("%s: %w in %s", e.Name, ErrNotFound, dir)
}

// match returns the newest structure of the layout whose confidence file
// exists with the same wildcard text, so a model is never paired with the
// confidence of another version or rank. An explicit path on either side is
// kept and only the other side is discovered.
func (l layout) match(dir, name, structurePath, confidencePath string) (string, string) {
	structurePattern := filepath.Join(dir, fmt.Sprintf(l.structure, name))
	confidencePattern := filepath.Join(dir, fmt.Sprintf(l.confidence, name))
	switch {
	case structurePath != "":
		return structurePath, newest(confidencePattern)
	case confidencePath != "":
		return newest(structurePattern), confidencePath
	}
	for _, s := range byVersion(structurePattern) {
		c := strings.Replace(confidencePattern, "*", wildcard(structurePattern, s), 1)
		if _, err := os.Stat(c); err == nil {
			return s, c
		}
	}
	return "", ""
}

// newest returns the match of pattern with the highest version.
func newest(pattern string) string {
	matches := byVersion(pattern)
	if len(matches) == 0 {
		return ""
	}
	return matches[0]
}

// byVersion returns the matches of pattern, highest wildcard first. Numeric
// wildcards (AlphaFold DB versions) compare as integers.
func byVersion(pattern string) []string {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil
	}
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := wildcard(pattern, matches[i]), wildcard(pattern, matches[j])
		na, errA := strconv.Atoi(a)
		nb, errB := strconv.Atoi(b)
		if errA == nil && errB == nil {
			return na > nb
		}
		return a > b
	})
	return matches
}

// wildcard returns the text of path matched by the single * of pattern.
func wildcard(pattern, path string) string {
	i := strings.Index(pattern, "*")
	if i < 0 {
		return ""
	}
	end := len(path) - (len(pattern) - i - 1)
	if end < i {
		return ""
	}
	return path[i:end]
}

func joinIfRelative(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// Indices returns the indices of residues selected by e, in residue order.
// Without ranges every residue is selected.
func (e Entry) Indices(residues []structure.Residue) ([]int, error) {
	var out []int
	for i, r := range residues {
		if len(e.Select) == 0 {
			out = append(out, i)
			continue
		}
		for _, rng := range e.Select {
			if rng.Contains(r.ID) {
				out = append(out, i)
				break
			}
		}
	}
	if len(out) == 0 {
		return nil, &prediction.FormatError{Path: e.Name, Reason: "selection matches no residue"}
	}
	return out, nil
}
