package prediction

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
)

// FormatError reports a malformed confidence or structure file, or two
// input files that do not describe the same residues.
type FormatError struct {
	Path   string
	Reason string
}

func (e *FormatError) Error() string {
	if e.Path == "" {
		return "format error: " + e.Reason
	}
	return fmt.Sprintf("format error: %s: %s", e.Path, e.Reason)
}

func formatErrorf(path, format string, args ...interface{}) *FormatError {
	return &FormatError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

// Confidence holds what a confidence file says about a model. The token
// fields are only set by AlphaFold 3 outputs.
type Confidence struct {
	PAE           [][]float64
	PLDDT         []float64
	TokenChainIDs []string
	TokenResIDs   []int
}

type confidenceDoc struct {
	PAE           [][]float64 `json:"pae"`
	PLDDT         []float64   `json:"plddt"`
	TokenChainIDs []string    `json:"token_chain_ids"`
	TokenResIDs   []int       `json:"token_res_ids"`

	// AlphaFold DB, v4 onwards.
	PredictedAlignedError [][]float64 `json:"predicted_aligned_error"`

	// AlphaFold DB, v1-v3: flattened 1-based pairs.
	Residue1 []int     `json:"residue1"`
	Residue2 []int     `json:"residue2"`
	Distance []float64 `json:"distance"`
}

// ReadConfidence parses an AlphaFold 3 full-data / confidences file, a
// ColabFold scores file or an AlphaFold DB PAE document.
func ReadConfidence(path string) (*Confidence, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if isGzip(body) {
		if body, err = gunzip(body); err != nil {
			return nil, formatErrorf(path, "gzip: %v", err)
		}
	}
	return DecodeConfidence(body, path)
}

// DecodeConfidence is ReadConfidence on an in-memory document.
func DecodeConfidence(body []byte, path string) (*Confidence, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, formatErrorf(path, "empty confidence file")
	}

	var doc confidenceDoc
	if body[0] == '[' {
		var docs []confidenceDoc
		if err := json.Unmarshal(body, &docs); err != nil {
			return nil, formatErrorf(path, "invalid JSON: %v", err)
		}
		if len(docs) == 0 {
			return nil, formatErrorf(path, "empty PAE document")
		}
		doc = docs[0]
	} else if err := json.Unmarshal(body, &doc); err != nil {
		return nil, formatErrorf(path, "invalid JSON: %v", err)
	}

	conf := &Confidence{
		PLDDT:         doc.PLDDT,
		TokenChainIDs: doc.TokenChainIDs,
		TokenResIDs:   doc.TokenResIDs,
	}
	switch {
	case len(doc.PAE) > 0:
		conf.PAE = doc.PAE
	case len(doc.PredictedAlignedError) > 0:
		conf.PAE = doc.PredictedAlignedError
	case len(doc.Distance) > 0:
		pae, err := legacyPAE(doc, path)
		if err != nil {
			return nil, err
		}
		conf.PAE = pae
	default:
		return nil, formatErrorf(path, "no PAE matrix found")
	}
	if err := checkPAE(conf.PAE, path); err != nil {
		return nil, err
	}
	if len(conf.TokenChainIDs) != len(conf.TokenResIDs) {
		return nil, formatErrorf(path, "token_chain_ids has %d entries, token_res_ids has %d",
			len(conf.TokenChainIDs), len(conf.TokenResIDs))
	}
	for i, v := range conf.PLDDT {
		if math.IsNaN(v) || v < 0 || v > 100 {
			return nil, formatErrorf(path, "pLDDT %d out of range: %v", i, v)
		}
	}
	return conf, nil
}

func legacyPAE(doc confidenceDoc, path string) ([][]float64, error) {
	if len(doc.Residue1) != len(doc.Distance) || len(doc.Residue2) != len(doc.Distance) {
		return nil, formatErrorf(path, "residue1/residue2/distance lengths differ")
	}
	n := 0
	for i := range doc.Residue1 {
		n = max(n, doc.Residue1[i], doc.Residue2[i])
	}
	if n*n != len(doc.Distance) {
		return nil, formatErrorf(path, "%d PAE values do not fill a %dx%d matrix", len(doc.Distance), n, n)
	}
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, n)
	}
	for k, d := range doc.Distance {
		i, j := doc.Residue1[k]-1, doc.Residue2[k]-1
		if i < 0 || j < 0 {
			return nil, formatErrorf(path, "residue indices must be 1-based")
		}
		rows[i][j] = d
	}
	return rows, nil
}

func checkPAE(rows [][]float64, path string) error {
	n := len(rows)
	for i, row := range rows {
		if len(row) != n {
			return formatErrorf(path, "PAE matrix is not square: row %d has %d columns, want %d", i, len(row), n)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
				return formatErrorf(path, "PAE[%d][%d] is invalid: %v", i, j, v)
			}
		}
	}
	return nil
}

func isGzip(body []byte) bool {
	return len(body) >= 2 && body[0] == 0x1f && body[1] == 0x8b
}

func gunzip(body []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

func tokenKey(chain string, res int) string {
	return strings.TrimSpace(chain) + ":" + fmt.Sprint(res)
}
