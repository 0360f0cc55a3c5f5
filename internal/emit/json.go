package emit

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/farnunglab/afrigid/internal/prediction"
	"github.com/farnunglab/afrigid/internal/rigidbody"
	"github.com/farnunglab/afrigid/internal/structure"
)

// Document is the JSON listing of one assignment.
type Document struct {
	RunID       string         `json:"run_id"`
	Prediction  string         `json:"prediction"`
	Method      string         `json:"method"`
	Structure   string         `json:"structure,omitempty"`
	Confidence  string         `json:"confidence,omitempty"`
	Params      Params         `json:"params"`
	Summary     Summary        `json:"summary"`
	RigidBodies []BodyDocument `json:"rigid_bodies"`
}

// Params are the thresholds the assignment was computed with.
type Params struct {
	PLDDTCutoff float64 `json:"plddt_cutoff"`
	PAECutoff   float64 `json:"pae_cutoff"`
	PAEPower    float64 `json:"pae_power"`
	Resolution  float64 `json:"resolution"`
	MinSize     int     `json:"min_size"`
}

// Summary counts residues of the assignment.
type Summary struct {
	Residues    int `json:"residues"`
	Kept        int `json:"kept"`
	LowPLDDT    int `json:"low_plddt"`
	RigidBodies int `json:"rigid_bodies"`
}

// BodyDocument is one rigid body of a Document.
type BodyDocument struct {
	ID        int                   `json:"id"`
	Size      int                   `json:"size"`
	MeanPLDDT float64               `json:"mean_plddt"`
	MeanPAE   float64               `json:"mean_pae"`
	Segments  []rigidbody.Segment   `json:"segments"`
	Residues  []structure.ResidueID `json:"residues"`
}

// NewDocument builds the JSON listing of a.
func NewDocument(a *rigidbody.Assignment, pred *prediction.Prediction, meta Meta) Document {
	doc := Document{
		RunID:      meta.RunID,
		Prediction: a.Prediction,
		Method:     string(a.Method),
		Params: Params{
			PLDDTCutoff: a.Filter.PLDDTCutoff,
			PAECutoff:   meta.Segment.Cutoff,
			PAEPower:    meta.Segment.Power,
			Resolution:  meta.Segment.Resolution,
			MinSize:     a.Filter.MinSize,
		},
		Summary: Summary{
			Residues:    a.Total,
			Kept:        a.Kept(),
			LowPLDDT:    len(a.Dropped),
			RigidBodies: len(a.Bodies),
		},
		RigidBodies: []BodyDocument{},
	}
	if pred != nil {
		doc.Structure = pred.StructurePath
		doc.Confidence = pred.ConfidencePath
	}
	for _, rb := range a.Bodies {
		body := BodyDocument{
			ID:        rb.ID,
			Size:      rb.Size(),
			MeanPLDDT: rb.MeanPLDDT,
			MeanPAE:   rb.MeanPAE,
			Segments:  rb.Segments,
		}
		for _, r := range rb.Residues {
			body.Residues = append(body.Residues, r.ID)
		}
		doc.RigidBodies = append(doc.RigidBodies, body)
	}
	return doc
}

// WriteJSON writes payload as indented JSON.
func WriteJSON(w io.Writer, payload interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

// ReadJSON parses a Document and returns its listing.
func ReadJSON(r io.Reader) (Listing, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode rigid body JSON: %w", err)
	}
	l := Listing{}
	for _, body := range doc.RigidBodies {
		if _, ok := l[body.ID]; ok {
			return nil, fmt.Errorf("rigid body %d listed twice", body.ID)
		}
		l[body.ID] = append([]structure.ResidueID{}, body.Residues...)
	}
	l.sort()
	return l, nil
}
