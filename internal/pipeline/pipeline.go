// Package pipeline runs rigid body extraction over every prediction of a
// selection file.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/farnunglab/afrigid/internal/config"
	"github.com/farnunglab/afrigid/internal/emit"
	"github.com/farnunglab/afrigid/internal/prediction"
	"github.com/farnunglab/afrigid/internal/rigidbody"
	"github.com/farnunglab/afrigid/internal/segment"
	"github.com/farnunglab/afrigid/internal/selection"
)

// SummaryFile is written into the output directory after a run.
const SummaryFile = "run_summary.json"

// Runner processes predictions one at a time.
type Runner struct {
	cfg            *config.Config
	predictionsDir string
	outputDir      string
	formats        []emit.Format
	viz            []emit.Viz
	runID          string
	stdout         io.Writer
	logger         *slog.Logger
	now            func() time.Time
}

// Option customises a Runner.
type Option func(*Runner)

// WithStdout redirects the summary tables.
func WithStdout(w io.Writer) Option {
	return func(r *Runner) { r.stdout = w }
}

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithRunID fixes the run ID instead of generating one.
func WithRunID(id string) Option {
	return func(r *Runner) { r.runID = id }
}

// New validates the output settings of cfg and returns a Runner.
func New(cfg *config.Config, predictionsDir, outputDir string, opts ...Option) (*Runner, error) {
	formats, err := emit.ParseFormats(cfg.Formats)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	viz, err := emit.ParseViz(cfg.Viz)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	r := &Runner{
		cfg:            cfg,
		predictionsDir: predictionsDir,
		outputDir:      outputDir,
		formats:        formats,
		viz:            viz,
		runID:          uuid.NewString(),
		stdout:         os.Stdout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With("component", "pipeline", "run_id", r.runID)
	return r, nil
}

// RunID identifies this run in logs and outputs.
func (r *Runner) RunID() string { return r.runID }

// Summary is the content of run_summary.json.
type Summary struct {
	RunID       string              `json:"run_id"`
	StartedAt   time.Time           `json:"started_at"`
	FinishedAt  time.Time           `json:"finished_at"`
	Params      emit.Params         `json:"params"`
	Method      string              `json:"method"`
	Predictions []PredictionSummary `json:"predictions"`
}

// PredictionSummary describes the outputs of one prediction.
type PredictionSummary struct {
	Name       string          `json:"name"`
	Structure  string          `json:"structure"`
	Confidence string          `json:"confidence"`
	Residues   int             `json:"residues"`
	Methods    []MethodSummary `json:"methods"`
}

// MethodSummary describes one segmentation of a prediction.
type MethodSummary struct {
	Method      string   `json:"method"`
	RigidBodies int      `json:"rigid_bodies"`
	Kept        int      `json:"kept"`
	LowPLDDT    int      `json:"low_plddt"`
	Modularity  float64  `json:"modularity"`
	Files       []string `json:"files"`
}

// Run processes entries in order and writes the run summary. The first
// failing prediction stops the run.
func (r *Runner) Run(ctx context.Context, entries []selection.Entry) (*Summary, error) {
	if len(entries) == 0 {
		return nil, selection.ErrNoPredictions
	}
	summary := &Summary{
		RunID:     r.runID,
		StartedAt: r.now().UTC(),
		Params:    r.params(),
		Method:    r.cfg.Method,
	}
	r.logger.Info("run started", "predictions", len(entries), "method", r.cfg.Method,
		"plddt_cutoff", r.cfg.PLDDTCutoff, "pae_cutoff", r.cfg.PAECutoff)

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ps, err := r.Process(entry)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", entry.Name, err)
		}
		summary.Predictions = append(summary.Predictions, *ps)
	}

	summary.FinishedAt = r.now().UTC()
	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(r.outputDir, SummaryFile)
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if err := emit.WriteJSON(f, summary); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	r.logger.Info("run finished", "summary", path)
	return summary, nil
}

func (r *Runner) params() emit.Params {
	p := r.cfg.SegmentParams()
	return emit.Params{
		PLDDTCutoff: r.cfg.PLDDTCutoff,
		PAECutoff:   p.Cutoff,
		PAEPower:    p.Power,
		Resolution:  p.Resolution,
		MinSize:     r.cfg.MinSize,
	}
}

// Process loads, segments, filters and emits one prediction.
func (r *Runner) Process(entry selection.Entry) (*PredictionSummary, error) {
	logger := r.logger.With("prediction", entry.Name)

	structurePath, confidencePath, err := entry.Resolve(r.predictionsDir)
	if err != nil {
		return nil, err
	}
	pred, err := prediction.Load(entry.Name, structurePath, confidencePath)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded prediction", "structure", structurePath, "confidence", confidencePath, "residues", len(pred.Residues))

	if len(entry.Select) > 0 {
		indices, err := entry.Indices(pred.Residues)
		if err != nil {
			return nil, err
		}
		pred = pred.Subset(indices)
		logger.Debug("applied selection", "residues", len(pred.Residues))
	}

	ps := &PredictionSummary{
		Name:       entry.Name,
		Structure:  structurePath,
		Confidence: confidencePath,
		Residues:   len(pred.Residues),
	}
	params := r.cfg.SegmentParams()
	filter := r.cfg.Filter()
	var assignments []*rigidbody.Assignment
	for _, method := range r.cfg.Methods() {
		domains, err := segment.Segment(pred.PAE, method, params)
		if err != nil {
			return nil, err
		}
		a, err := filter.Apply(pred, domains, method)
		if err != nil {
			return nil, err
		}
		writer := &emit.Writer{
			Dir:     filepath.Join(r.outputDir, entry.Name),
			Formats: r.formats,
			Viz:     r.viz,
			Meta:    emit.Meta{RunID: r.runID, Segment: params},
			Logger:  logger,
		}
		files, err := writer.Write(a, pred)
		if err != nil {
			return nil, err
		}
		q := segment.Modularity(pred.PAE, domains, params)
		logger.Info("segmented", "method", method, "domains", len(domains), "rigid_bodies", len(a.Bodies),
			"kept", a.Kept(), "low_plddt", len(a.Dropped), "modularity", q)

		ps.Methods = append(ps.Methods, MethodSummary{
			Method:      string(method),
			RigidBodies: len(a.Bodies),
			Kept:        a.Kept(),
			LowPLDDT:    len(a.Dropped),
			Modularity:  q,
			Files:       files,
		})
		assignments = append(assignments, a)
	}
	printSummary(r.stdout, entry.Name, len(pred.Residues), assignments)
	return ps, nil
}

func printSummary(w io.Writer, name string, residues int, assignments []*rigidbody.Assignment) {
	title := fmt.Sprintf("RIGID BODIES FOR %s (%d residues)", name, residues)
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("=", len(title)))
	fmt.Fprintf(w, "%-7s  %-6s  %-5s  %-9s  %s\n", "Method", "Bodies", "Kept", "Low pLDDT", "Largest")
	fmt.Fprintf(w, "%-7s  %-6s  %-5s  %-9s  %s\n", "-------", "------", "-----", "---------", "-------")
	for _, a := range assignments {
		largest := 0
		for _, rb := range a.Bodies {
			largest = max(largest, rb.Size())
		}
		fmt.Fprintf(w, "%-7s  %-6d  %-5d  %-9d  %d\n", a.Method, len(a.Bodies), a.Kept(), len(a.Dropped), largest)
	}
	for _, a := range assignments {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s:\n", strings.ToUpper(string(a.Method)))
		for _, rb := range a.Bodies {
			fmt.Fprintf(w, "  RB%-3d %s\n", rb.ID, rigidbody.FormatSegments(rb.Segments))
		}
	}
	fmt.Fprintln(w)
}
