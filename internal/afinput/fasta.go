package afinput

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/TuftsBCB/io/fasta"
	"github.com/TuftsBCB/seq"
)

// Mode selects the kind of job input written.
type Mode string

const (
	ModeAF3       Mode = "af3"
	ModeAF2       Mode = "af2"
	ModeColabFold Mode = "colabfold"
)

// ParseMode accepts af3, af2 or colabfold.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeAF3, ModeAF2, ModeColabFold:
		return m, nil
	}
	return "", fmt.Errorf("unknown mode %q (want af3, af2 or colabfold)", s)
}

// FastaJob is one AF2 or ColabFold job.
type FastaJob struct {
	Name    string
	Records []seq.Sequence
}

// FastaJobs builds the AF2 jobs of a cycle. Each protein copy becomes a
// record named <name>_<copy>_<start>to<end>. Other entity types are skipped.
func (b *Builder) FastaJobs(cycle Cycle) ([]FastaJob, error) {
	fb := *b
	fb.Sequences.NamesFirst = true
	var jobs []FastaJob
	for i, job := range cycle.Jobs {
		var proteins []Entity
		for _, e := range job.Entities {
			if e.Type == ProteinChain {
				proteins = append(proteins, e)
			}
		}
		if len(proteins) < len(job.Entities) {
			b.Logger.Warn("AF2 and ColabFold take protein chains only, skipping other entities",
				"cycle", cycle.Name, "job", i+1)
		}
		if len(proteins) == 0 {
			b.Logger.Warn("job has no protein chains, not written", "cycle", cycle.Name, "job", i+1)
			continue
		}
		chains, err := fb.chains(Job{Entities: proteins})
		if err != nil {
			return nil, fmt.Errorf("cycle %s job %d: %w", cycle.Name, i+1, err)
		}

		name := job.Name
		if name == "" {
			name = fastaJobName(chains)
		}
		fj := FastaJob{Name: name}
		seen := map[string]bool{}
		for _, c := range chains {
			for copyNum := 1; copyNum <= c.Count; copyNum++ {
				header := fmt.Sprintf("%s_%d_%dto%d", c.Name, copyNum, c.Start, c.End)
				if seen[header] {
					continue
				}
				seen[header] = true
				fj.Records = append(fj.Records, seq.NewSequenceString(header, c.Sequence))
			}
		}
		jobs = append(jobs, fj)
	}
	return jobs, nil
}

// fastaJobName joins one fragment per distinct chain and range, carrying the
// largest copy number seen for it.
func fastaJobName(chains []*Chain) string {
	var order []string
	counts := map[string]int{}
	names := map[string]*Chain{}
	for _, c := range chains {
		key := fmt.Sprintf("%s_%dto%d", c.Name, c.Start, c.End)
		if _, ok := counts[key]; !ok {
			order = append(order, key)
			names[key] = c
		}
		counts[key] = max(counts[key], c.Count)
	}
	fragments := make([]string, len(order))
	for i, key := range order {
		c := names[key]
		fragments[i] = fmt.Sprintf("%s_%d_%dto%d", c.Name, counts[key], c.Start, c.End)
	}
	return strings.Join(fragments, "_")
}

// ColabFold merges the records of an AF2 job into one ":" separated record
// named after the job.
func (j FastaJob) ColabFold() FastaJob {
	parts := make([]string, len(j.Records))
	for i, r := range j.Records {
		parts[i] = string(r.Bytes())
	}
	return FastaJob{
		Name:    j.Name,
		Records: []seq.Sequence{seq.NewSequenceString(j.Name, strings.Join(parts, ":"))},
	}
}

// WriteFasta writes the job to dir/<name>.fasta, one unwrapped line per
// sequence.
func WriteFasta(dir string, job FastaJob) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, job.Name+".fasta")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	w := fasta.NewWriter(f)
	w.Columns = 0
	if err := w.WriteAll(job.Records); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}

// Write builds every cycle in mode and writes it under outDir/<cycle>/.
// perFile only applies to af3.
func (b *Builder) Write(cycles []Cycle, mode Mode, outDir string, perFile int) ([]string, error) {
	var files []string
	for _, cycle := range cycles {
		dir := filepath.Join(outDir, cycle.Name)
		switch mode {
		case ModeAF3:
			jobs, err := b.ServerJobs(cycle)
			if err != nil {
				return nil, err
			}
			written, err := WriteServerJobs(dir, cycle.Name, jobs, perFile)
			if err != nil {
				return nil, err
			}
			b.Logger.Info("wrote cycle", "cycle", cycle.Name, "jobs", len(jobs), "files", len(written))
			files = append(files, written...)
		case ModeAF2, ModeColabFold:
			jobs, err := b.FastaJobs(cycle)
			if err != nil {
				return nil, err
			}
			for _, job := range jobs {
				if mode == ModeColabFold {
					job = job.ColabFold()
				}
				path, err := WriteFasta(dir, job)
				if err != nil {
					return nil, err
				}
				files = append(files, path)
			}
			b.Logger.Info("wrote cycle", "cycle", cycle.Name, "jobs", len(jobs))
		default:
			return nil, fmt.Errorf("unknown mode %q", mode)
		}
	}
	return files, nil
}
