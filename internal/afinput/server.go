package afinput

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrJobsPerFile is returned for a jobs-per-file value outside 1..100.
var ErrJobsPerFile = errors.New("jobs per file must be within 1 and 100")

// DefaultJobsPerFile is how many AF3 jobs share one JSON file.
const DefaultJobsPerFile = 20

// seedMultiplier bounds drawn seeds to [1, seedMultiplier*n).
const seedMultiplier = 10

// Builder resolves targets into job inputs.
type Builder struct {
	Sequences Sequences
	Rand      *rand.Rand
	Logger    *slog.Logger
}

// NewBuilder returns a builder with a time seeded random source.
func NewBuilder(seqs Sequences) *Builder {
	return &Builder{
		Sequences: seqs,
		Rand:      rand.New(rand.NewSource(time.Now().UnixNano())),
		Logger:    slog.Default().With("component", "afinput"),
	}
}

// ServerJob is one job in the AlphaFold Server JSON format.
type ServerJob struct {
	Name       string           `json:"name"`
	ModelSeeds []int            `json:"modelSeeds"`
	Sequences  []ServerSequence `json:"sequences"`
}

// ServerSequence holds exactly one of its fields.
type ServerSequence struct {
	ProteinChain *ServerProtein     `json:"proteinChain,omitempty"`
	DNASequence  *ServerNucleicAcid `json:"dnaSequence,omitempty"`
	RNASequence  *ServerNucleicAcid `json:"rnaSequence,omitempty"`
	Ligand       *ServerLigand      `json:"ligand,omitempty"`
	Ion          *ServerIon         `json:"ion,omitempty"`
}

type ServerProtein struct {
	Sequence             string         `json:"sequence"`
	Glycans              []ServerGlycan `json:"glycans"`
	Modifications        []ServerPTM    `json:"modifications"`
	Count                int            `json:"count"`
	MaxTemplateDate      string         `json:"maxTemplateDate,omitempty"`
	UseStructureTemplate bool           `json:"useStructureTemplate"`
}

type ServerGlycan struct {
	Residues string `json:"residues"`
	Position int    `json:"position"`
}

type ServerPTM struct {
	Type     string `json:"ptmType"`
	Position int    `json:"ptmPosition"`
}

type ServerNucleicAcid struct {
	Sequence      string               `json:"sequence"`
	Modifications []ServerModification `json:"modifications"`
	Count         int                  `json:"count"`
}

type ServerModification struct {
	Type     string `json:"modificationType"`
	Position int    `json:"basePosition"`
}

type ServerLigand struct {
	Ligand string `json:"ligand"`
	Count  int    `json:"count"`
}

type ServerIon struct {
	Ion   string `json:"ion"`
	Count int    `json:"count"`
}

func serverSequence(c *Chain) ServerSequence {
	switch c.Type {
	case ProteinChain:
		p := &ServerProtein{
			Sequence:             c.Sequence,
			Glycans:              []ServerGlycan{},
			Modifications:        []ServerPTM{},
			Count:                c.Count,
			MaxTemplateDate:      c.MaxTemplateDate,
			UseStructureTemplate: c.UseTemplate,
		}
		for _, g := range c.Glycans {
			p.Glycans = append(p.Glycans, ServerGlycan{Residues: g.Code, Position: g.Position})
		}
		for _, m := range c.Modifications {
			p.Modifications = append(p.Modifications, ServerPTM{Type: m.Code, Position: m.Position})
		}
		return ServerSequence{ProteinChain: p}
	case DNASequence, RNASequence:
		na := &ServerNucleicAcid{Sequence: c.Sequence, Modifications: []ServerModification{}, Count: c.Count}
		for _, m := range c.Modifications {
			na.Modifications = append(na.Modifications, ServerModification{Type: m.Code, Position: m.Position})
		}
		if c.Type == DNASequence {
			return ServerSequence{DNASequence: na}
		}
		return ServerSequence{RNASequence: na}
	case Ligand:
		return ServerSequence{Ligand: &ServerLigand{Ligand: c.Name, Count: c.Count}}
	}
	return ServerSequence{Ion: &ServerIon{Ion: c.Name, Count: c.Count}}
}

// chains resolves every entity of job.
func (b *Builder) chains(job Job) ([]*Chain, error) {
	var out []*Chain
	for _, e := range job.Entities {
		c, err := b.Sequences.Resolve(e)
		if err != nil {
			return nil, err
		}
		if c.templateIgnored {
			b.Logger.Warn("maxTemplateDate ignored without structure templates", "entity", c.Name)
		}
		out = append(out, c)
	}
	return out, nil
}

// seeds draws n distinct seeds from [1, 10n).
func (b *Builder) seeds(n int) []int {
	if n == 0 {
		return []int{}
	}
	perm := b.Rand.Perm(seedMultiplier*n - 1)[:n]
	out := make([]int, n)
	for i, v := range perm {
		out[i] = v + 1
	}
	return out
}

// ServerJobs builds the AF3 jobs of a cycle, one per model seed. A job
// without seeds is kept whole and AlphaFold picks the seed.
func (b *Builder) ServerJobs(cycle Cycle) ([]ServerJob, error) {
	var jobs []ServerJob
	for i, job := range cycle.Jobs {
		chains, err := b.chains(job)
		if err != nil {
			return nil, fmt.Errorf("cycle %s job %d: %w", cycle.Name, i+1, err)
		}
		name := job.Name
		if name == "" {
			fragments := make([]string, len(chains))
			for j, c := range chains {
				fragments[j] = c.Fragment()
			}
			name = strings.Join(fragments, "_")
		}
		sequences := make([]ServerSequence, len(chains))
		for j, c := range chains {
			sequences[j] = serverSequence(c)
		}

		var seeds []int
		if job.ModelSeeds != nil {
			seeds = job.ModelSeeds.List
			if seeds == nil {
				seeds = b.seeds(job.ModelSeeds.Count)
			}
		}
		if len(seeds) == 0 {
			jobs = append(jobs, ServerJob{Name: name, ModelSeeds: []int{}, Sequences: sequences})
			continue
		}
		for _, seed := range seeds {
			jobs = append(jobs, ServerJob{
				Name:       fmt.Sprintf("%s_%d", name, seed),
				ModelSeeds: []int{seed},
				Sequences:  sequences,
			})
		}
	}
	return jobs, nil
}

// WriteServerJobs splits jobs into dir/<cycle>_set_<i>.json files of at most
// perFile jobs each.
func WriteServerJobs(dir, cycle string, jobs []ServerJob, perFile int) ([]string, error) {
	if perFile < 1 || perFile > 100 {
		return nil, fmt.Errorf("%w: %d", ErrJobsPerFile, perFile)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	var files []string
	for set, start := 0, 0; start < len(jobs); set, start = set+1, start+perFile {
		end := min(start+perFile, len(jobs))
		data, err := json.MarshalIndent(jobs[start:end], "", "  ")
		if err != nil {
			return nil, err
		}
		data = append(data, '\n')
		path := filepath.Join(dir, fmt.Sprintf("%s_set_%d.json", cycle, set))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, err
		}
		files = append(files, path)
	}
	return files, nil
}
