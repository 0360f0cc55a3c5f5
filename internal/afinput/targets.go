// Package afinput turns a targets file into AlphaFold job inputs: AlphaFold
// Server JSON for AF3, and FASTA files for AF2 and ColabFold.
package afinput

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidTargets is returned for a targets file that is not a
	// mapping of cycle names to job lists.
	ErrInvalidTargets = errors.New("invalid targets file")
	// ErrInvalidEntity is returned for entities that AlphaFold would reject.
	ErrInvalidEntity = errors.New("invalid entity")
	// ErrUnknownSequence is returned when no FASTA record matches an entity.
	ErrUnknownSequence = errors.New("unknown entity sequence")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Entity types.
const (
	ProteinChain = "proteinChain"
	DNASequence  = "dnaSequence"
	RNASequence  = "rnaSequence"
	Ligand       = "ligand"
	Ion          = "ion"
)

// DefaultMaxTemplateDate is the template cutoff used when a protein does not
// name one.
const DefaultMaxTemplateDate = "2021-09-30"

// Site is a [code, position] pair: a glycan or a modification.
type Site struct {
	Code     string
	Position int
}

// UnmarshalYAML reads the two element list form.
func (s *Site) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.SequenceNode || len(n.Content) != 2 {
		return fmt.Errorf("line %d: expected [code, position]", n.Line)
	}
	if err := n.Content[0].Decode(&s.Code); err != nil {
		return err
	}
	return n.Content[1].Decode(&s.Position)
}

// Seeds is the modelSeeds field: either a number of seeds to draw or an
// explicit list.
type Seeds struct {
	Count int
	List  []int
}

// UnmarshalYAML accepts an integer or a list of integers.
func (s *Seeds) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		if err := n.Decode(&s.Count); err != nil {
			return fmt.Errorf("line %d: modelSeeds must be an integer or a list", n.Line)
		}
		if s.Count < 0 {
			return fmt.Errorf("line %d: modelSeeds must not be negative", n.Line)
		}
		return nil
	case yaml.SequenceNode:
		return n.Decode(&s.List)
	}
	return fmt.Errorf("line %d: modelSeeds must be an integer or a list", n.Line)
}

// Entity is one chain, ligand or ion of a job.
type Entity struct {
	Name                 string `yaml:"name" validate:"required"`
	Type                 string `yaml:"type" validate:"required,oneof=proteinChain dnaSequence rnaSequence ligand ion"`
	Count                *int   `yaml:"count" validate:"omitempty,gte=1"`
	Range                []int  `yaml:"range" validate:"omitempty,len=2"`
	Glycans              []Site `yaml:"glycans"`
	Modifications        []Site `yaml:"modifications"`
	UseStructureTemplate *bool  `yaml:"useStructureTemplate"`
	MaxTemplateDate      string `yaml:"maxTemplateDate" validate:"omitempty,datetime=2006-01-02"`
}

// Copies is the entity count, 1 when unset.
func (e Entity) Copies() int {
	if e.Count == nil {
		return 1
	}
	return *e.Count
}

// Job is one prediction. Without a name, one is built from its entities.
type Job struct {
	Name       string   `yaml:"name"`
	ModelSeeds *Seeds   `yaml:"modelSeeds"`
	Entities   []Entity `yaml:"entities" validate:"required,min=1,dive"`
}

// Cycle is a named batch of jobs.
type Cycle struct {
	Name string
	Jobs []Job
}

// ReadTargets reads a targets YAML file.
func ReadTargets(path string) ([]Cycle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cycles, err := ParseTargets(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cycles, nil
}

// ParseTargets decodes a targets document. Cycles keep their file order.
func ParseTargets(data []byte) ([]Cycle, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTargets, err)
	}
	if len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: expected a mapping of cycle names to jobs", ErrInvalidTargets)
	}
	doc := root.Content[0]
	var cycles []Cycle
	for i := 0; i+1 < len(doc.Content); i += 2 {
		c := Cycle{Name: doc.Content[i].Value}
		if err := doc.Content[i+1].Decode(&c.Jobs); err != nil {
			return nil, fmt.Errorf("%w: cycle %s: %v", ErrInvalidTargets, c.Name, err)
		}
		for j, job := range c.Jobs {
			if err := validate.Struct(job); err != nil {
				return nil, fmt.Errorf("%w: cycle %s job %d: %v", ErrInvalidEntity, c.Name, j+1, err)
			}
		}
		cycles = append(cycles, c)
	}
	if len(cycles) == 0 {
		return nil, fmt.Errorf("%w: no cycles", ErrInvalidTargets)
	}
	return cycles, nil
}
