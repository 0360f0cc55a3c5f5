package afinput

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/TuftsBCB/io/fasta"
)

// Sequences holds the FASTA records entities are resolved against.
type Sequences struct {
	Proteins     map[string]string
	NucleicAcids map[string]string
	// EntityMap maps entity names to FASTA keys, usually UniProt IDs.
	EntityMap map[string]string
	// NamesFirst tries the entity name before the entity map, the order
	// AF2 and ColabFold inputs use.
	NamesFirst bool
}

// ReadFASTA reads path into a map keyed by the full header and by its first
// word. The full header wins when both exist.
func ReadFASTA(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := fasta.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	out := make(map[string]string, len(records))
	for _, r := range records {
		out[r.Name] = string(r.Bytes())
	}
	for _, r := range records {
		fields := strings.Fields(r.Name)
		if len(fields) == 0 {
			continue
		}
		if _, ok := out[fields[0]]; !ok {
			out[fields[0]] = string(r.Bytes())
		}
	}
	return out, nil
}

// ReadEntityMap reads a JSON object of entity name to FASTA key.
func ReadEntityMap(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// lookup finds the sequence of an entity through the entity map and by the
// entity name itself, in the order NamesFirst selects.
func (s Sequences) lookup(e Entity) (string, error) {
	table := s.Proteins
	if e.Type == DNASequence || e.Type == RNASequence {
		table = s.NucleicAcids
	}
	keys := []string{e.Name}
	if key, ok := s.EntityMap[e.Name]; ok {
		if s.NamesFirst {
			keys = append(keys, key)
		} else {
			keys = append([]string{key}, keys...)
		}
	}
	for _, key := range keys {
		if sequence, ok := table[key]; ok {
			return sequence, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownSequence, e.Name)
}
