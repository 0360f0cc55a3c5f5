package emit

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/farnunglab/afrigid/internal/rigidbody"
	"github.com/farnunglab/afrigid/internal/structure"
)

var csvHeader = []string{"rigid_body", "chain", "residue", "residue_name", "plddt"}

// WriteCSV writes one row per residue of every rigid body.
func WriteCSV(w io.Writer, a *rigidbody.Assignment) error {
	cw := csv.NewWriter(w)
	cw.UseCRLF = false
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, rb := range a.Bodies {
		for _, r := range rb.Residues {
			record := []string{
				strconv.Itoa(rb.ID),
				r.ID.Chain,
				strconv.Itoa(r.ID.Num),
				r.Name,
				strconv.FormatFloat(r.PLDDT, 'f', 2, 64),
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses the output of WriteCSV.
func ReadCSV(r io.Reader) (Listing, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(csvHeader)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read CSV header: %w", err)
	}
	if strings.Join(header, ",") != strings.Join(csvHeader, ",") {
		return nil, fmt.Errorf("unexpected CSV header %q", strings.Join(header, ","))
	}

	l := Listing{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		id, err := strconv.Atoi(record[0])
		if err != nil {
			return nil, fmt.Errorf("bad rigid body %q: %w", record[0], err)
		}
		num, err := strconv.Atoi(record[2])
		if err != nil {
			return nil, fmt.Errorf("bad residue number %q: %w", record[2], err)
		}
		l[id] = append(l[id], structure.ResidueID{Chain: record[1], Num: num})
	}
	l.sort()
	return l, nil
}
