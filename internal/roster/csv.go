package roster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

const utf8BOM = "\ufeff"

// ReadCSV parses a CSV roster. The first non-blank line is the header.
// Record rows are numbered by their line in the file.
func ReadCSV(r io.Reader, cfg Config) (*Roster, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	var (
		header []string
		rows   [][]string
		lines  []int
	)
	for first := true; ; first = false {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read roster csv: %w", err)
		}
		if first && len(rec) > 0 {
			rec[0] = strings.TrimPrefix(rec[0], utf8BOM)
		}
		if header == nil {
			if !blank(rec) {
				header = rec
			}
			continue
		}
		line, _ := cr.FieldPos(0)
		rows = append(rows, rec)
		lines = append(lines, line)
	}
	if header == nil {
		return nil, &MissingColumnsError{Missing: []string{"full_name"}}
	}

	return fromTable(cfg, header, rows, lines)
}
