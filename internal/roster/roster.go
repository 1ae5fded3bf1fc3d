// Package roster loads the reference roster that documents are validated
// against. Rosters are CSV or XLSX files with one header row; headers are
// mapped to canonical fields with the same alias rules used for detected
// field names, and every value goes through the field normalizers.
package roster

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackzampolin/rollcall/internal/normalize"
	"github.com/jackzampolin/rollcall/internal/types"
)

// Column roles beyond the canonical fields. First and last name columns are
// combined into full_name when the roster has no full name column.
const (
	RoleFirstName = "first_name"
	RoleLastName  = "last_name"
)

// MissingColumnsError reports a roster without the columns needed to match.
type MissingColumnsError struct {
	Path    string
	Missing []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("roster %s is missing required columns: %s", e.Path, strings.Join(e.Missing, ", "))
}

// Config controls header mapping and sheet selection.
type Config struct {
	// Columns maps roster headers to canonical fields (or first_name /
	// last_name), overriding the built-in aliases.
	Columns map[string]string
	// Sheet selects the XLSX worksheet. Empty picks the first sheet with a
	// recognizable name column.
	Sheet  string
	Logger *slog.Logger
}

// ColumnMapping describes how one roster header was interpreted.
type ColumnMapping struct {
	Index  int    `json:"index" yaml:"index"`
	Header string `json:"header" yaml:"header"`
	// Role is the canonical field name, first_name, last_name, or empty
	// when the column is ignored.
	Role string `json:"role,omitempty" yaml:"role,omitempty"`
}

// Roster is a loaded reference roster.
type Roster struct {
	Path        string                  `json:"path" yaml:"path"`
	Sheet       string                  `json:"sheet,omitempty" yaml:"sheet,omitempty"`
	Columns     []ColumnMapping         `json:"columns" yaml:"columns"`
	Records     []types.ReferenceRecord `json:"-" yaml:"-"`
	SkippedRows int                     `json:"skipped_rows" yaml:"skipped_rows"`
}

// Load reads a roster by file extension.
func Load(path string, cfg Config) (*Roster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open roster: %w", err)
	}
	defer f.Close()

	var r *Roster
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		r, err = ReadCSV(f, cfg)
	case ".xlsx", ".xlsm":
		r, err = ReadXLSX(f, cfg)
	default:
		return nil, fmt.Errorf("unsupported roster format %q (want .csv or .xlsx)", filepath.Ext(path))
	}
	if err != nil {
		var mce *MissingColumnsError
		if errors.As(err, &mce) {
			mce.Path = path
		}
		return nil, err
	}
	r.Path = path

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("loaded roster", "path", path, "sheet", r.Sheet, "records", len(r.Records), "skipped_rows", r.SkippedRows)
	return r, nil
}

// mapper resolves roster headers to column roles.
type mapper struct {
	aliases   *normalize.AliasTable
	overrides map[string]string
}

func newMapper(columns map[string]string) (*mapper, error) {
	aliases, err := normalize.NewAliasTable(nil)
	if err != nil {
		return nil, err
	}
	m := &mapper{aliases: aliases, overrides: make(map[string]string, len(columns))}
	for header, role := range columns {
		if role != RoleFirstName && role != RoleLastName && !types.Field(role).IsCanonical() {
			return nil, fmt.Errorf("roster column %q maps to unknown field %q", header, role)
		}
		m.overrides[normalize.AliasKey(header)] = role
	}
	return m, nil
}

func (m *mapper) role(header string) string {
	key := normalize.AliasKey(header)
	if key == "" {
		return ""
	}
	if role, ok := m.overrides[key]; ok {
		return role
	}

	tokens := strings.Fields(key)
	has := func(words ...string) bool {
		for _, w := range words {
			for _, t := range tokens {
				if t == w {
					return true
				}
			}
		}
		return false
	}
	if !has("parent", "guardian") {
		first := has("first", "given")
		last := has("last", "surname", "family")
		switch {
		case first && !last:
			return RoleFirstName
		case last && !first:
			return RoleLastName
		}
	}

	if f, ok := m.aliases.Lookup(header); ok {
		return string(f)
	}
	return ""
}

// mapHeader assigns roles to header cells. The first column claiming a
// role keeps it.
func (m *mapper) mapHeader(header []string) []ColumnMapping {
	seen := make(map[string]bool)
	cols := make([]ColumnMapping, len(header))
	for i, h := range header {
		cols[i] = ColumnMapping{Index: i, Header: strings.TrimSpace(h)}
		role := m.role(h)
		if role == "" || seen[role] {
			continue
		}
		seen[role] = true
		cols[i].Role = role
	}
	return cols
}

// missing returns the required columns absent from a mapping.
func missing(cols []ColumnMapping) []string {
	roles := make(map[string]bool)
	for _, c := range cols {
		roles[c.Role] = true
	}
	if roles[string(types.FieldFullName)] {
		return nil
	}
	switch {
	case roles[RoleFirstName] && roles[RoleLastName]:
		return nil
	case roles[RoleFirstName]:
		return []string{RoleLastName}
	case roles[RoleLastName]:
		return []string{RoleFirstName}
	}
	return []string{string(types.FieldFullName)}
}

// build converts data rows into reference records. rows[i] sits on
// spreadsheet row lines[i].
func build(cols []ColumnMapping, rows [][]string, lines []int) ([]types.ReferenceRecord, int) {
	hasFullName := false
	for _, c := range cols {
		if c.Role == string(types.FieldFullName) {
			hasFullName = true
		}
	}

	var records []types.ReferenceRecord
	skipped := 0
	for i, row := range rows {
		if blank(row) {
			skipped++
			continue
		}

		rec := types.ReferenceRecord{Row: lines[i]}
		var first, last string
		for _, c := range cols {
			if c.Index >= len(row) || c.Role == "" {
				continue
			}
			cell := row[c.Index]
			switch c.Role {
			case RoleFirstName:
				first = cell
			case RoleLastName:
				last = cell
			default:
				f := types.Field(c.Role)
				rec.Fields.Set(f, normalize.Value(f, cell))
			}
		}
		if !hasFullName {
			rec.Fields.FullName = normalize.Value(types.FieldFullName, first+" "+last)
		}
		records = append(records, rec)
	}

	assignIDs(records)
	return records, skipped
}

// assignIDs uses the roster student id as the record id when it is present
// and unique, and a zero-padded row key otherwise.
func assignIDs(records []types.ReferenceRecord) {
	counts := make(map[string]int)
	for _, r := range records {
		if id, ok := r.Fields.StudentID.Get(); ok {
			counts[id]++
		}
	}
	for i := range records {
		id, ok := records[i].Fields.StudentID.Get()
		if ok && counts[id] == 1 {
			records[i].ID = id
			continue
		}
		records[i].ID = RowID(records[i].Row)
	}
}

// RowID is the synthesized id for a roster row without a unique student id.
func RowID(row int) string {
	return fmt.Sprintf("row:%05d", row)
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// fromTable maps a header plus data rows. lines holds the 1-based
// spreadsheet row of each data row.
func fromTable(cfg Config, header []string, rows [][]string, lines []int) (*Roster, error) {
	m, err := newMapper(cfg.Columns)
	if err != nil {
		return nil, err
	}
	cols := m.mapHeader(header)
	if miss := missing(cols); len(miss) > 0 {
		return nil, &MissingColumnsError{Missing: miss}
	}
	records, skipped := build(cols, rows, lines)
	return &Roster{Columns: cols, Records: records, SkippedRows: skipped}, nil
}
