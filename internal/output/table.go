package output

import (
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Tabular is implemented by results that render as a table.
type Tabular interface {
	TableHeader() []string
	TableRows() [][]string
}

// Rows adapts a header and rows to Tabular.
type Rows struct {
	Header []string   `json:"header" yaml:"header"`
	Data   [][]string `json:"rows" yaml:"rows"`
}

func (r Rows) TableHeader() []string { return r.Header }
func (r Rows) TableRows() [][]string { return r.Data }

// Render draws a rounded table. Columns whose every cell is numeric are
// right-aligned.
func Render(headers []string, rows [][]string) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	numeric := make([]bool, columns)
	for i := range numeric {
		numeric[i] = len(rows) > 0
	}
	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			r[i] = cell
			if _, err := strconv.ParseFloat(cell, 64); err != nil {
				numeric[i] = false
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if numeric[i] {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}
