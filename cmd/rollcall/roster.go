package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/rollcall/internal/output"
	"github.com/jackzampolin/rollcall/internal/roster"
	"github.com/jackzampolin/rollcall/internal/svcctx"
)

// rosterCheckOutput summarizes how a roster file was read.
type rosterCheckOutput struct {
	roster.Roster `yaml:",inline"`
	RecordCount   int `json:"records" yaml:"records"`
	WithoutName   int `json:"records_without_name" yaml:"records_without_name"`
	SyntheticIDs  int `json:"synthetic_ids" yaml:"synthetic_ids"`
}

func (r *rosterCheckOutput) TableHeader() []string {
	return []string{"column", "header", "role"}
}

func (r *rosterCheckOutput) TableRows() [][]string {
	rows := make([][]string, 0, len(r.Columns)+1)
	for _, c := range r.Columns {
		role := c.Role
		if role == "" {
			role = "(ignored)"
		}
		rows = append(rows, []string{strconv.Itoa(c.Index + 1), c.Header, role})
	}
	rows = append(rows, []string{"", "records", strconv.Itoa(r.RecordCount)})
	return rows
}

var rosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "Inspect reference rosters",
}

var rosterCheckCmd = &cobra.Command{
	Use:   "check FILE",
	Short: "Load a roster and print its column mapping",
	Long: `Check loads a roster the same way validate does and prints how each
header was mapped. A roster without a name column fails here before any
document is processed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := svcctx.ServicesFrom(cmd.Context())
		r, err := loadRoster(args[0], svc.Config.Get(), svc.Logger)
		if err != nil {
			return err
		}

		out := &rosterCheckOutput{Roster: *r, RecordCount: len(r.Records)}
		for _, rec := range r.Records {
			if !rec.Fields.FullName.IsPresent() {
				out.WithoutName++
			}
			if rec.ID == roster.RowID(rec.Row) {
				out.SyntheticIDs++
			}
		}
		return output.Print(out)
	},
}

func init() {
	rosterCmd.AddCommand(rosterCheckCmd)
	rootCmd.AddCommand(rosterCmd)
}
