package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/rollcall/internal/ingest"
	"github.com/jackzampolin/rollcall/internal/normalize"
	"github.com/jackzampolin/rollcall/internal/output"
	"github.com/jackzampolin/rollcall/internal/svcctx"
	"github.com/jackzampolin/rollcall/internal/types"
)

var extractName string

// extractOutput shows the raw detections next to the normalized record.
type extractOutput struct {
	Document   string                 `json:"document" yaml:"document"`
	Provider   string                 `json:"provider" yaml:"provider"`
	Pages      int                    `json:"pages" yaml:"pages"`
	Detections []types.FieldDetection `json:"detections" yaml:"detections"`
	Fields     map[types.Field]string `json:"fields,omitempty" yaml:"fields,omitempty"`
	Unmapped   map[string]string      `json:"unmapped,omitempty" yaml:"unmapped,omitempty"`
	Error      string                 `json:"error,omitempty" yaml:"error,omitempty"`
}

func (e *extractOutput) TableHeader() []string {
	return []string{"field_name", "raw_value", "confidence", "canonical"}
}

func (e *extractOutput) TableRows() [][]string {
	rows := make([][]string, 0, len(e.Detections))
	for _, d := range e.Detections {
		rows = append(rows, []string{d.FieldName, d.RawValue, formatFloat(d.Confidence), ""})
	}
	for _, f := range types.CanonicalFields {
		if v, ok := e.Fields[f]; ok {
			rows = append(rows, []string{"", v, "", string(f)})
		}
	}
	return rows
}

var extractCmd = &cobra.Command{
	Use:   "extract [flags] DOC",
	Short: "Extract and normalize the fields of one document",
	Long: `Extract runs one extractor over a single document and prints the raw
field detections along with the normalized record. Use it to check alias
coverage and extractor quality before a full batch.

Examples:
  rollcall extract form-1.pdf
  rollcall extract --extractor acroform -o json form-1.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		res, err := runExtract(ctx, svcctx.ServicesFrom(ctx), args[0])
		if err != nil {
			return err
		}
		return output.Print(res)
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractName, "extractor", "", "extractor name from config (default: defaults.extractor)")

	rootCmd.AddCommand(extractCmd)
}

func runExtract(ctx context.Context, svc *svcctx.Services, path string) (*extractOutput, error) {
	cfg := svc.Config.Get()
	name := extractName
	if name == "" {
		name = cfg.Defaults.Extractor
	}
	extractor, err := svc.Registry.Get(name)
	if err != nil {
		return nil, err
	}

	sources, err := ingest.Collect([]string{path})
	if err != nil {
		return nil, err
	}
	if len(sources) != 1 {
		return nil, fmt.Errorf("extract takes one document, %s holds %d", path, len(sources))
	}
	src := sources[0]

	doc, err := newLoader(cfg, svc.Logger).Load(ctx, src)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Defaults.DocumentTimeout.Std()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	result, err := extractor.Extract(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", src.ID, err)
	}

	out := &extractOutput{
		Document:   src.ID,
		Provider:   result.Provider,
		Pages:      doc.Pages,
		Detections: result.Detections,
	}

	normalizer, err := normalize.New(normalize.Config{
		Aliases:        cfg.Normalize.Aliases,
		RequiredFields: cfg.Matching.RequiredFields,
		Logger:         svc.Logger,
	})
	if err != nil {
		return nil, err
	}
	rec, err := normalizer.Normalize(src.ID, result.Detections)
	var nerr *normalize.NormalizationError
	switch {
	case errors.As(err, &nerr):
		out.Error = nerr.Error()
	case err != nil:
		return nil, err
	}
	if rec != nil {
		out.Fields = rec.Fields.Map()
		out.Unmapped = rec.Extra
	}
	return out, nil
}
