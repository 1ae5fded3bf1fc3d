// Package normalize canonicalizes raw field detections into typed student
// records: alias mapping, whitespace and case folding, date parsing, and
// opt-in coercion.
package normalize

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackzampolin/rollcall/internal/types"
)

// NormalizationError reports a record whose required fields are absent.
// It is recoverable: the document becomes an EXTRACTION_FAILED row.
type NormalizationError struct {
	DocumentID string
	Missing    []types.Field
}

func (e *NormalizationError) Error() string {
	names := make([]string, len(e.Missing))
	for i, f := range e.Missing {
		names[i] = string(f)
	}
	return fmt.Sprintf("document %s: required field(s) absent: %s", e.DocumentID, strings.Join(names, ", "))
}

// Config configures a Normalizer.
type Config struct {
	// Aliases maps additional detected names to canonical field names.
	Aliases map[string]string
	// RequiredFields must be present after normalization. full_name is
	// always required.
	RequiredFields []string
	Logger         *slog.Logger
}

// Normalizer turns FieldDetections into ExtractedRecords. It holds no
// mutable state and is safe for concurrent use.
type Normalizer struct {
	aliases  *AliasTable
	required []types.Field
	logger   *slog.Logger
}

// New creates a Normalizer.
func New(cfg Config) (*Normalizer, error) {
	aliases, err := NewAliasTable(cfg.Aliases)
	if err != nil {
		return nil, err
	}

	required := []types.Field{types.FieldFullName}
	for _, name := range cfg.RequiredFields {
		f := types.Field(name)
		if !f.IsCanonical() {
			return nil, fmt.Errorf("required field %q is not a canonical field", name)
		}
		if f != types.FieldFullName {
			required = append(required, f)
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Normalizer{
		aliases:  aliases,
		required: required,
		logger:   logger,
	}, nil
}

// Aliases returns the alias table in use.
func (n *Normalizer) Aliases() *AliasTable {
	return n.aliases
}

type candidate struct {
	index      int
	name       string
	raw        string
	value      types.Value
	confidence float64
}

// Normalize builds an ExtractedRecord from one document's detections. When a
// required field is absent it returns the partially built record together
// with a *NormalizationError.
//
// Several detections for the same canonical field are resolved by preferring
// values that normalized successfully, then higher confidence, then input
// order. Losing detections and unmapped names are kept in Extra.
func (n *Normalizer) Normalize(documentID string, detections []types.FieldDetection) (*types.ExtractedRecord, error) {
	rec := &types.ExtractedRecord{
		SourceDocumentID: documentID,
		Confidences:      make(map[types.Field]float64),
		Extra:            make(map[string]string),
	}

	winners := make(map[types.Field]candidate)
	var losers []candidate

	for i, d := range detections {
		raw := CollapseSpace(d.RawValue)
		field, ok := n.aliases.Lookup(d.FieldName)
		if !ok {
			addExtra(rec.Extra, d.FieldName, raw)
			continue
		}
		if raw == "" {
			continue
		}

		c := candidate{
			index:      i,
			name:       d.FieldName,
			raw:        raw,
			value:      Value(field, raw),
			confidence: d.Confidence,
		}
		prev, seen := winners[field]
		if !seen {
			winners[field] = c
			continue
		}
		if better(c, prev) {
			winners[field] = c
			losers = append(losers, prev)
		} else {
			losers = append(losers, c)
		}
	}

	for _, field := range types.CanonicalFields {
		c, ok := winners[field]
		if !ok {
			continue
		}
		if !c.value.IsPresent() {
			// observed but not normalizable: keep the raw text, never guess
			addExtra(rec.Extra, c.name, c.raw)
			continue
		}
		rec.Fields.Set(field, c.value)
		rec.Confidences[field] = c.confidence
	}
	for _, c := range losers {
		addExtra(rec.Extra, c.name, c.raw)
	}

	var missing []types.Field
	for _, f := range n.required {
		if !rec.Fields.Get(f).IsPresent() {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		n.logger.Debug("record missing required fields", "document", documentID, "missing", missing)
		return rec, &NormalizationError{DocumentID: documentID, Missing: missing}
	}

	return rec, nil
}

func better(c, prev candidate) bool {
	if c.value.IsPresent() != prev.value.IsPresent() {
		return c.value.IsPresent()
	}
	return c.confidence > prev.confidence
}

// addExtra stores a value under name, suffixing "#2", "#3", ... on collision.
func addExtra(extra map[string]string, name, value string) {
	key := CollapseSpace(name)
	if key == "" {
		key = "unnamed"
	}
	if _, exists := extra[key]; !exists {
		extra[key] = value
		return
	}
	for i := 2; ; i++ {
		k := fmt.Sprintf("%s#%d", key, i)
		if _, exists := extra[k]; !exists {
			extra[k] = value
			return
		}
	}
}
