package providers

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	rtypes "github.com/jackzampolin/rollcall/internal/types"
)

const AcroFormName = "acroform"

// maxFieldDepth bounds recursion through field Kids arrays.
const maxFieldDepth = 16

// AcroFormConfig holds configuration for the fillable-form extractor.
type AcroFormConfig struct {
	// Confidence assigned to every filled field (default 1.0).
	Confidence float64
}

// AcroFormExtractor implements Extractor for fillable PDFs by reading the
// interactive form fields directly. It makes no network calls.
type AcroFormExtractor struct {
	confidence float64
}

// NewAcroFormExtractor creates a new fillable-form extractor.
func NewAcroFormExtractor(cfg AcroFormConfig) *AcroFormExtractor {
	if cfg.Confidence <= 0 {
		cfg.Confidence = 1.0
	}
	return &AcroFormExtractor{confidence: clampConfidence(cfg.Confidence)}
}

// Name returns the provider identifier.
func (e *AcroFormExtractor) Name() string {
	return AcroFormName
}

// RequestsPerSecond returns 0: local extraction is not rate limited.
func (e *AcroFormExtractor) RequestsPerSecond() float64 {
	return 0
}

// MaxRetries returns the maximum retry attempts.
func (e *AcroFormExtractor) MaxRetries() int {
	return 0
}

// RetryDelayBase returns the base delay between retries.
func (e *AcroFormExtractor) RetryDelayBase() time.Duration {
	return 0
}

// MaxConcurrency returns max concurrent extractions.
func (e *AcroFormExtractor) MaxConcurrency() int {
	return 0
}

// Extract reads every terminal form field. Text and choice fields report
// their value; checkboxes report ":selected:" or ":unselected:".
func (e *AcroFormExtractor) Extract(ctx context.Context, doc *Document) (*ExtractionResult, error) {
	start := time.Now()
	if len(doc.Data) == 0 {
		return nil, ErrEmptyDocument
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	pctx, err := api.ReadContext(bytes.NewReader(doc.Data), conf)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF: %w", err)
	}
	if err := pctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("failed to count pages: %w", err)
	}

	rootDict, err := pctx.Catalog()
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog: %w", err)
	}
	acroFormObj, found := rootDict.Find("AcroForm")
	if !found {
		return nil, fmt.Errorf("document has no form fields: %w", ErrNoDetections)
	}
	acroFormDict, err := pctx.DereferenceDict(acroFormObj)
	if err != nil || acroFormDict == nil {
		return nil, fmt.Errorf("failed to read AcroForm: %w", ErrNoDetections)
	}
	fieldsObj, found := acroFormDict.Find("Fields")
	if !found {
		return nil, fmt.Errorf("AcroForm has no fields: %w", ErrNoDetections)
	}
	fields, err := pctx.DereferenceArray(fieldsObj)
	if err != nil {
		return nil, fmt.Errorf("failed to read AcroForm fields: %w", err)
	}

	w := &formWalker{ctx: pctx, confidence: e.confidence}
	for _, obj := range fields {
		w.walk(obj, "", "", 0)
	}
	if len(w.detections) == 0 {
		return nil, ErrNoDetections
	}

	return &ExtractionResult{
		Detections:    w.detections,
		Provider:      AcroFormName,
		Pages:         pctx.PageCount,
		ExecutionTime: time.Since(start),
	}, nil
}

type formWalker struct {
	ctx        *model.Context
	confidence float64
	detections []rtypes.FieldDetection
}

// walk visits a field and its kids. Kids without their own T entry are
// widget annotations of the parent field. FT is inherited from ancestors.
func (w *formWalker) walk(obj types.Object, parentName, parentType string, depth int) {
	if depth > maxFieldDepth {
		return
	}
	dict, err := w.ctx.DereferenceDict(obj)
	if err != nil || dict == nil {
		return
	}

	name := parentName
	if t, found := dict.Find("T"); found {
		if s, err := w.ctx.DereferenceStringOrHexLiteral(t, model.V10, nil); err == nil && strings.TrimSpace(s) != "" {
			name = s
		}
	}
	fieldType := parentType
	if ft, found := dict.Find("FT"); found {
		if n, err := w.ctx.DereferenceName(ft, model.V10, nil); err == nil {
			fieldType = string(n)
		}
	}

	if kidsObj, found := dict.Find("Kids"); found {
		if kids, err := w.ctx.DereferenceArray(kidsObj); err == nil && w.hasNamedKid(kids) {
			for _, kid := range kids {
				w.walk(kid, name, fieldType, depth+1)
			}
			return
		}
	}

	if name == "" || fieldType == "Sig" {
		return
	}
	valueObj, found := dict.Find("V")
	if !found {
		if fieldType == "Btn" {
			w.add(name, ":unselected:")
		}
		return
	}
	w.add(name, w.value(valueObj, fieldType))
}

func (w *formWalker) hasNamedKid(kids types.Array) bool {
	for _, kid := range kids {
		d, err := w.ctx.DereferenceDict(kid)
		if err != nil || d == nil {
			continue
		}
		if _, found := d.Find("T"); found {
			return true
		}
	}
	return false
}

func (w *formWalker) value(obj types.Object, fieldType string) string {
	if fieldType == "Btn" {
		if n, err := w.ctx.DereferenceName(obj, model.V10, nil); err == nil {
			if n == "" || n == "Off" {
				return ":unselected:"
			}
			// Radio groups export the chosen option name.
			if n == "Yes" || n == "On" {
				return ":selected:"
			}
			return string(n)
		}
		return ":unselected:"
	}
	if s, err := w.ctx.DereferenceStringOrHexLiteral(obj, model.V10, nil); err == nil {
		return s
	}
	if arr, err := w.ctx.DereferenceArray(obj); err == nil {
		var values []string
		for _, item := range arr {
			if s, err := w.ctx.DereferenceStringOrHexLiteral(item, model.V10, nil); err == nil {
				values = append(values, s)
			}
		}
		return strings.Join(values, ", ")
	}
	if n, err := w.ctx.DereferenceName(obj, model.V10, nil); err == nil {
		return string(n)
	}
	return ""
}

func (w *formWalker) add(name, value string) {
	w.detections = append(w.detections, rtypes.FieldDetection{
		FieldName:  name,
		RawValue:   value,
		Confidence: w.confidence,
	})
}

var _ Extractor = (*AcroFormExtractor)(nil)
