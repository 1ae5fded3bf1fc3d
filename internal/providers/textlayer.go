package providers

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/jackzampolin/rollcall/internal/types"
)

const TextLayerName = "text-layer"

// maxLabelWords filters prose sentences that happen to contain a colon.
const maxLabelWords = 6

// labelLine matches "Label: value" rows of a form's text layer.
var labelLine = regexp.MustCompile(`^\s*([^:]{2,60}?)\s*:\s*(.*?)\s*$`)

// TextLayerConfig holds configuration for the text-layer extractor.
type TextLayerConfig struct {
	// Confidence assigned to every detection (default 0.5). Text layers
	// carry no recognition confidence of their own.
	Confidence float64
}

// TextLayerExtractor implements Extractor for digitally generated PDFs by
// reading "Label: value" rows from the embedded text layer. Scans without
// a text layer produce no detections.
type TextLayerExtractor struct {
	confidence float64
}

// NewTextLayerExtractor creates a new text-layer extractor.
func NewTextLayerExtractor(cfg TextLayerConfig) *TextLayerExtractor {
	if cfg.Confidence <= 0 {
		cfg.Confidence = 0.5
	}
	return &TextLayerExtractor{confidence: clampConfidence(cfg.Confidence)}
}

// Name returns the provider identifier.
func (e *TextLayerExtractor) Name() string {
	return TextLayerName
}

// RequestsPerSecond returns 0: local extraction is not rate limited.
func (e *TextLayerExtractor) RequestsPerSecond() float64 {
	return 0
}

// MaxRetries returns the maximum retry attempts.
func (e *TextLayerExtractor) MaxRetries() int {
	return 0
}

// RetryDelayBase returns the base delay between retries.
func (e *TextLayerExtractor) RetryDelayBase() time.Duration {
	return 0
}

// MaxConcurrency returns max concurrent extractions.
func (e *TextLayerExtractor) MaxConcurrency() int {
	return 0
}

// Extract reads the text rows of every page.
func (e *TextLayerExtractor) Extract(ctx context.Context, doc *Document) (*ExtractionResult, error) {
	start := time.Now()
	if len(doc.Data) == 0 {
		return nil, ErrEmptyDocument
	}

	lines, pages, err := textRows(ctx, doc.Data)
	if err != nil {
		return nil, err
	}

	detections := parseLabelLines(lines, e.confidence)
	if len(detections) == 0 {
		return nil, fmt.Errorf("no labeled text found: %w", ErrNoDetections)
	}

	return &ExtractionResult{
		Detections:    detections,
		Provider:      TextLayerName,
		Pages:         pages,
		ExecutionTime: time.Since(start),
	}, nil
}

// textRows returns every text row of the document in page order. The PDF
// reader panics on some malformed files, which is reported as an error.
func textRows(ctx context.Context, data []byte) (lines []string, pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to read PDF text: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open PDF: %w", err)
	}

	pages = r.NumPage()
	for n := 1; n <= pages; n++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		p := r.Page(n)
		if p.V.IsNull() {
			continue
		}
		rows, err := p.GetTextByRow()
		if err != nil {
			return nil, 0, fmt.Errorf("failed to read page %d: %w", n, err)
		}
		for _, row := range rows {
			var sb strings.Builder
			for _, word := range row.Content {
				sb.WriteString(word.S)
			}
			lines = append(lines, sb.String())
		}
	}
	return lines, pages, nil
}

// parseLabelLines turns "Label: value" lines into detections. A label
// followed by an empty value is still reported so blank fields stay
// visible to normalization.
func parseLabelLines(lines []string, confidence float64) []types.FieldDetection {
	var out []types.FieldDetection
	for _, line := range lines {
		m := labelLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		label := strings.TrimSpace(m[1])
		if label == "" || len(strings.Fields(label)) > maxLabelWords {
			continue
		}
		out = append(out, types.FieldDetection{
			FieldName:  label,
			RawValue:   strings.TrimSpace(m[2]),
			Confidence: confidence,
		})
	}
	return out
}

var _ Extractor = (*TextLayerExtractor)(nil)
