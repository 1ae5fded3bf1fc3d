// Package providers holds the document extraction capabilities: cloud
// form recognizers, vision models, and local PDF readers that turn one
// document into raw field detections.
package providers

import (
	"context"
	"time"

	"github.com/jackzampolin/rollcall/internal/types"
)

// Extractor reads key/value field detections from a single document.
// Implementations must be safe for concurrent use.
type Extractor interface {
	// Name returns the extractor identifier (e.g., "azure-document").
	Name() string

	// Extract returns the detections for one document. Rate limiting is
	// reported as *RateLimitError so callers can retry.
	Extract(ctx context.Context, doc *Document) (*ExtractionResult, error)

	// Rate limiting properties
	RequestsPerSecond() float64
	MaxRetries() int
	RetryDelayBase() time.Duration

	// MaxConcurrency caps in-flight requests. 0 means no provider limit.
	MaxConcurrency() int
}

// Document is one input document ready for extraction.
type Document struct {
	// ID is the unique document id within a batch (base file name).
	ID string
	// Position is the 1-based input order.
	Position int
	// Path is the source file. Converted documents keep the original path.
	Path string
	// Data holds the PDF bytes.
	Data []byte
	// Pages is the PDF page count, when known.
	Pages int
}

// ExtractionResult is the response from an extractor.
type ExtractionResult struct {
	Detections []types.FieldDetection `json:"detections" yaml:"detections"`

	// Provider info
	Provider string `json:"provider" yaml:"provider"`
	Model    string `json:"model,omitempty" yaml:"model,omitempty"`
	Pages    int    `json:"pages,omitempty" yaml:"pages,omitempty"`

	ExecutionTime time.Duration  `json:"execution_time" yaml:"execution_time"`
	Metadata      map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// clampConfidence forces a provider confidence into [0,1].
func clampConfidence(c float64) float64 {
	switch {
	case c != c: // NaN
		return 0
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
