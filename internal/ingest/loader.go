package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/jackzampolin/rollcall/internal/providers"
)

// ErrNoPages is returned for PDFs that parse but contain no pages.
var ErrNoPages = errors.New("document has no pages")

// Loader reads sources into provider documents.
type Loader struct {
	// Converter handles .docx sources. Nil means .docx is rejected.
	Converter Converter
	Logger    *slog.Logger
}

// Load reads a source, converting it to PDF when needed, and checks that the
// PDF has at least one page. Errors are per-document.
func (l *Loader) Load(ctx context.Context, src Source) (*providers.Document, error) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var data []byte
	var err error
	switch src.Kind {
	case KindPDF:
		data, err = os.ReadFile(src.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read document: %w", err)
		}
	case KindDOCX:
		if l.Converter == nil {
			return nil, fmt.Errorf("no converter configured for %s", src.ID)
		}
		logger.Debug("converting document", "document", src.ID)
		data, err = l.Converter.Convert(ctx, src.Path)
		if err != nil {
			return nil, fmt.Errorf("conversion failed: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported document type: %s", src.Path)
	}

	pages, err := PageCount(data)
	if err != nil {
		return nil, err
	}

	return &providers.Document{
		ID:       src.ID,
		Position: src.Position,
		Path:     src.Path,
		Data:     data,
		Pages:    pages,
	}, nil
}

// PageCount validates PDF bytes and returns the number of pages.
func PageCount(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, providers.ErrEmptyDocument
	}
	n, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to read PDF: %w", err)
	}
	if n == 0 {
		return 0, ErrNoPages
	}
	return n, nil
}
