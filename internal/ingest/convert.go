package ingest

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Converter turns a non-PDF document into PDF bytes.
type Converter interface {
	Convert(ctx context.Context, path string) ([]byte, error)
}

// ConverterFunc adapts a function to the Converter interface.
type ConverterFunc func(ctx context.Context, path string) ([]byte, error)

// Convert calls f.
func (f ConverterFunc) Convert(ctx context.Context, path string) ([]byte, error) {
	return f(ctx, path)
}

// SofficeConverter converts office documents with LibreOffice in headless
// mode.
type SofficeConverter struct {
	// Path to the soffice binary (default "soffice").
	Path    string
	Timeout time.Duration
}

// NewSofficeConverter creates a converter with defaults applied.
func NewSofficeConverter(path string, timeout time.Duration) *SofficeConverter {
	if path == "" {
		path = "soffice"
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &SofficeConverter{Path: path, Timeout: timeout}
}

// Convert runs soffice --headless --convert-to pdf into a temp directory
// and returns the resulting PDF.
func (c *SofficeConverter) Convert(ctx context.Context, path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	tmpDir, err := os.MkdirTemp("", "rollcall-convert-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	// A private profile dir lets several conversions run at once.
	profile := "file://" + filepath.ToSlash(filepath.Join(tmpDir, "profile"))
	cmd := exec.CommandContext(ctx, c.Path,
		"-env:UserInstallation="+profile,
		"--headless",
		"--convert-to", "pdf",
		"--outdir", tmpDir,
		path,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("soffice timed out converting %s: %w", filepath.Base(path), ctx.Err())
		}
		return nil, fmt.Errorf("soffice failed: %w (output: %s)", err, strings.TrimSpace(string(output)))
	}

	base := filepath.Base(path)
	pdfPath := filepath.Join(tmpDir, strings.TrimSuffix(base, filepath.Ext(base))+".pdf")
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("soffice did not create expected output: %w", err)
	}
	return data, nil
}
