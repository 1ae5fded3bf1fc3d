// Package output writes command results as yaml, json, or a terminal table.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"gopkg.in/yaml.v3"
)

// Format defines the output format for CLI commands.
type Format string

const (
	FormatYAML  Format = "yaml"
	FormatJSON  Format = "json"
	FormatTable Format = "table"
)

// globalFormat is set by the root command's --output flag.
var globalFormat = Default()

// Default returns table when stdout is a terminal and yaml otherwise.
func Default() Format {
	if isTerminal(os.Stdout) {
		return FormatTable
	}
	return FormatYAML
}

// ParseFormat validates a --output value. Empty selects Default.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "":
		return Default(), nil
	case FormatYAML, FormatJSON, FormatTable:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown output format %q (want yaml, json, or table)", s)
	}
}

// SetFormat sets the global output format.
func SetFormat(f Format) {
	globalFormat = f
}

// GetFormat returns the current global output format.
func GetFormat() Format {
	return globalFormat
}

// Print writes data to stdout in the configured format.
func Print(data any) error {
	return To(os.Stdout, globalFormat, data)
}

// To writes data to w in the given format. The table format renders values
// implementing Tabular and falls back to yaml for everything else.
func To(w io.Writer, format Format, data any) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(data)
	case FormatTable:
		t, ok := data.(Tabular)
		if !ok {
			return To(w, FormatYAML, data)
		}
		_, err := fmt.Fprintln(w, Render(t.TableHeader(), t.TableRows()))
		return err
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}

// IsStructured reports whether the global format is machine-readable.
// Commands print human-friendly progress only when it is not.
func IsStructured() bool {
	return globalFormat == FormatJSON || globalFormat == FormatYAML
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
