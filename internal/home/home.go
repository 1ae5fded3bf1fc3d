package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the rollcall home directory.
	DefaultDirName = ".rollcall"

	// ReportsDirName is the subdirectory for validation reports.
	ReportsDirName = "reports"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"
)

// Dir represents the rollcall home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.rollcall).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// ReportsPath returns the path to the reports directory.
func (d *Dir) ReportsPath() string {
	return filepath.Join(d.path, ReportsDirName)
}

// ReportPath returns the default report file for a run.
func (d *Dir) ReportPath(runID, format string) string {
	if format == "" {
		format = "csv"
	}
	return filepath.Join(d.ReportsPath(), fmt.Sprintf("%s.%s", runID, format))
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	// Create reports directory (this also creates the parent)
	if err := os.MkdirAll(d.ReportsPath(), 0o755); err != nil {
		return fmt.Errorf("failed to create reports directory: %w", err)
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}
