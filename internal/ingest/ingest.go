// Package ingest collects enrollment documents from the command line or an
// inbox directory and loads them as provider documents.
package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Document kinds by file extension.
const (
	KindPDF  = "pdf"
	KindDOCX = "docx"
)

// ErrNoDocuments is returned when Collect finds nothing to process.
var ErrNoDocuments = errors.New("no documents found")

// Source is one input document before its bytes are read. Position is
// 1-based input order.
type Source struct {
	// ID is the base file name, suffixed with "#n" when several inputs
	// share a name.
	ID       string
	Path     string
	Kind     string
	Position int
}

// Kind returns the document kind for a path, or "" when unsupported.
func Kind(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return KindPDF
	case ".docx":
		return KindDOCX
	}
	return ""
}

// Collect resolves paths into an ordered list of sources. Files are taken in
// the order given. Directories expand to their .pdf and .docx files sorted
// by numeric suffix (form-2.pdf before form-10.pdf); subdirectories and
// other files are skipped. An explicitly named file with an unsupported
// extension is an error.
func Collect(paths []string) ([]Source, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("document not found: %s", p)
		}
		if !info.IsDir() {
			if Kind(p) == "" {
				return nil, fmt.Errorf("unsupported document type: %s", p)
			}
			files = append(files, p)
			continue
		}

		expanded, err := listDir(p)
		if err != nil {
			return nil, err
		}
		files = append(files, expanded...)
	}

	if len(files) == 0 {
		return nil, ErrNoDocuments
	}

	sources := make([]Source, len(files))
	seen := make(map[string]int)
	for i, f := range files {
		id := filepath.Base(f)
		seen[id]++
		if n := seen[id]; n > 1 {
			id = fmt.Sprintf("%s#%d", id, n)
		}
		sources[i] = Source{
			ID:       id,
			Path:     f,
			Kind:     Kind(f),
			Position: i + 1,
		}
	}
	return sources, nil
}

func listDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || strings.HasPrefix(e.Name(), "~$") {
			continue
		}
		if Kind(e.Name()) == "" {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return sortByNumber(files), nil
}

var numberedStem = regexp.MustCompile(`^(.*?)[-_ ]?(\d+)$`)

type sortKey struct {
	prefix   string
	number   int
	numbered bool
}

func keyOf(path string) sortKey {
	base := filepath.Base(path)
	stem := strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
	m := numberedStem.FindStringSubmatch(stem)
	if m == nil {
		return sortKey{prefix: stem}
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return sortKey{prefix: stem}
	}
	return sortKey{prefix: m[1], number: n, numbered: true}
}

// sortByNumber sorts document paths by their numeric suffix.
// e.g., ["form-2.pdf", "form-1.pdf", "form-10.pdf"] -> ["form-1.pdf", "form-2.pdf", "form-10.pdf"]
func sortByNumber(paths []string) []string {
	sorted := make([]string, len(paths))
	copy(sorted, paths)

	sort.Slice(sorted, func(i, j int) bool {
		ki, kj := keyOf(sorted[i]), keyOf(sorted[j])
		if ki.prefix != kj.prefix {
			return ki.prefix < kj.prefix
		}

		// Files without numbers come first
		if ki.numbered != kj.numbered {
			return !ki.numbered
		}
		if ki.number != kj.number {
			return ki.number < kj.number
		}
		return sorted[i] < sorted[j]
	})

	return sorted
}
