// Package files collects prompt attachments and extracts their text for
// adapters without binary attachment support.
package files

import (
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/blocher/simpleai/pkg/aierr"
)

// DefaultMaxBytes caps how much of one attachment is read for text extraction.
const DefaultMaxBytes = 8 << 20

// Extracted is one attachment converted to text.
type Extracted struct {
	Path string
	Name string
	Text string
}

// Extractor converts attachments to text. It is a collaborator of the entry
// point, swappable in tests.
type Extractor interface {
	Extract(paths []string) ([]Extracted, error)
}

// Collect normalizes the caller's file and files arguments into one ordered,
// de-duplicated path list and verifies each path points at a regular file.
func Collect(file string, files []string) ([]string, error) {
	raw := make([]string, 0, len(files)+1)
	if file != "" {
		raw = append(raw, file)
	}
	raw = append(raw, files...)

	out := make([]string, 0, len(raw))
	seen := map[string]bool{}
	for _, path := range raw {
		if path == "" {
			continue
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		if seen[abs] {
			continue
		}
		seen[abs] = true

		info, err := os.Stat(path)
		if err != nil {
			return nil, aierr.FileExtraction(err, "cannot access file %s: %v", path, err)
		}
		if info.IsDir() {
			return nil, aierr.FileExtraction(nil, "%s is a directory, not a file", path)
		}
		out = append(out, path)
	}
	return out, nil
}

// TextExtractor reads attachments as UTF-8 text.
type TextExtractor struct {
	MaxBytes int64
}

func (e TextExtractor) Extract(paths []string) ([]Extracted, error) {
	maxBytes := e.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	out := make([]Extracted, 0, len(paths))
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, aierr.FileExtraction(err, "cannot read file %s: %v", path, err)
		}
		if int64(len(raw)) > maxBytes {
			raw = raw[:maxBytes]
		}
		if !utf8.Valid(raw) {
			return nil, aierr.FileExtraction(nil, "file %s is not text; use binary upload with a capable provider", path)
		}
		out = append(out, Extracted{
			Path: path,
			Name: filepath.Base(path),
			Text: string(raw),
		})
	}
	return out, nil
}

// Block renders one extracted file as the labeled prompt block adapters see.
func (e Extracted) Block() string {
	return fmt.Sprintf("[File: %s]\n%s", e.Name, e.Text)
}
