// Package extract turns uploaded documents into plain text for indexing.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupported is returned for file extensions no extractor handles.
var ErrUnsupported = errors.New("unsupported file type")

// Document is the plain-text rendition of an uploaded file.
type Document struct {
	Name  string `json:"name"`
	Title string `json:"title,omitempty"`
	Text  string `json:"-"`
}

// Extractor converts raw document bytes into plain text.
type Extractor interface {
	Extract(data []byte) (title, text string, err error)
}

var extractors = map[string]Extractor{
	".txt":      textExtractor{},
	".md":       markdownExtractor{},
	".markdown": markdownExtractor{},
	".html":     htmlExtractor{},
	".htm":      htmlExtractor{},
	".pdf":      pdfExtractor{},
	".docx":     docxExtractor{},
}

// ForFile returns the extractor registered for filename's extension.
func ForFile(filename string) (Extractor, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	e, ok := extractors[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
	return e, nil
}

// IsSupported reports whether filename has a known extension.
func IsSupported(filename string) bool {
	_, err := ForFile(filename)
	return err == nil
}

// FromFile reads and extracts the file at path.
func FromFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return FromReader(f, filepath.Base(path))
}

// FromReader extracts r, choosing the format from filename.
func FromReader(r io.Reader, filename string) (*Document, error) {
	e, err := ForFile(filename)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	title, text, err := e.Extract(data)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", filename, err)
	}
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	}
	return &Document{Name: filepath.Base(filename), Title: title, Text: text}, nil
}

type textExtractor struct{}

func (textExtractor) Extract(data []byte) (string, string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	return "", strings.ReplaceAll(string(data), "\r\n", "\n"), nil
}

// joinBlocks trims each block, drops empty ones and separates the rest with
// a blank line.
func joinBlocks(blocks []string) string {
	out := blocks[:0]
	for _, b := range blocks {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return strings.Join(out, "\n\n")
}
