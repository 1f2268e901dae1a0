package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
)

// Format classifies a processed document by how its text was obtained.
type Format string

const (
	FormatPDFText    Format = "pdf-text"
	FormatPDFScanned Format = "pdf-scanned"
	FormatPDFMixed   Format = "pdf-mixed"
	FormatDOCX       Format = "docx"
	FormatTXT        Format = "txt"
)

// Method tags how the text of a single section was produced.
type Method string

const (
	MethodNativeText Method = "native-text"
	MethodOCR        Method = "ocr"
	MethodParagraph  Method = "paragraph"
)

// Section is one independently extracted unit of a document: a page for
// PDFs, a paragraph for everything else. Sections that yielded no text
// keep their position but contribute nothing downstream.
type Section struct {
	Index  int
	Method Method
	Text   string
}

// Document is the immutable result of extracting one file.
type Document struct {
	ID       string
	Name     string
	Format   Format
	Size     int64
	Pages    int
	Sections []Section
}

// ErrUnsupportedFormat marks a file no registered extractor can handle.
// It fails that file only, never the batch.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Error reports a file that could not be opened or decoded at all.
type Error struct {
	File string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extracting %s: %v", e.File, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type Extractor interface {
	CanExtract(path string) bool
	Extract(ctx context.Context, path string) (*Document, error)
}

// Registry dispatches files to the first extractor claiming them.
type Registry struct {
	extractors []Extractor
}

func NewRegistry(extractors ...Extractor) *Registry {
	return &Registry{extractors: extractors}
}

// Supported reports whether any registered extractor handles the file.
func (r *Registry) Supported(path string) bool {
	for _, e := range r.extractors {
		if e.CanExtract(path) {
			return true
		}
	}
	return false
}

func (r *Registry) Extract(ctx context.Context, path string) (*Document, error) {
	for _, e := range r.extractors {
		if e.CanExtract(path) {
			return e.Extract(ctx, path)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
}

// documentID derives the stable identifier from file content and name.
func documentID(content []byte, name string) string {
	h := sha256.New()
	h.Write(content)
	h.Write([]byte(name))
	return hex.EncodeToString(h.Sum(nil))[:16]
}
