package extract

import (
	"context"
	"os"
	"path/filepath"
	"unicode/utf8"
)

// TxtExtractor reads plain text files. Non-UTF-8 input is decoded as
// Latin-1 rather than rejected.
type TxtExtractor struct{}

func (e *TxtExtractor) CanExtract(path string) bool {
	return filepath.Ext(path) == ".txt"
}

func (e *TxtExtractor) Extract(ctx context.Context, path string) (*Document, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{File: path, Err: err}
	}

	text := decodeText(buf)
	name := filepath.Base(path)

	doc := &Document{
		ID:     documentID(buf, name),
		Name:   name,
		Format: FormatTXT,
		Size:   int64(len(buf)),
	}
	if text != "" {
		doc.Sections = []Section{{Index: 0, Method: MethodParagraph, Text: text}}
	}

	return doc, nil
}

func decodeText(buf []byte) string {
	if utf8.Valid(buf) {
		return string(buf)
	}

	// Latin-1: every byte maps to the code point of the same value.
	runes := make([]rune, len(buf))
	for i, b := range buf {
		runes[i] = rune(b)
	}
	return string(runes)
}
