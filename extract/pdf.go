package extract

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor pulls the native text layer page by page and falls back
// to OCR for individual pages whose layer is absent or too sparse. A
// page classified as scanned never drags the rest of the document
// through OCR with it.
type PDFExtractor struct {
	// MinPageChars is the density threshold: a page whose native text
	// layer yields fewer non-whitespace characters is treated as
	// scanned and re-extracted through OCR.
	MinPageChars int
	OCR          OCREngine
}

func (e *PDFExtractor) CanExtract(path string) bool {
	return filepath.Ext(path) == ".pdf"
}

func (e *PDFExtractor) Extract(ctx context.Context, path string) (*Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{File: path, Err: err}
	}

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, &Error{File: path, Err: err}
	}

	name := filepath.Base(path)
	doc := &Document{
		ID:    documentID(content, name),
		Name:  name,
		Size:  int64(len(content)),
		Pages: reader.NumPage(),
	}

	var native, scanned int
	for i := 1; i <= doc.Pages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, &Error{File: path, Err: err}
		}

		text := e.nativeText(reader, i)
		if hasEnoughText(text, e.MinPageChars) {
			native++
			doc.Sections = append(doc.Sections, Section{
				Index:  i - 1,
				Method: MethodNativeText,
				Text:   strings.TrimSpace(text),
			})
			continue
		}

		// Sparse or missing text layer: per-page OCR fallback. A page
		// that yields nothing either way is kept empty, not fatal.
		scanned++
		ocrText := ""
		if e.OCR != nil {
			ocrText, err = e.OCR.PageText(ctx, path, i)
			if err != nil {
				ocrText = ""
			}
		}
		doc.Sections = append(doc.Sections, Section{
			Index:  i - 1,
			Method: MethodOCR,
			Text:   strings.TrimSpace(ocrText),
		})
	}

	doc.Format = classifyPDF(native, scanned)
	return doc, nil
}

func (e *PDFExtractor) nativeText(reader *pdf.Reader, page int) string {
	p := reader.Page(page)
	if p.V.IsNull() {
		return ""
	}

	fonts := make(map[string]*pdf.Font)
	text, err := p.GetPlainText(fonts)
	if err != nil {
		return ""
	}
	return text
}

// hasEnoughText applies the characters-per-page density threshold,
// counting non-whitespace runes only.
func hasEnoughText(text string, minChars int) bool {
	count := 0
	for _, r := range text {
		switch r {
		case ' ', '\t', '\n', '\r', '\f':
		default:
			count++
		}
		if count >= minChars {
			return true
		}
	}
	return false
}

func classifyPDF(native, scanned int) Format {
	switch {
	case scanned == 0:
		return FormatPDFText
	case native == 0:
		return FormatPDFScanned
	default:
		return FormatPDFMixed
	}
}
