package extract

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"code.sajari.com/docconv/v2"
)

// DocxExtractor converts word-processor documents through docconv and
// keeps the structural paragraphs, in document order, as sections.
type DocxExtractor struct{}

func (e *DocxExtractor) CanExtract(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".docx" || ext == ".odt"
}

func (e *DocxExtractor) Extract(ctx context.Context, path string) (*Document, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{File: path, Err: err}
	}

	res, err := docconv.ConvertPath(path)
	if err != nil {
		return nil, &Error{File: path, Err: err}
	}

	name := filepath.Base(path)
	doc := &Document{
		ID:     documentID(buf, name),
		Name:   name,
		Format: FormatDOCX,
		Size:   int64(len(buf)),
	}

	idx := 0
	for _, para := range strings.Split(res.Body, "\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		doc.Sections = append(doc.Sections, Section{
			Index:  idx,
			Method: MethodParagraph,
			Text:   para,
		})
		idx++
	}

	return doc, nil
}
