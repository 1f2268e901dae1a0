package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// OCREngine recognizes text on a single PDF page that carries no usable
// text layer.
type OCREngine interface {
	PageText(ctx context.Context, pdfPath string, page int) (string, error)
}

// TesseractEngine extracts the page's embedded images with pdfcpu and
// runs each through Tesseract.
type TesseractEngine struct {
	Language string
	TempDir  string
}

func NewTesseractEngine(language string) *TesseractEngine {
	tempDir := filepath.Join(os.TempDir(), "docquery-ocr")
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		tempDir = os.TempDir()
	}

	return &TesseractEngine{
		Language: language,
		TempDir:  tempDir,
	}
}

func (t *TesseractEngine) PageText(ctx context.Context, pdfPath string, page int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	outDir, err := os.MkdirTemp(t.TempDir, fmt.Sprintf("page_%d_", page))
	if err != nil {
		return "", fmt.Errorf("creating scratch dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	conf := model.NewDefaultConfiguration()
	pages := []string{strconv.Itoa(page)}
	if err := api.ExtractImagesFile(pdfPath, outDir, pages, conf); err != nil {
		return "", fmt.Errorf("extracting page %d images: %w", page, err)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return "", fmt.Errorf("reading scratch dir: %w", err)
	}

	var sb strings.Builder
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		text, err := t.recognize(filepath.Join(outDir, entry.Name()))
		if err != nil {
			return "", fmt.Errorf("recognizing page %d: %w", page, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(text)
	}

	return sb.String(), nil
}

func (t *TesseractEngine) recognize(imagePath string) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if t.Language != "" {
		if err := client.SetLanguage(t.Language); err != nil {
			return "", err
		}
	}
	if err := client.SetImage(imagePath); err != nil {
		return "", err
	}

	return client.Text()
}
