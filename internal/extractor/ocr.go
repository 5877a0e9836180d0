package extractor

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"

	"github.com/clearledger/vat-extract/internal/domain/entity"
	"github.com/clearledger/vat-extract/internal/patterns"
)

// maxOCRPages bounds how many PDF pages go through OCR per document.
const maxOCRPages = 3

// Runner abstracts external command execution so tests can stub tesseract.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout []byte, stderr []byte, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb
	err := cmd.Run()
	return out.Bytes(), errb.Bytes(), err
}

// OCRExtractor converts image or PDF content to text with tesseract and
// runs the primary VAT regex tier over the recognised text.
type OCRExtractor struct {
	runner   Runner
	language string
	logger   *zap.Logger
}

// NewOCRExtractor creates an OCR extractor. language is a tesseract
// language code, e.g. "eng".
func NewOCRExtractor(runner Runner, language string, logger *zap.Logger) *OCRExtractor {
	if language == "" {
		language = "eng"
	}
	return &OCRExtractor{
		runner:   runner,
		language: language,
		logger:   logger,
	}
}

// Capability returns CapabilityOCR.
func (e *OCRExtractor) Capability() Capability {
	return CapabilityOCR
}

// Extract recognises text from the document and extracts VAT candidates
// with the primary regex tier. The extractor reports no confidence of its
// own; the scoring engine derives one from text readability.
func (e *OCRExtractor) Extract(ctx context.Context, doc *entity.Document) (*entity.RawExtraction, error) {
	pageFiles, cleanup, err := e.writePages(doc)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	var text bytes.Buffer
	for _, file := range pageFiles {
		out, stderr, err := e.runner.Run(ctx, "tesseract", file, "stdout", "-l", e.language)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Error("tesseract failed",
				zap.String("document_id", doc.ID),
				zap.ByteString("stderr", stderr),
				zap.Error(err))
			return nil, fmt.Errorf("%w: tesseract: %v", ErrServiceUnavailable, err)
		}
		text.Write(out)
		text.WriteByte('\n')
	}

	recognised := text.String()
	raw := &entity.RawExtraction{
		Text:       recognised,
		Candidates: patterns.ExtractVATAmounts(recognised),
		VATRate:    patterns.ExtractVATRate(recognised),
	}

	e.logger.Info("OCR extraction completed",
		zap.String("document_id", doc.ID),
		zap.Int("pages", len(pageFiles)),
		zap.Int("text_length", len(recognised)),
		zap.Int("candidates", len(raw.Candidates)))
	return raw, nil
}

// writePages materialises the document as image files tesseract can read:
// images are written as-is, PDFs are rendered page by page. The returned
// cleanup removes the temp directory.
func (e *OCRExtractor) writePages(doc *entity.Document) ([]string, func(), error) {
	dir, err := os.MkdirTemp("", "vatocr-*")
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	if doc.IsImage() {
		path := filepath.Join(dir, "page0"+imageExt(doc.MimeType))
		if err := os.WriteFile(path, doc.Content, 0644); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
		}
		return []string{path}, cleanup, nil
	}

	if !doc.IsPDF() {
		cleanup()
		return nil, nil, fmt.Errorf("%w: OCR cannot read %s", ErrUnsupportedFormat, doc.MimeType)
	}

	pdf, err := fitz.NewFromMemory(doc.Content)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	defer pdf.Close()

	pages := pdf.NumPage()
	if pages > maxOCRPages {
		pages = maxOCRPages
	}

	var files []string
	for page := 0; page < pages; page++ {
		img, err := pdf.Image(page)
		if err != nil {
			continue
		}
		path := filepath.Join(dir, fmt.Sprintf("page%d.png", page))
		f, err := os.Create(path)
		if err != nil {
			continue
		}
		encErr := png.Encode(f, img)
		f.Close()
		if encErr != nil {
			continue
		}
		files = append(files, path)
	}
	if len(files) == 0 {
		cleanup()
		return nil, nil, fmt.Errorf("%w: no renderable pages", ErrMalformedDocument)
	}
	return files, cleanup, nil
}

func imageExt(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/tiff":
		return ".tif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
