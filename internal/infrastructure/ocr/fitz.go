package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"strings"

	"github.com/garyjia/claim-intake/internal/application/port"
	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"
)

const (
	// pdfTextConfidence is assigned to text read from an embedded text layer
	pdfTextConfidence = 0.95

	defaultRenderDPI = 200.0
	defaultMaxPages  = 20
)

// ErrNoPages is returned for a PDF without pages
var ErrNoPages = errors.New("pdf has no pages")

// FitzOptions tunes PDF handling
type FitzOptions struct {
	RenderDPI float64
	MaxPages  int
}

// FitzRecognizer reads PDFs with MuPDF. Pages with an embedded text layer
// are read directly; the rest are rendered and handed to the fallback
// image recognizer.
type FitzRecognizer struct {
	fallback port.TextRecognizer
	opts     FitzOptions
	logger   *zap.Logger
}

// NewFitzRecognizer creates a PDF recognizer. fallback may be nil, in which
// case pages without text contribute nothing.
func NewFitzRecognizer(fallback port.TextRecognizer, opts FitzOptions, logger *zap.Logger) *FitzRecognizer {
	if opts.RenderDPI <= 0 {
		opts.RenderDPI = defaultRenderDPI
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = defaultMaxPages
	}
	return &FitzRecognizer{fallback: fallback, opts: opts, logger: logger}
}

// Recognize extracts text page by page
func (f *FitzRecognizer) Recognize(ctx context.Context, data []byte, mediaType string) (*port.Recognition, error) {
	if mediaType != MediaTypePDF {
		return nil, fmt.Errorf("%w: %s", port.ErrUnsupportedFormat, mediaType)
	}

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return nil, ErrNoPages
	}
	if pageCount > f.opts.MaxPages {
		f.logger.Warn("PDF truncated to page limit",
			zap.Int("total_pages", pageCount),
			zap.Int("max_pages", f.opts.MaxPages))
		pageCount = f.opts.MaxPages
	}

	rec := &port.Recognition{Pages: pageCount, Method: MethodPDFText}
	var texts []string
	rendered := 0

	for n := 0; n < pageCount; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text, err := doc.Text(n)
		if err != nil {
			f.logger.Warn("Failed to read page text", zap.Int("page", n), zap.Error(err))
		}
		if text = strings.TrimSpace(text); text != "" {
			texts = append(texts, text)
			rec.Regions = append(rec.Regions, port.Region{Text: text, Confidence: pdfTextConfidence})
			continue
		}

		if f.fallback == nil {
			continue
		}
		page, err := f.recognizePage(ctx, doc, n)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", n+1, err)
		}
		rendered++
		if page.Text != "" {
			texts = append(texts, page.Text)
		}
		if len(page.Regions) > 0 {
			rec.Regions = append(rec.Regions, page.Regions...)
		} else if page.Text != "" {
			rec.Regions = append(rec.Regions, port.Region{Text: page.Text, Confidence: page.Confidence})
		}
		if page.Method != "" {
			rec.Method = MethodPDFText + "+" + page.Method
		}
	}

	rec.Text = strings.Join(texts, "\n\n")
	rec.Confidence = pdfTextConfidence
	if rendered == pageCount && len(rec.Regions) == 0 {
		rec.Confidence = 0
	}

	f.logger.Debug("PDF recognized",
		zap.Int("pages", pageCount),
		zap.Int("rendered_pages", rendered),
		zap.Int("regions", len(rec.Regions)))

	return rec, nil
}

// recognizePage renders one page to JPEG and runs the fallback recognizer
func (f *FitzRecognizer) recognizePage(ctx context.Context, doc *fitz.Document, n int) (*port.Recognition, error) {
	img, err := doc.ImageDPI(n, f.opts.RenderDPI)
	if err != nil {
		return nil, fmt.Errorf("failed to render page: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode page: %w", err)
	}

	page, err := f.fallback.Recognize(ctx, buf.Bytes(), "image/jpeg")
	if err != nil {
		return nil, err
	}
	page.Text = strings.TrimSpace(page.Text)
	return page, nil
}

var _ port.TextRecognizer = (*FitzRecognizer)(nil)
