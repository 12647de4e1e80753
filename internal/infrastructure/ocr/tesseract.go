package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/claim-intake/internal/application/port"
	"github.com/otiai10/gosseract/v2"
	"go.uber.org/zap"
)

// TesseractRecognizer runs tesseract over image documents. A client is
// created per call since gosseract clients are not safe for concurrent use.
type TesseractRecognizer struct {
	languages []string
	logger    *zap.Logger
}

// NewTesseractRecognizer creates an image recognizer for the given
// tesseract language codes
func NewTesseractRecognizer(languages []string, logger *zap.Logger) *TesseractRecognizer {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &TesseractRecognizer{languages: languages, logger: logger}
}

// Recognize returns word regions with tesseract's per-word confidence
func (t *TesseractRecognizer) Recognize(ctx context.Context, data []byte, mediaType string) (*port.Recognition, error) {
	if !strings.HasPrefix(mediaType, "image/") {
		return nil, fmt.Errorf("%w: %s", port.ErrUnsupportedFormat, mediaType)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.languages...); err != nil {
		return nil, fmt.Errorf("failed to set OCR language: %w", err)
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("failed to load image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("tesseract failed: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("failed to read word confidences: %w", err)
	}

	rec := &port.Recognition{
		Text:   text,
		Pages:  1,
		Method: MethodTesseract,
	}
	rec.Regions, rec.Confidence = wordRegions(boxes)

	t.logger.Debug("Image recognized",
		zap.Int("words", len(rec.Regions)),
		zap.Float64("mean_confidence", rec.Confidence))

	return rec, nil
}

// wordRegions converts tesseract boxes (confidence 0..100) to regions
func wordRegions(boxes []gosseract.BoundingBox) ([]port.Region, float64) {
	regions := make([]port.Region, 0, len(boxes))
	var sum float64
	for _, b := range boxes {
		word := strings.TrimSpace(b.Word)
		if word == "" {
			continue
		}
		c := b.Confidence / 100
		regions = append(regions, port.Region{Text: word, Confidence: c})
		sum += c
	}
	if len(regions) == 0 {
		return regions, 0
	}
	return regions, sum / float64(len(regions))
}

var _ port.TextRecognizer = (*TesseractRecognizer)(nil)
