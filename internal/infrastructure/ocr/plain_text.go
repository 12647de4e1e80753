package ocr

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/garyjia/claim-intake/internal/application/port"
)

// plainTextConfidence is reported for text documents decoded without errors
const plainTextConfidence = 1.0

// PlainTextRecognizer reads text/* documents as UTF-8
type PlainTextRecognizer struct{}

// NewPlainTextRecognizer creates a plain text recognizer
func NewPlainTextRecognizer() *PlainTextRecognizer {
	return &PlainTextRecognizer{}
}

// Recognize returns the document as text. Invalid UTF-8 sequences are
// replaced and lower the confidence in proportion to how much was lost.
func (p *PlainTextRecognizer) Recognize(ctx context.Context, data []byte, mediaType string) (*port.Recognition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(mediaType, "text/") {
		return nil, fmt.Errorf("%w: %s", port.ErrUnsupportedFormat, mediaType)
	}

	confidence := plainTextConfidence
	text := string(data)
	if !utf8.Valid(data) {
		text = strings.ToValidUTF8(text, string(utf8.RuneError))
		bad := strings.Count(text, string(utf8.RuneError))
		if total := utf8.RuneCountInString(text); total > 0 {
			confidence = 1 - float64(bad)/float64(total)
		}
	}

	return &port.Recognition{
		Text:       text,
		Confidence: confidence,
		Pages:      1,
		Method:     MethodPlainText,
	}, nil
}

var _ port.TextRecognizer = (*PlainTextRecognizer)(nil)
