package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/claim-intake/internal/application/port"
	"go.uber.org/zap"
)

const (
	MediaTypePDF = "application/pdf"

	MethodPDFText   = "pdf_text"
	MethodTesseract = "tesseract"
	MethodVision    = "vision"
	MethodPlainText = "plain_text"
)

// Router picks a recognizer by canonical media type
type Router struct {
	pdf    port.TextRecognizer
	image  port.TextRecognizer
	text   port.TextRecognizer
	logger *zap.Logger
}

// NewRouter creates a media type router. A nil recognizer leaves that
// family unsupported.
func NewRouter(pdf, image, text port.TextRecognizer, logger *zap.Logger) *Router {
	return &Router{pdf: pdf, image: image, text: text, logger: logger}
}

// Recognize dispatches to the recognizer for mediaType
func (r *Router) Recognize(ctx context.Context, data []byte, mediaType string) (*port.Recognition, error) {
	target := r.route(mediaType)
	if target == nil {
		r.logger.Debug("No recognizer for media type", zap.String("media_type", mediaType))
		return nil, fmt.Errorf("%w: %s", port.ErrUnsupportedFormat, mediaType)
	}
	return target.Recognize(ctx, data, mediaType)
}

func (r *Router) route(mediaType string) port.TextRecognizer {
	switch {
	case mediaType == MediaTypePDF:
		return r.pdf
	case strings.HasPrefix(mediaType, "image/"):
		return r.image
	case strings.HasPrefix(mediaType, "text/"):
		return r.text
	}
	return nil
}

var _ port.TextRecognizer = (*Router)(nil)
