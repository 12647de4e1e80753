package extraction

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/garyjia/claim-intake/internal/application/port"
	"github.com/garyjia/claim-intake/internal/domain/entity"
	"go.uber.org/zap"
)

// Options configures the text extraction stage
type Options struct {
	Timeout       time.Duration
	MinConfidence float64
}

// Adapter wraps a TextRecognizer with deterministic preprocessing,
// output normalisation and confidence aggregation.
type Adapter struct {
	recognizer port.TextRecognizer
	opts       Options
	logger     *zap.Logger
}

// NewAdapter creates a text extraction adapter
func NewAdapter(recognizer port.TextRecognizer, opts Options, logger *zap.Logger) *Adapter {
	return &Adapter{
		recognizer: recognizer,
		opts:       opts,
		logger:     logger,
	}
}

// Extract produces the text of one document or an *entity.ExtractionFailure
func (a *Adapter) Extract(ctx context.Context, doc *entity.ClaimDocument) (*entity.ExtractedText, error) {
	raw := doc.Bytes()
	if len(raw) == 0 {
		return nil, &entity.ExtractionFailure{Reason: entity.ExtractionEmptyOutput, Err: errors.New("document has no content")}
	}

	mediaType := CanonicalMediaType(doc.MediaType, raw)
	data := Preprocess(raw, mediaType)

	callCtx := ctx
	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	rec, err := a.recognize(callCtx, data, mediaType)
	if err != nil {
		failure := classify(callCtx, err)
		a.logger.Warn("Text recognition failed",
			zap.String("document_id", doc.ID),
			zap.String("media_type", mediaType),
			zap.String("reason", string(failure.Reason)),
			zap.Error(err))
		return nil, failure
	}
	if rec == nil {
		return nil, &entity.ExtractionFailure{Reason: entity.ExtractionEngineError, Err: errors.New("recognizer returned no result")}
	}

	text := NormalizeText(rec.Text)
	if text == "" {
		text = NormalizeText(joinRegions(rec.Regions))
	}
	if text == "" {
		return nil, &entity.ExtractionFailure{Reason: entity.ExtractionEmptyOutput}
	}

	confidence, err := AggregateConfidence(rec)
	if err != nil {
		return nil, &entity.ExtractionFailure{Reason: entity.ExtractionEngineError, Err: err}
	}

	result := &entity.ExtractedText{
		Text:             text,
		Confidence:       confidence,
		Degraded:         confidence < a.opts.MinConfidence,
		Method:           rec.Method,
		PageCount:        rec.Pages,
		RegionCount:      len(rec.Regions),
		SourceDocumentID: doc.ID,
		Source:           doc,
	}

	fields := []zap.Field{
		zap.String("document_id", doc.ID),
		zap.String("media_type", mediaType),
		zap.String("method", rec.Method),
		zap.Int("chars", utf8.RuneCountInString(text)),
		zap.Float64("confidence", confidence),
		zap.Duration("elapsed", time.Since(start)),
	}
	if result.Degraded {
		a.logger.Warn("Text extraction degraded", append(fields, zap.Float64("floor", a.opts.MinConfidence))...)
	} else {
		a.logger.Debug("Text extracted", fields...)
	}

	return result, nil
}

type recognition struct {
	rec *port.Recognition
	err error
}

// recognize waits for the recognizer only until ctx is done. Native engines
// do not observe ctx, so a late result is dropped rather than accepted.
func (a *Adapter) recognize(ctx context.Context, data []byte, mediaType string) (*port.Recognition, error) {
	done := make(chan recognition, 1)
	go func() {
		rec, err := a.recognizer.Recognize(ctx, data, mediaType)
		done <- recognition{rec: rec, err: err}
	}()

	select {
	case res := <-done:
		return res.rec, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AggregateConfidence folds per-region confidences into one scalar using a
// rune-count weighted average. Without usable regions the recognizer's own
// confidence is used.
func AggregateConfidence(rec *port.Recognition) (float64, error) {
	var weighted, total float64
	for _, r := range rec.Regions {
		n := float64(utf8.RuneCountInString(strings.TrimSpace(r.Text)))
		if n == 0 {
			continue
		}
		if math.IsNaN(r.Confidence) || math.IsInf(r.Confidence, 0) {
			return 0, fmt.Errorf("region confidence is not finite: %v", r.Confidence)
		}
		weighted += clampUnit(r.Confidence) * n
		total += n
	}
	if total > 0 {
		return clampUnit(weighted / total), nil
	}

	if math.IsNaN(rec.Confidence) || math.IsInf(rec.Confidence, 0) {
		return 0, fmt.Errorf("recognition confidence is not finite: %v", rec.Confidence)
	}
	return clampUnit(rec.Confidence), nil
}

func classify(ctx context.Context, err error) *entity.ExtractionFailure {
	switch {
	case errors.Is(err, port.ErrUnsupportedFormat):
		return &entity.ExtractionFailure{Reason: entity.ExtractionUnsupportedFormat, Err: err}
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &entity.ExtractionFailure{Reason: entity.ExtractionEngineError, Err: fmt.Errorf("recognition timed out: %w", err)}
	default:
		return &entity.ExtractionFailure{Reason: entity.ExtractionEngineError, Err: err}
	}
}

func joinRegions(regions []port.Region) string {
	parts := make([]string, 0, len(regions))
	for _, r := range regions {
		parts = append(parts, r.Text)
	}
	return strings.Join(parts, " ")
}

func clampUnit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
