package structuring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/garyjia/claim-intake/internal/application/port"
	"github.com/garyjia/claim-intake/internal/domain/entity"
	"go.uber.org/zap"
)

// Options configures the structured extraction stage
type Options struct {
	Policy        RetryPolicy
	MinConfidence float64
	// Timeout bounds each attempt, not the whole retry loop.
	Timeout time.Duration
	// Classifier, when set, picks a category for documents submitted as other.
	Classifier port.DocumentClassifier
}

// Result is an accepted claim record plus the attempts it took
type Result struct {
	Claim    *entity.StructuredClaim
	Attempts int
	// Rejections holds the schema problems of every discarded attempt, in order.
	Rejections []string
}

// Adapter wraps a StructuredExtractor with schema enforcement and the
// retry policy.
type Adapter struct {
	extractor port.StructuredExtractor
	decoder   *SchemaDecoder
	opts      Options
	logger    *zap.Logger
}

// NewAdapter creates a structured extraction adapter
func NewAdapter(extractor port.StructuredExtractor, opts Options, logger *zap.Logger) (*Adapter, error) {
	if err := opts.Policy.Validate(); err != nil {
		return nil, err
	}
	if opts.MinConfidence < 0 || opts.MinConfidence > 1 {
		return nil, entity.NewConfigurationError("pipeline.min_structuring_confidence", "must be between 0.0 and 1.0, got %.2f", opts.MinConfidence)
	}
	return &Adapter{
		extractor: extractor,
		decoder:   NewSchemaDecoder(),
		opts:      opts,
		logger:    logger,
	}, nil
}

// Structure converts extracted text into a claim record or returns an
// *entity.StructuringFailure that reports how many attempts were made.
func (a *Adapter) Structure(ctx context.Context, text *entity.ExtractedText) (*Result, error) {
	category := entity.CategoryOther
	if text.Source != nil {
		category = text.Source.Category
	}
	if category == entity.CategoryOther && a.opts.Classifier != nil {
		category = a.classify(ctx, text)
	}

	var rejections []string
	req := port.StructuringRequest{
		Text:     text.Text,
		Category: category,
	}

	for attempt := 1; ; attempt++ {
		req.Attempt = attempt
		req.Strict = attempt > 1

		claim, reason, err := a.attempt(ctx, req)
		if err == nil {
			if claim.Confidence < a.opts.MinConfidence {
				a.logger.Warn("Structured extraction below confidence floor",
					zap.String("document_id", text.SourceDocumentID),
					zap.Int("attempt", attempt),
					zap.Float64("confidence", claim.Confidence),
					zap.Float64("floor", a.opts.MinConfidence))
				return nil, &entity.StructuringFailure{
					Reason:   entity.StructuringLowConfidence,
					Attempts: attempt,
					Err:      fmt.Errorf("confidence %.2f below floor %.2f", claim.Confidence, a.opts.MinConfidence),
				}
			}

			claim.Source = text
			claim.SourceDocumentID = text.SourceDocumentID

			a.logger.Debug("Claim structured",
				zap.String("document_id", text.SourceDocumentID),
				zap.Int("attempts", attempt),
				zap.Float64("confidence", claim.Confidence))

			return &Result{Claim: claim, Attempts: attempt, Rejections: rejections}, nil
		}

		if !a.opts.Policy.ShouldRetry(reason, attempt) {
			a.logger.Warn("Structured extraction failed",
				zap.String("document_id", text.SourceDocumentID),
				zap.Int("attempts", attempt),
				zap.String("reason", string(reason)),
				zap.Error(err))
			return nil, &entity.StructuringFailure{Reason: reason, Attempts: attempt, Err: err}
		}

		rejections = append(rejections, err.Error())
		req.PreviousError = err.Error()

		a.logger.Info("Retrying structured extraction",
			zap.String("document_id", text.SourceDocumentID),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", a.opts.Policy.MaxAttempts),
			zap.Error(err))
	}
}

// attempt makes one capability call and classifies its outcome
func (a *Adapter) attempt(ctx context.Context, req port.StructuringRequest) (*entity.StructuredClaim, entity.StructuringReason, error) {
	if err := ctx.Err(); err != nil {
		return nil, entity.StructuringEngineError, err
	}

	callCtx := ctx
	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}

	candidate, err := a.extract(callCtx, req)
	if err != nil {
		switch {
		case errors.Is(err, port.ErrSchemaMismatch):
			return nil, entity.StructuringSchemaMismatch, err
		case errors.Is(callCtx.Err(), context.DeadlineExceeded):
			return nil, entity.StructuringEngineError, fmt.Errorf("structured extraction timed out: %w", err)
		default:
			return nil, entity.StructuringEngineError, err
		}
	}
	if candidate == nil {
		return nil, entity.StructuringEngineError, errors.New("extractor returned no candidate")
	}

	if err := checkConfidence(candidate); err != nil {
		return nil, entity.StructuringEngineError, err
	}

	claim, err := a.decoder.Decode(candidate.Payload, candidate.Confidence, candidate.FieldConfidence)
	if err != nil {
		return nil, entity.StructuringSchemaMismatch, err
	}
	return claim, "", nil
}

// classify asks the classifier for a category. It is a prompt hint only, so
// any failure falls back to other.
func (a *Adapter) classify(ctx context.Context, text *entity.ExtractedText) entity.DocumentCategory {
	callCtx := ctx
	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}

	done := make(chan entity.DocumentCategory, 1)
	go func() {
		category, err := a.opts.Classifier.ClassifyDocument(callCtx, text.Text)
		if err != nil {
			a.logger.Warn("Document classification failed",
				zap.String("document_id", text.SourceDocumentID),
				zap.Error(err))
			category = entity.CategoryOther
		}
		done <- category
	}()

	select {
	case category := <-done:
		if !category.IsValid() {
			return entity.CategoryOther
		}
		a.logger.Debug("Document category inferred",
			zap.String("document_id", text.SourceDocumentID),
			zap.String("category", string(category)))
		return category
	case <-callCtx.Done():
		a.logger.Warn("Document classification timed out",
			zap.String("document_id", text.SourceDocumentID))
		return entity.CategoryOther
	}
}

type candidateResult struct {
	candidate *port.Candidate
	err       error
}

// extract waits for the extractor only until ctx is done
func (a *Adapter) extract(ctx context.Context, req port.StructuringRequest) (*port.Candidate, error) {
	done := make(chan candidateResult, 1)
	go func() {
		candidate, err := a.extractor.ExtractStructured(ctx, req)
		done <- candidateResult{candidate: candidate, err: err}
	}()

	select {
	case res := <-done:
		return res.candidate, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// checkConfidence rejects scores the capability itself reported out of
// range. They are engine faults, not candidate shape problems.
func checkConfidence(c *port.Candidate) error {
	if !unitInterval(c.Confidence) {
		return fmt.Errorf("extractor reported confidence %v outside [0,1]", c.Confidence)
	}
	for field, v := range c.FieldConfidence {
		if !unitInterval(v) {
			return fmt.Errorf("extractor reported %s confidence %v outside [0,1]", field, v)
		}
	}
	return nil
}

func unitInterval(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}
