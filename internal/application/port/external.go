package port

import (
	"context"
	"errors"

	"github.com/garyjia/claim-intake/internal/domain/entity"
)

var (
	// ErrUnsupportedFormat is returned by a recognizer that cannot read the media type
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrSchemaMismatch is returned by an extractor whose output is not a valid claim record
	ErrSchemaMismatch = errors.New("output does not match claim schema")
)

// Region is one recognised span of text with its own confidence
type Region struct {
	Text       string
	Confidence float64
}

// Recognition is the raw output of a text recognition engine
type Recognition struct {
	Text       string
	Confidence float64
	Regions    []Region
	Pages      int
	Method     string
}

// TextRecognizer turns document bytes into text
type TextRecognizer interface {
	Recognize(ctx context.Context, data []byte, mediaType string) (*Recognition, error)
}

// StructuringRequest is one invocation of the structured extraction capability
type StructuringRequest struct {
	Text     string
	Category entity.DocumentCategory
	Attempt  int
	// Strict asks the extractor to adhere more tightly to the schema,
	// PreviousError describes why the previous candidate was rejected.
	Strict        bool
	PreviousError string
}

// Candidate is an unvalidated claim record in JSON form
type Candidate struct {
	Payload         []byte
	Confidence      float64
	FieldConfidence map[string]float64
}

// StructuredExtractor turns text into a candidate claim record
type StructuredExtractor interface {
	ExtractStructured(ctx context.Context, req StructuringRequest) (*Candidate, error)
}

// DocumentClassifier guesses the category of a document submitted as other
type DocumentClassifier interface {
	ClassifyDocument(ctx context.Context, text string) (entity.DocumentCategory, error)
}

// RiskScorer produces a risk score in [0,1] for a claim
type RiskScorer interface {
	Score(ctx context.Context, claim *entity.StructuredClaim) (float64, error)
}

// PaymentGateway hands an approved claim to the settlement system
type PaymentGateway interface {
	SubmitPayment(ctx context.Context, claim *entity.StructuredClaim, decision *entity.RoutingDecision) (string, error)
}

// ReviewNotifier tells a human reviewer about a claim that needs attention
type ReviewNotifier interface {
	NotifyReview(ctx context.Context, outcome *entity.ClaimOutcome) error
}
