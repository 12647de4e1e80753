package validation

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/garyjia/claim-intake/internal/application/port"
	"github.com/garyjia/claim-intake/internal/domain/entity"
	"github.com/garyjia/claim-intake/internal/rules"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrScoring is returned when the risk scorer fails or returns a value
// outside [0,1]
var ErrScoring = errors.New("risk scoring failed")

// Coordinator runs the rule engine and the risk scorer for a claim and
// combines their results
type Coordinator struct {
	engine         *rules.Engine
	scorer         port.RiskScorer
	fraudThreshold float64
	logger         *zap.Logger
}

// NewCoordinator creates a validation coordinator
func NewCoordinator(engine *rules.Engine, scorer port.RiskScorer, fraudThreshold float64, logger *zap.Logger) (*Coordinator, error) {
	if engine == nil || scorer == nil {
		return nil, errors.New("validation coordinator requires a rule engine and a risk scorer")
	}
	if math.IsNaN(fraudThreshold) || fraudThreshold <= 0 || fraudThreshold > 1 {
		return nil, entity.NewConfigurationError("pipeline.fraud_threshold", "must be in (0,1], got %v", fraudThreshold)
	}

	return &Coordinator{
		engine:         engine,
		scorer:         scorer,
		fraudThreshold: fraudThreshold,
		logger:         logger,
	}, nil
}

// Validate evaluates all rules and scores the claim concurrently. The claim
// is only read, so repeated calls give equal results.
func (c *Coordinator) Validate(ctx context.Context, claim *entity.StructuredClaim) (*entity.ValidationResult, error) {
	if claim == nil {
		return nil, errors.New("claim is nil")
	}

	var (
		report *rules.Report
		risk   float64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		report = c.engine.Evaluate(claim)
		return nil
	})
	g.Go(func() error {
		score, err := c.scorer.Score(gctx, claim)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrScoring, err)
		}
		if math.IsNaN(score) || score < 0 || score > 1 {
			return fmt.Errorf("%w: score %v out of range", ErrScoring, score)
		}
		risk = score
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &entity.ValidationResult{
		PassedRules:    report.Passed,
		FailedRules:    report.Failed,
		Flags:          report.Flags,
		RiskScore:      risk,
		FraudThreshold: c.fraudThreshold,
		IsValid:        len(report.Failed) == 0 && risk < c.fraudThreshold,
	}

	c.logger.Debug("Claim validated",
		zap.String("document_id", claim.SourceDocumentID),
		zap.Bool("is_valid", result.IsValid),
		zap.Float64("risk_score", risk),
		zap.Strings("failed_rules", result.FailedRuleIDs()),
		zap.Int("flags", len(result.Flags)))

	return result, nil
}
