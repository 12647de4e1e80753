package routing

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/garyjia/claim-intake/internal/domain/entity"
	"go.uber.org/zap"
)

// Step identifiers recorded on every decision
const (
	StepRuleFailure  = "RULE_FAILURE"
	StepFraudRisk    = "FRAUD_RISK"
	StepHighAmount   = "HIGH_AMOUNT"
	StepAutoApproval = "AUTO_APPROVAL"
	StepDefault      = "DEFAULT"
)

// Options holds the routing thresholds
type Options struct {
	FraudThreshold        float64
	LowRiskMargin         float64
	AutoApproveThreshold  float64
	ManualReviewThreshold float64
	// Now stamps DecidedAt; nil means time.Now.
	Now func() time.Time
}

// Validate checks the thresholds are consistent
func (o Options) Validate() error {
	if math.IsNaN(o.FraudThreshold) || o.FraudThreshold <= 0 || o.FraudThreshold > 1 {
		return entity.NewConfigurationError("pipeline.fraud_threshold", "must be in (0,1], got %v", o.FraudThreshold)
	}
	if math.IsNaN(o.LowRiskMargin) || o.LowRiskMargin < 0 || o.LowRiskMargin > o.FraudThreshold {
		return entity.NewConfigurationError("pipeline.low_risk_margin", "must be in [0,fraud_threshold], got %v", o.LowRiskMargin)
	}
	if math.IsNaN(o.AutoApproveThreshold) || o.AutoApproveThreshold < 0 {
		return entity.NewConfigurationError("pipeline.auto_approve_threshold", "must be non-negative, got %v", o.AutoApproveThreshold)
	}
	if math.IsNaN(o.ManualReviewThreshold) || o.AutoApproveThreshold > o.ManualReviewThreshold {
		return entity.NewConfigurationError("pipeline.auto_approve_threshold",
			"%v must not exceed manual_review_threshold %v", o.AutoApproveThreshold, o.ManualReviewThreshold)
	}
	return nil
}

// Engine maps a validated claim to exactly one routing action
type Engine struct {
	opts   Options
	now    func() time.Time
	logger *zap.Logger
}

// NewEngine creates a routing engine, rejecting inconsistent thresholds
func NewEngine(opts Options, logger *zap.Logger) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{opts: opts, now: now, logger: logger}, nil
}

// Decide applies the routing steps in order; the first match wins
func (e *Engine) Decide(claim *entity.StructuredClaim, result *entity.ValidationResult) (*entity.RoutingDecision, error) {
	if claim == nil || result == nil {
		return nil, errors.New("routing requires a claim and its validation result")
	}

	action, step, rationale := e.classify(claim, result)
	decision := &entity.RoutingDecision{
		Action:    action,
		Step:      step,
		Rationale: rationale,
		DecidedAt: e.now().UTC(),
	}

	e.logger.Info("Claim routed",
		zap.String("document_id", claim.SourceDocumentID),
		zap.String("action", action.String()),
		zap.String("step", step),
		zap.Float64("risk_score", result.RiskScore),
		zap.Float64("amount", claim.AmountValue()))

	return decision, nil
}

func (e *Engine) classify(claim *entity.StructuredClaim, result *entity.ValidationResult) (entity.RoutingAction, string, string) {
	risk := result.RiskScore
	amount := claim.AmountValue()

	if !result.IsValid && result.HasRuleFailures() {
		return entity.ActionReject, StepRuleFailure,
			fmt.Sprintf("failed rules: %s", strings.Join(result.FailedRuleIDs(), ", "))
	}
	if !result.IsValid {
		return entity.ActionEscalate, StepFraudRisk,
			fmt.Sprintf("risk score %.3f is at or above fraud threshold %.3f", risk, e.opts.FraudThreshold)
	}
	if amount > e.opts.ManualReviewThreshold {
		return entity.ActionManualReview, StepHighAmount,
			fmt.Sprintf("amount %.2f exceeds manual review threshold %.2f", amount, e.opts.ManualReviewThreshold)
	}
	if amount <= e.opts.AutoApproveThreshold && risk < e.opts.LowRiskMargin {
		return entity.ActionAutoApprove, StepAutoApproval,
			fmt.Sprintf("amount %.2f within auto-approve limit %.2f and risk %.3f below %.3f",
				amount, e.opts.AutoApproveThreshold, risk, e.opts.LowRiskMargin)
	}
	return entity.ActionManualReview, StepDefault,
		fmt.Sprintf("amount %.2f with risk %.3f does not qualify for auto-approval", amount, risk)
}
