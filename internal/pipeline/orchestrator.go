package pipeline

import (
	"context"
	"errors"
	"path"
	"time"

	"github.com/garyjia/claim-intake/internal/application/dispatcher"
	"github.com/garyjia/claim-intake/internal/application/port"
	"github.com/garyjia/claim-intake/internal/domain/entity"
	"github.com/garyjia/claim-intake/internal/domain/event"
	"github.com/garyjia/claim-intake/internal/domain/workflow"
	"github.com/garyjia/claim-intake/internal/structuring"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var errNoDocument = errors.New("no document submitted")

// Reasons recorded for failures outside the typed adapter failures
const (
	ReasonScoringError    = "SCORING_ERROR"
	ReasonEngineError     = "ENGINE_ERROR"
	ReasonPaymentRejected = "PAYMENT_REJECTED"
	ReasonTimeout         = "TIMEOUT"
)

// TextExtractor turns a document into text
type TextExtractor interface {
	Extract(ctx context.Context, doc *entity.ClaimDocument) (*entity.ExtractedText, error)
}

// ClaimStructurer turns text into a claim record
type ClaimStructurer interface {
	Structure(ctx context.Context, text *entity.ExtractedText) (*structuring.Result, error)
}

// ClaimValidator evaluates rules and risk for a claim
type ClaimValidator interface {
	Validate(ctx context.Context, claim *entity.StructuredClaim) (*entity.ValidationResult, error)
}

// Router assigns a routing action
type Router interface {
	Decide(claim *entity.StructuredClaim, result *entity.ValidationResult) (*entity.RoutingDecision, error)
}

// Orchestrator drives one document through the stages in order
type Orchestrator struct {
	extractor  TextExtractor
	structurer ClaimStructurer
	validator  ClaimValidator
	router     Router
	gateway    port.PaymentGateway

	settlementTimeout time.Duration
	dispatcher        dispatcher.Dispatcher
	recorder          port.OutcomeRepository
	notifier          port.ReviewNotifier
	archive           port.FileStorage

	logger *zap.Logger
}

// Option configures the orchestrator
type Option func(*Orchestrator)

// WithSettlementTimeout bounds the payment gateway call
func WithSettlementTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.settlementTimeout = d }
}

// WithDispatcher publishes run events to subscribers
func WithDispatcher(d dispatcher.Dispatcher) Option {
	return func(o *Orchestrator) { o.dispatcher = d }
}

// WithRecorder persists each terminal outcome
func WithRecorder(r port.OutcomeRepository) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithReviewNotifier alerts reviewers about claims routed to a person
func WithReviewNotifier(n port.ReviewNotifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithArchive stores the submitted document bytes by digest
func WithArchive(s port.FileStorage) Option {
	return func(o *Orchestrator) { o.archive = s }
}

// New creates an orchestrator. The gateway may be nil, in which case
// approved claims are routed without settlement.
func New(
	extractor TextExtractor,
	structurer ClaimStructurer,
	validator ClaimValidator,
	router Router,
	gateway port.PaymentGateway,
	logger *zap.Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		extractor:         extractor,
		structurer:        structurer,
		validator:         validator,
		router:            router,
		gateway:           gateway,
		settlementTimeout: 30 * time.Second,
		logger:            logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run holds the mutable state of one pipeline run
type run struct {
	outcome *entity.ClaimOutcome
	machine workflow.StateMachine
	logger  *zap.Logger
}

func (r *run) documentID() string {
	if r.outcome.Document == nil {
		return ""
	}
	return r.outcome.Document.ID
}

// Process runs a document through the pipeline and always returns an
// outcome. Stage errors end the run in FAILED; they are never returned.
func (o *Orchestrator) Process(ctx context.Context, doc *entity.ClaimDocument) *entity.ClaimOutcome {
	r := &run{
		outcome: &entity.ClaimOutcome{
			RunID:     uuid.NewString(),
			Document:  doc,
			StartedAt: time.Now().UTC(),
		},
		machine: workflow.NewClaimMachine(),
	}
	r.logger = o.logger.With(zap.String("run_id", r.outcome.RunID), zap.String("document_id", r.documentID()))

	if doc == nil {
		o.fail(ctx, r, entity.StageExtraction, string(entity.ExtractionEmptyOutput), errNoDocument)
		o.finish(ctx, r)
		return r.outcome
	}

	o.emit(ctx, r, event.TypeClaimReceived, map[string]interface{}{
		"filename":   doc.Filename,
		"media_type": doc.MediaType,
		"category":   string(doc.Category),
		"size":       doc.Size,
		"digest":     doc.Digest,
	})
	o.archiveDocument(ctx, r, doc)

	o.execute(ctx, r, doc)
	o.finish(ctx, r)

	return r.outcome
}

func (o *Orchestrator) execute(ctx context.Context, r *run, doc *entity.ClaimDocument) {
	out := r.outcome

	// Extraction
	text, err := o.extractor.Extract(ctx, doc)
	if err != nil {
		o.fail(ctx, r, entity.StageExtraction, extractionReason(err), err)
		return
	}
	out.Text = text
	if !o.advance(ctx, r, workflow.TriggerTextExtracted, event.TypeTextExtracted, map[string]interface{}{
		"confidence": text.Confidence,
		"degraded":   text.Degraded,
		"method":     text.Method,
		"chars":      len(text.Text),
	}) {
		return
	}

	// Structuring
	result, err := o.structurer.Structure(ctx, text)
	if err != nil {
		var sf *entity.StructuringFailure
		if errors.As(err, &sf) {
			out.StructuringAttempts = sf.Attempts
		}
		o.fail(ctx, r, entity.StageStructuring, structuringReason(err), err)
		return
	}
	out.Claim = result.Claim
	out.StructuringAttempts = result.Attempts
	for i, rejection := range result.Rejections {
		o.emit(ctx, r, event.TypeStructuringRetried, map[string]interface{}{
			"attempt": i + 1,
			"error":   rejection,
		})
	}
	if !o.advance(ctx, r, workflow.TriggerStructured, event.TypeClaimStructured, map[string]interface{}{
		"attempts":   result.Attempts,
		"confidence": result.Claim.Confidence,
	}) {
		return
	}

	// Validation
	validation, err := o.validator.Validate(ctx, result.Claim)
	if err != nil {
		o.fail(ctx, r, entity.StageValidation, ReasonScoringError, err)
		return
	}
	out.Validation = validation
	if !o.advance(ctx, r, workflow.TriggerValidated, event.TypeClaimValidated, map[string]interface{}{
		"is_valid":     validation.IsValid,
		"risk_score":   validation.RiskScore,
		"failed_rules": validation.FailedRuleIDs(),
		"flags":        len(validation.Flags),
	}) {
		return
	}

	// Routing
	decision, err := o.router.Decide(result.Claim, validation)
	if err != nil {
		o.fail(ctx, r, entity.StageRouting, ReasonEngineError, err)
		return
	}
	out.Decision = decision

	// Settlement happens before the run is marked ROUTED so a failed
	// payment can still end in FAILED with the decision kept.
	if decision.Action == entity.ActionAutoApprove && o.gateway != nil {
		ref, err := o.settle(ctx, result.Claim, decision)
		if err != nil {
			o.fail(ctx, r, entity.StageSettlement, settlementReason(err), err)
			return
		}
		out.SettlementRef = ref
		o.emit(ctx, r, event.TypeSettlementSubmitted, map[string]interface{}{
			"reference": ref,
			"amount":    result.Claim.AmountValue(),
		})
	}

	o.advance(ctx, r, workflow.TriggerRouted, event.TypeClaimRouted, map[string]interface{}{
		"action":    decision.Action.String(),
		"step":      decision.Step,
		"rationale": decision.Rationale,
	})
}

func (o *Orchestrator) settle(ctx context.Context, claim *entity.StructuredClaim, decision *entity.RoutingDecision) (string, error) {
	callCtx := ctx
	if o.settlementTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.settlementTimeout)
		defer cancel()
	}

	ref, err := o.gateway.SubmitPayment(callCtx, claim, decision)
	if err != nil {
		return "", &entity.SettlementFailure{Err: err}
	}
	return ref, nil
}

// advance fires a trigger and records its event. A rejected transition is
// a programming error and ends the run in FAILED.
func (o *Orchestrator) advance(ctx context.Context, r *run, trigger workflow.Trigger, evtType event.Type, payload map[string]interface{}) bool {
	if err := r.machine.Fire(ctx, trigger); err != nil {
		r.logger.Error("Invalid pipeline transition",
			zap.String("state", r.machine.State().String()),
			zap.String("trigger", trigger.String()),
			zap.Error(err))
		o.fail(ctx, r, stageFor(trigger), ReasonEngineError, err)
		return false
	}
	o.emit(ctx, r, evtType, payload)
	return true
}

func (o *Orchestrator) fail(ctx context.Context, r *run, stage entity.Stage, reason string, err error) {
	failure := &entity.StageFailure{Stage: stage, Reason: reason, Err: err}
	if err != nil {
		failure.Detail = err.Error()
	}
	r.outcome.Failure = failure

	if fireErr := r.machine.Fire(ctx, workflow.TriggerFail); fireErr != nil {
		r.logger.Error("Cannot move run to FAILED",
			zap.String("state", r.machine.State().String()),
			zap.Error(fireErr))
	}

	r.logger.Warn("Pipeline run failed",
		zap.String("stage", string(stage)),
		zap.String("reason", reason),
		zap.Error(err))

	o.emit(ctx, r, event.TypeClaimFailed, map[string]interface{}{
		"stage":  string(stage),
		"reason": reason,
		"detail": failure.Detail,
	})
}

func (o *Orchestrator) emit(ctx context.Context, r *run, evtType event.Type, payload map[string]interface{}) {
	evt := event.NewEvent(evtType, r.outcome.RunID, r.documentID(), payload)
	r.outcome.Events = append(r.outcome.Events, evt)

	if o.dispatcher != nil {
		if err := o.dispatcher.Publish(ctx, evt); err != nil {
			r.logger.Warn("Event delivery failed", zap.String("event_type", evtType.String()), zap.Error(err))
		}
	}
}

// finish stamps the terminal state and runs the side effects that must not
// change the outcome: audit persistence and reviewer notification.
func (o *Orchestrator) finish(ctx context.Context, r *run) {
	out := r.outcome
	out.State = r.machine.State().String()
	out.CompletedAt = time.Now().UTC()

	if o.recorder != nil {
		if err := o.recorder.Save(ctx, out); err != nil {
			r.logger.Error("Failed to record claim outcome", zap.Error(err))
		}
	}

	if o.notifier != nil && !out.Failed() && out.Action().RequiresHuman() {
		if err := o.notifier.NotifyReview(ctx, out); err != nil {
			r.logger.Warn("Failed to notify reviewers", zap.Error(err))
		}
	}

	r.logger.Info("Pipeline run completed",
		zap.String("state", out.State),
		zap.String("summary", out.Summary()),
		zap.Duration("elapsed", out.CompletedAt.Sub(out.StartedAt)))
}

func (o *Orchestrator) archiveDocument(ctx context.Context, r *run, doc *entity.ClaimDocument) {
	if o.archive == nil || doc.Digest == "" {
		return
	}
	rel := ArchivePath(doc)
	if o.archive.Exists(ctx, rel) {
		return
	}
	if err := o.archive.Save(ctx, rel, doc.Bytes()); err != nil {
		r.logger.Warn("Failed to archive document", zap.String("path", rel), zap.Error(err))
	}
}

// ArchivePath is the storage path of a document, sharded by digest prefix
func ArchivePath(doc *entity.ClaimDocument) string {
	if len(doc.Digest) < 2 {
		return path.Join("documents", doc.Digest)
	}
	return path.Join("documents", doc.Digest[:2], doc.Digest)
}

func extractionReason(err error) string {
	var ef *entity.ExtractionFailure
	if errors.As(err, &ef) {
		return string(ef.Reason)
	}
	return string(entity.ExtractionEngineError)
}

func structuringReason(err error) string {
	var sf *entity.StructuringFailure
	if errors.As(err, &sf) {
		return string(sf.Reason)
	}
	return string(entity.StructuringEngineError)
}

func settlementReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	return ReasonPaymentRejected
}

func stageFor(trigger workflow.Trigger) entity.Stage {
	switch trigger {
	case workflow.TriggerTextExtracted:
		return entity.StageExtraction
	case workflow.TriggerStructured:
		return entity.StageStructuring
	case workflow.TriggerValidated:
		return entity.StageValidation
	default:
		return entity.StageRouting
	}
}
