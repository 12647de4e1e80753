package entity

import (
	"fmt"
	"time"

	"github.com/garyjia/claim-intake/internal/domain/event"
)

// Stage names the pipeline stage a failure occurred in
type Stage string

const (
	StageExtraction  Stage = "EXTRACTION"
	StageStructuring Stage = "STRUCTURING"
	StageValidation  Stage = "VALIDATION"
	StageRouting     Stage = "ROUTING"
	StageSettlement  Stage = "SETTLEMENT"
)

// StageFailure records which stage halted a run and why
type StageFailure struct {
	Stage  Stage  `json:"stage"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`

	Err error `json:"-"`
}

// String renders the failure as FAILED(STAGE, REASON)
func (f *StageFailure) String() string {
	return fmt.Sprintf("FAILED(%s, %s)", f.Stage, f.Reason)
}

// ClaimOutcome is the terminal result of one pipeline run. Every artifact
// produced before a failure is kept for diagnostics.
type ClaimOutcome struct {
	RunID    string         `json:"run_id"`
	State    string         `json:"state"`
	Document *ClaimDocument `json:"document"`

	Text       *ExtractedText    `json:"text,omitempty"`
	Claim      *StructuredClaim  `json:"claim,omitempty"`
	Validation *ValidationResult `json:"validation,omitempty"`
	Decision   *RoutingDecision  `json:"decision,omitempty"`

	SettlementRef       string        `json:"settlement_ref,omitempty"`
	StructuringAttempts int           `json:"structuring_attempts"`
	Failure             *StageFailure `json:"failure,omitempty"`

	Events      []*event.Event `json:"events,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
}

// Failed reports whether the run ended in FAILED
func (o *ClaimOutcome) Failed() bool {
	return o.Failure != nil
}

// Action returns the routing action, or empty when no decision was made
func (o *ClaimOutcome) Action() RoutingAction {
	if o.Decision == nil {
		return ""
	}
	return o.Decision.Action
}

// Summary is a one-line description suitable for logs and reports
func (o *ClaimOutcome) Summary() string {
	if o.Failure != nil {
		return o.Failure.String()
	}
	if o.Decision != nil {
		return fmt.Sprintf("%s (%s)", o.Decision.Action, o.Decision.Rationale)
	}
	return o.State
}
