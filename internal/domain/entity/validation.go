package entity

import (
	"fmt"
	"time"
)

// RuleFailure is a hard rule violation
type RuleFailure struct {
	RuleID string `json:"rule_id"`
	Reason string `json:"reason"`
}

// String renders the failure as RULE_ID: reason
func (f RuleFailure) String() string {
	return fmt.Sprintf("%s: %s", f.RuleID, f.Reason)
}

// RuleFlag is a non-blocking observation raised by a rule
type RuleFlag struct {
	RuleID string `json:"rule_id"`
	Reason string `json:"reason"`
}

// ValidationResult combines rule evaluation and anomaly scoring for one claim
type ValidationResult struct {
	PassedRules    []string      `json:"passed_rules"`
	FailedRules    []RuleFailure `json:"failed_rules"`
	Flags          []RuleFlag    `json:"flags,omitempty"`
	RiskScore      float64       `json:"risk_score"`
	FraudThreshold float64       `json:"fraud_threshold"`
	IsValid        bool          `json:"is_valid"`
}

// HasRuleFailures reports whether any hard rule failed
func (r *ValidationResult) HasRuleFailures() bool {
	return len(r.FailedRules) > 0
}

// FailedRuleIDs returns the identifiers of the failed rules
func (r *ValidationResult) FailedRuleIDs() []string {
	ids := make([]string, 0, len(r.FailedRules))
	for _, f := range r.FailedRules {
		ids = append(ids, f.RuleID)
	}
	return ids
}

// RoutingAction is the operational action assigned to a claim
type RoutingAction string

const (
	ActionAutoApprove  RoutingAction = "AUTO_APPROVE"
	ActionManualReview RoutingAction = "MANUAL_REVIEW"
	ActionEscalate     RoutingAction = "ESCALATE"
	ActionReject       RoutingAction = "REJECT"
)

// String returns the string representation of the action
func (a RoutingAction) String() string {
	return string(a)
}

// RequiresHuman reports whether the action hands the claim to a person
func (a RoutingAction) RequiresHuman() bool {
	return a == ActionManualReview || a == ActionEscalate
}

// RoutingDecision is the terminal classification of a claim
type RoutingDecision struct {
	Action    RoutingAction `json:"action"`
	Rationale string        `json:"rationale"`
	Step      string        `json:"step"`
	DecidedAt time.Time     `json:"decided_at"`
}

// String returns a human-readable representation of the decision
func (d *RoutingDecision) String() string {
	return fmt.Sprintf("RoutingDecision{Action: %s, Step: %s, Rationale: %s}", d.Action, d.Step, d.Rationale)
}
